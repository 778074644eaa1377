package ws

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBrokerFanOut(t *testing.T) {
	b := NewLocalBroker()
	a, c, other := &recordingSubscriber{}, &recordingSubscriber{}, &recordingSubscriber{}
	b.Subscribe("chat_A", a)
	b.Subscribe("chat_A", c)
	b.Subscribe("chat_B", other)

	require.NoError(t, b.Publish(context.Background(), "chat_A", []byte(`{"message":"hi"}`)))

	assert.Len(t, a.payloads, 1)
	assert.Len(t, c.payloads, 1)
	assert.Empty(t, other.payloads)
}

func TestLocalBrokerUnsubscribeIsIdempotent(t *testing.T) {
	b := NewLocalBroker()
	s := &recordingSubscriber{}

	b.Unsubscribe("chat_A", s) // never subscribed
	b.Subscribe("chat_A", s)
	b.Unsubscribe("chat_A", s)
	b.Unsubscribe("chat_A", s)

	assert.Equal(t, 0, b.SubscriberCount("chat_A"))
	b.Publish(context.Background(), "chat_A", []byte("x"))
	assert.Empty(t, s.payloads)
}

func TestLocalBrokerDropsSlowSubscribers(t *testing.T) {
	b := NewLocalBroker()
	slow := &recordingSubscriber{full: true}
	fast := &recordingSubscriber{}
	b.Subscribe("chat_A", slow)
	b.Subscribe("chat_A", fast)

	b.Publish(context.Background(), "chat_A", []byte("x"))

	assert.True(t, slow.closed)
	assert.Equal(t, 1, b.SubscriberCount("chat_A"))
	assert.Len(t, fast.payloads, 1)
}

func TestLocalBrokerCloseTopic(t *testing.T) {
	b := NewLocalBroker()
	s1, s2 := &recordingSubscriber{}, &recordingSubscriber{}
	b.Subscribe("chat_A", s1)
	b.Subscribe("chat_A", s2)

	require.NoError(t, b.CloseTopic(context.Background(), "chat_A"))
	assert.True(t, s1.closed)
	assert.True(t, s2.closed)
	assert.Equal(t, 0, b.SubscriberCount("chat_A"))
}

func TestLocalBrokerCloseMember(t *testing.T) {
	b := NewLocalBroker()
	leaving1, leaving2 := &recordingSubscriber{user: 7}, &recordingSubscriber{user: 7}
	staying := &recordingSubscriber{user: 8}
	elsewhere := &recordingSubscriber{user: 7}
	b.Subscribe("chat_1", leaving1)
	b.Subscribe("chat_1", leaving2)
	b.Subscribe("chat_1", staying)
	b.Subscribe("chat_2", elsewhere)

	require.NoError(t, b.CloseMember(context.Background(), "chat_1", 7))
	assert.True(t, leaving1.isClosed())
	assert.True(t, leaving2.isClosed())
	assert.False(t, staying.isClosed())
	assert.False(t, elsewhere.isClosed())
	assert.Equal(t, 1, b.SubscriberCount("chat_1"))

	b.Publish(context.Background(), "chat_1", []byte("x"))
	assert.Empty(t, leaving1.payloads)
	assert.Len(t, staying.payloads, 1)
}

func startRedisBroker(t *testing.T, addr string) *RedisBroker {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	b := NewRedisBroker(client)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, b.Start(ctx))
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return b
}

func (s *recordingSubscriber) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

func (s *recordingSubscriber) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func TestRedisBrokerSharesFanOutAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	first := startRedisBroker(t, mr.Addr())
	second := startRedisBroker(t, mr.Addr())

	s1, s2 := &recordingSubscriber{}, &recordingSubscriber{}
	first.Subscribe("chat_Calculus", s1)
	second.Subscribe("chat_Calculus", s2)

	require.NoError(t, first.Publish(context.Background(), "chat_Calculus", []byte(`{"message":"hi"}`)))

	assert.Eventually(t, func() bool { return s1.count() == 1 && s2.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, `{"message":"hi"}`, string(s2.payloads[0]))
}

func TestRedisBrokerCloseTopic(t *testing.T) {
	mr := miniredis.RunT(t)
	first := startRedisBroker(t, mr.Addr())
	second := startRedisBroker(t, mr.Addr())

	s := &recordingSubscriber{}
	second.Subscribe("chat_Physics", s)

	require.NoError(t, first.CloseTopic(context.Background(), "chat_Physics"))
	assert.Eventually(t, s.isClosed, 2*time.Second, 10*time.Millisecond)
}

func TestRedisBrokerCloseMember(t *testing.T) {
	mr := miniredis.RunT(t)
	first := startRedisBroker(t, mr.Addr())
	second := startRedisBroker(t, mr.Addr())

	leaving := &recordingSubscriber{user: 3}
	staying := &recordingSubscriber{user: 4}
	second.Subscribe("chat_5", leaving)
	second.Subscribe("chat_5", staying)

	require.NoError(t, first.CloseMember(context.Background(), "chat_5", 3))
	assert.Eventually(t, leaving.isClosed, 2*time.Second, 10*time.Millisecond)
	assert.False(t, staying.isClosed())
}

func TestRedisBrokerRunRequiresStart(t *testing.T) {
	b := NewRedisBroker(redis.NewClient(&redis.Options{Addr: "localhost:0"}))
	assert.Error(t, b.Run(context.Background()))
}
