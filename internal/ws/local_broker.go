package ws

import (
	"context"
	"sync"
)

// LocalBroker keeps topic subscriptions in process memory.
type LocalBroker struct {
	mu     sync.RWMutex
	topics map[string]map[Subscriber]struct{}
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{topics: make(map[string]map[Subscriber]struct{})}
}

func (b *LocalBroker) Subscribe(topic string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[Subscriber]struct{})
		b.topics[topic] = subs
	}
	subs[sub] = struct{}{}
}

func (b *LocalBroker) Unsubscribe(topic string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remove(topic, sub)
}

// remove must be called with mu held.
func (b *LocalBroker) remove(topic string, sub Subscriber) bool {
	subs, ok := b.topics[topic]
	if !ok {
		return false
	}
	if _, ok := subs[sub]; !ok {
		return false
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.topics, topic)
	}
	return true
}

func (b *LocalBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	b.deliver(topic, payload)
	return nil
}

// deliver hands payload to every current subscriber and drops the ones
// that cannot keep up.
func (b *LocalBroker) deliver(topic string, payload []byte) {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.topics[topic]))
	for sub := range b.topics[topic] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub.Deliver(payload) {
			continue
		}
		b.mu.Lock()
		removed := b.remove(topic, sub)
		b.mu.Unlock()
		if removed {
			sub.Close()
		}
	}
}

func (b *LocalBroker) CloseTopic(ctx context.Context, topic string) error {
	b.closeTopic(topic)
	return nil
}

func (b *LocalBroker) closeTopic(topic string) {
	b.mu.Lock()
	subs := b.topics[topic]
	delete(b.topics, topic)
	b.mu.Unlock()

	for sub := range subs {
		sub.Close()
	}
}

func (b *LocalBroker) CloseMember(ctx context.Context, topic string, userID int) error {
	b.closeMember(topic, userID)
	return nil
}

func (b *LocalBroker) closeMember(topic string, userID int) {
	var closed []Subscriber
	b.mu.Lock()
	for sub := range b.topics[topic] {
		if sub.UserID() == userID {
			closed = append(closed, sub)
		}
	}
	for _, sub := range closed {
		b.remove(topic, sub)
	}
	b.mu.Unlock()

	for _, sub := range closed {
		sub.Close()
	}
}

// SubscriberCount returns the number of subscribers of topic.
func (b *LocalBroker) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
