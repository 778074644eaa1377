package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/pliu/smartaid/internal/logging"
)

// closeChannel carries closeRequests to every instance.
const closeChannel = "smartaid:close_topic"

// closeRequest closes the subscribers of Topic, or only those of UserID when
// it is set.
type closeRequest struct {
	Topic  string `json:"topic"`
	UserID int    `json:"user_id,omitempty"`
}

// RedisBroker publishes through Redis so that every instance sharing the
// Redis server delivers to its own local subscribers.
type RedisBroker struct {
	client *redis.Client
	local  *LocalBroker
	pubsub *redis.PubSub
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client, local: NewLocalBroker()}
}

// Start subscribes to the chat channels and waits for Redis to confirm.
// It must be called before Run.
func (b *RedisBroker) Start(ctx context.Context) error {
	b.pubsub = b.client.PSubscribe(ctx, topicPrefix+"*")
	if _, err := b.pubsub.Receive(ctx); err != nil {
		b.pubsub.Close()
		return fmt.Errorf("psubscribe: %w", err)
	}
	if err := b.pubsub.Subscribe(ctx, closeChannel); err != nil {
		b.pubsub.Close()
		return fmt.Errorf("subscribe: %w", err)
	}
	if _, err := b.pubsub.Receive(ctx); err != nil {
		b.pubsub.Close()
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

// Run relays Redis messages to local subscribers until ctx is done.
func (b *RedisBroker) Run(ctx context.Context) error {
	if b.pubsub == nil {
		return errors.New("redis broker not started")
	}
	defer b.pubsub.Close()

	ch := b.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if msg.Channel == closeChannel {
				b.applyClose(msg.Payload)
				continue
			}
			b.local.deliver(msg.Channel, []byte(msg.Payload))
		}
	}
}

func (b *RedisBroker) Subscribe(topic string, sub Subscriber) {
	b.local.Subscribe(topic, sub)
}

func (b *RedisBroker) Unsubscribe(topic string, sub Subscriber) {
	b.local.Unsubscribe(topic, sub)
}

func (b *RedisBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (b *RedisBroker) CloseTopic(ctx context.Context, topic string) error {
	return b.publishClose(ctx, closeRequest{Topic: topic})
}

func (b *RedisBroker) CloseMember(ctx context.Context, topic string, userID int) error {
	return b.publishClose(ctx, closeRequest{Topic: topic, UserID: userID})
}

func (b *RedisBroker) publishClose(ctx context.Context, req closeRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, closeChannel, payload).Err(); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("topic", req.Topic).Msg("Closing subscribers locally only")
		b.apply(req)
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (b *RedisBroker) applyClose(payload string) {
	var req closeRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		logging.Warn().Err(err).Msg("Ignoring malformed close request")
		return
	}
	b.apply(req)
}

func (b *RedisBroker) apply(req closeRequest) {
	if req.UserID > 0 {
		b.local.closeMember(req.Topic, req.UserID)
		return
	}
	b.local.closeTopic(req.Topic)
}
