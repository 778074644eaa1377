package ws

import (
	"context"
	"strconv"
)

// Subscriber receives payloads published on a topic.
type Subscriber interface {
	// Deliver must not block. It returns false when the subscriber cannot
	// take the payload, in which case the broker drops it.
	Deliver(payload []byte) bool
	// Close tells the subscriber it was dropped or its topic was closed.
	// It must be idempotent.
	Close()
	// UserID is the member the subscription belongs to.
	UserID() int
}

// Broker fans published payloads out to the subscribers of a topic.
type Broker interface {
	Subscribe(topic string, sub Subscriber)
	// Unsubscribe is a no-op when sub is not subscribed.
	Unsubscribe(topic string, sub Subscriber)
	Publish(ctx context.Context, topic string, payload []byte) error
	// CloseTopic closes and removes every subscriber of topic.
	CloseTopic(ctx context.Context, topic string) error
	// CloseMember closes and removes the subscribers of topic that belong
	// to userID.
	CloseMember(ctx context.Context, topic string, userID int) error
}

const topicPrefix = "chat_"

// Topic returns the channel-group key for a group. It is keyed on the id so
// that groups never share a channel.
func Topic(groupID int) string {
	return topicPrefix + strconv.Itoa(groupID)
}
