package ws

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pliu/smartaid/internal/logging"
	"github.com/pliu/smartaid/internal/metrics"
	"github.com/pliu/smartaid/internal/models"
	"github.com/pliu/smartaid/internal/store"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated sender")
	ErrNotMember       = errors.New("sender is not a member of the group")
	ErrEmptyMessage    = errors.New("message cannot be empty")
	ErrMessageTooLong  = errors.New("message is too long")
	ErrHubStopped      = errors.New("chat hub stopped")
)

// Frame is the JSON envelope sent to subscribers.
type Frame struct {
	ID        int       `json:"id,omitempty"`
	Message   string    `json:"message,omitempty"`
	Username  string    `json:"username,omitempty"`
	UserID    int       `json:"user_id,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
	Error     string    `json:"error,omitempty"`
}

// Post is one message submitted to the hub from a socket or HTTP.
type Post struct {
	GroupID int
	Topic   string
	UserID  int
	Content string
	// Sender receives an error frame if the message cannot be stored.
	Sender Subscriber

	result chan postResult
}

type postResult struct {
	msg *models.GroupMessage
	err error
}

// Hub is the single writer of chat messages. Posts are persisted and then
// published in the order they arrive, so every subscriber sees commit order.
type Hub struct {
	store  store.Store
	broker Broker
	posts  chan *Post
	// stopped is closed when Run returns.
	stopped chan struct{}

	now    func() time.Time
	lastTS time.Time
}

func NewHub(store store.Store, broker Broker) *Hub {
	return &Hub{
		store:   store,
		broker:  broker,
		posts:   make(chan *Post, 256),
		stopped: make(chan struct{}),
		now:     time.Now,
	}
}

func (h *Hub) Broker() Broker {
	return h.broker
}

// Run processes posts until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-h.posts:
			msg, err := h.handle(ctx, p)
			if p.result != nil {
				p.result <- postResult{msg: msg, err: err}
			}
		}
	}
}

// Submit queues a post without waiting for it to be stored.
func (h *Hub) Submit(ctx context.Context, p Post) error {
	select {
	case h.posts <- &p:
		return nil
	case <-h.stopped:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post queues a message and waits until it has been stored and published.
func (h *Hub) Post(ctx context.Context, p Post) (*models.GroupMessage, error) {
	p.result = make(chan postResult, 1)
	if err := h.Submit(ctx, p); err != nil {
		return nil, err
	}
	select {
	case res := <-p.result:
		return res.msg, res.err
	case <-h.stopped:
		return nil, ErrHubStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) handle(ctx context.Context, p *Post) (*models.GroupMessage, error) {
	if p.UserID <= 0 {
		metrics.ChatMessages.WithLabelValues("rejected").Inc()
		return nil, ErrUnauthenticated
	}
	content := strings.TrimSpace(p.Content)
	if content == "" {
		metrics.ChatMessages.WithLabelValues("rejected").Inc()
		h.sendError(p.Sender, "Message cannot be empty.")
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > models.MaxMessageLength {
		metrics.ChatMessages.WithLabelValues("rejected").Inc()
		h.sendError(p.Sender, "Message is too long.")
		return nil, ErrMessageTooLong
	}

	isMember, err := h.store.IsMember(p.GroupID, p.UserID)
	if err != nil {
		metrics.ChatMessages.WithLabelValues("failed").Inc()
		logging.Error().Err(err).Int("group_id", p.GroupID).Msg("Error checking membership")
		h.sendError(p.Sender, "Message could not be saved.")
		return nil, err
	}
	if !isMember {
		metrics.ChatMessages.WithLabelValues("rejected").Inc()
		return nil, ErrNotMember
	}

	msg, err := h.store.SaveMessage(p.GroupID, p.UserID, content, h.nextTimestamp())
	if err != nil {
		metrics.ChatMessages.WithLabelValues("failed").Inc()
		logging.Error().Err(err).Int("group_id", p.GroupID).Int("user_id", p.UserID).Msg("Error saving message")
		h.sendError(p.Sender, "Message could not be saved.")
		return nil, err
	}
	metrics.ChatMessages.WithLabelValues("persisted").Inc()

	payload, _ := json.Marshal(Frame{
		ID:        msg.ID,
		Message:   msg.Content,
		Username:  msg.Username,
		UserID:    msg.UserID,
		Timestamp: msg.Timestamp,
	})
	if err := h.broker.Publish(ctx, p.Topic, payload); err != nil {
		logging.Error().Err(err).Str("topic", p.Topic).Msg("Error publishing message")
	}
	return msg, nil
}

// nextTimestamp returns a microsecond timestamp strictly after the previous one.
func (h *Hub) nextTimestamp() time.Time {
	ts := h.now().UTC().Truncate(time.Microsecond)
	if !ts.After(h.lastTS) {
		ts = h.lastTS.Add(time.Microsecond)
	}
	h.lastTS = ts
	return ts
}

func (h *Hub) sendError(sub Subscriber, text string) {
	if sub == nil {
		return
	}
	payload, _ := json.Marshal(Frame{Error: text})
	sub.Deliver(payload)
}
