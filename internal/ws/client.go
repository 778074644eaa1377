package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pliu/smartaid/internal/logging"
	"github.com/pliu/smartaid/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// Room for a full-length message plus the JSON envelope.
	maxFrameSize = 16 << 10
	sendBuffer   = 256
)

// inbound is a frame sent by the browser.
type inbound struct {
	Message string `json:"message"`
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	userID  int
	groupID int
	topic   string
}

func newClient(hub *Hub, userID, groupID int, topic string) *Client {
	return &Client{
		hub:     hub,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		userID:  userID,
		groupID: groupID,
		topic:   topic,
	}
}

// Deliver queues payload for the write pump without blocking.
func (c *Client) Deliver(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Client) UserID() int {
	return c.userID
}

// readPump forwards browser frames to the hub until the connection fails.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.broker.Unsubscribe(c.topic, c)
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Int("user_id", c.userID).Msg("Unexpected websocket close")
			}
			return
		}

		var frame inbound
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		err = c.hub.Submit(ctx, Post{
			GroupID: c.groupID,
			Topic:   c.topic,
			UserID:  c.userID,
			Content: frame.Message,
			Sender:  c,
		})
		if err != nil {
			return
		}
	}
}

// writePump writes queued payloads and keeps the connection alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ServeWs joins an already authorized request to topic and then accepts the
// upgrade, so nothing published after the handshake is missed. Frames
// published in between wait in the send buffer. It returns once the
// connection is closed.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, userID, groupID int, topic string) {
	client := newClient(hub, userID, groupID, topic)
	hub.broker.Subscribe(topic, client)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.broker.Unsubscribe(topic, client)
		client.Close()
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	client.conn = conn
	metrics.ChatConnections.Inc()
	defer metrics.ChatConnections.Dec()

	go client.writePump()
	go func() {
		select {
		case <-hub.stopped:
			client.Close()
		case <-client.done:
		}
	}()
	client.readPump(r.Context())
}
