package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// envelope is the bidirectional wire frame: an event name plus its payload.
type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Client wraps a websocket connection as a presence handle. Writes from
// concurrent broadcasters are serialized with a mutex; once a write fails the
// client is marked closed and every later send is a silent no-op.
type Client struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

func NewClient(conn *websocket.Conn) *Client {
	return &Client{conn: conn}
}

// Send writes one event frame. Reports false when the connection is gone.
func (c *Client) Send(event string, data any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(envelope{Event: event, Data: data}); err != nil {
		c.closed = true
		c.conn.Close()
		return false
	}
	return true
}

// Close shuts the underlying connection down.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		c.conn.Close()
	}
}
