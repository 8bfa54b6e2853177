package ws

import (
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
)

const defaultWriteWait = 10 * time.Second

// Client adapts a websocket connection to the Subscriber interface. Writes are
// serialized because gorilla connections permit a single concurrent writer.
type Client struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	log       *slog.Logger
	writeWait time.Duration
}

// NewClient constructs a client wrapper.
func NewClient(conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{conn: conn, log: logger, writeWait: defaultWriteWait}
}

// Send writes a message to the websocket connection. Each write carries a
// deadline so a stalled peer surfaces as an error and gets evicted instead of
// blocking the hub's dispatch loop and, behind it, the mutation path.
func (c *Client) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.log.Warn("websocket send failed", "error", err)
		_ = c.conn.Close()
		return err
	}
	return nil
}

// Close terminates the connection.
func (c *Client) Close() {
	_ = c.conn.Close()
}
