// Package stream owns the client side of the push channel: a single logical
// websocket subscription with automatic, bounded reconnection.
package stream

import (
	"encoding/json"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/statuspulse/incidentd/pkg/incident"
)

// State enumerates the connection lifecycle.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	GaveUp
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case GaveUp:
		return "gave_up"
	default:
		return "unknown"
	}
}

// Defaults applied when the corresponding Config field is zero.
const (
	DefaultReconnectInterval    = 3 * time.Second
	DefaultMaxReconnectAttempts = 5
)

// Config parametrises a Client.
type Config struct {
	URL string
	// ReconnectInterval is the fixed delay between reconnect attempts.
	ReconnectInterval time.Duration
	// MaxReconnectAttempts caps automatic retries; after the cap the client
	// gives up until Connect is called again.
	MaxReconnectAttempts int
	Dialer               *websocket.Dialer
	Logger               *slog.Logger
}

// MessageHandler receives every successfully parsed inbound envelope.
type MessageHandler func(incident.Envelope)

// ErrorHandler receives transport errors. Errors do not trigger reconnection
// by themselves; reconnects are driven by connection close.
type ErrorHandler func(error)

// ConnHandler observes open/close transitions.
type ConnHandler func()

type messageEntry struct {
	id int
	fn MessageHandler
}

type errorEntry struct {
	id int
	fn ErrorHandler
}

type connEntry struct {
	id int
	fn ConnHandler
}

// Client manages one logical subscription to the incident stream.
type Client struct {
	url      string
	interval time.Duration
	maxTries int
	dialer   *websocket.Dialer
	log      *slog.Logger

	mu              sync.Mutex
	conn            *websocket.Conn
	state           State
	attempts        int
	shouldReconnect bool
	reconnectTimer  *time.Timer
	nextID          int
	msgHandlers     []messageEntry
	errHandlers     []errorEntry
	openHandlers    []connEntry
	closeHandlers   []connEntry
}

// NewClient builds a Client; it does not connect until Connect is called.
func NewClient(cfg Config) *Client {
	interval := cfg.ReconnectInterval
	if interval <= 0 {
		interval = DefaultReconnectInterval
	}
	maxTries := cfg.MaxReconnectAttempts
	if maxTries <= 0 {
		maxTries = DefaultMaxReconnectAttempts
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		url:      cfg.URL,
		interval: interval,
		maxTries: maxTries,
		dialer:   dialer,
		log:      log,
		state:    Disconnected,
	}
}

// Connect opens the transport. It is a no-op while already connecting or
// connected, and re-arms a client that previously gave up.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.state == Connecting || c.state == Connected {
		c.mu.Unlock()
		c.log.Warn("stream already connected or connecting")
		return
	}
	c.shouldReconnect = true
	c.state = Connecting
	c.mu.Unlock()
	go c.dial()
}

// Disconnect closes the transport and suppresses further reconnects. Tearing
// down a live connection reports the close to OnClose handlers, same as a
// server-side drop; only the reconnect is suppressed. It is idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.shouldReconnect = false
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	if c.state != GaveUp {
		c.state = Disconnected
	}
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
		c.emitClose()
	}
}

// Send marshals v as JSON and writes it to the server. The server defines no
// command protocol; frames are logged on the far side.
func (c *Client) Send(v any) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == Connected
	c.mu.Unlock()
	if !connected || conn == nil {
		c.log.Warn("stream not connected, message dropped")
		return ErrNotConnected
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// State reports the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether the transport is currently open.
func (c *Client) Connected() bool {
	return c.State() == Connected
}

// OnMessage subscribes to parsed inbound envelopes. The returned function
// unsubscribes and is safe to call from within any handler.
func (c *Client) OnMessage(fn MessageHandler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.msgHandlers = append(c.msgHandlers, messageEntry{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, entry := range c.msgHandlers {
			if entry.id == id {
				c.msgHandlers = append(c.msgHandlers[:i], c.msgHandlers[i+1:]...)
				return
			}
		}
	}
}

// OnError subscribes to transport errors.
func (c *Client) OnError(fn ErrorHandler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.errHandlers = append(c.errHandlers, errorEntry{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, entry := range c.errHandlers {
			if entry.id == id {
				c.errHandlers = append(c.errHandlers[:i], c.errHandlers[i+1:]...)
				return
			}
		}
	}
}

// OnOpen subscribes to successful connection establishment.
func (c *Client) OnOpen(fn ConnHandler) func() {
	return c.onConn(&c.openHandlers, fn)
}

// OnClose subscribes to connection loss.
func (c *Client) OnClose(fn ConnHandler) func() {
	return c.onConn(&c.closeHandlers, fn)
}

func (c *Client) onConn(list *[]connEntry, fn ConnHandler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	*list = append(*list, connEntry{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, entry := range *list {
			if entry.id == id {
				*list = append((*list)[:i], (*list)[i+1:]...)
				return
			}
		}
	}
}

func (c *Client) dial() {
	conn, resp, err := c.dialer.Dial(c.url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		c.log.Error("stream dial failed", "url", c.url, "error", err)
		c.emitError(err)
		c.mu.Lock()
		if c.state == Connecting {
			c.state = Disconnected
		}
		c.mu.Unlock()
		c.emitClose()
		c.scheduleReconnect()
		return
	}

	c.mu.Lock()
	if !c.shouldReconnect {
		// Disconnect raced the dial.
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.state = Connected
	c.attempts = 0
	c.mu.Unlock()

	c.log.Info("stream connected", "url", c.url)
	c.emitOpen()
	go c.readLoop(conn)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var env incident.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Warn("dropping unparseable stream frame", "error", err)
			continue
		}
		c.dispatch(env)
	}

	_ = conn.Close()
	c.mu.Lock()
	if c.conn != conn {
		// Disconnect already detached and reported this connection, or a
		// newer one replaced it; nothing left to report.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = Disconnected
	reconnect := c.shouldReconnect
	c.mu.Unlock()

	c.log.Info("stream disconnected", "url", c.url)
	c.emitClose()
	if reconnect {
		c.scheduleReconnect()
	}
}

func (c *Client) dispatch(env incident.Envelope) {
	c.mu.Lock()
	handlers := make([]messageEntry, len(c.msgHandlers))
	copy(handlers, c.msgHandlers)
	c.mu.Unlock()
	for _, entry := range handlers {
		entry.fn(env)
	}
}

func (c *Client) emitError(err error) {
	c.mu.Lock()
	handlers := make([]errorEntry, len(c.errHandlers))
	copy(handlers, c.errHandlers)
	c.mu.Unlock()
	for _, entry := range handlers {
		entry.fn(err)
	}
}

func (c *Client) emitOpen() {
	c.emitConn(&c.openHandlers)
}

func (c *Client) emitClose() {
	c.emitConn(&c.closeHandlers)
}

func (c *Client) emitConn(list *[]connEntry) {
	c.mu.Lock()
	handlers := make([]connEntry, len(*list))
	copy(handlers, *list)
	c.mu.Unlock()
	for _, entry := range handlers {
		entry.fn()
	}
}

func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.shouldReconnect {
		return
	}
	if c.attempts >= c.maxTries {
		c.state = GaveUp
		c.log.Error("max reconnect attempts reached, giving up", "attempts", c.attempts)
		return
	}
	c.attempts++
	c.log.Info("scheduling reconnect", "attempt", c.attempts, "max", c.maxTries, "in", c.interval)
	c.reconnectTimer = time.AfterFunc(c.interval, func() {
		c.mu.Lock()
		if !c.shouldReconnect || c.state == Connecting || c.state == Connected {
			c.mu.Unlock()
			return
		}
		c.state = Connecting
		c.mu.Unlock()
		c.dial()
	})
}
