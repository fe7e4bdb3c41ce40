// Package live maintains the websocket connection that carries update
// hints from the translation backend. The channel reconnects on its own
// after unexpected drops and stays down after an intentional Close.
package live

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// State describes the channel's connection lifecycle.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Message is one update hint from the backend. Hints are advisory: they
// tell the client that server state moved, not what it moved to.
type Message struct {
	Type      string    `json:"type"`
	BatchID   string    `json:"batchId,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Config holds channel settings.
type Config struct {
	// URL is the websocket endpoint (ws:// or wss://).
	URL string

	// ReconnectDelay is the fixed wait before a reconnect attempt.
	ReconnectDelay time.Duration

	// DialTimeout bounds a single connection attempt.
	DialTimeout time.Duration

	// Logger for connection events
	Logger *log.Logger
}

// DefaultConfig returns sensible channel defaults for url.
func DefaultConfig(url string) Config {
	return Config{
		URL:            url,
		ReconnectDelay: 3 * time.Second,
		DialTimeout:    10 * time.Second,
		Logger:         log.New(os.Stderr, "[live] ", log.LstdFlags),
	}
}

// Channel is a reconnecting websocket subscription. At most one
// reconnect timer is ever pending, no matter how many failures stack up.
type Channel struct {
	config Config

	mu              sync.Mutex
	state           State
	conn            *websocket.Conn
	shouldReconnect bool
	reconnectTimer  *time.Timer
	onMessage       func(Message)
	onStateChange   func(State)
}

// NewChannel creates a channel for config. Connect starts it.
func NewChannel(config Config) *Channel {
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = 3 * time.Second
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[live] ", log.LstdFlags)
	}
	return &Channel{config: config}
}

// OnMessage registers the hint callback. Hints invoke it from the read
// goroutine, one at a time.
func (c *Channel) OnMessage(fn func(Message)) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

// OnStateChange registers the state transition callback.
func (c *Channel) OnStateChange(fn func(State)) {
	c.mu.Lock()
	c.onStateChange = fn
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect opens the channel and arms automatic reconnection. Calling it
// while a connection attempt is in flight or established is a no-op.
func (c *Channel) Connect() {
	c.mu.Lock()
	c.shouldReconnect = true
	if c.state != Disconnected {
		c.mu.Unlock()
		return
	}
	c.state = Connecting
	cb := c.onStateChange
	c.mu.Unlock()

	if cb != nil {
		cb(Connecting)
	}
	go c.dial()
}

// Close drops the connection with a normal closure and disarms
// reconnection. Safe to call at any time, including while disconnected.
func (c *Channel) Close() {
	c.mu.Lock()
	c.shouldReconnect = false
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	changed := c.state != Disconnected
	c.state = Disconnected
	cb := c.onStateChange
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client shutdown")
	}
	if changed && cb != nil {
		cb(Disconnected)
	}
}

func (c *Channel) dial() {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.DialTimeout)
	conn, _, err := websocket.Dial(ctx, c.config.URL, nil)
	cancel()

	if err != nil {
		c.config.Logger.Printf("Connection to %s failed: %v", c.config.URL, err)
		c.mu.Lock()
		c.state = Disconnected
		cb := c.onStateChange
		c.mu.Unlock()
		if cb != nil {
			cb(Disconnected)
		}
		c.scheduleReconnect()
		return
	}

	c.mu.Lock()
	if !c.shouldReconnect {
		// Close raced the dial; discard the fresh connection.
		c.state = Disconnected
		c.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "client shutdown")
		return
	}
	c.conn = conn
	c.state = Connected
	cb := c.onStateChange
	c.mu.Unlock()

	c.config.Logger.Printf("Connected to %s", c.config.URL)
	if cb != nil {
		cb(Connected)
	}
	go c.readLoop(conn)
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			c.handleDisconnect(conn, err)
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.config.Logger.Printf("Discarding malformed hint: %v", err)
			continue
		}

		c.mu.Lock()
		cb := c.onMessage
		c.mu.Unlock()
		if cb != nil {
			cb(msg)
		}
	}
}

func (c *Channel) handleDisconnect(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// A Close or newer connection already superseded this loop.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = Disconnected
	reconnect := c.shouldReconnect
	cb := c.onStateChange
	c.mu.Unlock()

	// A normal closure is an intentional teardown by the peer, not a
	// failure; only unexpected drops reconnect.
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		c.config.Logger.Printf("Connection closed by server")
		reconnect = false
	} else if reconnect {
		c.config.Logger.Printf("Connection lost: %v", err)
	}
	if cb != nil {
		cb(Disconnected)
	}
	if reconnect {
		c.scheduleReconnect()
	}
}

// scheduleReconnect arms the reconnect timer. If a timer is already
// pending it is left alone, so repeated failures collapse into a single
// future attempt.
func (c *Channel) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.shouldReconnect || c.reconnectTimer != nil {
		return
	}

	c.config.Logger.Printf("Reconnecting in %s", c.config.ReconnectDelay)
	c.reconnectTimer = time.AfterFunc(c.config.ReconnectDelay, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		if !c.shouldReconnect || c.state != Disconnected {
			c.mu.Unlock()
			return
		}
		c.state = Connecting
		cb := c.onStateChange
		c.mu.Unlock()

		if cb != nil {
			cb(Connecting)
		}
		c.dial()
	})
}
