package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thrivesend/pulse/internal/analytics"
	"github.com/thrivesend/pulse/internal/logging"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	// Outbound buffer per connection; a full buffer means a slow
	// consumer and the update is dropped, never queued.
	sendBufferSize = 256
)

// Connection is one admitted transport. Identifiers are opaque and never
// reused. Subscription set, last-sent cache and heartbeat timestamp are
// guarded by mu; the send buffer and done channel handle the write side.
type Connection struct {
	ID             string
	OrganizationID string
	UserID         string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	closeOnce sync.Once

	mu            sync.Mutex
	channels      map[analytics.Channel]struct{}
	lastSent      map[analytics.Channel]*analytics.Snapshot
	lastHeartbeat time.Time

	logger logging.Logger
}

func newConnection(hub *Hub, wsConn *websocket.Conn, id, organizationID, userID string, now time.Time, logger logging.Logger) *Connection {
	return &Connection{
		ID:             id,
		OrganizationID: organizationID,
		UserID:         userID,
		hub:            hub,
		conn:           wsConn,
		send:           make(chan []byte, sendBufferSize),
		done:           make(chan struct{}),
		channels:       make(map[analytics.Channel]struct{}),
		lastSent:       make(map[analytics.Channel]*analytics.Snapshot),
		lastHeartbeat:  now,
		logger:         logger,
	}
}

// Identity is the rate-limit key: the user when known, the connection
// otherwise.
func (c *Connection) Identity() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.ID
}

// Subscribe adds a channel to the connection's set. Idempotent.
func (c *Connection) Subscribe(channel analytics.Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[channel] = struct{}{}
}

// Unsubscribe removes a channel from the connection's set. Idempotent.
func (c *Connection) Unsubscribe(channel analytics.Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.channels, channel)
}

// Subscribed reports whether the connection subscribes to the channel.
func (c *Connection) Subscribed(channel analytics.Channel) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.channels[channel]
	return ok
}

// Channels returns the connection's current subscription set.
func (c *Connection) Channels() []analytics.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]analytics.Channel, 0, len(c.channels))
	for ch := range c.channels {
		out = append(out, ch)
	}
	return out
}

// LastSent returns the snapshot last delivered on the channel, if any.
func (c *Connection) LastSent(channel analytics.Channel) *analytics.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSent[channel]
}

// SetLastSent records the snapshot as delivered. Only called after a
// successful enqueue so a failed delivery retries against the same
// baseline next tick.
func (c *Connection) SetLastSent(channel analytics.Channel, snapshot *analytics.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSent[channel] = snapshot
}

// Touch records liveness.
func (c *Connection) Touch(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastHeartbeat = now
}

// LastHeartbeat returns the last recorded liveness timestamp.
func (c *Connection) LastHeartbeat() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHeartbeat
}

// Enqueue hands a payload to the write pump without blocking. A full
// buffer or a closed connection is a delivery failure for the caller to
// handle; no per-connection queuing beyond the fixed buffer.
func (c *Connection) Enqueue(payload []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// Close shuts the connection down. Safe to call multiple times and from
// any goroutine.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// readPump pumps messages from the transport into the hub. One goroutine
// per connection; suspension happens only at the read call, never while
// holding shared state.
func (c *Connection) readPump() {
	defer c.hub.drop(c, "connection closed")

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).WithField("connection_id", c.ID).Error("WebSocket connection error")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		c.hub.handleMessage(c, message)
	}
}

// writePump pumps messages from the send buffer to the transport.
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if c.conn != nil {
			c.conn.Close()
		}
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
