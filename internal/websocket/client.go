// internal/websocket/client.go
package websocket

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait          = 10 * time.Second // Time allowed to write a message to the peer.
	defaultIdleTimeout = 30 * time.Second // Inbound silence before a heartbeat is sent.
	defaultSendBuffer  = 256
	maxMessageSize     = 1024 // Maximum inbound message size.
)

// Client is one live subscriber: the middleman between a websocket connection
// and the hub. Each client runs its own read and write pumps, so one slow or
// failed subscriber never blocks another.
type Client struct {
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte // Buffered channel of outbound messages.
	ID   string

	idleTimeout time.Duration
	inbound     chan struct{} // Pokes the write pump when the peer sends anything.

	mu           sync.Mutex
	zones        []string // Declared interest set; empty means all zones.
	lastActivity time.Time
	closed       bool // Send has been closed; no further enqueues.
}

// NewClient wraps an upgraded connection. idleTimeout and sendBuffer fall back
// to defaults when zero.
func NewClient(hub *Hub, conn *websocket.Conn, id string, idleTimeout time.Duration, sendBuffer int) *Client {
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	return &Client{
		Hub:          hub,
		Conn:         conn,
		Send:         make(chan []byte, sendBuffer),
		ID:           id,
		idleTimeout:  idleTimeout,
		inbound:      make(chan struct{}, 1),
		lastActivity: time.Now().UTC(),
	}
}

func (c *Client) setZones(zones []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.zones = append([]string(nil), zones...)
}

// Zones returns a copy of the subscriber's interest set.
func (c *Client) Zones() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.zones...)
}

// LastActivity returns when the peer last sent anything.
func (c *Client) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// enqueue offers a payload to the subscriber without blocking. It reports
// false when the buffer is full or the channel is already closed, so callers
// on any goroutine can hand the client back to the hub for pruning instead
// of racing a send against closeSend.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}

// closeSend closes the outbound channel exactly once. Only the hub calls
// this, while removing the client from its registry.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

func (c *Client) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now().UTC()
	c.mu.Unlock()
	select {
	case c.inbound <- struct{}{}:
	default:
	}
}

// ReadPump pumps inbound messages from the connection to the hub. It runs in
// its own goroutine and tears down only this subscriber on error.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.UnregisterClient(c)
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("websocket: read error for %s: %v", c.ID, err)
			}
			return
		}
		c.touch()
		c.Hub.HandleInbound(c, message)
	}
}

// WritePump pumps outbound messages from the hub to the connection and sends
// a heartbeat envelope after idleTimeout of inbound silence. Every write
// carries a bounded deadline so an unresponsive peer fails here, locally,
// instead of stalling the hub.
func (c *Client) WritePump() {
	idle := time.NewTimer(c.idleTimeout)
	defer func() {
		idle.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("websocket: write error for %s: %v", c.ID, err)
				return
			}

		case <-c.inbound:
			// Peer activity; restart the idle wait.
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(c.idleTimeout)

		case <-idle.C:
			payload, err := NewMessage(TypeHeartbeat, map[string]interface{}{}).encode()
			if err == nil {
				c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					log.Printf("websocket: heartbeat error for %s: %v", c.ID, err)
					return
				}
			}
			idle.Reset(c.idleTimeout)
		}
	}
}
