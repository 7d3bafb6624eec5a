// internal/websocket/hub.go
package websocket

import (
	"log"
	"sync"

	"smart-parking-core/internal/metrics"
)

// Hub maintains the set of live subscribers and delivers typed messages to
// them. Delivery is best-effort, at-most-once: a subscriber whose send buffer
// is full or whose connection has failed is pruned from the live set, and the
// failure never reaches the code path that triggered the broadcast.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

type outbound struct {
	msgType string
	payload []byte
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan outbound, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Run owns the subscriber set. It must be started exactly once, in its own
// goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			metrics.SubscribersConnected.Inc()
			log.Printf("websocket: subscriber %s registered", client.ID)
			// Confirmation goes to the new subscriber only.
			h.trySend(client, NewMessage(TypeConnected, map[string]string{
				"message": "Connected to parking feed",
			}))

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			h.mu.RLock()
			targets := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				targets = append(targets, client)
			}
			h.mu.RUnlock()

			for _, client := range targets {
				if !client.enqueue(msg.payload) {
					// Slow or gone; drop the subscriber, not the broadcast.
					log.Printf("websocket: subscriber %s send buffer full, removing", client.ID)
					h.remove(client)
				}
			}
			metrics.BroadcastsSent.WithLabelValues(msg.msgType).Inc()
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.closeSend()
		metrics.SubscribersConnected.Dec()
		metrics.SubscribersPruned.Inc()
		log.Printf("websocket: subscriber %s unregistered", client.ID)
	}
}

// RegisterClient adds a subscriber to the live set.
func (h *Hub) RegisterClient(client *Client) {
	h.register <- client
}

// UnregisterClient removes a subscriber. Idempotent.
func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}

// ClientCount returns the current number of live subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast delivers an envelope of the given type to every live subscriber.
// Fire-and-forget: errors are resolved by pruning, never returned.
//
// Subscribers may declare a zone interest set via subscribe requests, but
// broadcast delivery is deliberately announce-all; the interest set is
// acknowledged and retained without gating delivery.
func (h *Hub) Broadcast(msgType string, data interface{}) {
	msg := NewMessage(msgType, data)
	payload, err := msg.encode()
	if err != nil {
		log.Printf("websocket: error marshalling %s broadcast: %v", msgType, err)
		return
	}
	h.broadcast <- outbound{msgType: msgType, payload: payload}
}

// SendTo delivers an envelope to a single subscriber with the same failure
// isolation as Broadcast.
func (h *Hub) SendTo(client *Client, msgType string, data interface{}) {
	h.trySend(client, NewMessage(msgType, data))
}

func (h *Hub) trySend(client *Client, msg Message) {
	payload, err := msg.encode()
	if err != nil {
		log.Printf("websocket: error marshalling %s message: %v", msg.Type, err)
		return
	}
	if !client.enqueue(payload) {
		go func() { h.unregister <- client }()
	}
}

// HandleInbound processes a raw client message. Subscribe requests update the
// subscriber's interest set and are acknowledged; anything else is ignored.
func (h *Hub) HandleInbound(client *Client, raw []byte) {
	var msg inboundMessage
	if err := decodeInbound(raw, &msg); err != nil {
		log.Printf("websocket: ignoring malformed message from %s: %v", client.ID, err)
		return
	}
	if msg.Type == "subscribe" {
		client.setZones(msg.Zones)
		h.SendTo(client, TypeSubscribed, map[string]interface{}{"zones": msg.Zones})
	}
}
