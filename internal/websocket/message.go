// internal/websocket/message.go
package websocket

import (
	"encoding/json"
	"time"
)

// Server-sent message types.
const (
	TypeConnected  = "connected"
	TypeSubscribed = "subscribed"
	TypeZoneUpdate = "zone_update"
	TypeEvent      = "event"
	TypeAlert      = "alert"
	TypeHeartbeat  = "heartbeat"
)

// Message is the streaming envelope. Timestamp is UTC, ISO-8601.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
}

// NewMessage builds an envelope stamped with the current UTC time.
func NewMessage(msgType string, data interface{}) Message {
	return Message{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func (m Message) encode() ([]byte, error) {
	return json.Marshal(m)
}

// inboundMessage is what clients may send; only subscribe requests are
// recognized.
type inboundMessage struct {
	Type  string   `json:"type"`
	Zones []string `json:"zones"`
}

func decodeInbound(raw []byte, into *inboundMessage) error {
	return json.Unmarshal(raw, into)
}
