// internal/ingest/mqtt.go
package ingest

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	mqttConnectTimeout = 5 * time.Second
	mqttTokenTimeout   = 10 * time.Second
)

// MQTTSource subscribes to a broker topic carrying the same event JSON the
// HTTP surface accepts and feeds it into the ingestor. This is the
// device-facing transport for the detection pipeline.
type MQTTSource struct {
	client   mqtt.Client
	ingestor *Ingestor
	topic    string
}

func NewMQTTSource(brokerURL, clientID, topic string, ingestor *Ingestor) *MQTTSource {
	// No connect-retry on the initial dial: Start must fail fast when the
	// broker is unreachable so the caller can fall back to HTTP-only ingest.
	// Auto-reconnect still recovers an established session that drops.
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttConnectTimeout)

	return &MQTTSource{
		client:   mqtt.NewClient(opts),
		ingestor: ingestor,
		topic:    topic,
	}
}

// Start connects and subscribes. Malformed or rejected payloads are logged
// and dropped; they never stop the subscription.
func (s *MQTTSource) Start() error {
	token := s.client.Connect()
	if !token.WaitTimeout(mqttTokenTimeout) {
		return fmt.Errorf("connecting to mqtt broker: timed out after %s", mqttTokenTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connecting to mqtt broker: %w", err)
	}

	sub := s.client.Subscribe(s.topic, 0, s.handleMessage)
	if !sub.WaitTimeout(mqttTokenTimeout) {
		return fmt.Errorf("subscribing to %s: timed out after %s", s.topic, mqttTokenTimeout)
	}
	if err := sub.Error(); err != nil {
		return fmt.Errorf("subscribing to %s: %w", s.topic, err)
	}
	log.Printf("mqtt: subscribed to %s", s.topic)
	return nil
}

func (s *MQTTSource) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	var req EventRequest
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		log.Printf("mqtt: dropping malformed payload on %s: %v", msg.Topic(), err)
		return
	}
	if _, err := s.ingestor.Record(req); err != nil {
		log.Printf("mqtt: event rejected: %v", err)
	}
}

func (s *MQTTSource) Stop() {
	s.client.Disconnect(250)
}
