// internal/ingest/kafka.go
package ingest

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"smart-parking-core/internal/parking"
)

// KafkaSink mirrors recorded events to a Kafka topic for downstream
// consumers. Messages are keyed by zone code so per-zone ordering survives
// partitioning.
type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
	}
}

func (s *KafkaSink) Publish(ctx context.Context, ev parking.ParkingEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.ZoneCode),
		Value: payload,
	})
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
