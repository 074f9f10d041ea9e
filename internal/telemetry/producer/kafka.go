// Package producer emits auth telemetry events to Kafka for the worker-side
// Loki relay.
package producer

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"stocktrack/backend/internal/telemetry"
)

const writeTimeout = 5 * time.Second

// KafkaProducer writes telemetry events to one topic, keyed by user id so a
// user's events stay ordered within a partition. Implements
// telemetry.EventEmitter.
type KafkaProducer struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaProducer returns a producer for the given brokers and topic, or nil
// when either is unset so telemetry degrades to a no-op. Call Close at
// shutdown.
func NewKafkaProducer(brokers []string, topic string) (*KafkaProducer, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, nil
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaProducer{writer: w, topic: topic}, nil
}

// Emit serializes the event as JSON and writes it, bounded by writeTimeout so
// a slow broker cannot stall the caller indefinitely.
func (p *KafkaProducer) Emit(ctx context.Context, event *telemetry.Event) error {
	if p == nil || p.writer == nil || event == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(event.UserID),
		Value: payload,
	}); err != nil {
		log.Printf("telemetry: kafka emit failed: %v", err)
		return err
	}
	return nil
}

// Close flushes and closes the writer. Safe on nil and safe to call twice.
func (p *KafkaProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
