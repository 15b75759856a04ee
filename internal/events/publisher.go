// README: Ride event publisher; Kafka when brokers are configured, no-op otherwise.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ridecore/internal/modules/ride"
	"ridecore/internal/observability"
)

const writeTimeout = 2 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher keys messages by ride id so one ride's events stay ordered.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(w *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

type envelope struct {
	Type  string     `json:"type"`
	Event ride.Event `json:"event"`
}

func (p *KafkaPublisher) Publish(ctx context.Context, e ride.Event) error {
	b, err := json.Marshal(envelope{Type: eventType(e), Event: e})
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(e.RideID), Value: b}); err != nil {
		observability.EventsPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("events: write: %w", err)
	}
	observability.EventsPublished.WithLabelValues("ok").Inc()
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// eventType names the event for consumers: "ride.<to>" for status moves,
// "ride.<metadata type>" otherwise.
func eventType(e ride.Event) string {
	if e.FromStatus == e.ToStatus {
		if t, ok := e.Metadata["type"].(string); ok && t != "" {
			return "ride." + t
		}
	}
	return "ride." + string(e.ToStatus)
}

type Noop struct{}

func (Noop) Publish(context.Context, ride.Event) error { return nil }
func (Noop) Close() error                             { return nil }
