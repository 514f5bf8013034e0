// Package events publishes domain events (alert detected, license issued,
// license paid) for downstream consumers. Publication is best-effort: the
// database is the source of truth and callers only log publish failures.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	AlertDetected = "alert.detected"
	LicenseIssued = "license.issued"
	LicensePaid   = "license.paid"
)

type Event struct {
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

type Publisher interface {
	Publish(ctx context.Context, evts ...Event) error
	Close() error
}

// New returns a Kafka publisher, or a no-op one when no brokers are set.
func New(brokers []string, topic string, logger *zap.Logger) Publisher {
	if len(brokers) == 0 {
		return Noop{}
	}
	return &KafkaPublisher{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			BatchTimeout:           50 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
		logger: logger.Named("events"),
	}
}

type KafkaPublisher struct {
	w      messageWriter
	logger *zap.Logger
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ Publisher = (*KafkaPublisher)(nil)

func (p *KafkaPublisher) Publish(ctx context.Context, evts ...Event) error {
	if len(evts) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(evts))
	for _, e := range evts {
		if e.OccurredAt.IsZero() {
			e.OccurredAt = time.Now().UTC()
		}
		body, err := json.Marshal(e)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(e.Key),
			Value:   body,
			Headers: []kafka.Header{{Key: "event-type", Value: []byte(e.Type)}},
		})
	}
	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Warn("Failed to publish events", zap.Int("count", len(msgs)), zap.Error(err))
		return err
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }

type Noop struct{}

func (Noop) Publish(context.Context, ...Event) error { return nil }
func (Noop) Close() error                            { return nil }
