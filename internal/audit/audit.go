// Package audit emits an append-only stream of trading events for offline
// review. Publishing is best-effort: audit failures are logged and swallowed
// so they can never stall or break the signal path.
package audit

import (
	"context"
	"time"

	"ScalpPulse/internal/domain/repository"
	"ScalpPulse/pkg/kafka"
	"ScalpPulse/pkg/logger"
)

// Record is one audit stream entry.
type Record struct {
	Kind      string      `json:"kind"`
	UserID    string      `json:"user_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// KafkaSink publishes audit records keyed by user, so one user's history
// stays ordered within a partition.
type KafkaSink struct {
	producer *kafka.Producer
	topic    string
	log      *logger.Logger
}

func NewKafkaSink(producer *kafka.Producer, topic string, log *logger.Logger) *KafkaSink {
	if topic == "" {
		topic = "trading.audit"
	}
	return &KafkaSink{producer: producer, topic: topic, log: log}
}

func (s *KafkaSink) Record(ctx context.Context, kind, userID string, payload interface{}) error {
	rec := Record{
		Kind:      kind,
		UserID:    userID,
		Timestamp: time.Now(),
		Payload:   payload,
	}
	if err := s.producer.Publish(ctx, s.topic, []byte(userID), rec); err != nil {
		s.log.Warn("audit publish failed",
			logger.String("kind", kind),
			logger.String("user_id", userID),
			logger.Error(err))
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.producer.Close()
}

// NopSink discards records. Used when the audit stream is not configured.
type NopSink struct{}

func (NopSink) Record(ctx context.Context, kind, userID string, payload interface{}) error {
	return nil
}

func (NopSink) Close() error { return nil }

var (
	_ repository.AuditSink = (*KafkaSink)(nil)
	_ repository.AuditSink = NopSink{}
)
