// Package kafka publishes audit events to a Kafka topic as JSON, keyed by
// user so one account's events stay ordered within a partition.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/innerscope/authcore"
)

const defaultWriteTimeout = 5 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config selects brokers and topic.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// Sink is an authcore.AuditSink backed by a kafka.Writer. Publishing errors
// are logged and counted; they never reach the Engine.
type Sink struct {
	writer   messageWriter
	topic    string
	timeout  time.Duration
	logger   *slog.Logger
	failures atomic.Uint64
}

var _ authcore.AuditSink = (*Sink)(nil)

// NewSink returns a Sink writing with acks from all in-sync replicas.
func NewSink(cfg Config) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka audit sink requires at least one broker")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka audit sink requires a topic")
	}
	return newSink(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.Hash{},
	}, cfg), nil
}

func newSink(w messageWriter, cfg Config) *Sink {
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		writer:  w,
		topic:   cfg.Topic,
		timeout: timeout,
		logger:  logger.With("module", "audit_kafka"),
	}
}

func (s *Sink) Emit(ctx context.Context, event authcore.AuditEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.fail(ctx, event, err)
		return
	}

	key := event.UserID
	if key == "" {
		key = event.ID
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err = s.writer.WriteMessages(writeCtx, kafka.Message{
		Topic: s.topic,
		Key:   []byte(key),
		Value: payload,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	})
	if err != nil {
		s.fail(ctx, event, err)
	}
}

func (s *Sink) fail(ctx context.Context, event authcore.AuditEvent, err error) {
	s.failures.Add(1)
	s.logger.WarnContext(ctx, "audit publish failed",
		"operation", "publish",
		"outcome", "failure",
		"event_type", event.EventType,
		"error", err,
	)
}

// Failures reports events that could not be published.
func (s *Sink) Failures() uint64 {
	return s.failures.Load()
}

// Close flushes and closes the writer. Close the Engine first so the
// dispatcher has drained.
func (s *Sink) Close() error {
	return s.writer.Close()
}
