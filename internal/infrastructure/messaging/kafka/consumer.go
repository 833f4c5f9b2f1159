package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/BOMMesh/internal/config"
	"github.com/turtacn/BOMMesh/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BOMMesh/pkg/errors"
)

// ReaderInterface abstracts kafka.Reader for testing.
type ReaderInterface interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler processes one decoded envelope.
type Handler func(ctx context.Context, env *EventEnvelope) error

// Consumer reads envelopes from the event topic in a consumer group.
type Consumer struct {
	reader       ReaderInterface
	logger       logging.Logger
	errorBackoff time.Duration
}

// NewConsumer joins cfg.ConsumerGroup on cfg.Topic.
func NewConsumer(cfg config.KafkaConfig, logger logging.Logger) (*Consumer, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.ConsumerGroup == "" {
		return nil, errors.New(errors.ErrCodeValidation, "kafka consumer group required")
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.ConsumerGroup,
		Topic:       cfg.Topic,
		MinBytes:    1,
		MaxBytes:    10 << 20,
		MaxWait:     time.Second,
		StartOffset: kafka.LastOffset,
		Dialer:      &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true},
	})
	return NewConsumerWithReader(r, logger), nil
}

// NewConsumerWithReader wraps an existing reader.
func NewConsumerWithReader(r ReaderInterface, logger logging.Logger) *Consumer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Consumer{reader: r, logger: logger, errorBackoff: time.Second}
}

// Run fetches until ctx is done and returns nil on cancellation.
// Undecodable messages are committed and skipped. A handler error is
// logged and the message still committed; delivery is at most once.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("FetchMessage error", logging.Err(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.errorBackoff):
			}
			continue
		}

		env, err := ParseEnvelope(m)
		if err != nil {
			c.logger.Warn("Skipping undecodable message",
				logging.Int64("offset", m.Offset),
				logging.Int("partition", m.Partition),
				logging.Err(err))
		} else if err := handle(ctx, env); err != nil {
			c.logger.Error("Event handler failed",
				logging.String("event_id", env.EventID),
				logging.Err(err))
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.Error("CommitMessages failed", logging.Err(err))
		}
	}
}

// Close closes the reader.
func (c *Consumer) Close() error { return c.reader.Close() }
