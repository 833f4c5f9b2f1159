package kafka

import (
	"context"

	"github.com/turtacn/BOMMesh/internal/domain/matching"
	"github.com/turtacn/BOMMesh/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BOMMesh/pkg/errors"
)

type eventPublisher struct {
	producer *Producer
	logger   logging.Logger
}

// NewEventPublisher adapts a Producer to matching.EventPublisher. Events are
// keyed by run id so all events of a run land on one partition.
func NewEventPublisher(p *Producer, logger logging.Logger) matching.EventPublisher {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &eventPublisher{producer: p, logger: logger}
}

func (e *eventPublisher) Publish(ctx context.Context, event *matching.MatchingCompletedEvent) error {
	if event == nil {
		return errors.InvalidParam("event is required")
	}
	env, err := NewEventEnvelope(event.EventID(), event.EventType(), event.OccurredAt(), event)
	if err != nil {
		return err
	}
	msg, err := env.ToMessage(event.RunID)
	if err != nil {
		return err
	}
	if err := e.producer.Publish(ctx, msg); err != nil {
		return err
	}
	e.logger.Info("Matching event published",
		logging.RunID(event.RunID),
		logging.String("topic", e.producer.Topic()),
		logging.String("event_id", env.EventID))
	return nil
}
