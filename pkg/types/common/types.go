// Package common holds types shared across domain packages.
package common

import (
	"time"

	"github.com/google/uuid"
)

// EventSource is stamped on every event this service emits.
const EventSource = "bommesh"

// DomainEvent is implemented by everything the event sink can publish.
type DomainEvent interface {
	EventID() string
	EventType() string
	OccurredAt() time.Time
	AggregateID() string
}

// BaseEvent carries the envelope identity of a domain event. Embedders
// add EventType and their payload fields.
type BaseEvent struct {
	ID        string    `json:"event_id"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"occurred_at"`
	AggID     string    `json:"aggregate_id"`
}

// NewBaseEvent stamps a time-ordered (v7) event ID for aggID.
func NewBaseEvent(aggID string) BaseEvent {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return BaseEvent{ID: id.String(), Source: EventSource, Timestamp: time.Now().UTC(), AggID: aggID}
}

func (e BaseEvent) EventID() string       { return e.ID }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseEvent) AggregateID() string   { return e.AggID }
