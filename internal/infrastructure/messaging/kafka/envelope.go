package kafka

import (
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/BOMMesh/pkg/errors"
)

const (
	SourceService = "bommesh"
	SchemaVersion = "v1"
)

// Header keys set on every envelope message.
const (
	HeaderEventType     = "event_type"
	HeaderSource        = "source_service"
	HeaderSchemaVersion = "schema_version"
)

// EventEnvelope is the wire form of every event.
type EventEnvelope struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	SchemaVersion string            `json:"schema_version"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewEventEnvelope marshals payload into a v1 envelope.
func NewEventEnvelope(eventID, eventType string, at time.Time, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal payload")
	}
	return &EventEnvelope{
		EventID:       eventID,
		EventType:     eventType,
		Source:        SourceService,
		Timestamp:     at.UTC(),
		SchemaVersion: SchemaVersion,
		Payload:       data,
	}, nil
}

// DecodePayload unmarshals the payload into target. An empty payload is not
// an error.
func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode payload")
	}
	return nil
}

// ToMessage encodes the envelope keyed by key.
func (e *EventEnvelope) ToMessage(key string) (kafka.Message, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal envelope")
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: val,
		Time:  e.Timestamp,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(e.EventType)},
			{Key: HeaderSource, Value: []byte(e.Source)},
			{Key: HeaderSchemaVersion, Value: []byte(e.SchemaVersion)},
		},
	}, nil
}

// ParseEnvelope decodes a message value.
func ParseEnvelope(m kafka.Message) (*EventEnvelope, error) {
	var env EventEnvelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "invalid event envelope")
	}
	if env.EventType == "" {
		return nil, errors.New(errors.ErrCodeSerialization, "envelope without event_type")
	}
	return &env, nil
}
