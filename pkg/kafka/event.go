package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is written to every event's version field.
const EnvelopeVersion = 1

// ErrInvalidEnvelope is returned for messages that decode but lack an event
// ID or type.
var ErrInvalidEnvelope = errors.New("invalid event envelope")

// Event is the envelope for every message published by the service.
type Event struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	AggregateID   string            `json:"aggregate_id"`
	AggregateType string            `json:"aggregate_type"`
	Version       int               `json:"version"`
	Timestamp     time.Time         `json:"timestamp"`
	Source        string            `json:"source"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Data          json.RawMessage   `json:"data"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewEvent creates an envelope with a fresh ID. A zero occurredAt is replaced
// by the current time.
func NewEvent(eventType, aggregateID, aggregateType, source string, occurredAt time.Time, data any) (*Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	return &Event{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       EnvelopeVersion,
		Timestamp:     occurredAt.UTC(),
		Source:        source,
		Data:          payload,
	}, nil
}

// WithCorrelationID sets the correlation ID.
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

// WithMetadata adds one metadata entry.
func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// Marshal encodes the envelope.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEvent decodes an envelope and checks that it carries an event ID
// and type. Envelopes newer than EnvelopeVersion are rejected; a missing
// version is read as version 1.
func UnmarshalEvent(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	switch {
	case event.EventID == "" || event.EventType == "":
		return nil, fmt.Errorf("%w: event_id and event_type are required", ErrInvalidEnvelope)
	case event.Version > EnvelopeVersion:
		return nil, fmt.Errorf("%w: version %d is newer than %d", ErrInvalidEnvelope, event.Version, EnvelopeVersion)
	case event.Version <= 0:
		event.Version = EnvelopeVersion
	}
	return &event, nil
}

// UnmarshalData decodes the payload into target.
func (e *Event) UnmarshalData(target any) error {
	if err := json.Unmarshal(e.Data, target); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.EventType, err)
	}
	return nil
}

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "ecommerce"

// Topic builds "<prefix>.<eventType>", e.g. "ecommerce.order.created".
func Topic(prefix, eventType string) string {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return prefix + "." + eventType
}
