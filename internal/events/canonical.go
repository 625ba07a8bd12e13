package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Source identifies this service on every envelope.
const Source = "booking-funnel"

// CanonicalEvent is a funnel outcome event. EventType ends with the schema
// version, e.g. "booking.payment.succeeded.v1".
type CanonicalEvent interface {
	EventType() string
}

// Envelope is what downstream consumers receive for each funnel event.
type Envelope struct {
	EventID       uuid.UUID       `json:"event_id"`
	EventType     string          `json:"event_type"`
	SchemaVersion int             `json:"schema_version"`
	Source        string          `json:"source"`
	Aggregate     string          `json:"aggregate"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EnvelopeOption adjusts a new envelope.
type EnvelopeOption func(*Envelope)

// WithEventID replaces the generated event id. uuid.Nil is ignored.
func WithEventID(id uuid.UUID) EnvelopeOption {
	return func(e *Envelope) {
		if id != uuid.Nil {
			e.EventID = id
		}
	}
}

// WithTimestamp replaces the envelope time. The zero time is ignored.
func WithTimestamp(ts time.Time) EnvelopeOption {
	return func(e *Envelope) {
		if !ts.IsZero() {
			e.OccurredAt = ts.UTC()
		}
	}
}

var (
	errMissingAggregate = errors.New("events: aggregate is required")
	errNilEvent         = errors.New("events: event is required")
	errMissingType      = errors.New("events: event type is required")
	nowFunc             = time.Now
)

// NewEnvelope wraps evt for aggregate, e.g. "session:<id>".
func NewEnvelope(aggregate, correlationID string, evt CanonicalEvent, opts ...EnvelopeOption) (Envelope, error) {
	aggregate = strings.TrimSpace(aggregate)
	switch {
	case aggregate == "":
		return Envelope{}, errMissingAggregate
	case evt == nil:
		return Envelope{}, errNilEvent
	}
	eventType := strings.TrimSpace(evt.EventType())
	if eventType == "" {
		return Envelope{}, errMissingType
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal %s: %w", eventType, err)
	}

	env := Envelope{
		EventID:       uuid.New(),
		EventType:     eventType,
		SchemaVersion: schemaVersion(eventType),
		Source:        Source,
		Aggregate:     aggregate,
		OccurredAt:    nowFunc().UTC(),
		CorrelationID: strings.TrimSpace(correlationID),
		Payload:       payload,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&env)
		}
	}
	return env, nil
}

// Attributes are the routing keys sent alongside the body so consumers can
// filter without decoding it.
func (e Envelope) Attributes() map[string]string {
	attrs := map[string]string{
		"event_type":     e.EventType,
		"schema_version": strconv.Itoa(e.SchemaVersion),
		"source":         e.Source,
	}
	if e.CorrelationID != "" {
		attrs["correlation_id"] = e.CorrelationID
	}
	return attrs
}

// Decode unmarshals the payload into out.
func (e Envelope) Decode(out any) error {
	if err := json.Unmarshal(e.Payload, out); err != nil {
		return fmt.Errorf("events: decode %s: %w", e.EventType, err)
	}
	return nil
}

// schemaVersion reads the trailing ".vN" of an event type; 1 when absent.
func schemaVersion(eventType string) int {
	i := strings.LastIndex(eventType, ".v")
	if i < 0 {
		return 1
	}
	n, err := strconv.Atoi(eventType[i+2:])
	if err != nil || n < 1 {
		return 1
	}
	return n
}
