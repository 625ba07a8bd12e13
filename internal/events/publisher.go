package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bearound/booking-funnel/pkg/logging"
)

// Publisher serializes canonical events and hands them to a Queue.
type Publisher struct {
	queue  Queue
	logger *logging.Logger
}

func NewPublisher(queue Queue, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("events: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, logger: logger}
}

// Publish wraps evt in an envelope and sends it.
func (p *Publisher) Publish(ctx context.Context, aggregate, correlationID string, evt CanonicalEvent, opts ...EnvelopeOption) (Envelope, error) {
	env, err := NewEnvelope(aggregate, correlationID, evt, opts...)
	if err != nil {
		return Envelope{}, err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal envelope: %w", err)
	}
	if err := p.queue.Send(ctx, string(data), env.Attributes()); err != nil {
		return Envelope{}, err
	}
	p.logger.Debug("event published", "event_type", env.EventType, "event_id", env.EventID.String(), "aggregate", env.Aggregate)
	return env, nil
}
