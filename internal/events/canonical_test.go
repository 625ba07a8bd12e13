package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

type badEvent struct{}

func (badEvent) EventType() string { return "" }

func TestNewEnvelope(t *testing.T) {
	fixedNow := time.Unix(0, 123456000).UTC()
	prevNow := nowFunc
	nowFunc = func() time.Time { return fixedNow }
	defer func() { nowFunc = prevNow }()

	id := uuid.MustParse("9a20d7d1-bf6a-4d33-bd55-5d25a816f1a8")
	env, err := NewEnvelope("session:abc", "req-1", PaymentSucceededV1{
		SessionID:      "abc",
		ExperienceSlug: "trekking-etna",
		IntentID:       "pi_123",
		Date:           "2025-03-03",
		Participants:   2,
		TotalAmount:    9000,
		OccurredAt:     fixedNow,
	}, WithEventID(id))
	if err != nil {
		t.Fatalf("NewEnvelope failed: %v", err)
	}
	if env.EventID != id {
		t.Fatalf("expected event id override, got %s", env.EventID)
	}
	if !env.OccurredAt.Equal(fixedNow) {
		t.Fatalf("unexpected timestamp: %s", env.OccurredAt)
	}
	if env.SchemaVersion != 1 || env.Source != Source {
		t.Fatalf("unexpected version/source: %d %s", env.SchemaVersion, env.Source)
	}
	if env.EventType != "booking.payment.succeeded.v1" {
		t.Fatalf("unexpected type: %s", env.EventType)
	}
	if env.Aggregate != "session:abc" {
		t.Fatalf("unexpected aggregate: %s", env.Aggregate)
	}

	var decoded PaymentSucceededV1
	if err := env.Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.IntentID != "pi_123" || decoded.TotalAmount != 9000 {
		t.Fatalf("unexpected payload %+v", decoded)
	}
}

func TestNewEnvelopeRejectsInvalidInput(t *testing.T) {
	if _, err := NewEnvelope("  ", "", PaymentFailedV1{}); err == nil {
		t.Fatal("expected missing aggregate error")
	}
	if _, err := NewEnvelope("session:1", "", nil); err == nil {
		t.Fatal("expected nil event error")
	}
	if _, err := NewEnvelope("session:1", "", badEvent{}); err == nil {
		t.Fatal("expected missing event type error")
	}
}

func TestWithTimestamp(t *testing.T) {
	ts := time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)
	env, err := NewEnvelope("session:1", "", IntentCreatedV1{}, WithTimestamp(ts), WithEventID(uuid.Nil))
	if err != nil {
		t.Fatalf("NewEnvelope failed: %v", err)
	}
	if !env.OccurredAt.Equal(ts) {
		t.Fatalf("got %s, want %s", env.OccurredAt, ts)
	}
	if env.EventID == uuid.Nil {
		t.Fatal("nil override must keep generated id")
	}
}

func TestPublisherSendsEnvelope(t *testing.T) {
	queue := NewMemoryQueue(4)
	pub := NewPublisher(queue, nil)

	env, err := pub.Publish(context.Background(), "session:xyz", "req-9", PaymentFailedV1{
		SessionID: "xyz",
		Outcome:   "ambiguous_pending",
		Terminal:  true,
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	msgs := queue.Drain()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	attrs := msgs[0].Attributes
	if attrs["event_type"] != "booking.payment.failed.v1" || attrs["correlation_id"] != "req-9" || attrs["schema_version"] != "1" {
		t.Fatalf("unexpected attributes %v", msgs[0].Attributes)
	}
	var sent Envelope
	if err := json.Unmarshal([]byte(msgs[0].Body), &sent); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if sent.EventID != env.EventID || sent.CorrelationID != "req-9" {
		t.Fatalf("unexpected envelope %+v", sent)
	}
	if len(queue.Drain()) != 0 {
		t.Fatal("drain must empty the queue")
	}
}

func TestSchemaVersion(t *testing.T) {
	tests := map[string]int{
		"booking.intent.created.v1":    1,
		"booking.payment.failed.v12":   12,
		"booking.payment.failed":       1,
		"booking.payment.failed.vnext": 1,
	}
	for eventType, want := range tests {
		if got := schemaVersion(eventType); got != want {
			t.Errorf("schemaVersion(%q) = %d, want %d", eventType, got, want)
		}
	}
}

func TestMemoryQueueHonoursContext(t *testing.T) {
	queue := NewMemoryQueue(1)
	if err := queue.Send(context.Background(), "a", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := queue.Send(ctx, "b", nil); err == nil {
		t.Fatal("expected context error on full queue")
	}
}
