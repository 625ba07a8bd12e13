package events

import "time"

// IntentCreatedV1 is emitted when a payment intent is bound to a draft.
type IntentCreatedV1 struct {
	SessionID      string    `json:"session_id"`
	ExperienceSlug string    `json:"experience_slug"`
	Date           string    `json:"date"`
	Participants   int       `json:"participants"`
	NeedsTransport bool      `json:"needs_transport"`
	StructureSlug  string    `json:"structure_slug,omitempty"`
	TotalAmount    int64     `json:"total_amount"`
	DraftVersion   uint64    `json:"draft_version"`
	CreatedAt      time.Time `json:"created_at"`
}

func (IntentCreatedV1) EventType() string { return "booking.intent.created.v1" }

// PaymentSucceededV1 is emitted when the funnel reaches the succeeded stage.
type PaymentSucceededV1 struct {
	SessionID      string    `json:"session_id"`
	ExperienceSlug string    `json:"experience_slug"`
	IntentID       string    `json:"intent_id,omitempty"`
	Date           string    `json:"date"`
	Participants   int       `json:"participants"`
	TotalAmount    int64     `json:"total_amount"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func (PaymentSucceededV1) EventType() string { return "booking.payment.succeeded.v1" }

// PaymentFailedV1 is emitted on every failed confirmation, terminal or not.
type PaymentFailedV1 struct {
	SessionID      string    `json:"session_id"`
	ExperienceSlug string    `json:"experience_slug"`
	IntentID       string    `json:"intent_id,omitempty"`
	Outcome        string    `json:"outcome"`
	Code           string    `json:"code,omitempty"`
	Terminal       bool      `json:"terminal"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func (PaymentFailedV1) EventType() string { return "booking.payment.failed.v1" }
