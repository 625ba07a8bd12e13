package bearound

import (
	"fmt"
	"time"
)

// Structure is an entry of the structures picklist.
type Structure struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// Experience is one row of the experience search results.
type Experience struct {
	Slug  string  `json:"slug"`
	Name  string  `json:"name"`
	Cover string  `json:"cover"`
	Price float64 `json:"price"`
	Type  string  `json:"type"`
}

// AvailabilityQuery asks whether an experience can be booked inside [From, To].
// From and To are sent as wall-clock times in Zone.
type AvailabilityQuery struct {
	ExperienceSlug string
	From           time.Time
	To             time.Time
	Zone           *time.Location
}

// PaymentIntentForm is the form body of create-payment-intent.
type PaymentIntentForm struct {
	ExperienceSlug       string
	StructureSlug        string
	NumberOfParticipants int
	Date                 time.Time
	NeedsTransport       bool
}

// PaymentIntent is the marketplace response to create-payment-intent.
type PaymentIntent struct {
	ClientSecret string `json:"clientSecret"`
	TotalAmount  int64  `json:"totalAmount"`
}

// StatusError reports a non-2xx marketplace response.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("bearound: %s returned %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("bearound: %s returned %d: %s", e.Op, e.StatusCode, e.Body)
}
