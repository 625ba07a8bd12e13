// Package booking builds the booking draft and turns it into a payment intent
// through the marketplace payment API.
package booking

import (
	"context"
	"time"
)

// IntentRequest is the serialized draft sent to the payment API.
type IntentRequest struct {
	ExperienceSlug string
	// StructureSlug is empty unless NeedsTransport is set.
	StructureSlug  string
	Participants   int
	Date           time.Time
	NeedsTransport bool
}

// IntentResponse carries what the payment API returns for one request.
type IntentResponse struct {
	ClientSecret string
	TotalAmount  int64
}

// IntentCreator is implemented by payment API clients.
// Each call may create a new, independent intent upstream.
type IntentCreator interface {
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (IntentResponse, error)
}
