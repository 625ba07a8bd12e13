package payments

import "context"

// Outcome is the processor's verdict on one confirmation.
type Outcome string

const (
	OutcomeSucceeded        Outcome = "succeeded"
	OutcomeRecoverableError Outcome = "recoverable_error"
	OutcomeAmbiguousPending Outcome = "ambiguous_pending"
)

// MethodInput is the payment method collected by the processor's hosted element.
type MethodInput struct {
	PaymentMethod string `json:"paymentMethod"`
	ReturnURL     string `json:"returnUrl,omitempty"`
}

// Result describes a settled confirmation.
type Result struct {
	Outcome  Outcome `json:"outcome"`
	IntentID string  `json:"intentId,omitempty"`
	// Status is the raw processor status, kept for logs.
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// Processor confirms a payment intent identified by its client secret.
// A non-nil error means the processor could not be reached; business failures are
// reported through Result.Outcome.
type Processor interface {
	ConfirmPayment(ctx context.Context, clientSecret string, input MethodInput) (Result, error)
}
