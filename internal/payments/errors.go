package payments

import (
	"errors"
	"fmt"
)

var (
	ErrMissingClientSecret  = errors.New("payments: client secret is required")
	ErrMissingPaymentMethod = errors.New("payments: payment method is required")
	ErrConfirmationInFlight = errors.New("payments: a confirmation is already in flight for this intent")
	ErrMalformedSecret      = errors.New("payments: malformed client secret")
)

// PaymentError is a processor-reported failure or an outcome that cannot be treated as success.
type PaymentError struct {
	Outcome Outcome
	Message string
	Code    string
}

func (e *PaymentError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payments: %s (%s): %s", e.Outcome, e.Code, e.Message)
	}
	return fmt.Sprintf("payments: %s: %s", e.Outcome, e.Message)
}

// Ambiguous reports whether the processor settled in a state that is neither success nor an explicit error.
func (e *PaymentError) Ambiguous() bool { return e.Outcome == OutcomeAmbiguousPending }
