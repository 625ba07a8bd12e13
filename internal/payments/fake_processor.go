package payments

import (
	"context"

	"github.com/bearound/booking-funnel/pkg/logging"
)

// Test payment methods understood by FakeProcessor.
const (
	FakeMethodDeclined               = "pm_card_chargeDeclined"
	FakeMethodAuthenticationRequired = "pm_card_authenticationRequired"
)

// FakeProcessor is a dev/demo processor that settles payments locally.
//
// This MUST be gated by configuration (ALLOW_FAKE_PAYMENTS) and never enabled in production.
type FakeProcessor struct {
	logger *logging.Logger
}

func NewFakeProcessor(logger *logging.Logger) *FakeProcessor {
	if logger == nil {
		logger = logging.Default()
	}
	return &FakeProcessor{logger: logger}
}

func (p *FakeProcessor) ConfirmPayment(ctx context.Context, clientSecret string, input MethodInput) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	id, err := IntentID(clientSecret)
	if err != nil {
		id = "fake"
	}
	p.logger.Info("fake payment confirmation", "intent_id", id, "payment_method", input.PaymentMethod)
	switch input.PaymentMethod {
	case FakeMethodDeclined:
		return Result{Outcome: OutcomeRecoverableError, IntentID: id, Status: "requires_payment_method", Message: "Your card was declined.", Code: "card_declined"}, nil
	case FakeMethodAuthenticationRequired:
		return Result{Outcome: OutcomeAmbiguousPending, IntentID: id, Status: "requires_action"}, nil
	default:
		return Result{Outcome: OutcomeSucceeded, IntentID: id, Status: "succeeded"}, nil
	}
}
