package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bearound/booking-funnel/pkg/logging"
)

var stripeTracer = otel.Tracer("bearound.internal.payments.stripe")

// StripeProcessor confirms PaymentIntents through the Stripe API.
type StripeProcessor struct {
	intents paymentintent.Client
	logger  *logging.Logger
}

// NewStripeProcessor builds a processor for secretKey. baseURL overrides the API host (tests, proxies).
func NewStripeProcessor(secretKey, baseURL string, logger *logging.Logger) *StripeProcessor {
	if logger == nil {
		logger = logging.Default()
	}
	cfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	}
	if strings.TrimSpace(baseURL) != "" {
		cfg.URL = stripe.String(strings.TrimRight(baseURL, "/"))
	}
	return &StripeProcessor{
		intents: paymentintent.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, cfg),
			Key: secretKey,
		},
		logger: logger,
	}
}

// ConfirmPayment satisfies Processor.
func (p *StripeProcessor) ConfirmPayment(ctx context.Context, clientSecret string, input MethodInput) (Result, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.confirm_payment_intent")
	defer span.End()

	id, err := IntentID(clientSecret)
	if err != nil {
		return Result{}, err
	}
	span.SetAttributes(attribute.String("stripe.payment_intent", id))

	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(input.PaymentMethod),
	}
	if input.ReturnURL != "" {
		params.ReturnURL = stripe.String(input.ReturnURL)
	}
	params.Context = ctx

	pi, err := p.intents.Confirm(id, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			span.SetAttributes(
				attribute.String("stripe.error_type", string(stripeErr.Type)),
				attribute.String("stripe.error_code", string(stripeErr.Code)),
			)
		}
		// only card errors carry a message meant for the customer
		if stripeErr != nil && stripeErr.Type == stripe.ErrorTypeCard {
			return Result{
				Outcome:  OutcomeRecoverableError,
				IntentID: id,
				Message:  stripeErr.Msg,
				Code:     string(stripeErr.Code),
			}, nil
		}
		span.RecordError(err)
		return Result{}, fmt.Errorf("payments: stripe confirm: %w", err)
	}

	res := Result{IntentID: pi.ID, Status: string(pi.Status)}
	span.SetAttributes(attribute.String("stripe.status", res.Status))
	switch {
	case pi.Status == stripe.PaymentIntentStatusSucceeded:
		res.Outcome = OutcomeSucceeded
	case pi.Status == stripe.PaymentIntentStatusRequiresPaymentMethod && pi.LastPaymentError != nil:
		res.Outcome = OutcomeRecoverableError
		res.Message = pi.LastPaymentError.Msg
		res.Code = string(pi.LastPaymentError.Code)
	default:
		res.Outcome = OutcomeAmbiguousPending
	}
	return res, nil
}
