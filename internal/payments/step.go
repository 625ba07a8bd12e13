package payments

import (
	"context"
	"strings"
	"sync"

	"github.com/bearound/booking-funnel/internal/booking"
	"github.com/bearound/booking-funnel/internal/observability/metrics"
	"github.com/bearound/booking-funnel/pkg/logging"
)

// GenericFailureMessage is reported when the processor settles without success or a reason.
const GenericFailureMessage = "payment was not completed"

// Step runs one confirmation at a time per client secret.
type Step struct {
	processor Processor
	metrics   *metrics.FunnelMetrics
	logger    *logging.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewStep(processor Processor, m *metrics.FunnelMetrics, logger *logging.Logger) *Step {
	if processor == nil {
		panic("payments: processor cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Step{
		processor: processor,
		metrics:   m,
		logger:    logger,
		inFlight:  make(map[string]struct{}),
	}
}

// Confirm submits input against intent. It returns the result with a nil error on success,
// a *PaymentError for recoverable or ambiguous outcomes, and the transport error otherwise.
func (s *Step) Confirm(ctx context.Context, intent *booking.Intent, input MethodInput) (Result, error) {
	if intent == nil || strings.TrimSpace(intent.ClientSecret) == "" {
		return Result{}, ErrMissingClientSecret
	}
	if strings.TrimSpace(input.PaymentMethod) == "" {
		return Result{}, ErrMissingPaymentMethod
	}
	secret := intent.ClientSecret
	if !s.acquire(secret) {
		return Result{}, ErrConfirmationInFlight
	}
	defer s.release(secret)

	res, err := s.processor.ConfirmPayment(ctx, secret, input)
	if err != nil {
		s.metrics.ObserveConfirmation("transport_error")
		s.logger.Warn("payment confirmation failed to reach processor", "error", err)
		return Result{}, err
	}
	s.metrics.ObserveConfirmation(string(res.Outcome))

	switch res.Outcome {
	case OutcomeSucceeded:
		s.logger.Info("payment confirmed", "intent_id", res.IntentID, "amount", intent.TotalAmount)
		return res, nil
	case OutcomeRecoverableError:
		msg := res.Message
		if strings.TrimSpace(msg) == "" {
			msg = GenericFailureMessage
		}
		s.logger.Info("payment declined", "intent_id", res.IntentID, "code", res.Code, "message", msg)
		return res, &PaymentError{Outcome: OutcomeRecoverableError, Message: msg, Code: res.Code}
	default:
		s.logger.Warn("payment settled in ambiguous state", "intent_id", res.IntentID, "status", res.Status)
		res.Outcome = OutcomeAmbiguousPending
		return res, &PaymentError{Outcome: OutcomeAmbiguousPending, Message: GenericFailureMessage}
	}
}

func (s *Step) acquire(secret string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[secret]; busy {
		return false
	}
	s.inFlight[secret] = struct{}{}
	return true
}

func (s *Step) release(secret string) {
	s.mu.Lock()
	delete(s.inFlight, secret)
	s.mu.Unlock()
}

// IntentID extracts the payment intent id from a client secret of the form <id>_secret_<token>.
func IntentID(clientSecret string) (string, error) {
	id, _, ok := strings.Cut(clientSecret, "_secret_")
	if !ok || id == "" {
		return "", ErrMalformedSecret
	}
	return id, nil
}
