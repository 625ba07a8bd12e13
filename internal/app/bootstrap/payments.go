package bootstrap

import (
	"errors"
	"strings"

	appconfig "github.com/bearound/booking-funnel/internal/config"
	"github.com/bearound/booking-funnel/internal/payments"
	"github.com/bearound/booking-funnel/pkg/logging"
)

// ErrNoPaymentProcessor is returned when neither Stripe nor fake payments are configured.
var ErrNoPaymentProcessor = errors.New("bootstrap: STRIPE_SECRET_KEY is required unless ALLOW_FAKE_PAYMENTS is set")

// BuildProcessor selects the payment processor. Stripe wins when a key is set.
func BuildProcessor(cfg *appconfig.Config, logger *logging.Logger) (payments.Processor, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if key := strings.TrimSpace(cfg.StripeSecretKey); key != "" {
		return payments.NewStripeProcessor(key, cfg.StripeBaseURL, logger), nil
	}
	if cfg.AllowFakePayments {
		logger.Warn("using fake payment processor; never enable in production", "env", cfg.Env)
		return payments.NewFakeProcessor(logger), nil
	}
	return nil, ErrNoPaymentProcessor
}
