package bootstrap

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/bearound/booking-funnel/internal/availability"
	"github.com/bearound/booking-funnel/internal/bearound"
	"github.com/bearound/booking-funnel/internal/booking"
	"github.com/bearound/booking-funnel/internal/calendar"
	"github.com/bearound/booking-funnel/internal/catalog"
	appconfig "github.com/bearound/booking-funnel/internal/config"
	"github.com/bearound/booking-funnel/internal/funnel"
	"github.com/bearound/booking-funnel/internal/observability/metrics"
	"github.com/bearound/booking-funnel/internal/payments"
	"github.com/bearound/booking-funnel/pkg/logging"
)

// FunnelDeps are the runtime resources the funnel is wired onto.
type FunnelDeps struct {
	Redis      *redis.Client
	Processor  payments.Processor
	Events     funnel.EventPublisher
	Registerer prometheus.Registerer
}

// Funnel bundles the wired booking funnel.
type Funnel struct {
	Controller *funnel.Controller
	Catalog    *catalog.Service
	Metrics    *metrics.FunnelMetrics
}

// BuildFunnel wires the marketplace client, availability prober, intent builder,
// payment step and catalog into a funnel controller.
func BuildFunnel(cfg *appconfig.Config, deps FunnelDeps, logger *logging.Logger) (*Funnel, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if deps.Processor == nil {
		return nil, ErrNoPaymentProcessor
	}
	if logger == nil {
		logger = logging.Default()
	}

	m := metrics.NewFunnelMetrics(deps.Registerer)

	client := bearound.NewClient(cfg.MarketplaceBaseURL, logger).
		WithPaymentBaseURL(cfg.PaymentAPIBaseURL).
		WithTimeout(cfg.HTTPClientTimeout)
	marketplace := bearound.NewAdapter(client)

	prober := availability.NewProber(marketplace, availability.ProberConfig{
		Concurrency:   cfg.ProbeConcurrency,
		RatePerSecond: cfg.ProbeRatePerSecond,
	}, m, logger)
	gate := calendar.NewGate(prober, m, logger)
	builder := booking.NewBuilder(marketplace, m, logger)
	step := payments.NewStep(deps.Processor, m, logger)

	catalogService := catalog.NewService(marketplace, deps.Redis, catalog.Config{
		SiteURL:  cfg.PublicSiteURL,
		CacheTTL: cfg.StructuresCacheTTL,
	}, logger)

	ctrl := funnel.NewController(BuildSessionStore(deps.Redis, cfg, logger), gate, builder, step, funnel.Config{
		DefaultTimezone: cfg.DefaultTimezone,
		ProbeTimeout:    cfg.ProbeTimeout,
		ReturnBaseURL:   returnBase(cfg),
		InFlightTimeout: cfg.InFlightTimeout,
	}, logger).
		WithStructures(catalogService).
		WithMetrics(m)
	if deps.Events != nil {
		ctrl.WithEvents(deps.Events)
	}

	return &Funnel{Controller: ctrl, Catalog: catalogService, Metrics: m}, nil
}

func returnBase(cfg *appconfig.Config) string {
	if cfg.ReturnBaseURL != "" {
		return cfg.ReturnBaseURL
	}
	return cfg.PublicSiteURL
}
