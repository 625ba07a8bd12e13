package availability

import (
	"context"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/bearound/booking-funnel/internal/observability/metrics"
	"github.com/bearound/booking-funnel/pkg/logging"
)

const defaultConcurrency = 8

// Window is one per-day availability query.
type Window struct {
	ExperienceRef string
	Day           civil.Date
	From          time.Time
	To            time.Time
	Location      *time.Location
}

// Checker answers a single availability query.
type Checker interface {
	IsAvailable(ctx context.Context, w Window) (bool, error)
}

// ProberConfig bounds the per-day fan-out.
type ProberConfig struct {
	Concurrency   int
	RatePerSecond float64
}

// Prober resolves the bookable days of a month with one query per day.
type Prober struct {
	checker     Checker
	concurrency int
	limiter     *rate.Limiter
	metrics     *metrics.FunnelMetrics
	logger      *logging.Logger
}

func NewProber(checker Checker, cfg ProberConfig, m *metrics.FunnelMetrics, logger *logging.Logger) *Prober {
	if checker == nil {
		panic("availability: checker cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := int(cfg.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return &Prober{
		checker:     checker,
		concurrency: concurrency,
		limiter:     limiter,
		metrics:     m,
		logger:      logger,
	}
}

// ProbeMonth queries every day of month and returns the complete bookable set.
// A failed day query leaves that day out; a cancelled ctx yields ErrProbeAborted.
func (p *Prober) ProbeMonth(ctx context.Context, experienceRef string, month Month, loc *time.Location) (BookableSet, error) {
	if strings.TrimSpace(experienceRef) == "" {
		return BookableSet{}, ErrMissingExperience
	}
	if loc == nil {
		loc = time.UTC
	}
	start := time.Now()

	days := month.Days()
	results := make([]bool, days)

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i := 0; i < days; i++ {
		i := i
		day := month.Date(i + 1)
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if p.limiter != nil {
				if err := p.limiter.Wait(ctx); err != nil {
					return nil
				}
			}
			from, to := DayWindow(day, loc)
			ok, err := p.checker.IsAvailable(ctx, Window{
				ExperienceRef: experienceRef,
				Day:           day,
				From:          from,
				To:            to,
				Location:      loc,
			})
			if err != nil {
				if ctx.Err() == nil {
					p.metrics.ObserveProbeDay("error")
					p.logger.Warn("availability query failed; treating day as unavailable",
						"experience", experienceRef, "day", day.String(), "error", err)
				}
				return nil
			}
			if ok {
				p.metrics.ObserveProbeDay("bookable")
			} else {
				p.metrics.ObserveProbeDay("unavailable")
			}
			results[i] = ok
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		p.metrics.ObserveProbe("aborted", time.Since(start).Seconds())
		p.logger.Debug("availability probe aborted", "experience", experienceRef, "month", month.String(), "error", err)
		return BookableSet{}, ErrProbeAborted
	}

	bookable := make([]int, 0, days)
	for i, ok := range results {
		if ok {
			bookable = append(bookable, i+1)
		}
	}
	p.metrics.ObserveProbe("complete", time.Since(start).Seconds())
	p.logger.Debug("availability probe complete",
		"experience", experienceRef, "month", month.String(), "bookable_days", len(bookable))
	return NewBookableSet(month, bookable...), nil
}
