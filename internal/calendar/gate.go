package calendar

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/civil"

	"github.com/bearound/booking-funnel/internal/availability"
	"github.com/bearound/booking-funnel/internal/observability/metrics"
	"github.com/bearound/booking-funnel/pkg/logging"
)

// Prober resolves the bookable days of a month.
type Prober interface {
	ProbeMonth(ctx context.Context, experienceRef string, month availability.Month, loc *time.Location) (availability.BookableSet, error)
}

// Day is one cell of the date picker.
type Day struct {
	Date       civil.Date `json:"date"`
	Past       bool       `json:"past"`
	Bookable   bool       `json:"bookable"`
	Selectable bool       `json:"selectable"`
}

// Gate decides which days of a view the user may pick.
type Gate struct {
	prober  Prober
	now     func() time.Time
	metrics *metrics.FunnelMetrics
	logger  *logging.Logger
}

func NewGate(prober Prober, m *metrics.FunnelMetrics, logger *logging.Logger) *Gate {
	if logger == nil {
		logger = logging.Default()
	}
	return &Gate{prober: prober, now: time.Now, metrics: m, logger: logger}
}

// WithClock overrides the clock used to decide which days are in the past.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	if now != nil {
		g.now = now
	}
	return g
}

// Today returns the current date in loc.
func (g *Gate) Today(loc *time.Location) civil.Date {
	if loc == nil {
		loc = time.UTC
	}
	return civil.DateOf(g.now().In(loc))
}

// Selectable reports whether day can be chosen: the view is ready, day is not in the past
// and the probe reported it bookable.
func (g *Gate) Selectable(v View, day civil.Date, loc *time.Location) bool {
	if !v.Ready() || !v.Shows(day) {
		return false
	}
	if day.Before(g.Today(loc)) {
		return false
	}
	return v.Set().Has(day)
}

// Grid lists every day of the displayed month with its picker flags.
func (g *Gate) Grid(v View, loc *time.Location) []Day {
	if v.Month.IsZero() {
		return nil
	}
	today := g.Today(loc)
	set := v.Set()
	days := make([]Day, 0, v.Month.Days())
	for i := 1; i <= v.Month.Days(); i++ {
		date := v.Month.Date(i)
		past := date.Before(today)
		bookable := set.Has(date)
		days = append(days, Day{
			Date:       date,
			Past:       past,
			Bookable:   bookable,
			Selectable: v.Ready() && bookable && !past,
		})
	}
	return days
}

// Probe runs the prober for the ticket's month.
func (g *Gate) Probe(ctx context.Context, t Ticket, experienceRef string, loc *time.Location) (availability.BookableSet, error) {
	if g.prober == nil {
		return availability.BookableSet{}, errors.New("calendar: no prober configured")
	}
	return g.prober.ProbeMonth(ctx, experienceRef, t.Month, loc)
}

// Publish stores set on v. Stale results are discarded and reported as *StaleProbeError.
func (g *Gate) Publish(v *View, t Ticket, set availability.BookableSet) error {
	err := v.Publish(t, set)
	var stale *StaleProbeError
	if errors.As(err, &stale) {
		g.metrics.ObserveStaleProbe()
		g.logger.Debug("discarding stale probe result",
			"probe_month", t.Month.String(), "probe_generation", t.Generation,
			"month", stale.Current.Month.String(), "generation", stale.Current.Generation)
	}
	return err
}
