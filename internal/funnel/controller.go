package funnel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bearound/booking-funnel/internal/availability"
	"github.com/bearound/booking-funnel/internal/booking"
	"github.com/bearound/booking-funnel/internal/calendar"
	"github.com/bearound/booking-funnel/internal/events"
	"github.com/bearound/booking-funnel/internal/observability/metrics"
	"github.com/bearound/booking-funnel/internal/payments"
	"github.com/bearound/booking-funnel/pkg/logging"
)

const (
	defaultTimezone     = "Europe/Rome"
	defaultProbeTimeout = 30 * time.Second
	defaultInFlight     = 2 * time.Minute
	settleTimeout       = 5 * time.Second
	settleAttempts      = 5
	opConfirmPayment    = "confirm payment"
)

// StructureCatalog validates transport structures.
type StructureCatalog interface {
	HasStructure(ctx context.Context, slug string) (bool, error)
}

// EventPublisher receives funnel domain events.
type EventPublisher interface {
	Publish(ctx context.Context, aggregate, correlationID string, evt events.CanonicalEvent, opts ...events.EnvelopeOption) (events.Envelope, error)
}

// Config tunes the controller.
type Config struct {
	DefaultTimezone string
	ProbeTimeout    time.Duration
	// ReturnBaseURL is where redirect-based payment methods land after confirmation.
	ReturnBaseURL string
	// InFlightTimeout is how long an intent request or confirmation may stay
	// marked in flight before the mark counts as abandoned.
	InFlightTimeout time.Duration
}

// settleBackoff is the first pause between attempts to record an external result.
var settleBackoff = 50 * time.Millisecond

// StartRequest opens a funnel for one experience.
type StartRequest struct {
	ExperienceRef string
	StructureSlug string
	Timezone      string
	// Month is the first month shown; zero means the current month.
	Month availability.Month
	// Wait blocks until the first month is probed.
	Wait bool
}

type probeHandle struct {
	ticket calendar.Ticket
	cancel context.CancelFunc
	done   chan struct{}
}

// Controller sequences the funnel: date selection, intent creation, payment confirmation.
type Controller struct {
	store       Store
	gate        *calendar.Gate
	builder     *booking.Builder
	step        *payments.Step
	cfg         Config
	structures  StructureCatalog
	events      EventPublisher
	broadcaster *Broadcaster
	metrics     *metrics.FunnelMetrics
	logger      *logging.Logger
	now         func() time.Time

	root     context.Context
	stopAll  context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	inFlight map[string]probeHandle
}

func NewController(store Store, gate *calendar.Gate, builder *booking.Builder, step *payments.Step, cfg Config, logger *logging.Logger) *Controller {
	if store == nil || gate == nil || builder == nil || step == nil {
		panic("funnel: store, gate, builder and step are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.DefaultTimezone) == "" {
		cfg.DefaultTimezone = defaultTimezone
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.InFlightTimeout <= 0 {
		cfg.InFlightTimeout = defaultInFlight
	}
	cfg.ReturnBaseURL = strings.TrimRight(strings.TrimSpace(cfg.ReturnBaseURL), "/")
	root, stop := context.WithCancel(context.Background())
	return &Controller{
		store:       store,
		gate:        gate,
		builder:     builder,
		step:        step,
		cfg:         cfg,
		broadcaster: NewBroadcaster(),
		logger:      logger,
		now:         time.Now,
		root:        root,
		stopAll:     stop,
		inFlight:    make(map[string]probeHandle),
	}
}

// WithStructures validates transport structures against catalog.
func (c *Controller) WithStructures(catalog StructureCatalog) *Controller {
	c.structures = catalog
	return c
}

// WithEvents publishes intent and payment events.
func (c *Controller) WithEvents(publisher EventPublisher) *Controller {
	c.events = publisher
	return c
}

func (c *Controller) WithMetrics(m *metrics.FunnelMetrics) *Controller {
	c.metrics = m
	return c
}

// WithClock overrides the timestamp source.
func (c *Controller) WithClock(now func() time.Time) *Controller {
	if now != nil {
		c.now = now
	}
	return c
}

// Broadcaster exposes session change notifications.
func (c *Controller) Broadcaster() *Broadcaster { return c.broadcaster }

// Gate exposes the calendar gate used by this controller.
func (c *Controller) Gate() *calendar.Gate { return c.gate }

// Start opens a session in selecting_date and starts probing the first month.
func (c *Controller) Start(ctx context.Context, req StartRequest) (*Session, error) {
	ref := strings.TrimSpace(req.ExperienceRef)
	if ref == "" {
		return nil, booking.ErrMissingExperience
	}
	tz := strings.TrimSpace(req.Timezone)
	if tz == "" {
		tz = c.cfg.DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTimezone, tz)
	}

	draft := booking.NewDraft()
	if slug := strings.TrimSpace(req.StructureSlug); slug != "" {
		if err := c.checkStructure(ctx, slug); err != nil {
			return nil, err
		}
		draft.StructureSlug = slug
	}

	month := req.Month
	if month.IsZero() {
		month = availability.MonthOfDate(c.gate.Today(loc))
	}

	now := c.now().UTC()
	s := &Session{
		ID:            uuid.NewString(),
		ExperienceRef: ref,
		Timezone:      loc.String(),
		Stage:         StageSelectingDate,
		Draft:         draft,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	ticket := s.Calendar.Begin(month)
	if err := c.store.Create(ctx, s); err != nil {
		return nil, err
	}
	c.logger.Info("funnel session started", "session_id", s.ID, "experience", ref, "timezone", s.Timezone, "month", month.String())

	done := c.launchProbe(s.ID, ticket, ref, loc)
	if req.Wait {
		return c.await(ctx, s.ID, done)
	}
	return s, nil
}

// Get returns the current session.
func (c *Controller) Get(ctx context.Context, id string) (*Session, error) {
	return c.store.Get(ctx, id)
}

// NavigateMonth displays month and re-probes it from scratch. With wait the call
// returns once the month is published (or the probe ends).
func (c *Controller) NavigateMonth(ctx context.Context, id string, month availability.Month, wait bool) (*Session, error) {
	if month.IsZero() {
		return nil, ErrInvalidMonth
	}
	var (
		ticket calendar.Ticket
		ref    string
		loc    *time.Location
	)
	s, err := c.store.Update(ctx, id, func(s *Session) error {
		if !s.Stage.CalendarEditable() {
			return ErrCalendarLocked
		}
		l, err := s.Location()
		if err != nil {
			return err
		}
		loc, ref = l, s.ExperienceRef
		ticket = s.Calendar.Begin(month)
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.broadcaster.Publish(s)

	done := c.launchProbe(id, ticket, ref, loc)
	if wait {
		return c.await(ctx, id, done)
	}
	return s, nil
}

// UpdateDraft applies a user edit. In confirming_payment an effective change drops
// the intent and returns the funnel to selecting_date.
func (c *Controller) UpdateDraft(ctx context.Context, id string, patch booking.Patch) (*Session, error) {
	if patch.Participants != nil && *patch.Participants < 1 {
		return nil, &booking.ValidationError{Field: booking.FieldParticipants, Reason: "must be at least 1"}
	}
	if patch.StructureSlug != nil {
		if slug := strings.TrimSpace(*patch.StructureSlug); slug != "" {
			if err := c.checkStructure(ctx, slug); err != nil {
				return nil, err
			}
		}
	}

	var from, to Stage
	s, err := c.store.Update(ctx, id, func(s *Session) error {
		from, to = s.Stage, s.Stage
		if s.Stage == StageAwaitingIntent && c.abandoned(s.SubmittedAt) {
			s.Stage, s.SubmittedAt = StageSelectingDate, nil
			to = s.Stage
		}
		if !s.Stage.DraftEditable() || (s.Confirmation.InFlight && !c.abandoned(s.Confirmation.StartedAt)) {
			return ErrDraftLocked
		}
		s.Confirmation.InFlight, s.Confirmation.StartedAt = false, nil
		if patch.Date != nil {
			loc, err := s.Location()
			if err != nil {
				return err
			}
			if !c.gate.Selectable(s.Calendar, *patch.Date, loc) {
				return fmt.Errorf("%w: %s", ErrDateNotSelectable, patch.Date.String())
			}
		}
		if !s.Draft.Apply(patch) {
			return nil
		}
		s.Notice = nil
		if s.Stage == StageConfirmingPayment {
			s.Intent = nil
			s.Confirmation = Confirmation{}
			s.Stage = StageSelectingDate
			to = s.Stage
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if from != to {
		c.metrics.ObserveTransition(string(from), string(to))
		c.logger.Info("draft edit returned the funnel to date selection", "session_id", id, "from", string(from), "draft_version", s.Draft.Version)
	}
	c.broadcaster.Publish(s)
	return s, nil
}

// Submit requests a payment intent for the current draft. On failure the session
// returns to selecting_date with a notice and the error is returned alongside it.
func (c *Controller) Submit(ctx context.Context, id string) (*Session, error) {
	var (
		draft booking.Draft
		ref   string
		loc   *time.Location
		from  Stage
	)
	submitted := c.now().UTC()
	s, err := c.store.Update(ctx, id, func(s *Session) error {
		from = s.Stage
		switch s.Stage {
		case StageSelectingDate:
		case StageAwaitingIntent:
			if !c.abandoned(s.SubmittedAt) {
				return ErrSubmissionInFlight
			}
		default:
			return ErrInvalidTransition
		}
		if err := s.Draft.Validate(); err != nil {
			return err
		}
		l, err := s.Location()
		if err != nil {
			return err
		}
		if s.Draft.Date.Before(c.gate.Today(l)) {
			return fmt.Errorf("%w: %s is in the past", ErrDateNotSelectable, s.Draft.Date.String())
		}
		draft, ref, loc = s.Draft, s.ExperienceRef, l
		s.Stage = StageAwaitingIntent
		s.SubmittedAt = &submitted
		s.Notice = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	if from != StageAwaitingIntent {
		c.metrics.ObserveTransition(string(from), string(StageAwaitingIntent))
	} else {
		c.logger.Warn("resubmitting abandoned intent request", "session_id", id)
	}
	c.broadcaster.Publish(s)

	intent, buildErr := c.builder.CreateIntent(ctx, ref, draft, loc)

	s, err = c.settle(ctx, id, func(s *Session) error {
		if s.Stage != StageAwaitingIntent || s.SubmittedAt == nil || !s.SubmittedAt.Equal(submitted) {
			return ErrInvalidTransition
		}
		s.SubmittedAt = nil
		if buildErr != nil {
			s.Stage = StageSelectingDate
			s.Notice = c.notice(buildErr)
			return nil
		}
		if s.Draft.Version != draft.Version {
			s.Stage = StageSelectingDate
			s.Notice = c.notice(ErrStaleIntent)
			return nil
		}
		s.Intent = intent
		s.Confirmation = Confirmation{}
		s.Stage = StageConfirmingPayment
		return nil
	})
	if err != nil {
		if intent != nil {
			c.logger.Error("payment intent created but not recorded", "session_id", id, "error", err)
		}
		return nil, err
	}
	c.metrics.ObserveTransition(string(StageAwaitingIntent), string(s.Stage))
	c.broadcaster.Publish(s)

	if buildErr != nil {
		return s, buildErr
	}
	if s.Stage != StageConfirmingPayment {
		return s, ErrStaleIntent
	}
	c.publish(ctx, s, events.IntentCreatedV1{
		SessionID:      s.ID,
		ExperienceSlug: s.ExperienceRef,
		Date:           s.Draft.Date.String(),
		Participants:   s.Draft.Participants,
		NeedsTransport: s.Draft.NeedsTransport,
		StructureSlug:  structureFor(s.Draft),
		TotalAmount:    s.Intent.TotalAmount,
		DraftVersion:   s.Intent.DraftVersion,
		CreatedAt:      s.Intent.CreatedAt,
	})
	return s, nil
}

// Confirm submits the payment method against the live intent.
//   - succeeded: the session reaches succeeded
//   - processor error: stays in confirming_payment with the intent kept for a retry
//   - ambiguous outcome: the session fails with a generic message
//   - processor unreachable: stays in confirming_payment with a network notice
func (c *Controller) Confirm(ctx context.Context, id string, input payments.MethodInput) (*Session, error) {
	if strings.TrimSpace(input.PaymentMethod) == "" {
		return nil, payments.ErrMissingPaymentMethod
	}
	var (
		intent *booking.Intent
		ref    string
	)
	s, err := c.store.Update(ctx, id, func(s *Session) error {
		if s.Stage != StageConfirmingPayment {
			return ErrInvalidTransition
		}
		if !s.Intent.LiveFor(s.Draft) {
			return ErrStaleIntent
		}
		if s.Confirmation.InFlight && !c.abandoned(s.Confirmation.StartedAt) {
			return payments.ErrConfirmationInFlight
		}
		started := c.now().UTC()
		s.Confirmation.InFlight = true
		s.Confirmation.StartedAt = &started
		s.Confirmation.Attempts++
		s.Notice = nil
		copied := *s.Intent
		intent, ref = &copied, s.ExperienceRef
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.broadcaster.Publish(s)

	if strings.TrimSpace(input.ReturnURL) == "" {
		input.ReturnURL = c.returnURL(ref)
	}
	// the charge must settle even if the caller goes away
	confirmCtx := context.WithoutCancel(ctx)
	res, confirmErr := c.step.Confirm(confirmCtx, intent, input)

	var perr *payments.PaymentError
	switch {
	case confirmErr == nil, errors.As(confirmErr, &perr):
	case errors.Is(confirmErr, payments.ErrConfirmationInFlight),
		errors.Is(confirmErr, payments.ErrMissingClientSecret),
		errors.Is(confirmErr, payments.ErrMissingPaymentMethod):
	default:
		confirmErr = &booking.NetworkError{Op: opConfirmPayment, Err: confirmErr}
	}

	s, err = c.settle(confirmCtx, id, func(s *Session) error {
		if s.Stage != StageConfirmingPayment {
			return ErrInvalidTransition
		}
		s.Confirmation.InFlight = false
		s.Confirmation.StartedAt = nil
		now := c.now().UTC()
		switch {
		case confirmErr == nil:
			s.Stage = StageSucceeded
			s.Outcome = &Outcome{Succeeded: true, Message: MsgPaymentSucceeded, IntentID: res.IntentID, At: now}
		case perr != nil && perr.Ambiguous():
			s.Stage = StageFailed
			s.Outcome = &Outcome{Succeeded: false, Message: MsgPaymentFailed, IntentID: res.IntentID, At: now}
		default:
			s.Notice = c.notice(confirmErr)
		}
		return nil
	})
	if err != nil {
		c.logger.Error("payment result not recorded", "session_id", id, "succeeded", confirmErr == nil, "intent_id", res.IntentID, "error", err)
		return nil, err
	}
	if s.Stage != StageConfirmingPayment {
		c.metrics.ObserveTransition(string(StageConfirmingPayment), string(s.Stage))
	}
	c.broadcaster.Publish(s)

	switch {
	case confirmErr == nil:
		c.publish(ctx, s, events.PaymentSucceededV1{
			SessionID:      s.ID,
			ExperienceSlug: s.ExperienceRef,
			IntentID:       res.IntentID,
			Date:           s.Draft.Date.String(),
			Participants:   s.Draft.Participants,
			TotalAmount:    s.Intent.TotalAmount,
			OccurredAt:     s.Outcome.At,
		})
	case perr != nil:
		c.publish(ctx, s, events.PaymentFailedV1{
			SessionID:      s.ID,
			ExperienceSlug: s.ExperienceRef,
			IntentID:       res.IntentID,
			Outcome:        string(perr.Outcome),
			Code:           perr.Code,
			Terminal:       s.Stage == StageFailed,
			OccurredAt:     c.now().UTC(),
		})
	}
	return s, confirmErr
}

// Restart leaves failed for selecting_date, dropping the intent and keeping the draft.
func (c *Controller) Restart(ctx context.Context, id string) (*Session, error) {
	s, err := c.store.Update(ctx, id, func(s *Session) error {
		if s.Stage != StageFailed {
			return ErrInvalidTransition
		}
		s.Stage = StageSelectingDate
		s.Intent = nil
		s.Outcome = nil
		s.Notice = nil
		s.Confirmation = Confirmation{}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.metrics.ObserveTransition(string(StageFailed), string(StageSelectingDate))
	c.broadcaster.Publish(s)
	return s, nil
}

// Close abandons the session: its probe is cancelled and its state deleted.
func (c *Controller) Close(ctx context.Context, id string) error {
	c.cancelProbe(id)
	if err := c.store.Delete(ctx, id); err != nil {
		return err
	}
	c.broadcaster.Close(id)
	c.logger.Info("funnel session closed", "session_id", id)
	return nil
}

// Watch streams snapshots of id, starting with the current one.
func (c *Controller) Watch(ctx context.Context, id string) (<-chan *Session, func(), error) {
	ch, cancel := c.broadcaster.Subscribe(id)
	s, err := c.store.Get(ctx, id)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	c.broadcaster.prime(ch, s)
	return ch, cancel, nil
}

// Drain waits for every background probe to finish.
func (c *Controller) Drain() {
	c.wg.Wait()
}

// Shutdown cancels all probes and waits for them, or for ctx.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.stopAll()
	done := make(chan struct{})
	go func() {
		c.Drain()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) checkStructure(ctx context.Context, slug string) error {
	if c.structures == nil {
		return nil
	}
	ok, err := c.structures.HasStructure(ctx, slug)
	if err != nil {
		// the picklist is advisory; an unreachable catalog must not block booking
		c.logger.Warn("structure lookup failed; accepting structure", "structure", slug, "error", err)
		return nil
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStructure, slug)
	}
	return nil
}

// settle records the result of an external call. Store failures are retried with
// backoff on a detached context; errors returned by fn are final.
func (c *Controller) settle(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	ctx = context.WithoutCancel(ctx)
	wait := settleBackoff
	var lastErr error
	for attempt := 1; attempt <= settleAttempts; attempt++ {
		var fnErr error
		s, err := c.store.Update(ctx, id, func(s *Session) error {
			fnErr = fn(s)
			return fnErr
		})
		if err == nil {
			return s, nil
		}
		if fnErr != nil || errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
		lastErr = err
		c.logger.Warn("failed to record result; retrying", "session_id", id, "attempt", attempt, "error", err)
		if attempt < settleAttempts {
			time.Sleep(wait)
			wait *= 2
		}
	}
	return nil, lastErr
}

// abandoned reports whether an in-flight mark set at since has outlived InFlightTimeout.
func (c *Controller) abandoned(since *time.Time) bool {
	return since == nil || c.now().Sub(*since) > c.cfg.InFlightTimeout
}

func (c *Controller) notice(err error) *Notice {
	kind, msg := Classify(err)
	return &Notice{Kind: kind, Message: msg, At: c.now().UTC()}
}

func (c *Controller) returnURL(ref string) string {
	if c.cfg.ReturnBaseURL == "" {
		return ""
	}
	return c.cfg.ReturnBaseURL + "/thank-you?experience=" + url.QueryEscape(ref)
}

func (c *Controller) publish(ctx context.Context, s *Session, evt events.CanonicalEvent) {
	if c.events == nil {
		return
	}
	if _, err := c.events.Publish(context.WithoutCancel(ctx), "session:"+s.ID, s.ID, evt); err != nil {
		c.logger.Warn("failed to publish funnel event", "session_id", s.ID, "event_type", evt.EventType(), "error", err)
	}
}

func (c *Controller) await(ctx context.Context, id string, done <-chan struct{}) (*Session, error) {
	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return c.store.Get(ctx, id)
}

func structureFor(d booking.Draft) string {
	if d.NeedsTransport {
		return d.StructureSlug
	}
	return ""
}
