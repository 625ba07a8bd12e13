package booking

import (
	"context"
	"strings"
	"time"

	"github.com/bearound/booking-funnel/internal/observability/metrics"
	"github.com/bearound/booking-funnel/pkg/logging"
)

// Intent is a payment intent bound to the draft version it was created from.
type Intent struct {
	ClientSecret string    `json:"clientSecret"`
	TotalAmount  int64     `json:"totalAmount"`
	DraftVersion uint64    `json:"draftVersion"`
	CreatedAt    time.Time `json:"createdAt"`
}

// LiveFor reports whether the intent can still be confirmed against d.
func (i *Intent) LiveFor(d Draft) bool {
	return i != nil && strings.TrimSpace(i.ClientSecret) != "" && i.DraftVersion == d.Version
}

// Builder turns drafts into payment intents.
type Builder struct {
	creator IntentCreator
	metrics *metrics.FunnelMetrics
	logger  *logging.Logger
	now     func() time.Time
}

func NewBuilder(creator IntentCreator, m *metrics.FunnelMetrics, logger *logging.Logger) *Builder {
	if creator == nil {
		panic("booking: intent creator cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Builder{creator: creator, metrics: m, logger: logger, now: time.Now}
}

// Request serializes the draft. The date is the selected day at midnight in loc.
func Request(experienceRef string, d Draft, loc *time.Location) (IntentRequest, error) {
	if strings.TrimSpace(experienceRef) == "" {
		return IntentRequest{}, ErrMissingExperience
	}
	if err := d.Validate(); err != nil {
		return IntentRequest{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	req := IntentRequest{
		ExperienceSlug: experienceRef,
		Participants:   d.Participants,
		Date:           d.Date.In(loc),
		NeedsTransport: d.NeedsTransport,
	}
	if d.NeedsTransport {
		req.StructureSlug = d.StructureSlug
	}
	return req, nil
}

// CreateIntent validates the draft and issues exactly one intent request.
// The draft is never modified.
func (b *Builder) CreateIntent(ctx context.Context, experienceRef string, d Draft, loc *time.Location) (*Intent, error) {
	req, err := Request(experienceRef, d, loc)
	if err != nil {
		b.metrics.ObserveIntent("invalid")
		return nil, err
	}

	resp, err := b.creator.CreatePaymentIntent(ctx, req)
	if err != nil {
		b.metrics.ObserveIntent("error")
		b.logger.Warn("payment intent request failed", "experience", experienceRef, "draft_version", d.Version, "error", err)
		return nil, &NetworkError{Op: "create payment intent", Err: err}
	}
	if strings.TrimSpace(resp.ClientSecret) == "" {
		b.metrics.ObserveIntent("error")
		return nil, &NetworkError{Op: "create payment intent", Err: errEmptyClientSecret}
	}

	b.metrics.ObserveIntent("created")
	b.logger.Info("payment intent created", "experience", experienceRef, "draft_version", d.Version, "total_amount", resp.TotalAmount)
	return &Intent{
		ClientSecret: resp.ClientSecret,
		TotalAmount:  resp.TotalAmount,
		DraftVersion: d.Version,
		CreatedAt:    b.now().UTC(),
	}, nil
}
