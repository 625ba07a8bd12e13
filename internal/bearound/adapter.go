package bearound

import (
	"context"

	"github.com/bearound/booking-funnel/internal/availability"
	"github.com/bearound/booking-funnel/internal/booking"
	"github.com/bearound/booking-funnel/internal/catalog"
)

// Adapter exposes the marketplace client through the funnel's collaborator interfaces.
type Adapter struct {
	client *Client
}

var (
	_ availability.Checker  = (*Adapter)(nil)
	_ booking.IntentCreator = (*Adapter)(nil)
	_ catalog.Source        = (*Adapter)(nil)
)

func NewAdapter(client *Client) *Adapter {
	if client == nil {
		panic("bearound: client cannot be nil")
	}
	return &Adapter{client: client}
}

// IsAvailable satisfies availability.Checker.
func (a *Adapter) IsAvailable(ctx context.Context, w availability.Window) (bool, error) {
	return a.client.IsAvailable(ctx, AvailabilityQuery{
		ExperienceSlug: w.ExperienceRef,
		From:           w.From,
		To:             w.To,
		Zone:           w.Location,
	})
}

// CreatePaymentIntent satisfies booking.IntentCreator.
func (a *Adapter) CreatePaymentIntent(ctx context.Context, req booking.IntentRequest) (booking.IntentResponse, error) {
	resp, err := a.client.CreatePaymentIntent(ctx, PaymentIntentForm{
		ExperienceSlug:       req.ExperienceSlug,
		StructureSlug:        req.StructureSlug,
		NumberOfParticipants: req.Participants,
		Date:                 req.Date,
		NeedsTransport:       req.NeedsTransport,
	})
	if err != nil {
		return booking.IntentResponse{}, err
	}
	return booking.IntentResponse{ClientSecret: resp.ClientSecret, TotalAmount: resp.TotalAmount}, nil
}

// ListStructures satisfies catalog.Source.
func (a *Adapter) ListStructures(ctx context.Context) ([]catalog.Structure, error) {
	structures, err := a.client.ListStructures(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]catalog.Structure, 0, len(structures))
	for _, s := range structures {
		out = append(out, catalog.Structure{Slug: s.Slug, Name: s.Name})
	}
	return out, nil
}

// SearchExperiences satisfies catalog.Source.
func (a *Adapter) SearchExperiences(ctx context.Context, q catalog.SearchQuery) ([]catalog.Listing, error) {
	experiences, err := a.client.SearchExperiences(ctx, q.Values())
	if err != nil {
		return nil, err
	}
	out := make([]catalog.Listing, 0, len(experiences))
	for _, e := range experiences {
		out = append(out, catalog.Listing{Slug: e.Slug, Name: e.Name, Cover: e.Cover, Price: e.Price, Type: e.Type})
	}
	return out, nil
}
