package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bearound/booking-funnel/pkg/logging"
)

const (
	structuresKey      = "catalog:structures"
	defaultSiteURL     = "https://www.bearound.eu"
	defaultCacheTTL    = 5 * time.Minute
	FallbackCoverImage = "https://images.unsplash.com/photo-1571983823232-07c35b70baae?w=800&q=80"
)

// Config controls result resolution and caching.
type Config struct {
	SiteURL  string
	CacheTTL time.Duration
}

// Service serves the structures picklist and the experience search.
type Service struct {
	source   Source
	redis    *redis.Client
	siteURL  string
	cacheTTL time.Duration
	tracer   trace.Tracer
	logger   *logging.Logger
}

// NewService wires the catalog. rdb may be nil, in which case structures are fetched every time.
func NewService(source Source, rdb *redis.Client, cfg Config, logger *logging.Logger) *Service {
	if source == nil {
		panic("catalog: source cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	site := strings.TrimRight(strings.TrimSpace(cfg.SiteURL), "/")
	if site == "" {
		site = defaultSiteURL
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Service{
		source:   source,
		redis:    rdb,
		siteURL:  site,
		cacheTTL: ttl,
		tracer:   otel.Tracer("bearound.internal.catalog"),
		logger:   logger,
	}
}

// Structures returns the picklist, from cache when possible.
func (s *Service) Structures(ctx context.Context) ([]Structure, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.structures")
	defer span.End()

	if cached, ok := s.cachedStructures(ctx); ok {
		span.SetAttributes(attribute.Bool("catalog.cache_hit", true))
		return cached, nil
	}
	span.SetAttributes(attribute.Bool("catalog.cache_hit", false))

	structures, err := s.source.ListStructures(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("catalog: list structures: %w", err)
	}
	s.storeStructures(ctx, structures)
	return structures, nil
}

// HasStructure reports whether slug is in the picklist.
func (s *Service) HasStructure(ctx context.Context, slug string) (bool, error) {
	structures, err := s.Structures(ctx)
	if err != nil {
		return false, err
	}
	for _, st := range structures {
		if st.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

// Search validates q and returns display-ready results.
func (s *Service) Search(ctx context.Context, q SearchQuery) ([]Experience, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.search")
	defer span.End()

	q.Normalize()
	if err := q.Validate(); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("catalog.structure_id", q.StructureID))

	listings, err := s.source.SearchExperiences(ctx, q)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("catalog: search experiences: %w", err)
	}
	out := make([]Experience, 0, len(listings))
	for _, l := range listings {
		out = append(out, s.resolve(l))
	}
	return out, nil
}

func (s *Service) resolve(l Listing) Experience {
	return Experience{
		Slug:     l.Slug,
		Name:     l.Name,
		CoverURL: s.CoverURL(l.Cover),
		Price:    l.Price,
		Type:     ExperienceType(strings.ToUpper(l.Type)),
		URL:      s.ExperienceURL(l.Slug),
	}
}

// CoverURL makes a cover path absolute against the public site.
func (s *Service) CoverURL(cover string) string {
	cover = strings.TrimSpace(cover)
	switch {
	case cover == "":
		return FallbackCoverImage
	case strings.HasPrefix(cover, "http"):
		return cover
	case strings.HasPrefix(cover, "/"):
		return s.siteURL + cover
	default:
		return s.siteURL + "/" + cover
	}
}

// ExperienceURL is the public page of an experience.
func (s *Service) ExperienceURL(slug string) string {
	return s.siteURL + "/esperienze/" + slug
}

func (s *Service) cachedStructures(ctx context.Context) ([]Structure, bool) {
	if s.redis == nil {
		return nil, false
	}
	data, err := s.redis.Get(ctx, structuresKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("structures cache read failed", "error", err)
		}
		return nil, false
	}
	var structures []Structure
	if err := json.Unmarshal(data, &structures); err != nil {
		s.logger.Warn("structures cache decode failed", "error", err)
		return nil, false
	}
	return structures, true
}

func (s *Service) storeStructures(ctx context.Context, structures []Structure) {
	if s.redis == nil {
		return
	}
	data, err := json.Marshal(structures)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, structuresKey, data, s.cacheTTL).Err(); err != nil {
		s.logger.Warn("structures cache write failed", "error", err)
	}
}
