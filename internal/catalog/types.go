package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ExperienceType is the activity category used by the search form.
type ExperienceType string

const (
	TypeHiking   ExperienceType = "HIKING"
	TypeWellness ExperienceType = "WELLNESS"
	TypeTasting  ExperienceType = "TASTING"
	TypeHorses   ExperienceType = "HORSES"
	TypeBoats    ExperienceType = "BOATS"
	TypeSport    ExperienceType = "SPORT"
	TypeAnimals  ExperienceType = "ANIMALS"
	TypeSnow     ExperienceType = "SNOW"
	TypeNight    ExperienceType = "NIGHT"
)

// ExperienceTypes lists every type in display order.
var ExperienceTypes = []ExperienceType{
	TypeHiking, TypeWellness, TypeTasting, TypeHorses, TypeBoats,
	TypeSport, TypeAnimals, TypeSnow, TypeNight,
}

// ParseExperienceType accepts any casing.
func ParseExperienceType(s string) (ExperienceType, error) {
	candidate := ExperienceType(strings.ToUpper(strings.TrimSpace(s)))
	for _, t := range ExperienceTypes {
		if t == candidate {
			return t, nil
		}
	}
	return "", fmt.Errorf("catalog: unknown experience type %q", s)
}

const (
	MinDistanceMinutes     = 5
	MaxDistanceMinutes     = 120
	DistanceStepMinutes    = 5
	DefaultDistanceMinutes = 30
	DefaultZoneID          = "Europe/Rome"

	// search timestamps are UTC ISO-8601 with milliseconds
	searchTimestampLayout = "2006-01-02T15:04:05.000Z"
)

var (
	ErrMissingStructure = errors.New("catalog: structureId is required")
	ErrMissingRange     = errors.New("catalog: from and to are required")
	ErrInvertedRange    = errors.New("catalog: from must not be after to")
	ErrInvalidDistance  = errors.New("catalog: maxDistanceInMinutes must be a multiple of 5 between 5 and 120")
)

// SearchQuery mirrors the experience search form.
type SearchQuery struct {
	StructureID          string
	From                 time.Time
	To                   time.Time
	Type                 ExperienceType
	MaxDistanceInMinutes int
	ZoneID               string
}

// ParseSearchQuery reads a query from URL parameters and applies defaults.
func ParseSearchQuery(values url.Values) (SearchQuery, error) {
	q := SearchQuery{
		StructureID: strings.TrimSpace(values.Get("structureId")),
		ZoneID:      strings.TrimSpace(values.Get("zoneId")),
	}
	var err error
	if raw := values.Get("from"); raw != "" {
		if q.From, err = time.Parse(time.RFC3339, raw); err != nil {
			return SearchQuery{}, fmt.Errorf("catalog: invalid from: %w", err)
		}
	}
	if raw := values.Get("to"); raw != "" {
		if q.To, err = time.Parse(time.RFC3339, raw); err != nil {
			return SearchQuery{}, fmt.Errorf("catalog: invalid to: %w", err)
		}
	}
	if raw := values.Get("type"); raw != "" {
		if q.Type, err = ParseExperienceType(raw); err != nil {
			return SearchQuery{}, err
		}
	}
	if raw := values.Get("maxDistanceInMinutes"); raw != "" {
		if q.MaxDistanceInMinutes, err = strconv.Atoi(raw); err != nil {
			return SearchQuery{}, ErrInvalidDistance
		}
	}
	q.Normalize()
	return q, q.Validate()
}

// Normalize fills the form defaults.
func (q *SearchQuery) Normalize() {
	if q.MaxDistanceInMinutes == 0 {
		q.MaxDistanceInMinutes = DefaultDistanceMinutes
	}
	if q.ZoneID == "" {
		q.ZoneID = DefaultZoneID
	}
}

func (q SearchQuery) Validate() error {
	if q.StructureID == "" {
		return ErrMissingStructure
	}
	if q.From.IsZero() || q.To.IsZero() {
		return ErrMissingRange
	}
	if q.From.After(q.To) {
		return ErrInvertedRange
	}
	d := q.MaxDistanceInMinutes
	if d < MinDistanceMinutes || d > MaxDistanceMinutes || d%DistanceStepMinutes != 0 {
		return ErrInvalidDistance
	}
	if _, err := time.LoadLocation(q.ZoneID); err != nil {
		return fmt.Errorf("catalog: invalid zoneId %q: %w", q.ZoneID, err)
	}
	return nil
}

// Values encodes the query the way the marketplace search endpoint expects.
func (q SearchQuery) Values() url.Values {
	v := url.Values{}
	v.Set("structureId", q.StructureID)
	v.Set("from", q.From.UTC().Format(searchTimestampLayout))
	v.Set("to", q.To.UTC().Format(searchTimestampLayout))
	if q.Type != "" {
		v.Set("type", string(q.Type))
	}
	if q.MaxDistanceInMinutes > 0 {
		v.Set("maxDistanceInMinutes", strconv.Itoa(q.MaxDistanceInMinutes))
	}
	v.Set("zoneId", q.ZoneID)
	return v
}

// Structure is a partner venue offered in the transport picklist.
type Structure struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// Listing is a raw search result as returned by the marketplace.
type Listing struct {
	Slug  string
	Name  string
	Cover string
	Price float64
	Type  string
}

// Experience is a search result ready for display.
type Experience struct {
	Slug     string         `json:"slug"`
	Name     string         `json:"name"`
	CoverURL string         `json:"coverUrl"`
	Price    float64        `json:"price"`
	Type     ExperienceType `json:"type"`
	URL      string         `json:"url"`
}

// Source is the upstream catalog.
type Source interface {
	ListStructures(ctx context.Context) ([]Structure, error)
	SearchExperiences(ctx context.Context, q SearchQuery) ([]Listing, error)
}
