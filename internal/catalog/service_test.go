package catalog

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	structures      []Structure
	listings        []Listing
	err             error
	structuresCalls int
	lastQuery       SearchQuery
}

func (s *stubSource) ListStructures(ctx context.Context) ([]Structure, error) {
	s.structuresCalls++
	return s.structures, s.err
}

func (s *stubSource) SearchExperiences(ctx context.Context, q SearchQuery) ([]Listing, error) {
	s.lastQuery = q
	return s.listings, s.err
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestStructuresCached(t *testing.T) {
	mr, rdb := newRedis(t)
	src := &stubSource{structures: []Structure{{Slug: "rifugio-sapienza", Name: "Rifugio Sapienza"}}}
	svc := NewService(src, rdb, Config{CacheTTL: time.Minute}, nil)

	first, err := svc.Structures(context.Background())
	require.NoError(t, err)
	second, err := svc.Structures(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, src.structuresCalls)
	assert.True(t, mr.Exists(structuresKey))

	mr.FastForward(2 * time.Minute)
	_, err = svc.Structures(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, src.structuresCalls)
}

func TestStructuresWithoutCache(t *testing.T) {
	src := &stubSource{structures: []Structure{{Slug: "a"}}}
	svc := NewService(src, nil, Config{}, nil)

	ok, err := svc.HasStructure(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.HasStructure(context.Background(), "b")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, src.structuresCalls)
}

func TestStructuresSourceError(t *testing.T) {
	svc := NewService(&stubSource{err: errors.New("down")}, nil, Config{}, nil)
	_, err := svc.Structures(context.Background())
	require.Error(t, err)
}

func TestSearchResolvesResults(t *testing.T) {
	src := &stubSource{listings: []Listing{
		{Slug: "trekking-etna", Name: "Trekking Etna", Cover: "/uploads/etna.jpg", Price: 45, Type: "hiking"},
		{Slug: "spa", Name: "Spa", Cover: "https://cdn.example/spa.jpg", Price: 80, Type: "WELLNESS"},
		{Slug: "notte", Name: "Notte", Cover: "", Price: 30, Type: "NIGHT"},
	}}
	svc := NewService(src, nil, Config{SiteURL: "https://www.bearound.eu/"}, nil)

	q := SearchQuery{
		StructureID: "rifugio-sapienza",
		From:        time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		To:          time.Date(2025, time.March, 2, 0, 0, 0, 0, time.UTC),
	}
	results, err := svc.Search(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "https://www.bearound.eu/uploads/etna.jpg", results[0].CoverURL)
	assert.Equal(t, "https://www.bearound.eu/esperienze/trekking-etna", results[0].URL)
	assert.Equal(t, TypeHiking, results[0].Type)
	assert.Equal(t, "https://cdn.example/spa.jpg", results[1].CoverURL)
	assert.Equal(t, FallbackCoverImage, results[2].CoverURL)

	assert.Equal(t, DefaultDistanceMinutes, src.lastQuery.MaxDistanceInMinutes)
	assert.Equal(t, DefaultZoneID, src.lastQuery.ZoneID)
}

func TestSearchValidation(t *testing.T) {
	from := time.Date(2025, time.March, 2, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	tests := []struct {
		name string
		q    SearchQuery
		want error
	}{
		{"missing structure", SearchQuery{From: from, To: to}, ErrMissingStructure},
		{"missing range", SearchQuery{StructureID: "s"}, ErrMissingRange},
		{"inverted range", SearchQuery{StructureID: "s", From: to, To: from}, ErrInvertedRange},
		{"distance too small", SearchQuery{StructureID: "s", From: from, To: to, MaxDistanceInMinutes: 3}, ErrInvalidDistance},
		{"distance off step", SearchQuery{StructureID: "s", From: from, To: to, MaxDistanceInMinutes: 32}, ErrInvalidDistance},
		{"distance too large", SearchQuery{StructureID: "s", From: from, To: to, MaxDistanceInMinutes: 125}, ErrInvalidDistance},
	}
	src := &stubSource{}
	svc := NewService(src, nil, Config{}, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Search(context.Background(), tt.q)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
	assert.Empty(t, src.lastQuery.StructureID, "invalid queries never reach the source")
}

func TestParseSearchQuery(t *testing.T) {
	values := url.Values{}
	values.Set("structureId", "rifugio")
	values.Set("from", "2025-03-01T09:00:00.000Z")
	values.Set("to", "2025-03-05T09:00:00Z")
	values.Set("type", "boats")
	values.Set("maxDistanceInMinutes", "60")

	q, err := ParseSearchQuery(values)
	require.NoError(t, err)
	assert.Equal(t, TypeBoats, q.Type)
	assert.Equal(t, 60, q.MaxDistanceInMinutes)
	assert.Equal(t, DefaultZoneID, q.ZoneID)

	encoded := q.Values()
	assert.Equal(t, "2025-03-01T09:00:00.000Z", encoded.Get("from"))
	assert.Equal(t, "2025-03-05T09:00:00.000Z", encoded.Get("to"))
	assert.Equal(t, "BOATS", encoded.Get("type"))
	assert.Equal(t, "Europe/Rome", encoded.Get("zoneId"))

	values.Set("type", "skydiving")
	_, err = ParseSearchQuery(values)
	require.Error(t, err)
}
