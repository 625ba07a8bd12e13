package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bearound/booking-funnel/internal/availability"
	"github.com/bearound/booking-funnel/internal/observability/metrics"
)

var feb2025 = availability.Month{Year: 2025, Month: time.February}

type stubProber struct {
	days  []int
	err   error
	calls int
}

func (s *stubProber) ProbeMonth(ctx context.Context, ref string, month availability.Month, loc *time.Location) (availability.BookableSet, error) {
	s.calls++
	if s.err != nil {
		return availability.BookableSet{}, s.err
	}
	return availability.NewBookableSet(month, s.days...), nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func readyFebruary(t *testing.T, g *Gate) View {
	t.Helper()
	var v View
	ticket := v.Begin(feb2025)
	set, err := g.Probe(context.Background(), ticket, "trekking-etna", time.UTC)
	require.NoError(t, err)
	require.NoError(t, g.Publish(&v, ticket, set))
	return v
}

func TestSelectableFebruary2025(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Rome")
	require.NoError(t, err)
	prober := &stubProber{days: []int{10, 15}}
	gate := NewGate(prober, nil, nil).WithClock(fixedClock(time.Date(2025, time.February, 1, 9, 0, 0, 0, loc)))
	v := readyFebruary(t, gate)

	tests := []struct {
		day  int
		want bool
	}{
		{10, true},
		{15, true},
		{11, false},
		{9, false},
		{1, false},
	}
	for _, tt := range tests {
		if got := gate.Selectable(v, feb2025.Date(tt.day), loc); got != tt.want {
			t.Fatalf("day %d: got %v, want %v", tt.day, got, tt.want)
		}
	}
	assert.False(t, gate.Selectable(v, civil.Date{Year: 2025, Month: time.March, Day: 10}, loc))
}

func TestPastDaysNeverSelectable(t *testing.T) {
	prober := &stubProber{days: []int{3, 10, 20}}
	gate := NewGate(prober, nil, nil).WithClock(fixedClock(time.Date(2025, time.February, 10, 12, 0, 0, 0, time.UTC)))
	v := readyFebruary(t, gate)

	assert.False(t, gate.Selectable(v, feb2025.Date(3), time.UTC))
	assert.True(t, gate.Selectable(v, feb2025.Date(10), time.UTC), "today is selectable")
	assert.True(t, gate.Selectable(v, feb2025.Date(20), time.UTC))
}

func TestTodayUsesSessionTimezone(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	prober := &stubProber{days: []int{9}}
	// 2025-02-09 20:00 UTC is already 2025-02-10 in Tokyo.
	gate := NewGate(prober, nil, nil).WithClock(fixedClock(time.Date(2025, time.February, 9, 20, 0, 0, 0, time.UTC)))
	v := readyFebruary(t, gate)

	assert.True(t, gate.Selectable(v, feb2025.Date(9), time.UTC))
	assert.False(t, gate.Selectable(v, feb2025.Date(9), tokyo))
}

func TestLoadingBlocksSelection(t *testing.T) {
	gate := NewGate(&stubProber{days: []int{10}}, nil, nil).WithClock(fixedClock(time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)))
	v := readyFebruary(t, gate)
	require.True(t, gate.Selectable(v, feb2025.Date(10), time.UTC))

	v.Begin(feb2025)
	assert.True(t, v.Loading())
	assert.Empty(t, v.Bookable, "navigation clears the previous set")
	assert.False(t, gate.Selectable(v, feb2025.Date(10), time.UTC))
	for _, d := range gate.Grid(v, time.UTC) {
		assert.False(t, d.Selectable, "day %s selectable while loading", d.Date)
	}
}

func TestStaleProbeDiscarded(t *testing.T) {
	reg := prometheus.NewRegistry()
	gate := NewGate(&stubProber{}, metrics.NewFunnelMetrics(reg), nil)

	var v View
	febTicket := v.Begin(feb2025)
	march := feb2025.Next()
	marchTicket := v.Begin(march)

	err := gate.Publish(&v, febTicket, availability.NewBookableSet(feb2025, 10))
	var stale *StaleProbeError
	require.True(t, errors.As(err, &stale))
	assert.Equal(t, febTicket, stale.Ticket)
	assert.Equal(t, marchTicket, stale.Current)
	assert.True(t, v.Loading(), "late result must not touch the newer month")
	assert.Equal(t, march, v.Month)

	require.NoError(t, gate.Publish(&v, marchTicket, availability.NewBookableSet(march, 4)))
	assert.Equal(t, []int{4}, v.Bookable)

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() == "booking_calendar_stale_probes_total" {
			found = true
			assert.Equal(t, 1.0, mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}

func TestRepublishSameMonthReplaces(t *testing.T) {
	var v View
	first := v.Begin(feb2025)
	require.NoError(t, v.Publish(first, availability.NewBookableSet(feb2025, 1, 2, 3)))

	second := v.Begin(feb2025)
	assert.Greater(t, second.Generation, first.Generation)
	require.NoError(t, v.Publish(second, availability.NewBookableSet(feb2025, 7)))
	assert.Equal(t, []int{7}, v.Bookable)

	err := v.Publish(second, availability.NewBookableSet(feb2025, 9))
	require.Error(t, err, "a ticket settles at most once")
	assert.Equal(t, []int{7}, v.Bookable)
}

func TestPublishRejectsMismatchedSet(t *testing.T) {
	var v View
	ticket := v.Begin(feb2025)
	err := v.Publish(ticket, availability.NewBookableSet(feb2025.Next(), 1))
	require.Error(t, err)
	assert.True(t, v.Loading())
}

func TestGridFlags(t *testing.T) {
	gate := NewGate(&stubProber{days: []int{2, 20}}, nil, nil).WithClock(fixedClock(time.Date(2025, time.February, 14, 8, 0, 0, 0, time.UTC)))
	v := readyFebruary(t, gate)

	grid := gate.Grid(v, time.UTC)
	require.Len(t, grid, 28)
	assert.Equal(t, Day{Date: feb2025.Date(2), Past: true, Bookable: true, Selectable: false}, grid[1])
	assert.Equal(t, Day{Date: feb2025.Date(14), Past: false, Bookable: false, Selectable: false}, grid[13])
	assert.Equal(t, Day{Date: feb2025.Date(20), Past: false, Bookable: true, Selectable: true}, grid[19])
}

func TestProbeWithoutProber(t *testing.T) {
	gate := NewGate(nil, nil, nil)
	var v View
	_, err := gate.Probe(context.Background(), v.Begin(feb2025), "x", time.UTC)
	require.Error(t, err)
}

func TestFailLeavesMonthIdle(t *testing.T) {
	var v View
	stale := v.Begin(feb2025)
	current := v.Begin(feb2025)

	require.Error(t, v.Fail(stale))
	assert.True(t, v.Loading())

	require.NoError(t, v.Fail(current))
	assert.Equal(t, StatusIdle, v.Status)
	assert.Empty(t, v.Bookable)
	require.Error(t, v.Publish(current, availability.NewBookableSet(feb2025, 1)), "a failed ticket cannot publish later")
}
