package availability

import (
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonthDays(t *testing.T) {
	tests := []struct {
		month Month
		want  int
	}{
		{Month{2025, time.February}, 28},
		{Month{2024, time.February}, 29},
		{Month{2025, time.April}, 30},
		{Month{2025, time.December}, 31},
	}
	for _, tt := range tests {
		if got := tt.month.Days(); got != tt.want {
			t.Fatalf("%s: got %d days, want %d", tt.month, got, tt.want)
		}
	}
}

func TestMonthNavigation(t *testing.T) {
	dec := Month{Year: 2024, Month: time.December}
	assert.Equal(t, Month{Year: 2025, Month: time.January}, dec.Next())
	assert.Equal(t, dec, dec.Next().Prev())
}

func TestParseMonth(t *testing.T) {
	m, err := ParseMonth("2025-02")
	require.NoError(t, err)
	assert.Equal(t, Month{Year: 2025, Month: time.February}, m)

	_, err = ParseMonth("2025-13")
	require.Error(t, err)
	_, err = ParseMonth("february")
	require.Error(t, err)
}

func TestMonthJSON(t *testing.T) {
	type wrapper struct {
		Month Month `json:"month"`
	}
	raw, err := json.Marshal(wrapper{Month: Month{Year: 2025, Month: time.March}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"month":"2025-03"}`, string(raw))

	var out wrapper
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, Month{Year: 2025, Month: time.March}, out.Month)
}

func TestDayWindowAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Rome")
	require.NoError(t, err)

	from, to := DayWindow(civil.Date{Year: 2025, Month: time.March, Day: 30}, loc)
	assert.Equal(t, "2025-03-30T00:00:00+01:00", from.Format(time.RFC3339))
	assert.Equal(t, "2025-03-30T23:59:59.999+02:00", to.Format("2006-01-02T15:04:05.000Z07:00"))
}

func TestBookableSet(t *testing.T) {
	feb := Month{Year: 2025, Month: time.February}
	set := NewBookableSet(feb, 15, 10, 10, 0, 29, 31)
	assert.Equal(t, []int{10, 15}, set.Days)
	assert.True(t, set.Has(feb.Date(10)))
	assert.False(t, set.Has(feb.Date(11)))
	assert.False(t, set.Has(civil.Date{Year: 2025, Month: time.March, Day: 10}))
}
