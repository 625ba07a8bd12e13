package availability

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

const monthLayout = "2006-01"

// Month identifies a calendar month independent of any timezone.
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf returns the month containing t, as seen in t's location.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// MonthOfDate returns the month containing d.
func MonthOfDate(d civil.Date) Month {
	return Month{Year: d.Year, Month: d.Month}
}

// ParseMonth parses the YYYY-MM form.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse(monthLayout, s)
	if err != nil {
		return Month{}, fmt.Errorf("availability: invalid month %q: %w", s, err)
	}
	return MonthOf(t), nil
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

func (m Month) IsZero() bool { return m.Year == 0 && m.Month == 0 }

// Days returns the number of days in the month.
func (m Month) Days() int {
	return time.Date(m.Year, m.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Date returns the given day of the month.
func (m Month) Date(day int) civil.Date {
	return civil.Date{Year: m.Year, Month: m.Month, Day: day}
}

// Contains reports whether d falls in the month.
func (m Month) Contains(d civil.Date) bool {
	return d.Year == m.Year && d.Month == m.Month
}

func (m Month) Next() Month {
	t := time.Date(m.Year, m.Month+1, 1, 0, 0, 0, 0, time.UTC)
	return MonthOf(t)
}

func (m Month) Prev() Month {
	t := time.Date(m.Year, m.Month-1, 1, 0, 0, 0, 0, time.UTC)
	return MonthOf(t)
}

func (m Month) MarshalText() ([]byte, error) {
	if m.IsZero() {
		return []byte{}, nil
	}
	return []byte(m.String()), nil
}

func (m *Month) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*m = Month{}
		return nil
	}
	parsed, err := ParseMonth(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// DayWindow returns the closed interval [00:00:00.000, 23:59:59.999] of d in loc.
func DayWindow(d civil.Date, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	from := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
	to := time.Date(d.Year, d.Month, d.Day, 23, 59, 59, int(999*time.Millisecond), loc)
	return from, to
}
