package calendar

import (
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/bearound/booking-funnel/internal/availability"
)

// Status is the lifecycle of the displayed month's bookable set.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
)

// Ticket tags one probe with the month and generation it was started for.
type Ticket struct {
	Month      availability.Month `json:"month"`
	Generation uint64             `json:"generation"`
}

// StaleProbeError is returned when a probe result no longer matches the displayed month.
type StaleProbeError struct {
	Ticket  Ticket
	Current Ticket
}

func (e *StaleProbeError) Error() string {
	return fmt.Sprintf("calendar: stale probe for %s (generation %d), displaying %s (generation %d)",
		e.Ticket.Month, e.Ticket.Generation, e.Current.Month, e.Current.Generation)
}

// View is the serializable date-picker state for one session.
type View struct {
	Month      availability.Month `json:"month"`
	Generation uint64             `json:"generation"`
	Status     Status             `json:"status"`
	Bookable   []int              `json:"bookable"`
}

// Begin switches the view to month, drops the previous set and returns the ticket for the new probe.
func (v *View) Begin(month availability.Month) Ticket {
	v.Month = month
	v.Generation++
	v.Status = StatusLoading
	v.Bookable = nil
	return v.Ticket()
}

// Ticket returns the tag of the most recent probe.
func (v *View) Ticket() Ticket {
	return Ticket{Month: v.Month, Generation: v.Generation}
}

// Publish swaps in set when t is still current. The view is left untouched otherwise.
func (v *View) Publish(t Ticket, set availability.BookableSet) error {
	current := v.Ticket()
	if t != current || v.Status != StatusLoading || set.Month != t.Month {
		return &StaleProbeError{Ticket: t, Current: current}
	}
	days := make([]int, len(set.Days))
	copy(days, set.Days)
	v.Bookable = days
	v.Status = StatusReady
	return nil
}

// Fail abandons the probe tagged t and leaves the month idle with nothing selectable.
func (v *View) Fail(t Ticket) error {
	current := v.Ticket()
	if t != current || v.Status != StatusLoading {
		return &StaleProbeError{Ticket: t, Current: current}
	}
	v.Bookable = nil
	v.Status = StatusIdle
	return nil
}

// Loading reports whether a probe for the displayed month is in flight.
func (v View) Loading() bool { return v.Status == StatusLoading }

// Ready reports whether the displayed month's bookable set is complete.
func (v View) Ready() bool { return v.Status == StatusReady }

// Set returns the published bookable set; it is empty unless the view is ready.
func (v View) Set() availability.BookableSet {
	if !v.Ready() {
		return availability.BookableSet{Month: v.Month}
	}
	return availability.NewBookableSet(v.Month, v.Bookable...)
}

// Shows reports whether day belongs to the displayed month.
func (v View) Shows(day civil.Date) bool {
	return !v.Month.IsZero() && v.Month.Contains(day)
}
