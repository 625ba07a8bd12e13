package funnel

import (
	"fmt"
	"strings"
	"time"

	"github.com/bearound/booking-funnel/internal/booking"
	"github.com/bearound/booking-funnel/internal/calendar"
)

// ErrorKind groups errors by how the user can recover from them.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNetwork    ErrorKind = "network"
	KindPayment    ErrorKind = "payment"
	KindState      ErrorKind = "state"
	KindNotFound   ErrorKind = "not_found"
	KindInternal   ErrorKind = "internal"
)

// Notice is the last user-facing error of a session.
type Notice struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Outcome is the terminal record of a session.
type Outcome struct {
	Succeeded bool      `json:"succeeded"`
	Message   string    `json:"message"`
	IntentID  string    `json:"intentId,omitempty"`
	At        time.Time `json:"at"`
}

// Confirmation tracks payment attempts against the current intent.
type Confirmation struct {
	InFlight  bool       `json:"inFlight"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	Attempts  int        `json:"attempts"`
}

// Session is the complete, serializable state of one booking funnel.
type Session struct {
	ID            string          `json:"id"`
	ExperienceRef string          `json:"experience"`
	Timezone      string          `json:"timezone"`
	Stage         Stage           `json:"stage"`
	Draft         booking.Draft   `json:"draft"`
	Calendar      calendar.View   `json:"calendar"`
	Intent        *booking.Intent `json:"intent,omitempty"`
	Confirmation  Confirmation    `json:"confirmation"`
	Notice        *Notice         `json:"notice,omitempty"`
	Outcome       *Outcome        `json:"outcome,omitempty"`
	SubmittedAt   *time.Time      `json:"submittedAt,omitempty"`
	Revision      uint64          `json:"revision"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Location resolves the session timezone.
func (s *Session) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTimezone, s.Timezone)
	}
	return loc, nil
}

// Validate rejects stage/field combinations that must never be stored.
func (s *Session) Validate() error {
	invalid := func(reason string) error {
		return fmt.Errorf("%w: %s: %s", ErrInvalidSession, s.Stage, reason)
	}
	if strings.TrimSpace(s.ID) == "" {
		return invalid("missing id")
	}
	if strings.TrimSpace(s.ExperienceRef) == "" {
		return invalid("missing experience")
	}
	if !s.Stage.Valid() {
		return invalid("unknown stage")
	}
	if s.Confirmation.InFlight && s.Stage != StageConfirmingPayment {
		return invalid("confirmation in flight outside confirming_payment")
	}
	if s.SubmittedAt != nil && s.Stage != StageAwaitingIntent {
		return invalid("submission mark outside awaiting_intent")
	}
	switch s.Stage {
	case StageSelectingDate:
		if s.Intent != nil {
			return invalid("intent present")
		}
		if s.Outcome != nil {
			return invalid("outcome present")
		}
	case StageAwaitingIntent:
		if s.Intent != nil {
			return invalid("intent present")
		}
		if s.Outcome != nil {
			return invalid("outcome present")
		}
		if err := s.Draft.Validate(); err != nil {
			return invalid(err.Error())
		}
	case StageConfirmingPayment:
		if !s.Intent.LiveFor(s.Draft) {
			return invalid("no live intent for the draft")
		}
		if s.Outcome != nil {
			return invalid("outcome present")
		}
	case StageSucceeded:
		if s.Intent == nil {
			return invalid("missing intent")
		}
		if s.Outcome == nil || !s.Outcome.Succeeded {
			return invalid("missing successful outcome")
		}
	case StageFailed:
		if s.Outcome == nil || s.Outcome.Succeeded {
			return invalid("missing failed outcome")
		}
	}
	return nil
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.Draft.Date != nil {
		day := *s.Draft.Date
		out.Draft.Date = &day
	}
	if s.Calendar.Bookable != nil {
		out.Calendar.Bookable = append([]int(nil), s.Calendar.Bookable...)
	}
	if s.Intent != nil {
		intent := *s.Intent
		out.Intent = &intent
	}
	if s.Notice != nil {
		notice := *s.Notice
		out.Notice = &notice
	}
	if s.Outcome != nil {
		outcome := *s.Outcome
		out.Outcome = &outcome
	}
	if s.SubmittedAt != nil {
		at := *s.SubmittedAt
		out.SubmittedAt = &at
	}
	if s.Confirmation.StartedAt != nil {
		at := *s.Confirmation.StartedAt
		out.Confirmation.StartedAt = &at
	}
	return &out
}
