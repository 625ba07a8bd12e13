package funnel

import "errors"

var (
	ErrSessionNotFound    = errors.New("funnel: session not found")
	ErrSessionExists      = errors.New("funnel: session already exists")
	ErrInvalidTransition  = errors.New("funnel: transition not allowed from the current stage")
	ErrDraftLocked        = errors.New("funnel: draft cannot change in the current stage")
	ErrCalendarLocked     = errors.New("funnel: month navigation is disabled in the current stage")
	ErrSubmissionInFlight = errors.New("funnel: an intent request is already in flight")
	ErrStaleIntent        = errors.New("funnel: payment intent no longer matches the draft")
	ErrDateNotSelectable  = errors.New("funnel: date is not selectable")
	ErrInvalidTimezone    = errors.New("funnel: invalid timezone")
	ErrInvalidMonth       = errors.New("funnel: month is required")
	ErrUnknownStructure   = errors.New("funnel: unknown structure")
	ErrInvalidSession     = errors.New("funnel: invalid session state")
)
