package availability

import "errors"

var (
	// ErrProbeAborted is returned when a probe was cancelled before every day settled.
	ErrProbeAborted = errors.New("availability: probe aborted before completion")

	// ErrMissingExperience is returned when no experience reference is supplied.
	ErrMissingExperience = errors.New("availability: experience reference is required")
)
