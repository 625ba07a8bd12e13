package booking

import (
	"errors"
	"fmt"
)

// ErrMissingExperience is returned when no experience reference is supplied.
var ErrMissingExperience = errors.New("booking: experience reference is required")

// Draft fields reported by ValidationError.
const (
	FieldDate         = "date"
	FieldParticipants = "participants"
	FieldStructure    = "structure"
)

// ValidationError reports a draft that cannot be submitted. It never reaches the network.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("booking: invalid draft: %s %s", e.Field, e.Reason)
}

// NetworkError wraps a failed or rejected intent request. The draft is left intact.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("booking: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

var errEmptyClientSecret = errors.New("response carried no client secret")
