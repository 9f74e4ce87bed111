package scheduling

import (
	"errors"
	"fmt"
)

// ErrNotFound signals that the referenced appointment id does not exist.
var ErrNotFound = errors.New("appointment not found")

// ErrOverlap signals that a booking conflicts with an existing non-cancelled
// appointment for the same doctor. It always maps to HTTP 409 at the boundary.
var ErrOverlap = errors.New("appointment overlaps an existing booking")

// ErrLocked signals that another booking for the same doctor is in flight
// and the lock could not be acquired in time.
var ErrLocked = errors.New("doctor schedule is locked by another booking")

// ValidationError reports a business-rule or input failure with a
// machine-readable reason code for localized user messages.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Code + ": " + e.Message
	}
	return e.Code
}

func validationf(code, format string, args ...interface{}) error {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}
