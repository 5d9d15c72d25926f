package timer

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition means the action is not allowed from the current state.
	ErrInvalidTransition = errors.New("transition not allowed in current state")
	// ErrBusy means another transition request is still in flight.
	ErrBusy = errors.New("another request is in flight")
	// ErrForbidden means the session belongs to someone else.
	ErrForbidden = errors.New("session belongs to another user")
)

// ValidationError is returned for input rejected locally or by the server.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

// NetworkError wraps transport failures and unexpected server responses.
type NetworkError struct {
	Op     string
	Status int // HTTP status when a response arrived, 0 otherwise
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: server responded %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// NotFoundError means the server no longer knows the session.
type NotFoundError struct {
	SessionID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("study session %q not found", e.SessionID)
}
