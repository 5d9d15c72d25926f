package services

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks bad input; wrapped by *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound means the session id does not resolve.
	ErrNotFound = errors.New("study session not found")
	// ErrForbidden means the session belongs to another user.
	ErrForbidden = errors.New("study session belongs to another user")
	// ErrInvalidState means the session status does not allow the requested transition.
	ErrInvalidState = errors.New("transition not allowed in current session state")
	// ErrBusy means another transition on the same session is still running.
	ErrBusy = errors.New("study session is being updated, retry shortly")
)

// ValidationError describes which input was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func invalidState(action, status string) error {
	return fmt.Errorf("%w: cannot %s a %s session", ErrInvalidState, action, status)
}
