package catalog

import (
	"errors"
	"fmt"
)

// Exit codes recorded for catalog failures.
const (
	ExitValidation     = 100
	ExitUnauthorized   = 101
	ExitNotInitialized = 104
)

var (
	// ErrValidation is wrapped by every ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized means the sender is not the controller recorded at
	// deployment.
	ErrUnauthorized = unauthorizedError{}

	// ErrNotInitialized means a child received a request before the message
	// that initializes it.
	ErrNotInitialized = notInitializedError{}
)

type unauthorizedError struct{}

func (unauthorizedError) Error() string { return "unauthorized" }
func (unauthorizedError) ExitCode() int { return ExitUnauthorized }

type notInitializedError struct{}

func (notInitializedError) Error() string { return "not initialized" }
func (notInitializedError) ExitCode() int { return ExitNotInitialized }

// ValidationError reports a rejected request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// ExitCode implements core.ExitCoder.
func (e *ValidationError) ExitCode() int { return ExitValidation }
