package apperrors

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Process exit codes used by the copse binary.
const (
	ExitSuccess       = 0   // Run finished with Success, or command succeeded.
	ExitErrorGeneric  = 1   // Generic error, or a run finished with Failure.
	ExitErrorTimeout  = 2   // A wait or a run exceeded its limit.
	ExitErrorConfig   = 4   // copse.yml or flags are invalid.
	ExitErrorCanceled = 130 // Interrupted (e.g., SIGINT).
)

// ConfigError represents a user configuration error, such as an unreadable
// copse.yml or an invalid flag value.
type ConfigError struct {
	// Message explains the specific configuration error.
	Message string
}

// Error returns the error message for a ConfigError.
func (e ConfigError) Error() string { return e.Message }

// NewConfigError creates a new ConfigError with a formatted message.
func NewConfigError(format string, a ...any) error {
	return ConfigError{Message: fmt.Sprintf(format, a...)}
}

// DispatchError records that work could not be handed to a child.
// The coordinator treats the slot as failed and keeps the cause for logs.
type DispatchError struct {
	Coordinator string
	Slot        int
	Cause       error
}

func (e DispatchError) Error() string {
	return fmt.Sprintf("dispatch to %s slot %d failed: %v", e.Coordinator, e.Slot, e.Cause)
}

// Unwrap returns the original wrapped error.
func (e DispatchError) Unwrap() error { return e.Cause }

// TimeoutError represents an operation that exceeded its limit. It captures
// the operation name and the duration limit that was exceeded.
type TimeoutError struct {
	// Operation is the name of the operation that timed out.
	Operation string
	// Limit is the duration after which the operation was considered timed out.
	Limit time.Duration
}

// Error returns a formatted message describing the timeout.
func (e TimeoutError) Error() string {
	return fmt.Sprintf("operation %q timed out after %s", e.Operation, e.Limit)
}

// ValidationError represents an input validation failure. It identifies which
// field failed validation and provides a human-readable explanation.
type ValidationError struct {
	// Field is the name of the field that failed validation.
	Field string
	// Message explains the validation failure.
	Message string
}

// Error returns a formatted message describing the validation failure.
func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for %q: %s", e.Field, e.Message)
}

// WrapError wraps an error with additional context using fmt.Errorf and %w.
// Returns nil if err is nil.
func WrapError(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// IsContextError checks if the error is a context cancellation or deadline exceeded error.
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ExitCode maps an error to the process exit code the CLI should return.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var (
		configErr     ConfigError
		validationErr ValidationError
		timeoutErr    TimeoutError
	)
	switch {
	case errors.As(err, &configErr), errors.As(err, &validationErr):
		return ExitErrorConfig
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		return ExitErrorTimeout
	case errors.Is(err, context.Canceled):
		return ExitErrorCanceled
	default:
		return ExitErrorGeneric
	}
}
