// Package apperrors defines structured error types shared by the copse
// command line and its coordinators, so that callers can tell configuration
// mistakes, validation failures, dispatch failures and timeouts apart and map
// each one to a process exit code.
//
// Error Wrapping Guidelines:
// Errors are wrapped with fmt.Errorf and %w. Types that carry a cause
// implement Unwrap so errors.Is and errors.As see through them.
package apperrors
