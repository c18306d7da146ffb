package function

import (
	"fmt"
	"net/http"
)

// HandlerError wraps an error returned, passed to a callback, or panicked by
// user code. The cause is logged but never sent to the client.
type HandlerError struct {
	Cause error
	// Stack is set when the error comes from a recovered panic.
	Stack []byte
}

func (e *HandlerError) Error() string { return "function: handler failed: " + e.Cause.Error() }

func (e *HandlerError) Unwrap() error { return e.Cause }

func (e *HandlerError) StatusCode() int { return http.StatusInternalServerError }

// Panicked reports whether the handler panicked.
func (e *HandlerError) Panicked() bool { return e.Stack != nil }

// ConfigurationError is raised at startup for settings the pipeline cannot
// serve with. It is fatal.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("function: invalid configuration %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func configErr(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Err: fmt.Errorf(format, args...)}
}
