package event

import (
	"fmt"
	"net/http"
)

// MalformedEventError reports a body that matches no recognized event shape.
// It is a client error and is never retried.
type MalformedEventError struct {
	Reason string
	Err    error
}

func (e *MalformedEventError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed event: %s: %v", e.Reason, e.Err)
	}
	return "malformed event: " + e.Reason
}

func (e *MalformedEventError) Unwrap() error { return e.Err }

// StatusCode is the HTTP status the pipeline answers with.
func (e *MalformedEventError) StatusCode() int { return http.StatusBadRequest }

func malformed(err error, format string, args ...any) error {
	return &MalformedEventError{Reason: fmt.Sprintf(format, args...), Err: err}
}
