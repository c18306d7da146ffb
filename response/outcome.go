package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Outcome is how an invocation concluded. It is one of Responded, Errored or
// TimedOut.
type Outcome interface {
	outcome()
}

// Responded carries a successful result. When the handler wrote to the
// response itself its output is sent and these fields are ignored.
type Responded struct {
	Status int
	Header http.Header
	Body   []byte
}

// Errored carries the failure that ended the invocation.
type Errored struct {
	Cause error
}

// TimedOut is produced when the deadline fires first.
type TimedOut struct{}

func (Responded) outcome() {}
func (Errored) outcome() {}
func (TimedOut) outcome() {}

type statusCoder interface {
	StatusCode() int
}

// StatusFor maps an error to the status the client sees. Errors that carry
// their own status keep it; everything else is a 500.
func StatusFor(err error) int {
	var sc statusCoder
	if errors.As(err, &sc) {
		if code := sc.StatusCode(); code >= 400 && code < 600 {
			return code
		}
	}
	return http.StatusInternalServerError
}

// StatusOf returns the status an outcome produces.
func StatusOf(o Outcome) int {
	switch o := o.(type) {
	case Responded:
		if o.Status == 0 {
			return http.StatusOK
		}
		return o.Status
	case Errored:
		return StatusFor(o.Cause)
	case TimedOut:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// Label names an outcome for logs and metrics.
func Label(o Outcome) string {
	switch o.(type) {
	case Responded:
		return "responded"
	case Errored:
		return "errored"
	case TimedOut:
		return "timed_out"
	}
	return "unknown"
}

// FromResult shapes the value an event handler completed with. No value is a
// 204, text-like values are sent as text and anything else is JSON.
func FromResult(result any) Outcome {
	text := func(s string) Outcome {
		return Responded{
			Status: http.StatusOK,
			Header: http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
			Body:   []byte(s),
		}
	}

	switch v := result.(type) {
	case nil:
		return Responded{Status: http.StatusNoContent}
	case json.RawMessage:
		return Responded{
			Status: http.StatusOK,
			Header: http.Header{"Content-Type": {"application/json"}},
			Body:   v,
		}
	case string:
		return text(v)
	case []byte:
		return text(string(v))
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, bool:
		return text(fmt.Sprint(v))
	}

	b, err := json.Marshal(result)
	if err != nil {
		return Errored{Cause: fmt.Errorf("response: encode result: %w", err)}
	}
	return Responded{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": {"application/json"}},
		Body:   b,
	}
}
