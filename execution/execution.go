// Package execution carries the per-request execution record: execution id,
// trace and span ids, and the cancellation token. The record travels in the
// request's context.Context, so every goroutine started from the request sees
// the same record and no two requests can see each other's.
package execution

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const (
	HeaderExecutionID = "Function-Execution-Id"
	HeaderCloudTrace  = "X-Cloud-Trace-Context"
	HeaderTraceParent = "Traceparent"
)

type contextKey string

const (
	recordKey  = contextKey("execution-record")
	rawBodyKey = contextKey("raw-body")
)

// Record identifies one invocation. It is built once per request and not
// modified afterwards.
type Record struct {
	ExecutionID string
	TraceID     string
	SpanID      string
	Token       *Token
}

// NewRecord reads the execution id and trace context from h. A missing
// execution id is generated.
func NewRecord(h http.Header, token *Token) *Record {
	rec := &Record{
		ExecutionID: h.Get(HeaderExecutionID),
		Token:       token,
	}
	if rec.ExecutionID == "" {
		rec.ExecutionID = uuid.NewString()
	}
	rec.TraceID, rec.SpanID = parseTrace(h)
	return rec
}

// parseTrace understands "TRACE_ID/SPAN_ID;o=1" and W3C traceparent
// "00-TRACE_ID-SPAN_ID-FLAGS". The cloud header wins when both are sent.
func parseTrace(h http.Header) (traceID, spanID string) {
	if v := h.Get(HeaderCloudTrace); v != "" {
		traceID, rest, _ := strings.Cut(v, "/")
		spanID, _, _ = strings.Cut(rest, ";")
		return traceID, spanID
	}
	if v := h.Get(HeaderTraceParent); v != "" {
		parts := strings.Split(v, "-")
		if len(parts) == 4 && len(parts[1]) == 32 && len(parts[2]) == 16 {
			return parts[1], parts[2]
		}
	}
	return "", ""
}

// Bind returns a copy of ctx carrying rec.
func Bind(ctx context.Context, rec *Record) context.Context {
	return context.WithValue(ctx, recordKey, rec)
}

// FromContext returns the record bound to ctx, if any.
func FromContext(ctx context.Context) (*Record, bool) {
	rec, ok := ctx.Value(recordKey).(*Record)
	return rec, ok && rec != nil
}

// TokenFromContext is a shortcut for handlers that only need cancellation.
func TokenFromContext(ctx context.Context) *Token {
	if rec, ok := FromContext(ctx); ok {
		return rec.Token
	}
	return nil
}

func WithRawBody(ctx context.Context, body []byte) context.Context {
	return context.WithValue(ctx, rawBodyKey, body)
}

// RawBody returns the request body exactly as received.
func RawBody(ctx context.Context) []byte {
	b, _ := ctx.Value(rawBodyKey).([]byte)
	return b
}
