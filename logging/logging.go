// Package logging builds the framework's zap logger and decorates it with the
// execution record of the request being served.
package logging

import (
	"context"
	"sync/atomic"

	"github.com/aura-studio/funcframe/execution"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var global atomic.Pointer[zap.Logger]

func init() {
	global.Store(zap.NewNop())
}

// New builds a JSON production logger, or a console development logger when
// debug is set.
func New(debug bool) (*zap.Logger, error) {
	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "severity"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	return cfg.Build()
}

// SetDefault replaces the logger FromContext falls back to.
func SetDefault(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	global.Store(l)
}

func Default() *zap.Logger { return global.Load() }

// FromContext returns base, or the default logger when base is nil, with the
// execution id and trace fields of the record bound to ctx.
func FromContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if base == nil {
		base = Default()
	}
	rec, ok := execution.FromContext(ctx)
	if !ok {
		return base
	}
	return base.With(Fields(rec)...)
}

// Fields renders rec as log fields. Empty trace ids are left out.
func Fields(rec *execution.Record) []zap.Field {
	fields := []zap.Field{zap.String("execution_id", rec.ExecutionID)}
	if rec.TraceID != "" {
		fields = append(fields, zap.String("trace_id", rec.TraceID))
	}
	if rec.SpanID != "" {
		fields = append(fields, zap.String("span_id", rec.SpanID))
	}
	return fields
}
