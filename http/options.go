package http

import (
	"time"

	"github.com/aura-studio/funcframe/function"
	"github.com/aura-studio/funcframe/metrics"
	"github.com/mohae/deepcopy"
	"go.uber.org/zap"
)

type Option interface {
	Apply(o *Options)
}

type HttpOption func(*Options)

func (f HttpOption) Apply(o *Options) { f(o) }

type Options struct {
	// Http Options
	Address       string
	Target        string
	SignatureType string
	Timeout       time.Duration
	// IgnoredRoutes is nil when unset; an empty string disables filtering.
	IgnoredRoutes *string
	MaxBodyBytes  int64
	DebugMode     bool

	// Set directly, never deep-copied.
	Function *function.Function
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

const DefaultMaxBodyBytes = 1024 << 20

var defaultOptions = &Options{
	Address:       ":8080",
	Target:        "",
	SignatureType: string(function.SignatureHTTP),
	Timeout:       0,
	IgnoredRoutes: nil,
	MaxBodyBytes:  DefaultMaxBodyBytes,
	DebugMode:     false,
}

func NewOptions(opts ...Option) *Options {
	options := deepcopy.Copy(defaultOptions).(*Options)
	options.init(opts...)
	return options
}

func (o *Options) init(opts ...Option) {
	for _, opt := range opts {
		if opt != nil {
			opt.Apply(o)
		}
	}
}

// -------------- Http Options ----------------
func WithAddress(addr string) Option {
	return HttpOption(func(o *Options) {
		o.Address = addr
	})
}

func WithTarget(name string) Option {
	return HttpOption(func(o *Options) {
		o.Target = name
	})
}

func WithSignatureType(sig string) Option {
	return HttpOption(func(o *Options) {
		o.SignatureType = sig
	})
}

// WithTimeout sets the per-request deadline. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return HttpOption(func(o *Options) {
		o.Timeout = d
	})
}

// WithIgnoredRoutes sets the route expression answered with 404 without
// reaching the function, e.g. "/favicon.ico|/robots.txt" or "/users/:id/*".
// An empty expression disables filtering, including the http defaults.
func WithIgnoredRoutes(expr string) Option {
	return HttpOption(func(o *Options) {
		o.IgnoredRoutes = &expr
	})
}

func WithMaxBodyBytes(n int64) Option {
	return HttpOption(func(o *Options) {
		o.MaxBodyBytes = n
	})
}

func WithDebugMode() Option {
	return HttpOption(func(o *Options) {
		o.DebugMode = true
	})
}

// WithFunction serves fn instead of looking Target up in the registry. The
// signature type follows fn.
func WithFunction(fn *function.Function) Option {
	return HttpOption(func(o *Options) {
		o.Function = fn
		if fn != nil {
			o.SignatureType = string(fn.Signature)
			o.Target = fn.Name
		}
	})
}

func WithLogger(l *zap.Logger) Option {
	return HttpOption(func(o *Options) {
		o.Logger = l
	})
}

func WithMetrics(m *metrics.Metrics) Option {
	return HttpOption(func(o *Options) {
		o.Metrics = m
	})
}
