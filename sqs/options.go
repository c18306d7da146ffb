package sqs

import (
	"net/http"

	"github.com/mohae/deepcopy"
	"go.uber.org/zap"
)

type Option interface {
	Apply(o *Options)
}

type OptionFunc func(*Options)

func (f OptionFunc) Apply(o *Options) { f(o) }

type Options struct {
	QueueURL        string
	Path            string
	StaticLinkMap   map[string]string
	PrefixLinkMap   map[string]string
	WaitTimeSeconds int32
	MaxMessages     int32
	// RawMode delivers message bodies as they are instead of wrapping them
	// in a background event. It is switched on for http functions.
	RawMode     bool
	SuspendMode bool
	PartialMode bool
	ReplyMode   bool
	DebugMode   bool

	// Set directly, never deep-copied.
	SQSClient SQSClient
	Handler   http.Handler
	Logger    *zap.Logger
}

var defaultOptions = &Options{
	QueueURL:        "",
	Path:            "/",
	StaticLinkMap:   map[string]string{},
	PrefixLinkMap:   map[string]string{},
	WaitTimeSeconds: 20,
	MaxMessages:     10,
	RawMode:         false,
	SuspendMode:     false,
	PartialMode:     false,
	ReplyMode:       false,
	DebugMode:       false,
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

// -------------- Sqs Options ----------------
func WithSQSClient(client SQSClient) Option {
	return OptionFunc(func(o *Options) {
		o.SQSClient = client
	})
}

// WithHandler delivers messages to h instead of a function pipeline built
// from the http options.
func WithHandler(h http.Handler) Option {
	return OptionFunc(func(o *Options) {
		o.Handler = h
	})
}

func WithLogger(l *zap.Logger) Option {
	return OptionFunc(func(o *Options) {
		o.Logger = l
	})
}

func WithQueueURL(url string) Option {
	return OptionFunc(func(o *Options) {
		o.QueueURL = url
	})
}

// WithPath sets the request path for messages without a Path attribute.
func WithPath(path string) Option {
	return OptionFunc(func(o *Options) {
		o.Path = path
	})
}

func WithWaitTimeSeconds(seconds int32) Option {
	return OptionFunc(func(o *Options) {
		o.WaitTimeSeconds = seconds
	})
}

func WithMaxMessages(n int32) Option {
	return OptionFunc(func(o *Options) {
		o.MaxMessages = n
	})
}

func WithRawMode(raw bool) Option {
	return OptionFunc(func(o *Options) {
		o.RawMode = raw
	})
}

// WithSuspendMode stops a batch at the first failed message and fails the
// whole invocation.
func WithSuspendMode(suspend bool) Option {
	return OptionFunc(func(o *Options) {
		o.SuspendMode = suspend
	})
}

// WithPartialMode reports failed messages individually so only they are
// redelivered.
func WithPartialMode(partial bool) Option {
	return OptionFunc(func(o *Options) {
		o.PartialMode = partial
	})
}

// WithReplyMode sends the function response to the queue named by a
// message's ReplyTo attribute.
func WithReplyMode(reply bool) Option {
	return OptionFunc(func(o *Options) {
		o.ReplyMode = reply
	})
}

func WithDebugMode(debug bool) Option {
	return OptionFunc(func(o *Options) {
		o.DebugMode = debug
	})
}

func WithStaticLink(srcPath, dstPath string) Option {
	return OptionFunc(func(o *Options) {
		o.StaticLinkMap[srcPath] = dstPath
	})
}

func WithPrefixLink(srcPrefix string, dstPrefix string) Option {
	return OptionFunc(func(o *Options) {
		o.PrefixLinkMap[srcPrefix] = dstPrefix
	})
}
