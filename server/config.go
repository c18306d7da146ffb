package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aura-studio/funcframe/dynamic"
	funchttp "github.com/aura-studio/funcframe/http"
	"github.com/aura-studio/funcframe/sqs"
	yaml "gopkg.in/yaml.v2"
)

// Modes select the transport requests arrive on.
const (
	ModeHTTP       = "http"
	ModeAPIGateway = "apigateway"
	ModeSQS        = "sqs"
	ModeSQSPoll    = "sqs-poll"
)

type yamlServerConfig struct {
	Mode           string `yaml:"mode"`
	MetricsAddress string `yaml:"metricsAddress"`
	HTTP           any    `yaml:"http"`
	SQS            any    `yaml:"sqs"`
	Dynamic        any    `yaml:"dynamic"`
}

type Option interface {
	Apply(*Options)
}

type Options struct {
	Mode           string
	MetricsAddress string
	Http           []funchttp.Option
	Sqs            []sqs.Option
	Dynamic        []dynamic.Option
}

type serveOptionFunc func(*Options)

func (f serveOptionFunc) Apply(o *Options) { f(o) }

func NewOptions(opts ...Option) *Options {
	o := &Options{Mode: ModeHTTP}
	for _, opt := range opts {
		if opt != nil {
			opt.Apply(o)
		}
	}
	return o
}

func WithMode(mode string) Option {
	return serveOptionFunc(func(o *Options) {
		o.Mode = mode
	})
}

// WithMetricsAddress serves Prometheus metrics on addr, separately from the
// function.
func WithMetricsAddress(addr string) Option {
	return serveOptionFunc(func(o *Options) {
		o.MetricsAddress = addr
	})
}

func WithHTTP(opts ...funchttp.Option) Option {
	return serveOptionFunc(func(o *Options) {
		o.Http = append(o.Http, opts...)
	})
}

func WithSQS(opts ...sqs.Option) Option {
	return serveOptionFunc(func(o *Options) {
		o.Sqs = append(o.Sqs, opts...)
	})
}

func WithDynamic(opts ...dynamic.Option) Option {
	return serveOptionFunc(func(o *Options) {
		o.Dynamic = append(o.Dynamic, opts...)
	})
}

type serveConfigOption struct {
	mode           string
	metricsAddress string
	httpOpt        funchttp.Option
	sqsOpt         sqs.Option
	dynOpt         dynamic.Option
}

func (o serveConfigOption) Apply(opts *Options) {
	if o.mode != "" {
		opts.Mode = o.mode
	}
	if o.metricsAddress != "" {
		opts.MetricsAddress = o.metricsAddress
	}
	if o.httpOpt != nil {
		opts.Http = append(opts.Http, o.httpOpt)
	}
	if o.sqsOpt != nil {
		opts.Sqs = append(opts.Sqs, o.sqsOpt)
	}
	if o.dynOpt != nil {
		opts.Dynamic = append(opts.Dynamic, o.dynOpt)
	}
}

// WithServeConfig parses a funcframe.yaml document: the top-level mode and
// metricsAddress, and the http, sqs and dynamic sections.
func WithServeConfig(yamlBytes []byte) Option {
	var cfg yamlServerConfig
	if err := yaml.Unmarshal(yamlBytes, &cfg); err != nil {
		panic(fmt.Errorf("server.WithServeConfig: %w", err))
	}

	opt := serveConfigOption{
		mode:           cfg.Mode,
		metricsAddress: cfg.MetricsAddress,
	}
	if cfg.HTTP != nil {
		opt.httpOpt = funchttp.WithConfig(yamlBytes)
	}
	if cfg.SQS != nil {
		opt.sqsOpt = sqs.WithConfig(yamlBytes)
	}
	if cfg.Dynamic != nil {
		opt.dynOpt = dynamic.WithConfig(yamlBytes)
	}
	return opt
}

// WithServeConfigFile loads a YAML file and applies it as ServeOption.
func WithServeConfigFile(path string) Option {
	b, err := os.ReadFile(path)
	if err != nil {
		panic(fmt.Errorf("server.WithServeConfigFile(%s): %w", path, err))
	}
	return WithServeConfig(b)
}

// ErrNoServeConfig is returned when no default config file exists.
var ErrNoServeConfig = errors.New("server: no config file found")

// DefaultServeConfigCandidates returns relative paths that will be checked (in order)
// when searching for a default server config.
func DefaultServeConfigCandidates() []string {
	return []string{
		"funcframe.yaml",
		"funcframe.yml",
		"server.yaml",
		"server.yml",
	}
}

// FindDefaultServeConfigFile searches for a server config file in a small set of
// well-known locations (CWD then executable directory).
func FindDefaultServeConfigFile() (string, error) {
	candidates := DefaultServeConfigCandidates()

	dirs := []string{"."}
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}

	for _, dir := range dirs {
		for _, rel := range candidates {
			p := rel
			if dir != "." {
				p = filepath.Join(dir, rel)
			}
			if st, err := os.Stat(p); err == nil && !st.IsDir() {
				return p, nil
			}
		}
	}

	return "", fmt.Errorf("%w (expected one of %v)", ErrNoServeConfig, candidates)
}
