package sqs

import (
	"fmt"
	"os"

	"github.com/aura-studio/funcframe/dynamic"
	funchttp "github.com/aura-studio/funcframe/http"
	yaml "gopkg.in/yaml.v2"
)

type yamlSQSConfig struct {
	QueueURL        string `yaml:"queueUrl"`
	Path            string `yaml:"path"`
	WaitTimeSeconds int32  `yaml:"waitTimeSeconds"`
	MaxMessages     int32  `yaml:"maxMessages"`
	Raw             bool   `yaml:"raw"`
	Debug           bool   `yaml:"debug"`
	Reply           bool   `yaml:"reply"`
	Suspend         bool   `yaml:"suspend"`
	Partial         bool   `yaml:"partial"`
	StaticLink      []struct {
		SrcPath string `yaml:"srcPath"`
		DstPath string `yaml:"dstPath"`
	} `yaml:"staticLink"`
	PrefixLink []struct {
		SrcPrefix string `yaml:"srcPrefix"`
		DstPrefix string `yaml:"dstPrefix"`
	} `yaml:"prefixLink"`
}

type yamlServeConfig struct {
	SQS     yamlSQSConfig `yaml:"sqs"`
	HTTP    any           `yaml:"http"`
	Dynamic any           `yaml:"dynamic"`
}

func optionFromSQSConfig(cfg yamlSQSConfig) Option {
	return OptionFunc(func(o *Options) {
		if cfg.QueueURL != "" {
			o.QueueURL = cfg.QueueURL
		}
		if cfg.Path != "" {
			o.Path = cfg.Path
		}
		if cfg.WaitTimeSeconds > 0 {
			o.WaitTimeSeconds = cfg.WaitTimeSeconds
		}
		if cfg.MaxMessages > 0 {
			o.MaxMessages = cfg.MaxMessages
		}
		o.RawMode = o.RawMode || cfg.Raw
		o.DebugMode = o.DebugMode || cfg.Debug
		o.ReplyMode = o.ReplyMode || cfg.Reply
		o.SuspendMode = o.SuspendMode || cfg.Suspend
		o.PartialMode = o.PartialMode || cfg.Partial

		if o.StaticLinkMap == nil {
			o.StaticLinkMap = make(map[string]string)
		}
		for _, link := range cfg.StaticLink {
			if link.SrcPath == "" || link.DstPath == "" {
				continue
			}
			o.StaticLinkMap[link.SrcPath] = link.DstPath
		}

		if o.PrefixLinkMap == nil {
			o.PrefixLinkMap = make(map[string]string)
		}
		for _, link := range cfg.PrefixLink {
			if link.SrcPrefix == "" || link.DstPrefix == "" {
				continue
			}
			o.PrefixLinkMap[link.SrcPrefix] = link.DstPrefix
		}
	})
}

func optionFromConfigBytes(b []byte) (Option, error) {
	var cfg yamlServeConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	return optionFromSQSConfig(cfg.SQS), nil
}

// WithConfig parses the sqs section of a funcframe.yaml document.
// It panics if the YAML is invalid.
func WithConfig(yamlBytes []byte) Option {
	opt, err := optionFromConfigBytes(yamlBytes)
	if err != nil {
		return OptionFunc(func(*Options) {
			panic(fmt.Errorf("sqs.WithConfig: %w", err))
		})
	}
	return opt
}

// WithConfigFile loads a YAML file and applies it to Options.
// It panics if the file cannot be read or YAML is invalid.
func WithConfigFile(path string) Option {
	b, err := os.ReadFile(path)
	if err != nil {
		return OptionFunc(func(*Options) {
			panic(fmt.Errorf("sqs.WithConfigFile(%s): %w", path, err))
		})
	}
	return WithConfig(b)
}

type serveConfigOption struct {
	sqsOpt  Option
	httpOpt funchttp.Option
	dynOpt  dynamic.Option
	err     error
}

func (o serveConfigOption) apply(b *serveOptionBag) {
	if o.err != nil {
		panic(fmt.Errorf("sqs.WithServeConfig: %w", o.err))
	}
	if o.sqsOpt != nil {
		b.sqs = append(b.sqs, o.sqsOpt)
	}
	if o.httpOpt != nil {
		b.http = append(b.http, o.httpOpt)
	}
	if o.dynOpt != nil {
		b.http = append(b.http, o.dynOpt)
	}
}

// WithServeConfig applies a whole funcframe.yaml document: the sqs section
// configures delivery, the http section the function pipeline and the
// dynamic section where plugin targets are loaded from.
// It panics if the YAML is invalid.
func WithServeConfig(yamlBytes []byte) ServeOption {
	var cfg yamlServeConfig
	if err := yaml.Unmarshal(yamlBytes, &cfg); err != nil {
		return serveConfigOption{err: err}
	}

	opt := serveConfigOption{sqsOpt: optionFromSQSConfig(cfg.SQS)}
	if cfg.HTTP != nil {
		opt.httpOpt = funchttp.WithConfig(yamlBytes)
	}
	if cfg.Dynamic != nil {
		opt.dynOpt = dynamic.WithConfig(yamlBytes)
	}
	return opt
}

// WithServeConfigFile loads a YAML file and applies it as ServeOption.
// It panics if the file cannot be read or YAML is invalid.
func WithServeConfigFile(path string) ServeOption {
	b, err := os.ReadFile(path)
	if err != nil {
		return serveConfigOption{err: fmt.Errorf("sqs.WithServeConfigFile(%s): %w", path, err)}
	}
	return WithServeConfig(b)
}
