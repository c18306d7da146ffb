package http

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"
)

type yamlConfig struct {
	HTTP struct {
		Address       string  `yaml:"address"`
		Target        string  `yaml:"target"`
		SignatureType string  `yaml:"signatureType"`
		Timeout       string  `yaml:"timeout"`
		IgnoredRoutes *string `yaml:"ignoredRoutes"`
		MaxBodyBytes  int64   `yaml:"maxBodyBytes"`
		Debug         bool    `yaml:"debug"`
	} `yaml:"http"`
}

func optionFromConfigBytes(b []byte) (Option, error) {
	var cfg yamlConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	var timeout time.Duration
	if cfg.HTTP.Timeout != "" {
		d, err := time.ParseDuration(cfg.HTTP.Timeout)
		if err != nil {
			return nil, fmt.Errorf("timeout: %w", err)
		}
		timeout = d
	}

	return HttpOption(func(o *Options) {
		if cfg.HTTP.Address != "" {
			o.Address = cfg.HTTP.Address
		}
		if cfg.HTTP.Target != "" {
			o.Target = cfg.HTTP.Target
		}
		if cfg.HTTP.SignatureType != "" {
			o.SignatureType = cfg.HTTP.SignatureType
		}
		if cfg.HTTP.Timeout != "" {
			o.Timeout = timeout
		}
		if cfg.HTTP.IgnoredRoutes != nil {
			expr := *cfg.HTTP.IgnoredRoutes
			o.IgnoredRoutes = &expr
		}
		if cfg.HTTP.MaxBodyBytes > 0 {
			o.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
		}
		if cfg.HTTP.Debug {
			o.DebugMode = true
		}
	}), nil
}

// WithConfig parses YAML bytes following funcframe.yaml structure and applies it to Options.
// It panics if the YAML is invalid.
func WithConfig(yamlBytes []byte) Option {
	opt, err := optionFromConfigBytes(yamlBytes)
	if err != nil {
		return HttpOption(func(*Options) {
			panic(fmt.Errorf("http.WithConfig: %w", err))
		})
	}
	return opt
}

// WithConfigFile loads a YAML file and applies it to Options.
// It panics if the file cannot be read or YAML is invalid.
func WithConfigFile(path string) Option {
	b, err := os.ReadFile(path)
	if err != nil {
		return HttpOption(func(*Options) {
			panic(fmt.Errorf("http.WithConfigFile(%s): %w", path, err))
		})
	}
	return WithConfig(b)
}
