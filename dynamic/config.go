package dynamic

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v2"
)

type yamlConfig struct {
	Dynamic struct {
		Toolchain struct {
			OS       string `yaml:"os"`
			Arch     string `yaml:"arch"`
			Compiler string `yaml:"compiler"`
			Variant  string `yaml:"variant"`
		} `yaml:"toolchain"`
		Warehouse struct {
			Local  string `yaml:"local"`
			Remote string `yaml:"remote"`
		} `yaml:"warehouse"`
		Namespace      string `yaml:"namespace"`
		DefaultVersion string `yaml:"defaultVersion"`
		Preload        []struct {
			Package string `yaml:"package"`
			Version string `yaml:"version"`
		} `yaml:"preload"`
	} `yaml:"dynamic"`
}

func optionFromConfigBytes(b []byte) (Option, error) {
	var cfg yamlConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	d := cfg.Dynamic

	return OptionFunc(func(o *Options) {
		set := func(dst *string, v string) {
			if v != "" {
				*dst = v
			}
		}
		set(&o.Os, d.Toolchain.OS)
		set(&o.Arch, d.Toolchain.Arch)
		set(&o.Compiler, d.Toolchain.Compiler)
		set(&o.Variant, d.Toolchain.Variant)
		set(&o.LocalWarehouse, d.Warehouse.Local)
		set(&o.RemoteWarehouse, d.Warehouse.Remote)
		set(&o.PackageNamespace, d.Namespace)
		set(&o.PackageDefaultVersion, d.DefaultVersion)

		for _, p := range d.Preload {
			if p.Package == "" {
				continue
			}
			o.PreloadPackages = append(o.PreloadPackages, &Package{Package: p.Package, Version: p.Version})
		}
	}), nil
}

// WithConfig parses the dynamic section of a funcframe.yaml document.
// It panics if the YAML is invalid.
func WithConfig(yamlBytes []byte) Option {
	opt, err := optionFromConfigBytes(yamlBytes)
	if err != nil {
		return OptionFunc(func(*Options) {
			panic(fmt.Errorf("dynamic: WithConfig: %w", err))
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
			panic(fmt.Errorf("dynamic: WithConfigFile(%s): %w", path, err))
		})
	}
	return WithConfig(b)
}
