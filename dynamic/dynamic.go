package dynamic

import (
	"github.com/aura-studio/dynamic"
	"github.com/aura-studio/funcframe/logging"
	"go.uber.org/zap"
)

type Package struct {
	Package string
	Version string
	Tunnel  dynamic.Tunnel
}

// Dynamic resolves function targets that live in plugin packages rather than
// in the function registry.
type Dynamic struct {
	*Options
}

func NewDynamic(opts ...Option) *Dynamic {
	d := &Dynamic{
		Options: NewOptions(opts...),
	}

	d.InstallPackages()

	return d
}

func (d *Dynamic) InstallPackages() {
	if d.Os != "" {
		dynamic.DynamicOS = d.Os
	}
	if d.Arch != "" {
		dynamic.DynamicArch = d.Arch
	}
	if d.Compiler != "" {
		dynamic.DynamicCompiler = d.Compiler
	}
	if d.Variant != "" {
		dynamic.DynamicVariant = d.Variant
	}

	if d.LocalWarehouse != "" || d.RemoteWarehouse != "" {
		dynamic.UseWarehouse(d.LocalWarehouse, d.RemoteWarehouse)
	}

	if d.PackageNamespace != "" {
		dynamic.UseNamespace(d.PackageNamespace)
	}

	if d.PackageDefaultVersion != "" {
		dynamic.UseDefaultVersion(d.PackageDefaultVersion)
	}

	for _, p := range d.StaticPackages {
		dynamic.RegisterPackage(p.Package, p.Version, p.Tunnel)
	}

	for _, p := range d.PreloadPackages {
		if _, err := dynamic.GetPackage(p.Package, p.Version); err != nil {
			logging.Default().Warn("preload package failed",
				zap.String("namespace", d.PackageNamespace),
				zap.String("package", p.Package),
				zap.String("version", p.Version),
				zap.Error(err),
			)
		}
	}
}

func (d *Dynamic) GetPackage(pkg string, version string) (dynamic.Tunnel, error) {
	return dynamic.GetPackage(pkg, version)
}
