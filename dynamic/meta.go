package dynamic

import (
	"encoding/json"
	"os"
	"runtime/debug"
)

// ServiceInfo describes the deployment, as published by the platform in
// K_SERVICE, K_REVISION and K_CONFIGURATION.
type ServiceInfo struct {
	Name          string `json:"name"`
	Revision      string `json:"revision"`
	Configuration string `json:"configuration"`
	Target        string `json:"target"`
}

type BuildInfo struct {
	Module  string `json:"module"`
	Version string `json:"version"`
	Built   string `json:"built"`
}

type WarehouseInfo struct {
	Local  string `json:"local"`
	Remote string `json:"remote"`
}

// Meta is sent to tunnels under the __meta__ key of every request.
type Meta struct {
	Service   ServiceInfo   `json:"service"`
	Build     BuildInfo     `json:"build"`
	Warehouse WarehouseInfo `json:"warehouse"`
}

type MetaGenerator struct {
	target          string
	localWarehouse  string
	remoteWarehouse string
}

func NewMetaGenerator(target, localWarehouse, remoteWarehouse string) *MetaGenerator {
	return &MetaGenerator{
		target:          target,
		localWarehouse:  localWarehouse,
		remoteWarehouse: remoteWarehouse,
	}
}

func (g *MetaGenerator) serviceInfo() ServiceInfo {
	target := g.target
	if target == "" {
		target = os.Getenv("FUNCTION_TARGET")
	}
	return ServiceInfo{
		Name:          os.Getenv("K_SERVICE"),
		Revision:      os.Getenv("K_REVISION"),
		Configuration: os.Getenv("K_CONFIGURATION"),
		Target:        target,
	}
}

func buildInfo() BuildInfo {
	info := BuildInfo{}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.Module = bi.Main.Path
	info.Version = bi.Main.Version
	for _, setting := range bi.Settings {
		if setting.Key == "vcs.time" {
			info.Built = setting.Value
			break
		}
	}
	return info
}

// Generate returns the meta document merged with the tunnel's own meta. Keys
// the tunnel reports never replace ours.
func (g *MetaGenerator) Generate(tunnelMeta string) map[string]any {
	base := map[string]any{}
	b, err := json.Marshal(Meta{
		Service:   g.serviceInfo(),
		Build:     buildInfo(),
		Warehouse: WarehouseInfo{Local: g.localWarehouse, Remote: g.remoteWarehouse},
	})
	if err != nil || json.Unmarshal(b, &base) != nil {
		return base
	}
	if tunnelMeta == "" {
		return base
	}

	var extra map[string]any
	if err := json.Unmarshal([]byte(tunnelMeta), &extra); err != nil {
		return base
	}
	for k, v := range extra {
		if _, exists := base[k]; !exists {
			base[k] = v
		}
	}
	return base
}
