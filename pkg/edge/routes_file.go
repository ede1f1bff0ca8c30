package edge

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RouteFile is the on-disk shape of a route table.
type RouteFile struct {
	DefaultTier Tier   `json:"default_tier" yaml:"default_tier"`
	Rules       []Rule `json:"rules" yaml:"rules"`
}

// LoadRouteTable reads and compiles a YAML route table from disk.
func LoadRouteTable(path string) (*RouteTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("edge: reading route table: %w", err)
	}
	t, err := ParseRouteTable(data)
	if err != nil {
		return nil, fmt.Errorf("edge: route table %s: %w", path, err)
	}
	return t, nil
}

// ParseRouteTable compiles a YAML route table document. A file without a
// default tier falls back to requiring authentication, so an under-specified
// table stays fail-closed.
func ParseRouteTable(data []byte) (*RouteTable, error) {
	var f RouteFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing route table: %w", err)
	}
	if f.DefaultTier == "" {
		f.DefaultTier = TierAuthenticated
	}
	return NewRouteTable(f.DefaultTier, f.Rules...)
}
