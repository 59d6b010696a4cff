package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nodalcore/container/cmd/nodalctl/demo"
)

// manifestEntry describes one service a manifest wants installed. It names
// which registered demo.Kind to instantiate, not an arbitrary Go type —
// manifests never construct host types reflectively.
type manifestEntry struct {
	Name         string   `yaml:"name"`
	Kind         string   `yaml:"kind"`
	Mode         string   `yaml:"mode"`
	Dependencies []string `yaml:"dependencies"`
	DelayMS      int      `yaml:"delay_ms"`
	FailTimes    int      `yaml:"fail_times"`
}

func (e manifestEntry) params() demo.Params {
	return demo.Params{
		Delay:     time.Duration(e.DelayMS) * time.Millisecond,
		FailTimes: e.FailTimes,
	}
}

// loadManifest reads a YAML list of manifestEntry from path.
func loadManifest(path string) ([]manifestEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("nodalctl: read manifest %s: %w", path, err)
	}

	var entries []manifestEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("nodalctl: parse manifest %s: %w", path, err)
	}

	for i, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("nodalctl: manifest entry %d missing name", i)
		}
		if e.Kind == "" {
			return nil, fmt.Errorf("nodalctl: manifest entry %q missing kind", e.Name)
		}
	}

	return entries, nil
}
