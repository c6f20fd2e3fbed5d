// Package config loads universal-sketch construction parameters from YAML,
// the way Go2NetSpectra's internal/config loads aggregator task definitions:
// a small struct tree plus LoadConfig(path).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	univsketch "UnivSketch"
	"UnivSketch/internal/model"
)

// ColumnDef names the record column a sketch should summarize, mirroring
// the key-field definitions in Go2NetSpectra's ExactAggregationTaskDef.
type ColumnDef struct {
	Idx  int `yaml:"idx"`
	Size int `yaml:"size_bytes"`
}

// SketchDef describes one universal sketch to construct, supporting either
// the explicit (L, T, B, K, A) form or the parameterized (Epsilon, Gamma)
// form — set exactly one of the two groups.
type SketchDef struct {
	Name    string    `yaml:"name"`
	Column  ColumnDef `yaml:"column"`
	Precise bool      `yaml:"precise"`

	// Explicit form.
	Layers int     `yaml:"layers"`
	Depth  int     `yaml:"depth"`
	Width  int     `yaml:"width"`
	K      int     `yaml:"k"`
	A      float64 `yaml:"threshold"`

	// Parameterized form; used when Epsilon and Gamma are both positive.
	Epsilon float64 `yaml:"epsilon"`
	Gamma   float64 `yaml:"gamma"`
}

// Config is the top-level configuration for a set of universal sketches.
type Config struct {
	Sketches []SketchDef `yaml:"sketches"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	return &cfg, nil
}

// Build constructs a univsketch.UniversalSketch for def, choosing the
// explicit or parameterized constructor form based on which fields are set.
func Build(def SketchDef) (*univsketch.UniversalSketch, error) {
	col := model.Column{Idx: def.Column.Idx, Size: def.Column.Size}
	schema := model.Schema{Columns: []model.Column{col}}

	if def.Epsilon > 0 && def.Gamma > 0 {
		return univsketch.NewParameterized(def.Epsilon, def.Gamma, def.K, def.A, schema, col, def.Precise)
	}

	return univsketch.New(univsketch.Config{
		L:       def.Layers,
		T:       def.Depth,
		B:       def.Width,
		K:       def.K,
		A:       def.A,
		Schema:  schema,
		Column:  col,
		Precise: def.Precise,
	})
}

// BuildAll constructs every sketch defined in cfg, keyed by name.
func BuildAll(cfg *Config) (map[string]*univsketch.UniversalSketch, error) {
	out := make(map[string]*univsketch.UniversalSketch, len(cfg.Sketches))
	for _, def := range cfg.Sketches {
		sk, err := Build(def)
		if err != nil {
			return nil, fmt.Errorf("building sketch %q: %w", def.Name, err)
		}
		out[def.Name] = sk
	}
	return out, nil
}
