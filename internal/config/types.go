// Package config provides the project configuration for leapcalc.
// This package is decoupled from CLI concerns and can be used by any front
// end that needs to load a project: the parameters it exposes, the units it
// offers, and the engine that computes it.
package config

import (
	"slices"
	"strings"
	"time"
)

// Config is the project configuration, usually read from leapcalc.yaml.
type Config struct {
	AppName          string          `koanf:"app_name" yaml:"app_name" validate:"required"`
	FileEnding       string          `koanf:"file_ending" yaml:"file_ending" validate:"required,alphanum"`
	RunEngineOnStart bool            `koanf:"run_engine_on_start" yaml:"run_engine_on_start"`
	Engine           EngineConfig    `koanf:"engine" yaml:"engine"`
	Units            []string        `koanf:"units" yaml:"units"`
	Parameters       []ParameterItem `koanf:"parameters" yaml:"parameters" validate:"dive"`
	Results          []ResultItem    `koanf:"results" yaml:"results" validate:"dive"`
	Sweep            SweepConfig     `koanf:"sweep" yaml:"sweep"`
	Log              LogConfig       `koanf:"log" yaml:"log"`
}

// EngineConfig selects and tunes the calculation engine.
type EngineConfig struct {
	// Script is the Starlark file implementing the engine, relative to the
	// project root.
	Script string `koanf:"script" yaml:"script"`
	// Timeout bounds a single calculation; zero means no limit.
	Timeout time.Duration `koanf:"timeout" yaml:"timeout,omitempty" validate:"gte=0"`
}

// ParameterItem declares an input parameter exposed to the user. Min and Max
// are given in UOM; nil means unbounded.
type ParameterItem struct {
	Path []string `koanf:"path" yaml:"path" validate:"required,min=1,dive,required"`
	UOM  string   `koanf:"uom" yaml:"uom"`
	Min  *float64 `koanf:"min" yaml:"min,omitempty"`
	Max  *float64 `koanf:"max" yaml:"max,omitempty"`
	Name string   `koanf:"name" yaml:"name,omitempty"`
}

// DisplayName returns Name, or the dotted path when no name is configured.
func (p ParameterItem) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return strings.Join(p.Path, ".")
}

// ResultItem declares a result of interest and the unit it is shown in.
type ResultItem struct {
	Path []string `koanf:"path" yaml:"path" validate:"required,min=1,dive,required"`
	UOM  string   `koanf:"uom" yaml:"uom"`
	Name string   `koanf:"name" yaml:"name,omitempty"`
}

// SweepConfig holds case-study defaults.
type SweepConfig struct {
	OnFailContinue bool `koanf:"on_fail_continue" yaml:"on_fail_continue"`
	DefaultSteps   int  `koanf:"default_steps" yaml:"default_steps" validate:"gte=0"`
}

// LogConfig configures the slog handler built by the CLI.
type LogConfig struct {
	Level  string `koanf:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `koanf:"format" yaml:"format" validate:"omitempty,oneof=text json"`
}

// Parameter returns the item configured for path.
func (c *Config) Parameter(path []string) (ParameterItem, bool) {
	for _, p := range c.Parameters {
		if slices.Equal(p.Path, path) {
			return p, true
		}
	}
	return ParameterItem{}, false
}
