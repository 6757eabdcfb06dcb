// Package config loads the CLI configuration: the project configuration
// from internal/config layered with environment variables and command-line
// flags.
package config

import (
	intconfig "github.com/leapstack-labs/leapcalc/internal/config"
)

// Config holds the project configuration plus CLI-only settings.
type Config struct {
	intconfig.Config `koanf:",squash"`

	Verbose      bool   `koanf:"verbose"`
	OutputFormat string `koanf:"output"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
	// ConfigFile is the configuration file that was read, if any.
	ConfigFile string `koanf:"-"`
}

// DefaultOutput auto-detects: text on a terminal, markdown otherwise.
const DefaultOutput = "auto"

// Project returns the project configuration part.
func (c *Config) Project() *intconfig.Config {
	return &c.Config
}
