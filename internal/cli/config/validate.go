package config

import (
	"fmt"
	"os"
)

// ValidateEngine checks that the engine script exists.
func (c *Config) ValidateEngine() error {
	if _, err := os.Stat(c.Engine.Script); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("engine script does not exist: %s\nHint: run 'leapcalc init' or use --engine to specify a script", c.Engine.Script)
		}
		return fmt.Errorf("engine script: %w", err)
	}
	return nil
}
