package config

// Default configuration values.
const (
	DefaultAppName      = "leapcalc"
	DefaultFileEnding   = "lcalc"
	DefaultEngineScript = "engine.star"
	DefaultSweepSteps   = 5
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
)

// Defaults returns the lowest-priority configuration layer as a flat map, in
// the form expected by the koanf confmap provider.
func Defaults() map[string]any {
	return map[string]any{
		"app_name":               DefaultAppName,
		"file_ending":            DefaultFileEnding,
		"run_engine_on_start":    false,
		"engine.script":          DefaultEngineScript,
		"sweep.on_fail_continue": true,
		"sweep.default_steps":    DefaultSweepSteps,
		"log.level":              DefaultLogLevel,
		"log.format":             DefaultLogFormat,
	}
}

// ApplyDefaults fills zero values left by a partial configuration.
func (c *Config) ApplyDefaults() {
	if c == nil {
		return
	}
	if c.AppName == "" {
		c.AppName = DefaultAppName
	}
	if c.FileEnding == "" {
		c.FileEnding = DefaultFileEnding
	}
	if c.Engine.Script == "" {
		c.Engine.Script = DefaultEngineScript
	}
	if c.Sweep.DefaultSteps == 0 {
		c.Sweep.DefaultSteps = DefaultSweepSteps
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}
