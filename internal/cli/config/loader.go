package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	intconfig "github.com/leapstack-labs/leapcalc/internal/config"
)

type (
	configKey struct{}
	loggerKey struct{}
)

// flagKeys maps flag names onto configuration keys where they differ.
var flagKeys = map[string]string{
	"engine":     "engine.script",
	"log-level":  "log.level",
	"log-format": "log.format",
}

// findConfigFile returns explicit, or the config file of the project
// containing the working directory.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	if root := intconfig.FindProjectRoot(cwd); root != "" {
		return intconfig.FindConfigFile(root)
	}
	return ""
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults.
// A missing configuration file is not an error unless cfgFile names one.
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	defaults := intconfig.Defaults()
	defaults["output"] = DefaultOutput
	defaults["verbose"] = false
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configFile := findConfigFile(cfgFile)
	if configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	}

	if err := k.Load(env.Provider(intconfig.EnvPrefix, ".", intconfig.EnvKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// Paths given as flags are relative to the working directory, not to
	// the project root.
	var flagEngine string
	if flags != nil {
		if f := flags.Lookup("engine"); f != nil && f.Changed && f.Value.String() != "" {
			flagEngine, _ = filepath.Abs(f.Value.String())
		}
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed || f.Name == "config" {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := intconfig.Unmarshal(k, "", &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.ConfigFile = configFile
	cfg.ProjectRoot = projectRoot(configFile)
	if flagEngine != "" {
		cfg.Engine.Script = flagEngine
	} else {
		cfg.Engine.Script = resolvePathRelativeTo(cfg.Engine.Script, cfg.ProjectRoot)
	}
	return &cfg, nil
}

func projectRoot(configFile string) string {
	if configFile != "" {
		if abs, err := filepath.Abs(filepath.Dir(configFile)); err == nil {
			return abs
		}
		return filepath.Dir(configFile)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// NewLogger builds the CLI logger. Verbose forces the debug level.
func NewLogger(cfg *Config, w io.Writer) *slog.Logger {
	levelStr := cfg.Log.Level
	if cfg.Verbose {
		levelStr = "debug"
	}
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(handler)
}

// WithConfig stores cfg in ctx.
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// GetConfig retrieves the config from the command context, falling back
// to the defaults.
func GetConfig(ctx context.Context) *Config {
	if c, ok := ctx.Value(configKey{}).(*Config); ok {
		return c
	}
	cfg := &Config{OutputFormat: DefaultOutput}
	cfg.Sweep.OnFailContinue = true
	cfg.ApplyDefaults()
	cfg.ProjectRoot = projectRoot("")
	cfg.Engine.Script = resolvePathRelativeTo(cfg.Engine.Script, cfg.ProjectRoot)
	return cfg
}

// WithLogger stores l in ctx.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}
