package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapcalc/internal/cli/config"
	"github.com/leapstack-labs/leapcalc/internal/cli/output"
	intconfig "github.com/leapstack-labs/leapcalc/internal/config"
	"github.com/leapstack-labs/leapcalc/internal/report"
)

// errInvalidConfig is returned when validation found configuration errors.
var errInvalidConfig = errors.New("configuration does not match the engine")

// watchDebounce collapses the bursts of events editors produce on save.
const watchDebounce = 200 * time.Millisecond

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration against the engine",
		Long: `Load the engine, read its default parameters and check every configured
parameter and unit against them. Errors are listed with the offending path.

With --watch the check is repeated whenever the configuration file or the
engine script changes, until interrupted.`,
		Example: `  # Validate once
  leapcalc validate

  # Re-validate on every save
  leapcalc validate --watch`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := NewCommandContext(cmd)
			if !watch {
				return runValidate(cmd.Context(), cc)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return watchValidate(ctx, cmd, cc)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Re-run on configuration or engine changes")

	return cmd
}

func runValidate(ctx context.Context, cc *CommandContext) error {
	r := cc.Renderer
	m, errs, err := cc.LoadModel(ctx)
	if err != nil {
		return err
	}
	defer m.Close()

	if r.EffectiveMode() == output.ModeJSON {
		if errs == nil {
			errs = []intconfig.ConfigurationError{}
		}
		if err := r.JSON(errs); err != nil {
			return err
		}
	} else {
		report.NewRenderer(r.Writer(), r.ReportFormat()).Errors(errs)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %d errors", errInvalidConfig, len(errs))
	}
	return nil
}

// watchValidate validates, then re-validates on every change of the watched
// files until ctx is done.
func watchValidate(ctx context.Context, cmd *cobra.Command, cc *CommandContext) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Watching directories survives editors that replace files on save.
	files := map[string]bool{}
	for _, f := range []string{cc.Cfg.ConfigFile, cc.Cfg.Engine.Script} {
		if f == "" {
			continue
		}
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		files[abs] = true
		if err := watcher.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
		}
	}

	validateOnce := func() {
		if err := runValidate(ctx, cc); err != nil {
			cc.Renderer.Error(err.Error())
		}
		cc.Renderer.Muted("Watching for changes (Ctrl-C to stop)...")
	}
	validateOnce()

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 || !files[event.Name] {
				continue
			}
			cc.Logger.Debug("file changed", "file", event.Name, "op", event.Op.String())
			debounce = time.After(watchDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			cc.Logger.Warn("watch error", "error", err)
		case <-debounce:
			debounce = nil
			reloaded, err := config.LoadConfig(cc.Cfg.ConfigFile, cmd.Root().PersistentFlags())
			if err != nil {
				cc.Renderer.Error(err.Error())
				continue
			}
			cc = &CommandContext{
				Cfg:      reloaded,
				Logger:   cc.Logger,
				Renderer: cc.Renderer,
				Registry: cc.Registry,
			}
			validateOnce()
		}
	}
}
