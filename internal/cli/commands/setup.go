package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapcalc/internal/cli/config"
	"github.com/leapstack-labs/leapcalc/internal/cli/output"
	intconfig "github.com/leapstack-labs/leapcalc/internal/config"
	"github.com/leapstack-labs/leapcalc/internal/engine"
	"github.com/leapstack-labs/leapcalc/internal/model"
	"github.com/leapstack-labs/leapcalc/internal/scenario"
	"github.com/leapstack-labs/leapcalc/internal/starlark"
	"github.com/leapstack-labs/leapcalc/pkg/core"
	"github.com/leapstack-labs/leapcalc/pkg/units"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
	Registry *units.Registry
}

// NewCommandContext collects the config, logger and renderer of cmd.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := config.GetConfig(cmd.Context())
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat)),
		Registry: units.NewRegistry(),
	}
}

// LoadModel loads the engine script, initialises it and validates the
// configuration against its defaults. Configuration errors are returned as
// data next to a usable model.
func (c *CommandContext) LoadModel(ctx context.Context, opts ...model.Option) (*model.Model, []intconfig.ConfigurationError, error) {
	if err := c.Cfg.ValidateEngine(); err != nil {
		return nil, nil, err
	}
	script, err := starlark.Load(c.Cfg.Engine.Script, c.Registry, starlark.WithLogger(c.Logger))
	if err != nil {
		return nil, nil, err
	}
	eng := engine.Guard(script, c.Cfg.Engine.Timeout, c.Logger)

	opts = append([]model.Option{model.WithLogger(c.Logger)}, opts...)
	m := model.New(eng, c.Cfg.Project(), c.Registry, opts...)
	if _, err := m.InitialiseEngine(ctx).Wait(ctx); err != nil {
		return nil, nil, err
	}
	errs, err := m.FinalizeInitialisation()
	if err != nil {
		return nil, nil, err
	}
	c.engineOutput(m)
	return m, errs, nil
}

// NewOfflineModel returns a model without an engine, for commands that only
// work on saved scenarios.
func (c *CommandContext) NewOfflineModel() *model.Model {
	return model.New(nil, c.Cfg.Project(), c.Registry, model.WithLogger(c.Logger))
}

// engineOutput shows what the engine printed so far when running verbose.
func (c *CommandContext) engineOutput(m *model.Model) {
	if !c.Cfg.Verbose {
		return
	}
	for _, line := range strings.Split(strings.TrimRight(m.Output().Recent(), "\n"), "\n") {
		if line != "" {
			c.Renderer.Muted("engine: " + line)
		}
	}
}

// warnConfigErrors reports configuration errors without failing the
// command.
func (c *CommandContext) warnConfigErrors(errs []intconfig.ConfigurationError) {
	for _, e := range errs {
		c.Renderer.Warning(e.Error())
	}
}

// calculate runs the Current scenario and waits for it.
func (c *CommandContext) calculate(ctx context.Context, m *model.Model) error {
	t, err := m.RunEngine(ctx)
	if err != nil {
		return err
	}
	if _, err := t.Wait(ctx); err != nil {
		return fmt.Errorf("calculation failed: %w", err)
	}
	c.engineOutput(m)
	return nil
}

// parseValue parses a parameter value. A bare number takes the unit of the
// current value.
func parseValue(reg *units.Registry, s string, current units.Quantity) (units.Quantity, error) {
	q, err := reg.ParseQuantity(s)
	if err != nil {
		return units.Quantity{}, err
	}
	if q.Unit.IsDimensionless() && !current.Unit.IsDimensionless() && isBareNumber(s) {
		q = units.New(q.Value, current.Unit)
	}
	if !q.IsCompatibleWith(current.Unit) {
		return units.Quantity{}, fmt.Errorf("%s is not compatible with %s", q, current.Unit)
	}
	return q, nil
}

func isBareNumber(s string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil
}

// applyAssignments sets "path=value" pairs on the Current scenario.
func applyAssignments(m *model.Model, reg *units.Registry, sets []string) error {
	if len(sets) == 0 {
		return nil
	}
	cur, err := m.Scenario(scenario.Current)
	if err != nil {
		return err
	}
	for _, s := range sets {
		key, value, ok := strings.Cut(s, "=")
		if !ok {
			return fmt.Errorf("invalid --set %q: want path=value", s)
		}
		path := core.ParsePath(strings.TrimSpace(key))
		old, err := cur.Parameters.Quantity(path)
		if err != nil {
			return fmt.Errorf("--set %s: %w", key, err)
		}
		q, err := parseValue(reg, value, old)
		if err != nil {
			return fmt.Errorf("--set %s: %w", key, err)
		}
		if err := m.SetParam(path, q); err != nil {
			return fmt.Errorf("--set %s: %w", key, err)
		}
	}
	return nil
}
