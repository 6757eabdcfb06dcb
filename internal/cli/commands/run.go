package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapcalc/internal/cli/output"
	"github.com/leapstack-labs/leapcalc/internal/report"
	"github.com/leapstack-labs/leapcalc/internal/scenario"
	"github.com/leapstack-labs/leapcalc/internal/snapshot"
	"github.com/leapstack-labs/leapcalc/pkg/core"
)

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	var (
		sets []string
		save string
		as   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Calculate the active scenario",
		Long: `Load the engine, apply --set assignments to the active scenario and
calculate it. Results are shown in the units configured for them.

The scenarios can be written to a snapshot file with --save, optionally after
storing the calculated scenario under a name with --as.`,
		Example: `  # Calculate the engine defaults
  leapcalc run

  # Override parameters, units are optional
  leapcalc run --set Tank.volume=200L --set Tank.height=1.2

  # Keep the result for later comparison
  leapcalc run --set a=4cm --as wide --save scenarios.lcalc`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cc := NewCommandContext(cmd)
			r := cc.Renderer

			m, errs, err := cc.LoadModel(ctx)
			if err != nil {
				return err
			}
			defer m.Close()
			cc.warnConfigErrors(errs)

			if err := applyAssignments(m, cc.Registry, sets); err != nil {
				return err
			}
			if err := cc.calculate(ctx, m); err != nil {
				return err
			}
			conv, err := m.Scenario(scenario.Converged)
			if err != nil {
				return err
			}
			results := displayUnits(cc, conv.Results)

			if as != "" {
				if err := m.CopyScenario(scenario.Current, as); err != nil {
					return err
				}
			}
			if save != "" {
				if err := snapshot.Save(save, m.Serialize()); err != nil {
					return err
				}
			}

			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(results.ToJSONable())
			}
			rr := report.NewRenderer(r.Writer(), r.ReportFormat())
			if err := rr.Structure("results", results); err != nil {
				return err
			}
			if save != "" {
				r.Success(fmt.Sprintf("Saved scenarios to %s", save))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&sets, "set", "s", nil, "Set a parameter before calculating (path=value)")
	cmd.Flags().StringVar(&save, "save", "", "Write all scenarios to a snapshot file")
	cmd.Flags().StringVar(&as, "as", "", "Store the calculated scenario under this name")

	return cmd
}

// displayUnits converts the configured results to their configured units.
// Results without a usable unit are left as calculated.
func displayUnits(cc *CommandContext, results *core.Structure) *core.Structure {
	out := results.Clone()
	for _, item := range cc.Cfg.Results {
		if item.UOM == "" {
			continue
		}
		path := core.Path(item.Path)
		q, err := out.Quantity(path)
		if err != nil {
			continue
		}
		u, err := cc.Registry.ParseUnit(item.UOM)
		if err != nil {
			continue
		}
		c, err := q.To(u)
		if err != nil {
			cc.Logger.Debug("result not convertible", "path", path.String(), "unit", item.UOM, "error", err)
			continue
		}
		_ = out.Set(path, c)
	}
	return out
}
