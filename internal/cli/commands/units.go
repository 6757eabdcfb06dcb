package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapcalc/internal/cli/output"
	"github.com/leapstack-labs/leapcalc/internal/model"
	"github.com/leapstack-labs/leapcalc/internal/report"
	"github.com/leapstack-labs/leapcalc/pkg/units"
)

// NewUnitsCommand creates the units command.
func NewUnitsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "units <quantity>",
		Short: "Convert a quantity to the project's units",
		Long: `Parse a quantity and convert it to every compatible unit the project knows:
the units list of the configuration and the units of configured parameters
and results.`,
		Example: `  leapcalc units 3cm
  leapcalc units "20 degC"
  leapcalc units "1.5 kW*h"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := NewCommandContext(cmd)
			q, err := cc.Registry.ParseQuantity(args[0])
			if err != nil {
				return err
			}
			m := cc.NewOfflineModel()
			registerProjectUnits(cc, m)

			var conversions []units.Quantity
			for _, s := range m.CompatibleUnits(q) {
				u, err := cc.Registry.ParseUnit(s)
				if err != nil {
					continue
				}
				c, err := q.To(u)
				if err != nil {
					continue
				}
				conversions = append(conversions, c)
			}

			r := cc.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				out := make([]string, 0, len(conversions))
				for _, c := range conversions {
					out = append(out, c.String())
				}
				return r.JSON(out)
			}
			r.Header(2, q.Pretty(report.DefaultDigits))
			for _, c := range conversions {
				r.Println(fmt.Sprintf("  = %s", c.Pretty(report.DefaultDigits)))
			}
			return nil
		},
	}
}

// registerProjectUnits offers every unit the configuration mentions.
// Unparseable units are reported by validate and skipped here.
func registerProjectUnits(cc *CommandContext, m *model.Model) {
	candidates := append([]string(nil), cc.Cfg.Units...)
	for _, p := range cc.Cfg.Parameters {
		candidates = append(candidates, p.UOM)
	}
	for _, r := range cc.Cfg.Results {
		candidates = append(candidates, r.UOM)
	}
	for _, s := range candidates {
		if s == "" {
			continue
		}
		if err := m.RegisterUnit(s); err != nil {
			cc.Logger.Debug("skipping unit", "unit", s, "error", err)
		}
	}
}
