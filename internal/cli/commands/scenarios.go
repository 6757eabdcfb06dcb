package commands

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapcalc/internal/cli/output"
	"github.com/leapstack-labs/leapcalc/internal/model"
	"github.com/leapstack-labs/leapcalc/internal/report"
	"github.com/leapstack-labs/leapcalc/internal/scenario"
	"github.com/leapstack-labs/leapcalc/internal/snapshot"
)

// NewScenariosCommand creates the scenarios command group, which edits the
// scenarios stored in a snapshot file without running the engine.
func NewScenariosCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "scenarios",
		Short: "Manage scenarios saved in a snapshot file",
		Example: `  leapcalc scenarios list --file scenarios.lcalc
  leapcalc scenarios copy "* Converged" baseline --file scenarios.lcalc
  leapcalc scenarios rename baseline reference --file scenarios.lcalc
  leapcalc scenarios delete reference --file scenarios.lcalc`,
	}
	cmd.PersistentFlags().StringVarP(&file, "file", "f", "", "Snapshot file (required)")
	_ = cmd.MarkPersistentFlagRequired("file")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := NewCommandContext(cmd)
			m, err := openSnapshot(cc, file)
			if err != nil {
				return err
			}
			return listScenarios(cc, m)
		},
	})

	edit := func(use, short string, apply func(m *model.Model, args []string) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(argCount(use)),
			RunE: func(cmd *cobra.Command, args []string) error {
				cc := NewCommandContext(cmd)
				m, err := openSnapshot(cc, file)
				if err != nil {
					return err
				}
				if err := apply(m, args); err != nil {
					return err
				}
				if err := snapshot.Save(file, m.Serialize()); err != nil {
					return err
				}
				cc.Renderer.Success("Updated " + file)
				return nil
			},
		}
	}
	cmd.AddCommand(
		edit("copy <source> <target>", "Copy a scenario", func(m *model.Model, args []string) error {
			return m.CopyScenario(args[0], args[1])
		}),
		edit("rename <old> <new>", "Rename a user scenario", func(m *model.Model, args []string) error {
			return m.RenameScenario(args[0], args[1])
		}),
		edit("delete <name>", "Delete a user scenario", func(m *model.Model, args []string) error {
			return m.DeleteScenario(args[0])
		}),
	)

	return cmd
}

// argCount counts the <placeholders> of a Use line.
func argCount(use string) int {
	return strings.Count(use, "<")
}

func openSnapshot(cc *CommandContext, file string) (*model.Model, error) {
	d, err := snapshot.Load(file)
	if err != nil {
		return nil, err
	}
	m := cc.NewOfflineModel()
	if err := m.Deserialize(d); err != nil {
		return nil, err
	}
	return m, nil
}

type scenarioJSON struct {
	Name       string `json:"name"`
	Builtin    bool   `json:"builtin"`
	HasResults bool   `json:"has_results"`
	Modified   string `json:"modified"`
}

func listScenarios(cc *CommandContext, m *model.Model) error {
	var list []report.ScenarioSummary
	for _, name := range m.ScenarioNames() {
		s, err := m.Scenario(name)
		if err != nil {
			return err
		}
		list = append(list, report.ScenarioSummary{
			Name:       name,
			Builtin:    scenario.IsBuiltin(name),
			HasResults: s.HasResults(),
			Modified:   s.Modified,
		})
	}

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		out := make([]scenarioJSON, 0, len(list))
		for _, s := range list {
			out = append(out, scenarioJSON{
				Name:       s.Name,
				Builtin:    s.Builtin,
				HasResults: s.HasResults,
				Modified:   s.Modified.Format(time.RFC3339),
			})
		}
		return r.JSON(out)
	}
	report.NewRenderer(r.Writer(), r.ReportFormat()).Scenarios(list)
	return nil
}
