package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	intconfig "github.com/leapstack-labs/leapcalc/internal/config"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool
	var example bool
	var name string

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new leapcalc project",
		Long: `Initialize a new leapcalc project with a configuration file and a
Starlark calculation engine.

This creates:
  - leapcalc.yaml configuration file
  - engine.star calculation engine

The default project computes the area and perimeter of a rectangle. Use
--example to create a water heater model with nested parameters,
temperatures and a stateful engine.`,
		Example: `  # Initialize in current directory
  leapcalc init

  # Initialize the water heater example in a new directory
  leapcalc init heater --example

  # Force overwrite existing files
  leapcalc init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			template := "minimal"
			if example {
				template = "example"
			}
			if name == "" {
				name = intconfig.DefaultAppName
			}
			return runInit(NewCommandContext(cmd), dir, template, name, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files")
	cmd.Flags().BoolVar(&example, "example", false, "Create the water heater example project")
	cmd.Flags().StringVar(&name, "name", "", "Application name written to the configuration")

	return cmd
}

func runInit(cc *CommandContext, dir, template, name string, force bool) error {
	r := cc.Renderer
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dir, intconfig.ConfigFileName)
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", intconfig.ConfigFileName)
	}

	if err := writeConfig(configPath, templateConfig(template, name)); err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}
	if err := copyTemplate(template, dir, force); err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	r.StatusLine(intconfig.ConfigFileName, "success", "")
	files, _ := listTemplateFiles(template)
	for _, f := range files {
		r.StatusLine(f, "success", "")
	}

	r.Println("")
	r.Success("leapcalc project initialized!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  1. Run 'leapcalc validate' to check the configuration")
	r.Println("  2. Run 'leapcalc run' to calculate the default parameters")
	r.Println("  3. Run 'leapcalc sweep --param <path>:<min>:<max>' for a case study")
	return nil
}
