package commands

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapcalc/internal/cli/output"
	"github.com/leapstack-labs/leapcalc/internal/scenario"
	"github.com/leapstack-labs/leapcalc/pkg/core"
)

// Health check statuses.
const (
	statusPass  = "pass"
	statusWarn  = "warn"
	statusError = "error"
	statusSkip  = "skip"
)

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run a comprehensive project health check",
		Long: `Analyze your leapcalc project for problems.

The doctor command loads the engine, validates the configuration, calculates
the defaults and reports:
- Project summary (parameters, results, units)
- Health checks grouped by category (Configuration, Engine, Results)
- Health score (0-100)
- Actionable recommendations

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format
  - JSON: Machine-readable format`,
		Example: `  # Run health check
  leapcalc doctor

  # Output as JSON
  leapcalc doctor -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := NewCommandContext(cmd)
			return renderDoctor(cc.Renderer, diagnose(cmd.Context(), cc))
		},
	}
}

// renderDoctor writes the report in the renderer's effective mode.
func renderDoctor(r *output.Renderer, out *DoctorOutput) error {
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(out)
	case output.ModeText:
		renderDoctorText(r, out)
	default:
		renderDoctorMarkdown(r, out)
	}
	return nil
}

// DoctorOutput is the JSON output for the doctor command.
type DoctorOutput struct {
	Summary         ProjectSummary `json:"summary"`
	HealthChecks    []HealthCheck  `json:"health_checks"`
	Score           int            `json:"score"`
	Recommendations []string       `json:"recommendations"`
	IssueCount      int            `json:"issue_count"`
}

// ProjectSummary contains project-level statistics.
type ProjectSummary struct {
	ConfigFile           string `json:"config_file"`
	EngineScript         string `json:"engine_script"`
	Parameters           int    `json:"parameters"`
	Results              int    `json:"results"`
	ConfiguredParameters int    `json:"configured_parameters"`
	ConfiguredResults    int    `json:"configured_results"`
	Units                int    `json:"units"`
}

// HealthCheck represents a single health check result.
type HealthCheck struct {
	RuleID     string   `json:"rule_id"`
	Name       string   `json:"name"`
	Group      string   `json:"group"`
	Status     string   `json:"status"`
	IssueCount int      `json:"issue_count"`
	Details    []string `json:"details,omitempty"`
}

func newCheck(id, name, group string, details []string, failStatus string) HealthCheck {
	status := statusPass
	if len(details) > 0 {
		status = failStatus
	}
	return HealthCheck{RuleID: id, Name: name, Group: group, Status: status, IssueCount: len(details), Details: details}
}

func skippedCheck(id, name, group string) HealthCheck {
	return HealthCheck{RuleID: id, Name: name, Group: group, Status: statusSkip}
}

// diagnose runs the health checks in order. Checks that depend on a failed
// one are skipped.
func diagnose(ctx context.Context, cc *CommandContext) *DoctorOutput {
	cfg := cc.Cfg
	out := &DoctorOutput{
		Summary: ProjectSummary{
			ConfigFile:           cfg.ConfigFile,
			EngineScript:         cfg.Engine.Script,
			ConfiguredParameters: len(cfg.Parameters),
			ConfiguredResults:    len(cfg.Results),
		},
	}
	add := func(c HealthCheck) { out.HealthChecks = append(out.HealthChecks, c) }

	var missing []string
	if cfg.ConfigFile == "" {
		missing = append(missing, "no leapcalc.yaml found, running on defaults")
	}
	add(newCheck("C01", "config-file", "configuration", missing, statusWarn))

	var badUnits []string
	for _, u := range cfg.Units {
		if _, err := cc.Registry.ParseUnit(u); err != nil {
			badUnits = append(badUnits, err.Error())
		}
	}
	add(newCheck("C02", "units", "configuration", badUnits, statusError))

	m, errs, err := cc.LoadModel(ctx)
	if err != nil {
		add(newCheck("E01", "engine-load", "engine", []string{err.Error()}, statusError))
		add(skippedCheck("C03", "parameters-match", "configuration"))
		add(skippedCheck("E02", "engine-run", "engine"))
		add(skippedCheck("R01", "results-present", "results"))
		add(skippedCheck("R02", "results-units", "results"))
		return finish(out)
	}
	defer m.Close()
	add(newCheck("E01", "engine-load", "engine", nil, statusError))

	var mismatches []string
	for _, e := range errs {
		mismatches = append(mismatches, e.Error())
	}
	add(newCheck("C03", "parameters-match", "configuration", mismatches, statusError))
	registerProjectUnits(cc, m)
	out.Summary.Units = len(m.Units())
	if def, err := m.Scenario(scenario.Default); err == nil {
		out.Summary.Parameters = def.Parameters.NumLeaves()
	}

	if err := cc.calculate(ctx, m); err != nil {
		add(newCheck("E02", "engine-run", "engine", []string{err.Error()}, statusError))
		add(skippedCheck("R01", "results-present", "results"))
		add(skippedCheck("R02", "results-units", "results"))
		return finish(out)
	}
	add(newCheck("E02", "engine-run", "engine", nil, statusError))

	conv, err := m.Scenario(scenario.Converged)
	if err != nil {
		add(newCheck("R01", "results-present", "results", []string{err.Error()}, statusError))
		add(skippedCheck("R02", "results-units", "results"))
		return finish(out)
	}
	out.Summary.Results = conv.Results.NumLeaves()
	present, convertible := checkResults(cc, conv.Results)
	add(newCheck("R01", "results-present", "results", present, statusWarn))
	add(newCheck("R02", "results-units", "results", convertible, statusWarn))

	return finish(out)
}

// checkResults compares the configured results with what the engine
// returned for its defaults.
func checkResults(cc *CommandContext, results *core.Structure) (missing, inconvertible []string) {
	for _, item := range cc.Cfg.Results {
		path := core.Path(item.Path)
		q, err := results.Quantity(path)
		if err != nil {
			missing = append(missing, fmt.Sprintf("%s is not returned by the engine", path))
			continue
		}
		if item.UOM == "" {
			continue
		}
		u, err := cc.Registry.ParseUnit(item.UOM)
		if err != nil {
			inconvertible = append(inconvertible, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		if !q.IsCompatibleWith(u) {
			inconvertible = append(inconvertible, fmt.Sprintf("%s: %s cannot be shown in %s", path, q, item.UOM))
		}
	}
	return missing, inconvertible
}

func finish(out *DoctorOutput) *DoctorOutput {
	for _, c := range out.HealthChecks {
		out.IssueCount += c.IssueCount
	}
	out.Score = calculateHealthScore(out.HealthChecks)
	out.Recommendations = generateRecommendations(out.HealthChecks)
	return out
}

// healthPenalty is subtracted per warning; errors count double.
const healthPenalty = 10.0

// calculateHealthScore computes a health score from 0-100.
func calculateHealthScore(checks []HealthCheck) int {
	score := 100.0
	for _, check := range checks {
		switch check.Status {
		case statusError:
			score -= float64(check.IssueCount) * healthPenalty * 2
		case statusWarn:
			score -= float64(check.IssueCount) * healthPenalty
		}
	}
	return int(max(0, min(100, score)))
}

// generateRecommendations creates actionable recommendations based on findings.
func generateRecommendations(checks []HealthCheck) []string {
	var recommendations []string
	seen := make(map[string]bool)

	for _, check := range checks {
		if check.IssueCount == 0 {
			continue
		}
		rec := getRecommendation(check.RuleID)
		if rec != "" && !seen[rec] {
			recommendations = append(recommendations, rec)
			seen[rec] = true
		}
	}

	return recommendations
}

// getRecommendation returns a recommendation for a specific rule.
func getRecommendation(ruleID string) string {
	switch ruleID {
	case "C01":
		return "Run 'leapcalc init' to create a project configuration"
	case "C02":
		return "Fix the unit expressions in the units list"
	case "C03":
		return "Align parameter paths and units with defaults() of the engine (see 'leapcalc validate')"
	case "E01":
		return "Fix the engine script so it loads and defines defaults() and calculate(params)"
	case "E02":
		return "Make calculate(params) succeed for the default parameters"
	case "R01":
		return "Remove configured results the engine does not return"
	case "R02":
		return "Use result units of the same dimension as the calculated values"
	default:
		return ""
	}
}

func renderDoctorText(r *output.Renderer, out *DoctorOutput) {
	styles := r.Styles()

	r.Println("")
	r.Println(styles.Header.Render("leapcalc Project Health Report"))
	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	r.Println("")

	r.Println(styles.Bold.Render("Project Summary"))
	r.Printf("   Config: %s | Engine: %s\n", orNone(out.Summary.ConfigFile), orNone(out.Summary.EngineScript))
	r.Printf("   Parameters: %d (%d configured) | Results: %d (%d configured) | Units: %d\n",
		out.Summary.Parameters, out.Summary.ConfiguredParameters,
		out.Summary.Results, out.Summary.ConfiguredResults, out.Summary.Units)
	r.Println("")

	r.Println(styles.Bold.Render("Health Checks"))
	r.Println("")

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println(styles.Bold.Render("   " + titleCaser.String(currentGroup)))
			r.Println(styles.Muted.Render("   " + strings.Repeat("-", 40)))
		}

		icon := styles.Success.Render("✓")
		switch check.Status {
		case statusWarn:
			icon = styles.Warning.Render("!")
		case statusError:
			icon = styles.Error.Render("✗")
		case statusSkip:
			icon = styles.Muted.Render("-")
		}

		status := fmt.Sprintf("%s %s: %s", icon, check.RuleID, check.Name)
		if check.IssueCount > 0 {
			status += fmt.Sprintf(" (%d issues)", check.IssueCount)
		}
		r.Println("   " + status)

		for i, detail := range check.Details {
			if i >= 3 {
				r.Println(styles.Muted.Render(fmt.Sprintf("       ... and %d more", len(check.Details)-3)))
				break
			}
			r.Println(styles.Muted.Render("       - " + detail))
		}
	}
	r.Println("")

	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	scoreStyle := styles.Success
	if out.Score < 70 {
		scoreStyle = styles.Warning
	}
	if out.Score < 50 {
		scoreStyle = styles.Error
	}
	r.Printf("   Health Score: %s\n", scoreStyle.Render(fmt.Sprintf("%d/100", out.Score)))
	r.Println("")

	if len(out.Recommendations) > 0 {
		r.Println(styles.Bold.Render("Recommendations"))
		for i, rec := range out.Recommendations {
			r.Printf("   %d. %s\n", i+1, rec)
		}
		r.Println("")
	}
}

func renderDoctorMarkdown(r *output.Renderer, out *DoctorOutput) {
	r.Println("# leapcalc Project Health Report")
	r.Println("")

	r.Println("## Project Summary")
	r.Println("")
	r.Println(output.FormatKeyValue("Config", orNone(out.Summary.ConfigFile)))
	r.Println(output.FormatKeyValue("Engine", orNone(out.Summary.EngineScript)))
	r.Println(output.FormatKeyValue("Parameters", fmt.Sprintf("%d (%d configured)", out.Summary.Parameters, out.Summary.ConfiguredParameters)))
	r.Println(output.FormatKeyValue("Results", fmt.Sprintf("%d (%d configured)", out.Summary.Results, out.Summary.ConfiguredResults)))
	r.Println(output.FormatKeyValue("Units", fmt.Sprint(out.Summary.Units)))
	r.Println("")

	r.Println("## Health Checks")
	r.Println("")

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println("### " + titleCaser.String(currentGroup))
			r.Println("")
		}

		line := fmt.Sprintf("- **[%s]** %s: %s", strings.ToUpper(check.Status), check.RuleID, check.Name)
		if check.IssueCount > 0 {
			line += fmt.Sprintf(" (%d issues)", check.IssueCount)
		}
		r.Println(line)

		for _, detail := range check.Details {
			r.Printf("  - %s\n", detail)
		}
	}
	r.Println("")

	r.Println("## Health Score")
	r.Println("")
	r.Printf("**%d/100**\n", out.Score)
	r.Println("")

	if len(out.Recommendations) > 0 {
		r.Println("## Recommendations")
		r.Println("")
		for i, rec := range out.Recommendations {
			r.Printf("%d. %s\n", i+1, rec)
		}
		r.Println("")
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
