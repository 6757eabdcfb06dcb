package commands

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapcalc/internal/cli/output"
	clitestutil "github.com/leapstack-labs/leapcalc/internal/cli/testutil"
)

func TestCalculateHealthScore(t *testing.T) {
	tests := []struct {
		name   string
		checks []HealthCheck
		want   int
	}{
		{
			name:   "no checks returns 100",
			checks: nil,
			want:   100,
		},
		{
			name: "passing and skipped checks return 100",
			checks: []HealthCheck{
				{RuleID: "C01", Status: statusPass},
				{RuleID: "R01", Status: statusSkip},
			},
			want: 100,
		},
		{
			name: "warnings reduce score",
			checks: []HealthCheck{
				{RuleID: "R01", Status: statusWarn, IssueCount: 2},
			},
			want: 80,
		},
		{
			name: "errors count double",
			checks: []HealthCheck{
				{RuleID: "C03", Status: statusError, IssueCount: 2},
			},
			want: 60,
		},
		{
			name: "clamped at 0",
			checks: []HealthCheck{
				{RuleID: "C03", Status: statusError, IssueCount: 20},
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, calculateHealthScore(tt.checks))
		})
	}
}

func TestGetRecommendation(t *testing.T) {
	for _, id := range []string{"C01", "C02", "C03", "E01", "E02", "R01", "R02"} {
		assert.NotEmpty(t, getRecommendation(id), "expected recommendation for %s", id)
	}
	assert.Empty(t, getRecommendation("UNKNOWN"))
}

func TestGenerateRecommendations(t *testing.T) {
	checks := []HealthCheck{
		{RuleID: "C03", Status: statusError, IssueCount: 1},
		{RuleID: "R01", Status: statusWarn, IssueCount: 2},
		{RuleID: "R02", Status: statusPass},
	}

	recommendations := generateRecommendations(checks)

	require.Len(t, recommendations, 2)
	assert.Contains(t, recommendations[0], "leapcalc validate")
	assert.Contains(t, recommendations[1], "Remove configured results")
}

func doctorJSON(t *testing.T, dir string) DoctorOutput {
	t.Helper()
	out, _, err := execute(t, NewDoctorCommand(), dir, "json")
	require.NoError(t, err)
	var got DoctorOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	return got
}

func statuses(out DoctorOutput) map[string]string {
	m := make(map[string]string, len(out.HealthChecks))
	for _, c := range out.HealthChecks {
		m[c.RuleID] = c.Status
	}
	return m
}

func TestDoctor_HealthyProject(t *testing.T) {
	dir := clitestutil.SetupTestProject(t)

	got := doctorJSON(t, dir)
	assert.Equal(t, 100, got.Score)
	assert.Zero(t, got.IssueCount)
	assert.Empty(t, got.Recommendations)
	assert.Equal(t, 2, got.Summary.Parameters)
	assert.Equal(t, 2, got.Summary.Results)
	assert.Equal(t, 5, got.Summary.Units)
	for id, status := range statuses(got) {
		assert.Equal(t, statusPass, status, id)
	}
}

func TestDoctor_BrokenEngine(t *testing.T) {
	dir := clitestutil.SetupTestProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "engine.star"), []byte("def defaults(:\n"), 0600))

	got := doctorJSON(t, dir)
	s := statuses(got)
	assert.Equal(t, statusError, s["E01"])
	assert.Equal(t, statusSkip, s["E02"])
	assert.Equal(t, statusSkip, s["R01"])
	assert.Equal(t, 80, got.Score)
	assert.NotEmpty(t, got.Recommendations)
}

func TestDoctor_MissingResult(t *testing.T) {
	dir := clitestutil.SetupTestProject(t)
	cfg := `app_name: Rectangle
file_ending: lcalc
results:
  - path: [A]
    uom: cm^2
  - path: [V]
    uom: cm^3
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leapcalc.yaml"), []byte(cfg), 0600))

	got := doctorJSON(t, dir)
	s := statuses(got)
	assert.Equal(t, statusPass, s["E02"])
	assert.Equal(t, statusWarn, s["R01"])
	assert.Equal(t, 90, got.Score)
}

func TestDoctor_Markdown(t *testing.T) {
	dir := clitestutil.SetupTestProject(t)

	out, _, err := execute(t, NewDoctorCommand(), dir, "markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "# leapcalc Project Health Report")
	assert.Contains(t, out, "### Engine")
	assert.Contains(t, out, "- **[PASS]** E02: engine-run")
	assert.Contains(t, out, "**100/100**")
}

func sampleDoctorOutput() *DoctorOutput {
	return finish(&DoctorOutput{
		Summary: ProjectSummary{ConfigFile: "leapcalc.yaml", EngineScript: "engine.star", Parameters: 2, Results: 2},
		HealthChecks: []HealthCheck{
			{RuleID: "C01", Name: "config-file", Group: "configuration", Status: statusPass},
			{RuleID: "R01", Name: "results-present", Group: "results", Status: statusWarn, IssueCount: 1, Details: []string{"V"}},
		},
	})
}

func TestRenderDoctor(t *testing.T) {
	t.Run("markdown", func(t *testing.T) {
		tr := clitestutil.NewTestRendererMarkdown()
		renderDoctorMarkdown(tr.Renderer, sampleDoctorOutput())

		md := tr.Output()
		clitestutil.AssertValidMarkdown(t, md)
		clitestutil.AssertOutputMode(t, tr, output.ModeMarkdown)
		clitestutil.AssertContains(t, md, "- **[WARN]** R01: results-present (1 issues)")
		clitestutil.AssertContains(t, md, "  - V")
		clitestutil.AssertContains(t, md, "## Recommendations")
	})

	t.Run("text", func(t *testing.T) {
		tr := clitestutil.NewTestRendererText()
		renderDoctorText(tr.Renderer, sampleDoctorOutput())

		text := tr.Output()
		clitestutil.AssertContains(t, text, "R01: results-present (1 issues)")
		clitestutil.AssertContains(t, text, "90/100")
		clitestutil.AssertNotContains(t, text, "**")
	})
}

func TestRenderDoctor_Modes(t *testing.T) {
	t.Run("auto without a terminal is markdown", func(t *testing.T) {
		tr := clitestutil.NewTestRendererAuto()
		require.NoError(t, renderDoctor(tr.Renderer, sampleDoctorOutput()))

		clitestutil.AssertOutputMode(t, tr, output.ModeMarkdown)
		clitestutil.AssertContains(t, tr.Output(), "# leapcalc Project Health Report")
	})

	t.Run("json", func(t *testing.T) {
		tr := clitestutil.NewTestRendererJSON()
		require.NoError(t, renderDoctor(tr.Renderer, sampleDoctorOutput()))
		clitestutil.AssertOutputMode(t, tr, output.ModeJSON)

		var got DoctorOutput
		require.NoError(t, json.Unmarshal(tr.Out.Bytes(), &got))
		assert.Equal(t, 90, got.Score)
		assert.Equal(t, 1, got.IssueCount)
		require.Len(t, got.HealthChecks, 2)
		assert.Equal(t, "R01", got.HealthChecks[1].RuleID)
	})

	t.Run("text without a terminal has no escape codes", func(t *testing.T) {
		tr := clitestutil.NewTestRenderer(output.ModeText, false)
		require.NoError(t, renderDoctor(tr.Renderer, sampleDoctorOutput()))

		clitestutil.AssertNoANSI(t, tr.Output())
		clitestutil.AssertContains(t, tr.Output(), "90/100")
	})
}
