package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapcalc/internal/cli/config"
	clitestutil "github.com/leapstack-labs/leapcalc/internal/cli/testutil"
	"github.com/leapstack-labs/leapcalc/internal/snapshot"
	"github.com/leapstack-labs/leapcalc/internal/testutil"
)

// execute runs cmd against the project in dir with the given output mode.
func execute(t *testing.T, cmd *cobra.Command, dir, mode string, args ...string) (string, string, error) {
	t.Helper()
	cfg, err := config.LoadConfig(filepath.Join(dir, "leapcalc.yaml"), nil)
	require.NoError(t, err)
	cfg.OutputFormat = mode

	ctx := config.WithConfig(context.Background(), cfg)
	ctx = config.WithLogger(ctx, testutil.NewTestLogger(t))

	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	// Mirror the root command, which silences usage and error output.
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	cmd.SetArgs(args)
	err = cmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

func TestCommandMetadata(t *testing.T) {
	tests := []struct {
		cmd   *cobra.Command
		use   string
		flags []string
	}{
		{NewRunCommand(), "run", []string{"set", "save", "as"}},
		{NewSweepCommand(), "sweep", []string{"param", "set", "select", "stop-on-fail", "xlsx", "snapshot", "metrics-addr", "locale"}},
		{NewValidateCommand(), "validate", []string{"watch"}},
		{NewScenariosCommand(), "scenarios", nil},
		{NewUnitsCommand(), "units <quantity>", nil},
		{NewDoctorCommand(), "doctor", nil},
		{NewInitCommand(), "init [directory]", []string{"force", "example", "name"}},
	}
	for _, tt := range tests {
		t.Run(tt.use, func(t *testing.T) {
			assert.Equal(t, tt.use, tt.cmd.Use)
			assert.NotEmpty(t, tt.cmd.Short, "Short should not be empty")
			for _, flag := range tt.flags {
				assert.NotNil(t, tt.cmd.Flags().Lookup(flag), "flag %q should exist", flag)
			}
		})
	}
}

func TestRunCommand_JSON(t *testing.T) {
	dir := clitestutil.SetupTestProject(t)

	out, _, err := execute(t, NewRunCommand(), dir, "json", "--set", "a=3", "--set", "b=0.04m")
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, map[string]string{"A": "12 cm^2", "P": "14 cm"}, got)
}

func TestRunCommand_SaveAs(t *testing.T) {
	dir := clitestutil.SetupTestProject(t)
	file := filepath.Join(dir, "scenarios.lcalc")

	out, _, err := execute(t, NewRunCommand(), dir, "csv", "--set", "a=2", "--as", "wide", "--save", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Path,Value,Unit")
	assert.Contains(t, out, "A,4,cm^2")

	d, err := snapshot.Load(file)
	require.NoError(t, err)
	assert.Contains(t, d.Scenarios, "wide")
	assert.Contains(t, d.Scenarios, "* Converged")
}

func TestRunCommand_Errors(t *testing.T) {
	dir := clitestutil.SetupTestProject(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"malformed assignment", []string{"--set", "a"}, "want path=value"},
		{"unknown parameter", []string{"--set", "c=1"}, "--set c"},
		{"incompatible unit", []string{"--set", "a=1kg"}, "not compatible"},
		{"calculation failure", []string{"--set", "a=2m"}, "a too wide"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, NewRunCommand(), dir, "json", tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateCommand(t *testing.T) {
	dir := clitestutil.SetupTestProject(t)

	out, _, err := execute(t, NewValidateCommand(), dir, "markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "No configuration errors.")

	out, _, err = execute(t, NewValidateCommand(), dir, "json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)

	cfg := `app_name: Broken
file_ending: lcalc
parameters:
  - path: [a]
    uom: kg
  - path: [c]
    uom: cm
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leapcalc.yaml"), []byte(cfg), 0600))

	out, _, err = execute(t, NewValidateCommand(), dir, "json")
	require.ErrorIs(t, err, errInvalidConfig)
	var errs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &errs))
	assert.Len(t, errs, 2)
}

func TestValidateCommand_MissingEngine(t *testing.T) {
	dir := clitestutil.SetupTestProject(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "engine.star")))

	_, _, err := execute(t, NewValidateCommand(), dir, "markdown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.star")
}

func TestUnitsCommand(t *testing.T) {
	dir := clitestutil.SetupTestProject(t)

	out, _, err := execute(t, NewUnitsCommand(), dir, "json", "3cm")
	require.NoError(t, err)

	var got []string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.ElementsMatch(t, []string{"3 cm", "30 mm", "0.03 m"}, got)

	_, _, err = execute(t, NewUnitsCommand(), dir, "json", "3 parsecs?")
	assert.Error(t, err)
}
