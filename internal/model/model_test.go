package model

import (
	"context"
	"testing"
	"time"

	"github.com/leapstack-labs/leapcalc/internal/casestudy"
	"github.com/leapstack-labs/leapcalc/internal/config"
	"github.com/leapstack-labs/leapcalc/internal/metrics"
	"github.com/leapstack-labs/leapcalc/internal/notifier"
	"github.com/leapstack-labs/leapcalc/internal/scenario"
	"github.com/leapstack-labs/leapcalc/internal/testutil"
	"github.com/leapstack-labs/leapcalc/pkg/core"
	"github.com/leapstack-labs/leapcalc/pkg/units"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func testConfig() *config.Config {
	cfg := &config.Config{
		Units: []string{"m", "mm"},
		Parameters: []config.ParameterItem{
			{Path: []string{"a"}, UOM: "mm", Min: ptr(0), Max: ptr(100), Name: "Width"},
			{Path: []string{"b"}, UOM: "cm"},
		},
		Results: []config.ResultItem{
			{Path: []string{"A"}, UOM: "cm^2"},
		},
		Sweep: config.SweepConfig{OnFailContinue: true},
	}
	cfg.ApplyDefaults()
	return cfg
}

func newModel(t *testing.T, cfg *config.Config, opts ...Option) (*Model, *testutil.Rectangle) {
	t.Helper()
	reg := units.NewRegistry()
	eng := testutil.NewRectangle(reg)
	m := New(eng, cfg, reg, append([]Option{WithLogger(testutil.NewTestLogger(t))}, opts...)...)
	t.Cleanup(m.Close)
	return m, eng
}

func initialised(t *testing.T, cfg *config.Config, opts ...Option) (*Model, *testutil.Rectangle) {
	t.Helper()
	m, eng := newModel(t, cfg, opts...)
	_, err := m.InitialiseEngine(context.Background()).Wait(context.Background())
	require.NoError(t, err)
	errs, err := m.FinalizeInitialisation()
	require.NoError(t, err)
	require.Empty(t, errs)
	return m, eng
}

func run(t *testing.T, m *Model) (*scenario.Scenario, error) {
	t.Helper()
	tk, err := m.RunEngine(context.Background())
	require.NoError(t, err)
	return tk.Wait(context.Background())
}

func TestInitialise(t *testing.T) {
	m, _ := initialised(t, testConfig())

	assert.Equal(t, "rectangle engine ready\n", m.Output().String())
	assert.Equal(t, []string{scenario.Default, scenario.Current}, m.ScenarioNames())

	cur, err := m.Scenario(scenario.Current)
	require.NoError(t, err)
	a, err := cur.Parameters.Quantity(core.Path{"a"})
	require.NoError(t, err)
	assert.Equal(t, "10 mm", a.String())
	assert.False(t, cur.HasResults())

	assert.Equal(t, []string{"cm", "cm^2", "m", "mm"}, m.Units())
}

func TestFinalizeInitialisation_ConfigurationErrors(t *testing.T) {
	cfg := testConfig()
	cfg.Units = append(cfg.Units, "furlong")
	cfg.Parameters = append(cfg.Parameters, config.ParameterItem{Path: []string{"c"}, UOM: "m"})
	cfg.Results = append(cfg.Results, config.ResultItem{Path: []string{"P"}, UOM: "m/"})
	m, _ := newModel(t, cfg)

	errs, err := m.FinalizeInitialisation()
	require.NoError(t, err)
	require.Len(t, errs, 3)
	assert.Equal(t, config.KindParameterNotFound, errs[0].Kind)
	assert.Equal(t, config.KindUndefinedUnit, errs[1].Kind)
	assert.Equal(t, []string{"units", "2"}, errs[1].Path)
	assert.Equal(t, config.KindUnitSyntax, errs[2].Kind)
	assert.Equal(t, []string{"P"}, errs[2].Path)

	// the scenarios exist regardless
	_, err = m.Scenario(scenario.Default)
	assert.NoError(t, err)
}

func TestRunEngine(t *testing.T) {
	promReg := prometheus.NewRegistry()
	rec, err := metrics.NewRecorder(promReg)
	require.NoError(t, err)
	m, _ := initialised(t, testConfig(), WithMetrics(rec))

	_, err = m.Scenario(scenario.Converged)
	assert.ErrorIs(t, err, ErrScenarioNotFound)

	got, err := run(t, m)
	require.NoError(t, err)
	area, err := got.Results.Quantity(core.Path{"A"})
	require.NoError(t, err)
	assert.InDelta(t, 1, cm2(t, m.Registry(), area), 1e-9)

	conv, err := m.Scenario(scenario.Converged)
	require.NoError(t, err)
	assert.True(t, conv.HasResults())
	assert.Equal(t, map[string]any{"calls": float64(1)}, conv.InternalState)

	cur, err := m.Scenario(scenario.Current)
	require.NoError(t, err)
	assert.True(t, cur.Results.Equal(conv.Results))

	def, err := m.Scenario(scenario.Default)
	require.NoError(t, err)
	assert.False(t, def.HasResults())

	assert.Equal(t, 1, promtest.CollectAndCount(promReg, "leapcalc_calculations_total"))
	assert.False(t, m.Running())
}

// cm2 expresses an area in cm^2 whatever product unit the engine used.
func cm2(t *testing.T, reg *units.Registry, q units.Quantity) float64 {
	t.Helper()
	r, err := q.Ratio(reg.MustQuantity(1, "cm^2"))
	require.NoError(t, err)
	return r
}

func TestRunEngine_InProgress(t *testing.T) {
	m, eng := initialised(t, testConfig())
	eng.Delay = 50 * time.Millisecond

	tk, err := m.RunEngine(context.Background())
	require.NoError(t, err)
	_, err = m.RunEngine(context.Background())
	assert.ErrorIs(t, err, ErrCalculationInProgress)

	_, err = tk.Wait(context.Background())
	require.NoError(t, err)

	eng.Delay = 0
	_, err = run(t, m)
	assert.NoError(t, err)
}

func TestRunEngine_Failure(t *testing.T) {
	m, eng := initialised(t, testConfig())
	_, err := run(t, m)
	require.NoError(t, err)
	before, err := m.Scenario(scenario.Converged)
	require.NoError(t, err)

	require.NoError(t, m.SetParam(core.Path{"a"}, m.Registry().MustQuantity(50, "mm")))
	eng.FailAbove = 2
	ch := m.Subscribe()

	_, err = run(t, m)
	var cf *core.CalculationFailed
	require.ErrorAs(t, err, &cf)
	assert.Contains(t, cf.Message, "too large")

	after, err := m.Scenario(scenario.Converged)
	require.NoError(t, err)
	assert.True(t, before.Parameters.Equal(after.Parameters))

	cur, err := m.Scenario(scenario.Current)
	require.NoError(t, err)
	assert.False(t, cur.HasResults())

	select {
	case e := <-ch:
		assert.Equal(t, notifier.CalculationFailed, e.Kind)
	case <-time.After(time.Second):
		t.Fatal("no failure event")
	}
}

func TestRunEngine_CurrentEditedMeanwhile(t *testing.T) {
	m, eng := initialised(t, testConfig())
	eng.Delay = 50 * time.Millisecond

	tk, err := m.RunEngine(context.Background())
	require.NoError(t, err)
	require.NoError(t, m.SetParam(core.Path{"b"}, m.Registry().MustQuantity(2, "cm")))
	_, err = tk.Wait(context.Background())
	require.NoError(t, err)

	cur, err := m.Scenario(scenario.Current)
	require.NoError(t, err)
	assert.False(t, cur.HasResults())

	conv, err := m.Scenario(scenario.Converged)
	require.NoError(t, err)
	b, err := conv.Parameters.Quantity(core.Path{"b"})
	require.NoError(t, err)
	assert.Equal(t, "1 cm", b.String())
}

func TestRunEngine_RestoresState(t *testing.T) {
	m, eng := initialised(t, testConfig())
	_, err := run(t, m)
	require.NoError(t, err)
	_, err = run(t, m)
	require.NoError(t, err)
	assert.Equal(t, 2, eng.Calls())

	require.NoError(t, m.CopyScenario(scenario.Default, scenario.Current))
	require.NoError(t, eng.SetInternalState(map[string]any{"calls": float64(7)}))
	_, err = run(t, m)
	require.NoError(t, err)
	// Default carries no state, so the engine keeps its own
	assert.Equal(t, 8, eng.Calls())
}

func TestRunEngine_NotInitialised(t *testing.T) {
	m, _ := newModel(t, testConfig())
	_, err := m.RunEngine(context.Background())
	assert.ErrorIs(t, err, ErrNotInitialised)
	assert.False(t, m.Running())
}

func TestScenarioCollection(t *testing.T) {
	m, _ := initialised(t, testConfig())

	require.NoError(t, m.CopyScenario(scenario.Current, "base"))
	require.NoError(t, m.CopyScenario(scenario.Current, "alt"))
	assert.Equal(t, []string{scenario.Default, scenario.Current, "alt", "base"}, m.ScenarioNames())

	assert.ErrorIs(t, m.CopyScenario(scenario.Current, "base"), ErrScenarioExists)
	assert.ErrorIs(t, m.CopyScenario(scenario.Current, scenario.Default), ErrBuiltinScenario)
	assert.ErrorIs(t, m.CopyScenario("nope", "x"), ErrScenarioNotFound)

	require.NoError(t, m.RenameScenario("alt", "zeta"))
	assert.ErrorIs(t, m.RenameScenario("zeta", "base"), ErrScenarioExists)
	assert.ErrorIs(t, m.RenameScenario(scenario.Current, "x"), ErrBuiltinScenario)
	assert.ErrorIs(t, m.RenameScenario("missing", "x"), ErrScenarioNotFound)

	require.NoError(t, m.DeleteScenario("zeta"))
	assert.ErrorIs(t, m.DeleteScenario("zeta"), ErrScenarioNotFound)
	assert.ErrorIs(t, m.DeleteScenario(scenario.Default), ErrBuiltinScenario)
	assert.Equal(t, []string{scenario.Default, scenario.Current, "base"}, m.ScenarioNames())

	// activating a saved scenario overwrites Current
	require.NoError(t, m.SetParam(core.Path{"a"}, m.Registry().MustQuantity(20, "mm")))
	require.NoError(t, m.CopyScenario("base", scenario.Current))
	cur, err := m.Scenario(scenario.Current)
	require.NoError(t, err)
	a, err := cur.Parameters.Quantity(core.Path{"a"})
	require.NoError(t, err)
	assert.Equal(t, "10 mm", a.String())
}

func TestScenario_ReturnsCopy(t *testing.T) {
	m, _ := initialised(t, testConfig())
	cur, err := m.Scenario(scenario.Current)
	require.NoError(t, err)
	require.NoError(t, cur.SetParam(core.Path{"a"}, m.Registry().MustQuantity(99, "mm")))

	again, err := m.Scenario(scenario.Current)
	require.NoError(t, err)
	a, err := again.Parameters.Quantity(core.Path{"a"})
	require.NoError(t, err)
	assert.Equal(t, "10 mm", a.String())
}

func TestSetParam(t *testing.T) {
	m, _ := initialised(t, testConfig())
	_, err := run(t, m)
	require.NoError(t, err)
	ch := m.Subscribe()

	require.NoError(t, m.SetParam(core.Path{"a"}, m.Registry().MustQuantity(2, "cm")))
	cur, err := m.Scenario(scenario.Current)
	require.NoError(t, err)
	assert.False(t, cur.HasResults())

	e := <-ch
	assert.Equal(t, notifier.ScenariosChanged, e.Kind)
	assert.Equal(t, scenario.Current, e.Scenario)

	var ke *core.KeyError
	assert.ErrorAs(t, m.SetParam(core.Path{"x", "y"}, units.Scalar(1)), &ke)
}

func TestUnits(t *testing.T) {
	m, _ := initialised(t, testConfig())
	require.NoError(t, m.RegisterUnit("km"))
	require.NoError(t, m.RegisterUnit("s"))
	assert.Error(t, m.RegisterUnit("m/"))

	got := m.CompatibleUnits(m.Registry().MustQuantity(1, "in"))
	assert.Equal(t, []string{"cm", "in", "km", "m", "mm"}, got)

	got = m.CompatibleUnits(m.Registry().MustQuantity(1, "h"))
	assert.Equal(t, []string{"h", "s"}, got)
}

func TestParamInfo(t *testing.T) {
	cfg := testConfig()
	cfg.Parameters[0].Max = ptr(10.5)
	m, _ := initialised(t, cfg)

	info, err := m.ParamInfo(core.Path{"a"})
	require.NoError(t, err)
	assert.Equal(t, "Width", info.Name)
	assert.Equal(t, 5, info.Spec.Num)
	assert.InDelta(t, 9, info.Spec.Min.Value, 1e-9)
	assert.InDelta(t, 10.5, info.Spec.Max.Value, 1e-9)
	assert.Equal(t, "mm", info.Spec.Min.Unit.String())
	assert.Contains(t, info.Units, "m")

	info, err = m.ParamInfo(core.Path{"b"})
	require.NoError(t, err)
	assert.Equal(t, "b", info.Name)
	assert.InDelta(t, 1.1, info.Spec.Max.Value, 1e-9)

	_, err = m.ParamInfo(core.Path{"c"})
	assert.ErrorIs(t, err, ErrParameterNotConfigured)
}

func TestParamInfo_BoundsInConfiguredUnit(t *testing.T) {
	m, _ := initialised(t, testConfig())
	// a is configured in mm with max 100, the current value is in m
	require.NoError(t, m.SetParam(core.Path{"a"}, m.Registry().MustQuantity(0.095, "m")))

	info, err := m.ParamInfo(core.Path{"a"})
	require.NoError(t, err)
	assert.Equal(t, "m", info.Spec.Max.Unit.String())
	assert.InDelta(t, 0.0855, info.Spec.Min.Value, 1e-9)
	assert.InDelta(t, 0.1, info.Spec.Max.Value, 1e-9)
}

func TestDefineCaseStudy(t *testing.T) {
	m, _ := initialised(t, testConfig())
	_, err := m.DefineCaseStudy()
	assert.ErrorIs(t, err, casestudy.ErrNoResults)

	_, err = run(t, m)
	require.NoError(t, err)
	cs, err := m.DefineCaseStudy(casestudy.WithContinueOnFailure(false))
	require.NoError(t, err)
	assert.False(t, cs.ContinueOnFailure())

	info, err := m.ParamInfo(core.Path{"a"})
	require.NoError(t, err)
	require.NoError(t, cs.AddParameter(info.Spec))

	sw, err := cs.Run(context.Background())
	require.NoError(t, err)
	res, outcome := sw.Wait()
	assert.Equal(t, casestudy.Completed, outcome)
	assert.Equal(t, 5, res.Len())
}

func TestSerializeRoundTrip(t *testing.T) {
	m, _ := initialised(t, testConfig())
	_, err := run(t, m)
	require.NoError(t, err)
	require.NoError(t, m.CopyScenario(scenario.Converged, "saved"))
	d := m.Serialize()

	assert.Equal(t, m.Units(), d.Units)
	assert.Len(t, d.Scenarios, 4)

	other, _ := newModel(t, testConfig())
	require.NoError(t, other.Deserialize(d))
	assert.Equal(t, m.ScenarioNames(), other.ScenarioNames())
	assert.Equal(t, m.Units(), other.Units())

	want, err := m.Scenario("saved")
	require.NoError(t, err)
	got, err := other.Scenario("saved")
	require.NoError(t, err)
	assert.True(t, want.Parameters.Equal(got.Parameters))
	assert.True(t, want.Modified.Equal(got.Modified))
	assert.Equal(t, want.InternalState, got.InternalState)
}

func TestDeserialize_Invalid(t *testing.T) {
	m, _ := initialised(t, testConfig())
	d := m.Serialize()
	d.Units = append(d.Units, "furlong")

	assert.Error(t, m.Deserialize(d))
	assert.Equal(t, []string{scenario.Default, scenario.Current}, m.ScenarioNames())
}
