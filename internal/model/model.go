// Package model orchestrates a calculation engine, its configuration and the
// scenarios built from it.
package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leapstack-labs/leapcalc/internal/casestudy"
	"github.com/leapstack-labs/leapcalc/internal/config"
	"github.com/leapstack-labs/leapcalc/internal/engine"
	"github.com/leapstack-labs/leapcalc/internal/metrics"
	"github.com/leapstack-labs/leapcalc/internal/notifier"
	"github.com/leapstack-labs/leapcalc/internal/scenario"
	"github.com/leapstack-labs/leapcalc/internal/snapshot"
	"github.com/leapstack-labs/leapcalc/internal/task"
	"github.com/leapstack-labs/leapcalc/internal/validation"
	"github.com/leapstack-labs/leapcalc/pkg/core"
	"github.com/leapstack-labs/leapcalc/pkg/units"
)

// Errors returned by Model operations.
var (
	ErrNotInitialised         = errors.New("model is not initialised")
	ErrCalculationInProgress  = errors.New("a calculation is already in progress")
	ErrScenarioNotFound       = errors.New("scenario not found")
	ErrScenarioExists         = errors.New("scenario already exists")
	ErrBuiltinScenario        = errors.New("built-in scenario cannot be changed")
	ErrParameterNotConfigured = errors.New("parameter is not configured")
)

// Model owns the scenarios of one engine. All methods are safe for
// concurrent use.
type Model struct {
	engine   core.CalculationEngine
	cfg      *config.Config
	reg      *units.Registry
	logger   *slog.Logger
	metrics  *metrics.Recorder
	out      *engine.OutputBuffer
	notifier *notifier.Notifier

	running atomic.Bool

	mu        sync.RWMutex
	scenarios map[string]*scenario.Scenario
	units     map[string]units.Unit
}

// Option configures a Model.
type Option func(*Model)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Model) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics records calculation outcomes on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(m *Model) { m.metrics = r }
}

// New creates a model. Call InitialiseEngine and FinalizeInitialisation
// before using scenarios.
func New(eng core.CalculationEngine, cfg *config.Config, reg *units.Registry, opts ...Option) *Model {
	if cfg == nil {
		cfg = &config.Config{Sweep: config.SweepConfig{OnFailContinue: true}}
		cfg.ApplyDefaults()
	}
	m := &Model{
		engine:    eng,
		cfg:       cfg,
		reg:       reg,
		logger:    slog.New(slog.DiscardHandler),
		out:       engine.NewOutputBuffer(),
		notifier:  notifier.New(),
		scenarios: make(map[string]*scenario.Scenario),
		units:     make(map[string]units.Unit),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the configuration the model was built with.
func (m *Model) Config() *config.Config { return m.cfg }

// Registry returns the unit registry.
func (m *Model) Registry() *units.Registry { return m.reg }

// Output returns the buffer receiving engine text output.
func (m *Model) Output() *engine.OutputBuffer { return m.out }

// Subscribe returns a channel pinged whenever scenarios change.
func (m *Model) Subscribe() <-chan notifier.Event { return m.notifier.Subscribe() }

// Unsubscribe stops delivery to ch.
func (m *Model) Unsubscribe(ch <-chan notifier.Event) { m.notifier.Unsubscribe(ch) }

// Close releases all subscribers.
func (m *Model) Close() { m.notifier.Close() }

// InitialiseEngine runs the engine's optional start-up in the background,
// writing its output to Output.
func (m *Model) InitialiseEngine(ctx context.Context) *task.Task[struct{}] {
	return task.Go(ctx, m.logger, "initialise", func(ctx context.Context) (struct{}, error) {
		if in, ok := m.engine.(core.Initializer); ok {
			if err := in.Initialise(ctx, m.out); err != nil {
				return struct{}{}, fmt.Errorf("initialise engine: %w", err)
			}
		}
		m.notifier.Broadcast(notifier.Event{Kind: notifier.InitializationDone})
		return struct{}{}, nil
	})
}

// FinalizeInitialisation validates the engine defaults against the
// configuration and creates the Default and Current scenarios. Configuration
// mismatches are returned as data; the error is reserved for engine failures.
func (m *Model) FinalizeInitialisation() ([]config.ConfigurationError, error) {
	defaults, err := m.engine.DefaultParameters()
	if err != nil {
		return nil, fmt.Errorf("default parameters: %w", err)
	}
	if defaults == nil {
		defaults = core.NewStructure()
	}
	res := validation.InitializeParameters(m.reg, defaults, m.cfg.Parameters)
	errs := res.Errors

	seen := make(map[string]units.Unit)
	for i, s := range m.cfg.Units {
		u, err := m.reg.ParseUnit(s)
		if err != nil {
			errs = append(errs, validation.UnitError([]string{"units", strconv.Itoa(i)}, s, err))
			continue
		}
		seen[u.String()] = u
	}
	for _, s := range res.Units {
		if u, err := m.reg.ParseUnit(s); err == nil {
			seen[u.String()] = u
		}
	}
	for _, item := range m.cfg.Results {
		if item.UOM == "" {
			continue
		}
		u, err := m.reg.ParseUnit(item.UOM)
		if err != nil {
			errs = append(errs, validation.UnitError(item.Path, item.UOM, err))
			continue
		}
		seen[u.String()] = u
	}

	def := scenario.New(defaults)
	cur, err := def.Clone()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.scenarios = map[string]*scenario.Scenario{
		scenario.Default: def,
		scenario.Current: cur,
	}
	m.units = seen
	m.mu.Unlock()

	if len(errs) > 0 {
		m.logger.Warn("configuration does not match engine", "errors", len(errs))
	}
	m.notifier.Broadcast(notifier.Event{Kind: notifier.ScenariosChanged})
	return errs, nil
}

// RunEngine calculates a copy of the Current scenario in the background. On
// success the copy becomes Converged; Current receives the results as well
// unless it was edited meanwhile. A failed run leaves all scenarios as they
// were and the task error is a *core.CalculationFailed.
func (m *Model) RunEngine(ctx context.Context) (*task.Task[*scenario.Scenario], error) {
	if !m.running.CompareAndSwap(false, true) {
		return nil, ErrCalculationInProgress
	}
	m.mu.RLock()
	cur, ok := m.scenarios[scenario.Current]
	var scn *scenario.Scenario
	var err error
	if ok {
		scn, err = cur.Clone()
	}
	m.mu.RUnlock()
	if !ok || err != nil {
		m.running.Store(false)
		if err != nil {
			return nil, err
		}
		return nil, ErrNotInitialised
	}
	taken := scn.Modified

	return task.Go(ctx, m.logger, "calculate", func(ctx context.Context) (*scenario.Scenario, error) {
		defer m.running.Store(false)
		return m.calculate(ctx, scn, taken)
	}), nil
}

func (m *Model) calculate(ctx context.Context, scn *scenario.Scenario, taken time.Time) (*scenario.Scenario, error) {
	sk, keepsState := m.engine.(core.StateKeeper)
	if keepsState && scn.InternalState != nil {
		if err := sk.SetInternalState(scn.InternalState); err != nil {
			m.logger.Warn("restoring engine state failed", "error", err)
		}
	}

	start := time.Now()
	res, err := m.engine.Calculate(ctx, scn.Parameters)
	if err != nil {
		cf := core.AsCalculationFailed(err)
		var direct *core.CalculationFailed
		if errors.As(err, &direct) {
			m.metrics.ObserveCalculation(metrics.OutcomeFailed, time.Since(start))
		} else {
			m.metrics.ObserveCalculation(metrics.OutcomeError, time.Since(start))
			m.logger.Warn("unexpected engine error", "error", err)
		}
		m.notifier.Broadcast(notifier.Event{Kind: notifier.CalculationFailed, Scenario: scenario.Current, Message: cf.Message})
		return nil, cf
	}
	m.metrics.ObserveCalculation(metrics.OutcomeSuccess, time.Since(start))

	if res == nil {
		res = core.NewStructure()
	}
	scn.Results = res
	if keepsState {
		state, err := sk.InternalState()
		if err != nil {
			m.logger.Warn("reading engine state failed", "error", err)
		}
		scn.InternalState = state
	}
	published, err := scn.Clone()
	if err != nil {
		return nil, err
	}
	forCurrent, err := scn.Clone()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.scenarios[scenario.Converged] = published
	if cur, ok := m.scenarios[scenario.Current]; ok && cur.Modified.Equal(taken) {
		cur.Results = forCurrent.Results
		cur.InternalState = forCurrent.InternalState
	}
	m.mu.Unlock()

	m.logger.Debug("calculation published", "results", res.NumLeaves())
	m.notifier.Broadcast(notifier.Event{Kind: notifier.CalculationDone, Scenario: scenario.Converged})
	return scn, nil
}

// Running reports whether a calculation is outstanding.
func (m *Model) Running() bool { return m.running.Load() }

// Scenario returns a copy of the named scenario.
func (m *Model) Scenario(name string) (*scenario.Scenario, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scenarios[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrScenarioNotFound, name)
	}
	return s.Clone()
}

// ScenarioNames lists the built-in slots that exist, followed by the user
// scenarios in alphabetical order.
func (m *Model) ScenarioNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names, user []string
	for _, b := range []string{scenario.Default, scenario.Current, scenario.Converged} {
		if _, ok := m.scenarios[b]; ok {
			names = append(names, b)
		}
	}
	for name := range m.scenarios {
		if !scenario.IsBuiltin(name) {
			user = append(user, name)
		}
	}
	sort.Strings(user)
	return append(names, user...)
}

// CopyScenario stores a copy of src under dst. dst may be Current, which
// activates a saved scenario; other built-in slots and existing names are
// refused.
func (m *Model) CopyScenario(src, dst string) error {
	if dst == "" {
		return fmt.Errorf("%w: empty name", ErrScenarioNotFound)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scenarios[src]
	if !ok {
		return fmt.Errorf("%w: %q", ErrScenarioNotFound, src)
	}
	if scenario.IsBuiltin(dst) && dst != scenario.Current {
		return fmt.Errorf("%w: %q", ErrBuiltinScenario, dst)
	}
	if _, exists := m.scenarios[dst]; exists && dst != scenario.Current {
		return fmt.Errorf("%w: %q", ErrScenarioExists, dst)
	}
	c, err := s.Clone()
	if err != nil {
		return err
	}
	m.scenarios[dst] = c
	m.changed(dst)
	return nil
}

// RenameScenario renames a user scenario.
func (m *Model) RenameScenario(oldName, newName string) error {
	if scenario.IsBuiltin(oldName) || scenario.IsBuiltin(newName) {
		return ErrBuiltinScenario
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scenarios[oldName]
	if !ok {
		return fmt.Errorf("%w: %q", ErrScenarioNotFound, oldName)
	}
	if oldName == newName {
		return nil
	}
	if _, exists := m.scenarios[newName]; exists {
		return fmt.Errorf("%w: %q", ErrScenarioExists, newName)
	}
	delete(m.scenarios, oldName)
	m.scenarios[newName] = s
	m.changed(newName)
	return nil
}

// DeleteScenario removes a user scenario.
func (m *Model) DeleteScenario(name string) error {
	if scenario.IsBuiltin(name) {
		return ErrBuiltinScenario
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scenarios[name]; !ok {
		return fmt.Errorf("%w: %q", ErrScenarioNotFound, name)
	}
	delete(m.scenarios, name)
	m.changed(name)
	return nil
}

// SetParam writes one parameter of the Current scenario, clearing its
// results.
func (m *Model) SetParam(path core.Path, value units.Quantity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.scenarios[scenario.Current]
	if !ok {
		return ErrNotInitialised
	}
	if err := cur.SetParam(path, value); err != nil {
		return err
	}
	m.changed(scenario.Current)
	return nil
}

// changed must be called with mu held.
func (m *Model) changed(name string) {
	m.notifier.Broadcast(notifier.Event{Kind: notifier.ScenariosChanged, Scenario: name})
}

// RegisterUnit adds a unit to the set offered by CompatibleUnits.
func (m *Model) RegisterUnit(s string) error {
	u, err := m.reg.ParseUnit(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.units[u.String()] = u
	m.mu.Unlock()
	return nil
}

// Units returns the registered units, sorted.
func (m *Model) Units() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.units))
	for s := range m.units {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// CompatibleUnits returns the registered units q can be converted to,
// always including q's own unit, sorted.
func (m *Model) CompatibleUnits(q units.Quantity) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	own := q.Unit.String()
	out := []string{own}
	for s, u := range m.units {
		if s != own && q.IsCompatibleWith(u) {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// ParamInfo describes the default sweep for one parameter.
type ParamInfo struct {
	Name  string
	Value units.Quantity
	Spec  *casestudy.ParameterSpec
	Units []string
}

// Default sweep around the current value.
const (
	paramInfoSpan  = 0.1
	paramInfoCount = 5
)

// ParamInfo proposes a sweep of ±10 % around the current value of path,
// clipped to the configured bounds, in 5 steps.
func (m *Model) ParamInfo(path core.Path) (*ParamInfo, error) {
	item, ok := m.cfg.Parameter(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrParameterNotConfigured, path)
	}
	m.mu.RLock()
	cur, ok := m.scenarios[scenario.Current]
	var value units.Quantity
	var err error
	if ok {
		value, err = cur.Parameters.Quantity(path)
	}
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotInitialised
	}
	if err != nil {
		return nil, err
	}

	lo, hi := value.Value*(1-paramInfoSpan), value.Value*(1+paramInfoSpan)
	if lo > hi {
		lo, hi = hi, lo
	}
	if item.Min != nil {
		bound, err := m.boundIn(item, *item.Min, value.Unit)
		if err != nil {
			return nil, err
		}
		lo = math.Max(lo, bound)
	}
	if item.Max != nil {
		bound, err := m.boundIn(item, *item.Max, value.Unit)
		if err != nil {
			return nil, err
		}
		hi = math.Min(hi, bound)
	}
	spec, err := casestudy.NewParameterSpec(path,
		units.New(lo, value.Unit), units.New(hi, value.Unit),
		casestudy.WithCount(paramInfoCount), casestudy.WithName(item.DisplayName()))
	if err != nil {
		return nil, err
	}
	return &ParamInfo{
		Name:  item.DisplayName(),
		Value: value,
		Spec:  spec,
		Units: m.CompatibleUnits(value),
	}, nil
}

// boundIn expresses a configured bound, given in the item's UOM, in unit.
func (m *Model) boundIn(item config.ParameterItem, bound float64, unit units.Unit) (float64, error) {
	if item.UOM == "" {
		return bound, nil
	}
	uom, err := m.reg.ParseUnit(item.UOM)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", item.DisplayName(), err)
	}
	q, err := units.New(bound, uom).To(unit)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", item.DisplayName(), err)
	}
	return q.Value, nil
}

// DefineCaseStudy prepares a sweep on the Converged scenario.
func (m *Model) DefineCaseStudy(opts ...casestudy.Option) (*casestudy.CaseStudy, error) {
	m.mu.RLock()
	conv, ok := m.scenarios[scenario.Converged]
	m.mu.RUnlock()
	if !ok {
		return nil, casestudy.ErrNoResults
	}
	base := []casestudy.Option{
		casestudy.WithLogger(m.logger),
		casestudy.WithMetrics(m.metrics),
		casestudy.WithContinueOnFailure(m.cfg.Sweep.OnFailContinue),
	}
	return casestudy.New(m.engine, conv, append(base, opts...)...)
}

// Serialize captures all scenarios and the unit set.
func (m *Model) Serialize() snapshot.Data {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d := snapshot.Data{Scenarios: make(map[string]scenario.Data, len(m.scenarios))}
	for name, s := range m.scenarios {
		d.Scenarios[name] = s.Serialize()
	}
	for s := range m.units {
		d.Units = append(d.Units, s)
	}
	slices.Sort(d.Units)
	return d
}

// Deserialize replaces all scenarios and units with d. Nothing changes when
// d cannot be read completely.
func (m *Model) Deserialize(d snapshot.Data) error {
	scenarios := make(map[string]*scenario.Scenario, len(d.Scenarios))
	for name, sd := range d.Scenarios {
		s, err := scenario.Deserialize(m.reg, sd)
		if err != nil {
			return fmt.Errorf("scenario %q: %w", name, err)
		}
		scenarios[name] = s
	}
	set := make(map[string]units.Unit, len(d.Units))
	for _, s := range d.Units {
		u, err := m.reg.ParseUnit(s)
		if err != nil {
			return fmt.Errorf("unit %q: %w", s, err)
		}
		set[u.String()] = u
	}
	m.mu.Lock()
	m.scenarios = scenarios
	m.units = set
	m.mu.Unlock()
	m.notifier.Broadcast(notifier.Event{Kind: notifier.ScenariosChanged})
	return nil
}
