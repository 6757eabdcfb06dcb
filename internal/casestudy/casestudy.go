package casestudy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/leapstack-labs/leapcalc/internal/metrics"
	"github.com/leapstack-labs/leapcalc/internal/scenario"
	"github.com/leapstack-labs/leapcalc/pkg/core"
	"github.com/leapstack-labs/leapcalc/pkg/units"
)

// Errors returned by CaseStudy operations.
var (
	ErrNoResults          = errors.New("case study requires a scenario with results")
	ErrSweepRunning       = errors.New("a sweep is already running")
	ErrDuplicateParameter = errors.New("parameter already in case study")
	ErrParameterNotFound  = errors.New("parameter not found in case study")
	ErrIndexOutOfRange    = errors.New("parameter index out of range")
)

// EventKind distinguishes sweep events.
type EventKind int

const (
	// EventProgress reports a combination that was calculated.
	EventProgress EventKind = iota
	// EventFailed reports a combination that failed.
	EventFailed
)

func (k EventKind) String() string {
	if k == EventFailed {
		return "failed"
	}
	return "progress"
}

// Event is emitted after every executed combination. Index counts from 1.
type Event struct {
	Kind    EventKind
	Index   int
	Total   int
	Message string
}

// Outcome tells how a sweep ended.
type Outcome int

const (
	// Completed means every combination was executed.
	Completed Outcome = iota
	// Interrupted means Interrupt was called or the context was cancelled.
	Interrupted
	// Aborted means a combination failed and failures do not continue.
	Aborted
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Interrupted:
		return "interrupted"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// CaseStudy holds the sweep definition for one source scenario.
type CaseStudy struct {
	engine            core.CalculationEngine
	params            *core.Structure
	resultPaths       []core.Path
	continueOnFailure bool
	logger            *slog.Logger
	metrics           *metrics.Recorder

	mu        sync.Mutex
	specs     []*ParameterSpec
	running bool
	active  *Sweep
}

// Option configures a CaseStudy.
type Option func(*CaseStudy)

// WithContinueOnFailure sets whether a failed combination is skipped (true,
// the default) or ends the sweep.
func WithContinueOnFailure(v bool) Option {
	return func(c *CaseStudy) { c.continueOnFailure = v }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *CaseStudy) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records per-case outcomes on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(c *CaseStudy) { c.metrics = r }
}

// New creates a case study on a copy of source. The source must carry
// results; their paths become the result columns.
func New(engine core.CalculationEngine, source *scenario.Scenario, opts ...Option) (*CaseStudy, error) {
	if source == nil || !source.HasResults() {
		return nil, ErrNoResults
	}
	c := &CaseStudy{
		engine:            engine,
		params:            source.Parameters.Clone(),
		resultPaths:       source.Results.AllPaths(),
		continueOnFailure: true,
		logger:            slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ContinueOnFailure reports the failure policy.
func (c *CaseStudy) ContinueOnFailure() bool { return c.continueOnFailure }

// ResultPaths returns the result columns of every sweep.
func (c *CaseStudy) ResultPaths() []core.Path {
	return slices.Clone(c.resultPaths)
}

// AddParameter appends spec. The path must name a quantity of the source
// parameters and may appear only once.
func (c *CaseStudy) AddParameter(spec *ParameterSpec) error {
	if _, err := c.params.Quantity(spec.Path); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.indexOf(spec.Path) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateParameter, spec.Path)
	}
	c.specs = append(c.specs, spec.Clone())
	return nil
}

// RemoveParameter drops the spec for path.
func (c *CaseStudy) RemoveParameter(path core.Path) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexOf(path)
	if i < 0 {
		return fmt.Errorf("%w: '%s'", ErrParameterNotFound, path)
	}
	c.specs = slices.Delete(c.specs, i, i+1)
	return nil
}

// SwapParameters exchanges two specs, changing the iteration order.
func (c *CaseStudy) SwapParameters(i, j int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || j < 0 || i >= len(c.specs) || j >= len(c.specs) {
		return fmt.Errorf("%w: %d, %d", ErrIndexOutOfRange, i, j)
	}
	c.specs[i], c.specs[j] = c.specs[j], c.specs[i]
	return nil
}

// SetParameters replaces all specs.
func (c *CaseStudy) SetParameters(specs []*ParameterSpec) error {
	seen := make(map[string]bool, len(specs))
	cloned := make([]*ParameterSpec, 0, len(specs))
	for _, s := range specs {
		if _, err := c.params.Quantity(s.Path); err != nil {
			return err
		}
		key := s.Path.String()
		if seen[key] {
			return fmt.Errorf("%w: %s", ErrDuplicateParameter, key)
		}
		seen[key] = true
		cloned = append(cloned, s.Clone())
	}
	c.mu.Lock()
	c.specs = cloned
	c.mu.Unlock()
	return nil
}

// Parameters returns copies of the specs in iteration order.
func (c *CaseStudy) Parameters() []*ParameterSpec {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*ParameterSpec, len(c.specs))
	for i, s := range c.specs {
		out[i] = s.Clone()
	}
	return out
}

// NumCases returns the number of combinations, 1 without any spec.
func (c *CaseStudy) NumCases() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return numCases(c.specs)
}

func numCases(specs []*ParameterSpec) int {
	n := 1
	for _, s := range specs {
		n *= len(s.Data)
	}
	return n
}

func (c *CaseStudy) indexOf(path core.Path) int {
	return slices.IndexFunc(c.specs, func(s *ParameterSpec) bool { return s.Path.Equal(path) })
}

// Interrupt asks the running sweep to stop after the current combination.
// It is a no-op when nothing runs.
func (c *CaseStudy) Interrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		c.active.Interrupt()
	}
}

// Run starts a sweep in the background. The caller must either consume
// Sweep.Events or call Sweep.Wait.
func (c *CaseStudy) Run(ctx context.Context) (*Sweep, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil, ErrSweepRunning
	}
	c.running = true
	specs := make([]*ParameterSpec, len(c.specs))
	for i, s := range c.specs {
		specs[i] = s.Clone()
	}
	c.mu.Unlock()

	paramPaths := make([]core.Path, len(specs))
	for i, s := range specs {
		paramPaths[i] = s.Path.Clone()
	}
	sw := &Sweep{
		total:   numCases(specs),
		events:  make(chan Event, eventBuffer),
		done:    make(chan struct{}),
		results: newResults(paramPaths, c.ResultPaths()),
	}
	c.mu.Lock()
	c.active = sw
	c.mu.Unlock()
	c.metrics.SweepStarted()
	c.logger.Info("case study started", "parameters", len(specs), "cases", sw.total)
	go c.sweep(ctx, sw, specs, c.params.Clone())
	return sw, nil
}

const eventBuffer = 64

func (c *CaseStudy) sweep(ctx context.Context, sw *Sweep, specs []*ParameterSpec, params *core.Structure) {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.active = nil
		c.mu.Unlock()
		c.metrics.SweepEnded()
		c.logger.Info("case study ended", "outcome", sw.outcome, "rows", sw.results.Len())
		close(sw.events)
		close(sw.done)
	}()

	idx := make([]int, len(specs))
	row := make([]units.Quantity, len(specs))
	for k := 1; k <= sw.total; k++ {
		for i, s := range specs {
			row[i] = s.Data[idx[i]]
			// paths were checked by AddParameter
			_ = params.Set(s.Path, row[i])
		}
		res, err := c.engine.Calculate(ctx, params)
		if err != nil && ctx.Err() != nil {
			sw.outcome = Interrupted
			return
		}
		if err == nil {
			err = sw.results.add(row, res)
		}
		if err != nil {
			cf := core.AsCalculationFailed(err)
			var direct *core.CalculationFailed
			if errors.As(err, &direct) {
				c.logger.Debug("case failed", "index", k, "reason", cf.Message)
				c.metrics.ObserveSweepCase(metrics.OutcomeFailed)
			} else {
				c.logger.Warn("unexpected engine error", "index", k, "error", err)
				c.metrics.ObserveSweepCase(metrics.OutcomeError)
			}
			if !sw.emit(ctx, Event{Kind: EventFailed, Index: k, Total: sw.total, Message: cf.Message}) {
				sw.outcome = Interrupted
				return
			}
			if !c.continueOnFailure {
				sw.outcome = Aborted
				return
			}
		} else {
			c.metrics.ObserveSweepCase(metrics.OutcomeSuccess)
			if !sw.emit(ctx, Event{Kind: EventProgress, Index: k, Total: sw.total}) {
				sw.outcome = Interrupted
				return
			}
		}
		if k < sw.total && (sw.interrupt.Load() || ctx.Err() != nil) {
			sw.outcome = Interrupted
			return
		}
		advance(idx, specs)
	}
	sw.outcome = Completed
}

// advance steps the odometer; the last spec varies fastest.
func advance(idx []int, specs []*ParameterSpec) {
	for i := len(idx) - 1; i >= 0; i-- {
		idx[i]++
		if idx[i] < len(specs[i].Data) {
			return
		}
		idx[i] = 0
	}
}

// Sweep is one running or finished execution of a CaseStudy.
type Sweep struct {
	total   int
	events  chan Event
	done    chan struct{}
	results *Results
	outcome Outcome

	interrupt atomic.Bool
}

// Total returns the number of combinations the sweep covers.
func (s *Sweep) Total() int { return s.total }

// Events delivers one event per executed combination and is closed when the
// sweep ends.
func (s *Sweep) Events() <-chan Event { return s.events }

// Done is closed after Events once the sweep has ended.
func (s *Sweep) Done() <-chan struct{} { return s.done }

// Interrupt stops the sweep after the current combination. It has no effect
// once the sweep has ended.
func (s *Sweep) Interrupt() { s.interrupt.Store(true) }

// Wait discards remaining events, blocks until the sweep ends and returns
// the collected rows.
func (s *Sweep) Wait() (*Results, Outcome) {
	for range s.events {
	}
	<-s.done
	return s.results, s.outcome
}

func (s *Sweep) emit(ctx context.Context, e Event) bool {
	select {
	case s.events <- e:
		return true
	case <-ctx.Done():
		return false
	}
}
