package starlark

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/leapstack-labs/leapcalc/pkg/core"
	"github.com/leapstack-labs/leapcalc/pkg/units"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// ErrMissingFunction is returned by Load when the script lacks a required
// top-level function.
var ErrMissingFunction = errors.New("engine script is missing a required function")

// Engine is a core.CalculationEngine backed by a Starlark script. The script
// must define
//
//	def defaults():          returns the default parameter dict
//	def calculate(params):   returns the result dict
//
// and may define initialise(). When calculate takes a second argument it
// receives a persistent state dict, which makes the engine a
// core.StateKeeper.
type Engine struct {
	name   string
	reg    *units.Registry
	logger *slog.Logger
	pool   *ThreadPool

	defaults   starlark.Callable
	calculate  starlark.Callable
	initialise starlark.Callable
	stateful   bool

	mu    sync.Mutex
	out   io.Writer
	state *starlark.Dict
}

var (
	_ core.CalculationEngine = (*Engine)(nil)
	_ core.Initializer       = (*Engine)(nil)
	_ core.StateKeeper       = (*Engine)(nil)
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithOutput directs print() output to w until Initialise provides another
// writer.
func WithOutput(w io.Writer) Option {
	return func(e *Engine) { e.out = w }
}

// WithPoolSize sets how many idle threads are kept.
func WithPoolSize(n int) Option {
	return func(e *Engine) { e.pool = NewThreadPool(n) }
}

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// Load reads and executes the script at path.
func Load(path string, reg *units.Registry, opts ...Option) (*Engine, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read engine script: %w", err)
	}
	return LoadSource(path, src, reg, opts...)
}

// LoadSource executes src as the engine script; name is used in error
// messages and tracebacks.
func LoadSource(name string, src []byte, reg *units.Registry, opts ...Option) (*Engine, error) {
	e := &Engine{
		name:   name,
		reg:    reg,
		logger: slog.New(slog.DiscardHandler),
		pool:   NewThreadPool(0),
		out:    io.Discard,
		state:  starlark.NewDict(0),
	}
	for _, opt := range opts {
		opt(e)
	}

	thread := e.pool.Get(name, e.writer())
	globals, err := starlark.ExecFileOptions(fileOptions, thread, name, src, Predeclared(reg))
	e.pool.Put(thread)
	if err != nil {
		return nil, fmt.Errorf("load engine script: %w", err)
	}
	globals.Freeze()

	if e.defaults, err = lookup(globals, "defaults", true); err != nil {
		return nil, err
	}
	if e.calculate, err = lookup(globals, "calculate", true); err != nil {
		return nil, err
	}
	if e.initialise, err = lookup(globals, "initialise", false); err != nil {
		return nil, err
	}
	if fn, ok := e.calculate.(*starlark.Function); ok {
		e.stateful = fn.NumParams() >= 2
	}
	e.logger.Debug("engine script loaded", "script", name, "stateful", e.stateful)
	return e, nil
}

func lookup(globals starlark.StringDict, name string, required bool) (starlark.Callable, error) {
	v, ok := globals[name]
	if !ok {
		if required {
			return nil, fmt.Errorf("%w: %s()", ErrMissingFunction, name)
		}
		return nil, nil
	}
	fn, ok := v.(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("engine script: %s is a %s, not a function", name, v.Type())
	}
	return fn, nil
}

func (e *Engine) writer() io.Writer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.out
}

// call runs fn on a pooled thread, cancelling it when ctx ends. A
// calculation_failed() in the script surfaces as *core.CalculationFailed.
func (e *Engine) call(ctx context.Context, out io.Writer, fn starlark.Callable, args ...starlark.Value) (starlark.Value, error) {
	thread := e.pool.Get(e.name, out)
	stop := context.AfterFunc(ctx, func() { thread.Cancel(context.Cause(ctx).Error()) })

	v, err := starlark.Call(thread, fn, args, nil)

	cancelled := !stop()
	failure, _ := thread.Local(failureKey).(*core.CalculationFailed)
	if !cancelled {
		e.pool.Put(thread)
	}
	switch {
	case failure != nil:
		return nil, failure
	case cancelled && err != nil:
		return nil, fmt.Errorf("%s: %w", e.name, context.Cause(ctx))
	case err != nil:
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			e.logger.Debug("script error", "backtrace", evalErr.Backtrace())
		}
		return nil, err
	}
	return v, nil
}

// DefaultParameters implements core.CalculationEngine.
func (e *Engine) DefaultParameters() (*core.Structure, error) {
	v, err := e.call(context.Background(), e.writer(), e.defaults)
	if err != nil {
		return nil, fmt.Errorf("defaults(): %w", err)
	}
	s, err := StarlarkToStructure(v)
	if err != nil {
		return nil, fmt.Errorf("defaults(): %w", err)
	}
	return s, nil
}

// Calculate implements core.CalculationEngine.
func (e *Engine) Calculate(ctx context.Context, params *core.Structure) (*core.Structure, error) {
	dict, err := StructureToStarlark(e.reg, params)
	if err != nil {
		return nil, err
	}
	var v starlark.Value
	if e.stateful {
		// the state dict is shared, so stateful calculations run one at a time
		e.mu.Lock()
		v, err = e.call(ctx, e.out, e.calculate, dict, e.state)
		e.mu.Unlock()
	} else {
		v, err = e.call(ctx, e.writer(), e.calculate, dict)
	}
	if err != nil {
		return nil, err
	}
	res, err := StarlarkToStructure(v)
	if err != nil {
		return nil, &core.CalculationFailed{Message: "calculate(): " + err.Error()}
	}
	return res, nil
}

// Initialise implements core.Initializer. Script output from now on goes to
// out.
func (e *Engine) Initialise(ctx context.Context, out io.Writer) error {
	if out != nil {
		e.mu.Lock()
		e.out = out
		e.mu.Unlock()
	}
	if e.initialise == nil {
		return nil
	}
	_, err := e.call(ctx, e.writer(), e.initialise)
	return err
}

// InternalState implements core.StateKeeper. The state is a JSON-compatible
// copy of the dict handed to calculate.
func (e *Engine) InternalState() (any, error) {
	if !e.stateful {
		return nil, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return ToGo(e.state)
}

// SetInternalState implements core.StateKeeper.
func (e *Engine) SetInternalState(state any) error {
	if !e.stateful || state == nil {
		return nil
	}
	v, err := GoToStarlark(state)
	if err != nil {
		return fmt.Errorf("engine state: %w", err)
	}
	dict, ok := v.(*starlark.Dict)
	if !ok {
		return fmt.Errorf("engine state: expected dict, got %s", v.Type())
	}
	e.mu.Lock()
	e.state = dict
	e.mu.Unlock()
	return nil
}
