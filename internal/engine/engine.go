// Package engine provides helpers around core.CalculationEngine: an adapter
// for plain functions, a timeout guard, and the output buffer that carries
// engine log text to the user.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/leapstack-labs/leapcalc/pkg/core"
)

// FuncEngine adapts plain functions to core.CalculationEngine. Init is
// optional.
type FuncEngine struct {
	Defaults func() (*core.Structure, error)
	Calc     func(ctx context.Context, params *core.Structure) (*core.Structure, error)
	Init     func(ctx context.Context, out io.Writer) error
}

var (
	_ core.CalculationEngine = (*FuncEngine)(nil)
	_ core.Initializer       = (*FuncEngine)(nil)
)

// DefaultParameters implements core.CalculationEngine.
func (f *FuncEngine) DefaultParameters() (*core.Structure, error) {
	return f.Defaults()
}

// Calculate implements core.CalculationEngine.
func (f *FuncEngine) Calculate(ctx context.Context, params *core.Structure) (*core.Structure, error) {
	return f.Calc(ctx, params)
}

// Initialise implements core.Initializer.
func (f *FuncEngine) Initialise(ctx context.Context, out io.Writer) error {
	if f.Init == nil {
		return nil
	}
	return f.Init(ctx, out)
}

// Guarded wraps an engine with a per-calculation timeout and debug logging.
// Optional interfaces of the wrapped engine stay reachable via Unwrap.
type Guarded struct {
	inner   core.CalculationEngine
	timeout time.Duration
	logger  *slog.Logger
}

// Guard wraps inner. A zero timeout disables the deadline.
func Guard(inner core.CalculationEngine, timeout time.Duration, logger *slog.Logger) *Guarded {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Guarded{inner: inner, timeout: timeout, logger: logger}
}

// Unwrap returns the wrapped engine.
func (g *Guarded) Unwrap() core.CalculationEngine { return g.inner }

// DefaultParameters implements core.CalculationEngine.
func (g *Guarded) DefaultParameters() (*core.Structure, error) {
	return g.inner.DefaultParameters()
}

// Calculate implements core.CalculationEngine. A calculation that outlives
// the timeout fails with a *core.CalculationFailed once the inner engine
// returns.
func (g *Guarded) Calculate(ctx context.Context, params *core.Structure) (*core.Structure, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	start := time.Now()
	res, err := g.inner.Calculate(ctx, params)
	elapsed := time.Since(start)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		g.logger.Debug("calculation failed", "duration", elapsed, "error", err)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &core.CalculationFailed{Message: fmt.Sprintf("timed out after %s", g.timeout)}
		}
		return nil, err
	}
	g.logger.Debug("calculation finished", "duration", elapsed, "results", res.NumLeaves())
	return res, nil
}

// Initialise forwards to the wrapped engine when it is a core.Initializer.
func (g *Guarded) Initialise(ctx context.Context, out io.Writer) error {
	if in, ok := g.inner.(core.Initializer); ok {
		return in.Initialise(ctx, out)
	}
	return nil
}

// InternalState forwards to the wrapped engine when it is a core.StateKeeper.
func (g *Guarded) InternalState() (any, error) {
	if sk, ok := g.inner.(core.StateKeeper); ok {
		return sk.InternalState()
	}
	return nil, nil
}

// SetInternalState forwards to the wrapped engine when it is a core.StateKeeper.
func (g *Guarded) SetInternalState(state any) error {
	if sk, ok := g.inner.(core.StateKeeper); ok {
		return sk.SetInternalState(state)
	}
	return nil
}
