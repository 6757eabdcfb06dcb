package core

import (
	"context"
	"io"
)

// CalculationEngine is implemented by the integrator to turn a parameter
// Structure into a result Structure.
type CalculationEngine interface {
	// DefaultParameters returns the parameters an engine starts from.
	DefaultParameters() (*Structure, error)
	// Calculate computes results. It returns a *CalculationFailed when the
	// parameters do not allow a solution.
	Calculate(ctx context.Context, params *Structure) (*Structure, error)
}

// Initializer is implemented by engines that need a slow start, e.g. loading
// a model. Progress text written to out is shown to the user.
type Initializer interface {
	Initialise(ctx context.Context, out io.Writer) error
}

// StateKeeper is implemented by engines with internal state that should be
// stored with each scenario and restored before it is recalculated.
type StateKeeper interface {
	InternalState() (any, error)
	SetInternalState(state any) error
}
