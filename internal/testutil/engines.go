package testutil

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/leapstack-labs/leapcalc/pkg/core"
	"github.com/leapstack-labs/leapcalc/pkg/units"
)

// Rectangle is a fake engine computing the area A = a*b and the perimeter
// P = 2(a+b) of a rectangle with default sides a = b = 1 cm.
type Rectangle struct {
	Reg *units.Registry
	// FailAbove makes Calculate fail with a *core.CalculationFailed when a
	// exceeds this many cm. Zero disables the check.
	FailAbove float64
	// Delay is slept before every calculation, honouring ctx.
	Delay time.Duration
	// Err, when set, is returned from every calculation.
	Err error

	mu    sync.Mutex
	calls int
	seen  []float64
}

var (
	_ core.CalculationEngine = (*Rectangle)(nil)
	_ core.Initializer       = (*Rectangle)(nil)
	_ core.StateKeeper       = (*Rectangle)(nil)
)

// NewRectangle returns a rectangle engine using reg.
func NewRectangle(reg *units.Registry) *Rectangle {
	return &Rectangle{Reg: reg}
}

// DefaultParameters implements core.CalculationEngine.
func (r *Rectangle) DefaultParameters() (*core.Structure, error) {
	return core.NewStructure().
		Put("a", r.Reg.MustQuantity(1, "cm")).
		Put("b", r.Reg.MustQuantity(1, "cm")), nil
}

// Calculate implements core.CalculationEngine.
func (r *Rectangle) Calculate(ctx context.Context, params *core.Structure) (*core.Structure, error) {
	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.Err != nil {
		return nil, r.Err
	}
	a, err := params.Quantity(core.Path{"a"})
	if err != nil {
		return nil, err
	}
	b, err := params.Quantity(core.Path{"b"})
	if err != nil {
		return nil, err
	}
	aCM, err := a.To(r.Reg.MustParseUnit("cm"))
	if err != nil {
		return nil, &core.CalculationFailed{Message: err.Error()}
	}

	r.mu.Lock()
	r.calls++
	r.seen = append(r.seen, aCM.Value)
	r.mu.Unlock()

	if r.FailAbove > 0 && aCM.Value > r.FailAbove {
		return nil, &core.CalculationFailed{Message: fmt.Sprintf("a = %s is too large", a)}
	}
	sum, err := a.Add(b)
	if err != nil {
		return nil, &core.CalculationFailed{Message: err.Error()}
	}
	return core.NewStructure().
		Put("A", a.Mul(b)).
		Put("P", sum.Scale(2)), nil
}

// Initialise implements core.Initializer.
func (r *Rectangle) Initialise(_ context.Context, out io.Writer) error {
	_, err := fmt.Fprintln(out, "rectangle engine ready")
	return err
}

// InternalState implements core.StateKeeper.
func (r *Rectangle) InternalState() (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return map[string]any{"calls": float64(r.calls)}, nil
}

// SetInternalState implements core.StateKeeper.
func (r *Rectangle) SetInternalState(state any) error {
	m, ok := state.(map[string]any)
	if !ok {
		return fmt.Errorf("rectangle: unexpected state %T", state)
	}
	n, _ := m["calls"].(float64)
	r.mu.Lock()
	r.calls = int(n)
	r.mu.Unlock()
	return nil
}

// Calls returns the number of calculations that reached the engine body.
func (r *Rectangle) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// SeenA returns the values of a, in cm, in calculation order.
func (r *Rectangle) SeenA() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.seen...)
}
