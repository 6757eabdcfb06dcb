// Package casestudy runs parametric sweeps: a Cartesian product of parameter
// grids evaluated one combination at a time against a calculation engine.
package casestudy

import (
	"errors"
	"fmt"
	"math"

	"github.com/leapstack-labs/leapcalc/pkg/core"
	"github.com/leapstack-labs/leapcalc/pkg/units"
)

// DefaultCount is the number of grid points when neither an increment nor a
// count is given.
const DefaultCount = 11

// tolerance absorbs rounding when an interval is an exact multiple of the
// increment, so 3..9 cm in steps of 1 cm gives 7 points and not 8.
const tolerance = 1e-9

// MaxCount caps the number of points of a single parameter.
const MaxCount = 1_000_000

// Errors returned by NewParameterSpec.
var (
	ErrIncrAndNum     = errors.New("increment and count are mutually exclusive")
	ErrLogRangeSign   = errors.New("logarithmic range requires min and max of the same sign and non-zero")
	ErrInvalidCount   = errors.New("invalid number of points")
	ErrZeroIncrement  = errors.New("increment does not advance")
	ErrLogIncrement   = errors.New("logarithmic increment must be a dimensionless factor")
	ErrIncompatible   = errors.New("incompatible units")
	ErrNonFiniteRange = errors.New("range limits must be finite")
)

// ParameterSpec is the grid of values one parameter takes during a sweep.
// All values are expressed in the unit of Min. For logarithmic grids Incr is
// the dimensionless factor between neighbours.
type ParameterSpec struct {
	Path core.Path
	Name string
	Min  units.Quantity
	Max  units.Quantity
	Incr *units.Quantity
	Num  int
	Log  bool
	Data []units.Quantity
}

type specOptions struct {
	incr *units.Quantity
	num  int
	name string
	log  bool
}

// SpecOption configures NewParameterSpec.
type SpecOption func(*specOptions)

// WithIncrement sets the step between grid points. The count follows from
// it and the last step may be shorter.
func WithIncrement(q units.Quantity) SpecOption {
	return func(o *specOptions) { o.incr = &q }
}

// WithCount sets the number of grid points, endpoints included.
func WithCount(n int) SpecOption {
	return func(o *specOptions) { o.num = n }
}

// WithName sets the display name.
func WithName(name string) SpecOption {
	return func(o *specOptions) { o.name = name }
}

// Logarithmic spaces the points geometrically.
func Logarithmic() SpecOption {
	return func(o *specOptions) { o.log = true }
}

// NewParameterSpec builds the grid from min to max. Both endpoints are part
// of the grid and are reproduced exactly.
func NewParameterSpec(path core.Path, min, max units.Quantity, opts ...SpecOption) (*ParameterSpec, error) {
	var o specOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.incr != nil && o.num != 0 {
		return nil, ErrIncrAndNum
	}
	maxC, err := max.To(min.Unit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIncompatible, err)
	}
	if !min.IsFinite() || !maxC.IsFinite() {
		return nil, ErrNonFiniteRange
	}
	s := &ParameterSpec{
		Path: path.Clone(),
		Name: o.name,
		Min:  min,
		Max:  maxC,
		Log:  o.log,
	}
	if s.Name == "" {
		s.Name = path.String()
	}
	if o.incr == nil && o.num == 0 {
		o.num = DefaultCount
	}
	if o.log {
		err = s.logGrid(o)
	} else {
		err = s.linearGrid(o)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ParameterSpec) linearGrid(o specOptions) error {
	lo, hi := s.Min.Value, s.Max.Value
	interval := hi - lo
	var step float64
	switch {
	case o.incr != nil:
		d, err := o.incr.DeltaTo(s.Min.Unit)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrIncompatible, err)
		}
		step = d.Value
		if interval == 0 {
			s.Num = 1
			break
		}
		if step == 0 || math.IsNaN(step) || math.IsInf(step, 0) {
			return ErrZeroIncrement
		}
		if step*interval < 0 {
			step = -step
		}
		n, err := stepCount(interval / step)
		if err != nil {
			return err
		}
		s.Num = n
	default:
		if err := checkCount(o.num, interval == 0); err != nil {
			return err
		}
		s.Num = o.num
		if s.Num > 1 {
			step = interval / float64(s.Num-1)
		}
	}
	incr := units.New(step, s.Min.Unit)
	s.Incr = &incr
	s.Data = make([]units.Quantity, s.Num)
	for i := range s.Num - 1 {
		s.Data[i] = units.New(lo+float64(i)*step, s.Min.Unit)
	}
	s.Data[s.Num-1] = s.Max
	return nil
}

func (s *ParameterSpec) logGrid(o specOptions) error {
	lo, hi := s.Min.Value, s.Max.Value
	if lo == 0 || hi == 0 || (lo < 0) != (hi < 0) {
		return ErrLogRangeSign
	}
	ratio := hi / lo
	var factor float64
	switch {
	case o.incr != nil:
		f, err := o.incr.Float()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrLogIncrement, err)
		}
		if ratio == 1 {
			s.Num = 1
			factor = f
			break
		}
		if f <= 0 || f == 1 || math.IsNaN(f) || math.IsInf(f, 0) {
			return ErrZeroIncrement
		}
		if (ratio > 1) != (f > 1) {
			f = 1 / f
		}
		factor = f
		n, err := stepCount(math.Log(ratio) / math.Log(factor))
		if err != nil {
			return err
		}
		s.Num = n
	default:
		if err := checkCount(o.num, ratio == 1); err != nil {
			return err
		}
		s.Num = o.num
		factor = 1
		if s.Num > 1 {
			factor = math.Pow(ratio, 1/float64(s.Num-1))
		}
	}
	incr := units.Scalar(factor)
	s.Incr = &incr
	s.Data = make([]units.Quantity, s.Num)
	for i := range s.Num - 1 {
		s.Data[i] = units.New(lo*math.Pow(factor, float64(i)), s.Min.Unit)
	}
	s.Data[s.Num-1] = s.Max
	return nil
}

func checkCount(n int, empty bool) error {
	switch {
	case n < 1:
		return fmt.Errorf("%w: %d", ErrInvalidCount, n)
	case n == 1 && !empty:
		return fmt.Errorf("%w: a single point cannot span a range", ErrInvalidCount)
	case n > MaxCount:
		return fmt.Errorf("%w: %d exceeds %d", ErrInvalidCount, n, MaxCount)
	}
	return nil
}

// stepCount returns the number of points for an interval spanning steps
// increments, including both ends.
func stepCount(steps float64) (int, error) {
	steps = math.Ceil(steps - tolerance)
	if math.IsNaN(steps) || math.IsInf(steps, 0) || steps+1 > MaxCount {
		return 0, fmt.Errorf("%w: increment too small for the range", ErrInvalidCount)
	}
	return 1 + int(steps), nil
}

// Clone returns a deep copy of s.
func (s *ParameterSpec) Clone() *ParameterSpec {
	c := *s
	c.Path = s.Path.Clone()
	c.Data = append([]units.Quantity(nil), s.Data...)
	if s.Incr != nil {
		incr := *s.Incr
		c.Incr = &incr
	}
	return &c
}
