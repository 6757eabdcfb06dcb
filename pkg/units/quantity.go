package units

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// DefaultDigits is the number of significant digits used when quantities are
// persisted as text.
const DefaultDigits = 14

// ErrNotDimensionless is returned by Float for quantities that carry a dimension.
var ErrNotDimensionless = errors.New("quantity is not dimensionless")

// Quantity is a magnitude paired with a unit.
type Quantity struct {
	Value float64
	Unit  Unit
}

// New returns a quantity of value in unit u.
func New(value float64, u Unit) Quantity {
	return Quantity{Value: value, Unit: u}
}

// Scalar returns a dimensionless quantity.
func Scalar(value float64) Quantity {
	return Quantity{Value: value}
}

// IsCompatibleWith reports whether q can be converted to u.
func (q Quantity) IsCompatibleWith(u Unit) bool {
	return q.Unit.IsCompatibleWith(u)
}

// To converts q to unit u, honouring offsets of absolute temperature scales.
func (q Quantity) To(u Unit) (Quantity, error) {
	if !q.Unit.IsCompatibleWith(u) {
		return Quantity{}, &DimensionalityError{
			From: q.Unit.String(), To: u.String(),
			FromDim: q.Unit.Dimension(), ToDim: u.Dimension(),
		}
	}
	if q.Unit.Equal(u) {
		return Quantity{Value: q.Value, Unit: u}, nil
	}
	si := q.Value*q.Unit.Factor() + q.Unit.offset()
	return Quantity{Value: (si - u.offset()) / u.Factor(), Unit: u}, nil
}

// delta converts q to u as a difference, ignoring offsets.
func (q Quantity) delta(u Unit) (float64, error) {
	if !q.Unit.IsCompatibleWith(u) {
		return 0, &DimensionalityError{
			From: q.Unit.String(), To: u.String(),
			FromDim: q.Unit.Dimension(), ToDim: u.Dimension(),
		}
	}
	return q.Value * q.Unit.Factor() / u.Factor(), nil
}

// DeltaTo converts q to u as a difference, so "1 K" becomes "1 degC" and
// not "-272.15 degC".
func (q Quantity) DeltaTo(u Unit) (Quantity, error) {
	v, err := q.delta(u)
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{Value: v, Unit: u}, nil
}

// Add returns q + o in the unit of q. The operand o is taken as a difference,
// so adding "5 K" to "20 degC" yields "25 degC".
func (q Quantity) Add(o Quantity) (Quantity, error) {
	v, err := o.delta(q.Unit)
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{Value: q.Value + v, Unit: q.Unit}, nil
}

// Sub returns q - o in the unit of q.
func (q Quantity) Sub(o Quantity) (Quantity, error) {
	v, err := o.delta(q.Unit)
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{Value: q.Value - v, Unit: q.Unit}, nil
}

// Mul returns the product of two quantities. Absolute temperatures are taken
// to their absolute scale first.
func (q Quantity) Mul(o Quantity) Quantity {
	a, b := q.absolute(), o.absolute()
	return Quantity{Value: a.Value * b.Value, Unit: a.Unit.Mul(b.Unit)}
}

// Div returns the quotient of two quantities.
func (q Quantity) Div(o Quantity) Quantity {
	a, b := q.absolute(), o.absolute()
	return Quantity{Value: a.Value / b.Value, Unit: a.Unit.Div(b.Unit)}
}

func (q Quantity) absolute() Quantity {
	if !q.Unit.hasOffset() {
		return q
	}
	r, _ := q.To(q.Unit.absolute())
	return r
}

// Scale multiplies the magnitude by f.
func (q Quantity) Scale(f float64) Quantity {
	return Quantity{Value: q.Value * f, Unit: q.Unit}
}

// Ratio returns q / o as a plain number. Both must be compatible.
func (q Quantity) Ratio(o Quantity) (float64, error) {
	v, err := o.delta(q.Unit)
	if err != nil {
		return 0, err
	}
	return q.Value / v, nil
}

// Compare returns -1, 0 or +1 comparing q with o after converting o to q's unit.
func (q Quantity) Compare(o Quantity) (int, error) {
	c, err := o.To(q.Unit)
	if err != nil {
		return 0, err
	}
	switch {
	case q.Value < c.Value:
		return -1, nil
	case q.Value > c.Value:
		return 1, nil
	}
	return 0, nil
}

// Equal reports whether both magnitude and canonical unit are identical.
func (q Quantity) Equal(o Quantity) bool {
	return q.Value == o.Value && q.Unit.Equal(o.Unit)
}

// Float returns the value of a dimensionless quantity as a plain number,
// so "87 %" yields 0.87.
func (q Quantity) Float() (float64, error) {
	if !q.Unit.IsDimensionless() {
		return 0, fmt.Errorf("%w: %s", ErrNotDimensionless, q)
	}
	return q.Value * q.Unit.Factor(), nil
}

// IsFinite reports whether the magnitude is neither infinite nor NaN.
func (q Quantity) IsFinite() bool {
	return !math.IsInf(q.Value, 0) && !math.IsNaN(q.Value)
}

// Format renders the magnitude with the given number of significant digits,
// followed by the canonical unit.
func (q Quantity) Format(digits int) string {
	s := strconv.FormatFloat(q.Value, 'g', digits, 64)
	if u := q.Unit.String(); u != "" {
		s += " " + u
	}
	return s
}

// String renders q at DefaultDigits precision; the result parses back with
// Registry.ParseQuantity.
func (q Quantity) String() string {
	return q.Format(DefaultDigits)
}

// Pretty renders the magnitude with the given number of significant digits
// and the unit in its human form, e.g. "0.5 W/(m²·K)".
func (q Quantity) Pretty(digits int) string {
	s := strconv.FormatFloat(q.Value, 'g', digits, 64)
	if u := q.Unit.Pretty(); u != "" {
		s += " " + u
	}
	return s
}
