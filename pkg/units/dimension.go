// Package units provides physical quantities tagged with units of measurement,
// and a Registry that parses and formats unit expressions such as "W/(m^2*K)".
//
// There is no package-level registry. A Registry is built once with NewRegistry
// and handed to every component that needs to parse quantities. Formatting a
// Quantity or Unit never needs the registry.
package units

import "strings"

// Base dimensions of the SI system, in vector order.
const (
	Length = iota
	Mass
	Time
	Current
	Temperature
	Amount
	Luminosity

	numBase
)

var baseNames = [numBase]string{"length", "mass", "time", "current", "temperature", "amount", "luminosity"}

// Dimension is the exponent vector of a unit over the SI base dimensions.
type Dimension [numBase]int8

// dim builds a Dimension from exponents in vector order.
func dim(exps ...int8) Dimension {
	var d Dimension
	copy(d[:], exps)
	return d
}

// Mul returns the dimension of a product.
func (d Dimension) Mul(o Dimension) Dimension {
	var r Dimension
	for i := range d {
		r[i] = d[i] + o[i]
	}
	return r
}

// Pow returns the dimension raised to an integer power.
func (d Dimension) Pow(n int) Dimension {
	var r Dimension
	for i := range d {
		r[i] = d[i] * int8(n)
	}
	return r
}

// IsZero reports whether the dimension is dimensionless.
func (d Dimension) IsZero() bool {
	return d == Dimension{}
}

// String renders the dimension as e.g. "[length]^2*[mass]*[time]^-3".
func (d Dimension) String() string {
	if d.IsZero() {
		return "[dimensionless]"
	}
	var parts []string
	for i, e := range d {
		switch {
		case e == 0:
			continue
		case e == 1:
			parts = append(parts, "["+baseNames[i]+"]")
		default:
			parts = append(parts, "["+baseNames[i]+"]^"+itoa(int(e)))
		}
	}
	return strings.Join(parts, "*")
}
