package units

import (
	"math"
	"strconv"
	"strings"
)

// definition describes one named unit of the registry.
type definition struct {
	symbol     string
	factor     float64 // SI value of one unit
	offset     float64 // SI = value*factor + offset, non-zero only for absolute temperatures
	dim        Dimension
	prefixable bool
	absolute   *definition // unit that replaces an offset unit inside products
}

// term is a (possibly prefixed) unit symbol raised to an integer power.
type term struct {
	symbol string
	factor float64
	def    *definition
	exp    int
}

// Unit is an ordered product of unit terms. The zero value is dimensionless.
// Units are values: operations never modify their receiver.
type Unit struct {
	terms []term
}

// Dimensionless is the unit of pure numbers.
var Dimensionless = Unit{}

// Factor returns the SI value of one unit, ignoring any offset.
func (u Unit) Factor() float64 {
	f := 1.0
	for _, t := range u.terms {
		f *= math.Pow(t.factor, float64(t.exp))
	}
	return f
}

// Dimension returns the dimension vector of the unit.
func (u Unit) Dimension() Dimension {
	var d Dimension
	for _, t := range u.terms {
		d = d.Mul(t.def.dim.Pow(t.exp))
	}
	return d
}

// offset is the SI offset of the unit. Only a single offset term of power one,
// like degC, is treated as an absolute scale; in compound units it acts as a
// temperature difference.
func (u Unit) offset() float64 {
	if len(u.terms) == 1 && u.terms[0].exp == 1 {
		return u.terms[0].def.offset
	}
	return 0
}

// hasOffset reports whether the unit is an absolute offset scale.
func (u Unit) hasOffset() bool {
	return u.offset() != 0
}

// absolute returns the unit to use for an offset unit inside products.
func (u Unit) absolute() Unit {
	if !u.hasOffset() || u.terms[0].def.absolute == nil {
		return u
	}
	a := u.terms[0].def.absolute
	return Unit{terms: []term{{symbol: a.symbol, factor: a.factor, def: a, exp: 1}}}
}

// IsDimensionless reports whether the unit has no dimension.
func (u Unit) IsDimensionless() bool {
	return u.Dimension().IsZero()
}

// IsCompatibleWith reports whether values can be converted between u and o.
func (u Unit) IsCompatibleWith(o Unit) bool {
	return u.Dimension() == o.Dimension()
}

// Equal reports whether both units have the same canonical form.
func (u Unit) Equal(o Unit) bool {
	return u.String() == o.String()
}

// Mul returns the product of two units, merging equal symbols.
func (u Unit) Mul(o Unit) Unit {
	terms := make([]term, len(u.terms), len(u.terms)+len(o.terms))
	copy(terms, u.terms)
	for _, t := range o.terms {
		merged := false
		for i := range terms {
			if terms[i].symbol == t.symbol {
				terms[i].exp += t.exp
				merged = true
				break
			}
		}
		if !merged {
			terms = append(terms, t)
		}
	}
	return Unit{terms: compact(terms)}
}

// Div returns the quotient of two units.
func (u Unit) Div(o Unit) Unit {
	return u.Mul(o.Pow(-1))
}

// Pow raises the unit to an integer power.
func (u Unit) Pow(n int) Unit {
	if n == 0 {
		return Dimensionless
	}
	terms := make([]term, len(u.terms))
	for i, t := range u.terms {
		t.exp *= n
		terms[i] = t
	}
	return Unit{terms: terms}
}

func compact(terms []term) []term {
	out := terms[:0]
	for _, t := range terms {
		if t.exp != 0 {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// String returns the canonical, re-parseable form, e.g. "W/(m^2*K)".
// Dimensionless units render as the empty string.
func (u Unit) String() string {
	return u.format("*", func(n int) string { return "^" + strconv.Itoa(n) })
}

// Pretty renders the unit for humans, e.g. "W/(m²·K)".
func (u Unit) Pretty() string {
	return u.format("·", superscript)
}

func (u Unit) format(mul string, power func(int) string) string {
	var num, den []string
	for _, t := range u.terms {
		e := t.exp
		target := &num
		if e < 0 {
			e = -e
			target = &den
		}
		s := t.symbol
		if e != 1 {
			s += power(e)
		}
		*target = append(*target, s)
	}

	var b strings.Builder
	switch {
	case len(num) > 0:
		b.WriteString(strings.Join(num, mul))
	case len(den) > 0:
		b.WriteString("1")
	}
	switch {
	case len(den) == 1:
		b.WriteString("/" + den[0])
	case len(den) > 1:
		b.WriteString("/(" + strings.Join(den, mul) + ")")
	}
	return b.String()
}

var superscripts = []rune("⁰¹²³⁴⁵⁶⁷⁸⁹")

func superscript(n int) string {
	var b strings.Builder
	for _, r := range strconv.Itoa(n) {
		if r == '-' {
			b.WriteRune('⁻')
			continue
		}
		b.WriteRune(superscripts[r-'0'])
	}
	return b.String()
}

func itoa(n int) string { return strconv.Itoa(n) }
