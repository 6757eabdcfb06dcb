package units

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Registry holds unit definitions and parses unit and quantity expressions.
// A Registry is read-only after construction and safe for concurrent use.
type Registry struct {
	defs    map[string]*definition
	aliases map[string]string
}

var prefixes = []struct {
	symbol string
	factor float64
}{
	// two-letter prefixes must be tried before their one-letter heads
	{"da", 1e1},
	{"Y", 1e24}, {"Z", 1e21}, {"E", 1e18}, {"P", 1e15}, {"T", 1e12}, {"G", 1e9},
	{"M", 1e6}, {"k", 1e3}, {"h", 1e2}, {"d", 1e-1}, {"c", 1e-2}, {"m", 1e-3},
	{"µ", 1e-6}, {"μ", 1e-6}, {"u", 1e-6}, {"n", 1e-9}, {"p", 1e-12}, {"f", 1e-15}, {"a", 1e-18},
}

// NewRegistry returns a registry with SI base and derived units, common
// engineering units and SI prefixes.
func NewRegistry() *Registry {
	r := &Registry{
		defs:    make(map[string]*definition),
		aliases: make(map[string]string),
	}

	// base units
	r.define("m", 1, 0, dim(1), true)
	r.define("g", 1e-3, 0, dim(0, 1), true)
	r.define("s", 1, 0, dim(0, 0, 1), true)
	r.define("A", 1, 0, dim(0, 0, 0, 1), true)
	kelvin := r.define("K", 1, 0, dim(0, 0, 0, 0, 1), true)
	r.define("mol", 1, 0, dim(0, 0, 0, 0, 0, 1), true)
	r.define("cd", 1, 0, dim(0, 0, 0, 0, 0, 0, 1), true)

	// time
	r.define("min", 60, 0, dim(0, 0, 1), false)
	r.define("h", 3600, 0, dim(0, 0, 1), false)
	r.define("d", 86400, 0, dim(0, 0, 1), false)
	r.define("a", 365.25*86400, 0, dim(0, 0, 1), false)

	// mechanics and electricity
	r.define("Hz", 1, 0, dim(0, 0, -1), true)
	r.define("N", 1, 0, dim(1, 1, -2), true)
	r.define("Pa", 1, 0, dim(-1, 1, -2), true)
	r.define("J", 1, 0, dim(2, 1, -2), true)
	r.define("W", 1, 0, dim(2, 1, -3), true)
	r.define("C", 1, 0, dim(0, 0, 1, 1), true)
	r.define("V", 1, 0, dim(2, 1, -3, -1), true)
	r.define("ohm", 1, 0, dim(2, 1, -3, -2), true)
	r.define("F", 1, 0, dim(-2, -1, 4, 2), true)
	r.define("Wh", 3600, 0, dim(2, 1, -2), true)
	r.define("cal", 4.184, 0, dim(2, 1, -2), true)
	r.define("BTU", 1055.05585262, 0, dim(2, 1, -2), false)

	// pressure
	r.define("bar", 1e5, 0, dim(-1, 1, -2), true)
	r.define("atm", 101325, 0, dim(-1, 1, -2), false)
	r.define("psi", 6894.757293168361, 0, dim(-1, 1, -2), false)
	r.define("mmHg", 133.322387415, 0, dim(-1, 1, -2), false)

	// volume and mass
	r.define("L", 1e-3, 0, dim(3), true)
	r.define("t", 1e3, 0, dim(0, 1), false)
	r.define("lb", 0.45359237, 0, dim(0, 1), false)

	// imperial length
	r.define("in", 0.0254, 0, dim(1), false)
	r.define("ft", 0.3048, 0, dim(1), false)
	r.define("yd", 0.9144, 0, dim(1), false)
	r.define("mi", 1609.344, 0, dim(1), false)

	// temperature scales
	degC := r.define("degC", 1, 273.15, dim(0, 0, 0, 0, 1), false)
	degC.absolute = kelvin
	degF := r.define("degF", 5.0/9.0, 273.15-32*5.0/9.0, dim(0, 0, 0, 0, 1), false)
	degF.absolute = kelvin
	r.define("degR", 5.0/9.0, 0, dim(0, 0, 0, 0, 1), false)

	// dimensionless
	r.define("%", 1e-2, 0, dim(), false)
	r.define("ppm", 1e-6, 0, dim(), false)
	r.define("rad", 1, 0, dim(), false)
	r.define("deg", math.Pi/180, 0, dim(), false)

	for alias, symbol := range map[string]string{
		"meter": "m", "metre": "m", "gram": "g", "second": "s", "sec": "s",
		"ampere": "A", "kelvin": "K", "mole": "mol", "candela": "cd",
		"minute": "min", "hour": "h", "hr": "h", "day": "d", "year": "a",
		"hertz": "Hz", "newton": "N", "pascal": "Pa", "joule": "J", "watt": "W",
		"coulomb": "C", "volt": "V", "Ω": "ohm", "farad": "F",
		"l": "L", "liter": "L", "litre": "L", "tonne": "t", "pound": "lb",
		"inch": "in", "foot": "ft", "feet": "ft", "mile": "mi",
		"°C": "degC", "celsius": "degC", "°F": "degF", "fahrenheit": "degF", "°R": "degR",
		"percent": "%", "radian": "rad", "degree": "deg", "°": "deg",
	} {
		r.aliases[alias] = symbol
	}
	return r
}

func (r *Registry) define(symbol string, factor, offset float64, d Dimension, prefixable bool) *definition {
	def := &definition{symbol: symbol, factor: factor, offset: offset, dim: d, prefixable: prefixable}
	r.defs[symbol] = def
	return def
}

// lookup resolves a single unit name, possibly prefixed.
func (r *Registry) lookup(name string) (term, bool) {
	if canonical, ok := r.aliases[name]; ok {
		name = canonical
	}
	if def, ok := r.defs[name]; ok {
		return term{symbol: def.symbol, factor: def.factor, def: def, exp: 1}, true
	}
	for _, p := range prefixes {
		rest, ok := strings.CutPrefix(name, p.symbol)
		if !ok || rest == "" {
			continue
		}
		if canonical, ok := r.aliases[rest]; ok {
			rest = canonical
		}
		if def, ok := r.defs[rest]; ok && def.prefixable {
			prefix := p.symbol
			if prefix == "μ" || prefix == "u" {
				prefix = "µ"
			}
			return term{symbol: prefix + def.symbol, factor: p.factor * def.factor, def: def, exp: 1}, true
		}
	}
	return term{}, false
}

// ParseUnit parses a unit expression. The empty string is dimensionless.
// Malformed input yields a *SyntaxError and unknown names an *UndefinedUnitError.
func (r *Registry) ParseUnit(s string) (Unit, error) {
	p := &parser{reg: r, input: s}
	if err := p.tokenize(); err != nil {
		return Unit{}, err
	}
	if len(p.tokens) == 0 {
		return Dimensionless, nil
	}
	u, err := p.parseExpr()
	if err != nil {
		return Unit{}, err
	}
	if p.pos < len(p.tokens) {
		return Unit{}, p.errorf("unexpected %q", p.tokens[p.pos].text)
	}
	return u, nil
}

// MustParseUnit is like ParseUnit but panics on error.
func (r *Registry) MustParseUnit(s string) Unit {
	u, err := r.ParseUnit(s)
	if err != nil {
		panic(err)
	}
	return u
}

var numberPrefix = regexp.MustCompile(`^[+-]?(?:(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?|(?:[Ii]nf(?:inity)?|NaN|nan)\b)`)

// ParseQuantity parses "<magnitude> <unit>". A missing magnitude means 1 and a
// missing unit means dimensionless.
func (r *Registry) ParseQuantity(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	value := 1.0
	if m := numberPrefix.FindString(s); m != "" {
		v, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return Quantity{}, &SyntaxError{Input: s, Msg: err.Error()}
		}
		value = v
		s = s[len(m):]
	}
	u, err := r.ParseUnit(s)
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{Value: value, Unit: u}, nil
}

// Quantity builds a quantity from a magnitude and a unit expression.
func (r *Registry) Quantity(value float64, unit string) (Quantity, error) {
	u, err := r.ParseUnit(unit)
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{Value: value, Unit: u}, nil
}

// MustQuantity is like Quantity but panics on error. Intended for defaults
// known at compile time and for tests.
func (r *Registry) MustQuantity(value float64, unit string) Quantity {
	q, err := r.Quantity(value, unit)
	if err != nil {
		panic(err)
	}
	return q
}

// FormatUnit parses s and returns its canonical form.
func (r *Registry) FormatUnit(s string) (string, error) {
	u, err := r.ParseUnit(s)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
