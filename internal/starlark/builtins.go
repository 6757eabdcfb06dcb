package starlark

import (
	"fmt"

	"github.com/leapstack-labs/leapcalc/pkg/core"
	"github.com/leapstack-labs/leapcalc/pkg/units"
	starlarkmath "go.starlark.net/lib/math"
	"go.starlark.net/starlark"
)

// failureKey is the thread-local slot where calculation_failed leaves its
// error, so the engine can tell it apart from script bugs.
const failureKey = "leapcalc.failure"

// Predeclared returns the globals available to engine scripts:
//
//	qty(value, unit="")       a quantity
//	to(q, unit)               q converted to unit
//	value(q, unit="")         the magnitude of q in unit
//	calculation_failed(msg)   abort the calculation as a domain failure
//	math                      the Starlark math module
func Predeclared(reg *units.Registry) starlark.StringDict {
	return starlark.StringDict{
		"qty":                starlark.NewBuiltin("qty", qtyBuiltin(reg)),
		"to":                 starlark.NewBuiltin("to", toBuiltin(reg)),
		"value":              starlark.NewBuiltin("value", valueBuiltin(reg)),
		"calculation_failed": starlark.NewBuiltin("calculation_failed", calculationFailed),
		"math":               starlarkmath.Module,
	}
}

type builtinFunc = func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error)

func qtyBuiltin(reg *units.Registry) builtinFunc {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			v    starlark.Value
			unit string
		)
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "value", &v, "unit?", &unit); err != nil {
			return nil, err
		}
		f, ok := starlark.AsFloat(v)
		if !ok {
			return nil, errorf(b, "value must be a number, got %s", v.Type())
		}
		q, err := reg.Quantity(f, unit)
		if err != nil {
			return nil, err
		}
		return NewQuantity(reg, q), nil
	}
}

func toBuiltin(reg *units.Registry) builtinFunc {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			v    starlark.Value
			unit string
		)
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "q", &v, "unit", &unit); err != nil {
			return nil, err
		}
		q, ok := asQuantity(v)
		if !ok {
			return nil, errorf(b, "expected quantity, got %s", v.Type())
		}
		return NewQuantity(reg, q).convert(unit)
	}
}

func valueBuiltin(reg *units.Registry) builtinFunc {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			v    starlark.Value
			unit string
		)
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "q", &v, "unit?", &unit); err != nil {
			return nil, err
		}
		q, ok := asQuantity(v)
		if !ok {
			return nil, errorf(b, "expected quantity, got %s", v.Type())
		}
		c, err := NewQuantity(reg, q).convert(unit)
		if err != nil {
			return nil, err
		}
		return starlark.Float(c.Q.Value), nil
	}
}

func calculationFailed(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var msg string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &msg); err != nil {
		return nil, err
	}
	cf := &core.CalculationFailed{Message: msg}
	thread.SetLocal(failureKey, cf)
	return nil, cf
}

func errorf(b *starlark.Builtin, format string, args ...any) error {
	return fmt.Errorf("%s: %s", b.Name(), fmt.Sprintf(format, args...))
}
