// Package starlark implements a calculation engine scripted in Starlark.
package starlark

import (
	"fmt"
	"sort"

	"github.com/leapstack-labs/leapcalc/pkg/core"
	"github.com/leapstack-labs/leapcalc/pkg/units"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Quantity is a units.Quantity exposed to Starlark. It supports + - * /,
// comparison, unary minus and the attributes value, unit and to(unit).
type Quantity struct {
	Q   units.Quantity
	reg *units.Registry
}

var (
	_ starlark.Value      = (*Quantity)(nil)
	_ starlark.HasBinary  = (*Quantity)(nil)
	_ starlark.HasUnary   = (*Quantity)(nil)
	_ starlark.HasAttrs   = (*Quantity)(nil)
	_ starlark.Comparable = (*Quantity)(nil)
)

// NewQuantity wraps q.
func NewQuantity(reg *units.Registry, q units.Quantity) *Quantity {
	return &Quantity{Q: q, reg: reg}
}

func (q *Quantity) String() string        { return q.Q.String() }
func (q *Quantity) Type() string          { return "quantity" }
func (q *Quantity) Freeze()               {}
func (q *Quantity) Truth() starlark.Bool  { return q.Q.Value != 0 }
func (q *Quantity) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: quantity") }

// Attr implements starlark.HasAttrs.
func (q *Quantity) Attr(name string) (starlark.Value, error) {
	switch name {
	case "value":
		return starlark.Float(q.Q.Value), nil
	case "unit":
		return starlark.String(q.Q.Unit.String()), nil
	case "to":
		return starlark.NewBuiltin("to", quantityTo).BindReceiver(q), nil
	}
	return nil, nil
}

// AttrNames implements starlark.HasAttrs.
func (q *Quantity) AttrNames() []string { return []string{"to", "unit", "value"} }

func quantityTo(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var unit string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &unit); err != nil {
		return nil, err
	}
	q := b.Receiver().(*Quantity)
	return q.convert(unit)
}

func (q *Quantity) convert(unit string) (*Quantity, error) {
	u, err := q.reg.ParseUnit(unit)
	if err != nil {
		return nil, err
	}
	c, err := q.Q.To(u)
	if err != nil {
		return nil, err
	}
	return NewQuantity(q.reg, c), nil
}

// Unary implements starlark.HasUnary.
func (q *Quantity) Unary(op syntax.Token) (starlark.Value, error) {
	switch op {
	case syntax.MINUS:
		return NewQuantity(q.reg, q.Q.Scale(-1)), nil
	case syntax.PLUS:
		return q, nil
	}
	return nil, nil
}

// Binary implements starlark.HasBinary. Plain numbers act as dimensionless
// quantities.
func (q *Quantity) Binary(op syntax.Token, y starlark.Value, side starlark.Side) (starlark.Value, error) {
	other, ok := asQuantity(y)
	if !ok {
		return nil, nil
	}
	a, b := q.Q, other
	if side == starlark.Right {
		a, b = b, a
	}
	var (
		r   units.Quantity
		err error
	)
	switch op {
	case syntax.PLUS:
		r, err = a.Add(b)
	case syntax.MINUS:
		r, err = a.Sub(b)
	case syntax.STAR:
		r = a.Mul(b)
	case syntax.SLASH:
		if b.Value == 0 {
			return nil, fmt.Errorf("quantity division by zero")
		}
		r = a.Div(b)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return NewQuantity(q.reg, r), nil
}

// CompareSameType implements starlark.Comparable.
func (q *Quantity) CompareSameType(op syntax.Token, y starlark.Value, _ int) (bool, error) {
	c, err := q.Q.Compare(y.(*Quantity).Q)
	if err != nil {
		return false, err
	}
	switch op {
	case syntax.EQL:
		return c == 0, nil
	case syntax.NEQ:
		return c != 0, nil
	case syntax.LT:
		return c < 0, nil
	case syntax.LE:
		return c <= 0, nil
	case syntax.GT:
		return c > 0, nil
	case syntax.GE:
		return c >= 0, nil
	}
	return false, fmt.Errorf("unsupported comparison %s", op)
}

func asQuantity(v starlark.Value) (units.Quantity, bool) {
	if q, ok := v.(*Quantity); ok {
		return q.Q, true
	}
	if f, ok := starlark.AsFloat(v); ok {
		return units.Scalar(f), true
	}
	return units.Quantity{}, false
}

// StructureToStarlark converts s into nested dicts with Quantity leaves,
// keeping key order.
func StructureToStarlark(reg *units.Registry, s *core.Structure) (*starlark.Dict, error) {
	dict := starlark.NewDict(s.Len())
	for _, k := range s.Keys() {
		node, err := s.Get(core.Path{k})
		if err != nil {
			return nil, err
		}
		var v starlark.Value
		switch n := node.(type) {
		case units.Quantity:
			v = NewQuantity(reg, n)
		case *core.Structure:
			sub, err := StructureToStarlark(reg, n)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			v = sub
		}
		if err := dict.SetKey(starlark.String(k), v); err != nil {
			return nil, err
		}
	}
	return dict, nil
}

// StarlarkToStructure converts nested dicts back into a Structure. Leaves
// must be quantities or plain numbers, which become dimensionless.
func StarlarkToStructure(v starlark.Value) (*core.Structure, error) {
	dict, ok := v.(*starlark.Dict)
	if !ok {
		return nil, fmt.Errorf("expected dict, got %s", v.Type())
	}
	s := core.NewStructure()
	for _, item := range dict.Items() {
		key, ok := item[0].(starlark.String)
		if !ok {
			return nil, fmt.Errorf("dict key must be string, got %s", item[0].Type())
		}
		switch val := item[1].(type) {
		case *starlark.Dict:
			sub, err := StarlarkToStructure(val)
			if err != nil {
				return nil, fmt.Errorf("%s.%w", string(key), err)
			}
			s.Put(string(key), sub)
		default:
			q, ok := asQuantity(val)
			if !ok {
				return nil, fmt.Errorf("%s: unsupported value of type %s", string(key), val.Type())
			}
			s.Put(string(key), q)
		}
	}
	return s, nil
}

// GoToStarlark converts a JSON-compatible Go value to a Starlark value.
// Supported types: string, int, int64, float64, bool, []any, map[string]any.
// Map keys are inserted in sorted order.
func GoToStarlark(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case string:
		return starlark.String(val), nil

	case int:
		return starlark.MakeInt(val), nil

	case int64:
		return starlark.MakeInt64(val), nil

	case float64:
		return starlark.Float(val), nil

	case bool:
		return starlark.Bool(val), nil

	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := GoToStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil

	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		dict := starlark.NewDict(len(val))
		for _, k := range keys {
			sv, err := GoToStarlark(val[k])
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", k, err)
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, fmt.Errorf("dict setkey %q: %w", k, err)
			}
		}
		return dict, nil

	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ToGo converts a Starlark value back to a JSON-compatible Go value.
// Integers become float64 so that the result survives a JSON round trip
// unchanged; quantities become their text form.
func ToGo(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil

	case starlark.String:
		return string(val), nil

	case starlark.Int:
		f, _ := starlark.AsFloat(val)
		return f, nil

	case starlark.Float:
		return float64(val), nil

	case starlark.Bool:
		return bool(val), nil

	case *Quantity:
		return val.String(), nil

	case *starlark.List:
		result := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			gv, err := ToGo(val.Index(i))
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			result[i] = gv
		}
		return result, nil

	case starlark.Tuple:
		result := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			gv, err := ToGo(val.Index(i))
			if err != nil {
				return nil, fmt.Errorf("tuple index %d: %w", i, err)
			}
			result[i] = gv
		}
		return result, nil

	case *starlark.Dict:
		result := make(map[string]any)
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string, got %T", item[0])
			}
			gv, err := ToGo(item[1])
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", string(key), err)
			}
			result[string(key)] = gv
		}
		return result, nil

	default:
		return nil, fmt.Errorf("unsupported type: %s", v.Type())
	}
}
