// Package validation checks an engine's default parameters against the
// parameter items of the project configuration.
package validation

import (
	"errors"
	"sort"

	"github.com/leapstack-labs/leapcalc/internal/config"
	"github.com/leapstack-labs/leapcalc/pkg/core"
	"github.com/leapstack-labs/leapcalc/pkg/units"
)

// BoundDigits is the number of significant digits used to render values and
// bounds in OutOfBounds errors.
const BoundDigits = 6

// Result is the outcome of InitializeParameters.
type Result struct {
	// Errors holds every problem found, in configuration order.
	Errors []config.ConfigurationError
	// Units holds the canonical unit strings encountered, both as found in
	// the structure and after conversion.
	Units []string
}

// OK reports whether no configuration errors were found.
func (r Result) OK() bool { return len(r.Errors) == 0 }

// InitializeParameters converts every configured parameter in params to its
// configured unit and checks it against the configured bounds. Converted
// values are written back into params. Problems are collected, never
// returned early, so one bad item does not hide the others.
//
// Bounds are compared in the configured unit; a value equal to a bound is in
// bounds. When both bounds are violated only the upper one is reported.
func InitializeParameters(reg *units.Registry, params *core.Structure, items []config.ParameterItem) Result {
	var res Result
	seen := make(map[string]struct{})
	addUnit := func(u units.Unit) {
		seen[u.String()] = struct{}{}
	}

	for _, item := range items {
		path := core.Path(item.Path)
		v, err := params.Quantity(path)
		if err != nil {
			res.Errors = append(res.Errors, config.ParameterNotFound(item.Path))
			continue
		}

		target, err := reg.ParseUnit(item.UOM)
		if err != nil {
			res.Errors = append(res.Errors, UnitError(item.Path, item.UOM, err))
			continue
		}
		converted, err := v.To(target)
		if err != nil {
			res.Errors = append(res.Errors, config.UnitConversionError(item.Path, v.Unit.String(), item.UOM))
			continue
		}
		// the parent exists, the lookup above succeeded
		_ = params.Set(path, converted)
		addUnit(v.Unit)
		addUnit(converted.Unit)

		if item.Max != nil && converted.Value > *item.Max {
			bound := units.New(*item.Max, target)
			res.Errors = append(res.Errors, config.OutOfBounds(item.Path,
				converted.Pretty(BoundDigits), bound.Pretty(BoundDigits), true))
		} else if item.Min != nil && converted.Value < *item.Min {
			bound := units.New(*item.Min, target)
			res.Errors = append(res.Errors, config.OutOfBounds(item.Path,
				converted.Pretty(BoundDigits), bound.Pretty(BoundDigits), false))
		}
	}

	res.Units = make([]string, 0, len(seen))
	for u := range seen {
		res.Units = append(res.Units, u)
	}
	sort.Strings(res.Units)
	return res
}

// UnitError classifies a ParseUnit failure for unit as a configuration
// error at path.
func UnitError(path []string, unit string, err error) config.ConfigurationError {
	var undefined *units.UndefinedUnitError
	if errors.As(err, &undefined) {
		return config.UndefinedUnit(path, unit)
	}
	return config.UnitSyntaxError(path, unit)
}
