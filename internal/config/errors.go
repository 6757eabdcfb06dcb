package config

import (
	"fmt"
	"sort"
	"strings"
)

// ErrorKind classifies a ConfigurationError.
type ErrorKind int

// Configuration error kinds.
const (
	KindParameterNotFound ErrorKind = iota
	KindUnitSyntax
	KindUndefinedUnit
	KindUnitConversion
	KindOutOfBounds
)

var kindInfo = map[ErrorKind]struct{ name, message string }{
	KindParameterNotFound: {"parameter_not_found", "Parameter not found"},
	KindUnitSyntax:        {"unit_syntax_error", "Syntax error in unit of measurement"},
	KindUndefinedUnit:     {"undefined_unit", "Undefined unit of measurement"},
	KindUnitConversion:    {"unit_conversion_error", "Unit conversion error"},
	KindOutOfBounds:       {"out_of_bounds", "Parameter value out of bounds"},
}

// String returns the machine-readable name of the kind.
func (k ErrorKind) String() string {
	if info, ok := kindInfo[k]; ok {
		return info.name
	}
	return "unknown"
}

// MarshalText encodes the kind by name in JSON output.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Message returns the human-readable summary of the kind.
func (k ErrorKind) Message() string {
	return kindInfo[k].message
}

// ConfigurationError describes a mismatch between the configuration and the
// engine's parameters. Configuration errors are collected and reported; they
// never abort initialisation.
type ConfigurationError struct {
	Kind    ErrorKind         `json:"kind"`
	Path    []string          `json:"path"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func newError(kind ErrorKind, path []string, details map[string]string) ConfigurationError {
	return ConfigurationError{
		Kind:    kind,
		Path:    append([]string(nil), path...),
		Message: kind.Message(),
		Details: details,
	}
}

// ParameterNotFound reports a configured path the engine does not provide.
func ParameterNotFound(path []string) ConfigurationError {
	return newError(KindParameterNotFound, path, nil)
}

// UnitSyntaxError reports a malformed unit in the configuration.
func UnitSyntaxError(path []string, unit string) ConfigurationError {
	return newError(KindUnitSyntax, path, map[string]string{"unit": unit})
}

// UndefinedUnit reports an unknown unit name in the configuration.
func UndefinedUnit(path []string, unit string) ConfigurationError {
	return newError(KindUndefinedUnit, path, map[string]string{"unit": unit})
}

// UnitConversionError reports a configured unit incompatible with the
// engine's value.
func UnitConversionError(path []string, unitModel, unitConfig string) ConfigurationError {
	return newError(KindUnitConversion, path, map[string]string{
		"unit_model":  unitModel,
		"unit_config": unitConfig,
	})
}

// OutOfBounds reports a default value outside the configured limits. Value
// and bound are already formatted for display.
func OutOfBounds(path []string, value, bound string, upper bool) ConfigurationError {
	which := "lower"
	if upper {
		which = "upper"
	}
	return newError(KindOutOfBounds, path, map[string]string{
		"value": value,
		"bound": bound,
		"which": which,
	})
}

// PathString returns the dotted path.
func (e ConfigurationError) PathString() string {
	return strings.Join(e.Path, ".")
}

// Error renders a one-line description, e.g.
// "a: Parameter value out of bounds (bound=100 cm, value=120 cm, which=upper)".
func (e ConfigurationError) Error() string {
	var b strings.Builder
	if len(e.Path) > 0 {
		b.WriteString(e.PathString())
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s=%s", k, e.Details[k])
		}
		b.WriteString(" (" + strings.Join(parts, ", ") + ")")
	}
	return b.String()
}
