package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for Structure access.
var (
	// ErrKeyNotFound indicates that a path element does not exist.
	ErrKeyNotFound = errors.New("key not found")
	// ErrNotAMapping indicates that a path descends through a quantity leaf.
	ErrNotAMapping = errors.New("not a mapping")
	// ErrEmptyPath indicates an operation that needs at least one path element.
	ErrEmptyPath = errors.New("empty path")
	// ErrInvalidValue indicates a value that is neither a quantity nor a structure.
	ErrInvalidValue = errors.New("invalid structure value")
)

// KeyError reports a failed path lookup. It wraps ErrKeyNotFound or ErrNotAMapping.
type KeyError struct {
	Path Path
	Err  error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Err)
}

func (e *KeyError) Unwrap() error {
	return e.Err
}

// CalculationFailed is the domain failure of a calculation engine. Any other
// error returned from Calculate is treated as an unexpected failure.
type CalculationFailed struct {
	Message string
}

func (e *CalculationFailed) Error() string {
	return "calculation failed: " + e.Message
}

// AsCalculationFailed converts any error into a *CalculationFailed, keeping
// the original when it already is one.
func AsCalculationFailed(err error) *CalculationFailed {
	if err == nil {
		return nil
	}
	var cf *CalculationFailed
	if errors.As(err, &cf) {
		return cf
	}
	return &CalculationFailed{Message: err.Error()}
}
