package units

import "fmt"

// SyntaxError reports a malformed unit or quantity expression.
type SyntaxError struct {
	Input string
	Pos   int
	Msg   string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("unit syntax error in %q at offset %d: %s", e.Input, e.Pos, e.Msg)
}

// UndefinedUnitError reports a unit name the registry does not know.
type UndefinedUnitError struct {
	Name string
}

func (e *UndefinedUnitError) Error() string {
	return fmt.Sprintf("undefined unit %q", e.Name)
}

// DimensionalityError reports a conversion between incompatible units.
type DimensionalityError struct {
	From    string
	To      string
	FromDim Dimension
	ToDim   Dimension
}

func (e *DimensionalityError) Error() string {
	return fmt.Sprintf("cannot convert from %q (%s) to %q (%s)", e.From, e.FromDim, e.To, e.ToDim)
}
