package report

import (
	"math"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// DefaultDigits is the number of significant digits shown in tables.
const DefaultDigits = 6

// Missing is shown for cells without a usable value.
const Missing = "-"

// Numbers formats float cells. The zero value renders with DefaultDigits
// in the plain 'g' format; a language switches to locale-aware decimal
// separators and digit grouping.
type Numbers struct {
	Digits  int
	printer *message.Printer
}

// NewNumbers returns a formatter for the given locale. language.Und keeps
// the plain format, which is what CSV output wants.
func NewNumbers(digits int, tag language.Tag) Numbers {
	n := Numbers{Digits: digits}
	if tag != language.Und {
		n.printer = message.NewPrinter(tag)
	}
	return n
}

// Format renders v.
func (n Numbers) Format(v float64) string {
	if math.IsNaN(v) {
		return Missing
	}
	digits := n.Digits
	if digits <= 0 {
		digits = DefaultDigits
	}
	if n.printer == nil || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'g', digits, 64)
	}
	return n.printer.Sprint(number.Decimal(v, number.Precision(digits)))
}
