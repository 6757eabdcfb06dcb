// Package output renders CLI messages for terminals, pipes and scripts.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/leapstack-labs/leapcalc/internal/report"
)

// OutputMode selects how commands render.
type OutputMode string

// Output modes.
const (
	ModeAuto     OutputMode = "auto"
	ModeText     OutputMode = "text"
	ModeMarkdown OutputMode = "markdown"
	ModeJSON     OutputMode = "json"
	ModeCSV      OutputMode = "csv"
	ModeHTML     OutputMode = "html"
)

// Modes lists the accepted values of --output.
var Modes = []string{"auto", "text", "markdown", "json", "csv", "html"}

// Mode converts a flag value into an OutputMode. Unknown and empty values
// fall back to ModeAuto.
func Mode(s string) OutputMode {
	switch m := OutputMode(strings.ToLower(s)); m {
	case ModeText, ModeMarkdown, ModeJSON, ModeCSV, ModeHTML:
		return m
	case "md":
		return ModeMarkdown
	}
	return ModeAuto
}

// Renderer writes command output. Messages go to out, diagnostics to errOut.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	mode   OutputMode
	isTTY  bool
	styles *Styles
}

// NewRenderer creates a renderer, detecting whether out is a terminal.
func NewRenderer(out, errOut io.Writer, mode OutputMode) *Renderer {
	return NewRendererWithTTY(out, errOut, isTerminal(out), mode)
}

// NewRendererWithTTY creates a renderer with an explicit terminal flag.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool, mode OutputMode) *Renderer {
	if mode == "" {
		mode = ModeAuto
	}
	return &Renderer{
		out:    out,
		errOut: errOut,
		mode:   mode,
		isTTY:  isTTY,
		styles: NewStyles(out, isTTY && mode != ModeMarkdown),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Writer returns the standard output writer.
func (r *Renderer) Writer() io.Writer { return r.out }

// ErrWriter returns the diagnostics writer.
func (r *Renderer) ErrWriter() io.Writer { return r.errOut }

// IsTTY reports whether output goes to a terminal.
func (r *Renderer) IsTTY() bool { return r.isTTY }

// Styles returns the styles in effect.
func (r *Renderer) Styles() *Styles { return r.styles }

// EffectiveMode resolves ModeAuto: text on a terminal, markdown otherwise.
func (r *Renderer) EffectiveMode() OutputMode {
	if r.mode != ModeAuto {
		return r.mode
	}
	if r.isTTY {
		return ModeText
	}
	return ModeMarkdown
}

// ReportFormat maps the effective mode onto a table format. JSON has no
// table form and falls back to text.
func (r *Renderer) ReportFormat() report.Format {
	switch r.EffectiveMode() {
	case ModeMarkdown:
		return report.FormatMarkdown
	case ModeCSV:
		return report.FormatCSV
	case ModeHTML:
		return report.FormatHTML
	}
	return report.FormatText
}

// Println writes a line to standard output.
func (r *Renderer) Println(a ...any) {
	_, _ = fmt.Fprintln(r.out, a...)
}

// Printf writes formatted text to standard output.
func (r *Renderer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.out, format, a...)
}

// JSON writes v as indented JSON.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Success prints a success message.
func (r *Renderer) Success(msg string) {
	r.Println(r.styles.Success.Render(r.symbol("✓", "OK") + " " + msg))
}

// Warning prints a warning to the diagnostics writer.
func (r *Renderer) Warning(msg string) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Warning.Render(r.symbol("!", "WARNING:")+" "+msg))
}

// Error prints an error to the diagnostics writer.
func (r *Renderer) Error(msg string) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Error.Render(r.symbol("✗", "ERROR:")+" "+msg))
}

// Muted prints secondary information.
func (r *Renderer) Muted(msg string) {
	r.Println(r.styles.Muted.Render(msg))
}

// Header prints a section header.
func (r *Renderer) Header(level int, text string) {
	if r.EffectiveMode() == ModeText {
		r.Println(r.styles.Header.Render(text))
		return
	}
	r.Println(FormatHeader(level, text))
}

// StatusLine prints "symbol name detail" where status is one of success,
// failed, skipped or running.
func (r *Renderer) StatusLine(name, status, detail string) {
	var sym string
	style := r.styles.Muted
	switch status {
	case "success":
		sym, style = r.symbol("✓", "[ok]"), r.styles.Success
	case "failed":
		sym, style = r.symbol("✗", "[failed]"), r.styles.Error
	case "running":
		sym, style = r.symbol("…", "[running]"), r.styles.Info
	default:
		sym = r.symbol("-", "[skipped]")
	}
	line := "  " + style.Render(sym) + " " + name
	if detail != "" {
		line += " " + r.styles.Muted.Render(detail)
	}
	r.Println(line)
}

func (r *Renderer) symbol(tty, plain string) string {
	if r.isTTY {
		return tty
	}
	return plain
}

// FormatHeader renders a markdown header.
func FormatHeader(level int, text string) string {
	if level < 1 {
		level = 1
	}
	return strings.Repeat("#", level) + " " + text
}

// FormatKeyValue renders a markdown list item of a key and its value.
func FormatKeyValue(key, value string) string {
	return fmt.Sprintf("- **%s:** %s", key, value)
}
