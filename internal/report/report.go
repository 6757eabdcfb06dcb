// Package report renders case-study results, scenario lists, configuration
// errors and parameter trees as tables, and exports case studies to XLSX.
package report

import (
	"fmt"
	"html"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/leapcalc/internal/casestudy"
	"github.com/leapstack-labs/leapcalc/internal/config"
	"github.com/leapstack-labs/leapcalc/pkg/core"
	"github.com/leapstack-labs/leapcalc/pkg/units"
)

// Format selects the table syntax.
type Format string

// Supported formats.
const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatCSV      Format = "csv"
)

// ParseFormat accepts the format names plus the aliases "table" and "md".
// An empty string selects FormatText.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text", "table":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	case "csv":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text, markdown, html or csv)", s)
}

// Renderer writes tables to w.
type Renderer struct {
	w       io.Writer
	format  Format
	numbers Numbers
	title   cases.Caser
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithNumbers sets the number formatter. CSV output always uses the plain
// format so that it can be read back.
func WithNumbers(n Numbers) Option {
	return func(r *Renderer) { r.numbers = n }
}

// NewRenderer creates a renderer for the given format.
func NewRenderer(w io.Writer, format Format, opts ...Option) *Renderer {
	r := &Renderer{
		w:       w,
		format:  format,
		numbers: Numbers{Digits: DefaultDigits},
		title:   cases.Title(language.English),
	}
	for _, opt := range opts {
		opt(r)
	}
	if format == FormatCSV {
		r.numbers = Numbers{Digits: r.numbers.Digits}
	}
	return r
}

// Format returns the configured format.
func (r *Renderer) Format() Format { return r.format }

func (r *Renderer) newTable() table.Writer {
	t := table.NewWriter()
	style := table.StyleLight
	style.Format.Header = text.FormatDefault
	t.SetStyle(style)
	return t
}

func (r *Renderer) heading(s string) {
	if s == "" {
		return
	}
	s = r.title.String(s)
	switch r.format {
	case FormatMarkdown:
		_, _ = fmt.Fprintf(r.w, "## %s\n\n", s)
	case FormatHTML:
		_, _ = fmt.Fprintf(r.w, "<h2>%s</h2>\n", html.EscapeString(s))
	case FormatCSV:
	default:
		_, _ = fmt.Fprintln(r.w, s)
	}
}

func (r *Renderer) render(t table.Writer) {
	var out string
	switch r.format {
	case FormatMarkdown:
		out = t.RenderMarkdown()
	case FormatHTML:
		out = t.RenderHTML()
	case FormatCSV:
		out = t.RenderCSV()
	default:
		out = t.Render()
	}
	_, _ = fmt.Fprintln(r.w, out)
}

// CaseStudy renders rep with two header rows: the column path and its unit.
func (r *Renderer) CaseStudy(rep *casestudy.Report) {
	r.heading(rep.Name)
	t := r.newTable()
	paths := make(table.Row, len(rep.Columns))
	unitRow := make(table.Row, len(rep.Columns))
	for i, c := range rep.Columns {
		paths[i] = c.Path.String()
		unitRow[i] = unitLabel(c.Unit)
	}
	t.AppendHeader(paths)
	t.AppendHeader(unitRow)
	for _, row := range rep.Rows {
		cells := make(table.Row, len(row))
		for i, v := range row {
			cells[i] = r.numbers.Format(v)
		}
		t.AppendRow(cells)
	}
	configs := make([]table.ColumnConfig, len(rep.Columns))
	for i := range rep.Columns {
		configs[i] = table.ColumnConfig{Number: i + 1, Align: text.AlignRight}
	}
	t.SetColumnConfigs(configs)
	if r.format == FormatText {
		t.SetCaption("%d cases", len(rep.Rows))
	}
	r.render(t)
}

func unitLabel(u units.Unit) string {
	if s := u.String(); s != "" {
		return s
	}
	return Missing
}

// ScenarioSummary is one line of a scenario listing.
type ScenarioSummary struct {
	Name       string
	Builtin    bool
	HasResults bool
	Modified   time.Time
}

// Scenarios renders a scenario listing.
func (r *Renderer) Scenarios(list []ScenarioSummary) {
	t := r.newTable()
	t.AppendHeader(table.Row{"Scenario", "Kind", "Results", "Modified"})
	for _, s := range list {
		kind := "user"
		if s.Builtin {
			kind = "builtin"
		}
		results := "no"
		if s.HasResults {
			results = "yes"
		}
		t.AppendRow(table.Row{s.Name, kind, results, s.Modified.Local().Format(time.DateTime)})
	}
	r.render(t)
}

// Errors renders configuration errors; an empty list prints a short
// confirmation instead of an empty table.
func (r *Renderer) Errors(errs []config.ConfigurationError) {
	if len(errs) == 0 {
		_, _ = fmt.Fprintln(r.w, "No configuration errors.")
		return
	}
	t := r.newTable()
	t.AppendHeader(table.Row{"Path", "Error", "Details"})
	for _, e := range errs {
		t.AppendRow(table.Row{e.PathString(), e.Message, details(e.Details)})
	}
	if r.format == FormatText {
		t.SetCaption("%d configuration errors", len(errs))
	}
	r.render(t)
}

func details(d map[string]string) string {
	if len(d) == 0 {
		return ""
	}
	// ConfigurationError.Error already renders details in key order
	s := config.ConfigurationError{Details: d}.Error()
	return strings.TrimSuffix(strings.TrimPrefix(s, " ("), ")")
}

// Structure renders every leaf of s as path, value and unit.
func (r *Renderer) Structure(title string, s *core.Structure) error {
	r.heading(title)
	t := r.newTable()
	t.AppendHeader(table.Row{"Path", "Value", "Unit"})
	err := s.Walk(func(p core.Path, q units.Quantity) error {
		t.AppendRow(table.Row{p.String(), r.numbers.Format(q.Value), q.Unit.String()})
		return nil
	})
	if err != nil {
		return err
	}
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	r.render(t)
	return nil
}
