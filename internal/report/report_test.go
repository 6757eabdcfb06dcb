package report

import (
	"bytes"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/leapcalc/internal/casestudy"
	"github.com/leapstack-labs/leapcalc/internal/config"
	"github.com/leapstack-labs/leapcalc/pkg/core"
	"github.com/leapstack-labs/leapcalc/pkg/units"
)

func sampleReport(reg *units.Registry) *casestudy.Report {
	return &casestudy.Report{
		Name: "rectangle sweep",
		Columns: []casestudy.Column{
			{Path: core.Path{"a"}, Unit: reg.MustParseUnit("cm"), Parameter: true},
			{Path: core.Path{"A"}, Unit: reg.MustParseUnit("cm^2")},
			{Path: core.Path{"geometry", "ratio"}, Unit: units.Dimensionless},
		},
		Rows: [][]float64{
			{1, 10, 0.1},
			{2, 20, math.NaN()},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"", FormatText},
		{"table", FormatText},
		{"MD", FormatMarkdown},
		{"html", FormatHTML},
		{"csv", FormatCSV},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	_, err := ParseFormat("yaml")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestNumbers(t *testing.T) {
	var plain Numbers
	assert.Equal(t, "0.333333", plain.Format(1.0/3))
	assert.Equal(t, "1.23457e+06", plain.Format(1234567))
	assert.Equal(t, Missing, plain.Format(math.NaN()))
	assert.Equal(t, "+Inf", plain.Format(math.Inf(1)))
	assert.Equal(t, "0.33", Numbers{Digits: 2}.Format(1.0/3))

	assert.Equal(t, plain.Format(0.5), NewNumbers(6, language.Und).Format(0.5))
	assert.Contains(t, NewNumbers(6, language.German).Format(0.5), "0,5")
}

func TestRenderer_CaseStudyText(t *testing.T) {
	reg := units.NewRegistry()
	var buf bytes.Buffer
	NewRenderer(&buf, FormatText).CaseStudy(sampleReport(reg))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "Rectangle Sweep\n"), out)
	for _, s := range []string{"geometry.ratio", "cm^2", "0.1", "20", "2 cases"} {
		assert.Contains(t, out, s)
	}
	assert.NotContains(t, out, "NaN")
}

func TestRenderer_CaseStudyCSV(t *testing.T) {
	reg := units.NewRegistry()
	var buf bytes.Buffer
	NewRenderer(&buf, FormatCSV, WithNumbers(NewNumbers(6, language.German))).CaseStudy(sampleReport(reg))

	out := buf.String()
	assert.NotContains(t, out, "Rectangle Sweep")
	assert.Contains(t, out, "geometry.ratio")
	// CSV keeps machine-readable numbers regardless of locale
	assert.Contains(t, out, "0.1")
	assert.NotContains(t, out, "0,1")
}

func TestRenderer_MarkdownAndHTML(t *testing.T) {
	reg := units.NewRegistry()

	var md bytes.Buffer
	NewRenderer(&md, FormatMarkdown).CaseStudy(sampleReport(reg))
	assert.Contains(t, md.String(), "## Rectangle Sweep")
	assert.Contains(t, md.String(), "| ")

	var html bytes.Buffer
	NewRenderer(&html, FormatHTML).CaseStudy(sampleReport(reg))
	assert.Contains(t, html.String(), "<h2>Rectangle Sweep</h2>")
	assert.Contains(t, html.String(), "<table")
}

func TestRenderer_Errors(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, FormatText)
	r.Errors(nil)
	assert.Equal(t, "No configuration errors.\n", buf.String())

	buf.Reset()
	r.Errors([]config.ConfigurationError{
		config.ParameterNotFound([]string{"geometry", "c"}),
		config.UndefinedUnit([]string{"a"}, "furlong"),
	})
	out := buf.String()
	assert.Contains(t, out, "geometry.c")
	assert.Contains(t, out, "Parameter not found")
	assert.Contains(t, out, "unit=furlong")
	assert.Contains(t, out, "2 configuration errors")
}

func TestRenderer_Scenarios(t *testing.T) {
	var buf bytes.Buffer
	NewRenderer(&buf, FormatMarkdown).Scenarios([]ScenarioSummary{
		{Name: "Default", Builtin: true, Modified: time.Now()},
		{Name: "wide", HasResults: true, Modified: time.Now()},
	})
	out := buf.String()
	assert.Contains(t, out, "Default")
	assert.Contains(t, out, "builtin")
	assert.Contains(t, out, "wide")
	assert.Contains(t, out, "yes")
}

func TestRenderer_Structure(t *testing.T) {
	reg := units.NewRegistry()
	s := core.NewStructure().
		Put("a", reg.MustQuantity(1.5, "cm")).
		Put("geometry", core.NewStructure().Put("ratio", units.Scalar(0.25)))

	var buf bytes.Buffer
	require.NoError(t, NewRenderer(&buf, FormatText).Structure("parameters", s))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "Parameters\n"))
	assert.Contains(t, out, "geometry.ratio")
	assert.Contains(t, out, "1.5")
	assert.Contains(t, out, "0.25")
}

func TestWorkbook(t *testing.T) {
	reg := units.NewRegistry()
	second := sampleReport(reg)
	second.Name = "rectangle sweep"

	path := filepath.Join(t.TempDir(), "sweep.xlsx")
	require.NoError(t, SaveWorkbook(path, sampleReport(reg), second))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{"rectangle sweep", "rectangle sweep (2)"}, f.GetSheetList())

	rows, err := f.GetRows("rectangle sweep")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"a", "A", "geometry.ratio"}, rows[0])
	assert.Equal(t, []string{"cm", "cm^2"}, rows[1])
	assert.Equal(t, []string{"1", "10", "0.1"}, rows[2])
	assert.Equal(t, []string{"2", "20"}, rows[3])
}

func TestSheetName(t *testing.T) {
	used := map[string]bool{}
	assert.Equal(t, "a_b_c", sheetName("a/b:c", 0, used))
	assert.Equal(t, "Case study 2", sheetName("  ", 1, used))

	long := strings.Repeat("x", 40)
	first := sheetName(long, 2, used)
	assert.Len(t, first, maxSheetName)
	second := sheetName(long, 3, used)
	assert.Len(t, second, maxSheetName)
	assert.True(t, strings.HasSuffix(second, " (2)"))
}
