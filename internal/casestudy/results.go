package casestudy

import (
	"fmt"
	"math"

	"github.com/leapstack-labs/leapcalc/pkg/core"
	"github.com/leapstack-labs/leapcalc/pkg/units"
)

// Results are the rows collected by a sweep. Params[i] and Values[i] belong
// to the same combination; columns follow ParamPaths and ResultPaths.
type Results struct {
	ParamPaths  []core.Path
	ResultPaths []core.Path
	Params      [][]units.Quantity
	Values      [][]units.Quantity
}

func newResults(paramPaths, resultPaths []core.Path) *Results {
	return &Results{ParamPaths: paramPaths, ResultPaths: resultPaths}
}

// Len returns the number of rows.
func (r *Results) Len() int { return len(r.Params) }

func (r *Results) add(params []units.Quantity, res *core.Structure) error {
	values := make([]units.Quantity, len(r.ResultPaths))
	for i, p := range r.ResultPaths {
		q, err := res.Quantity(p)
		if err != nil {
			return &core.CalculationFailed{Message: fmt.Sprintf("result %s missing: %v", p, err)}
		}
		values[i] = q
	}
	r.Params = append(r.Params, append([]units.Quantity(nil), params...))
	r.Values = append(r.Values, values)
	return nil
}

// Column describes one column of a Report.
type Column struct {
	Path      core.Path
	Unit      units.Unit
	Parameter bool
}

// Report is a table of plain numbers, each column in a single unit.
type Report struct {
	Name    string
	Columns []Column
	Rows    [][]float64
}

// Collect builds a report holding every parameter column and the result
// columns lying under one of the interesting paths. An empty interesting
// list keeps all results. Each column is rendered in the unit of its first
// value; cells that cannot be converted become NaN.
func (r *Results) Collect(name string, interesting []core.Path) *Report {
	type source struct {
		col   int
		param bool
	}
	rep := &Report{Name: name}
	var sources []source
	for i, p := range r.ParamPaths {
		rep.Columns = append(rep.Columns, Column{Path: p.Clone(), Parameter: true})
		sources = append(sources, source{col: i, param: true})
	}
	for i, p := range r.ResultPaths {
		if !selected(p, interesting) {
			continue
		}
		rep.Columns = append(rep.Columns, Column{Path: p.Clone()})
		sources = append(sources, source{col: i})
	}
	if r.Len() > 0 {
		for j, s := range sources {
			rep.Columns[j].Unit = r.cell(0, s.col, s.param).Unit
		}
	}
	rep.Rows = make([][]float64, r.Len())
	for i := range rep.Rows {
		row := make([]float64, len(sources))
		for j, s := range sources {
			q, err := r.cell(i, s.col, s.param).To(rep.Columns[j].Unit)
			if err != nil {
				row[j] = math.NaN()
				continue
			}
			row[j] = q.Value
		}
		rep.Rows[i] = row
	}
	return rep
}

func (r *Results) cell(row, col int, param bool) units.Quantity {
	if param {
		return r.Params[row][col]
	}
	return r.Values[row][col]
}

func selected(p core.Path, interesting []core.Path) bool {
	if len(interesting) == 0 {
		return true
	}
	for _, prefix := range interesting {
		if p.HasPrefix(prefix) {
			return true
		}
	}
	return false
}
