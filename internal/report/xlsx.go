package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/leapstack-labs/leapcalc/internal/casestudy"
)

// maxSheetName is the longest sheet name Excel accepts.
const maxSheetName = 31

// Workbook builds a workbook holding one sheet per report. Row 1 holds the
// column paths, row 2 the units and the data starts at row 3. Cells without
// a value are left empty.
func Workbook(reports ...*casestudy.Report) (*excelize.File, error) {
	f := excelize.NewFile()
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	used := make(map[string]bool)
	for i, rep := range reports {
		sheet := sheetName(rep.Name, i, used)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return nil, err
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
		if err := writeSheet(f, sheet, rep); err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheet, err)
		}
		if err := f.SetRowStyle(sheet, 1, 2, bold); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func writeSheet(f *excelize.File, sheet string, rep *casestudy.Report) error {
	paths := make([]any, len(rep.Columns))
	unitRow := make([]any, len(rep.Columns))
	for i, c := range rep.Columns {
		paths[i] = c.Path.String()
		unitRow[i] = c.Unit.String()
	}
	if err := f.SetSheetRow(sheet, "A1", &paths); err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, "A2", &unitRow); err != nil {
		return err
	}
	for i, row := range rep.Rows {
		cells := make([]any, len(row))
		for j, v := range row {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				cells[j] = v
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+3)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return err
		}
	}
	return nil
}

// sheetName strips the characters Excel rejects, truncates and makes the
// name unique within the workbook.
func sheetName(name string, index int, used map[string]bool) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if name == "" {
		name = fmt.Sprintf("Case study %d", index+1)
	}
	if len([]rune(name)) > maxSheetName {
		name = string([]rune(name)[:maxSheetName])
	}
	base := name
	for n := 2; used[name]; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		r := []rune(base)
		if len(r)+len(suffix) > maxSheetName {
			r = r[:maxSheetName-len(suffix)]
		}
		name = string(r) + suffix
	}
	used[name] = true
	return name
}

// SaveWorkbook writes the reports to path as an XLSX file.
func SaveWorkbook(path string, reports ...*casestudy.Report) (err error) {
	f, err := Workbook(reports...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}
