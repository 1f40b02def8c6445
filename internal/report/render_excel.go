package report

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/cachesight/cachesight/internal/model"
)

const (
	patternsSheetName       = "Patterns"
	recommendationsSheetName = "Recommendations"
)

// RenderXLSX renders patterns and recommendations into a two-sheet
// workbook, grounded on the teacher's render_excel.go cellName/row-cursor
// style.
func RenderXLSX(patterns []model.ClassifiedPattern, recs []model.Recommendation) ([]byte, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", patternsSheetName); err != nil {
		return nil, errors.Wrap(err, "failed to rename sheet")
	}
	if _, err := f.NewSheet(recommendationsSheetName); err != nil {
		return nil, errors.Wrap(err, "failed to create recommendations sheet")
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, errors.Wrap(err, "failed to build header style")
	}

	writePatternRows(f, headerStyle, patterns)
	writeRecommendationRows(f, headerStyle, recs)

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, errors.Wrap(err, "failed to write xlsx workbook to buffer")
	}
	return buf.Bytes(), nil
}

func writePatternRows(f *excelize.File, headerStyle int, patterns []model.ClassifiedPattern) {
	headers := []string{"File", "Line", "Type", "Severity", "Confidence", "PerformanceImpact", "MissRate", "TotalMisses", "Description", "RootCause"}
	for col, h := range headers {
		cell := cellName(col+1, 1)
		_ = f.SetCellValue(patternsSheetName, cell, h)
		_ = f.SetCellStyle(patternsSheetName, cell, cell, headerStyle)
	}
	for i, c := range patterns {
		row := i + 2
		loc, missRate, totalMisses := model.SourceLocation{}, 0.0, int64(0)
		if c.HotspotRef != nil {
			loc = c.HotspotRef.Location
			missRate = c.HotspotRef.MissRate()
			totalMisses = c.HotspotRef.TotalMisses
		}
		values := []any{loc.File, loc.Line, c.Antipattern.String(), c.Severity, c.Confidence, c.PerformanceImpactPct, missRate, totalMisses, c.Description, c.RootCause}
		for col, v := range values {
			_ = f.SetCellValue(patternsSheetName, cellName(col+1, row), v)
		}
	}
}

func writeRecommendationRows(f *excelize.File, headerStyle int, recs []model.Recommendation) {
	headers := []string{"File", "Line", "Optimization", "Priority", "ExpectedSpeedupPct", "Rationale", "CodeExample"}
	for col, h := range headers {
		cell := cellName(col+1, 1)
		_ = f.SetCellValue(recommendationsSheetName, cell, h)
		_ = f.SetCellStyle(recommendationsSheetName, cell, cell, headerStyle)
	}
	for i, r := range recs {
		row := i + 2
		values := []any{r.TargetLocation.File, r.TargetLocation.Line, r.Optimization.String(), r.Priority, r.ExpectedSpeedupPct, r.Rationale, r.CodeExample}
		for col, v := range values {
			_ = f.SetCellValue(recommendationsSheetName, cellName(col+1, row), v)
		}
	}
}

func cellName(col, row int) string {
	columnName, err := excelize.ColumnNumberToName(col)
	if err != nil {
		return fmt.Sprintf("A%d", row)
	}
	name, err := excelize.JoinCellName(columnName, row)
	if err != nil {
		return fmt.Sprintf("A%d", row)
	}
	return name
}
