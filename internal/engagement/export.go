package engagement

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const (
	analyticsSheet    = "Analytics"
	testimonialsSheet = "Testimonials"
)

var (
	analyticsHeader    = []string{"Feedback", "Responses", "Percent", "Color"}
	testimonialsHeader = []string{"Name", "Designation", "Rating", "Comment", "Submitted"}
)

// ExportXLSX writes the analytics and testimonials to a two-sheet workbook.
func ExportXLSX(analytics Analytics, testimonials []Testimonial) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(analyticsSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if _, err := f.NewSheet(testimonialsSheet); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	analyticsRows := make([][]interface{}, 0, len(analytics.Slices)+1)
	for _, s := range analytics.Slices {
		analyticsRows = append(analyticsRows, []interface{}{s.Label, s.Count, s.Percent, s.Color})
	}
	analyticsRows = append(analyticsRows, []interface{}{"Total", analytics.Total})
	if err := writeSheet(f, analyticsSheet, analyticsHeader, []float64{22, 12, 10, 12}, headerStyle, analyticsRows); err != nil {
		return nil, err
	}

	testimonialRows := make([][]interface{}, 0, len(testimonials))
	for _, t := range testimonials {
		testimonialRows = append(testimonialRows, []interface{}{
			t.Name, t.Designation, t.StarRating, t.Comment, t.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	if err := writeSheet(f, testimonialsSheet, testimonialsHeader, []float64{20, 20, 8, 60, 18}, headerStyle, testimonialRows); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, header []string, widths []float64, headerStyle int, rows [][]interface{}) error {
	for col, h := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return fmt.Errorf("failed to convert column number: %w", err)
		}
		if col < len(widths) {
			if err := f.SetColWidth(sheet, name, name, widths[col]); err != nil {
				return fmt.Errorf("failed to set column width: %w", err)
			}
		}
	}

	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
