package report

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ExportSummaryExcel renders a student's attempt history for one test
// as an xlsx workbook.
func (s *Service) ExportSummaryExcel(ctx context.Context, studentID, testID int64) ([]byte, error) {
	items, err := s.SummarizeAttempts(ctx, studentID, testID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	headers := []string{"ordinal", "attempt_id", "taken_at", "correct", "total", "score_pct"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, it := range items {
		row := i + 2
		pct := 0.0
		if it.Total > 0 {
			pct = float64(it.Correct) / float64(it.Total) * 100
		}
		values := []any{
			it.Ordinal,
			it.AttemptID,
			it.CreatedAt.Format("2006-01-02 15:04:05"),
			it.Correct,
			it.Total,
			fmt.Sprintf("%.1f", pct),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	_ = f.SetColWidth(sheet, "A", "F", 18)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}
