package service

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"aidtrack/internal/reconciliation/models"
)

const reportSheet = "Reconciliation"

// ReportHeader is the first row of the exported workbook.
var ReportHeader = []string{
	"Commodity",
	"Received (kg)",
	"Distributed (kg)",
	"Difference (kg)",
	"Package (kg)",
	"Packages",
	"Recommendation",
}

var reportColumnWidths = []float64{18, 16, 18, 16, 14, 12, 30}

// ExportXLSX renders a report as a single-sheet workbook. Row 1 is the
// header, one row per line follows, and a summary row notes the period.
func ExportXLSX(report *models.Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(reportSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range ReportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(reportSheet, cell, header); err != nil {
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(reportSheet, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(reportSheet, name, name, reportColumnWidths[col]); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, line := range report.Lines {
		row := []any{
			line.Commodity,
			line.ReceivedKg.InexactFloat64(),
			line.DistributedKg.InexactFloat64(),
			line.DifferenceKg.InexactFloat64(),
			line.PackageKg.InexactFloat64(),
			line.Packages,
			line.Recommendation,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(reportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	summary, err := excelize.CoordinatesToCellName(1, len(report.Lines)+3)
	if err != nil {
		return nil, fmt.Errorf("failed to convert coordinates: %w", err)
	}
	site := report.SiteName
	if site == "" {
		site = "all sites"
	}
	period := fmt.Sprintf("%s to %s, %s", report.From.Format(time.DateOnly),
		report.To.AddDate(0, 0, -1).Format(time.DateOnly), site)
	if err := f.SetCellValue(reportSheet, summary, period); err != nil {
		return nil, fmt.Errorf("failed to write summary: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return bytes.Clone(buf.Bytes()), nil
}
