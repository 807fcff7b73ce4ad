package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// ExcelReporter writes the session export workbook.
type ExcelReporter struct{}

// NewExcelReporter creates a new Excel reporter
func NewExcelReporter() *ExcelReporter {
	return &ExcelReporter{}
}

// WriteXLSX writes the Trades and Snapshots sheets to path.
func (r *ExcelReporter) WriteXLSX(report *SessionReport, path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const tradesSheet = "Trades"
	const snapshotsSheet = "Snapshots"

	fx.SetSheetName(fx.GetSheetName(0), tradesSheet)
	fx.NewSheet(snapshotsSheet)

	headerStyle, err := fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF", Family: "Calibri"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"2F4F4F"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return err
	}

	if err := r.writeTradesSheet(fx, tradesSheet, report, headerStyle); err != nil {
		return err
	}
	if err := r.writeSnapshotsSheet(fx, snapshotsSheet, report, headerStyle); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func (r *ExcelReporter) writeTradesSheet(fx *excelize.File, sheet string, report *SessionReport, headerStyle int) error {
	headers := []interface{}{"Trade ID", "Signal ID", "Market", "Category", "Side",
		"Quantity", "Entry Price", "Entry Costs", "Exit Price", "Exit Costs",
		"PnL", "Status", "Entry Time", "Exit Time"}
	if err := fx.SetSheetRow(sheet, "A1", &headers); err != nil {
		return err
	}
	if err := fx.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return err
	}

	for i, t := range report.Trades {
		row := []interface{}{t.ID, t.SignalID, t.MarketID, t.Category, string(t.Side),
			t.Quantity, t.EntryPrice, t.EntryCosts, t.ExitPrice, t.ExitCosts,
			t.PnL, string(t.Status), t.EntryTime.Format("2006-01-02 15:04:05"), ""}
		if !t.ExitTime.IsZero() {
			row[13] = t.ExitTime.Format("2006-01-02 15:04:05")
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := fx.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return fx.SetColWidth(sheet, "A", "N", 18)
}

func (r *ExcelReporter) writeSnapshotsSheet(fx *excelize.File, sheet string, report *SessionReport, headerStyle int) error {
	headers := []interface{}{"Snapshot ID", "Total", "Available", "Invested",
		"Unrealized PnL", "Realized Today", "Drawdown", "Open Positions", "Trades Today", "Timestamp"}
	if err := fx.SetSheetRow(sheet, "A1", &headers); err != nil {
		return err
	}
	if err := fx.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return err
	}

	for i, s := range report.Snapshots {
		row := []interface{}{s.ID, s.TotalCapital, s.AvailableCapital, s.InvestedCapital,
			s.UnrealizedPnL, s.RealizedPnLToday, s.DailyDrawdown, s.OpenPositions,
			s.TradesToday, s.Timestamp.Format("2006-01-02 15:04:05")}
		cell := fmt.Sprintf("A%d", i+2)
		if err := fx.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return fx.SetColWidth(sheet, "A", "J", 18)
}
