package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/odyssey-sourcing/internal/rfq"
)

const (
	selectionSheet = "Selection"
	infoSheet      = "Summary"
)

// WriteXLSX renders the summary as a workbook with a selection sheet using
// the CSV column layout and a summary sheet carrying identity and totals.
func WriteXLSX(w io.Writer, summary rfq.Summary) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(selectionSheet)
	if err != nil {
		return fmt.Errorf("export: create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return err
	}

	for col, title := range Header {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(selectionSheet, cell, title); err != nil {
			return err
		}
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(Header), 1)
	if err := f.SetCellStyle(selectionSheet, "A1", lastHeader, headerStyle); err != nil {
		return err
	}

	for i, row := range summary.Rows {
		r := i + 2
		values := []any{
			row.LineItemID,
			row.Description,
			row.SupplierID,
			row.SupplierName,
			rfq.RoundMoney(row.UnitPrice).InexactFloat64(),
			rfq.RoundMoney(row.TotalPrice).InexactFloat64(),
			rfq.RoundMoney(row.Savings).InexactFloat64(),
		}
		start, _ := excelize.CoordinatesToCellName(1, r)
		if err := f.SetSheetRow(selectionSheet, start, &values); err != nil {
			return err
		}
	}
	if len(summary.Rows) > 0 {
		last := len(summary.Rows) + 1
		from, _ := excelize.CoordinatesToCellName(5, 2)
		to, _ := excelize.CoordinatesToCellName(7, last)
		if err := f.SetCellStyle(selectionSheet, from, to, moneyStyle); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(selectionSheet, "B", "B", 40); err != nil {
		return err
	}
	if err := f.SetColWidth(selectionSheet, "D", "D", 28); err != nil {
		return err
	}

	if _, err := f.NewSheet(infoSheet); err != nil {
		return err
	}
	info := [][]any{
		{"RFQ Number", summary.RFQNumber},
		{"RFQ ID", summary.RFQID},
		{"Material Request", summary.MaterialRequest.Number},
		{"Currency", summary.Currency},
		{"Generated At", summary.GeneratedAt.UTC().Format(time.RFC3339)},
		{"Total Selected", summary.TotalSelected.StringFixed(2)},
		{"Total Best", summary.TotalBest.StringFixed(2)},
		{"Total Savings", summary.TotalSavings.StringFixed(2)},
		{"Summary ID", summary.ID.String()},
		{"Digest", summary.Digest},
	}
	for i, pair := range info {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(infoSheet, cell, &pair); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(infoSheet, "A", "A", 20); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("export: write workbook: %w", err)
	}
	return nil
}
