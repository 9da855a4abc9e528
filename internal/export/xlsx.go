package export

import (
	"fmt"
	"io"

	"github.com/safar/go-stock-ledger/internal/report"
	"github.com/xuri/excelize/v2"
)

const SheetName = "Sales"

// WriteXLSX writes rows as a single sheet workbook. Quantities and amounts
// are stored as numbers so they can be summed in a spreadsheet.
func WriteXLSX(w io.Writer, rows []report.ExportRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	for col, h := range Header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	for i, row := range rows {
		values := []interface{}{
			row.OrderID,
			row.Date.Format(dateLayout),
			row.Product,
			row.Category,
			row.Quantity,
			Money(row.UnitPrice).InexactFloat64(),
			Money(row.Discount).InexactFloat64(),
			Money(row.Revenue).InexactFloat64(),
			Money(row.Cost).InexactFloat64(),
			Money(row.Profit).InexactFloat64(),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if err := f.SetColWidth(SheetName, "A", "A", 38); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetName, "B", "D", 20); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
