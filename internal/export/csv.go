package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/safar/go-stock-ledger/internal/report"
)

func WriteCSV(w io.Writer, rows []report.ExportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i, row := range rows {
		if err := cw.Write(record(row)); err != nil {
			return fmt.Errorf("write csv row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
