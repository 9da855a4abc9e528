// Package export renders report export rows as CSV or XLSX.
package export

import (
	"strconv"

	"github.com/safar/go-stock-ledger/internal/report"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02 15:04:05"

// Header lists the export columns in row order.
var Header = []string{
	"Order ID",
	"Date",
	"Product",
	"Category",
	"Quantity",
	"Unit Price",
	"Discount",
	"Revenue",
	"Cost",
	"Profit",
}

// Money renders an amount in minor units as major units with two decimals.
func Money(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

func FormatMoney(minor int64) string {
	return Money(minor).StringFixed(2)
}

func record(row report.ExportRow) []string {
	return []string{
		row.OrderID,
		row.Date.Format(dateLayout),
		row.Product,
		row.Category,
		strconv.FormatInt(row.Quantity, 10),
		FormatMoney(row.UnitPrice),
		FormatMoney(row.Discount),
		FormatMoney(row.Revenue),
		FormatMoney(row.Cost),
		FormatMoney(row.Profit),
	}
}
