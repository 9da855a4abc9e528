// Package orders groups sale lines into customer receipts.
package orders

import (
	"fmt"
	"time"

	"github.com/safar/go-stock-ledger/internal/database"
	"github.com/safar/go-stock-ledger/internal/models"
)

// Receipt is one checkout. Legacy receipts hold a single line recorded
// without an order id.
type Receipt struct {
	OrderID       string            `json:"order_id,omitempty"`
	Legacy        bool              `json:"legacy"`
	Lines         []models.SaleLine `json:"lines"`
	TotalAmount   int64             `json:"total_amount"`
	TotalDiscount int64             `json:"total_discount"`
	TotalQty      int64             `json:"total_qty"`
	NetAmount     int64             `json:"net_amount"`
	Profit        int64             `json:"profit"`
	SoldAt        time.Time         `json:"sold_at"`
}

func (r *Receipt) add(line models.SaleLine) {
	r.Lines = append(r.Lines, line)
	r.TotalAmount += line.TotalPrice
	r.TotalDiscount += line.Discount
	r.TotalQty += line.Quantity
	r.NetAmount += line.NetPrice()
	r.Profit += line.LineProfit()
}

// Group folds lines into receipts. Receipts appear in the order their
// first line appears and keep their lines in input order.
func Group(lines []models.SaleLine) []Receipt {
	receipts := make([]Receipt, 0, len(lines))
	index := make(map[string]int)

	for _, line := range lines {
		if line.OrderID == nil {
			r := Receipt{Legacy: true, SoldAt: line.SoldAt}
			r.add(line)
			receipts = append(receipts, r)
			continue
		}

		i, ok := index[*line.OrderID]
		if !ok {
			receipts = append(receipts, Receipt{OrderID: *line.OrderID, SoldAt: line.SoldAt})
			i = len(receipts) - 1
			index[*line.OrderID] = i
		}
		receipts[i].add(line)
	}

	return receipts
}

// Lookup returns the receipt for orderID.
func Lookup(lines []models.SaleLine, orderID string) (*Receipt, error) {
	for _, r := range Group(lines) {
		if !r.Legacy && r.OrderID == orderID {
			return &r, nil
		}
	}
	return nil, fmt.Errorf("%q: %w", orderID, database.ErrOrderNotFound)
}
