package models

import (
	"time"
)

// DefaultCompany is stored when an item is created without a company.
const DefaultCompany = "Unknown"

type Category struct {
	ID        int64     `json:"id"`
	OwnerID   int64     `json:"owner_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Item struct {
	ID           int64     `json:"id"`
	OwnerID      int64     `json:"owner_id"`
	Name         string    `json:"name"`
	CategoryID   *int64    `json:"category_id,omitempty"`
	CategoryName string    `json:"category_name,omitempty"`
	Company      string    `json:"company"`
	SellingPrice int64     `json:"selling_price"`
	Quantity     int64     `json:"quantity"`
	AverageCost  int64     `json:"average_cost"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TotalValue is the stock valuation of the item at its current average cost.
func (i Item) TotalValue() int64 {
	return i.Quantity * i.AverageCost
}

type Purchase struct {
	ID        int64     `json:"id"`
	OwnerID   int64     `json:"owner_id"`
	ItemID    int64     `json:"item_id"`
	Quantity  int64     `json:"quantity"`
	UnitPrice int64     `json:"unit_price"`
	CreatedAt time.Time `json:"created_at"`
}

// SaleRecord is one line of a sale. OrderID is nil for legacy sales that
// were recorded before checkouts were grouped, and UnitCostAtSale is nil
// for records that predate the cost snapshot.
type SaleRecord struct {
	ID             int64     `json:"id"`
	OwnerID        int64     `json:"owner_id"`
	OrderID        *string   `json:"order_id,omitempty"`
	ItemID         int64     `json:"item_id"`
	Quantity       int64     `json:"quantity"`
	TotalPrice     int64     `json:"total_price"`
	Discount       int64     `json:"discount"`
	UnitCostAtSale *int64    `json:"unit_cost_at_sale,omitempty"`
	SoldAt         time.Time `json:"sold_at"`
}

// NetPrice is the revenue of the line after its share of the order discount.
func (s SaleRecord) NetPrice() int64 {
	return s.TotalPrice - s.Discount
}

// Profit computes the line profit. fallbackCost is used when the record
// carries no cost snapshot.
func (s SaleRecord) Profit(fallbackCost int64) int64 {
	return s.NetPrice() - s.Cost(fallbackCost)
}

// Cost is the cost of goods sold for the line.
func (s SaleRecord) Cost(fallbackCost int64) int64 {
	unitCost := fallbackCost
	if s.UnitCostAtSale != nil {
		unitCost = *s.UnitCostAtSale
	}
	return unitCost * s.Quantity
}

// SaleLine is a sale record joined with the item and category it refers to.
// ItemSellingPrice and ItemAverageCost are the item's current values.
type SaleLine struct {
	SaleRecord
	ItemName         string `json:"item_name"`
	CategoryName     string `json:"category_name,omitempty"`
	ItemSellingPrice int64  `json:"item_selling_price"`
	ItemAverageCost  int64  `json:"item_average_cost"`
}

// UnitPrice is the selling price charged per unit on this line.
func (l SaleLine) UnitPrice() int64 {
	if l.Quantity == 0 {
		return 0
	}
	return l.TotalPrice / l.Quantity
}

// LineProfit is the line profit with the current item cost as fallback.
func (l SaleLine) LineProfit() int64 {
	return l.Profit(l.ItemAverageCost)
}

// LineCost is the line cost with the current item cost as fallback.
func (l SaleLine) LineCost() int64 {
	return l.Cost(l.ItemAverageCost)
}
