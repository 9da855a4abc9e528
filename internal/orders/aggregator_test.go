package orders

import (
	"testing"
	"time"

	"github.com/safar/go-stock-ledger/internal/database"
	"github.com/safar/go-stock-ledger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func line(id int64, orderID string, qty, total, discount, unitCost int64, at time.Time) models.SaleLine {
	rec := models.SaleRecord{
		ID:             id,
		OwnerID:        1,
		ItemID:         id * 10,
		Quantity:       qty,
		TotalPrice:     total,
		Discount:       discount,
		UnitCostAtSale: &unitCost,
		SoldAt:         at,
	}
	if orderID != "" {
		rec.OrderID = &orderID
	}
	return models.SaleLine{SaleRecord: rec, ItemName: "item"}
}

func TestGroupTwoLineOrder(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	lines := []models.SaleLine{
		line(1, "A", 2, 2000, 200, 700, at),
		line(2, "A", 3, 450, 45, 100, at),
	}

	receipts := Group(lines)
	require.Len(t, receipts, 1)

	r := receipts[0]
	assert.Equal(t, "A", r.OrderID)
	assert.False(t, r.Legacy)
	assert.Equal(t, int64(5), r.TotalQty)
	assert.Equal(t, int64(2450), r.TotalAmount)
	assert.Equal(t, int64(245), r.TotalDiscount)
	assert.Equal(t, int64(2205), r.NetAmount)
	assert.Equal(t, int64(2205-1400-300), r.Profit)
	assert.Equal(t, at, r.SoldAt)
	assert.Len(t, r.Lines, 2)
}

func TestGroupKeepsFirstAppearanceOrder(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	lines := []models.SaleLine{
		line(5, "B", 1, 100, 0, 50, at),
		line(4, "", 1, 100, 0, 50, at),
		line(3, "A", 1, 100, 0, 50, at),
		line(2, "B", 1, 100, 0, 50, at),
		line(1, "", 1, 100, 0, 50, at),
	}

	receipts := Group(lines)
	require.Len(t, receipts, 4)

	assert.Equal(t, "B", receipts[0].OrderID)
	assert.Equal(t, []int64{5, 2}, []int64{receipts[0].Lines[0].ID, receipts[0].Lines[1].ID})
	assert.True(t, receipts[1].Legacy)
	assert.Equal(t, int64(4), receipts[1].Lines[0].ID)
	assert.Equal(t, "A", receipts[2].OrderID)
	assert.True(t, receipts[3].Legacy)
}

func TestGroupLegacyProfitFallsBackToCurrentCost(t *testing.T) {
	legacy := models.SaleLine{
		SaleRecord:      models.SaleRecord{ID: 1, Quantity: 2, TotalPrice: 1000},
		ItemAverageCost: 300,
	}

	receipts := Group([]models.SaleLine{legacy})
	require.Len(t, receipts, 1)
	assert.Equal(t, int64(400), receipts[0].Profit)
}

func TestGroupEmpty(t *testing.T) {
	assert.Empty(t, Group(nil))
}

func TestLookup(t *testing.T) {
	at := time.Now()
	lines := []models.SaleLine{
		line(1, "A", 1, 100, 0, 50, at),
		line(2, "B", 2, 200, 0, 50, at),
	}

	r, err := Lookup(lines, "B")
	require.NoError(t, err)
	assert.Equal(t, int64(2), r.TotalQty)

	_, err = Lookup(lines, "missing")
	assert.ErrorIs(t, err, database.ErrOrderNotFound)
	assert.ErrorIs(t, err, database.ErrNotFound)
}
