package ledger_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/safar/go-stock-ledger/internal/database"
	"github.com/safar/go-stock-ledger/internal/ledger"
	"github.com/safar/go-stock-ledger/internal/models"
	"github.com/safar/go-stock-ledger/internal/store"
	"github.com/safar/go-stock-ledger/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const owner = int64(1)

var fixedNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

type countingInvalidator struct {
	calls atomic.Int64
	err   error
}

func (c *countingInvalidator) Invalidate(ctx context.Context, ownerID int64) error {
	c.calls.Add(1)
	return c.err
}

func newEngine(t *testing.T, opts ...ledger.Option) (*ledger.Engine, *memory.Store) {
	t.Helper()
	st := memory.New(memory.WithLockTimeout(200 * time.Millisecond))
	opts = append([]ledger.Option{ledger.WithClock(func() time.Time { return fixedNow })}, opts...)
	return ledger.NewEngine(st, opts...), st
}

func createItemFor(t *testing.T, e *ledger.Engine, ownerID int64, name string) *models.Item {
	t.Helper()
	item, err := e.CreateItem(context.Background(), store.NewItem{OwnerID: ownerID, Name: name, SellingPrice: 100, Quantity: 5, AverageCost: 50})
	require.NoError(t, err)
	return item
}

func createItem(t *testing.T, e *ledger.Engine, name string, price, qty, avg int64) *models.Item {
	t.Helper()
	item, err := e.CreateItem(context.Background(), store.NewItem{
		OwnerID:      owner,
		Name:         name,
		SellingPrice: price,
		Quantity:     qty,
		AverageCost:  avg,
	})
	require.NoError(t, err)
	return item
}

func TestPurchaseThenSaleScenario(t *testing.T) {
	e, st := newEngine(t)
	ctx := context.Background()
	item := createItem(t, e, "Widget", 500, 0, 0)

	_, _, err := e.ApplyPurchase(ctx, owner, item.ID, 100, 400)
	require.NoError(t, err)
	updated, purchase, err := e.ApplyPurchase(ctx, owner, item.ID, 50, 500)
	require.NoError(t, err)

	assert.Equal(t, int64(150), updated.Quantity)
	assert.Equal(t, int64(433), updated.AverageCost)
	assert.Equal(t, int64(50), purchase.Quantity)
	assert.NotZero(t, purchase.ID)

	records, err := e.ApplySale(ctx, ledger.SaleRequest{
		OwnerID: owner,
		Lines:   []ledger.SaleLineRequest{{ItemID: item.ID, Quantity: 10}},
	})
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, int64(5000), rec.TotalPrice)
	require.NotNil(t, rec.UnitCostAtSale)
	assert.Equal(t, int64(433), *rec.UnitCostAtSale)
	assert.Equal(t, int64(670), rec.Profit(0))
	assert.Equal(t, fixedNow, rec.SoldAt)

	after, err := st.GetItem(ctx, owner, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(140), after.Quantity)
	assert.Equal(t, int64(433), after.AverageCost)

	purchases, err := st.ListPurchases(ctx, owner, item.ID)
	require.NoError(t, err)
	assert.Len(t, purchases, 2)
}

func TestApplyPurchaseValidation(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	item := createItem(t, e, "Widget", 500, 0, 0)

	_, _, err := e.ApplyPurchase(ctx, owner, item.ID, 0, 100)
	assert.ErrorIs(t, err, database.ErrInvalidInput)

	_, _, err = e.ApplyPurchase(ctx, owner, item.ID, 5, -1)
	assert.ErrorIs(t, err, database.ErrInvalidInput)

	_, _, err = e.ApplyPurchase(ctx, owner, 999, 5, 100)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestOversellLeavesStockUnchanged(t *testing.T) {
	e, st := newEngine(t)
	ctx := context.Background()
	item := createItem(t, e, "Widget", 500, 5, 100)

	_, err := e.ApplySale(ctx, ledger.SaleRequest{
		OwnerID: owner,
		Lines:   []ledger.SaleLineRequest{{ItemID: item.ID, Quantity: 6}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, database.ErrInsufficientStock)

	var stockErr *database.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, "Widget", stockErr.ItemName)
	assert.Equal(t, int64(6), stockErr.Requested)
	assert.Equal(t, int64(5), stockErr.Available)

	after, err := st.GetItem(ctx, owner, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), after.Quantity)

	sales, err := st.ListSales(ctx, store.SaleFilter{OwnerID: owner})
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestBatchSaleRollsBackOnFailingLine(t *testing.T) {
	e, st := newEngine(t)
	ctx := context.Background()
	first := createItem(t, e, "First", 100, 10, 50)
	second := createItem(t, e, "Second", 100, 1, 50)

	_, err := e.ApplySale(ctx, ledger.SaleRequest{
		OwnerID: owner,
		Lines: []ledger.SaleLineRequest{
			{ItemID: first.ID, Quantity: 3},
			{ItemID: second.ID, Quantity: 2},
		},
	})
	assert.ErrorIs(t, err, database.ErrInsufficientStock)

	after, err := st.GetItem(ctx, owner, first.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), after.Quantity)

	sales, err := st.ListSales(ctx, store.SaleFilter{OwnerID: owner})
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestBatchSaleChecksCumulativeDemand(t *testing.T) {
	e, st := newEngine(t)
	ctx := context.Background()
	item := createItem(t, e, "Widget", 100, 5, 50)

	_, err := e.ApplySale(ctx, ledger.SaleRequest{
		OwnerID: owner,
		Lines: []ledger.SaleLineRequest{
			{ItemID: item.ID, Quantity: 3},
			{ItemID: item.ID, Quantity: 3},
		},
	})
	var stockErr *database.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, int64(6), stockErr.Requested)

	records, err := e.ApplySale(ctx, ledger.SaleRequest{
		OwnerID: owner,
		Lines: []ledger.SaleLineRequest{
			{ItemID: item.ID, Quantity: 2},
			{ItemID: item.ID, Quantity: 3},
		},
	})
	require.NoError(t, err)
	assert.Len(t, records, 2)

	after, err := st.GetItem(ctx, owner, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), after.Quantity)
}

func TestTwoLineOrderSharesOrderIDAndTimestamp(t *testing.T) {
	e, _ := newEngine(t, ledger.WithOrderIDGenerator(ledger.OrderIDFunc(func() string { return "order-1" })))
	ctx := context.Background()
	pen := createItem(t, e, "Pen", 150, 10, 100)
	book := createItem(t, e, "Book", 1000, 10, 700)

	records, err := e.ApplySale(ctx, ledger.SaleRequest{
		OwnerID: owner,
		Lines: []ledger.SaleLineRequest{
			{ItemID: book.ID, Quantity: 2},
			{ItemID: pen.ID, Quantity: 3},
		},
		Discount: 245,
	})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, book.ID, records[0].ItemID)
	assert.Equal(t, pen.ID, records[1].ItemID)
	for _, rec := range records {
		require.NotNil(t, rec.OrderID)
		assert.Equal(t, "order-1", *rec.OrderID)
		assert.Equal(t, fixedNow, rec.SoldAt)
	}
	assert.Equal(t, int64(2000), records[0].TotalPrice)
	assert.Equal(t, int64(450), records[1].TotalPrice)
	assert.Equal(t, int64(245), records[0].Discount+records[1].Discount)
	assert.Equal(t, int64(200), records[0].Discount)
	assert.Equal(t, int64(45), records[1].Discount)
}

func TestApplySaleUsesRequestOrderID(t *testing.T) {
	e, _ := newEngine(t)
	item := createItem(t, e, "Widget", 100, 5, 50)

	records, err := e.ApplySale(context.Background(), ledger.SaleRequest{
		OwnerID: owner,
		OrderID: "  pos-42 ",
		Lines:   []ledger.SaleLineRequest{{ItemID: item.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, "pos-42", *records[0].OrderID)
}

func TestApplySaleRejectsUsedOrderID(t *testing.T) {
	now := fixedNow
	e, st := newEngine(t, ledger.WithClock(func() time.Time { return now }))
	ctx := context.Background()
	item := createItem(t, e, "Widget", 100, 5, 50)
	req := ledger.SaleRequest{
		OwnerID: owner,
		OrderID: "pos-1",
		Lines:   []ledger.SaleLineRequest{{ItemID: item.ID, Quantity: 1}},
	}

	_, err := e.ApplySale(ctx, req)
	require.NoError(t, err)

	now = fixedNow.Add(48 * time.Hour)
	_, err = e.ApplySale(ctx, req)
	assert.ErrorIs(t, err, database.ErrConflict)

	after, err := st.GetItem(ctx, owner, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), after.Quantity)

	lines, err := st.ListSales(ctx, store.SaleFilter{OwnerID: owner, OrderID: "pos-1"})
	require.NoError(t, err)
	assert.Len(t, lines, 1)

	// Another tenant may use the same id.
	other := createItemFor(t, e, owner+1, "Widget")
	_, err = e.ApplySale(ctx, ledger.SaleRequest{
		OwnerID: owner + 1,
		OrderID: "pos-1",
		Lines:   []ledger.SaleLineRequest{{ItemID: other.ID, Quantity: 1}},
	})
	assert.NoError(t, err)
}

func TestConcurrentCheckoutsWithSameOrderID(t *testing.T) {
	e, st := newEngine(t)
	ctx := context.Background()
	a := createItem(t, e, "Alpha", 100, 10, 50)
	b := createItem(t, e, "Beta", 100, 10, 50)

	var wg sync.WaitGroup
	var succeeded, conflicted atomic.Int64
	for _, id := range []int64{a.ID, b.ID, a.ID, b.ID} {
		wg.Add(1)
		go func(itemID int64) {
			defer wg.Done()
			_, err := e.ApplySale(ctx, ledger.SaleRequest{
				OwnerID: owner,
				OrderID: "pos-9",
				Lines:   []ledger.SaleLineRequest{{ItemID: itemID, Quantity: 1}},
			})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, database.ErrConflict):
				conflicted.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, int64(1), succeeded.Load())
	assert.Equal(t, int64(3), conflicted.Load())

	lines, err := st.ListSales(ctx, store.SaleFilter{OwnerID: owner, OrderID: "pos-9"})
	require.NoError(t, err)
	assert.Len(t, lines, 1)
}

func TestApplySaleValidation(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	item := createItem(t, e, "Widget", 100, 5, 50)

	tests := []struct {
		name string
		req  ledger.SaleRequest
		want error
	}{
		{"no lines", ledger.SaleRequest{OwnerID: owner}, database.ErrInvalidInput},
		{"zero quantity", ledger.SaleRequest{OwnerID: owner, Lines: []ledger.SaleLineRequest{{ItemID: item.ID}}}, database.ErrInvalidInput},
		{"negative discount", ledger.SaleRequest{OwnerID: owner, Discount: -5, Lines: []ledger.SaleLineRequest{{ItemID: item.ID, Quantity: 1}}}, database.ErrInvalidInput},
		{"discount above total", ledger.SaleRequest{OwnerID: owner, Discount: 101, Lines: []ledger.SaleLineRequest{{ItemID: item.ID, Quantity: 1}}}, database.ErrInvalidInput},
		{"unknown item", ledger.SaleRequest{OwnerID: owner, Lines: []ledger.SaleLineRequest{{ItemID: 404, Quantity: 1}}}, database.ErrNotFound},
		{"order id too long", ledger.SaleRequest{OwnerID: owner, OrderID: strings.Repeat("x", ledger.MaxOrderIDLength+1), Lines: []ledger.SaleLineRequest{{ItemID: item.ID, Quantity: 1}}}, database.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.ApplySale(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTenantIsolation(t *testing.T) {
	e, st := newEngine(t)
	ctx := context.Background()
	item := createItem(t, e, "Widget", 100, 5, 50)
	const other = int64(2)

	_, _, err := e.ApplyPurchase(ctx, other, item.ID, 5, 10)
	assert.ErrorIs(t, err, database.ErrItemNotFound)

	_, err = e.ApplySale(ctx, ledger.SaleRequest{
		OwnerID: other,
		Lines:   []ledger.SaleLineRequest{{ItemID: item.ID, Quantity: 1}},
	})
	assert.ErrorIs(t, err, database.ErrItemNotFound)

	records, err := e.ApplySale(ctx, ledger.SaleRequest{
		OwnerID: owner,
		Lines:   []ledger.SaleLineRequest{{ItemID: item.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	err = e.ReverseSale(ctx, other, records[0].ID)
	assert.ErrorIs(t, err, database.ErrSaleNotFound)

	after, err := st.GetItem(ctx, owner, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), after.Quantity)
}

func TestReverseSaleRestoresOnce(t *testing.T) {
	e, st := newEngine(t)
	ctx := context.Background()
	item := createItem(t, e, "Widget", 100, 10, 50)

	records, err := e.ApplySale(ctx, ledger.SaleRequest{
		OwnerID: owner,
		Lines:   []ledger.SaleLineRequest{{ItemID: item.ID, Quantity: 4}},
	})
	require.NoError(t, err)

	require.NoError(t, e.ReverseSale(ctx, owner, records[0].ID))

	err = e.ReverseSale(ctx, owner, records[0].ID)
	assert.ErrorIs(t, err, database.ErrSaleNotFound)

	after, err := st.GetItem(ctx, owner, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), after.Quantity)
	assert.Equal(t, int64(50), after.AverageCost)

	sales, err := st.ListSales(ctx, store.SaleFilter{OwnerID: owner})
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestConcurrentReverseRestoresOnce(t *testing.T) {
	e, st := newEngine(t)
	ctx := context.Background()
	item := createItem(t, e, "Widget", 100, 10, 50)

	records, err := e.ApplySale(ctx, ledger.SaleRequest{
		OwnerID: owner,
		Lines:   []ledger.SaleLineRequest{{ItemID: item.ID, Quantity: 4}},
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var succeeded atomic.Int64
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.ReverseSale(ctx, owner, records[0].ID); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), succeeded.Load())
	after, err := st.GetItem(ctx, owner, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), after.Quantity)
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	e, st := newEngine(t)
	ctx := context.Background()
	item := createItem(t, e, "Widget", 100, 10, 50)

	var wg sync.WaitGroup
	var succeeded, rejected atomic.Int64
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.ApplySale(ctx, ledger.SaleRequest{
				OwnerID: owner,
				Lines:   []ledger.SaleLineRequest{{ItemID: item.ID, Quantity: 1}},
			})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, database.ErrInsufficientStock):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), succeeded.Load())
	assert.Equal(t, int64(10), rejected.Load())

	after, err := st.GetItem(ctx, owner, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), after.Quantity)
}

func TestOpposingBatchesDoNotDeadlock(t *testing.T) {
	e, st := newEngine(t)
	ctx := context.Background()
	a := createItem(t, e, "A", 100, 100, 50)
	b := createItem(t, e, "B", 100, 100, 50)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		lines := []ledger.SaleLineRequest{{ItemID: a.ID, Quantity: 1}, {ItemID: b.ID, Quantity: 1}}
		if i%2 == 1 {
			lines[0], lines[1] = lines[1], lines[0]
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.ApplySale(ctx, ledger.SaleRequest{OwnerID: owner, Lines: lines})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for _, id := range []int64{a.ID, b.ID} {
		after, err := st.GetItem(ctx, owner, id)
		require.NoError(t, err)
		assert.Equal(t, int64(80), after.Quantity)
	}
}

func TestSellByName(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	createItem(t, e, "Green Tea", 300, 10, 100)

	records, err := e.SellByName(ctx, ledger.NamedSaleRequest{OwnerID: owner, ProductName: "green tea", Quantity: 2})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(600), records[0].TotalPrice)

	_, err = e.SellByName(ctx, ledger.NamedSaleRequest{OwnerID: owner, ProductName: "coffee", Quantity: 1})
	assert.ErrorIs(t, err, database.ErrNotFound)

	createItem(t, e, "GREEN TEA", 350, 10, 100)
	_, err = e.SellByName(ctx, ledger.NamedSaleRequest{OwnerID: owner, ProductName: "Green Tea", Quantity: 1})
	assert.ErrorIs(t, err, database.ErrConflict)

	_, err = e.SellByName(ctx, ledger.NamedSaleRequest{OwnerID: owner, ProductName: " ", Quantity: 1})
	assert.ErrorIs(t, err, database.ErrInvalidInput)
}

func TestSellByNameAppliesDiscountAndOrderID(t *testing.T) {
	e, _ := newEngine(t)
	createItem(t, e, "Tea", 300, 10, 100)

	records, err := e.SellByName(context.Background(), ledger.NamedSaleRequest{
		OwnerID:     owner,
		ProductName: "tea",
		Quantity:    1,
		OrderID:     "pos-7",
		Discount:    50,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "pos-7", *records[0].OrderID)
	assert.Equal(t, int64(50), records[0].Discount)
	assert.Equal(t, int64(250), records[0].NetPrice())
}

func TestLockTimeoutSurfacesContention(t *testing.T) {
	e, st := newEngine(t)
	ctx := context.Background()
	item := createItem(t, e, "Widget", 100, 10, 50)

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = st.WithinTx(ctx, func(tx store.Tx) error {
			if _, err := tx.LockItem(ctx, owner, item.ID); err != nil {
				return err
			}
			close(held)
			<-done
			return nil
		})
	}()
	<-held

	_, err := e.ApplySale(ctx, ledger.SaleRequest{
		OwnerID: owner,
		Lines:   []ledger.SaleLineRequest{{ItemID: item.ID, Quantity: 1}},
	})
	close(done)

	assert.ErrorIs(t, err, database.ErrContention)
}

func TestInvalidatorCalledAfterCommit(t *testing.T) {
	inv := &countingInvalidator{}
	e, _ := newEngine(t, ledger.WithInvalidator(inv))
	ctx := context.Background()
	item := createItem(t, e, "Widget", 100, 10, 50)
	base := inv.calls.Load()

	_, _, err := e.ApplyPurchase(ctx, owner, item.ID, 5, 60)
	require.NoError(t, err)
	assert.Equal(t, base+1, inv.calls.Load())

	_, err = e.ApplySale(ctx, ledger.SaleRequest{
		OwnerID: owner,
		Lines:   []ledger.SaleLineRequest{{ItemID: item.ID, Quantity: 100}},
	})
	require.Error(t, err)
	assert.Equal(t, base+1, inv.calls.Load())
}

func TestInvalidatorFailureDoesNotFailOperation(t *testing.T) {
	inv := &countingInvalidator{err: errors.New("redis down")}
	e, st := newEngine(t, ledger.WithInvalidator(inv))
	ctx := context.Background()
	item := createItem(t, e, "Widget", 100, 10, 50)

	_, err := e.ApplySale(ctx, ledger.SaleRequest{
		OwnerID: owner,
		Lines:   []ledger.SaleLineRequest{{ItemID: item.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	after, err := st.GetItem(ctx, owner, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(9), after.Quantity)
}

func TestDeleteItemWithHistoryConflicts(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	sold := createItem(t, e, "Sold", 100, 10, 50)
	fresh := createItem(t, e, "Fresh", 100, 10, 50)

	_, err := e.ApplySale(ctx, ledger.SaleRequest{
		OwnerID: owner,
		Lines:   []ledger.SaleLineRequest{{ItemID: sold.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	assert.ErrorIs(t, e.DeleteItem(ctx, owner, sold.ID), database.ErrConflict)
	assert.NoError(t, e.DeleteItem(ctx, owner, fresh.ID))
	assert.ErrorIs(t, e.DeleteItem(ctx, owner, fresh.ID), database.ErrNotFound)
}
