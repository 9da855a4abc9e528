// Package ledger applies purchases and sales to items under row locks and
// keeps quantity and weighted average cost consistent with the history.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/safar/go-stock-ledger/internal/database"
	"github.com/safar/go-stock-ledger/internal/models"
	"github.com/safar/go-stock-ledger/internal/store"
)

// Invalidator is told about every committed change to a tenant's ledger.
type Invalidator interface {
	Invalidate(ctx context.Context, ownerID int64) error
}

type Engine struct {
	store       store.Store
	orderIDs    OrderIDGenerator
	invalidator Invalidator
	now         func() time.Time
	logger      zerolog.Logger
}

type Option func(*Engine)

func WithOrderIDGenerator(g OrderIDGenerator) Option {
	return func(e *Engine) { e.orderIDs = g }
}

func WithInvalidator(inv Invalidator) Option {
	return func(e *Engine) { e.invalidator = inv }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func NewEngine(st store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:    st,
		orderIDs: UUIDGenerator{},
		now:      func() time.Time { return time.Now().UTC() },
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxOrderIDLength is the longest order id a sale record can carry.
const MaxOrderIDLength = 64

type SaleLineRequest struct {
	ItemID   int64 `json:"item_id"`
	Quantity int64 `json:"quantity"`
}

type SaleRequest struct {
	OwnerID int64
	Lines   []SaleLineRequest
	// OrderID groups the lines; a fresh one is generated when empty. An id
	// already used by an earlier checkout is rejected with ErrConflict.
	OrderID string
	// Discount is a flat order discount spread over the lines.
	Discount int64
}

// ApplyPurchase receives stock into an item and recomputes its weighted
// average cost. The item update and the purchase record commit together.
func (e *Engine) ApplyPurchase(ctx context.Context, ownerID, itemID, quantity, unitPrice int64) (*models.Item, *models.Purchase, error) {
	if quantity <= 0 {
		return nil, nil, database.InvalidInputf("purchase quantity must be positive, got %d", quantity)
	}
	if unitPrice < 0 {
		return nil, nil, database.InvalidInputf("unit price must not be negative, got %d", unitPrice)
	}

	var item *models.Item
	var purchase *models.Purchase
	now := e.now()

	err := e.store.WithinTx(ctx, func(tx store.Tx) error {
		locked, err := tx.LockItem(ctx, ownerID, itemID)
		if err != nil {
			return err
		}

		newQty, newAvg, err := WeightedAverageCost(locked.Quantity, locked.AverageCost, quantity, unitPrice)
		if err != nil {
			return err
		}
		locked.Quantity = newQty
		locked.AverageCost = newAvg

		if err := tx.SaveItemStock(ctx, locked); err != nil {
			return err
		}

		p := &models.Purchase{
			OwnerID:   ownerID,
			ItemID:    itemID,
			Quantity:  quantity,
			UnitPrice: unitPrice,
			CreatedAt: now,
		}
		if err := tx.InsertPurchase(ctx, p); err != nil {
			return err
		}

		item, purchase = locked, p
		return nil
	})
	if err != nil {
		e.logRejected(err, "purchase", ownerID).Int64("item_id", itemID).Int64("quantity", quantity).Send()
		return nil, nil, err
	}

	e.logger.Info().
		Int64("owner_id", ownerID).
		Int64("item_id", itemID).
		Int64("quantity", quantity).
		Int64("unit_price", unitPrice).
		Int64("average_cost", item.AverageCost).
		Msg("purchase applied")
	e.invalidate(ctx, ownerID)

	return item, purchase, nil
}

// ApplySale sells every line of one checkout in a single transaction.
// Items are locked in ascending id order and stock is checked against the
// combined demand per item after the locks are held, so either every line
// is recorded or none is.
func (e *Engine) ApplySale(ctx context.Context, req SaleRequest) ([]models.SaleRecord, error) {
	if len(req.Lines) == 0 {
		return nil, database.InvalidInputf("sale has no lines")
	}
	if req.Discount < 0 {
		return nil, database.InvalidInputf("discount must not be negative, got %d", req.Discount)
	}

	demand := make(map[int64]int64, len(req.Lines))
	for i, line := range req.Lines {
		if line.Quantity <= 0 {
			return nil, database.InvalidInputf("line %d: quantity must be positive, got %d", i+1, line.Quantity)
		}
		total, ok := addInt64(demand[line.ItemID], line.Quantity)
		if !ok {
			return nil, database.InvalidInputf("line %d: quantity overflows", i+1)
		}
		demand[line.ItemID] = total
	}

	orderID := strings.TrimSpace(req.OrderID)
	if len(orderID) > MaxOrderIDLength {
		return nil, database.InvalidInputf("order id must be at most %d characters, got %d", MaxOrderIDLength, len(orderID))
	}
	if orderID == "" {
		orderID = e.orderIDs.NewOrderID()
	}

	itemIDs := make([]int64, 0, len(demand))
	for id := range demand {
		itemIDs = append(itemIDs, id)
	}
	sort.Slice(itemIDs, func(i, j int) bool { return itemIDs[i] < itemIDs[j] })

	now := e.now()

	var records []models.SaleRecord
	err := e.store.WithinTx(ctx, func(tx store.Tx) error {
		records = records[:0]

		if err := tx.ClaimOrder(ctx, req.OwnerID, orderID); err != nil {
			return err
		}

		locked := make(map[int64]*models.Item, len(itemIDs))
		for _, id := range itemIDs {
			item, err := tx.LockItem(ctx, req.OwnerID, id)
			if err != nil {
				return err
			}
			if item.Quantity < demand[id] {
				return &database.InsufficientStockError{
					ItemID:    item.ID,
					ItemName:  item.Name,
					Requested: demand[id],
					Available: item.Quantity,
				}
			}
			locked[id] = item
		}

		totals := make([]int64, len(req.Lines))
		for i, line := range req.Lines {
			total, ok := mulInt64(line.Quantity, locked[line.ItemID].SellingPrice)
			if !ok {
				return database.InvalidInputf("line %d: total price overflows", i+1)
			}
			totals[i] = total
		}

		discounts, err := AllocateDiscount(req.Discount, totals)
		if err != nil {
			return err
		}

		for i, line := range req.Lines {
			item := locked[line.ItemID]
			unitCost := item.AverageCost

			item.Quantity -= line.Quantity
			if err := tx.SaveItemStock(ctx, item); err != nil {
				return err
			}

			rec := models.SaleRecord{
				OwnerID:        req.OwnerID,
				OrderID:        &orderID,
				ItemID:         line.ItemID,
				Quantity:       line.Quantity,
				TotalPrice:     totals[i],
				Discount:       discounts[i],
				UnitCostAtSale: &unitCost,
				SoldAt:         now,
			}
			if err := tx.InsertSale(ctx, &rec); err != nil {
				return err
			}
			records = append(records, rec)
		}

		return nil
	})
	if err != nil {
		e.logRejected(err, "sale", req.OwnerID).Str("order_id", orderID).Int("lines", len(req.Lines)).Send()
		return nil, err
	}

	e.logger.Info().
		Int64("owner_id", req.OwnerID).
		Str("order_id", orderID).
		Int("lines", len(records)).
		Int64("discount", req.Discount).
		Msg("sale applied")
	e.invalidate(ctx, req.OwnerID)

	return records, nil
}

// NamedSaleRequest sells a single product looked up by name.
type NamedSaleRequest struct {
	OwnerID     int64
	ProductName string
	Quantity    int64
	OrderID     string
	Discount    int64
}

// SellByName sells req.Quantity units of the tenant's item whose name
// matches req.ProductName case-insensitively.
func (e *Engine) SellByName(ctx context.Context, req NamedSaleRequest) ([]models.SaleRecord, error) {
	if strings.TrimSpace(req.ProductName) == "" {
		return nil, database.InvalidInputf("product name is required")
	}
	if req.Quantity <= 0 {
		return nil, database.InvalidInputf("quantity must be positive, got %d", req.Quantity)
	}

	items, err := e.store.FindItemsByName(ctx, req.OwnerID, req.ProductName)
	if err != nil {
		return nil, err
	}
	switch len(items) {
	case 0:
		return nil, fmt.Errorf("product %q: %w", req.ProductName, database.ErrItemNotFound)
	case 1:
	default:
		return nil, fmt.Errorf("multiple products named %q: %w", req.ProductName, database.ErrConflict)
	}

	return e.ApplySale(ctx, SaleRequest{
		OwnerID:  req.OwnerID,
		Lines:    []SaleLineRequest{{ItemID: items[0].ID, Quantity: req.Quantity}},
		OrderID:  req.OrderID,
		Discount: req.Discount,
	})
}

// ReverseSale deletes a sale record and puts its quantity back on the
// item. The average cost is not rolled back.
func (e *Engine) ReverseSale(ctx context.Context, ownerID, saleID int64) error {
	var restored *models.Item
	var reversed *models.SaleRecord

	err := e.store.WithinTx(ctx, func(tx store.Tx) error {
		sale, err := tx.LockSale(ctx, ownerID, saleID)
		if err != nil {
			return err
		}

		item, err := tx.LockItem(ctx, ownerID, sale.ItemID)
		if err != nil {
			return err
		}

		restoredQty, ok := addInt64(item.Quantity, sale.Quantity)
		if !ok {
			return database.InvalidInputf("restored quantity overflows")
		}
		item.Quantity = restoredQty

		if err := tx.SaveItemStock(ctx, item); err != nil {
			return err
		}
		if err := tx.DeleteSale(ctx, ownerID, saleID); err != nil {
			return err
		}

		restored, reversed = item, sale
		return nil
	})
	if err != nil {
		e.logRejected(err, "sale reversal", ownerID).Int64("sale_id", saleID).Send()
		return err
	}

	e.logger.Info().
		Int64("owner_id", ownerID).
		Int64("sale_id", saleID).
		Int64("item_id", restored.ID).
		Int64("quantity", reversed.Quantity).
		Int64("stock", restored.Quantity).
		Msg("sale reversed")
	e.invalidate(ctx, ownerID)

	return nil
}

func (e *Engine) invalidate(ctx context.Context, ownerID int64) {
	if e.invalidator == nil {
		return
	}
	if err := e.invalidator.Invalidate(ctx, ownerID); err != nil {
		e.logger.Error().Err(err).Int64("owner_id", ownerID).Msg("report cache invalidation failed")
	}
}

func (e *Engine) logRejected(err error, op string, ownerID int64) *zerolog.Event {
	var ev *zerolog.Event
	switch {
	case errors.Is(err, database.ErrInsufficientStock), errors.Is(err, database.ErrContention):
		ev = e.logger.Warn()
	case errors.Is(err, database.ErrInvalidInput), errors.Is(err, database.ErrNotFound),
		errors.Is(err, database.ErrConflict), errors.Is(err, context.Canceled):
		ev = e.logger.Debug()
	default:
		ev = e.logger.Error()
	}
	return ev.Err(err).Str("op", op).Int64("owner_id", ownerID)
}
