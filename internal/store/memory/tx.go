package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/safar/go-stock-ledger/internal/database"
	"github.com/safar/go-stock-ledger/internal/models"
	"github.com/safar/go-stock-ledger/internal/store"
)

// tx stages writes and applies them on commit. Locks are released after
// the commit is visible.
type tx struct {
	store *Store

	held     map[string]bool
	acquired []chan struct{}

	items        map[int64]models.Item
	purchases    []models.Purchase
	sales        []models.SaleRecord
	deletedSales map[int64]bool
}

func (s *Store) WithinTx(ctx context.Context, fn func(store.Tx) error) error {
	t := &tx{
		store:        s,
		held:         make(map[string]bool),
		items:        make(map[int64]models.Item),
		deletedSales: make(map[int64]bool),
	}
	defer t.release()

	if err := fn(t); err != nil {
		return err
	}

	t.commit()
	return nil
}

func (t *tx) acquire(ctx context.Context, key string) error {
	if t.held[key] {
		return nil
	}

	ch := t.store.rowLock(key)
	timer := time.NewTimer(t.store.lockTimeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		t.held[key] = true
		t.acquired = append(t.acquired, ch)
		return nil
	case <-timer.C:
		return fmt.Errorf("acquire %s: %w", key, database.ErrLockTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *tx) release() {
	for i := len(t.acquired) - 1; i >= 0; i-- {
		<-t.acquired[i]
	}
	t.acquired = nil
}

func (t *tx) commit() {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, staged := range t.items {
		item, ok := s.items[id]
		if !ok {
			continue
		}
		item.Quantity = staged.Quantity
		item.AverageCost = staged.AverageCost
		item.UpdatedAt = now
		s.items[id] = item
	}
	for _, p := range t.purchases {
		s.purchases[p.ID] = p
	}
	for _, sale := range t.sales {
		s.sales[sale.ID] = sale
	}
	for id := range t.deletedSales {
		delete(s.sales, id)
	}
}

func itemKey(id int64) string { return fmt.Sprintf("items:%d", id) }
func orderKey(ownerID int64, orderID string) string {
	return fmt.Sprintf("orders:%d:%s", ownerID, orderID)
}
func saleKey(id int64) string { return fmt.Sprintf("sale_records:%d", id) }

func (t *tx) LockItem(ctx context.Context, ownerID, itemID int64) (*models.Item, error) {
	if err := t.acquire(ctx, itemKey(itemID)); err != nil {
		return nil, fmt.Errorf("lock item %d: %w", itemID, err)
	}

	s := t.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[itemID]
	if !ok || item.OwnerID != ownerID {
		return nil, database.ErrItemNotFound
	}
	if staged, ok := t.items[itemID]; ok {
		item.Quantity = staged.Quantity
		item.AverageCost = staged.AverageCost
	}
	return s.withCategory(item), nil
}

func (t *tx) SaveItemStock(ctx context.Context, item *models.Item) error {
	if !t.held[itemKey(item.ID)] {
		return fmt.Errorf("save item %d: row is not locked", item.ID)
	}
	if item.Quantity < 0 || item.AverageCost < 0 {
		return fmt.Errorf("save item %d: negative stock or cost", item.ID)
	}
	t.items[item.ID] = *item
	return nil
}

func (t *tx) InsertPurchase(ctx context.Context, p *models.Purchase) error {
	s := t.store
	s.mu.Lock()
	p.ID = s.nextID("purchases")
	s.mu.Unlock()

	t.purchases = append(t.purchases, *p)
	return nil
}

func (t *tx) InsertSale(ctx context.Context, sale *models.SaleRecord) error {
	if sale.Discount < 0 || sale.Discount > sale.TotalPrice {
		return fmt.Errorf("create sale record: discount %d outside 0..%d", sale.Discount, sale.TotalPrice)
	}

	s := t.store
	s.mu.Lock()
	sale.ID = s.nextID("sale_records")
	s.mu.Unlock()

	t.sales = append(t.sales, *sale)
	return nil
}

func (t *tx) ClaimOrder(ctx context.Context, ownerID int64, orderID string) error {
	if err := t.acquire(ctx, orderKey(ownerID, orderID)); err != nil {
		return fmt.Errorf("lock order %q: %w", orderID, err)
	}

	s := t.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, sale := range s.sales {
		if sale.OwnerID == ownerID && sale.OrderID != nil && *sale.OrderID == orderID && !t.deletedSales[id] {
			return fmt.Errorf("order %q already exists: %w", orderID, database.ErrConflict)
		}
	}
	return nil
}

func (t *tx) LockSale(ctx context.Context, ownerID, saleID int64) (*models.SaleRecord, error) {
	if err := t.acquire(ctx, saleKey(saleID)); err != nil {
		return nil, fmt.Errorf("lock sale %d: %w", saleID, err)
	}

	s := t.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[saleID]
	if !ok || sale.OwnerID != ownerID || t.deletedSales[saleID] {
		return nil, database.ErrSaleNotFound
	}
	return &sale, nil
}

func (t *tx) DeleteSale(ctx context.Context, ownerID, saleID int64) error {
	if !t.held[saleKey(saleID)] {
		return fmt.Errorf("delete sale %d: row is not locked", saleID)
	}

	s := t.store
	s.mu.RLock()
	sale, ok := s.sales[saleID]
	s.mu.RUnlock()

	if !ok || sale.OwnerID != ownerID || t.deletedSales[saleID] {
		return database.ErrSaleNotFound
	}
	t.deletedSales[saleID] = true
	return nil
}
