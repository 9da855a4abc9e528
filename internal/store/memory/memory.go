// Package memory is an in-process implementation of store.Store. Row locks
// are per-row channels held until the transaction ends, so it serializes
// concurrent ledger operations the same way the PostgreSQL store does.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/safar/go-stock-ledger/internal/database"
	"github.com/safar/go-stock-ledger/internal/models"
	"github.com/safar/go-stock-ledger/internal/store"
)

var _ store.Store = (*Store)(nil)

const defaultLockTimeout = 5 * time.Second

type Store struct {
	mu         sync.RWMutex
	categories map[int64]models.Category
	items      map[int64]models.Item
	purchases  map[int64]models.Purchase
	sales      map[int64]models.SaleRecord
	seq        map[string]int64

	locksMu sync.Mutex
	locks   map[string]chan struct{}

	lockTimeout time.Duration
	now         func() time.Time
}

type Option func(*Store)

// WithLockTimeout bounds how long a transaction waits for a row lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// WithClock overrides the clock used for created/updated timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		categories:  make(map[int64]models.Category),
		items:       make(map[int64]models.Item),
		purchases:   make(map[int64]models.Purchase),
		sales:       make(map[int64]models.SaleRecord),
		seq:         make(map[string]int64),
		locks:       make(map[string]chan struct{}),
		lockTimeout: defaultLockTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// nextID must be called with mu held.
func (s *Store) nextID(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

func (s *Store) rowLock(key string) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	ch, ok := s.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[key] = ch
	}
	return ch
}

// InsertLegacySale stores a sale record as written before orders and cost
// snapshots existed. It bypasses the ledger and does not touch stock.
func (s *Store) InsertLegacySale(sale models.SaleRecord) models.SaleRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale.ID = s.nextID("sale_records")
	s.sales[sale.ID] = sale
	return sale
}

func (s *Store) CreateCategory(ctx context.Context, ownerID int64, name string) (*models.Category, error) {
	name, err := store.NormalizeCategoryName(name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := models.Category{
		ID:        s.nextID("categories"),
		OwnerID:   ownerID,
		Name:      name,
		CreatedAt: s.now(),
	}
	s.categories[c.ID] = c
	return &c, nil
}

func (s *Store) ListCategories(ctx context.Context, ownerID int64) ([]models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Category
	for _, c := range s.categories {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CreateItem(ctx context.Context, in store.NewItem) (*models.Item, error) {
	in, err := in.Normalize()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if in.CategoryID != nil {
		if _, err := s.category(in.OwnerID, *in.CategoryID); err != nil {
			return nil, err
		}
	}

	now := s.now()
	item := models.Item{
		ID:           s.nextID("items"),
		OwnerID:      in.OwnerID,
		Name:         in.Name,
		CategoryID:   in.CategoryID,
		Company:      in.Company,
		SellingPrice: in.SellingPrice,
		Quantity:     in.Quantity,
		AverageCost:  in.AverageCost,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.items[item.ID] = item
	return s.withCategory(item), nil
}

func (s *Store) GetItem(ctx context.Context, ownerID, itemID int64) (*models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[itemID]
	if !ok || item.OwnerID != ownerID {
		return nil, database.ErrItemNotFound
	}
	return s.withCategory(item), nil
}

func (s *Store) FindItemsByName(ctx context.Context, ownerID int64, name string) ([]models.Item, error) {
	name = strings.TrimSpace(name)
	return s.filterItems(ownerID, func(item models.Item) bool {
		return strings.EqualFold(item.Name, name)
	}, func(a, b models.Item) bool {
		return a.ID < b.ID
	}), nil
}

func (s *Store) ListItems(ctx context.Context, filter store.ItemFilter) ([]models.Item, error) {
	query := strings.ToLower(strings.TrimSpace(filter.Query))
	return s.filterItems(filter.OwnerID, func(item models.Item) bool {
		if query != "" && !strings.Contains(strings.ToLower(item.Name), query) {
			return false
		}
		if filter.BelowQuantity != nil && item.Quantity >= *filter.BelowQuantity {
			return false
		}
		return true
	}, func(a, b models.Item) bool {
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	}), nil
}

func (s *Store) filterItems(ownerID int64, keep func(models.Item) bool, less func(a, b models.Item) bool) []models.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Item
	for _, item := range s.items {
		if item.OwnerID == ownerID && keep(item) {
			out = append(out, *s.withCategory(item))
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func (s *Store) UpdateItem(ctx context.Context, ownerID, itemID int64, upd store.ItemUpdate) (*models.Item, error) {
	var updated *models.Item
	err := s.WithinTx(ctx, func(tx store.Tx) error {
		if _, err := tx.LockItem(ctx, ownerID, itemID); err != nil {
			return err
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		item := s.items[itemID]
		if err := upd.Apply(&item); err != nil {
			return err
		}
		if upd.CategoryID != nil && !upd.ClearCategory {
			if _, err := s.category(ownerID, *upd.CategoryID); err != nil {
				return err
			}
		}

		item.UpdatedAt = s.now()
		s.items[itemID] = item
		updated = s.withCategory(item)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) DeleteItem(ctx context.Context, ownerID, itemID int64) error {
	return s.WithinTx(ctx, func(tx store.Tx) error {
		if _, err := tx.LockItem(ctx, ownerID, itemID); err != nil {
			return err
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		for _, p := range s.purchases {
			if p.ItemID == itemID {
				return fmt.Errorf("delete item %d: item has ledger history: %w", itemID, database.ErrConflict)
			}
		}
		for _, sale := range s.sales {
			if sale.ItemID == itemID {
				return fmt.Errorf("delete item %d: item has ledger history: %w", itemID, database.ErrConflict)
			}
		}

		delete(s.items, itemID)
		return nil
	})
}

func (s *Store) ListSales(ctx context.Context, filter store.SaleFilter) ([]models.SaleLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var lines []models.SaleLine
	for _, sale := range s.sales {
		if sale.OwnerID != filter.OwnerID {
			continue
		}
		if !filter.From.IsZero() && sale.SoldAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !sale.SoldAt.Before(filter.To) {
			continue
		}
		if filter.OrderID != "" && (sale.OrderID == nil || *sale.OrderID != filter.OrderID) {
			continue
		}

		item := s.withCategory(s.items[sale.ItemID])
		lines = append(lines, models.SaleLine{
			SaleRecord:       sale,
			ItemName:         item.Name,
			CategoryName:     item.CategoryName,
			ItemSellingPrice: item.SellingPrice,
			ItemAverageCost:  item.AverageCost,
		})
	}

	sort.Slice(lines, func(i, j int) bool {
		if !lines[i].SoldAt.Equal(lines[j].SoldAt) {
			return lines[i].SoldAt.After(lines[j].SoldAt)
		}
		return lines[i].ID < lines[j].ID
	})

	if filter.Limit > 0 && len(lines) > filter.Limit {
		lines = lines[:filter.Limit]
	}
	return lines, nil
}

func (s *Store) ListPurchases(ctx context.Context, ownerID, itemID int64) ([]models.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Purchase
	for _, p := range s.purchases {
		if p.OwnerID == ownerID && p.ItemID == itemID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// category must be called with mu held.
func (s *Store) category(ownerID, categoryID int64) (models.Category, error) {
	c, ok := s.categories[categoryID]
	if !ok || c.OwnerID != ownerID {
		return models.Category{}, database.ErrCategoryNotFound
	}
	return c, nil
}

// withCategory must be called with mu held.
func (s *Store) withCategory(item models.Item) *models.Item {
	item.CategoryName = ""
	if item.CategoryID != nil {
		if c, ok := s.categories[*item.CategoryID]; ok {
			item.CategoryName = c.Name
		}
	}
	return &item
}
