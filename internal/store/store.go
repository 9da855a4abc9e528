// Package store persists the tenant-scoped catalog and ledger history.
//
// Every method takes the owner id explicitly; rows owned by another tenant
// are reported exactly like missing rows.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/safar/go-stock-ledger/internal/database"
	"github.com/safar/go-stock-ledger/internal/models"
)

// Store is the persistence contract used by the ledger engine and reports.
type Store interface {
	Catalog
	History

	// WithinTx runs fn in one atomic transaction. Row locks taken through
	// Tx are held until fn returns and the transaction commits or rolls
	// back. A lock wait that cannot be satisfied surfaces as an error
	// matching database.ErrContention.
	WithinTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the set of ledger mutations available inside a transaction.
type Tx interface {
	// LockItem takes the exclusive row lock on the item and returns its
	// current state.
	LockItem(ctx context.Context, ownerID, itemID int64) (*models.Item, error)
	// SaveItemStock persists quantity and average cost of a locked item.
	SaveItemStock(ctx context.Context, item *models.Item) error
	InsertPurchase(ctx context.Context, p *models.Purchase) error
	InsertSale(ctx context.Context, s *models.SaleRecord) error
	// ClaimOrder reserves orderID for this transaction's checkout. It
	// fails with database.ErrConflict when sale records already carry the
	// id, and concurrent claims of one id are serialized.
	ClaimOrder(ctx context.Context, ownerID int64, orderID string) error
	// LockSale takes the exclusive row lock on a sale record.
	LockSale(ctx context.Context, ownerID, saleID int64) (*models.SaleRecord, error)
	DeleteSale(ctx context.Context, ownerID, saleID int64) error
}

type Catalog interface {
	CreateCategory(ctx context.Context, ownerID int64, name string) (*models.Category, error)
	ListCategories(ctx context.Context, ownerID int64) ([]models.Category, error)

	CreateItem(ctx context.Context, item NewItem) (*models.Item, error)
	GetItem(ctx context.Context, ownerID, itemID int64) (*models.Item, error)
	// FindItemsByName matches names case-insensitively and exactly.
	FindItemsByName(ctx context.Context, ownerID int64, name string) ([]models.Item, error)
	ListItems(ctx context.Context, filter ItemFilter) ([]models.Item, error)
	UpdateItem(ctx context.Context, ownerID, itemID int64, upd ItemUpdate) (*models.Item, error)
	// DeleteItem fails with database.ErrConflict while purchases or sales
	// still reference the item.
	DeleteItem(ctx context.Context, ownerID, itemID int64) error
}

type History interface {
	// ListSales returns sale lines newest first; lines sold at the same
	// instant keep their creation order.
	ListSales(ctx context.Context, filter SaleFilter) ([]models.SaleLine, error)
	ListPurchases(ctx context.Context, ownerID, itemID int64) ([]models.Purchase, error)
}

type NewItem struct {
	OwnerID      int64
	Name         string
	CategoryID   *int64
	Company      string
	SellingPrice int64
	Quantity     int64
	AverageCost  int64
}

// ItemUpdate holds an owner edit. Nil fields are left unchanged.
// Stock quantity and average cost are only changed by the ledger.
type ItemUpdate struct {
	Name          *string
	CategoryID    *int64
	ClearCategory bool
	Company       *string
	SellingPrice  *int64
}

type ItemFilter struct {
	OwnerID int64
	// Query matches item names case-insensitively as a substring.
	Query string
	// BelowQuantity keeps items whose quantity is strictly lower.
	BelowQuantity *int64
}

type SaleFilter struct {
	OwnerID int64
	// From is inclusive, To exclusive. Zero values are unbounded.
	From    time.Time
	To      time.Time
	OrderID string
	Limit   int
}

// Normalize trims and validates a new item before it is stored.
func (n NewItem) Normalize() (NewItem, error) {
	n.Name = strings.TrimSpace(n.Name)
	n.Company = strings.TrimSpace(n.Company)
	if n.Name == "" {
		return n, database.InvalidInputf("item name is required")
	}
	if n.Company == "" {
		n.Company = models.DefaultCompany
	}
	if n.SellingPrice < 0 {
		return n, database.InvalidInputf("selling price must not be negative")
	}
	if n.Quantity < 0 {
		return n, database.InvalidInputf("quantity must not be negative")
	}
	if n.AverageCost < 0 {
		return n, database.InvalidInputf("average cost must not be negative")
	}
	return n, nil
}

// Apply validates the update and applies it to item.
func (u ItemUpdate) Apply(item *models.Item) error {
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return database.InvalidInputf("item name is required")
		}
		item.Name = name
	}
	if u.Company != nil {
		company := strings.TrimSpace(*u.Company)
		if company == "" {
			company = models.DefaultCompany
		}
		item.Company = company
	}
	if u.SellingPrice != nil {
		if *u.SellingPrice < 0 {
			return database.InvalidInputf("selling price must not be negative")
		}
		item.SellingPrice = *u.SellingPrice
	}
	switch {
	case u.ClearCategory:
		item.CategoryID = nil
		item.CategoryName = ""
	case u.CategoryID != nil:
		id := *u.CategoryID
		item.CategoryID = &id
	}
	return nil
}

// NormalizeCategoryName trims and validates a category name.
func NormalizeCategoryName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", database.InvalidInputf("category name is required")
	}
	if len(name) > 100 {
		return "", database.InvalidInputf("category name is longer than 100 characters")
	}
	return name, nil
}
