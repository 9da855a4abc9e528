package ledger

import (
	"context"

	"github.com/safar/go-stock-ledger/internal/models"
	"github.com/safar/go-stock-ledger/internal/store"
)

// Catalog edits change report inputs (names, categories, opening stock),
// so they go through the engine to keep cached reports fresh.

func (e *Engine) CreateCategory(ctx context.Context, ownerID int64, name string) (*models.Category, error) {
	c, err := e.store.CreateCategory(ctx, ownerID, name)
	if err != nil {
		return nil, err
	}
	e.invalidate(ctx, ownerID)
	return c, nil
}

func (e *Engine) CreateItem(ctx context.Context, in store.NewItem) (*models.Item, error) {
	item, err := e.store.CreateItem(ctx, in)
	if err != nil {
		return nil, err
	}
	e.logger.Info().
		Int64("owner_id", item.OwnerID).
		Int64("item_id", item.ID).
		Str("name", item.Name).
		Msg("item created")
	e.invalidate(ctx, item.OwnerID)
	return item, nil
}

func (e *Engine) UpdateItem(ctx context.Context, ownerID, itemID int64, upd store.ItemUpdate) (*models.Item, error) {
	item, err := e.store.UpdateItem(ctx, ownerID, itemID, upd)
	if err != nil {
		return nil, err
	}
	e.invalidate(ctx, ownerID)
	return item, nil
}

func (e *Engine) DeleteItem(ctx context.Context, ownerID, itemID int64) error {
	if err := e.store.DeleteItem(ctx, ownerID, itemID); err != nil {
		return err
	}
	e.logger.Info().Int64("owner_id", ownerID).Int64("item_id", itemID).Msg("item deleted")
	e.invalidate(ctx, ownerID)
	return nil
}
