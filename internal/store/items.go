package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/safar/go-stock-ledger/internal/database"
	"github.com/safar/go-stock-ledger/internal/models"
)

const itemColumns = `
		i.id, i.owner_id, i.name, i.category_id, COALESCE(c.name, ''), i.company,
		i.selling_price, i.quantity, i.average_cost, i.created_at, i.updated_at`

const itemFrom = `
		FROM items i
		LEFT JOIN categories c ON c.id = i.category_id`

func scanItem(row rowScanner) (*models.Item, error) {
	item := &models.Item{}
	var categoryID sql.NullInt64

	err := row.Scan(
		&item.ID,
		&item.OwnerID,
		&item.Name,
		&categoryID,
		&item.CategoryName,
		&item.Company,
		&item.SellingPrice,
		&item.Quantity,
		&item.AverageCost,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.CategoryID = nullableInt64(categoryID)
	return item, nil
}

func (s *PostgresStore) CreateItem(ctx context.Context, in NewItem) (*models.Item, error) {
	in, err := in.Normalize()
	if err != nil {
		return nil, err
	}

	var categoryName string
	if in.CategoryID != nil {
		category, err := s.getCategory(ctx, s.db, in.OwnerID, *in.CategoryID)
		if err != nil {
			return nil, err
		}
		categoryName = category.Name
	}

	item := &models.Item{
		OwnerID:      in.OwnerID,
		Name:         in.Name,
		CategoryID:   in.CategoryID,
		CategoryName: categoryName,
		Company:      in.Company,
		SellingPrice: in.SellingPrice,
		Quantity:     in.Quantity,
		AverageCost:  in.AverageCost,
	}

	query := `
		INSERT INTO items (owner_id, name, category_id, company, selling_price, quantity, average_cost, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	err = s.db.QueryRowContext(ctx, query,
		item.OwnerID, item.Name, item.CategoryID, item.Company,
		item.SellingPrice, item.Quantity, item.AverageCost,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}

	return item, nil
}

func (s *PostgresStore) GetItem(ctx context.Context, ownerID, itemID int64) (*models.Item, error) {
	query := `SELECT` + itemColumns + itemFrom + `
		WHERE i.id = $1 AND i.owner_id = $2`

	item, err := scanItem(s.db.QueryRowContext(ctx, query, itemID, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrItemNotFound
		}
		return nil, fmt.Errorf("get item: %w", err)
	}

	return item, nil
}

func (s *PostgresStore) FindItemsByName(ctx context.Context, ownerID int64, name string) ([]models.Item, error) {
	query := `SELECT` + itemColumns + itemFrom + `
		WHERE i.owner_id = $1 AND LOWER(i.name) = LOWER($2)
		ORDER BY i.id`

	return s.queryItems(ctx, query, ownerID, strings.TrimSpace(name))
}

func (s *PostgresStore) ListItems(ctx context.Context, filter ItemFilter) ([]models.Item, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT` + itemColumns + itemFrom + `
		WHERE i.owner_id = $1`)
	args := []any{filter.OwnerID}

	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		fmt.Fprintf(&sb, ` AND i.name ILIKE $%d`, len(args))
	}
	if filter.BelowQuantity != nil {
		args = append(args, *filter.BelowQuantity)
		fmt.Fprintf(&sb, ` AND i.quantity < $%d`, len(args))
	}
	sb.WriteString(` ORDER BY i.name, i.id`)

	return s.queryItems(ctx, sb.String(), args...)
}

func (s *PostgresStore) queryItems(ctx context.Context, query string, args ...any) ([]models.Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

func (s *PostgresStore) UpdateItem(ctx context.Context, ownerID, itemID int64, upd ItemUpdate) (*models.Item, error) {
	var item *models.Item

	err := database.WithTransaction(ctx, s.db, s.opts, func(tx *sql.Tx) error {
		current, err := (&pgTx{tx: tx}).LockItem(ctx, ownerID, itemID)
		if err != nil {
			return err
		}

		if err := upd.Apply(current); err != nil {
			return err
		}
		if upd.CategoryID != nil && !upd.ClearCategory {
			category, err := s.getCategory(ctx, tx, ownerID, *upd.CategoryID)
			if err != nil {
				return err
			}
			current.CategoryName = category.Name
		}

		err = tx.QueryRowContext(ctx,
			`UPDATE items
			 SET name = $1, category_id = $2, company = $3, selling_price = $4, updated_at = NOW()
			 WHERE id = $5 AND owner_id = $6
			 RETURNING updated_at`,
			current.Name, current.CategoryID, current.Company, current.SellingPrice, itemID, ownerID,
		).Scan(&current.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update item: %w", err)
		}

		item = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	return item, nil
}

func (s *PostgresStore) DeleteItem(ctx context.Context, ownerID, itemID int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM items WHERE id = $1 AND owner_id = $2`,
		itemID, ownerID)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return fmt.Errorf("delete item %d: item has ledger history: %w", itemID, database.ErrConflict)
		}
		return fmt.Errorf("delete item: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrItemNotFound
	}

	return nil
}

func (t *pgTx) LockItem(ctx context.Context, ownerID, itemID int64) (*models.Item, error) {
	query := `SELECT` + itemColumns + itemFrom + `
		WHERE i.id = $1 AND i.owner_id = $2
		FOR UPDATE OF i`

	item, err := scanItem(t.tx.QueryRowContext(ctx, query, itemID, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrItemNotFound
		}
		return nil, fmt.Errorf("lock item %d: %w", itemID, err)
	}

	return item, nil
}

func (t *pgTx) SaveItemStock(ctx context.Context, item *models.Item) error {
	err := t.tx.QueryRowContext(ctx,
		`UPDATE items
		 SET quantity = $1, average_cost = $2, updated_at = NOW()
		 WHERE id = $3 AND owner_id = $4
		 RETURNING updated_at`,
		item.Quantity, item.AverageCost, item.ID, item.OwnerID,
	).Scan(&item.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.ErrItemNotFound
		}
		return fmt.Errorf("update item stock: %w", err)
	}

	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
