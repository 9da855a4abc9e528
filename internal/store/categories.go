package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/go-stock-ledger/internal/database"
	"github.com/safar/go-stock-ledger/internal/models"
)

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) CreateCategory(ctx context.Context, ownerID int64, name string) (*models.Category, error) {
	name, err := NormalizeCategoryName(name)
	if err != nil {
		return nil, err
	}

	category := &models.Category{}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO categories (owner_id, name, created_at)
		 VALUES ($1, $2, NOW())
		 RETURNING id, owner_id, name, created_at`,
		ownerID, name,
	).Scan(&category.ID, &category.OwnerID, &category.Name, &category.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}

	return category, nil
}

func (s *PostgresStore) ListCategories(ctx context.Context, ownerID int64) ([]models.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, name, created_at
		 FROM categories
		 WHERE owner_id = $1
		 ORDER BY name, id`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return categories, nil
}

func (s *PostgresStore) getCategory(ctx context.Context, q queryRower, ownerID, categoryID int64) (*models.Category, error) {
	category := &models.Category{}

	err := q.QueryRowContext(ctx,
		`SELECT id, owner_id, name, created_at
		 FROM categories
		 WHERE id = $1 AND owner_id = $2`,
		categoryID, ownerID,
	).Scan(&category.ID, &category.OwnerID, &category.Name, &category.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("get category: %w", err)
	}

	return category, nil
}
