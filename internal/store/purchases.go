package store

import (
	"context"
	"fmt"

	"github.com/safar/go-stock-ledger/internal/models"
)

func (t *pgTx) InsertPurchase(ctx context.Context, p *models.Purchase) error {
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO purchases (owner_id, item_id, quantity, unit_price, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		p.OwnerID, p.ItemID, p.Quantity, p.UnitPrice, p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("create purchase: %w", err)
	}

	return nil
}

func (s *PostgresStore) ListPurchases(ctx context.Context, ownerID, itemID int64) ([]models.Purchase, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, item_id, quantity, unit_price, created_at
		 FROM purchases
		 WHERE owner_id = $1 AND item_id = $2
		 ORDER BY created_at DESC, id DESC`,
		ownerID, itemID)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close()

	var purchases []models.Purchase
	for rows.Next() {
		var p models.Purchase
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.ItemID, &p.Quantity, &p.UnitPrice, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return purchases, nil
}
