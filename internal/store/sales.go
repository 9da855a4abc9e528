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

const saleColumns = `id, owner_id, order_id, item_id, quantity, total_price, discount, unit_cost_at_sale, sold_at`

func scanSale(row rowScanner, extra ...any) (*models.SaleRecord, error) {
	sale := &models.SaleRecord{}
	var orderID sql.NullString
	var unitCost sql.NullInt64

	dest := []any{
		&sale.ID,
		&sale.OwnerID,
		&orderID,
		&sale.ItemID,
		&sale.Quantity,
		&sale.TotalPrice,
		&sale.Discount,
		&unitCost,
		&sale.SoldAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	sale.OrderID = nullableString(orderID)
	sale.UnitCostAtSale = nullableInt64(unitCost)
	return sale, nil
}

func (t *pgTx) InsertSale(ctx context.Context, s *models.SaleRecord) error {
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO sale_records (owner_id, order_id, item_id, quantity, total_price, discount, unit_cost_at_sale, sold_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		s.OwnerID, s.OrderID, s.ItemID, s.Quantity, s.TotalPrice, s.Discount, s.UnitCostAtSale, s.SoldAt,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("create sale record: %w", err)
	}

	return nil
}

func (t *pgTx) ClaimOrder(ctx context.Context, ownerID int64, orderID string) error {
	if _, err := t.tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1::text || ':' || $2, 0))`,
		ownerID, orderID); err != nil {
		return fmt.Errorf("lock order %q: %w", orderID, err)
	}

	var exists bool
	err := t.tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM sale_records WHERE owner_id = $1 AND order_id = $2)`,
		ownerID, orderID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check order %q: %w", orderID, err)
	}
	if exists {
		return fmt.Errorf("order %q already exists: %w", orderID, database.ErrConflict)
	}

	return nil
}

func (t *pgTx) LockSale(ctx context.Context, ownerID, saleID int64) (*models.SaleRecord, error) {
	query := `SELECT ` + saleColumns + `
		FROM sale_records
		WHERE id = $1 AND owner_id = $2
		FOR UPDATE`

	sale, err := scanSale(t.tx.QueryRowContext(ctx, query, saleID, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrSaleNotFound
		}
		return nil, fmt.Errorf("lock sale %d: %w", saleID, err)
	}

	return sale, nil
}

func (t *pgTx) DeleteSale(ctx context.Context, ownerID, saleID int64) error {
	result, err := t.tx.ExecContext(ctx,
		`DELETE FROM sale_records WHERE id = $1 AND owner_id = $2`,
		saleID, ownerID)
	if err != nil {
		return fmt.Errorf("delete sale record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrSaleNotFound
	}

	return nil
}

func (s *PostgresStore) ListSales(ctx context.Context, filter SaleFilter) ([]models.SaleLine, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT s.id, s.owner_id, s.order_id, s.item_id, s.quantity, s.total_price, s.discount,
		       s.unit_cost_at_sale, s.sold_at,
		       i.name, COALESCE(c.name, ''), i.selling_price, i.average_cost
		FROM sale_records s
		JOIN items i ON i.id = s.item_id
		LEFT JOIN categories c ON c.id = i.category_id
		WHERE s.owner_id = $1`)
	args := []any{filter.OwnerID}

	if !filter.From.IsZero() {
		args = append(args, filter.From)
		fmt.Fprintf(&sb, ` AND s.sold_at >= $%d`, len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		fmt.Fprintf(&sb, ` AND s.sold_at < $%d`, len(args))
	}
	if filter.OrderID != "" {
		args = append(args, filter.OrderID)
		fmt.Fprintf(&sb, ` AND s.order_id = $%d`, len(args))
	}
	sb.WriteString(` ORDER BY s.sold_at DESC, s.id ASC`)
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&sb, ` LIMIT $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	var lines []models.SaleLine
	for rows.Next() {
		var line models.SaleLine
		sale, err := scanSale(rows,
			&line.ItemName,
			&line.CategoryName,
			&line.ItemSellingPrice,
			&line.ItemAverageCost,
		)
		if err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		line.SaleRecord = *sale
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return lines, nil
}
