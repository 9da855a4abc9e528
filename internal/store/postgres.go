package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/go-stock-ledger/internal/database"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store on PostgreSQL. Ledger transactions take
// row locks with SELECT ... FOR UPDATE and are replayed on lock timeouts,
// deadlocks and serialization failures.
type PostgresStore struct {
	db   *sql.DB
	opts database.TxOptions
}

func NewPostgresStore(db *sql.DB, opts database.TxOptions) *PostgresStore {
	return &PostgresStore{db: db, opts: opts}
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(Tx) error) error {
	err := database.WithRetry(ctx, s.db, s.opts, func(tx *sql.Tx) error {
		return fn(&pgTx{tx: tx})
	})
	if err != nil && database.IsRetryable(err) && !errors.Is(err, database.ErrContention) {
		return fmt.Errorf("%w: %w", database.ErrContention, err)
	}
	return err
}

type pgTx struct {
	tx *sql.Tx
}

type rowScanner interface {
	Scan(dest ...any) error
}

func nullableInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
