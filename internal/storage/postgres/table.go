package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/dinein/internal/domain/table"
)

const (
	getTableSQL = `SELECT id, number, status, COALESCE(current_order_id, '')
		FROM dining_tables WHERE id = $1`

	getTableForUpdateSQL = getTableSQL + ` FOR UPDATE`

	occupyTableSQL = `UPDATE dining_tables
		SET status = 'OCCUPIED', current_order_id = $2, updated_at = now()
		WHERE id = $1`

	releaseTableSQL = `UPDATE dining_tables
		SET status = 'AVAILABLE', current_order_id = NULL, updated_at = now()
		WHERE id = $1 AND current_order_id = $2`
)

var _ table.Repository = (*TableRepository)(nil)

// TableRepository implements table.Repository.
type TableRepository struct {
	db DBTX
}

// NewTableRepository returns a TableRepository over a pool or transaction.
func NewTableRepository(db DBTX) *TableRepository {
	return &TableRepository{db: db}
}

// Get returns the table by id.
func (r *TableRepository) Get(ctx context.Context, id string) (*table.Table, error) {
	return r.get(ctx, getTableSQL, id)
}

// GetForUpdate returns the table and holds a row lock until the transaction
// ends. Outside a transaction the lock is released immediately.
func (r *TableRepository) GetForUpdate(ctx context.Context, id string) (*table.Table, error) {
	return r.get(ctx, getTableForUpdateSQL, id)
}

func (r *TableRepository) get(ctx context.Context, query, id string) (*table.Table, error) {
	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("getting table %q: %w", id, err)
	}
	t, err := pgx.CollectExactlyOneRow(rows, scanTable)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, table.ErrNotFound
		}
		return nil, fmt.Errorf("getting table %q: %w", id, err)
	}
	return &t, nil
}

// Occupy marks the table OCCUPIED and points it at the order.
func (r *TableRepository) Occupy(ctx context.Context, id, orderID string) error {
	tag, err := r.db.Exec(ctx, occupyTableSQL, id, orderID)
	if err != nil {
		return fmt.Errorf("occupying table %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return table.ErrNotFound
	}
	return nil
}

// Release frees the table if it still points at orderID.
func (r *TableRepository) Release(ctx context.Context, id, orderID string) (bool, error) {
	tag, err := r.db.Exec(ctx, releaseTableSQL, id, orderID)
	if err != nil {
		return false, fmt.Errorf("releasing table %q: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanTable(row pgx.CollectableRow) (table.Table, error) {
	var t table.Table
	err := row.Scan(&t.ID, &t.Number, &t.Status, &t.CurrentOrderID)
	return t, err
}

const upsertTableSQL = `INSERT INTO dining_tables (id, number, status)
	VALUES ($1, $2, $3)
	ON CONFLICT (id) DO UPDATE SET number = EXCLUDED.number, status = EXCLUDED.status, updated_at = now()`

// Upsert creates or updates a table.
func (r *TableRepository) Upsert(ctx context.Context, t *table.Table) error {
	if _, err := r.db.Exec(ctx, upsertTableSQL, t.ID, t.Number, t.Status); err != nil {
		return fmt.Errorf("upserting table %q: %w", t.ID, err)
	}
	return nil
}
