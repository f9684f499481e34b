package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/dinein/internal/domain/menu"
	"github.com/xenking/dinein/internal/domain/order"
	"github.com/xenking/dinein/internal/domain/payment"
	"github.com/xenking/dinein/internal/domain/table"
)

var (
	_ order.Transactor   = (*Transactor)(nil)
	_ payment.Transactor = PaymentTransactor{}
)

// Transactor opens database transactions exposing repositories bound to
// them.
type Transactor struct {
	pool *pgxpool.Pool
}

// NewTransactor returns a Transactor over the pool.
func NewTransactor(pool *pgxpool.Pool) *Transactor {
	return &Transactor{pool: pool}
}

// Begin implements order.Transactor.
func (t *Transactor) Begin(ctx context.Context) (order.Tx, error) {
	tx, err := t.begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// Payments returns the same transactor typed for the payment domain.
func (t *Transactor) Payments() PaymentTransactor {
	return PaymentTransactor{t: t}
}

func (t *Transactor) begin(ctx context.Context) (*Tx, error) {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin transaction")
	}
	return &Tx{tx: tx}, nil
}

// PaymentTransactor implements payment.Transactor.
type PaymentTransactor struct {
	t *Transactor
}

// Begin implements payment.Transactor.
func (p PaymentTransactor) Begin(ctx context.Context) (payment.Tx, error) {
	tx, err := p.t.begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

var (
	_ order.Tx   = (*Tx)(nil)
	_ payment.Tx = (*Tx)(nil)
)

// Tx is one database transaction. It satisfies both order.Tx and
// payment.Tx.
type Tx struct {
	tx pgx.Tx
}

func (t *Tx) Tables() table.Repository     { return NewTableRepository(t.tx) }
func (t *Tx) Menu() menu.Repository        { return NewMenuRepository(t.tx) }
func (t *Tx) Orders() order.Repository     { return NewOrderRepository(t.tx) }
func (t *Tx) Payments() payment.Repository { return NewPaymentRepository(t.tx) }

// Commit commits the transaction.
func (t *Tx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

// Rollback aborts the transaction. It is a no-op once the transaction has
// been committed or rolled back.
func (t *Tx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}
