package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/dinein/internal/domain/payment"
)

const (
	paymentColumns = `id, order_id, amount, method, status, transaction_id, paid_at, created_at`

	insertPaymentSQL = `INSERT INTO payments (id, order_id, amount, method, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	latestPaymentSQL = `SELECT ` + paymentColumns + ` FROM payments
		WHERE order_id = $1 AND method = $2
		ORDER BY (status = 'PENDING') DESC, created_at DESC, id DESC
		LIMIT 1`

	markPaymentPaidSQL = `UPDATE payments
		SET status = 'PAID', transaction_id = $2, paid_at = $3
		WHERE id = $1 AND status = 'PENDING'`

	listPaymentsSQL = `SELECT ` + paymentColumns + ` FROM payments
		WHERE order_id = $1
		ORDER BY created_at DESC, id DESC`
)

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository implements payment.Repository.
type PaymentRepository struct {
	db DBTX
}

// NewPaymentRepository returns a PaymentRepository over a pool or
// transaction.
func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a payment.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	_, err := r.db.Exec(ctx, insertPaymentSQL, p.ID, p.OrderID, p.Amount, p.Method, p.Status, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating payment %q: %w", p.ID, err)
	}
	return nil
}

// LatestForOrder returns the newest PENDING payment of the method, falling
// back to the newest of any status.
func (r *PaymentRepository) LatestForOrder(ctx context.Context, orderID string, method payment.Method) (*payment.Payment, error) {
	rows, err := r.db.Query(ctx, latestPaymentSQL, orderID, method)
	if err != nil {
		return nil, fmt.Errorf("getting payment for order %q: %w", orderID, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPayment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("getting payment for order %q: %w", orderID, err)
	}
	return &p, nil
}

// MarkPaid settles a PENDING payment.
func (r *PaymentRepository) MarkPaid(ctx context.Context, id, transactionID string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, markPaymentPaidSQL, id, transactionID, at)
	if err != nil {
		return false, fmt.Errorf("marking payment %q paid: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListByOrder returns all payments of the order, newest first.
func (r *PaymentRepository) ListByOrder(ctx context.Context, orderID string) ([]payment.Payment, error) {
	rows, err := r.db.Query(ctx, listPaymentsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing payments for order %q: %w", orderID, err)
	}
	return pgx.CollectRows(rows, scanPayment)
}

func scanPayment(row pgx.CollectableRow) (payment.Payment, error) {
	var p payment.Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Method, &p.Status, &p.TransactionID, &p.PaidAt, &p.CreatedAt)
	return p, err
}
