package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/dinein/internal/domain/order"
)

// Sentinel errors for payment operations.
var (
	ErrNotFound          = errors.New("payment not found")
	ErrOrderPaid         = errors.New("order is already paid")
	ErrOrderCancelled    = errors.New("order is cancelled")
	ErrUnsupportedMethod = errors.New("unsupported payment method")
)

// Method is how the customer pays.
type Method string

const (
	MethodCash  Method = "CASH"
	MethodCard  Method = "CARD"
	MethodVNPay Method = "VNPAY"
)

// Valid reports whether m is a supported method.
func (m Method) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodVNPay:
		return true
	}
	return false
}

// Status is the settlement state of a payment.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
)

// Payment is one attempt to settle an order.
type Payment struct {
	ID            string
	OrderID       string
	Amount        decimal.Decimal
	Method        Method
	Status        Status
	TransactionID string
	PaidAt        *time.Time
	CreatedAt     time.Time
}

// Repository persists payments. Implementations may be bound to a
// transaction.
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	// LatestForOrder returns the newest payment of the method for the order,
	// preferring PENDING ones, or ErrNotFound.
	LatestForOrder(ctx context.Context, orderID string, method Method) (*Payment, error)
	// MarkPaid transitions a PENDING payment to PAID and reports whether the
	// row was still PENDING.
	MarkPaid(ctx context.Context, id, transactionID string, at time.Time) (bool, error)
	ListByOrder(ctx context.Context, orderID string) ([]Payment, error)
}

// Tx is a unit of work over orders and payments. Rollback after Commit is a
// no-op.
type Tx interface {
	Orders() order.Repository
	Payments() Repository
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transactor starts units of work.
type Transactor interface {
	Begin(ctx context.Context) (Tx, error)
}
