package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/dinein/internal/domain/menu"
	"github.com/xenking/dinein/internal/domain/table"
)

// Status is the fulfillment state of an order.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusAccepted  Status = "ACCEPTED"
	StatusPreparing Status = "PREPARING"
	StatusReady     Status = "READY"
	StatusServed    Status = "SERVED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusPreparing, StatusReady,
		StatusServed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// PaymentStatus tracks whether an order has been paid.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
)

// ItemStatus is the kitchen state of a single line.
type ItemStatus string

const (
	ItemPending   ItemStatus = "PENDING"
	ItemPreparing ItemStatus = "PREPARING"
	ItemReady     ItemStatus = "READY"
)

// Order is a table's order with its priced lines.
type Order struct {
	ID            string
	OrderNumber   string
	TableID       string
	Status        Status
	PaymentStatus PaymentStatus
	Subtotal      decimal.Decimal
	Tax           decimal.Decimal
	Discount      decimal.Decimal
	Total         decimal.Decimal
	Notes         string
	CreatedAt     time.Time
	ConfirmedAt   *time.Time
	CompletedAt   *time.Time
	Items         []Item

	// Table is a read-time snapshot and is not persisted with the order.
	Table *table.Table
}

// Item is an order line. Name and UnitPrice are copied from the menu at
// order time.
type Item struct {
	ID             string
	MenuItemID     string
	Name           string
	UnitPrice      decimal.Decimal
	Quantity       int
	ModifiersTotal decimal.Decimal
	Subtotal       decimal.Decimal
	Status         ItemStatus
	SpecialRequest string
	Modifiers      []SelectedModifier
}

// SelectedModifier is an immutable snapshot of a chosen modifier option.
type SelectedModifier struct {
	ID              string
	OptionID        string
	OptionName      string
	GroupName       string
	PriceAdjustment decimal.Decimal
}

// Repository persists orders. Implementations may be bound to a transaction.
type Repository interface {
	// Create writes the order with its items and modifiers. It returns
	// ErrOrderNumberTaken when the order number is already used and leaves
	// any enclosing transaction usable.
	Create(ctx context.Context, o *Order) error
	// Get returns the hydrated order or ErrNotFound.
	Get(ctx context.Context, id string) (*Order, error)
	// GetForUpdate returns the order header, locking the row.
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	// LatestActiveForTable returns the newest non-terminal order on the
	// table or ErrNotFound.
	LatestActiveForTable(ctx context.Context, tableID string) (*Order, error)
	// UpdateStatus moves the order from one status to another and reports
	// whether the row was in the expected state.
	UpdateStatus(ctx context.Context, id string, from, to Status, at time.Time) (bool, error)
	// SetPaymentStatus changes the payment status if it currently equals from.
	SetPaymentStatus(ctx context.Context, id string, from, to PaymentStatus) (bool, error)
}

// Tx is a unit of work over the repositories order placement touches.
// Rollback after Commit is a no-op.
type Tx interface {
	Tables() table.Repository
	Menu() menu.Repository
	Orders() Repository
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transactor starts units of work.
type Transactor interface {
	Begin(ctx context.Context) (Tx, error)
}
