package order

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/dinein/internal/domain/menu"
)

// Sentinel errors for order placement and lookup.
var (
	ErrEmptyItems        = errors.New("items required")
	ErrNotFound          = errors.New("order not found")
	ErrNoActiveOrder     = errors.New("table has no active order")
	ErrTableInactive     = errors.New("table is inactive")
	ErrOrderNumberTaken  = errors.New("order number already taken")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrStatusConflict    = errors.New("order status changed concurrently")
)

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	MenuItemID string
	Quantity   int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for menu item %s, got %d", e.MenuItemID, e.Quantity)
}

// MenuItemNotFoundError indicates a requested menu item does not exist.
type MenuItemNotFoundError struct {
	MenuItemID string
}

func (e *MenuItemNotFoundError) Error() string {
	return fmt.Sprintf("menu item %s not found", e.MenuItemID)
}

func (e *MenuItemNotFoundError) Unwrap() error { return menu.ErrNotFound }

// ItemUnavailableError indicates the menu item exists but cannot be ordered.
type ItemUnavailableError struct {
	MenuItemID string
	Name       string
	Status     menu.ItemStatus
}

func (e *ItemUnavailableError) Error() string {
	return fmt.Sprintf("menu item %q is %s", e.Name, e.Status)
}

// TransitionError reports a status change outside the allowed graph.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }
