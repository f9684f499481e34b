package table

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested table does not exist.
var ErrNotFound = errors.New("table not found")

// Status is the occupancy state of a dining table.
type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusOccupied  Status = "OCCUPIED"
	StatusInactive  Status = "INACTIVE"
)

// Table is a dining table customers order from.
//
// CurrentOrderID is a weak pointer to the latest order placed at the table.
// Orders never depend on it being set.
type Table struct {
	ID             string
	Number         string
	Status         Status
	CurrentOrderID string
}

// Repository defines table reads and the occupancy mutations used by the
// ordering flow.
type Repository interface {
	// GetForUpdate loads the table and locks its row until the enclosing
	// transaction ends.
	GetForUpdate(ctx context.Context, id string) (*Table, error)
	Get(ctx context.Context, id string) (*Table, error)
	Occupy(ctx context.Context, id, orderID string) error
	// Release marks the table AVAILABLE and clears the pointer only while it
	// still references orderID. It reports whether the row changed.
	Release(ctx context.Context, id, orderID string) (bool, error)
}
