package menu

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested menu item does not exist.
var ErrNotFound = errors.New("menu item not found")

// ItemStatus is the availability of a menu item.
type ItemStatus string

const (
	ItemAvailable   ItemStatus = "AVAILABLE"
	ItemUnavailable ItemStatus = "UNAVAILABLE"
	ItemSoldOut     ItemStatus = "SOLD_OUT"
)

// SelectionType controls how many options of a group may be picked.
type SelectionType string

const (
	SelectionSingle   SelectionType = "SINGLE"
	SelectionMultiple SelectionType = "MULTIPLE"
)

// Item is a snapshot of a sellable menu entry with its active modifier
// groups, in display order.
type Item struct {
	ID     string
	Name   string
	Price  decimal.Decimal
	Status ItemStatus
	Groups []ModifierGroup
}

// Orderable reports whether the item may be added to an order.
func (i *Item) Orderable() bool {
	return i.Status == ItemAvailable
}

// ModifierGroup is a named set of options with selection-count rules.
//
// MinSelections of zero means no lower bound, MaxSelections of zero means no
// upper bound.
type ModifierGroup struct {
	ID            string
	Name          string
	SelectionType SelectionType
	Required      bool
	MinSelections int
	MaxSelections int
	Options       []ModifierOption
}

// ModifierOption is one selectable choice with its price delta.
type ModifierOption struct {
	ID              string
	Name            string
	PriceAdjustment decimal.Decimal
	Active          bool
}

// Repository loads menu items together with their active modifier
// configuration.
type Repository interface {
	GetItem(ctx context.Context, id string) (*Item, error)
}
