package order

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/dinein/internal/domain/table"
)

// ActiveOrderForTable returns the order currently running at the table.
// The table's current order pointer is followed while it references a
// non-terminal order; otherwise the newest non-terminal order on the table
// is used.
func (s *Service) ActiveOrderForTable(ctx context.Context, tableID string) (*Order, error) {
	t, err := s.tables.Get(ctx, tableID)
	if err != nil {
		return nil, errors.Wrapf(err, "table %s", tableID)
	}

	if t.CurrentOrderID != "" {
		o, err := s.orders.Get(ctx, t.CurrentOrderID)
		switch {
		case err == nil && !o.Status.Terminal():
			o.Table = t
			return o, nil
		case err != nil && !errors.Is(err, ErrNotFound):
			return nil, errors.Wrapf(err, "order %s", t.CurrentOrderID)
		}
	}

	o, err := s.orders.LatestActiveForTable(ctx, tableID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNoActiveOrder
		}
		return nil, errors.Wrapf(err, "latest order for table %s", tableID)
	}
	o.Table = t
	return o, nil
}

// Get returns the hydrated order with a snapshot of its table.
func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	t, err := s.tables.Get(ctx, o.TableID)
	switch {
	case err == nil:
		o.Table = t
	case !errors.Is(err, table.ErrNotFound):
		return nil, errors.Wrapf(err, "table %s", o.TableID)
	}
	return o, nil
}
