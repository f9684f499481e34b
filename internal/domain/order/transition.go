package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/dinein/internal/notify"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusAccepted, StatusCancelled},
	StatusAccepted:  {StatusPreparing, StatusCancelled},
	StatusPreparing: {StatusReady},
	StatusReady:     {StatusServed},
	StatusServed:    {StatusCompleted},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the order to status to. Accepting stamps confirmed_at,
// completing stamps completed_at. Completing or cancelling frees the table
// unless another order has taken it over since.
func (s *Service) Transition(ctx context.Context, orderID string, to Status) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Transition",
		trace.WithAttributes(
			attribute.String("order.id", orderID),
			attribute.String("order.status", string(to)),
		),
	)
	defer span.End()

	tx, err := s.tx.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin")
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil {
			zctx.From(ctx).Warn("Rollback failed", zap.Error(err))
		}
	}()

	o, err := tx.Orders().GetForUpdate(ctx, orderID)
	if err != nil {
		return nil, err
	}
	from := o.Status
	if !CanTransition(from, to) {
		return nil, &TransitionError{From: from, To: to}
	}

	at := s.now().UTC()
	ok, err := tx.Orders().UpdateStatus(ctx, orderID, from, to, at)
	if err != nil {
		return nil, errors.Wrap(err, "update status")
	}
	if !ok {
		return nil, ErrStatusConflict
	}

	released := false
	if to.Terminal() {
		released, err = tx.Tables().Release(ctx, o.TableID, o.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "release table %s", o.TableID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit")
	}

	o.Status = to
	switch to {
	case StatusAccepted:
		o.ConfirmedAt = &at
	case StatusCompleted:
		o.CompletedAt = &at
	}

	s.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
	zctx.From(ctx).Info("Order status changed",
		zap.String("order_id", o.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Bool("table_released", released),
	)

	s.publish(ctx, notify.Event{
		Kind:          notify.OrderStatusChanged,
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		TableID:       o.TableID,
		Status:        string(to),
		PaymentStatus: string(o.PaymentStatus),
		OccurredAt:    at,
	})
	return o, nil
}
