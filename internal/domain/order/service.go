package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/dinein/internal/domain/menu"
	"github.com/xenking/dinein/internal/domain/modifier"
	"github.com/xenking/dinein/internal/domain/pricing"
	"github.com/xenking/dinein/internal/domain/table"
	"github.com/xenking/dinein/internal/notify"
)

// maxNumberAttempts bounds inserts retried on an order number collision.
const maxNumberAttempts = 3

// LineRequest is one requested order line.
type LineRequest struct {
	MenuItemID        string
	Quantity          int
	SpecialRequest    string
	ModifierOptionIDs []string
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	TableID string
	Notes   string
	Items   []LineRequest
}

// Service encapsulates order placement, lookup and status changes.
type Service struct {
	tx      Transactor
	orders  Repository
	tables  table.Repository
	numbers *NumberGenerator
	tax     pricing.TaxPolicy
	events  notify.Publisher
	now     func() time.Time

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	tracer         trace.Tracer
	placed         metric.Int64Counter
	rejected       metric.Int64Counter
	transitions    metric.Int64Counter
}

// Option configures a Service.
type Option func(*Service)

// WithTaxPolicy sets the tax applied to order subtotals.
func WithTaxPolicy(p pricing.TaxPolicy) Option {
	return func(s *Service) { s.tax = p }
}

// WithPublisher sets where order events are sent after commit.
func WithPublisher(p notify.Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithNumberGenerator replaces the default order number generator.
func WithNumberGenerator(g *NumberGenerator) Option {
	return func(s *Service) { s.numbers = g }
}

// WithClock sets the clock used for order timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTracerProvider sets the tracer provider for service spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider for order counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// NewService creates an order Service. Reads outside a unit of work go
// through orders and tables.
func NewService(tx Transactor, orders Repository, tables table.Repository, opts ...Option) (*Service, error) {
	s := &Service{
		tx:             tx,
		orders:         orders,
		tables:         tables,
		numbers:        NewNumberGenerator(),
		tax:            pricing.NoTax{},
		events:         notify.Nop{},
		now:            time.Now,
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
	}
	for _, o := range opts {
		o(s)
	}
	s.tracer = s.tracerProvider.Tracer("dinein/order")
	if err := s.initMetrics(s.meterProvider.Meter("dinein/order")); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) initMetrics(m metric.Meter) error {
	var err error
	if s.placed, err = m.Int64Counter("dinein.orders.placed",
		metric.WithDescription("Orders committed"),
	); err != nil {
		return errors.Wrap(err, "orders placed counter")
	}
	if s.rejected, err = m.Int64Counter("dinein.orders.rejected",
		metric.WithDescription("Order requests rejected before commit"),
	); err != nil {
		return errors.Wrap(err, "orders rejected counter")
	}
	if s.transitions, err = m.Int64Counter("dinein.orders.transitions",
		metric.WithDescription("Order status transitions"),
	); err != nil {
		return errors.Wrap(err, "order transitions counter")
	}
	return nil
}

// PlaceOrder validates the request, prices every line against the menu as
// read inside the transaction, persists the order graph and marks the table
// occupied. Either all of it is committed or nothing is.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder",
		trace.WithAttributes(attribute.String("table.id", req.TableID)),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
			s.rejected.Add(ctx, 1)
		}
		span.End()
	}()

	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	for _, line := range req.Items {
		if line.Quantity < 1 {
			return nil, &InvalidQuantityError{MenuItemID: line.MenuItemID, Quantity: line.Quantity}
		}
	}

	tx, err := s.tx.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin")
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil {
			zctx.From(ctx).Warn("Rollback failed", zap.Error(err))
		}
	}()

	t, err := tx.Tables().GetForUpdate(ctx, req.TableID)
	if err != nil {
		return nil, errors.Wrapf(err, "table %s", req.TableID)
	}
	if t.Status == table.StatusInactive {
		return nil, ErrTableInactive
	}

	o := &Order{
		ID:            uuid.NewString(),
		TableID:       t.ID,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		Notes:         req.Notes,
		CreatedAt:     s.now().UTC(),
		Items:         make([]Item, 0, len(req.Items)),
		Discount:      decimal.Zero,
	}

	subtotal := decimal.Zero
	for _, line := range req.Items {
		item, err := s.priceLine(ctx, tx.Menu(), line)
		if err != nil {
			return nil, err
		}
		subtotal = subtotal.Add(item.Subtotal)
		o.Items = append(o.Items, item)
	}

	o.Subtotal = subtotal
	o.Tax = s.tax.Tax(subtotal)
	o.Total = subtotal.Add(o.Tax).Sub(o.Discount)

	if err := s.create(ctx, tx.Orders(), o); err != nil {
		return nil, err
	}

	if err := tx.Tables().Occupy(ctx, t.ID, o.ID); err != nil {
		return nil, errors.Wrapf(err, "occupy table %s", t.ID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit")
	}

	t.Status = table.StatusOccupied
	t.CurrentOrderID = o.ID
	o.Table = t

	span.SetAttributes(
		attribute.String("order.id", o.ID),
		attribute.String("order.number", o.OrderNumber),
	)
	s.placed.Add(ctx, 1)
	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
		zap.String("table_id", o.TableID),
		zap.String("total", o.Total.StringFixed(2)),
	)

	s.publish(ctx, notify.Event{
		Kind:          notify.OrderCreated,
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		TableID:       o.TableID,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		Amount:        o.Total.StringFixed(2),
		OccurredAt:    o.CreatedAt,
	})

	return o, nil
}

func (s *Service) priceLine(ctx context.Context, menus menu.Repository, line LineRequest) (Item, error) {
	mi, err := menus.GetItem(ctx, line.MenuItemID)
	if err != nil {
		if errors.Is(err, menu.ErrNotFound) {
			return Item{}, &MenuItemNotFoundError{MenuItemID: line.MenuItemID}
		}
		return Item{}, errors.Wrapf(err, "menu item %s", line.MenuItemID)
	}
	if !mi.Orderable() {
		return Item{}, &ItemUnavailableError{MenuItemID: mi.ID, Name: mi.Name, Status: mi.Status}
	}

	res, err := modifier.Apply(mi, line.ModifierOptionIDs)
	if err != nil {
		return Item{}, err
	}

	mods := make([]SelectedModifier, len(res.Selected))
	for i, sel := range res.Selected {
		mods[i] = SelectedModifier{
			ID:              uuid.NewString(),
			OptionID:        sel.OptionID,
			OptionName:      sel.OptionName,
			GroupName:       sel.GroupName,
			PriceAdjustment: sel.PriceAdjustment,
		}
	}

	qty := decimal.NewFromInt(int64(line.Quantity))
	return Item{
		ID:             uuid.NewString(),
		MenuItemID:     mi.ID,
		Name:           mi.Name,
		UnitPrice:      mi.Price,
		Quantity:       line.Quantity,
		ModifiersTotal: res.Total,
		Subtotal:       mi.Price.Add(res.Total).Mul(qty),
		Status:         ItemPending,
		SpecialRequest: line.SpecialRequest,
		Modifiers:      mods,
	}, nil
}

// create inserts the order, drawing a new number when the previous one
// collides with an existing order.
func (s *Service) create(ctx context.Context, orders Repository, o *Order) error {
	for attempt := 1; ; attempt++ {
		number, err := s.numbers.Next()
		if err != nil {
			return errors.Wrap(err, "order number")
		}
		o.OrderNumber = number

		err = orders.Create(ctx, o)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrOrderNumberTaken) && attempt < maxNumberAttempts {
			zctx.From(ctx).Warn("Order number collision, retrying",
				zap.String("order_number", number),
				zap.Int("attempt", attempt),
			)
			continue
		}
		return errors.Wrap(err, "create order")
	}
}

func (s *Service) publish(ctx context.Context, e notify.Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		zctx.From(ctx).Warn("Publish event failed",
			zap.String("kind", string(e.Kind)),
			zap.String("order_id", e.OrderID),
			zap.Error(err),
		)
	}
}
