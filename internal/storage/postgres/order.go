package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/dinein/internal/domain/order"
)

const orderNumberConstraint = "orders_order_number_key"

const (
	insertOrderSQL = `INSERT INTO orders (id, order_number, table_id, status, payment_status,
			subtotal, tax, discount, total, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	insertOrderItemSQL = `INSERT INTO order_items (id, order_id, position, menu_item_id, name,
			unit_price, quantity, modifiers_total, subtotal, status, special_request)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	insertOrderItemModifierSQL = `INSERT INTO order_item_modifiers (id, order_item_id, position,
			option_id, option_name, group_name, price_adjustment)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	orderColumns = `id, order_number, table_id, status, payment_status,
		subtotal, tax, discount, total, notes, created_at, confirmed_at, completed_at`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderForUpdateSQL = getOrderSQL + ` FOR UPDATE`

	latestActiveOrderSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE table_id = $1 AND status NOT IN ('COMPLETED', 'CANCELLED')
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	listOrderItemsSQL = `SELECT id, menu_item_id, name, unit_price, quantity, modifiers_total,
			subtotal, status, special_request
		FROM order_items WHERE order_id = $1
		ORDER BY position`

	listOrderItemModifiersSQL = `SELECT m.order_item_id, m.id, m.option_id, m.option_name, m.group_name, m.price_adjustment
		FROM order_item_modifiers m
		JOIN order_items i ON i.id = m.order_item_id
		WHERE i.order_id = $1
		ORDER BY i.position, m.position`

	updateOrderStatusSQL = `UPDATE orders SET
			status = $3,
			confirmed_at = CASE WHEN $3 = 'ACCEPTED' THEN $4 ELSE confirmed_at END,
			completed_at = CASE WHEN $3 = 'COMPLETED' THEN $4 ELSE completed_at END
		WHERE id = $1 AND status = $2`

	setPaymentStatusSQL = `UPDATE orders SET payment_status = $3
		WHERE id = $1 AND payment_status = $2`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository.
type OrderRepository struct {
	db DBTX
}

// NewOrderRepository returns an OrderRepository over a pool or transaction.
func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create writes the order, its items and their modifiers in one batch inside
// a savepoint. A clash on the order number rolls back to the savepoint, so
// the caller can retry with another number in the same transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	sp, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	defer func() { _ = sp.Rollback(ctx) }()

	b := &pgx.Batch{}
	b.Queue(insertOrderSQL,
		o.ID, o.OrderNumber, o.TableID, o.Status, o.PaymentStatus,
		o.Subtotal, o.Tax, o.Discount, o.Total, o.Notes, o.CreatedAt,
	)
	for i, it := range o.Items {
		b.Queue(insertOrderItemSQL,
			it.ID, o.ID, i, it.MenuItemID, it.Name,
			it.UnitPrice, it.Quantity, it.ModifiersTotal, it.Subtotal, it.Status, it.SpecialRequest,
		)
		for j, m := range it.Modifiers {
			b.Queue(insertOrderItemModifierSQL,
				m.ID, it.ID, j, m.OptionID, m.OptionName, m.GroupName, m.PriceAdjustment,
			)
		}
	}

	if err := sp.SendBatch(ctx, b).Close(); err != nil {
		if isUniqueViolation(err, orderNumberConstraint) {
			return order.ErrOrderNumberTaken
		}
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	if err := sp.Commit(ctx); err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Get returns the order with its items and modifiers.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	o, err := r.header(ctx, getOrderSQL, id)
	if err != nil {
		return nil, err
	}
	if err := r.hydrate(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// GetForUpdate returns the order header and locks the row.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.header(ctx, getOrderForUpdateSQL, id)
}

// LatestActiveForTable returns the newest non-terminal order on the table.
func (r *OrderRepository) LatestActiveForTable(ctx context.Context, tableID string) (*order.Order, error) {
	o, err := r.header(ctx, latestActiveOrderSQL, tableID)
	if err != nil {
		return nil, err
	}
	if err := r.hydrate(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// UpdateStatus changes the status if it still equals from.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, updateOrderStatusSQL, id, from, to, at)
	if err != nil {
		return false, fmt.Errorf("updating order %q status: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetPaymentStatus changes the payment status if it still equals from.
func (r *OrderRepository) SetPaymentStatus(ctx context.Context, id string, from, to order.PaymentStatus) (bool, error) {
	tag, err := r.db.Exec(ctx, setPaymentStatusSQL, id, from, to)
	if err != nil {
		return false, fmt.Errorf("updating order %q payment status: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *OrderRepository) header(ctx context.Context, query string, arg string) (*order.Order, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", arg, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", arg, err)
	}
	return &o, nil
}

func (r *OrderRepository) hydrate(ctx context.Context, o *order.Order) error {
	rows, err := r.db.Query(ctx, listOrderItemsSQL, o.ID)
	if err != nil {
		return fmt.Errorf("listing items of order %q: %w", o.ID, err)
	}
	items, err := pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return fmt.Errorf("listing items of order %q: %w", o.ID, err)
	}

	rows, err = r.db.Query(ctx, listOrderItemModifiersSQL, o.ID)
	if err != nil {
		return fmt.Errorf("listing modifiers of order %q: %w", o.ID, err)
	}
	type itemModifier struct {
		itemID string
		mod    order.SelectedModifier
	}
	mods, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (itemModifier, error) {
		var m itemModifier
		err := row.Scan(&m.itemID, &m.mod.ID, &m.mod.OptionID, &m.mod.OptionName, &m.mod.GroupName, &m.mod.PriceAdjustment)
		return m, err
	})
	if err != nil {
		return fmt.Errorf("listing modifiers of order %q: %w", o.ID, err)
	}

	byItem := make(map[string]int, len(items))
	for i := range items {
		byItem[items[i].ID] = i
	}
	for _, m := range mods {
		if i, ok := byItem[m.itemID]; ok {
			items[i].Modifiers = append(items[i].Modifiers, m.mod)
		}
	}
	o.Items = items
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.TableID, &o.Status, &o.PaymentStatus,
		&o.Subtotal, &o.Tax, &o.Discount, &o.Total, &o.Notes,
		&o.CreatedAt, &o.ConfirmedAt, &o.CompletedAt,
	)
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var it order.Item
	err := row.Scan(
		&it.ID, &it.MenuItemID, &it.Name, &it.UnitPrice, &it.Quantity,
		&it.ModifiersTotal, &it.Subtotal, &it.Status, &it.SpecialRequest,
	)
	return it, err
}
