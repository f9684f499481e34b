package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/dinein/internal/domain/menu"
)

const (
	getMenuItemSQL = `SELECT id, name, price, status FROM menu_items WHERE id = $1`

	// Inactive options are returned so selections of them can be rejected
	// explicitly. Inactive groups are not offered at all.
	listModifiersSQL = `SELECT g.id, g.name, g.selection_type, g.required, g.min_selections, g.max_selections,
			o.id, o.name, o.price_adjustment, o.active
		FROM modifier_groups g
		LEFT JOIN modifier_options o ON o.group_id = g.id
		WHERE g.menu_item_id = $1 AND g.active
		ORDER BY g.display_order, g.id, o.display_order, o.id`
)

var _ menu.Repository = (*MenuRepository)(nil)

// MenuRepository implements menu.Repository.
type MenuRepository struct {
	db DBTX
}

// NewMenuRepository returns a MenuRepository over a pool or transaction.
func NewMenuRepository(db DBTX) *MenuRepository {
	return &MenuRepository{db: db}
}

// GetItem returns the menu item with its active modifier groups in display
// order.
func (r *MenuRepository) GetItem(ctx context.Context, id string) (*menu.Item, error) {
	rows, err := r.db.Query(ctx, getMenuItemSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting menu item %q: %w", id, err)
	}
	item, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (menu.Item, error) {
		var it menu.Item
		err := row.Scan(&it.ID, &it.Name, &it.Price, &it.Status)
		return it, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, menu.ErrNotFound
		}
		return nil, fmt.Errorf("getting menu item %q: %w", id, err)
	}

	rows, err = r.db.Query(ctx, listModifiersSQL, id)
	if err != nil {
		return nil, fmt.Errorf("listing modifiers of %q: %w", id, err)
	}
	modRows, err := pgx.CollectRows(rows, scanModifierRow)
	if err != nil {
		return nil, fmt.Errorf("listing modifiers of %q: %w", id, err)
	}
	item.Groups = groupModifiers(modRows)

	return &item, nil
}

type modifierRow struct {
	group  menu.ModifierGroup
	option *menu.ModifierOption
}

func scanModifierRow(row pgx.CollectableRow) (modifierRow, error) {
	var (
		m        modifierRow
		optID    *string
		optName  *string
		optPrice decimal.NullDecimal
		optOn    *bool
	)
	err := row.Scan(
		&m.group.ID, &m.group.Name, &m.group.SelectionType, &m.group.Required,
		&m.group.MinSelections, &m.group.MaxSelections,
		&optID, &optName, &optPrice, &optOn,
	)
	if err != nil || optID == nil {
		return m, err
	}
	m.option = &menu.ModifierOption{
		ID:              *optID,
		Name:            *optName,
		PriceAdjustment: optPrice.Decimal,
		Active:          optOn != nil && *optOn,
	}
	return m, nil
}

// groupModifiers folds joined rows, already ordered by group, into groups.
func groupModifiers(rows []modifierRow) []menu.ModifierGroup {
	var groups []menu.ModifierGroup
	for _, row := range rows {
		if n := len(groups); n == 0 || groups[n-1].ID != row.group.ID {
			groups = append(groups, row.group)
		}
		if row.option != nil {
			g := &groups[len(groups)-1]
			g.Options = append(g.Options, *row.option)
		}
	}
	return groups
}

const (
	upsertMenuItemSQL = `INSERT INTO menu_items (id, name, price, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price, status = EXCLUDED.status`

	upsertModifierGroupSQL = `INSERT INTO modifier_groups (id, menu_item_id, name, selection_type, required,
			min_selections, max_selections, display_order, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
		ON CONFLICT (id) DO UPDATE SET menu_item_id = EXCLUDED.menu_item_id, name = EXCLUDED.name,
			selection_type = EXCLUDED.selection_type, required = EXCLUDED.required,
			min_selections = EXCLUDED.min_selections, max_selections = EXCLUDED.max_selections,
			display_order = EXCLUDED.display_order, active = TRUE`

	upsertModifierOptionSQL = `INSERT INTO modifier_options (id, group_id, name, price_adjustment, display_order, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET group_id = EXCLUDED.group_id, name = EXCLUDED.name,
			price_adjustment = EXCLUDED.price_adjustment, display_order = EXCLUDED.display_order,
			active = EXCLUDED.active`
)

// Upsert writes the item with its groups and options in one batch. Slice
// order becomes display order.
func (r *MenuRepository) Upsert(ctx context.Context, it *menu.Item) error {
	b := &pgx.Batch{}
	b.Queue(upsertMenuItemSQL, it.ID, it.Name, it.Price, it.Status)
	for gi, g := range it.Groups {
		b.Queue(upsertModifierGroupSQL,
			g.ID, it.ID, g.Name, g.SelectionType, g.Required, g.MinSelections, g.MaxSelections, gi,
		)
		for oi, o := range g.Options {
			b.Queue(upsertModifierOptionSQL, o.ID, g.ID, o.Name, o.PriceAdjustment, oi, o.Active)
		}
	}
	if err := r.db.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("upserting menu item %q: %w", it.ID, err)
	}
	return nil
}
