// Package modifier validates and prices modifier selections for a menu item.
package modifier

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/dinein/internal/domain/menu"
)

// Selection is a validated option ready to be persisted as an order snapshot.
type Selection struct {
	OptionID        string
	OptionName      string
	GroupID         string
	GroupName       string
	PriceAdjustment decimal.Decimal
}

// Result is the outcome of a successful Apply.
type Result struct {
	Total    decimal.Decimal
	Selected []Selection
}

type optionRef struct {
	group  *menu.ModifierGroup
	option *menu.ModifierOption
}

// Apply validates requested option ids against the item's modifier groups and
// returns their combined price adjustment.
//
// Requested ids are checked for membership first. Groups are then checked in
// item order, and within a group the rules run as: required, minimum,
// maximum, single selection, duplicates. The first violation is returned.
func Apply(item *menu.Item, requested []string) (Result, error) {
	index := make(map[string]optionRef)
	for gi := range item.Groups {
		g := &item.Groups[gi]
		for oi := range g.Options {
			o := &g.Options[oi]
			if !o.Active {
				continue
			}
			index[o.ID] = optionRef{group: g, option: o}
		}
	}

	byGroup := make(map[string][]*menu.ModifierOption, len(item.Groups))
	for _, id := range requested {
		ref, ok := index[id]
		if !ok {
			return Result{}, &InvalidModifierError{OptionID: id, ItemID: item.ID}
		}
		byGroup[ref.group.ID] = append(byGroup[ref.group.ID], ref.option)
	}

	res := Result{Total: decimal.Zero}
	for gi := range item.Groups {
		g := &item.Groups[gi]
		picked := byGroup[g.ID]
		if err := checkGroup(item.ID, g, picked); err != nil {
			return Result{}, err
		}
		for _, o := range picked {
			res.Total = res.Total.Add(o.PriceAdjustment)
			res.Selected = append(res.Selected, Selection{
				OptionID:        o.ID,
				OptionName:      o.Name,
				GroupID:         g.ID,
				GroupName:       g.Name,
				PriceAdjustment: o.PriceAdjustment,
			})
		}
	}
	return res, nil
}

func checkGroup(itemID string, g *menu.ModifierGroup, picked []*menu.ModifierOption) error {
	n := len(picked)
	if n == 0 && !g.Required {
		return nil
	}

	if g.Required && n == 0 {
		minSel := g.MinSelections
		if minSel <= 0 {
			minSel = 1
		}
		return &MissingRequiredGroupError{ItemID: itemID, Group: g.Name, MinSelections: minSel}
	}
	if g.MinSelections > 0 && n < g.MinSelections {
		return &TooFewSelectionsError{ItemID: itemID, Group: g.Name, MinSelections: g.MinSelections, Selected: n}
	}
	if g.MaxSelections > 0 && n > g.MaxSelections {
		return &TooManySelectionsError{ItemID: itemID, Group: g.Name, MaxSelections: g.MaxSelections, Selected: n}
	}
	if g.SelectionType == menu.SelectionSingle && n > 1 {
		return &SingleSelectionViolatedError{ItemID: itemID, Group: g.Name, Selected: n}
	}

	seen := make(map[string]struct{}, n)
	for _, o := range picked {
		if _, dup := seen[o.ID]; dup {
			return &DuplicateModifierError{ItemID: itemID, Group: g.Name, OptionID: o.ID}
		}
		seen[o.ID] = struct{}{}
	}
	return nil
}
