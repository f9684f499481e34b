package modifier

import (
	"fmt"

	"github.com/go-faster/errors"
)

// ErrInvalidSelection is matched by every rule violation reported by Apply.
var ErrInvalidSelection = errors.New("invalid modifier selection")

// InvalidModifierError indicates a requested option is not offered by the item.
type InvalidModifierError struct {
	OptionID string
	ItemID   string
}

func (e *InvalidModifierError) Error() string {
	return fmt.Sprintf("modifier option %s is not available for menu item %s", e.OptionID, e.ItemID)
}

func (e *InvalidModifierError) Is(target error) bool { return target == ErrInvalidSelection }

// MissingRequiredGroupError indicates a required group received no selection.
type MissingRequiredGroupError struct {
	ItemID        string
	Group         string
	MinSelections int
}

func (e *MissingRequiredGroupError) Error() string {
	return fmt.Sprintf("modifier group %q requires at least %d selection(s)", e.Group, e.MinSelections)
}

func (e *MissingRequiredGroupError) Is(target error) bool { return target == ErrInvalidSelection }

// TooFewSelectionsError indicates a group received fewer selections than its minimum.
type TooFewSelectionsError struct {
	ItemID        string
	Group         string
	MinSelections int
	Selected      int
}

func (e *TooFewSelectionsError) Error() string {
	return fmt.Sprintf("modifier group %q requires at least %d selection(s), got %d", e.Group, e.MinSelections, e.Selected)
}

func (e *TooFewSelectionsError) Is(target error) bool { return target == ErrInvalidSelection }

// TooManySelectionsError indicates a group received more selections than its maximum.
type TooManySelectionsError struct {
	ItemID        string
	Group         string
	MaxSelections int
	Selected      int
}

func (e *TooManySelectionsError) Error() string {
	return fmt.Sprintf("modifier group %q allows at most %d selection(s), got %d", e.Group, e.MaxSelections, e.Selected)
}

func (e *TooManySelectionsError) Is(target error) bool { return target == ErrInvalidSelection }

// SingleSelectionViolatedError indicates a SINGLE group received more than one option.
type SingleSelectionViolatedError struct {
	ItemID   string
	Group    string
	Selected int
}

func (e *SingleSelectionViolatedError) Error() string {
	return fmt.Sprintf("modifier group %q allows only one selection, got %d", e.Group, e.Selected)
}

func (e *SingleSelectionViolatedError) Is(target error) bool { return target == ErrInvalidSelection }

// DuplicateModifierError indicates the same option was requested twice in one group.
type DuplicateModifierError struct {
	ItemID   string
	Group    string
	OptionID string
}

func (e *DuplicateModifierError) Error() string {
	return fmt.Sprintf("modifier option %s selected more than once in group %q", e.OptionID, e.Group)
}

func (e *DuplicateModifierError) Is(target error) bool { return target == ErrInvalidSelection }
