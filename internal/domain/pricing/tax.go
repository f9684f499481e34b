// Package pricing holds the pluggable tax policies applied to order subtotals.
package pricing

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// TaxPolicy computes the tax owed on an order subtotal.
type TaxPolicy interface {
	Tax(subtotal decimal.Decimal) decimal.Decimal
}

// NoTax charges nothing. It is the default policy.
type NoTax struct{}

// Tax implements TaxPolicy.
func (NoTax) Tax(decimal.Decimal) decimal.Decimal { return decimal.Zero }

// RateTax charges a flat percentage of the subtotal, rounded half-up to
// cents.
type RateTax struct {
	Percent decimal.Decimal
}

// NewRateTax returns a RateTax for the given percentage. Negative rates are
// rejected.
func NewRateTax(percent decimal.Decimal) (*RateTax, error) {
	if percent.IsNegative() {
		return nil, errors.Errorf("tax rate must not be negative: %s", percent)
	}
	return &RateTax{Percent: percent}, nil
}

// Tax implements TaxPolicy.
func (t *RateTax) Tax(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.IsNegative() {
		return decimal.Zero
	}
	return subtotal.Mul(t.Percent).Div(hundred).Round(2)
}

// FromPercent picks NoTax for a zero rate and RateTax otherwise.
func FromPercent(percent decimal.Decimal) (TaxPolicy, error) {
	if percent.IsZero() {
		return NoTax{}, nil
	}
	return NewRateTax(percent)
}
