package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoTax(t *testing.T) {
	assert.True(t, decimal.Zero.Equal(NoTax{}.Tax(decimal.RequireFromString("99.99"))))
}

func TestRateTax(t *testing.T) {
	tests := []struct {
		name     string
		percent  string
		subtotal string
		want     string
	}{
		{name: "ten percent", percent: "10", subtotal: "22.00", want: "2.20"},
		{name: "rounds half up", percent: "8", subtotal: "10.5625", want: "0.85"},
		{name: "fractional rate", percent: "7.5", subtotal: "13.00", want: "0.98"},
		{name: "zero subtotal", percent: "10", subtotal: "0", want: "0"},
		{name: "negative subtotal", percent: "10", subtotal: "-5", want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewRateTax(decimal.RequireFromString(tt.percent))
			require.NoError(t, err)

			got := p.Tax(decimal.RequireFromString(tt.subtotal))
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestNewRateTax_Negative(t *testing.T) {
	_, err := NewRateTax(decimal.NewFromInt(-1))
	require.Error(t, err)
}

func TestFromPercent(t *testing.T) {
	p, err := FromPercent(decimal.Zero)
	require.NoError(t, err)
	assert.IsType(t, NoTax{}, p)

	p, err = FromPercent(decimal.NewFromInt(5))
	require.NoError(t, err)
	assert.IsType(t, &RateTax{}, p)
}
