package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestLineTotal(t *testing.T) {
	tests := []struct {
		name  string
		price string
		qty   int
		want  string
	}{
		{name: "single", price: "29.50", qty: 1, want: "29.50"},
		{name: "double", price: "19.99", qty: 2, want: "39.98"},
		{name: "free item", price: "0", qty: 7, want: "0"},
		{name: "no float drift", price: "0.10", qty: 3, want: "0.30"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LineTotal(d(tt.price), tt.qty)
			assert.True(t, d(tt.want).Equal(got), "got %s, want %s", got, tt.want)
		})
	}
}

func TestSum_Empty(t *testing.T) {
	assert.True(t, decimal.Zero.Equal(Sum(nil)))
}

func TestCompute_ExampleOrder(t *testing.T) {
	lines := []decimal.Decimal{
		LineTotal(d("19.99"), 2),
		LineTotal(d("29.50"), 1),
	}

	got := Compute(lines, d("0.15"), DefaultScale)

	assert.Equal(t, "69.48", got.Subtotal.StringFixed(2))
	assert.Equal(t, "10.42", got.VAT.StringFixed(2))
	assert.Equal(t, "79.90", got.Total.StringFixed(2))
	assert.True(t, got.Consistent(lines, d("0.15"), DefaultScale))
}

func TestVAT_RoundsHalfUp(t *testing.T) {
	// 0.30 * 0.15 = 0.045
	assert.Equal(t, "0.05", VAT(d("0.30"), d("0.15"), 2).StringFixed(2))
	// 0.10 * 0.15 = 0.015
	assert.Equal(t, "0.02", VAT(d("0.10"), d("0.15"), 2).StringFixed(2))
	// 0.20 * 0.15 = 0.03
	assert.Equal(t, "0.03", VAT(d("0.20"), d("0.15"), 2).StringFixed(2))
}

func TestCompute_ZeroRate(t *testing.T) {
	lines := []decimal.Decimal{d("10.00"), d("5.25")}

	got := Compute(lines, decimal.Zero, DefaultScale)

	assert.True(t, d("15.25").Equal(got.Subtotal))
	assert.True(t, decimal.Zero.Equal(got.VAT))
	assert.True(t, d("15.25").Equal(got.Total))
}

func TestTotals_Consistent_DetectsTampering(t *testing.T) {
	lines := []decimal.Decimal{d("10.00")}
	got := Compute(lines, d("0.15"), DefaultScale)
	got.Total = got.Total.Add(d("0.01"))

	assert.False(t, got.Consistent(lines, d("0.15"), DefaultScale))
}

func TestFitsScale(t *testing.T) {
	assert.True(t, FitsScale(d("19.99"), 2))
	assert.True(t, FitsScale(d("19.990"), 2))
	assert.True(t, FitsScale(d("10"), 0))
	assert.False(t, FitsScale(d("19.999"), 2))
	assert.False(t, FitsScale(d("2.5"), 0))
}
