// Package money implements the fixed-point arithmetic used to price orders.
//
// All amounts are shopspring decimals. Line totals and subtotals are exact;
// the only rounding happens once, when VAT is derived from the subtotal.
package money

import (
	"github.com/shopspring/decimal"
)

// DefaultScale is the number of fractional digits prices are stored with.
const DefaultScale int32 = 2

// FitsScale reports whether d has no significant digits beyond scale
// fractional digits, so rendering it at scale loses nothing.
func FitsScale(d decimal.Decimal, scale int32) bool {
	return d.Equal(d.Truncate(scale))
}

// Totals holds the derived monetary fields of an order.
type Totals struct {
	Subtotal decimal.Decimal
	VAT      decimal.Decimal
	Total    decimal.Decimal
}

// LineTotal returns price × quantity without rounding.
func LineTotal(price decimal.Decimal, quantity int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(quantity)))
}

// Sum adds amounts exactly. The sum of no amounts is zero.
func Sum(amounts []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, a := range amounts {
		sum = sum.Add(a)
	}
	return sum
}

// VAT returns subtotal × rate rounded half-up to scale fractional digits.
// Amounts are never negative here, so decimal's half-away-from-zero Round is
// half-up.
func VAT(subtotal, rate decimal.Decimal, scale int32) decimal.Decimal {
	return subtotal.Mul(rate).Round(scale)
}

// Compute derives subtotal, VAT and total from line totals.
func Compute(lineTotals []decimal.Decimal, rate decimal.Decimal, scale int32) Totals {
	subtotal := Sum(lineTotals)
	vat := VAT(subtotal, rate, scale)
	return Totals{
		Subtotal: subtotal,
		VAT:      vat,
		Total:    subtotal.Add(vat),
	}
}

// Consistent reports whether t matches what Compute would produce for the
// given line totals.
func (t Totals) Consistent(lineTotals []decimal.Decimal, rate decimal.Decimal, scale int32) bool {
	want := Compute(lineTotals, rate, scale)
	return t.Subtotal.Equal(want.Subtotal) &&
		t.VAT.Equal(want.VAT) &&
		t.Total.Equal(want.Total)
}
