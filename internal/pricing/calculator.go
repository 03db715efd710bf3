// Package pricing computes order totals and tier discounts. All amounts are
// minor currency units; rates are decimals.
package pricing

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/leduxro-prog/erp-dashboard-sub000/internal/domain"
)

// Calculator derives order totals from line items. It holds no state besides
// the tax rate and is safe for concurrent use.
type Calculator struct {
	TaxRate decimal.Decimal
}

// NewCalculator creates a calculator for the given tax rate (0.19 = 19%).
func NewCalculator(taxRate decimal.Decimal) Calculator {
	return Calculator{TaxRate: taxRate}
}

// Calculate returns subtotal, discount, tax, shipping and grand total.
//
// The discount is capped at the subtotal and negative inputs count as zero.
// Tax is charged on (subtotal - discount) and rounded half-up to the minor
// unit once.
func (c Calculator) Calculate(items []domain.OrderItem, discount, shipping int64) domain.Totals {
	var subtotal int64
	for _, item := range items {
		subtotal += item.LineTotal()
	}

	discount = max(discount, 0)
	if discount > subtotal {
		discount = subtotal
	}
	shipping = max(shipping, 0)

	tax := RoundMinor(decimal.NewFromInt(subtotal - discount).Mul(c.TaxRate))

	return domain.Totals{
		Subtotal:       subtotal,
		DiscountAmount: discount,
		TaxAmount:      tax,
		ShippingCost:   shipping,
		GrandTotal:     subtotal - discount + tax + shipping,
	}
}

// CombineDiscounts adds non-negative discounts, saturating at math.MaxInt64.
// Calculate caps the result at the subtotal.
func CombineDiscounts(discounts ...int64) int64 {
	var total int64
	for _, d := range discounts {
		d = max(d, 0)
		if d > math.MaxInt64-total {
			return math.MaxInt64
		}
		total += d
	}
	return total
}

// RoundMinor rounds a minor-unit amount half-up to a whole unit. Inputs are
// non-negative, where half-away-from-zero and half-up agree.
func RoundMinor(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}
