package pricing

import (
	"math"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leduxro-prog/erp-dashboard-sub000/internal/domain"
)

func item(t *testing.T, quantity int, unitPrice int64) domain.OrderItem {
	t.Helper()
	it, err := domain.NewOrderItem(domain.ItemParams{ProductID: "p", Quantity: quantity, UnitPrice: unitPrice})
	require.NoError(t, err)
	return it
}

// Two lines, 3 x 10.00 and 1 x 25.00, with 5.00 shipping at 19%.
func TestCalculate_TwoLinesWithShipping(t *testing.T) {
	calc := NewCalculator(decimal.RequireFromString("0.19"))

	totals := calc.Calculate([]domain.OrderItem{item(t, 3, 1000), item(t, 1, 2500)}, 0, 500)

	assert.Equal(t, int64(5500), totals.Subtotal)
	assert.Equal(t, int64(0), totals.DiscountAmount)
	assert.Equal(t, int64(1045), totals.TaxAmount)
	assert.Equal(t, int64(500), totals.ShippingCost)
	assert.Equal(t, int64(7045), totals.GrandTotal)
}

func TestCalculate_TaxOnDiscountedBase(t *testing.T) {
	calc := NewCalculator(decimal.RequireFromString("0.19"))

	totals := calc.Calculate([]domain.OrderItem{item(t, 1, 10000)}, 1000, 0)

	assert.Equal(t, int64(1710), totals.TaxAmount)
	assert.Equal(t, int64(10710), totals.GrandTotal)
}

func TestCalculate_RoundsHalfUp(t *testing.T) {
	calc := NewCalculator(decimal.RequireFromString("0.19"))

	// 150 * 0.19 = 28.5
	totals := calc.Calculate([]domain.OrderItem{item(t, 1, 150)}, 0, 0)
	assert.Equal(t, int64(29), totals.TaxAmount)

	// 50 * 0.19 = 9.5
	totals = calc.Calculate([]domain.OrderItem{item(t, 1, 50)}, 0, 0)
	assert.Equal(t, int64(10), totals.TaxAmount)
}

func TestCalculate_EdgeCases(t *testing.T) {
	calc := NewCalculator(decimal.RequireFromString("0.19"))

	t.Run("no items", func(t *testing.T) {
		totals := calc.Calculate(nil, 0, 0)
		assert.Equal(t, domain.Totals{}, totals)
	})
	t.Run("zero subtotal with shipping", func(t *testing.T) {
		totals := calc.Calculate([]domain.OrderItem{item(t, 2, 0)}, 0, 700)
		assert.Equal(t, int64(0), totals.TaxAmount)
		assert.Equal(t, int64(700), totals.GrandTotal)
	})
	t.Run("discount capped at subtotal", func(t *testing.T) {
		totals := calc.Calculate([]domain.OrderItem{item(t, 1, 1000)}, 5000, 0)
		assert.Equal(t, int64(1000), totals.DiscountAmount)
		assert.Equal(t, int64(0), totals.GrandTotal)
	})
	t.Run("negative inputs count as zero", func(t *testing.T) {
		totals := calc.Calculate([]domain.OrderItem{item(t, 1, 1000)}, -10, -20)
		assert.Equal(t, int64(0), totals.DiscountAmount)
		assert.Equal(t, int64(0), totals.ShippingCost)
	})
	t.Run("zero tax rate", func(t *testing.T) {
		totals := NewCalculator(decimal.Zero).Calculate([]domain.OrderItem{item(t, 4, 333)}, 0, 0)
		assert.Equal(t, int64(0), totals.TaxAmount)
		assert.Equal(t, int64(1332), totals.GrandTotal)
	})
}

func TestCombineDiscounts(t *testing.T) {
	assert.Equal(t, int64(0), CombineDiscounts())
	assert.Equal(t, int64(1550), CombineDiscounts(1000, 550))
	assert.Equal(t, int64(550), CombineDiscounts(-1000, 550))
	assert.Equal(t, int64(math.MaxInt64), CombineDiscounts(math.MaxInt64, 550))
	assert.Equal(t, int64(math.MaxInt64), CombineDiscounts(math.MaxInt64-1, math.MaxInt64-1))
}

func TestCalculate_SaturatedDiscountCappedAtSubtotal(t *testing.T) {
	calc := NewCalculator(decimal.RequireFromString("0.19"))

	totals := calc.Calculate([]domain.OrderItem{item(t, 1, 1000)}, CombineDiscounts(math.MaxInt64, 100), 0)
	assert.Equal(t, int64(1000), totals.DiscountAmount)
	assert.Equal(t, int64(0), totals.GrandTotal)
}

// Totals stay consistent for arbitrary non-negative inputs.
func TestCalculate_TotalsInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	rates := []string{"0", "0.05", "0.09", "0.19", "0.2", "0.333"}

	for i := 0; i < 500; i++ {
		calc := NewCalculator(decimal.RequireFromString(rates[rng.Intn(len(rates))]))
		n := 1 + rng.Intn(5)
		items := make([]domain.OrderItem, n)
		var subtotal int64
		for j := range items {
			items[j] = item(t, 1+rng.Intn(50), rng.Int63n(1_000_000))
			subtotal += items[j].LineTotal()
		}
		discount := rng.Int63n(subtotal + 1)
		shipping := rng.Int63n(10_000)

		totals := calc.Calculate(items, discount, shipping)

		require.True(t, totals.Consistent(), "iteration %d: %+v", i, totals)
		assert.Equal(t, subtotal, totals.Subtotal)
		expectedTax := decimal.NewFromInt(subtotal - discount).Mul(calc.TaxRate).Round(0).IntPart()
		assert.Equal(t, expectedTax, totals.TaxAmount)
	}
}
