package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

func mustItem(t *testing.T, quantity int, unitPrice int64) OrderItem {
	t.Helper()
	item, err := NewOrderItem(ItemParams{
		ProductID:   "prod-1",
		SKU:         "SKU-1",
		ProductName: "Cable 3x2.5",
		Quantity:    quantity,
		UnitPrice:   unitPrice,
	})
	require.NoError(t, err)
	return item
}

// ============================================================================
// NewOrderItem Tests
// ============================================================================

func TestNewOrderItem_Valid(t *testing.T) {
	item, err := NewOrderItem(ItemParams{
		ProductID:   " prod-1 ",
		SKU:         "SKU-1",
		ProductName: "Cable",
		Quantity:    3,
		UnitPrice:   1000,
		CostPrice:   int64Ptr(700),
		CostSource:  "erp",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, item.ID())
	assert.Equal(t, "prod-1", item.ProductID())
	assert.Equal(t, 3, item.QuantityOrdered())
	assert.Equal(t, 0, item.QuantityDelivered())
	assert.Equal(t, 3, item.QuantityRemaining())
	cost, ok := item.CostPrice()
	assert.True(t, ok)
	assert.Equal(t, int64(700), cost)
}

func TestNewOrderItem_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		params ItemParams
		field  string
	}{
		{"missing product", ItemParams{Quantity: 1, UnitPrice: 1}, "product_id"},
		{"zero quantity", ItemParams{ProductID: "p", Quantity: 0, UnitPrice: 1}, "quantity"},
		{"negative quantity", ItemParams{ProductID: "p", Quantity: -2, UnitPrice: 1}, "quantity"},
		{"negative price", ItemParams{ProductID: "p", Quantity: 1, UnitPrice: -1}, "unit_price"},
		{"negative cost", ItemParams{ProductID: "p", Quantity: 1, UnitPrice: 1, CostPrice: int64Ptr(-5)}, "cost_price"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOrderItem(tt.params)
			var inputErr *InvalidOrderInputError
			require.ErrorAs(t, err, &inputErr)
			require.Len(t, inputErr.Violations, 1)
			assert.Equal(t, tt.field, inputErr.Violations[0].Field)
		})
	}
}

func TestNewOrderItem_CopiesCost(t *testing.T) {
	cost := int64(500)
	item, err := NewOrderItem(ItemParams{ProductID: "p", Quantity: 1, UnitPrice: 800, CostPrice: &cost})
	require.NoError(t, err)

	cost = 1
	got, _ := item.CostPrice()
	assert.Equal(t, int64(500), got)
}

// ============================================================================
// Derived values
// ============================================================================

func TestOrderItem_LineTotal(t *testing.T) {
	assert.Equal(t, int64(3000), mustItem(t, 3, 1000).LineTotal())
	assert.Equal(t, int64(0), mustItem(t, 5, 0).LineTotal())
}

func TestOrderItem_GrossProfitAndMargin(t *testing.T) {
	item, err := NewOrderItem(ItemParams{ProductID: "p", Quantity: 3, UnitPrice: 1000, CostPrice: int64Ptr(700)})
	require.NoError(t, err)

	profit, ok := item.GrossProfit()
	require.True(t, ok)
	assert.Equal(t, int64(900), profit)

	margin, ok := item.GrossMarginPercent()
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(30).Equal(margin), "got %s", margin)
}

func TestOrderItem_MarginRoundsToTwoDecimals(t *testing.T) {
	item, err := NewOrderItem(ItemParams{ProductID: "p", Quantity: 1, UnitPrice: 300, CostPrice: int64Ptr(200)})
	require.NoError(t, err)

	margin, ok := item.GrossMarginPercent()
	require.True(t, ok)
	assert.Equal(t, "33.33", margin.StringFixed(2))
}

func TestOrderItem_MarginUndefined(t *testing.T) {
	unknownCost := mustItem(t, 2, 1000)
	_, ok := unknownCost.GrossProfit()
	assert.False(t, ok)
	_, ok = unknownCost.GrossMarginPercent()
	assert.False(t, ok)

	free, err := NewOrderItem(ItemParams{ProductID: "p", Quantity: 1, UnitPrice: 0, CostPrice: int64Ptr(0)})
	require.NoError(t, err)
	_, ok = free.GrossMarginPercent()
	assert.False(t, ok)
}

// ============================================================================
// RecordDelivery Tests
// ============================================================================

func TestOrderItem_RecordDelivery(t *testing.T) {
	item := mustItem(t, 3, 1000)

	require.NoError(t, item.RecordDelivery(2))
	assert.Equal(t, 2, item.QuantityDelivered())
	assert.Equal(t, 1, item.QuantityRemaining())

	require.NoError(t, item.RecordDelivery(1))
	assert.Equal(t, 0, item.QuantityRemaining())
}

func TestOrderItem_RecordDelivery_OverDelivery(t *testing.T) {
	item := mustItem(t, 3, 1000)

	err := item.RecordDelivery(5)

	var qtyErr *InvalidDeliveryQuantityError
	require.ErrorAs(t, err, &qtyErr)
	assert.Equal(t, 5, qtyErr.Requested)
	assert.Equal(t, 3, qtyErr.Remaining)
	assert.Equal(t, item.ID(), qtyErr.ItemID)
	assert.Equal(t, 0, item.QuantityDelivered())
}

func TestOrderItem_RecordDelivery_NonPositive(t *testing.T) {
	item := mustItem(t, 3, 1000)

	for _, q := range []int{0, -1} {
		err := item.RecordDelivery(q)
		var inputErr *InvalidOrderInputError
		assert.ErrorAs(t, err, &inputErr)
	}
	assert.Equal(t, 0, item.QuantityDelivered())
}

func TestOrderItem_SnapshotRestore(t *testing.T) {
	item, err := NewOrderItem(ItemParams{ProductID: "p", SKU: "S", Quantity: 4, UnitPrice: 250, CostPrice: int64Ptr(100), CostSource: "erp"})
	require.NoError(t, err)
	require.NoError(t, item.RecordDelivery(1))

	restored, err := RestoreOrderItem(item.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, item.Snapshot(), restored.Snapshot())
}

func TestRestoreOrderItem_RejectsOverDelivered(t *testing.T) {
	_, err := RestoreOrderItem(ItemSnapshot{ID: "i", ProductID: "p", QuantityOrdered: 2, QuantityDelivered: 3})
	assert.Error(t, err)
}
