package domain

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemParams are the inputs for a new order line. Price, cost and name come
// from the product catalog at order time and are never refreshed.
type ItemParams struct {
	ProductID   string
	SKU         string
	ProductName string
	Quantity    int
	UnitPrice   int64
	CostPrice   *int64
	CostSource  string
}

// OrderItem is one line of an order. Amounts are in minor currency units.
type OrderItem struct {
	id                string
	productID         string
	sku               string
	productName       string
	quantityOrdered   int
	quantityDelivered int
	unitPrice         int64
	costPrice         *int64
	costSource        string
}

// NewOrderItem validates p and assigns a fresh item id.
func NewOrderItem(p ItemParams) (OrderItem, error) {
	var v Violations
	if strings.TrimSpace(p.ProductID) == "" {
		v.Add("product_id", "is required")
	}
	if p.Quantity <= 0 {
		v.Add("quantity", "must be greater than 0")
	}
	if p.UnitPrice < 0 {
		v.Add("unit_price", "must not be negative")
	}
	if p.CostPrice != nil && *p.CostPrice < 0 {
		v.Add("cost_price", "must not be negative")
	}
	if err := v.Err(); err != nil {
		return OrderItem{}, err
	}

	item := OrderItem{
		id:              uuid.New().String(),
		productID:       strings.TrimSpace(p.ProductID),
		sku:             p.SKU,
		productName:     p.ProductName,
		quantityOrdered: p.Quantity,
		unitPrice:       p.UnitPrice,
		costSource:      p.CostSource,
	}
	if p.CostPrice != nil {
		c := *p.CostPrice
		item.costPrice = &c
	}
	return item, nil
}

func (i OrderItem) ID() string             { return i.id }
func (i OrderItem) ProductID() string      { return i.productID }
func (i OrderItem) SKU() string            { return i.sku }
func (i OrderItem) ProductName() string    { return i.productName }
func (i OrderItem) QuantityOrdered() int   { return i.quantityOrdered }
func (i OrderItem) QuantityDelivered() int { return i.quantityDelivered }
func (i OrderItem) UnitPrice() int64       { return i.unitPrice }
func (i OrderItem) CostSource() string     { return i.costSource }

// QuantityRemaining is the quantity still to be delivered.
func (i OrderItem) QuantityRemaining() int {
	return i.quantityOrdered - i.quantityDelivered
}

// CostPrice returns the cost snapshot and whether it is known.
func (i OrderItem) CostPrice() (int64, bool) {
	if i.costPrice == nil {
		return 0, false
	}
	return *i.costPrice, true
}

// LineTotal is unit price times ordered quantity.
func (i OrderItem) LineTotal() int64 {
	return i.unitPrice * int64(i.quantityOrdered)
}

// GrossProfit is (unit price - cost) times ordered quantity. It is undefined
// when the cost is unknown.
func (i OrderItem) GrossProfit() (int64, bool) {
	cost, ok := i.CostPrice()
	if !ok {
		return 0, false
	}
	return (i.unitPrice - cost) * int64(i.quantityOrdered), true
}

// GrossMarginPercent is gross profit over line total, in percent with two
// decimals. It is undefined when the cost is unknown or the line total is 0.
func (i OrderItem) GrossMarginPercent() (decimal.Decimal, bool) {
	profit, ok := i.GrossProfit()
	total := i.LineTotal()
	if !ok || total == 0 {
		return decimal.Decimal{}, false
	}
	return decimal.NewFromInt(profit).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(total)).
		Round(2), true
}

// RecordDelivery adds quantity to the delivered count. On error the item is
// unchanged.
func (i *OrderItem) RecordDelivery(quantity int) error {
	if quantity <= 0 {
		return NewInvalidOrderInput("quantity", "must be greater than 0")
	}
	if remaining := i.QuantityRemaining(); quantity > remaining {
		return &InvalidDeliveryQuantityError{ItemID: i.id, Requested: quantity, Remaining: remaining}
	}
	i.quantityDelivered += quantity
	return nil
}

// ItemSnapshot is the exported form of an OrderItem used by persistence and
// response mapping.
type ItemSnapshot struct {
	ID                string
	ProductID         string
	SKU               string
	ProductName       string
	QuantityOrdered   int
	QuantityDelivered int
	UnitPrice         int64
	CostPrice         *int64
	CostSource        string
}

// Snapshot returns a copy of the item's state.
func (i OrderItem) Snapshot() ItemSnapshot {
	s := ItemSnapshot{
		ID:                i.id,
		ProductID:         i.productID,
		SKU:               i.sku,
		ProductName:       i.productName,
		QuantityOrdered:   i.quantityOrdered,
		QuantityDelivered: i.quantityDelivered,
		UnitPrice:         i.unitPrice,
		CostSource:        i.costSource,
	}
	if i.costPrice != nil {
		c := *i.costPrice
		s.CostPrice = &c
	}
	return s
}

// RestoreOrderItem rebuilds a stored item, rejecting states that violate the
// item invariants.
func RestoreOrderItem(s ItemSnapshot) (OrderItem, error) {
	if s.ID == "" || s.QuantityOrdered <= 0 || s.UnitPrice < 0 ||
		s.QuantityDelivered < 0 || s.QuantityDelivered > s.QuantityOrdered {
		return OrderItem{}, NewInvalidOrderInput("item", "stored item "+s.ID+" violates item invariants")
	}
	item := OrderItem{
		id:                s.ID,
		productID:         s.ProductID,
		sku:               s.SKU,
		productName:       s.ProductName,
		quantityOrdered:   s.QuantityOrdered,
		quantityDelivered: s.QuantityDelivered,
		unitPrice:         s.UnitPrice,
		costSource:        s.CostSource,
	}
	if s.CostPrice != nil {
		c := *s.CostPrice
		item.costPrice = &c
	}
	return item, nil
}
