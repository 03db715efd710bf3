package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/leduxro-prog/erp-dashboard-sub000/internal/domain"
)

// OrderItemResponse is an order line with its derived commercial values.
// GrossProfit and GrossMarginPercent are omitted when the cost is unknown.
type OrderItemResponse struct {
	ID                 string           `json:"id"`
	ProductID          string           `json:"product_id"`
	SKU                string           `json:"sku"`
	ProductName        string           `json:"product_name"`
	QuantityOrdered    int              `json:"quantity_ordered"`
	QuantityDelivered  int              `json:"quantity_delivered"`
	QuantityRemaining  int              `json:"quantity_remaining"`
	UnitPrice          int64            `json:"unit_price"`
	CostPrice          *int64           `json:"cost_price,omitempty"`
	CostSource         string           `json:"cost_source,omitempty"`
	LineTotal          int64            `json:"line_total"`
	GrossProfit        *int64           `json:"gross_profit,omitempty"`
	GrossMarginPercent *decimal.Decimal `json:"gross_margin_percent,omitempty"`
}

// OrderResponse mirrors the public state of an order.
type OrderResponse struct {
	ID              int64                 `json:"id"`
	OrderNumber     string                `json:"order_number"`
	CustomerID      string                `json:"customer_id"`
	CustomerName    string                `json:"customer_name"`
	CustomerEmail   string                `json:"customer_email"`
	Status          domain.Status         `json:"status"`
	Items           []OrderItemResponse   `json:"items"`
	BillingAddress  domain.Address        `json:"billing_address"`
	ShippingAddress domain.Address        `json:"shipping_address"`
	Subtotal        int64                 `json:"subtotal"`
	DiscountAmount  int64                 `json:"discount_amount"`
	TaxAmount       int64                 `json:"tax_amount"`
	ShippingCost    int64                 `json:"shipping_cost"`
	GrandTotal      int64                 `json:"grand_total"`
	Currency        string                `json:"currency"`
	TaxRate         decimal.Decimal       `json:"tax_rate"`
	PaymentTerms    string                `json:"payment_terms"`
	PaymentStatus   domain.PaymentStatus  `json:"payment_status"`
	ProformaNumber  string                `json:"proforma_number,omitempty"`
	InvoiceNumber   string                `json:"invoice_number,omitempty"`
	Notes           string                `json:"notes,omitempty"`
	StatusHistory   []domain.StatusChange `json:"status_history"`
	CreatedBy       string                `json:"created_by"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedBy       string                `json:"updated_by"`
	UpdatedAt       time.Time             `json:"updated_at"`
	Version         int                   `json:"version"`
}

// DocumentResponse is the result of GenerateProforma and GenerateInvoice.
type DocumentResponse struct {
	DocumentType   string    `json:"document_type"`
	DocumentNumber string    `json:"document_number"`
	OrderID        int64     `json:"order_id"`
	OrderNumber    string    `json:"order_number"`
	CustomerName   string    `json:"customer_name"`
	Total          int64     `json:"total"`
	Currency       string    `json:"currency"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewOrderResponse renders o.
func NewOrderResponse(o *domain.Order) *OrderResponse {
	items := o.Items()
	itemResponses := make([]OrderItemResponse, len(items))
	for i, item := range items {
		itemResponses[i] = newOrderItemResponse(item)
	}

	customer := o.Customer()
	totals := o.Totals()
	return &OrderResponse{
		ID:              o.ID(),
		OrderNumber:     o.OrderNumber(),
		CustomerID:      customer.ID,
		CustomerName:    customer.Name,
		CustomerEmail:   customer.Email,
		Status:          o.Status(),
		Items:           itemResponses,
		BillingAddress:  o.BillingAddress(),
		ShippingAddress: o.ShippingAddress(),
		Subtotal:        totals.Subtotal,
		DiscountAmount:  totals.DiscountAmount,
		TaxAmount:       totals.TaxAmount,
		ShippingCost:    totals.ShippingCost,
		GrandTotal:      totals.GrandTotal,
		Currency:        o.Currency(),
		TaxRate:         o.TaxRate(),
		PaymentTerms:    o.PaymentTerms(),
		PaymentStatus:   o.PaymentStatus(),
		ProformaNumber:  o.ProformaNumber(),
		InvoiceNumber:   o.InvoiceNumber(),
		Notes:           o.Notes(),
		StatusHistory:   o.StatusHistory(),
		CreatedBy:       o.CreatedBy(),
		CreatedAt:       o.CreatedAt(),
		UpdatedBy:       o.UpdatedBy(),
		UpdatedAt:       o.UpdatedAt(),
		Version:         o.Version(),
	}
}

func newOrderItemResponse(item domain.OrderItem) OrderItemResponse {
	r := OrderItemResponse{
		ID:                item.ID(),
		ProductID:         item.ProductID(),
		SKU:               item.SKU(),
		ProductName:       item.ProductName(),
		QuantityOrdered:   item.QuantityOrdered(),
		QuantityDelivered: item.QuantityDelivered(),
		QuantityRemaining: item.QuantityRemaining(),
		UnitPrice:         item.UnitPrice(),
		CostSource:        item.CostSource(),
		LineTotal:         item.LineTotal(),
	}
	if cost, ok := item.CostPrice(); ok {
		r.CostPrice = &cost
	}
	if profit, ok := item.GrossProfit(); ok {
		r.GrossProfit = &profit
	}
	if margin, ok := item.GrossMarginPercent(); ok {
		r.GrossMarginPercent = &margin
	}
	return r
}

func newDocumentResponse(o *domain.Order, kind, number string) *DocumentResponse {
	return &DocumentResponse{
		DocumentType:   kind,
		DocumentNumber: number,
		OrderID:        o.ID(),
		OrderNumber:    o.OrderNumber(),
		CustomerName:   o.Customer().Name,
		Total:          o.Totals().GrandTotal,
		Currency:       o.Currency(),
		CreatedAt:      o.UpdatedAt(),
	}
}
