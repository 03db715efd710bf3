package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/leduxro-prog/erp-dashboard-sub000/internal/domain"
)

// ProductSnapshot is the catalog data copied onto an order line. CostPrice is
// nil when the catalog does not know the cost.
type ProductSnapshot struct {
	ID         string `json:"id"`
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	Price      int64  `json:"price"`
	CostPrice  *int64 `json:"cost_price,omitempty"`
	CostSource string `json:"cost_source,omitempty"`
}

// ProductService reads product snapshots from the catalog.
type ProductService interface {
	GetProducts(ctx context.Context, ids []string) ([]ProductSnapshot, error)
}

// Availability is the answer to a stock check.
type Availability struct {
	ProductID string `json:"product_id"`
	Available bool   `json:"available"`
	Quantity  int    `json:"quantity"`
}

// StockLine is a product quantity to reserve.
type StockLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// StockService checks and reserves stock in the inventory ledger.
type StockService interface {
	CheckAvailability(ctx context.Context, productID string, quantity int) (Availability, error)
	ReserveStock(ctx context.Context, orderID int64, lines []StockLine) error
	ReleaseStock(ctx context.Context, orderID int64) error
}

// DocumentLine is one line of a proforma or invoice.
type DocumentLine struct {
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// DocumentRequest carries the order data an accounting document is built from.
type DocumentRequest struct {
	OrderID        int64           `json:"order_id"`
	OrderNumber    string          `json:"order_number"`
	CustomerID     string          `json:"customer_id"`
	CustomerName   string          `json:"customer_name"`
	BillingAddress domain.Address  `json:"billing_address"`
	Items          []DocumentLine  `json:"items"`
	Subtotal       int64           `json:"subtotal"`
	DiscountAmount int64           `json:"discount_amount"`
	TaxAmount      int64           `json:"tax_amount"`
	ShippingCost   int64           `json:"shipping_cost"`
	Total          int64           `json:"total"`
	Currency       string          `json:"currency"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	PaymentTerms   string          `json:"payment_terms"`
	GeneratedBy    string          `json:"generated_by"`
}

// ProformaService issues proforma documents and returns their number.
type ProformaService interface {
	GenerateProforma(ctx context.Context, req DocumentRequest) (string, error)
}

// InvoiceService issues invoices and returns their number.
type InvoiceService interface {
	GenerateInvoice(ctx context.Context, req DocumentRequest) (string, error)
}

// EventPublisher publishes order domain events. Delivery is at-least-once.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

func documentRequest(o *domain.Order, actor string) DocumentRequest {
	items := o.Items()
	lines := make([]DocumentLine, len(items))
	for i, item := range items {
		lines[i] = DocumentLine{
			SKU:       item.SKU(),
			Name:      item.ProductName(),
			Quantity:  item.QuantityOrdered(),
			UnitPrice: item.UnitPrice(),
		}
	}
	totals := o.Totals()
	return DocumentRequest{
		OrderID:        o.ID(),
		OrderNumber:    o.OrderNumber(),
		CustomerID:     o.Customer().ID,
		CustomerName:   o.Customer().Name,
		BillingAddress: o.BillingAddress(),
		Items:          lines,
		Subtotal:       totals.Subtotal,
		DiscountAmount: totals.DiscountAmount,
		TaxAmount:      totals.TaxAmount,
		ShippingCost:   totals.ShippingCost,
		Total:          totals.GrandTotal,
		Currency:       o.Currency(),
		TaxRate:        o.TaxRate(),
		PaymentTerms:   o.PaymentTerms(),
		GeneratedBy:    actor,
	}
}
