package domain

import "time"

// EventType names an order domain event.
type EventType string

// Order event types.
const (
	EventOrderCreated           EventType = "order.created"
	EventProformaGenerated      EventType = "order.proforma_generated"
	EventInvoiceGenerated       EventType = "order.invoice_generated"
	EventStatusChanged          EventType = "order.status_changed"
	EventOrderCancelled         EventType = "order.cancelled"
	EventDeliveryRecorded       EventType = "order.delivery_recorded"
	EventStockReservationFailed EventType = "order.stock_reservation_failed"
)

// Event is an order domain event. Payload is one of the *Data types below.
type Event struct {
	Type        EventType
	OrderID     int64
	OrderNumber string
	OccurredAt  time.Time
	Payload     any
}

// OrderCreatedData is the payload of order.created.
type OrderCreatedData struct {
	OrderNumber string          `json:"order_number"`
	CustomerID  string          `json:"customer_id"`
	Status      Status          `json:"status"`
	Items       []EventItemData `json:"items"`
	Totals      Totals          `json:"totals"`
	Currency    string          `json:"currency"`
	CreatedBy   string          `json:"created_by"`
}

// EventItemData is an order line inside an event payload.
type EventItemData struct {
	ItemID    string `json:"item_id"`
	ProductID string `json:"product_id"`
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// DocumentGeneratedData is the payload of order.proforma_generated and
// order.invoice_generated.
type DocumentGeneratedData struct {
	DocumentNumber string `json:"document_number"`
	GrandTotal     int64  `json:"grand_total"`
	Currency       string `json:"currency"`
	GeneratedBy    string `json:"generated_by"`
}

// StatusChangedData is the payload of order.status_changed.
type StatusChangedData struct {
	OldStatus Status `json:"old_status"`
	NewStatus Status `json:"new_status"`
	ChangedBy string `json:"changed_by"`
	Notes     string `json:"notes,omitempty"`
}

// OrderCancelledData is the payload of order.cancelled.
type OrderCancelledData struct {
	PreviousStatus Status `json:"previous_status"`
	Reason         string `json:"reason"`
	CancelledBy    string `json:"cancelled_by"`
}

// DeliveryRecordedData is the payload of order.delivery_recorded.
type DeliveryRecordedData struct {
	Lines       []DeliveredLineData `json:"lines"`
	Status      Status              `json:"status"`
	DeliveredBy string              `json:"delivered_by"`
}

// DeliveredLineData is one delivered line with the item's running totals.
type DeliveredLineData struct {
	ItemID            string `json:"item_id"`
	Quantity          int    `json:"quantity"`
	QuantityDelivered int    `json:"quantity_delivered"`
	QuantityRemaining int    `json:"quantity_remaining"`
}

// StockReservationFailedData is the payload of order.stock_reservation_failed.
type StockReservationFailedData struct {
	Reason string          `json:"reason"`
	Items  []EventItemData `json:"items"`
}

func newEvent(t EventType, o *Order, at time.Time, payload any) Event {
	return Event{
		Type:        t,
		OrderID:     o.id,
		OrderNumber: o.orderNumber,
		OccurredAt:  at.UTC(),
		Payload:     payload,
	}
}

func eventItems(items []OrderItem) []EventItemData {
	out := make([]EventItemData, len(items))
	for i, item := range items {
		out[i] = EventItemData{
			ItemID:    item.id,
			ProductID: item.productID,
			SKU:       item.sku,
			Quantity:  item.quantityOrdered,
			UnitPrice: item.unitPrice,
		}
	}
	return out
}

// NewOrderCreatedEvent builds order.created for a persisted order.
func NewOrderCreatedEvent(o *Order) Event {
	return newEvent(EventOrderCreated, o, o.createdAt, OrderCreatedData{
		OrderNumber: o.orderNumber,
		CustomerID:  o.customer.ID,
		Status:      o.status,
		Items:       eventItems(o.items),
		Totals:      o.totals,
		Currency:    o.currency,
		CreatedBy:   o.createdBy,
	})
}

// NewProformaGeneratedEvent builds order.proforma_generated.
func NewProformaGeneratedEvent(o *Order, actor string, at time.Time) Event {
	return newEvent(EventProformaGenerated, o, at, DocumentGeneratedData{
		DocumentNumber: o.proformaNumber,
		GrandTotal:     o.totals.GrandTotal,
		Currency:       o.currency,
		GeneratedBy:    actor,
	})
}

// NewInvoiceGeneratedEvent builds order.invoice_generated.
func NewInvoiceGeneratedEvent(o *Order, actor string, at time.Time) Event {
	return newEvent(EventInvoiceGenerated, o, at, DocumentGeneratedData{
		DocumentNumber: o.invoiceNumber,
		GrandTotal:     o.totals.GrandTotal,
		Currency:       o.currency,
		GeneratedBy:    actor,
	})
}

// NewStatusChangedEvent builds order.status_changed from the latest history
// entry.
func NewStatusChangedEvent(o *Order) Event {
	last := o.history[len(o.history)-1]
	return newEvent(EventStatusChanged, o, last.ChangedAt, StatusChangedData{
		OldStatus: last.From,
		NewStatus: last.To,
		ChangedBy: last.ChangedBy,
		Notes:     last.Notes,
	})
}

// NewOrderCancelledEvent builds order.cancelled.
func NewOrderCancelledEvent(o *Order, previous Status) Event {
	last := o.history[len(o.history)-1]
	return newEvent(EventOrderCancelled, o, last.ChangedAt, OrderCancelledData{
		PreviousStatus: previous,
		Reason:         last.Notes,
		CancelledBy:    last.ChangedBy,
	})
}

// NewDeliveryRecordedEvent builds order.delivery_recorded.
func NewDeliveryRecordedEvent(o *Order, lines []DeliveryLine, actor string, at time.Time) Event {
	byID := make(map[string]OrderItem, len(o.items))
	for _, item := range o.items {
		byID[item.id] = item
	}
	data := make([]DeliveredLineData, len(lines))
	for i, line := range lines {
		item := byID[line.ItemID]
		data[i] = DeliveredLineData{
			ItemID:            line.ItemID,
			Quantity:          line.Quantity,
			QuantityDelivered: item.quantityDelivered,
			QuantityRemaining: item.QuantityRemaining(),
		}
	}
	return newEvent(EventDeliveryRecorded, o, at, DeliveryRecordedData{
		Lines:       data,
		Status:      o.status,
		DeliveredBy: actor,
	})
}

// NewStockReservationFailedEvent builds order.stock_reservation_failed.
func NewStockReservationFailedEvent(o *Order, reason string, at time.Time) Event {
	return newEvent(EventStockReservationFailed, o, at, StockReservationFailedData{
		Reason: reason,
		Items:  eventItems(o.items),
	})
}
