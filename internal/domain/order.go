package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SystemActor records changes made by the service itself rather than a user.
const SystemActor = "system"

// PaymentStatus tracks settlement. Capture happens outside this service, so
// orders are created unpaid.
type PaymentStatus string

const (
	PaymentStatusUnpaid        PaymentStatus = "unpaid"
	PaymentStatusPartiallyPaid PaymentStatus = "partially_paid"
	PaymentStatusPaid          PaymentStatus = "paid"
)

// Customer is the denormalized buyer snapshot stored on the order.
type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Totals are the monetary totals of an order in minor units.
type Totals struct {
	Subtotal       int64 `json:"subtotal"`
	DiscountAmount int64 `json:"discount_amount"`
	TaxAmount      int64 `json:"tax_amount"`
	ShippingCost   int64 `json:"shipping_cost"`
	GrandTotal     int64 `json:"grand_total"`
}

// Consistent reports whether every field is non-negative and the grand total
// equals subtotal - discount + tax + shipping.
func (t Totals) Consistent() bool {
	if t.Subtotal < 0 || t.DiscountAmount < 0 || t.TaxAmount < 0 || t.ShippingCost < 0 || t.GrandTotal < 0 {
		return false
	}
	return t.GrandTotal == t.Subtotal-t.DiscountAmount+t.TaxAmount+t.ShippingCost
}

// StatusChange is one entry of the status audit log. From is empty for the
// entry written when the order is created.
type StatusChange struct {
	ID        string    `json:"id"`
	From      Status    `json:"from_status"`
	To        Status    `json:"to_status"`
	ChangedBy string    `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
	Notes     string    `json:"notes,omitempty"`
}

// DeliveryLine is a quantity delivered against one order item.
type DeliveryLine struct {
	ItemID   string
	Quantity int
}

// NewOrderParams holds everything needed to open a quote.
type NewOrderParams struct {
	OrderNumber     string
	Customer        Customer
	Items           []OrderItem
	BillingAddress  Address
	ShippingAddress Address
	Totals          Totals
	Currency        string
	TaxRate         decimal.Decimal
	PaymentTerms    string
	Notes           string
	CreatedBy       string
	CreatedAt       time.Time
}

// Order is the aggregate root. State changes go through its methods so the
// status, audit log and totals invariants always hold.
type Order struct {
	id              int64
	orderNumber     string
	customer        Customer
	status          Status
	items           []OrderItem
	billingAddress  Address
	shippingAddress Address
	totals          Totals
	currency        string
	taxRate         decimal.Decimal
	paymentTerms    string
	paymentStatus   PaymentStatus
	proformaNumber  string
	invoiceNumber   string
	notes           string
	history         []StatusChange
	createdBy       string
	createdAt       time.Time
	updatedBy       string
	updatedAt       time.Time
	version         int

	// persistedHistory is the number of history entries already stored.
	persistedHistory int
}

// NewOrder validates p and returns an unpersisted order in quote_pending with
// its creation entry already in the history.
func NewOrder(p NewOrderParams) (*Order, error) {
	var v Violations
	if strings.TrimSpace(p.OrderNumber) == "" {
		v.Add("order_number", "is required")
	}
	if strings.TrimSpace(p.Customer.ID) == "" {
		v.Add("customer_id", "is required")
	}
	if strings.TrimSpace(p.Customer.Name) == "" {
		v.Add("customer_name", "is required")
	}
	if strings.TrimSpace(p.Customer.Email) == "" {
		v.Add("customer_email", "is required")
	}
	if len(p.Items) == 0 {
		v.Add("items", "must contain at least 1 entries")
	}
	if p.BillingAddress.IsZero() {
		v.Add("billing_address", "is required")
	}
	if p.ShippingAddress.IsZero() {
		v.Add("shipping_address", "is required")
	}
	if !p.Totals.Consistent() {
		v.Add("totals", "must be non-negative and add up to the grand total")
	}
	if len(p.Currency) != 3 {
		v.Add("currency", "must be an ISO 4217 currency code")
	}
	if p.TaxRate.IsNegative() {
		v.Add("tax_rate", "must not be negative")
	}
	if strings.TrimSpace(p.CreatedBy) == "" {
		v.Add("created_by", "is required")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	at := p.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()

	items := make([]OrderItem, len(p.Items))
	copy(items, p.Items)

	o := &Order{
		orderNumber:     p.OrderNumber,
		customer:        p.Customer,
		status:          StatusQuotePending,
		items:           items,
		billingAddress:  p.BillingAddress,
		shippingAddress: p.ShippingAddress,
		totals:          p.Totals,
		currency:        strings.ToUpper(p.Currency),
		taxRate:         p.TaxRate,
		paymentTerms:    p.PaymentTerms,
		paymentStatus:   PaymentStatusUnpaid,
		notes:           p.Notes,
		createdBy:       p.CreatedBy,
		createdAt:       at,
		updatedBy:       p.CreatedBy,
		updatedAt:       at,
	}
	o.appendHistory("", StatusQuotePending, p.CreatedBy, at, "order created")
	return o, nil
}

func (o *Order) ID() int64                    { return o.id }
func (o *Order) OrderNumber() string          { return o.orderNumber }
func (o *Order) Customer() Customer           { return o.customer }
func (o *Order) Status() Status               { return o.status }
func (o *Order) BillingAddress() Address      { return o.billingAddress }
func (o *Order) ShippingAddress() Address     { return o.shippingAddress }
func (o *Order) Totals() Totals               { return o.totals }
func (o *Order) Currency() string             { return o.currency }
func (o *Order) TaxRate() decimal.Decimal     { return o.taxRate }
func (o *Order) PaymentTerms() string         { return o.paymentTerms }
func (o *Order) PaymentStatus() PaymentStatus { return o.paymentStatus }
func (o *Order) ProformaNumber() string       { return o.proformaNumber }
func (o *Order) InvoiceNumber() string        { return o.invoiceNumber }
func (o *Order) Notes() string                { return o.notes }
func (o *Order) CreatedBy() string            { return o.createdBy }
func (o *Order) CreatedAt() time.Time         { return o.createdAt }
func (o *Order) UpdatedBy() string            { return o.updatedBy }
func (o *Order) UpdatedAt() time.Time         { return o.updatedAt }
func (o *Order) Version() int                 { return o.version }

// Items returns a copy of the order lines.
func (o *Order) Items() []OrderItem {
	out := make([]OrderItem, len(o.items))
	copy(out, o.items)
	return out
}

// StatusHistory returns a copy of the audit log, oldest first.
func (o *Order) StatusHistory() []StatusChange {
	out := make([]StatusChange, len(o.history))
	copy(out, o.history)
	return out
}

// PendingHistory returns the history entries added since the order was last
// persisted.
func (o *Order) PendingHistory() []StatusChange {
	out := make([]StatusChange, len(o.history)-o.persistedHistory)
	copy(out, o.history[o.persistedHistory:])
	return out
}

// MarkPersisted records the id and version assigned by a successful write.
func (o *Order) MarkPersisted(id int64, version int) {
	o.id = id
	o.version = version
	o.persistedHistory = len(o.history)
}

// TransitionTo moves the order to target, updating the status, the audit
// fields and the history together. Nothing changes on error.
func (o *Order) TransitionTo(target Status, actor, notes string, at time.Time) error {
	if !CanTransition(o.status, target) {
		return &InvalidStatusTransitionError{
			OrderID: o.id,
			From:    o.status,
			To:      target,
			Valid:   ValidTransitionsFrom(o.status),
		}
	}
	if strings.TrimSpace(actor) == "" {
		return NewInvalidOrderInput("changed_by", "is required")
	}
	at = at.UTC()
	o.appendHistory(o.status, target, actor, at, notes)
	o.status = target
	o.touch(actor, at)
	return nil
}

// Cancel transitions to cancelled after checking that nothing was delivered
// and no invoice was issued.
func (o *Order) Cancel(actor, reason string, at time.Time) error {
	if !CanTransition(o.status, StatusCancelled) {
		return &InvalidStatusTransitionError{
			OrderID: o.id,
			From:    o.status,
			To:      StatusCancelled,
			Valid:   ValidTransitionsFrom(o.status),
		}
	}
	for _, item := range o.items {
		if item.quantityDelivered > 0 {
			return &OrderCancellationError{OrderID: o.id, Reason: "items have already been delivered"}
		}
	}
	if o.invoiceNumber != "" {
		return &OrderCancellationError{OrderID: o.id, Reason: "invoice " + o.invoiceNumber + " has already been issued"}
	}
	return o.TransitionTo(StatusCancelled, actor, reason, at)
}

// RecordDeliveries applies all lines or none. The order moves to delivered
// when nothing remains outstanding, otherwise to partially_delivered.
func (o *Order) RecordDeliveries(lines []DeliveryLine, actor, notes string, at time.Time) error {
	if len(lines) == 0 {
		return NewInvalidOrderInput("lines", "must contain at least 1 entries")
	}
	if strings.TrimSpace(actor) == "" {
		return NewInvalidOrderInput("delivered_by", "is required")
	}

	items := o.Items()
	index := make(map[string]int, len(items))
	for i, item := range items {
		index[item.id] = i
	}

	var v Violations
	for n, line := range lines {
		if _, ok := index[line.ItemID]; !ok {
			v.Add(fmt.Sprintf("lines[%d].item_id", n), "does not belong to this order")
			continue
		}
		if line.Quantity <= 0 {
			v.Add(fmt.Sprintf("lines[%d].quantity", n), "must be greater than 0")
		}
	}
	if err := v.Err(); err != nil {
		return err
	}

	target := StatusDelivered
	for n, line := range lines {
		if err := items[index[line.ItemID]].RecordDelivery(line.Quantity); err != nil {
			return fmt.Errorf("lines[%d]: %w", n, err)
		}
	}
	for _, item := range items {
		if item.QuantityRemaining() > 0 {
			target = StatusPartiallyDelivered
			break
		}
	}

	stays := o.status == StatusPartiallyDelivered && target == StatusPartiallyDelivered
	if !stays && !CanTransition(o.status, target) {
		return &InvalidStatusTransitionError{
			OrderID: o.id,
			From:    o.status,
			To:      target,
			Valid:   ValidTransitionsFrom(o.status),
		}
	}

	at = at.UTC()
	o.items = items
	if stays {
		o.touch(actor, at)
		return nil
	}
	o.appendHistory(o.status, target, actor, at, notes)
	o.status = target
	o.touch(actor, at)
	return nil
}

// MarkStockReservationFailed records that reserving stock for a freshly
// created order did not succeed.
func (o *Order) MarkStockReservationFailed(reason string, at time.Time) error {
	return o.TransitionTo(StatusStockReservationFailed, SystemActor, reason, at)
}

// SetProformaNumber stores the proforma number. Setting the same number again
// is a no-op; a different number is rejected.
func (o *Order) SetProformaNumber(number, actor string, at time.Time) error {
	if !o.status.AllowsProforma() {
		return NewInvalidOrderInput("status", fmt.Sprintf("a proforma cannot be generated for an order in status %s", o.status))
	}
	return o.setDocumentNumber(&o.proformaNumber, "proforma_number", number, actor, at)
}

// SetInvoiceNumber stores the invoice number under the same rules as
// SetProformaNumber.
func (o *Order) SetInvoiceNumber(number, actor string, at time.Time) error {
	if !o.status.AllowsInvoice() {
		return NewInvalidOrderInput("status", fmt.Sprintf("an invoice cannot be generated for an order in status %s", o.status))
	}
	return o.setDocumentNumber(&o.invoiceNumber, "invoice_number", number, actor, at)
}

func (o *Order) setDocumentNumber(dst *string, field, number, actor string, at time.Time) error {
	number = strings.TrimSpace(number)
	if number == "" {
		return NewInvalidOrderInput(field, "is required")
	}
	if *dst == number {
		return nil
	}
	if *dst != "" {
		return NewInvalidOrderInput(field, "is already set to "+*dst)
	}
	*dst = number
	o.touch(actor, at.UTC())
	return nil
}

// DeliveredQuantity is the total delivered across all lines.
func (o *Order) DeliveredQuantity() int {
	total := 0
	for _, item := range o.items {
		total += item.quantityDelivered
	}
	return total
}

func (o *Order) appendHistory(from, to Status, actor string, at time.Time, notes string) {
	o.history = append(o.history, StatusChange{
		ID:        uuid.New().String(),
		From:      from,
		To:        to,
		ChangedBy: actor,
		ChangedAt: at,
		Notes:     notes,
	})
}

func (o *Order) touch(actor string, at time.Time) {
	o.updatedBy = actor
	o.updatedAt = at
}

// OrderSnapshot is a deep copy of an order's state with exported fields.
type OrderSnapshot struct {
	ID              int64
	OrderNumber     string
	Customer        Customer
	Status          Status
	Items           []ItemSnapshot
	BillingAddress  Address
	ShippingAddress Address
	Totals          Totals
	Currency        string
	TaxRate         decimal.Decimal
	PaymentTerms    string
	PaymentStatus   PaymentStatus
	ProformaNumber  string
	InvoiceNumber   string
	Notes           string
	StatusHistory   []StatusChange
	CreatedBy       string
	CreatedAt       time.Time
	UpdatedBy       string
	UpdatedAt       time.Time
	Version         int
}

// Snapshot returns a deep copy of the order state.
func (o *Order) Snapshot() OrderSnapshot {
	items := make([]ItemSnapshot, len(o.items))
	for i, item := range o.items {
		items[i] = item.Snapshot()
	}
	return OrderSnapshot{
		ID:              o.id,
		OrderNumber:     o.orderNumber,
		Customer:        o.customer,
		Status:          o.status,
		Items:           items,
		BillingAddress:  o.billingAddress,
		ShippingAddress: o.shippingAddress,
		Totals:          o.totals,
		Currency:        o.currency,
		TaxRate:         o.taxRate,
		PaymentTerms:    o.paymentTerms,
		PaymentStatus:   o.paymentStatus,
		ProformaNumber:  o.proformaNumber,
		InvoiceNumber:   o.invoiceNumber,
		Notes:           o.notes,
		StatusHistory:   o.StatusHistory(),
		CreatedBy:       o.createdBy,
		CreatedAt:       o.createdAt,
		UpdatedBy:       o.updatedBy,
		UpdatedAt:       o.updatedAt,
		Version:         o.version,
	}
}

// RestoreOrder rebuilds a stored order. The snapshot must satisfy the
// aggregate invariants; all of its history counts as persisted.
func RestoreOrder(s OrderSnapshot) (*Order, error) {
	if len(s.Items) == 0 {
		return nil, fmt.Errorf("restore order %d: no items", s.ID)
	}
	if len(s.StatusHistory) == 0 || s.StatusHistory[len(s.StatusHistory)-1].To != s.Status {
		return nil, fmt.Errorf("restore order %d: status history does not end in %s", s.ID, s.Status)
	}
	if !s.Totals.Consistent() {
		return nil, fmt.Errorf("restore order %d: inconsistent totals", s.ID)
	}

	items := make([]OrderItem, len(s.Items))
	for i, is := range s.Items {
		item, err := RestoreOrderItem(is)
		if err != nil {
			return nil, fmt.Errorf("restore order %d: %w", s.ID, err)
		}
		items[i] = item
	}
	history := make([]StatusChange, len(s.StatusHistory))
	copy(history, s.StatusHistory)

	paymentStatus := s.PaymentStatus
	if paymentStatus == "" {
		paymentStatus = PaymentStatusUnpaid
	}

	return &Order{
		id:               s.ID,
		orderNumber:      s.OrderNumber,
		customer:         s.Customer,
		status:           s.Status,
		items:            items,
		billingAddress:   s.BillingAddress,
		shippingAddress:  s.ShippingAddress,
		totals:           s.Totals,
		currency:         s.Currency,
		taxRate:          s.TaxRate,
		paymentTerms:     s.PaymentTerms,
		paymentStatus:    paymentStatus,
		proformaNumber:   s.ProformaNumber,
		invoiceNumber:    s.InvoiceNumber,
		notes:            s.Notes,
		history:          history,
		createdBy:        s.CreatedBy,
		createdAt:        s.CreatedAt,
		updatedBy:        s.UpdatedBy,
		updatedAt:        s.UpdatedAt,
		version:          s.Version,
		persistedHistory: len(history),
	}, nil
}
