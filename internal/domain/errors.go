package domain

import (
	"fmt"
	"strings"

	apperrors "github.com/leduxro-prog/erp-dashboard-sub000/pkg/errors"
)

// FieldViolation describes one invalid field in a request.
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// InvalidOrderInputError reports structural or validation failures on request
// data. It never accompanies a state change.
type InvalidOrderInputError struct {
	Violations []FieldViolation
}

// NewInvalidOrderInput creates an input error with a single violation.
func NewInvalidOrderInput(field, message string) *InvalidOrderInputError {
	return &InvalidOrderInputError{Violations: []FieldViolation{{Field: field, Message: message}}}
}

func (e *InvalidOrderInputError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		if v.Field == "" {
			parts[i] = v.Message
			continue
		}
		parts[i] = v.Field + ": " + v.Message
	}
	return "invalid order input: " + strings.Join(parts, "; ")
}

func (e *InvalidOrderInputError) Unwrap() error { return apperrors.ErrInvalidInput }

func (e *InvalidOrderInputError) ErrorCode() string { return "INVALID_ORDER_INPUT" }

func (e *InvalidOrderInputError) ErrorDetails() map[string]any {
	return map[string]any{"violations": e.Violations}
}

// Violations accumulates field violations so validation can finish before
// reporting.
type Violations struct {
	list []FieldViolation
}

// Add records a violation.
func (v *Violations) Add(field, message string) {
	v.list = append(v.list, FieldViolation{Field: field, Message: message})
}

// Merge folds the violations of an InvalidOrderInputError into v, prefixing
// each field. Other errors are recorded against the prefix itself.
func (v *Violations) Merge(prefix string, err error) {
	if err == nil {
		return
	}
	inputErr, ok := err.(*InvalidOrderInputError)
	if !ok {
		v.Add(prefix, err.Error())
		return
	}
	for _, fv := range inputErr.Violations {
		field := fv.Field
		switch {
		case prefix == "":
		case field == "":
			field = prefix
		default:
			field = prefix + "." + field
		}
		v.Add(field, fv.Message)
	}
}

// Empty reports whether no violations were recorded.
func (v *Violations) Empty() bool { return len(v.list) == 0 }

// Err returns nil when there are no violations.
func (v *Violations) Err() error {
	if len(v.list) == 0 {
		return nil
	}
	out := make([]FieldViolation, len(v.list))
	copy(out, v.list)
	return &InvalidOrderInputError{Violations: out}
}

// OrderNotFoundError reports a missing order id or order number.
type OrderNotFoundError struct {
	OrderID     int64
	OrderNumber string
}

func (e *OrderNotFoundError) Error() string {
	if e.OrderNumber != "" {
		return fmt.Sprintf("order %s not found", e.OrderNumber)
	}
	return fmt.Sprintf("order %d not found", e.OrderID)
}

func (e *OrderNotFoundError) Unwrap() error { return apperrors.ErrNotFound }

func (e *OrderNotFoundError) ErrorCode() string { return "ORDER_NOT_FOUND" }

// InsufficientStockError reports a failed availability check.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return apperrors.ErrUnprocessable }

func (e *InsufficientStockError) ErrorCode() string { return "INSUFFICIENT_STOCK" }

func (e *InsufficientStockError) ErrorDetails() map[string]any {
	return map[string]any{
		"product_id": e.ProductID,
		"requested":  e.Requested,
		"available":  e.Available,
	}
}

// InvalidStatusTransitionError reports an illegal transition together with
// the transitions that were legal from the current status.
type InvalidStatusTransitionError struct {
	OrderID int64
	From    Status
	To      Status
	Valid   []Status
}

func (e *InvalidStatusTransitionError) Error() string {
	valid := "no valid transitions"
	if len(e.Valid) > 0 {
		names := make([]string, len(e.Valid))
		for i, s := range e.Valid {
			names[i] = string(s)
		}
		valid = "valid: " + strings.Join(names, ", ")
	}
	return fmt.Sprintf("cannot transition order %d from %q to %q (%s)", e.OrderID, e.From, e.To, valid)
}

func (e *InvalidStatusTransitionError) Unwrap() error { return apperrors.ErrConflict }

func (e *InvalidStatusTransitionError) ErrorCode() string { return "INVALID_STATUS_TRANSITION" }

func (e *InvalidStatusTransitionError) ErrorDetails() map[string]any {
	valid := e.Valid
	if valid == nil {
		valid = []Status{}
	}
	return map[string]any{
		"from":              e.From,
		"to":                e.To,
		"valid_transitions": valid,
	}
}

// OrderCancellationError reports unmet business preconditions for cancelling.
type OrderCancellationError struct {
	OrderID int64
	Reason  string
}

func (e *OrderCancellationError) Error() string {
	return fmt.Sprintf("order %d cannot be cancelled: %s", e.OrderID, e.Reason)
}

func (e *OrderCancellationError) Unwrap() error { return apperrors.ErrConflict }

func (e *OrderCancellationError) ErrorCode() string { return "ORDER_CANCELLATION_REJECTED" }

// InvalidDeliveryQuantityError reports an over-delivery or a delivery against
// an exhausted line.
type InvalidDeliveryQuantityError struct {
	ItemID    string
	Requested int
	Remaining int
}

func (e *InvalidDeliveryQuantityError) Error() string {
	return fmt.Sprintf("cannot deliver %d of item %s: %d remaining", e.Requested, e.ItemID, e.Remaining)
}

func (e *InvalidDeliveryQuantityError) Unwrap() error { return apperrors.ErrUnprocessable }

func (e *InvalidDeliveryQuantityError) ErrorCode() string { return "INVALID_DELIVERY_QUANTITY" }

func (e *InvalidDeliveryQuantityError) ErrorDetails() map[string]any {
	return map[string]any{
		"item_id":   e.ItemID,
		"requested": e.Requested,
		"remaining": e.Remaining,
	}
}

// StockReservationError reports a reservation failure after the order was
// persisted. The order exists and needs follow-up.
type StockReservationError struct {
	OrderID     int64
	OrderNumber string
	Err         error
}

func (e *StockReservationError) Error() string {
	return fmt.Sprintf("stock reservation failed for order %s: %v", e.OrderNumber, e.Err)
}

func (e *StockReservationError) Unwrap() []error {
	return []error{apperrors.ErrDependency, e.Err}
}

func (e *StockReservationError) ErrorCode() string { return "STOCK_RESERVATION_FAILED" }

func (e *StockReservationError) ErrorDetails() map[string]any {
	return map[string]any{
		"order_id":     e.OrderID,
		"order_number": e.OrderNumber,
	}
}

// ProformaGenerationError wraps a failure from the proforma document service.
type ProformaGenerationError struct {
	OrderID int64
	Reason  string
	Err     error
}

func (e *ProformaGenerationError) Error() string {
	return fmt.Sprintf("proforma generation failed for order %d: %s", e.OrderID, e.Reason)
}

func (e *ProformaGenerationError) Unwrap() []error {
	return []error{apperrors.ErrDependency, e.Err}
}

func (e *ProformaGenerationError) ErrorCode() string { return "PROFORMA_GENERATION_FAILED" }

// InvoiceGenerationError wraps a failure from the invoice document service.
type InvoiceGenerationError struct {
	OrderID int64
	Reason  string
	Err     error
}

func (e *InvoiceGenerationError) Error() string {
	return fmt.Sprintf("invoice generation failed for order %d: %s", e.OrderID, e.Reason)
}

func (e *InvoiceGenerationError) Unwrap() []error {
	return []error{apperrors.ErrDependency, e.Err}
}

func (e *InvoiceGenerationError) ErrorCode() string { return "INVOICE_GENERATION_FAILED" }

// OrderAlreadyExistsError reports an order-number collision.
type OrderAlreadyExistsError struct {
	OrderNumber string
}

func (e *OrderAlreadyExistsError) Error() string {
	return fmt.Sprintf("order with number %q already exists", e.OrderNumber)
}

func (e *OrderAlreadyExistsError) Unwrap() error { return apperrors.ErrAlreadyExists }

func (e *OrderAlreadyExistsError) ErrorCode() string { return "ORDER_ALREADY_EXISTS" }

// ConcurrentModificationError is returned to the loser of two concurrent
// writes against the same order.
type ConcurrentModificationError struct {
	OrderID         int64
	ExpectedVersion int
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("order %d was modified concurrently (expected version %d)", e.OrderID, e.ExpectedVersion)
}

func (e *ConcurrentModificationError) Unwrap() error { return apperrors.ErrConflict }

func (e *ConcurrentModificationError) ErrorCode() string { return "CONCURRENT_MODIFICATION" }
