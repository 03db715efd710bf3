package domain

import "slices"

// Status is the lifecycle state of an order.
type Status string

// Order status constants.
const (
	StatusQuotePending           Status = "quote_pending"
	StatusQuoteSent              Status = "quote_sent"
	StatusQuoteAccepted          Status = "quote_accepted"
	StatusQuoteRejected          Status = "quote_rejected"
	StatusOrderConfirmed         Status = "order_confirmed"
	StatusPartiallyDelivered     Status = "partially_delivered"
	StatusDelivered              Status = "delivered"
	StatusCancelled              Status = "cancelled"
	StatusStockReservationFailed Status = "stock_reservation_failed"
)

// ValidStatuses returns all order statuses in lifecycle order.
func ValidStatuses() []Status {
	return []Status{
		StatusQuotePending,
		StatusQuoteSent,
		StatusQuoteAccepted,
		StatusQuoteRejected,
		StatusOrderConfirmed,
		StatusPartiallyDelivered,
		StatusDelivered,
		StatusCancelled,
		StatusStockReservationFailed,
	}
}

// IsValidStatus checks if a status string names a known status.
func IsValidStatus(status string) bool {
	return slices.Contains(ValidStatuses(), Status(status))
}

// AllowedTransitions defines which status transitions are legal. The map is
// rebuilt on every call so callers cannot mutate the shared policy.
func AllowedTransitions() map[Status][]Status {
	return map[Status][]Status{
		StatusQuotePending: {
			StatusQuoteSent,
			StatusQuoteAccepted,
			StatusQuoteRejected,
			StatusCancelled,
			StatusStockReservationFailed,
		},
		StatusQuoteSent:              {StatusQuoteAccepted, StatusQuoteRejected, StatusCancelled},
		StatusQuoteAccepted:          {StatusOrderConfirmed, StatusCancelled},
		StatusQuoteRejected:          {StatusQuotePending, StatusCancelled},
		StatusOrderConfirmed:         {StatusPartiallyDelivered, StatusDelivered, StatusCancelled},
		StatusPartiallyDelivered:     {StatusDelivered, StatusCancelled},
		StatusStockReservationFailed: {StatusQuotePending, StatusCancelled},
		StatusDelivered:              {},
		StatusCancelled:              {},
	}
}

// ValidTransitionsFrom returns the statuses reachable from s. The result is
// never nil so it renders as an empty JSON list for terminal states.
func ValidTransitionsFrom(s Status) []Status {
	allowed := AllowedTransitions()[s]
	out := make([]Status, len(allowed))
	copy(out, allowed)
	return out
}

// CanTransition reports whether from -> to is in the allow-list.
func CanTransition(from, to Status) bool {
	return slices.Contains(AllowedTransitions()[from], to)
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// IsSystemManaged reports whether the status is only entered as a side effect
// of delivery recording or stock reservation, never by a manual request.
func (s Status) IsSystemManaged() bool {
	switch s {
	case StatusPartiallyDelivered, StatusDelivered, StatusStockReservationFailed:
		return true
	}
	return false
}

// IsSystemTransition reports whether from -> to is taken only by the engine:
// entering a system-managed status, or leaving stock_reservation_failed for
// quote_pending after stock has been reserved again.
func IsSystemTransition(from, to Status) bool {
	return to.IsSystemManaged() || (from == StatusStockReservationFailed && to == StatusQuotePending)
}

// AllowsProforma reports whether a first proforma may be issued in this status.
func (s Status) AllowsProforma() bool {
	switch s {
	case StatusQuotePending, StatusQuoteSent, StatusQuoteAccepted, StatusOrderConfirmed:
		return true
	}
	return false
}

// AllowsInvoice reports whether an invoice may be issued in this status.
func (s Status) AllowsInvoice() bool {
	switch s {
	case StatusOrderConfirmed, StatusPartiallyDelivered, StatusDelivered:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}
