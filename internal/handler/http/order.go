package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/leduxro-prog/erp-dashboard-sub000/internal/service"
	"github.com/leduxro-prog/erp-dashboard-sub000/pkg/httputil"
	"github.com/leduxro-prog/erp-dashboard-sub000/pkg/logger"
	"github.com/leduxro-prog/erp-dashboard-sub000/pkg/pagination"
	"github.com/leduxro-prog/erp-dashboard-sub000/pkg/validator"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	service *service.OrderService
	logger  *slog.Logger
}

// NewOrderHandler creates a new order HTTP handler.
func NewOrderHandler(svc *service.OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// UpdateStatusRequest is the JSON request body for updating order status.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Notes  string `json:"notes" validate:"max=2000"`
}

// CancelOrderRequest is the JSON request body for cancelling an order.
type CancelOrderRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

// DeliveryLineRequest is one delivered line.
type DeliveryLineRequest struct {
	ItemID   string `json:"item_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

// RecordDeliveryRequest is the JSON request body for recording a delivery.
type RecordDeliveryRequest struct {
	Lines []DeliveryLineRequest `json:"lines" validate:"required,min=1,max=200,dive"`
	Notes string                `json:"notes" validate:"max=2000"`
}

func actor(r *http.Request) string {
	return logger.UserIDFromContext(r.Context())
}

// --- Handlers ---

// CreateOrder handles POST /api/v1/orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var input service.CreateOrderInput
	if !httputil.DecodeJSON(w, r, &input, false) {
		return
	}
	input.CreatedBy = actor(r)

	order, err := h.service.CreateOrder(r.Context(), input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.Header().Set("Location", "/api/v1/orders/"+strconv.FormatInt(order.ID, 10))
	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: order})
}

// ListOrders handles GET /api/v1/orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)
	q := r.URL.Query()

	orders, total, err := h.service.ListOrders(r.Context(), service.ListOrdersInput{
		CustomerID: q.Get("customer_id"),
		Status:     q.Get("status"),
		Page:       params.Page,
		PerPage:    params.PerPage,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse(orders, total, params.Page, params.PerPage))
}

// GetOrder handles GET /api/v1/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}

// GetOrderByNumber handles GET /api/v1/orders/number/{number}
func (h *OrderHandler) GetOrderByNumber(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrderByNumber(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}

// UpdateOrderStatus handles PUT /api/v1/orders/{id}/status
func (h *OrderHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if !httputil.DecodeJSON(w, r, &req, false) {
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	order, err := h.service.UpdateOrderStatus(r.Context(), id, service.UpdateStatusInput{
		Status:    req.Status,
		Notes:     req.Notes,
		ChangedBy: actor(r),
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}

// CancelOrder handles POST /api/v1/orders/{id}/cancel
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req CancelOrderRequest
	if !httputil.DecodeJSON(w, r, &req, true) {
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	order, err := h.service.CancelOrder(r.Context(), id, service.CancelOrderInput{
		Reason:      req.Reason,
		CancelledBy: actor(r),
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}

// RecordDelivery handles POST /api/v1/orders/{id}/deliveries
func (h *OrderHandler) RecordDelivery(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req RecordDeliveryRequest
	if !httputil.DecodeJSON(w, r, &req, false) {
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	lines := make([]service.DeliveryLineInput, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = service.DeliveryLineInput{ItemID: l.ItemID, Quantity: l.Quantity}
	}

	order, err := h.service.RecordDelivery(r.Context(), id, service.RecordDeliveryInput{
		Lines:       lines,
		Notes:       req.Notes,
		DeliveredBy: actor(r),
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}

// GenerateProforma handles POST /api/v1/orders/{id}/proforma
func (h *OrderHandler) GenerateProforma(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	doc, err := h.service.GenerateProforma(r.Context(), id, actor(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: doc})
}

// GenerateInvoice handles POST /api/v1/orders/{id}/invoice
func (h *OrderHandler) GenerateInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	doc, err := h.service.GenerateInvoice(r.Context(), id, actor(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: doc})
}

// RetryStockReservation handles POST /api/v1/orders/{id}/stock-reservation/retry
func (h *OrderHandler) RetryStockReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	order, err := h.service.RetryStockReservation(r.Context(), id, actor(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}
