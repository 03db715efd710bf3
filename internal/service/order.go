package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/leduxro-prog/erp-dashboard-sub000/internal/domain"
	"github.com/leduxro-prog/erp-dashboard-sub000/internal/pricing"
	"github.com/leduxro-prog/erp-dashboard-sub000/internal/repository"
	"github.com/leduxro-prog/erp-dashboard-sub000/pkg/logger"
	"github.com/leduxro-prog/erp-dashboard-sub000/pkg/validator"
)

// Document kinds.
const (
	DocumentProforma = "proforma"
	DocumentInvoice  = "invoice"
)

// compensationTimeout bounds the writes that record a stock reservation
// failure after the caller's context has ended.
const compensationTimeout = 10 * time.Second

// Settings are the commercial defaults applied to new orders.
type Settings struct {
	TaxRate      decimal.Decimal
	Currency     string
	NumberPrefix string
	PaymentTerms string
	Tiers        pricing.TierPolicy
}

// Dependencies are the ports the order service orchestrates.
type Dependencies struct {
	Repo      repository.OrderRepository
	Products  ProductService
	Stock     StockService
	Proformas ProformaService
	Invoices  InvoiceService
	Publisher EventPublisher
}

// OrderService implements the order use cases. Each call loads its own copy
// of the aggregate, mutates it and writes it back; the repository's version
// check rejects concurrent writers.
type OrderService struct {
	repo      repository.OrderRepository
	products  ProductService
	stock     StockService
	proformas ProformaService
	invoices  InvoiceService
	publisher EventPublisher
	calc      pricing.Calculator
	settings  Settings
	logger    *slog.Logger
	now       func() time.Time
}

// NewOrderService creates a new order service.
func NewOrderService(deps Dependencies, settings Settings, logger *slog.Logger) *OrderService {
	if settings.NumberPrefix == "" {
		settings.NumberPrefix = "ORD"
	}
	return &OrderService{
		repo:      deps.Repo,
		products:  deps.Products,
		stock:     deps.Stock,
		proformas: deps.Proformas,
		invoices:  deps.Invoices,
		publisher: deps.Publisher,
		calc:      pricing.NewCalculator(settings.TaxRate),
		settings:  settings,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrderItemInput requests a quantity of one catalog product.
type CreateOrderItemInput struct {
	ProductID string `json:"product_id" validate:"required,max=64"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

// CreateOrderInput holds the parameters for creating an order. An empty
// shipping address defaults to the billing address.
type CreateOrderInput struct {
	CustomerID      string                 `json:"customer_id" validate:"required,max=64"`
	CustomerName    string                 `json:"customer_name" validate:"required,max=255"`
	CustomerEmail   string                 `json:"customer_email" validate:"required,email,max=255"`
	CustomerTier    string                 `json:"customer_tier" validate:"omitempty,max=32"`
	Items           []CreateOrderItemInput `json:"items" validate:"required,min=1,max=200,dive"`
	BillingAddress  domain.AddressInput    `json:"billing_address"`
	ShippingAddress domain.AddressInput    `json:"shipping_address"`
	DiscountAmount  int64                  `json:"discount_amount" validate:"gte=0,lte=100000000000"`
	ShippingCost    int64                  `json:"shipping_cost" validate:"gte=0,lte=100000000000"`
	Currency        string                 `json:"currency" validate:"omitempty,len=3"`
	PaymentTerms    string                 `json:"payment_terms" validate:"max=32"`
	Notes           string                 `json:"notes" validate:"max=2000"`
	CreatedBy       string                 `json:"-"`
}

type validatedOrder struct {
	billing  domain.Address
	shipping domain.Address
}

// validateCreate reports every structural problem at once, before any port is
// called.
func (s *OrderService) validateCreate(input CreateOrderInput) (validatedOrder, error) {
	var v domain.Violations

	if err := validator.Validate(input); err != nil {
		var ve *validator.ValidationError
		if !errors.As(err, &ve) {
			return validatedOrder{}, fmt.Errorf("validate create order input: %w", err)
		}
		fields := ve.Fields()
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			v.Add(name, fields[name])
		}
	}
	if strings.TrimSpace(input.CreatedBy) == "" {
		v.Add("created_by", "is required")
	}

	seen := make(map[string]int, len(input.Items))
	for i, item := range input.Items {
		id := strings.TrimSpace(item.ProductID)
		if id == "" {
			continue
		}
		if first, ok := seen[id]; ok {
			v.Add(fmt.Sprintf("items[%d].product_id", i), fmt.Sprintf("duplicates items[%d]", first))
			continue
		}
		seen[id] = i
	}

	var out validatedOrder
	billing, err := domain.NewAddress(input.BillingAddress)
	v.Merge("billing_address", err)
	out.billing = billing

	if input.ShippingAddress == (domain.AddressInput{}) {
		out.shipping = billing
	} else {
		shipping, err := domain.NewAddress(input.ShippingAddress)
		v.Merge("shipping_address", err)
		out.shipping = shipping
	}

	if _, err := s.settings.Tiers.Discount(input.CustomerTier, 0); err != nil {
		v.Merge("", err)
	}

	if err := v.Err(); err != nil {
		return validatedOrder{}, err
	}
	return out, nil
}

// CreateOrder opens a quote: it snapshots catalog prices and costs, checks
// availability, prices the order, persists it and reserves stock. A
// reservation failure leaves the persisted order in stock_reservation_failed
// and returns StockReservationError.
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*OrderResponse, error) {
	valid, err := s.validateCreate(input)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(input.Items))
	for i, item := range input.Items {
		ids[i] = strings.TrimSpace(item.ProductID)
	}

	products, err := s.products.GetProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch products: %w", err)
	}
	byID := make(map[string]ProductSnapshot, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	var missing domain.Violations
	for i, id := range ids {
		if _, ok := byID[id]; !ok {
			missing.Add(fmt.Sprintf("items[%d].product_id", i), fmt.Sprintf("product %s not found", id))
		}
	}
	if err := missing.Err(); err != nil {
		return nil, err
	}

	for i, id := range ids {
		requested := input.Items[i].Quantity
		avail, err := s.stock.CheckAvailability(ctx, id, requested)
		if err != nil {
			return nil, fmt.Errorf("check availability for product %s: %w", id, err)
		}
		if !avail.Available {
			return nil, &domain.InsufficientStockError{ProductID: id, Requested: requested, Available: avail.Quantity}
		}
	}

	items := make([]domain.OrderItem, len(ids))
	var itemErrs domain.Violations
	for i, id := range ids {
		p := byID[id]
		item, err := domain.NewOrderItem(domain.ItemParams{
			ProductID:   p.ID,
			SKU:         p.SKU,
			ProductName: p.Name,
			Quantity:    input.Items[i].Quantity,
			UnitPrice:   p.Price,
			CostPrice:   p.CostPrice,
			CostSource:  p.CostSource,
		})
		itemErrs.Merge(fmt.Sprintf("items[%d]", i), err)
		items[i] = item
	}
	if err := itemErrs.Err(); err != nil {
		return nil, err
	}

	subtotal := s.calc.Calculate(items, 0, 0).Subtotal
	tierDiscount, err := s.settings.Tiers.Discount(input.CustomerTier, subtotal)
	if err != nil {
		return nil, err
	}
	totals := s.calc.Calculate(items, pricing.CombineDiscounts(input.DiscountAmount, tierDiscount), input.ShippingCost)

	seq, err := s.repo.NextOrderNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocate order number: %w", err)
	}

	currency := input.Currency
	if currency == "" {
		currency = s.settings.Currency
	}
	terms := input.PaymentTerms
	if terms == "" {
		terms = s.settings.PaymentTerms
	}

	order, err := domain.NewOrder(domain.NewOrderParams{
		OrderNumber: fmt.Sprintf("%s-%06d", s.settings.NumberPrefix, seq),
		Customer: domain.Customer{
			ID:    strings.TrimSpace(input.CustomerID),
			Name:  strings.TrimSpace(input.CustomerName),
			Email: strings.TrimSpace(input.CustomerEmail),
		},
		Items:           items,
		BillingAddress:  valid.billing,
		ShippingAddress: valid.shipping,
		Totals:          totals,
		Currency:        currency,
		TaxRate:         s.settings.TaxRate,
		PaymentTerms:    terms,
		Notes:           input.Notes,
		CreatedBy:       input.CreatedBy,
		CreatedAt:       s.now(),
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	ordersCreatedTotal.Inc()

	s.logger.InfoContext(ctx, "order created",
		slog.Int64("order_id", order.ID()),
		slog.String("order_number", order.OrderNumber()),
		slog.String("customer_id", order.Customer().ID),
		slog.Int64("grand_total", totals.GrandTotal),
	)

	if err := s.stock.ReserveStock(ctx, order.ID(), stockLines(order)); err != nil {
		// The order is stored; recording the failure must survive a request
		// that timed out or was abandoned.
		detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
		defer cancel()
		s.publish(detached, domain.NewOrderCreatedEvent(order))
		return nil, s.reservationFailed(detached, order, err)
	}
	s.publish(ctx, domain.NewOrderCreatedEvent(order))

	return NewOrderResponse(order), nil
}

func stockLines(o *domain.Order) []StockLine {
	items := o.Items()
	lines := make([]StockLine, len(items))
	for i, item := range items {
		lines[i] = StockLine{ProductID: item.ProductID(), Quantity: item.QuantityOrdered()}
	}
	return lines
}

// reservationFailed parks a freshly persisted order in
// stock_reservation_failed and raises an alert. The order is never deleted.
func (s *OrderService) reservationFailed(ctx context.Context, o *domain.Order, cause error) error {
	stockReservationFailuresTotal.Inc()
	reason := cause.Error()
	at := s.now()

	parked := false
	if err := o.MarkStockReservationFailed(reason, at); err != nil {
		s.logger.ErrorContext(ctx, "failed to mark stock reservation failure",
			slog.Int64("order_id", o.ID()),
			slog.String("error", err.Error()),
		)
	} else if err := s.repo.Update(ctx, o); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist stock reservation failure",
			slog.Int64("order_id", o.ID()),
			slog.String("error", err.Error()),
		)
	} else {
		parked = true
		statusTransitionsTotal.WithLabelValues(string(domain.StatusQuotePending), string(domain.StatusStockReservationFailed)).Inc()
		s.publish(ctx, domain.NewStockReservationFailedEvent(o, reason, at))
	}

	logger.Alert(ctx, s.logger, "stock reservation failed after order was persisted",
		slog.Int64("order_id", o.ID()),
		slog.String("order_number", o.OrderNumber()),
		slog.Bool("status_recorded", parked),
		slog.String("error", reason),
	)

	return &domain.StockReservationError{OrderID: o.ID(), OrderNumber: o.OrderNumber(), Err: cause}
}

// RetryStockReservation reserves stock again for an order parked in
// stock_reservation_failed and returns it to quote_pending.
func (s *OrderService) RetryStockReservation(ctx context.Context, id int64, actor string) (*OrderResponse, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, domain.NewInvalidOrderInput("changed_by", "is required")
	}

	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order for reservation retry: %w", err)
	}
	if order.Status() != domain.StatusStockReservationFailed {
		return nil, domain.NewInvalidOrderInput("status",
			fmt.Sprintf("stock reservation can only be retried from %s, order is %s", domain.StatusStockReservationFailed, order.Status()))
	}

	if err := s.stock.ReserveStock(ctx, order.ID(), stockLines(order)); err != nil {
		stockReservationFailuresTotal.Inc()
		s.logger.ErrorContext(ctx, "stock reservation retry failed",
			slog.Int64("order_id", order.ID()),
			slog.String("error", err.Error()),
		)
		return nil, &domain.StockReservationError{OrderID: order.ID(), OrderNumber: order.OrderNumber(), Err: err}
	}

	if err := s.transition(ctx, order, domain.StatusQuotePending, actor, "stock reserved"); err != nil {
		return nil, err
	}
	return NewOrderResponse(order), nil
}

// GetOrder retrieves an order by its ID.
func (s *OrderService) GetOrder(ctx context.Context, id int64) (*OrderResponse, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order by id: %w", err)
	}
	return NewOrderResponse(order), nil
}

// GetOrderByNumber retrieves an order by its order number.
func (s *OrderService) GetOrderByNumber(ctx context.Context, number string) (*OrderResponse, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, domain.NewInvalidOrderInput("order_number", "is required")
	}
	order, err := s.repo.GetByNumber(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("get order by number: %w", err)
	}
	return NewOrderResponse(order), nil
}

// ListOrdersInput filters the order list. Empty strings match everything.
type ListOrdersInput struct {
	CustomerID string
	Status     string
	Page       int
	PerPage    int
}

// ListOrders returns a filtered, paginated list of orders.
func (s *OrderService) ListOrders(ctx context.Context, input ListOrdersInput) ([]OrderResponse, int, error) {
	w := repository.ListFilter{Page: input.Page, PerPage: input.PerPage}.Window()
	filter := repository.ListFilter{Page: w.Page, PerPage: w.PerPage}
	if id := strings.TrimSpace(input.CustomerID); id != "" {
		filter.CustomerID = &id
	}
	if input.Status != "" {
		if !domain.IsValidStatus(input.Status) {
			return nil, 0, domain.NewInvalidOrderInput("status", fmt.Sprintf("unknown status %q", input.Status))
		}
		status := domain.Status(input.Status)
		filter.Status = &status
	}

	orders, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}

	out := make([]OrderResponse, len(orders))
	for i, o := range orders {
		out[i] = *NewOrderResponse(o)
	}
	return out, total, nil
}

// UpdateStatusInput requests a manual status change.
type UpdateStatusInput struct {
	Status    string `json:"status" validate:"required"`
	Notes     string `json:"notes" validate:"max=2000"`
	ChangedBy string `json:"-"`
}

// UpdateOrderStatus applies a manual transition. Delivery statuses and
// stock_reservation_failed are set by the system only; cancelled goes through
// CancelOrder so its preconditions apply.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id int64, input UpdateStatusInput) (*OrderResponse, error) {
	if !domain.IsValidStatus(input.Status) {
		return nil, domain.NewInvalidOrderInput("status", fmt.Sprintf("unknown status %q", input.Status))
	}
	target := domain.Status(input.Status)
	if target.IsSystemManaged() {
		return nil, domain.NewInvalidOrderInput("status", fmt.Sprintf("%s is set by the system and cannot be requested", target))
	}
	if strings.TrimSpace(input.ChangedBy) == "" {
		return nil, domain.NewInvalidOrderInput("changed_by", "is required")
	}
	if target == domain.StatusCancelled {
		return s.CancelOrder(ctx, id, CancelOrderInput{Reason: input.Notes, CancelledBy: input.ChangedBy})
	}

	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order for status update: %w", err)
	}
	if domain.IsSystemTransition(order.Status(), target) {
		return nil, domain.NewInvalidOrderInput("status",
			fmt.Sprintf("%s -> %s is set by the system; use the stock reservation retry", order.Status(), target))
	}
	if err := s.transition(ctx, order, target, input.ChangedBy, input.Notes); err != nil {
		return nil, err
	}
	return NewOrderResponse(order), nil
}

// transition applies, persists and announces one status change.
func (s *OrderService) transition(ctx context.Context, order *domain.Order, target domain.Status, actor, notes string) error {
	from := order.Status()
	if err := order.TransitionTo(target, actor, notes, s.now()); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, order); err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	s.statusChanged(ctx, order, from)
	return nil
}

func (s *OrderService) statusChanged(ctx context.Context, order *domain.Order, from domain.Status) {
	statusTransitionsTotal.WithLabelValues(string(from), string(order.Status())).Inc()
	s.publish(ctx, domain.NewStatusChangedEvent(order))
	s.logger.InfoContext(ctx, "order status updated",
		slog.Int64("order_id", order.ID()),
		slog.String("old_status", string(from)),
		slog.String("new_status", string(order.Status())),
	)
}

// CancelOrderInput requests a cancellation.
type CancelOrderInput struct {
	Reason      string `json:"reason" validate:"max=2000"`
	CancelledBy string `json:"-"`
}

// CancelOrder cancels an order that has no deliveries and no invoice, then
// releases its stock reservation on a best-effort basis.
func (s *OrderService) CancelOrder(ctx context.Context, id int64, input CancelOrderInput) (*OrderResponse, error) {
	if strings.TrimSpace(input.CancelledBy) == "" {
		return nil, domain.NewInvalidOrderInput("cancelled_by", "is required")
	}

	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order for cancellation: %w", err)
	}

	previous := order.Status()
	if err := order.Cancel(input.CancelledBy, input.Reason, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, order); err != nil {
		return nil, fmt.Errorf("cancel order: %w", err)
	}

	if previous != domain.StatusStockReservationFailed {
		if err := s.stock.ReleaseStock(ctx, order.ID()); err != nil {
			s.logger.ErrorContext(ctx, "failed to release stock for cancelled order",
				slog.Int64("order_id", order.ID()),
				slog.String("error", err.Error()),
			)
		}
	}

	s.publish(ctx, domain.NewOrderCancelledEvent(order, previous))
	s.statusChanged(ctx, order, previous)
	return NewOrderResponse(order), nil
}

// DeliveryLineInput is a delivered quantity for one order item.
type DeliveryLineInput struct {
	ItemID   string `json:"item_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

// RecordDeliveryInput records one shipment against an order.
type RecordDeliveryInput struct {
	Lines       []DeliveryLineInput `json:"lines" validate:"required,min=1,dive"`
	Notes       string              `json:"notes" validate:"max=2000"`
	DeliveredBy string              `json:"-"`
}

// RecordDelivery applies all delivery lines or none and moves the order to
// partially_delivered or delivered.
func (s *OrderService) RecordDelivery(ctx context.Context, id int64, input RecordDeliveryInput) (*OrderResponse, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order for delivery: %w", err)
	}

	lines := make([]domain.DeliveryLine, len(input.Lines))
	for i, l := range input.Lines {
		lines[i] = domain.DeliveryLine{ItemID: l.ItemID, Quantity: l.Quantity}
	}

	previous := order.Status()
	at := s.now()
	if err := order.RecordDeliveries(lines, input.DeliveredBy, input.Notes, at); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, order); err != nil {
		return nil, fmt.Errorf("record delivery: %w", err)
	}

	s.publish(ctx, domain.NewDeliveryRecordedEvent(order, lines, input.DeliveredBy, at))
	if order.Status() != previous {
		s.statusChanged(ctx, order, previous)
	}

	s.logger.InfoContext(ctx, "delivery recorded",
		slog.Int64("order_id", order.ID()),
		slog.Int("lines", len(lines)),
		slog.String("status", string(order.Status())),
	)
	return NewOrderResponse(order), nil
}

// GenerateProforma issues the order's proforma. If one was already issued its
// number is returned and the accounting service is not called.
func (s *OrderService) GenerateProforma(ctx context.Context, id int64, actor string) (*DocumentResponse, error) {
	return s.generateDocument(ctx, id, actor, DocumentProforma)
}

// GenerateInvoice issues the order's invoice with the same rules as
// GenerateProforma.
func (s *OrderService) GenerateInvoice(ctx context.Context, id int64, actor string) (*DocumentResponse, error) {
	return s.generateDocument(ctx, id, actor, DocumentInvoice)
}

func (s *OrderService) generateDocument(ctx context.Context, id int64, actor, kind string) (*DocumentResponse, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, domain.NewInvalidOrderInput("generated_by", "is required")
	}

	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order for %s: %w", kind, err)
	}

	var existing string
	var allowed bool
	if kind == DocumentProforma {
		existing, allowed = order.ProformaNumber(), order.Status().AllowsProforma()
	} else {
		existing, allowed = order.InvoiceNumber(), order.Status().AllowsInvoice()
	}
	if existing != "" {
		return newDocumentResponse(order, kind, existing), nil
	}
	if !allowed {
		return nil, domain.NewInvalidOrderInput("status",
			fmt.Sprintf("a %s cannot be generated for an order in status %s", kind, order.Status()))
	}

	req := documentRequest(order, actor)
	var number string
	if kind == DocumentProforma {
		number, err = s.proformas.GenerateProforma(ctx, req)
	} else {
		number, err = s.invoices.GenerateInvoice(ctx, req)
	}
	if err != nil {
		documentGenerationFailuresTotal.WithLabelValues(kind).Inc()
		s.logger.ErrorContext(ctx, "document generation failed",
			slog.Int64("order_id", order.ID()),
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
		if kind == DocumentProforma {
			return nil, &domain.ProformaGenerationError{OrderID: order.ID(), Reason: err.Error(), Err: err}
		}
		return nil, &domain.InvoiceGenerationError{OrderID: order.ID(), Reason: err.Error(), Err: err}
	}

	at := s.now()
	var event domain.Event
	if kind == DocumentProforma {
		err = order.SetProformaNumber(number, actor, at)
		event = domain.NewProformaGeneratedEvent(order, actor, at)
	} else {
		err = order.SetInvoiceNumber(number, actor, at)
		event = domain.NewInvoiceGeneratedEvent(order, actor, at)
	}
	if err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, order); err != nil {
		return nil, fmt.Errorf("store %s number: %w", kind, err)
	}

	s.publish(ctx, event)
	s.logger.InfoContext(ctx, "document generated",
		slog.Int64("order_id", order.ID()),
		slog.String("kind", kind),
		slog.String("number", number),
	)
	return newDocumentResponse(order, kind, number), nil
}

// publish never fails the use case; delivery problems are logged.
func (s *OrderService) publish(ctx context.Context, e domain.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order event",
			slog.String("event_type", string(e.Type)),
			slog.Int64("order_id", e.OrderID),
			slog.String("error", err.Error()),
		)
	}
}
