package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/leduxro-prog/erp-dashboard-sub000/internal/domain"
	"github.com/leduxro-prog/erp-dashboard-sub000/internal/repository"
	"github.com/leduxro-prog/erp-dashboard-sub000/pkg/database"
)

const uniqueViolation = "23505"

const orderColumns = `id, order_number, customer_id, customer_name, customer_email, status,
	billing_address, shipping_address, subtotal, discount_amount, tax_amount, shipping_cost,
	grand_total, currency, tax_rate::text, payment_terms, payment_status, proforma_number,
	invoice_number, notes, created_by, created_at, updated_by, updated_at, version`

// OrderRepository implements repository.OrderRepository using PostgreSQL.
type OrderRepository struct {
	pool database.DBTX
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool database.DBTX) *OrderRepository {
	return &OrderRepository{pool: pool}
}

var _ repository.OrderRepository = (*OrderRepository)(nil)

// NextOrderNumber draws the next value from order_number_seq.
func (r *OrderRepository) NextOrderNumber(ctx context.Context) (n int64, err error) {
	const query = `SELECT nextval('order_number_seq')`
	ctx, end := database.TraceQuery(ctx, "NextOrderNumber", query)
	defer func() { end(err) }()

	if err = r.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("next order number: %w", err)
	}
	return n, nil
}

// Create inserts the order, its items and its history in one transaction.
func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) (err error) {
	const insertOrder = `
		INSERT INTO orders (order_number, customer_id, customer_name, customer_email, status,
			billing_address, shipping_address, subtotal, discount_amount, tax_amount, shipping_cost,
			grand_total, currency, tax_rate, payment_terms, payment_status, proforma_number,
			invoice_number, notes, created_by, created_at, updated_by, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, 1)
		RETURNING id`

	ctx, end := database.TraceQuery(ctx, "CreateOrder", insertOrder)
	defer func() { end(err) }()

	s := o.Snapshot()
	billing, err := json.Marshal(s.BillingAddress)
	if err != nil {
		return fmt.Errorf("marshal billing address: %w", err)
	}
	shipping, err := json.Marshal(s.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}

	var id int64
	err = database.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, insertOrder,
			s.OrderNumber,
			s.Customer.ID,
			s.Customer.Name,
			s.Customer.Email,
			string(s.Status),
			billing,
			shipping,
			s.Totals.Subtotal,
			s.Totals.DiscountAmount,
			s.Totals.TaxAmount,
			s.Totals.ShippingCost,
			s.Totals.GrandTotal,
			s.Currency,
			s.TaxRate.String(),
			s.PaymentTerms,
			string(s.PaymentStatus),
			nullable(s.ProformaNumber),
			nullable(s.InvoiceNumber),
			s.Notes,
			s.CreatedBy,
			s.CreatedAt,
			s.UpdatedBy,
			s.UpdatedAt,
		).Scan(&id)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return &domain.OrderAlreadyExistsError{OrderNumber: s.OrderNumber}
			}
			return fmt.Errorf("insert order: %w", err)
		}

		const insertItem = `
			INSERT INTO order_items (id, order_id, position, product_id, sku, product_name,
				quantity_ordered, quantity_delivered, unit_price, cost_price, cost_source)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
		for i, item := range s.Items {
			if _, err := tx.Exec(ctx, insertItem,
				item.ID,
				id,
				i,
				item.ProductID,
				item.SKU,
				item.ProductName,
				item.QuantityOrdered,
				item.QuantityDelivered,
				item.UnitPrice,
				item.CostPrice,
				item.CostSource,
			); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}

		return insertHistory(ctx, tx, id, 0, s.StatusHistory)
	})
	if err != nil {
		return err
	}

	o.MarkPersisted(id, 1)
	return nil
}

// Update applies a version-checked write. The order row, item deliveries and
// new history entries commit together or not at all.
func (r *OrderRepository) Update(ctx context.Context, o *domain.Order) (err error) {
	const updateOrder = `
		UPDATE orders
		SET status = $3, payment_status = $4, proforma_number = $5, invoice_number = $6,
			notes = $7, updated_by = $8, updated_at = $9, version = version + 1
		WHERE id = $1 AND version = $2`

	ctx, end := database.TraceQuery(ctx, "UpdateOrder", updateOrder)
	defer func() { end(err) }()

	s := o.Snapshot()
	pending := o.PendingHistory()
	firstPosition := len(s.StatusHistory) - len(pending)

	err = database.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, updateOrder,
			s.ID,
			s.Version,
			string(s.Status),
			string(s.PaymentStatus),
			nullable(s.ProformaNumber),
			nullable(s.InvoiceNumber),
			s.Notes,
			s.UpdatedBy,
			s.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		if ct.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, s.ID).Scan(&exists); err != nil {
				return fmt.Errorf("probe order: %w", err)
			}
			if !exists {
				return &domain.OrderNotFoundError{OrderID: s.ID}
			}
			return &domain.ConcurrentModificationError{OrderID: s.ID, ExpectedVersion: s.Version}
		}

		const updateItem = `
			UPDATE order_items SET quantity_delivered = $3
			WHERE id = $1 AND order_id = $2`
		for _, item := range s.Items {
			if _, err := tx.Exec(ctx, updateItem, item.ID, s.ID, item.QuantityDelivered); err != nil {
				return fmt.Errorf("update order item: %w", err)
			}
		}

		return insertHistory(ctx, tx, s.ID, firstPosition, pending)
	})
	if err != nil {
		return err
	}

	o.MarkPersisted(s.ID, s.Version+1)
	return nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, orderID int64, firstPosition int, entries []domain.StatusChange) error {
	const query = `
		INSERT INTO order_status_history (id, order_id, position, from_status, to_status,
			changed_by, changed_at, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	for i, h := range entries {
		if _, err := tx.Exec(ctx, query,
			h.ID,
			orderID,
			firstPosition+i,
			string(h.From),
			string(h.To),
			h.ChangedBy,
			h.ChangedAt,
			h.Notes,
		); err != nil {
			return fmt.Errorf("insert status history: %w", err)
		}
	}
	return nil
}

// GetByID retrieves an order by id.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	o, err := r.getOne(ctx, "GetOrderByID", query, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.OrderNotFoundError{OrderID: id}
	}
	return o, err
}

// GetByNumber retrieves an order by its order number.
func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1`
	o, err := r.getOne(ctx, "GetOrderByNumber", query, number)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.OrderNotFoundError{OrderNumber: number}
	}
	return o, err
}

func (r *OrderRepository) getOne(ctx context.Context, operation, query string, arg any) (_ *domain.Order, err error) {
	ctx, end := database.TraceQuery(ctx, operation, query)
	defer func() {
		if errors.Is(err, pgx.ErrNoRows) {
			end(nil)
			return
		}
		end(err)
	}()

	s, err := scanOrder(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	snapshots := []*domain.OrderSnapshot{&s}
	if err := r.loadChildren(ctx, snapshots); err != nil {
		return nil, err
	}
	return restore(s)
}

// List returns orders matching the filter with the total count.
func (r *OrderRepository) List(ctx context.Context, filter repository.ListFilter) (_ []*domain.Order, _ int, err error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.CustomerID != nil {
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", argIndex))
		args = append(args, *filter.CustomerID)
		argIndex++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, string(*filter.Status))
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM orders
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`,
		orderColumns, whereClause, argIndex, argIndex+1,
	)

	ctx, end := database.TraceQuery(ctx, "ListOrders", query)
	defer func() { end(err) }()

	page := filter.Window()
	args = append(args, page.PerPage, page.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var (
		totalCount int
		snapshots  []*domain.OrderSnapshot
	)
	for rows.Next() {
		var s domain.OrderSnapshot
		if err := scanOrderInto(rows, &s, &totalCount); err != nil {
			return nil, 0, fmt.Errorf("scan order row: %w", err)
		}
		snapshots = append(snapshots, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate order rows: %w", err)
	}

	if err := r.loadChildren(ctx, snapshots); err != nil {
		return nil, 0, err
	}

	orders := make([]*domain.Order, 0, len(snapshots))
	for _, s := range snapshots {
		o, err := restore(*s)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	return orders, totalCount, nil
}

// loadChildren batch-loads items and history for the given orders.
func (r *OrderRepository) loadChildren(ctx context.Context, snapshots []*domain.OrderSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	ids := make([]int64, len(snapshots))
	byID := make(map[int64]*domain.OrderSnapshot, len(snapshots))
	for i, s := range snapshots {
		ids[i] = s.ID
		byID[s.ID] = s
	}

	itemRows, err := r.pool.Query(ctx, `
		SELECT order_id, id, product_id, sku, product_name, quantity_ordered,
			quantity_delivered, unit_price, cost_price, cost_source
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position`, ids)
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var (
			orderID int64
			item    domain.ItemSnapshot
		)
		if err := itemRows.Scan(
			&orderID,
			&item.ID,
			&item.ProductID,
			&item.SKU,
			&item.ProductName,
			&item.QuantityOrdered,
			&item.QuantityDelivered,
			&item.UnitPrice,
			&item.CostPrice,
			&item.CostSource,
		); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if s, ok := byID[orderID]; ok {
			s.Items = append(s.Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return fmt.Errorf("iterate order item rows: %w", err)
	}

	historyRows, err := r.pool.Query(ctx, `
		SELECT order_id, id, from_status, to_status, changed_by, changed_at, notes
		FROM order_status_history
		WHERE order_id = ANY($1)
		ORDER BY order_id, position`, ids)
	if err != nil {
		return fmt.Errorf("load status history: %w", err)
	}
	defer historyRows.Close()

	for historyRows.Next() {
		var (
			orderID  int64
			h        domain.StatusChange
			from, to string
		)
		if err := historyRows.Scan(&orderID, &h.ID, &from, &to, &h.ChangedBy, &h.ChangedAt, &h.Notes); err != nil {
			return fmt.Errorf("scan status history: %w", err)
		}
		h.From = domain.Status(from)
		h.To = domain.Status(to)
		if s, ok := byID[orderID]; ok {
			s.StatusHistory = append(s.StatusHistory, h)
		}
	}
	if err := historyRows.Err(); err != nil {
		return fmt.Errorf("iterate status history rows: %w", err)
	}
	return nil
}

func scanOrder(row pgx.Row) (domain.OrderSnapshot, error) {
	var s domain.OrderSnapshot
	err := scanOrderInto(row, &s)
	return s, err
}

func scanOrderInto(row pgx.Row, s *domain.OrderSnapshot, extra ...any) error {
	var (
		status, paymentStatus   string
		billing, shipping       []byte
		taxRate                 string
		proformaNumber, invoice *string
	)
	dest := []any{
		&s.ID,
		&s.OrderNumber,
		&s.Customer.ID,
		&s.Customer.Name,
		&s.Customer.Email,
		&status,
		&billing,
		&shipping,
		&s.Totals.Subtotal,
		&s.Totals.DiscountAmount,
		&s.Totals.TaxAmount,
		&s.Totals.ShippingCost,
		&s.Totals.GrandTotal,
		&s.Currency,
		&taxRate,
		&s.PaymentTerms,
		&paymentStatus,
		&proformaNumber,
		&invoice,
		&s.Notes,
		&s.CreatedBy,
		&s.CreatedAt,
		&s.UpdatedBy,
		&s.UpdatedAt,
		&s.Version,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}

	s.Status = domain.Status(status)
	s.PaymentStatus = domain.PaymentStatus(paymentStatus)
	if proformaNumber != nil {
		s.ProformaNumber = *proformaNumber
	}
	if invoice != nil {
		s.InvoiceNumber = *invoice
	}

	rate, err := decimal.NewFromString(taxRate)
	if err != nil {
		return fmt.Errorf("parse tax rate %q: %w", taxRate, err)
	}
	s.TaxRate = rate

	if err := json.Unmarshal(billing, &s.BillingAddress); err != nil {
		return fmt.Errorf("unmarshal billing address: %w", err)
	}
	if err := json.Unmarshal(shipping, &s.ShippingAddress); err != nil {
		return fmt.Errorf("unmarshal shipping address: %w", err)
	}
	return nil
}

func restore(s domain.OrderSnapshot) (*domain.Order, error) {
	o, err := domain.RestoreOrder(s)
	if err != nil {
		return nil, fmt.Errorf("load order %d: %w", s.ID, err)
	}
	return o, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
