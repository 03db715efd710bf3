// Package memory provides an in-process OrderRepository for development and
// tests. It applies the same version checks as the PostgreSQL implementation.
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/leduxro-prog/erp-dashboard-sub000/internal/domain"
	"github.com/leduxro-prog/erp-dashboard-sub000/internal/repository"
)

// OrderRepository stores order snapshots in a map guarded by a mutex.
type OrderRepository struct {
	mu       sync.RWMutex
	orders   map[int64]domain.OrderSnapshot
	byNumber map[string]int64
	nextID   int64
	sequence atomic.Int64
}

// NewOrderRepository creates an empty repository.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders:   make(map[int64]domain.OrderSnapshot),
		byNumber: make(map[string]int64),
	}
}

var _ repository.OrderRepository = (*OrderRepository)(nil)

// NextOrderNumber increments an atomic counter.
func (r *OrderRepository) NextOrderNumber(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return r.sequence.Add(1), nil
}

// Create stores the order with version 1.
func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byNumber[o.OrderNumber()]; exists {
		return &domain.OrderAlreadyExistsError{OrderNumber: o.OrderNumber()}
	}

	r.nextID++
	id := r.nextID
	s := o.Snapshot()
	s.ID = id
	s.Version = 1
	r.orders[id] = s
	r.byNumber[s.OrderNumber] = id

	o.MarkPersisted(id, 1)
	return nil
}

// Update replaces the stored snapshot when the versions match.
func (r *OrderRepository) Update(ctx context.Context, o *domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.orders[o.ID()]
	if !ok {
		return &domain.OrderNotFoundError{OrderID: o.ID()}
	}
	if current.Version != o.Version() {
		return &domain.ConcurrentModificationError{OrderID: o.ID(), ExpectedVersion: o.Version()}
	}

	s := o.Snapshot()
	s.Version = current.Version + 1
	r.orders[s.ID] = s

	o.MarkPersisted(s.ID, s.Version)
	return nil
}

// GetByID returns a fresh copy of the stored order.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	s, ok := r.orders[id]
	r.mu.RUnlock()
	if !ok {
		return nil, &domain.OrderNotFoundError{OrderID: id}
	}
	return domain.RestoreOrder(s)
}

// GetByNumber returns a fresh copy of the order with the given number.
func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	id, ok := r.byNumber[number]
	s := r.orders[id]
	r.mu.RUnlock()
	if !ok {
		return nil, &domain.OrderNotFoundError{OrderNumber: number}
	}
	return domain.RestoreOrder(s)
}

// List filters, sorts newest first and pages the stored orders.
func (r *OrderRepository) List(ctx context.Context, filter repository.ListFilter) ([]*domain.Order, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	r.mu.RLock()
	matched := make([]domain.OrderSnapshot, 0, len(r.orders))
	for _, s := range r.orders {
		if filter.Matches(&s) {
			matched = append(matched, s)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	page := filter.Window()
	start := min(page.Offset(), len(matched))
	end := min(start+page.PerPage, len(matched))

	orders := make([]*domain.Order, 0, end-start)
	for _, s := range matched[start:end] {
		o, err := domain.RestoreOrder(s)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	return orders, len(matched), nil
}
