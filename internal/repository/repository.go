package repository

import (
	"context"

	"github.com/leduxro-prog/erp-dashboard-sub000/internal/domain"
	"github.com/leduxro-prog/erp-dashboard-sub000/pkg/pagination"
)

// ListFilter narrows an order listing. Nil filters match every order.
type ListFilter struct {
	CustomerID *string
	Status     *domain.Status
	Page       int
	PerPage    int
}

// Window returns the requested page after pagination clamping.
func (f ListFilter) Window() pagination.Params {
	return pagination.New(f.Page, f.PerPage)
}

// Matches reports whether s passes the customer and status filters.
func (f ListFilter) Matches(s *domain.OrderSnapshot) bool {
	if f.CustomerID != nil && s.Customer.ID != *f.CustomerID {
		return false
	}
	return f.Status == nil || s.Status == *f.Status
}

// OrderRepository persists order aggregates. Implementations return
// domain.OrderNotFoundError for unknown ids and numbers.
type OrderRepository interface {
	// Create stores a new order with its lines and history in one unit and
	// leaves it persisted at version 1.
	Create(ctx context.Context, order *domain.Order) error

	// Update stores order if the persisted version still equals the version
	// it was loaded at, along with new deliveries and history entries.
	// Otherwise it returns domain.ConcurrentModificationError.
	Update(ctx context.Context, order *domain.Order) error

	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	GetByNumber(ctx context.Context, number string) (*domain.Order, error)

	// NextOrderNumber draws the next order number sequence value. Values
	// are never handed out twice.
	NextOrderNumber(ctx context.Context) (int64, error)

	// List returns one window of matching orders, newest first, and the
	// total match count.
	List(ctx context.Context, filter ListFilter) ([]*domain.Order, int, error)
}
