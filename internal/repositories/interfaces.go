package repositories

import (
	"context"
	"time"

	domain "github.com/marketstall/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Refunds() RefundRepository
	Stocks() StockRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists orders with their embedded items. Item mutations go
// through UpdateItem, which enforces the optimistic expected-status check: the
// write fails with a conflict RepositoryError when the stored status no longer
// matches what the engine read.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// FindByItemID resolves the parent order of an item, items included.
	FindByItemID(ctx context.Context, itemID string) (domain.Order, error)
	// UpdateItem persists a single item mutation. expected is the status the
	// caller read before deciding on the transition.
	UpdateItem(ctx context.Context, item domain.OrderItem, expected domain.ItemStatus) error
	ListByCustomer(ctx context.Context, customerID string) ([]domain.Order, error)
	// ListBySeller returns orders containing at least one item whose product
	// belongs to the seller. Item filtering is the caller's concern.
	ListBySeller(ctx context.Context, sellerID string) ([]domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// OrderListFilter controls the admin-wide order listing.
type OrderListFilter struct {
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Pagination    domain.Pagination
}

// RefundRepository persists refund requests keyed by their own id, with lookup
// by order item. Update enforces the same optimistic expected-status check as
// OrderRepository.UpdateItem.
type RefundRepository interface {
	Insert(ctx context.Context, request domain.RefundRequest) error
	FindByID(ctx context.Context, requestID string) (domain.RefundRequest, error)
	// FindLatestByItem returns the most recent request for the item,
	// regardless of its status. A not-found RepositoryError means the item
	// never had a refund request.
	FindLatestByItem(ctx context.Context, itemID string) (domain.RefundRequest, error)
	Update(ctx context.Context, request domain.RefundRequest, expected domain.RefundStatus) error
	ListPendingBySeller(ctx context.Context, sellerID string) ([]domain.RefundRequest, error)
}

// StockRepository backs the default (co-located) inventory adapter: per-product
// stock documents with transactional reserve/release increments.
type StockRepository interface {
	Reserve(ctx context.Context, productID string, quantity int) error
	Release(ctx context.Context, productID string, quantity int) error
}

// HealthRepository reports backend connectivity for readiness probes.
type HealthRepository interface {
	Ping(ctx context.Context) error
}
