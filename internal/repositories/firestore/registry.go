package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/marketstall/api/internal/platform/firestore"
	"github.com/marketstall/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry interface and doubles as the unit of work: RunInTx
// opens one Firestore transaction and threads it to every repository call
// made within fn.
type Registry struct {
	provider *pfirestore.Provider
	orders   *OrderRepository
	refunds  *RefundRepository
	stocks   *StockRepository
	health   repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs all Firestore repositories on a shared provider.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	refunds, err := NewRefundRepository(provider)
	if err != nil {
		return nil, err
	}
	stocks, err := NewStockRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider: provider,
		orders:   orders,
		refunds:  refunds,
		stocks:   stocks,
		health:   health,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}

// Orders returns the order repository.
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

// Refunds returns the refund request repository.
func (r *Registry) Refunds() repositories.RefundRepository { return r.refunds }

// Stocks returns the stock repository.
func (r *Registry) Stocks() repositories.StockRepository { return r.stocks }

// Health returns the readiness probe repository.
func (r *Registry) Health() repositories.HealthRepository { return r.health }

// RunInTx executes fn inside a single Firestore transaction. Repository reads
// issued within fn hit the transaction directly; writes are queued and flushed
// once fn returns, satisfying Firestore's reads-before-writes rule.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("registry: transaction function is required")
	}
	if _, ok := txStateFrom(ctx); ok {
		// Already transactional; nested calls join the outer transaction.
		return fn(ctx)
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		state := &txState{tx: tx}
		if err := fn(withTxState(ctx, state)); err != nil {
			return err
		}
		return state.flush()
	})
}
