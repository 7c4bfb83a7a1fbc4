package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/marketstall/api/internal/platform/firestore"
	"github.com/marketstall/api/internal/repositories"
)

const stocksCollection = "stocks"

type stockDocument struct {
	OnHand    int       `firestore:"onHand"`
	Reserved  int       `firestore:"reserved"`
	Available int       `firestore:"available"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func (d *stockDocument) recalculate() {
	d.Available = d.OnHand - d.Reserved
	if d.Available < 0 {
		d.Available = 0
	}
}

// StockRepository backs the co-located inventory adapter with per-product
// stock documents keyed by product id.
type StockRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[stockDocument]
	clock    func() time.Time
}

// NewStockRepository constructs the Firestore-backed stock repository.
func NewStockRepository(provider *pfirestore.Provider) (*StockRepository, error) {
	if provider == nil {
		return nil, errors.New("stock repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[stockDocument](provider, stocksCollection, nil, nil)
	return &StockRepository{provider: provider, base: base, clock: time.Now}, nil
}

// Reserve holds quantity units of the product, failing with a conflict when
// not enough stock is available.
func (r *StockRepository) Reserve(ctx context.Context, productID string, quantity int) error {
	if err := validateStockArgs(productID, quantity); err != nil {
		return err
	}
	return runWrite(ctx, r.provider, func(ctx context.Context, state *txState) error {
		ref, doc, err := r.read(ctx, state, productID)
		if err != nil {
			return err
		}
		if doc.OnHand-doc.Reserved < quantity {
			return repositories.NewError(repositories.ErrorKindConflict,
				fmt.Sprintf("insufficient stock for product %s", productID), nil)
		}
		doc.Reserved += quantity
		doc.UpdatedAt = r.clock().UTC()
		doc.recalculate()
		state.enqueue(func(tx *firestore.Transaction) error {
			return pfirestore.WrapError("stocks.set", tx.Set(ref, doc))
		})
		return nil
	})
}

// Release returns quantity units of the product to the available pool.
func (r *StockRepository) Release(ctx context.Context, productID string, quantity int) error {
	if err := validateStockArgs(productID, quantity); err != nil {
		return err
	}
	return runWrite(ctx, r.provider, func(ctx context.Context, state *txState) error {
		ref, doc, err := r.read(ctx, state, productID)
		if err != nil {
			return err
		}
		doc.Reserved -= quantity
		if doc.Reserved < 0 {
			doc.Reserved = 0
		}
		doc.UpdatedAt = r.clock().UTC()
		doc.recalculate()
		state.enqueue(func(tx *firestore.Transaction) error {
			return pfirestore.WrapError("stocks.set", tx.Set(ref, doc))
		})
		return nil
	})
}

func (r *StockRepository) read(ctx context.Context, state *txState, productID string) (*firestore.DocumentRef, stockDocument, error) {
	ref, err := r.base.DocumentRef(ctx, productID)
	if err != nil {
		return nil, stockDocument{}, err
	}
	snap, err := state.tx.Get(ref)
	if err != nil {
		return nil, stockDocument{}, pfirestore.WrapError("stocks.get", err)
	}
	var doc stockDocument
	if err := snap.DataTo(&doc); err != nil {
		return nil, stockDocument{}, fmt.Errorf("decode stock %s: %w", productID, err)
	}
	return ref, doc, nil
}

func validateStockArgs(productID string, quantity int) error {
	if strings.TrimSpace(productID) == "" {
		return errors.New("stock: product id is required")
	}
	if quantity <= 0 {
		return errors.New("stock: quantity must be positive")
	}
	return nil
}
