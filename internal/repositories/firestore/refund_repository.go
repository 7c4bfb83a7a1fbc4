package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/marketstall/api/internal/domain"
	pfirestore "github.com/marketstall/api/internal/platform/firestore"
	"github.com/marketstall/api/internal/repositories"
)

const refundRequestsCollection = "refundRequests"

type refundDocument struct {
	OrderID         string     `firestore:"orderId"`
	OrderItemID     string     `firestore:"orderItemId"`
	CustomerID      string     `firestore:"customerId"`
	SellerID        string     `firestore:"sellerId"`
	Reason          string     `firestore:"reason"`
	Status          string     `firestore:"status"`
	Amount          int64      `firestore:"amount"`
	RejectionReason *string    `firestore:"rejectionReason"`
	RequestedAt     time.Time  `firestore:"requestedAt"`
	ProcessedAt     *time.Time `firestore:"processedAt"`
}

func newRefundDocument(request domain.RefundRequest) refundDocument {
	return refundDocument{
		OrderID:         request.OrderID,
		OrderItemID:     request.OrderItemID,
		CustomerID:      request.CustomerID,
		SellerID:        request.SellerID,
		Reason:          request.Reason,
		Status:          string(request.Status),
		Amount:          request.Amount,
		RejectionReason: request.RejectionReason,
		RequestedAt:     request.RequestedAt,
		ProcessedAt:     request.ProcessedAt,
	}
}

func (d refundDocument) toDomain(id string) domain.RefundRequest {
	return domain.RefundRequest{
		ID:              id,
		OrderID:         d.OrderID,
		OrderItemID:     d.OrderItemID,
		CustomerID:      d.CustomerID,
		SellerID:        d.SellerID,
		Reason:          d.Reason,
		Status:          domain.RefundStatus(d.Status),
		Amount:          d.Amount,
		RejectionReason: d.RejectionReason,
		RequestedAt:     d.RequestedAt,
		ProcessedAt:     d.ProcessedAt,
	}
}

// RefundRepository persists refund requests in the refundRequests collection.
type RefundRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[refundDocument]
}

// NewRefundRepository constructs the Firestore-backed refund repository.
func NewRefundRepository(provider *pfirestore.Provider) (*RefundRepository, error) {
	if provider == nil {
		return nil, errors.New("refund repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[refundDocument](provider, refundRequestsCollection, nil, nil)
	return &RefundRepository{provider: provider, base: base}, nil
}

func (r *RefundRepository) Insert(ctx context.Context, request domain.RefundRequest) error {
	if strings.TrimSpace(request.ID) == "" {
		return errors.New("refund insert: request id is required")
	}
	doc := newRefundDocument(request)
	return runWrite(ctx, r.provider, func(ctx context.Context, state *txState) error {
		ref, err := r.base.DocumentRef(ctx, request.ID)
		if err != nil {
			return err
		}
		state.enqueue(func(tx *firestore.Transaction) error {
			return pfirestore.WrapError("refunds.create", tx.Create(ref, doc))
		})
		return nil
	})
}

func (r *RefundRepository) FindByID(ctx context.Context, requestID string) (domain.RefundRequest, error) {
	doc, err := r.base.Get(ctx, requestID)
	if err != nil {
		return domain.RefundRequest{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *RefundRepository) FindLatestByItem(ctx context.Context, itemID string) (domain.RefundRequest, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return domain.RefundRequest{}, errors.New("refund lookup: item id is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderItemId", "==", itemID).OrderBy("requestedAt", firestore.Desc).Limit(1)
	})
	if err != nil {
		return domain.RefundRequest{}, err
	}
	if len(docs) == 0 {
		return domain.RefundRequest{}, repositories.NewError(repositories.ErrorKindNotFound, fmt.Sprintf("no refund request for item %s", itemID), nil)
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// Update rewrites the request after verifying the stored status still matches
// what the caller read. A mismatch surfaces as a conflict.
func (r *RefundRepository) Update(ctx context.Context, request domain.RefundRequest, expected domain.RefundStatus) error {
	if strings.TrimSpace(request.ID) == "" {
		return errors.New("refund update: request id is required")
	}

	doc := newRefundDocument(request)
	return runWrite(ctx, r.provider, func(ctx context.Context, state *txState) error {
		ref, err := r.base.DocumentRef(ctx, request.ID)
		if err != nil {
			return err
		}
		snap, err := state.tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError("refunds.get", err)
		}
		var stored refundDocument
		if err := snap.DataTo(&stored); err != nil {
			return fmt.Errorf("decode refund request %s: %w", request.ID, err)
		}
		if stored.Status != string(expected) {
			return repositories.NewError(repositories.ErrorKindConflict,
				fmt.Sprintf("refund request %s: status is %s, expected %s", request.ID, stored.Status, expected), nil)
		}
		state.enqueue(func(tx *firestore.Transaction) error {
			return pfirestore.WrapError("refunds.set", tx.Set(ref, doc))
		})
		return nil
	})
}

func (r *RefundRepository) ListPendingBySeller(ctx context.Context, sellerID string) ([]domain.RefundRequest, error) {
	sellerID = strings.TrimSpace(sellerID)
	if sellerID == "" {
		return nil, errors.New("refund list: seller id is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.
			Where("sellerId", "==", sellerID).
			Where("status", "==", string(domain.RefundStatusPendingApproval)).
			OrderBy("requestedAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	requests := make([]domain.RefundRequest, 0, len(docs))
	for _, doc := range docs {
		requests = append(requests, doc.Data.toDomain(doc.ID))
	}
	return requests, nil
}
