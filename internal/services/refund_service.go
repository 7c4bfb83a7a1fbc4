package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/marketstall/api/internal/domain"
	"github.com/marketstall/api/internal/repositories"
)

const (
	eventRefundRequested = "order.refund.requested"
	eventRefundCompleted = "order.refund.completed"
	eventRefundRejected  = "order.refund.rejected"

	refundIDPrefix = "rfd_"
)

// RefundServiceDeps bundles collaborators required to construct the refund service.
type RefundServiceDeps struct {
	Orders      repositories.OrderRepository
	Refunds     repositories.RefundRepository
	Inventory   InventoryAdapter
	Payments    PaymentRefunder
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      LifecycleEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type refundService struct {
	orders     repositories.OrderRepository
	refunds    repositories.RefundRepository
	inventory  InventoryAdapter
	payments   PaymentRefunder
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     LifecycleEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewRefundService wires dependencies into a concrete RefundService implementation.
func NewRefundService(deps RefundServiceDeps) (RefundService, error) {
	if deps.Orders == nil {
		return nil, errors.New("refund service: order repository is required")
	}
	if deps.Refunds == nil {
		return nil, errors.New("refund service: refund repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("refund service: inventory adapter is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("refund service: payment refunder is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &refundService{
		orders:     deps.Orders,
		refunds:    deps.Refunds,
		inventory:  deps.Inventory,
		payments:   deps.Payments,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *refundService) RequestRefund(ctx context.Context, cmd RequestRefundCommand) (domain.RefundRequest, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	itemID := strings.TrimSpace(cmd.ItemID)
	customerID := strings.TrimSpace(cmd.CustomerID)
	reason := strings.TrimSpace(cmd.Reason)

	if orderID == "" {
		return domain.RefundRequest{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	if itemID == "" {
		return domain.RefundRequest{}, fmt.Errorf("%w: item id is required", ErrInvalidInput)
	}
	if customerID == "" {
		return domain.RefundRequest{}, fmt.Errorf("%w: customer id is required", ErrInvalidInput)
	}
	if reason == "" {
		return domain.RefundRequest{}, fmt.Errorf("%w: reason is required", ErrInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.RefundRequest{}, mapRepositoryError(err)
	}
	item, ok := findItem(order, itemID)
	if !ok {
		return domain.RefundRequest{}, fmt.Errorf("%w: item %s", ErrNotFound, itemID)
	}

	if order.CustomerID != customerID {
		return domain.RefundRequest{}, fmt.Errorf("%w: order %s does not belong to customer %s", ErrForbidden, orderID, customerID)
	}

	if item.Status != domain.ItemStatusDelivered {
		return domain.RefundRequest{}, transitionConflict(itemID, item.Status, item.Status, "refunds require a delivered item")
	}

	latest, err := s.refunds.FindLatestByItem(ctx, itemID)
	switch {
	case err == nil:
		if latest.Open() {
			return domain.RefundRequest{}, fmt.Errorf("%w: item %s already has an open refund request %s", ErrConflict, itemID, latest.ID)
		}
		if latest.Status == domain.RefundStatusCompleted {
			return domain.RefundRequest{}, fmt.Errorf("%w: item %s has already been refunded", ErrConflict, itemID)
		}
		// A rejected request does not block a new one.
	case isNotFound(err):
		// First request for this item.
	default:
		return domain.RefundRequest{}, mapRepositoryError(err)
	}

	now := s.now()
	request := domain.RefundRequest{
		ID:          refundIDPrefix + s.newID(),
		OrderID:     order.ID,
		OrderItemID: item.ID,
		CustomerID:  order.CustomerID,
		SellerID:    item.Product.SellerID,
		Reason:      reason,
		Status:      domain.RefundStatusPendingApproval,
		Amount:      item.LineTotal(),
		RequestedAt: now,
	}

	updated := item
	updated.RefundID = &request.ID
	updated.UpdatedAt = now

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.refunds.Insert(txCtx, request); err != nil {
			return mapRepositoryError(err)
		}
		if err := s.orders.UpdateItem(txCtx, updated, item.Status); err != nil {
			return mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return domain.RefundRequest{}, err
	}

	s.publishEvent(ctx, LifecycleEvent{
		Type:          eventRefundRequested,
		OrderID:       order.ID,
		ItemID:        item.ID,
		RefundID:      request.ID,
		CurrentStatus: string(request.Status),
		ActorID:       customerID,
		ActorRole:     string(domain.RoleCustomer),
		OccurredAt:    now,
		Metadata: map[string]any{
			"amount":   request.Amount,
			"sellerId": request.SellerID,
		},
	})

	return request, nil
}

func (s *refundService) ApproveRefund(ctx context.Context, cmd AdjudicateRefundCommand) (domain.RefundRequest, error) {
	order, item, request, err := s.openRequestForAdjudication(ctx, cmd)
	if err != nil {
		return domain.RefundRequest{}, err
	}

	// The provider call happens before any write: if it fails, the request
	// stays open and the caller can retry the approval. The request ID keys
	// the provider call so a retry after a failed write cannot move money
	// twice.
	result, err := s.payments.Refund(ctx, RefundPaymentRequest{
		PaymentIntentID: order.PaymentIntentID,
		Amount:          request.Amount,
		Currency:        order.Currency,
		Reason:          request.Reason,
		IdempotencyKey:  request.ID,
	})
	if err != nil {
		return domain.RefundRequest{}, fmt.Errorf("%w: payment refund: %v", ErrDependencyFailure, err)
	}

	now := s.now()
	completed := request
	completed.Status = domain.RefundStatusCompleted
	completed.ProcessedAt = &now

	updated := item
	updated.UpdatedAt = now
	releasing := !item.StockReleased
	if releasing {
		updated.StockReleased = true
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if releasing {
			if err := s.inventory.Release(txCtx, item.Product.ProductID, item.Quantity); err != nil {
				return fmt.Errorf("%w: inventory: product %s: %v", ErrDependencyFailure, item.Product.ProductID, err)
			}
		}
		if err := s.refunds.Update(txCtx, completed, domain.RefundStatusPendingApproval); err != nil {
			return mapRepositoryError(err)
		}
		if err := s.orders.UpdateItem(txCtx, updated, item.Status); err != nil {
			return mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		s.logger(ctx, "order.refund.persist.failed", map[string]any{
			"refund":         request.ID,
			"item":           item.ID,
			"providerRefund": result.ProviderRefundID,
			"error":          err.Error(),
		})
		return domain.RefundRequest{}, err
	}

	s.publishEvent(ctx, LifecycleEvent{
		Type:           eventRefundCompleted,
		OrderID:        order.ID,
		ItemID:         item.ID,
		RefundID:       request.ID,
		PreviousStatus: string(domain.RefundStatusPendingApproval),
		CurrentStatus:  string(domain.RefundStatusCompleted),
		ActorID:        cmd.Actor.UserID,
		ActorRole:      string(cmd.Actor.Role),
		OccurredAt:     now,
		Metadata: map[string]any{
			"amount":           request.Amount,
			"providerRefundId": result.ProviderRefundID,
			"stockReleased":    releasing,
		},
	})

	return completed, nil
}

func (s *refundService) RejectRefund(ctx context.Context, cmd AdjudicateRefundCommand) (domain.RefundRequest, error) {
	order, item, request, err := s.openRequestForAdjudication(ctx, cmd)
	if err != nil {
		return domain.RefundRequest{}, err
	}

	reason := strings.TrimSpace(cmd.RejectionReason)
	if reason == "" {
		return domain.RefundRequest{}, fmt.Errorf("%w: rejection reason is required", ErrInvalidInput)
	}

	now := s.now()
	rejected := request
	rejected.Status = domain.RefundStatusRejected
	rejected.RejectionReason = &reason
	rejected.ProcessedAt = &now

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.refunds.Update(txCtx, rejected, domain.RefundStatusPendingApproval); err != nil {
			return mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return domain.RefundRequest{}, err
	}

	s.publishEvent(ctx, LifecycleEvent{
		Type:           eventRefundRejected,
		OrderID:        order.ID,
		ItemID:         item.ID,
		RefundID:       request.ID,
		PreviousStatus: string(domain.RefundStatusPendingApproval),
		CurrentStatus:  string(domain.RefundStatusRejected),
		ActorID:        cmd.Actor.UserID,
		ActorRole:      string(cmd.Actor.Role),
		OccurredAt:     now,
		Metadata:       map[string]any{"rejectionReason": reason},
	})

	return rejected, nil
}

// openRequestForAdjudication loads the item's latest refund request and checks
// that the actor may adjudicate it and that it is still open.
func (s *refundService) openRequestForAdjudication(ctx context.Context, cmd AdjudicateRefundCommand) (domain.Order, domain.OrderItem, domain.RefundRequest, error) {
	itemID := strings.TrimSpace(cmd.ItemID)
	if itemID == "" {
		return domain.Order{}, domain.OrderItem{}, domain.RefundRequest{}, fmt.Errorf("%w: item id is required", ErrInvalidInput)
	}

	order, err := s.orders.FindByItemID(ctx, itemID)
	if err != nil {
		return domain.Order{}, domain.OrderItem{}, domain.RefundRequest{}, mapRepositoryError(err)
	}
	item, ok := findItem(order, itemID)
	if !ok {
		return domain.Order{}, domain.OrderItem{}, domain.RefundRequest{}, fmt.Errorf("%w: item %s", ErrNotFound, itemID)
	}

	switch cmd.Actor.Role {
	case domain.RoleAdmin:
	case domain.RoleSeller:
		if item.Product.SellerID != cmd.Actor.UserID {
			return domain.Order{}, domain.OrderItem{}, domain.RefundRequest{}, fmt.Errorf("%w: item %s does not belong to seller %s", ErrForbidden, itemID, cmd.Actor.UserID)
		}
	default:
		return domain.Order{}, domain.OrderItem{}, domain.RefundRequest{}, fmt.Errorf("%w: %s may not adjudicate refunds", ErrForbidden, cmd.Actor.Role)
	}

	request, err := s.refunds.FindLatestByItem(ctx, itemID)
	if err != nil {
		return domain.Order{}, domain.OrderItem{}, domain.RefundRequest{}, mapRepositoryError(err)
	}
	if !request.Open() {
		return domain.Order{}, domain.OrderItem{}, domain.RefundRequest{}, fmt.Errorf("%w: refund request %s is %s", ErrConflict, request.ID, request.Status)
	}

	return order, item, request, nil
}

func (s *refundService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *refundService) now() time.Time {
	return s.clock()
}

func (s *refundService) publishEvent(ctx context.Context, event LifecycleEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishLifecycleEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"item":   event.ItemID,
			"refund": event.RefundID,
			"error":  err.Error(),
		})
	}
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
