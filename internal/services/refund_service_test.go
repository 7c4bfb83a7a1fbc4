package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/marketstall/api/internal/domain"
)

func newTestRefundService(t *testing.T, orders *stubOrderRepo, refunds *stubRefundRepo, inventory *stubInventory, payments *stubRefunder, events *captureEvents, now time.Time) RefundService {
	t.Helper()
	svc, err := NewRefundService(RefundServiceDeps{
		Orders:      orders,
		Refunds:     refunds,
		Inventory:   inventory,
		Payments:    payments,
		UnitOfWork:  &stubUnitOfWork{},
		Clock:       func() time.Time { return now },
		IDGenerator: func() string { return "000TEST" },
		Events:      events,
	})
	if err != nil {
		t.Fatalf("new refund service: %v", err)
	}
	return svc
}

func pendingRefund(itemID string) domain.RefundRequest {
	return domain.RefundRequest{
		ID:          "rfd_1",
		OrderID:     "ord_1",
		OrderItemID: itemID,
		CustomerID:  "cust-1",
		SellerID:    "sell-1",
		Reason:      "damaged on arrival",
		Status:      domain.RefundStatusPendingApproval,
		Amount:      3000,
		RequestedAt: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
	}
}

func TestRefundServiceRequestRefund(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	order := testOrder(domain.ItemStatusDelivered)
	var insertedRequest domain.RefundRequest
	var writtenItem domain.OrderItem
	var expectedStatus domain.ItemStatus
	events := &captureEvents{}

	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) { return order, nil },
		updateItemFn: func(_ context.Context, item domain.OrderItem, expected domain.ItemStatus) error {
			writtenItem = item
			expectedStatus = expected
			return nil
		},
	}
	refunds := &stubRefundRepo{
		insertFn: func(_ context.Context, request domain.RefundRequest) error {
			insertedRequest = request
			return nil
		},
	}
	svc := newTestRefundService(t, orders, refunds, &stubInventory{}, &stubRefunder{}, events, now)

	request, err := svc.RequestRefund(ctx, RequestRefundCommand{
		OrderID:    "ord_1",
		ItemID:     "itm_1",
		CustomerID: "cust-1",
		Reason:     "damaged on arrival",
	})
	if err != nil {
		t.Fatalf("request refund: %v", err)
	}
	if request.ID != "rfd_000TEST" {
		t.Fatalf("unexpected refund id %s", request.ID)
	}
	if request.Status != domain.RefundStatusPendingApproval {
		t.Fatalf("expected pending_approval got %s", request.Status)
	}
	if request.Amount != 3000 {
		t.Fatalf("expected amount 3000 got %d", request.Amount)
	}
	if request.SellerID != "sell-1" {
		t.Fatalf("expected seller sell-1 got %s", request.SellerID)
	}
	if insertedRequest.ID != request.ID {
		t.Fatalf("request was not persisted")
	}
	if writtenItem.RefundID == nil || *writtenItem.RefundID != request.ID {
		t.Fatalf("item refund reference not written: %+v", writtenItem.RefundID)
	}
	if writtenItem.Status != domain.ItemStatusDelivered || expectedStatus != domain.ItemStatusDelivered {
		t.Fatalf("item status must stay delivered, wrote %s expecting %s", writtenItem.Status, expectedStatus)
	}
	if len(events.events) != 1 || events.events[0].Type != eventRefundRequested {
		t.Fatalf("expected refund requested event, got %+v", events.events)
	}
}

func TestRefundServiceRequestRefundRequiresDelivered(t *testing.T) {
	ctx := context.Background()
	order := testOrder(domain.ItemStatusShipped)
	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) { return order, nil },
	}
	svc := newTestRefundService(t, orders, &stubRefundRepo{}, &stubInventory{}, &stubRefunder{}, nil, time.Now())

	_, err := svc.RequestRefund(ctx, RequestRefundCommand{OrderID: "ord_1", ItemID: "itm_1", CustomerID: "cust-1", Reason: "late"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRefundServiceRequestRefundOwnership(t *testing.T) {
	ctx := context.Background()
	order := testOrder(domain.ItemStatusDelivered)
	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) { return order, nil },
	}
	svc := newTestRefundService(t, orders, &stubRefundRepo{}, &stubInventory{}, &stubRefunder{}, nil, time.Now())

	_, err := svc.RequestRefund(ctx, RequestRefundCommand{OrderID: "ord_1", ItemID: "itm_1", CustomerID: "cust-2", Reason: "not mine"})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestRefundServiceRequestRefundDuplicateHandling(t *testing.T) {
	ctx := context.Background()
	order := testOrder(domain.ItemStatusDelivered)

	run := func(latest domain.RefundRequest, latestErr error) error {
		orders := &stubOrderRepo{
			findFn: func(context.Context, string) (domain.Order, error) { return order, nil },
		}
		refunds := &stubRefundRepo{
			findLatestFn: func(context.Context, string) (domain.RefundRequest, error) {
				if latestErr != nil {
					return domain.RefundRequest{}, latestErr
				}
				return latest, nil
			},
		}
		svc := newTestRefundService(t, orders, refunds, &stubInventory{}, &stubRefunder{}, nil, time.Now())
		_, err := svc.RequestRefund(ctx, RequestRefundCommand{OrderID: "ord_1", ItemID: "itm_1", CustomerID: "cust-1", Reason: "retry"})
		return err
	}

	open := pendingRefund("itm_1")
	if err := run(open, nil); !errors.Is(err, ErrConflict) {
		t.Fatalf("open request: expected conflict, got %v", err)
	}

	completed := pendingRefund("itm_1")
	completed.Status = domain.RefundStatusCompleted
	if err := run(completed, nil); !errors.Is(err, ErrConflict) {
		t.Fatalf("completed request: expected conflict, got %v", err)
	}

	rejected := pendingRefund("itm_1")
	rejected.Status = domain.RefundStatusRejected
	if err := run(rejected, nil); err != nil {
		t.Fatalf("rejected request must allow a new one, got %v", err)
	}

	if err := run(domain.RefundRequest{}, notFoundErr("no refund request")); err != nil {
		t.Fatalf("first request: %v", err)
	}
}

func TestRefundServiceApproveRefund(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 15, 11, 30, 0, 0, time.UTC)
	order := testOrder(domain.ItemStatusDelivered)
	var paid RefundPaymentRequest
	var updatedRequest domain.RefundRequest
	var expectedRefundStatus domain.RefundStatus
	var writtenItem domain.OrderItem
	releases := 0
	events := &captureEvents{}

	orders := &stubOrderRepo{
		findByItemFn: func(context.Context, string) (domain.Order, error) { return order, nil },
		updateItemFn: func(_ context.Context, item domain.OrderItem, _ domain.ItemStatus) error {
			writtenItem = item
			return nil
		},
	}
	refunds := &stubRefundRepo{
		findLatestFn: func(context.Context, string) (domain.RefundRequest, error) {
			return pendingRefund("itm_1"), nil
		},
		updateFn: func(_ context.Context, request domain.RefundRequest, expected domain.RefundStatus) error {
			updatedRequest = request
			expectedRefundStatus = expected
			return nil
		},
	}
	inventory := &stubInventory{
		releaseFn: func(context.Context, string, int) error {
			releases++
			return nil
		},
	}
	payments := &stubRefunder{
		refundFn: func(_ context.Context, req RefundPaymentRequest) (RefundPaymentResult, error) {
			paid = req
			return RefundPaymentResult{ProviderRefundID: "re_1"}, nil
		},
	}
	svc := newTestRefundService(t, orders, refunds, inventory, payments, events, now)

	request, err := svc.ApproveRefund(ctx, AdjudicateRefundCommand{
		ItemID: "itm_1",
		Actor:  domain.Actor{UserID: "sell-1", Role: domain.RoleSeller},
	})
	if err != nil {
		t.Fatalf("approve refund: %v", err)
	}
	if request.Status != domain.RefundStatusCompleted {
		t.Fatalf("expected completed got %s", request.Status)
	}
	if request.ProcessedAt == nil || !request.ProcessedAt.Equal(now) {
		t.Fatalf("expected processedAt %v got %v", now, request.ProcessedAt)
	}
	if paid.PaymentIntentID != "pi_1" || paid.Amount != 3000 || paid.Currency != "USD" {
		t.Fatalf("unexpected payment refund request %+v", paid)
	}
	if paid.IdempotencyKey != "rfd_1" {
		t.Fatalf("expected refund request id as idempotency key, got %q", paid.IdempotencyKey)
	}
	if updatedRequest.Status != domain.RefundStatusCompleted || expectedRefundStatus != domain.RefundStatusPendingApproval {
		t.Fatalf("unexpected refund write %s expecting %s", updatedRequest.Status, expectedRefundStatus)
	}
	if releases != 1 {
		t.Fatalf("expected one inventory release, got %d", releases)
	}
	if !writtenItem.StockReleased {
		t.Fatalf("expected item stockReleased persisted")
	}
	if writtenItem.Status != domain.ItemStatusDelivered {
		t.Fatalf("item status must stay delivered, got %s", writtenItem.Status)
	}
	if len(events.events) != 1 || events.events[0].Type != eventRefundCompleted {
		t.Fatalf("expected refund completed event, got %+v", events.events)
	}
}

func TestRefundServiceApproveRefundSkipsReleaseWhenAlreadyReleased(t *testing.T) {
	ctx := context.Background()
	order := testOrder(domain.ItemStatusDelivered)
	order.Items[0].StockReleased = true
	releases := 0

	orders := &stubOrderRepo{
		findByItemFn: func(context.Context, string) (domain.Order, error) { return order, nil },
	}
	refunds := &stubRefundRepo{
		findLatestFn: func(context.Context, string) (domain.RefundRequest, error) {
			return pendingRefund("itm_1"), nil
		},
	}
	inventory := &stubInventory{
		releaseFn: func(context.Context, string, int) error {
			releases++
			return nil
		},
	}
	svc := newTestRefundService(t, orders, refunds, inventory, &stubRefunder{}, nil, time.Now())

	if _, err := svc.ApproveRefund(ctx, AdjudicateRefundCommand{
		ItemID: "itm_1",
		Actor:  domain.Actor{UserID: "admin-1", Role: domain.RoleAdmin},
	}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if releases != 0 {
		t.Fatalf("expected no release for already released item, got %d", releases)
	}
}

func TestRefundServiceApproveRefundPaymentFailureAborts(t *testing.T) {
	ctx := context.Background()
	order := testOrder(domain.ItemStatusDelivered)
	updates := 0

	orders := &stubOrderRepo{
		findByItemFn: func(context.Context, string) (domain.Order, error) { return order, nil },
		updateItemFn: func(context.Context, domain.OrderItem, domain.ItemStatus) error {
			updates++
			return nil
		},
	}
	refunds := &stubRefundRepo{
		findLatestFn: func(context.Context, string) (domain.RefundRequest, error) {
			return pendingRefund("itm_1"), nil
		},
		updateFn: func(context.Context, domain.RefundRequest, domain.RefundStatus) error {
			updates++
			return nil
		},
	}
	payments := &stubRefunder{
		refundFn: func(context.Context, RefundPaymentRequest) (RefundPaymentResult, error) {
			return RefundPaymentResult{}, errors.New("provider declined")
		},
	}
	svc := newTestRefundService(t, orders, refunds, &stubInventory{}, payments, nil, time.Now())

	_, err := svc.ApproveRefund(ctx, AdjudicateRefundCommand{
		ItemID: "itm_1",
		Actor:  domain.Actor{UserID: "sell-1", Role: domain.RoleSeller},
	})
	if !errors.Is(err, ErrDependencyFailure) {
		t.Fatalf("expected dependency failure, got %v", err)
	}
	if updates != 0 {
		t.Fatalf("expected no writes after payment failure, got %d", updates)
	}
}

func TestRefundServiceAdjudicationAuthorisation(t *testing.T) {
	ctx := context.Background()
	order := testOrder(domain.ItemStatusDelivered)
	orders := &stubOrderRepo{
		findByItemFn: func(context.Context, string) (domain.Order, error) { return order, nil },
	}
	refunds := &stubRefundRepo{
		findLatestFn: func(context.Context, string) (domain.RefundRequest, error) {
			return pendingRefund("itm_1"), nil
		},
	}
	svc := newTestRefundService(t, orders, refunds, &stubInventory{}, &stubRefunder{}, nil, time.Now())

	if _, err := svc.ApproveRefund(ctx, AdjudicateRefundCommand{
		ItemID: "itm_1",
		Actor:  domain.Actor{UserID: "sell-9", Role: domain.RoleSeller},
	}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign seller: expected forbidden, got %v", err)
	}
	if _, err := svc.RejectRefund(ctx, AdjudicateRefundCommand{
		ItemID:          "itm_1",
		Actor:           domain.Actor{UserID: "cust-1", Role: domain.RoleCustomer},
		RejectionReason: "no",
	}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("customer: expected forbidden, got %v", err)
	}
}

func TestRefundServiceRejectRefund(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC)
	order := testOrder(domain.ItemStatusDelivered)
	var updatedRequest domain.RefundRequest
	itemWrites := 0
	events := &captureEvents{}

	orders := &stubOrderRepo{
		findByItemFn: func(context.Context, string) (domain.Order, error) { return order, nil },
		updateItemFn: func(context.Context, domain.OrderItem, domain.ItemStatus) error {
			itemWrites++
			return nil
		},
	}
	refunds := &stubRefundRepo{
		findLatestFn: func(context.Context, string) (domain.RefundRequest, error) {
			return pendingRefund("itm_1"), nil
		},
		updateFn: func(_ context.Context, request domain.RefundRequest, _ domain.RefundStatus) error {
			updatedRequest = request
			return nil
		},
	}
	svc := newTestRefundService(t, orders, refunds, &stubInventory{}, &stubRefunder{}, events, now)

	request, err := svc.RejectRefund(ctx, AdjudicateRefundCommand{
		ItemID:          "itm_1",
		Actor:           domain.Actor{UserID: "sell-1", Role: domain.RoleSeller},
		RejectionReason: "wear and tear is not covered",
	})
	if err != nil {
		t.Fatalf("reject refund: %v", err)
	}
	if request.Status != domain.RefundStatusRejected {
		t.Fatalf("expected rejected got %s", request.Status)
	}
	if request.RejectionReason == nil || *request.RejectionReason != "wear and tear is not covered" {
		t.Fatalf("rejection reason not recorded: %+v", request.RejectionReason)
	}
	if updatedRequest.Status != domain.RefundStatusRejected {
		t.Fatalf("rejection was not persisted")
	}
	if itemWrites != 0 {
		t.Fatalf("rejection must not touch the item, got %d writes", itemWrites)
	}
	if len(events.events) != 1 || events.events[0].Type != eventRefundRejected {
		t.Fatalf("expected refund rejected event, got %+v", events.events)
	}
}

func TestRefundServiceAdjudicateClosedRequest(t *testing.T) {
	ctx := context.Background()
	order := testOrder(domain.ItemStatusDelivered)
	closed := pendingRefund("itm_1")
	closed.Status = domain.RefundStatusRejected

	orders := &stubOrderRepo{
		findByItemFn: func(context.Context, string) (domain.Order, error) { return order, nil },
	}
	refunds := &stubRefundRepo{
		findLatestFn: func(context.Context, string) (domain.RefundRequest, error) { return closed, nil },
	}
	svc := newTestRefundService(t, orders, refunds, &stubInventory{}, &stubRefunder{}, nil, time.Now())

	if _, err := svc.ApproveRefund(ctx, AdjudicateRefundCommand{
		ItemID: "itm_1",
		Actor:  domain.Actor{UserID: "admin-1", Role: domain.RoleAdmin},
	}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}
