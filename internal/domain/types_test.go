package domain

import "testing"

func items(statuses ...ItemStatus) []OrderItem {
	out := make([]OrderItem, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, OrderItem{Status: s})
	}
	return out
}

func TestAggregateStatus(t *testing.T) {
	cases := []struct {
		name     string
		statuses []ItemStatus
		want     OrderStatus
	}{
		{name: "empty order", statuses: nil, want: OrderStatusPending},
		{name: "single pending", statuses: []ItemStatus{ItemStatusPending}, want: OrderStatusPending},
		{name: "least progressed wins", statuses: []ItemStatus{ItemStatusShipped, ItemStatusPreparing}, want: OrderStatusPreparing},
		{name: "all delivered", statuses: []ItemStatus{ItemStatusDelivered, ItemStatusDelivered}, want: OrderStatusDelivered},
		{name: "post delivery counts as delivered", statuses: []ItemStatus{ItemStatusReturnRequested, ItemStatusExchanged}, want: OrderStatusDelivered},
		{name: "cancelled items are ignored", statuses: []ItemStatus{ItemStatusCanceled, ItemStatusShipped}, want: OrderStatusShipped},
		{name: "all cancelled", statuses: []ItemStatus{ItemStatusCanceled, ItemStatusCanceledBySeller, ItemStatusCanceledByAdmin}, want: OrderStatusCanceled},
		{name: "returned is not a cancellation of the order", statuses: []ItemStatus{ItemStatusReturned}, want: OrderStatusDelivered},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := AggregateStatus(items(tc.statuses...)); got != tc.want {
				t.Fatalf("AggregateStatus(%v) = %s, want %s", tc.statuses, got, tc.want)
			}
		})
	}
}

func TestItemStatusPredicates(t *testing.T) {
	if !ItemStatusReturned.Terminal() || !ItemStatusCanceledByAdmin.Terminal() {
		t.Fatalf("expected terminal statuses")
	}
	if ItemStatusDelivered.Terminal() || ItemStatusReturnRequested.Terminal() {
		t.Fatalf("delivered and in-flight requests are not terminal")
	}
	if !ItemStatusCanceledBySeller.Cancellation() || ItemStatusReturned.Cancellation() {
		t.Fatalf("cancellation set mismatch")
	}
	if !ItemStatusReturned.ReleasesStock() || !ItemStatusExchanged.ReleasesStock() || !ItemStatusCanceled.ReleasesStock() {
		t.Fatalf("release set mismatch")
	}
	if ItemStatusReturnRejected.ReleasesStock() {
		t.Fatalf("a rejected return keeps the sale, no release")
	}
	if !ItemStatus("shipped").Valid() || ItemStatus("lost").Valid() {
		t.Fatalf("validity mismatch")
	}
}

func TestRefundRequestPredicates(t *testing.T) {
	open := RefundRequest{Status: RefundStatusPendingApproval}
	if !open.Open() || open.Terminal() {
		t.Fatalf("pending request must be open and not terminal")
	}
	done := RefundRequest{Status: RefundStatusCompleted}
	if done.Open() || !done.Terminal() {
		t.Fatalf("completed request must be terminal")
	}
}

func TestOrderItemLineTotal(t *testing.T) {
	item := OrderItem{Product: ProductSnapshot{UnitPrice: 1250}, Quantity: 3}
	if got := item.LineTotal(); got != 3750 {
		t.Fatalf("LineTotal() = %d, want 3750", got)
	}
}
