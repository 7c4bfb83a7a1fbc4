package services

import (
	"testing"

	domain "github.com/marketstall/api/internal/domain"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		name    string
		from    domain.ItemStatus
		to      domain.ItemStatus
		allowed bool
	}{
		{name: "pending to preparing", from: domain.ItemStatusPending, to: domain.ItemStatusPreparing, allowed: true},
		{name: "pending to customer cancel", from: domain.ItemStatusPending, to: domain.ItemStatusCanceled, allowed: true},
		{name: "preparing to processing", from: domain.ItemStatusPreparing, to: domain.ItemStatusProcessing, allowed: true},
		{name: "processing to shipped", from: domain.ItemStatusProcessing, to: domain.ItemStatusShipped, allowed: true},
		{name: "shipped to delivered", from: domain.ItemStatusShipped, to: domain.ItemStatusDelivered, allowed: true},
		{name: "delivered to return requested", from: domain.ItemStatusDelivered, to: domain.ItemStatusReturnRequested, allowed: true},
		{name: "return requested to approved", from: domain.ItemStatusReturnRequested, to: domain.ItemStatusReturnApproved, allowed: true},
		{name: "return approved to returned", from: domain.ItemStatusReturnApproved, to: domain.ItemStatusReturned, allowed: true},
		{name: "exchange requested to rejected", from: domain.ItemStatusExchangeRequested, to: domain.ItemStatusExchangeRejected, allowed: true},

		{name: "same state", from: domain.ItemStatusPending, to: domain.ItemStatusPending, allowed: false},
		{name: "skip preparing", from: domain.ItemStatusPending, to: domain.ItemStatusProcessing, allowed: false},
		{name: "backward", from: domain.ItemStatusDelivered, to: domain.ItemStatusShipped, allowed: false},
		{name: "customer cancel after processing", from: domain.ItemStatusProcessing, to: domain.ItemStatusCanceled, allowed: false},
		{name: "customer cancel after shipped", from: domain.ItemStatusShipped, to: domain.ItemStatusCanceled, allowed: false},
		{name: "out of terminal", from: domain.ItemStatusReturned, to: domain.ItemStatusDelivered, allowed: false},
		{name: "return without delivery", from: domain.ItemStatusShipped, to: domain.ItemStatusReturnRequested, allowed: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := canTransition(tc.from, tc.to); got != tc.allowed {
				t.Fatalf("canTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.allowed)
			}
		})
	}
}

func TestRoleAllowsTarget(t *testing.T) {
	cases := []struct {
		name    string
		role    domain.Role
		target  domain.ItemStatus
		allowed bool
	}{
		{name: "customer cancels", role: domain.RoleCustomer, target: domain.ItemStatusCanceled, allowed: true},
		{name: "customer requests return", role: domain.RoleCustomer, target: domain.ItemStatusReturnRequested, allowed: true},
		{name: "customer requests exchange", role: domain.RoleCustomer, target: domain.ItemStatusExchangeRequested, allowed: true},
		{name: "customer ships", role: domain.RoleCustomer, target: domain.ItemStatusShipped, allowed: false},
		{name: "customer adjudicates", role: domain.RoleCustomer, target: domain.ItemStatusReturnApproved, allowed: false},

		{name: "seller prepares", role: domain.RoleSeller, target: domain.ItemStatusPreparing, allowed: true},
		{name: "seller processes", role: domain.RoleSeller, target: domain.ItemStatusProcessing, allowed: true},
		{name: "seller delivers", role: domain.RoleSeller, target: domain.ItemStatusDelivered, allowed: true},
		{name: "seller own cancel", role: domain.RoleSeller, target: domain.ItemStatusCanceledBySeller, allowed: true},
		{name: "seller customer cancel", role: domain.RoleSeller, target: domain.ItemStatusCanceled, allowed: false},
		{name: "seller admin cancel", role: domain.RoleSeller, target: domain.ItemStatusCanceledByAdmin, allowed: false},

		{name: "admin own cancel", role: domain.RoleAdmin, target: domain.ItemStatusCanceledByAdmin, allowed: true},
		{name: "admin seller cancel", role: domain.RoleAdmin, target: domain.ItemStatusCanceledBySeller, allowed: false},
		{name: "admin adjudicates exchange", role: domain.RoleAdmin, target: domain.ItemStatusExchangeApproved, allowed: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := roleAllowsTarget(tc.role, tc.target); got != tc.allowed {
				t.Fatalf("roleAllowsTarget(%s, %s) = %v, want %v", tc.role, tc.target, got, tc.allowed)
			}
		})
	}
}

func TestCancelTarget(t *testing.T) {
	if target, ok := cancelTarget(domain.RoleCustomer); !ok || target != domain.ItemStatusCanceled {
		t.Fatalf("customer cancel target = %s, %v", target, ok)
	}
	if target, ok := cancelTarget(domain.RoleSeller); !ok || target != domain.ItemStatusCanceledBySeller {
		t.Fatalf("seller cancel target = %s, %v", target, ok)
	}
	if target, ok := cancelTarget(domain.RoleAdmin); !ok || target != domain.ItemStatusCanceledByAdmin {
		t.Fatalf("admin cancel target = %s, %v", target, ok)
	}
	if _, ok := cancelTarget(domain.Role("support")); ok {
		t.Fatalf("unknown role must not resolve a cancel target")
	}
}

func TestOwnsItem(t *testing.T) {
	order := testOrder(domain.ItemStatusPending)
	item := order.Items[0]

	if !ownsItem(domain.Actor{UserID: "cust-1", Role: domain.RoleCustomer}, order, item) {
		t.Fatalf("order customer must own its items")
	}
	if ownsItem(domain.Actor{UserID: "cust-2", Role: domain.RoleCustomer}, order, item) {
		t.Fatalf("foreign customer must not own the item")
	}
	if !ownsItem(domain.Actor{UserID: "sell-1", Role: domain.RoleSeller}, order, item) {
		t.Fatalf("product seller must own the item")
	}
	if ownsItem(domain.Actor{UserID: "sell-2", Role: domain.RoleSeller}, order, item) {
		t.Fatalf("foreign seller must not own the item")
	}
	if !ownsItem(domain.Actor{UserID: "admin-1", Role: domain.RoleAdmin}, order, item) {
		t.Fatalf("admin must own every item")
	}
}
