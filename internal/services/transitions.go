package services

import (
	"slices"

	domain "github.com/marketstall/api/internal/domain"
)

// itemTransitions is the directed lifecycle graph: for each state, the set of
// direct successors. Anything not listed here is an illegal transition.
var itemTransitions = map[domain.ItemStatus][]domain.ItemStatus{
	domain.ItemStatusPending: {
		domain.ItemStatusPreparing,
		domain.ItemStatusCanceled,
		domain.ItemStatusCanceledBySeller,
		domain.ItemStatusCanceledByAdmin,
	},
	domain.ItemStatusPreparing: {
		domain.ItemStatusProcessing,
		domain.ItemStatusCanceled,
		domain.ItemStatusCanceledBySeller,
		domain.ItemStatusCanceledByAdmin,
	},
	domain.ItemStatusProcessing: {
		domain.ItemStatusShipped,
		domain.ItemStatusCanceledBySeller,
		domain.ItemStatusCanceledByAdmin,
	},
	domain.ItemStatusShipped: {
		domain.ItemStatusDelivered,
		domain.ItemStatusCanceledBySeller,
		domain.ItemStatusCanceledByAdmin,
	},
	domain.ItemStatusDelivered: {
		domain.ItemStatusReturnRequested,
		domain.ItemStatusExchangeRequested,
	},
	domain.ItemStatusReturnRequested: {
		domain.ItemStatusReturnApproved,
		domain.ItemStatusReturnRejected,
	},
	domain.ItemStatusReturnApproved: {
		domain.ItemStatusReturned,
	},
	domain.ItemStatusExchangeRequested: {
		domain.ItemStatusExchangeApproved,
		domain.ItemStatusExchangeRejected,
	},
	domain.ItemStatusExchangeApproved: {
		domain.ItemStatusExchanged,
	},
}

// canTransition reports whether target is a direct successor of current.
// Same-state transitions are rejected; a no-op is a conflict, not a success.
func canTransition(current, target domain.ItemStatus) bool {
	if current == target {
		return false
	}
	return slices.Contains(itemTransitions[current], target)
}

// roleTargets is the single role-to-allowed-target table consulted by every
// authorisation check. The UI layers used to duplicate these lists per modal;
// this table is now the only source of truth.
var roleTargets = map[domain.Role]map[domain.ItemStatus]struct{}{
	domain.RoleCustomer: {
		domain.ItemStatusCanceled:          {},
		domain.ItemStatusReturnRequested:   {},
		domain.ItemStatusExchangeRequested: {},
	},
	domain.RoleSeller: {
		domain.ItemStatusPreparing:         {},
		domain.ItemStatusProcessing:        {},
		domain.ItemStatusShipped:           {},
		domain.ItemStatusDelivered:         {},
		domain.ItemStatusCanceledBySeller:  {},
		domain.ItemStatusReturnApproved:    {},
		domain.ItemStatusReturnRejected:    {},
		domain.ItemStatusReturned:          {},
		domain.ItemStatusExchangeApproved:  {},
		domain.ItemStatusExchangeRejected:  {},
		domain.ItemStatusExchanged:         {},
	},
	domain.RoleAdmin: {
		domain.ItemStatusPreparing:         {},
		domain.ItemStatusProcessing:        {},
		domain.ItemStatusShipped:           {},
		domain.ItemStatusDelivered:         {},
		domain.ItemStatusCanceledByAdmin:   {},
		domain.ItemStatusReturnApproved:    {},
		domain.ItemStatusReturnRejected:    {},
		domain.ItemStatusReturned:          {},
		domain.ItemStatusExchangeApproved:  {},
		domain.ItemStatusExchangeRejected:  {},
		domain.ItemStatusExchanged:         {},
	},
}

// roleAllowsTarget reports whether the role may ever set the target status.
func roleAllowsTarget(role domain.Role, target domain.ItemStatus) bool {
	targets, ok := roleTargets[role]
	if !ok {
		return false
	}
	_, ok = targets[target]
	return ok
}

// cancelTarget maps an actor role to the cancellation status it produces.
func cancelTarget(role domain.Role) (domain.ItemStatus, bool) {
	switch role {
	case domain.RoleCustomer:
		return domain.ItemStatusCanceled, true
	case domain.RoleSeller:
		return domain.ItemStatusCanceledBySeller, true
	case domain.RoleAdmin:
		return domain.ItemStatusCanceledByAdmin, true
	}
	return "", false
}

// ownsItem reports whether the actor's identity covers the given item:
// customers own items of their own orders, sellers own items referencing
// their products, admins own everything.
func ownsItem(actor domain.Actor, order domain.Order, item domain.OrderItem) bool {
	switch actor.Role {
	case domain.RoleCustomer:
		return order.CustomerID == actor.UserID
	case domain.RoleSeller:
		return item.Product.SellerID == actor.UserID
	case domain.RoleAdmin:
		return true
	}
	return false
}
