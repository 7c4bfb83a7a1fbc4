package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Role identifies the kind of actor issuing a lifecycle operation. The engine
// never authenticates; it only authorises against a supplied role context.
type Role string

const (
	// RoleCustomer is the buyer who placed the order.
	RoleCustomer Role = "customer"
	// RoleSeller owns one or more products referenced by order items.
	RoleSeller Role = "seller"
	// RoleAdmin is marketplace staff with superset permissions.
	RoleAdmin Role = "admin"
)

// Actor carries the identity and role of the caller for a single operation.
type Actor struct {
	UserID string
	Role   Role
}

// ItemStatus enumerates the lifecycle states of a single order item.
type ItemStatus string

const (
	// ItemStatusPending indicates the item was just placed and no seller action happened yet.
	ItemStatusPending ItemStatus = "pending"
	// ItemStatusPreparing indicates the seller acknowledged the item and is preparing it.
	ItemStatusPreparing ItemStatus = "preparing"
	// ItemStatusProcessing indicates the item is packed and in fulfilment processing.
	ItemStatusProcessing ItemStatus = "processing"
	// ItemStatusShipped indicates the item was handed to the carrier.
	ItemStatusShipped ItemStatus = "shipped"
	// ItemStatusDelivered indicates the item reached the customer.
	ItemStatusDelivered ItemStatus = "delivered"

	// ItemStatusCanceled indicates the customer canceled the item before fulfilment progressed.
	ItemStatusCanceled ItemStatus = "canceled"
	// ItemStatusCanceledBySeller indicates the seller canceled the item.
	ItemStatusCanceledBySeller ItemStatus = "canceled_by_seller"
	// ItemStatusCanceledByAdmin indicates marketplace staff canceled the item.
	ItemStatusCanceledByAdmin ItemStatus = "canceled_by_admin"

	// ItemStatusReturnRequested indicates the customer asked to return a delivered item.
	ItemStatusReturnRequested ItemStatus = "return_requested"
	// ItemStatusReturnApproved indicates the return was accepted and goods are on the way back.
	ItemStatusReturnApproved ItemStatus = "return_approved"
	// ItemStatusReturned indicates the returned goods were received back into stock.
	ItemStatusReturned ItemStatus = "returned"
	// ItemStatusReturnRejected indicates the return request was declined.
	ItemStatusReturnRejected ItemStatus = "return_rejected"

	// ItemStatusExchangeRequested indicates the customer asked to exchange a delivered item.
	ItemStatusExchangeRequested ItemStatus = "exchange_requested"
	// ItemStatusExchangeApproved indicates the exchange was accepted.
	ItemStatusExchangeApproved ItemStatus = "exchange_approved"
	// ItemStatusExchanged indicates the exchange completed.
	ItemStatusExchanged ItemStatus = "exchanged"
	// ItemStatusExchangeRejected indicates the exchange request was declined.
	ItemStatusExchangeRejected ItemStatus = "exchange_rejected"
)

// OrderStatus is the derived aggregate state of an order. It is a pure
// function of the item statuses and is never stored or set independently.
type OrderStatus string

const (
	// OrderStatusPending indicates at least one item has seen no seller action yet.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPreparing indicates the least-progressed active item is being prepared.
	OrderStatusPreparing OrderStatus = "preparing"
	// OrderStatusProcessing indicates every active item is at least in processing.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates every active item is at least shipped.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates every active item reached the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCanceled indicates every item ended in a cancellation state.
	OrderStatusCanceled OrderStatus = "canceled"
)

// RefundStatus enumerates the lifecycle states of a refund request.
type RefundStatus string

const (
	// RefundStatusPendingApproval indicates the request awaits the seller's decision.
	RefundStatusPendingApproval RefundStatus = "pending_approval"
	// RefundStatusApproved indicates the seller accepted the request. Approval
	// completes in the same step, so this value never rests externally.
	RefundStatusApproved RefundStatus = "approved"
	// RefundStatusRejected indicates the seller declined the request.
	RefundStatusRejected RefundStatus = "rejected"
	// RefundStatusCompleted indicates the payment refund was executed.
	RefundStatusCompleted RefundStatus = "completed"
)

// ProductSnapshot freezes the product facts of an item at purchase time,
// independent of later catalog changes.
type ProductSnapshot struct {
	ProductID string
	SellerID  string
	Name      string
	ImageURL  string
	UnitPrice int64
}

// OrderItem is one product line within an order, individually tracked through
// fulfilment. Quantity and the product snapshot are write-once; the only
// mutable lifecycle fields are Status plus the attached refund reference.
type OrderItem struct {
	ID       string
	OrderID  string
	Product  ProductSnapshot
	Quantity int
	Status   ItemStatus

	// StockReleased guards the at-most-once inventory release over the
	// item's lifetime. Write-once: set on first entry into a release state
	// or on refund completion, never cleared.
	StockReleased bool

	RefundID *string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ShippedAt   *time.Time
	DeliveredAt *time.Time
	CanceledAt  *time.Time
}

// LineTotal returns the frozen price of the line in minor units.
func (i OrderItem) LineTotal() int64 {
	return i.Product.UnitPrice * int64(i.Quantity)
}

// Order groups the items a customer checked out together. The aggregate
// status is derived via AggregateStatus and intentionally absent here.
type Order struct {
	ID                string
	CustomerID        string
	Currency          string
	TotalPrice        int64
	ShippingAddressID string
	BillingAddressID  string
	PaymentIntentID   string
	Items             []OrderItem
	CreatedAt         time.Time
}

// RefundRequest records a customer's post-delivery refund claim for one item.
// At most one open (pending_approval) request may exist per item.
type RefundRequest struct {
	ID              string
	OrderID         string
	OrderItemID     string
	CustomerID      string
	SellerID        string
	Reason          string
	Status          RefundStatus
	Amount          int64
	RejectionReason *string
	RequestedAt     time.Time
	ProcessedAt     *time.Time
}

// Open reports whether the request still awaits adjudication.
func (r RefundRequest) Open() bool {
	return r.Status == RefundStatusPendingApproval
}

// Terminal reports whether the request reached a final state.
func (r RefundRequest) Terminal() bool {
	return r.Status == RefundStatusCompleted || r.Status == RefundStatusRejected
}

var terminalItemStatuses = map[ItemStatus]struct{}{
	ItemStatusCanceled:         {},
	ItemStatusCanceledBySeller: {},
	ItemStatusCanceledByAdmin:  {},
	ItemStatusReturned:         {},
	ItemStatusReturnRejected:   {},
	ItemStatusExchanged:        {},
	ItemStatusExchangeRejected: {},
}

var cancellationItemStatuses = map[ItemStatus]struct{}{
	ItemStatusCanceled:         {},
	ItemStatusCanceledBySeller: {},
	ItemStatusCanceledByAdmin:  {},
}

// Statuses that return reserved stock to availability when first entered.
var releaseItemStatuses = map[ItemStatus]struct{}{
	ItemStatusCanceled:         {},
	ItemStatusCanceledBySeller: {},
	ItemStatusCanceledByAdmin:  {},
	ItemStatusReturned:         {},
	ItemStatusExchanged:        {},
}

// Terminal reports whether no further transition is permitted from s.
// Delivered is at rest but still allows the return/exchange branches,
// so it is deliberately not terminal.
func (s ItemStatus) Terminal() bool {
	_, ok := terminalItemStatuses[s]
	return ok
}

// Cancellation reports whether s is one of the three cancellation states.
func (s ItemStatus) Cancellation() bool {
	_, ok := cancellationItemStatuses[s]
	return ok
}

// ReleasesStock reports whether first entry into s must release reserved inventory.
func (s ItemStatus) ReleasesStock() bool {
	_, ok := releaseItemStatuses[s]
	return ok
}

// Valid reports whether s is a member of the closed status enumeration.
func (s ItemStatus) Valid() bool {
	switch s {
	case ItemStatusPending, ItemStatusPreparing, ItemStatusProcessing,
		ItemStatusShipped, ItemStatusDelivered,
		ItemStatusCanceled, ItemStatusCanceledBySeller, ItemStatusCanceledByAdmin,
		ItemStatusReturnRequested, ItemStatusReturnApproved, ItemStatusReturned, ItemStatusReturnRejected,
		ItemStatusExchangeRequested, ItemStatusExchangeApproved, ItemStatusExchanged, ItemStatusExchangeRejected:
		return true
	}
	return false
}

// forwardRank orders the happy-path stages for aggregate derivation.
// Post-delivery branches count as the delivered stage.
var forwardRank = map[ItemStatus]int{
	ItemStatusPending:           0,
	ItemStatusPreparing:         1,
	ItemStatusProcessing:        2,
	ItemStatusShipped:           3,
	ItemStatusDelivered:         4,
	ItemStatusReturnRequested:   4,
	ItemStatusReturnApproved:    4,
	ItemStatusReturned:          4,
	ItemStatusReturnRejected:    4,
	ItemStatusExchangeRequested: 4,
	ItemStatusExchangeApproved:  4,
	ItemStatusExchanged:         4,
	ItemStatusExchangeRejected:  4,
}

var rankToOrderStatus = [...]OrderStatus{
	OrderStatusPending,
	OrderStatusPreparing,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
}

// AggregateStatus derives the order-level status from the item statuses.
// All items in a cancellation state collapses the order to canceled;
// otherwise the least-progressed non-cancelled item decides.
func AggregateStatus(items []OrderItem) OrderStatus {
	if len(items) == 0 {
		return OrderStatusPending
	}

	minRank := -1
	for _, item := range items {
		if item.Status.Cancellation() {
			continue
		}
		rank, ok := forwardRank[item.Status]
		if !ok {
			rank = 0
		}
		if minRank == -1 || rank < minRank {
			minRank = rank
		}
	}

	if minRank == -1 {
		return OrderStatusCanceled
	}
	return rankToOrderStatus[minRank]
}
