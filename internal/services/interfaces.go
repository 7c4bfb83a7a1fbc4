package services

import (
	"context"
	"time"

	domain "github.com/marketstall/api/internal/domain"
	"github.com/marketstall/api/internal/repositories"
)

// OrderService is the transition engine: it owns every mutation of an order
// item's lifecycle and enforces the role, ownership, and graph invariants
// regardless of which surface (API, batch job, test) invokes it.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string, actor domain.Actor) (domain.Order, error)
	ChangeItemStatus(ctx context.Context, cmd ChangeItemStatusCommand) (domain.OrderItem, error)
	CancelItem(ctx context.Context, cmd CancelItemCommand) (domain.OrderItem, error)
}

// RefundService runs the post-delivery refund workflow. Request creation and
// adjudication are separate authorisation paths but share the engine's
// atomicity guarantees.
type RefundService interface {
	RequestRefund(ctx context.Context, cmd RequestRefundCommand) (domain.RefundRequest, error)
	ApproveRefund(ctx context.Context, cmd AdjudicateRefundCommand) (domain.RefundRequest, error)
	RejectRefund(ctx context.Context, cmd AdjudicateRefundCommand) (domain.RefundRequest, error)
}

// QueryService is the read-side facade. Every read is scoped by caller role
// and reflects only fully committed transitions.
type QueryService interface {
	OrdersForCustomer(ctx context.Context, customerID string) ([]domain.Order, error)
	OrdersForSeller(ctx context.Context, sellerID string) ([]domain.Order, error)
	AllOrders(ctx context.Context, filter AdminOrderFilter) (domain.CursorPage[domain.Order], error)
	PendingRefundsForSeller(ctx context.Context, sellerID string) ([]domain.RefundRequest, error)
}

// InventoryAdapter is the externally owned stock interface. Reserve is called
// at order placement, Release exactly once per item upon cancellation, return,
// exchange, or refund completion. Implementations apply their own timeouts.
type InventoryAdapter interface {
	Reserve(ctx context.Context, productID string, quantity int) error
	Release(ctx context.Context, productID string, quantity int) error
}

// PaymentRefunder executes the monetary refund with the external payment
// provider. A failure aborts the whole approval; nothing is persisted.
type PaymentRefunder interface {
	Refund(ctx context.Context, req RefundPaymentRequest) (RefundPaymentResult, error)
}

// RefundPaymentRequest identifies the captured payment and the amount to return.
type RefundPaymentRequest struct {
	PaymentIntentID string
	Amount          int64
	Currency        string
	Reason          string

	// IdempotencyKey dedupes provider-side retries of the same refund.
	IdempotencyKey string
}

// RefundPaymentResult reports the provider-side refund reference.
type RefundPaymentResult struct {
	ProviderRefundID string
}

// LifecycleEventPublisher publishes order lifecycle events for downstream consumers.
type LifecycleEventPublisher interface {
	PublishLifecycleEvent(ctx context.Context, event LifecycleEvent) error
}

// LifecycleEvent captures metadata for emitted lifecycle events.
type LifecycleEvent struct {
	Type           string
	OrderID        string
	ItemID         string
	RefundID       string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	ActorRole      string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderLine is one requested product line at order placement. The snapshot is
// frozen into the item and never re-read from the catalog afterwards.
type OrderLine struct {
	Product  domain.ProductSnapshot
	Quantity int
}

// PlaceOrderCommand creates an order from a checked-out cart.
type PlaceOrderCommand struct {
	CustomerID        string
	Currency          string
	ShippingAddressID string
	BillingAddressID  string
	PaymentIntentID   string
	Lines             []OrderLine
}

// ChangeItemStatusCommand requests one transition of one item by one actor.
type ChangeItemStatusCommand struct {
	ItemID string
	Target domain.ItemStatus
	Actor  domain.Actor
	Reason string
}

// CancelItemCommand cancels one item; the resulting status is derived from
// the actor's role.
type CancelItemCommand struct {
	ItemID string
	Actor  domain.Actor
	Reason string
}

// RequestRefundCommand opens a refund request on a delivered item.
type RequestRefundCommand struct {
	OrderID    string
	ItemID     string
	CustomerID string
	Reason     string
}

// AdjudicateRefundCommand approves or rejects the open refund request of an item.
type AdjudicateRefundCommand struct {
	ItemID string
	Actor  domain.Actor
	// RejectionReason is recorded on rejection and ignored on approval.
	RejectionReason string
}

// AdminOrderFilter controls the admin-wide order listing.
type AdminOrderFilter struct {
	Status     []domain.OrderStatus
	Pagination domain.Pagination
}

// OrderListFilter re-exports the repository filter for handler use.
type OrderListFilter = repositories.OrderListFilter
