package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/marketstall/api/internal/domain"
	"github.com/marketstall/api/internal/repositories"
)

const (
	eventOrderPlaced       = "order.placed"
	eventItemStatusChanged = "order.item.status.changed"
	eventItemStockReleased = "order.item.stock.released"

	orderIDPrefix = "ord_"
	itemIDPrefix  = "itm_"
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Inventory   InventoryAdapter
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      LifecycleEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	inventory  InventoryAdapter
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     LifecycleEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("order service: inventory adapter is required")
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

	return &orderService{
		orders:     deps.Orders,
		inventory:  deps.Inventory,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (domain.Order, error) {
	customerID := strings.TrimSpace(cmd.CustomerID)
	if customerID == "" {
		return domain.Order{}, fmt.Errorf("%w: customer id is required", ErrInvalidInput)
	}
	currency := strings.TrimSpace(cmd.Currency)
	if currency == "" {
		return domain.Order{}, fmt.Errorf("%w: currency is required", ErrInvalidInput)
	}
	if len(cmd.Lines) == 0 {
		return domain.Order{}, fmt.Errorf("%w: order must contain at least one line", ErrInvalidInput)
	}
	for i, line := range cmd.Lines {
		if strings.TrimSpace(line.Product.ProductID) == "" {
			return domain.Order{}, fmt.Errorf("%w: line %d: product id is required", ErrInvalidInput, i)
		}
		if strings.TrimSpace(line.Product.SellerID) == "" {
			return domain.Order{}, fmt.Errorf("%w: line %d: seller id is required", ErrInvalidInput, i)
		}
		if line.Quantity <= 0 {
			return domain.Order{}, fmt.Errorf("%w: line %d: quantity must be positive", ErrInvalidInput, i)
		}
		if line.Product.UnitPrice < 0 {
			return domain.Order{}, fmt.Errorf("%w: line %d: unit price must not be negative", ErrInvalidInput, i)
		}
	}

	now := s.now()

	order := domain.Order{
		ID:                orderIDPrefix + s.newID(),
		CustomerID:        customerID,
		Currency:          currency,
		ShippingAddressID: strings.TrimSpace(cmd.ShippingAddressID),
		BillingAddressID:  strings.TrimSpace(cmd.BillingAddressID),
		PaymentIntentID:   strings.TrimSpace(cmd.PaymentIntentID),
		Items:             make([]domain.OrderItem, 0, len(cmd.Lines)),
		CreatedAt:         now,
	}

	for _, line := range cmd.Lines {
		item := domain.OrderItem{
			ID:        itemIDPrefix + s.newID(),
			OrderID:   order.ID,
			Product:   line.Product,
			Quantity:  line.Quantity,
			Status:    domain.ItemStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		order.Items = append(order.Items, item)
		order.TotalPrice += item.LineTotal()
	}

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		for _, item := range order.Items {
			if err := s.inventory.Reserve(txCtx, item.Product.ProductID, item.Quantity); err != nil {
				return s.mapInventoryError(item.Product.ProductID, err)
			}
		}
		if err := s.orders.Insert(txCtx, order); err != nil {
			return mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.publishEvent(ctx, LifecycleEvent{
		Type:       eventOrderPlaced,
		OrderID:    order.ID,
		ActorID:    customerID,
		ActorRole:  string(domain.RoleCustomer),
		OccurredAt: now,
		Metadata: map[string]any{
			"items":      len(order.Items),
			"totalPrice": order.TotalPrice,
			"currency":   order.Currency,
		},
	})

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string, actor domain.Actor) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, mapRepositoryError(err)
	}

	switch actor.Role {
	case domain.RoleAdmin:
		return order, nil
	case domain.RoleCustomer:
		if order.CustomerID != actor.UserID {
			return domain.Order{}, fmt.Errorf("%w: order %s does not belong to customer %s", ErrForbidden, orderID, actor.UserID)
		}
		return order, nil
	case domain.RoleSeller:
		scoped := scopeOrderToSeller(order, actor.UserID)
		if len(scoped.Items) == 0 {
			return domain.Order{}, fmt.Errorf("%w: order %s has no items of seller %s", ErrForbidden, orderID, actor.UserID)
		}
		return scoped, nil
	}
	return domain.Order{}, fmt.Errorf("%w: unknown role %q", ErrForbidden, actor.Role)
}

func (s *orderService) ChangeItemStatus(ctx context.Context, cmd ChangeItemStatusCommand) (domain.OrderItem, error) {
	itemID := strings.TrimSpace(cmd.ItemID)
	if itemID == "" {
		return domain.OrderItem{}, fmt.Errorf("%w: item id is required", ErrInvalidInput)
	}
	if !cmd.Target.Valid() {
		return domain.OrderItem{}, fmt.Errorf("%w: unknown target status %q", ErrInvalidInput, cmd.Target)
	}

	order, err := s.orders.FindByItemID(ctx, itemID)
	if err != nil {
		return domain.OrderItem{}, mapRepositoryError(err)
	}
	item, ok := findItem(order, itemID)
	if !ok {
		return domain.OrderItem{}, fmt.Errorf("%w: item %s", ErrNotFound, itemID)
	}

	// Authorisation is decided before any state inspection: an actor who may
	// never touch this item learns nothing about its current status.
	if !roleAllowsTarget(cmd.Actor.Role, cmd.Target) {
		return domain.OrderItem{}, transitionForbidden(itemID, cmd.Actor, cmd.Target)
	}
	if !ownsItem(cmd.Actor, order, item) {
		return domain.OrderItem{}, transitionForbidden(itemID, cmd.Actor, cmd.Target)
	}

	if item.Status.Terminal() {
		return domain.OrderItem{}, transitionConflict(itemID, item.Status, cmd.Target, "item is in a terminal state")
	}
	if cmd.Target == item.Status {
		return domain.OrderItem{}, transitionConflict(itemID, item.Status, cmd.Target, "item already has the requested status")
	}
	if !canTransition(item.Status, cmd.Target) {
		return domain.OrderItem{}, transitionConflict(itemID, item.Status, cmd.Target, "not a direct successor")
	}

	updated, err := s.applyTransition(ctx, item, cmd.Target, cmd.Actor, cmd.Reason)
	if err != nil {
		return domain.OrderItem{}, err
	}
	return updated, nil
}

func (s *orderService) CancelItem(ctx context.Context, cmd CancelItemCommand) (domain.OrderItem, error) {
	target, ok := cancelTarget(cmd.Actor.Role)
	if !ok {
		return domain.OrderItem{}, fmt.Errorf("%w: unknown role %q", ErrForbidden, cmd.Actor.Role)
	}
	return s.ChangeItemStatus(ctx, ChangeItemStatusCommand{
		ItemID: cmd.ItemID,
		Target: target,
		Actor:  cmd.Actor,
		Reason: cmd.Reason,
	})
}

// applyTransition persists an already validated transition. Inventory release
// and the item write share one transaction so a release can never outlive a
// failed status write.
func (s *orderService) applyTransition(ctx context.Context, item domain.OrderItem, target domain.ItemStatus, actor domain.Actor, reason string) (domain.OrderItem, error) {
	now := s.now()
	previous := item.Status

	updated := item
	updated.Status = target
	updated.UpdatedAt = now
	switch target {
	case domain.ItemStatusShipped:
		updated.ShippedAt = &now
	case domain.ItemStatusDelivered:
		updated.DeliveredAt = &now
	}
	if target.Cancellation() {
		updated.CanceledAt = &now
	}

	releasing := target.ReleasesStock() && !item.StockReleased
	if releasing {
		updated.StockReleased = true
	}

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		if releasing {
			if err := s.inventory.Release(txCtx, item.Product.ProductID, item.Quantity); err != nil {
				return s.mapInventoryError(item.Product.ProductID, err)
			}
		}
		if err := s.orders.UpdateItem(txCtx, updated, previous); err != nil {
			return mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return domain.OrderItem{}, err
	}

	metadata := map[string]any{}
	if reason != "" {
		metadata["reason"] = reason
	}
	s.publishEvent(ctx, LifecycleEvent{
		Type:           eventItemStatusChanged,
		OrderID:        item.OrderID,
		ItemID:         item.ID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(target),
		ActorID:        actor.UserID,
		ActorRole:      string(actor.Role),
		OccurredAt:     now,
		Metadata:       metadata,
	})
	if releasing {
		s.publishEvent(ctx, LifecycleEvent{
			Type:          eventItemStockReleased,
			OrderID:       item.OrderID,
			ItemID:        item.ID,
			CurrentStatus: string(target),
			ActorID:       actor.UserID,
			ActorRole:     string(actor.Role),
			OccurredAt:    now,
			Metadata: map[string]any{
				"productId": item.Product.ProductID,
				"quantity":  item.Quantity,
			},
		})
	}

	s.logger(ctx, "order.item.transitioned", map[string]any{
		"order":    item.OrderID,
		"item":     item.ID,
		"from":     string(previous),
		"to":       string(target),
		"actor":    actor.UserID,
		"role":     string(actor.Role),
		"released": releasing,
	})

	return updated, nil
}

func (s *orderService) mapInventoryError(productID string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrDependencyFailure) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return mapRepositoryError(err)
	}
	return fmt.Errorf("%w: inventory: product %s: %v", ErrDependencyFailure, productID, err)
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishEvent(ctx context.Context, event LifecycleEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishLifecycleEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"item":   event.ItemID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

func findItem(order domain.Order, itemID string) (domain.OrderItem, bool) {
	for _, item := range order.Items {
		if item.ID == itemID {
			return item, true
		}
	}
	return domain.OrderItem{}, false
}

// scopeOrderToSeller strips items that reference other sellers' products.
func scopeOrderToSeller(order domain.Order, sellerID string) domain.Order {
	scoped := order
	scoped.Items = make([]domain.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		if item.Product.SellerID == sellerID {
			scoped.Items = append(scoped.Items, item)
		}
	}
	return scoped
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
