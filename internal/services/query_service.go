package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	domain "github.com/marketstall/api/internal/domain"
	"github.com/marketstall/api/internal/repositories"
)

// QueryServiceDeps bundles collaborators required to construct the query service.
type QueryServiceDeps struct {
	Orders  repositories.OrderRepository
	Refunds repositories.RefundRepository
}

type queryService struct {
	orders  repositories.OrderRepository
	refunds repositories.RefundRepository
}

// NewQueryService wires dependencies into a concrete QueryService implementation.
func NewQueryService(deps QueryServiceDeps) (QueryService, error) {
	if deps.Orders == nil {
		return nil, errors.New("query service: order repository is required")
	}
	if deps.Refunds == nil {
		return nil, errors.New("query service: refund repository is required")
	}
	return &queryService{orders: deps.Orders, refunds: deps.Refunds}, nil
}

func (s *queryService) OrdersForCustomer(ctx context.Context, customerID string) ([]domain.Order, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer id is required", ErrInvalidInput)
	}
	orders, err := s.orders.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	return orders, nil
}

func (s *queryService) OrdersForSeller(ctx context.Context, sellerID string) ([]domain.Order, error) {
	sellerID = strings.TrimSpace(sellerID)
	if sellerID == "" {
		return nil, fmt.Errorf("%w: seller id is required", ErrInvalidInput)
	}
	orders, err := s.orders.ListBySeller(ctx, sellerID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	scoped := make([]domain.Order, 0, len(orders))
	for _, order := range orders {
		view := scopeOrderToSeller(order, sellerID)
		if len(view.Items) == 0 {
			continue
		}
		scoped = append(scoped, view)
	}
	return scoped, nil
}

// AllOrders lists orders across all customers. Status filtering happens here
// rather than in the repository because the aggregate status is derived from
// the items, never stored.
func (s *queryService) AllOrders(ctx context.Context, filter AdminOrderFilter) (domain.CursorPage[domain.Order], error) {
	page, err := s.orders.List(ctx, repositories.OrderListFilter{Pagination: filter.Pagination})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, mapRepositoryError(err)
	}
	if len(filter.Status) == 0 {
		return page, nil
	}
	filtered := make([]domain.Order, 0, len(page.Items))
	for _, order := range page.Items {
		if slices.Contains(filter.Status, domain.AggregateStatus(order.Items)) {
			filtered = append(filtered, order)
		}
	}
	page.Items = filtered
	return page, nil
}

func (s *queryService) PendingRefundsForSeller(ctx context.Context, sellerID string) ([]domain.RefundRequest, error) {
	sellerID = strings.TrimSpace(sellerID)
	if sellerID == "" {
		return nil, fmt.Errorf("%w: seller id is required", ErrInvalidInput)
	}
	requests, err := s.refunds.ListPendingBySeller(ctx, sellerID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	return requests, nil
}
