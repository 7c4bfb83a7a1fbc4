package handlers

import (
	domain "github.com/marketstall/api/internal/domain"
)

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderItemResponse struct {
	Item orderItemPayload `json:"item"`
}

type refundListResponse struct {
	Items []refundPayload `json:"items"`
}

type refundResponse struct {
	Refund refundPayload `json:"refund"`
}

type orderPayload struct {
	ID                string             `json:"id"`
	CustomerID        string             `json:"customer_id"`
	Status            string             `json:"status"`
	Currency          string             `json:"currency"`
	TotalPrice        int64              `json:"total_price"`
	ShippingAddressID string             `json:"shipping_address_id,omitempty"`
	BillingAddressID  string             `json:"billing_address_id,omitempty"`
	Items             []orderItemPayload `json:"items"`
	CreatedAt         string             `json:"created_at"`
}

type orderItemPayload struct {
	ID          string  `json:"id"`
	OrderID     string  `json:"order_id"`
	ProductID   string  `json:"product_id"`
	SellerID    string  `json:"seller_id"`
	Name        string  `json:"name,omitempty"`
	ImageURL    string  `json:"image_url,omitempty"`
	UnitPrice   int64   `json:"unit_price"`
	Quantity    int     `json:"quantity"`
	LineTotal   int64   `json:"line_total"`
	Status      string  `json:"status"`
	RefundID    *string `json:"refund_id,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at,omitempty"`
	ShippedAt   string  `json:"shipped_at,omitempty"`
	DeliveredAt string  `json:"delivered_at,omitempty"`
	CanceledAt  string  `json:"canceled_at,omitempty"`
}

type refundPayload struct {
	ID              string  `json:"id"`
	OrderID         string  `json:"order_id"`
	OrderItemID     string  `json:"order_item_id"`
	CustomerID      string  `json:"customer_id"`
	SellerID        string  `json:"seller_id"`
	Status          string  `json:"status"`
	Amount          int64   `json:"amount"`
	Reason          string  `json:"reason"`
	RejectionReason *string `json:"rejection_reason,omitempty"`
	RequestedAt     string  `json:"requested_at"`
	ProcessedAt     string  `json:"processed_at,omitempty"`
}

func buildOrderPayload(order domain.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, buildOrderItemPayload(item))
	}
	return orderPayload{
		ID:                order.ID,
		CustomerID:        order.CustomerID,
		Status:            string(domain.AggregateStatus(order.Items)),
		Currency:          order.Currency,
		TotalPrice:        order.TotalPrice,
		ShippingAddressID: order.ShippingAddressID,
		BillingAddressID:  order.BillingAddressID,
		Items:             items,
		CreatedAt:         formatTime(order.CreatedAt),
	}
}

func buildOrderPayloads(orders []domain.Order) []orderPayload {
	payloads := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		payloads = append(payloads, buildOrderPayload(order))
	}
	return payloads
}

func buildOrderItemPayload(item domain.OrderItem) orderItemPayload {
	return orderItemPayload{
		ID:          item.ID,
		OrderID:     item.OrderID,
		ProductID:   item.Product.ProductID,
		SellerID:    item.Product.SellerID,
		Name:        item.Product.Name,
		ImageURL:    item.Product.ImageURL,
		UnitPrice:   item.Product.UnitPrice,
		Quantity:    item.Quantity,
		LineTotal:   item.LineTotal(),
		Status:      string(item.Status),
		RefundID:    item.RefundID,
		CreatedAt:   formatTime(item.CreatedAt),
		UpdatedAt:   formatTime(item.UpdatedAt),
		ShippedAt:   formatTimePtr(item.ShippedAt),
		DeliveredAt: formatTimePtr(item.DeliveredAt),
		CanceledAt:  formatTimePtr(item.CanceledAt),
	}
}

func buildRefundPayloads(requests []domain.RefundRequest) []refundPayload {
	payloads := make([]refundPayload, 0, len(requests))
	for _, request := range requests {
		payloads = append(payloads, buildRefundPayload(request))
	}
	return payloads
}

func buildRefundPayload(request domain.RefundRequest) refundPayload {
	return refundPayload{
		ID:              request.ID,
		OrderID:         request.OrderID,
		OrderItemID:     request.OrderItemID,
		CustomerID:      request.CustomerID,
		SellerID:        request.SellerID,
		Status:          string(request.Status),
		Amount:          request.Amount,
		Reason:          request.Reason,
		RejectionReason: request.RejectionReason,
		RequestedAt:     formatTime(request.RequestedAt),
		ProcessedAt:     formatTimePtr(request.ProcessedAt),
	}
}
