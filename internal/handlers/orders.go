package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/marketstall/api/internal/domain"
	"github.com/marketstall/api/internal/platform/auth"
	"github.com/marketstall/api/internal/platform/httpx"
	"github.com/marketstall/api/internal/services"
)

const (
	maxOrderBodySize  = 64 * 1024
	maxActionBodySize = 4 * 1024
)

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body too large")
)

type placeOrderRequest struct {
	Currency          string                  `json:"currency"`
	ShippingAddressID string                  `json:"shipping_address_id"`
	BillingAddressID  string                  `json:"billing_address_id"`
	PaymentIntentID   string                  `json:"payment_intent_id"`
	Items             []placeOrderItemRequest `json:"items"`
}

type placeOrderItemRequest struct {
	ProductID string `json:"product_id"`
	SellerID  string `json:"seller_id"`
	Name      string `json:"name"`
	ImageURL  string `json:"image_url"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

type cancelItemRequest struct {
	Reason string `json:"reason"`
}

type requestRefundRequest struct {
	Reason string `json:"reason"`
}

// OrderHandlers exposes the customer-facing order endpoints.
type OrderHandlers struct {
	authn   *auth.Authenticator
	orders  services.OrderService
	refunds services.RefundService
	queries services.QueryService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, refunds services.RefundService, queries services.QueryService) *OrderHandlers {
	return &OrderHandlers{
		authn:   authn,
		orders:  orders,
		refunds: refunds,
		queries: queries,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.placeOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}/items/{itemID}:cancel", h.cancelItem)
	r.Post("/{orderID}/items/{itemID}:return", h.requestReturn)
	r.Post("/{orderID}/items/{itemID}:exchange", h.requestExchange)
	r.Post("/{orderID}/items/{itemID}:refund", h.requestRefund)
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	actor, ok := requireActor(ctx, w, domain.RoleCustomer)
	if !ok {
		return
	}

	var req placeOrderRequest
	if !decodeJSONBody(ctx, w, r, maxOrderBodySize, &req) {
		return
	}

	lines := make([]services.OrderLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, services.OrderLine{
			Product: domain.ProductSnapshot{
				ProductID: strings.TrimSpace(item.ProductID),
				SellerID:  strings.TrimSpace(item.SellerID),
				Name:      strings.TrimSpace(item.Name),
				ImageURL:  strings.TrimSpace(item.ImageURL),
				UnitPrice: item.UnitPrice,
			},
			Quantity: item.Quantity,
		})
	}

	order, err := h.orders.PlaceOrder(ctx, services.PlaceOrderCommand{
		CustomerID:        actor.UserID,
		Currency:          strings.TrimSpace(req.Currency),
		ShippingAddressID: strings.TrimSpace(req.ShippingAddressID),
		BillingAddressID:  strings.TrimSpace(req.BillingAddressID),
		PaymentIntentID:   strings.TrimSpace(req.PaymentIntentID),
		Lines:             lines,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.queries == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	actor, ok := requireActor(ctx, w, domain.RoleCustomer)
	if !ok {
		return
	}

	orders, err := h.queries.OrdersForCustomer(ctx, actor.UserID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderListResponse{Items: buildOrderPayloads(orders)})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	actor, ok := requireActor(ctx, w, domain.RoleCustomer)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID, actor)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	actor, ok := requireActor(ctx, w, domain.RoleCustomer)
	if !ok {
		return
	}

	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	if itemID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "item id is required", http.StatusBadRequest))
		return
	}

	var req cancelItemRequest
	if !decodeOptionalJSONBody(ctx, w, r, maxActionBodySize, &req) {
		return
	}

	item, err := h.orders.CancelItem(ctx, services.CancelItemCommand{
		ItemID: itemID,
		Actor:  actor,
		Reason: strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderItemResponse{Item: buildOrderItemPayload(item)})
}

func (h *OrderHandlers) requestReturn(w http.ResponseWriter, r *http.Request) {
	h.requestItemTransition(w, r, domain.ItemStatusReturnRequested)
}

func (h *OrderHandlers) requestExchange(w http.ResponseWriter, r *http.Request) {
	h.requestItemTransition(w, r, domain.ItemStatusExchangeRequested)
}

// requestItemTransition handles the customer-initiated post-delivery
// transitions (return and exchange requests) via the same engine the seller
// status endpoint uses.
func (h *OrderHandlers) requestItemTransition(w http.ResponseWriter, r *http.Request, target domain.ItemStatus) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	actor, ok := requireActor(ctx, w, domain.RoleCustomer)
	if !ok {
		return
	}

	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	if itemID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "item id is required", http.StatusBadRequest))
		return
	}

	var req cancelItemRequest
	if !decodeOptionalJSONBody(ctx, w, r, maxActionBodySize, &req) {
		return
	}

	item, err := h.orders.ChangeItemStatus(ctx, services.ChangeItemStatusCommand{
		ItemID: itemID,
		Target: target,
		Actor:  actor,
		Reason: strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderItemResponse{Item: buildOrderItemPayload(item)})
}

func (h *OrderHandlers) requestRefund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.refunds == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	actor, ok := requireActor(ctx, w, domain.RoleCustomer)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	if orderID == "" || itemID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order and item ids are required", http.StatusBadRequest))
		return
	}

	var req requestRefundRequest
	if !decodeJSONBody(ctx, w, r, maxActionBodySize, &req) {
		return
	}

	request, err := h.refunds.RequestRefund(ctx, services.RequestRefundCommand{
		OrderID:    orderID,
		ItemID:     itemID,
		CustomerID: actor.UserID,
		Reason:     strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, refundResponse{Refund: buildRefundPayload(request)})
}

// requireActor resolves the caller's identity into an actor for the given role.
// Admin identities may act as any role.
func requireActor(ctx context.Context, w http.ResponseWriter, role domain.Role) (domain.Actor, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return domain.Actor{}, false
	}
	actor, ok := identity.Actor(role)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "caller lacks the required role", http.StatusForbidden))
		return domain.Actor{}, false
	}
	return actor, true
}

func writeServiceUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
}

// writeServiceError translates the service error taxonomy into HTTP responses.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "order, item, or refund request not found", http.StatusNotFound))
	case errors.Is(err, services.ErrForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", err.Error(), http.StatusForbidden))
	case errors.Is(err, services.ErrConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrDependencyFailure):
		httpx.WriteError(ctx, w, httpx.NewError("dependency_failure", "an upstream dependency failed; retry later", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process request", http.StatusInternalServerError))
	}
}

func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	body, err := readLimitedBody(r, limit)
	if err != nil {
		writeBodyError(ctx, w, err)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return false
	}
	return true
}

// decodeOptionalJSONBody tolerates an absent body; action endpoints accept bare POSTs.
func decodeOptionalJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	body, err := readLimitedBody(r, limit)
	if errors.Is(err, errEmptyBody) {
		return true
	}
	if err != nil {
		writeBodyError(ctx, w, err)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return false
	}
	return true
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxActionBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
