package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/marketstall/api/internal/domain"
	"github.com/marketstall/api/internal/platform/auth"
	"github.com/marketstall/api/internal/platform/httpx"
	"github.com/marketstall/api/internal/services"
)

type changeItemStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type rejectRefundRequest struct {
	Reason string `json:"reason"`
}

// SellerHandlers exposes the seller-facing fulfilment and refund endpoints.
type SellerHandlers struct {
	authn   *auth.Authenticator
	orders  services.OrderService
	refunds services.RefundService
	queries services.QueryService
}

// NewSellerHandlers constructs a new SellerHandlers instance.
func NewSellerHandlers(authn *auth.Authenticator, orders services.OrderService, refunds services.RefundService, queries services.QueryService) *SellerHandlers {
	return &SellerHandlers{
		authn:   authn,
		orders:  orders,
		refunds: refunds,
		queries: queries,
	}
}

// Routes registers the /seller endpoints.
func (h *SellerHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleSeller, auth.RoleAdmin))
	}
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Post("/items/{itemID}:status", h.changeItemStatus)
	r.Post("/items/{itemID}:cancel", h.cancelItem)
	r.Get("/refunds", h.listPendingRefunds)
	r.Post("/refunds/{itemID}:approve", h.approveRefund)
	r.Post("/refunds/{itemID}:reject", h.rejectRefund)
}

func (h *SellerHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.queries == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	actor, ok := requireActor(ctx, w, domain.RoleSeller)
	if !ok {
		return
	}

	orders, err := h.queries.OrdersForSeller(ctx, actor.UserID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderListResponse{Items: buildOrderPayloads(orders)})
}

func (h *SellerHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	actor, ok := requireActor(ctx, w, domain.RoleSeller)
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

func (h *SellerHandlers) changeItemStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	actor, ok := requireActor(ctx, w, domain.RoleSeller)
	if !ok {
		return
	}

	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	if itemID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "item id is required", http.StatusBadRequest))
		return
	}

	var req changeItemStatusRequest
	if !decodeJSONBody(ctx, w, r, maxActionBodySize, &req) {
		return
	}

	target := domain.ItemStatus(strings.TrimSpace(strings.ToLower(req.Status)))
	if !target.Valid() {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid item status", http.StatusBadRequest))
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

func (h *SellerHandlers) cancelItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	actor, ok := requireActor(ctx, w, domain.RoleSeller)
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

func (h *SellerHandlers) listPendingRefunds(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.queries == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	actor, ok := requireActor(ctx, w, domain.RoleSeller)
	if !ok {
		return
	}

	requests, err := h.queries.PendingRefundsForSeller(ctx, actor.UserID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, refundListResponse{Items: buildRefundPayloads(requests)})
}

func (h *SellerHandlers) approveRefund(w http.ResponseWriter, r *http.Request) {
	h.adjudicateRefund(w, r, true)
}

func (h *SellerHandlers) rejectRefund(w http.ResponseWriter, r *http.Request) {
	h.adjudicateRefund(w, r, false)
}

func (h *SellerHandlers) adjudicateRefund(w http.ResponseWriter, r *http.Request, approve bool) {
	ctx := r.Context()
	if h.refunds == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	actor, ok := requireActor(ctx, w, domain.RoleSeller)
	if !ok {
		return
	}

	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	if itemID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "item id is required", http.StatusBadRequest))
		return
	}

	cmd := services.AdjudicateRefundCommand{
		ItemID: itemID,
		Actor:  actor,
	}

	var request domain.RefundRequest
	var err error
	if approve {
		request, err = h.refunds.ApproveRefund(ctx, cmd)
	} else {
		var body rejectRefundRequest
		if !decodeJSONBody(ctx, w, r, maxActionBodySize, &body) {
			return
		}
		cmd.RejectionReason = strings.TrimSpace(body.Reason)
		if cmd.RejectionReason == "" {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "rejection reason is required", http.StatusBadRequest))
			return
		}
		request, err = h.refunds.RejectRefund(ctx, cmd)
	}
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, refundResponse{Refund: buildRefundPayload(request)})
}
