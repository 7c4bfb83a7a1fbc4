package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/marketstall/api/internal/domain"
	"github.com/marketstall/api/internal/platform/auth"
	"github.com/marketstall/api/internal/platform/httpx"
	"github.com/marketstall/api/internal/platform/pagination"
	"github.com/marketstall/api/internal/services"
)

const (
	defaultAdminPageSize = 50
	maxAdminPageSize     = 100
)

var validOrderStatuses = map[domain.OrderStatus]struct{}{
	domain.OrderStatusPending:    {},
	domain.OrderStatusPreparing:  {},
	domain.OrderStatusProcessing: {},
	domain.OrderStatusShipped:    {},
	domain.OrderStatusDelivered:  {},
	domain.OrderStatusCanceled:   {},
}

// AdminHandlers exposes marketplace staff endpoints over the full order set.
type AdminHandlers struct {
	authn   *auth.Authenticator
	orders  services.OrderService
	refunds services.RefundService
	queries services.QueryService
}

// NewAdminHandlers constructs a new AdminHandlers instance.
func NewAdminHandlers(authn *auth.Authenticator, orders services.OrderService, refunds services.RefundService, queries services.QueryService) *AdminHandlers {
	return &AdminHandlers{
		authn:   authn,
		orders:  orders,
		refunds: refunds,
		queries: queries,
	}
}

// Routes registers the /admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
	}
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Post("/items/{itemID}:status", h.changeItemStatus)
	r.Post("/items/{itemID}:cancel", h.cancelItem)
	r.Post("/refunds/{itemID}:approve", h.approveRefund)
	r.Post("/refunds/{itemID}:reject", h.rejectRefund)
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.queries == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	if _, ok := requireActor(ctx, w, domain.RoleAdmin); !ok {
		return
	}

	query := r.URL.Query()

	statuses := make([]domain.OrderStatus, 0, len(query["status"]))
	for _, raw := range query["status"] {
		status := domain.OrderStatus(strings.TrimSpace(strings.ToLower(raw)))
		if status == "" {
			continue
		}
		if _, ok := validOrderStatuses[status]; !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
			return
		}
		statuses = append(statuses, status)
	}

	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: defaultAdminPageSize,
		MaxPageSize:     maxAdminPageSize,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.queries.AllOrders(ctx, services.AdminOrderFilter{
		Status: statuses,
		Pagination: domain.Pagination{
			PageSize:  params.PageSize,
			PageToken: params.PageToken,
		},
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         buildOrderPayloads(page.Items),
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *AdminHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	actor, ok := requireActor(ctx, w, domain.RoleAdmin)
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

func (h *AdminHandlers) changeItemStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	actor, ok := requireActor(ctx, w, domain.RoleAdmin)
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

func (h *AdminHandlers) cancelItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	actor, ok := requireActor(ctx, w, domain.RoleAdmin)
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

func (h *AdminHandlers) approveRefund(w http.ResponseWriter, r *http.Request) {
	h.adjudicateRefund(w, r, true)
}

func (h *AdminHandlers) rejectRefund(w http.ResponseWriter, r *http.Request) {
	h.adjudicateRefund(w, r, false)
}

// adjudicateRefund settles a refund request on behalf of marketplace staff.
// Unlike the seller surface there is no ownership requirement.
func (h *AdminHandlers) adjudicateRefund(w http.ResponseWriter, r *http.Request, approve bool) {
	ctx := r.Context()
	if h.refunds == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	actor, ok := requireActor(ctx, w, domain.RoleAdmin)
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
