package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shirthaus/api/internal/domain"
	"github.com/shirthaus/api/internal/platform/httpx"
	"github.com/shirthaus/api/internal/platform/storage"
	"github.com/shirthaus/api/internal/services"
)

const maxAdminOrderRequestBody = 8 * 1024

// LabelLinkProvider issues signed download links for archived shipping labels.
type LabelLinkProvider interface {
	DownloadURL(ctx context.Context, orderReference, trackingNumber string) (storage.SignedURLResult, error)
}

// AdminOrderHandlers exposes the back-office order, production and refund endpoints.
type AdminOrderHandlers struct {
	orders services.OrderService
	labels LabelLinkProvider
}

// NewAdminOrderHandlers constructs admin order handlers. The label link
// provider may be nil; the label download endpoint then responds 503.
func NewAdminOrderHandlers(orders services.OrderService, labels LabelLinkProvider) *AdminOrderHandlers {
	return &AdminOrderHandlers{orders: orders, labels: labels}
}

// Routes registers admin order endpoints under the provided router.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/orders", h.list)
	r.Get("/orders/production-queue", h.productionQueue)
	r.Post("/orders/recompute-priorities", h.recomputePriorities)
	r.Get("/orders/{orderID}", h.get)
	r.Post("/orders/{orderID}/production", h.advanceProduction)
	r.Post("/orders/{orderID}/label", h.generateLabel)
	r.Get("/orders/{orderID}/label", h.labelDownloadURL)
	r.Post("/orders/{orderID}/delivered", h.markDelivered)
	r.Post("/orders/{orderID}/cancel", h.cancel)
	r.Post("/orders/{orderID}/refund", h.refund)
}

func (h *AdminOrderHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, err := requestPagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.OrderListFilter{
		Email:      strings.TrimSpace(r.URL.Query().Get("email")),
		Pagination: page,
	}
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		for _, part := range strings.Split(status, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				filter.Status = append(filter.Status, domain.OrderStatus(part))
			}
		}
	}
	if from, ok := parseQueryTime(r, "from"); ok {
		filter.From = &from
	}
	if to, ok := parseQueryTime(r, "to"); ok {
		filter.To = &to
	}

	result, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	resp := listResponse[orderView]{Items: make([]orderView, 0, len(result.Items)), NextPageToken: result.NextPageToken}
	for _, order := range result.Items {
		resp.Items = append(resp.Items, newOrderView(order))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *AdminOrderHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, err := h.orders.GetOrder(ctx, strings.TrimSpace(chi.URLParam(r, "orderID")))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newOrderView(order))
}

type advanceProductionRequest struct {
	Target string `json:"target"`
}

func (h *AdminOrderHandlers) advanceProduction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))

	body, err := readLimitedBody(r, maxAdminOrderRequestBody)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	var req advanceProductionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	order, err := h.orders.AdvanceProduction(ctx, orderID, domain.ProductionStatus(strings.TrimSpace(req.Target)), adminActor(ctx))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newOrderView(order))
}

func (h *AdminOrderHandlers) generateLabel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, err := h.orders.GenerateShippingLabel(ctx, strings.TrimSpace(chi.URLParam(r, "orderID")), adminActor(ctx))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newOrderView(order))
}

type labelLinkView struct {
	URL       string `json:"url"`
	Method    string `json:"method"`
	ExpiresAt string `json:"expiresAt"`
}

func (h *AdminOrderHandlers) labelDownloadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.labels == nil {
		httpx.WriteError(ctx, w, httpx.NewError("labels_unavailable", "label downloads are not configured", http.StatusServiceUnavailable))
		return
	}

	order, err := h.orders.GetOrder(ctx, strings.TrimSpace(chi.URLParam(r, "orderID")))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	tracking := ""
	if order.Shipping.TrackingNumber != nil {
		tracking = strings.TrimSpace(*order.Shipping.TrackingNumber)
	}
	if tracking == "" {
		httpx.WriteError(ctx, w, httpx.NewError("label_not_ready", "no shipping label has been generated for this order", http.StatusConflict))
		return
	}

	link, err := h.labels.DownloadURL(ctx, order.Reference, tracking)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrPermissionDenied):
			httpx.WriteError(ctx, w, httpx.NewError("forbidden", "label downloads require a staff account", http.StatusForbidden))
		case errors.Is(err, storage.ErrLabelNotArchived):
			httpx.WriteError(ctx, w, httpx.NewError("label_not_ready", "no shipping label has been generated for this order", http.StatusConflict))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("label_link_error", "failed to sign label download link", http.StatusInternalServerError))
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, labelLinkView{
		URL:       link.URL,
		Method:    link.Method,
		ExpiresAt: formatTime(link.ExpiresAt),
	})
}

func (h *AdminOrderHandlers) markDelivered(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, err := h.orders.MarkDelivered(ctx, strings.TrimSpace(chi.URLParam(r, "orderID")), adminActor(ctx))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newOrderView(order))
}

func (h *AdminOrderHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))

	body, err := readLimitedBody(r, maxAdminOrderRequestBody)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	var req cancelOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	order, err := h.orders.CancelOrder(ctx, services.CancelOrderCommand{
		OrderID: orderID,
		Reason:  strings.TrimSpace(req.Reason),
		Notes:   strings.TrimSpace(req.Notes),
		Actor:   adminActor(ctx),
	})
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newOrderView(order))
}

type refundOrderRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

func (h *AdminOrderHandlers) refund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))

	body, err := readLimitedBody(r, maxAdminOrderRequestBody)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	var req refundOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	order, err := h.orders.RefundOrder(ctx, services.RefundOrderCommand{
		OrderID: orderID,
		Amount:  req.Amount,
		Reason:  strings.TrimSpace(req.Reason),
		Actor:   adminActor(ctx),
	})
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newOrderView(order))
}

func (h *AdminOrderHandlers) productionQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	queue, err := h.orders.ProductionQueue(ctx)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	resp := listResponse[orderView]{Items: make([]orderView, 0, len(queue))}
	for _, order := range queue {
		resp.Items = append(resp.Items, newOrderView(order))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *AdminOrderHandlers) recomputePriorities(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	updated, err := h.orders.RecomputePriorities(ctx)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]int{"updated": updated})
}

func parseQueryTime(r *http.Request, key string) (time.Time, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func (h *AdminOrderHandlers) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderLabelNotReady):
		httpx.WriteError(ctx, w, httpx.NewError("label_not_ready", "order is not ready for label generation", http.StatusConflict))
	case errors.Is(err, services.ErrCancelAlreadyCancelled),
		errors.Is(err, services.ErrCancelAlreadyRequested),
		errors.Is(err, services.ErrCancelNotAllowedAtStage):
		httpx.WriteError(ctx, w, httpx.NewError("cancel_not_allowed", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCancelCoolingOffExpired),
		errors.Is(err, services.ErrCancelCustomItemLocked),
		errors.Is(err, services.ErrCancelProductionStarted):
		httpx.WriteError(ctx, w, httpx.NewError("cancel_not_allowed", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrRefundNotCancelled),
		errors.Is(err, services.ErrRefundAlreadyRefunded),
		errors.Is(err, services.ErrRefundAlreadyRefundedAtGateway):
		httpx.WriteError(ctx, w, httpx.NewError("refund_not_allowed", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrRefundTransactionMissing):
		httpx.WriteError(ctx, w, httpx.NewError("refund_transaction_missing", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrRefundAmountNonPositive),
		errors.Is(err, services.ErrRefundAmountExceedsOriginal):
		httpx.WriteError(ctx, w, httpx.NewError("refund_amount_invalid", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrRefundGateway):
		httpx.WriteError(ctx, w, httpx.NewError("refund_gateway_error", "payment gateway rejected the refund", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
