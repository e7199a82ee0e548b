package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shirthaus/api/internal/platform/httpx"
	"github.com/shirthaus/api/internal/services"
)

const maxOrderRequestBody = 8 * 1024

// OrderHandlers exposes the customer-facing order endpoints. Customers identify
// their order with its reference plus the email used at checkout.
type OrderHandlers struct {
	orders services.OrderService
}

// NewOrderHandlers constructs customer order handlers.
func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes registers customer order endpoints under the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{reference}", h.getByReference)
	r.Post("/{reference}/cancel", h.cancel)
}

func (h *OrderHandlers) getByReference(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	reference := strings.TrimSpace(chi.URLParam(r, "reference"))
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if reference == "" || email == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "reference and email are required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrderByReference(ctx, reference, email)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newOrderView(order))
}

type cancelOrderRequest struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
	Notes  string `json:"notes"`
}

func (h *OrderHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	reference := strings.TrimSpace(chi.URLParam(r, "reference"))

	body, err := readLimitedBody(r, maxOrderRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req cancelOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	email := strings.TrimSpace(req.Email)
	if reference == "" || email == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "reference and email are required", http.StatusBadRequest))
		return
	}

	// Resolve through the reference+email gate so a customer can only cancel
	// their own order.
	order, err := h.orders.GetOrderByReference(ctx, reference, email)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	cancelled, err := h.orders.CancelOrder(ctx, services.CancelOrderCommand{
		OrderID: order.ID,
		Reason:  strings.TrimSpace(req.Reason),
		Notes:   strings.TrimSpace(req.Notes),
		Actor:   email,
	})
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newOrderView(cancelled))
}

func (h *OrderHandlers) writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCancelAlreadyCancelled):
		httpx.WriteError(ctx, w, httpx.NewError("already_cancelled", "order is already cancelled", http.StatusConflict))
	case errors.Is(err, services.ErrCancelAlreadyRequested):
		httpx.WriteError(ctx, w, httpx.NewError("cancellation_requested", "cancellation already requested", http.StatusConflict))
	case errors.Is(err, services.ErrCancelCoolingOffExpired):
		httpx.WriteError(ctx, w, httpx.NewError("cooling_off_expired", "the 14 day cooling-off period has expired", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCancelCustomItemLocked):
		httpx.WriteError(ctx, w, httpx.NewError("custom_items_locked", "customised items are already in production", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCancelProductionStarted):
		httpx.WriteError(ctx, w, httpx.NewError("production_started", "production has already started", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCancelNotAllowedAtStage):
		httpx.WriteError(ctx, w, httpx.NewError("cancel_not_allowed", "order cannot be cancelled at this stage", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
