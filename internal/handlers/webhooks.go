package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shirthaus/api/internal/payments"
	"github.com/shirthaus/api/internal/platform/httpx"
	"github.com/shirthaus/api/internal/services"
	"github.com/shirthaus/api/internal/shipping"
)

const maxWebhookBody = 64 * 1024

// CarrierWebhookVerifier validates the signed tracking token sent by the
// carrier aggregator.
type CarrierWebhookVerifier interface {
	Verify(token string) (shipping.WebhookUpdate, error)
}

// WebhookHandlers terminates payment gateway and carrier callbacks.
type WebhookHandlers struct {
	checkout     services.CheckoutService
	orders       services.OrderService
	stripeSecret string
	carrier      CarrierWebhookVerifier

	// verifyStripe is swappable for tests.
	verifyStripe func(payload []byte, signature string, secret string) (payments.WebhookEvent, error)
}

// NewWebhookHandlers constructs webhook handlers.
func NewWebhookHandlers(checkout services.CheckoutService, orders services.OrderService, stripeSecret string, carrier CarrierWebhookVerifier) *WebhookHandlers {
	return &WebhookHandlers{
		checkout:     checkout,
		orders:       orders,
		stripeSecret: stripeSecret,
		carrier:      carrier,
		verifyStripe: payments.VerifyWebhook,
	}
}

// Routes registers webhook endpoints under the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.stripe)
	r.Post("/shipping", h.shipping)
}

type webhookAck struct {
	Received     bool   `json:"received"`
	OrderCreated bool   `json:"orderCreated,omitempty"`
	Updated      bool   `json:"updated,omitempty"`
	Reference    string `json:"reference,omitempty"`
}

func (h *WebhookHandlers) stripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBody)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	event, err := h.verifyStripe(body, r.Header.Get("Stripe-Signature"), h.stripeSecret)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
		return
	}

	switch event.Type {
	case payments.EventPaymentSucceeded:
		order, created, err := h.checkout.ConfirmPayment(ctx, event.IntentID, event.OrderDataKey)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("webhook_error", "failed to confirm payment", http.StatusInternalServerError))
			return
		}
		writeJSONResponse(w, http.StatusOK, webhookAck{Received: true, OrderCreated: created, Reference: order.Reference})
	case payments.EventPaymentFailed:
		if err := h.checkout.FailPayment(ctx, event.IntentID, event.OrderDataKey); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("webhook_error", "failed to record payment failure", http.StatusInternalServerError))
			return
		}
		writeJSONResponse(w, http.StatusOK, webhookAck{Received: true})
	default:
		// Unhandled event types are acknowledged so Stripe stops retrying.
		writeJSONResponse(w, http.StatusOK, webhookAck{Received: true})
	}
}

type shippingWebhookRequest struct {
	Token string `json:"token"`
}

func (h *WebhookHandlers) shipping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil || h.carrier == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBody)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	var req shippingWebhookRequest
	if err := json.Unmarshal(body, &req); err != nil || strings.TrimSpace(req.Token) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "token is required", http.StatusBadRequest))
		return
	}

	update, err := h.carrier.Verify(req.Token)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_token", "tracking token verification failed", http.StatusUnauthorized))
		return
	}

	if update.Status != shipping.WebhookStatusDelivered {
		writeJSONResponse(w, http.StatusOK, webhookAck{Received: true})
		return
	}

	order, err := h.orders.MarkDeliveredByTracking(ctx, update.TrackingNumber)
	if err != nil {
		// Unknown tracking numbers are acknowledged; the carrier retries
		// otherwise and the order will never appear.
		if errors.Is(err, services.ErrOrderNotFound) {
			writeJSONResponse(w, http.StatusOK, webhookAck{Received: true})
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("webhook_error", "failed to record delivery", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, webhookAck{Received: true, Updated: true, Reference: order.Reference})
}
