package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shirthaus/api/internal/domain"
	"github.com/shirthaus/api/internal/platform/httpx"
	"github.com/shirthaus/api/internal/services"
)

const maxCheckoutRequestBody = 32 * 1024

// CheckoutHandlers exposes the guest checkout endpoints.
type CheckoutHandlers struct {
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs checkout handlers.
func NewCheckoutHandlers(checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{checkout: checkout}
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/quote", h.quote)
	r.Post("/", h.begin)
}

type checkoutItemRequest struct {
	ProductID     string `json:"productId"`
	Size          string `json:"size"`
	Quantity      int    `json:"quantity"`
	Customization *struct {
		Text      string `json:"text"`
		Placement string `json:"placement"`
	} `json:"customization"`
}

type checkoutRequest struct {
	Email          string                `json:"email"`
	Items          []checkoutItemRequest `json:"items"`
	VoucherCode    string                `json:"voucherCode"`
	ShippingMethod string                `json:"shippingMethod"`
	Address        struct {
		Recipient  string `json:"recipient"`
		Line1      string `json:"line1"`
		Line2      string `json:"line2"`
		City       string `json:"city"`
		County     string `json:"county"`
		PostalCode string `json:"postalCode"`
		Phone      string `json:"phone"`
	} `json:"address"`
}

type quoteResponse struct {
	Items        []orderItemView `json:"items"`
	Totals       totalsView      `json:"totals"`
	Currency     string          `json:"currency"`
	VoucherCode  string          `json:"voucherCode,omitempty"`
	FreeShipping bool            `json:"freeShipping"`
}

type beginCheckoutResponse struct {
	Quote           quoteResponse `json:"quote"`
	PaymentIntentID string        `json:"paymentIntentId"`
	ClientSecret    string        `json:"clientSecret"`
	ExpiresAt       string        `json:"expiresAt"`
}

func (h *CheckoutHandlers) quote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	input, ok := h.decodeInput(w, r)
	if !ok {
		return
	}

	quote, err := h.checkout.Quote(ctx, input)
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newQuoteResponse(quote))
}

func (h *CheckoutHandlers) begin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	input, ok := h.decodeInput(w, r)
	if !ok {
		return
	}

	session, err := h.checkout.BeginCheckout(ctx, input)
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, beginCheckoutResponse{
		Quote:           newQuoteResponse(session.Quote),
		PaymentIntentID: session.PaymentIntentID,
		ClientSecret:    session.ClientSecret,
		ExpiresAt:       formatTime(session.ExpiresAt),
	})
}

func (h *CheckoutHandlers) decodeInput(w http.ResponseWriter, r *http.Request) (services.CheckoutInput, bool) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return services.CheckoutInput{}, false
	}

	body, err := readLimitedBody(r, maxCheckoutRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return services.CheckoutInput{}, false
	}

	var req checkoutRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return services.CheckoutInput{}, false
	}

	input := services.CheckoutInput{
		Email:          strings.TrimSpace(req.Email),
		VoucherCode:    strings.TrimSpace(req.VoucherCode),
		ShippingMethod: strings.TrimSpace(req.ShippingMethod),
		Address: domain.Address{
			Recipient:  strings.TrimSpace(req.Address.Recipient),
			Line1:      strings.TrimSpace(req.Address.Line1),
			City:       strings.TrimSpace(req.Address.City),
			PostalCode: strings.TrimSpace(req.Address.PostalCode),
			Country:    "GB",
		},
	}
	if line2 := strings.TrimSpace(req.Address.Line2); line2 != "" {
		input.Address.Line2 = &line2
	}
	if county := strings.TrimSpace(req.Address.County); county != "" {
		input.Address.County = &county
	}
	if phone := strings.TrimSpace(req.Address.Phone); phone != "" {
		input.Address.Phone = &phone
	}

	for _, item := range req.Items {
		line := services.CheckoutItem{
			ProductID: strings.TrimSpace(item.ProductID),
			Size:      strings.TrimSpace(item.Size),
			Quantity:  item.Quantity,
		}
		if item.Customization != nil {
			line.Customization = &domain.Customization{
				IsCustomized: true,
				Text:         item.Customization.Text,
				Placement:    strings.TrimSpace(item.Customization.Placement),
			}
		}
		input.Items = append(input.Items, line)
	}

	return input, true
}

func newQuoteResponse(quote services.CheckoutQuote) quoteResponse {
	return quoteResponse{
		Items:        newOrderItemViews(quote.Items),
		Totals:       newTotalsView(quote.Totals),
		Currency:     quote.Currency,
		VoucherCode:  quote.VoucherCode,
		FreeShipping: quote.FreeShipping,
	}
}

func (h *CheckoutHandlers) writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "one or more products do not exist", http.StatusNotFound))
	case errors.Is(err, services.ErrCheckoutProductUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("product_unavailable", "one or more products are unavailable", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutSizeNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("size_not_found", "requested size is not stocked", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCheckoutUnknownShipping):
		httpx.WriteError(ctx, w, httpx.NewError("unknown_shipping_method", "shipping method is not supported", http.StatusBadRequest))
	case errors.Is(err, services.ErrVoucherNotFound),
		errors.Is(err, services.ErrVoucherExpired),
		errors.Is(err, services.ErrVoucherExhausted),
		errors.Is(err, services.ErrVoucherNotApplicable),
		errors.Is(err, services.ErrVoucherBelowMinimum):
		httpx.WriteError(ctx, w, httpx.NewError("voucher_rejected", err.Error(), http.StatusUnprocessableEntity))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to process checkout request", http.StatusInternalServerError))
	}
}
