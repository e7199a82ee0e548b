package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shirthaus/api/internal/domain"
	"github.com/shirthaus/api/internal/services"
)

func checkoutBody() map[string]any {
	return map[string]any{
		"email":          "jo@example.co.uk",
		"shippingMethod": "Standard Delivery",
		"voucherCode":    "SAVE10",
		"items": []map[string]any{
			{
				"productId": "prod_tee",
				"size":      "M",
				"quantity":  2,
				"customization": map[string]any{
					"text":      "HAPPY 40TH",
					"placement": "front",
				},
			},
		},
		"address": map[string]any{
			"recipient":  "Jo Bloggs",
			"line1":      "1 High Street",
			"city":       "Leeds",
			"postalCode": "LS1 1AA",
		},
	}
}

func TestCheckoutQuote(t *testing.T) {
	svc := &stubCheckoutService{
		quoteResp: services.CheckoutQuote{
			Items: []domain.OrderItem{{
				ProductID:   "prod_tee",
				ProductName: "Classic Tee",
				Size:        "M",
				Quantity:    2,
				UnitAmount:  1500,
				Customization: &domain.Customization{
					IsCustomized: true,
					Text:         "HAPPY 40TH",
					Placement:    "front",
				},
			}},
			Totals:      domain.OrderTotals{Subtotal: 3000, Discount: 300, Shipping: 399, VAT: 619, Total: 3718},
			Currency:    "GBP",
			VoucherCode: "SAVE10",
		},
	}
	handler := NewCheckoutHandlers(svc)
	router := chi.NewRouter()
	handler.Routes(router)

	payload, _ := json.Marshal(checkoutBody())
	req := httptest.NewRequest(http.MethodPost, "/quote", bytes.NewReader(payload))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var decoded quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if decoded.Totals.Total != 3718 || decoded.Currency != "GBP" {
		t.Fatalf("unexpected totals: %#v", decoded)
	}
	if len(decoded.Items) != 1 || decoded.Items[0].Customization == nil {
		t.Fatalf("expected customised item view, got %#v", decoded.Items)
	}

	if svc.quoteInput.Address.Country != "GB" {
		t.Fatalf("expected country forced to GB, got %q", svc.quoteInput.Address.Country)
	}
	if len(svc.quoteInput.Items) != 1 || svc.quoteInput.Items[0].Customization == nil || !svc.quoteInput.Items[0].Customization.IsCustomized {
		t.Fatalf("expected customization marked on input, got %#v", svc.quoteInput.Items)
	}
}

func TestBeginCheckoutReturnsSession(t *testing.T) {
	expires := time.Date(2026, time.July, 10, 12, 30, 0, 0, time.UTC)
	svc := &stubCheckoutService{
		beginResp: services.CheckoutSession{
			Quote:           services.CheckoutQuote{Currency: "GBP", Totals: domain.OrderTotals{Total: 3718}},
			PaymentIntentID: "pi_123",
			ClientSecret:    "pi_123_secret",
			ExpiresAt:       expires,
		},
	}
	handler := NewCheckoutHandlers(svc)
	router := chi.NewRouter()
	handler.Routes(router)

	payload, _ := json.Marshal(checkoutBody())
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(payload))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var decoded beginCheckoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if decoded.PaymentIntentID != "pi_123" || decoded.ClientSecret != "pi_123_secret" {
		t.Fatalf("unexpected session payload: %#v", decoded)
	}
	if !strings.HasPrefix(decoded.ExpiresAt, "2026-07-10T12:30:00") {
		t.Fatalf("unexpected expiry: %q", decoded.ExpiresAt)
	}
}

func TestCheckoutErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"product missing", services.ErrCheckoutProductNotFound, http.StatusNotFound, "product_not_found"},
		{"product inactive", services.ErrCheckoutProductUnavailable, http.StatusConflict, "product_unavailable"},
		{"size missing", services.ErrCheckoutSizeNotFound, http.StatusUnprocessableEntity, "size_not_found"},
		{"unknown shipping", services.ErrCheckoutUnknownShipping, http.StatusBadRequest, "unknown_shipping_method"},
		{"voucher expired", services.ErrVoucherExpired, http.StatusUnprocessableEntity, "voucher_rejected"},
		{"voucher below minimum", services.ErrVoucherBelowMinimum, http.StatusUnprocessableEntity, "voucher_rejected"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubCheckoutService{quoteErr: tc.err}
			handler := NewCheckoutHandlers(svc)
			router := chi.NewRouter()
			handler.Routes(router)

			payload, _ := json.Marshal(checkoutBody())
			req := httptest.NewRequest(http.MethodPost, "/quote", bytes.NewReader(payload))
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)

			if resp.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, resp.Code)
			}
			if code := decodeErrorCode(t, resp); code != tc.wantCode {
				t.Fatalf("expected code %q, got %q", tc.wantCode, code)
			}
		})
	}
}

func TestCheckoutRejectsMalformedJSON(t *testing.T) {
	handler := NewCheckoutHandlers(&stubCheckoutService{})
	router := chi.NewRouter()
	handler.Routes(router)

	req := httptest.NewRequest(http.MethodPost, "/quote", strings.NewReader("{not json"))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestCheckoutRejectsOversizedBody(t *testing.T) {
	handler := NewCheckoutHandlers(&stubCheckoutService{})
	router := chi.NewRouter()
	handler.Routes(router)

	big := strings.Repeat("a", maxCheckoutRequestBody+1)
	req := httptest.NewRequest(http.MethodPost, "/quote", strings.NewReader(big))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.Code)
	}
}
