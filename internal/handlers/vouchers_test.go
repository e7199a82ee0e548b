package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/shirthaus/api/internal/domain"
	"github.com/shirthaus/api/internal/services"
)

func TestValidateVoucher(t *testing.T) {
	svc := &stubVoucherService{
		validateResp: domain.VoucherResult{
			Voucher:        domain.Voucher{Code: "SAVE10", Type: domain.VoucherPercentage},
			DiscountAmount: 300,
		},
	}
	handler := NewVoucherHandlers(svc)
	router := chi.NewRouter()
	handler.Routes(router)

	payload, _ := json.Marshal(map[string]any{
		"code":     "SAVE10",
		"subtotal": 3000,
		"items": []map[string]any{
			{"productId": "prod_tee", "category": "tshirts", "quantity": 2, "unitAmount": 1500},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/validate", bytes.NewReader(payload))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.validateCode != "SAVE10" || svc.validateTotal != 3000 {
		t.Fatalf("unexpected validate call: code=%q subtotal=%d", svc.validateCode, svc.validateTotal)
	}
	if len(svc.validateItems) != 1 || svc.validateItems[0].Category != "tshirts" {
		t.Fatalf("unexpected items passed through: %#v", svc.validateItems)
	}
	var decoded validateVoucherResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if decoded.Code != "SAVE10" || decoded.Type != "percentage" || decoded.DiscountAmount != 300 {
		t.Fatalf("unexpected validation payload: %#v", decoded)
	}
}

func TestValidateVoucherRequiresCode(t *testing.T) {
	handler := NewVoucherHandlers(&stubVoucherService{})
	router := chi.NewRouter()
	handler.Routes(router)

	payload, _ := json.Marshal(map[string]any{"subtotal": 3000})
	req := httptest.NewRequest(http.MethodPost, "/validate", bytes.NewReader(payload))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if code := decodeErrorCode(t, resp); code != "invalid_request" {
		t.Fatalf("expected invalid_request, got %q", code)
	}
}

func TestValidateVoucherErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", services.ErrVoucherNotFound, http.StatusNotFound, "voucher_not_found"},
		{"expired", services.ErrVoucherExpired, http.StatusUnprocessableEntity, "voucher_expired"},
		{"exhausted", services.ErrVoucherExhausted, http.StatusUnprocessableEntity, "voucher_exhausted"},
		{"not applicable", services.ErrVoucherNotApplicable, http.StatusUnprocessableEntity, "voucher_not_applicable"},
		{"below minimum", services.ErrVoucherBelowMinimum, http.StatusUnprocessableEntity, "voucher_below_minimum"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubVoucherService{validateErr: tc.err}
			handler := NewVoucherHandlers(svc)
			router := chi.NewRouter()
			handler.Routes(router)

			payload, _ := json.Marshal(map[string]any{"code": "SAVE10", "subtotal": 100})
			req := httptest.NewRequest(http.MethodPost, "/validate", bytes.NewReader(payload))
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
