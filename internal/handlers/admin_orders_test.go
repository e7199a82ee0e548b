package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shirthaus/api/internal/domain"
	"github.com/shirthaus/api/internal/platform/storage"
	"github.com/shirthaus/api/internal/services"
)

type stubLabelLinks struct {
	result    storage.SignedURLResult
	err       error
	reference string
	tracking  string
}

func (s *stubLabelLinks) DownloadURL(_ context.Context, orderReference, trackingNumber string) (storage.SignedURLResult, error) {
	s.reference = orderReference
	s.tracking = trackingNumber
	return s.result, s.err
}

func TestAdvanceProduction(t *testing.T) {
	advanced := sampleOrder()
	advanced.ProductionStatus = domain.ProductionInProgress
	svc := &stubOrderService{advanceResp: advanced}
	handler := NewAdminOrderHandlers(svc, nil)
	router := chi.NewRouter()
	handler.Routes(router)

	payload, _ := json.Marshal(map[string]string{"target": "in_production"})
	req := httptest.NewRequest(http.MethodPost, "/orders/ord_01/production", bytes.NewReader(payload))
	req = withStaffIdentity(req, "staff@shirthaus.co.uk")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.advanceTarget != domain.ProductionInProgress {
		t.Fatalf("unexpected target: %q", svc.advanceTarget)
	}
	if svc.advanceActor != "staff@shirthaus.co.uk" {
		t.Fatalf("expected actor from identity, got %q", svc.advanceActor)
	}
	var decoded orderView
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if decoded.ProductionStatus != "in_production" {
		t.Fatalf("unexpected production status: %q", decoded.ProductionStatus)
	}
}

func TestAdvanceProductionInvalidTransition(t *testing.T) {
	svc := &stubOrderService{advanceErr: services.ErrOrderInvalidTransition}
	handler := NewAdminOrderHandlers(svc, nil)
	router := chi.NewRouter()
	handler.Routes(router)

	payload, _ := json.Marshal(map[string]string{"target": "completed"})
	req := httptest.NewRequest(http.MethodPost, "/orders/ord_01/production", bytes.NewReader(payload))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
	if code := decodeErrorCode(t, resp); code != "invalid_transition" {
		t.Fatalf("expected invalid_transition, got %q", code)
	}
}

func TestLabelDownloadURL(t *testing.T) {
	order := sampleOrder()
	order.Shipping.TrackingNumber = strPtr("TRK123")
	svc := &stubOrderService{getResp: order}
	links := &stubLabelLinks{result: storage.SignedURLResult{
		URL:       "https://storage.example.com/labels/SH-260710-0001/TRK123.pdf?sig=abc",
		Method:    http.MethodGet,
		ExpiresAt: time.Date(2026, time.July, 10, 9, 5, 0, 0, time.UTC),
	}}
	handler := NewAdminOrderHandlers(svc, links)
	router := chi.NewRouter()
	handler.Routes(router)

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_01/label", nil)
	req = withStaffIdentity(req, "staff@shirthaus.co.uk")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if links.reference != "SH-260710-0001" || links.tracking != "TRK123" {
		t.Fatalf("unexpected link request: ref=%q tracking=%q", links.reference, links.tracking)
	}
	var decoded labelLinkView
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if decoded.URL == "" || decoded.Method != http.MethodGet {
		t.Fatalf("unexpected link view: %#v", decoded)
	}
}

func TestLabelDownloadURLWithoutProviderReturns503(t *testing.T) {
	handler := NewAdminOrderHandlers(&stubOrderService{}, nil)
	router := chi.NewRouter()
	handler.Routes(router)

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_01/label", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
	if code := decodeErrorCode(t, resp); code != "labels_unavailable" {
		t.Fatalf("expected labels_unavailable, got %q", code)
	}
}

func TestLabelDownloadURLWithoutTrackingReturnsConflict(t *testing.T) {
	svc := &stubOrderService{getResp: sampleOrder()}
	handler := NewAdminOrderHandlers(svc, &stubLabelLinks{})
	router := chi.NewRouter()
	handler.Routes(router)

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_01/label", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
	if code := decodeErrorCode(t, resp); code != "label_not_ready" {
		t.Fatalf("expected label_not_ready, got %q", code)
	}
}

func TestRefundOrder(t *testing.T) {
	refunded := sampleOrder()
	refunded.Status = domain.OrderStatusCancelled
	refunded.Refund = &domain.RefundRecord{
		Amount:     4078,
		Reason:     "cancelled within cooling off",
		RefundedAt: time.Date(2026, time.July, 11, 9, 0, 0, 0, time.UTC),
		RefundedBy: "staff@shirthaus.co.uk",
	}
	svc := &stubOrderService{refundResp: refunded}
	handler := NewAdminOrderHandlers(svc, nil)
	router := chi.NewRouter()
	handler.Routes(router)

	payload, _ := json.Marshal(map[string]any{"amount": 4078, "reason": "cancelled within cooling off"})
	req := httptest.NewRequest(http.MethodPost, "/orders/ord_01/refund", bytes.NewReader(payload))
	req = withStaffIdentity(req, "staff@shirthaus.co.uk")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.refundCmd.OrderID != "ord_01" || svc.refundCmd.Amount != 4078 {
		t.Fatalf("unexpected refund command: %#v", svc.refundCmd)
	}
	if svc.refundCmd.Actor != "staff@shirthaus.co.uk" {
		t.Fatalf("expected actor from identity, got %q", svc.refundCmd.Actor)
	}
}

func TestRefundOrderErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not cancelled", services.ErrRefundNotCancelled, http.StatusConflict, "refund_not_allowed"},
		{"already refunded", services.ErrRefundAlreadyRefunded, http.StatusConflict, "refund_not_allowed"},
		{"transaction missing", services.ErrRefundTransactionMissing, http.StatusUnprocessableEntity, "refund_transaction_missing"},
		{"amount exceeds original", services.ErrRefundAmountExceedsOriginal, http.StatusBadRequest, "refund_amount_invalid"},
		{"gateway rejected", services.ErrRefundGateway, http.StatusBadGateway, "refund_gateway_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubOrderService{refundErr: tc.err}
			handler := NewAdminOrderHandlers(svc, nil)
			router := chi.NewRouter()
			handler.Routes(router)

			payload, _ := json.Marshal(map[string]any{"amount": 100, "reason": "test"})
			req := httptest.NewRequest(http.MethodPost, "/orders/ord_01/refund", bytes.NewReader(payload))
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

func TestRecomputePriorities(t *testing.T) {
	svc := &stubOrderService{recomputeN: 7}
	handler := NewAdminOrderHandlers(svc, nil)
	router := chi.NewRouter()
	handler.Routes(router)

	req := httptest.NewRequest(http.MethodPost, "/orders/recompute-priorities", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var decoded map[string]int
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if decoded["updated"] != 7 {
		t.Fatalf("expected 7 updated, got %d", decoded["updated"])
	}
}

func TestListOrdersParsesFilter(t *testing.T) {
	svc := &stubOrderService{}
	handler := NewAdminOrderHandlers(svc, nil)
	router := chi.NewRouter()
	handler.Routes(router)

	req := httptest.NewRequest(http.MethodGet, "/orders?status=paid,in_production&email=jo%40example.co.uk&from=2026-07-01", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if len(svc.listFilter.Status) != 2 || svc.listFilter.Status[0] != "paid" {
		t.Fatalf("unexpected status filter: %#v", svc.listFilter.Status)
	}
	if svc.listFilter.Email != "jo@example.co.uk" {
		t.Fatalf("unexpected email filter: %q", svc.listFilter.Email)
	}
	if svc.listFilter.From == nil || !svc.listFilter.From.Equal(time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected from filter: %v", svc.listFilter.From)
	}
}
