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

const maxVoucherRequestBody = 16 * 1024

// VoucherHandlers exposes the public voucher validation endpoint so the
// storefront can price a discount before checkout begins.
type VoucherHandlers struct {
	vouchers services.VoucherService
}

// NewVoucherHandlers constructs public voucher handlers.
func NewVoucherHandlers(vouchers services.VoucherService) *VoucherHandlers {
	return &VoucherHandlers{vouchers: vouchers}
}

// Routes registers voucher endpoints under the provided router.
func (h *VoucherHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/validate", h.validate)
}

type validateVoucherRequest struct {
	Code     string `json:"code"`
	Subtotal int64  `json:"subtotal"`
	Items    []struct {
		ProductID  string `json:"productId"`
		Category   string `json:"category"`
		Quantity   int    `json:"quantity"`
		UnitAmount int64  `json:"unitAmount"`
	} `json:"items"`
}

type validateVoucherResponse struct {
	Code           string `json:"code"`
	Type           string `json:"type"`
	DiscountAmount int64  `json:"discountAmount"`
	FreeShipping   bool   `json:"freeShipping"`
}

func (h *VoucherHandlers) validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.vouchers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("vouchers_unavailable", "voucher service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxVoucherRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req validateVoucherRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "code is required", http.StatusBadRequest))
		return
	}

	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.OrderItem{
			ProductID:  strings.TrimSpace(item.ProductID),
			Category:   strings.TrimSpace(item.Category),
			Quantity:   item.Quantity,
			UnitAmount: item.UnitAmount,
		})
	}

	result, err := h.vouchers.Validate(ctx, req.Code, req.Subtotal, items)
	if err != nil {
		writeVoucherError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, validateVoucherResponse{
		Code:           result.Voucher.Code,
		Type:           string(result.Voucher.Type),
		DiscountAmount: result.DiscountAmount,
		FreeShipping:   result.FreeShipping,
	})
}

func writeVoucherError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrVoucherInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrVoucherNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("voucher_not_found", "voucher code is not valid", http.StatusNotFound))
	case errors.Is(err, services.ErrVoucherExpired):
		httpx.WriteError(ctx, w, httpx.NewError("voucher_expired", "voucher is outside its validity window", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrVoucherExhausted):
		httpx.WriteError(ctx, w, httpx.NewError("voucher_exhausted", "voucher usage limit reached", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrVoucherNotApplicable):
		httpx.WriteError(ctx, w, httpx.NewError("voucher_not_applicable", "voucher does not apply to these items", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrVoucherBelowMinimum):
		httpx.WriteError(ctx, w, httpx.NewError("voucher_below_minimum", "order is below the voucher minimum spend", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrVoucherCodeConflict):
		httpx.WriteError(ctx, w, httpx.NewError("voucher_code_conflict", "voucher code already exists", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("voucher_error", "failed to process voucher request", http.StatusInternalServerError))
	}
}
