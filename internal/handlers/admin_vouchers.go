package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shirthaus/api/internal/domain"
	"github.com/shirthaus/api/internal/platform/httpx"
	"github.com/shirthaus/api/internal/services"
)

// AdminVoucherHandlers exposes the back-office voucher CRUD endpoints.
type AdminVoucherHandlers struct {
	vouchers services.VoucherService
}

// NewAdminVoucherHandlers constructs admin voucher handlers.
func NewAdminVoucherHandlers(vouchers services.VoucherService) *AdminVoucherHandlers {
	return &AdminVoucherHandlers{vouchers: vouchers}
}

// Routes registers admin voucher endpoints under the provided router.
func (h *AdminVoucherHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/vouchers", h.list)
	r.Post("/vouchers", h.create)
	r.Get("/vouchers/{code}", h.get)
	r.Put("/vouchers/{code}", h.update)
	r.Delete("/vouchers/{code}", h.deactivate)
}

type voucherRequest struct {
	Code               string   `json:"code"`
	Type               string   `json:"type"`
	Value              int64    `json:"value"`
	MinimumOrderAmount int64    `json:"minimumOrderAmount"`
	MaximumDiscount    int64    `json:"maximumDiscount"`
	AppliesTo          string   `json:"appliesTo"`
	ProductIDs         []string `json:"productIds"`
	CategoryIDs        []string `json:"categoryIds"`
	ValidFrom          string   `json:"validFrom"`
	ValidUntil         string   `json:"validUntil"`
	UsageLimit         int      `json:"usageLimit"`
	Active             bool     `json:"active"`
}

type voucherView struct {
	ID                 string   `json:"id"`
	Code               string   `json:"code"`
	Type               string   `json:"type"`
	Value              int64    `json:"value"`
	MinimumOrderAmount int64    `json:"minimumOrderAmount"`
	MaximumDiscount    int64    `json:"maximumDiscount,omitempty"`
	AppliesTo          string   `json:"appliesTo"`
	ProductIDs         []string `json:"productIds,omitempty"`
	CategoryIDs        []string `json:"categoryIds,omitempty"`
	ValidFrom          string   `json:"validFrom"`
	ValidUntil         string   `json:"validUntil"`
	UsageLimit         int      `json:"usageLimit"`
	UsedCount          int      `json:"usedCount"`
	Active             bool     `json:"active"`
	CreatedAt          string   `json:"createdAt"`
	UpdatedAt          string   `json:"updatedAt"`
}

func newVoucherView(v domain.Voucher) voucherView {
	return voucherView{
		ID:                 v.ID,
		Code:               v.Code,
		Type:               string(v.Type),
		Value:              v.Value,
		MinimumOrderAmount: v.MinimumOrderAmount,
		MaximumDiscount:    v.MaximumDiscount,
		AppliesTo:          string(v.AppliesTo),
		ProductIDs:         v.ProductIDs,
		CategoryIDs:        v.CategoryIDs,
		ValidFrom:          formatTime(v.ValidFrom),
		ValidUntil:         formatTime(v.ValidUntil),
		UsageLimit:         v.UsageLimit,
		UsedCount:          v.UsedCount,
		Active:             v.Active,
		CreatedAt:          formatTime(v.CreatedAt),
		UpdatedAt:          formatTime(v.UpdatedAt),
	}
}

func (h *AdminVoucherHandlers) decodeCommand(w http.ResponseWriter, r *http.Request) (services.VoucherCommand, bool) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxVoucherRequestBody)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return services.VoucherCommand{}, false
	}
	var req voucherRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return services.VoucherCommand{}, false
	}

	cmd := services.VoucherCommand{
		Code:               strings.TrimSpace(req.Code),
		Type:               domain.VoucherType(strings.TrimSpace(req.Type)),
		Value:              req.Value,
		MinimumOrderAmount: req.MinimumOrderAmount,
		MaximumDiscount:    req.MaximumDiscount,
		AppliesTo:          domain.VoucherScope(strings.TrimSpace(req.AppliesTo)),
		ProductIDs:         req.ProductIDs,
		CategoryIDs:        req.CategoryIDs,
		UsageLimit:         req.UsageLimit,
		Active:             req.Active,
	}
	if cmd.AppliesTo == "" {
		cmd.AppliesTo = domain.VoucherScopeAll
	}

	for _, window := range []struct {
		raw    string
		target *time.Time
		name   string
	}{
		{req.ValidFrom, &cmd.ValidFrom, "validFrom"},
		{req.ValidUntil, &cmd.ValidUntil, "validUntil"},
	} {
		if strings.TrimSpace(window.raw) == "" {
			continue
		}
		parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(window.raw))
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", window.name+" must be RFC 3339", http.StatusBadRequest))
			return services.VoucherCommand{}, false
		}
		*window.target = parsed
	}

	return cmd, true
}

func (h *AdminVoucherHandlers) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cmd, ok := h.decodeCommand(w, r)
	if !ok {
		return
	}

	voucher, err := h.vouchers.CreateVoucher(ctx, cmd)
	if err != nil {
		writeVoucherError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, newVoucherView(voucher))
}

func (h *AdminVoucherHandlers) update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cmd, ok := h.decodeCommand(w, r)
	if !ok {
		return
	}

	voucher, err := h.vouchers.UpdateVoucher(ctx, strings.TrimSpace(chi.URLParam(r, "code")), cmd)
	if err != nil {
		writeVoucherError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newVoucherView(voucher))
}

func (h *AdminVoucherHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	voucher, err := h.vouchers.GetVoucher(ctx, strings.TrimSpace(chi.URLParam(r, "code")))
	if err != nil {
		writeVoucherError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newVoucherView(voucher))
}

func (h *AdminVoucherHandlers) deactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	voucher, err := h.vouchers.DeactivateVoucher(ctx, strings.TrimSpace(chi.URLParam(r, "code")))
	if err != nil {
		writeVoucherError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newVoucherView(voucher))
}

func (h *AdminVoucherHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, err := requestPagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.vouchers.ListVouchers(ctx, services.VoucherListFilter{
		ActiveOnly: r.URL.Query().Get("active") == "true",
		Pagination: page,
	})
	if err != nil {
		writeVoucherError(ctx, w, err)
		return
	}

	resp := listResponse[voucherView]{Items: make([]voucherView, 0, len(result.Items)), NextPageToken: result.NextPageToken}
	for _, voucher := range result.Items {
		resp.Items = append(resp.Items, newVoucherView(voucher))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}
