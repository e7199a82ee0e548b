package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shirthaus/api/internal/platform/httpx"
	"github.com/shirthaus/api/internal/services"
)

// AdminReportHandlers exposes the back-office sales reporting endpoints.
type AdminReportHandlers struct {
	reports services.ReportingService
}

// NewAdminReportHandlers constructs admin report handlers.
func NewAdminReportHandlers(reports services.ReportingService) *AdminReportHandlers {
	return &AdminReportHandlers{reports: reports}
}

// Routes registers reporting endpoints under the provided router.
func (h *AdminReportHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/reports/sales", h.salesSummary)
	r.Post("/reports/sales/export", h.exportSales)
}

type productSalesView struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
}

type salesSummaryView struct {
	From          string             `json:"from"`
	To            string             `json:"to"`
	OrderCount    int                `json:"orderCount"`
	GrossRevenue  int64              `json:"grossRevenue"`
	VATCollected  int64              `json:"vatCollected"`
	DiscountGiven int64              `json:"discountGiven"`
	TopProducts   []productSalesView `json:"topProducts"`
}

func (h *AdminReportHandlers) salesSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	from, to, ok := h.window(ctx, w, r)
	if !ok {
		return
	}

	summary, err := h.reports.SalesSummary(ctx, from, to)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	view := salesSummaryView{
		From:          formatTime(summary.From),
		To:            formatTime(summary.To),
		OrderCount:    summary.OrderCount,
		GrossRevenue:  summary.GrossRevenue,
		VATCollected:  summary.VATCollected,
		DiscountGiven: summary.DiscountGiven,
		TopProducts:   make([]productSalesView, 0, len(summary.TopProducts)),
	}
	for _, product := range summary.TopProducts {
		view.TopProducts = append(view.TopProducts, productSalesView{
			ProductID:   product.ProductID,
			ProductName: product.ProductName,
			Quantity:    product.Quantity,
		})
	}
	writeJSONResponse(w, http.StatusOK, view)
}

func (h *AdminReportHandlers) exportSales(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	from, to, ok := h.window(ctx, w, r)
	if !ok {
		return
	}

	path, err := h.reports.ExportSalesCSV(ctx, from, to)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]string{"path": path})
}

func (h *AdminReportHandlers) window(ctx context.Context, w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	if h.reports == nil {
		httpx.WriteError(ctx, w, httpx.NewError("reports_unavailable", "reporting service unavailable", http.StatusServiceUnavailable))
		return time.Time{}, time.Time{}, false
	}

	from, okFrom := parseQueryTime(r, "from")
	to, okTo := parseQueryTime(r, "to")
	if !okFrom || !okTo {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "from and to are required (RFC 3339 or YYYY-MM-DD)", http.StatusBadRequest))
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func (h *AdminReportHandlers) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrReportInvalidWindow):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_window", err.Error(), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("report_error", "failed to produce report", http.StatusInternalServerError))
	}
}
