package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shirthaus/api/internal/domain"
	"github.com/shirthaus/api/internal/platform/auth"
	"github.com/shirthaus/api/internal/platform/httpx"
	"github.com/shirthaus/api/internal/platform/pagination"
	"github.com/shirthaus/api/internal/services"
)

const maxStockRequestBody = 8 * 1024

// StockHandlers exposes the back-office stock ledger, alert and supply order endpoints.
type StockHandlers struct {
	stock services.StockService
}

// NewStockHandlers constructs admin stock handlers.
func NewStockHandlers(stock services.StockService) *StockHandlers {
	return &StockHandlers{stock: stock}
}

// Routes registers stock endpoints under the provided (admin) router.
func (h *StockHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/stock", h.listStock)
	r.Get("/stock/adjustments", h.listAdjustments)
	r.Get("/stock/alerts", h.listAlerts)
	r.Get("/stock/{productID}", h.getStock)
	r.Post("/stock/adjustments", h.adjust)
	r.Get("/supply-orders", h.listSupplyOrders)
	r.Post("/supply-orders", h.createSupplyOrder)
	r.Post("/supply-orders/{supplyOrderID}/receive", h.receiveSupplyOrder)
}

// adminActor resolves the acting staff member for audit trails.
func adminActor(ctx context.Context) string {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil {
		return ""
	}
	if email := strings.TrimSpace(identity.Email); email != "" {
		return email
	}
	return strings.TrimSpace(identity.UID)
}

func requestPagination(r *http.Request) (domain.Pagination, error) {
	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		return domain.Pagination{}, err
	}
	return domain.Pagination{PageSize: params.PageSize, PageToken: params.PageToken}, nil
}

type productView struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Category  string         `json:"category"`
	UnitPrice int64          `json:"unitPrice"`
	Currency  string         `json:"currency"`
	Stock     map[string]int `json:"stock"`
	Active    bool           `json:"active"`
}

func newProductView(p domain.Product) productView {
	return productView{
		ID:        p.ID,
		Name:      p.Name,
		Category:  p.Category,
		UnitPrice: p.UnitPrice,
		Currency:  p.Currency,
		Stock:     p.Stock,
		Active:    p.Active,
	}
}

type adjustmentView struct {
	ID             string `json:"id"`
	ProductID      string `json:"productId"`
	ProductName    string `json:"productName"`
	Size           string `json:"size"`
	Delta          int    `json:"delta"`
	QuantityBefore int    `json:"quantityBefore"`
	QuantityAfter  int    `json:"quantityAfter"`
	Reason         string `json:"reason"`
	Actor          string `json:"actor"`
	CreatedAt      string `json:"createdAt"`
}

func newAdjustmentView(a domain.StockAdjustment) adjustmentView {
	return adjustmentView{
		ID:             a.ID,
		ProductID:      a.ProductID,
		ProductName:    a.ProductName,
		Size:           a.Size,
		Delta:          a.Delta,
		QuantityBefore: a.QuantityBefore,
		QuantityAfter:  a.QuantityAfter,
		Reason:         a.Reason,
		Actor:          a.Actor,
		CreatedAt:      formatTime(a.CreatedAt),
	}
}

type alertView struct {
	ID           string `json:"id"`
	ProductID    string `json:"productId"`
	ProductName  string `json:"productName"`
	Size         string `json:"size"`
	CurrentStock int    `json:"currentStock"`
	Threshold    int    `json:"threshold"`
	Status       string `json:"status"`
	CreatedAt    string `json:"createdAt"`
	ResolvedAt   string `json:"resolvedAt,omitempty"`
}

func newAlertView(a domain.StockAlert) alertView {
	return alertView{
		ID:           a.ID,
		ProductID:    a.ProductID,
		ProductName:  a.ProductName,
		Size:         a.Size,
		CurrentStock: a.CurrentStock,
		Threshold:    a.Threshold,
		Status:       string(a.Status),
		CreatedAt:    formatTime(a.CreatedAt),
		ResolvedAt:   formatTimePtr(a.ResolvedAt),
	}
}

type supplyOrderView struct {
	ID          string `json:"id"`
	Reference   string `json:"reference"`
	Supplier    string `json:"supplier"`
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Size        string `json:"size"`
	Quantity    int    `json:"quantity"`
	Status      string `json:"status"`
	CreatedAt   string `json:"createdAt"`
	ReceivedAt  string `json:"receivedAt,omitempty"`
}

func newSupplyOrderView(o domain.SupplyOrder) supplyOrderView {
	return supplyOrderView{
		ID:          o.ID,
		Reference:   o.Reference,
		Supplier:    o.Supplier,
		ProductID:   o.ProductID,
		ProductName: o.ProductName,
		Size:        o.Size,
		Quantity:    o.Quantity,
		Status:      string(o.Status),
		CreatedAt:   formatTime(o.CreatedAt),
		ReceivedAt:  formatTimePtr(o.ReceivedAt),
	}
}

type listResponse[T any] struct {
	Items         []T    `json:"items"`
	NextPageToken string `json:"nextPageToken,omitempty"`
}

func (h *StockHandlers) listStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, err := requestPagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.StockListFilter{
		ActiveOnly: r.URL.Query().Get("active") == "true",
		Pagination: page,
	}
	if category := strings.TrimSpace(r.URL.Query().Get("category")); category != "" {
		filter.Category = &category
	}

	result, err := h.stock.ListStock(ctx, filter)
	if err != nil {
		h.writeStockError(ctx, w, err)
		return
	}

	resp := listResponse[productView]{Items: make([]productView, 0, len(result.Items)), NextPageToken: result.NextPageToken}
	for _, product := range result.Items {
		resp.Items = append(resp.Items, newProductView(product))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *StockHandlers) getStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))

	product, err := h.stock.GetStock(ctx, productID)
	if err != nil {
		h.writeStockError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newProductView(product))
}

type stockAdjustRequest struct {
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Delta     int    `json:"delta"`
	Reason    string `json:"reason"`
}

type stockAdjustResponse struct {
	Adjustment adjustmentView `json:"adjustment"`
	Alert      *alertView     `json:"alert,omitempty"`
	AlertEvent string         `json:"alertEvent,omitempty"`
}

func (h *StockHandlers) adjust(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxStockRequestBody)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	var req stockAdjustRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	outcome, err := h.stock.AdjustStock(ctx, services.StockAdjustCommand{
		ProductID: strings.TrimSpace(req.ProductID),
		Size:      strings.TrimSpace(req.Size),
		Delta:     req.Delta,
		Reason:    strings.TrimSpace(req.Reason),
		Actor:     adminActor(ctx),
	})
	if err != nil {
		h.writeStockError(ctx, w, err)
		return
	}

	resp := stockAdjustResponse{
		Adjustment: newAdjustmentView(outcome.Adjustment),
		AlertEvent: outcome.AlertEvent,
	}
	if outcome.Alert != nil {
		alert := newAlertView(*outcome.Alert)
		resp.Alert = &alert
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *StockHandlers) listAdjustments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, err := requestPagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.stock.ListAdjustments(ctx, services.StockAdjustmentListFilter{
		ProductID:  strings.TrimSpace(r.URL.Query().Get("productId")),
		Size:       strings.TrimSpace(r.URL.Query().Get("size")),
		Pagination: page,
	})
	if err != nil {
		h.writeStockError(ctx, w, err)
		return
	}

	resp := listResponse[adjustmentView]{Items: make([]adjustmentView, 0, len(result.Items)), NextPageToken: result.NextPageToken}
	for _, adjustment := range result.Items {
		resp.Items = append(resp.Items, newAdjustmentView(adjustment))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *StockHandlers) listAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, err := requestPagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.stock.ListAlerts(ctx, services.StockAlertListFilter{
		ActiveOnly: r.URL.Query().Get("active") != "false",
		Pagination: page,
	})
	if err != nil {
		h.writeStockError(ctx, w, err)
		return
	}

	resp := listResponse[alertView]{Items: make([]alertView, 0, len(result.Items)), NextPageToken: result.NextPageToken}
	for _, alert := range result.Items {
		resp.Items = append(resp.Items, newAlertView(alert))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

type createSupplyOrderRequest struct {
	Supplier  string `json:"supplier"`
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

func (h *StockHandlers) createSupplyOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxStockRequestBody)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	var req createSupplyOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	order, err := h.stock.CreateSupplyOrder(ctx, services.CreateSupplyOrderCommand{
		Supplier:  strings.TrimSpace(req.Supplier),
		ProductID: strings.TrimSpace(req.ProductID),
		Size:      strings.TrimSpace(req.Size),
		Quantity:  req.Quantity,
		Actor:     adminActor(ctx),
	})
	if err != nil {
		h.writeStockError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, newSupplyOrderView(order))
}

func (h *StockHandlers) receiveSupplyOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	supplyOrderID := strings.TrimSpace(chi.URLParam(r, "supplyOrderID"))

	order, err := h.stock.ReceiveSupplyOrder(ctx, supplyOrderID, adminActor(ctx))
	if err != nil {
		// The receipt may have committed even though the stock credit failed;
		// surface the partial state so staff can re-apply the credit manually.
		if order.ID != "" {
			writeJSONResponse(w, http.StatusOK, struct {
				supplyOrderView
				Warning string `json:"warning"`
			}{newSupplyOrderView(order), "stock credit failed; adjust stock manually"})
			return
		}
		h.writeStockError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newSupplyOrderView(order))
}

func (h *StockHandlers) listSupplyOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, err := requestPagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.SupplyOrderListFilter{Pagination: page}
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		filter.Status = []domain.SupplyOrderStatus{domain.SupplyOrderStatus(status)}
	}

	result, err := h.stock.ListSupplyOrders(ctx, filter)
	if err != nil {
		h.writeStockError(ctx, w, err)
		return
	}

	resp := listResponse[supplyOrderView]{Items: make([]supplyOrderView, 0, len(result.Items)), NextPageToken: result.NextPageToken}
	for _, order := range result.Items {
		resp.Items = append(resp.Items, newSupplyOrderView(order))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *StockHandlers) writeStockError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrStockInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrStockProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrStockSizeNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("size_not_found", "size is not stocked for this product", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrStockInsufficient):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", "adjustment would drive stock negative", http.StatusConflict))
	case errors.Is(err, services.ErrSupplyOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("supply_order_not_found", "supply order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrSupplyOrderAlreadyReceived):
		httpx.WriteError(ctx, w, httpx.NewError("supply_order_received", "supply order already received", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("stock_error", "failed to process stock request", http.StatusInternalServerError))
	}
}
