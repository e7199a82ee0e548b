package handlers

import (
	"context"
	"time"

	"github.com/shirthaus/api/internal/domain"
	"github.com/shirthaus/api/internal/services"
)

type stubCheckoutService struct {
	quoteResp    services.CheckoutQuote
	quoteErr     error
	quoteInput   services.CheckoutInput
	beginResp    services.CheckoutSession
	beginErr     error
	beginInput   services.CheckoutInput
	confirmOrder domain.Order
	confirmNew   bool
	confirmErr   error
	confirmCalls []string
	failErr      error
	failCalls    []string
}

func (s *stubCheckoutService) Quote(_ context.Context, input services.CheckoutInput) (services.CheckoutQuote, error) {
	s.quoteInput = input
	return s.quoteResp, s.quoteErr
}

func (s *stubCheckoutService) BeginCheckout(_ context.Context, input services.CheckoutInput) (services.CheckoutSession, error) {
	s.beginInput = input
	return s.beginResp, s.beginErr
}

func (s *stubCheckoutService) ConfirmPayment(_ context.Context, intentID string, dataKey string) (domain.Order, bool, error) {
	s.confirmCalls = append(s.confirmCalls, intentID+"/"+dataKey)
	return s.confirmOrder, s.confirmNew, s.confirmErr
}

func (s *stubCheckoutService) FailPayment(_ context.Context, intentID string, dataKey string) error {
	s.failCalls = append(s.failCalls, intentID+"/"+dataKey)
	return s.failErr
}

func (s *stubCheckoutService) PurgeExpiredTempOrders(context.Context) (int, error) {
	return 0, nil
}

type stubOrderService struct {
	getResp       domain.Order
	getErr        error
	getID         string
	byRefResp     domain.Order
	byRefErr      error
	byRefRef      string
	byRefEmail    string
	listResp      domain.CursorPage[domain.Order]
	listErr       error
	listFilter    services.OrderListFilter
	advanceResp   domain.Order
	advanceErr    error
	advanceTarget domain.ProductionStatus
	advanceActor  string
	deliveredResp domain.Order
	deliveredErr  error
	byTrackResp   domain.Order
	byTrackErr    error
	byTrackNumber string
	labelResp     domain.Order
	labelErr      error
	cancelResp    domain.Order
	cancelErr     error
	cancelCmd     services.CancelOrderCommand
	refundResp    domain.Order
	refundErr     error
	refundCmd     services.RefundOrderCommand
	queueResp     []domain.Order
	queueErr      error
	recomputeN    int
	recomputeErr  error
}

func (s *stubOrderService) CreateOrder(context.Context, services.CreateOrderCommand) (domain.Order, error) {
	return domain.Order{}, nil
}

func (s *stubOrderService) GetOrder(_ context.Context, orderID string) (domain.Order, error) {
	s.getID = orderID
	return s.getResp, s.getErr
}

func (s *stubOrderService) GetOrderByReference(_ context.Context, reference string, email string) (domain.Order, error) {
	s.byRefRef = reference
	s.byRefEmail = email
	return s.byRefResp, s.byRefErr
}

func (s *stubOrderService) ListOrders(_ context.Context, filter services.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	s.listFilter = filter
	return s.listResp, s.listErr
}

func (s *stubOrderService) AdvanceProduction(_ context.Context, _ string, target domain.ProductionStatus, actor string) (domain.Order, error) {
	s.advanceTarget = target
	s.advanceActor = actor
	return s.advanceResp, s.advanceErr
}

func (s *stubOrderService) MarkDelivered(context.Context, string, string) (domain.Order, error) {
	return s.deliveredResp, s.deliveredErr
}

func (s *stubOrderService) MarkDeliveredByTracking(_ context.Context, trackingNumber string) (domain.Order, error) {
	s.byTrackNumber = trackingNumber
	return s.byTrackResp, s.byTrackErr
}

func (s *stubOrderService) MarkPaymentFailed(context.Context, string, string) (domain.Order, error) {
	return domain.Order{}, nil
}

func (s *stubOrderService) GenerateShippingLabel(context.Context, string, string) (domain.Order, error) {
	return s.labelResp, s.labelErr
}

func (s *stubOrderService) CancelOrder(_ context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
	s.cancelCmd = cmd
	return s.cancelResp, s.cancelErr
}

func (s *stubOrderService) RefundOrder(_ context.Context, cmd services.RefundOrderCommand) (domain.Order, error) {
	s.refundCmd = cmd
	return s.refundResp, s.refundErr
}

func (s *stubOrderService) ProductionQueue(context.Context) ([]domain.Order, error) {
	return s.queueResp, s.queueErr
}

func (s *stubOrderService) RecomputePriorities(context.Context) (int, error) {
	return s.recomputeN, s.recomputeErr
}

type stubVoucherService struct {
	validateResp  domain.VoucherResult
	validateErr   error
	validateCode  string
	validateTotal int64
	validateItems []domain.OrderItem
	createResp    domain.Voucher
	createErr     error
	createCmd     services.VoucherCommand
	updateResp    domain.Voucher
	updateErr     error
	updateCode    string
	updateCmd     services.VoucherCommand
	deactivated   string
	deactResp     domain.Voucher
	deactErr      error
	getResp       domain.Voucher
	getErr        error
	listResp      domain.CursorPage[domain.Voucher]
	listErr       error
}

func (s *stubVoucherService) Validate(_ context.Context, code string, subtotal int64, items []domain.OrderItem) (domain.VoucherResult, error) {
	s.validateCode = code
	s.validateTotal = subtotal
	s.validateItems = items
	return s.validateResp, s.validateErr
}

func (s *stubVoucherService) Redeem(_ context.Context, _ string) (domain.Voucher, error) {
	return domain.Voucher{}, nil
}

func (s *stubVoucherService) CreateVoucher(_ context.Context, cmd services.VoucherCommand) (domain.Voucher, error) {
	s.createCmd = cmd
	return s.createResp, s.createErr
}

func (s *stubVoucherService) UpdateVoucher(_ context.Context, code string, cmd services.VoucherCommand) (domain.Voucher, error) {
	s.updateCode = code
	s.updateCmd = cmd
	return s.updateResp, s.updateErr
}

func (s *stubVoucherService) DeactivateVoucher(_ context.Context, code string) (domain.Voucher, error) {
	s.deactivated = code
	return s.deactResp, s.deactErr
}

func (s *stubVoucherService) GetVoucher(context.Context, string) (domain.Voucher, error) {
	return s.getResp, s.getErr
}

func (s *stubVoucherService) ListVouchers(context.Context, services.VoucherListFilter) (domain.CursorPage[domain.Voucher], error) {
	return s.listResp, s.listErr
}

type stubStockService struct {
	adjustResp  services.StockAdjustOutcome
	adjustErr   error
	adjustCmd   services.StockAdjustCommand
	getResp     domain.Product
	getErr      error
	listResp    domain.CursorPage[domain.Product]
	listErr     error
	adjustments domain.CursorPage[domain.StockAdjustment]
	alertsResp  domain.CursorPage[domain.StockAlert]
	alertFilter services.StockAlertListFilter
	createResp  domain.SupplyOrder
	createErr   error
	createCmd   services.CreateSupplyOrderCommand
	receiveResp domain.SupplyOrder
	receiveErr  error
	receiveID   string
	supplyList  domain.CursorPage[domain.SupplyOrder]
}

func (s *stubStockService) AdjustStock(_ context.Context, cmd services.StockAdjustCommand) (services.StockAdjustOutcome, error) {
	s.adjustCmd = cmd
	return s.adjustResp, s.adjustErr
}

func (s *stubStockService) GetStock(context.Context, string) (domain.Product, error) {
	return s.getResp, s.getErr
}

func (s *stubStockService) ListStock(context.Context, services.StockListFilter) (domain.CursorPage[domain.Product], error) {
	return s.listResp, s.listErr
}

func (s *stubStockService) ListAdjustments(context.Context, services.StockAdjustmentListFilter) (domain.CursorPage[domain.StockAdjustment], error) {
	return s.adjustments, nil
}

func (s *stubStockService) ListAlerts(_ context.Context, filter services.StockAlertListFilter) (domain.CursorPage[domain.StockAlert], error) {
	s.alertFilter = filter
	return s.alertsResp, nil
}

func (s *stubStockService) CreateSupplyOrder(_ context.Context, cmd services.CreateSupplyOrderCommand) (domain.SupplyOrder, error) {
	s.createCmd = cmd
	return s.createResp, s.createErr
}

func (s *stubStockService) ReceiveSupplyOrder(_ context.Context, supplyOrderID string, _ string) (domain.SupplyOrder, error) {
	s.receiveID = supplyOrderID
	return s.receiveResp, s.receiveErr
}

func (s *stubStockService) ListSupplyOrders(context.Context, services.SupplyOrderListFilter) (domain.CursorPage[domain.SupplyOrder], error) {
	return s.supplyList, nil
}

type stubReportingService struct {
	summaryResp domain.SalesSummary
	summaryErr  error
	summaryFrom time.Time
	summaryTo   time.Time
	exportPath  string
	exportErr   error
}

func (s *stubReportingService) SalesSummary(_ context.Context, from, to time.Time) (domain.SalesSummary, error) {
	s.summaryFrom = from
	s.summaryTo = to
	return s.summaryResp, s.summaryErr
}

func (s *stubReportingService) ExportSalesCSV(_ context.Context, _, _ time.Time) (string, error) {
	return s.exportPath, s.exportErr
}

type stubSystemService struct {
	health services.SystemHealth
	err    error
	build  services.BuildInfo
}

func (s *stubSystemService) Health(context.Context) (services.SystemHealth, error) {
	return s.health, s.err
}

func (s *stubSystemService) Build() services.BuildInfo {
	return s.build
}

func strPtr(s string) *string { return &s }
