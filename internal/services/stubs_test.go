package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/shirthaus/api/internal/domain"
	"github.com/shirthaus/api/internal/repositories"
)

type repoError struct {
	message  string
	notFound bool
	conflict bool
	unavail  bool
}

func (e repoError) Error() string {
	if e.message != "" {
		return e.message
	}
	return "repository error"
}

func (e repoError) IsNotFound() bool    { return e.notFound }
func (e repoError) IsConflict() bool    { return e.conflict }
func (e repoError) IsUnavailable() bool { return e.unavail }

type stubProductRepo struct {
	insertFn func(ctx context.Context, product domain.Product) error
	updateFn func(ctx context.Context, product domain.Product) error
	findFn   func(ctx context.Context, productID string) (domain.Product, error)
	listFn   func(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error)
}

func (s *stubProductRepo) Insert(ctx context.Context, product domain.Product) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, product)
	}
	return nil
}

func (s *stubProductRepo) Update(ctx context.Context, product domain.Product) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, product)
	}
	return nil
}

func (s *stubProductRepo) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if s.findFn != nil {
		return s.findFn(ctx, productID)
	}
	return domain.Product{}, repoError{notFound: true}
}

func (s *stubProductRepo) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Product]{}, nil
}

type stubStockRepo struct {
	adjustFn func(ctx context.Context, req repositories.StockAdjustRequest) (repositories.StockAdjustResult, error)
	listFn   func(ctx context.Context, filter repositories.StockAdjustmentFilter) (domain.CursorPage[domain.StockAdjustment], error)
}

func (s *stubStockRepo) Adjust(ctx context.Context, req repositories.StockAdjustRequest) (repositories.StockAdjustResult, error) {
	if s.adjustFn != nil {
		return s.adjustFn(ctx, req)
	}
	return repositories.StockAdjustResult{}, nil
}

func (s *stubStockRepo) ListAdjustments(ctx context.Context, filter repositories.StockAdjustmentFilter) (domain.CursorPage[domain.StockAdjustment], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.StockAdjustment]{}, nil
}

type stubAlertRepo struct {
	findFn func(ctx context.Context, productID string, size string) (domain.StockAlert, error)
	listFn func(ctx context.Context, filter repositories.StockAlertFilter) (domain.CursorPage[domain.StockAlert], error)
}

func (s *stubAlertRepo) FindActive(ctx context.Context, productID string, size string) (domain.StockAlert, error) {
	if s.findFn != nil {
		return s.findFn(ctx, productID, size)
	}
	return domain.StockAlert{}, repoError{notFound: true}
}

func (s *stubAlertRepo) List(ctx context.Context, filter repositories.StockAlertFilter) (domain.CursorPage[domain.StockAlert], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.StockAlert]{}, nil
}

type stubSupplyOrderRepo struct {
	insertFn       func(ctx context.Context, order domain.SupplyOrder) error
	findFn         func(ctx context.Context, supplyOrderID string) (domain.SupplyOrder, error)
	markReceivedFn func(ctx context.Context, supplyOrderID string, receivedAt time.Time) (domain.SupplyOrder, error)
	listFn         func(ctx context.Context, filter repositories.SupplyOrderFilter) (domain.CursorPage[domain.SupplyOrder], error)
}

func (s *stubSupplyOrderRepo) Insert(ctx context.Context, order domain.SupplyOrder) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, order)
	}
	return nil
}

func (s *stubSupplyOrderRepo) FindByID(ctx context.Context, supplyOrderID string) (domain.SupplyOrder, error) {
	if s.findFn != nil {
		return s.findFn(ctx, supplyOrderID)
	}
	return domain.SupplyOrder{}, repoError{notFound: true}
}

func (s *stubSupplyOrderRepo) MarkReceived(ctx context.Context, supplyOrderID string, receivedAt time.Time) (domain.SupplyOrder, error) {
	if s.markReceivedFn != nil {
		return s.markReceivedFn(ctx, supplyOrderID, receivedAt)
	}
	return domain.SupplyOrder{}, repoError{notFound: true}
}

func (s *stubSupplyOrderRepo) List(ctx context.Context, filter repositories.SupplyOrderFilter) (domain.CursorPage[domain.SupplyOrder], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.SupplyOrder]{}, nil
}

type stubCounterRepo struct {
	nextFn func(ctx context.Context, counterID string, step int64) (int64, error)
}

func (s *stubCounterRepo) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if s.nextFn != nil {
		return s.nextFn(ctx, counterID, step)
	}
	return 1, nil
}

func (s *stubCounterRepo) Configure(context.Context, string, repositories.CounterConfig) error {
	return nil
}

type stubVoucherRepo struct {
	insertFn    func(ctx context.Context, voucher domain.Voucher) error
	updateFn    func(ctx context.Context, voucher domain.Voucher) error
	findFn      func(ctx context.Context, code string) (domain.Voucher, error)
	listFn      func(ctx context.Context, filter repositories.VoucherListFilter) (domain.CursorPage[domain.Voucher], error)
	incrementFn func(ctx context.Context, code string, now time.Time) (domain.Voucher, error)
}

func (s *stubVoucherRepo) Insert(ctx context.Context, voucher domain.Voucher) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, voucher)
	}
	return nil
}

func (s *stubVoucherRepo) Update(ctx context.Context, voucher domain.Voucher) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, voucher)
	}
	return nil
}

func (s *stubVoucherRepo) FindByCode(ctx context.Context, code string) (domain.Voucher, error) {
	if s.findFn != nil {
		return s.findFn(ctx, code)
	}
	return domain.Voucher{}, repoError{notFound: true}
}

func (s *stubVoucherRepo) List(ctx context.Context, filter repositories.VoucherListFilter) (domain.CursorPage[domain.Voucher], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Voucher]{}, nil
}

func (s *stubVoucherRepo) IncrementUsage(ctx context.Context, code string, now time.Time) (domain.Voucher, error) {
	if s.incrementFn != nil {
		return s.incrementFn(ctx, code, now)
	}
	return domain.Voucher{}, repoError{notFound: true}
}

// stubOrderRepo keeps a single order in memory so Mutate behaves like the real
// transactional read-modify-write.
type stubOrderRepo struct {
	order    domain.Order
	inserted []domain.Order
	mutates  int

	findFn     func(ctx context.Context, orderID string) (domain.Order, error)
	listOpenFn func(ctx context.Context) ([]domain.Order, error)
	listPaidFn func(ctx context.Context, from, to time.Time) ([]domain.Order, error)
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	s.inserted = append(s.inserted, order)
	s.order = order
	return nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	if s.order.ID == orderID {
		return s.order, nil
	}
	return domain.Order{}, repoError{notFound: true}
}

func (s *stubOrderRepo) FindByReference(ctx context.Context, reference string) (domain.Order, error) {
	if s.order.Reference == reference {
		return s.order, nil
	}
	return domain.Order{}, repoError{notFound: true}
}

func (s *stubOrderRepo) FindByTrackingNumber(ctx context.Context, trackingNumber string) (domain.Order, error) {
	if s.order.Shipping.TrackingNumber != nil && *s.order.Shipping.TrackingNumber == trackingNumber {
		return s.order, nil
	}
	return domain.Order{}, repoError{notFound: true}
}

func (s *stubOrderRepo) Mutate(ctx context.Context, orderID string, fn func(domain.Order) (domain.Order, error)) (domain.Order, error) {
	if s.order.ID != orderID {
		return domain.Order{}, repoError{notFound: true}
	}
	updated, err := fn(s.order)
	if err != nil {
		return domain.Order{}, err
	}
	s.order = updated
	s.mutates++
	return updated, nil
}

func (s *stubOrderRepo) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderRepo) ListOpen(ctx context.Context) ([]domain.Order, error) {
	if s.listOpenFn != nil {
		return s.listOpenFn(ctx)
	}
	return nil, nil
}

func (s *stubOrderRepo) ListPaidBetween(ctx context.Context, from, to time.Time) ([]domain.Order, error) {
	if s.listPaidFn != nil {
		return s.listPaidFn(ctx, from, to)
	}
	return nil, nil
}

type stubTempOrderRepo struct {
	putFn     func(ctx context.Context, tempOrder domain.TempOrder) error
	consumeFn func(ctx context.Context, key string, now time.Time) (domain.TempOrder, error)
	purgeFn   func(ctx context.Context, now time.Time) (int, error)
}

func (s *stubTempOrderRepo) Put(ctx context.Context, tempOrder domain.TempOrder) error {
	if s.putFn != nil {
		return s.putFn(ctx, tempOrder)
	}
	return nil
}

func (s *stubTempOrderRepo) Consume(ctx context.Context, key string, now time.Time) (domain.TempOrder, error) {
	if s.consumeFn != nil {
		return s.consumeFn(ctx, key, now)
	}
	return domain.TempOrder{}, repoError{notFound: true}
}

func (s *stubTempOrderRepo) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	if s.purgeFn != nil {
		return s.purgeFn(ctx, now)
	}
	return 0, nil
}

type stubTransactionRepo struct {
	inserted       []domain.Transaction
	findFn         func(ctx context.Context, orderID string) (domain.Transaction, error)
	markRefundedFn func(ctx context.Context, transactionID string, refundID string, now time.Time) (domain.Transaction, error)
}

func (s *stubTransactionRepo) Insert(ctx context.Context, tx domain.Transaction) error {
	s.inserted = append(s.inserted, tx)
	return nil
}

func (s *stubTransactionRepo) FindByOrder(ctx context.Context, orderID string) (domain.Transaction, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Transaction{}, repoError{notFound: true}
}

func (s *stubTransactionRepo) MarkRefunded(ctx context.Context, transactionID string, refundID string, now time.Time) (domain.Transaction, error) {
	if s.markRefundedFn != nil {
		return s.markRefundedFn(ctx, transactionID, refundID, now)
	}
	return domain.Transaction{}, errors.New("not implemented")
}

type stubGateway struct {
	createFn func(ctx context.Context, amount int64, currency string, metadata map[string]string) (PaymentIntent, error)
	refundFn func(ctx context.Context, paymentIntentID string, amount int64, reason string) (GatewayRefund, error)
}

func (s *stubGateway) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (PaymentIntent, error) {
	if s.createFn != nil {
		return s.createFn(ctx, amount, currency, metadata)
	}
	return PaymentIntent{ID: "pi_test", ClientSecret: "secret", Amount: amount, Currency: currency}, nil
}

func (s *stubGateway) Refund(ctx context.Context, paymentIntentID string, amount int64, reason string) (GatewayRefund, error) {
	if s.refundFn != nil {
		return s.refundFn(ctx, paymentIntentID, amount, reason)
	}
	return GatewayRefund{ID: "re_test", Amount: amount}, nil
}

type stubCarrier struct {
	createFn func(ctx context.Context, req domain.ShipmentRequest) (domain.ShippingLabel, error)
}

func (s *stubCarrier) CreateShipment(ctx context.Context, req domain.ShipmentRequest) (domain.ShippingLabel, error) {
	if s.createFn != nil {
		return s.createFn(ctx, req)
	}
	return domain.ShippingLabel{TrackingNumber: "TRK123", Courier: "Royal Mail", LabelURL: "https://labels/trk123.pdf"}, nil
}

type capturePublisher struct {
	published []Notification
	err       error
}

func (c *capturePublisher) Publish(_ context.Context, n Notification) error {
	if c.err != nil {
		return c.err
	}
	c.published = append(c.published, n)
	return nil
}

type captureReportWriter struct {
	name        string
	contentType string
	data        []byte
	err         error
}

func (c *captureReportWriter) WriteReport(_ context.Context, name string, contentType string, data []byte) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	c.name = name
	c.contentType = contentType
	c.data = data
	return "reports/" + name, nil
}

type stripSanitizer struct{}

func (stripSanitizer) Sanitize(input string) string {
	out := make([]rune, 0, len(input))
	skip := false
	for _, r := range input {
		switch {
		case r == '<':
			skip = true
		case r == '>':
			skip = false
		case !skip:
			out = append(out, r)
		}
	}
	return string(out)
}

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}
