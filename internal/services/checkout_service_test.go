package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/shirthaus/api/internal/domain"
)

var checkoutTestNow = time.Date(2026, 7, 10, 9, 0, 0, 0, time.UTC)

type stubVoucherService struct {
	VoucherService
	validateFn func(ctx context.Context, code string, subtotal int64, items []domain.OrderItem) (domain.VoucherResult, error)
	redeemed   []string
	redeemErr  error
}

func (s *stubVoucherService) Validate(ctx context.Context, code string, subtotal int64, items []domain.OrderItem) (domain.VoucherResult, error) {
	if s.validateFn != nil {
		return s.validateFn(ctx, code, subtotal, items)
	}
	return domain.VoucherResult{}, ErrVoucherNotFound
}

func (s *stubVoucherService) Redeem(_ context.Context, code string) (domain.Voucher, error) {
	s.redeemed = append(s.redeemed, code)
	if s.redeemErr != nil {
		return domain.Voucher{}, s.redeemErr
	}
	return domain.Voucher{Code: code}, nil
}

type stubOrderCreator struct {
	OrderService
	created []CreateOrderCommand
	err     error
}

func (s *stubOrderCreator) CreateOrder(_ context.Context, cmd CreateOrderCommand) (domain.Order, error) {
	s.created = append(s.created, cmd)
	if s.err != nil {
		return domain.Order{}, s.err
	}
	return domain.Order{
		ID:        "ord-1",
		Reference: "SH-260710-0001",
		Email:     cmd.Email,
		Items:     cmd.Items,
		Totals:    cmd.Totals,
		Status:    domain.OrderStatusPaid,
	}, nil
}

type checkoutFixture struct {
	products   *stubProductRepo
	tempOrders *stubTempOrderRepo
	vouchers   *stubVoucherService
	orders     *stubOrderCreator
	stockCalls []StockAdjustCommand
	gateway    *stubGateway
	published  *capturePublisher
	svc        CheckoutService
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()
	f := &checkoutFixture{
		products: &stubProductRepo{
			findFn: func(_ context.Context, productID string) (domain.Product, error) {
				return domain.Product{
					ID:        productID,
					Name:      "Classic Tee",
					Category:  "t-shirts",
					UnitPrice: 5000,
					Currency:  "GBP",
					Stock:     map[string]int{"M": 10, "L": 4},
					Active:    true,
				}, nil
			},
		},
		tempOrders: &stubTempOrderRepo{},
		vouchers:   &stubVoucherService{},
		orders:     &stubOrderCreator{},
		gateway:    &stubGateway{},
		published:  &capturePublisher{},
	}
	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Products:      f.products,
		TempOrders:    f.tempOrders,
		Vouchers:      f.vouchers,
		Orders:        f.orders,
		Stock:         recordingStock{calls: &f.stockCalls},
		Gateway:       f.gateway,
		Sanitizer:     stripSanitizer{},
		Notifications: f.published,
		Pricing: CheckoutPricing{
			Currency:           "GBP",
			VATRateBasisPoints: 2000,
			ShippingCosts: map[string]int64{
				"Standard Delivery": 399,
				"Express Delivery":  599,
				"Next Day Delivery": 999,
			},
			TempOrderTTL: time.Hour,
		},
		Clock:       func() time.Time { return checkoutTestNow },
		IDGenerator: sequentialIDs("key-"),
	})
	if err != nil {
		t.Fatalf("new checkout service: %v", err)
	}
	f.svc = svc
	return f
}

func checkoutInput() CheckoutInput {
	return CheckoutInput{
		Email: "jo@example.co.uk",
		Items: []CheckoutItem{
			{ProductID: "prod-1", Size: "M", Quantity: 2},
		},
		ShippingMethod: "Standard Delivery",
		Address: domain.Address{
			Recipient:  "Jo Bloggs",
			Line1:      "1 High Street",
			City:       "Leeds",
			PostalCode: "LS1 1AA",
			Country:    "GB",
		},
	}
}

func TestQuoteComputesVATOnDiscountedGoodsPlusShipping(t *testing.T) {
	f := newCheckoutFixture(t)
	f.vouchers.validateFn = func(_ context.Context, code string, subtotal int64, _ []domain.OrderItem) (domain.VoucherResult, error) {
		if code != "SAVE10" {
			t.Fatalf("unexpected code %s", code)
		}
		if subtotal != 10000 {
			t.Fatalf("expected subtotal 10000, got %d", subtotal)
		}
		return domain.VoucherResult{DiscountAmount: 1000}, nil
	}

	input := checkoutInput()
	input.VoucherCode = "save10"
	quote, err := f.svc.Quote(context.Background(), input)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	want := domain.OrderTotals{Subtotal: 10000, Discount: 1000, Shipping: 399, VAT: 1879, Total: 11278}
	if quote.Totals != want {
		t.Fatalf("unexpected totals %+v", quote.Totals)
	}
	if quote.VoucherCode != "SAVE10" {
		t.Fatalf("expected canonical voucher code, got %s", quote.VoucherCode)
	}
}

func TestQuoteWaivesShippingForFreeShippingVoucher(t *testing.T) {
	f := newCheckoutFixture(t)
	f.vouchers.validateFn = func(context.Context, string, int64, []domain.OrderItem) (domain.VoucherResult, error) {
		return domain.VoucherResult{FreeShipping: true}, nil
	}

	input := checkoutInput()
	input.VoucherCode = "FREESHIP"
	quote, err := f.svc.Quote(context.Background(), input)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.Totals.Shipping != 0 {
		t.Fatalf("expected waived shipping, got %d", quote.Totals.Shipping)
	}
	if quote.Totals.VAT != 2000 {
		t.Fatalf("expected VAT on goods only, got %d", quote.Totals.VAT)
	}
}

func TestQuoteRejectsUnknownShippingMethod(t *testing.T) {
	f := newCheckoutFixture(t)
	input := checkoutInput()
	input.ShippingMethod = "Drone Delivery"
	_, err := f.svc.Quote(context.Background(), input)
	if !errors.Is(err, ErrCheckoutUnknownShipping) {
		t.Fatalf("expected unknown shipping, got %v", err)
	}
}

func TestQuoteRejectsInactiveProduct(t *testing.T) {
	f := newCheckoutFixture(t)
	f.products.findFn = func(_ context.Context, productID string) (domain.Product, error) {
		return domain.Product{ID: productID, Active: false, Stock: map[string]int{"M": 5}}, nil
	}
	_, err := f.svc.Quote(context.Background(), checkoutInput())
	if !errors.Is(err, ErrCheckoutProductUnavailable) {
		t.Fatalf("expected product unavailable, got %v", err)
	}
}

func TestQuoteRejectsUnknownSize(t *testing.T) {
	f := newCheckoutFixture(t)
	input := checkoutInput()
	input.Items[0].Size = "XXL"
	_, err := f.svc.Quote(context.Background(), input)
	if !errors.Is(err, ErrCheckoutSizeNotFound) {
		t.Fatalf("expected size not found, got %v", err)
	}
}

func TestBeginCheckoutStagesSnapshotAndOpensIntent(t *testing.T) {
	f := newCheckoutFixture(t)
	var staged domain.TempOrder
	f.tempOrders.putFn = func(_ context.Context, tempOrder domain.TempOrder) error {
		staged = tempOrder
		return nil
	}
	var metadata map[string]string
	f.gateway.createFn = func(_ context.Context, amount int64, currency string, md map[string]string) (PaymentIntent, error) {
		if amount != 12478 {
			t.Fatalf("unexpected intent amount %d", amount)
		}
		metadata = md
		return PaymentIntent{ID: "pi_abc", ClientSecret: "secret_abc", Amount: amount, Currency: currency}, nil
	}

	input := checkoutInput()
	input.Items[0].Customization = &domain.Customization{
		IsCustomized: true,
		Text:         "<script>JO</script> 10",
		Placement:    "back",
	}
	session, err := f.svc.BeginCheckout(context.Background(), input)
	if err != nil {
		t.Fatalf("begin checkout: %v", err)
	}
	if session.PaymentIntentID != "pi_abc" || session.ClientSecret != "secret_abc" {
		t.Fatalf("unexpected session %+v", session)
	}
	if metadata[metadataOrderDataKey] != staged.Key {
		t.Fatalf("intent metadata key %q does not match staged key %q", metadata[metadataOrderDataKey], staged.Key)
	}
	if !staged.ExpiresAt.Equal(checkoutTestNow.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", staged.ExpiresAt)
	}
	custom := staged.Items[0].Customization
	if custom == nil || custom.Text != "JO 10" {
		t.Fatalf("expected sanitised customization text, got %+v", custom)
	}
}

func TestConfirmPaymentCreatesOrderOnce(t *testing.T) {
	f := newCheckoutFixture(t)
	staged := domain.TempOrder{
		Key:   "key-1",
		Email: "jo@example.co.uk",
		Items: []domain.OrderItem{
			{ProductID: "prod-1", ProductName: "Classic Tee", Size: "M", Quantity: 2, UnitAmount: 5000},
		},
		Totals:      domain.OrderTotals{Subtotal: 10000, Discount: 1000, Shipping: 399, VAT: 1879, Total: 11278},
		Currency:    "GBP",
		VoucherCode: "SAVE10",
		Shipping:    domain.ShippingDetails{Method: "Standard Delivery"},
		CreatedAt:   checkoutTestNow.Add(-10 * time.Minute),
		ExpiresAt:   checkoutTestNow.Add(50 * time.Minute),
	}
	consumed := false
	f.tempOrders.consumeFn = func(_ context.Context, key string, _ time.Time) (domain.TempOrder, error) {
		if consumed {
			return domain.TempOrder{}, repoError{notFound: true}
		}
		if key != "key-1" {
			t.Fatalf("unexpected consume key %s", key)
		}
		consumed = true
		return staged, nil
	}

	order, created, err := f.svc.ConfirmPayment(context.Background(), "pi_abc", "key-1")
	if err != nil {
		t.Fatalf("confirm payment: %v", err)
	}
	if !created {
		t.Fatal("expected an order to be created")
	}
	if order.Reference != "SH-260710-0001" {
		t.Fatalf("unexpected reference %s", order.Reference)
	}
	if len(f.stockCalls) != 1 || f.stockCalls[0].Delta != -2 {
		t.Fatalf("expected one stock decrement of 2, got %+v", f.stockCalls)
	}
	if len(f.vouchers.redeemed) != 1 || f.vouchers.redeemed[0] != "SAVE10" {
		t.Fatalf("expected voucher redeemed, got %v", f.vouchers.redeemed)
	}
	if len(f.orders.created) != 1 || f.orders.created[0].PaymentIntentID != "pi_abc" {
		t.Fatalf("unexpected order command %+v", f.orders.created)
	}
	if len(f.published.published) != 1 || f.published.published[0].Kind != NotificationOrderConfirmed {
		t.Fatalf("expected confirmation notification, got %+v", f.published.published)
	}

	// Webhook re-delivery finds nothing staged and must no-op.
	_, createdAgain, err := f.svc.ConfirmPayment(context.Background(), "pi_abc", "key-1")
	if err != nil {
		t.Fatalf("replayed confirm: %v", err)
	}
	if createdAgain {
		t.Fatal("replay must not create a second order")
	}
	if len(f.orders.created) != 1 {
		t.Fatalf("expected exactly one order, got %d", len(f.orders.created))
	}
}

func TestConfirmPaymentStockShortageDoesNotBlockOrder(t *testing.T) {
	f := newCheckoutFixture(t)
	f.tempOrders.consumeFn = func(context.Context, string, time.Time) (domain.TempOrder, error) {
		return domain.TempOrder{
			Key:   "key-1",
			Email: "jo@example.co.uk",
			Items: []domain.OrderItem{{ProductID: "prod-1", Size: "M", Quantity: 2}},
		}, nil
	}
	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Products:      f.products,
		TempOrders:    f.tempOrders,
		Vouchers:      f.vouchers,
		Orders:        f.orders,
		Stock:         recordingStock{calls: &f.stockCalls, err: ErrStockInsufficient},
		Gateway:       f.gateway,
		Notifications: f.published,
		Pricing: CheckoutPricing{
			Currency:           "GBP",
			VATRateBasisPoints: 2000,
			ShippingCosts:      map[string]int64{"Standard Delivery": 399},
			TempOrderTTL:       time.Hour,
		},
		Clock: func() time.Time { return checkoutTestNow },
	})
	if err != nil {
		t.Fatalf("new checkout service: %v", err)
	}

	_, created, err := svc.ConfirmPayment(context.Background(), "pi_abc", "key-1")
	if err != nil {
		t.Fatalf("confirm payment: %v", err)
	}
	if !created {
		t.Fatal("order creation must survive a stock shortage")
	}
}

func TestFailPaymentDiscardsSnapshotAndNotifies(t *testing.T) {
	f := newCheckoutFixture(t)
	f.tempOrders.consumeFn = func(context.Context, string, time.Time) (domain.TempOrder, error) {
		return domain.TempOrder{Key: "key-1", Email: "jo@example.co.uk"}, nil
	}

	if err := f.svc.FailPayment(context.Background(), "pi_abc", "key-1"); err != nil {
		t.Fatalf("fail payment: %v", err)
	}
	if len(f.published.published) != 1 || f.published.published[0].Kind != NotificationPaymentFailed {
		t.Fatalf("expected payment failed notification, got %+v", f.published.published)
	}
	if len(f.orders.created) != 0 {
		t.Fatal("failed payment must not create an order")
	}
}

func TestFailPaymentUnknownKeyIsNoOp(t *testing.T) {
	f := newCheckoutFixture(t)
	if err := f.svc.FailPayment(context.Background(), "pi_abc", "key-unknown"); err != nil {
		t.Fatalf("fail payment: %v", err)
	}
	if len(f.published.published) != 0 {
		t.Fatal("no notification without a staged checkout")
	}
}

func TestPurgeExpiredTempOrders(t *testing.T) {
	f := newCheckoutFixture(t)
	f.tempOrders.purgeFn = func(_ context.Context, now time.Time) (int, error) {
		if !now.Equal(checkoutTestNow) {
			t.Fatalf("unexpected purge time %v", now)
		}
		return 3, nil
	}
	purged, err := f.svc.PurgeExpiredTempOrders(context.Background())
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 3 {
		t.Fatalf("expected 3 purged, got %d", purged)
	}
}
