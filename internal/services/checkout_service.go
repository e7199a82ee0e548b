package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/shirthaus/api/internal/domain"
	"github.com/shirthaus/api/internal/repositories"
)

const (
	eventCheckoutQuoted        = "checkout.quoted"
	eventCheckoutBegun         = "checkout.begun"
	eventCheckoutConfirmed     = "checkout.confirmed"
	eventCheckoutReplayed      = "checkout.webhook_replayed"
	eventCheckoutFailed        = "checkout.payment_failed"
	eventCheckoutStockShort    = "checkout.stock_short"
	eventCheckoutRedeemFailed  = "checkout.voucher_redeem_failed"
	eventCheckoutNotifyFailed  = "checkout.notification_failed"

	reasonOrderPlaced = "order placed"

	metadataOrderDataKey = "order_data_key"
)

var (
	// ErrCheckoutInvalidInput signals the caller provided invalid arguments.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutProductNotFound indicates a cart line references an unknown product.
	ErrCheckoutProductNotFound = errors.New("checkout: product not found")
	// ErrCheckoutProductUnavailable indicates a cart line references an inactive product.
	ErrCheckoutProductUnavailable = errors.New("checkout: product unavailable")
	// ErrCheckoutSizeNotFound indicates a cart line references an unknown size.
	ErrCheckoutSizeNotFound = errors.New("checkout: size not found")
	// ErrCheckoutUnknownShipping indicates an unrecognised shipping method.
	ErrCheckoutUnknownShipping = errors.New("checkout: unknown shipping method")
)

// CheckoutPricing carries the deployment pricing parameters.
type CheckoutPricing struct {
	Currency           string
	VATRateBasisPoints int64
	// ShippingCosts maps shipping method name to cost in pence.
	ShippingCosts map[string]int64
	TempOrderTTL  time.Duration
}

// CheckoutServiceDeps bundles the collaborators required to construct a checkout service.
type CheckoutServiceDeps struct {
	Products      repositories.ProductRepository
	TempOrders    repositories.TempOrderRepository
	Vouchers      VoucherService
	Orders        OrderService
	Stock         StockService
	Gateway       PaymentGateway
	Sanitizer     TextSanitizer
	Notifications NotificationPublisher
	Pricing       CheckoutPricing
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	products   repositories.ProductRepository
	tempOrders repositories.TempOrderRepository
	vouchers   VoucherService
	orders     OrderService
	stock      StockService
	gateway    PaymentGateway
	sanitizer  TextSanitizer
	notify     NotificationPublisher
	pricing    CheckoutPricing
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewCheckoutService wires dependencies into a concrete CheckoutService implementation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Products == nil {
		return nil, errors.New("checkout service: product repository is required")
	}
	if deps.TempOrders == nil {
		return nil, errors.New("checkout service: temp order repository is required")
	}
	if deps.Vouchers == nil {
		return nil, errors.New("checkout service: voucher service is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order service is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("checkout service: payment gateway is required")
	}
	if deps.Pricing.Currency == "" {
		return nil, errors.New("checkout service: currency is required")
	}
	if deps.Pricing.VATRateBasisPoints <= 0 {
		return nil, errors.New("checkout service: vat rate is required")
	}
	if len(deps.Pricing.ShippingCosts) == 0 {
		return nil, errors.New("checkout service: shipping costs are required")
	}
	if deps.Pricing.TempOrderTTL <= 0 {
		return nil, errors.New("checkout service: temp order ttl must be positive")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		products:   deps.Products,
		tempOrders: deps.TempOrders,
		vouchers:   deps.Vouchers,
		orders:     deps.Orders,
		stock:      deps.Stock,
		gateway:    deps.Gateway,
		sanitizer:  deps.Sanitizer,
		notify:     deps.Notifications,
		pricing:    deps.Pricing,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// Quote prices a cart: goods subtotal, voucher discount, shipping by method,
// 20% VAT on the discounted goods plus shipping, all integer pence.
func (s *checkoutService) Quote(ctx context.Context, input CheckoutInput) (CheckoutQuote, error) {
	if err := validateCheckoutInput(input); err != nil {
		return CheckoutQuote{}, err
	}

	items, subtotal, err := s.buildItems(ctx, input.Items)
	if err != nil {
		return CheckoutQuote{}, err
	}

	shippingCost, ok := s.pricing.ShippingCosts[strings.TrimSpace(input.ShippingMethod)]
	if !ok {
		return CheckoutQuote{}, fmt.Errorf("%w: %q", ErrCheckoutUnknownShipping, input.ShippingMethod)
	}

	var discount int64
	freeShipping := false
	voucherCode := canonicalCode(input.VoucherCode)
	if voucherCode != "" {
		result, err := s.vouchers.Validate(ctx, voucherCode, subtotal, items)
		if err != nil {
			return CheckoutQuote{}, err
		}
		discount = result.DiscountAmount
		freeShipping = result.FreeShipping
	}
	if freeShipping {
		shippingCost = 0
	}

	taxable := subtotal - discount + shippingCost
	vat := taxable * s.pricing.VATRateBasisPoints / 10000
	total := taxable + vat

	quote := CheckoutQuote{
		Items: items,
		Totals: domain.OrderTotals{
			Subtotal: subtotal,
			Discount: discount,
			Shipping: shippingCost,
			VAT:      vat,
			Total:    total,
		},
		Currency:     s.pricing.Currency,
		VoucherCode:  voucherCode,
		FreeShipping: freeShipping,
	}
	s.logger(ctx, eventCheckoutQuoted, map[string]any{
		"subtotal": subtotal,
		"discount": discount,
		"total":    total,
	})
	return quote, nil
}

// BeginCheckout quotes the cart, stages the snapshot and opens a payment
// intent for the quoted total.
func (s *checkoutService) BeginCheckout(ctx context.Context, input CheckoutInput) (CheckoutSession, error) {
	quote, err := s.Quote(ctx, input)
	if err != nil {
		return CheckoutSession{}, err
	}

	now := s.clock()
	key := s.newID()
	intent, err := s.gateway.CreateIntent(ctx, quote.Totals.Total, quote.Currency, map[string]string{
		metadataOrderDataKey: key,
	})
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("create payment intent: %w", err)
	}

	expiresAt := now.Add(s.pricing.TempOrderTTL)
	tempOrder := domain.TempOrder{
		Key:         key,
		Email:       strings.ToLower(strings.TrimSpace(input.Email)),
		Items:       quote.Items,
		Totals:      quote.Totals,
		Currency:    quote.Currency,
		VoucherCode: quote.VoucherCode,
		Shipping: domain.ShippingDetails{
			Method:  strings.TrimSpace(input.ShippingMethod),
			Address: input.Address,
		},
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}
	if err := s.tempOrders.Put(ctx, tempOrder); err != nil {
		return CheckoutSession{}, fmt.Errorf("stage checkout: %w", err)
	}

	s.logger(ctx, eventCheckoutBegun, map[string]any{
		"intentId": intent.ID,
		"total":    quote.Totals.Total,
	})
	return CheckoutSession{
		Quote:           quote,
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		ExpiresAt:       expiresAt,
	}, nil
}

// ConfirmPayment turns the staged snapshot into a paid order. The temp-order
// consume is the idempotency gate: a second delivery finds nothing and no-ops.
func (s *checkoutService) ConfirmPayment(ctx context.Context, intentID string, dataKey string) (domain.Order, bool, error) {
	key := strings.TrimSpace(dataKey)
	if key == "" {
		key = strings.TrimSpace(intentID)
	}
	if key == "" {
		return domain.Order{}, false, fmt.Errorf("%w: intent id is required", ErrCheckoutInvalidInput)
	}

	tempOrder, err := s.tempOrders.Consume(ctx, key, s.clock())
	if err != nil {
		if repoErrNotFound(err) {
			s.logger(ctx, eventCheckoutReplayed, map[string]any{"key": key})
			return domain.Order{}, false, nil
		}
		return domain.Order{}, false, err
	}

	// Payment already happened: a stock shortage at this point never blocks
	// order creation, it is logged for manual follow-up.
	if s.stock != nil {
		for _, item := range tempOrder.Items {
			if _, err := s.stock.AdjustStock(ctx, StockAdjustCommand{
				ProductID: item.ProductID,
				Size:      item.Size,
				Delta:     -item.Quantity,
				Reason:    reasonOrderPlaced,
				Actor:     "checkout",
			}); err != nil {
				s.logger(ctx, eventCheckoutStockShort, map[string]any{
					"productId": item.ProductID,
					"size":      item.Size,
					"quantity":  item.Quantity,
					"error":     err.Error(),
				})
			}
		}
	}

	if tempOrder.VoucherCode != "" {
		if _, err := s.vouchers.Redeem(ctx, tempOrder.VoucherCode); err != nil {
			s.logger(ctx, eventCheckoutRedeemFailed, map[string]any{
				"code":  tempOrder.VoucherCode,
				"error": err.Error(),
			})
		}
	}

	order, err := s.orders.CreateOrder(ctx, CreateOrderCommand{
		Email:           tempOrder.Email,
		Items:           tempOrder.Items,
		Totals:          tempOrder.Totals,
		Currency:        tempOrder.Currency,
		VoucherCode:     tempOrder.VoucherCode,
		Shipping:        tempOrder.Shipping,
		PaymentIntentID: strings.TrimSpace(intentID),
		PaymentMethod:   "card",
	})
	if err != nil {
		return domain.Order{}, false, err
	}

	s.publishNotification(ctx, Notification{
		Kind:      NotificationOrderConfirmed,
		Reference: order.Reference,
		Email:     order.Email,
		Fields:    map[string]string{"total": fmt.Sprintf("%d", order.Totals.Total)},
	})
	s.logger(ctx, eventCheckoutConfirmed, map[string]any{
		"reference": order.Reference,
		"intentId":  intentID,
	})
	return order, true, nil
}

// FailPayment discards the staged snapshot and notifies the customer.
func (s *checkoutService) FailPayment(ctx context.Context, intentID string, dataKey string) error {
	key := strings.TrimSpace(dataKey)
	if key == "" {
		key = strings.TrimSpace(intentID)
	}
	if key == "" {
		return fmt.Errorf("%w: intent id is required", ErrCheckoutInvalidInput)
	}

	tempOrder, err := s.tempOrders.Consume(ctx, key, s.clock())
	if err != nil {
		if repoErrNotFound(err) {
			return nil
		}
		return err
	}

	s.publishNotification(ctx, Notification{
		Kind:  NotificationPaymentFailed,
		Email: tempOrder.Email,
	})
	s.logger(ctx, eventCheckoutFailed, map[string]any{
		"intentId": intentID,
		"email":    tempOrder.Email,
	})
	return nil
}

func (s *checkoutService) PurgeExpiredTempOrders(ctx context.Context) (int, error) {
	return s.tempOrders.PurgeExpired(ctx, s.clock())
}

func (s *checkoutService) buildItems(ctx context.Context, lines []CheckoutItem) ([]domain.OrderItem, int64, error) {
	items := make([]domain.OrderItem, 0, len(lines))
	var subtotal int64
	for _, line := range lines {
		productID := strings.TrimSpace(line.ProductID)
		product, err := s.products.FindByID(ctx, productID)
		if err != nil {
			if repoErrNotFound(err) {
				return nil, 0, fmt.Errorf("%w: %s", ErrCheckoutProductNotFound, productID)
			}
			return nil, 0, err
		}
		if !product.Active {
			return nil, 0, fmt.Errorf("%w: %s", ErrCheckoutProductUnavailable, productID)
		}
		size := strings.TrimSpace(line.Size)
		if _, ok := product.Stock[size]; !ok {
			return nil, 0, fmt.Errorf("%w: product %s size %s", ErrCheckoutSizeNotFound, productID, size)
		}

		item := domain.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Category:    product.Category,
			Size:        size,
			Quantity:    line.Quantity,
			UnitAmount:  product.UnitPrice,
		}
		if line.Customization != nil {
			custom := *line.Customization
			if s.sanitizer != nil {
				custom.Text = s.sanitizer.Sanitize(custom.Text)
			}
			custom.Text = strings.TrimSpace(custom.Text)
			item.Customization = &custom
		}
		items = append(items, item)
		subtotal += product.UnitPrice * int64(line.Quantity)
	}
	return items, subtotal, nil
}

func (s *checkoutService) publishNotification(ctx context.Context, n Notification) {
	if s.notify == nil {
		return
	}
	if err := s.notify.Publish(ctx, n); err != nil {
		s.logger(ctx, eventCheckoutNotifyFailed, map[string]any{
			"kind":  n.Kind,
			"error": err.Error(),
		})
	}
}

func validateCheckoutInput(input CheckoutInput) error {
	if strings.TrimSpace(input.Email) == "" {
		return fmt.Errorf("%w: email is required", ErrCheckoutInvalidInput)
	}
	if len(input.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrCheckoutInvalidInput)
	}
	for _, item := range input.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return fmt.Errorf("%w: item product id is required", ErrCheckoutInvalidInput)
		}
		if strings.TrimSpace(item.Size) == "" {
			return fmt.Errorf("%w: item size is required", ErrCheckoutInvalidInput)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item quantity must be positive", ErrCheckoutInvalidInput)
		}
	}
	if strings.TrimSpace(input.ShippingMethod) == "" {
		return fmt.Errorf("%w: shipping method is required", ErrCheckoutInvalidInput)
	}
	if strings.TrimSpace(input.Address.Line1) == "" || strings.TrimSpace(input.Address.PostalCode) == "" {
		return fmt.Errorf("%w: delivery address is incomplete", ErrCheckoutInvalidInput)
	}
	return nil
}
