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
	eventOrderCreated       = "order.created"
	eventOrderProduction    = "order.production_advanced"
	eventOrderShipped       = "order.shipped"
	eventOrderDelivered     = "order.delivered"
	eventOrderCancelled     = "order.cancelled"
	eventOrderRefunded      = "order.refunded"
	eventOrderNotifyFailed  = "order.notification_failed"
	eventOrderArchiveFailed = "order.label_archive_failed"
	eventOrderRestockFailed = "order.restock_failed"

	orderReferencePrefix = "SH"

	reasonOrderCancelled = "order cancelled"

	// coolingOffPeriod is the UK distance-selling cancellation window,
	// measured from order creation.
	coolingOffPeriod = 14 * 24 * time.Hour
)

// shippingMethodBasePriority returns the priority floor for a shipping method.
func shippingMethodBasePriority(method string) int {
	switch strings.TrimSpace(method) {
	case "Next Day Delivery":
		return 100
	case "Express Delivery":
		return 50
	default:
		return 10
	}
}

// computePriority ranks an order for the production queue: faster shipping
// first, then 5 points for every full day the order has been waiting.
func computePriority(method string, createdAt, now time.Time) int {
	days := int(now.Sub(createdAt).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return shippingMethodBasePriority(method) + 5*days
}

// productionOrder indexes the monotonic production workflow.
var productionOrder = map[domain.ProductionStatus]int{
	domain.ProductionNotStarted:   0,
	domain.ProductionInProgress:   1,
	domain.ProductionQualityCheck: 2,
	domain.ProductionReadyToShip:  3,
	domain.ProductionCompleted:    4,
}

// OrderServiceDeps bundles the collaborators required to construct an order service.
type OrderServiceDeps struct {
	Orders        repositories.OrderRepository
	Transactions  repositories.TransactionRepository
	Counters      repositories.CounterRepository
	Stock         StockService
	Gateway       PaymentGateway
	Carrier       ShippingCarrier
	Labels        LabelArchiver
	Notifications NotificationPublisher
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders       repositories.OrderRepository
	transactions repositories.TransactionRepository
	counters     repositories.CounterRepository
	stock        StockService
	gateway      PaymentGateway
	carrier      ShippingCarrier
	labels       LabelArchiver
	notify       NotificationPublisher
	clock        func() time.Time
	newID        func() string
	logger       func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Transactions == nil {
		return nil, errors.New("order service: transaction repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
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

	return &orderService{
		orders:       deps.Orders,
		transactions: deps.Transactions,
		counters:     deps.Counters,
		stock:        deps.Stock,
		gateway:      deps.Gateway,
		carrier:      deps.Carrier,
		labels:       deps.Labels,
		notify:       deps.Notifications,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// CreateOrder materialises a paid order from a consumed checkout snapshot and
// records its transaction.
func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error) {
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if email == "" {
		return domain.Order{}, fmt.Errorf("%w: email is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return domain.Order{}, fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.PaymentIntentID) == "" {
		return domain.Order{}, fmt.Errorf("%w: payment intent id is required", ErrOrderInvalidInput)
	}

	now := s.clock()
	reference, err := nextReference(ctx, s.counters, orderReferencePrefix, now)
	if err != nil {
		return domain.Order{}, fmt.Errorf("issue order reference: %w", err)
	}

	paidAt := now
	order := domain.Order{
		ID:               s.newID(),
		Reference:        reference,
		Email:            email,
		Items:            cmd.Items,
		Totals:           cmd.Totals,
		Currency:         cmd.Currency,
		VoucherCode:      cmd.VoucherCode,
		Status:           domain.OrderStatusPaid,
		ProductionStatus: domain.ProductionNotStarted,
		Priority:         computePriority(cmd.Shipping.Method, now, now),
		Shipping:         cmd.Shipping,
		CreatedAt:        now,
		UpdatedAt:        now,
		PaidAt:           &paidAt,
	}
	if err := s.orders.Insert(ctx, order); err != nil {
		return domain.Order{}, err
	}

	tx := domain.Transaction{
		ID:              s.newID(),
		OrderID:         order.ID,
		Amount:          order.Totals.Total,
		Currency:        order.Currency,
		PaymentMethod:   strings.TrimSpace(cmd.PaymentMethod),
		Status:          domain.TransactionCompleted,
		PaymentIntentID: strings.TrimSpace(cmd.PaymentIntentID),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.transactions.Insert(ctx, tx); err != nil {
		return domain.Order{}, fmt.Errorf("record transaction for %s: %w", reference, err)
	}

	s.logger(ctx, eventOrderCreated, map[string]any{
		"reference": reference,
		"total":     order.Totals.Total,
		"priority":  order.Priority,
	})
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	trimmed := strings.TrimSpace(orderID)
	if trimmed == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, trimmed)
	if err != nil {
		if repoErrNotFound(err) {
			return domain.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, trimmed)
		}
		return domain.Order{}, err
	}
	return order, nil
}

// GetOrderByReference is the guest lookup: the caller must present the email
// the order was placed with.
func (s *orderService) GetOrderByReference(ctx context.Context, reference string, email string) (domain.Order, error) {
	trimmed := strings.TrimSpace(reference)
	if trimmed == "" {
		return domain.Order{}, fmt.Errorf("%w: reference is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByReference(ctx, trimmed)
	if err != nil {
		if repoErrNotFound(err) {
			return domain.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, trimmed)
		}
		return domain.Order{}, err
	}
	if gate := strings.ToLower(strings.TrimSpace(email)); gate != "" {
		if order.Email != gate {
			return domain.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, trimmed)
		}
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error) {
	return s.orders.List(ctx, repositories.OrderListFilter{
		Email:      strings.ToLower(strings.TrimSpace(filter.Email)),
		Status:     filter.Status,
		From:       filter.From,
		To:         filter.To,
		Pagination: filter.Pagination,
	})
}

// AdvanceProduction moves the workflow exactly one step forward. The final
// step to completed happens only through label generation.
func (s *orderService) AdvanceProduction(ctx context.Context, orderID string, target domain.ProductionStatus, actor string) (domain.Order, error) {
	trimmed := strings.TrimSpace(orderID)
	if trimmed == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	targetIdx, ok := productionOrder[target]
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: unknown production status %q", ErrOrderInvalidInput, target)
	}

	now := s.clock()
	order, err := s.mutateOrder(ctx, trimmed, func(order domain.Order) (domain.Order, error) {
		if order.Status != domain.OrderStatusPaid {
			return domain.Order{}, fmt.Errorf("%w: production requires a paid order, status is %s", ErrOrderInvalidTransition, order.Status)
		}
		currentIdx := productionOrder[order.ProductionStatus]
		if targetIdx != currentIdx+1 {
			return domain.Order{}, fmt.Errorf("%w: production %s -> %s", ErrOrderInvalidTransition, order.ProductionStatus, target)
		}
		if target == domain.ProductionCompleted {
			return domain.Order{}, fmt.Errorf("%w: completion is set by label generation", ErrOrderInvalidTransition)
		}
		if order.ProductionStatus == domain.ProductionNotStarted {
			order.ProductionStartedAt = &now
		}
		order.ProductionStatus = target
		order.UpdatedAt = now
		return order, nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.logger(ctx, eventOrderProduction, map[string]any{
		"reference": order.Reference,
		"target":    string(target),
		"actor":     strings.TrimSpace(actor),
	})
	return order, nil
}

func (s *orderService) MarkDelivered(ctx context.Context, orderID string, actor string) (domain.Order, error) {
	trimmed := strings.TrimSpace(orderID)
	if trimmed == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	now := s.clock()
	order, err := s.mutateOrder(ctx, trimmed, func(order domain.Order) (domain.Order, error) {
		if order.Status == domain.OrderStatusDelivered {
			return order, nil
		}
		if order.Status != domain.OrderStatusShipped {
			return domain.Order{}, fmt.Errorf("%w: %s -> delivered", ErrOrderInvalidTransition, order.Status)
		}
		order.Status = domain.OrderStatusDelivered
		order.DeliveredAt = &now
		order.UpdatedAt = now
		return order, nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.logger(ctx, eventOrderDelivered, map[string]any{
		"reference": order.Reference,
		"actor":     strings.TrimSpace(actor),
	})
	return order, nil
}

// MarkDeliveredByTracking resolves the carrier webhook's tracking number to an
// order and marks it delivered.
func (s *orderService) MarkDeliveredByTracking(ctx context.Context, trackingNumber string) (domain.Order, error) {
	trimmed := strings.TrimSpace(trackingNumber)
	if trimmed == "" {
		return domain.Order{}, fmt.Errorf("%w: tracking number is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByTrackingNumber(ctx, trimmed)
	if err != nil {
		if repoErrNotFound(err) {
			return domain.Order{}, fmt.Errorf("%w: tracking %s", ErrOrderNotFound, trimmed)
		}
		return domain.Order{}, err
	}
	return s.MarkDelivered(ctx, order.ID, "carrier-webhook")
}

func (s *orderService) MarkPaymentFailed(ctx context.Context, orderID string, actor string) (domain.Order, error) {
	trimmed := strings.TrimSpace(orderID)
	if trimmed == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	now := s.clock()
	return s.mutateOrder(ctx, trimmed, func(order domain.Order) (domain.Order, error) {
		if order.Status != domain.OrderStatusPending {
			return domain.Order{}, fmt.Errorf("%w: %s -> payment_failed", ErrOrderInvalidTransition, order.Status)
		}
		order.Status = domain.OrderStatusPaymentFailed
		order.UpdatedAt = now
		return order, nil
	})
}

// GenerateShippingLabel calls the carrier and then atomically flips the order
// to shipped/completed with the tracking details. A carrier failure leaves the
// order untouched.
func (s *orderService) GenerateShippingLabel(ctx context.Context, orderID string, actor string) (domain.Order, error) {
	if s.carrier == nil {
		return domain.Order{}, errors.New("order service: shipping carrier not configured")
	}
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if err := labelGuard(order); err != nil {
		return domain.Order{}, err
	}

	items := make([]domain.ShipmentItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, domain.ShipmentItem{
			Description: fmt.Sprintf("%s (%s)", item.ProductName, item.Size),
			Quantity:    item.Quantity,
		})
	}
	label, err := s.carrier.CreateShipment(ctx, domain.ShipmentRequest{
		OrderReference: order.Reference,
		Method:         order.Shipping.Method,
		Address:        order.Shipping.Address,
		Items:          items,
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("carrier shipment for %s: %w", order.Reference, err)
	}

	now := s.clock()
	updated, err := s.mutateOrder(ctx, order.ID, func(order domain.Order) (domain.Order, error) {
		if err := labelGuard(order); err != nil {
			return domain.Order{}, err
		}
		order.Status = domain.OrderStatusShipped
		order.ProductionStatus = domain.ProductionCompleted
		order.ProductionCompletedAt = &now
		order.Shipping.TrackingNumber = &label.TrackingNumber
		order.Shipping.Courier = &label.Courier
		order.Shipping.LabelURL = &label.LabelURL
		order.Shipping.ShippedAt = &now
		order.UpdatedAt = now
		return order, nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	if s.labels != nil {
		if _, err := s.labels.ArchiveLabel(ctx, updated.Reference, label); err != nil {
			s.logger(ctx, eventOrderArchiveFailed, map[string]any{
				"reference": updated.Reference,
				"error":     err.Error(),
			})
		}
	}

	s.publish(ctx, Notification{
		Kind:      NotificationOrderDispatched,
		Reference: updated.Reference,
		Email:     updated.Email,
		Fields: map[string]string{
			"trackingNumber": label.TrackingNumber,
			"courier":        label.Courier,
		},
	})
	s.logger(ctx, eventOrderShipped, map[string]any{
		"reference": updated.Reference,
		"tracking":  label.TrackingNumber,
		"actor":     strings.TrimSpace(actor),
	})
	return updated, nil
}

func labelGuard(order domain.Order) error {
	if order.Status != domain.OrderStatusPaid || order.ProductionStatus != domain.ProductionReadyToShip {
		return fmt.Errorf("%w: status %s, production %s", ErrOrderLabelNotReady, order.Status, order.ProductionStatus)
	}
	return nil
}

// CancelOrder runs the cancellation guards and, when allowed, cancels in one
// conditional update. The request and the cancellation are the same action.
func (s *orderService) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (domain.Order, error) {
	trimmed := strings.TrimSpace(cmd.OrderID)
	if trimmed == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		return domain.Order{}, fmt.Errorf("%w: reason is required", ErrOrderInvalidInput)
	}

	now := s.clock()
	var wasPaid bool
	order, err := s.mutateOrder(ctx, trimmed, func(order domain.Order) (domain.Order, error) {
		if err := cancellationGuard(order, now); err != nil {
			return domain.Order{}, err
		}
		wasPaid = order.Status == domain.OrderStatusPaid
		order.CancellationRequested = true
		order.Cancellation = &domain.CancellationRecord{
			Reason:      reason,
			Notes:       strings.TrimSpace(cmd.Notes),
			RequestedAt: now,
			RequestedBy: strings.TrimSpace(cmd.Actor),
		}
		order.Status = domain.OrderStatusCancelled
		order.UpdatedAt = now
		return order, nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	if wasPaid && s.stock != nil {
		for _, item := range order.Items {
			if _, err := s.stock.AdjustStock(ctx, StockAdjustCommand{
				ProductID: item.ProductID,
				Size:      item.Size,
				Delta:     item.Quantity,
				Reason:    reasonOrderCancelled,
				Actor:     strings.TrimSpace(cmd.Actor),
			}); err != nil {
				s.logger(ctx, eventOrderRestockFailed, map[string]any{
					"reference": order.Reference,
					"productId": item.ProductID,
					"size":      item.Size,
					"error":     err.Error(),
				})
			}
		}
	}

	s.publish(ctx, Notification{
		Kind:      NotificationOrderCancelled,
		Reference: order.Reference,
		Email:     order.Email,
		Fields:    map[string]string{"reason": reason},
	})
	s.logger(ctx, eventOrderCancelled, map[string]any{
		"reference": order.Reference,
		"reason":    reason,
	})
	return order, nil
}

// cancellationGuard applies the cancellation rules in order; the first match wins.
func cancellationGuard(order domain.Order, now time.Time) error {
	if order.Status == domain.OrderStatusCancelled {
		return fmt.Errorf("%w: %s", ErrCancelAlreadyCancelled, order.Reference)
	}
	if order.CancellationRequested {
		return fmt.Errorf("%w: %s", ErrCancelAlreadyRequested, order.Reference)
	}
	switch order.Status {
	case domain.OrderStatusShipped, domain.OrderStatusDelivered:
		if now.Sub(order.CreatedAt) > coolingOffPeriod {
			return fmt.Errorf("%w: %s", ErrCancelCoolingOffExpired, order.Reference)
		}
		return nil
	case domain.OrderStatusPaid, domain.OrderStatusPending:
		if order.ProductionStatus != domain.ProductionNotStarted {
			for _, item := range order.Items {
				if item.Customization != nil && item.Customization.IsCustomized {
					return fmt.Errorf("%w: %s", ErrCancelCustomItemLocked, order.Reference)
				}
			}
			return fmt.Errorf("%w: %s", ErrCancelProductionStarted, order.Reference)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s is %s", ErrCancelNotAllowedAtStage, order.Reference, order.Status)
	}
}

// RefundOrder refunds a cancelled order at the gateway and stamps the local
// records. Guards are checked in order; the first match wins.
func (s *orderService) RefundOrder(ctx context.Context, cmd RefundOrderCommand) (domain.Order, error) {
	if s.gateway == nil {
		return domain.Order{}, errors.New("order service: payment gateway not configured")
	}
	order, err := s.GetOrder(ctx, cmd.OrderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status != domain.OrderStatusCancelled {
		return domain.Order{}, fmt.Errorf("%w: %s is %s", ErrRefundNotCancelled, order.Reference, order.Status)
	}

	tx, err := s.transactions.FindByOrder(ctx, order.ID)
	if err != nil {
		if repoErrNotFound(err) {
			return domain.Order{}, fmt.Errorf("%w: %s", ErrRefundTransactionMissing, order.Reference)
		}
		return domain.Order{}, err
	}
	if tx.Status == domain.TransactionRefunded || order.Refunded() {
		return domain.Order{}, fmt.Errorf("%w: %s", ErrRefundAlreadyRefunded, order.Reference)
	}
	if cmd.Amount <= 0 {
		return domain.Order{}, fmt.Errorf("%w: got %d", ErrRefundAmountNonPositive, cmd.Amount)
	}
	if cmd.Amount > tx.Amount {
		return domain.Order{}, fmt.Errorf("%w: %d > %d", ErrRefundAmountExceedsOriginal, cmd.Amount, tx.Amount)
	}

	now := s.clock()
	refund, err := s.gateway.Refund(ctx, tx.PaymentIntentID, cmd.Amount, strings.TrimSpace(cmd.Reason))
	if err != nil {
		if errors.Is(err, ErrGatewayChargeAlreadyRefunded) {
			// Adopt the out-of-band refund so local records stop disagreeing
			// with the gateway.
			if _, markErr := s.transactions.MarkRefunded(ctx, tx.ID, "", now); markErr != nil && !repoErrConflict(markErr) {
				return domain.Order{}, markErr
			}
			return domain.Order{}, fmt.Errorf("%w: %s", ErrRefundAlreadyRefundedAtGateway, order.Reference)
		}
		return domain.Order{}, fmt.Errorf("%w: %v", ErrRefundGateway, err)
	}

	if _, err := s.transactions.MarkRefunded(ctx, tx.ID, refund.ID, now); err != nil {
		if repoErrConflict(err) {
			return domain.Order{}, fmt.Errorf("%w: %s", ErrRefundAlreadyRefunded, order.Reference)
		}
		return domain.Order{}, err
	}

	updated, err := s.mutateOrder(ctx, order.ID, func(order domain.Order) (domain.Order, error) {
		order.Refund = &domain.RefundRecord{
			Amount:     cmd.Amount,
			Reason:     strings.TrimSpace(cmd.Reason),
			RefundedAt: now,
			RefundedBy: strings.TrimSpace(cmd.Actor),
		}
		order.UpdatedAt = now
		return order, nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.publish(ctx, Notification{
		Kind:      NotificationRefundIssued,
		Reference: updated.Reference,
		Email:     updated.Email,
		Fields:    map[string]string{"amount": fmt.Sprintf("%d", cmd.Amount)},
	})
	s.logger(ctx, eventOrderRefunded, map[string]any{
		"reference": updated.Reference,
		"amount":    cmd.Amount,
		"refundId":  refund.ID,
	})
	return updated, nil
}

// ProductionQueue lists open orders by stored priority, newest first on ties.
func (s *orderService) ProductionQueue(ctx context.Context) ([]domain.Order, error) {
	return s.orders.ListOpen(ctx)
}

// RecomputePriorities refreshes the stored priority on every open order and
// returns how many changed.
func (s *orderService) RecomputePriorities(ctx context.Context) (int, error) {
	open, err := s.orders.ListOpen(ctx)
	if err != nil {
		return 0, err
	}

	now := s.clock()
	updated := 0
	for _, order := range open {
		want := computePriority(order.Shipping.Method, order.CreatedAt, now)
		if want == order.Priority {
			continue
		}
		if _, err := s.mutateOrder(ctx, order.ID, func(order domain.Order) (domain.Order, error) {
			order.Priority = computePriority(order.Shipping.Method, order.CreatedAt, now)
			order.UpdatedAt = now
			return order, nil
		}); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

func (s *orderService) mutateOrder(ctx context.Context, orderID string, fn func(domain.Order) (domain.Order, error)) (domain.Order, error) {
	order, err := s.orders.Mutate(ctx, orderID, fn)
	if err != nil {
		if repoErrNotFound(err) {
			return domain.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		return domain.Order{}, err
	}
	return order, nil
}

func (s *orderService) publish(ctx context.Context, n Notification) {
	if s.notify == nil {
		return
	}
	if err := s.notify.Publish(ctx, n); err != nil {
		s.logger(ctx, eventOrderNotifyFailed, map[string]any{
			"kind":      n.Kind,
			"reference": n.Reference,
			"error":     err.Error(),
		})
	}
}
