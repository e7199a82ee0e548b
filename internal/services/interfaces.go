package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/shirthaus/api/internal/domain"
)

// StockService manages the stock ledger, low-stock alerts and supplier
// replenishment orders.
type StockService interface {
	AdjustStock(ctx context.Context, cmd StockAdjustCommand) (StockAdjustOutcome, error)
	GetStock(ctx context.Context, productID string) (domain.Product, error)
	ListStock(ctx context.Context, filter StockListFilter) (domain.CursorPage[domain.Product], error)
	ListAdjustments(ctx context.Context, filter StockAdjustmentListFilter) (domain.CursorPage[domain.StockAdjustment], error)
	ListAlerts(ctx context.Context, filter StockAlertListFilter) (domain.CursorPage[domain.StockAlert], error)
	CreateSupplyOrder(ctx context.Context, cmd CreateSupplyOrderCommand) (domain.SupplyOrder, error)
	ReceiveSupplyOrder(ctx context.Context, supplyOrderID string, actor string) (domain.SupplyOrder, error)
	ListSupplyOrders(ctx context.Context, filter SupplyOrderListFilter) (domain.CursorPage[domain.SupplyOrder], error)
}

// StockAdjustCommand describes one requested stock mutation.
type StockAdjustCommand struct {
	ProductID string
	Size      string
	Delta     int
	Reason    string
	Actor     string
}

// StockAdjustOutcome reports the applied mutation and any alert transition.
type StockAdjustOutcome struct {
	Adjustment domain.StockAdjustment
	Alert      *domain.StockAlert
	AlertEvent string
}

// StockListFilter narrows product stock listings.
type StockListFilter struct {
	Category   *string
	ActiveOnly bool
	Pagination domain.Pagination
}

// StockAdjustmentListFilter narrows ledger listings.
type StockAdjustmentListFilter struct {
	ProductID  string
	Size       string
	Pagination domain.Pagination
}

// StockAlertListFilter narrows alert listings.
type StockAlertListFilter struct {
	ActiveOnly bool
	Pagination domain.Pagination
}

// CreateSupplyOrderCommand describes a supplier replenishment purchase.
type CreateSupplyOrderCommand struct {
	Supplier  string
	ProductID string
	Size      string
	Quantity  int
	Actor     string
}

// SupplyOrderListFilter narrows supply order listings.
type SupplyOrderListFilter struct {
	Status     []domain.SupplyOrderStatus
	Pagination domain.Pagination
}

// VoucherService validates, redeems and administers discount vouchers.
type VoucherService interface {
	// Validate is pure: it never writes and never counts usage.
	Validate(ctx context.Context, code string, subtotal int64, items []domain.OrderItem) (domain.VoucherResult, error)
	// Redeem commits one usage, re-checking the limit atomically.
	Redeem(ctx context.Context, code string) (domain.Voucher, error)
	CreateVoucher(ctx context.Context, cmd VoucherCommand) (domain.Voucher, error)
	UpdateVoucher(ctx context.Context, code string, cmd VoucherCommand) (domain.Voucher, error)
	DeactivateVoucher(ctx context.Context, code string) (domain.Voucher, error)
	GetVoucher(ctx context.Context, code string) (domain.Voucher, error)
	ListVouchers(ctx context.Context, filter VoucherListFilter) (domain.CursorPage[domain.Voucher], error)
}

// VoucherCommand carries the writable voucher fields for admin CRUD.
type VoucherCommand struct {
	Code               string
	Type               domain.VoucherType
	Value              int64
	MinimumOrderAmount int64
	MaximumDiscount    int64
	AppliesTo          domain.VoucherScope
	ProductIDs         []string
	CategoryIDs        []string
	ValidFrom          time.Time
	ValidUntil         time.Time
	UsageLimit         int
	Active             bool
}

// VoucherListFilter narrows voucher listings.
type VoucherListFilter struct {
	ActiveOnly bool
	Pagination domain.Pagination
}

// OrderService drives the order lifecycle state machine, production workflow,
// cancellation, refunds and the priority queue.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	GetOrderByReference(ctx context.Context, reference string, email string) (domain.Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	AdvanceProduction(ctx context.Context, orderID string, target domain.ProductionStatus, actor string) (domain.Order, error)
	MarkDelivered(ctx context.Context, orderID string, actor string) (domain.Order, error)
	MarkDeliveredByTracking(ctx context.Context, trackingNumber string) (domain.Order, error)
	MarkPaymentFailed(ctx context.Context, orderID string, actor string) (domain.Order, error)
	GenerateShippingLabel(ctx context.Context, orderID string, actor string) (domain.Order, error)
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (domain.Order, error)
	RefundOrder(ctx context.Context, cmd RefundOrderCommand) (domain.Order, error)
	ProductionQueue(ctx context.Context) ([]domain.Order, error)
	RecomputePriorities(ctx context.Context) (int, error)
}

// CreateOrderCommand materialises a paid order from a consumed checkout snapshot.
type CreateOrderCommand struct {
	Email           string
	Items           []domain.OrderItem
	Totals          domain.OrderTotals
	Currency        string
	VoucherCode     string
	Shipping        domain.ShippingDetails
	PaymentIntentID string
	PaymentMethod   string
}

// CancelOrderCommand carries the cancellation request.
type CancelOrderCommand struct {
	OrderID string
	Reason  string
	Notes   string
	Actor   string
}

// RefundOrderCommand carries an admin refund request.
type RefundOrderCommand struct {
	OrderID string
	Amount  int64
	Reason  string
	Actor   string
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	Email      string
	Status     []domain.OrderStatus
	From       *time.Time
	To         *time.Time
	Pagination domain.Pagination
}

// CheckoutService prices carts, begins payment and handles gateway webhooks.
type CheckoutService interface {
	Quote(ctx context.Context, input CheckoutInput) (CheckoutQuote, error)
	BeginCheckout(ctx context.Context, input CheckoutInput) (CheckoutSession, error)
	// ConfirmPayment handles payment_intent.succeeded. dataKey is the staged
	// temp-order key carried in the intent metadata. The bool reports whether
	// an order was created; re-delivery of the same intent is a no-op.
	ConfirmPayment(ctx context.Context, intentID string, dataKey string) (domain.Order, bool, error)
	// FailPayment handles payment_intent.payment_failed.
	FailPayment(ctx context.Context, intentID string, dataKey string) error
	PurgeExpiredTempOrders(ctx context.Context) (int, error)
}

// CheckoutInput is the raw customer checkout payload.
type CheckoutInput struct {
	Email          string
	Items          []CheckoutItem
	VoucherCode    string
	ShippingMethod string
	Address        domain.Address
}

// CheckoutItem is one requested cart line.
type CheckoutItem struct {
	ProductID     string
	Size          string
	Quantity      int
	Customization *domain.Customization
}

// CheckoutQuote is the priced cart presented before payment.
type CheckoutQuote struct {
	Items        []domain.OrderItem
	Totals       domain.OrderTotals
	Currency     string
	VoucherCode  string
	FreeShipping bool
}

// CheckoutSession is the staged checkout awaiting payment confirmation.
type CheckoutSession struct {
	Quote           CheckoutQuote
	PaymentIntentID string
	ClientSecret    string
	ExpiresAt       time.Time
}

// ReportingService aggregates sales figures over a window.
type ReportingService interface {
	SalesSummary(ctx context.Context, from, to time.Time) (domain.SalesSummary, error)
	ExportSalesCSV(ctx context.Context, from, to time.Time) (string, error)
}

// SystemService surfaces dependency health and build metadata.
type SystemService interface {
	Health(ctx context.Context) (SystemHealth, error)
	Build() BuildInfo
}

// SystemHealth reports readiness per component.
type SystemHealth struct {
	Healthy    bool
	Components map[string]string
	CheckedAt  time.Time
}

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// Collaborator contracts -----------------------------------------------------

// PaymentIntent is the gateway handle for a pending capture.
type PaymentIntent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Currency     string
}

// GatewayRefund is the gateway's record of an issued refund.
type GatewayRefund struct {
	ID     string
	Amount int64
}

// ErrGatewayChargeAlreadyRefunded is returned by PaymentGateway.Refund when
// the charge was already refunded out-of-band at the gateway.
var ErrGatewayChargeAlreadyRefunded = errors.New("gateway: charge already refunded")

// PaymentGateway abstracts the payment provider used for capture and refunds.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (PaymentIntent, error)
	Refund(ctx context.Context, paymentIntentID string, amount int64, reason string) (GatewayRefund, error)
}

// ShippingCarrier abstracts the carrier aggregator that issues labels.
type ShippingCarrier interface {
	CreateShipment(ctx context.Context, req domain.ShipmentRequest) (domain.ShippingLabel, error)
}

// LabelArchiver stores issued label documents durably.
type LabelArchiver interface {
	ArchiveLabel(ctx context.Context, reference string, label domain.ShippingLabel) (string, error)
}

// ReportWriter stores rendered report exports and returns the object path.
type ReportWriter interface {
	WriteReport(ctx context.Context, name string, contentType string, data []byte) (string, error)
}

// Notification is one customer-facing event for the email pipeline.
type Notification struct {
	Kind      string
	Reference string
	Email     string
	Fields    map[string]string
}

// Notification kinds published by the services.
const (
	NotificationOrderConfirmed  = "order.confirmed"
	NotificationOrderDispatched = "order.dispatched"
	NotificationOrderCancelled  = "order.cancelled"
	NotificationPaymentFailed   = "payment.failed"
	NotificationRefundIssued    = "refund.issued"
)

// NotificationPublisher delivers events to the notification pipeline.
// Failures are logged by callers and never abort the business operation.
type NotificationPublisher interface {
	Publish(ctx context.Context, n Notification) error
}

// TextSanitizer strips unsafe markup from customer-supplied text.
type TextSanitizer interface {
	Sanitize(input string) string
}
