package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage wraps a page of results plus the opaque token for the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Address captures a UK-normalised delivery address.
type Address struct {
	Recipient  string
	Line1      string
	Line2      *string
	City       string
	County     *string
	PostalCode string
	Country    string
	Phone      *string
}

// Product represents a sellable garment with per-size stock counts.
type Product struct {
	ID        string
	Name      string
	Category  string
	UnitPrice int64
	Currency  string
	Stock     map[string]int
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StockAdjustment is one ledger entry recording an applied stock delta.
type StockAdjustment struct {
	ID             string
	ProductID      string
	ProductName    string
	Size           string
	Delta          int
	QuantityBefore int
	QuantityAfter  int
	Reason         string
	Actor          string
	CreatedAt      time.Time
}

// StockAlertStatus enumerates low-stock alert lifecycle states.
type StockAlertStatus string

const (
	// StockAlertActive marks an alert that still requires replenishment.
	StockAlertActive StockAlertStatus = "active"
	// StockAlertResolved marks an alert cleared by stock rising above threshold.
	StockAlertResolved StockAlertStatus = "resolved"
)

// StockAlert records a low-stock observation for a (product, size) pair.
// At most one active alert exists per pair at any time.
type StockAlert struct {
	ID           string
	ProductID    string
	ProductName  string
	Size         string
	CurrentStock int
	Threshold    int
	Status       StockAlertStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ResolvedAt   *time.Time
}

// SupplyOrderStatus enumerates supplier purchase states.
type SupplyOrderStatus string

const (
	// SupplyOrderOrdered indicates the purchase was placed with the supplier.
	SupplyOrderOrdered SupplyOrderStatus = "ordered"
	// SupplyOrderReceived indicates the goods arrived and stock was credited.
	SupplyOrderReceived SupplyOrderStatus = "received"
)

// SupplyOrder tracks a replenishment purchase against a supplier.
type SupplyOrder struct {
	ID          string
	Reference   string
	Supplier    string
	ProductID   string
	ProductName string
	Size        string
	Quantity    int
	Status      SupplyOrderStatus
	CreatedAt   time.Time
	ReceivedAt  *time.Time
}

// VoucherType enumerates supported discount mechanisms.
type VoucherType string

const (
	// VoucherPercentage discounts a percentage of the goods subtotal.
	VoucherPercentage VoucherType = "percentage"
	// VoucherFixed discounts a fixed pence amount.
	VoucherFixed VoucherType = "fixed"
	// VoucherFreeShipping waives the shipping line; goods discount is zero.
	VoucherFreeShipping VoucherType = "free_shipping"
)

// VoucherScope restricts which cart contents a voucher applies to.
type VoucherScope string

const (
	// VoucherScopeAll applies the voucher to any cart.
	VoucherScopeAll VoucherScope = "all"
	// VoucherScopeProducts restricts the voucher to listed product ids.
	VoucherScopeProducts VoucherScope = "specific_products"
	// VoucherScopeCategories restricts the voucher to listed categories.
	VoucherScopeCategories VoucherScope = "specific_categories"
)

// Voucher is a discount code. Code is stored canonicalised to uppercase.
// UsageLimit of zero means unlimited redemptions.
type Voucher struct {
	ID                 string
	Code               string
	Type               VoucherType
	Value              int64
	MinimumOrderAmount int64
	MaximumDiscount    int64
	AppliesTo          VoucherScope
	ProductIDs         []string
	CategoryIDs        []string
	ValidFrom          time.Time
	ValidUntil         time.Time
	UsageLimit         int
	UsedCount          int
	Active             bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// VoucherResult is the outcome of validating a code against a cart.
type VoucherResult struct {
	Voucher        Voucher
	DiscountAmount int64
	FreeShipping   bool
}

// OrderStatus tracks the payment/fulfilment state of an order.
type OrderStatus string

const (
	// OrderStatusPending awaits payment confirmation.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid is the initial state after payment capture.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusShipped is set atomically by label generation.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered is terminal.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled is terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusPaymentFailed is terminal.
	OrderStatusPaymentFailed OrderStatus = "payment_failed"
)

// ProductionStatus tracks the manufacturing workflow, independent of OrderStatus.
type ProductionStatus string

const (
	// ProductionNotStarted means no work has begun on the order.
	ProductionNotStarted ProductionStatus = "not_started"
	// ProductionInProgress means the garments are being printed.
	ProductionInProgress ProductionStatus = "in_production"
	// ProductionQualityCheck means the printed goods are under inspection.
	ProductionQualityCheck ProductionStatus = "quality_check"
	// ProductionReadyToShip means the order awaits label generation.
	ProductionReadyToShip ProductionStatus = "ready_to_ship"
	// ProductionCompleted is set atomically by label generation.
	ProductionCompleted ProductionStatus = "completed"
)

// Customization carries customer-supplied print details for a line item.
type Customization struct {
	IsCustomized bool
	Text         string
	Placement    string
}

// OrderItem is a single garment line within an order.
type OrderItem struct {
	ProductID     string
	ProductName   string
	Category      string
	Size          string
	Quantity      int
	UnitAmount    int64
	Customization *Customization
}

// OrderTotals breaks the charged amount into its pence components.
type OrderTotals struct {
	Subtotal int64
	Discount int64
	Shipping int64
	VAT      int64
	Total    int64
}

// ShippingDetails combines the destination address with dispatch tracking data.
type ShippingDetails struct {
	Method         string
	Address        Address
	TrackingNumber *string
	Courier        *string
	LabelURL       *string
	ShippedAt      *time.Time
}

// CancellationRecord stamps who cancelled an order and why.
type CancellationRecord struct {
	Reason      string
	Notes       string
	RequestedAt time.Time
	RequestedBy string
}

// RefundRecord stamps a completed refund against an order.
type RefundRecord struct {
	Amount     int64
	Reason     string
	RefundedAt time.Time
	RefundedBy string
}

// Order is the authoritative record of a customer purchase.
// Mutated only through the lifecycle transitions in the order service.
type Order struct {
	ID                    string
	Reference             string
	Email                 string
	Items                 []OrderItem
	Totals                OrderTotals
	Currency              string
	VoucherCode           string
	Status                OrderStatus
	ProductionStatus      ProductionStatus
	Priority              int
	Shipping              ShippingDetails
	CancellationRequested bool
	Cancellation          *CancellationRecord
	Refund                *RefundRecord
	ProductionStartedAt   *time.Time
	ProductionCompletedAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
	PaidAt                *time.Time
	DeliveredAt           *time.Time
}

// Refunded reports whether a refund has been stamped on the order.
func (o Order) Refunded() bool {
	return o.Refund != nil
}

// TempOrder stages a full checkout payload between payment-intent creation and
// webhook confirmation. Expired entries are ignored and purgeable.
type TempOrder struct {
	Key         string
	Email       string
	Items       []OrderItem
	Totals      OrderTotals
	Currency    string
	VoucherCode string
	Shipping    ShippingDetails
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// TransactionStatus enumerates money-movement states.
type TransactionStatus string

const (
	// TransactionPending awaits gateway confirmation.
	TransactionPending TransactionStatus = "pending"
	// TransactionCompleted records a successful capture.
	TransactionCompleted TransactionStatus = "completed"
	// TransactionFailed records a failed capture.
	TransactionFailed TransactionStatus = "failed"
	// TransactionRefunded records a completed refund.
	TransactionRefunded TransactionStatus = "refunded"
)

// Transaction is the canonical record of money movement for an order.
// At most one non-refunded transaction exists per order.
type Transaction struct {
	ID              string
	OrderID         string
	Amount          int64
	Currency        string
	PaymentMethod   string
	Status          TransactionStatus
	PaymentIntentID string
	RefundID        *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ShipmentRequest is the normalised payload sent to the carrier aggregator.
type ShipmentRequest struct {
	OrderReference string
	Method         string
	Address        Address
	Items          []ShipmentItem
}

// ShipmentItem describes one parcel line for the carrier.
type ShipmentItem struct {
	Description string
	Quantity    int
}

// ShippingLabel is the carrier aggregator's response for a shipment.
type ShippingLabel struct {
	TrackingNumber string
	Courier        string
	LabelURL       string
	Cost           int64
}

// SalesSummary aggregates paid, non-refunded orders over a reporting window.
type SalesSummary struct {
	From          time.Time
	To            time.Time
	OrderCount    int
	GrossRevenue  int64
	VATCollected  int64
	DiscountGiven int64
	TopProducts   []ProductSales
}

// ProductSales ranks a product by units sold within a reporting window.
type ProductSales struct {
	ProductID   string
	ProductName string
	Quantity    int
}
