package repositories

import (
	"context"
	"time"

	domain "github.com/shirthaus/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Stock() StockRepository
	StockAlerts() StockAlertRepository
	SupplyOrders() SupplyOrderRepository
	Vouchers() VoucherRepository
	Orders() OrderRepository
	TempOrders() TempOrderRepository
	Transactions() TransactionRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductRepository stores the garment catalogue with per-size stock projections.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
}

// StockRepository applies atomic stock mutations together with their ledger
// entries and low-stock alert upkeep, all inside a single transaction per
// (productID, size) pair.
type StockRepository interface {
	Adjust(ctx context.Context, req StockAdjustRequest) (StockAdjustResult, error)
	ListAdjustments(ctx context.Context, filter StockAdjustmentFilter) (domain.CursorPage[domain.StockAdjustment], error)
}

// StockAdjustRequest describes one atomic delta against a (product, size) count.
type StockAdjustRequest struct {
	ProductID string
	Size      string
	Delta     int
	Reason    string
	Actor     string
	// Threshold is the low-stock level at or below which an alert is kept active.
	Threshold int
	// EntryID identifies the ledger entry written for this mutation.
	EntryID string
	Now     time.Time
}

// StockAlertEvent describes what the alert deriver did during an adjustment.
type StockAlertEvent string

const (
	// StockAlertEventNone means no alert change was needed.
	StockAlertEventNone StockAlertEvent = "none"
	// StockAlertEventCreated means a new active alert was raised.
	StockAlertEventCreated StockAlertEvent = "created"
	// StockAlertEventUpdated means an existing active alert was refreshed in place.
	StockAlertEventUpdated StockAlertEvent = "updated"
	// StockAlertEventResolved means the active alert was closed.
	StockAlertEventResolved StockAlertEvent = "resolved"
)

// StockAdjustResult reports the applied ledger entry and any alert transition.
type StockAdjustResult struct {
	Adjustment domain.StockAdjustment
	Alert      *domain.StockAlert
	AlertEvent StockAlertEvent
}

// StockAlertRepository provides read access to alert records.
type StockAlertRepository interface {
	FindActive(ctx context.Context, productID string, size string) (domain.StockAlert, error)
	List(ctx context.Context, filter StockAlertFilter) (domain.CursorPage[domain.StockAlert], error)
}

// SupplyOrderRepository persists supplier replenishment purchases.
type SupplyOrderRepository interface {
	Insert(ctx context.Context, order domain.SupplyOrder) error
	FindByID(ctx context.Context, supplyOrderID string) (domain.SupplyOrder, error)
	// MarkReceived flips status to received; a second call fails with a conflict.
	MarkReceived(ctx context.Context, supplyOrderID string, receivedAt time.Time) (domain.SupplyOrder, error)
	List(ctx context.Context, filter SupplyOrderFilter) (domain.CursorPage[domain.SupplyOrder], error)
}

// VoucherRepository maintains voucher definitions and their usage counters.
type VoucherRepository interface {
	// Insert fails with a conflict when the canonical code already exists.
	Insert(ctx context.Context, voucher domain.Voucher) error
	Update(ctx context.Context, voucher domain.Voucher) error
	FindByCode(ctx context.Context, code string) (domain.Voucher, error)
	List(ctx context.Context, filter VoucherListFilter) (domain.CursorPage[domain.Voucher], error)
	// IncrementUsage atomically bumps UsedCount, re-checking the usage limit
	// inside the transaction. An exhausted voucher fails with a conflict.
	IncrementUsage(ctx context.Context, code string, now time.Time) (domain.Voucher, error)
}

// OrderRepository persists order documents and provides the atomic
// read-check-write primitive the lifecycle state machine relies on.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByReference(ctx context.Context, reference string) (domain.Order, error)
	FindByTrackingNumber(ctx context.Context, trackingNumber string) (domain.Order, error)
	// Mutate loads the order inside a transaction, applies fn and writes the
	// result. An error from fn aborts without writing, so state-machine guards
	// evaluated in fn are race-free.
	Mutate(ctx context.Context, orderID string, fn func(domain.Order) (domain.Order, error)) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	// ListOpen returns orders that are neither shipped, delivered nor cancelled,
	// ordered by stored priority descending then createdAt descending.
	ListOpen(ctx context.Context) ([]domain.Order, error)
	ListPaidBetween(ctx context.Context, from, to time.Time) ([]domain.Order, error)
}

// TempOrderRepository stages checkout payloads between intent creation and webhook.
type TempOrderRepository interface {
	Put(ctx context.Context, tempOrder domain.TempOrder) error
	// Consume atomically removes and returns the staged payload. Missing,
	// already-consumed or expired keys fail with not found.
	Consume(ctx context.Context, key string, now time.Time) (domain.TempOrder, error)
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// TransactionRepository stores the canonical money-movement record per order.
type TransactionRepository interface {
	Insert(ctx context.Context, tx domain.Transaction) error
	FindByOrder(ctx context.Context, orderID string) (domain.Transaction, error)
	// MarkRefunded conditionally flips status to refunded; a transaction that is
	// already refunded fails with a conflict.
	MarkRefunded(ctx context.Context, transactionID string, refundID string, now time.Time) (domain.Transaction, error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (HealthReport, error)
}

// HealthReport summarises dependency probes for readiness endpoints.
type HealthReport struct {
	Healthy    bool
	Components map[string]string
	CheckedAt  time.Time
}

// Filter DTOs shared across repositories ------------------------------------

type ProductListFilter struct {
	Category   *string
	ActiveOnly bool
	Pagination domain.Pagination
}

type StockAdjustmentFilter struct {
	ProductID  string
	Size       string
	Pagination domain.Pagination
}

type StockAlertFilter struct {
	ActiveOnly bool
	Pagination domain.Pagination
}

type SupplyOrderFilter struct {
	Status     []domain.SupplyOrderStatus
	Pagination domain.Pagination
}

type VoucherListFilter struct {
	ActiveOnly bool
	Pagination domain.Pagination
}

type OrderListFilter struct {
	Email      string
	Status     []domain.OrderStatus
	From       *time.Time
	To         *time.Time
	Pagination domain.Pagination
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
