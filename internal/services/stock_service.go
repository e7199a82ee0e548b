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
	eventStockAdjusted       = "stock.adjusted"
	eventStockAlertRaised    = "stock.alert_raised"
	eventStockAlertResolved  = "stock.alert_resolved"
	eventSupplyOrderCreated  = "stock.supply_order_created"
	eventSupplyOrderReceived = "stock.supply_order_received"

	reasonSupplyOrderReceived = "supply order received"

	supplyReferencePrefix = "SUP"
)

var (
	// ErrStockInvalidInput signals the caller provided invalid arguments.
	ErrStockInvalidInput = errors.New("stock: invalid input")
	// ErrStockProductNotFound indicates the product does not exist.
	ErrStockProductNotFound = errors.New("stock: product not found")
	// ErrStockSizeNotFound indicates the product carries no such size.
	ErrStockSizeNotFound = errors.New("stock: size not found")
	// ErrStockInsufficient indicates a decrement would push the count below zero.
	ErrStockInsufficient = errors.New("stock: insufficient stock")
	// ErrSupplyOrderNotFound indicates the supply order could not be located.
	ErrSupplyOrderNotFound = errors.New("stock: supply order not found")
	// ErrSupplyOrderAlreadyReceived indicates the goods were already booked in.
	ErrSupplyOrderAlreadyReceived = errors.New("stock: supply order already received")
)

// StockServiceDeps bundles the collaborators required to construct a stock service.
type StockServiceDeps struct {
	Products     repositories.ProductRepository
	Stock        repositories.StockRepository
	Alerts       repositories.StockAlertRepository
	SupplyOrders repositories.SupplyOrderRepository
	Counters     repositories.CounterRepository
	// LowStockThreshold is the level at or below which an alert is kept active.
	LowStockThreshold int
	Clock             func() time.Time
	IDGenerator       func() string
	Logger            func(ctx context.Context, event string, fields map[string]any)
}

type stockService struct {
	products     repositories.ProductRepository
	stock        repositories.StockRepository
	alerts       repositories.StockAlertRepository
	supplyOrders repositories.SupplyOrderRepository
	counters     repositories.CounterRepository
	threshold    int
	clock        func() time.Time
	newID        func() string
	logger       func(context.Context, string, map[string]any)
}

// NewStockService wires dependencies into a concrete StockService implementation.
func NewStockService(deps StockServiceDeps) (StockService, error) {
	if deps.Products == nil {
		return nil, errors.New("stock service: product repository is required")
	}
	if deps.Stock == nil {
		return nil, errors.New("stock service: stock repository is required")
	}
	if deps.Alerts == nil {
		return nil, errors.New("stock service: alert repository is required")
	}
	if deps.LowStockThreshold <= 0 {
		return nil, errors.New("stock service: low stock threshold must be positive")
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

	return &stockService{
		products:     deps.Products,
		stock:        deps.Stock,
		alerts:       deps.Alerts,
		supplyOrders: deps.SupplyOrders,
		counters:     deps.Counters,
		threshold:    deps.LowStockThreshold,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *stockService) AdjustStock(ctx context.Context, cmd StockAdjustCommand) (StockAdjustOutcome, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return StockAdjustOutcome{}, fmt.Errorf("%w: product id is required", ErrStockInvalidInput)
	}
	size := strings.TrimSpace(cmd.Size)
	if size == "" {
		return StockAdjustOutcome{}, fmt.Errorf("%w: size is required", ErrStockInvalidInput)
	}
	if cmd.Delta == 0 {
		return StockAdjustOutcome{}, fmt.Errorf("%w: delta must be non-zero", ErrStockInvalidInput)
	}

	result, err := s.stock.Adjust(ctx, repositories.StockAdjustRequest{
		ProductID: productID,
		Size:      size,
		Delta:     cmd.Delta,
		Reason:    strings.TrimSpace(cmd.Reason),
		Actor:     strings.TrimSpace(cmd.Actor),
		Threshold: s.threshold,
		EntryID:   s.newID(),
		Now:       s.clock(),
	})
	if err != nil {
		return StockAdjustOutcome{}, s.mapStockError(err)
	}

	fields := map[string]any{
		"productId": productID,
		"size":      size,
		"delta":     cmd.Delta,
		"after":     result.Adjustment.QuantityAfter,
	}
	s.logger(ctx, eventStockAdjusted, fields)
	switch result.AlertEvent {
	case repositories.StockAlertEventCreated:
		s.logger(ctx, eventStockAlertRaised, fields)
	case repositories.StockAlertEventResolved:
		s.logger(ctx, eventStockAlertResolved, fields)
	}

	return StockAdjustOutcome{
		Adjustment: result.Adjustment,
		Alert:      result.Alert,
		AlertEvent: string(result.AlertEvent),
	}, nil
}

func (s *stockService) GetStock(ctx context.Context, productID string) (domain.Product, error) {
	trimmed := strings.TrimSpace(productID)
	if trimmed == "" {
		return domain.Product{}, fmt.Errorf("%w: product id is required", ErrStockInvalidInput)
	}
	product, err := s.products.FindByID(ctx, trimmed)
	if err != nil {
		if repoErrNotFound(err) {
			return domain.Product{}, fmt.Errorf("%w: %s", ErrStockProductNotFound, trimmed)
		}
		return domain.Product{}, err
	}
	return product, nil
}

func (s *stockService) ListStock(ctx context.Context, filter StockListFilter) (domain.CursorPage[domain.Product], error) {
	return s.products.List(ctx, repositories.ProductListFilter{
		Category:   filter.Category,
		ActiveOnly: filter.ActiveOnly,
		Pagination: filter.Pagination,
	})
}

func (s *stockService) ListAdjustments(ctx context.Context, filter StockAdjustmentListFilter) (domain.CursorPage[domain.StockAdjustment], error) {
	return s.stock.ListAdjustments(ctx, repositories.StockAdjustmentFilter{
		ProductID:  strings.TrimSpace(filter.ProductID),
		Size:       strings.TrimSpace(filter.Size),
		Pagination: filter.Pagination,
	})
}

func (s *stockService) ListAlerts(ctx context.Context, filter StockAlertListFilter) (domain.CursorPage[domain.StockAlert], error) {
	return s.alerts.List(ctx, repositories.StockAlertFilter{
		ActiveOnly: filter.ActiveOnly,
		Pagination: filter.Pagination,
	})
}

func (s *stockService) CreateSupplyOrder(ctx context.Context, cmd CreateSupplyOrderCommand) (domain.SupplyOrder, error) {
	if s.supplyOrders == nil || s.counters == nil {
		return domain.SupplyOrder{}, errors.New("stock service: supply orders not configured")
	}
	supplier := strings.TrimSpace(cmd.Supplier)
	if supplier == "" {
		return domain.SupplyOrder{}, fmt.Errorf("%w: supplier is required", ErrStockInvalidInput)
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return domain.SupplyOrder{}, fmt.Errorf("%w: product id is required", ErrStockInvalidInput)
	}
	size := strings.TrimSpace(cmd.Size)
	if size == "" {
		return domain.SupplyOrder{}, fmt.Errorf("%w: size is required", ErrStockInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return domain.SupplyOrder{}, fmt.Errorf("%w: quantity must be positive", ErrStockInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if repoErrNotFound(err) {
			return domain.SupplyOrder{}, fmt.Errorf("%w: %s", ErrStockProductNotFound, productID)
		}
		return domain.SupplyOrder{}, err
	}
	if _, ok := product.Stock[size]; !ok {
		return domain.SupplyOrder{}, fmt.Errorf("%w: product %s size %s", ErrStockSizeNotFound, productID, size)
	}

	now := s.clock()
	reference, err := nextReference(ctx, s.counters, supplyReferencePrefix, now)
	if err != nil {
		return domain.SupplyOrder{}, fmt.Errorf("issue supply order reference: %w", err)
	}

	order := domain.SupplyOrder{
		ID:          s.newID(),
		Reference:   reference,
		Supplier:    supplier,
		ProductID:   productID,
		ProductName: product.Name,
		Size:        size,
		Quantity:    cmd.Quantity,
		Status:      domain.SupplyOrderOrdered,
		CreatedAt:   now,
	}
	if err := s.supplyOrders.Insert(ctx, order); err != nil {
		return domain.SupplyOrder{}, err
	}

	s.logger(ctx, eventSupplyOrderCreated, map[string]any{
		"reference": reference,
		"productId": productID,
		"size":      size,
		"quantity":  cmd.Quantity,
	})
	return order, nil
}

// ReceiveSupplyOrder books the goods in: the status flip is conflict-guarded so
// a repeated call cannot credit the ledger twice.
func (s *stockService) ReceiveSupplyOrder(ctx context.Context, supplyOrderID string, actor string) (domain.SupplyOrder, error) {
	if s.supplyOrders == nil {
		return domain.SupplyOrder{}, errors.New("stock service: supply orders not configured")
	}
	trimmed := strings.TrimSpace(supplyOrderID)
	if trimmed == "" {
		return domain.SupplyOrder{}, fmt.Errorf("%w: supply order id is required", ErrStockInvalidInput)
	}

	received, err := s.supplyOrders.MarkReceived(ctx, trimmed, s.clock())
	if err != nil {
		switch {
		case repoErrNotFound(err):
			return domain.SupplyOrder{}, fmt.Errorf("%w: %s", ErrSupplyOrderNotFound, trimmed)
		case repoErrConflict(err):
			return domain.SupplyOrder{}, fmt.Errorf("%w: %s", ErrSupplyOrderAlreadyReceived, trimmed)
		}
		return domain.SupplyOrder{}, err
	}

	if _, err := s.AdjustStock(ctx, StockAdjustCommand{
		ProductID: received.ProductID,
		Size:      received.Size,
		Delta:     received.Quantity,
		Reason:    reasonSupplyOrderReceived,
		Actor:     strings.TrimSpace(actor),
	}); err != nil {
		// The status flip already committed; surface the failed credit loudly.
		return received, fmt.Errorf("supply order %s received but stock credit failed: %w", received.Reference, err)
	}

	s.logger(ctx, eventSupplyOrderReceived, map[string]any{
		"reference": received.Reference,
		"productId": received.ProductID,
		"size":      received.Size,
		"quantity":  received.Quantity,
	})
	return received, nil
}

func (s *stockService) ListSupplyOrders(ctx context.Context, filter SupplyOrderListFilter) (domain.CursorPage[domain.SupplyOrder], error) {
	if s.supplyOrders == nil {
		return domain.CursorPage[domain.SupplyOrder]{}, errors.New("stock service: supply orders not configured")
	}
	return s.supplyOrders.List(ctx, repositories.SupplyOrderFilter{
		Status:     filter.Status,
		Pagination: filter.Pagination,
	})
}

func (s *stockService) mapStockError(err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficientStock:
			return fmt.Errorf("%w: %s", ErrStockInsufficient, stockErr.Message)
		case repositories.StockErrorProductNotFound:
			return fmt.Errorf("%w: %s", ErrStockProductNotFound, stockErr.Message)
		case repositories.StockErrorSizeNotFound:
			return fmt.Errorf("%w: %s", ErrStockSizeNotFound, stockErr.Message)
		}
	}
	return err
}

// nextReference issues a SH-/SUP-YYMMDD-NNNN reference from a transactional
// per-day counter, one sequence per prefix, starting at 0001 each day.
func nextReference(ctx context.Context, counters repositories.CounterRepository, prefix string, now time.Time) (string, error) {
	if counters == nil {
		return "", errors.New("reference: counter repository is required")
	}
	day := now.UTC().Format("060102")
	counterID := fmt.Sprintf("%s-%s", strings.ToLower(prefix), day)
	seq, err := counters.Next(ctx, counterID, 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%04d", prefix, day, seq), nil
}
