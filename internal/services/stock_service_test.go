package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/shirthaus/api/internal/domain"
	"github.com/shirthaus/api/internal/repositories"
)

func newTestStockService(t *testing.T, deps StockServiceDeps) StockService {
	t.Helper()
	if deps.Products == nil {
		deps.Products = &stubProductRepo{}
	}
	if deps.Stock == nil {
		deps.Stock = &stubStockRepo{}
	}
	if deps.Alerts == nil {
		deps.Alerts = &stubAlertRepo{}
	}
	if deps.LowStockThreshold == 0 {
		deps.LowStockThreshold = 5
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time {
			return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
		}
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = sequentialIDs("id-")
	}
	svc, err := NewStockService(deps)
	if err != nil {
		t.Fatalf("new stock service: %v", err)
	}
	return svc
}

func TestAdjustStockPassesThresholdAndReportsAlert(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	stock := &stubStockRepo{}
	stock.adjustFn = func(_ context.Context, req repositories.StockAdjustRequest) (repositories.StockAdjustResult, error) {
		if req.Threshold != 5 {
			t.Fatalf("expected threshold 5, got %d", req.Threshold)
		}
		if req.EntryID == "" {
			t.Fatal("expected a generated entry id")
		}
		if !req.Now.Equal(now) {
			t.Fatalf("unexpected timestamp %v", req.Now)
		}
		return repositories.StockAdjustResult{
			Adjustment: domain.StockAdjustment{
				ID:             req.EntryID,
				ProductID:      req.ProductID,
				Size:           req.Size,
				Delta:          req.Delta,
				QuantityBefore: 6,
				QuantityAfter:  5,
				CreatedAt:      req.Now,
			},
			Alert: &domain.StockAlert{
				ProductID:    req.ProductID,
				Size:         req.Size,
				CurrentStock: 5,
				Threshold:    5,
				Status:       domain.StockAlertActive,
			},
			AlertEvent: repositories.StockAlertEventCreated,
		}, nil
	}

	var events []string
	svc := newTestStockService(t, StockServiceDeps{
		Stock: stock,
		Clock: func() time.Time { return now },
		Logger: func(_ context.Context, event string, _ map[string]any) {
			events = append(events, event)
		},
	})

	outcome, err := svc.AdjustStock(context.Background(), StockAdjustCommand{
		ProductID: "prod-1",
		Size:      "M",
		Delta:     -1,
		Reason:    "order placed",
		Actor:     "checkout",
	})
	if err != nil {
		t.Fatalf("adjust stock: %v", err)
	}
	if outcome.Adjustment.QuantityAfter != 5 {
		t.Fatalf("expected quantity after 5, got %d", outcome.Adjustment.QuantityAfter)
	}
	if outcome.Alert == nil || outcome.Alert.Status != domain.StockAlertActive {
		t.Fatalf("expected an active alert, got %+v", outcome.Alert)
	}
	if outcome.AlertEvent != string(repositories.StockAlertEventCreated) {
		t.Fatalf("unexpected alert event %s", outcome.AlertEvent)
	}
	if len(events) != 2 || events[1] != eventStockAlertRaised {
		t.Fatalf("expected adjusted + alert events, got %v", events)
	}
}

func TestAdjustStockMapsRepositoryCodes(t *testing.T) {
	cases := []struct {
		name string
		code repositories.StockErrorCode
		want error
	}{
		{name: "insufficient", code: repositories.StockErrorInsufficientStock, want: ErrStockInsufficient},
		{name: "product missing", code: repositories.StockErrorProductNotFound, want: ErrStockProductNotFound},
		{name: "size missing", code: repositories.StockErrorSizeNotFound, want: ErrStockSizeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stock := &stubStockRepo{
				adjustFn: func(context.Context, repositories.StockAdjustRequest) (repositories.StockAdjustResult, error) {
					return repositories.StockAdjustResult{}, repositories.NewStockError(tc.code, "boom", nil)
				},
			}
			svc := newTestStockService(t, StockServiceDeps{Stock: stock})
			_, err := svc.AdjustStock(context.Background(), StockAdjustCommand{ProductID: "prod-1", Size: "M", Delta: -3})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestAdjustStockRejectsZeroDelta(t *testing.T) {
	svc := newTestStockService(t, StockServiceDeps{})
	_, err := svc.AdjustStock(context.Background(), StockAdjustCommand{ProductID: "prod-1", Size: "M", Delta: 0})
	if !errors.Is(err, ErrStockInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestCreateSupplyOrderIssuesDailyReference(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	products := &stubProductRepo{
		findFn: func(_ context.Context, productID string) (domain.Product, error) {
			return domain.Product{
				ID:    productID,
				Name:  "Classic Tee",
				Stock: map[string]int{"M": 2, "L": 8},
			}, nil
		},
	}
	counters := &stubCounterRepo{
		nextFn: func(_ context.Context, counterID string, step int64) (int64, error) {
			if counterID != "sup-260314" {
				t.Fatalf("unexpected counter id %s", counterID)
			}
			return 1, nil
		},
	}
	supply := &stubSupplyOrderRepo{}
	var inserted domain.SupplyOrder
	supply.insertFn = func(_ context.Context, order domain.SupplyOrder) error {
		inserted = order
		return nil
	}

	svc := newTestStockService(t, StockServiceDeps{
		Products:     products,
		SupplyOrders: supply,
		Counters:     counters,
		Clock:        func() time.Time { return now },
	})

	order, err := svc.CreateSupplyOrder(context.Background(), CreateSupplyOrderCommand{
		Supplier:  "Garment Co",
		ProductID: "prod-1",
		Size:      "M",
		Quantity:  50,
		Actor:     "admin",
	})
	if err != nil {
		t.Fatalf("create supply order: %v", err)
	}
	if order.Reference != "SUP-260314-0001" {
		t.Fatalf("unexpected reference %s", order.Reference)
	}
	if order.Status != domain.SupplyOrderOrdered {
		t.Fatalf("unexpected status %s", order.Status)
	}
	if inserted.ProductName != "Classic Tee" {
		t.Fatalf("expected product name snapshot, got %q", inserted.ProductName)
	}
}

func TestCreateSupplyOrderRejectsUnknownSize(t *testing.T) {
	products := &stubProductRepo{
		findFn: func(_ context.Context, productID string) (domain.Product, error) {
			return domain.Product{ID: productID, Stock: map[string]int{"S": 1}}, nil
		},
	}
	svc := newTestStockService(t, StockServiceDeps{
		Products:     products,
		SupplyOrders: &stubSupplyOrderRepo{},
		Counters:     &stubCounterRepo{},
	})
	_, err := svc.CreateSupplyOrder(context.Background(), CreateSupplyOrderCommand{
		Supplier:  "Garment Co",
		ProductID: "prod-1",
		Size:      "XXL",
		Quantity:  10,
	})
	if !errors.Is(err, ErrStockSizeNotFound) {
		t.Fatalf("expected size not found, got %v", err)
	}
}

func TestReceiveSupplyOrderCreditsStockOnce(t *testing.T) {
	now := time.Date(2026, 3, 20, 9, 0, 0, 0, time.UTC)
	received := domain.SupplyOrder{
		ID:        "so-1",
		Reference: "SUP-260314-0001",
		ProductID: "prod-1",
		Size:      "M",
		Quantity:  50,
		Status:    domain.SupplyOrderReceived,
	}
	supply := &stubSupplyOrderRepo{
		markReceivedFn: func(_ context.Context, supplyOrderID string, receivedAt time.Time) (domain.SupplyOrder, error) {
			if supplyOrderID != "so-1" {
				t.Fatalf("unexpected id %s", supplyOrderID)
			}
			return received, nil
		},
	}
	var credited repositories.StockAdjustRequest
	stock := &stubStockRepo{
		adjustFn: func(_ context.Context, req repositories.StockAdjustRequest) (repositories.StockAdjustResult, error) {
			credited = req
			return repositories.StockAdjustResult{
				Adjustment: domain.StockAdjustment{QuantityAfter: 52},
			}, nil
		},
	}

	svc := newTestStockService(t, StockServiceDeps{
		Stock:        stock,
		SupplyOrders: supply,
		Counters:     &stubCounterRepo{},
		Clock:        func() time.Time { return now },
	})

	order, err := svc.ReceiveSupplyOrder(context.Background(), "so-1", "warehouse")
	if err != nil {
		t.Fatalf("receive supply order: %v", err)
	}
	if order.Status != domain.SupplyOrderReceived {
		t.Fatalf("unexpected status %s", order.Status)
	}
	if credited.Delta != 50 || credited.Reason != reasonSupplyOrderReceived {
		t.Fatalf("unexpected credit %+v", credited)
	}
}

func TestReceiveSupplyOrderTwiceConflicts(t *testing.T) {
	supply := &stubSupplyOrderRepo{
		markReceivedFn: func(context.Context, string, time.Time) (domain.SupplyOrder, error) {
			return domain.SupplyOrder{}, repoError{conflict: true}
		},
	}
	svc := newTestStockService(t, StockServiceDeps{
		SupplyOrders: supply,
		Counters:     &stubCounterRepo{},
	})
	_, err := svc.ReceiveSupplyOrder(context.Background(), "so-1", "warehouse")
	if !errors.Is(err, ErrSupplyOrderAlreadyReceived) {
		t.Fatalf("expected already received, got %v", err)
	}
}

func TestReceiveSupplyOrderSurfacesFailedCredit(t *testing.T) {
	supply := &stubSupplyOrderRepo{
		markReceivedFn: func(context.Context, string, time.Time) (domain.SupplyOrder, error) {
			return domain.SupplyOrder{ID: "so-1", Reference: "SUP-260314-0001", ProductID: "prod-1", Size: "M", Quantity: 50}, nil
		},
	}
	stock := &stubStockRepo{
		adjustFn: func(context.Context, repositories.StockAdjustRequest) (repositories.StockAdjustResult, error) {
			return repositories.StockAdjustResult{}, repositories.NewStockError(repositories.StockErrorProductNotFound, "gone", nil)
		},
	}
	svc := newTestStockService(t, StockServiceDeps{
		Stock:        stock,
		SupplyOrders: supply,
		Counters:     &stubCounterRepo{},
	})
	order, err := svc.ReceiveSupplyOrder(context.Background(), "so-1", "warehouse")
	if err == nil {
		t.Fatal("expected an error for the failed credit")
	}
	if !errors.Is(err, ErrStockProductNotFound) {
		t.Fatalf("expected product not found in chain, got %v", err)
	}
	if order.ID != "so-1" {
		t.Fatalf("expected the received order back, got %+v", order)
	}
}
