package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/shirthaus/api/internal/domain"
)

func reportingWindow() (time.Time, time.Time) {
	return time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
}

func paidReportOrder(reference string, total, vat, discount int64) domain.Order {
	paidAt := time.Date(2026, 7, 5, 10, 0, 0, 0, time.UTC)
	return domain.Order{
		ID:        reference,
		Reference: reference,
		Email:     "jo@example.co.uk",
		Items: []domain.OrderItem{
			{ProductID: "prod-1", ProductName: "Classic Tee", Quantity: 2},
			{ProductID: "prod-2", ProductName: "Zip Hoodie", Quantity: 1},
		},
		Totals: domain.OrderTotals{Subtotal: total - vat, Discount: discount, VAT: vat, Total: total},
		Status: domain.OrderStatusPaid,
		PaidAt: &paidAt,
	}
}

func newTestReportingService(t *testing.T, orders *stubOrderRepo, writer ReportWriter) ReportingService {
	t.Helper()
	svc, err := NewReportingService(ReportingServiceDeps{
		Orders:  orders,
		Reports: writer,
		Clock: func() time.Time {
			return time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)
		},
	})
	if err != nil {
		t.Fatalf("new reporting service: %v", err)
	}
	return svc
}

func TestSalesSummaryExcludesRefundedOrders(t *testing.T) {
	refunded := paidReportOrder("SH-3", 4000, 800, 0)
	refunded.Refund = &domain.RefundRecord{Amount: 4000}

	orders := &stubOrderRepo{
		listPaidFn: func(context.Context, time.Time, time.Time) ([]domain.Order, error) {
			return []domain.Order{
				paidReportOrder("SH-1", 10000, 2000, 500),
				paidReportOrder("SH-2", 6000, 1200, 0),
				refunded,
			}, nil
		},
	}
	svc := newTestReportingService(t, orders, nil)

	from, to := reportingWindow()
	summary, err := svc.SalesSummary(context.Background(), from, to)
	if err != nil {
		t.Fatalf("sales summary: %v", err)
	}
	if summary.OrderCount != 2 {
		t.Fatalf("expected 2 orders, got %d", summary.OrderCount)
	}
	if summary.GrossRevenue != 16000 {
		t.Fatalf("expected gross 16000, got %d", summary.GrossRevenue)
	}
	if summary.VATCollected != 3200 {
		t.Fatalf("expected VAT 3200, got %d", summary.VATCollected)
	}
	if summary.DiscountGiven != 500 {
		t.Fatalf("expected discount 500, got %d", summary.DiscountGiven)
	}
	if len(summary.TopProducts) != 2 {
		t.Fatalf("expected 2 ranked products, got %d", len(summary.TopProducts))
	}
	top := summary.TopProducts[0]
	if top.ProductID != "prod-1" || top.Quantity != 4 {
		t.Fatalf("unexpected top product %+v", top)
	}
}

func TestSalesSummaryRejectsEmptyWindow(t *testing.T) {
	svc := newTestReportingService(t, &stubOrderRepo{}, nil)
	from, _ := reportingWindow()
	_, err := svc.SalesSummary(context.Background(), from, from)
	if !errors.Is(err, ErrReportInvalidWindow) {
		t.Fatalf("expected invalid window, got %v", err)
	}
}

func TestExportSalesCSVWritesDocument(t *testing.T) {
	refunded := paidReportOrder("SH-2", 4000, 800, 0)
	refunded.Refund = &domain.RefundRecord{Amount: 4000}
	orders := &stubOrderRepo{
		listPaidFn: func(context.Context, time.Time, time.Time) ([]domain.Order, error) {
			return []domain.Order{paidReportOrder("SH-1", 11278, 1879, 1000), refunded}, nil
		},
	}
	writer := &captureReportWriter{}
	svc := newTestReportingService(t, orders, writer)

	from, to := reportingWindow()
	path, err := svc.ExportSalesCSV(context.Background(), from, to)
	if err != nil {
		t.Fatalf("export sales csv: %v", err)
	}
	if path != "reports/sales-20260701-20260801.csv" {
		t.Fatalf("unexpected path %s", path)
	}
	if writer.contentType != "text/csv" {
		t.Fatalf("unexpected content type %s", writer.contentType)
	}

	lines := strings.Split(strings.TrimSpace(string(writer.data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "reference,email,paid_at") {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if !strings.Contains(lines[1], "£112.78") {
		t.Fatalf("expected GBP formatted total, got %q", lines[1])
	}
	if !strings.Contains(lines[2], "true") {
		t.Fatalf("refunded flag missing from %q", lines[2])
	}
}

func TestExportSalesCSVRequiresWriter(t *testing.T) {
	svc := newTestReportingService(t, &stubOrderRepo{}, nil)
	from, to := reportingWindow()
	if _, err := svc.ExportSalesCSV(context.Background(), from, to); err == nil {
		t.Fatal("expected an error without a report writer")
	}
}
