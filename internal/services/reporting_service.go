package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	domain "github.com/shirthaus/api/internal/domain"
	"github.com/shirthaus/api/internal/repositories"
)

const (
	eventReportGenerated = "report.generated"
	eventReportExported  = "report.exported"

	topProductsLimit = 10
)

// ErrReportInvalidWindow signals a reporting window where from is not before to.
var ErrReportInvalidWindow = errors.New("reporting: invalid window")

// ReportingServiceDeps bundles collaborators required to construct a reporting service.
type ReportingServiceDeps struct {
	Orders  repositories.OrderRepository
	Reports ReportWriter
	Clock   func() time.Time
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type reportingService struct {
	orders  repositories.OrderRepository
	reports ReportWriter
	clock   func() time.Time
	logger  func(context.Context, string, map[string]any)
	printer *message.Printer
}

// NewReportingService wires dependencies into a concrete ReportingService implementation.
func NewReportingService(deps ReportingServiceDeps) (ReportingService, error) {
	if deps.Orders == nil {
		return nil, errors.New("reporting service: order repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &reportingService{
		orders:  deps.Orders,
		reports: deps.Reports,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger:  logger,
		printer: message.NewPrinter(language.BritishEnglish),
	}, nil
}

// SalesSummary aggregates orders paid inside [from, to). Refunded orders are
// excluded entirely rather than netted off.
func (s *reportingService) SalesSummary(ctx context.Context, from, to time.Time) (domain.SalesSummary, error) {
	from, to, err := normaliseWindow(from, to)
	if err != nil {
		return domain.SalesSummary{}, err
	}

	orders, err := s.orders.ListPaidBetween(ctx, from, to)
	if err != nil {
		return domain.SalesSummary{}, err
	}

	summary := domain.SalesSummary{From: from, To: to}
	units := map[string]*domain.ProductSales{}
	for _, order := range orders {
		if order.Refunded() {
			continue
		}
		summary.OrderCount++
		summary.GrossRevenue += order.Totals.Total
		summary.VATCollected += order.Totals.VAT
		summary.DiscountGiven += order.Totals.Discount
		for _, item := range order.Items {
			entry, ok := units[item.ProductID]
			if !ok {
				entry = &domain.ProductSales{ProductID: item.ProductID, ProductName: item.ProductName}
				units[item.ProductID] = entry
			}
			entry.Quantity += item.Quantity
		}
	}

	summary.TopProducts = rankProducts(units, topProductsLimit)
	s.logger(ctx, eventReportGenerated, map[string]any{
		"from":   from.Format(time.RFC3339),
		"to":     to.Format(time.RFC3339),
		"orders": summary.OrderCount,
	})
	return summary, nil
}

// ExportSalesCSV renders one row per paid order in the window and stores the
// document via the report writer, returning the stored object path.
func (s *reportingService) ExportSalesCSV(ctx context.Context, from, to time.Time) (string, error) {
	if s.reports == nil {
		return "", errors.New("reporting service: report writer not configured")
	}
	from, to, err := normaliseWindow(from, to)
	if err != nil {
		return "", err
	}

	orders, err := s.orders.ListPaidBetween(ctx, from, to)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{"reference", "email", "paid_at", "status", "items", "subtotal", "discount", "shipping", "vat", "total", "refunded"}
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("render sales csv: %w", err)
	}
	for _, order := range orders {
		paidAt := ""
		if order.PaidAt != nil {
			paidAt = order.PaidAt.UTC().Format(time.RFC3339)
		}
		itemCount := 0
		for _, item := range order.Items {
			itemCount += item.Quantity
		}
		row := []string{
			order.Reference,
			order.Email,
			paidAt,
			string(order.Status),
			fmt.Sprintf("%d", itemCount),
			s.formatGBP(order.Totals.Subtotal),
			s.formatGBP(order.Totals.Discount),
			s.formatGBP(order.Totals.Shipping),
			s.formatGBP(order.Totals.VAT),
			s.formatGBP(order.Totals.Total),
			fmt.Sprintf("%t", order.Refunded()),
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("render sales csv: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("render sales csv: %w", err)
	}

	name := fmt.Sprintf("sales-%s-%s.csv", from.Format("20060102"), to.Format("20060102"))
	path, err := s.reports.WriteReport(ctx, name, "text/csv", buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("store sales csv: %w", err)
	}

	s.logger(ctx, eventReportExported, map[string]any{
		"name": name,
		"path": path,
		"rows": len(orders),
	})
	return path, nil
}

func (s *reportingService) formatGBP(pence int64) string {
	return s.printer.Sprintf("£%.2f", float64(pence)/100)
}

func normaliseWindow(from, to time.Time) (time.Time, time.Time, error) {
	from = from.UTC()
	to = to.UTC()
	if !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from %s is not before to %s", ErrReportInvalidWindow, from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return from, to, nil
}

func rankProducts(units map[string]*domain.ProductSales, limit int) []domain.ProductSales {
	ranked := make([]domain.ProductSales, 0, len(units))
	for _, entry := range units {
		ranked = append(ranked, *entry)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Quantity != ranked[j].Quantity {
			return ranked[i].Quantity > ranked[j].Quantity
		}
		return ranked[i].ProductID < ranked[j].ProductID
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
