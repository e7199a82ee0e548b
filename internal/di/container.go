package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shirthaus/api/internal/platform/config"
	"github.com/shirthaus/api/internal/repositories"
	"github.com/shirthaus/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Stock    services.StockService
	Vouchers services.VoucherService
	Orders   services.OrderService
	Checkout services.CheckoutService
	Reports  services.ReportingService
	System   services.SystemService
}

// Collaborators carries the platform adapters the service layer depends on.
// Production wiring supplies Stripe, the carrier client, Pub/Sub, and GCS;
// tests can provide in-memory stand-ins.
type Collaborators struct {
	Gateway       services.PaymentGateway
	Carrier       services.ShippingCarrier
	Labels        services.LabelArchiver
	Reports       services.ReportWriter
	Notifications services.NotificationPublisher
	Sanitizer     services.TextSanitizer
	Build         services.BuildInfo
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

// Container wires repositories, services, and platform adapters for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, collab Collaborators) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(cfg, reg, collab)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, reg repositories.Registry, collab Collaborators) (Services, error) {
	var svc Services

	clock := collab.Clock
	if clock == nil {
		clock = time.Now
	}

	stockSvc, err := services.NewStockService(services.StockServiceDeps{
		Products:          reg.Products(),
		Stock:             reg.Stock(),
		Alerts:            reg.StockAlerts(),
		SupplyOrders:      reg.SupplyOrders(),
		Counters:          reg.Counters(),
		LowStockThreshold: cfg.Stock.LowStockThreshold,
		Clock:             clock,
		IDGenerator:       collab.IDGenerator,
		Logger:            collab.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build stock service: %w", err)
	}
	svc.Stock = stockSvc

	voucherSvc, err := services.NewVoucherService(services.VoucherServiceDeps{
		Vouchers:    reg.Vouchers(),
		Clock:       clock,
		IDGenerator: collab.IDGenerator,
		Logger:      collab.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build voucher service: %w", err)
	}
	svc.Vouchers = voucherSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:        reg.Orders(),
		Transactions:  reg.Transactions(),
		Counters:      reg.Counters(),
		Stock:         stockSvc,
		Gateway:       collab.Gateway,
		Carrier:       collab.Carrier,
		Labels:        collab.Labels,
		Notifications: collab.Notifications,
		Clock:         clock,
		IDGenerator:   collab.IDGenerator,
		Logger:        collab.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Products:      reg.Products(),
		TempOrders:    reg.TempOrders(),
		Vouchers:      voucherSvc,
		Orders:        orderSvc,
		Stock:         stockSvc,
		Gateway:       collab.Gateway,
		Sanitizer:     collab.Sanitizer,
		Notifications: collab.Notifications,
		Pricing:       pricingFromConfig(cfg.Checkout),
		Clock:         clock,
		IDGenerator:   collab.IDGenerator,
		Logger:        collab.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkoutSvc

	reportSvc, err := services.NewReportingService(services.ReportingServiceDeps{
		Orders:  reg.Orders(),
		Reports: collab.Reports,
		Clock:   clock,
		Logger:  collab.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build reporting service: %w", err)
	}
	svc.Reports = reportSvc

	build := collab.Build
	if build.Environment == "" {
		build.Environment = cfg.Security.Environment
	}
	if build.StartedAt.IsZero() {
		build.StartedAt = clock().UTC()
	}
	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		Health: reg.Health(),
		Clock:  clock,
		Build:  build,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}
	svc.System = systemSvc

	return svc, nil
}

func pricingFromConfig(cfg config.CheckoutConfig) services.CheckoutPricing {
	return services.CheckoutPricing{
		Currency:           cfg.Currency,
		VATRateBasisPoints: int64(cfg.VATRateBasisPoints),
		ShippingCosts: map[string]int64{
			"Standard Delivery": cfg.StandardShippingCost,
			"Express Delivery":  cfg.ExpressShippingCost,
			"Next Day Delivery": cfg.NextDayShippingCost,
		},
		TempOrderTTL: cfg.TempOrderTTL,
	}
}
