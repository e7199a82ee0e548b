package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	pfirestore "github.com/shirthaus/api/internal/platform/firestore"
	"github.com/shirthaus/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry contract for dependency injection.
type Registry struct {
	provider     *pfirestore.Provider
	products     *ProductRepository
	stock        *StockRepository
	stockAlerts  *StockAlertRepository
	supplyOrders *SupplyOrderRepository
	vouchers     *VoucherRepository
	orders       *OrderRepository
	tempOrders   *TempOrderRepository
	transactions *TransactionRepository
	counters     *CounterRepository
	health       repositories.HealthRepository
}

// NewRegistry constructs the full repository set on one Firestore provider.
func NewRegistry(ctx context.Context, provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	reg := &Registry{provider: provider}

	var err error
	if reg.products, err = NewProductRepository(provider); err != nil {
		return nil, fmt.Errorf("build product repository: %w", err)
	}
	if reg.stock, err = NewStockRepository(provider); err != nil {
		return nil, fmt.Errorf("build stock repository: %w", err)
	}
	if reg.stockAlerts, err = NewStockAlertRepository(provider); err != nil {
		return nil, fmt.Errorf("build stock alert repository: %w", err)
	}
	if reg.supplyOrders, err = NewSupplyOrderRepository(provider); err != nil {
		return nil, fmt.Errorf("build supply order repository: %w", err)
	}
	if reg.vouchers, err = NewVoucherRepository(provider); err != nil {
		return nil, fmt.Errorf("build voucher repository: %w", err)
	}
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, fmt.Errorf("build order repository: %w", err)
	}
	if reg.tempOrders, err = NewTempOrderRepository(provider); err != nil {
		return nil, fmt.Errorf("build temp order repository: %w", err)
	}
	if reg.transactions, err = NewTransactionRepository(provider); err != nil {
		return nil, fmt.Errorf("build transaction repository: %w", err)
	}
	if reg.counters, err = NewCounterRepository(provider); err != nil {
		return nil, fmt.Errorf("build counter repository: %w", err)
	}

	client, err := provider.Client(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firestore client: %w", err)
	}
	health, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				iter := client.Collections(ctx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build health repository: %w", err)
	}
	reg.health = health

	return reg, nil
}

// Close releases the shared Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Products() repositories.ProductRepository         { return r.products }
func (r *Registry) Stock() repositories.StockRepository              { return r.stock }
func (r *Registry) StockAlerts() repositories.StockAlertRepository   { return r.stockAlerts }
func (r *Registry) SupplyOrders() repositories.SupplyOrderRepository { return r.supplyOrders }
func (r *Registry) Vouchers() repositories.VoucherRepository         { return r.vouchers }
func (r *Registry) Orders() repositories.OrderRepository             { return r.orders }
func (r *Registry) TempOrders() repositories.TempOrderRepository     { return r.tempOrders }
func (r *Registry) Transactions() repositories.TransactionRepository { return r.transactions }
func (r *Registry) Counters() repositories.CounterRepository         { return r.counters }
func (r *Registry) Health() repositories.HealthRepository            { return r.health }

// RunInTx groups repository operations in one Firestore transaction.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry not initialised")
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		return fn(ctx)
	})
}
