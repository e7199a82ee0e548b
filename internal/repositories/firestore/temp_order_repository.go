package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/shirthaus/api/internal/domain"
	pfirestore "github.com/shirthaus/api/internal/platform/firestore"
)

const tempOrdersCollection = "tempOrders"

type tempOrderDocument struct {
	Email       string                  `firestore:"email"`
	Items       []orderItemDocument     `firestore:"items"`
	Totals      orderTotalsDocument     `firestore:"totals"`
	Currency    string                  `firestore:"currency"`
	VoucherCode string                  `firestore:"voucherCode,omitempty"`
	Shipping    shippingDetailsDocument `firestore:"shipping"`
	CreatedAt   time.Time               `firestore:"createdAt"`
	ExpiresAt   time.Time               `firestore:"expiresAt"`
}

func newTempOrderDocument(tempOrder domain.TempOrder) tempOrderDocument {
	return tempOrderDocument{
		Email:       strings.ToLower(strings.TrimSpace(tempOrder.Email)),
		Items:       newOrderItemDocuments(tempOrder.Items),
		Currency:    tempOrder.Currency,
		VoucherCode: tempOrder.VoucherCode,
		Totals: orderTotalsDocument{
			Subtotal: tempOrder.Totals.Subtotal,
			Discount: tempOrder.Totals.Discount,
			Shipping: tempOrder.Totals.Shipping,
			VAT:      tempOrder.Totals.VAT,
			Total:    tempOrder.Totals.Total,
		},
		Shipping: shippingDetailsDocument{
			Method:  tempOrder.Shipping.Method,
			Address: newAddressDocument(tempOrder.Shipping.Address),
		},
		CreatedAt: tempOrder.CreatedAt.UTC(),
		ExpiresAt: tempOrder.ExpiresAt.UTC(),
	}
}

func (d tempOrderDocument) toDomain(key string) domain.TempOrder {
	return domain.TempOrder{
		Key:         key,
		Email:       d.Email,
		Items:       orderItemsToDomain(d.Items),
		Currency:    d.Currency,
		VoucherCode: d.VoucherCode,
		Totals: domain.OrderTotals{
			Subtotal: d.Totals.Subtotal,
			Discount: d.Totals.Discount,
			Shipping: d.Totals.Shipping,
			VAT:      d.Totals.VAT,
			Total:    d.Totals.Total,
		},
		Shipping: domain.ShippingDetails{
			Method:  d.Shipping.Method,
			Address: d.Shipping.Address.toDomain(),
		},
		CreatedAt: d.CreatedAt,
		ExpiresAt: d.ExpiresAt,
	}
}

// TempOrderRepository stages checkout payloads keyed by the order data key
// carried in the payment intent metadata, so webhook confirmation consumes
// exactly the payload the intent was quoted for.
type TempOrderRepository struct {
	provider   *pfirestore.Provider
	tempOrders *pfirestore.BaseRepository[tempOrderDocument]
}

// NewTempOrderRepository constructs a Firestore-backed staging repository.
func NewTempOrderRepository(provider *pfirestore.Provider) (*TempOrderRepository, error) {
	if provider == nil {
		return nil, errors.New("temp order repository requires firestore provider")
	}
	return &TempOrderRepository{
		provider:   provider,
		tempOrders: pfirestore.NewBaseRepository[tempOrderDocument](provider, tempOrdersCollection, nil, nil),
	}, nil
}

// Put stores the staged payload, replacing any prior payload for the key.
func (r *TempOrderRepository) Put(ctx context.Context, tempOrder domain.TempOrder) error {
	if r == nil || r.provider == nil {
		return errors.New("temp order repository not initialised")
	}
	if strings.TrimSpace(tempOrder.Key) == "" {
		return errors.New("temp order put: key is required")
	}
	_, err := r.tempOrders.Set(ctx, tempOrder.Key, newTempOrderDocument(tempOrder))
	return err
}

// Consume atomically removes and returns the staged payload. Expired payloads
// are reported as not found, so a late webhook cannot create an order from
// stale pricing; the aborted transaction leaves them for PurgeExpired.
func (r *TempOrderRepository) Consume(ctx context.Context, key string, now time.Time) (domain.TempOrder, error) {
	if r == nil || r.provider == nil {
		return domain.TempOrder{}, errors.New("temp order repository not initialised")
	}
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return domain.TempOrder{}, pfirestore.WrapError("tempOrders.consume", status.Error(codes.NotFound, "empty temp order key"))
	}

	var out domain.TempOrder
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.tempOrders.DocumentRef(ctx, trimmed)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc tempOrderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode temp order %s: %w", trimmed, err)
		}
		if err := tx.Delete(ref); err != nil {
			return err
		}
		if !doc.ExpiresAt.After(now.UTC()) {
			return status.Error(codes.NotFound, fmt.Sprintf("temp order %s expired", trimmed))
		}
		out = doc.toDomain(snap.Ref.ID)
		return nil
	})
	if err != nil {
		return domain.TempOrder{}, pfirestore.WrapError("tempOrders.consume", err)
	}
	return out, nil
}

// PurgeExpired deletes staged payloads whose deadline has passed.
func (r *TempOrderRepository) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("temp order repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, pfirestore.WrapError("tempOrders.purgeExpired", err)
	}

	iter := client.Collection(tempOrdersCollection).
		Where("expiresAt", "<=", now.UTC()).
		Documents(ctx)
	defer iter.Stop()

	purged := 0
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return purged, pfirestore.WrapError("tempOrders.purgeExpired", err)
		}
		if _, err := snap.Ref.Delete(ctx); err != nil {
			return purged, pfirestore.WrapError("tempOrders.purgeExpired", err)
		}
		purged++
	}
	return purged, nil
}
