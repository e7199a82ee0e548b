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
	"github.com/shirthaus/api/internal/repositories"
)

const supplyOrdersCollection = "supplyOrders"

type supplyOrderDocument struct {
	Reference   string     `firestore:"reference"`
	Supplier    string     `firestore:"supplier"`
	ProductID   string     `firestore:"productId"`
	ProductName string     `firestore:"productName"`
	Size        string     `firestore:"size"`
	Quantity    int        `firestore:"quantity"`
	Status      string     `firestore:"status"`
	CreatedAt   time.Time  `firestore:"createdAt"`
	ReceivedAt  *time.Time `firestore:"receivedAt,omitempty"`
}

func newSupplyOrderDocument(order domain.SupplyOrder) supplyOrderDocument {
	return supplyOrderDocument{
		Reference:   strings.TrimSpace(order.Reference),
		Supplier:    strings.TrimSpace(order.Supplier),
		ProductID:   order.ProductID,
		ProductName: order.ProductName,
		Size:        order.Size,
		Quantity:    order.Quantity,
		Status:      string(order.Status),
		CreatedAt:   order.CreatedAt.UTC(),
		ReceivedAt:  order.ReceivedAt,
	}
}

func (d supplyOrderDocument) toDomain(id string) domain.SupplyOrder {
	return domain.SupplyOrder{
		ID:          id,
		Reference:   d.Reference,
		Supplier:    d.Supplier,
		ProductID:   d.ProductID,
		ProductName: d.ProductName,
		Size:        d.Size,
		Quantity:    d.Quantity,
		Status:      domain.SupplyOrderStatus(d.Status),
		CreatedAt:   d.CreatedAt,
		ReceivedAt:  d.ReceivedAt,
	}
}

// SupplyOrderRepository persists supplier replenishment purchases.
type SupplyOrderRepository struct {
	provider     *pfirestore.Provider
	supplyOrders *pfirestore.BaseRepository[supplyOrderDocument]
}

// NewSupplyOrderRepository constructs a Firestore-backed supply order repository.
func NewSupplyOrderRepository(provider *pfirestore.Provider) (*SupplyOrderRepository, error) {
	if provider == nil {
		return nil, errors.New("supply order repository requires firestore provider")
	}
	return &SupplyOrderRepository{
		provider:     provider,
		supplyOrders: pfirestore.NewBaseRepository[supplyOrderDocument](provider, supplyOrdersCollection, nil, nil),
	}, nil
}

// Insert creates the supply order, failing with a conflict when the id exists.
func (r *SupplyOrderRepository) Insert(ctx context.Context, order domain.SupplyOrder) error {
	if r == nil || r.provider == nil {
		return errors.New("supply order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("supply order insert: id is required")
	}
	ref, err := r.supplyOrders.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, newSupplyOrderDocument(order)); err != nil {
		return pfirestore.WrapError("supplyOrders.insert", err)
	}
	return nil
}

// FindByID loads a single supply order.
func (r *SupplyOrderRepository) FindByID(ctx context.Context, supplyOrderID string) (domain.SupplyOrder, error) {
	if r == nil || r.provider == nil {
		return domain.SupplyOrder{}, errors.New("supply order repository not initialised")
	}
	doc, err := r.supplyOrders.Get(ctx, supplyOrderID)
	if err != nil {
		return domain.SupplyOrder{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// MarkReceived flips the supply order to received. A second call fails with a
// conflict, which keeps the stock credit idempotent at the service layer.
func (r *SupplyOrderRepository) MarkReceived(ctx context.Context, supplyOrderID string, receivedAt time.Time) (domain.SupplyOrder, error) {
	if r == nil || r.provider == nil {
		return domain.SupplyOrder{}, errors.New("supply order repository not initialised")
	}

	var out domain.SupplyOrder
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.supplyOrders.DocumentRef(ctx, supplyOrderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc supplyOrderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode supply order %s: %w", supplyOrderID, err)
		}
		if doc.Status == string(domain.SupplyOrderReceived) {
			return status.Error(codes.FailedPrecondition, fmt.Sprintf("supply order %s already received", supplyOrderID))
		}
		ts := receivedAt.UTC()
		doc.Status = string(domain.SupplyOrderReceived)
		doc.ReceivedAt = &ts
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		out = doc.toDomain(snap.Ref.ID)
		return nil
	})
	if err != nil {
		return domain.SupplyOrder{}, pfirestore.WrapError("supplyOrders.markReceived", err)
	}
	return out, nil
}

// List returns a page of supply orders, newest first.
func (r *SupplyOrderRepository) List(ctx context.Context, filter repositories.SupplyOrderFilter) (domain.CursorPage[domain.SupplyOrder], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.SupplyOrder]{}, errors.New("supply order repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.SupplyOrder]{}, pfirestore.WrapError("supplyOrders.list", err)
	}

	query := client.Collection(supplyOrdersCollection).Query
	if len(filter.Status) > 0 {
		statuses := make([]string, 0, len(filter.Status))
		for _, s := range filter.Status {
			statuses = append(statuses, string(s))
		}
		query = query.Where("status", "in", statuses)
	}
	query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Asc).Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		decoded, err := decodeTimePageToken(token)
		if err != nil {
			return domain.CursorPage[domain.SupplyOrder]{}, pfirestore.WrapError("supplyOrders.list", err)
		}
		query = query.StartAfter(decoded.CreatedAt, decoded.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.SupplyOrder
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.SupplyOrder]{}, pfirestore.WrapError("supplyOrders.list", err)
		}
		var doc supplyOrderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.SupplyOrder]{}, pfirestore.WrapError("supplyOrders.list", err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(orders) > pageSize
	if hasMore {
		orders = orders[:pageSize]
	}
	var nextToken string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		encoded, err := encodeTimePageToken(timePageToken{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.SupplyOrder]{}, pfirestore.WrapError("supplyOrders.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.SupplyOrder]{Items: orders, NextPageToken: nextToken}, nil
}
