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

const (
	stockAdjustmentsCollection = "stockAdjustments"
	stockAlertsCollection      = "stockAlerts"
)

type stockAdjustmentDocument struct {
	ProductID      string    `firestore:"productId"`
	ProductName    string    `firestore:"productName"`
	Size           string    `firestore:"size"`
	Delta          int       `firestore:"delta"`
	QuantityBefore int       `firestore:"quantityBefore"`
	QuantityAfter  int       `firestore:"quantityAfter"`
	Reason         string    `firestore:"reason,omitempty"`
	Actor          string    `firestore:"actor,omitempty"`
	CreatedAt      time.Time `firestore:"createdAt"`
}

func (d stockAdjustmentDocument) toDomain(id string) domain.StockAdjustment {
	return domain.StockAdjustment{
		ID:             id,
		ProductID:      d.ProductID,
		ProductName:    d.ProductName,
		Size:           d.Size,
		Delta:          d.Delta,
		QuantityBefore: d.QuantityBefore,
		QuantityAfter:  d.QuantityAfter,
		Reason:         d.Reason,
		Actor:          d.Actor,
		CreatedAt:      d.CreatedAt,
	}
}

type stockAlertDocument struct {
	ProductID    string     `firestore:"productId"`
	ProductName  string     `firestore:"productName"`
	Size         string     `firestore:"size"`
	CurrentStock int        `firestore:"currentStock"`
	Threshold    int        `firestore:"threshold"`
	Status       string     `firestore:"status"`
	CreatedAt    time.Time  `firestore:"createdAt"`
	UpdatedAt    time.Time  `firestore:"updatedAt"`
	ResolvedAt   *time.Time `firestore:"resolvedAt,omitempty"`
}

func (d stockAlertDocument) toDomain(id string) domain.StockAlert {
	return domain.StockAlert{
		ID:           id,
		ProductID:    d.ProductID,
		ProductName:  d.ProductName,
		Size:         d.Size,
		CurrentStock: d.CurrentStock,
		Threshold:    d.Threshold,
		Status:       domain.StockAlertStatus(d.Status),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
		ResolvedAt:   d.ResolvedAt,
	}
}

// stockAlertID serialises alert upkeep per (product, size) pair: one document
// per pair means concurrent observers contend on the same ref inside the
// transaction instead of racing to create duplicates.
func stockAlertID(productID, size string) string {
	return fmt.Sprintf("%s_%s", productID, size)
}

// StockRepository implements repositories.StockRepository on top of the
// product documents, the adjustment ledger and the alert collection.
type StockRepository struct {
	provider    *pfirestore.Provider
	products    *pfirestore.BaseRepository[productDocument]
	adjustments *pfirestore.BaseRepository[stockAdjustmentDocument]
	alerts      *pfirestore.BaseRepository[stockAlertDocument]
}

// NewStockRepository constructs a Firestore-backed stock ledger.
func NewStockRepository(provider *pfirestore.Provider) (*StockRepository, error) {
	if provider == nil {
		return nil, errors.New("stock repository requires firestore provider")
	}
	return &StockRepository{
		provider:    provider,
		products:    pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil),
		adjustments: pfirestore.NewBaseRepository[stockAdjustmentDocument](provider, stockAdjustmentsCollection, nil, nil),
		alerts:      pfirestore.NewBaseRepository[stockAlertDocument](provider, stockAlertsCollection, nil, nil),
	}, nil
}

// Adjust atomically applies the delta, appends the ledger entry and keeps the
// low-stock alert for the pair in step, all in one transaction.
func (r *StockRepository) Adjust(ctx context.Context, req repositories.StockAdjustRequest) (repositories.StockAdjustResult, error) {
	if r == nil || r.provider == nil {
		return repositories.StockAdjustResult{}, errors.New("stock repository not initialised")
	}
	productID := strings.TrimSpace(req.ProductID)
	size := strings.TrimSpace(req.Size)
	if productID == "" {
		return repositories.StockAdjustResult{}, repositories.NewStockError(repositories.StockErrorProductNotFound, "stock adjust: product id is required", nil)
	}
	if size == "" {
		return repositories.StockAdjustResult{}, repositories.NewStockError(repositories.StockErrorSizeNotFound, "stock adjust: size is required", nil)
	}
	if req.Delta == 0 {
		return repositories.StockAdjustResult{}, errors.New("stock adjust: delta must be non-zero")
	}
	if strings.TrimSpace(req.EntryID) == "" {
		return repositories.StockAdjustResult{}, errors.New("stock adjust: ledger entry id is required")
	}

	now := req.Now.UTC()
	var result repositories.StockAdjustResult

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		productRef, err := r.products.DocumentRef(ctx, productID)
		if err != nil {
			return err
		}
		alertRef, err := r.alerts.DocumentRef(ctx, stockAlertID(productID, size))
		if err != nil {
			return err
		}
		entryRef, err := r.adjustments.DocumentRef(ctx, req.EntryID)
		if err != nil {
			return err
		}

		// All reads must precede writes inside a Firestore transaction.
		productSnap, err := tx.Get(productRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewStockError(repositories.StockErrorProductNotFound, fmt.Sprintf("product %s not found", productID), err)
			}
			return err
		}
		var product productDocument
		if err := productSnap.DataTo(&product); err != nil {
			return fmt.Errorf("decode product %s: %w", productID, err)
		}
		current, ok := product.Stock[size]
		if !ok {
			return repositories.NewStockError(repositories.StockErrorSizeNotFound, fmt.Sprintf("product %s has no size %s", productID, size), nil)
		}

		var alertDoc *stockAlertDocument
		alertSnap, err := tx.Get(alertRef)
		switch {
		case err == nil:
			var decoded stockAlertDocument
			if err := alertSnap.DataTo(&decoded); err != nil {
				return fmt.Errorf("decode stock alert %s: %w", alertSnap.Ref.ID, err)
			}
			alertDoc = &decoded
		case status.Code(err) == codes.NotFound:
			// no alert yet for this pair
		default:
			return err
		}

		next := current + req.Delta
		if next < 0 {
			return repositories.NewStockError(repositories.StockErrorInsufficientStock,
				fmt.Sprintf("insufficient stock for product %s size %s: have %d, requested %d", productID, size, current, -req.Delta), nil)
		}

		if product.Stock == nil {
			product.Stock = map[string]int{}
		}
		product.Stock[size] = next
		product.UpdatedAt = now
		if err := tx.Set(productRef, product); err != nil {
			return err
		}

		entry := stockAdjustmentDocument{
			ProductID:      productID,
			ProductName:    product.Name,
			Size:           size,
			Delta:          req.Delta,
			QuantityBefore: current,
			QuantityAfter:  next,
			Reason:         strings.TrimSpace(req.Reason),
			Actor:          strings.TrimSpace(req.Actor),
			CreatedAt:      now,
		}
		if err := tx.Create(entryRef, entry); err != nil {
			return err
		}

		alertEvent := repositories.StockAlertEventNone
		var alertOut *domain.StockAlert

		active := alertDoc != nil && alertDoc.Status == string(domain.StockAlertActive)
		switch {
		case next <= req.Threshold && !active:
			created := stockAlertDocument{
				ProductID:    productID,
				ProductName:  product.Name,
				Size:         size,
				CurrentStock: next,
				Threshold:    req.Threshold,
				Status:       string(domain.StockAlertActive),
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := tx.Set(alertRef, created); err != nil {
				return err
			}
			alertEvent = repositories.StockAlertEventCreated
			converted := created.toDomain(alertRef.ID)
			alertOut = &converted
		case next <= req.Threshold && active:
			if alertDoc.CurrentStock != next {
				alertDoc.CurrentStock = next
				alertDoc.UpdatedAt = now
				if err := tx.Set(alertRef, *alertDoc); err != nil {
					return err
				}
				alertEvent = repositories.StockAlertEventUpdated
			}
			converted := alertDoc.toDomain(alertRef.ID)
			alertOut = &converted
		case next > req.Threshold && active:
			alertDoc.Status = string(domain.StockAlertResolved)
			alertDoc.CurrentStock = next
			alertDoc.UpdatedAt = now
			alertDoc.ResolvedAt = &now
			if err := tx.Set(alertRef, *alertDoc); err != nil {
				return err
			}
			alertEvent = repositories.StockAlertEventResolved
			converted := alertDoc.toDomain(alertRef.ID)
			alertOut = &converted
		}

		result = repositories.StockAdjustResult{
			Adjustment: entry.toDomain(req.EntryID),
			Alert:      alertOut,
			AlertEvent: alertEvent,
		}
		return nil
	})
	if err != nil {
		return repositories.StockAdjustResult{}, wrapStockError("stock.adjust", err)
	}
	return result, nil
}

// ListAdjustments returns a page of ledger entries, newest first.
func (r *StockRepository) ListAdjustments(ctx context.Context, filter repositories.StockAdjustmentFilter) (domain.CursorPage[domain.StockAdjustment], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.StockAdjustment]{}, errors.New("stock repository not initialised")
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
		return domain.CursorPage[domain.StockAdjustment]{}, pfirestore.WrapError("stock.listAdjustments", err)
	}

	query := client.Collection(stockAdjustmentsCollection).Query
	if trimmed := strings.TrimSpace(filter.ProductID); trimmed != "" {
		query = query.Where("productId", "==", trimmed)
	}
	if trimmed := strings.TrimSpace(filter.Size); trimmed != "" {
		query = query.Where("size", "==", trimmed)
	}
	query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Asc).Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		decoded, err := decodeTimePageToken(token)
		if err != nil {
			return domain.CursorPage[domain.StockAdjustment]{}, pfirestore.WrapError("stock.listAdjustments", err)
		}
		query = query.StartAfter(decoded.CreatedAt, decoded.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var entries []domain.StockAdjustment
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.StockAdjustment]{}, pfirestore.WrapError("stock.listAdjustments", err)
		}
		var doc stockAdjustmentDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.StockAdjustment]{}, pfirestore.WrapError("stock.listAdjustments", err)
		}
		entries = append(entries, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(entries) > pageSize
	if hasMore {
		entries = entries[:pageSize]
	}
	var nextToken string
	if hasMore && len(entries) > 0 {
		last := entries[len(entries)-1]
		encoded, err := encodeTimePageToken(timePageToken{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.StockAdjustment]{}, pfirestore.WrapError("stock.listAdjustments", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.StockAdjustment]{Items: entries, NextPageToken: nextToken}, nil
}

func wrapStockError(op string, err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		if stockErr.Op == "" {
			stockErr.Op = op
		}
		return stockErr
	}
	return pfirestore.WrapError(op, err)
}
