package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/shirthaus/api/internal/domain"
	pfirestore "github.com/shirthaus/api/internal/platform/firestore"
	"github.com/shirthaus/api/internal/repositories"
)

// StockAlertRepository reads alert documents maintained by the stock ledger.
type StockAlertRepository struct {
	provider *pfirestore.Provider
	alerts   *pfirestore.BaseRepository[stockAlertDocument]
}

// NewStockAlertRepository constructs a Firestore-backed alert reader.
func NewStockAlertRepository(provider *pfirestore.Provider) (*StockAlertRepository, error) {
	if provider == nil {
		return nil, errors.New("stock alert repository requires firestore provider")
	}
	return &StockAlertRepository{
		provider: provider,
		alerts:   pfirestore.NewBaseRepository[stockAlertDocument](provider, stockAlertsCollection, nil, nil),
	}, nil
}

// FindActive returns the active alert for the pair, or not found.
func (r *StockAlertRepository) FindActive(ctx context.Context, productID string, size string) (domain.StockAlert, error) {
	if r == nil || r.provider == nil {
		return domain.StockAlert{}, errors.New("stock alert repository not initialised")
	}
	id := stockAlertID(strings.TrimSpace(productID), strings.TrimSpace(size))
	doc, err := r.alerts.Get(ctx, id)
	if err != nil {
		return domain.StockAlert{}, err
	}
	if doc.Data.Status != string(domain.StockAlertActive) {
		return domain.StockAlert{}, pfirestore.WrapError("stockAlerts.findActive", status.Error(codes.NotFound, "no active alert for pair"))
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns a page of alerts, newest first.
func (r *StockAlertRepository) List(ctx context.Context, filter repositories.StockAlertFilter) (domain.CursorPage[domain.StockAlert], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.StockAlert]{}, errors.New("stock alert repository not initialised")
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
		return domain.CursorPage[domain.StockAlert]{}, pfirestore.WrapError("stockAlerts.list", err)
	}

	query := client.Collection(stockAlertsCollection).Query
	if filter.ActiveOnly {
		query = query.Where("status", "==", string(domain.StockAlertActive))
	}
	query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Asc).Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		decoded, err := decodeTimePageToken(token)
		if err != nil {
			return domain.CursorPage[domain.StockAlert]{}, pfirestore.WrapError("stockAlerts.list", err)
		}
		query = query.StartAfter(decoded.CreatedAt, decoded.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var alerts []domain.StockAlert
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.StockAlert]{}, pfirestore.WrapError("stockAlerts.list", err)
		}
		var doc stockAlertDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.StockAlert]{}, pfirestore.WrapError("stockAlerts.list", err)
		}
		alerts = append(alerts, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(alerts) > pageSize
	if hasMore {
		alerts = alerts[:pageSize]
	}
	var nextToken string
	if hasMore && len(alerts) > 0 {
		last := alerts[len(alerts)-1]
		encoded, err := encodeTimePageToken(timePageToken{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.StockAlert]{}, pfirestore.WrapError("stockAlerts.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.StockAlert]{Items: alerts, NextPageToken: nextToken}, nil
}
