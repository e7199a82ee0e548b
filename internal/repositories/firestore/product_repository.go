package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/shirthaus/api/internal/domain"
	pfirestore "github.com/shirthaus/api/internal/platform/firestore"
	"github.com/shirthaus/api/internal/repositories"
)

const productsCollection = "products"

type productDocument struct {
	Name      string         `firestore:"name"`
	Category  string         `firestore:"category"`
	UnitPrice int64          `firestore:"unitPrice"`
	Currency  string         `firestore:"currency"`
	Stock     map[string]int `firestore:"stock"`
	Active    bool           `firestore:"active"`
	CreatedAt time.Time      `firestore:"createdAt"`
	UpdatedAt time.Time      `firestore:"updatedAt"`
}

func newProductDocument(product domain.Product) productDocument {
	stock := make(map[string]int, len(product.Stock))
	for size, qty := range product.Stock {
		stock[strings.TrimSpace(size)] = qty
	}
	return productDocument{
		Name:      strings.TrimSpace(product.Name),
		Category:  strings.TrimSpace(product.Category),
		UnitPrice: product.UnitPrice,
		Currency:  strings.TrimSpace(product.Currency),
		Stock:     stock,
		Active:    product.Active,
		CreatedAt: product.CreatedAt.UTC(),
		UpdatedAt: product.UpdatedAt.UTC(),
	}
}

func (d productDocument) toDomain(id string) domain.Product {
	stock := make(map[string]int, len(d.Stock))
	for size, qty := range d.Stock {
		stock[size] = qty
	}
	return domain.Product{
		ID:        id,
		Name:      d.Name,
		Category:  d.Category,
		UnitPrice: d.UnitPrice,
		Currency:  d.Currency,
		Stock:     stock,
		Active:    d.Active,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// ProductRepository implements repositories.ProductRepository backed by Firestore.
type ProductRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		provider: provider,
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil),
	}, nil
}

// Insert creates the product document, failing with a conflict when the id exists.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if r == nil || r.provider == nil {
		return errors.New("product repository not initialised")
	}
	if strings.TrimSpace(product.ID) == "" {
		return errors.New("product insert: id is required")
	}
	ref, err := r.products.DocumentRef(ctx, product.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, newProductDocument(product)); err != nil {
		return pfirestore.WrapError("products.insert", err)
	}
	return nil
}

// Update replaces the stored product document.
func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	if r == nil || r.provider == nil {
		return errors.New("product repository not initialised")
	}
	if strings.TrimSpace(product.ID) == "" {
		return errors.New("product update: id is required")
	}
	_, err := r.products.Set(ctx, product.ID, newProductDocument(product))
	return err
}

// FindByID loads a single product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.provider == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns a page of products ordered by name.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
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
		return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
	}

	query := client.Collection(productsCollection).Query
	if filter.Category != nil && strings.TrimSpace(*filter.Category) != "" {
		query = query.Where("category", "==", strings.TrimSpace(*filter.Category))
	}
	if filter.ActiveOnly {
		query = query.Where("active", "==", true)
	}
	query = query.OrderBy("name", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc).Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		decoded, err := decodeListPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
		}
		query = query.StartAfter(decoded.Cursor, decoded.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var products []domain.Product
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
		}
		products = append(products, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(products) > pageSize
	if hasMore {
		products = products[:pageSize]
	}
	var nextToken string
	if hasMore && len(products) > 0 {
		last := products[len(products)-1]
		encoded, err := encodeListPageToken(listPageToken{Cursor: last.Name, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Product]{Items: products, NextPageToken: nextToken}, nil
}
