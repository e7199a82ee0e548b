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

const ordersCollection = "orders"

type addressDocument struct {
	Recipient  string  `firestore:"recipient"`
	Line1      string  `firestore:"line1"`
	Line2      *string `firestore:"line2,omitempty"`
	City       string  `firestore:"city"`
	County     *string `firestore:"county,omitempty"`
	PostalCode string  `firestore:"postalCode"`
	Country    string  `firestore:"country"`
	Phone      *string `firestore:"phone,omitempty"`
}

func newAddressDocument(a domain.Address) addressDocument {
	return addressDocument{
		Recipient:  a.Recipient,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		County:     a.County,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
	}
}

func (d addressDocument) toDomain() domain.Address {
	return domain.Address{
		Recipient:  d.Recipient,
		Line1:      d.Line1,
		Line2:      d.Line2,
		City:       d.City,
		County:     d.County,
		PostalCode: d.PostalCode,
		Country:    d.Country,
		Phone:      d.Phone,
	}
}

type customizationDocument struct {
	IsCustomized bool   `firestore:"isCustomized"`
	Text         string `firestore:"text,omitempty"`
	Placement    string `firestore:"placement,omitempty"`
}

type orderItemDocument struct {
	ProductID     string                 `firestore:"productId"`
	ProductName   string                 `firestore:"productName"`
	Category      string                 `firestore:"category,omitempty"`
	Size          string                 `firestore:"size"`
	Quantity      int                    `firestore:"quantity"`
	UnitAmount    int64                  `firestore:"unitAmount"`
	Customization *customizationDocument `firestore:"customization,omitempty"`
}

func newOrderItemDocuments(items []domain.OrderItem) []orderItemDocument {
	docs := make([]orderItemDocument, 0, len(items))
	for _, item := range items {
		doc := orderItemDocument{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Category:    item.Category,
			Size:        item.Size,
			Quantity:    item.Quantity,
			UnitAmount:  item.UnitAmount,
		}
		if item.Customization != nil {
			doc.Customization = &customizationDocument{
				IsCustomized: item.Customization.IsCustomized,
				Text:         item.Customization.Text,
				Placement:    item.Customization.Placement,
			}
		}
		docs = append(docs, doc)
	}
	return docs
}

func orderItemsToDomain(docs []orderItemDocument) []domain.OrderItem {
	items := make([]domain.OrderItem, 0, len(docs))
	for _, doc := range docs {
		item := domain.OrderItem{
			ProductID:   doc.ProductID,
			ProductName: doc.ProductName,
			Category:    doc.Category,
			Size:        doc.Size,
			Quantity:    doc.Quantity,
			UnitAmount:  doc.UnitAmount,
		}
		if doc.Customization != nil {
			item.Customization = &domain.Customization{
				IsCustomized: doc.Customization.IsCustomized,
				Text:         doc.Customization.Text,
				Placement:    doc.Customization.Placement,
			}
		}
		items = append(items, item)
	}
	return items
}

type orderTotalsDocument struct {
	Subtotal int64 `firestore:"subtotal"`
	Discount int64 `firestore:"discount"`
	Shipping int64 `firestore:"shipping"`
	VAT      int64 `firestore:"vat"`
	Total    int64 `firestore:"total"`
}

type shippingDetailsDocument struct {
	Method         string          `firestore:"method"`
	Address        addressDocument `firestore:"address"`
	TrackingNumber *string         `firestore:"trackingNumber,omitempty"`
	Courier        *string         `firestore:"courier,omitempty"`
	LabelURL       *string         `firestore:"labelUrl,omitempty"`
	ShippedAt      *time.Time      `firestore:"shippedAt,omitempty"`
}

type cancellationDocument struct {
	Reason      string    `firestore:"reason"`
	Notes       string    `firestore:"notes,omitempty"`
	RequestedAt time.Time `firestore:"requestedAt"`
	RequestedBy string    `firestore:"requestedBy,omitempty"`
}

type refundDocument struct {
	Amount     int64     `firestore:"amount"`
	Reason     string    `firestore:"reason,omitempty"`
	RefundedAt time.Time `firestore:"refundedAt"`
	RefundedBy string    `firestore:"refundedBy,omitempty"`
}

type orderDocument struct {
	Reference             string                  `firestore:"reference"`
	Email                 string                  `firestore:"email"`
	Items                 []orderItemDocument     `firestore:"items"`
	Totals                orderTotalsDocument     `firestore:"totals"`
	Currency              string                  `firestore:"currency"`
	VoucherCode           string                  `firestore:"voucherCode,omitempty"`
	Status                string                  `firestore:"status"`
	ProductionStatus      string                  `firestore:"productionStatus"`
	Priority              int                     `firestore:"priority"`
	Shipping              shippingDetailsDocument `firestore:"shipping"`
	CancellationRequested bool                    `firestore:"cancellationRequested"`
	Cancellation          *cancellationDocument   `firestore:"cancellation,omitempty"`
	Refund                *refundDocument         `firestore:"refund,omitempty"`
	ProductionStartedAt   *time.Time              `firestore:"productionStartedAt,omitempty"`
	ProductionCompletedAt *time.Time              `firestore:"productionCompletedAt,omitempty"`
	CreatedAt             time.Time               `firestore:"createdAt"`
	UpdatedAt             time.Time               `firestore:"updatedAt"`
	PaidAt                *time.Time              `firestore:"paidAt,omitempty"`
	DeliveredAt           *time.Time              `firestore:"deliveredAt,omitempty"`
}

func newOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		Reference:   strings.TrimSpace(order.Reference),
		Email:       strings.ToLower(strings.TrimSpace(order.Email)),
		Items:       newOrderItemDocuments(order.Items),
		Currency:    order.Currency,
		VoucherCode: order.VoucherCode,
		Totals: orderTotalsDocument{
			Subtotal: order.Totals.Subtotal,
			Discount: order.Totals.Discount,
			Shipping: order.Totals.Shipping,
			VAT:      order.Totals.VAT,
			Total:    order.Totals.Total,
		},
		Status:           string(order.Status),
		ProductionStatus: string(order.ProductionStatus),
		Priority:         order.Priority,
		Shipping: shippingDetailsDocument{
			Method:         order.Shipping.Method,
			Address:        newAddressDocument(order.Shipping.Address),
			TrackingNumber: order.Shipping.TrackingNumber,
			Courier:        order.Shipping.Courier,
			LabelURL:       order.Shipping.LabelURL,
			ShippedAt:      order.Shipping.ShippedAt,
		},
		CancellationRequested: order.CancellationRequested,
		ProductionStartedAt:   order.ProductionStartedAt,
		ProductionCompletedAt: order.ProductionCompletedAt,
		CreatedAt:             order.CreatedAt.UTC(),
		UpdatedAt:             order.UpdatedAt.UTC(),
		PaidAt:                order.PaidAt,
		DeliveredAt:           order.DeliveredAt,
	}
	if order.Cancellation != nil {
		doc.Cancellation = &cancellationDocument{
			Reason:      order.Cancellation.Reason,
			Notes:       order.Cancellation.Notes,
			RequestedAt: order.Cancellation.RequestedAt.UTC(),
			RequestedBy: order.Cancellation.RequestedBy,
		}
	}
	if order.Refund != nil {
		doc.Refund = &refundDocument{
			Amount:     order.Refund.Amount,
			Reason:     order.Refund.Reason,
			RefundedAt: order.Refund.RefundedAt.UTC(),
			RefundedBy: order.Refund.RefundedBy,
		}
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:          id,
		Reference:   d.Reference,
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
		Status:           domain.OrderStatus(d.Status),
		ProductionStatus: domain.ProductionStatus(d.ProductionStatus),
		Priority:         d.Priority,
		Shipping: domain.ShippingDetails{
			Method:         d.Shipping.Method,
			Address:        d.Shipping.Address.toDomain(),
			TrackingNumber: d.Shipping.TrackingNumber,
			Courier:        d.Shipping.Courier,
			LabelURL:       d.Shipping.LabelURL,
			ShippedAt:      d.Shipping.ShippedAt,
		},
		CancellationRequested: d.CancellationRequested,
		ProductionStartedAt:   d.ProductionStartedAt,
		ProductionCompletedAt: d.ProductionCompletedAt,
		CreatedAt:             d.CreatedAt,
		UpdatedAt:             d.UpdatedAt,
		PaidAt:                d.PaidAt,
		DeliveredAt:           d.DeliveredAt,
	}
	if d.Cancellation != nil {
		order.Cancellation = &domain.CancellationRecord{
			Reason:      d.Cancellation.Reason,
			Notes:       d.Cancellation.Notes,
			RequestedAt: d.Cancellation.RequestedAt,
			RequestedBy: d.Cancellation.RequestedBy,
		}
	}
	if d.Refund != nil {
		order.Refund = &domain.RefundRecord{
			Amount:     d.Refund.Amount,
			Reason:     d.Refund.Reason,
			RefundedAt: d.Refund.RefundedAt,
			RefundedBy: d.Refund.RefundedBy,
		}
	}
	return order
}

// OrderRepository persists orders and provides the transactional Mutate
// primitive that the lifecycle state machine builds on.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil),
	}, nil
}

// Insert creates the order document, failing with a conflict when the id exists.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order insert: id is required")
	}
	ref, err := r.orders.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, newOrderDocument(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByReference looks an order up by its human-facing reference.
func (r *OrderRepository) FindByReference(ctx context.Context, reference string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	trimmed := strings.TrimSpace(reference)
	if trimmed == "" {
		return domain.Order{}, pfirestore.WrapError("orders.findByReference", status.Error(codes.NotFound, "empty order reference"))
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.findByReference", err)
	}

	iter := client.Collection(ordersCollection).Where("reference", "==", trimmed).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.Order{}, pfirestore.WrapError("orders.findByReference", status.Error(codes.NotFound, fmt.Sprintf("order %s not found", trimmed)))
	}
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.findByReference", err)
	}
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.findByReference", err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// FindByTrackingNumber looks an order up by the carrier tracking number.
func (r *OrderRepository) FindByTrackingNumber(ctx context.Context, trackingNumber string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	trimmed := strings.TrimSpace(trackingNumber)
	if trimmed == "" {
		return domain.Order{}, pfirestore.WrapError("orders.findByTracking", status.Error(codes.NotFound, "empty tracking number"))
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.findByTracking", err)
	}

	iter := client.Collection(ordersCollection).Where("shipping.trackingNumber", "==", trimmed).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.Order{}, pfirestore.WrapError("orders.findByTracking", status.Error(codes.NotFound, fmt.Sprintf("no order with tracking %s", trimmed)))
	}
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.findByTracking", err)
	}
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.findByTracking", err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// Mutate loads the order inside a transaction, applies fn and writes the
// result. An error from fn aborts the transaction without writing.
func (r *OrderRepository) Mutate(ctx context.Context, orderID string, fn func(domain.Order) (domain.Order, error)) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if fn == nil {
		return domain.Order{}, errors.New("order mutate: fn is required")
	}

	var out domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}
		mutated, err := fn(doc.toDomain(snap.Ref.ID))
		if err != nil {
			return err
		}
		if err := tx.Set(ref, newOrderDocument(mutated)); err != nil {
			return err
		}
		out = mutated
		return nil
	})
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) {
			return domain.Order{}, err
		}
		if _, ok := status.FromError(err); ok {
			return domain.Order{}, pfirestore.WrapError("orders.mutate", err)
		}
		// fn errors (domain guards) pass through untouched
		return domain.Order{}, err
	}
	return out, nil
}

// List returns a page of orders, newest first, with optional filters.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
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
		return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
	}

	query := client.Collection(ordersCollection).Query
	if trimmed := strings.ToLower(strings.TrimSpace(filter.Email)); trimmed != "" {
		query = query.Where("email", "==", trimmed)
	}
	if len(filter.Status) > 0 {
		statuses := make([]string, 0, len(filter.Status))
		for _, s := range filter.Status {
			statuses = append(statuses, string(s))
		}
		query = query.Where("status", "in", statuses)
	}
	if filter.From != nil {
		query = query.Where("createdAt", ">=", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("createdAt", "<", filter.To.UTC())
	}
	query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Asc).Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		decoded, err := decodeTimePageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		query = query.StartAfter(decoded.CreatedAt, decoded.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
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
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Order]{Items: orders, NextPageToken: nextToken}, nil
}

// ListOpen returns pending and paid orders ordered by stored priority
// descending, newest first within a priority band.
func (r *OrderRepository) ListOpen(ctx context.Context) ([]domain.Order, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("order repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("orders.listOpen", err)
	}

	query := client.Collection(ordersCollection).
		Where("status", "in", []string{string(domain.OrderStatusPending), string(domain.OrderStatusPaid)}).
		OrderBy("priority", firestore.Desc).
		OrderBy("createdAt", firestore.Desc)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("orders.listOpen", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, pfirestore.WrapError("orders.listOpen", err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}
	return orders, nil
}

// ListPaidBetween returns orders paid within [from, to) for reporting.
func (r *OrderRepository) ListPaidBetween(ctx context.Context, from, to time.Time) ([]domain.Order, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("order repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("orders.listPaidBetween", err)
	}

	query := client.Collection(ordersCollection).
		Where("paidAt", ">=", from.UTC()).
		Where("paidAt", "<", to.UTC()).
		OrderBy("paidAt", firestore.Asc)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("orders.listPaidBetween", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, pfirestore.WrapError("orders.listPaidBetween", err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}
	return orders, nil
}
