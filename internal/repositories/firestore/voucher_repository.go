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

const vouchersCollection = "vouchers"

type voucherDocument struct {
	Code               string    `firestore:"code"`
	Type               string    `firestore:"type"`
	Value              int64     `firestore:"value"`
	MinimumOrderAmount int64     `firestore:"minimumOrderAmount"`
	MaximumDiscount    int64     `firestore:"maximumDiscount"`
	AppliesTo          string    `firestore:"appliesTo"`
	ProductIDs         []string  `firestore:"productIds,omitempty"`
	CategoryIDs        []string  `firestore:"categoryIds,omitempty"`
	ValidFrom          time.Time `firestore:"validFrom"`
	ValidUntil         time.Time `firestore:"validUntil"`
	UsageLimit         int       `firestore:"usageLimit"`
	UsedCount          int       `firestore:"usedCount"`
	Active             bool      `firestore:"active"`
	CreatedAt          time.Time `firestore:"createdAt"`
	UpdatedAt          time.Time `firestore:"updatedAt"`
}

func newVoucherDocument(voucher domain.Voucher) voucherDocument {
	return voucherDocument{
		Code:               canonicalVoucherCode(voucher.Code),
		Type:               string(voucher.Type),
		Value:              voucher.Value,
		MinimumOrderAmount: voucher.MinimumOrderAmount,
		MaximumDiscount:    voucher.MaximumDiscount,
		AppliesTo:          string(voucher.AppliesTo),
		ProductIDs:         voucher.ProductIDs,
		CategoryIDs:        voucher.CategoryIDs,
		ValidFrom:          voucher.ValidFrom.UTC(),
		ValidUntil:         voucher.ValidUntil.UTC(),
		UsageLimit:         voucher.UsageLimit,
		UsedCount:          voucher.UsedCount,
		Active:             voucher.Active,
		CreatedAt:          voucher.CreatedAt.UTC(),
		UpdatedAt:          voucher.UpdatedAt.UTC(),
	}
}

func (d voucherDocument) toDomain(id string) domain.Voucher {
	return domain.Voucher{
		ID:                 id,
		Code:               d.Code,
		Type:               domain.VoucherType(d.Type),
		Value:              d.Value,
		MinimumOrderAmount: d.MinimumOrderAmount,
		MaximumDiscount:    d.MaximumDiscount,
		AppliesTo:          domain.VoucherScope(d.AppliesTo),
		ProductIDs:         d.ProductIDs,
		CategoryIDs:        d.CategoryIDs,
		ValidFrom:          d.ValidFrom,
		ValidUntil:         d.ValidUntil,
		UsageLimit:         d.UsageLimit,
		UsedCount:          d.UsedCount,
		Active:             d.Active,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

func canonicalVoucherCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// VoucherRepository stores voucher definitions keyed by canonical code, so code
// uniqueness is enforced by document creation rather than a query.
type VoucherRepository struct {
	provider *pfirestore.Provider
	vouchers *pfirestore.BaseRepository[voucherDocument]
}

// NewVoucherRepository constructs a Firestore-backed voucher repository.
func NewVoucherRepository(provider *pfirestore.Provider) (*VoucherRepository, error) {
	if provider == nil {
		return nil, errors.New("voucher repository requires firestore provider")
	}
	return &VoucherRepository{
		provider: provider,
		vouchers: pfirestore.NewBaseRepository[voucherDocument](provider, vouchersCollection, nil, nil),
	}, nil
}

// Insert creates the voucher, failing with a conflict when the code exists.
func (r *VoucherRepository) Insert(ctx context.Context, voucher domain.Voucher) error {
	if r == nil || r.provider == nil {
		return errors.New("voucher repository not initialised")
	}
	code := canonicalVoucherCode(voucher.Code)
	if code == "" {
		return errors.New("voucher insert: code is required")
	}
	ref, err := r.vouchers.DocumentRef(ctx, code)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, newVoucherDocument(voucher)); err != nil {
		return pfirestore.WrapError("vouchers.insert", err)
	}
	return nil
}

// Update replaces the stored voucher document.
func (r *VoucherRepository) Update(ctx context.Context, voucher domain.Voucher) error {
	if r == nil || r.provider == nil {
		return errors.New("voucher repository not initialised")
	}
	code := canonicalVoucherCode(voucher.Code)
	if code == "" {
		return errors.New("voucher update: code is required")
	}
	_, err := r.vouchers.Set(ctx, code, newVoucherDocument(voucher))
	return err
}

// FindByCode loads a voucher by its canonical code.
func (r *VoucherRepository) FindByCode(ctx context.Context, code string) (domain.Voucher, error) {
	if r == nil || r.provider == nil {
		return domain.Voucher{}, errors.New("voucher repository not initialised")
	}
	canonical := canonicalVoucherCode(code)
	if canonical == "" {
		return domain.Voucher{}, pfirestore.WrapError("vouchers.findByCode", status.Error(codes.NotFound, "empty voucher code"))
	}
	doc, err := r.vouchers.Get(ctx, canonical)
	if err != nil {
		return domain.Voucher{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns a page of vouchers ordered by code.
func (r *VoucherRepository) List(ctx context.Context, filter repositories.VoucherListFilter) (domain.CursorPage[domain.Voucher], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Voucher]{}, errors.New("voucher repository not initialised")
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
		return domain.CursorPage[domain.Voucher]{}, pfirestore.WrapError("vouchers.list", err)
	}

	query := client.Collection(vouchersCollection).Query
	if filter.ActiveOnly {
		query = query.Where("active", "==", true)
	}
	query = query.OrderBy("code", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc).Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		decoded, err := decodeListPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Voucher]{}, pfirestore.WrapError("vouchers.list", err)
		}
		query = query.StartAfter(decoded.Cursor, decoded.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var vouchers []domain.Voucher
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Voucher]{}, pfirestore.WrapError("vouchers.list", err)
		}
		var doc voucherDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Voucher]{}, pfirestore.WrapError("vouchers.list", err)
		}
		vouchers = append(vouchers, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(vouchers) > pageSize
	if hasMore {
		vouchers = vouchers[:pageSize]
	}
	var nextToken string
	if hasMore && len(vouchers) > 0 {
		last := vouchers[len(vouchers)-1]
		encoded, err := encodeListPageToken(listPageToken{Cursor: last.Code, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Voucher]{}, pfirestore.WrapError("vouchers.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Voucher]{Items: vouchers, NextPageToken: nextToken}, nil
}

// IncrementUsage bumps UsedCount inside a transaction, re-checking the usage
// limit so two concurrent confirmations cannot both redeem the last slot.
func (r *VoucherRepository) IncrementUsage(ctx context.Context, code string, now time.Time) (domain.Voucher, error) {
	if r == nil || r.provider == nil {
		return domain.Voucher{}, errors.New("voucher repository not initialised")
	}
	canonical := canonicalVoucherCode(code)
	if canonical == "" {
		return domain.Voucher{}, pfirestore.WrapError("vouchers.incrementUsage", status.Error(codes.NotFound, "empty voucher code"))
	}

	var out domain.Voucher
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.vouchers.DocumentRef(ctx, canonical)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc voucherDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode voucher %s: %w", canonical, err)
		}
		if doc.UsageLimit > 0 && doc.UsedCount >= doc.UsageLimit {
			return status.Error(codes.FailedPrecondition, fmt.Sprintf("voucher %s usage limit reached", canonical))
		}
		doc.UsedCount++
		doc.UpdatedAt = now.UTC()
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		out = doc.toDomain(snap.Ref.ID)
		return nil
	})
	if err != nil {
		return domain.Voucher{}, pfirestore.WrapError("vouchers.incrementUsage", err)
	}
	return out, nil
}
