package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/shirthaus/api/internal/domain"
	"github.com/shirthaus/api/internal/repositories"
)

const (
	eventVoucherRedeemed    = "voucher.redeemed"
	eventVoucherCreated     = "voucher.created"
	eventVoucherDeactivated = "voucher.deactivated"
)

// VoucherServiceDeps bundles the collaborators required to construct a voucher service.
type VoucherServiceDeps struct {
	Vouchers    repositories.VoucherRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type voucherService struct {
	repo   repositories.VoucherRepository
	clock  func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewVoucherService wires dependencies into a concrete VoucherService implementation.
func NewVoucherService(deps VoucherServiceDeps) (VoucherService, error) {
	if deps.Vouchers == nil {
		return nil, errors.New("voucher service: voucher repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &voucherService{
		repo: deps.Vouchers,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// Validate checks a code against the goods subtotal and items. First failing
// rule wins: not found, expired/exhausted, not applicable, below minimum.
func (s *voucherService) Validate(ctx context.Context, code string, subtotal int64, items []domain.OrderItem) (domain.VoucherResult, error) {
	canonical := canonicalCode(code)
	if canonical == "" {
		return domain.VoucherResult{}, fmt.Errorf("%w: code is required", ErrVoucherInvalidInput)
	}
	if subtotal < 0 {
		return domain.VoucherResult{}, fmt.Errorf("%w: subtotal must not be negative", ErrVoucherInvalidInput)
	}

	voucher, err := s.repo.FindByCode(ctx, canonical)
	if err != nil {
		if repoErrNotFound(err) {
			return domain.VoucherResult{}, fmt.Errorf("%w: %s", ErrVoucherNotFound, canonical)
		}
		return domain.VoucherResult{}, err
	}
	if !voucher.Active {
		return domain.VoucherResult{}, fmt.Errorf("%w: %s", ErrVoucherNotFound, canonical)
	}

	now := s.clock()
	if now.Before(voucher.ValidFrom) || now.After(voucher.ValidUntil) {
		return domain.VoucherResult{}, fmt.Errorf("%w: %s", ErrVoucherExpired, canonical)
	}
	if voucher.UsageLimit > 0 && voucher.UsedCount >= voucher.UsageLimit {
		return domain.VoucherResult{}, fmt.Errorf("%w: %s", ErrVoucherExhausted, canonical)
	}

	if !voucherApplies(voucher, items) {
		return domain.VoucherResult{}, fmt.Errorf("%w: %s", ErrVoucherNotApplicable, canonical)
	}

	if subtotal < voucher.MinimumOrderAmount {
		return domain.VoucherResult{}, fmt.Errorf("%w: minimum spend is %d", ErrVoucherBelowMinimum, voucher.MinimumOrderAmount)
	}

	discount, freeShipping := computeDiscount(voucher, subtotal)
	return domain.VoucherResult{
		Voucher:        voucher,
		DiscountAmount: discount,
		FreeShipping:   freeShipping,
	}, nil
}

// Redeem commits one usage. Called only once payment is confirmed, never at
// validation time.
func (s *voucherService) Redeem(ctx context.Context, code string) (domain.Voucher, error) {
	canonical := canonicalCode(code)
	if canonical == "" {
		return domain.Voucher{}, fmt.Errorf("%w: code is required", ErrVoucherInvalidInput)
	}

	voucher, err := s.repo.IncrementUsage(ctx, canonical, s.clock())
	if err != nil {
		switch {
		case repoErrNotFound(err):
			return domain.Voucher{}, fmt.Errorf("%w: %s", ErrVoucherNotFound, canonical)
		case repoErrConflict(err):
			return domain.Voucher{}, fmt.Errorf("%w: %s", ErrVoucherExhausted, canonical)
		}
		return domain.Voucher{}, err
	}

	s.logger(ctx, eventVoucherRedeemed, map[string]any{
		"code":      voucher.Code,
		"usedCount": voucher.UsedCount,
	})
	return voucher, nil
}

func (s *voucherService) CreateVoucher(ctx context.Context, cmd VoucherCommand) (domain.Voucher, error) {
	voucher, err := s.voucherFromCommand(cmd)
	if err != nil {
		return domain.Voucher{}, err
	}
	now := s.clock()
	voucher.ID = s.newID()
	voucher.CreatedAt = now
	voucher.UpdatedAt = now

	if err := s.repo.Insert(ctx, voucher); err != nil {
		if repoErrConflict(err) {
			return domain.Voucher{}, fmt.Errorf("%w: %s", ErrVoucherCodeConflict, voucher.Code)
		}
		return domain.Voucher{}, err
	}

	s.logger(ctx, eventVoucherCreated, map[string]any{"code": voucher.Code, "type": string(voucher.Type)})
	return voucher, nil
}

func (s *voucherService) UpdateVoucher(ctx context.Context, code string, cmd VoucherCommand) (domain.Voucher, error) {
	canonical := canonicalCode(code)
	if canonical == "" {
		return domain.Voucher{}, fmt.Errorf("%w: code is required", ErrVoucherInvalidInput)
	}

	existing, err := s.repo.FindByCode(ctx, canonical)
	if err != nil {
		if repoErrNotFound(err) {
			return domain.Voucher{}, fmt.Errorf("%w: %s", ErrVoucherNotFound, canonical)
		}
		return domain.Voucher{}, err
	}

	cmd.Code = canonical
	updated, err := s.voucherFromCommand(cmd)
	if err != nil {
		return domain.Voucher{}, err
	}
	updated.ID = existing.ID
	updated.UsedCount = existing.UsedCount
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = s.clock()

	if err := s.repo.Update(ctx, updated); err != nil {
		return domain.Voucher{}, err
	}
	return updated, nil
}

func (s *voucherService) DeactivateVoucher(ctx context.Context, code string) (domain.Voucher, error) {
	canonical := canonicalCode(code)
	if canonical == "" {
		return domain.Voucher{}, fmt.Errorf("%w: code is required", ErrVoucherInvalidInput)
	}

	voucher, err := s.repo.FindByCode(ctx, canonical)
	if err != nil {
		if repoErrNotFound(err) {
			return domain.Voucher{}, fmt.Errorf("%w: %s", ErrVoucherNotFound, canonical)
		}
		return domain.Voucher{}, err
	}
	if !voucher.Active {
		return voucher, nil
	}

	voucher.Active = false
	voucher.UpdatedAt = s.clock()
	if err := s.repo.Update(ctx, voucher); err != nil {
		return domain.Voucher{}, err
	}

	s.logger(ctx, eventVoucherDeactivated, map[string]any{"code": voucher.Code})
	return voucher, nil
}

func (s *voucherService) GetVoucher(ctx context.Context, code string) (domain.Voucher, error) {
	canonical := canonicalCode(code)
	if canonical == "" {
		return domain.Voucher{}, fmt.Errorf("%w: code is required", ErrVoucherInvalidInput)
	}
	voucher, err := s.repo.FindByCode(ctx, canonical)
	if err != nil {
		if repoErrNotFound(err) {
			return domain.Voucher{}, fmt.Errorf("%w: %s", ErrVoucherNotFound, canonical)
		}
		return domain.Voucher{}, err
	}
	return voucher, nil
}

func (s *voucherService) ListVouchers(ctx context.Context, filter VoucherListFilter) (domain.CursorPage[domain.Voucher], error) {
	return s.repo.List(ctx, repositories.VoucherListFilter{
		ActiveOnly: filter.ActiveOnly,
		Pagination: filter.Pagination,
	})
}

func (s *voucherService) voucherFromCommand(cmd VoucherCommand) (domain.Voucher, error) {
	code := canonicalCode(cmd.Code)
	if code == "" {
		return domain.Voucher{}, fmt.Errorf("%w: code is required", ErrVoucherInvalidInput)
	}
	switch cmd.Type {
	case domain.VoucherPercentage:
		if cmd.Value <= 0 || cmd.Value > 100 {
			return domain.Voucher{}, fmt.Errorf("%w: percentage value must be in 1..100", ErrVoucherInvalidInput)
		}
	case domain.VoucherFixed:
		if cmd.Value <= 0 {
			return domain.Voucher{}, fmt.Errorf("%w: fixed value must be positive", ErrVoucherInvalidInput)
		}
	case domain.VoucherFreeShipping:
		// value unused
	default:
		return domain.Voucher{}, fmt.Errorf("%w: unknown voucher type %q", ErrVoucherInvalidInput, cmd.Type)
	}
	switch cmd.AppliesTo {
	case "", domain.VoucherScopeAll:
		cmd.AppliesTo = domain.VoucherScopeAll
	case domain.VoucherScopeProducts:
		if len(cmd.ProductIDs) == 0 {
			return domain.Voucher{}, fmt.Errorf("%w: product scope requires product ids", ErrVoucherInvalidInput)
		}
	case domain.VoucherScopeCategories:
		if len(cmd.CategoryIDs) == 0 {
			return domain.Voucher{}, fmt.Errorf("%w: category scope requires category ids", ErrVoucherInvalidInput)
		}
	default:
		return domain.Voucher{}, fmt.Errorf("%w: unknown voucher scope %q", ErrVoucherInvalidInput, cmd.AppliesTo)
	}
	if cmd.MinimumOrderAmount < 0 || cmd.MaximumDiscount < 0 || cmd.UsageLimit < 0 {
		return domain.Voucher{}, fmt.Errorf("%w: amounts and limits must not be negative", ErrVoucherInvalidInput)
	}
	if !cmd.ValidUntil.After(cmd.ValidFrom) {
		return domain.Voucher{}, fmt.Errorf("%w: validity window is empty", ErrVoucherInvalidInput)
	}

	return domain.Voucher{
		Code:               code,
		Type:               cmd.Type,
		Value:              cmd.Value,
		MinimumOrderAmount: cmd.MinimumOrderAmount,
		MaximumDiscount:    cmd.MaximumDiscount,
		AppliesTo:          cmd.AppliesTo,
		ProductIDs:         cmd.ProductIDs,
		CategoryIDs:        cmd.CategoryIDs,
		ValidFrom:          cmd.ValidFrom.UTC(),
		ValidUntil:         cmd.ValidUntil.UTC(),
		UsageLimit:         cmd.UsageLimit,
		Active:             cmd.Active,
	}, nil
}

func canonicalCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func voucherApplies(voucher domain.Voucher, items []domain.OrderItem) bool {
	switch voucher.AppliesTo {
	case domain.VoucherScopeProducts:
		for _, item := range items {
			for _, id := range voucher.ProductIDs {
				if item.ProductID == id {
					return true
				}
			}
		}
		return false
	case domain.VoucherScopeCategories:
		for _, item := range items {
			for _, id := range voucher.CategoryIDs {
				if strings.EqualFold(item.Category, id) {
					return true
				}
			}
		}
		return false
	default:
		return true
	}
}

// computeDiscount returns the goods discount in pence plus the free-shipping
// flag. The discount is always capped at the subtotal.
func computeDiscount(voucher domain.Voucher, subtotal int64) (int64, bool) {
	var discount int64
	freeShipping := false
	switch voucher.Type {
	case domain.VoucherPercentage:
		discount = subtotal * voucher.Value / 100
		if voucher.MaximumDiscount > 0 && discount > voucher.MaximumDiscount {
			discount = voucher.MaximumDiscount
		}
	case domain.VoucherFixed:
		discount = voucher.Value
	case domain.VoucherFreeShipping:
		freeShipping = true
	}
	if discount > subtotal {
		discount = subtotal
	}
	return discount, freeShipping
}
