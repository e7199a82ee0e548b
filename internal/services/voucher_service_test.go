package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/shirthaus/api/internal/domain"
)

func fixedVoucherClock() time.Time {
	return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
}

func save10() domain.Voucher {
	return domain.Voucher{
		ID:                 "v-1",
		Code:               "SAVE10",
		Type:               domain.VoucherPercentage,
		Value:              10,
		MinimumOrderAmount: 5000,
		AppliesTo:          domain.VoucherScopeAll,
		ValidFrom:          time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ValidUntil:         time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC),
		UsageLimit:         100,
		UsedCount:          3,
		Active:             true,
	}
}

func newTestVoucherService(t *testing.T, repo *stubVoucherRepo) VoucherService {
	t.Helper()
	svc, err := NewVoucherService(VoucherServiceDeps{
		Vouchers:    repo,
		Clock:       fixedVoucherClock,
		IDGenerator: sequentialIDs("v-"),
	})
	if err != nil {
		t.Fatalf("new voucher service: %v", err)
	}
	return svc
}

func TestValidateCanonicalisesCodeAndComputesPercentage(t *testing.T) {
	repo := &stubVoucherRepo{
		findFn: func(_ context.Context, code string) (domain.Voucher, error) {
			if code != "SAVE10" {
				t.Fatalf("expected canonical code SAVE10, got %s", code)
			}
			return save10(), nil
		},
	}
	svc := newTestVoucherService(t, repo)

	result, err := svc.Validate(context.Background(), "  save10 ", 10000, nil)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.DiscountAmount != 1000 {
		t.Fatalf("expected discount 1000, got %d", result.DiscountAmount)
	}
	if result.FreeShipping {
		t.Fatal("percentage voucher must not waive shipping")
	}
}

func TestValidateRejectsSubtotalBelowMinimum(t *testing.T) {
	repo := &stubVoucherRepo{
		findFn: func(context.Context, string) (domain.Voucher, error) {
			return save10(), nil
		},
	}
	svc := newTestVoucherService(t, repo)

	_, err := svc.Validate(context.Background(), "SAVE10", 4000, nil)
	if !errors.Is(err, ErrVoucherBelowMinimum) {
		t.Fatalf("expected below minimum, got %v", err)
	}
}

func TestValidateGuardOrdering(t *testing.T) {
	expired := save10()
	expired.ValidUntil = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	exhausted := save10()
	exhausted.UsedCount = exhausted.UsageLimit

	inactive := save10()
	inactive.Active = false

	scoped := save10()
	scoped.AppliesTo = domain.VoucherScopeCategories
	scoped.CategoryIDs = []string{"hoodies"}

	cases := []struct {
		name    string
		voucher domain.Voucher
		items   []domain.OrderItem
		want    error
	}{
		{name: "inactive reads as unknown", voucher: inactive, want: ErrVoucherNotFound},
		{name: "outside window", voucher: expired, want: ErrVoucherExpired},
		{name: "usage limit reached", voucher: exhausted, want: ErrVoucherExhausted},
		{
			name:    "scope mismatch",
			voucher: scoped,
			items:   []domain.OrderItem{{ProductID: "prod-1", Category: "t-shirts"}},
			want:    ErrVoucherNotApplicable,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &stubVoucherRepo{
				findFn: func(context.Context, string) (domain.Voucher, error) {
					return tc.voucher, nil
				},
			}
			svc := newTestVoucherService(t, repo)
			_, err := svc.Validate(context.Background(), "SAVE10", 10000, tc.items)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateCategoryScopeMatchesCaseInsensitively(t *testing.T) {
	scoped := save10()
	scoped.AppliesTo = domain.VoucherScopeCategories
	scoped.CategoryIDs = []string{"Hoodies"}
	repo := &stubVoucherRepo{
		findFn: func(context.Context, string) (domain.Voucher, error) {
			return scoped, nil
		},
	}
	svc := newTestVoucherService(t, repo)
	result, err := svc.Validate(context.Background(), "SAVE10", 10000, []domain.OrderItem{
		{ProductID: "prod-2", Category: "hoodies"},
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.DiscountAmount != 1000 {
		t.Fatalf("expected discount 1000, got %d", result.DiscountAmount)
	}
}

func TestValidateCapsPercentageAtMaximumDiscount(t *testing.T) {
	capped := save10()
	capped.MaximumDiscount = 500
	repo := &stubVoucherRepo{
		findFn: func(context.Context, string) (domain.Voucher, error) {
			return capped, nil
		},
	}
	svc := newTestVoucherService(t, repo)
	result, err := svc.Validate(context.Background(), "SAVE10", 20000, nil)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.DiscountAmount != 500 {
		t.Fatalf("expected capped discount 500, got %d", result.DiscountAmount)
	}
}

func TestValidateFixedDiscountNeverExceedsSubtotal(t *testing.T) {
	fixed := save10()
	fixed.Type = domain.VoucherFixed
	fixed.Value = 9000
	fixed.MinimumOrderAmount = 0
	repo := &stubVoucherRepo{
		findFn: func(context.Context, string) (domain.Voucher, error) {
			return fixed, nil
		},
	}
	svc := newTestVoucherService(t, repo)
	result, err := svc.Validate(context.Background(), "SAVE10", 6000, nil)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.DiscountAmount != 6000 {
		t.Fatalf("expected discount clamped to 6000, got %d", result.DiscountAmount)
	}
}

func TestValidateFreeShippingGivesNoGoodsDiscount(t *testing.T) {
	free := save10()
	free.Type = domain.VoucherFreeShipping
	free.MinimumOrderAmount = 0
	repo := &stubVoucherRepo{
		findFn: func(context.Context, string) (domain.Voucher, error) {
			return free, nil
		},
	}
	svc := newTestVoucherService(t, repo)
	result, err := svc.Validate(context.Background(), "SAVE10", 6000, nil)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.DiscountAmount != 0 || !result.FreeShipping {
		t.Fatalf("expected free shipping with no goods discount, got %+v", result)
	}
}

func TestRedeemMapsConflictToExhausted(t *testing.T) {
	repo := &stubVoucherRepo{
		incrementFn: func(context.Context, string, time.Time) (domain.Voucher, error) {
			return domain.Voucher{}, repoError{conflict: true}
		},
	}
	svc := newTestVoucherService(t, repo)
	_, err := svc.Redeem(context.Background(), "SAVE10")
	if !errors.Is(err, ErrVoucherExhausted) {
		t.Fatalf("expected exhausted, got %v", err)
	}
}

func TestCreateVoucherRejectsDuplicateCode(t *testing.T) {
	repo := &stubVoucherRepo{
		insertFn: func(context.Context, domain.Voucher) error {
			return repoError{conflict: true}
		},
	}
	svc := newTestVoucherService(t, repo)
	_, err := svc.CreateVoucher(context.Background(), VoucherCommand{
		Code:       "save10",
		Type:       domain.VoucherPercentage,
		Value:      10,
		ValidFrom:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ValidUntil: time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		Active:     true,
	})
	if !errors.Is(err, ErrVoucherCodeConflict) {
		t.Fatalf("expected code conflict, got %v", err)
	}
}

func TestCreateVoucherValidatesCommand(t *testing.T) {
	svc := newTestVoucherService(t, &stubVoucherRepo{})
	cases := []struct {
		name string
		cmd  VoucherCommand
	}{
		{
			name: "percentage over 100",
			cmd: VoucherCommand{
				Code: "BIG", Type: domain.VoucherPercentage, Value: 150,
				ValidFrom: fixedVoucherClock(), ValidUntil: fixedVoucherClock().Add(time.Hour),
			},
		},
		{
			name: "empty validity window",
			cmd: VoucherCommand{
				Code: "WINDOW", Type: domain.VoucherFixed, Value: 500,
				ValidFrom: fixedVoucherClock(), ValidUntil: fixedVoucherClock(),
			},
		},
		{
			name: "product scope without products",
			cmd: VoucherCommand{
				Code: "SCOPE", Type: domain.VoucherFixed, Value: 500,
				AppliesTo: domain.VoucherScopeProducts,
				ValidFrom: fixedVoucherClock(), ValidUntil: fixedVoucherClock().Add(time.Hour),
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.CreateVoucher(context.Background(), tc.cmd); !errors.Is(err, ErrVoucherInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestUpdateVoucherPreservesUsageAndIdentity(t *testing.T) {
	existing := save10()
	var updated domain.Voucher
	repo := &stubVoucherRepo{
		findFn: func(context.Context, string) (domain.Voucher, error) {
			return existing, nil
		},
		updateFn: func(_ context.Context, voucher domain.Voucher) error {
			updated = voucher
			return nil
		},
	}
	svc := newTestVoucherService(t, repo)
	_, err := svc.UpdateVoucher(context.Background(), "SAVE10", VoucherCommand{
		Code:       "SAVE10",
		Type:       domain.VoucherPercentage,
		Value:      15,
		ValidFrom:  existing.ValidFrom,
		ValidUntil: existing.ValidUntil,
		Active:     true,
	})
	if err != nil {
		t.Fatalf("update voucher: %v", err)
	}
	if updated.ID != existing.ID || updated.UsedCount != existing.UsedCount {
		t.Fatalf("identity or usage lost: %+v", updated)
	}
	if updated.Value != 15 {
		t.Fatalf("expected value 15, got %d", updated.Value)
	}
}

func TestDeactivateVoucherIsIdempotent(t *testing.T) {
	inactive := save10()
	inactive.Active = false
	updates := 0
	repo := &stubVoucherRepo{
		findFn: func(context.Context, string) (domain.Voucher, error) {
			return inactive, nil
		},
		updateFn: func(context.Context, domain.Voucher) error {
			updates++
			return nil
		},
	}
	svc := newTestVoucherService(t, repo)
	if _, err := svc.DeactivateVoucher(context.Background(), "SAVE10"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if updates != 0 {
		t.Fatalf("expected no write for an already inactive voucher, got %d", updates)
	}
}
