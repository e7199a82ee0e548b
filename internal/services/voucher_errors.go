package services

import "errors"

var (
	// ErrVoucherInvalidInput signals the caller provided invalid arguments.
	ErrVoucherInvalidInput = errors.New("voucher: invalid input")
	// ErrVoucherNotFound indicates the code is unknown or the voucher inactive.
	ErrVoucherNotFound = errors.New("voucher: not found")
	// ErrVoucherExpired indicates now is outside the validity window.
	ErrVoucherExpired = errors.New("voucher: expired")
	// ErrVoucherExhausted indicates the usage limit has been reached.
	ErrVoucherExhausted = errors.New("voucher: usage limit reached")
	// ErrVoucherNotApplicable indicates no cart item matches the voucher scope.
	ErrVoucherNotApplicable = errors.New("voucher: not applicable to these items")
	// ErrVoucherBelowMinimum indicates the subtotal is under the minimum spend.
	ErrVoucherBelowMinimum = errors.New("voucher: below minimum order amount")
	// ErrVoucherCodeConflict indicates the canonical code already exists.
	ErrVoucherCodeConflict = errors.New("voucher: code already exists")
)
