package services

import "errors"

var (
	// ErrOrderInvalidInput signals the caller provided invalid arguments.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidTransition indicates a status or production move the state machine forbids.
	ErrOrderInvalidTransition = errors.New("order: invalid transition")
	// ErrOrderLabelNotReady indicates label generation was attempted before ready_to_ship.
	ErrOrderLabelNotReady = errors.New("order: not ready for label generation")

	// Cancellation guard taxonomy, first match wins.

	// ErrCancelAlreadyCancelled indicates the order is already cancelled.
	ErrCancelAlreadyCancelled = errors.New("order: already cancelled")
	// ErrCancelAlreadyRequested indicates a cancellation request was already recorded.
	ErrCancelAlreadyRequested = errors.New("order: cancellation already requested")
	// ErrCancelCoolingOffExpired indicates the 14-day cooling-off window has passed.
	ErrCancelCoolingOffExpired = errors.New("order: cooling-off period expired")
	// ErrCancelCustomItemLocked indicates production has started on customized items.
	ErrCancelCustomItemLocked = errors.New("order: customized items locked by production")
	// ErrCancelProductionStarted indicates production has started on the order.
	ErrCancelProductionStarted = errors.New("order: production already started")
	// ErrCancelNotAllowedAtStage indicates the current status never permits cancellation.
	ErrCancelNotAllowedAtStage = errors.New("order: cannot cancel at this stage")

	// Refund guard taxonomy, first match wins.

	// ErrRefundNotCancelled indicates the order must be cancelled before refunding.
	ErrRefundNotCancelled = errors.New("refund: order not cancelled")
	// ErrRefundTransactionMissing indicates no transaction exists for the order.
	ErrRefundTransactionMissing = errors.New("refund: no transaction for order")
	// ErrRefundAlreadyRefunded indicates the transaction was already refunded.
	ErrRefundAlreadyRefunded = errors.New("refund: already refunded")
	// ErrRefundAmountNonPositive indicates the requested amount is zero or negative.
	ErrRefundAmountNonPositive = errors.New("refund: amount must be positive")
	// ErrRefundAmountExceedsOriginal indicates the amount exceeds the captured total.
	ErrRefundAmountExceedsOriginal = errors.New("refund: amount exceeds original charge")
	// ErrRefundGateway indicates the payment gateway rejected the refund.
	ErrRefundGateway = errors.New("refund: gateway error")
	// ErrRefundAlreadyRefundedAtGateway indicates the gateway had already refunded
	// the charge out-of-band; the local records were reconciled to match.
	ErrRefundAlreadyRefundedAtGateway = errors.New("refund: already refunded at gateway")
)
