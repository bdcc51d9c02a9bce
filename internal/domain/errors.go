package domain

import "errors"

var (
	ErrConfig            = errors.New("invalid market configuration")
	ErrDomain            = errors.New("invalid numeric input")
	ErrShape             = errors.New("vector length mismatch")
	ErrInvalidPrior      = errors.New("invalid prior distribution")
	ErrInvalidState      = errors.New("bucket count disagrees with share vector")
	ErrNotFound          = errors.New("not found")
	ErrBusy              = errors.New("market writer busy")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrTradingPaused     = errors.New("trading paused")
	ErrRateLimited       = errors.New("rate limited")
	ErrLockHeld          = errors.New("lock already held")
	ErrNotCancellable    = errors.New("order is not cancellable")
)

// RejectReason is surfaced to callers in OrderResult when an order is
// rejected. Rejections are values, not failures: shared state is untouched.
type RejectReason string

const (
	RejectNone                  RejectReason = ""
	RejectSlippageExceeded      RejectReason = "slippage_exceeded"
	RejectStopNotTriggered      RejectReason = "stop_not_triggered"
	RejectPositionLimitExceeded RejectReason = "position_limit_exceeded"
	RejectExposureCapExceeded   RejectReason = "exposure_cap_exceeded"
	RejectInsufficientFunds     RejectReason = "insufficient_funds"
	RejectTradingPaused         RejectReason = "trading_paused"
	RejectBusy                  RejectReason = "busy"
	RejectInvalidOrder          RejectReason = "invalid_order"
)

// ReasonForError maps a rejection sentinel to its RejectReason. Unknown
// errors map to RejectInvalidOrder so callers always see a reason.
func ReasonForError(err error) RejectReason {
	switch {
	case err == nil:
		return RejectNone
	case errors.Is(err, ErrInsufficientFunds):
		return RejectInsufficientFunds
	case errors.Is(err, ErrTradingPaused):
		return RejectTradingPaused
	case errors.Is(err, ErrBusy):
		return RejectBusy
	default:
		return RejectInvalidOrder
	}
}
