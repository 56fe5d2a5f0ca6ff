package fulfill

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrProductNotFound indicates the product id is absent from the
	// current snapshot.
	ErrProductNotFound = errors.New("fulfill: product not in current snapshot")

	// ErrInvalidTradeLink indicates the trade destination string failed
	// validation. Invalid input is rejected, never silently defaulted.
	ErrInvalidTradeLink = errors.New("fulfill: invalid trade link")

	// ErrSubmissionAmbiguous indicates a timeout during the submission
	// call: the upstream outcome is unknown. It must never be treated as
	// a clean failure, a success, or retried automatically.
	ErrSubmissionAmbiguous = errors.New("fulfill: submission outcome ambiguous (timeout)")
)

// ThrottledError rejects a submission while the per-product cooldown
// window is open.
type ThrottledError struct {
	ProductID  string
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("fulfill: %q throttled, retry after %s", e.ProductID, e.RetryAfter.Round(time.Second))
}

// InsufficientBalanceError rejects a submission the settlement balance
// cannot cover. Nothing is submitted upstream.
type InsufficientBalanceError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("fulfill: insufficient balance: need %s, have %s", e.Required, e.Available)
}
