package reconcile

import "errors"

var (
	// ErrInvalidReversal is returned when a credit is requested for an order
	// with no prior debit. The order is not auto-corrected; the caller routes
	// this to an operator/alerting path.
	ErrInvalidReversal = errors.New("stock credit requested without a prior debit")

	// ErrOrderNotFound is returned when an event references an unknown order
	ErrOrderNotFound = errors.New("order not found")

	// ErrLedgerUnavailable wraps transient stock-ledger failures. Retrying the
	// same event is safe: idempotency checks skip work already applied.
	ErrLedgerUnavailable = errors.New("stock ledger unavailable")
)

// IsRetryable reports whether a Handle error should be retried by redelivering
// the triggering event. Invalid reversals and unknown orders are data errors
// that redelivery cannot fix; everything else is assumed transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrInvalidReversal) && !errors.Is(err, ErrOrderNotFound)
}
