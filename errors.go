package txtracker

import "fmt"

// Transaction tracking errors. Callers classify failures with errors.Is.
var (
	// ErrSubmissionFailed means the underlying send failed before a hash
	// was obtained; nothing was registered.
	ErrSubmissionFailed = fmt.Errorf("submission failed before a transaction hash was assigned")

	// ErrTransactionFailed means the chain reported a dispatch error or
	// revert for an included transaction.
	ErrTransactionFailed = fmt.Errorf("transaction failed on chain")

	// ErrTransactionTimeout (kind TRANSACTION_TIMEOUT) means no terminal
	// state was reached within the caller's wait budget. The wait is
	// abandoned; the underlying transaction may still confirm later.
	ErrTransactionTimeout = fmt.Errorf("TRANSACTION_TIMEOUT: no terminal state within wait budget")

	// ErrFeeEstimationFailed means the fee query failed or the
	// transaction was malformed. Non-fatal to the submission flow.
	ErrFeeEstimationFailed = fmt.Errorf("fee estimation failed")

	// ErrRetryExhausted means retryCount reached maxRetries.
	ErrRetryExhausted = fmt.Errorf("retry limit exhausted")

	// ErrInvalidState means the operation is not valid for the record's
	// current status, e.g. retrying a transaction that is still pending
	// or already finalized.
	ErrInvalidState = fmt.Errorf("invalid transaction state for operation")

	// ErrUnknownTransaction means the hash is not present in the registry.
	ErrUnknownTransaction = fmt.Errorf("unknown transaction hash")

	// ErrChainNotConfigured means no chain client is registered for the
	// transaction's chain kind.
	ErrChainNotConfigured = fmt.Errorf("no chain client configured for chain kind")

	// ErrCircuitBreakerOpen means the chain's breaker tripped and calls
	// are failing fast until the chain recovers.
	ErrCircuitBreakerOpen = fmt.Errorf("circuit breaker is open: chain temporarily unavailable")

	// ErrTrackerClosed means the tracker was shut down.
	ErrTrackerClosed = fmt.Errorf("tracker is closed")
)
