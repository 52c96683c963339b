package txtracker

import (
	"context"
	"errors"
	"fmt"

	"github.com/KyberNetwork/logger"
)

// EstimateFee queries the chain for the cost of a prepared transaction
// before submission. Failures are wrapped in ErrFeeEstimationFailed and
// are non-fatal to the overall flow: the caller may submit without an
// estimate.
func (t *Tracker) EstimateFee(ctx context.Context, tx PreparedTx, signer Signer) (*FeeEstimate, error) {
	client, err := t.client(tx.Kind())
	if err != nil {
		return nil, errors.Join(ErrFeeEstimationFailed, err)
	}

	cb := t.getBreaker(tx.Kind())
	if !cb.Allow() {
		return nil, errors.Join(ErrFeeEstimationFailed, fmt.Errorf("%w for chain %s", ErrCircuitBreakerOpen, tx.Kind()))
	}

	estimate, err := client.QueryFeeEstimate(ctx, tx, signer)
	if err != nil {
		cb.RecordFailure()
		logger.WithFields(logger.Fields{
			"chain":  tx.Kind(),
			"signer": signerID(signer),
			"error":  err,
		}).Debug("fee estimation failed")
		return nil, errors.Join(ErrFeeEstimationFailed, err)
	}
	cb.RecordSuccess()

	if estimate == nil || estimate.Amount == nil {
		return nil, errors.Join(ErrFeeEstimationFailed, fmt.Errorf("chain client for %s returned an empty estimate", tx.Kind()))
	}

	logger.WithFields(logger.Fields{
		"chain":  tx.Kind(),
		"amount": estimate.Amount.String(),
		"unit":   estimate.Unit,
	}).Debug("fee estimated")
	return estimate, nil
}
