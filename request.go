package txtracker

import (
	"context"
	"fmt"
	"time"
)

// SubmitRequest builds one submission with per-request overrides, in the
// style of go-resty's R(). Zero-valued fields inherit the tracker
// defaults.
type SubmitRequest struct {
	t *Tracker

	tx         PreparedTx
	signer     Signer
	label      string
	maxRetries int
}

// R creates a new submit request inheriting the tracker defaults.
func (t *Tracker) R() *SubmitRequest {
	return &SubmitRequest{
		t:          t,
		maxRetries: t.Defaults().MaxRetries,
	}
}

// SetTx sets the prepared transaction.
func (r *SubmitRequest) SetTx(tx PreparedTx) *SubmitRequest {
	r.tx = tx
	return r
}

// SetSigner sets the signing capability.
func (r *SubmitRequest) SetSigner(signer Signer) *SubmitRequest {
	r.signer = signer
	return r
}

// SetLabel sets the human-readable operation label, e.g.
// "DID Registration".
func (r *SubmitRequest) SetLabel(label string) *SubmitRequest {
	r.label = label
	return r
}

// SetMaxRetries overrides the retry bound for this submission.
func (r *SubmitRequest) SetMaxRetries(maxRetries int) *SubmitRequest {
	r.maxRetries = maxRetries
	return r
}

// EstimateFee queries the fee for the request's transaction. Non-fatal:
// submission may proceed without it.
func (r *SubmitRequest) EstimateFee(ctx context.Context) (*FeeEstimate, error) {
	return r.t.EstimateFee(ctx, r.tx, r.signer)
}

// Submit sends the transaction and returns its Submitted record.
func (r *SubmitRequest) Submit(ctx context.Context) (*TransactionRecord, error) {
	if r.tx == nil {
		return nil, fmt.Errorf("%w: no prepared transaction set on request", ErrSubmissionFailed)
	}
	return r.t.submit(ctx, submission{tx: r.tx, signer: r.signer, label: r.label}, 0, r.maxRetries, "")
}

// SubmitAndWait submits and then blocks until the record reaches a
// terminal state or the wait budget elapses.
func (r *SubmitRequest) SubmitAndWait(ctx context.Context, timeout time.Duration) (*TransactionRecord, error) {
	rec, err := r.Submit(ctx)
	if err != nil {
		return nil, err
	}
	return r.t.WaitForConfirmation(ctx, rec.Hash, timeout)
}
