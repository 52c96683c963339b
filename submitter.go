package txtracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KyberNetwork/logger"
)

// SubmitTransaction signs and sends a prepared transaction through the
// chain client for its kind, registers a Submitted record keyed by the
// chain-returned hash, and starts watching it. The hash is known
// synchronously from the signing step even though finality is not.
//
// If the send fails before a hash is obtained, the call fails with
// ErrSubmissionFailed and nothing is registered. Duplicate submissions
// with the same nonce or payload are the caller's responsibility; the
// tracker does not deduplicate.
func (t *Tracker) SubmitTransaction(ctx context.Context, tx PreparedTx, signer Signer, label string) (*TransactionRecord, error) {
	return t.submit(ctx, submission{tx: tx, signer: signer, label: label}, 0, t.Defaults().MaxRetries, "")
}

// submit is the shared submission path for first attempts and retries.
func (t *Tracker) submit(ctx context.Context, sub submission, retryCount, maxRetries int, retriedFrom string) (*TransactionRecord, error) {
	if t.isClosed() {
		return nil, ErrTrackerClosed
	}

	client, err := t.client(sub.tx.Kind())
	if err != nil {
		return nil, errors.Join(ErrSubmissionFailed, err)
	}

	cb := t.getBreaker(sub.tx.Kind())
	if !cb.Allow() {
		return nil, errors.Join(ErrSubmissionFailed, fmt.Errorf("%w for chain %s", ErrCircuitBreakerOpen, sub.tx.Kind()))
	}

	hash, err := client.SubmitSigned(ctx, sub.tx, sub.signer)
	if err != nil {
		cb.RecordFailure()
		logger.WithFields(logger.Fields{
			"chain":  sub.tx.Kind(),
			"label":  sub.label,
			"signer": signerID(sub.signer),
			"error":  err,
		}).Warn("transaction submission failed before a hash was assigned")
		return nil, errors.Join(ErrSubmissionFailed, err)
	}
	cb.RecordSuccess()

	rec := &TransactionRecord{
		Hash:           hash,
		ChainKind:      sub.tx.Kind(),
		OperationLabel: sub.label,
		Status:         StatusSubmitted,
		SubmittedAt:    time.Now(),
		RetryCount:     retryCount,
		MaxRetries:     maxRetries,
		RetriedFrom:    retriedFrom,
	}

	if err := t.registry.Insert(rec); err != nil {
		// The chain accepted the transaction but the hash collides with a
		// live record. Surface it; the chain-side send is not undone.
		return nil, errors.Join(ErrSubmissionFailed, err)
	}
	t.payloads.Store(hash, sub)

	t.startWatch(hash, sub.tx.Kind(), client)

	logger.WithFields(logger.Fields{
		"tx_hash":      hash,
		"chain":        sub.tx.Kind(),
		"label":        sub.label,
		"signer":       signerID(sub.signer),
		"retry_count":  retryCount,
		"retried_from": retriedFrom,
	}).Info("transaction submitted and registered")

	t.metrics.observeSubmitted(rec)

	out := rec.Clone()
	if t.submitHook != nil {
		t.submitHook(out.Clone())
	}
	return out, nil
}

func signerID(s Signer) string {
	if s == nil {
		return ""
	}
	return s.ID()
}
