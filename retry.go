package txtracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KyberNetwork/logger"
)

// BackoffMode selects how the resubmission delay grows with the retry
// count.
type BackoffMode string

const (
	BackoffLinear      BackoffMode = "linear"
	BackoffExponential BackoffMode = "exponential"
)

// Default backoff configuration.
const (
	DefaultBackoffBase = 2 * time.Second
	DefaultBackoffMax  = 2 * time.Minute
)

// BackoffPolicy computes the delay before a resubmission. The delay is
// deterministic given the retry count: linear mode yields base*n,
// exponential mode base*2^(n-1), both capped at Max.
type BackoffPolicy struct {
	Mode BackoffMode
	Base time.Duration
	Max  time.Duration
}

func (p BackoffPolicy) withFallbacks() BackoffPolicy {
	if p.Mode == "" {
		p.Mode = BackoffExponential
	}
	if p.Base <= 0 {
		p.Base = DefaultBackoffBase
	}
	if p.Max <= 0 {
		p.Max = DefaultBackoffMax
	}
	return p
}

// DelayFor returns the delay preceding retry number retryCount (1-based).
func (p BackoffPolicy) DelayFor(retryCount int) time.Duration {
	p = p.withFallbacks()
	if retryCount <= 0 {
		return 0
	}

	var d time.Duration
	switch p.Mode {
	case BackoffLinear:
		d = p.Base * time.Duration(retryCount)
	default:
		d = p.Base << uint(retryCount-1)
	}
	if d > p.Max || d <= 0 {
		// A negative value means the shift overflowed.
		d = p.Max
	}
	return d
}

// RetryTransaction resubmits the logical operation behind a failed or
// timed-out record. The resubmission gets a new hash and a fresh record
// with RetryCount incremented, MaxRetries carried over and RetriedFrom
// pointing back at hash; the old record is left untouched as historical
// evidence.
//
// Preconditions: the record must be in Failed or TimedOut (otherwise
// ErrInvalidState) with RetryCount < MaxRetries (otherwise
// ErrRetryExhausted). The call sleeps the policy's backoff delay before
// resubmitting, honoring ctx cancellation.
func (t *Tracker) RetryTransaction(ctx context.Context, hash string) (*TransactionRecord, error) {
	old, ok := t.registry.Get(hash)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransaction, hash)
	}

	if old.Status != StatusFailed && old.Status != StatusTimedOut {
		return nil, fmt.Errorf("%w: tx %s is %s, only failed or timed-out transactions can be retried", ErrInvalidState, hash, old.Status)
	}
	if old.RetryCount >= old.MaxRetries {
		return nil, errors.Join(ErrRetryExhausted, fmt.Errorf("tx %s used %d of %d retries", hash, old.RetryCount, old.MaxRetries))
	}

	subRaw, ok := t.payloads.Load(hash)
	if !ok {
		return nil, fmt.Errorf("%w: original submission payload for %s is no longer available", ErrInvalidState, hash)
	}
	sub := subRaw.(submission)

	nextRetry := old.RetryCount + 1
	delay := t.Defaults().Backoff.DelayFor(nextRetry)

	logger.WithFields(logger.Fields{
		"tx_hash":     hash,
		"chain":       old.ChainKind,
		"label":       old.OperationLabel,
		"retry_count": nextRetry,
		"max_retries": old.MaxRetries,
		"delay":       delay.String(),
	}).Info("retrying transaction after backoff")

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-t.closed:
			timer.Stop()
			return nil, ErrTrackerClosed
		case <-timer.C:
		}
	}

	renewed, err := t.submit(ctx, sub, nextRetry, old.MaxRetries, hash)
	if err != nil {
		return nil, err
	}

	t.metrics.observeRetry(renewed)
	if t.retryHook != nil {
		t.retryHook(old.Clone(), renewed.Clone())
	}
	return renewed, nil
}
