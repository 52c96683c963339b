package txtracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KyberNetwork/logger"
)

// watch is the tracker-owned confirmation state for one hash. The done
// channel closes when the record reaches a terminal status, waking every
// waiter. Waiters never own the subscription: abandoning a wait has no
// effect on the watch or on the underlying chain transaction.
type watch struct {
	hash string
	done chan struct{}
}

// startWatch spawns the goroutine that consumes the hash's status stream
// and advances its record until a terminal state or the watch budget runs
// out. There is exactly one watch per live hash.
func (t *Tracker) startWatch(hash string, kind ChainKind, client ChainClient) {
	w := &watch{hash: hash, done: make(chan struct{})}
	t.watches.Store(hash, w)

	defaults := t.Defaults()
	minConfirmations := defaults.MinConfirmations
	budget := defaults.WatchTimeout

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.runWatch(w, kind, client, minConfirmations, budget)
	}()
}

func (t *Tracker) runWatch(w *watch, kind ChainKind, client ChainClient, minConfirmations int, budget time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := client.SubscribeStatus(ctx, w.hash)
	if err != nil {
		logger.WithFields(logger.Fields{
			"tx_hash": w.hash,
			"chain":   kind,
			"error":   err,
		}).Warn("status subscription failed, marking record timed out")
		t.finishWatch(w, StatusTimedOut, fmt.Sprintf("status subscription failed: %v", err))
		return
	}
	defer sub.Unsubscribe()

	timer := time.NewTimer(budget)
	defer timer.Stop()

	for {
		select {
		case <-t.closed:
			// Tracker shutdown abandons the watch without touching the
			// record; its true chain state is unknown.
			return

		case <-timer.C:
			t.finishWatch(w, StatusTimedOut, fmt.Sprintf("no terminal chain event within %s", budget))
			return

		case err := <-sub.Err():
			logger.WithFields(logger.Fields{
				"tx_hash": w.hash,
				"chain":   kind,
				"error":   err,
			}).Warn("status subscription broke, marking record timed out")
			t.finishWatch(w, StatusTimedOut, fmt.Sprintf("status subscription broke: %v", err))
			return

		case ev, ok := <-sub.Events():
			if !ok {
				t.finishWatch(w, StatusTimedOut, "status stream ended without a terminal event")
				return
			}
			terminal := t.applyEvent(w, kind, minConfirmations, ev)
			if terminal {
				return
			}
		}
	}
}

// applyEvent advances the record for one status event and reports whether
// a terminal state was reached. Events that are invalid for the record's
// current state are logged and dropped, never fatal: ordering within one
// hash's stream is the connector's guarantee.
func (t *Tracker) applyEvent(w *watch, kind ChainKind, minConfirmations int, ev StatusEvent) bool {
	var (
		rec *TransactionRecord
		err error
	)

	switch e := ev.(type) {
	case InBlockEvent:
		rec, err = t.registry.Update(w.hash, func(r *TransactionRecord) {
			if r.Status != StatusSubmitted {
				return
			}
			r.Status = StatusInBlock
			r.BlockNumber = e.BlockNumber
			r.BlockHash = e.BlockHash
			if e.GasUsed > 0 {
				r.GasUsed = e.GasUsed
			}
			if e.Fee != nil {
				r.FeeAmount = e.Fee
			}
			r.Events = append(r.Events, e.Events...)
		})

	case FinalizedEvent:
		// A finalized notification without a prior in-block notification
		// means both occurred atomically: finality implies inclusion.
		rec, err = t.registry.Update(w.hash, func(r *TransactionRecord) {
			if e.BlockNumber > 0 {
				r.BlockNumber = e.BlockNumber
			}
			if e.BlockHash != "" {
				r.BlockHash = e.BlockHash
			}
			if e.GasUsed > 0 {
				r.GasUsed = e.GasUsed
			}
			if e.Fee != nil {
				r.FeeAmount = e.Fee
			}
			r.Events = append(r.Events, e.Events...)
			r.Status = StatusFinalized
			r.ConfirmedAt = time.Now()
		})

	case FailedEvent:
		rec, err = t.registry.Update(w.hash, func(r *TransactionRecord) {
			if e.BlockNumber > 0 {
				r.BlockNumber = e.BlockNumber
			}
			if e.BlockHash != "" {
				r.BlockHash = e.BlockHash
			}
			if e.GasUsed > 0 {
				r.GasUsed = e.GasUsed
			}
			if e.Fee != nil {
				r.FeeAmount = e.Fee
			}
			r.Status = StatusFailed
			r.LastError = e.Reason
		})

	case NewConfirmationEvent:
		if kind != ChainKindConfirmationCount {
			logger.WithFields(logger.Fields{
				"tx_hash": w.hash,
				"chain":   kind,
			}).Debug("dropping confirmation event on a two-phase chain")
			return false
		}
		rec, err = t.registry.Update(w.hash, func(r *TransactionRecord) {
			if r.Status != StatusInBlock {
				return
			}
			r.ConfirmationCount++
			if r.ConfirmationCount >= minConfirmations {
				r.Status = StatusFinalized
				r.ConfirmedAt = time.Now()
			}
		})

	default:
		logger.WithFields(logger.Fields{
			"tx_hash": w.hash,
			"event":   fmt.Sprintf("%T", ev),
		}).Debug("dropping unknown status event")
		return false
	}

	if err != nil {
		logger.WithFields(logger.Fields{
			"tx_hash": w.hash,
			"event":   fmt.Sprintf("%T", ev),
			"error":   err,
		}).Debug("dropping status event rejected by registry")
		return false
	}

	if rec.Status.Terminal() {
		t.completeRecord(w, rec)
		return true
	}
	return false
}

// finishWatch force-terminates the record with status (used for watch
// budget expiry and broken subscriptions). If the record advanced to a
// terminal state concurrently, the existing state wins.
func (t *Tracker) finishWatch(w *watch, status Status, reason string) {
	rec, err := t.registry.Update(w.hash, func(r *TransactionRecord) {
		r.Status = status
		r.LastError = reason
	})
	if err != nil {
		if existing, ok := t.registry.Get(w.hash); ok && existing.Status.Terminal() {
			rec = existing
		} else {
			logger.WithFields(logger.Fields{
				"tx_hash": w.hash,
				"status":  status,
				"error":   err,
			}).Warn("could not terminate watched record")
			return
		}
	}
	t.completeRecord(w, rec)
}

// completeRecord publishes a terminal transition: metrics, hook, waiter
// wake-up.
func (t *Tracker) completeRecord(w *watch, rec *TransactionRecord) {
	t.metrics.observeTerminal(rec)

	logger.WithFields(logger.Fields{
		"tx_hash":       rec.Hash,
		"chain":         rec.ChainKind,
		"label":         rec.OperationLabel,
		"status":        rec.Status,
		"block_number":  rec.BlockNumber,
		"confirmations": rec.ConfirmationCount,
		"last_error":    rec.LastError,
	}).Info("transaction reached terminal state")

	if t.terminalHook != nil {
		t.terminalHook(rec.Clone())
	}
	close(w.done)
}

// WaitForConfirmation blocks until the record for hash reaches a terminal
// state, then returns it. A record that is already terminal is returned
// immediately without touching the watch or issuing a new subscription.
//
// The wait fails with ErrTransactionTimeout after timeout (or the default
// wait budget when timeout is zero). A timeout abandons only this wait:
// the watch keeps running and a later chain event still updates the
// registry. Failed records are returned together with an error wrapping
// ErrTransactionFailed so an active waiter sees the failure.
func (t *Tracker) WaitForConfirmation(ctx context.Context, hash string, timeout time.Duration) (*TransactionRecord, error) {
	rec, ok := t.registry.Get(hash)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransaction, hash)
	}
	if rec.Status.Terminal() {
		return rec, terminalError(rec)
	}

	wRaw, ok := t.watches.Load(hash)
	if !ok {
		// Record exists but its watch is gone; nothing will ever advance
		// it in this process.
		return rec, fmt.Errorf("%w: no active watch for %s", ErrTransactionTimeout, hash)
	}
	w := wRaw.(*watch)

	if timeout <= 0 {
		timeout = t.Defaults().WaitTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s not terminal after %s", ErrTransactionTimeout, hash, timeout)
	case <-w.done:
		rec, ok := t.registry.Get(hash)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTransaction, hash)
		}
		return rec, terminalError(rec)
	}
}

// terminalError maps a terminal record onto the error an active waiter
// should observe. Finalized records wait cleanly.
func terminalError(rec *TransactionRecord) error {
	switch rec.Status {
	case StatusFailed:
		return errors.Join(ErrTransactionFailed, fmt.Errorf("tx %s: %s", rec.Hash, rec.LastError))
	case StatusTimedOut:
		return fmt.Errorf("%w: tx %s watch expired: %s", ErrTransactionTimeout, rec.Hash, rec.LastError)
	default:
		return nil
	}
}
