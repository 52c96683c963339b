package txtracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/KyberNetwork/logger"

	"github.com/uliana1one/keypass-txtracker/internal/breaker"
)

// Tracker follows the lifecycle of blockchain transactions from submission
// to finality across chain families. It
//  1. submits prepared transactions through per-family chain clients and
//     registers them in the pending-transaction registry,
//  2. watches each hash's status stream and advances its record until a
//     terminal state,
//  3. resubmits failed or timed-out transactions under a bounded retry
//     policy,
//  4. estimates fees prior to submission,
//  5. derives per-chain health and performance metrics on demand,
//  6. guards every chain call with a per-family circuit breaker.
type Tracker struct {
	// Lock for defaults access (protects the defaults struct)
	defaultsMu sync.RWMutex
	defaults   TrackerDefaults

	// Chain clients keyed by the chain kind they serve. Fixed after
	// construction.
	clients map[ChainKind]ChainClient

	registry *Registry

	// History archive for evicted terminal records. Optional.
	history HistoryStore

	// Circuit breakers keyed by chain kind.
	breakers sync.Map // map[ChainKind]*breaker.Breaker

	// Per-hash watch state. Entries live until the record is evicted.
	watches sync.Map // map[string]*watch

	// Original submission payloads keyed by hash, retained so a failed
	// or timed-out transaction can be resubmitted.
	payloads sync.Map // map[string]submission

	submitHook   SubmitHook
	terminalHook TerminalHook
	retryHook    RetryHook

	metrics *lifecycleMetrics

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

// submission is the logical operation behind a record, kept for retries.
type submission struct {
	tx     PreparedTx
	signer Signer
	label  string
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithChainClient registers a chain client for the kind it reports.
func WithChainClient(client ChainClient) Option {
	return func(t *Tracker) {
		t.clients[client.Kind()] = client
	}
}

// WithDefaults sets all default configuration at once.
func WithDefaults(defaults TrackerDefaults) Option {
	return func(t *Tracker) {
		t.defaults = defaults
	}
}

// WithDefaultMaxRetries sets the default retry bound for submissions.
func WithDefaultMaxRetries(maxRetries int) Option {
	return func(t *Tracker) {
		t.defaults.MaxRetries = maxRetries
	}
}

// WithMinConfirmations sets the success threshold for confirmation-count
// chains.
func WithMinConfirmations(n int) Option {
	return func(t *Tracker) {
		t.defaults.MinConfirmations = n
	}
}

// WithWatchTimeout bounds how long a transaction is watched for a terminal
// chain event before its record is marked TimedOut.
func WithWatchTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		t.defaults.WatchTimeout = d
	}
}

// WithBackoffPolicy sets the retry backoff policy.
func WithBackoffPolicy(p BackoffPolicy) Option {
	return func(t *Tracker) {
		t.defaults.Backoff = p
	}
}

// WithHistoryLimit bounds the in-memory terminal-record history.
func WithHistoryLimit(n int) Option {
	return func(t *Tracker) {
		t.defaults.HistoryLimit = n
	}
}

// WithHistoryStore archives evicted terminal records to store.
func WithHistoryStore(store HistoryStore) Option {
	return func(t *Tracker) {
		t.history = store
	}
}

// WithSubmitHook sets the hook called after each successful submission.
func WithSubmitHook(hook SubmitHook) Option {
	return func(t *Tracker) {
		t.submitHook = hook
	}
}

// WithTerminalHook sets the hook called on each terminal transition.
func WithTerminalHook(hook TerminalHook) Option {
	return func(t *Tracker) {
		t.terminalHook = hook
	}
}

// WithRetryHook sets the hook called after each resubmission.
func WithRetryHook(hook RetryHook) Option {
	return func(t *Tracker) {
		t.retryHook = hook
	}
}

// NewTracker creates a new Tracker with optional configuration.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		clients: make(map[ChainKind]ChainClient),
		closed:  make(chan struct{}),
		metrics: newLifecycleMetrics(),
	}

	for _, opt := range opts {
		opt(t)
	}

	t.defaults = t.defaults.withFallbacks()
	t.registry = NewRegistry(t.defaults.HistoryLimit, t.onEvicted)

	return t
}

// Defaults returns the current default configuration.
func (t *Tracker) Defaults() TrackerDefaults {
	t.defaultsMu.RLock()
	defer t.defaultsMu.RUnlock()
	return t.defaults
}

// SetDefaults updates the default configuration. Running watches keep the
// values they started with.
func (t *Tracker) SetDefaults(defaults TrackerDefaults) {
	t.defaultsMu.Lock()
	defer t.defaultsMu.Unlock()
	t.defaults = defaults.withFallbacks()
}

// Registry exposes the pending-transaction registry for read access.
func (t *Tracker) Registry() *Registry {
	return t.registry
}

// GetTransactionStatus returns a copy of the record for hash, or false if
// the hash was never tracked (or has been evicted from history).
func (t *Tracker) GetTransactionStatus(hash string) (*TransactionRecord, bool) {
	return t.registry.Get(hash)
}

// GetPendingTransactions returns all records with status Submitted or
// InBlock.
func (t *Tracker) GetPendingTransactions() []*TransactionRecord {
	return t.registry.ListPending()
}

// client returns the chain client for kind.
func (t *Tracker) client(kind ChainKind) (ChainClient, error) {
	c, ok := t.clients[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChainNotConfigured, kind)
	}
	return c, nil
}

// getBreaker returns the circuit breaker for a chain kind, creating one if
// necessary.
func (t *Tracker) getBreaker(kind ChainKind) *breaker.Breaker {
	b, _ := t.breakers.LoadOrStore(kind, breaker.New(breaker.DefaultConfig()))
	return b.(*breaker.Breaker)
}

// BreakerState returns the circuit breaker snapshot for a chain kind.
func (t *Tracker) BreakerState(kind ChainKind) breaker.Snapshot {
	return t.getBreaker(kind).Snapshot()
}

// ResetBreaker resets the circuit breaker for a chain kind.
func (t *Tracker) ResetBreaker(kind ChainKind) {
	t.getBreaker(kind).Reset()
}

// onEvicted runs when the registry drops a terminal record from history:
// the watch entry and retry payload go with it, and the record is archived
// if a history store is configured.
func (t *Tracker) onEvicted(rec *TransactionRecord) {
	t.watches.Delete(rec.Hash)
	t.payloads.Delete(rec.Hash)

	if t.history == nil {
		return
	}
	if err := t.history.Save(context.Background(), rec.Clone()); err != nil {
		logger.WithFields(logger.Fields{
			"tx_hash": rec.Hash,
			"error":   err,
		}).Warn("failed to archive evicted record to history store")
	}
}

// Close cancels all watches and waits for them to finish. The tracker
// rejects new submissions afterwards.
func (t *Tracker) Close() {
	t.closeOnce.Do(func() {
		close(t.closed)
	})
	t.wg.Wait()
}

func (t *Tracker) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}
