package txtracker

import (
	"math/big"
	"time"
)

// Default configuration values inherited by every tracked transaction.
const (
	DefaultMaxRetries       = 3
	DefaultMinConfirmations = 12
	DefaultWatchTimeout     = 5 * time.Minute
	DefaultWaitTimeout      = 2 * time.Minute
	DefaultHistoryLimit     = 1024
)

// ChainKind identifies which chain family a transaction was issued on.
// The two families differ in how finality is observed: two-phase chains
// report block inclusion and finalization as separate events, while
// confirmation-count chains treat a configured number of descendant
// blocks as the success condition.
type ChainKind string

const (
	// ChainKindTwoPhase covers substrate-style chains where a transaction
	// is first reported in a block and later independently finalized.
	ChainKindTwoPhase ChainKind = "two-phase-finality"

	// ChainKindConfirmationCount covers account-based ledgers where
	// finality is approximated by counting blocks built on top of the
	// transaction's block.
	ChainKindConfirmationCount ChainKind = "confirmation-count"
)

// Status represents the lifecycle state of a tracked transaction.
// Transitions only move forward: Submitted -> InBlock -> Finalized, with
// side exits to Failed or TimedOut. A terminal record never changes again.
type Status string

const (
	// StatusSubmitted means the transaction was accepted by a node and a
	// hash was assigned, but inclusion has not been observed yet.
	StatusSubmitted Status = "submitted"
	// StatusInBlock means the transaction was placed into a produced
	// block that may still be reverted before finality.
	StatusInBlock Status = "in_block"
	// StatusFinalized means the transaction reached irreversible
	// confirmation (finality event or the confirmation threshold).
	StatusFinalized Status = "finalized"
	// StatusFailed means the chain reported a dispatch error or revert.
	StatusFailed Status = "failed"
	// StatusTimedOut means the tracker's watch budget elapsed without a
	// terminal chain event. The underlying transaction may still succeed
	// on chain; the record is retryable.
	StatusTimedOut Status = "timed_out"
)

// Terminal reports whether s is a terminal lifecycle state.
func (s Status) Terminal() bool {
	return s == StatusFinalized || s == StatusFailed || s == StatusTimedOut
}

// ChainEvent is an opaque descriptor of a chain-emitted event attached to a
// transaction at inclusion or finality. The core never interprets it.
type ChainEvent struct {
	Name string
	Data string
}

// TransactionRecord is the central entity of the tracker: one submission
// attempt of one logical operation on one chain. Records are never mutated
// by callers; the tracker hands out copies.
type TransactionRecord struct {
	// Hash is the chain-assigned transaction identifier, unique in the
	// registry. A retry produces a new hash and a fresh record.
	Hash      string
	ChainKind ChainKind

	// OperationLabel is a human-readable purpose such as
	// "DID Registration" or "SBT Minting". Informational only.
	OperationLabel string

	Status Status

	SubmittedAt time.Time
	// ConfirmedAt is set exactly once, at the terminal success transition.
	ConfirmedAt time.Time

	// BlockNumber and BlockHash are populated once inclusion is observed.
	BlockNumber uint64
	BlockHash   string

	// FeeAmount and GasUsed are populated once known, in chain-native
	// units (wei, planck, weight).
	FeeAmount *big.Int
	GasUsed   uint64

	// ConfirmationCount is the number of blocks observed after inclusion.
	// Only meaningful on confirmation-count chains.
	ConfirmationCount int

	// Events holds chain-emitted event descriptors in the order the chain
	// reported them.
	Events []ChainEvent

	// RetryCount and MaxRetries track the bounded retry policy. A record
	// with RetryCount == MaxRetries cannot be retried again.
	RetryCount int
	MaxRetries int

	// RetriedFrom references the hash of the record this submission
	// retried, if any. Back-reference only.
	RetriedFrom string

	// LastError is the last recorded failure description. It is retained
	// even after a successful retry for audit.
	LastError string
}

// Clone returns a deep copy of the record.
func (r *TransactionRecord) Clone() *TransactionRecord {
	cp := *r
	if r.FeeAmount != nil {
		cp.FeeAmount = new(big.Int).Set(r.FeeAmount)
	}
	if r.Events != nil {
		cp.Events = make([]ChainEvent, len(r.Events))
		copy(cp.Events, r.Events)
	}
	return &cp
}

// FeeEstimate is the predicted cost of a prepared transaction.
type FeeEstimate struct {
	// Amount in the chain's native denomination or abstract weight.
	Amount *big.Int
	// Unit names the denomination, e.g. "wei" or "weight".
	Unit string
}

// TrackerDefaults holds default configuration values inherited by every
// submission unless overridden per request.
type TrackerDefaults struct {
	// MaxRetries bounds how many times a failed or timed-out transaction
	// may be resubmitted.
	MaxRetries int

	// MinConfirmations is the success threshold on confirmation-count
	// chains.
	MinConfirmations int

	// WatchTimeout bounds how long the tracker watches a transaction for
	// a terminal chain event before marking the record TimedOut.
	WatchTimeout time.Duration

	// WaitTimeout is the default budget for WaitForConfirmation when the
	// caller passes zero.
	WaitTimeout time.Duration

	// Backoff determines the delay before a resubmission.
	Backoff BackoffPolicy

	// HistoryLimit bounds how many terminal records the in-memory history
	// retains for metrics.
	HistoryLimit int
}

func (d TrackerDefaults) withFallbacks() TrackerDefaults {
	if d.MaxRetries <= 0 {
		d.MaxRetries = DefaultMaxRetries
	}
	if d.MinConfirmations <= 0 {
		d.MinConfirmations = DefaultMinConfirmations
	}
	if d.WatchTimeout <= 0 {
		d.WatchTimeout = DefaultWatchTimeout
	}
	if d.WaitTimeout <= 0 {
		d.WaitTimeout = DefaultWaitTimeout
	}
	if d.HistoryLimit <= 0 {
		d.HistoryLimit = DefaultHistoryLimit
	}
	d.Backoff = d.Backoff.withFallbacks()
	return d
}
