package txtracker

import "math/big"

// StatusEvent is a chain-emitted lifecycle notification for one tracked
// hash. It is a closed set: InBlockEvent, FinalizedEvent, FailedEvent and
// NewConfirmationEvent are the only variants, each with an explicit
// payload. Chain connectors translate their native status shapes into
// these before handing them to the tracker.
type StatusEvent interface {
	statusEvent()
}

// InBlockEvent reports that the transaction was placed into a produced
// block. On two-phase chains this precedes finalization; on
// confirmation-count chains it starts the confirmation count.
type InBlockEvent struct {
	BlockNumber uint64
	BlockHash   string
	GasUsed     uint64
	Fee         *big.Int
	Events      []ChainEvent
}

// FinalizedEvent reports irreversible confirmation. A FinalizedEvent
// without a prior InBlockEvent is valid: finality implies inclusion, so
// both are applied atomically.
type FinalizedEvent struct {
	BlockNumber uint64
	BlockHash   string
	GasUsed     uint64
	Fee         *big.Int
	Events      []ChainEvent
}

// FailedEvent reports a chain-side failure: an extrinsic dispatch error or
// a reverted transaction. Reason carries the decoded failure description.
type FailedEvent struct {
	Reason      string
	BlockNumber uint64
	BlockHash   string
	GasUsed     uint64
	Fee         *big.Int
}

// NewConfirmationEvent reports a new block built on top of the
// transaction's block. Emitted by confirmation-count chain connectors
// only; Height is the observed chain head.
type NewConfirmationEvent struct {
	Height uint64
}

func (InBlockEvent) statusEvent()         {}
func (FinalizedEvent) statusEvent()       {}
func (FailedEvent) statusEvent()          {}
func (NewConfirmationEvent) statusEvent() {}
