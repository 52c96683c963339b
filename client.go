package txtracker

import (
	"context"
	"time"
)

// PreparedTx is a transaction already constructed by a chain connector and
// ready to sign and send. The tracker treats it as opaque apart from the
// chain kind, which routes it to the right client.
type PreparedTx interface {
	Kind() ChainKind
}

// Signer is an opaque signing capability passed through to the chain
// client. ID is used in logs only.
type Signer interface {
	ID() string
}

// BlockInfo is block metadata returned by QueryBlock, used for enrichment.
type BlockInfo struct {
	Number uint64
	Hash   string
	Time   time.Time
}

// StatusSubscription is a lazy, unbounded, cancelable stream of status
// events for one transaction hash.
type StatusSubscription interface {
	// Events returns the event channel. The connector closes it when the
	// subscription ends.
	Events() <-chan StatusEvent

	// Err returns a channel that receives at most one subscription
	// failure (e.g. the node connection dropped).
	Err() <-chan error

	// Unsubscribe cancels the stream. Safe to call more than once.
	Unsubscribe()
}

// ChainClient is the chain-connector capability the tracker consumes. One
// client serves one chain kind; implementations live outside the core
// (the evm package ships one for confirmation-count chains).
type ChainClient interface {
	// Kind reports which chain family this client serves.
	Kind() ChainKind

	// SubmitSigned signs and sends a prepared transaction, returning the
	// chain-assigned hash. The hash must be known synchronously even
	// though finality is asynchronous.
	SubmitSigned(ctx context.Context, tx PreparedTx, signer Signer) (string, error)

	// SubscribeStatus opens a status event stream for a hash.
	SubscribeStatus(ctx context.Context, hash string) (StatusSubscription, error)

	// QueryFeeEstimate returns the predicted cost of the transaction.
	QueryFeeEstimate(ctx context.Context, tx PreparedTx, signer Signer) (*FeeEstimate, error)

	// QueryBlock returns block metadata for a block number or hash.
	QueryBlock(ctx context.Context, ref string) (*BlockInfo, error)
}
