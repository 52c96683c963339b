package txtracker

import (
	"context"
	"time"
)

// HistoryStore persists terminal transaction records evicted from the
// bounded in-memory history, so the audit trail survives the retention
// limit. The sqlitestore package ships a database-backed implementation.
//
// Thread safety: implementations must be safe for concurrent use; the
// tracker calls them from watch goroutines.
type HistoryStore interface {
	// Save archives a terminal record. Called at most once per hash.
	Save(ctx context.Context, rec *TransactionRecord) error

	// List returns archived records for a chain kind, oldest first.
	List(ctx context.Context, kind ChainKind) ([]*TransactionRecord, error)

	// Prune removes archived records submitted more than age ago and
	// returns how many were removed. Retention policy is the caller's.
	Prune(ctx context.Context, age time.Duration) (int, error)
}
