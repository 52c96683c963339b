package txtracker

import (
	"fmt"
	"sync"
)

// allowedTransitions is the forward-only status machine. A missing entry
// means the status is terminal.
var allowedTransitions = map[Status][]Status{
	StatusSubmitted: {StatusInBlock, StatusFinalized, StatusFailed, StatusTimedOut},
	StatusInBlock:   {StatusFinalized, StatusFailed, StatusTimedOut},
}

func transitionAllowed(from, to Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Registry is the in-memory table of all tracked transactions, keyed by
// hash. It is the only shared mutable resource in the tracker and the one
// place the forward-only status invariant is enforced. Writes come from
// the submission, confirmation and retry paths; external callers read.
//
// Records are never deleted while pending. Terminal records remain in a
// bounded history for metrics; when the bound is exceeded the oldest
// terminal record is evicted and handed to the eviction callback.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*TransactionRecord

	// insertion order of hashes, used to evict oldest terminal first
	order []string

	historyLimit int
	onEvict      func(*TransactionRecord)
}

// NewRegistry creates a registry retaining at most historyLimit terminal
// records. onEvict, if non-nil, receives each evicted record.
func NewRegistry(historyLimit int, onEvict func(*TransactionRecord)) *Registry {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Registry{
		records:      make(map[string]*TransactionRecord),
		historyLimit: historyLimit,
		onEvict:      onEvict,
	}
}

// Insert adds a new record. The hash must not already be present: at most
// one live record exists per hash.
func (g *Registry) Insert(rec *TransactionRecord) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.records[rec.Hash]; exists {
		return fmt.Errorf("duplicate transaction hash %s", rec.Hash)
	}
	g.records[rec.Hash] = rec.Clone()
	g.order = append(g.order, rec.Hash)
	g.evictLocked()
	return nil
}

// Get returns a copy of the record for hash, or false if absent.
func (g *Registry) Get(hash string) (*TransactionRecord, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	rec, ok := g.records[hash]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Update applies mutate to the record under the registry lock and
// validates the resulting status against the forward-only machine. Field
// updates that keep the status are allowed only on non-terminal records.
// It returns a copy of the updated record.
func (g *Registry) Update(hash string, mutate func(*TransactionRecord)) (*TransactionRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[hash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransaction, hash)
	}

	before := rec.Status
	confirmedBefore := rec.ConfirmedAt

	work := rec.Clone()
	mutate(work)

	if work.Status != before {
		if !transitionAllowed(before, work.Status) {
			return nil, fmt.Errorf("%w: cannot move %s from %s to %s", ErrInvalidState, hash, before, work.Status)
		}
	} else if before.Terminal() {
		return nil, fmt.Errorf("%w: record %s is terminal (%s)", ErrInvalidState, hash, before)
	}

	// ConfirmedAt is write-once at the terminal success transition.
	if !confirmedBefore.IsZero() {
		work.ConfirmedAt = confirmedBefore
	}

	g.records[hash] = work
	if work.Status.Terminal() {
		g.evictLocked()
	}
	return work.Clone(), nil
}

// ListPending returns copies of all records with status Submitted or
// InBlock, in insertion order.
func (g *Registry) ListPending() []*TransactionRecord {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []*TransactionRecord
	for _, hash := range g.order {
		rec, ok := g.records[hash]
		if !ok {
			continue
		}
		if rec.Status == StatusSubmitted || rec.Status == StatusInBlock {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// ListByChain returns copies of all retained records for a chain kind,
// pending and terminal alike, in insertion order.
func (g *Registry) ListByChain(kind ChainKind) []*TransactionRecord {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []*TransactionRecord
	for _, hash := range g.order {
		rec, ok := g.records[hash]
		if !ok {
			continue
		}
		if rec.ChainKind == kind {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// Len returns the number of retained records.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.records)
}

// evictLocked drops the oldest terminal records until the terminal count
// fits the history limit. Pending records are never evicted.
func (g *Registry) evictLocked() {
	terminal := 0
	for _, rec := range g.records {
		if rec.Status.Terminal() {
			terminal++
		}
	}
	if terminal <= g.historyLimit {
		return
	}

	kept := g.order[:0]
	for _, hash := range g.order {
		rec, ok := g.records[hash]
		if !ok {
			continue
		}
		if terminal > g.historyLimit && rec.Status.Terminal() {
			delete(g.records, hash)
			terminal--
			if g.onEvict != nil {
				g.onEvict(rec)
			}
			continue
		}
		kept = append(kept, hash)
	}
	g.order = kept
}
