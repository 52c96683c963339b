// Package breaker implements a small circuit breaker that protects chain
// client calls from a failing node: after enough consecutive failures the
// breaker opens and calls fail fast until a cooldown passes and a probe
// succeeds.
package breaker

import (
	"sync"
	"time"
)

// State of the breaker.
type State int

const (
	// Closed lets all calls through.
	Closed State = iota
	// Open fails all calls fast.
	Open
	// Probing lets a single call through to test the chain.
	Probing
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case Probing:
		return "probing"
	default:
		return "unknown"
	}
}

// Config tunes the breaker.
type Config struct {
	// TripAfter is the number of consecutive failures that opens the
	// breaker.
	TripAfter int
	// CloseAfter is the number of consecutive probe successes that
	// closes it again.
	CloseAfter int
	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration
}

// DefaultConfig returns the tuning used by the tracker.
func DefaultConfig() Config {
	return Config{
		TripAfter:  5,
		CloseAfter: 2,
		Cooldown:   30 * time.Second,
	}
}

// Breaker is safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	cfg   Config
	state State

	failures  int
	successes int
	trippedAt time.Time
}

// New creates a breaker. Zero or negative config fields fall back to the
// defaults.
func New(cfg Config) *Breaker {
	def := DefaultConfig()
	if cfg.TripAfter <= 0 {
		cfg.TripAfter = def.TripAfter
	}
	if cfg.CloseAfter <= 0 {
		cfg.CloseAfter = def.CloseAfter
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	return &Breaker{cfg: cfg, state: Closed}
}

// stateLocked resolves Open into Probing once the cooldown elapsed.
func (b *Breaker) stateLocked() State {
	if b.state == Open && time.Since(b.trippedAt) >= b.cfg.Cooldown {
		return Probing
	}
	return b.state
}

// Allow reports whether a call may proceed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked() != Open
}

// RecordSuccess notes a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.successes++

	if b.stateLocked() == Probing && b.successes >= b.cfg.CloseAfter {
		b.state = Closed
		b.successes = 0
	}
}

// RecordFailure notes a failed call, possibly opening the breaker.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successes = 0
	b.failures++

	switch b.stateLocked() {
	case Closed:
		if b.failures >= b.cfg.TripAfter {
			b.state = Open
			b.trippedAt = time.Now()
		}
	case Probing:
		// A failed probe re-opens the breaker for another cooldown.
		b.state = Open
		b.trippedAt = time.Now()
	}
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = Closed
	b.failures = 0
	b.successes = 0
}

// Snapshot is a point-in-time view of the breaker.
type Snapshot struct {
	State     State
	Failures  int
	Successes int
	TrippedAt time.Time
}

// Snapshot returns the current breaker state and counters.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		State:     b.stateLocked(),
		Failures:  b.failures,
		Successes: b.successes,
		TrippedAt: b.trippedAt,
	}
}
