package testutil

import (
	"context"
	"fmt"
	"sync"

	txtracker "github.com/uliana1one/keypass-txtracker"
)

// ============================================================
// Fake Transactions and Signers
// ============================================================

// FakeTx is a prepared transaction stub carrying only a chain kind.
type FakeTx struct {
	ChainKind txtracker.ChainKind
}

// Kind reports the stubbed chain family.
func (t *FakeTx) Kind() txtracker.ChainKind { return t.ChainKind }

// FakeSigner is a signer stub identified by name.
type FakeSigner struct {
	Name string
}

// ID returns the stubbed signer identity.
func (s *FakeSigner) ID() string { return s.Name }

// ============================================================
// Scripted Chain Client
// ============================================================

// SubmitCall records one SubmitSigned invocation.
type SubmitCall struct {
	Hash   string
	Signer string
}

// ScriptedClient is an in-memory txtracker.ChainClient. Submissions pop
// hashes off a queue; subscriptions replay a pre-scripted event sequence
// and then stay open for live Emit calls.
type ScriptedClient struct {
	kind txtracker.ChainKind

	mu             sync.Mutex
	hashQueue      []string
	submitErr      error
	submitted      []SubmitCall
	scripts        map[string][]txtracker.StatusEvent
	subs           map[string][]*scriptedSubscription
	subscribeCount map[string]int
	subscribeErr   error
	feeEstimate    *txtracker.FeeEstimate
	feeErr         error
	blocks         map[string]*txtracker.BlockInfo
}

var _ txtracker.ChainClient = (*ScriptedClient)(nil)

// NewScriptedClient builds a scripted client serving one chain kind.
func NewScriptedClient(kind txtracker.ChainKind) *ScriptedClient {
	return &ScriptedClient{
		kind:           kind,
		scripts:        make(map[string][]txtracker.StatusEvent),
		subs:           make(map[string][]*scriptedSubscription),
		subscribeCount: make(map[string]int),
		blocks:         make(map[string]*txtracker.BlockInfo),
	}
}

// Kind reports the configured chain family.
func (c *ScriptedClient) Kind() txtracker.ChainKind { return c.kind }

// QueueHash appends hashes that successive SubmitSigned calls return.
func (c *ScriptedClient) QueueHash(hashes ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hashQueue = append(c.hashQueue, hashes...)
}

// SetSubmitError makes subsequent SubmitSigned calls fail with err.
// Pass nil to restore normal behavior.
func (c *ScriptedClient) SetSubmitError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitErr = err
}

// SetSubscribeError makes subsequent SubscribeStatus calls fail with err.
func (c *ScriptedClient) SetSubscribeError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribeErr = err
}

// Script registers events replayed as soon as hash is subscribed to.
func (c *ScriptedClient) Script(hash string, events ...txtracker.StatusEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[hash] = append(c.scripts[hash], events...)
}

// SetFeeEstimate fixes the QueryFeeEstimate result.
func (c *ScriptedClient) SetFeeEstimate(est *txtracker.FeeEstimate, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.feeEstimate = est
	c.feeErr = err
}

// SetBlock registers block metadata served by QueryBlock for ref.
func (c *ScriptedClient) SetBlock(ref string, info *txtracker.BlockInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks[ref] = info
}

// Submissions returns every recorded SubmitSigned call.
func (c *ScriptedClient) Submissions() []SubmitCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SubmitCall, len(c.submitted))
	copy(out, c.submitted)
	return out
}

// SubscribeCount reports how many subscriptions were opened for hash.
func (c *ScriptedClient) SubscribeCount(hash string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribeCount[hash]
}

// Emit pushes a live event to every open subscription for hash. It
// returns how many subscriptions received the event.
func (c *ScriptedClient) Emit(hash string, ev txtracker.StatusEvent) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	delivered := 0
	for _, sub := range c.subs[hash] {
		if sub.deliver(ev) {
			delivered++
		}
	}
	return delivered
}

// FailStream sends a subscription failure to every open subscription for
// hash.
func (c *ScriptedClient) FailStream(hash string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.subs[hash] {
		sub.fail(err)
	}
}

// CloseStream closes the event channel of every open subscription for
// hash, simulating the connector ending the stream.
func (c *ScriptedClient) CloseStream(hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.subs[hash] {
		sub.close()
	}
}

// SubmitSigned pops the next queued hash and records the call.
func (c *ScriptedClient) SubmitSigned(_ context.Context, _ txtracker.PreparedTx, signer txtracker.Signer) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitErr != nil {
		return "", c.submitErr
	}
	if len(c.hashQueue) == 0 {
		return "", fmt.Errorf("scripted client: no queued hashes left")
	}
	hash := c.hashQueue[0]
	c.hashQueue = c.hashQueue[1:]
	c.submitted = append(c.submitted, SubmitCall{Hash: hash, Signer: signer.ID()})
	return hash, nil
}

// SubscribeStatus opens a subscription preloaded with the scripted
// events for hash.
func (c *ScriptedClient) SubscribeStatus(_ context.Context, hash string) (txtracker.StatusSubscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribeCount[hash]++
	if c.subscribeErr != nil {
		return nil, c.subscribeErr
	}

	script := c.scripts[hash]
	sub := &scriptedSubscription{
		events: make(chan txtracker.StatusEvent, len(script)+16),
		errs:   make(chan error, 1),
	}
	for _, ev := range script {
		sub.events <- ev
	}
	c.subs[hash] = append(c.subs[hash], sub)
	return sub, nil
}

// QueryFeeEstimate returns the fixed estimate.
func (c *ScriptedClient) QueryFeeEstimate(_ context.Context, _ txtracker.PreparedTx, _ txtracker.Signer) (*txtracker.FeeEstimate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.feeErr != nil {
		return nil, c.feeErr
	}
	return c.feeEstimate, nil
}

// QueryBlock returns registered block metadata.
func (c *ScriptedClient) QueryBlock(_ context.Context, ref string) (*txtracker.BlockInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.blocks[ref]
	if !ok {
		return nil, fmt.Errorf("scripted client: no block registered for %q", ref)
	}
	return info, nil
}

type scriptedSubscription struct {
	events chan txtracker.StatusEvent
	errs   chan error

	mu           sync.Mutex
	closed       bool
	unsubscribed bool
}

func (s *scriptedSubscription) Events() <-chan txtracker.StatusEvent { return s.events }
func (s *scriptedSubscription) Err() <-chan error                    { return s.errs }

func (s *scriptedSubscription) Unsubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribed = true
}

func (s *scriptedSubscription) deliver(ev txtracker.StatusEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.unsubscribed {
		return false
	}
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

func (s *scriptedSubscription) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.unsubscribed {
		return
	}
	select {
	case s.errs <- err:
	default:
	}
}

func (s *scriptedSubscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}
