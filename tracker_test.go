package txtracker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	txtracker "github.com/uliana1one/keypass-txtracker"
	"github.com/uliana1one/keypass-txtracker/internal/breaker"
	"github.com/uliana1one/keypass-txtracker/testutil"
)

// fastDefaults keeps watch and backoff budgets small enough for tests.
func fastDefaults() txtracker.TrackerDefaults {
	return txtracker.TrackerDefaults{
		MaxRetries:       3,
		MinConfirmations: 2,
		WatchTimeout:     5 * time.Second,
		WaitTimeout:      2 * time.Second,
		Backoff: txtracker.BackoffPolicy{
			Mode: txtracker.BackoffLinear,
			Base: time.Nanosecond,
			Max:  time.Millisecond,
		},
		HistoryLimit: 64,
	}
}

func newTwoPhaseTx() *testutil.FakeTx {
	return &testutil.FakeTx{ChainKind: txtracker.ChainKindTwoPhase}
}

func newCountTx() *testutil.FakeTx {
	return &testutil.FakeTx{ChainKind: txtracker.ChainKindConfirmationCount}
}

var testSigner = &testutil.FakeSigner{Name: "did:key:alice"}

func TestSubmitTransaction(t *testing.T) {
	t.Run("registers a submitted record under the chain hash", func(t *testing.T) {
		client := testutil.NewScriptedClient(txtracker.ChainKindTwoPhase)
		client.QueueHash(testutil.TestHash1)

		tr := txtracker.NewTracker(
			txtracker.WithChainClient(client),
			txtracker.WithDefaults(fastDefaults()),
		)
		defer tr.Close()

		rec, err := tr.SubmitTransaction(context.Background(), newTwoPhaseTx(), testSigner, testutil.LabelDIDRegistration)
		require.NoError(t, err)
		assert.Equal(t, testutil.TestHash1, rec.Hash)
		assert.Equal(t, txtracker.StatusSubmitted, rec.Status)
		assert.Equal(t, testutil.LabelDIDRegistration, rec.OperationLabel)
		assert.Equal(t, 3, rec.MaxRetries)
		assert.Zero(t, rec.RetryCount)
		assert.False(t, rec.SubmittedAt.IsZero())

		got, ok := tr.GetTransactionStatus(testutil.TestHash1)
		require.True(t, ok)
		assert.Equal(t, txtracker.StatusSubmitted, got.Status)

		pending := tr.GetPendingTransactions()
		require.Len(t, pending, 1)
		assert.Equal(t, testutil.TestHash1, pending[0].Hash)
	})

	t.Run("registers nothing when the send fails", func(t *testing.T) {
		client := testutil.NewScriptedClient(txtracker.ChainKindTwoPhase)
		client.SetSubmitError(errors.New("node unreachable"))

		tr := txtracker.NewTracker(
			txtracker.WithChainClient(client),
			txtracker.WithDefaults(fastDefaults()),
		)
		defer tr.Close()

		_, err := tr.SubmitTransaction(context.Background(), newTwoPhaseTx(), testSigner, testutil.LabelDIDRegistration)
		assert.ErrorIs(t, err, txtracker.ErrSubmissionFailed)
		assert.Empty(t, tr.GetPendingTransactions())
		assert.Equal(t, 0, tr.Registry().Len())
	})

	t.Run("fails for an unconfigured chain kind", func(t *testing.T) {
		client := testutil.NewScriptedClient(txtracker.ChainKindTwoPhase)
		tr := txtracker.NewTracker(
			txtracker.WithChainClient(client),
			txtracker.WithDefaults(fastDefaults()),
		)
		defer tr.Close()

		_, err := tr.SubmitTransaction(context.Background(), newCountTx(), testSigner, testutil.LabelSBTMinting)
		assert.ErrorIs(t, err, txtracker.ErrSubmissionFailed)
		assert.ErrorIs(t, err, txtracker.ErrChainNotConfigured)
	})

	t.Run("calls the submit hook with a copy", func(t *testing.T) {
		client := testutil.NewScriptedClient(txtracker.ChainKindTwoPhase)
		client.QueueHash(testutil.TestHash1)

		var hooked *txtracker.TransactionRecord
		tr := txtracker.NewTracker(
			txtracker.WithChainClient(client),
			txtracker.WithDefaults(fastDefaults()),
			txtracker.WithSubmitHook(func(rec *txtracker.TransactionRecord) {
				hooked = rec
			}),
		)
		defer tr.Close()

		_, err := tr.SubmitTransaction(context.Background(), newTwoPhaseTx(), testSigner, testutil.LabelDIDRegistration)
		require.NoError(t, err)
		require.NotNil(t, hooked)
		assert.Equal(t, testutil.TestHash1, hooked.Hash)
	})
}

func TestTracker_CircuitBreaker(t *testing.T) {
	client := testutil.NewScriptedClient(txtracker.ChainKindTwoPhase)
	client.SetSubmitError(errors.New("node unreachable"))

	tr := txtracker.NewTracker(
		txtracker.WithChainClient(client),
		txtracker.WithDefaults(fastDefaults()),
	)
	defer tr.Close()

	ctx := context.Background()
	tx := newTwoPhaseTx()

	// Enough consecutive failures trips the breaker.
	for i := 0; i < breaker.DefaultConfig().TripAfter; i++ {
		_, err := tr.SubmitTransaction(ctx, tx, testSigner, testutil.LabelDIDRegistration)
		require.ErrorIs(t, err, txtracker.ErrSubmissionFailed)
		require.NotErrorIs(t, err, txtracker.ErrCircuitBreakerOpen)
	}
	assert.Equal(t, breaker.Open, tr.BreakerState(txtracker.ChainKindTwoPhase).State)

	// Tripped breaker fails fast without touching the client.
	before := len(client.Submissions())
	_, err := tr.SubmitTransaction(ctx, tx, testSigner, testutil.LabelDIDRegistration)
	assert.ErrorIs(t, err, txtracker.ErrCircuitBreakerOpen)
	assert.Len(t, client.Submissions(), before)

	// Reset closes it and submissions flow again.
	tr.ResetBreaker(txtracker.ChainKindTwoPhase)
	client.SetSubmitError(nil)
	client.QueueHash(testutil.TestHash1)
	_, err = tr.SubmitTransaction(ctx, tx, testSigner, testutil.LabelDIDRegistration)
	assert.NoError(t, err)
}

func TestTracker_Close(t *testing.T) {
	client := testutil.NewScriptedClient(txtracker.ChainKindTwoPhase)
	tr := txtracker.NewTracker(
		txtracker.WithChainClient(client),
		txtracker.WithDefaults(fastDefaults()),
	)

	tr.Close()
	// Close is idempotent.
	tr.Close()

	_, err := tr.SubmitTransaction(context.Background(), newTwoPhaseTx(), testSigner, testutil.LabelDIDRegistration)
	assert.ErrorIs(t, err, txtracker.ErrTrackerClosed)
}

func TestTracker_SetDefaults(t *testing.T) {
	tr := txtracker.NewTracker()
	defer tr.Close()

	// Zero values fall back to the package defaults.
	d := tr.Defaults()
	assert.Equal(t, txtracker.DefaultMaxRetries, d.MaxRetries)
	assert.Equal(t, txtracker.DefaultMinConfirmations, d.MinConfirmations)
	assert.Equal(t, txtracker.DefaultWatchTimeout, d.WatchTimeout)

	d.MaxRetries = 7
	tr.SetDefaults(d)
	assert.Equal(t, 7, tr.Defaults().MaxRetries)
}
