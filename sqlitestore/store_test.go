package sqlitestore

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	txtracker "github.com/uliana1one/keypass-txtracker"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testRecord(hash string, submitted time.Time) *txtracker.TransactionRecord {
	return &txtracker.TransactionRecord{
		Hash:              hash,
		ChainKind:         txtracker.ChainKindTwoPhase,
		OperationLabel:    "DID Registration",
		Status:            txtracker.StatusFinalized,
		SubmittedAt:       submitted,
		ConfirmedAt:       submitted.Add(12 * time.Second),
		BlockNumber:       1_234_567,
		BlockHash:         "0xabc",
		FeeAmount:         big.NewInt(125_000_000),
		GasUsed:           21000,
		ConfirmationCount: 0,
		Events: []txtracker.ChainEvent{
			{Name: "did.DidCreated", Data: "did:kilt:alice"},
		},
		RetryCount:  1,
		MaxRetries:  3,
		RetriedFrom: "0xdef",
	}
}

func TestStore_SaveAndList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	older := testRecord("0xa1", time.Now().Add(-2*time.Hour))
	newer := testRecord("0xa2", time.Now().Add(-time.Hour))
	require.NoError(t, store.Save(ctx, newer))
	require.NoError(t, store.Save(ctx, older))

	got, err := store.List(ctx, txtracker.ChainKindTwoPhase)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Oldest first, regardless of save order.
	assert.Equal(t, "0xa1", got[0].Hash)
	assert.Equal(t, "0xa2", got[1].Hash)

	rec := got[0]
	assert.Equal(t, txtracker.StatusFinalized, rec.Status)
	assert.Equal(t, "DID Registration", rec.OperationLabel)
	assert.Equal(t, uint64(1_234_567), rec.BlockNumber)
	assert.Equal(t, int64(125_000_000), rec.FeeAmount.Int64())
	assert.Equal(t, uint64(21000), rec.GasUsed)
	require.Len(t, rec.Events, 1)
	assert.Equal(t, "did.DidCreated", rec.Events[0].Name)
	assert.Equal(t, 1, rec.RetryCount)
	assert.Equal(t, "0xdef", rec.RetriedFrom)
	assert.True(t, rec.ConfirmedAt.Sub(rec.SubmittedAt) == 12*time.Second)
}

func TestStore_ListScopesByChain(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rec := testRecord("0xa1", time.Now())
	require.NoError(t, store.Save(ctx, rec))

	other := testRecord("0xa2", time.Now())
	other.ChainKind = txtracker.ChainKindConfirmationCount
	require.NoError(t, store.Save(ctx, other))

	got, err := store.List(ctx, txtracker.ChainKindConfirmationCount)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "0xa2", got[0].Hash)
}

func TestStore_SaveReplacesSameHash(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rec := testRecord("0xa1", time.Now())
	require.NoError(t, store.Save(ctx, rec))

	rec.LastError = "superseded"
	require.NoError(t, store.Save(ctx, rec))

	got, err := store.List(ctx, txtracker.ChainKindTwoPhase)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "superseded", got[0].LastError)
}

func TestStore_HandlesSparseRecords(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// A timed-out record has no fee, no events, no confirmation time.
	rec := &txtracker.TransactionRecord{
		Hash:        "0xa1",
		ChainKind:   txtracker.ChainKindTwoPhase,
		Status:      txtracker.StatusTimedOut,
		SubmittedAt: time.Now(),
		LastError:   "no terminal chain event within 5m0s",
	}
	require.NoError(t, store.Save(ctx, rec))

	got, err := store.List(ctx, txtracker.ChainKindTwoPhase)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].FeeAmount)
	assert.Empty(t, got[0].Events)
	assert.True(t, got[0].ConfirmedAt.IsZero())
	assert.Equal(t, rec.LastError, got[0].LastError)
}

func TestStore_Prune(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testRecord("0xold", time.Now().Add(-48*time.Hour))))
	require.NoError(t, store.Save(ctx, testRecord("0xnew", time.Now())))

	pruned, err := store.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	got, err := store.List(ctx, txtracker.ChainKindTwoPhase)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "0xnew", got[0].Hash)
}
