package txtracker_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	txtracker "github.com/uliana1one/keypass-txtracker"
	"github.com/uliana1one/keypass-txtracker/testutil"
)

func TestSubmitRequest(t *testing.T) {
	t.Run("builds and submits with overrides", func(t *testing.T) {
		client := testutil.NewScriptedClient(txtracker.ChainKindTwoPhase)
		client.QueueHash(testutil.TestHash1)

		tr := txtracker.NewTracker(
			txtracker.WithChainClient(client),
			txtracker.WithDefaults(fastDefaults()),
		)
		defer tr.Close()

		rec, err := tr.R().
			SetTx(newTwoPhaseTx()).
			SetSigner(testSigner).
			SetLabel(testutil.LabelSBTMinting).
			SetMaxRetries(5).
			Submit(context.Background())
		require.NoError(t, err)
		assert.Equal(t, testutil.LabelSBTMinting, rec.OperationLabel)
		assert.Equal(t, 5, rec.MaxRetries)
	})

	t.Run("inherits the default retry bound", func(t *testing.T) {
		client := testutil.NewScriptedClient(txtracker.ChainKindTwoPhase)
		client.QueueHash(testutil.TestHash1)

		tr := txtracker.NewTracker(
			txtracker.WithChainClient(client),
			txtracker.WithDefaults(fastDefaults()),
		)
		defer tr.Close()

		rec, err := tr.R().SetTx(newTwoPhaseTx()).SetSigner(testSigner).Submit(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, rec.MaxRetries)
	})

	t.Run("rejects submission without a transaction", func(t *testing.T) {
		tr := txtracker.NewTracker(txtracker.WithDefaults(fastDefaults()))
		defer tr.Close()

		_, err := tr.R().SetSigner(testSigner).Submit(context.Background())
		assert.ErrorIs(t, err, txtracker.ErrSubmissionFailed)
	})

	t.Run("estimates fees through the request", func(t *testing.T) {
		client := testutil.NewScriptedClient(txtracker.ChainKindTwoPhase)
		client.SetFeeEstimate(&txtracker.FeeEstimate{Amount: big.NewInt(42), Unit: "weight"}, nil)

		tr := txtracker.NewTracker(
			txtracker.WithChainClient(client),
			txtracker.WithDefaults(fastDefaults()),
		)
		defer tr.Close()

		est, err := tr.R().SetTx(newTwoPhaseTx()).SetSigner(testSigner).EstimateFee(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(42), est.Amount.Int64())
	})

	t.Run("submit and wait returns the terminal record", func(t *testing.T) {
		client := testutil.NewScriptedClient(txtracker.ChainKindTwoPhase)
		client.QueueHash(testutil.TestHash1)
		client.Script(testutil.TestHash1,
			txtracker.InBlockEvent{BlockNumber: testutil.TestBlockNumber, BlockHash: testutil.TestBlockHash},
			txtracker.FinalizedEvent{},
		)

		tr := txtracker.NewTracker(
			txtracker.WithChainClient(client),
			txtracker.WithDefaults(fastDefaults()),
		)
		defer tr.Close()

		rec, err := tr.R().
			SetTx(newTwoPhaseTx()).
			SetSigner(testSigner).
			SetLabel(testutil.LabelDIDRegistration).
			SubmitAndWait(context.Background(), time.Second)
		require.NoError(t, err)
		assert.Equal(t, txtracker.StatusFinalized, rec.Status)
	})
}
