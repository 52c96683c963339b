package txtracker_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	txtracker "github.com/uliana1one/keypass-txtracker"
)

func insertRecord(t *testing.T, tr *txtracker.Tracker, rec *txtracker.TransactionRecord) {
	t.Helper()
	require.NoError(t, tr.Registry().Insert(rec))
}

func finalizedRecord(hash string, kind txtracker.ChainKind, latency time.Duration, fee *big.Int) *txtracker.TransactionRecord {
	submitted := time.Now().Add(-time.Hour)
	return &txtracker.TransactionRecord{
		Hash:        hash,
		ChainKind:   kind,
		Status:      txtracker.StatusFinalized,
		SubmittedAt: submitted,
		ConfirmedAt: submitted.Add(latency),
		FeeAmount:   fee,
	}
}

func TestMetricsFor(t *testing.T) {
	t.Run("averages latency and fee over successful records", func(t *testing.T) {
		tr := txtracker.NewTracker()
		defer tr.Close()

		insertRecord(t, tr, finalizedRecord("0xm1", txtracker.ChainKindTwoPhase, 100*time.Millisecond, big.NewInt(100)))
		insertRecord(t, tr, finalizedRecord("0xm2", txtracker.ChainKindTwoPhase, 200*time.Millisecond, big.NewInt(200)))
		insertRecord(t, tr, finalizedRecord("0xm3", txtracker.ChainKindTwoPhase, 300*time.Millisecond, big.NewInt(300)))
		insertRecord(t, tr, &txtracker.TransactionRecord{
			Hash: "0xm4", ChainKind: txtracker.ChainKindTwoPhase,
			Status: txtracker.StatusFailed, SubmittedAt: time.Now(), LastError: "reverted",
		})

		m := tr.MetricsFor(txtracker.ChainKindTwoPhase)
		assert.Equal(t, 4, m.Totals.Total)
		assert.Equal(t, 3, m.Totals.Successful)
		assert.Equal(t, 1, m.Totals.Failed)
		assert.Equal(t, 200*time.Millisecond, m.Performance.AverageLatency)
		require.NotNil(t, m.Performance.AverageFee)
		assert.Equal(t, int64(200), m.Performance.AverageFee.Int64())
		assert.Equal(t, txtracker.HealthHealthy, m.Health.Status)
	})

	t.Run("totals always sum to total", func(t *testing.T) {
		tr := txtracker.NewTracker()
		defer tr.Close()

		insertRecord(t, tr, finalizedRecord("0xm1", txtracker.ChainKindTwoPhase, time.Second, nil))
		insertRecord(t, tr, &txtracker.TransactionRecord{
			Hash: "0xm2", ChainKind: txtracker.ChainKindTwoPhase,
			Status: txtracker.StatusFailed, SubmittedAt: time.Now(), LastError: "reverted",
		})
		insertRecord(t, tr, &txtracker.TransactionRecord{
			Hash: "0xm3", ChainKind: txtracker.ChainKindTwoPhase,
			Status: txtracker.StatusTimedOut, SubmittedAt: time.Now(),
		})
		insertRecord(t, tr, &txtracker.TransactionRecord{
			Hash: "0xm4", ChainKind: txtracker.ChainKindTwoPhase,
			Status: txtracker.StatusInBlock, SubmittedAt: time.Now(),
		})
		insertRecord(t, tr, &txtracker.TransactionRecord{
			Hash: "0xm5", ChainKind: txtracker.ChainKindTwoPhase,
			Status: txtracker.StatusSubmitted, SubmittedAt: time.Now(),
		})

		m := tr.MetricsFor(txtracker.ChainKindTwoPhase)
		assert.Equal(t, 5, m.Totals.Total)
		assert.Equal(t, 1, m.Totals.Successful)
		assert.Equal(t, 2, m.Totals.Failed, "timed-out records count as failed")
		assert.Equal(t, 2, m.Totals.Pending)
		assert.Equal(t, m.Totals.Total, m.Totals.Successful+m.Totals.Failed+m.Totals.Pending)
	})

	t.Run("unhealthy only when failures outnumber successes", func(t *testing.T) {
		tr := txtracker.NewTracker()
		defer tr.Close()

		insertRecord(t, tr, finalizedRecord("0xm1", txtracker.ChainKindConfirmationCount, time.Second, nil))
		insertRecord(t, tr, &txtracker.TransactionRecord{
			Hash: "0xm2", ChainKind: txtracker.ChainKindConfirmationCount,
			Status: txtracker.StatusFailed, SubmittedAt: time.Now(),
		})

		// One success, one failure: still healthy.
		m := tr.MetricsFor(txtracker.ChainKindConfirmationCount)
		assert.Equal(t, txtracker.HealthHealthy, m.Health.Status)

		insertRecord(t, tr, &txtracker.TransactionRecord{
			Hash: "0xm3", ChainKind: txtracker.ChainKindConfirmationCount,
			Status: txtracker.StatusTimedOut, SubmittedAt: time.Now(),
		})

		m = tr.MetricsFor(txtracker.ChainKindConfirmationCount)
		assert.Equal(t, txtracker.HealthUnhealthy, m.Health.Status)
		assert.Equal(t, "closed", m.Health.Breaker)
		assert.False(t, m.Health.LastCheck.IsZero())
	})

	t.Run("chains are scoped independently", func(t *testing.T) {
		tr := txtracker.NewTracker()
		defer tr.Close()

		insertRecord(t, tr, finalizedRecord("0xm1", txtracker.ChainKindTwoPhase, time.Second, nil))
		insertRecord(t, tr, &txtracker.TransactionRecord{
			Hash: "0xm2", ChainKind: txtracker.ChainKindConfirmationCount,
			Status: txtracker.StatusFailed, SubmittedAt: time.Now(),
		})

		assert.Equal(t, 1, tr.MetricsFor(txtracker.ChainKindTwoPhase).Totals.Total)
		assert.Equal(t, 1, tr.MetricsFor(txtracker.ChainKindConfirmationCount).Totals.Total)
	})

	t.Run("empty chain reports healthy zeros", func(t *testing.T) {
		tr := txtracker.NewTracker()
		defer tr.Close()

		m := tr.MetricsFor(txtracker.ChainKindTwoPhase)
		assert.Zero(t, m.Totals.Total)
		assert.Zero(t, m.Performance.AverageLatency)
		assert.Nil(t, m.Performance.AverageFee)
		assert.Equal(t, txtracker.HealthHealthy, m.Health.Status)
	})
}
