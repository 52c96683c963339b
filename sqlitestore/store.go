// Package sqlitestore archives terminal transaction records in a SQLite
// database. It backs the txtracker.HistoryStore interface so records
// evicted from the bounded in-memory history survive process restarts.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	_ "modernc.org/sqlite"

	txtracker "github.com/uliana1one/keypass-txtracker"
)

const schema = `
CREATE TABLE IF NOT EXISTS tx_history (
	hash               TEXT PRIMARY KEY,
	chain_kind         TEXT NOT NULL,
	operation_label    TEXT NOT NULL,
	status             TEXT NOT NULL,
	submitted_at       INTEGER NOT NULL,
	confirmed_at       INTEGER NOT NULL,
	block_number       INTEGER NOT NULL,
	block_hash         TEXT NOT NULL,
	fee_amount         TEXT NOT NULL,
	gas_used           INTEGER NOT NULL,
	confirmation_count INTEGER NOT NULL,
	events             TEXT NOT NULL,
	retry_count        INTEGER NOT NULL,
	max_retries        INTEGER NOT NULL,
	retried_from       TEXT NOT NULL,
	last_error         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tx_history_chain_kind ON tx_history (chain_kind, submitted_at);
`

// Store is a SQLite-backed txtracker.HistoryStore.
type Store struct {
	db *sql.DB
}

var _ txtracker.HistoryStore = (*Store)(nil)

// Open opens (creating if needed) the database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("couldn't open sqlite db %s: %w", path, err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent watch goroutines.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("couldn't init tx_history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save archives a terminal record, replacing any previous row for the
// same hash.
func (s *Store) Save(ctx context.Context, rec *txtracker.TransactionRecord) error {
	events, err := json.Marshal(rec.Events)
	if err != nil {
		return fmt.Errorf("couldn't encode events for %s: %w", rec.Hash, err)
	}
	fee := ""
	if rec.FeeAmount != nil {
		fee = rec.FeeAmount.String()
	}
	confirmedAt := int64(0)
	if !rec.ConfirmedAt.IsZero() {
		confirmedAt = rec.ConfirmedAt.UnixNano()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO tx_history (
			hash, chain_kind, operation_label, status,
			submitted_at, confirmed_at, block_number, block_hash,
			fee_amount, gas_used, confirmation_count, events,
			retry_count, max_retries, retried_from, last_error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Hash, string(rec.ChainKind), rec.OperationLabel, string(rec.Status),
		rec.SubmittedAt.UnixNano(), confirmedAt, rec.BlockNumber, rec.BlockHash,
		fee, rec.GasUsed, rec.ConfirmationCount, string(events),
		rec.RetryCount, rec.MaxRetries, rec.RetriedFrom, rec.LastError,
	)
	if err != nil {
		return fmt.Errorf("couldn't save record %s: %w", rec.Hash, err)
	}
	return nil
}

// List returns archived records for a chain kind, oldest first.
func (s *Store) List(ctx context.Context, kind txtracker.ChainKind) ([]*txtracker.TransactionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hash, chain_kind, operation_label, status,
			submitted_at, confirmed_at, block_number, block_hash,
			fee_amount, gas_used, confirmation_count, events,
			retry_count, max_retries, retried_from, last_error
		FROM tx_history WHERE chain_kind = ? ORDER BY submitted_at ASC`,
		string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("couldn't list records for %s: %w", kind, err)
	}
	defer rows.Close()

	var records []*txtracker.TransactionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("couldn't iterate records for %s: %w", kind, err)
	}
	return records, nil
}

// Prune removes records submitted more than age ago.
func (s *Store) Prune(ctx context.Context, age time.Duration) (int, error) {
	cutoff := time.Now().Add(-age).UnixNano()
	res, err := s.db.ExecContext(ctx, `DELETE FROM tx_history WHERE submitted_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("couldn't prune records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("couldn't count pruned records: %w", err)
	}
	return int(n), nil
}

func scanRecord(rows *sql.Rows) (*txtracker.TransactionRecord, error) {
	var (
		rec                      txtracker.TransactionRecord
		chainKind, status        string
		submittedAt, confirmedAt int64
		fee, events              string
	)
	if err := rows.Scan(
		&rec.Hash, &chainKind, &rec.OperationLabel, &status,
		&submittedAt, &confirmedAt, &rec.BlockNumber, &rec.BlockHash,
		&fee, &rec.GasUsed, &rec.ConfirmationCount, &events,
		&rec.RetryCount, &rec.MaxRetries, &rec.RetriedFrom, &rec.LastError,
	); err != nil {
		return nil, fmt.Errorf("couldn't scan record row: %w", err)
	}
	rec.ChainKind = txtracker.ChainKind(chainKind)
	rec.Status = txtracker.Status(status)
	rec.SubmittedAt = time.Unix(0, submittedAt)
	if confirmedAt != 0 {
		rec.ConfirmedAt = time.Unix(0, confirmedAt)
	}
	if fee != "" {
		amount, ok := new(big.Int).SetString(fee, 10)
		if !ok {
			return nil, fmt.Errorf("malformed fee amount %q for %s", fee, rec.Hash)
		}
		rec.FeeAmount = amount
	}
	if events != "" && events != "null" {
		if err := json.Unmarshal([]byte(events), &rec.Events); err != nil {
			return nil, fmt.Errorf("couldn't decode events for %s: %w", rec.Hash, err)
		}
	}
	return &rec, nil
}
