package txtracker

// SubmitHook is called after a transaction was accepted by a node and its
// record registered. The record is a copy; mutating it has no effect.
type SubmitHook func(rec *TransactionRecord)

// TerminalHook is called once per record when it reaches Finalized,
// Failed or TimedOut.
type TerminalHook func(rec *TransactionRecord)

// RetryHook is called after a retry produced a new record. old is the
// terminated record, renewed the fresh submission linked to it.
type RetryHook func(old, renewed *TransactionRecord)
