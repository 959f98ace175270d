package provenance

import (
	"context"
	"time"
)

// Entry statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Entry is one auditable action taken on a document during processing.
// Entries are immutable once appended; ordering is append-only and
// timestamp-monotonic per run.
type Entry struct {
	Action    string                 `json:"action"`
	Actor     string                 `json:"actor"`
	Timestamp time.Time              `json:"timestamp"`
	Status    string                 `json:"status"`
	Input     map[string]interface{} `json:"input,omitempty"`
	Output    map[string]interface{} `json:"output,omitempty"`
	Error     string                 `json:"error,omitempty"`
	// Meta carries agent-specific detail such as the iteration list and
	// the final thought produced by a reasoning loop.
	Meta map[string]interface{} `json:"meta,omitempty"`
}

// NewEntry creates an entry stamped with the current UTC time.
func NewEntry(action, actor, status string) Entry {
	return Entry{
		Action:    action,
		Actor:     actor,
		Timestamp: time.Now().UTC(),
		Status:    status,
	}
}

// WithError returns a copy of the entry carrying the error string and
// error status.
func (e Entry) WithError(err error) Entry {
	e.Status = StatusError
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// Ledger is the durable side of the provenance dual-write. The in-memory
// chain on the run record and the ledger reflect the same events but are
// not required to be transactionally atomic with each other.
type Ledger interface {
	Append(ctx context.Context, filename string, entry Entry) error
}

// NopLedger discards entries. Used when no durable backend is configured
// and by tests that only exercise the in-memory chain.
type NopLedger struct{}

func (NopLedger) Append(ctx context.Context, filename string, entry Entry) error { return nil }
