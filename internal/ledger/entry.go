// Package ledger implements the observability ledger (§4.H): the
// per-query lifecycle record exposed to clients through the
// udi_pgp_observe_query_exec introspection table.
//
// Modeled as a QueryLogEntry/Elaboration pair, with the same
// metrics-labelling discipline used in internal/metrics.
package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Status is the derived exec_status column of udi_pgp_observe_query_exec.
type Status string

const (
	StatusRunning Status = "running"
	StatusOK      Status = "ok"
	StatusError   Status = "error"
)

// Elaboration is the ordered list of lifecycle events recorded against a
// query, rendered as the JSON-array `elaboration` column.
type Elaboration struct {
	Events []string `json:"events"`
}

// Entry is one record in the observability ledger (§3 "Query log
// entry"). It is created at query start and mutated in place by the
// state manager for the lifetime of the process.
type Entry struct {
	QueryID      uuid.UUID
	QueryText    string
	StartedAt    *time.Time
	FinishedAt   *time.Time
	Elaboration  Elaboration
	ExecMessages []string
}

// NewEntry creates a fresh ledger entry for a query about to execute.
func NewEntry(queryText string) *Entry {
	return &Entry{
		QueryID:   uuid.New(),
		QueryText: queryText,
	}
}

// Event appends a lifecycle event; ERROR-level events are additionally
// recorded into ExecMessages so the query-exec table can surface them
// in its exec_msg column (§4.D UpdateLogEntry::Event).
func (e *Entry) Event(msg string, isError bool) {
	e.Elaboration.Events = append(e.Elaboration.Events, msg)
	if isError {
		e.ExecMessages = append(e.ExecMessages, msg)
	}
}

// Status derives exec_status per §4.H: an entry with any recorded error
// message is 'error'; otherwise 'ok' once finished, else 'running'.
func (e *Entry) Status() Status {
	if len(e.ExecMessages) > 0 {
		return StatusError
	}
	if e.FinishedAt != nil {
		return StatusOK
	}
	return StatusRunning
}

// Clone returns a deep-enough copy for safe hand-off outside the state
// manager's single-writer goroutine (§4.D: "readers receive
// snapshots by value").
func (e *Entry) Clone() *Entry {
	cp := *e
	cp.Elaboration.Events = append([]string(nil), e.Elaboration.Events...)
	cp.ExecMessages = append([]string(nil), e.ExecMessages...)
	if e.StartedAt != nil {
		t := *e.StartedAt
		cp.StartedAt = &t
	}
	if e.FinishedAt != nil {
		t := *e.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}
