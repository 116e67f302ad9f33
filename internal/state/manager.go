// Package state implements the single-owner config/log-ledger actor
// (§4.D, §9 "prefer the actor pattern used here... over shared
// locking"). Every read and mutation goes through a typed message sent
// on a bounded channel; the manager goroutine is the only thing that
// ever touches the underlying config or ledger, which is what lets the
// rest of the façade avoid lock-ordering hazards entirely.
//
// Follows the same single-owner task shape as a write-batch manager
// draining a channel in its own goroutine, generalized here to
// config+ledger ownership.
package state

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/opsfolio/udi-pgp/internal/config"
	"github.com/opsfolio/udi-pgp/internal/ledger"
	"github.com/opsfolio/udi-pgp/internal/metrics"
)

// mailboxSize bounds the manager's inbox; callers block once full,
// which is the intended backpressure of a bounded queue.
const mailboxSize = 256

// UpdateLogEntryKind selects which field an UpdateLogEntry message
// touches (§4.D).
type UpdateLogEntryKind int

const (
	UpdateStartTime UpdateLogEntryKind = iota
	UpdateEndTime
	UpdateEvent
)

// UpdateLogEntry is the payload of the UpdateLogEntry message.
type UpdateLogEntry struct {
	Kind    UpdateLogEntryKind
	At      time.Time
	Event   string
	IsError bool
}

// message is the unexported envelope carried over the manager's
// channel; callers never construct it directly, they call a Manager
// method instead (mirroring the state manager's reply-channel calling
// convention without leaking implementation types).
type message struct {
	kind string

	// ReadConfig / ReadLogEntries
	replyConfig chan *config.Config
	replyLog    chan map[uuid.UUID]*ledger.Entry

	// UpdateCore
	metrics *string
	health  *string

	// InsertSupplier / RemoveSupplier
	supplierID string
	descriptor config.SupplierDescriptor

	// AddLogEntry / UpdateLogEntry
	entry   *ledger.Entry
	queryID uuid.UUID
	update  UpdateLogEntry

	done chan error
}

// Manager is the sender-side handle to the config/ledger actor.
// Everything except Run is safe to call from any goroutine.
type Manager struct {
	verbose bool
	inbox   chan message
}

// NewManager constructs a manager handle. initial is not retained: the
// config the actor owns is the one later passed to Run. Call Run in its
// own goroutine before sending any messages.
func NewManager(initial *config.Config, verbose bool) *Manager {
	return &Manager{verbose: verbose, inbox: make(chan message, mailboxSize)}
}

// Run is the actor loop; it owns cfg and entries for as long as it
// runs and exits when ctx is cancelled (§5 "exactly one long-lived
// config/state manager task").
func (m *Manager) Run(ctx context.Context, cfg *config.Config) {
	entries := make(map[uuid.UUID]*ledger.Entry)

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-m.inbox:
			m.handle(cfg, entries, msg)
		}
	}
}

func (m *Manager) handle(cfg *config.Config, entries map[uuid.UUID]*ledger.Entry, msg message) {
	switch msg.kind {
	case "read_config":
		m.trace("read config")
		msg.replyConfig <- cfg.Clone()

	case "update_core":
		m.trace("updating core config")
		if msg.metrics != nil {
			cfg.Metrics = *msg.metrics
		}
		if msg.health != nil {
			cfg.Health = *msg.health
		}
		msg.done <- nil

	case "insert_supplier":
		m.trace(fmt.Sprintf("inserting supplier %s", msg.supplierID))
		cfg.Suppliers[msg.supplierID] = msg.descriptor
		msg.done <- nil

	case "remove_supplier":
		m.trace(fmt.Sprintf("removing supplier %s", msg.supplierID))
		delete(cfg.Suppliers, msg.supplierID)
		msg.done <- nil

	case "read_log_entries":
		m.trace("read log entries")
		snapshot := make(map[uuid.UUID]*ledger.Entry, len(entries))
		for id, e := range entries {
			snapshot[id] = e.Clone()
		}
		msg.replyLog <- snapshot

	case "add_log_entry":
		if _, exists := entries[msg.entry.QueryID]; !exists {
			entries[msg.entry.QueryID] = msg.entry
		}
		metrics.LedgerSize.Set(float64(len(entries)))
		msg.done <- nil

	case "update_log_entry":
		entry, ok := entries[msg.queryID]
		if !ok {
			msg.done <- fmt.Errorf("no log entry for query %s", msg.queryID)
			return
		}
		switch msg.update.Kind {
		case UpdateStartTime:
			t := msg.update.At
			entry.StartedAt = &t
		case UpdateEndTime:
			t := msg.update.At
			entry.FinishedAt = &t
		case UpdateEvent:
			entry.Event(msg.update.Event, msg.update.IsError)
		}
		msg.done <- nil
	}
}

func (m *Manager) trace(s string) {
	if m.verbose {
		log.Printf("[state] %s", s)
	}
}

// ReadConfig returns a deep-copied snapshot of the current config
// (§4.D ReadConfig).
func (m *Manager) ReadConfig(ctx context.Context) (*config.Config, error) {
	reply := make(chan *config.Config, 1)
	select {
	case m.inbox <- message{kind: "read_config", replyConfig: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case cfg := <-reply:
		return cfg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// UpdateCore sets the metrics and health socket addresses (nil leaves
// a field unchanged).
func (m *Manager) UpdateCore(ctx context.Context, metrics, health *string) error {
	return m.send(ctx, message{kind: "update_core", metrics: metrics, health: health})
}

// InsertSupplier upserts a descriptor into the config (§4.D).
func (m *Manager) InsertSupplier(ctx context.Context, id string, desc config.SupplierDescriptor) error {
	return m.send(ctx, message{kind: "insert_supplier", supplierID: id, descriptor: desc})
}

// RemoveSupplier deletes a descriptor; idempotent.
func (m *Manager) RemoveSupplier(ctx context.Context, id string) error {
	return m.send(ctx, message{kind: "remove_supplier", supplierID: id})
}

// ReadLogEntries returns a snapshot of the observability ledger keyed
// by query id.
func (m *Manager) ReadLogEntries(ctx context.Context) (map[uuid.UUID]*ledger.Entry, error) {
	reply := make(chan map[uuid.UUID]*ledger.Entry, 1)
	select {
	case m.inbox <- message{kind: "read_log_entries", replyLog: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case entries := <-reply:
		return entries, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AddLogEntry inserts entry if its query id is not already present
// (§4.D: "no-op otherwise").
func (m *Manager) AddLogEntry(ctx context.Context, entry *ledger.Entry) error {
	return m.send(ctx, message{kind: "add_log_entry", entry: entry})
}

// UpdateLogEntry applies one field update to the entry for queryID.
func (m *Manager) UpdateLogEntry(ctx context.Context, queryID uuid.UUID, update UpdateLogEntry) error {
	return m.send(ctx, message{kind: "update_log_entry", queryID: queryID, update: update})
}

func (m *Manager) send(ctx context.Context, msg message) error {
	msg.done = make(chan error, 1)
	select {
	case m.inbox <- msg:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-msg.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
