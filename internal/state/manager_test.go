package state

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/opsfolio/udi-pgp/internal/config"
	"github.com/opsfolio/udi-pgp/internal/ledger"
)

func startManager(t *testing.T, cfg *config.Config) (*Manager, context.CancelFunc) {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{Suppliers: map[string]config.SupplierDescriptor{}}
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager(cfg, false)
	go m.Run(ctx, cfg)
	return m, cancel
}

func TestManager_ReadConfigReturnsSnapshot(t *testing.T) {
	m, cancel := startManager(t, &config.Config{
		Addr:      ":5432",
		Suppliers: map[string]config.SupplierDescriptor{},
	})
	defer cancel()

	ctx := context.Background()
	cfg, err := m.ReadConfig(ctx)
	if err != nil {
		t.Fatalf("ReadConfig failed: %v", err)
	}
	if cfg.Addr != ":5432" {
		t.Errorf("Addr = %q, want :5432", cfg.Addr)
	}
}

func TestManager_InsertSupplierVisibleInNextRead(t *testing.T) {
	m, cancel := startManager(t, nil)
	defer cancel()
	ctx := context.Background()

	desc := config.SupplierDescriptor{ID: "s1", Type: "exec"}
	if err := m.InsertSupplier(ctx, "s1", desc); err != nil {
		t.Fatalf("InsertSupplier failed: %v", err)
	}

	cfg, err := m.ReadConfig(ctx)
	if err != nil {
		t.Fatalf("ReadConfig failed: %v", err)
	}
	if _, ok := cfg.Suppliers["s1"]; !ok {
		t.Error("inserted supplier not visible in subsequent ReadConfig")
	}
}

func TestManager_RemoveSupplier(t *testing.T) {
	m, cancel := startManager(t, nil)
	defer cancel()
	ctx := context.Background()

	m.InsertSupplier(ctx, "s1", config.SupplierDescriptor{ID: "s1"})
	if err := m.RemoveSupplier(ctx, "s1"); err != nil {
		t.Fatalf("RemoveSupplier failed: %v", err)
	}

	cfg, err := m.ReadConfig(ctx)
	if err != nil {
		t.Fatalf("ReadConfig failed: %v", err)
	}
	if _, ok := cfg.Suppliers["s1"]; ok {
		t.Error("supplier still present after RemoveSupplier")
	}
}

func TestManager_RemoveSupplierAbsentIsIdempotent(t *testing.T) {
	m, cancel := startManager(t, nil)
	defer cancel()
	if err := m.RemoveSupplier(context.Background(), "nope"); err != nil {
		t.Fatalf("RemoveSupplier on an absent id returned an error: %v", err)
	}
}

func TestManager_UpdateCoreOnlyTouchesNonNilFields(t *testing.T) {
	m, cancel := startManager(t, &config.Config{Metrics: ":9000", Health: ":9001", Suppliers: map[string]config.SupplierDescriptor{}})
	defer cancel()
	ctx := context.Background()

	newMetrics := ":9100"
	if err := m.UpdateCore(ctx, &newMetrics, nil); err != nil {
		t.Fatalf("UpdateCore failed: %v", err)
	}

	cfg, err := m.ReadConfig(ctx)
	if err != nil {
		t.Fatalf("ReadConfig failed: %v", err)
	}
	if cfg.Metrics != ":9100" {
		t.Errorf("Metrics = %q, want :9100", cfg.Metrics)
	}
	if cfg.Health != ":9001" {
		t.Errorf("Health = %q, want unchanged :9001", cfg.Health)
	}
}

func TestManager_AddLogEntryIsIdempotent(t *testing.T) {
	m, cancel := startManager(t, nil)
	defer cancel()
	ctx := context.Background()

	entry := ledger.NewEntry("SELECT 1")
	if err := m.AddLogEntry(ctx, entry); err != nil {
		t.Fatalf("AddLogEntry failed: %v", err)
	}

	replacement := ledger.NewEntry("SELECT 2")
	replacement.QueryID = entry.QueryID
	if err := m.AddLogEntry(ctx, replacement); err != nil {
		t.Fatalf("second AddLogEntry failed: %v", err)
	}

	entries, err := m.ReadLogEntries(ctx)
	if err != nil {
		t.Fatalf("ReadLogEntries failed: %v", err)
	}
	got, ok := entries[entry.QueryID]
	if !ok {
		t.Fatal("entry missing from ledger snapshot")
	}
	if got.QueryText != "SELECT 1" {
		t.Errorf("QueryText = %q, want SELECT 1 (first insert wins)", got.QueryText)
	}
}

func TestManager_UpdateLogEntryLifecycle(t *testing.T) {
	m, cancel := startManager(t, nil)
	defer cancel()
	ctx := context.Background()

	entry := ledger.NewEntry("SELECT 1")
	if err := m.AddLogEntry(ctx, entry); err != nil {
		t.Fatalf("AddLogEntry failed: %v", err)
	}

	start := time.Now()
	if err := m.UpdateLogEntry(ctx, entry.QueryID, UpdateLogEntry{Kind: UpdateStartTime, At: start}); err != nil {
		t.Fatalf("UpdateLogEntry(start) failed: %v", err)
	}

	finish := start.Add(time.Millisecond)
	if err := m.UpdateLogEntry(ctx, entry.QueryID, UpdateLogEntry{Kind: UpdateEndTime, At: finish}); err != nil {
		t.Fatalf("UpdateLogEntry(end) failed: %v", err)
	}

	if err := m.UpdateLogEntry(ctx, entry.QueryID, UpdateLogEntry{Kind: UpdateEvent, Event: "done", IsError: false}); err != nil {
		t.Fatalf("UpdateLogEntry(event) failed: %v", err)
	}

	entries, err := m.ReadLogEntries(ctx)
	if err != nil {
		t.Fatalf("ReadLogEntries failed: %v", err)
	}
	got := entries[entry.QueryID]
	if got.StartedAt == nil || got.FinishedAt == nil {
		t.Fatal("expected both StartedAt and FinishedAt to be set")
	}
	if got.StartedAt.After(*got.FinishedAt) {
		t.Error("StartedAt is after FinishedAt")
	}
	if len(got.Elaboration.Events) != 1 || got.Elaboration.Events[0] != "done" {
		t.Errorf("Elaboration.Events = %v, want [done]", got.Elaboration.Events)
	}
	if got.Status() != ledger.StatusOK {
		t.Errorf("Status() = %v, want ok", got.Status())
	}
}

func TestManager_UpdateLogEntryUnknownQueryErrors(t *testing.T) {
	m, cancel := startManager(t, nil)
	defer cancel()

	err := m.UpdateLogEntry(context.Background(), uuid.New(), UpdateLogEntry{Kind: UpdateEvent, Event: "x"})
	if err == nil {
		t.Fatal("expected an error updating a query id that was never added")
	}
}

func TestManager_SendRespectsContextCancellation(t *testing.T) {
	cfg := &config.Config{Suppliers: map[string]config.SupplierDescriptor{}}
	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager(cfg, false)
	// Deliberately never call Run, so the mailbox is never drained.
	cancel()

	err := m.InsertSupplier(ctx, "s1", config.SupplierDescriptor{ID: "s1"})
	if err == nil {
		t.Fatal("expected InsertSupplier to fail against a cancelled context with no running actor")
	}
}
