package ledger

import (
	"testing"
	"time"
)

func TestNewEntry(t *testing.T) {
	e := NewEntry("SELECT 1")
	if e.QueryText != "SELECT 1" {
		t.Errorf("QueryText = %q, want %q", e.QueryText, "SELECT 1")
	}
	if e.QueryID.String() == "" {
		t.Error("QueryID is zero")
	}
	if e.Status() != StatusRunning {
		t.Errorf("Status() = %v, want running", e.Status())
	}
}

func TestEntry_Event(t *testing.T) {
	e := NewEntry("SELECT 1")
	e.Event("started", false)
	e.Event("supplier failed", true)

	if len(e.Elaboration.Events) != 2 {
		t.Fatalf("Events = %v, want 2 entries", e.Elaboration.Events)
	}
	if len(e.ExecMessages) != 1 || e.ExecMessages[0] != "supplier failed" {
		t.Errorf("ExecMessages = %v, want [supplier failed]", e.ExecMessages)
	}
}

func TestEntry_StatusDerivation(t *testing.T) {
	t.Run("running until finished", func(t *testing.T) {
		e := NewEntry("q")
		if e.Status() != StatusRunning {
			t.Errorf("Status() = %v, want running", e.Status())
		}
	})

	t.Run("ok once finished without errors", func(t *testing.T) {
		e := NewEntry("q")
		now := time.Now()
		e.FinishedAt = &now
		if e.Status() != StatusOK {
			t.Errorf("Status() = %v, want ok", e.Status())
		}
	})

	t.Run("error takes priority even if finished", func(t *testing.T) {
		e := NewEntry("q")
		now := time.Now()
		e.FinishedAt = &now
		e.Event("boom", true)
		if e.Status() != StatusError {
			t.Errorf("Status() = %v, want error", e.Status())
		}
	})

	t.Run("error before finished", func(t *testing.T) {
		e := NewEntry("q")
		e.Event("boom", true)
		if e.Status() != StatusError {
			t.Errorf("Status() = %v, want error", e.Status())
		}
	})
}

func TestEntry_CloneIsDeep(t *testing.T) {
	e := NewEntry("q")
	started := time.Now()
	e.StartedAt = &started
	e.Event("a", false)

	cp := e.Clone()
	cp.Elaboration.Events[0] = "mutated"
	*cp.StartedAt = started.Add(time.Hour)

	if e.Elaboration.Events[0] != "a" {
		t.Error("mutating clone's events affected the original")
	}
	if !e.StartedAt.Equal(started) {
		t.Error("mutating clone's StartedAt affected the original")
	}
}

func TestEntry_CloneNilTimestampsStayNil(t *testing.T) {
	e := NewEntry("q")
	cp := e.Clone()
	if cp.StartedAt != nil || cp.FinishedAt != nil {
		t.Error("Clone produced non-nil timestamps from nil originals")
	}
}
