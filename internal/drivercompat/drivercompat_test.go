package drivercompat

import "testing"

func TestLookup_ExactMatches(t *testing.T) {
	tests := []struct {
		sql     string
		wantTag string
	}{
		{"SELECT current_schema(),session_user", "SELECT 1"},
		{"SET search_path = pg_catalog", "SET"},
		{"SET timezone = 'UTC'", "SET"},
		{"START TRANSACTION ISOLATION LEVEL REPEATABLE READ", "BEGIN"},
		{"COMMIT TRANSACTION", "COMMIT"},
		{"SHOW DateStyle;", "SHOW"},
		{"SHOW search_path", "SHOW"},
	}

	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			resp, ok := Lookup(tt.sql, "alice")
			if !ok {
				t.Fatalf("Lookup(%q) missed, want a hit", tt.sql)
			}
			if resp.Tag != tt.wantTag {
				t.Errorf("Tag = %q, want %q", resp.Tag, tt.wantTag)
			}
		})
	}
}

func TestLookup_WhitespaceNormalizedStillMatches(t *testing.T) {
	resp, ok := Lookup("SET   search_path\n= pg_catalog", "alice")
	if !ok {
		t.Fatal("Lookup with extra whitespace missed")
	}
	if resp.Tag != "SET" {
		t.Errorf("Tag = %q, want SET", resp.Tag)
	}
}

func TestLookup_SessionUserIsSubstituted(t *testing.T) {
	resp, ok := Lookup("SELECT current_schema(),session_user", "bob")
	if !ok {
		t.Fatal("Lookup missed")
	}
	if len(resp.Rows) != 1 || len(resp.Rows[0]) != 2 {
		t.Fatalf("unexpected row shape: %+v", resp.Rows)
	}
	if got := *resp.Rows[0][1]; got != "bob" {
		t.Errorf("session_user cell = %q, want bob", got)
	}
}

func TestLookup_Miss(t *testing.T) {
	_, ok := Lookup("SELECT * FROM processes", "alice")
	if ok {
		t.Error("Lookup matched a non-boilerplate query")
	}
}

func TestLookup_SchemaRowArityMatches(t *testing.T) {
	resp, ok := Lookup("SELECT current_schema(),session_user", "alice")
	if !ok {
		t.Fatal("Lookup missed")
	}
	for i, row := range resp.Rows {
		if len(row) != len(resp.Fields) {
			t.Errorf("row %d has %d cells, want %d (one per field)", i, len(row), len(resp.Fields))
		}
	}
}
