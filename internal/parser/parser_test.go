package parser

import "testing"

func TestParse_Kind(t *testing.T) {
	tests := []struct {
		query string
		want  Kind
	}{
		{"SELECT * FROM processes", KindSupplier},
		{"SELECT id, name FROM osquery_users WHERE id = 1", KindSupplier},
		{"SET search_path TO public", KindConfigMutation},
		{"BEGIN", KindConfigMutation},
		{"COMMIT", KindConfigMutation},
		{"SELECT * FROM udi_pgp_supplier", KindIntrospection},
		{"INSERT INTO udi_pgp_supplier (supplier_id, type) VALUES ('s1', 'exec')", KindConfigMutation},
		{"DELETE FROM udi_pgp_supplier WHERE supplier_id = 's1'", KindConfigMutation},
		{"SELECT * FROM udi_pgp_config", KindIntrospection},
		{"SELECT * FROM udi_pgp_observe_query_exec", KindIntrospection},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			stmt, err := Parse(tt.query)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.query, err)
			}
			if stmt.Kind != tt.want {
				t.Errorf("Parse(%q).Kind = %v, want %v", tt.query, stmt.Kind, tt.want)
			}
		})
	}
}

func TestParse_MultiTableIntrospectionIsTableError(t *testing.T) {
	_, err := Parse("SELECT * FROM udi_pgp_config, udi_pgp_supplier")
	if err == nil {
		t.Fatal("expected a TableError for a two-table introspection query")
	}
	tableErr, ok := err.(*TableError)
	if !ok {
		t.Fatalf("error = %v (%T), want *TableError", err, err)
	}
	if len(tableErr.Tables) != 2 {
		t.Errorf("Tables = %v, want 2 entries", tableErr.Tables)
	}
}

func TestParse_SyntaxErrorWrapped(t *testing.T) {
	_, err := Parse("SELEKT * FROM nowhere")
	if err == nil {
		t.Fatal("expected a parse error for malformed SQL")
	}
	parseErr, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("error = %v (%T), want *ParseError", err, err)
	}
	if parseErr.Query != "SELEKT * FROM nowhere" {
		t.Errorf("ParseError.Query = %q", parseErr.Query)
	}
}

func TestParse_Tables(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"SELECT * FROM processes", []string{"processes"}},
		{"SELECT a.x FROM processes a JOIN users b ON a.uid = b.id", []string{"processes", "users"}},
		{"SELECT * FROM (SELECT * FROM processes) sub", []string{"processes"}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			stmt, err := Parse(tt.query)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.query, err)
			}
			if !equalStrings(stmt.Tables, tt.want) {
				t.Errorf("Tables = %v, want %v", stmt.Tables, tt.want)
			}
		})
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestParse_ColumnExpressionTypes(t *testing.T) {
	stmt, err := Parse("SELECT name, count(*) AS total, a + b, * FROM processes")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(stmt.Columns) != 4 {
		t.Fatalf("got %d columns, want 4", len(stmt.Columns))
	}

	if stmt.Columns[0].ExprType != ExprStandard || stmt.Columns[0].Name != "name" {
		t.Errorf("column 0 = %+v, want standard 'name'", stmt.Columns[0])
	}
	if stmt.Columns[1].ExprType != ExprFunction || stmt.Columns[1].EffectiveName() != "total" {
		t.Errorf("column 1 = %+v, want function aliased 'total'", stmt.Columns[1])
	}
	if stmt.Columns[2].ExprType != ExprBinary {
		t.Errorf("column 2 = %+v, want binary", stmt.Columns[2])
	}
	if stmt.Columns[3].ExprType != ExprWildcard || stmt.Columns[3].Name != "*" {
		t.Errorf("column 3 = %+v, want wildcard '*'", stmt.Columns[3])
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SELECT   1", "SELECT 1"},
		{"  SELECT\n1\t", "SELECT 1"},
		{"SELECT 1", "SELECT 1"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParse_EmptyQuery(t *testing.T) {
	stmt, err := Parse("")
	if err != nil {
		t.Fatalf("Parse(\"\") error: %v", err)
	}
	if stmt.Kind != KindSupplier {
		t.Errorf("empty query Kind = %v, want KindSupplier", stmt.Kind)
	}
}
