package exec

import (
	"testing"

	"github.com/opsfolio/udi-pgp/internal/config"
	"github.com/opsfolio/udi-pgp/internal/parser"
)

func TestNew_RequiresTarget(t *testing.T) {
	_, err := New(config.SupplierDescriptor{ID: "s1"})
	if err == nil {
		t.Fatal("expected an error constructing an exec supplier with no targets")
	}
}

func TestSchema_WildcardExpandsToHeader(t *testing.T) {
	s, err := New(config.SupplierDescriptor{ID: "s1", Targets: []string{`printf 'a,b\n1,2\n'`}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	stmt := &parser.Statement{Columns: []parser.ColumnMetadata{{ExprType: parser.ExprWildcard, Name: "*"}}}
	fields, err := s.Schema(stmt)
	if err != nil {
		t.Fatalf("Schema failed: %v", err)
	}
	if len(fields) != 2 || fields[0].Name != "a" || fields[1].Name != "b" {
		t.Errorf("fields = %+v, want [a b]", fields)
	}
	if len(stmt.Columns) != 2 {
		t.Errorf("stmt.Columns not rewritten: %+v", stmt.Columns)
	}
}

func TestSchema_ExplicitProjectionValidatesColumns(t *testing.T) {
	s, err := New(config.SupplierDescriptor{ID: "s1", Targets: []string{`printf 'a,b\n1,2\n'`}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	stmt := &parser.Statement{Columns: []parser.ColumnMetadata{{ExprType: parser.ExprStandard, Name: "a"}}}
	fields, err := s.Schema(stmt)
	if err != nil {
		t.Fatalf("Schema failed: %v", err)
	}
	if len(fields) != 1 || fields[0].Name != "a" {
		t.Errorf("fields = %+v, want [a]", fields)
	}
}

func TestSchema_UnknownColumnErrors(t *testing.T) {
	s, err := New(config.SupplierDescriptor{ID: "s1", Targets: []string{`printf 'a,b\n1,2\n'`}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	stmt := &parser.Statement{Columns: []parser.ColumnMetadata{{ExprType: parser.ExprStandard, Name: "nope"}}}
	_, err = s.Schema(stmt)
	if err == nil {
		t.Fatal("expected an error for a column the command never produced")
	}
}

func TestExecute_ProjectsRowsByColumnPosition(t *testing.T) {
	s, err := New(config.SupplierDescriptor{ID: "s1", Targets: []string{`printf 'a,b\n1,2\n3,4\n'`}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	stmt := &parser.Statement{Columns: []parser.ColumnMetadata{{ExprType: parser.ExprStandard, Name: "b"}}}
	if _, err := s.Schema(stmt); err != nil {
		t.Fatalf("Schema failed: %v", err)
	}

	rows, err := s.Execute(stmt)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	want := []string{"2", "4"}
	for i, row := range rows {
		if len(row) != 1 {
			t.Fatalf("row %d has %d cells, want 1", i, len(row))
		}
		if row[0] == nil || *row[0] != want[i] {
			t.Errorf("row %d = %v, want %q", i, row[0], want[i])
		}
	}
}

func TestExecute_EmptyOutputYieldsNoRows(t *testing.T) {
	s, err := New(config.SupplierDescriptor{ID: "s1", Targets: []string{`printf ''`}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	stmt := &parser.Statement{Columns: []parser.ColumnMetadata{{ExprType: parser.ExprWildcard, Name: "*"}}}
	if _, err := s.Schema(stmt); err != nil {
		t.Fatalf("Schema failed: %v", err)
	}
	rows, err := s.Execute(stmt)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("got %d rows, want 0", len(rows))
	}
}

func TestUpdate_RejectsEmptyTargets(t *testing.T) {
	s, err := New(config.SupplierDescriptor{ID: "s1", Targets: []string{`printf 'a\n1\n'`}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Update(config.SupplierDescriptor{ID: "s1"}); err == nil {
		t.Fatal("expected Update to reject a descriptor with no targets")
	}
}
