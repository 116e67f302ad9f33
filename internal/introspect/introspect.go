// Package introspect implements the three runtime-introspectable
// pseudo-tables (§4.E) as ordinary suppliers, so the dispatcher
// has exactly one execution path for both operator-configured and
// built-in backends (§9 "implement as suppliers so there is one
// execution path").
//
// Structured around table-name dispatch plus shared default-column
// expansion and re-typing of explicit projections across the three
// tables.
package introspect

import (
	"fmt"

	"github.com/opsfolio/udi-pgp/internal/parser"
	"github.com/opsfolio/udi-pgp/internal/pgerror"
	"github.com/opsfolio/udi-pgp/internal/state"
	"github.com/opsfolio/udi-pgp/internal/supplier"
	"github.com/opsfolio/udi-pgp/internal/wire"
)

// Version is the value the udi_pgp_config table reports in its
// surveilr_version column. It identifies this façade's own build, not
// any backing data source.
const Version = "1.0.0"

// Table names the three built-in pseudo-tables (§4.E).
type Table int

const (
	TableSupplier Table = iota
	TableConfig
	TableQueryExec
)

func (t Table) String() string {
	switch t {
	case TableSupplier:
		return "udi_pgp_supplier"
	case TableQueryExec:
		return "udi_pgp_observe_query_exec"
	default:
		return "udi_pgp_config"
	}
}

// TableFromName resolves a FROM-list entry to one of the three tables.
func TableFromName(name string) (Table, bool) {
	switch name {
	case "udi_pgp_supplier":
		return TableSupplier, true
	case "udi_pgp_config":
		return TableConfig, true
	case "udi_pgp_observe_query_exec":
		return TableQueryExec, true
	}
	return 0, false
}

// SchemaError is raised when a statement projects a column the table
// doesn't have (§4.E, §8 scenario 6).
type SchemaError struct {
	Table  string
	Column string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("column %s does not exist", e.Column)
}

func (e *SchemaError) ToPGError() *pgerror.Error {
	return pgerror.New(pgerror.CodeUndefinedColumn, "column %s does not exist", e.Column)
}

// resolveColumns implements §4.E's projection rule shared by all three
// tables: SELECT * (or an empty column list) expands to defaultCols in
// their documented order; an explicit projection is validated against
// defaultCols and re-used verbatim, preserving the statement's order.
func resolveColumns(stmt *parser.Statement, defaultCols []string) ([]parser.ColumnMetadata, error) {
	wantsAll := len(stmt.Columns) == 0
	for _, c := range stmt.Columns {
		if c.ExprType == parser.ExprWildcard {
			wantsAll = true
			break
		}
	}
	if wantsAll {
		cols := make([]parser.ColumnMetadata, len(defaultCols))
		for i, name := range defaultCols {
			cols[i] = parser.ColumnMetadata{Name: name, ExprType: parser.ExprStandard}
		}
		return cols, nil
	}

	known := make(map[string]bool, len(defaultCols))
	for _, c := range defaultCols {
		known[c] = true
	}
	for _, c := range stmt.Columns {
		if !known[c.Name] {
			return nil, &SchemaError{Column: c.Name}
		}
	}
	return stmt.Columns, nil
}

func fieldsFor(cols []parser.ColumnMetadata) []wire.FieldInfo {
	fields := make([]wire.FieldInfo, len(cols))
	for i, c := range cols {
		fields[i] = wire.FieldInfo{Name: c.EffectiveName(), OID: wire.TextOID}
	}
	return fields
}

// New constructs the built-in supplier for table, backed by mgr.
func New(table Table, mgr *state.Manager) supplier.Supplier {
	switch table {
	case TableSupplier:
		return &supplierTable{mgr: mgr}
	case TableQueryExec:
		return &queryExecTable{mgr: mgr}
	default:
		return &configTable{mgr: mgr}
	}
}

// NewFromStatement resolves the single table named by stmt (the
// dispatcher only reaches this package once parser classification has
// guaranteed exactly one table name is present) and constructs its
// supplier.
func NewFromStatement(stmt *parser.Statement, mgr *state.Manager) (supplier.Supplier, error) {
	if len(stmt.Tables) != 1 {
		return nil, fmt.Errorf("introspection statement must name exactly one table, got %d", len(stmt.Tables))
	}
	table, ok := TableFromName(stmt.Tables[0])
	if !ok {
		return nil, fmt.Errorf("unknown introspection table %q", stmt.Tables[0])
	}
	return New(table, mgr), nil
}

