// Package parser turns raw SQL text into the statement shape the
// dispatcher routes on (§4.B): first-level relation names, typed
// projection column metadata, and a statement-kind classification.
//
// A regex classifier is enough when the job is cache keying, but this
// façade has to answer "what columns will this statement return and
// under what name", which needs a real grammar, so it is built on
// github.com/pganalyze/pg_query_go/v5, the Postgres-grammar parser other
// tools in this space (kqlite, pgrollback) reach for whenever they need
// the same thing. The statement-kind/driver-boilerplate lookup table
// stays separate from this package (see internal/drivercompat), per the
// "do not re-derive driver compatibility from the parser" design note.
package parser

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v5"
)

// ExpressionType classifies how a projected column's name was derived
// (§4.B point 2).
type ExpressionType int

const (
	ExprStandard ExpressionType = iota
	ExprBinary
	ExprFunction
	ExprCompound
	ExprWildcard
)

func (t ExpressionType) String() string {
	switch t {
	case ExprBinary:
		return "binary"
	case ExprFunction:
		return "function"
	case ExprCompound:
		return "compound"
	case ExprWildcard:
		return "wildcard"
	default:
		return "standard"
	}
}

// ColumnMetadata is one projected column of a parsed SELECT.
type ColumnMetadata struct {
	Name     string
	ExprType ExpressionType
	Alias    string
}

// EffectiveName is the alias if one was given, else the derived name.
func (c ColumnMetadata) EffectiveName() string {
	if c.Alias != "" {
		return c.Alias
	}
	return c.Name
}

// Kind is the statement-kind classification of §4.B point 3.
//
// KindDriverBoilerplate is never assigned by Parse/classify: the
// driver-compatibility lookup (internal/drivercompat) runs ahead of
// grammar classification in the dispatcher, and importing it here
// would cycle back through this package's Normalize helper. Parse
// always returns one of the other three kinds; the dispatcher answers a
// lookup hit directly, without parsing, so no Statement ever carries
// KindDriverBoilerplate.
type Kind int

const (
	KindSupplier Kind = iota
	KindDriverBoilerplate
	KindConfigMutation
	KindIntrospection
)

func (k Kind) String() string {
	switch k {
	case KindDriverBoilerplate:
		return "driver_boilerplate"
	case KindConfigMutation:
		return "config_mutation"
	case KindIntrospection:
		return "introspection"
	default:
		return "supplier"
	}
}

// TableError is raised when an introspection query names more than one
// table (§4.B, §4.E).
type TableError struct {
	Tables []string
}

func (e *TableError) Error() string {
	return fmt.Sprintf("introspection query must name exactly one table, got %d", len(e.Tables))
}

// ParseError wraps an unparsable statement; the dispatcher surfaces it
// as SQLSTATE 42601.
type ParseError struct {
	Query string
	Cause error
}

func (e *ParseError) Error() string { return fmt.Sprintf("syntax error: %v", e.Cause) }
func (e *ParseError) Unwrap() error { return e.Cause }

// Statement is the parsed, classified representation of one SQL text
// the dispatcher acts on (§4.B, §3 "Parsed statement").
type Statement struct {
	Tables     []string
	Columns    []ColumnMetadata
	Query      string
	Kind       Kind
	FromDriver bool

	// Mutation is populated when Kind is KindConfigMutation and the
	// statement is a recognized INSERT/DELETE against udi_pgp_supplier;
	// nil for SET/BEGIN/COMMIT-style config mutations, which carry no
	// payload to apply.
	Mutation *SupplierMutation

	raw *pg_query.RawStmt
}

// introspectionTableNames mirrors §4.E; kept local so the classifier
// doesn't import the introspect package (which itself depends on
// parsed statements).
var introspectionTableNames = map[string]bool{
	"udi_pgp_supplier":           true,
	"udi_pgp_config":             true,
	"udi_pgp_observe_query_exec": true,
}

// IsIntrospectionTable reports whether name is one of the three
// built-in pseudo-tables.
func IsIntrospectionTable(name string) bool { return introspectionTableNames[name] }

// Parse parses one SQL statement and classifies it. sql must contain at
// most one statement; callers split multi-statement batches themselves
// (the Simple Query protocol already hands statements one at a time in
// this façade's usage).
func Parse(sql string) (*Statement, error) {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return &Statement{Query: sql, Kind: KindSupplier}, nil
	}

	result, err := pg_query.Parse(sql)
	if err != nil {
		return nil, &ParseError{Query: sql, Cause: err}
	}
	if len(result.Stmts) == 0 {
		return &Statement{Query: sql, Kind: KindSupplier}, nil
	}

	raw := result.Stmts[0]
	node := raw.Stmt

	stmt := &Statement{
		Query: sql,
		raw:   raw,
	}
	stmt.Tables = collectTables(node)
	stmt.Columns = collectColumns(node)

	kind, err := classify(node, stmt.Tables)
	if err != nil {
		return nil, err
	}
	stmt.Kind = kind
	if kind == KindConfigMutation {
		stmt.Mutation = extractSupplierMutation(node)
	}

	return stmt, nil
}

func classify(node *pg_query.Node, tables []string) (Kind, error) {
	if vs := node.GetVariableSetStmt(); vs != nil {
		return KindConfigMutation, nil
	}
	if ts := node.GetTransactionStmt(); ts != nil {
		return KindConfigMutation, nil
	}
	if isSupplierManagementStatement(node) {
		return KindConfigMutation, nil
	}

	var introspectionHits int
	for _, t := range tables {
		if IsIntrospectionTable(t) {
			introspectionHits++
		}
	}
	if introspectionHits > 0 {
		if len(tables) > 1 {
			return 0, &TableError{Tables: tables}
		}
		return KindIntrospection, nil
	}

	return KindSupplier, nil
}

// isSupplierManagementStatement reports whether an INSERT/UPDATE/DELETE
// targets the udi_pgp_supplier pseudo-table, the only way an operator
// manages suppliers via SQL (§4.D, §6 "no separate admin API").
func isSupplierManagementStatement(node *pg_query.Node) bool {
	var rel *pg_query.RangeVar
	switch {
	case node.GetInsertStmt() != nil:
		rel = node.GetInsertStmt().GetRelation()
	case node.GetUpdateStmt() != nil:
		rel = node.GetUpdateStmt().GetRelation()
	case node.GetDeleteStmt() != nil:
		rel = node.GetDeleteStmt().GetRelation()
	}
	return rel != nil && rel.GetRelname() == "udi_pgp_supplier"
}

// collectTables walks the FROM clause (and JOINs and subqueries within
// it), gathering first-level relation names per §4.B point 1.
func collectTables(node *pg_query.Node) []string {
	sel := selectStmtOf(node)
	if sel == nil {
		if rel := relationOf(node); rel != nil {
			return []string{rel.GetRelname()}
		}
		return nil
	}

	var tables []string
	for _, item := range sel.GetFromClause() {
		tables = append(tables, collectTablesFromNode(item)...)
	}
	return tables
}

func collectTablesFromNode(node *pg_query.Node) []string {
	if node == nil {
		return nil
	}
	if rv := node.GetRangeVar(); rv != nil {
		return []string{rv.GetRelname()}
	}
	if je := node.GetJoinExpr(); je != nil {
		var out []string
		out = append(out, collectTablesFromNode(je.GetLarg())...)
		out = append(out, collectTablesFromNode(je.GetRarg())...)
		return out
	}
	if rs := node.GetRangeSubselect(); rs != nil {
		return collectTables(rs.GetSubquery())
	}
	return nil
}

// selectStmtOf returns the SelectStmt for node, recursing through set
// operations (UNION/INTERSECT/EXCEPT) to their left branch so a FROM
// list is still found.
func selectStmtOf(node *pg_query.Node) *pg_query.SelectStmt {
	if node == nil {
		return nil
	}
	sel := node.GetSelectStmt()
	if sel == nil {
		return nil
	}
	if sel.GetOp() != pg_query.SetOperation_SETOP_NONE {
		if l := selectStmtOf(sel.GetLarg()); l != nil {
			return l
		}
	}
	return sel
}

// relationOf returns the single target relation of a non-SELECT DML
// statement, if any.
func relationOf(node *pg_query.Node) *pg_query.RangeVar {
	switch {
	case node.GetInsertStmt() != nil:
		return node.GetInsertStmt().GetRelation()
	case node.GetUpdateStmt() != nil:
		return node.GetUpdateStmt().GetRelation()
	case node.GetDeleteStmt() != nil:
		return node.GetDeleteStmt().GetRelation()
	}
	return nil
}

// collectColumns extracts projection column metadata per §4.B point 2.
func collectColumns(node *pg_query.Node) []ColumnMetadata {
	sel := selectStmtOf(node)
	if sel == nil {
		return nil
	}

	cols := make([]ColumnMetadata, 0, len(sel.GetTargetList()))
	for _, item := range sel.GetTargetList() {
		rt := item.GetResTarget()
		if rt == nil {
			continue
		}
		meta := classifyExpr(rt.GetVal())
		meta.Alias = rt.GetName()
		cols = append(cols, meta)
	}
	return cols
}

func classifyExpr(node *pg_query.Node) ColumnMetadata {
	if node == nil {
		return ColumnMetadata{ExprType: ExprStandard}
	}

	if cr := node.GetColumnRef(); cr != nil {
		return classifyColumnRef(cr)
	}
	if fc := node.GetFuncCall(); fc != nil {
		return ColumnMetadata{Name: lastNamePart(fc.GetFuncname()), ExprType: ExprFunction}
	}
	if ae := node.GetAExpr(); ae != nil {
		return ColumnMetadata{Name: "", ExprType: ExprBinary}
	}
	if ce := node.GetCaseExpr(); ce != nil {
		if ce.GetArg() != nil {
			return classifyExpr(ce.GetArg())
		}
		return ColumnMetadata{ExprType: ExprStandard}
	}
	if te := node.GetTypeCast(); te != nil {
		return classifyExpr(te.GetArg())
	}

	return ColumnMetadata{ExprType: ExprStandard}
}

func classifyColumnRef(cr *pg_query.ColumnRef) ColumnMetadata {
	fields := cr.GetFields()
	if len(fields) == 0 {
		return ColumnMetadata{ExprType: ExprStandard}
	}

	last := fields[len(fields)-1]
	if last.GetAStar() != nil {
		if len(fields) == 1 {
			return ColumnMetadata{Name: "*", ExprType: ExprWildcard}
		}
		qualifier := stringVal(fields[len(fields)-2])
		return ColumnMetadata{Name: qualifier, ExprType: ExprWildcard}
	}

	if len(fields) == 1 {
		return ColumnMetadata{Name: stringVal(fields[0]), ExprType: ExprStandard}
	}
	return ColumnMetadata{Name: stringVal(last), ExprType: ExprCompound}
}

func stringVal(node *pg_query.Node) string {
	if node == nil {
		return ""
	}
	if s := node.GetString_(); s != nil {
		return s.GetSval()
	}
	return ""
}

func lastNamePart(names []*pg_query.Node) string {
	if len(names) == 0 {
		return ""
	}
	return stringVal(names[len(names)-1])
}

// Normalize collapses interior whitespace the way the driver
// compatibility lookup expects before comparing against its table
// (§4.B point 3: "equality is textual after whitespace
// normalization").
func Normalize(sql string) string {
	fields := strings.Fields(sql)
	return strings.Join(fields, " ")
}
