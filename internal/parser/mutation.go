package parser

import (
	pg_query "github.com/pganalyze/pg_query_go/v5"
)

// SupplierMutation describes an operator's INSERT/DELETE against the
// udi_pgp_supplier pseudo-table, the only way this façade lets SQL
// clients manage suppliers (§4.D, §6 "no separate admin API").
// Extraction is intentionally narrow: it understands literal values
// only, matching the "operators psql in" control-plane use case rather
// than arbitrary generated SQL.
type SupplierMutation struct {
	Delete  bool
	ID      string
	Type    string
	Mode    string
	Targets string // raw comma-separated value of the ssh_targets column
}

func extractSupplierMutation(node *pg_query.Node) *SupplierMutation {
	if ins := node.GetInsertStmt(); ins != nil {
		return extractInsertMutation(ins)
	}
	if del := node.GetDeleteStmt(); del != nil {
		return extractDeleteMutation(del)
	}
	return nil
}

func extractInsertMutation(ins *pg_query.InsertStmt) *SupplierMutation {
	values := selectValues(ins.GetSelectStmt())
	if values == nil {
		return nil
	}

	m := &SupplierMutation{}
	for i, colNode := range ins.GetCols() {
		rt := colNode.GetResTarget()
		if rt == nil || i >= len(values) {
			continue
		}
		val, ok := literalString(values[i])
		if !ok {
			continue
		}
		switch rt.GetName() {
		case "supplier_id":
			m.ID = val
		case "type":
			m.Type = val
		case "mode":
			m.Mode = val
		case "ssh_targets":
			m.Targets = val
		}
	}
	if m.ID == "" {
		return nil
	}
	return m
}

func extractDeleteMutation(del *pg_query.DeleteStmt) *SupplierMutation {
	ae := del.GetWhereClause().GetAExpr()
	if ae == nil {
		return nil
	}
	colName, ok := columnRefName(ae.GetLexpr())
	if !ok || colName != "supplier_id" {
		return nil
	}
	val, ok := literalString(ae.GetRexpr())
	if !ok {
		return nil
	}
	return &SupplierMutation{Delete: true, ID: val}
}

// selectValues returns the first VALUES tuple of an INSERT's source
// SelectStmt, or nil if it isn't a literal VALUES list.
func selectValues(node *pg_query.Node) []*pg_query.Node {
	sel := node.GetSelectStmt()
	if sel == nil || len(sel.GetValuesLists()) == 0 {
		return nil
	}
	list := sel.GetValuesLists()[0].GetList()
	if list == nil {
		return nil
	}
	return list.GetItems()
}

func literalString(node *pg_query.Node) (string, bool) {
	if node == nil {
		return "", false
	}
	if tc := node.GetTypeCast(); tc != nil {
		return literalString(tc.GetArg())
	}
	if ac := node.GetAConst(); ac != nil {
		if s := ac.GetSval(); s != nil {
			return s.GetSval(), true
		}
	}
	return "", false
}

func columnRefName(node *pg_query.Node) (string, bool) {
	cr := node.GetColumnRef()
	if cr == nil || len(cr.GetFields()) == 0 {
		return "", false
	}
	return stringVal(cr.GetFields()[len(cr.GetFields())-1]), true
}
