package introspect

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opsfolio/udi-pgp/internal/config"
	"github.com/opsfolio/udi-pgp/internal/ledger"
	"github.com/opsfolio/udi-pgp/internal/parser"
	"github.com/opsfolio/udi-pgp/internal/state"
	"github.com/opsfolio/udi-pgp/internal/supplier"
	"github.com/opsfolio/udi-pgp/internal/wire"
)

var queryExecDefaultColumns = []string{
	"query_id", "query_text", "exec_status", "exec_msg", "elaboration", "exec_start_at", "exec_finish_at",
}

// queryExecTable backs udi_pgp_observe_query_exec: one row per recorded
// query lifecycle (§4.E, §4.H).
type queryExecTable struct {
	mgr *state.Manager
}

func (*queryExecTable) Name() string                { return "udi_pgp_observe_query_exec" }
func (*queryExecTable) SupplierType() supplier.Type  { return supplier.TypeIntrospection }
func (*queryExecTable) Update(config.SupplierDescriptor) error { return nil }
func (*queryExecTable) BindSession(uuid.UUID) error  { return nil }

func (t *queryExecTable) Schema(stmt *parser.Statement) ([]wire.FieldInfo, error) {
	cols, err := resolveColumns(stmt, queryExecDefaultColumns)
	if err != nil {
		return nil, err
	}
	stmt.Columns = cols
	return fieldsFor(cols), nil
}

func (t *queryExecTable) Execute(stmt *parser.Statement) ([]wire.Row, error) {
	entries, err := t.mgr.ReadLogEntries(context.Background())
	if err != nil {
		return nil, err
	}

	ordered := make([]*ledger.Entry, 0, len(entries))
	for _, e := range entries {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return orderKey(ordered[i]) < orderKey(ordered[j])
	})

	rows := make([]wire.Row, 0, len(ordered))
	for _, e := range ordered {
		rows = append(rows, buildQueryExecRow(stmt.Columns, e))
	}
	return rows, nil
}

func orderKey(e *ledger.Entry) string {
	if e.StartedAt != nil {
		return e.StartedAt.Format(time.RFC3339Nano)
	}
	return e.QueryID.String()
}

func buildQueryExecRow(cols []parser.ColumnMetadata, e *ledger.Entry) wire.Row {
	row := make(wire.Row, len(cols))
	for i, c := range cols {
		switch c.Name {
		case "query_id":
			row[i] = wire.Text(e.QueryID.String())
		case "query_text":
			row[i] = wire.Text(e.QueryText)
		case "exec_status":
			row[i] = wire.Text(string(e.Status()))
		case "exec_msg":
			row[i] = wire.Text(strings.Join(e.ExecMessages, ";"))
		case "elaboration":
			encoded, _ := json.Marshal(e.Elaboration.Events)
			row[i] = wire.Text(string(encoded))
		case "exec_start_at":
			row[i] = timeOrNull(e.StartedAt)
		case "exec_finish_at":
			row[i] = timeOrNull(e.FinishedAt)
		}
	}
	return row
}

func timeOrNull(t *time.Time) *string {
	if t == nil {
		return nil
	}
	return wire.Text(t.Format(time.RFC3339Nano))
}
