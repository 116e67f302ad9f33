package introspect

import (
	"context"

	"github.com/google/uuid"

	"github.com/opsfolio/udi-pgp/internal/config"
	"github.com/opsfolio/udi-pgp/internal/parser"
	"github.com/opsfolio/udi-pgp/internal/state"
	"github.com/opsfolio/udi-pgp/internal/supplier"
	"github.com/opsfolio/udi-pgp/internal/wire"
)

var configDefaultColumns = []string{
	"addr", "health", "metrics", "surveilr_version", "admin_db_path",
}

// configTable backs udi_pgp_config: exactly one row describing the
// running façade itself (§4.E, §8 scenario 5).
type configTable struct {
	mgr *state.Manager
}

func (*configTable) Name() string                { return "udi_pgp_config" }
func (*configTable) SupplierType() supplier.Type  { return supplier.TypeIntrospection }
func (*configTable) Update(config.SupplierDescriptor) error { return nil }
func (*configTable) BindSession(uuid.UUID) error  { return nil }

func (t *configTable) Schema(stmt *parser.Statement) ([]wire.FieldInfo, error) {
	cols, err := resolveColumns(stmt, configDefaultColumns)
	if err != nil {
		return nil, err
	}
	stmt.Columns = cols
	return fieldsFor(cols), nil
}

func (t *configTable) Execute(stmt *parser.Statement) ([]wire.Row, error) {
	cfg, err := t.mgr.ReadConfig(context.Background())
	if err != nil {
		return nil, err
	}

	row := make(wire.Row, len(stmt.Columns))
	for i, c := range stmt.Columns {
		switch c.Name {
		case "addr":
			row[i] = wire.Text(cfg.Addr)
		case "health":
			row[i] = textOrNull(cfg.Health)
		case "metrics":
			row[i] = textOrNull(cfg.Metrics)
		case "surveilr_version":
			row[i] = wire.Text(Version)
		case "admin_db_path":
			row[i] = wire.Text(cfg.AdminDBPath)
		}
	}
	return []wire.Row{row}, nil
}

// textOrNull renders an unset optional socket address as the literal
// "null" the way §8 scenario 5 spells it, rather than SQL NULL: these
// are descriptive strings in a text-only table, not truly nullable
// columns.
func textOrNull(v string) *string {
	if v == "" {
		return wire.Text("null")
	}
	return wire.Text(v)
}
