package introspect

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/opsfolio/udi-pgp/internal/config"
	"github.com/opsfolio/udi-pgp/internal/parser"
	"github.com/opsfolio/udi-pgp/internal/state"
	"github.com/opsfolio/udi-pgp/internal/supplier"
	"github.com/opsfolio/udi-pgp/internal/wire"
)

var supplierDefaultColumns = []string{
	"supplier_id", "type", "mode", "ssh_targets", "auth", "atc_file_path",
}

// supplierTable backs udi_pgp_supplier: one row per live supplier
// descriptor, in lexicographic id order (§8 scenario 3).
type supplierTable struct {
	mgr *state.Manager
}

func (*supplierTable) Name() string                { return "udi_pgp_supplier" }
func (*supplierTable) SupplierType() supplier.Type  { return supplier.TypeIntrospection }
func (*supplierTable) Update(config.SupplierDescriptor) error { return nil }
func (*supplierTable) BindSession(uuid.UUID) error  { return nil }

func (t *supplierTable) Schema(stmt *parser.Statement) ([]wire.FieldInfo, error) {
	cols, err := resolveColumns(stmt, supplierDefaultColumns)
	if err != nil {
		return nil, err
	}
	stmt.Columns = cols
	return fieldsFor(cols), nil
}

func (t *supplierTable) Execute(stmt *parser.Statement) ([]wire.Row, error) {
	cfg, err := t.mgr.ReadConfig(context.Background())
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(cfg.Suppliers))
	for id := range cfg.Suppliers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([]wire.Row, 0, len(ids))
	for _, id := range ids {
		desc := cfg.Suppliers[id]
		rows = append(rows, buildSupplierRow(stmt.Columns, desc))
	}
	return rows, nil
}

func buildSupplierRow(cols []parser.ColumnMetadata, desc config.SupplierDescriptor) wire.Row {
	row := make(wire.Row, len(cols))
	for i, c := range cols {
		switch c.Name {
		case "supplier_id":
			row[i] = wire.Text(desc.ID)
		case "type":
			row[i] = wire.Text(desc.Type)
		case "mode":
			row[i] = wire.Text(string(desc.Mode))
		case "ssh_targets":
			row[i] = wire.Text(strings.Join(desc.Targets, ","))
		case "auth":
			row[i] = wire.Text(formatAuth(desc.Credentials))
		case "atc_file_path":
			row[i] = wire.Text(desc.ATCFilePath)
		}
	}
	return row
}

func formatAuth(creds []config.Credential) string {
	users := make([]string, len(creds))
	for i, c := range creds {
		users[i] = c.User
	}
	return strings.Join(users, ",")
}
