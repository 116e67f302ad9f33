// Package exec is a demonstration supplier that shells out to a
// configured CLI command and turns its CSV stdout into rows (§4, "one
// demonstration supplier implementation"). It is deliberately minimal:
// real deployments are expected to register richer factories (HTTP,
// database-backed, etc.) under their own type tags, the way the
// factory map was designed to allow (§9 "factory registration").
//
// Grounded on config-driven backend wiring (targets as a descriptor
// field) and on the sql_supplier contract it implements.
package exec

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opsfolio/udi-pgp/internal/config"
	"github.com/opsfolio/udi-pgp/internal/parser"
	"github.com/opsfolio/udi-pgp/internal/pgerror"
	"github.com/opsfolio/udi-pgp/internal/supplier"
	"github.com/opsfolio/udi-pgp/internal/wire"
)

// TypeTag is the descriptor type this package's factory is registered
// under.
const TypeTag = "exec"

// commandTimeout bounds how long the child process may run; suppliers
// impose their own timeouts per §5.
const commandTimeout = 10 * time.Second

// Supplier runs desc.Targets[0] as a shell command, interpreting its
// stdout as CSV with a header row that becomes the column list.
type Supplier struct {
	mu    sync.Mutex
	id    string
	desc  config.SupplierDescriptor
	runID uuid.UUID
}

// New is the Factory registered for TypeTag.
func New(desc config.SupplierDescriptor) (supplier.Supplier, error) {
	if len(desc.Targets) == 0 {
		return nil, &pgerror.SupplierError{
			Name:     desc.ID,
			Severity: pgerror.SupplierFatal,
			Msg:      "exec supplier requires at least one target command",
		}
	}
	return &Supplier{id: desc.ID, desc: desc}, nil
}

func (s *Supplier) Name() string                { return s.id }
func (s *Supplier) SupplierType() supplier.Type { return supplier.TypeUser }

func (s *Supplier) BindSession(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runID = id
	return nil
}

func (s *Supplier) Update(desc config.SupplierDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(desc.Targets) == 0 {
		return &pgerror.SupplierError{Name: s.id, Severity: pgerror.SupplierFatal, Msg: "exec supplier requires at least one target command"}
	}
	s.desc = desc
	return nil
}

// Schema runs the command once to learn its header row, expanding `*`
// to the full column list. Explicit projections are re-typed in place
// as text columns the way §4.E's introspection suppliers do, since an
// external command carries no richer type information.
func (s *Supplier) Schema(stmt *parser.Statement) ([]wire.FieldInfo, error) {
	header, _, err := s.run()
	if err != nil {
		return nil, err
	}

	wantsAll := len(stmt.Columns) == 0
	for _, c := range stmt.Columns {
		if c.ExprType == parser.ExprWildcard {
			wantsAll = true
			break
		}
	}

	if wantsAll {
		cols := make([]parser.ColumnMetadata, len(header))
		fields := make([]wire.FieldInfo, len(header))
		for i, h := range header {
			cols[i] = parser.ColumnMetadata{Name: h, ExprType: parser.ExprStandard}
			fields[i] = wire.FieldInfo{Name: h, OID: wire.TextOID}
		}
		stmt.Columns = cols
		return fields, nil
	}

	index := make(map[string]bool, len(header))
	for _, h := range header {
		index[h] = true
	}

	fields := make([]wire.FieldInfo, len(stmt.Columns))
	for i, c := range stmt.Columns {
		name := c.EffectiveName()
		if !index[c.Name] {
			return nil, &pgerror.SupplierError{
				Name:     s.id,
				Severity: pgerror.SupplierMessage,
				Msg:      fmt.Sprintf("column %s does not exist", c.Name),
			}
		}
		fields[i] = wire.FieldInfo{Name: name, OID: wire.TextOID}
	}
	return fields, nil
}

// Execute re-runs the command and projects its rows onto stmt.Columns,
// which Schema may have rewritten to the full column list.
func (s *Supplier) Execute(stmt *parser.Statement) ([]wire.Row, error) {
	header, records, err := s.run()
	if err != nil {
		return nil, err
	}

	position := make(map[string]int, len(header))
	for i, h := range header {
		position[h] = i
	}

	rows := make([]wire.Row, 0, len(records))
	for _, record := range records {
		row := make(wire.Row, len(stmt.Columns))
		for i, c := range stmt.Columns {
			idx, ok := position[c.Name]
			if !ok || idx >= len(record) {
				continue
			}
			row[i] = wire.Text(record[idx])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *Supplier) run() ([]string, [][]string, error) {
	s.mu.Lock()
	command := s.desc.Targets[0]
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, nil, &pgerror.SupplierError{
			Name:     s.id,
			Severity: pgerror.SupplierFatal,
			Msg:      fmt.Sprintf("command failed: %v", err),
		}
	}

	reader := csv.NewReader(strings.NewReader(stdout.String()))
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, &pgerror.SupplierError{
			Name:     s.id,
			Severity: pgerror.SupplierFatal,
			Msg:      fmt.Sprintf("invalid CSV output: %v", err),
		}
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	return records[0], records[1:], nil
}
