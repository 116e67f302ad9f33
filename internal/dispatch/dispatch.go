// Package dispatch implements the per-connection, per-query pipeline
// (§4.F): bytes → parse → classify → route → encode rows → send.
//
// The overall shape (look up a target, execute against it, encode the
// result) generalizes the familiar "proxy to one of a handful of
// MySQL/Postgres backends" pipeline into "route to one of an open set
// of pluggable suppliers".
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opsfolio/udi-pgp/internal/drivercompat"
	"github.com/opsfolio/udi-pgp/internal/introspect"
	"github.com/opsfolio/udi-pgp/internal/ledger"
	"github.com/opsfolio/udi-pgp/internal/metrics"
	"github.com/opsfolio/udi-pgp/internal/parser"
	"github.com/opsfolio/udi-pgp/internal/pgerror"
	"github.com/opsfolio/udi-pgp/internal/state"
	"github.com/opsfolio/udi-pgp/internal/supplier"
	"github.com/opsfolio/udi-pgp/internal/wire"
)

// Dispatcher routes one parsed statement at a time to its handler. One
// Dispatcher is shared by every connection; all the state it touches
// (registry, manager) is already safe for concurrent use.
type Dispatcher struct {
	Registry *supplier.Registry
	Manager  *state.Manager
}

// Result is the encoded wire bytes of a successful query response,
// ready to be written as-is: they already end with the CommandComplete
// message, and the session follows them with ReadyForQuery.
type Result struct {
	Bytes []byte
}

// Dispatch runs one query for a connection authenticated as
// sessionUser against the supplier named by databaseName (the startup
// packet's database parameter, §6). It always records the query
// in the observability ledger, win or lose.
func (d *Dispatcher) Dispatch(ctx context.Context, sql, sessionUser, databaseName string) (*Result, *pgerror.Error) {
	start := time.Now()
	entry := ledger.NewEntry(sql)
	_ = d.Manager.AddLogEntry(ctx, entry)
	_ = d.Manager.UpdateLogEntry(ctx, entry.QueryID, state.UpdateLogEntry{Kind: state.UpdateStartTime, At: now()})

	result, kind, pgErr := d.dispatch(ctx, sql, sessionUser, databaseName, entry.QueryID)
	metrics.QueryLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	if pgErr != nil {
		_ = d.Manager.UpdateLogEntry(ctx, entry.QueryID, state.UpdateLogEntry{
			Kind: state.UpdateEvent, Event: pgErr.Message, IsError: true,
		})
		metrics.QueryTotal.WithLabelValues(kind, "error").Inc()
		return nil, pgErr
	}

	_ = d.Manager.UpdateLogEntry(ctx, entry.QueryID, state.UpdateLogEntry{Kind: state.UpdateEndTime, At: now()})
	metrics.QueryTotal.WithLabelValues(kind, "ok").Inc()
	return result, nil
}

// now is a single indirection point so tests can't accidentally rely
// on wall-clock monotonicity across a fake clock; production always
// uses time.Now.
func now() time.Time { return time.Now().UTC() }

// driverBoilerplateLabel is the metric label for a canned driver-compat
// response, which never goes through parser.Parse and so never gets a
// parser.Kind of its own.
const driverBoilerplateLabel = "driver_boilerplate"

func (d *Dispatcher) dispatch(ctx context.Context, sql, sessionUser, databaseName string, queryID uuid.UUID) (*Result, string, *pgerror.Error) {
	if resp, ok := drivercompat.Lookup(sql, sessionUser); ok {
		return &Result{Bytes: wire.EncodeRows(resp.Fields, resp.Rows, tagOrDefault(resp.Tag, len(resp.Rows)))}, driverBoilerplateLabel, nil
	}

	stmt, err := parser.Parse(sql)
	if err != nil {
		return nil, parser.KindSupplier.String(), translateError(err)
	}
	kind := stmt.Kind.String()

	switch stmt.Kind {
	case parser.KindConfigMutation:
		tag, err := d.applyConfigMutation(ctx, stmt)
		if err != nil {
			return nil, kind, translateError(err)
		}
		return &Result{Bytes: wire.EncodeRows(nil, nil, tag)}, kind, nil

	case parser.KindIntrospection:
		s, err := introspect.NewFromStatement(stmt, d.Manager)
		if err != nil {
			return nil, kind, translateError(err)
		}
		result, pgErr := d.runSupplier(s, stmt, queryID)
		return result, kind, pgErr

	default: // parser.KindSupplier
		s, unlock, ok := d.Registry.Get(databaseName)
		if !ok {
			return nil, kind, translateError(&supplier.RoutingError{ID: databaseName})
		}
		defer unlock()
		result, pgErr := d.runSupplier(s, stmt, queryID)
		return result, kind, pgErr
	}
}

// Describe resolves the result shape of sql without executing it and
// without writing a ledger entry (§3 data model "from_driver": a
// schema-only Describe that is never followed by Execute should not
// appear in the observability ledger). Extended Query Protocol clients
// rely on this to ask "what columns would this return" before deciding
// whether to bind and execute at all.
func (d *Dispatcher) Describe(sql, sessionUser, databaseName string) ([]wire.FieldInfo, *pgerror.Error) {
	if resp, ok := drivercompat.Lookup(sql, sessionUser); ok {
		return resp.Fields, nil
	}

	stmt, err := parser.Parse(sql)
	if err != nil {
		return nil, translateError(err)
	}
	stmt.FromDriver = true

	switch stmt.Kind {
	case parser.KindConfigMutation:
		return nil, nil

	case parser.KindIntrospection:
		s, err := introspect.NewFromStatement(stmt, d.Manager)
		if err != nil {
			return nil, translateError(err)
		}
		fields, err := s.Schema(stmt)
		if err != nil {
			return nil, translateError(err)
		}
		return fields, nil

	default: // parser.KindSupplier
		s, unlock, ok := d.Registry.Get(databaseName)
		if !ok {
			return nil, translateError(&supplier.RoutingError{ID: databaseName})
		}
		defer unlock()
		fields, err := s.Schema(stmt)
		if err != nil {
			return nil, translateError(err)
		}
		return fields, nil
	}
}

func (d *Dispatcher) runSupplier(s supplier.Supplier, stmt *parser.Statement, queryID uuid.UUID) (*Result, *pgerror.Error) {
	if err := s.BindSession(queryID); err != nil {
		return nil, translateError(err)
	}

	fields, err := s.Schema(stmt)
	if err != nil {
		return nil, translateError(err)
	}

	rows, err := s.Execute(stmt)
	if err != nil {
		metrics.SupplierExecutions.WithLabelValues(s.Name(), "error").Inc()
		return nil, translateError(err)
	}
	metrics.SupplierExecutions.WithLabelValues(s.Name(), "ok").Inc()

	return &Result{Bytes: wire.EncodeRows(fields, rows, fmt.Sprintf("SELECT %d", len(rows)))}, nil
}

func tagOrDefault(tag string, rowCount int) string {
	if tag != "" {
		return tag
	}
	return fmt.Sprintf("SELECT %d", rowCount)
}
