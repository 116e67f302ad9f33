// Package supplier defines the pluggable backend contract (§4.5)
// and the registry that owns live supplier instances (§4.C).
//
// The registry follows the same "RWMutex-protected map, hot-reload via
// a reconcile pass that preserves state for ids that survive" structure
// commonly used for replica pool health status, reused here to preserve
// supplier instances across a config reload.
package supplier

import (
	"github.com/google/uuid"

	"github.com/opsfolio/udi-pgp/internal/config"
	"github.com/opsfolio/udi-pgp/internal/parser"
	"github.com/opsfolio/udi-pgp/internal/pgerror"
	"github.com/opsfolio/udi-pgp/internal/wire"
)

// Type distinguishes the built-in introspection suppliers from
// operator-configured ones (§4.5 supplier_type).
type Type int

const (
	TypeUser Type = iota
	TypeIntrospection
)

// Supplier is the capability set every backend exposes (§4.5).
// Dispatch happens purely through this interface; there is no
// additional reflection or type-switch layer, per design note
// "dispatch by interface".
type Supplier interface {
	Name() string
	SupplierType() Type

	// Schema computes the result columns for stmt, and may rewrite
	// stmt.Columns in place (e.g. expanding `*`). The dispatcher must
	// re-use the (possibly mutated) statement it passed in when later
	// calling Execute.
	Schema(stmt *parser.Statement) ([]wire.FieldInfo, error)

	// Execute runs stmt and returns rows whose arity matches the
	// schema just computed.
	Execute(stmt *parser.Statement) ([]wire.Row, error)

	// Update reconfigures the instance in place from a new descriptor,
	// without rebuilding it (§4.5 update).
	Update(desc config.SupplierDescriptor) error

	// BindSession attaches the query's observability span to whatever
	// the supplier uses to correlate its own logs (§4.5 add_session_id).
	BindSession(id uuid.UUID) error
}

// Factory constructs a fresh Supplier instance from a descriptor
// (§4.5 generate_new, §4.C "factory keyed by descriptor type"). Kept as
// a plain function type rather than an interface: a factory carries no
// state of its own, it just knows how to build one type tag.
type Factory func(desc config.SupplierDescriptor) (Supplier, error)

// NoFactoryError is returned by Reconcile when a descriptor names a
// type tag with no registered factory (§4.C).
type NoFactoryError struct {
	Type string
}

func (e *NoFactoryError) Error() string { return "No supplier type found" }

// ToPGError renders the registry-level failure the way §4.C mandates:
// "fail the reconcile with FATAL PROCESSOR".
func (e *NoFactoryError) ToPGError() *pgerror.Error {
	return pgerror.Fatal(pgerror.CodeInternalError, "No supplier type found")
}

// RoutingError is returned when a query names a supplier id with no
// live instance (§4.F, §7 "routing errors").
type RoutingError struct {
	ID string
}

func (e *RoutingError) Error() string { return "unknown supplier " + e.ID }

func (e *RoutingError) ToPGError() *pgerror.Error {
	return pgerror.Fatal(pgerror.CodeInternalError, "No supplier found for database %q", e.ID)
}
