package dispatch

import (
	"errors"

	"github.com/opsfolio/udi-pgp/internal/parser"
	"github.com/opsfolio/udi-pgp/internal/pgerror"
)

// toPGError is implemented by every error type this package knows how
// to render onto the wire with its own severity/SQLSTATE choice
// (introspect.SchemaError, supplier.RoutingError, supplier.NoFactoryError).
type toPGError interface {
	ToPGError() *pgerror.Error
}

// translateError maps any error the dispatch pipeline can produce onto
// the façade's error taxonomy (§7). Anything unrecognized becomes
// an internal XX000 error carrying the original error's text as its
// message.
func translateError(err error) *pgerror.Error {
	var pgErr *pgerror.Error
	if errors.As(err, &pgErr) {
		return pgErr
	}

	var supplierErr *pgerror.SupplierError
	if errors.As(err, &supplierErr) {
		return pgerror.FromSupplierError(supplierErr)
	}

	var withPG toPGError
	if errors.As(err, &withPG) {
		return withPG.ToPGError()
	}

	var parseErr *parser.ParseError
	if errors.As(err, &parseErr) {
		return pgerror.New(pgerror.CodeSyntaxError, "%s", parseErr.Error())
	}

	var tableErr *parser.TableError
	if errors.As(err, &tableErr) {
		return pgerror.New(pgerror.CodeSyntaxError, "%s", tableErr.Error())
	}

	return pgerror.New(pgerror.CodeInternalError, "%s", err.Error())
}
