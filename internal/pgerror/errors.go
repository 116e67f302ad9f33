// Package pgerror defines the façade's error taxonomy and its mapping to
// Postgres wire-protocol severities and SQLSTATE codes.
package pgerror

import "fmt"

// Severity mirrors the severity field of a Postgres ErrorResponse.
type Severity string

const (
	SeverityFatal   Severity = "FATAL"
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// SQLSTATE codes of this façade's error taxonomy (§6). CodeAdminShutdown
// is defined but no code path sends it: connections are closed on
// shutdown without an error message.
const (
	CodeProtocolViolation = "08P01"
	CodeInvalidPassword   = "28P01"
	CodeSyntaxError       = "42601"
	CodeUndefinedColumn   = "42703"
	CodeAdminShutdown     = "57P01"
	CodeInternalError     = "XX000"
	CodeWarning           = "01000"
	CodeNoInfo            = "00000"
)

// Error is a typed façade error carrying the severity and SQLSTATE code
// needed to build an ErrorResponse.
type Error struct {
	Severity Severity
	Code     string
	Message  string
	// Supplier, when non-empty, names the supplier that raised the
	// error; Error() then prefixes the message as "<name>: <message>".
	Supplier string
}

func (e *Error) Error() string {
	if e.Supplier != "" {
		return fmt.Sprintf("%s: %s", e.Supplier, e.Message)
	}
	return e.Message
}

// New builds a plain ERROR-severity failure with the given SQLSTATE.
func New(code, format string, args ...any) *Error {
	return &Error{Severity: SeverityError, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Fatal builds a FATAL-severity failure; the caller must close the
// connection after sending it.
func Fatal(code, format string, args ...any) *Error {
	return &Error{Severity: SeverityFatal, Code: code, Message: fmt.Sprintf(format, args...)}
}

// SupplierSeverity is the severity a supplier reports its own failures
// at (§4.5); it is distinct from Severity because suppliers never speak
// in terms of the wire protocol directly.
type SupplierSeverity int

const (
	SupplierMessage SupplierSeverity = iota
	SupplierWarning
	SupplierFatal
)

func (s SupplierSeverity) String() string {
	switch s {
	case SupplierFatal:
		return "FATAL"
	case SupplierWarning:
		return "WARNING"
	default:
		return "MESSAGE"
	}
}

// SupplierError is returned by a Supplier's Execute/Schema methods on
// failure (§4.5). The dispatcher maps it onto a wire Error using
// FromSupplierError.
type SupplierError struct {
	Name     string
	Severity SupplierSeverity
	Msg      string
}

func (e *SupplierError) Error() string {
	return fmt.Sprintf("%s from %s supplier: %s", e.Severity, e.Name, e.Msg)
}

// FromSupplierError maps a supplier failure onto the wire error taxonomy
// per §4.5: FATAL -> XX000, WARNING -> 01000, MESSAGE -> 00000.
func FromSupplierError(se *SupplierError) *Error {
	var code string
	var sev Severity
	switch se.Severity {
	case SupplierFatal:
		code, sev = CodeInternalError, SeverityFatal
	case SupplierWarning:
		code, sev = CodeWarning, SeverityWarning
	default:
		code, sev = CodeNoInfo, SeverityError
	}
	return &Error{Severity: sev, Code: code, Message: se.Msg, Supplier: se.Name}
}
