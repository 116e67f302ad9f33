// Package drivercompat is the lookup table of canned responses PG
// client drivers expect during connection setup (§4.G), matched on
// whitespace-normalized text (exactly, except for a substring rule on
// version()). It is deliberately not derived from the parser: exactness is
// contractually required by real drivers, and a grammar-level match
// could drift from what psql/JDBC/dbeaver actually send.
//
// Grounded on the design note "implement as a lookup table keyed by
// normalized SQL text. Do not attempt to re-derive these via the
// parser", structured the way a parser package keeps its own lookup
// tables (hintRegex et al.) separate from dispatch logic.
package drivercompat

import (
	"strings"

	"github.com/opsfolio/udi-pgp/internal/parser"
	"github.com/opsfolio/udi-pgp/internal/wire"
)

// ServerVersion is the fixed version string this façade reports itself
// as (§4.G, §8 scenario 2).
const ServerVersion = "PostgreSQL 14.7 (Ubuntu 14.7-1.pgdg20.04+1) on x86_64-pc-linux-gnu, compiled by gcc (Ubuntu 9.4.0-1ubuntu1~20.04.1) 9.4.0, 64-bit"

// Response is a canned (FieldInfo[], Row[], CommandComplete tag) triple.
type Response struct {
	Fields []wire.FieldInfo
	Rows   []wire.Row
	Tag    string
}

// cannedEntry pairs a normalized-text matcher with its response builder
// so entries that need the session's authenticated user (current_schema)
// can be computed lazily.
type cannedEntry struct {
	match   func(normalized string) bool
	respond func(sessionUser string) Response
}

func exact(text string) func(string) bool {
	normalized := parser.Normalize(text)
	return func(n string) bool { return n == normalized }
}

var entries = []cannedEntry{
	{
		match: exact("SELECT current_schema(),session_user"),
		respond: func(sessionUser string) Response {
			return Response{
				Fields: []wire.FieldInfo{{Name: "current_schema"}, {Name: "session_user"}},
				Rows:   []wire.Row{{wire.Text("pg_catalog"), wire.Text(sessionUser)}},
				Tag:    "SELECT 1",
			}
		},
	},
	{
		match: func(n string) bool {
			return n == parser.Normalize("SELECT version();") ||
				n == parser.Normalize("SELECT version()") ||
				strings.Contains(strings.ToLower(n), "select version()")
		},
		respond: func(string) Response {
			return Response{
				Fields: []wire.FieldInfo{{Name: "version"}},
				Rows:   []wire.Row{{wire.Text(ServerVersion)}},
				Tag:    "SELECT 1",
			}
		},
	},
	{
		match: exact("SET search_path = pg_catalog"),
		respond: func(string) Response { return Response{Tag: "SET"} },
	},
	{
		match: exact("SET timezone = 'UTC'"),
		respond: func(string) Response { return Response{Tag: "SET"} },
	},
	{
		match: exact("SET datestyle = ISO"),
		respond: func(string) Response { return Response{Tag: "SET"} },
	},
	{
		match: exact("SET extra_float_digits = 2"),
		respond: func(string) Response { return Response{Tag: "SET"} },
	},
	{
		match: exact("START TRANSACTION ISOLATION LEVEL REPEATABLE READ"),
		respond: func(string) Response { return Response{Tag: "BEGIN"} },
	},
	{
		match: exact("COMMIT TRANSACTION"),
		respond: func(string) Response { return Response{Tag: "COMMIT"} },
	},
	{
		match: exact("CLOSE c1"),
		respond: func(string) Response { return Response{Tag: "CLOSE CURSOR"} },
	},
	{
		match: exact("SHOW DateStyle;"),
		respond: func(string) Response {
			return Response{
				Fields: []wire.FieldInfo{{Name: "DateStyle"}},
				Rows:   []wire.Row{{wire.Text("ISO, MDY")}},
				Tag:    "SHOW",
			}
		},
	},
	{
		match: exact("SHOW search_path"),
		respond: func(string) Response {
			return Response{
				Fields: []wire.FieldInfo{{Name: "search_path"}},
				Rows:   []wire.Row{{wire.Text("pg_catalog")}},
				Tag:    "SHOW",
			}
		},
	},
	{
		match: exact("SELECT typcategory FROM pg_catalog.pg_type WHERE 1<>1 LIMIT 1"),
		respond: func(string) Response {
			return Response{
				Fields: []wire.FieldInfo{{Name: "typcategory"}},
				Rows:   nil,
				Tag:    "SELECT 0",
			}
		},
	},
	{
		match: exact("select * from pg_catalog.pg_settings"),
		respond: func(string) Response {
			return Response{
				Fields: []wire.FieldInfo{{Name: "name"}, {Name: "setting"}},
				Rows:   nil,
				Tag:    "SELECT 0",
			}
		},
	},
}

// Lookup returns the canned response for sql, if it matches one of the
// known driver boilerplate statements exactly after whitespace
// normalization. The version() entry is the one exception: it also
// matches any statement that contains "select version()", ignoring case.
func Lookup(sql, sessionUser string) (Response, bool) {
	normalized := parser.Normalize(sql)
	for _, e := range entries {
		if e.match(normalized) {
			return e.respond(sessionUser), true
		}
	}
	return Response{}, false
}
