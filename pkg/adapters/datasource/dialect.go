package datasource

import (
	"fmt"
	"strings"
)

// MarkerStyle is the positional bind marker syntax of a dialect.
type MarkerStyle int

const (
	// MarkerDollar is PostgreSQL's $1, $2, ...
	MarkerDollar MarkerStyle = iota
	// MarkerQuestion is the ? used by SQLite and MySQL.
	MarkerQuestion
	// MarkerAtP is SQL Server's @p1, @p2, ...
	MarkerAtP
)

// Dialect describes how a store expects SQL to be written.
type Dialect struct {
	// Name is the display name used in prompts.
	Name string
	// Markers selects the bind marker syntax.
	Markers MarkerStyle
	// QuoteOpen and QuoteClose delimit identifiers.
	QuoteOpen, QuoteClose string
	// BackslashEscapes is set when backslash escapes inside '...' literals.
	BackslashEscapes bool
	// BracketIdentifiers is set when [name] is a quoted identifier.
	BracketIdentifiers bool
}

// Dialects of the built-in stores.
var (
	PostgreSQL = Dialect{Name: "PostgreSQL", Markers: MarkerDollar, QuoteOpen: `"`, QuoteClose: `"`}
	SQLite     = Dialect{Name: "SQLite", Markers: MarkerQuestion, QuoteOpen: `"`, QuoteClose: `"`, BracketIdentifiers: true}
	MySQL      = Dialect{Name: "MySQL", Markers: MarkerQuestion, QuoteOpen: "`", QuoteClose: "`", BackslashEscapes: true}
	SQLServer  = Dialect{Name: "SQLServer", Markers: MarkerAtP, QuoteOpen: "[", QuoteClose: "]", BracketIdentifiers: true}
)

// SameValueMarker returns the marker for the n-th occurrence (from 1) of a
// value that is bound once per statement. Dialects with numbered markers
// reuse the first argument; ? markers need one argument per occurrence,
// see BindSameValue.
func (d Dialect) SameValueMarker(n int) string {
	switch d.Markers {
	case MarkerQuestion:
		return "?"
	case MarkerAtP:
		return "@p1"
	default:
		return "$1"
	}
}

// Marker returns the marker for the n-th distinct argument (from 1).
func (d Dialect) Marker(n int) string {
	switch d.Markers {
	case MarkerQuestion:
		return "?"
	case MarkerAtP:
		return fmt.Sprintf("@p%d", n)
	default:
		return fmt.Sprintf("$%d", n)
	}
}

// BindSameValue returns the argument list for a statement that references
// value through count SameValueMarker markers.
func (d Dialect) BindSameValue(value any, count int) []any {
	if count <= 0 {
		return nil
	}
	if d.Markers != MarkerQuestion {
		return []any{value}
	}
	args := make([]any, count)
	for i := range args {
		args[i] = value
	}
	return args
}

// QuoteIdentifier quotes a single identifier, doubling any closing delimiter.
func (d Dialect) QuoteIdentifier(name string) string {
	return d.QuoteOpen + strings.ReplaceAll(name, d.QuoteClose, d.QuoteClose+d.QuoteClose) + d.QuoteClose
}

// QuoteQualified quotes schema.table, or just table when schema is empty.
func (d Dialect) QuoteQualified(schema, table string) string {
	if schema == "" {
		return d.QuoteIdentifier(table)
	}
	return d.QuoteIdentifier(schema) + "." + d.QuoteIdentifier(table)
}
