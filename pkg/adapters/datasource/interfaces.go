package datasource

import (
	"context"
	"strings"
)

// SchemaExtractor lists the tables a store exposes to question answering.
type SchemaExtractor interface {
	// ListTables returns every user table with its columns. System schemas
	// are excluded. Tables in a tenant-owned schema carry that tenant's id.
	ListTables(ctx context.Context) ([]TableDescriptor, error)
}

// QueryExecutor runs read statements.
type QueryExecutor interface {
	// Query runs a single statement with positional bind arguments written
	// in the store's dialect and returns all rows.
	Query(ctx context.Context, sqlQuery string, args ...any) (*Result, error)
}

// Store is a relational store the pipeline can introspect and query.
// Implementations are safe for concurrent use and own their connection pool.
type Store interface {
	SchemaExtractor
	QueryExecutor

	// DialectName is the human readable SQL variant, e.g. "PostgreSQL".
	DialectName() string

	// Dialect describes bind marker syntax and identifier quoting.
	Dialect() Dialect

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the connection pool.
	Close() error
}

// Column describes one column of a table.
type Column struct {
	Name       string `json:"name"`
	DataType   string `json:"data_type"`
	IsNullable bool   `json:"is_nullable"`
}

// TableDescriptor describes a table visible to the pipeline.
type TableDescriptor struct {
	Schema string `json:"schema,omitempty"`
	Name   string `json:"name"`
	// TenantID is the owning tenant, empty for shared tables.
	TenantID string   `json:"tenant_id,omitempty"`
	Columns  []Column `json:"columns"`

	// defaultSchema is set by the store when Schema is the one unqualified
	// names resolve to.
	defaultSchema bool
}

// NewTableDescriptor builds a descriptor. isDefaultSchema marks tables
// that can be referenced without a schema qualifier.
func NewTableDescriptor(schema, name, tenantID string, isDefaultSchema bool, columns []Column) TableDescriptor {
	return TableDescriptor{
		Schema:        schema,
		Name:          name,
		TenantID:      tenantID,
		Columns:       columns,
		defaultSchema: isDefaultSchema || schema == "",
	}
}

// QualifiedName is the name a query should use to reference the table.
func (t TableDescriptor) QualifiedName() string {
	if t.defaultSchema || t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// Shared reports whether the table belongs to no tenant.
func (t TableDescriptor) Shared() bool {
	return t.TenantID == ""
}

// MatchesName reports whether name refers to this table, ignoring case.
// Both the bare and the qualified name match.
func (t TableDescriptor) MatchesName(name string) bool {
	name = strings.Trim(strings.TrimSpace(name), `"'`+"`")
	return strings.EqualFold(name, t.Name) || strings.EqualFold(name, t.QualifiedName())
}

// DefaultTenantSchemaPrefix marks schemas owned by one tenant.
const DefaultTenantSchemaPrefix = "tenant_"

// TenantFromSchema returns the tenant id encoded in a schema name such as
// tenant_7, or "" when the schema is shared.
func TenantFromSchema(prefix, schema string) string {
	if prefix == "" {
		return ""
	}
	if len(schema) <= len(prefix) || !strings.EqualFold(schema[:len(prefix)], prefix) {
		return ""
	}
	return schema[len(prefix):]
}
