// Package sqlstore implements datasource.Store over database/sql. Engine
// specific packages supply the driver, dialect and catalog query.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-askdb/pkg/logging"
)

// Catalog lists tables for one engine.
type Catalog interface {
	ListTables(ctx context.Context, db *sql.DB, tenantSchemaPrefix string) ([]datasource.TableDescriptor, error)
}

// Options configures a Store.
type Options struct {
	Dialect            datasource.Dialect
	Catalog            Catalog
	TenantSchemaPrefix string
	MaxConnections     int
}

// Store is a database/sql backed datasource.Store.
type Store struct {
	db      *sql.DB
	opts    Options
	ownedDB bool
	logger  *zap.Logger
}

// Open opens a pool with the given driver and wraps it.
func Open(driverName, dsn string, opts Options, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	if opts.MaxConnections > 0 {
		db.SetMaxOpenConns(opts.MaxConnections)
	}
	s := New(db, opts, logger)
	s.ownedDB = true
	return s, nil
}

// New wraps an existing pool. The caller keeps ownership of db.
func New(db *sql.DB, opts Options, logger *zap.Logger) *Store {
	return &Store{
		db:     db,
		opts:   opts,
		logger: logging.OrNop(logger),
	}
}

// DB returns the underlying pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) DialectName() string {
	return s.opts.Dialect.Name
}

func (s *Store) Dialect() datasource.Dialect {
	return s.opts.Dialect
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) ListTables(ctx context.Context) ([]datasource.TableDescriptor, error) {
	if s.opts.Catalog == nil {
		return nil, fmt.Errorf("%s store has no catalog", s.opts.Dialect.Name)
	}
	tables, err := s.opts.Catalog.ListTables(ctx, s.db, s.opts.TenantSchemaPrefix)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	s.logger.Debug("listed tables", zap.Int("count", len(tables)))
	return tables, nil
}

// Query runs sqlQuery and collects every row.
func (s *Store) Query(ctx context.Context, sqlQuery string, args ...any) (*datasource.Result, error) {
	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()
	return Collect(rows)
}

// Collect reads all rows into a Result.
func Collect(rows *sql.Rows) (*datasource.Result, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	result := datasource.NewResult(columns)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result.Append(values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return result, nil
}

// Close closes the pool if the store opened it.
func (s *Store) Close() error {
	if s.ownedDB {
		return s.db.Close()
	}
	return nil
}

// ScanColumns groups (schema, table, column, type, nullable) rows, ordered
// by schema and table, into descriptors. defaultSchema reports whether a
// schema can be omitted when referencing its tables.
func ScanColumns(rows *sql.Rows, tenantSchemaPrefix string, defaultSchema func(schema string) bool) ([]datasource.TableDescriptor, error) {
	var (
		tables  []datasource.TableDescriptor
		current *datasource.TableDescriptor
		columns []datasource.Column
	)
	flush := func() {
		if current != nil {
			current.Columns = columns
			tables = append(tables, *current)
		}
	}

	for rows.Next() {
		var schema, table, column, dataType string
		var nullable bool
		if err := rows.Scan(&schema, &table, &column, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		if current == nil || current.Schema != schema || current.Name != table {
			flush()
			td := datasource.NewTableDescriptor(schema, table,
				datasource.TenantFromSchema(tenantSchemaPrefix, schema), defaultSchema(schema), nil)
			current = &td
			columns = nil
		}
		columns = append(columns, datasource.Column{Name: column, DataType: dataType, IsNullable: nullable})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	flush()
	return tables, nil
}

// Ensure Store implements datasource.Store at compile time.
var _ datasource.Store = (*Store)(nil)
