// Package postgres provides a PostgreSQL store using pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-askdb/pkg/config"
	"github.com/ekaya-inc/ekaya-askdb/pkg/logging"
)

const defaultMaxConns = 10

const listColumnsQuery = `
	SELECT
		c.table_schema,
		c.table_name,
		c.column_name,
		c.data_type,
		c.is_nullable = 'YES' AS is_nullable,
		c.table_schema = current_schema() AS is_default
	FROM information_schema.columns c
	JOIN information_schema.tables t
	  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
	WHERE t.table_type IN ('BASE TABLE', 'VIEW')
	  AND c.table_schema NOT IN ('pg_catalog', 'information_schema')
	  AND c.table_schema NOT LIKE 'pg_toast%'
	ORDER BY c.table_schema, c.table_name, c.ordinal_position
`

// Store provides PostgreSQL introspection and query execution.
type Store struct {
	pool               *pgxpool.Pool
	tenantSchemaPrefix string
	ownedPool          bool // true if we created the pool
	logger             *zap.Logger
}

// Open creates a pool from a postgres:// URL or keyword DSN.
func Open(ctx context.Context, dsn string, cfg config.ConnectionConfig, logger *zap.Logger) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConnections
	if poolConfig.MaxConns == 0 {
		poolConfig.MaxConns = defaultMaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	s := New(pool, cfg.TenantSchemaPrefix, logger)
	s.ownedPool = true
	return s, nil
}

// New wraps an existing pool. The caller keeps ownership of pool.
// An empty prefix selects datasource.DefaultTenantSchemaPrefix.
func New(pool *pgxpool.Pool, tenantSchemaPrefix string, logger *zap.Logger) *Store {
	if tenantSchemaPrefix == "" {
		tenantSchemaPrefix = datasource.DefaultTenantSchemaPrefix
	}
	return &Store{
		pool:               pool,
		tenantSchemaPrefix: tenantSchemaPrefix,
		logger:             logging.OrNop(logger),
	}
}

func (s *Store) DialectName() string {
	return datasource.PostgreSQL.Name
}

func (s *Store) Dialect() datasource.Dialect {
	return datasource.PostgreSQL
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// ListTables returns user tables across all schemas. Tables in a schema
// named <prefix><id> belong to tenant <id>.
func (s *Store) ListTables(ctx context.Context) ([]datasource.TableDescriptor, error) {
	rows, err := s.pool.Query(ctx, listColumnsQuery)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var tables []datasource.TableDescriptor
	var columns []datasource.Column
	var current *datasource.TableDescriptor
	flush := func() {
		if current != nil {
			current.Columns = columns
			tables = append(tables, *current)
		}
	}

	for rows.Next() {
		var schema, table, column, dataType string
		var nullable, isDefault bool
		if err := rows.Scan(&schema, &table, &column, &dataType, &nullable, &isDefault); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		if current == nil || current.Schema != schema || current.Name != table {
			flush()
			td := datasource.NewTableDescriptor(schema, table,
				datasource.TenantFromSchema(s.tenantSchemaPrefix, schema), isDefault, nil)
			current = &td
			columns = nil
		}
		columns = append(columns, datasource.Column{Name: column, DataType: dataType, IsNullable: nullable})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	flush()

	s.logger.Debug("listed tables", zap.Int("count", len(tables)))
	return tables, nil
}

// Query runs a statement with $n bind arguments. pgx handles
// parameterized queries natively.
func (s *Store) Query(ctx context.Context, sqlQuery string, args ...any) (*datasource.Result, error) {
	rows, err := s.pool.Query(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = fd.Name
	}

	result := datasource.NewResult(columns)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}
		result.Append(values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return result, nil
}

// Close releases the store (but NOT the pool if it was supplied by the caller).
func (s *Store) Close() error {
	if s.ownedPool && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func init() {
	datasource.Register(datasource.StoreRegistration{
		Info: datasource.StoreInfo{
			Type:        "postgres",
			DisplayName: "PostgreSQL",
			Description: "Connect to PostgreSQL 12+, Aurora PostgreSQL, Supabase",
		},
		Open: func(ctx context.Context, cfg config.ConnectionConfig, logger *zap.Logger) (datasource.Store, error) {
			dsn, err := cfg.ResolveDSN()
			if err != nil {
				return nil, err
			}
			return Open(ctx, dsn, cfg, logger)
		},
	})
}

// Ensure Store implements datasource.Store at compile time.
var _ datasource.Store = (*Store)(nil)
