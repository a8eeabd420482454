// Package mysql provides a MySQL store using go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	driver "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-askdb/pkg/adapters/datasource/sqlstore"
	"github.com/ekaya-inc/ekaya-askdb/pkg/config"
)

// MySQL schemas are databases; tables in the connection's database are
// referenced unqualified.
const listColumnsQuery = `
	SELECT c.table_schema, c.table_name, c.column_name, c.data_type, c.is_nullable = 'YES'
	FROM information_schema.columns c
	JOIN information_schema.tables t
	  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
	WHERE t.table_type IN ('BASE TABLE', 'VIEW')
	  AND c.table_schema NOT IN ('mysql', 'information_schema', 'performance_schema', 'sys')
	ORDER BY c.table_schema, c.table_name, c.ordinal_position
`

type catalog struct{}

func (catalog) ListTables(ctx context.Context, db *sql.DB, tenantSchemaPrefix string) ([]datasource.TableDescriptor, error) {
	var current string
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(DATABASE(), '')").Scan(&current); err != nil {
		return nil, fmt.Errorf("query current database: %w", err)
	}

	rows, err := db.QueryContext(ctx, listColumnsQuery)
	if err != nil {
		return nil, fmt.Errorf("query mysql catalog: %w", err)
	}
	defer rows.Close()
	return sqlstore.ScanColumns(rows, tenantSchemaPrefix, func(schema string) bool {
		return strings.EqualFold(schema, current)
	})
}

// Open opens a MySQL pool. The DSN uses the driver's format, e.g.
// user:pass@tcp(host:3306)/db.
func Open(dsn string, cfg config.ConnectionConfig, logger *zap.Logger) (*sqlstore.Store, error) {
	parsed, err := driver.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	// Text protocol rows would otherwise scan as []byte for DATETIME.
	parsed.ParseTime = true
	return sqlstore.Open("mysql", parsed.FormatDSN(), options(cfg), logger)
}

func options(cfg config.ConnectionConfig) sqlstore.Options {
	prefix := cfg.TenantSchemaPrefix
	if prefix == "" {
		prefix = datasource.DefaultTenantSchemaPrefix
	}
	return sqlstore.Options{
		Dialect:            datasource.MySQL,
		Catalog:            catalog{},
		TenantSchemaPrefix: prefix,
		MaxConnections:     int(cfg.MaxConnections),
	}
}

func init() {
	datasource.Register(datasource.StoreRegistration{
		Info: datasource.StoreInfo{
			Type:        "mysql",
			DisplayName: "MySQL",
			Description: "Connect to MySQL 8+ and MariaDB",
		},
		Open: func(ctx context.Context, cfg config.ConnectionConfig, logger *zap.Logger) (datasource.Store, error) {
			dsn, err := cfg.ResolveDSN()
			if err != nil {
				return nil, err
			}
			return Open(dsn, cfg, logger)
		},
	})
}
