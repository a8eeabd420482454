// Package mssql provides a Microsoft SQL Server store using go-mssqldb.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-askdb/pkg/adapters/datasource/sqlstore"
	"github.com/ekaya-inc/ekaya-askdb/pkg/config"
)

// DriverName is the database/sql driver registered by go-mssqldb.
const DriverName = "sqlserver"

const listColumnsQuery = `
	SELECT c.TABLE_SCHEMA, c.TABLE_NAME, c.COLUMN_NAME, c.DATA_TYPE,
	       CAST(CASE WHEN c.IS_NULLABLE = 'YES' THEN 1 ELSE 0 END AS BIT)
	FROM INFORMATION_SCHEMA.COLUMNS c
	JOIN INFORMATION_SCHEMA.TABLES t
	  ON t.TABLE_SCHEMA = c.TABLE_SCHEMA AND t.TABLE_NAME = c.TABLE_NAME
	WHERE t.TABLE_TYPE IN ('BASE TABLE', 'VIEW')
	  AND c.TABLE_SCHEMA NOT IN ('sys', 'INFORMATION_SCHEMA')
	ORDER BY c.TABLE_SCHEMA, c.TABLE_NAME, c.ORDINAL_POSITION
`

type catalog struct{}

func (catalog) ListTables(ctx context.Context, db *sql.DB, tenantSchemaPrefix string) ([]datasource.TableDescriptor, error) {
	var defaultSchema string
	if err := db.QueryRowContext(ctx, "SELECT SCHEMA_NAME()").Scan(&defaultSchema); err != nil {
		return nil, fmt.Errorf("query default schema: %w", err)
	}

	rows, err := db.QueryContext(ctx, listColumnsQuery)
	if err != nil {
		return nil, fmt.Errorf("query sql server catalog: %w", err)
	}
	defer rows.Close()
	return sqlstore.ScanColumns(rows, tenantSchemaPrefix, func(schema string) bool {
		return strings.EqualFold(schema, defaultSchema)
	})
}

// Open opens a SQL Server pool. The DSN is a sqlserver:// URL or an ADO
// connection string.
func Open(dsn string, cfg config.ConnectionConfig, logger *zap.Logger) (*sqlstore.Store, error) {
	prefix := cfg.TenantSchemaPrefix
	if prefix == "" {
		prefix = datasource.DefaultTenantSchemaPrefix
	}
	return sqlstore.Open(DriverName, dsn, sqlstore.Options{
		Dialect:            datasource.SQLServer,
		Catalog:            catalog{},
		TenantSchemaPrefix: prefix,
		MaxConnections:     int(cfg.MaxConnections),
	}, logger)
}

func init() {
	datasource.Register(datasource.StoreRegistration{
		Info: datasource.StoreInfo{
			Type:        "sqlserver",
			DisplayName: "Microsoft SQL Server",
			Description: "Connect to SQL Server 2016+ and Azure SQL Database",
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
