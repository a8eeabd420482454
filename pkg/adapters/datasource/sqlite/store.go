// Package sqlite provides a SQLite store backed by the pure Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/ekaya-inc/ekaya-askdb/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-askdb/pkg/adapters/datasource/sqlstore"
	"github.com/ekaya-inc/ekaya-askdb/pkg/config"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

const listColumnsQuery = `
	SELECT 'main', m.name, p.name, COALESCE(p.type, ''), p."notnull" = 0
	FROM sqlite_master m
	JOIN pragma_table_info(m.name) p
	WHERE m.type IN ('table', 'view')
	  AND m.name NOT LIKE 'sqlite_%'
	ORDER BY m.name, p.cid
`

type catalog struct{}

func (catalog) ListTables(ctx context.Context, db *sql.DB, tenantSchemaPrefix string) ([]datasource.TableDescriptor, error) {
	rows, err := db.QueryContext(ctx, listColumnsQuery)
	if err != nil {
		return nil, fmt.Errorf("query sqlite catalog: %w", err)
	}
	defer rows.Close()
	// SQLite has a single schema namespace per file, so every table is shared.
	return sqlstore.ScanColumns(rows, "", func(string) bool { return true })
}

// Open opens a SQLite database. dsn is a file path or ":memory:".
func Open(dsn string, logger *zap.Logger) (*sqlstore.Store, error) {
	store, err := sqlstore.Open(DriverName, dsn, options(), logger)
	if err != nil {
		return nil, err
	}
	if dsn == ":memory:" {
		// Each connection to :memory: is a separate database.
		store.DB().SetMaxOpenConns(1)
	}
	return store, nil
}

// Wrap adapts an existing SQLite pool.
func Wrap(db *sql.DB, logger *zap.Logger) *sqlstore.Store {
	return sqlstore.New(db, options(), logger)
}

func options() sqlstore.Options {
	return sqlstore.Options{
		Dialect: datasource.SQLite,
		Catalog: catalog{},
	}
}

func init() {
	datasource.Register(datasource.StoreRegistration{
		Info: datasource.StoreInfo{
			Type:        "sqlite",
			DisplayName: "SQLite",
			Description: "Local SQLite database file",
		},
		Open: func(ctx context.Context, cfg config.ConnectionConfig, logger *zap.Logger) (datasource.Store, error) {
			dsn, err := cfg.ResolveDSN()
			if err != nil {
				return nil, err
			}
			return Open(dsn, logger)
		},
	})
}
