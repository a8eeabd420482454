// Package testhelpers starts shared PostgreSQL containers for integration
// tests.
package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/database"
)

// PostgresImage is the image used for integration tests.
const PostgresImage = "postgres:16-alpine"

// TestDB holds a shared test database container and connection pool.
type TestDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	ConnStr   string
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a shared PostgreSQL container for integration tests.
// The container is created once and reused across all tests in the run.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})

	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}

	return sharedTestDB
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "askdb_test",
			"POSTGRES_USER":     "askdb",
			"POSTGRES_PASSWORD": "test_password",
		},
		// The entrypoint restarts the server once after init scripts.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://askdb:test_password@%s:%s/askdb_test?sslmode=disable",
		host, port.Port())

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pingWithRetry(ctx, pool, 10, 500*time.Millisecond); err != nil {
		pool.Close()
		return nil, err
	}

	return &TestDB{
		Container: container,
		Pool:      pool,
		ConnStr:   connStr,
	}, nil
}

// DirectoryDB is the shared test database with the tenant directory
// migrations applied.
type DirectoryDB struct {
	DB      *database.DB
	ConnStr string
}

var (
	sharedDirectoryDB     *DirectoryDB
	sharedDirectoryDBOnce sync.Once
	sharedDirectoryDBErr  error
)

// GetDirectoryDB returns the shared database with migrations applied.
func GetDirectoryDB(t *testing.T) *DirectoryDB {
	t.Helper()

	// Ensure test container is running first
	testDB := GetTestDB(t)

	sharedDirectoryDBOnce.Do(func() {
		sharedDirectoryDB, sharedDirectoryDBErr = setupDirectoryDB(testDB)
	})

	if sharedDirectoryDBErr != nil {
		t.Fatalf("Failed to setup directory database: %v", sharedDirectoryDBErr)
	}

	return sharedDirectoryDB
}

func setupDirectoryDB(testDB *TestDB) (*DirectoryDB, error) {
	db, err := database.NewConnection(context.Background(), &database.Config{
		URL:            testDB.ConnStr,
		MaxConnections: 5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to directory database: %w", err)
	}

	sqlDB := db.SQL()
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DirectoryDB{
		DB:      db,
		ConnStr: testDB.ConnStr,
	}, nil
}

// SeedCompany inserts a company and one chat bot secret key for it. Rows
// that already exist are left alone so tests can share the container.
func (d *DirectoryDB) SeedCompany(t *testing.T, companyID, userID int64, secretKey string) {
	t.Helper()
	ctx := context.Background()

	if _, err := d.DB.Exec(ctx,
		"INSERT INTO companies (id, user_id, name) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING",
		companyID, userID, fmt.Sprintf("company-%d", companyID)); err != nil {
		t.Fatalf("failed to seed company %d: %v", companyID, err)
	}
	if _, err := d.DB.Exec(ctx,
		"INSERT INTO chat_bots (secret_key, company_id) VALUES ($1, $2) ON CONFLICT (secret_key) DO NOTHING",
		secretKey, companyID); err != nil {
		t.Fatalf("failed to seed secret key for company %d: %v", companyID, err)
	}
}

func pingWithRetry(ctx context.Context, pool *pgxpool.Pool, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = pool.Ping(ctx); err == nil {
			return nil
		}
		time.Sleep(delay)
	}
	return fmt.Errorf("test database never became reachable: %w", err)
}
