package oracle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-askdb/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-askdb/pkg/adapters/datasource/sqlite"
	"github.com/ekaya-inc/ekaya-askdb/pkg/adapters/datasource/sqlstore"
	"github.com/ekaya-inc/ekaya-askdb/pkg/config"
	"github.com/ekaya-inc/ekaya-askdb/pkg/llm"
	"github.com/ekaya-inc/ekaya-askdb/pkg/tenant"
)

var fixture = []string{
	"CREATE TABLE orders (id INTEGER PRIMARY KEY, company_id INTEGER NOT NULL, customer_id INTEGER, total REAL, status TEXT)",
	"CREATE TABLE customers (id INTEGER PRIMARY KEY, company_id INTEGER NOT NULL, name TEXT)",
	"CREATE TABLE products (id INTEGER PRIMARY KEY, company_id INTEGER NOT NULL, name TEXT)",
	"INSERT INTO customers (id, company_id, name) VALUES (1, 7, 'Ada'), (2, 7, 'Grace'), (3, 8, 'Linus')",
	"INSERT INTO orders (company_id, customer_id, total, status) VALUES (7, 1, 10.5, 'paid'), (7, 2, 20, 'open'), (8, 3, 99, 'paid')",
}

// newFixtureStore returns an in-memory SQLite store seeded with orders for
// companies 7 and 8.
func newFixtureStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	store, err := sqlite.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	for _, stmt := range fixture {
		_, err := store.DB().ExecContext(context.Background(), stmt)
		require.NoError(t, err)
	}
	return store
}

type recordedQuery struct {
	SQL  string
	Args []any
}

// recordingStore records every statement and can replace the catalog.
type recordingStore struct {
	datasource.Store
	tables []datasource.TableDescriptor

	mu      sync.Mutex
	queries []recordedQuery
}

func (s *recordingStore) ListTables(ctx context.Context) ([]datasource.TableDescriptor, error) {
	if s.tables != nil {
		return s.tables, nil
	}
	return s.Store.ListTables(ctx)
}

func (s *recordingStore) Query(ctx context.Context, sqlQuery string, args ...any) (*datasource.Result, error) {
	s.mu.Lock()
	s.queries = append(s.queries, recordedQuery{SQL: sqlQuery, Args: args})
	s.mu.Unlock()
	return s.Store.Query(ctx, sqlQuery, args...)
}

func (s *recordingStore) Queries() []recordedQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recordedQuery(nil), s.queries...)
}

// scriptedLLM answers each prompt kind with a fixed completion.
type scriptedLLM struct {
	Relevance string
	Query     string
	Answer    string
	NoData    string
}

func (s scriptedLLM) client() *llm.MockClient {
	m := llm.NewMockClient()
	m.CompleteFunc = func(_ context.Context, req llm.CompletionRequest) (string, error) {
		switch {
		case strings.Contains(req.Prompt, "Relevant Table Names:"):
			return s.Relevance, nil
		case strings.HasSuffix(req.Prompt, `Answer: "`):
			return s.Answer, nil
		default:
			return s.Query, nil
		}
	}
	m.ChatFunc = func(context.Context, []llm.Message) (string, error) {
		return s.NoData, nil
	}
	return m
}

func testDirectory() *tenant.StaticDirectory {
	dir := tenant.NewStaticDirectory()
	dir.Add("key-7", "7", "1")
	dir.Add("key-8", "8", "3")
	dir.Add("key-9", "9", "4")
	return dir
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.MaxTablesBeforePerformingLookup = 10
	return opts
}

type testEnv struct {
	engine *Engine
	store  *recordingStore
	llm    *llm.MockClient
	logs   *observer.ObservedLogs
}

func newTestEnv(t *testing.T, store datasource.Store, client *llm.MockClient, opts Options) *testEnv {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	recording, ok := store.(*recordingStore)
	if !ok {
		recording = &recordingStore{Store: store}
	}
	engine, err := NewEngine(Deps{
		Store:    recording,
		LLM:      client,
		Resolver: tenant.NewResolver(testDirectory(), nil, logger),
		Logger:   logger,
	}, opts)
	require.NoError(t, err)
	return &testEnv{engine: engine, store: recording, llm: client, logs: logs}
}

// session returns a session authenticated with secretKey.
func (env *testEnv) session(t *testing.T, secretKey string) *Session {
	t.Helper()
	s := env.engine.NewSession()
	ok, err := s.AuthenticateWithSecretKey(context.Background(), secretKey)
	require.NoError(t, err)
	require.True(t, ok)
	return s
}

func placeholderOptions() Options {
	opts := testOptions()
	opts.ScopingStrategy = config.ScopingPlaceholder
	return opts
}

func syntheticTables(n int, names ...string) []datasource.TableDescriptor {
	tables := make([]datasource.TableDescriptor, 0, n)
	for _, name := range names {
		tables = append(tables, datasource.NewTableDescriptor("main", name, "", true, []datasource.Column{{Name: "id", DataType: "INTEGER"}}))
	}
	for i := len(tables); i < n; i++ {
		tables = append(tables, datasource.NewTableDescriptor("main", fmt.Sprintf("filler_%02d", i), "", true, nil))
	}
	return tables
}
