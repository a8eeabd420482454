package oracle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-askdb/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-askdb/pkg/tenant"
)

func tableNames(tables []datasource.TableDescriptor) []string {
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	return names
}

func TestListTables_BelowThresholdSkipsRelevance(t *testing.T) {
	client := scriptedLLM{Relevance: "orders"}.client()
	env := newTestEnv(t, newFixtureStore(t), client, testOptions())

	ctx, c := env.engine.newCall(context.Background(), tenant.Unscoped(), "How many orders?")
	tables, err := env.engine.listTables(ctx, c)
	require.NoError(t, err)

	assert.Equal(t, []string{"customers", "orders", "products"}, tableNames(tables))
	assert.Empty(t, client.CompleteCalls(), "relevance filter must not run below the threshold")
}

func TestListTables_AboveThresholdNarrows(t *testing.T) {
	client := scriptedLLM{Relevance: "orders, customers"}.client()
	store := &recordingStore{
		Store:  newFixtureStore(t),
		tables: syntheticTables(50, "customers", "orders"),
	}
	env := newTestEnv(t, store, client, testOptions())

	ctx, c := env.engine.newCall(context.Background(), tenant.Unscoped(), "Which customers ordered?")
	tables, err := env.engine.listTables(ctx, c)
	require.NoError(t, err)

	assert.Equal(t, []string{"customers", "orders"}, tableNames(tables))
	calls := client.CompleteCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, float32(0), calls[0].Temperature)
	assert.Equal(t, []string{"\n"}, calls[0].Stop)
	assert.Contains(t, calls[0].Prompt, "Question: Which customers ordered?")
	assert.Contains(t, calls[0].Prompt, "filler_49")
}

func TestListTables_RelevanceIsCaseInsensitive(t *testing.T) {
	client := scriptedLLM{Relevance: " ORDERS ,Customers, unknown"}.client()
	store := &recordingStore{Store: newFixtureStore(t), tables: syntheticTables(12, "customers", "orders")}
	env := newTestEnv(t, store, client, testOptions())

	ctx, c := env.engine.newCall(context.Background(), tenant.Unscoped(), "q")
	tables, err := env.engine.listTables(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, []string{"customers", "orders"}, tableNames(tables))
}

func TestListTables_NoRecognizableNamesIsEmpty(t *testing.T) {
	client := scriptedLLM{Relevance: "nothing relevant here"}.client()
	store := &recordingStore{Store: newFixtureStore(t), tables: syntheticTables(12, "orders")}
	env := newTestEnv(t, store, client, testOptions())

	ctx, c := env.engine.newCall(context.Background(), tenant.Unscoped(), "q")
	tables, err := env.engine.listTables(ctx, c)
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestListTables_MemoizedPerCall(t *testing.T) {
	client := scriptedLLM{Relevance: "orders"}.client()
	store := &recordingStore{Store: newFixtureStore(t), tables: syntheticTables(20, "orders")}
	env := newTestEnv(t, store, client, testOptions())

	ctx, c := env.engine.newCall(context.Background(), tenant.Unscoped(), "q")
	first, err := env.engine.listTables(ctx, c)
	require.NoError(t, err)
	second, err := env.engine.listTables(ctx, c)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, client.CompleteCalls(), 1)

	_, other := env.engine.newCall(context.Background(), tenant.Unscoped(), "q")
	_, err = env.engine.listTables(ctx, other)
	require.NoError(t, err)
	assert.Len(t, client.CompleteCalls(), 2, "a new call recomputes the table list")
}

func TestVisibleTables(t *testing.T) {
	all := []datasource.TableDescriptor{
		datasource.NewTableDescriptor("public", "plans", "", true, nil),
		datasource.NewTableDescriptor("tenant_7", "invoices", "7", false, nil),
		datasource.NewTableDescriptor("tenant_8", "invoices", "8", false, nil),
	}

	scoped := visibleTables(all, tenant.Scoped(tenant.Tenant{CompanyID: "7", UserID: "1"}))
	require.Len(t, scoped, 2)
	assert.Equal(t, "plans", scoped[0].QualifiedName())
	assert.Equal(t, "tenant_7.invoices", scoped[1].QualifiedName())

	assert.Len(t, visibleTables(all, tenant.Unscoped()), 3)
}

func TestParseTableNames(t *testing.T) {
	assert.Equal(t, []string{"orders", "customers"}, parseTableNames("orders, customers"))
	assert.Equal(t, []string{"a"}, parseTableNames(" a ,, "))
	assert.Nil(t, parseTableNames(""))
}
