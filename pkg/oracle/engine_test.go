package oracle

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-askdb/pkg/config"
	"github.com/ekaya-inc/ekaya-askdb/pkg/llm"
	"github.com/ekaya-inc/ekaya-askdb/pkg/tenant"
)

type brokenDirectory struct{}

func (brokenDirectory) FindBySecretKey(context.Context, string) (string, error) {
	return "", errors.New("connection refused")
}

func (brokenDirectory) FindCompany(context.Context, string) (string, error) {
	return "", errors.New("connection refused")
}

func TestNewEngine_Validation(t *testing.T) {
	store := newFixtureStore(t)
	resolver := tenant.NewResolver(testDirectory(), nil, nil)

	_, err := NewEngine(Deps{LLM: llm.NewMockClient(), Resolver: resolver}, DefaultOptions())
	assert.ErrorContains(t, err, "store is required")

	_, err = NewEngine(Deps{Store: store, Resolver: resolver}, DefaultOptions())
	assert.ErrorContains(t, err, "llm client is required")

	_, err = NewEngine(Deps{Store: store, LLM: llm.NewMockClient()}, DefaultOptions())
	assert.ErrorContains(t, err, "resolver is required")

	opts := DefaultOptions()
	opts.ScopingStrategy = config.ScopingPlaceholder
	opts.UserPlaceholder = "user_id"
	_, err = NewEngine(Deps{Store: store, LLM: llm.NewMockClient(), Resolver: resolver}, opts)
	assert.ErrorContains(t, err, "must look like {{name}}")

	opts = DefaultOptions()
	opts.ScopingStrategy = "regex"
	_, err = NewEngine(Deps{Store: store, LLM: llm.NewMockClient(), Resolver: resolver}, opts)
	assert.ErrorContains(t, err, "unknown scoping strategy")

	engine, err := NewEngine(Deps{Store: store, LLM: llm.NewMockClient(), Resolver: resolver}, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, DefaultOptions(), engine.Options())
}

func TestSession_AuthenticateWithSecretKey(t *testing.T) {
	env := newTestEnv(t, newFixtureStore(t), llm.NewMockClient(), testOptions())
	s := env.engine.NewSession()
	ctx := context.Background()

	assert.False(t, s.Scope().IsScoped())

	ok, err := s.AuthenticateWithSecretKey(ctx, "key-7")
	require.NoError(t, err)
	assert.True(t, ok)
	bound, _ := s.Scope().Tenant()
	assert.Equal(t, tenant.Tenant{CompanyID: "7", UserID: "1"}, bound)

	ok, err = s.AuthenticateWithSecretKey(ctx, "key-8")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "8", s.Scope().CompanyID(), "rebinding replaces the tenant")

	ok, err = s.AuthenticateWithSecretKey(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, s.Scope().IsScoped(), "a failed authentication leaves the session unbound")

	ok, err = s.AuthenticateWithSecretKey(ctx, "' OR '1'='1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSession_DirectoryFailure(t *testing.T) {
	store := newFixtureStore(t)
	engine, err := NewEngine(Deps{
		Store:    store,
		LLM:      llm.NewMockClient(),
		Resolver: tenant.NewResolver(brokenDirectory{}, nil, nil),
	}, testOptions())
	require.NoError(t, err)
	s := engine.NewSession()

	ok, err := s.AuthenticateWithSecretKey(context.Background(), "key-7")
	assert.False(t, ok)
	require.ErrorIs(t, err, ErrCompanyNotFound)
	assert.Contains(t, err.Error(), CompanyNotFound)

	err = s.BindCompany(context.Background(), "7")
	assert.ErrorIs(t, err, ErrCompanyNotFound)
	assert.False(t, s.Scope().IsScoped())
}

func TestSession_BindCompany(t *testing.T) {
	env := newTestEnv(t, newFixtureStore(t), llm.NewMockClient(), testOptions())
	s := env.engine.NewSession()

	require.NoError(t, s.BindCompany(context.Background(), "8"))
	bound, ok := s.Scope().Tenant()
	require.True(t, ok)
	assert.Equal(t, "3", bound.UserID)

	err := s.BindCompany(context.Background(), "404")
	assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
	assert.False(t, s.Scope().IsScoped())
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.OracleConfig{
		StrictMode:                      true,
		MaxTablesBeforePerformingLookup: 4,
		ScopingStrategy:                 config.ScopingPlaceholder,
		UserPlaceholder:                 "{{uid}}",
		QueryMaxTokens:                  64,
		AnswerMaxTokens:                 128,
		AnswerTemperature:               0.2,
	})
	assert.True(t, opts.StrictMode)
	assert.False(t, opts.RequireTenant)
	assert.Equal(t, 4, opts.MaxTablesBeforePerformingLookup)
	assert.Equal(t, "{{uid}}", opts.UserPlaceholder)
	assert.Equal(t, float32(0.2), opts.AnswerTemperature)
	assert.NoError(t, opts.validate())
}

func TestCleanCompletion(t *testing.T) {
	tests := map[string]string{
		`  SELECT 1  `: "SELECT 1",
		`"SELECT 1"`:   "SELECT 1",
		`SELECT 1"`:    "SELECT 1",
		`""SELECT 1""`: `"SELECT 1"`,
		"\n\t\"\" ":   "",

		`SELECT * FROM "Orders"`:      `SELECT * FROM "Orders"`,
		`SELECT * FROM "Orders""`:     `SELECT * FROM "Orders"`,
		`"SELECT * FROM "Orders""`:    `SELECT * FROM "Orders"`,
		`SELECT "id" FROM t WHERE "x`: `SELECT "id" FROM t WHERE "x`,
		`"You have 2 orders.`:         `"You have 2 orders.`,
	}
	for in, want := range tests {
		assert.Equal(t, want, cleanCompletion(in), "input %q", in)
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&UnsafeQueryError{Query: "DROP TABLE orders", Keyword: "drop"}, CodeUnsafeQuery},
		{fmt.Errorf("ask: %w", &ScopeError{Query: "q", Reason: "set_operation"}), CodeUnscopedQuery},
		{ErrTenantRequired, CodeTenantRequired},
		{ErrNoQuery, CodeNoQuery},
		{fmt.Errorf("%w: timeout", ErrCompanyNotFound), CodeCompanyNotFound},
		{&ValidationError{Query: "q", Cause: errors.New("syntax")}, ""},
		{errors.New("boom"), ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorCode(tt.err), "%v", tt.err)
	}
}
