package datasource

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDialect_Markers(t *testing.T) {
	tests := []struct {
		dialect  Dialect
		first    string
		second   string
		same     string
		bindArgs []any
	}{
		{PostgreSQL, "$1", "$2", "$1", []any{int64(7)}},
		{SQLServer, "@p1", "@p2", "@p1", []any{int64(7)}},
		{SQLite, "?", "?", "?", []any{int64(7), int64(7), int64(7)}},
		{MySQL, "?", "?", "?", []any{int64(7), int64(7), int64(7)}},
	}
	for _, tt := range tests {
		t.Run(tt.dialect.Name, func(t *testing.T) {
			assert.Equal(t, tt.first, tt.dialect.Marker(1))
			assert.Equal(t, tt.second, tt.dialect.Marker(2))
			assert.Equal(t, tt.same, tt.dialect.SameValueMarker(3))
			assert.Equal(t, tt.bindArgs, tt.dialect.BindSameValue(int64(7), 3))
		})
	}

	assert.Nil(t, PostgreSQL.BindSameValue(1, 0))
}

func TestDialect_QuoteIdentifier(t *testing.T) {
	assert.Equal(t, `"chat_bots"`, PostgreSQL.QuoteIdentifier("chat_bots"))
	assert.Equal(t, `"we""ird"`, PostgreSQL.QuoteIdentifier(`we"ird`))
	assert.Equal(t, "`a``b`", MySQL.QuoteIdentifier("a`b"))
	assert.Equal(t, "[a]]b]", SQLServer.QuoteIdentifier("a]b"))
	assert.Equal(t, `"tenant_7"."orders"`, SQLite.QuoteQualified("tenant_7", "orders"))
	assert.Equal(t, `"orders"`, SQLite.QuoteQualified("", "orders"))
}

func TestTableDescriptor(t *testing.T) {
	shared := NewTableDescriptor("public", "customers", "", true, nil)
	owned := NewTableDescriptor("tenant_7", "orders", TenantFromSchema(DefaultTenantSchemaPrefix, "tenant_7"), false, nil)

	assert.Equal(t, "customers", shared.QualifiedName())
	assert.True(t, shared.Shared())
	assert.Equal(t, "tenant_7.orders", owned.QualifiedName())
	assert.Equal(t, "7", owned.TenantID)
	assert.False(t, owned.Shared())

	assert.True(t, owned.MatchesName("ORDERS"))
	assert.True(t, owned.MatchesName(" tenant_7.orders "))
	assert.True(t, owned.MatchesName(`"orders"`))
	assert.False(t, owned.MatchesName("order"))
}

func TestTenantFromSchema(t *testing.T) {
	assert.Equal(t, "42", TenantFromSchema("tenant_", "tenant_42"))
	assert.Equal(t, "42", TenantFromSchema("tenant_", "TENANT_42"))
	assert.Equal(t, "", TenantFromSchema("tenant_", "tenant_"))
	assert.Equal(t, "", TenantFromSchema("tenant_", "public"))
	assert.Equal(t, "", TenantFromSchema("", "tenant_42"))
}
