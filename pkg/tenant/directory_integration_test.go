//go:build integration

package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-askdb/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/ekaya-askdb/pkg/testhelpers"
)

func TestStoreDirectory_PostgresMigratedSchema(t *testing.T) {
	dirDB := testhelpers.GetDirectoryDB(t)
	ctx := context.Background()

	dirDB.SeedCompany(t, 1007, 70, "sk-pg-seven")

	store := postgres.New(dirDB.DB.Pool, "", nil)
	resolver := NewResolver(NewStoreDirectory(store, StoreDirectoryConfig{}), nil, nil)

	got, err := resolver.Authenticate(ctx, "sk-pg-seven")
	require.NoError(t, err)
	assert.Equal(t, Tenant{CompanyID: "1007", UserID: "70"}, got)

	_, err = resolver.Authenticate(ctx, "sk-pg-missing")
	assert.ErrorIs(t, err, ErrTenantNotFound)
}
