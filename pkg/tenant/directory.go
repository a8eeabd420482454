package tenant

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ekaya-inc/ekaya-askdb/pkg/adapters/datasource"
)

// Directory looks up tenants. Implementations return ErrTenantNotFound
// for missing records and a *LookupError for anything else.
type Directory interface {
	// FindBySecretKey returns the company id owning the key.
	FindBySecretKey(ctx context.Context, secretKey string) (string, error)
	// FindCompany returns the user id of the company.
	FindCompany(ctx context.Context, companyID string) (string, error)
}

// StoreDirectoryConfig names the directory tables.
type StoreDirectoryConfig struct {
	SecretKeyTable string // default chat_bots
	CompaniesTable string // default companies
}

// StoreDirectory reads the directory tables through a datasource.Store
// with bound parameters.
type StoreDirectory struct {
	store          datasource.Store
	secretKeyQuery string
	companyQuery   string
}

// NewStoreDirectory builds the lookups for the store's dialect.
func NewStoreDirectory(store datasource.Store, cfg StoreDirectoryConfig) *StoreDirectory {
	if cfg.SecretKeyTable == "" {
		cfg.SecretKeyTable = "chat_bots"
	}
	if cfg.CompaniesTable == "" {
		cfg.CompaniesTable = "companies"
	}
	d := store.Dialect()
	return &StoreDirectory{
		store: store,
		secretKeyQuery: fmt.Sprintf("SELECT company_id FROM %s WHERE secret_key = %s",
			quoteTable(d, cfg.SecretKeyTable), d.Marker(1)),
		companyQuery: fmt.Sprintf("SELECT user_id FROM %s WHERE id = %s",
			quoteTable(d, cfg.CompaniesTable), d.Marker(1)),
	}
}

func quoteTable(d datasource.Dialect, name string) string {
	if schema, table, ok := strings.Cut(name, "."); ok {
		return d.QuoteQualified(schema, table)
	}
	return d.QuoteIdentifier(name)
}

func (s *StoreDirectory) FindBySecretKey(ctx context.Context, secretKey string) (string, error) {
	return s.lookupOne(ctx, "find by secret key", s.secretKeyQuery, secretKey)
}

func (s *StoreDirectory) FindCompany(ctx context.Context, companyID string) (string, error) {
	return s.lookupOne(ctx, "find company", s.companyQuery, bindValue(companyID))
}

func (s *StoreDirectory) lookupOne(ctx context.Context, op, query string, arg any) (string, error) {
	result, err := s.store.Query(ctx, query, arg)
	if err != nil {
		return "", &LookupError{Op: op, Err: err}
	}
	row := result.First()
	if row.Empty() || row.At(0) == nil {
		return "", ErrTenantNotFound
	}
	return fmt.Sprint(row.At(0)), nil
}

// StaticDirectory is an in-memory directory, used for local runs and tests.
type StaticDirectory struct {
	mu        sync.RWMutex
	keys      map[string]string // secret key -> company id
	companies map[string]string // company id -> user id
}

// NewStaticDirectory returns an empty in-memory directory.
func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{
		keys:      make(map[string]string),
		companies: make(map[string]string),
	}
}

// Add registers a company with its user id and secret key.
func (s *StaticDirectory) Add(secretKey, companyID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[secretKey] = companyID
	s.companies[companyID] = userID
}

func (s *StaticDirectory) FindBySecretKey(_ context.Context, secretKey string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.keys[secretKey]
	if !ok {
		return "", ErrTenantNotFound
	}
	return id, nil
}

func (s *StaticDirectory) FindCompany(_ context.Context, companyID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.companies[companyID]
	if !ok {
		return "", ErrTenantNotFound
	}
	return userID, nil
}

var (
	_ Directory = (*StoreDirectory)(nil)
	_ Directory = (*StaticDirectory)(nil)
)
