// Package tenant resolves callers to companies and carries the resulting
// binding through the question answering pipeline.
package tenant

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrTenantNotFound indicates the secret key or company id matched nothing.
var ErrTenantNotFound = errors.New("tenant not found")

// Tenant is a resolved company and the user id derived from it.
type Tenant struct {
	CompanyID string `json:"company_id"`
	UserID    string `json:"user_id"`
}

// CompanyBindValue is the company id as a query argument: an int64 when it
// is numeric, otherwise the string.
func (t Tenant) CompanyBindValue() any {
	return bindValue(t.CompanyID)
}

// UserBindValue is the user id as a query argument.
func (t Tenant) UserBindValue() any {
	return bindValue(t.UserID)
}

func bindValue(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

// Scope is the tenant restriction of one session: either Unscoped, or
// Scoped to exactly one tenant. The zero value is Unscoped.
type Scope struct {
	tenant Tenant
	scoped bool
}

// Unscoped returns the scope that applies no tenant restriction.
func Unscoped() Scope {
	return Scope{}
}

// Scoped returns a scope bound to t.
func Scoped(t Tenant) Scope {
	return Scope{tenant: t, scoped: true}
}

// IsScoped reports whether a tenant is bound.
func (s Scope) IsScoped() bool {
	return s.scoped
}

// Tenant returns the bound tenant.
func (s Scope) Tenant() (Tenant, bool) {
	return s.tenant, s.scoped
}

// CompanyID returns the bound company id, or "" when unscoped.
func (s Scope) CompanyID() string {
	return s.tenant.CompanyID
}

func (s Scope) String() string {
	if !s.scoped {
		return "unscoped"
	}
	return fmt.Sprintf("company:%s", s.tenant.CompanyID)
}

// LookupError is a directory failure other than a missing record.
type LookupError struct {
	Op  string
	Err error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("tenant directory %s: %v", e.Op, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}
