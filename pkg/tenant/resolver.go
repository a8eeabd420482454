package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/audit"
	"github.com/ekaya-inc/ekaya-askdb/pkg/logging"
	sqlpkg "github.com/ekaya-inc/ekaya-askdb/pkg/sql"
)

// Resolver authenticates callers against the directory.
type Resolver struct {
	directory Directory
	auditor   *audit.SecurityAuditor
	logger    *zap.Logger
}

// NewResolver creates a resolver. A nil auditor logs audit events through logger.
func NewResolver(directory Directory, auditor *audit.SecurityAuditor, logger *zap.Logger) *Resolver {
	logger = logging.OrNop(logger)
	if auditor == nil {
		auditor = audit.NewSecurityAuditor(logger)
	}
	return &Resolver{
		directory: directory,
		auditor:   auditor,
		logger:    logger.Named("tenant"),
	}
}

// Authenticate resolves a secret key to a tenant. It returns
// ErrTenantNotFound when the key is unknown; any other error is a
// directory fault.
func (r *Resolver) Authenticate(ctx context.Context, secretKey string) (Tenant, error) {
	secretKey = strings.TrimSpace(secretKey)
	if secretKey == "" {
		r.auditor.LogAuthenticationFailed(ctx, secretKey)
		return Tenant{}, ErrTenantNotFound
	}

	// Keys that look like SQL fragments never reach the lookup.
	if check := sqlpkg.DetectInjection("secret_key", secretKey); check != nil {
		r.auditor.LogInjectionAttempt(ctx, audit.SQLInjectionDetails{
			ParamName:   check.Name,
			ParamValue:  secretKey,
			Fingerprint: check.Fingerprint,
		})
		return Tenant{}, ErrTenantNotFound
	}

	companyID, err := r.directory.FindBySecretKey(ctx, secretKey)
	if errors.Is(err, ErrTenantNotFound) {
		r.auditor.LogAuthenticationFailed(ctx, secretKey)
		return Tenant{}, ErrTenantNotFound
	}
	if err != nil {
		r.logger.Error("secret key lookup failed", zap.String("error", logging.SanitizeError(err)))
		return Tenant{}, fmt.Errorf("authenticate: %w", err)
	}

	t, err := r.resolveCompany(ctx, companyID)
	if err != nil {
		return Tenant{}, err
	}
	r.auditor.LogTenantBound(ctx, t.CompanyID, t.UserID, "secret_key")
	return t, nil
}

// Bind resolves a company id supplied out of band.
func (r *Resolver) Bind(ctx context.Context, companyID string) (Tenant, error) {
	companyID = strings.TrimSpace(companyID)
	if companyID == "" {
		return Tenant{}, ErrTenantNotFound
	}
	t, err := r.resolveCompany(ctx, companyID)
	if err != nil {
		return Tenant{}, err
	}
	r.auditor.LogTenantBound(ctx, t.CompanyID, t.UserID, "company_id")
	return t, nil
}

func (r *Resolver) resolveCompany(ctx context.Context, companyID string) (Tenant, error) {
	userID, err := r.directory.FindCompany(ctx, companyID)
	if errors.Is(err, ErrTenantNotFound) {
		r.logger.Warn("company not found", zap.String("company_id", companyID))
		return Tenant{}, ErrTenantNotFound
	}
	if err != nil {
		r.logger.Error("company lookup failed",
			zap.String("company_id", companyID),
			zap.String("error", logging.SanitizeError(err)),
		)
		return Tenant{}, fmt.Errorf("resolve company %s: %w", companyID, err)
	}
	return Tenant{CompanyID: companyID, UserID: userID}, nil
}
