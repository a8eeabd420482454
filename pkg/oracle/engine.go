// Package oracle answers natural language questions about a relational
// store: it synthesizes SQL with a completion model, restricts the
// statement to the bound tenant, runs it and explains the result.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-askdb/pkg/audit"
	"github.com/ekaya-inc/ekaya-askdb/pkg/llm"
	"github.com/ekaya-inc/ekaya-askdb/pkg/logging"
	"github.com/ekaya-inc/ekaya-askdb/pkg/prompts"
	sqlpkg "github.com/ekaya-inc/ekaya-askdb/pkg/sql"
	"github.com/ekaya-inc/ekaya-askdb/pkg/tenant"
)

// ErrCompanyNotFound wraps tenant directory faults. Its message is the
// one shown to end users.
var ErrCompanyNotFound = errors.New(CompanyNotFound)

// Deps are the collaborators of an Engine.
type Deps struct {
	Store    datasource.Store
	LLM      llm.LLMClient
	Resolver *tenant.Resolver
	// Prompts defaults to the built-in templates.
	Prompts *prompts.Builder
	// Auditor defaults to one writing through Logger.
	Auditor *audit.SecurityAuditor
	Logger  *zap.Logger
}

// Engine holds the shared, immutable dependencies of the pipeline. It is
// safe for concurrent use; tenant state lives in Sessions.
type Engine struct {
	store    datasource.Store
	llm      llm.LLMClient
	resolver *tenant.Resolver
	prompts  *prompts.Builder
	auditor  *audit.SecurityAuditor
	opts     Options
	clause   sqlpkg.ClauseOptions
	logger   *zap.Logger
}

// NewEngine validates the options and wires the collaborators.
func NewEngine(deps Deps, opts Options) (*Engine, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("oracle: store is required")
	}
	if deps.LLM == nil {
		return nil, fmt.Errorf("oracle: llm client is required")
	}
	if deps.Resolver == nil {
		return nil, fmt.Errorf("oracle: tenant resolver is required")
	}
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("oracle: %w", err)
	}

	logger := logging.OrNop(deps.Logger)
	if deps.Prompts == nil {
		deps.Prompts = prompts.MustNewBuilder()
	}
	if deps.Auditor == nil {
		deps.Auditor = audit.NewSecurityAuditor(logger)
	}

	return &Engine{
		store:    deps.Store,
		llm:      deps.LLM,
		resolver: deps.Resolver,
		prompts:  deps.Prompts,
		auditor:  deps.Auditor,
		opts:     opts,
		clause: sqlpkg.ClauseOptions{
			TenantColumn:     opts.TenantColumn,
			ForbiddenColumns: opts.forbiddenColumns(),
		},
		logger: logger.Named("oracle"),
	}, nil
}

// Options returns the options the engine was built with.
func (e *Engine) Options() Options {
	return e.opts
}

// NewSession starts an unscoped session.
func (e *Engine) NewSession() *Session {
	return &Session{engine: e}
}

// Session is one caller's conversation with the engine. The bound tenant
// is replaced as a whole on every (re)binding.
type Session struct {
	engine *Engine

	mu    sync.RWMutex
	scope tenant.Scope
}

// Scope returns the current tenant binding.
func (s *Session) Scope() tenant.Scope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scope
}

func (s *Session) setScope(scope tenant.Scope) {
	s.mu.Lock()
	s.scope = scope
	s.mu.Unlock()
}

// AuthenticateWithSecretKey binds the tenant owning secretKey. An unknown
// key clears any previous binding and returns false with a nil error.
// Directory faults return ErrCompanyNotFound.
func (s *Session) AuthenticateWithSecretKey(ctx context.Context, secretKey string) (bool, error) {
	t, err := s.engine.resolver.Authenticate(ctx, secretKey)
	if errors.Is(err, tenant.ErrTenantNotFound) {
		s.setScope(tenant.Unscoped())
		return false, nil
	}
	if err != nil {
		s.setScope(tenant.Unscoped())
		return false, fmt.Errorf("%w: %w", ErrCompanyNotFound, err)
	}
	s.setScope(tenant.Scoped(t))
	return true, nil
}

// BindCompany binds a company id that was authenticated out of band.
func (s *Session) BindCompany(ctx context.Context, companyID string) error {
	t, err := s.engine.resolver.Bind(ctx, companyID)
	if errors.Is(err, tenant.ErrTenantNotFound) {
		s.setScope(tenant.Unscoped())
		return err
	}
	if err != nil {
		s.setScope(tenant.Unscoped())
		return fmt.Errorf("%w: %w", ErrCompanyNotFound, err)
	}
	s.setScope(tenant.Scoped(t))
	return nil
}

// Ask answers question for the bound tenant.
func (s *Session) Ask(ctx context.Context, question string) (*Answer, error) {
	return s.engine.Ask(ctx, s.Scope(), question)
}

// GetQuery returns the tenant scoped SQL for question without running it.
func (s *Session) GetQuery(ctx context.Context, question string) (string, error) {
	return s.engine.GetQuery(ctx, s.Scope(), question)
}
