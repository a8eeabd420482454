package oracle

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/audit"
	"github.com/ekaya-inc/ekaya-askdb/pkg/logging"
	"github.com/ekaya-inc/ekaya-askdb/pkg/metrics"
	sqlpkg "github.com/ekaya-inc/ekaya-askdb/pkg/sql"
	"github.com/ekaya-inc/ekaya-askdb/pkg/tenant"
)

// newCall starts an invocation, reusing the request id already in ctx.
func (e *Engine) newCall(ctx context.Context, scope tenant.Scope, question string) (context.Context, *call) {
	info := audit.RequestFromContext(ctx)
	if info.RequestID == "" {
		info.RequestID = uuid.NewString()
		ctx = audit.WithRequest(ctx, info)
	}
	return ctx, &call{
		requestID: info.RequestID,
		question:  question,
		scope:     scope,
		logger: e.logger.With(
			zap.String("request_id", info.RequestID),
			zap.String("scope", scope.String())),
	}
}

// Ask answers question within scope. Refusals are returned as
// *UnsafeQueryError or *ScopeError; every other failure is logged and
// answered with GenericApology.
func (e *Engine) Ask(ctx context.Context, scope tenant.Scope, question string) (answer *Answer, err error) {
	ctx, c := e.newCall(ctx, scope, question)

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Question answering panicked",
				zap.Any("panic", r),
				zap.Stack("stack"))
			metrics.ObserveQuestion("failed")
			answer, err = c.answer(KindApology, GenericApology, ""), nil
		}
	}()

	answer, err = e.ask(ctx, c)
	switch {
	case err == nil:
		metrics.ObserveQuestion(string(answer.Kind))
		c.logger.Info("Answered question",
			zap.String("kind", string(answer.Kind)),
			zap.String("sql", logging.SanitizeQuery(answer.SQL)))
		return answer, nil
	case IsRefusal(err):
		metrics.ObserveQuestion("refused")
		return nil, err
	default:
		metrics.ObserveQuestion("failed")
		c.logger.Error("Failed to answer question", zap.String("error", logging.SanitizeError(err)))
		return c.answer(KindApology, GenericApology, ""), nil
	}
}

func (e *Engine) ask(ctx context.Context, c *call) (*Answer, error) {
	if e.opts.RequireTenant && !c.scope.IsScoped() {
		return c.answer(KindClarification, ClarificationRequest, ""), nil
	}

	candidate, ok, err := e.synthesizeQuery(ctx, c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return c.answer(KindApology, candidate, ""), nil
	}
	if err := e.ensureSafe(ctx, c, candidate); err != nil {
		return nil, err
	}
	if !sqlpkg.IsSelect(candidate) {
		c.logger.Info("Completion is not a query, returning it as the answer")
		return c.answer(KindReply, candidate, ""), nil
	}

	q, err := e.scopeQuery(ctx, c, candidate)
	if err != nil {
		return nil, err
	}

	hasData, reply, err := e.ensureHasData(ctx, c, q)
	if err != nil {
		return nil, err
	}
	if !hasData {
		return c.answer(KindNoData, reply, q.Inline), nil
	}

	row, err := e.execute(ctx, q)
	if err != nil {
		return nil, err
	}
	text, ok, err := e.explain(ctx, c, q, row)
	if err != nil {
		return nil, err
	}
	if !ok {
		return c.answer(KindApology, text, q.Inline), nil
	}
	return c.answer(KindExplanation, text, q.Inline), nil
}

// GetQuery returns the safety checked, tenant scoped statement for
// question with the tenant value inlined. It returns ErrTenantRequired,
// ErrNoQuery, or the same refusals as Ask.
func (e *Engine) GetQuery(ctx context.Context, scope tenant.Scope, question string) (string, error) {
	ctx, c := e.newCall(ctx, scope, question)

	if e.opts.RequireTenant && !scope.IsScoped() {
		return "", ErrTenantRequired
	}

	candidate, ok, err := e.synthesizeQuery(ctx, c)
	if err != nil {
		c.logger.Error("Failed to synthesize query", zap.String("error", logging.SanitizeError(err)))
		return "", fmt.Errorf("failed to synthesize query: %w", err)
	}
	if !ok {
		return "", ErrNoQuery
	}
	if err := e.ensureSafe(ctx, c, candidate); err != nil {
		return "", err
	}
	if !sqlpkg.IsSelect(candidate) {
		return "", ErrNoQuery
	}

	q, err := e.scopeQuery(ctx, c, candidate)
	if err != nil {
		return "", err
	}
	c.logger.Debug("Generated query", zap.String("sql", logging.SanitizeQuery(q.Inline)))
	return q.Inline, nil
}
