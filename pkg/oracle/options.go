package oracle

import (
	"fmt"

	"github.com/ekaya-inc/ekaya-askdb/pkg/config"
	sqlpkg "github.com/ekaya-inc/ekaya-askdb/pkg/sql"
)

// Options tune the pipeline. They are fixed when the Engine is built.
type Options struct {
	StrictMode                      bool
	MaxTablesBeforePerformingLookup int
	RequireTenant                   bool

	ScopingStrategy string
	TenantColumn    string
	SecretKeyColumn string
	UserPlaceholder string

	QueryMaxTokens    int
	AnswerMaxTokens   int
	AnswerTemperature float32
}

// DefaultOptions returns the options used when no configuration is given.
func DefaultOptions() Options {
	return Options{
		StrictMode:                      true,
		MaxTablesBeforePerformingLookup: 15,
		RequireTenant:                   true,
		ScopingStrategy:                 config.ScopingClause,
		TenantColumn:                    "company_id",
		SecretKeyColumn:                 "secret_key",
		UserPlaceholder:                 "{{user_id}}",
		QueryMaxTokens:                  100,
		AnswerMaxTokens:                 100,
		AnswerTemperature:               0.7,
	}
}

// OptionsFromConfig maps the oracle section of the configuration.
func OptionsFromConfig(cfg config.OracleConfig) Options {
	return Options{
		StrictMode:                      cfg.StrictMode,
		MaxTablesBeforePerformingLookup: cfg.MaxTablesBeforePerformingLookup,
		RequireTenant:                   cfg.RequireTenant,
		ScopingStrategy:                 cfg.ScopingStrategy,
		TenantColumn:                    cfg.TenantColumn,
		SecretKeyColumn:                 cfg.SecretKeyColumn,
		UserPlaceholder:                 cfg.UserPlaceholder,
		QueryMaxTokens:                  cfg.QueryMaxTokens,
		AnswerMaxTokens:                 cfg.AnswerMaxTokens,
		AnswerTemperature:               cfg.AnswerTemperature,
	}
}

func (o Options) validate() error {
	switch o.ScopingStrategy {
	case config.ScopingClause:
		if o.TenantColumn == "" {
			return fmt.Errorf("tenant column is required for the clause strategy")
		}
	case config.ScopingPlaceholder:
		if err := sqlpkg.ValidatePlaceholder(o.UserPlaceholder); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown scoping strategy %q", o.ScopingStrategy)
	}
	if o.MaxTablesBeforePerformingLookup < 1 {
		return fmt.Errorf("max tables before performing lookup must be at least 1")
	}
	if o.QueryMaxTokens < 1 || o.AnswerMaxTokens < 1 {
		return fmt.Errorf("token budgets must be positive")
	}
	return nil
}

func (o Options) forbiddenColumns() []string {
	if o.SecretKeyColumn == "" {
		return nil
	}
	return []string{o.SecretKeyColumn}
}
