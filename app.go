package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-askdb/pkg/audit"
	"github.com/ekaya-inc/ekaya-askdb/pkg/config"
	"github.com/ekaya-inc/ekaya-askdb/pkg/llm"
	"github.com/ekaya-inc/ekaya-askdb/pkg/logging"
	"github.com/ekaya-inc/ekaya-askdb/pkg/oracle"
	"github.com/ekaya-inc/ekaya-askdb/pkg/prompts"
	"github.com/ekaya-inc/ekaya-askdb/pkg/tenant"
)

// app is the process wide state shared by the commands.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	stores *datasource.Manager
}

func loadApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath, Version)
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		stores: datasource.NewManager(cfg.Connections, datasource.NewStoreFactory(logger), logger),
	}, nil
}

func (a *app) close() {
	if err := a.stores.Close(); err != nil {
		a.logger.Warn("Failed to close stores", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// newEngine opens the queried store and the directory store and wires the
// question answering engine.
func (a *app) newEngine(ctx context.Context) (*oracle.Engine, datasource.Store, error) {
	store, err := a.stores.Get(ctx, a.cfg.Oracle.Connection)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open connection %q: %w", a.cfg.Oracle.Connection, err)
	}
	directoryStore, err := a.stores.Get(ctx, a.cfg.DirectoryConnection())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open directory connection %q: %w", a.cfg.DirectoryConnection(), err)
	}

	client, err := llm.NewFromConfig(a.cfg.LLM, a.cfg.Oracle.CallTimeout, a.cfg.Oracle.MaxRetries, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create llm client: %w", err)
	}

	templates, err := prompts.LoadTemplates(a.cfg.Prompts.File)
	if err != nil {
		return nil, nil, err
	}
	builder, err := prompts.NewBuilder(templates)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid prompt templates: %w", err)
	}

	auditor := audit.NewSecurityAuditor(a.logger)
	directory := tenant.NewStoreDirectory(directoryStore, tenant.StoreDirectoryConfig{
		SecretKeyTable: a.cfg.Directory.SecretKeyTable,
		CompaniesTable: a.cfg.Directory.CompaniesTable,
	})

	engine, err := oracle.NewEngine(oracle.Deps{
		Store:    store,
		LLM:      client,
		Resolver: tenant.NewResolver(directory, auditor, a.logger),
		Prompts:  builder,
		Auditor:  auditor,
		Logger:   a.logger,
	}, oracle.OptionsFromConfig(a.cfg.Oracle))
	if err != nil {
		return nil, nil, err
	}
	return engine, store, nil
}
