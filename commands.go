package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/database"
	"github.com/ekaya-inc/ekaya-askdb/pkg/handlers"
	"github.com/ekaya-inc/ekaya-askdb/pkg/mcp"
	"github.com/ekaya-inc/ekaya-askdb/pkg/middleware"
	"github.com/ekaya-inc/ekaya-askdb/pkg/oracle"
)

const shutdownTimeout = 10 * time.Second

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "ekaya-askdb",
		Short:         "Answer natural language questions about a tenant's data",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "config file path")

	root.AddCommand(
		newServeCmd(&configPath),
		newAskCmd(&configPath),
		newQueryCmd(&configPath),
		newMigrateCmd(&configPath),
	)
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, the MCP endpoint and metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	if a.cfg.Directory.MigrateOnStart {
		if err := withDirectoryDB(ctx, a, func(db *database.DB) error {
			sqlDB := db.SQL()
			defer sqlDB.Close()
			return database.RunMigrations(sqlDB, a.logger)
		}); err != nil {
			return err
		}
	}

	engine, store, err := a.newEngine(ctx)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	handlers.NewHealthHandler(a.cfg, store, a.logger).RegisterRoutes(mux)
	handlers.NewAskHandler(engine, a.logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	mcpServer := mcp.NewAskServer("ekaya-askdb", a.cfg.Version, engine, a.logger)
	mux.Handle("/mcp", middleware.MCPRequestLogger(a.logger)(mcpServer.NewStreamableHTTPServer()))

	srv := &http.Server{
		Addr:              net.JoinHostPort(a.cfg.BindAddr, a.cfg.Port),
		Handler:           middleware.RequestContext(middleware.RequestLogger(a.logger)(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Starting ekaya-askdb",
			zap.String("addr", srv.Addr),
			zap.String("version", a.cfg.Version),
			zap.String("env", a.cfg.Env),
			zap.String("connection", a.cfg.Oracle.Connection),
			zap.String("store", store.DialectName()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type questionFlags struct {
	secretKey string
	companyID string
}

func (f *questionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.secretKey, "secret-key", os.Getenv("ASKDB_SECRET_KEY"), "secret key identifying the company")
	cmd.Flags().StringVar(&f.companyID, "company-id", "", "bind a company id directly instead of a secret key")
}

func newAskCmd(configPath *string) *cobra.Command {
	var flags questionFlags
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuestion(cmd.Context(), *configPath, flags, func(ctx context.Context, s session) error {
				answer, err := s.Ask(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				if asJSON {
					return json.NewEncoder(cmd.OutOrStdout()).Encode(answer)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), answer.Text)
				return err
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the answer with its kind and SQL as JSON")
	return cmd
}

func newQueryCmd(configPath *string) *cobra.Command {
	var flags questionFlags

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Print the tenant scoped SQL for a question without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuestion(cmd.Context(), *configPath, flags, func(ctx context.Context, s session) error {
				sql, err := s.GetQuery(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), sql)
				return err
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func runQuestion(ctx context.Context, configPath string, flags questionFlags, fn func(context.Context, session) error) error {
	a, err := loadApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	engine, _, err := a.newEngine(ctx)
	if err != nil {
		return err
	}
	s := engine.NewSession()

	switch {
	case flags.companyID != "":
		if err := s.BindCompany(ctx, flags.companyID); err != nil {
			return fmt.Errorf("failed to bind company %s: %w", flags.companyID, err)
		}
	case flags.secretKey != "":
		ok, err := s.AuthenticateWithSecretKey(ctx, flags.secretKey)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("invalid secret key")
		}
	}
	return fn(ctx, s)
}

func newMigrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the tenant directory schema (postgres)",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd.Context(), *configPath, func(a *app, db *database.DB) error {
				sqlDB := db.SQL()
				defer sqlDB.Close()
				return database.RunMigrations(sqlDB, a.logger)
			})
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd.Context(), *configPath, func(a *app, db *database.DB) error {
				sqlDB := db.SQL()
				defer sqlDB.Close()
				return database.RollbackMigrations(sqlDB, steps, a.logger)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the applied migration version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd.Context(), *configPath, func(a *app, db *database.DB) error {
				sqlDB := db.SQL()
				defer sqlDB.Close()
				v, dirty, ok, err := database.MigrationVersion(sqlDB, a.logger)
				if err != nil {
					return err
				}
				if !ok {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", v, dirty)
				return err
			})
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

func runMigrate(ctx context.Context, configPath string, fn func(*app, *database.DB) error) error {
	a, err := loadApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()
	return withDirectoryDB(ctx, a, func(db *database.DB) error { return fn(a, db) })
}

// withDirectoryDB connects to the directory store, which must be postgres.
func withDirectoryDB(ctx context.Context, a *app, fn func(*database.DB) error) error {
	name := a.cfg.DirectoryConnection()
	dbCfg, err := database.ConfigFromConnection(name, a.cfg.Connections[name])
	if err != nil {
		return err
	}

	db, err := database.NewConnection(ctx, dbCfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

// session is the part of *oracle.Session the commands use.
type session interface {
	Ask(ctx context.Context, question string) (*oracle.Answer, error)
	GetQuery(ctx context.Context, question string) (string, error)
}
