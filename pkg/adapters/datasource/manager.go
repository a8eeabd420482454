package datasource

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-askdb/pkg/config"
	"github.com/ekaya-inc/ekaya-askdb/pkg/logging"
	"github.com/ekaya-inc/ekaya-askdb/pkg/retry"
)

// DefaultPingTimeout bounds the health check run when a store is opened.
const DefaultPingTimeout = 5 * time.Second

// Manager opens the configured named connections on first use and keeps
// them for the life of the process.
type Manager struct {
	mu          sync.Mutex
	connections map[string]config.ConnectionConfig
	stores      map[string]Store
	factory     StoreFactory
	closed      bool
	logger      *zap.Logger
}

// NewManager creates a manager over the configured connections.
func NewManager(connections map[string]config.ConnectionConfig, factory StoreFactory, logger *zap.Logger) *Manager {
	logger = logging.OrNop(logger)
	if factory == nil {
		factory = NewStoreFactory(logger)
	}
	return &Manager{
		connections: connections,
		stores:      make(map[string]Store),
		factory:     factory,
		logger:      logger.Named("datasource"),
	}
}

// Get returns the store for a named connection, opening it if needed.
func (m *Manager) Get(ctx context.Context, name string) (Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errors.New("datasource manager is closed")
	}
	if store, ok := m.stores[name]; ok {
		return store, nil
	}

	cfg, ok := m.connections[name]
	if !ok {
		return nil, fmt.Errorf("connection %q: %w", name, apperrors.ErrUnknownConnection)
	}

	store, err := m.factory.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open connection %q: %w", name, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, DefaultPingTimeout)
	defer cancel()
	if err := retry.DoIfRetryable(pingCtx, retry.DefaultConfig(), store.Ping); err != nil {
		_ = store.Close()
		m.logger.Error("connection health check failed",
			zap.String("connection", name),
			zap.String("type", cfg.Type),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, fmt.Errorf("ping connection %q: %w", name, err)
	}

	m.logger.Info("connection opened",
		zap.String("connection", name),
		zap.String("type", cfg.Type),
		zap.String("dialect", store.DialectName()),
	)
	m.stores[name] = store
	return store, nil
}

// Add registers an already open store under name. Used by tests and by
// callers that construct stores themselves.
func (m *Manager) Add(name string, store Store) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores[name] = store
}

// Close closes every opened store.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	var errs []error
	for name, store := range m.stores {
		if err := store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %q: %w", name, err))
		}
		delete(m.stores, name)
	}
	return errors.Join(errs...)
}
