package datasource

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-askdb/pkg/config"
	"github.com/ekaya-inc/ekaya-askdb/pkg/logging"
)

// StoreFactory creates stores from the registry.
type StoreFactory interface {
	// Open creates a store for the connection.
	Open(ctx context.Context, cfg config.ConnectionConfig) (Store, error)

	// ListTypes returns info for all registered store types.
	ListTypes() []StoreInfo
}

type registryFactory struct {
	logger *zap.Logger
}

// NewStoreFactory returns a factory that uses the global registry.
func NewStoreFactory(logger *zap.Logger) StoreFactory {
	return &registryFactory{logger: logging.OrNop(logger)}
}

func (f *registryFactory) Open(ctx context.Context, cfg config.ConnectionConfig) (Store, error) {
	open, ok := Opener(cfg.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %s (not compiled in)", apperrors.ErrUnsupportedStore, cfg.Type)
	}
	return open(ctx, cfg, f.logger.Named(cfg.Type))
}

func (f *registryFactory) ListTypes() []StoreInfo {
	return RegisteredStores()
}

// Ensure registryFactory implements StoreFactory at compile time.
var _ StoreFactory = (*registryFactory)(nil)
