package datasource

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/config"
)

// StoreInfo describes a store type compiled into the binary.
type StoreInfo struct {
	Type        string `json:"type"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
}

// OpenFunc opens a store for a configured connection.
type OpenFunc func(ctx context.Context, cfg config.ConnectionConfig, logger *zap.Logger) (Store, error)

// StoreRegistration pairs a store type with its constructor.
type StoreRegistration struct {
	Info StoreInfo
	Open OpenFunc
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]StoreRegistration)
)

// Register makes a store type available to connections configured with
// that type. Store packages call it from init. It panics on an empty type,
// a nil constructor or a type registered twice.
func Register(reg StoreRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if reg.Info.Type == "" || reg.Open == nil {
		panic("datasource: Register needs a type and an open func")
	}
	if _, dup := registry[reg.Info.Type]; dup {
		panic(fmt.Sprintf("datasource: store type %q registered twice", reg.Info.Type))
	}
	registry[reg.Info.Type] = reg
}

// RegisteredStores lists the registered store types ordered by type.
func RegisteredStores() []StoreInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]StoreInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	slices.SortFunc(result, func(a, b StoreInfo) int { return strings.Compare(a.Type, b.Type) })
	return result
}

// Opener looks up the constructor for a store type.
func Opener(storeType string) (OpenFunc, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	reg, ok := registry[storeType]
	return reg.Open, ok
}

// IsRegistered reports whether a store type is available.
func IsRegistered(storeType string) bool {
	_, ok := Opener(storeType)
	return ok
}
