package secretstores

import (
	"context"
	"fmt"
	"sort"

	"github.com/systmms/pgpsecret/internal/config"
	"github.com/systmms/pgpsecret/internal/logging"
)

// Factory builds a store from its configuration.
type Factory func(ctx context.Context, cfg config.StoreConfig, logger *logging.Logger) (SecretStore, error)

// Registry manages secret store creation by type
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates a new secret store registry with built-in secret stores
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}

	r.Register(config.StoreAWSSecretsManager, func(ctx context.Context, cfg config.StoreConfig, logger *logging.Logger) (SecretStore, error) {
		return NewAWSSecretsManagerStore(ctx, cfg.Config, WithAWSLogger(logger))
	})
	r.Register(config.StoreGCPSecretManager, func(ctx context.Context, cfg config.StoreConfig, logger *logging.Logger) (SecretStore, error) {
		return NewGCPSecretManagerStore(ctx, cfg.Config, WithGCPLogger(logger))
	})
	r.Register(config.StoreAzureKeyVault, func(_ context.Context, cfg config.StoreConfig, logger *logging.Logger) (SecretStore, error) {
		return NewAzureKeyVaultStore(cfg.Config, WithAzureLogger(logger))
	})
	r.Register(config.StoreMemory, func(context.Context, config.StoreConfig, *logging.Logger) (SecretStore, error) {
		return NewMemoryStore(), nil
	})

	return r
}

// Register adds or replaces the factory for a store type.
func (r *Registry) Register(storeType string, factory Factory) {
	r.factories[storeType] = factory
}

// CreateSecretStore creates a secret store instance from configuration
func (r *Registry) CreateSecretStore(ctx context.Context, cfg config.StoreConfig, logger *logging.Logger) (SecretStore, error) {
	factory, ok := r.factories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unknown secret store type: %s", cfg.Type)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	store, err := factory(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s secret store: %w", cfg.Type, err)
	}
	return store, nil
}

// GetSupportedTypes returns the registered store types, sorted
func (r *Registry) GetSupportedTypes() []string {
	types := make([]string, 0, len(r.factories))
	for storeType := range r.factories {
		types = append(types, storeType)
	}
	sort.Strings(types)
	return types
}

// IsSupported checks if a secret store type is supported
func (r *Registry) IsSupported(storeType string) bool {
	_, ok := r.factories[storeType]
	return ok
}
