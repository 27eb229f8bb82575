package paramstore

import (
	"context"
	"fmt"

	"github.com/systmms/pgpsecret/internal/config"
	"github.com/systmms/pgpsecret/internal/logging"
)

// New builds the configured parameter store.
func New(ctx context.Context, cfg config.StoreConfig, logger *logging.Logger) (Store, error) {
	switch cfg.Type {
	case config.ParamStoreAWSSSM:
		return NewAWSSSMStore(ctx, cfg.Config, WithLogger(logger))
	case config.ParamStoreNone, "":
		return Noop{}, nil
	}
	return nil, fmt.Errorf("unknown parameter store type: %s", cfg.Type)
}
