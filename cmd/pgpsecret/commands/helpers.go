package commands

import (
	"context"
	"fmt"

	"github.com/systmms/pgpsecret/internal/config"
	"github.com/systmms/pgpsecret/internal/keytool"
	"github.com/systmms/pgpsecret/internal/lifecycle"
	"github.com/systmms/pgpsecret/internal/paramstore"
	"github.com/systmms/pgpsecret/internal/secretstores"
	pkgexec "github.com/systmms/pgpsecret/pkg/exec"
)

// Replaced in tests.
var (
	storeRegistry   = secretstores.NewRegistry()
	keyToolExecutor = pkgexec.DefaultExecutor()
	newParamStore   = paramstore.New
)

// loadConfig loads the configuration, falling back to defaults when no
// file exists and --config was not given.
func loadConfig(cfg *config.Config) error {
	if err := cfg.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return nil
}

func newKeyTool(cfg *config.Config) *keytool.Tool {
	kt := cfg.Definition.KeyTool
	opts := []keytool.Option{
		keytool.WithExecutor(keyToolExecutor),
		keytool.WithBinary(kt.Binary),
		keytool.WithGpgconf(kt.Gpgconf),
		keytool.WithLogger(cfg.Logger),
	}
	if kt.LoopbackPinentry != nil {
		opts = append(opts, keytool.WithLoopbackPinentry(*kt.LoopbackPinentry))
	}
	return keytool.New(opts...)
}

// newController wires the configured stores and key tool into a controller.
// Every store call is bounded by the store's timeout_ms.
func newController(ctx context.Context, cfg *config.Config) (*lifecycle.Controller, error) {
	def := cfg.Definition

	store, err := storeRegistry.CreateSecretStore(ctx, def.SecretStore, cfg.Logger)
	if err != nil {
		return nil, err
	}
	params, err := newParamStore(ctx, def.ParameterStore, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create parameter store: %w", err)
	}

	return lifecycle.New(secretstores.WithTimeout(store, def.SecretStore.Timeout()),
		lifecycle.WithParameterStore(paramstore.WithTimeout(params, def.ParameterStore.Timeout())),
		lifecycle.WithKeyTool(newKeyTool(cfg)),
		lifecycle.WithLogger(cfg.Logger),
		lifecycle.WithTempDir(def.KeyTool.TempDir),
		lifecycle.WithWorkspacePrefix(def.KeyTool.WorkspacePrefix),
	), nil
}
