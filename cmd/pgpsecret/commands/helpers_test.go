package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"github.com/systmms/pgpsecret/internal/config"
	"github.com/systmms/pgpsecret/internal/keytool/keytooltest"
	"github.com/systmms/pgpsecret/internal/logging"
	"github.com/systmms/pgpsecret/internal/secretstores"
	"gopkg.in/yaml.v3"
)

// testEnv swaps in an in-memory store and a fake gpg. Tests using it must
// not run in parallel.
type testEnv struct {
	cfg   *config.Config
	store *secretstores.MemoryStore
	gpg   *keytooltest.FakeGPG
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		store: secretstores.NewMemoryStore(),
		gpg:   keytooltest.New(),
	}

	registry := secretstores.NewRegistry()
	registry.Register(config.StoreMemory, func(context.Context, config.StoreConfig, *logging.Logger) (secretstores.SecretStore, error) {
		return env.store, nil
	})
	prevRegistry, prevExecutor := storeRegistry, keyToolExecutor
	storeRegistry, keyToolExecutor = registry, env.gpg
	t.Cleanup(func() {
		storeRegistry, keyToolExecutor = prevRegistry, prevExecutor
	})

	tempDir := t.TempDir()
	def := config.Definition{
		SecretStore:    config.StoreConfig{Type: config.StoreMemory},
		ParameterStore: config.StoreConfig{Type: config.ParamStoreNone},
		KeyTool:        config.KeyToolConfig{TempDir: t.TempDir()},
	}
	data, err := yaml.Marshal(&def)
	require.NoError(t, err)
	path := filepath.Join(tempDir, "pgpsecret.yaml")
	require.NoError(t, os.WriteFile(path, data, 0644))

	env.cfg = &config.Config{
		Path:     path,
		Explicit: true,
		Logger:   logging.New(false, true),
	}
	return env
}

func runCommand(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	if args == nil {
		// cobra falls back to os.Args on nil
		args = []string{}
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
