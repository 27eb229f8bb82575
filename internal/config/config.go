package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	pserrors "github.com/systmms/pgpsecret/internal/errors"
	"github.com/systmms/pgpsecret/internal/logging"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file used when --config is not given.
const DefaultPath = "pgpsecret.yaml"

// Supported store types.
const (
	StoreAWSSecretsManager = "aws-secretsmanager"
	StoreGCPSecretManager  = "gcp-secretmanager"
	StoreAzureKeyVault     = "azure-keyvault"
	StoreMemory            = "memory"

	ParamStoreAWSSSM  = "aws-ssm"
	ParamStoreNone    = "none"
	defaultTimeoutMs  = 30000
	defaultKeyBinary  = "gpg"
	defaultGpgconf    = "gpgconf"
	defaultWSPrefix   = "OpenPGP-"
	defaultListenAddr = ":8080"
)

// Config holds the runtime configuration
type Config struct {
	Path   string
	Logger *logging.Logger
	// Explicit is set when the user named the file; a missing explicit
	// file is an error instead of falling back to defaults.
	Explicit   bool
	Definition *Definition
}

// Definition represents the pgpsecret.yaml structure
type Definition struct {
	Version        int           `yaml:"version"`
	SecretStore    StoreConfig   `yaml:"secretStore"`
	ParameterStore StoreConfig   `yaml:"parameterStore"`
	KeyTool        KeyToolConfig `yaml:"keytool"`
	Server         ServerConfig  `yaml:"server"`
}

// StoreConfig holds store-specific settings. Everything besides type and
// timeout_ms is passed through to the adapter.
type StoreConfig struct {
	Type      string                 `yaml:"type"`
	TimeoutMs int                    `yaml:"timeout_ms,omitempty"`
	Config    map[string]interface{} `yaml:",inline"`
}

// KeyToolConfig configures the GnuPG invocations.
type KeyToolConfig struct {
	Binary          string `yaml:"binary"`
	Gpgconf         string `yaml:"gpgconf"`
	TempDir         string `yaml:"temp_dir"`
	WorkspacePrefix string `yaml:"workspace_prefix"`
	// LoopbackPinentry is disabled only for GnuPG 1.x, which rejects
	// --pinentry-mode.
	LoopbackPinentry *bool `yaml:"loopback_pinentry,omitempty"`
}

// ServerConfig configures the serve command.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the definition used when no file exists.
func Default() *Definition {
	def := &Definition{}
	def.applyDefaults()
	return def
}

// Load reads and parses the pgpsecret.yaml file
func (c *Config) Load() error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			if !c.Explicit {
				if c.Logger != nil {
					c.Logger.Debug("No configuration at %s, using defaults", c.Path)
				}
				c.Definition = Default()
				return nil
			}
			return pserrors.ConfigError{
				Field:      "path",
				Value:      c.Path,
				Message:    "configuration file not found",
				Suggestion: "Check the --config path or omit it to use defaults",
			}
		}
		return pserrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return pserrors.ConfigError{
			Message:    fmt.Sprintf("invalid YAML syntax in configuration file: %v", err),
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters. Use a YAML validator",
		}
	}

	if def.Version != 0 {
		return pserrors.ConfigError{
			Field:      "version",
			Value:      def.Version,
			Message:    "unsupported configuration version",
			Suggestion: "Set 'version: 0' at the top of your pgpsecret.yaml file",
		}
	}

	def.applyDefaults()
	if err := def.Validate(); err != nil {
		return err
	}

	c.Definition = &def
	return nil
}

// Validate checks the store types.
func (d *Definition) Validate() error {
	switch d.SecretStore.Type {
	case StoreAWSSecretsManager, StoreGCPSecretManager, StoreAzureKeyVault, StoreMemory:
	default:
		return pserrors.ConfigError{
			Field:   "secretStore.type",
			Value:   d.SecretStore.Type,
			Message: "unsupported secret store type",
			Suggestion: fmt.Sprintf("Use one of: %s", strings.Join([]string{
				StoreAWSSecretsManager, StoreGCPSecretManager, StoreAzureKeyVault, StoreMemory,
			}, ", ")),
		}
	}

	switch d.ParameterStore.Type {
	case ParamStoreAWSSSM, ParamStoreNone:
	default:
		return pserrors.ConfigError{
			Field:      "parameterStore.type",
			Value:      d.ParameterStore.Type,
			Message:    "unsupported parameter store type",
			Suggestion: "Use aws-ssm, or none to skip legacy parameter cleanup",
		}
	}
	return nil
}

func (d *Definition) applyDefaults() {
	if d.SecretStore.Type == "" {
		d.SecretStore.Type = StoreAWSSecretsManager
	}
	if d.ParameterStore.Type == "" {
		d.ParameterStore.Type = ParamStoreAWSSSM
	}
	// The legacy parameter lives next to the secret unless told otherwise.
	if d.ParameterStore.Type == ParamStoreAWSSSM && d.SecretStore.Type == StoreAWSSecretsManager {
		for _, key := range []string{"region", "profile", "endpoint", "assume_role"} {
			if _, ok := d.ParameterStore.Config[key]; ok {
				continue
			}
			if v, ok := d.SecretStore.Config[key]; ok {
				if d.ParameterStore.Config == nil {
					d.ParameterStore.Config = make(map[string]interface{})
				}
				d.ParameterStore.Config[key] = v
			}
		}
	}
	if d.KeyTool.Binary == "" {
		d.KeyTool.Binary = defaultKeyBinary
	}
	if d.KeyTool.Gpgconf == "" {
		d.KeyTool.Gpgconf = defaultGpgconf
	}
	if d.KeyTool.WorkspacePrefix == "" {
		d.KeyTool.WorkspacePrefix = defaultWSPrefix
	}
	if d.KeyTool.LoopbackPinentry == nil {
		loopback := true
		d.KeyTool.LoopbackPinentry = &loopback
	}
	if d.Server.Addr == "" {
		d.Server.Addr = defaultListenAddr
	}
}

// Timeout returns the per-call timeout for a store
func (s StoreConfig) Timeout() time.Duration {
	if s.TimeoutMs <= 0 {
		return defaultTimeoutMs * time.Millisecond
	}
	return time.Duration(s.TimeoutMs) * time.Millisecond
}
