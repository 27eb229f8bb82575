package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/systmms/pgpsecret/internal/config"
)

// CheckResult is one row of the doctor report.
type CheckResult struct {
	Name        string
	Type        string
	Status      string // healthy, error, skipped
	Message     string
	Suggestions []string
}

// NewDoctorCommand creates the doctor command
func NewDoctorCommand(cfg *config.Config) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check key tool and secret store readiness",
		Long: `Verify that pgpsecret can do its job.

This command checks:
- Configuration file validity
- GnuPG availability
- Secret store authentication and connectivity
- Legacy parameter store configuration`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Logger.Info("Checking pgpsecret configuration...")
			if err := loadConfig(cfg); err != nil {
				cfg.Logger.Error("Configuration error: %v", err)
				return err
			}
			cfg.Logger.Info("✓ Configuration loaded successfully")

			ctx := cmd.Context()
			results := []CheckResult{
				checkKeyTool(ctx, cfg),
				checkSecretStore(ctx, cfg),
				checkParameterStore(cfg),
			}

			out := cmd.OutOrStdout()
			displayCheckResults(out, results, verbose)

			healthy := 0
			for _, result := range results {
				if result.Status != "error" {
					healthy++
				}
			}
			_, _ = fmt.Fprintf(out, "\nSummary: %d/%d checks passed\n", healthy, len(results))
			if healthy < len(results) {
				return fmt.Errorf("some checks failed")
			}

			cfg.Logger.Info("✓ All systems operational!")
			return nil
		},
	}

	cmd.Flags().BoolVar(&verbose, "verbose", false, "Show suggestions for failed checks")

	return cmd
}

func checkKeyTool(ctx context.Context, cfg *config.Config) CheckResult {
	tool := newKeyTool(cfg)
	result := CheckResult{Name: "keytool", Type: tool.Binary()}

	version, err := tool.Version(ctx)
	if err != nil {
		result.Status = "error"
		result.Message = err.Error()
		result.Suggestions = []string{
			"Install GnuPG: apt install gnupg, brew install gnupg",
			"Or set keytool.binary in pgpsecret.yaml",
		}
		return result
	}
	result.Status = "healthy"
	result.Message = version
	return result
}

func checkSecretStore(ctx context.Context, cfg *config.Config) CheckResult {
	storeConfig := cfg.Definition.SecretStore
	result := CheckResult{Name: "secretStore", Type: storeConfig.Type}

	store, err := storeRegistry.CreateSecretStore(ctx, storeConfig, cfg.Logger)
	if err == nil {
		vctx, cancel := context.WithTimeout(ctx, storeConfig.Timeout())
		err = store.Validate(vctx)
		cancel()
	}
	if err != nil {
		result.Status = "error"
		result.Message = err.Error()
		result.Suggestions = getSuggestions(storeConfig.Type, err)
		return result
	}
	result.Status = "healthy"
	result.Message = "Secret store is ready"
	return result
}

// checkParameterStore reports the legacy cleanup target. Deletion is the
// only call it ever receives, so there is nothing to probe without side
// effects.
func checkParameterStore(cfg *config.Config) CheckResult {
	paramConfig := cfg.Definition.ParameterStore
	result := CheckResult{Name: "parameterStore", Type: paramConfig.Type}
	if paramConfig.Type == config.ParamStoreNone {
		result.Status = "skipped"
		result.Message = "Legacy parameter cleanup disabled"
		return result
	}
	result.Status = "healthy"
	result.Message = "Legacy parameters are deleted on metadata updates"
	return result
}

// displayCheckResults shows check results in a formatted table
func displayCheckResults(out io.Writer, results []CheckResult, verbose bool) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "CHECK\tTYPE\tSTATUS\tMESSAGE\n")
	_, _ = fmt.Fprintf(w, "-----\t----\t------\t-------\n")

	for _, result := range results {
		status := result.Status
		switch result.Status {
		case "healthy":
			status = "✓ " + status
		case "error":
			status = "✗ " + status
		default:
			status = "- " + status
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", result.Name, result.Type, status, result.Message)
	}

	_ = w.Flush()

	if verbose {
		for _, result := range results {
			if result.Status == "error" && len(result.Suggestions) > 0 {
				_, _ = fmt.Fprintf(out, "\n%s (%s) suggestions:\n", result.Name, result.Type)
				for _, suggestion := range result.Suggestions {
					_, _ = fmt.Fprintf(out, "  • %s\n", suggestion)
				}
			}
		}
	}
}

// getSuggestions returns helpful suggestions for secret store errors
func getSuggestions(storeType string, err error) []string {
	msg := err.Error()
	var suggestions []string

	switch storeType {
	case config.StoreAWSSecretsManager:
		suggestions = append(suggestions, "Configure AWS credentials via CLI, env vars, or IAM roles")
		if strings.Contains(msg, "authentication") || strings.Contains(msg, "credentials") {
			suggestions = append(suggestions, "Run: aws configure")
			suggestions = append(suggestions, "Verify with: aws sts get-caller-identity")
		}
		if strings.Contains(msg, "region") {
			suggestions = append(suggestions, "Set AWS_REGION or secretStore.region in pgpsecret.yaml")
		}

	case config.StoreGCPSecretManager:
		suggestions = append(suggestions, "Run: gcloud auth application-default login")
		if strings.Contains(msg, "project_id") {
			suggestions = append(suggestions, "Set secretStore.project_id or GOOGLE_CLOUD_PROJECT")
		}

	case config.StoreAzureKeyVault:
		suggestions = append(suggestions, "Run: az login")
		if strings.Contains(msg, "vault_url") {
			suggestions = append(suggestions, "Set secretStore.vault_url, e.g. https://my-vault.vault.azure.net")
		}

	default:
		suggestions = append(suggestions, "Verify secretStore in pgpsecret.yaml")
	}

	return suggestions
}
