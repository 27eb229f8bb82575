package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/systmms/pgpsecret/internal/config"
	pserrors "github.com/systmms/pgpsecret/internal/errors"
	"github.com/systmms/pgpsecret/internal/lifecycle"
)

// NewHandleCommand creates the handle command
func NewHandleCommand(cfg *config.Config) *cobra.Command {
	var eventFile string

	cmd := &cobra.Command{
		Use:   "handle",
		Short: "Handle one lifecycle event",
		Long: `Read a lifecycle event (JSON) and carry it out.

Create generates a keypair and stores it. Update either re-generates the key
(when Identity, Email, Expiry, KeySizeBits, SecretName or Version changed) or
only refreshes Description and KeyArn. Delete leaves the secret in place.

The result {id, secretLocation, publicKey} is written to stdout as JSON.
When the legacy parameter of an earlier configuration could not be deleted
the result is still written, and the command exits non-zero.`,
		Example: `  pgpsecret handle --event create.json
  cat update.json | pgpsecret handle --event -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readEvent(cmd.InOrStdin(), eventFile)
			if err != nil {
				return err
			}
			event, err := lifecycle.ParseEvent(data)
			if err != nil {
				return err
			}

			if err := loadConfig(cfg); err != nil {
				return err
			}
			ctrl, err := newController(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			result, err := ctrl.Handle(cmd.Context(), event)
			var warning *pserrors.CleanupWarning
			if err != nil && !errors.As(err, &warning) {
				return err
			}

			// The key is stored even when legacy cleanup failed, so the
			// result is printed before the warning fails the command.
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
			if warning != nil {
				return warning
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&eventFile, "event", "-", "Event file, or - for stdin")

	return cmd
}

func readEvent(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read event from stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pserrors.UserError{
			Message:    fmt.Sprintf("Failed to read event file %s", path),
			Details:    err.Error(),
			Suggestion: "Check the --event path, or pass - to read from stdin",
			Err:        err,
		}
	}
	return data, nil
}
