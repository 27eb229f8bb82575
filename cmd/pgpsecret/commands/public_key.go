package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/systmms/pgpsecret/internal/config"
	"github.com/systmms/pgpsecret/internal/lifecycle"
)

// NewPublicKeyCommand creates the public-key command
func NewPublicKeyCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "public-key <id-or-location>",
		Short: "Print the public key of a stored keypair",
		Long: `Re-derive the armored public key from the private key held in the
secret store. Accepts either a resource id (location#version) or a bare
secret location.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cfg); err != nil {
				return err
			}
			ctrl, err := newController(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			publicKey, err := ctrl.PublicKey(cmd.Context(), lifecycle.LocationFromID(args[0]))
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), publicKey)
			return err
		},
	}

	return cmd
}
