package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/systmms/pgpsecret/cmd/pgpsecret/commands"
	"github.com/systmms/pgpsecret/internal/config"
	pserrors "github.com/systmms/pgpsecret/internal/errors"
	"github.com/systmms/pgpsecret/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", pserrors.SimplifyError(err))
		os.Exit(1)
	}
}

func run() error {
	// Global flags
	var (
		configFile string
		noColor    bool
		debug      bool
	)

	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:   "pgpsecret",
		Short: "PGP keypair lifecycle controller",
		Long: `pgpsecret handles Create, Update and Delete events for a PGP keypair:
it generates keys with GnuPG in a throwaway keyring, stores the private key
and its passphrase in a cloud secret store and returns the public key.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg.Path = configFile
			cfg.Explicit = cmd.Flags().Changed("config")
			cfg.Logger = logging.New(debug, noColor)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", config.DefaultPath, "Config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		commands.NewHandleCommand(cfg),
		commands.NewPublicKeyCommand(cfg),
		commands.NewServeCommand(cfg),
		commands.NewDoctorCommand(cfg),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}
