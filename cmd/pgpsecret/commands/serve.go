package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/systmms/pgpsecret/internal/config"
	"github.com/systmms/pgpsecret/internal/server"
)

const shutdownTimeout = 30 * time.Second

// NewServeCommand creates the serve command
func NewServeCommand(cfg *config.Config) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve lifecycle events over HTTP",
		Long: `Run an HTTP server that accepts lifecycle events.

Endpoints:
  POST /events   handle one event, respond with the result as JSON
  GET  /metrics  Prometheus metrics
  GET  /health   liveness check`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cfg); err != nil {
				return err
			}
			ctrl, err := newController(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			srvConfig := server.DefaultConfig()
			srvConfig.Addr = cfg.Definition.Server.Addr
			if addr != "" {
				srvConfig.Addr = addr
			}

			srv := server.New(srvConfig, ctrl, cfg.Logger)
			if err := srv.Start(); err != nil {
				return err
			}

			<-cmd.Context().Done()
			cfg.Logger.Info("Shutting down")

			ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), shutdownTimeout)
			defer cancel()
			return srv.Stop(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")

	return cmd
}
