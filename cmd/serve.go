// File: cmd/serve.go
package cmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/voicepilot/internal/config"
	"github.com/xkilldash9x/voicepilot/internal/observability"
	"github.com/xkilldash9x/voicepilot/internal/service"
	"github.com/xkilldash9x/voicepilot/internal/transport"
)

const sweepInterval = 5 * time.Second

func newServeCmd(factory service.ComponentFactory) *cobra.Command {
	var (
		listen   string
		disabled bool
	)
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serves the computer control protocol over a websocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.TransportCfg.ListenAddr = listen
			}
			if disabled {
				cfg.SetControlEnabled(false)
			}
			return runServe(cmd.Context(), observability.GetLogger(), cfg, factory)
		},
	}
	serveCmd.Flags().StringVarP(&listen, "listen", "l", "", "override transport.listen_addr")
	serveCmd.Flags().BoolVar(&disabled, "disabled", false, "start with computer control off until a client enables it")
	return serveCmd
}

// runServe wires the pipeline to the websocket hub and blocks until ctx is
// done or a component fails.
func runServe(ctx context.Context, logger *zap.Logger, cfg config.Interface, factory service.ComponentFactory) error {
	components, err := factory.Create(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer components.Shutdown()

	tc := cfg.Transport()
	hub := transport.NewHub(components.Orchestrator, logger, tc.AllowedOrigins)
	srv := transport.NewServer(tc, hub, transport.NewAuthenticator(tc.JWTSecret, logger), logger)
	if tc.JWTSecret == "" {
		logger.Warn("Websocket authentication is disabled; set VOICEPILOT_JWT_SECRET to require tokens.")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})

	var sweeperWG sync.WaitGroup
	service.StartConfirmationSweeper(gctx, &sweeperWG, components.Gate, sweepInterval, logger)

	err = g.Wait()
	sweeperWG.Wait()
	if err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	logger.Info("Server shut down cleanly.")
	return nil
}
