package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rhuss/tokengate/pkg/config"
	"github.com/rhuss/tokengate/pkg/gateway"
	transporthttp "github.com/rhuss/tokengate/pkg/transport/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gate",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return run(ctx, cfg)
	},
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := gateway.NewLogger(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)

	gw, err := gateway.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("starting gateway: %w", err)
	}
	defer gw.Close()

	logger.Info("gate configured",
		"trusted_issuer", cfg.Auth.TrustedIssuer,
		"issuers", len(cfg.Auth.Issuers),
		"storage", cfg.Storage.Type,
		"cache", cfg.Storage.Redis.Enabled,
		"upstream", cfg.Upstream.URL,
	)

	srv := transporthttp.NewServer(gw.Handler,
		transporthttp.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transporthttp.WithReadHeaderTimeout(cfg.Server.ReadHeaderTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithLogger(logger),
	)
	return srv.Run(ctx)
}
