package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jonathan/outreach-agent/internal/outreach"
	"github.com/jonathan/outreach-agent/internal/server"
	"github.com/jonathan/outreach-agent/internal/server/ratelimit"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var _ server.Service = (*outreach.Service)(nil)

var (
	serveAddr   string
	serveAPIKey string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: "Start an HTTP server exposing companies, scans, email queueing and campaigns. " +
		"Scans started over the API run on the background worker pool.",
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Address to listen on (default from config, :8080)")
	serveCmd.Flags().StringVar(&serveAPIKey, "api-key", "", "Require this key in X-API-Key or a Bearer token (overrides OUTREACH_API_KEY)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		addr := serveAddr
		if addr == "" {
			addr = a.cfg.ListenAddr
		}
		apiKey := serveAPIKey
		if apiKey == "" {
			apiKey = os.Getenv("OUTREACH_API_KEY")
		}
		if apiKey == "" {
			a.logger.Warn("API key not set, authentication disabled")
		}

		srv, err := server.New(server.Config{
			Addr:      addr,
			APIKey:    apiKey,
			RateLimit: ratelimit.LoadConfig(os.Getenv),
			Health:    a.db,
			Logger:    a.logger,
		}, a.service)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}

		a.pool.Start()
		a.logger.Info("server listening", zap.String("addr", addr))
		return srv.Start(ctx)
	})
}
