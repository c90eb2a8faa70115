package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/mossy-p/signal-relay/config"
	"github.com/mossy-p/signal-relay/internal/handlers"
	"github.com/mossy-p/signal-relay/internal/metrics"
	"github.com/mossy-p/signal-relay/internal/redis"
	"github.com/mossy-p/signal-relay/internal/signaling"
	"github.com/mossy-p/signal-relay/internal/token"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var port, env string

	cmd := &cobra.Command{
		Use:          "signaling",
		Short:        "WebRTC signaling relay",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Load local .env (dev only)
			_ = godotenv.Load()

			cfg := config.Load()
			if port != "" {
				cfg.Port = port
			}
			if env != "" {
				cfg.Environment = env
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return run(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides PORT)")
	cmd.Flags().StringVar(&env, "env", "", "environment name (overrides ENVIRONMENT)")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := config.NewLogger(cfg)
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	rooms := signaling.NewRegistry(signaling.Options{
		Logger:         logger,
		Metrics:        m,
		NotifyPeerLeft: cfg.Signaling.NotifyPeerLeft,
	})

	svcCfg := signaling.ServiceConfig{
		Registry:        rooms,
		Logger:          logger,
		Metrics:         m,
		SendBufferSize:  cfg.Signaling.SendBufferSize,
		MaxMessageBytes: cfg.Signaling.MaxMessageBytes,
	}
	deps := handlers.Deps{
		Config:  cfg,
		Logger:  logger,
		Metrics: m,
		Issuer:  token.NewIssuer(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, cfg.LiveKit.TokenTTL),
	}

	// Redis presence is optional; relaying never depends on it
	if cfg.Redis.Enabled {
		presence, err := redis.Connect(ctx, cfg.Redis, logger)
		if err != nil {
			return err
		}
		defer presence.Close()
		svcCfg.Presence = presence
		deps.Presence = presence
	}

	svc := signaling.NewService(svcCfg)
	deps.Service = svc

	if !deps.Issuer.Configured() {
		logger.Warn("livekit credentials not set; /getToken will return 503")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server.listening", "addr", srv.Addr, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("server.shutdown.start")

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()

	// Hijacked websockets are not tracked by http.Server; close them first.
	if err := svc.Shutdown(shutdownCtx); err != nil {
		logger.Warn("signaling.shutdown", "err", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server.shutdown", "err", err)
	}

	logger.Info("server.shutdown.complete")
	return nil
}
