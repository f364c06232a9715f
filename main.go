package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evanofslack/cloudflare-ddns-sync/internal/config"
	"github.com/evanofslack/cloudflare-ddns-sync/internal/logger"
	"github.com/evanofslack/cloudflare-ddns-sync/internal/metrics"
	"github.com/evanofslack/cloudflare-ddns-sync/internal/provider/cloudflare"
	"github.com/evanofslack/cloudflare-ddns-sync/internal/reconcile"
	"github.com/evanofslack/cloudflare-ddns-sync/internal/resolver"
)

func main() {
	cfg, err := config.Load(configPath())
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	logger.Configure(cfg.Log.Level, cfg.Log.Env)

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	m := metrics.New(true)

	// Set up HTTP server for metrics
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: mux,
	}

	// Start http server in background
	go func() {
		slog.Info("Starting metrics server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Metrics server failed", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cf, err := cloudflare.New(cfg.DNS, m)
	if err != nil {
		slog.Error("Failed to initialize DNS provider", "error", err)
		os.Exit(1)
	}

	res := resolver.NewWeb(m)
	engine := reconcile.NewEngine(res, cf, cfg, m)

	slog.Info("Starting cloudflare-ddns-sync",
		"zone", cfg.DNS.ZoneID,
		"hosts", cfg.DNS.Hosts,
		"interval", cfg.SyncInterval,
		"create_missing", cfg.Reconcile.CreateMissing,
		"dry_run", cfg.Reconcile.DryRun)

	if err := engine.Run(ctx); err != nil {
		slog.Error("Reconcile loop failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Metrics server shutdown error", "error", err)
	}
	slog.Info("Service shutdown complete")
}

func configPath() string {
	if path := os.Getenv("DDNS_SYNC_CONFIG"); path != "" {
		return path
	}
	return "config.yaml"
}
