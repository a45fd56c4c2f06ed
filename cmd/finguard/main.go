// FinGuard - anti-money-laundering detection engine.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/finguard/internal/api"
	"github.com/opensource-finance/finguard/internal/bus"
	"github.com/opensource-finance/finguard/internal/cache"
	"github.com/opensource-finance/finguard/internal/config"
	"github.com/opensource-finance/finguard/internal/domain"
	"github.com/opensource-finance/finguard/internal/metrics"
	"github.com/opensource-finance/finguard/internal/repository"
	"github.com/opensource-finance/finguard/internal/service"
	"github.com/opensource-finance/finguard/internal/telemetry"
	"github.com/opensource-finance/finguard/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", os.Getenv(config.EnvPrefix+"CONFIG"), "Path to YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(cfg.Logging, os.Stdout, os.Getenv(config.EnvPrefix+"DEBUG") == "true")
	slog.SetDefault(logger)

	slog.Info("starting finguard",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"location", cfg.Detection.Location,
		"tracing", cfg.Tracing.Enabled,
	)

	shutdownTracing, err := telemetry.Setup(cfg.Tracing)
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	m := metrics.New()

	svc, err := service.New(cfg, service.Options{
		Repo:    repo,
		Cache:   cacheImpl,
		Bus:     busImpl,
		Metrics: m,
	})
	if err != nil {
		slog.Error("failed to initialize detection service", "error", err)
		os.Exit(1)
	}
	slog.Info("detection service initialized", "alert_policy", cfg.AlertPolicy)

	asyncWorker := worker.NewWorker(busImpl, svc)
	if err := asyncWorker.Start(); err != nil {
		slog.Error("failed to start async worker", "error", err)
		os.Exit(1)
	}

	srv := api.NewServer(cfg.Server, svc, api.Deps{
		Repo:    repo,
		Cache:   cacheImpl,
		Bus:     busImpl,
		Metrics: m,
	}, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("finguard is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	if err := asyncWorker.Stop(); err != nil {
		slog.Error("failed to stop async worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("failed to flush traces", "error", err)
	}

	slog.Info("finguard shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  FinGuard - AML detection engine")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST  /assess                 - Assess an inline customer")
	fmt.Println("    POST  /customers              - Store customer profiles")
	fmt.Println("    POST  /transactions           - Store transactions")
	fmt.Println("    GET   /customers/{id}/report  - Assess a stored customer")
	fmt.Println("    POST  /customers/{id}/assess  - Queue an assessment")
	fmt.Println("    GET   /reports/{id}           - Get report by ID")
	fmt.Println("    POST  /networks/detect        - Detect smurfing networks")
	fmt.Println("    POST  /networks/scan          - Queue a network scan")
	fmt.Println("    GET   /networks/{id}          - Get network by ID")
	fmt.Println("    GET   /alerts                 - List alerts")
	fmt.Println("    PATCH /alerts/{id}            - Update alert status")
	fmt.Println("    GET   /health                 - Health check")
	fmt.Println("    GET   /metrics                - Prometheus metrics")
	fmt.Println()
}
