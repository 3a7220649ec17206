// AMLGuard - Real-time AML transaction screening.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/amlguard/amlguard/internal/api"
	"github.com/amlguard/amlguard/internal/bus"
	"github.com/amlguard/amlguard/internal/cache"
	"github.com/amlguard/amlguard/internal/decision"
	"github.com/amlguard/amlguard/internal/domain"
	"github.com/amlguard/amlguard/internal/metrics"
	"github.com/amlguard/amlguard/internal/repository"
	"github.com/amlguard/amlguard/internal/rules"
	"github.com/amlguard/amlguard/internal/scorer"
	"github.com/amlguard/amlguard/internal/stream"
	"github.com/amlguard/amlguard/internal/velocity"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("AMLGUARD_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting amlguard",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()
	if os.Getenv("AMLGUARD_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}
	applyEnvOverrides(cfg)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"rules_dir", cfg.Rules.Dir,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Velocity Service
	velocitySvc := velocity.NewService(repo, cacheImpl)

	// Initialize Rule Registry from YAML documents
	registry := rules.NewRegistry(cfg.Rules.Dir)
	slog.Info("rule registry initialized",
		"rules_count", registry.RulesCount(),
		"generation", registry.Generation(),
	)

	// Initialize Decision Pipeline
	pipeline := decision.NewPipeline()
	slog.Info("decision pipeline initialized", "flag_threshold", pipeline.FlagThreshold)

	// Initialize ML Scorer client
	scorerClient := scorer.NewClient(cfg.Scorer, cacheImpl)
	slog.Info("scorer client initialized", "url", cfg.Scorer.URL)

	// Initialize Metrics
	collector := metrics.NewCollector()

	// Initialize Stream Coordinator
	coordinator := stream.NewCoordinator(cfg.Stream, registry, pipeline, scorerClient, velocitySvc, repo, busImpl, collector)
	if err := coordinator.Start(); err != nil {
		slog.Error("failed to start stream coordinator", "error", err)
		os.Exit(1)
	}
	slog.Info("stream coordinator started",
		"queue_capacity", cfg.Stream.QueueCapacity,
		"poll_timeout", cfg.Stream.PollTimeout,
	)

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, busImpl, registry, coordinator, collector, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("amlguard is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop accepting submissions before stopping the coordinator, so no
	// transaction is acknowledged as queued and then never processed.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Drain the queue and finish the in-flight transaction.
	coordinator.Stop()

	slog.Info("amlguard shutdown complete")
}

// applyEnvOverrides applies AMLGUARD_* environment overrides on top of the
// tier defaults.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("AMLGUARD_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("AMLGUARD_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("AMLGUARD_RULES_DIR"); v != "" {
		cfg.Rules.Dir = v
	}
	if v := os.Getenv("AMLGUARD_SCORER_URL"); v != "" {
		cfg.Scorer.URL = v
	}
	if v := os.Getenv("AMLGUARD_DB_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("AMLGUARD_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("AMLGUARD_POSTGRES_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}
	if v := os.Getenv("AMLGUARD_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("AMLGUARD_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("AMLGUARD_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("AMLGUARD_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("AMLGUARD_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Stream.QueueCapacity = n
		}
	}
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  AMLGuard - Transaction Screening Engine")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /transactions      - Submit a transaction for screening")
	fmt.Println("    GET  /transactions/{id} - Get transaction by ID")
	fmt.Println("    GET  /rules             - List loaded rules")
	fmt.Println("    GET  /rules/stats       - Per-rule evaluation statistics")
	fmt.Println("    POST /rules/reload      - Hot-reload rules from disk")
	fmt.Println("    GET  /alerts            - List alerts")
	fmt.Println("    GET  /alerts/{id}       - Get alert by ID")
	fmt.Println("    GET  /health            - Health check")
	fmt.Println("    GET  /ready             - Readiness check")
	fmt.Println("    GET  /metrics           - Prometheus metrics")
	fmt.Println()
}
