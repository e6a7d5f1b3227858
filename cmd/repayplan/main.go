// Repayplan - Repayment-plan estimates for personal debt restructuring.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-finance/repayplan/internal/api"
	"github.com/opensource-finance/repayplan/internal/bus"
	"github.com/opensource-finance/repayplan/internal/cache"
	"github.com/opensource-finance/repayplan/internal/delivery"
	"github.com/opensource-finance/repayplan/internal/domain"
	"github.com/opensource-finance/repayplan/internal/report"
	"github.com/opensource-finance/repayplan/internal/repository"
	"github.com/opensource-finance/repayplan/internal/rules"
	"github.com/opensource-finance/repayplan/internal/throttle"
	"github.com/opensource-finance/repayplan/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, warnings := loadConfig()

	// Initialize structured logger
	slog.SetDefault(newLogger(os.Stdout, cfg.Logging, os.Getenv("REPAYPLAN_DEBUG") == "true"))
	for _, w := range warnings {
		slog.Warn(w)
	}

	slog.Info("starting repayplan",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"async_worker", cfg.AsyncWorker,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	// Initialize rules registry
	registry, err := rules.NewRegistry()
	if err != nil {
		slog.Error("failed to initialize rules registry", "error", err)
		os.Exit(1)
	}
	defer registry.Close()

	if err := loadRules(ctx, cfg.Rules, repo, registry); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rules registry initialized",
		"versions", registry.Count(),
		"active", registry.ActiveVersion(),
	)

	assessor := report.NewAssessor(registry, repo, cacheImpl,
		time.Duration(cfg.Rules.ResultCacheTTL)*time.Second)

	// Initialize async Worker
	var asyncWorker *worker.Worker
	if cfg.AsyncWorker {
		asyncWorker = worker.NewWorker(busImpl, assessor)
		if err := asyncWorker.Start(worker.Config{Concurrency: 5}); err != nil {
			slog.Error("failed to start async worker", "error", err)
			asyncWorker = nil
		} else {
			slog.Info("async worker started", "topic", domain.TopicAssessmentRequested)
		}
	}

	// Initialize webhook delivery
	var webhook *delivery.Webhook
	if cfg.Webhook.URL != "" {
		webhook = delivery.NewWebhook(cfg.Webhook.URL,
			time.Duration(cfg.Webhook.Timeout)*time.Second, cacheImpl)
		if err := webhook.Start(ctx, busImpl); err != nil {
			slog.Error("failed to start webhook delivery", "error", err)
			webhook = nil
		} else {
			slog.Info("webhook delivery started", "url", cfg.Webhook.URL)
		}
	}

	limiter := throttle.NewService(cacheImpl, cfg.Throttle.Limit,
		time.Duration(cfg.Throttle.Window)*time.Second)

	srv := api.NewServer(cfg.Server, assessor, busImpl, limiter, Version)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("repayplan is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Stop accepting requests before draining the worker.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}
	if webhook != nil {
		if err := webhook.Stop(); err != nil {
			slog.Error("failed to stop webhook delivery", "error", err)
		}
	}

	slog.Info("repayplan shutdown complete")
}

// newLogger builds the slog handler from the logging settings. Unknown levels
// fall back to info and unknown formats to JSON; debug forces the debug level.
func newLogger(w io.Writer, cfg domain.LoggingConfig, debug bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// loadConfig picks the tier defaults and applies environment overrides. It runs
// before the logger exists, so rejected values come back as warnings.
func loadConfig() (*domain.Config, []string) {
	var warnings []string
	cfg := domain.DefaultConfig()
	if os.Getenv("REPAYPLAN_TIER") == "pro" {
		cfg = domain.ProConfig()
	}

	if v := os.Getenv("REPAYPLAN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("REPAYPLAN_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("REPAYPLAN_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		} else {
			warnings = append(warnings, "ignoring invalid REPAYPLAN_PORT: "+v)
		}
	}
	if v := os.Getenv("REPAYPLAN_DB_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("REPAYPLAN_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := os.Getenv("REPAYPLAN_RULES_URL"); v != "" {
		cfg.Rules.URL = v
	}
	if v := os.Getenv("REPAYPLAN_WEBHOOK_URL"); v != "" {
		cfg.Webhook.URL = v
	}
	if v := os.Getenv("REPAYPLAN_ASYNC_WORKER"); v != "" {
		cfg.AsyncWorker = v == "true"
	}
	if v := os.Getenv("REPAYPLAN_THROTTLE_LIMIT"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			cfg.Throttle.Limit = limit
		} else {
			warnings = append(warnings, "ignoring invalid REPAYPLAN_THROTTLE_LIMIT: "+v)
		}
	}
	return cfg, warnings
}

// loadRules fills the registry. A configured URL or file is authoritative and
// any failure to fetch it is fatal. Otherwise stored documents are loaded, and
// the builtin document is used only when nothing is stored.
func loadRules(ctx context.Context, cfg domain.RulesConfig, repo domain.Repository, registry *rules.Registry) error {
	var source rules.Source
	switch {
	case cfg.URL != "":
		source = rules.NewHTTPSource(cfg.URL, time.Duration(cfg.FetchTimeout)*time.Second)
	case cfg.Path != "":
		source = rules.FileSource{Path: cfg.Path}
	}

	if source != nil {
		doc, err := source.Fetch(ctx)
		if err != nil {
			return err
		}
		if _, err := registry.Load(doc); err != nil {
			return fmt.Errorf("failed to load fetched rules: %w", err)
		}
		slog.Info("rules fetched", "version", registry.ActiveVersion())
		return nil
	}

	stored, err := repo.ListRulesDocuments(ctx)
	if err != nil {
		slog.Warn("failed to list stored rules documents", "error", err)
	}
	if len(stored) > 0 {
		docs := make([]*domain.RulesDocument, 0, len(stored))
		active := ""
		for _, s := range stored {
			docs = append(docs, s.Document)
			if s.Active {
				active = s.Version
			}
		}
		slog.Info("loading stored rules documents", "count", len(docs))
		return registry.Reload(docs, active)
	}

	slog.Info("no rules configured - using builtin document")
	_, err = registry.Load(rules.Builtin())
	return err
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║                REPAYPLAN                  ║")
	fmt.Println("  ║    Debt Restructuring Plan Estimator      ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /assessments         - Assess a repayment plan")
	fmt.Println("    POST /assessments/async   - Queue an assessment")
	fmt.Println("    GET  /assessments/{id}    - Get assessment by ID")
	fmt.Println("    GET  /assessments         - List recent assessments")
	fmt.Println("    GET  /rules               - List loaded rules versions")
	fmt.Println("    GET  /rules/{version}     - Get a rules document")
	fmt.Println("    POST /rules               - Load a rules document")
	fmt.Println("    PUT  /rules/active        - Switch the active version")
	fmt.Println("    POST /rules/reload        - Hot-reload rules from database")
	fmt.Println("    GET  /health              - Health check")
	fmt.Println()
}
