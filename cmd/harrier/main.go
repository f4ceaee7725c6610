// Harrier - AML transaction monitoring engine.

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

	"github.com/opensource-finance/harrier/internal/alerting"
	"github.com/opensource-finance/harrier/internal/api"
	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/metrics"
	"github.com/opensource-finance/harrier/internal/monitor"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/rules"
	"github.com/opensource-finance/harrier/internal/scoring"
	"github.com/opensource-finance/harrier/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg := loadConfig()
	initLogger(cfg.Logging)

	slog.Info("starting harrier",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
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

	// Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Metrics
	collector := metrics.NewCollector()

	// Scoring engine, seeded with the default factor tables and
	// overridden by whatever the store holds.
	scorer := scoring.NewEngine(cfg.Scoring)
	if err := loadThresholds(ctx, repo, scorer); err != nil {
		slog.Error("failed to load scoring thresholds", "error", err)
		os.Exit(1)
	}

	// Rule engine
	engine, err := rules.NewEngine(rules.Options{
		Scorer:          scorer,
		Cache:           cacheImpl,
		MaxWorkers:      cfg.Engine.MaxWorkers,
		CacheEnabled:    cfg.Engine.CacheEnabled,
		CacheTTL:        cfg.Engine.CacheTTL,
		EvalTimeout:     cfg.Engine.EvalTimeout,
		MinAlertScore:   cfg.Scoring.MinAlertScore,
		HighRiskScore:   cfg.Alerting.HighRiskScore,
		MediumRiskScore: cfg.Alerting.MediumRiskScore,
		Recorder:        collector,
	})
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	if err := loadRules(ctx, repo, engine); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	// Alert and case generation
	generator := alerting.NewGenerator(repo, busImpl, cfg.Alerting)

	// Transaction processor
	processor := monitor.NewProcessor(repo, engine, generator, busImpl, cacheImpl, collector, cfg.Monitor)
	slog.Info("processor initialized",
		"history_days", cfg.Monitor.HistoryDays,
		"batch_size", cfg.Monitor.BatchSize,
		"fault_policy", cfg.Monitor.FaultPolicy,
	)

	caseSub, err := busImpl.Subscribe(ctx, domain.TopicCaseOpened, func(ctx context.Context, msg *domain.Message) error {
		collector.CaseOpened()
		return nil
	})
	if err != nil {
		slog.Error("failed to subscribe to case events", "error", err)
		os.Exit(1)
	}
	defer caseSub.Unsubscribe()

	// Async worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("HARRIER_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, processor, worker.Config{
			Concurrency: envInt("HARRIER_WORKER_CONCURRENCY", 0),
		})
		if err := asyncWorker.Start(); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started")
		}
	}

	// Periodic batch runs for transactions that arrived outside the
	// synchronous and async paths.
	if interval := envDuration("HARRIER_BATCH_INTERVAL", 0); interval > 0 {
		go runBatchLoop(ctx, processor, interval)
		slog.Info("batch loop started", "interval", interval)
	}

	// HTTP server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, processor, collector.Handler(), Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("harrier is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("harrier shutdown complete")
}

// loadConfig builds the configuration from the tier defaults plus
// environment overrides.
func loadConfig() *domain.Config {
	cfg := domain.DefaultConfig()
	if os.Getenv("HARRIER_TIER") == "pro" {
		cfg = domain.ProConfig()
	}

	if v := os.Getenv("HARRIER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("HARRIER_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("HARRIER_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("HARRIER_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("HARRIER_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("HARRIER_POSTGRES_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}
	if v := os.Getenv("HARRIER_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("HARRIER_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if os.Getenv("HARRIER_DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}
	return cfg
}

func initLogger(cfg domain.LoggingConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// loadRules loads rule configurations from the store. An empty store is
// seeded with the default rule set on first start.
func loadRules(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	configs, err := repo.ListRuleConfigs(ctx)
	if err != nil {
		return err
	}

	if len(configs) == 0 {
		slog.Info("seeding default rule set")
		for _, cfg := range rules.DefaultRuleConfigs() {
			if err := repo.SaveRuleConfig(ctx, cfg); err != nil {
				return fmt.Errorf("seed rule %s: %w", cfg.ID, err)
			}
			configs = append(configs, cfg)
		}
	}

	return engine.ReloadConfigs(configs)
}

// loadThresholds loads scoring factor tables from the store. An empty
// store is seeded with the defaults on first start.
func loadThresholds(ctx context.Context, repo domain.Repository, scorer *scoring.Engine) error {
	ths, err := repo.ListScoringThresholds(ctx, "")
	if err != nil {
		return err
	}

	if len(ths) == 0 {
		slog.Info("seeding default scoring thresholds")
		for _, th := range scoring.DefaultThresholds() {
			if err := repo.SaveScoringThreshold(ctx, th); err != nil {
				return fmt.Errorf("seed threshold %s: %w", th.ID, err)
			}
		}
		return nil // scorer already carries the defaults
	}

	scorer.LoadThresholds(ths)
	return nil
}

func runBatchLoop(ctx context.Context, processor *monitor.Processor, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := processor.ProcessBatch(ctx); err != nil {
				slog.Error("scheduled batch run failed", "error", err)
			}
		}
	}
}

func envInt(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(name string, fallback time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  HARRIER - Transaction Monitoring Engine")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /transactions           - Ingest and evaluate a transaction")
	fmt.Println("    GET  /transactions/{id}      - Get transaction by ID")
	fmt.Println("    POST /process                - Run a batch over unprocessed transactions")
	fmt.Println("    GET  /alerts/{id}            - Get alert by ID")
	fmt.Println("    GET  /accounts/{n}/alerts    - List alerts for an account")
	fmt.Println("    GET  /cases/{reference}      - Get case by reference")
	fmt.Println("    PUT  /accounts/{number}      - Upsert account reference data")
	fmt.Println("    PUT  /customers/{id}         - Upsert customer reference data")
	fmt.Println("    GET  /rules                  - List rules")
	fmt.Println("    POST /rules                  - Create a rule")
	fmt.Println("    POST /rules/reload           - Hot-reload rules from the store")
	fmt.Println("    GET  /metrics                - Prometheus metrics")
	fmt.Println("    GET  /health                 - Health check")
	fmt.Println()
}
