// Fraud Detector - real-time risk scoring for card transactions.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/BinaryLoops/Fraud-Detector/internal/alerting"
	"github.com/BinaryLoops/Fraud-Detector/internal/api"
	"github.com/BinaryLoops/Fraud-Detector/internal/bus"
	"github.com/BinaryLoops/Fraud-Detector/internal/cache"
	"github.com/BinaryLoops/Fraud-Detector/internal/config"
	"github.com/BinaryLoops/Fraud-Detector/internal/decision"
	"github.com/BinaryLoops/Fraud-Detector/internal/domain"
	"github.com/BinaryLoops/Fraud-Detector/internal/feed"
	"github.com/BinaryLoops/Fraud-Detector/internal/logging"
	"github.com/BinaryLoops/Fraud-Detector/internal/repository"
	"github.com/BinaryLoops/Fraud-Detector/internal/scoring"
	"github.com/BinaryLoops/Fraud-Detector/internal/velocity"
	"github.com/BinaryLoops/Fraud-Detector/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	loader, err := config.NewLoader(os.Getenv(config.EnvConfig))
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := loader.Config()

	slog.SetDefault(logging.New(cfg.Logging, os.Stdout))

	slog.Info("starting fraud detector",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"velocity_mode", cfg.Scoring.VelocityMode,
		"feed", cfg.Feed.Enabled,
		"tracing", cfg.Tracing.Enabled,
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

	velocitySrc, err := velocity.New(cfg.Scoring, cacheImpl, repo)
	if err != nil {
		slog.Error("failed to initialize velocity source", "error", err)
		os.Exit(1)
	}

	var loc *time.Location
	if cfg.Scoring.Timezone != "" {
		loc, err = time.LoadLocation(cfg.Scoring.Timezone)
		if err != nil {
			slog.Error("invalid scoring timezone", "timezone", cfg.Scoring.Timezone, "error", err)
			os.Exit(1)
		}
	}
	scorer := scoring.NewScorer(velocitySrc, loc)
	slog.Info("scorer initialized",
		"rules_count", len(scoring.Rules()),
		"velocity_mode", cfg.Scoring.VelocityMode,
	)

	classifier, err := alerting.NewClassifier(alerting.WithLocation(loc))
	if err != nil {
		slog.Error("failed to initialize alert classifier", "error", err)
		os.Exit(1)
	}
	defer classifier.Close()

	if err := seedAlertRules(ctx, repo, cfg.AlertRules, false); err != nil {
		slog.Error("failed to seed alert rules", "error", err)
		os.Exit(1)
	}
	if err := loadAlertRules(ctx, repo, classifier); err != nil {
		slog.Error("failed to load alert rules", "error", err)
		os.Exit(1)
	}
	slog.Info("alert classifier initialized", "rules_count", classifier.RulesCount())

	processor := decision.NewProcessor(scorer, classifier)

	asyncWorker := worker.NewWorker(busImpl, repo, cacheImpl, processor, cfg.Cache.EvaluationTTL)
	tenantIDs := workerTenants(cfg.Feed.TenantID, os.Getenv("FRAUD_TENANTS"))
	if err := asyncWorker.Start(worker.Config{TenantIDs: tenantIDs}); err != nil {
		slog.Error("failed to start worker", "error", err)
		os.Exit(1)
	}
	slog.Info("worker started", "tenants", tenantIDs)

	liveFeed := feed.NewEngine(cfg.Feed, nil, busImpl, repo)
	if err := liveFeed.Start(ctx); err != nil {
		slog.Error("failed to start live feed", "error", err)
		os.Exit(1)
	}

	// Alert rules follow the config file; everything else needs a restart.
	loader.OnChange(func(next *domain.Config) {
		if err := seedAlertRules(ctx, repo, next.AlertRules, true); err != nil {
			slog.Error("failed to store reloaded alert rules", "error", err)
			return
		}
		if err := loadAlertRules(ctx, repo, classifier); err != nil {
			slog.Error("failed to reload alert rules", "error", err)
			return
		}
		slog.Info("alert rules reloaded from config", "rules_count", classifier.RulesCount())
	})
	if os.Getenv(config.EnvConfig) != "" {
		stopWatch, err := loader.Watch()
		if err != nil {
			slog.Warn("config hot reload disabled", "error", err)
		} else {
			defer stopWatch()
		}
	}

	srv := api.NewServer(cfg.Server, cfg.Metrics, api.Deps{
		Repo:          repo,
		Cache:         cacheImpl,
		Bus:           busImpl,
		Scorer:        scorer,
		Classifier:    classifier,
		Worker:        asyncWorker,
		Feed:          liveFeed,
		BatchWorkers:  cfg.Scoring.BatchWorkers,
		EvaluationTTL: cfg.Cache.EvaluationTTL,
	}, Version)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("fraud detector is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop producing before the consumers go away.
	liveFeed.Stop()
	if err := asyncWorker.Stop(); err != nil {
		slog.Error("failed to stop worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("fraud detector shutdown complete")
}

// seedAlertRules stores the configured alert rules under the global tenant.
// Without overwrite, rules are only written into an empty store, and the
// built-in catalogue is used when the config lists none.
func seedAlertRules(ctx context.Context, repo domain.Repository, configured []domain.AlertRule, overwrite bool) error {
	if !overwrite {
		stored, err := repo.ListAlertRules(ctx, alerting.GlobalTenantID)
		if err != nil {
			return fmt.Errorf("list alert rules: %w", err)
		}
		if len(stored) > 0 {
			return nil
		}
	}

	rules := make([]*domain.AlertRule, 0, len(configured))
	for i := range configured {
		rule := configured[i]
		rules = append(rules, &rule)
	}
	if len(rules) == 0 {
		if overwrite {
			return nil
		}
		rules = alerting.DefaultRules()
	}

	for _, rule := range rules {
		rule.TenantID = alerting.GlobalTenantID
		if err := repo.SaveAlertRule(ctx, alerting.GlobalTenantID, rule); err != nil {
			return fmt.Errorf("save alert rule %s: %w", rule.ID, err)
		}
	}
	slog.Info("alert rules stored", "count", len(rules))
	return nil
}

func loadAlertRules(ctx context.Context, repo domain.Repository, classifier *alerting.Classifier) error {
	rules, err := repo.ListAlertRules(ctx, alerting.GlobalTenantID)
	if err != nil {
		return fmt.Errorf("list alert rules: %w", err)
	}
	return classifier.ReloadRules(rules)
}

// workerTenants returns the feed tenant, the default tenant and any extra
// comma-separated tenants, without duplicates.
func workerTenants(feedTenant, extra string) []string {
	tenants := []string{worker.DefaultTenantID}
	if feedTenant != "" {
		tenants = append(tenants, feedTenant)
	}
	for _, t := range strings.Split(extra, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tenants = append(tenants, t)
		}
	}
	slices.Sort(tenants)
	return slices.Compact(tenants)
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  +-------------------------------------------+")
	fmt.Println("  |              FRAUD DETECTOR               |")
	fmt.Println("  |    Real-time transaction risk scoring     |")
	fmt.Println("  +-------------------------------------------+")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	if cfg.Feed.Enabled {
		fmt.Printf("  Feed:     tenant %q\n", cfg.Feed.TenantID)
	}
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /assess                    - Score a transaction")
	fmt.Println("    POST /assess/batch              - Score up to 1000 transactions")
	fmt.Println("    POST /transactions              - Ingest, score and store")
	fmt.Println("    GET  /transactions              - Recent transactions")
	fmt.Println("    POST /transactions/{id}/block   - Block (also approve, flag)")
	fmt.Println("    GET  /evaluations/{id}          - Get evaluation by ID")
	fmt.Println("    GET  /alerts                    - Open alerts")
	fmt.Println("    POST /alerts/{id}/dismiss       - Dismiss an alert")
	fmt.Println("    GET  /alert-rules               - Loaded alert rules")
	fmt.Println("    POST /alert-rules/reload        - Hot-reload alert rules")
	fmt.Println("    GET  /rules                     - Scoring rule catalogue")
	fmt.Println("    GET  /live/stream               - Live feed (SSE)")
	fmt.Println("    GET  /health                    - Health check")
	if cfg.Metrics.Enabled {
		fmt.Printf("    GET  %-26s - Prometheus metrics\n", cfg.Metrics.Path)
	}
	fmt.Println()
}
