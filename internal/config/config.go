// Package config loads the service configuration from tier defaults, an
// optional YAML file and FRAUD_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BinaryLoops/Fraud-Detector/internal/domain"
	"gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	EnvConfig       = "FRAUD_CONFIG"
	EnvTier         = "FRAUD_TIER"
	EnvDebug        = "FRAUD_DEBUG"
	EnvPort         = "FRAUD_PORT"
	EnvDBPath       = "FRAUD_DB_PATH"
	EnvPostgresHost = "FRAUD_POSTGRES_HOST"
	EnvRedisAddr    = "FRAUD_REDIS_ADDR"
	EnvNATSUrl      = "FRAUD_NATS_URL"
	EnvVelocityMode = "FRAUD_VELOCITY_MODE"
	EnvFeedEnabled  = "FRAUD_FEED"
	EnvLogFormat    = "FRAUD_LOG_FORMAT"
)

// Load builds the configuration. An empty path skips the file.
func Load(path string) (*domain.Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*domain.Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	tier, err := selectTier(data, lookup)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg := domain.DefaultConfig()
	if tier == domain.TierPro {
		cfg = domain.ProConfig()
	}

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.Tier = tier

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// selectTier picks the tier whose defaults the file is laid over. The
// environment wins over the file.
func selectTier(data []byte, lookup func(string) (string, bool)) (domain.Tier, error) {
	if v, ok := lookup(EnvTier); ok && v != "" {
		return domain.Tier(strings.ToLower(v)), nil
	}
	if len(data) == 0 {
		return domain.TierCommunity, nil
	}

	var head struct {
		Tier domain.Tier `yaml:"tier"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return "", err
	}
	if head.Tier == "" {
		return domain.TierCommunity, nil
	}
	return head.Tier, nil
}

func applyEnv(cfg *domain.Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvDebug); ok && v == "true" {
		cfg.Logging.Level = "debug"
	}
	if v, ok := lookup(EnvLogFormat); ok && v != "" {
		cfg.Logging.Format = v
	}
	if v, ok := lookup(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPort, err)
		}
		cfg.Server.Port = port
	}
	if v, ok := lookup(EnvDBPath); ok && v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v, ok := lookup(EnvPostgresHost); ok && v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v, ok := lookup(EnvRedisAddr); ok && v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v, ok := lookup(EnvNATSUrl); ok && v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v, ok := lookup(EnvVelocityMode); ok && v != "" {
		cfg.Scoring.VelocityMode = v
	}
	if v, ok := lookup(EnvFeedEnabled); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvFeedEnabled, err)
		}
		cfg.Feed.Enabled = enabled
	}
	return nil
}

// Validate reports every problem found in cfg.
func Validate(cfg *domain.Config) error {
	var errs []error

	switch cfg.Tier {
	case domain.TierCommunity, domain.TierPro:
	default:
		errs = append(errs, fmt.Errorf("tier: unknown tier %q", cfg.Tier))
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: %d out of range", cfg.Server.Port))
	}

	switch cfg.Scoring.VelocityMode {
	case "random", "fixed":
	case "counter":
		if cfg.Scoring.ElevatedCount <= 0 || cfg.Scoring.HighCount <= cfg.Scoring.ElevatedCount {
			errs = append(errs, fmt.Errorf("scoring: need 0 < elevatedCount < highCount, got %d and %d",
				cfg.Scoring.ElevatedCount, cfg.Scoring.HighCount))
		}
	default:
		errs = append(errs, fmt.Errorf("scoring.velocityMode: unknown mode %q", cfg.Scoring.VelocityMode))
	}
	if cfg.Scoring.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Scoring.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("scoring.timezone: %w", err))
		}
	}

	if cfg.Feed.Enabled {
		if cfg.Feed.MinInterval <= 0 || cfg.Feed.MaxInterval < cfg.Feed.MinInterval {
			errs = append(errs, fmt.Errorf("feed: need 0 < minInterval <= maxInterval, got %s and %s",
				cfg.Feed.MinInterval, cfg.Feed.MaxInterval))
		}
		if cfg.Feed.SuspiciousRate < 0 || cfg.Feed.SuspiciousRate > 1 {
			errs = append(errs, fmt.Errorf("feed.suspiciousRate: %v not in [0, 1]", cfg.Feed.SuspiciousRate))
		}
	}

	seen := make(map[string]bool, len(cfg.AlertRules))
	for i, rule := range cfg.AlertRules {
		switch {
		case rule.ID == "":
			errs = append(errs, fmt.Errorf("alertRules[%d]: id is required", i))
		case seen[rule.ID]:
			errs = append(errs, fmt.Errorf("alertRules[%d]: duplicate id %q", i, rule.ID))
		case rule.Condition == "":
			errs = append(errs, fmt.Errorf("alert rule %s: condition is required", rule.ID))
		}
		seen[rule.ID] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation: %w", errors.Join(errs...))
	}
	return nil
}
