package domain

import "time"

// Config holds the complete fraud detector configuration.
type Config struct {
	// Server settings
	Server ServerConfig `yaml:"server"`

	// Tier determines feature availability
	Tier Tier `yaml:"tier"`

	// Component configurations
	Repository RepositoryConfig `yaml:"repository"`
	Cache      CacheConfig      `yaml:"cache"`
	EventBus   EventBusConfig   `yaml:"eventBus"`

	// Scoring and live feed
	Scoring ScoringConfig `yaml:"scoring"`
	Feed    FeedConfig    `yaml:"feed"`

	// Alert rules seeded on startup when the store has none
	AlertRules []AlertRule `yaml:"alertRules"`

	// Observability
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"readTimeout"`  // seconds
	WriteTimeout int    `yaml:"writeTimeout"` // seconds
}

// ScoringConfig controls how the velocity signal is sourced.
type ScoringConfig struct {
	// VelocityMode is "random", "counter" or "fixed".
	VelocityMode string `yaml:"velocityMode"`

	// VelocitySeed seeds the random source; 0 seeds from the clock.
	VelocitySeed uint64 `yaml:"velocitySeed"`

	// VelocityFixed is the signal returned in "fixed" mode.
	VelocityFixed float64 `yaml:"velocityFixed"`

	// Counter mode settings
	VelocityWindow time.Duration `yaml:"velocityWindow"`
	ElevatedCount  int64         `yaml:"elevatedCount"`
	HighCount      int64         `yaml:"highCount"`

	// Timezone used to derive hour-of-day; empty keeps the timestamp's own zone.
	Timezone string `yaml:"timezone"`

	// BatchWorkers bounds parallel batch scoring.
	BatchWorkers int `yaml:"batchWorkers"`
}

// FeedConfig controls the live transaction simulator.
type FeedConfig struct {
	Enabled        bool          `yaml:"enabled"`
	TenantID       string        `yaml:"tenantId"`
	MinInterval    time.Duration `yaml:"minInterval"`
	MaxInterval    time.Duration `yaml:"maxInterval"`
	SuspiciousRate float64       `yaml:"suspiciousRate"`
	History        int           `yaml:"history"`
	AlertHistory   int           `yaml:"alertHistory"`
	Seed           uint64        `yaml:"seed"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"serviceName"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + in-memory cache + channels
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + Redis + NATS
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./fraud-detector.db",
		},
		Cache: CacheConfig{
			Type:          "memory",
			LocalMaxSize:  10000,
			LocalTTL:      5 * time.Minute,
			EvaluationTTL: time.Hour,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Scoring: ScoringConfig{
			VelocityMode:   "random",
			VelocityFixed:  1,
			VelocityWindow: 10 * time.Minute,
			ElevatedCount:  3,
			HighCount:      5,
			BatchWorkers:   8,
		},
		Feed: FeedConfig{
			Enabled:        true,
			TenantID:       "demo",
			MinInterval:    500 * time.Millisecond,
			MaxInterval:    3 * time.Second,
			SuspiciousRate: 0.15,
			History:        1000,
			AlertHistory:   100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "fraud-detector",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "fraud_detector",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
		EvaluationTTL:  time.Hour,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Scoring.VelocityMode = "counter"
	cfg.Tracing.Enabled = true
	return cfg
}
