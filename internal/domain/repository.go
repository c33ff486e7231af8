// Package domain defines the core interfaces and types for the fraud detector.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Transaction operations
	SaveTransaction(ctx context.Context, tenantID string, tx *Transaction) error
	GetTransaction(ctx context.Context, tenantID string, txID string) (*Transaction, error)
	ListTransactions(ctx context.Context, tenantID string, limit int) ([]*Transaction, error)
	UpdateTransactionStatus(ctx context.Context, tenantID string, txID string, status TransactionStatus, level RiskLevel) error
	CountTransactionsByCard(ctx context.Context, tenantID string, cardNumber string, since time.Time) (int64, error)

	// Evaluation results
	SaveEvaluation(ctx context.Context, tenantID string, eval *Evaluation) error
	GetEvaluation(ctx context.Context, tenantID string, evalID string) (*Evaluation, error)

	// Alerts
	SaveAlert(ctx context.Context, tenantID string, alert *Alert) error
	ListAlerts(ctx context.Context, tenantID string, limit int) ([]*Alert, error)
	DismissAlert(ctx context.Context, tenantID string, alertID string) error

	// Alert rule configuration
	SaveAlertRule(ctx context.Context, tenantID string, rule *AlertRule) error
	ListAlertRules(ctx context.Context, tenantID string) ([]*AlertRule, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `yaml:"driver"`

	// SQLite specific
	SQLitePath string `yaml:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `yaml:"postgresHost"`
	PostgresPort     int    `yaml:"postgresPort"`
	PostgresUser     string `yaml:"postgresUser"`
	PostgresPassword string `yaml:"postgresPassword"`
	PostgresDB       string `yaml:"postgresDb"`
	PostgresSSLMode  string `yaml:"postgresSslMode"`

	// Connection pool settings
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}
