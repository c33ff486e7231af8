// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/BinaryLoops/Fraud-Detector/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

const transactionColumns = `id, tenant_id, amount, merchant_name, merchant_category, location,
	card_number, timestamp, created_at, risk_level, status, analysis`

// SaveTransaction stores a transaction, replacing any earlier version with the same ID.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tenantID string, tx *domain.Transaction) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if tx == nil || tx.ID == "" {
		return fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}

	var analysis sql.NullString
	if tx.Analysis != nil {
		b, err := json.Marshal(tx.Analysis)
		if err != nil {
			return fmt.Errorf("failed to encode analysis: %w", err)
		}
		analysis = sql.NullString{String: string(b), Valid: true}
	}

	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	level := tx.RiskLevel
	if level == "" {
		level = domain.RiskPending
	}
	status := tx.Status
	if status == "" {
		status = domain.StatusPending
	}

	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			amount = excluded.amount,
			merchant_name = excluded.merchant_name,
			merchant_category = excluded.merchant_category,
			location = excluded.location,
			card_number = excluded.card_number,
			timestamp = excluded.timestamp,
			risk_level = excluded.risk_level,
			status = excluded.status,
			analysis = excluded.analysis
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tenantID, tx.Amount,
		tx.MerchantName, tx.MerchantCategory, tx.Location,
		tx.CardNumber, tx.Timestamp.UTC(), createdAt.UTC(),
		string(level), string(status), analysis,
	)
	return err
}

// GetTransaction retrieves a transaction by ID with tenant isolation.
func (r *SQLRepository) GetTransaction(ctx context.Context, tenantID string, txID string) (*domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE tenant_id = ? AND id = ?`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// ListTransactions returns the most recent transactions for a tenant.
func (r *SQLRepository) ListTransactions(ctx context.Context, tenantID string, limit int) ([]*domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE tenant_id = ?
		ORDER BY timestamp DESC
		LIMIT ` + strconv.Itoa(clampLimit(limit))

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// UpdateTransactionStatus applies a review action to a stored transaction.
func (r *SQLRepository) UpdateTransactionStatus(ctx context.Context, tenantID string, txID string, status domain.TransactionStatus, level domain.RiskLevel) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `UPDATE transactions SET status = ?, risk_level = ? WHERE tenant_id = ? AND id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), string(status), string(level), tenantID, txID)
	if err != nil {
		return err
	}
	return expectRows(result)
}

// CountTransactionsByCard counts a card's transactions since the given time.
func (r *SQLRepository) CountTransactionsByCard(ctx context.Context, tenantID string, cardNumber string, since time.Time) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*) FROM transactions
		WHERE tenant_id = ? AND card_number = ? AND timestamp >= ?
	`

	var count int64
	if err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, cardNumber, since.UTC()).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// SaveEvaluation stores an evaluation result with tenant isolation.
func (r *SQLRepository) SaveEvaluation(ctx context.Context, tenantID string, eval *domain.Evaluation) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	assessment, err := json.Marshal(eval.Assessment)
	if err != nil {
		return fmt.Errorf("failed to encode assessment: %w", err)
	}
	metadata, err := json.Marshal(eval.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	var alert sql.NullString
	if eval.Alert != nil {
		b, err := json.Marshal(eval.Alert)
		if err != nil {
			return fmt.Errorf("failed to encode alert: %w", err)
		}
		alert = sql.NullString{String: string(b), Valid: true}
	}

	query := `
		INSERT INTO evaluations (
			id, tenant_id, tx_id, status, score, velocity_signal, timestamp,
			assessment, alert, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		eval.ID, tenantID, eval.TxID, string(eval.Status), eval.Score, eval.VelocitySignal,
		eval.Timestamp.UTC(), string(assessment), alert, string(metadata),
	)
	return err
}

// GetEvaluation retrieves an evaluation by ID with tenant isolation.
func (r *SQLRepository) GetEvaluation(ctx context.Context, tenantID string, evalID string) (*domain.Evaluation, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, tx_id, status, score, velocity_signal, timestamp,
			   assessment, alert, metadata
		FROM evaluations
		WHERE tenant_id = ? AND id = ?
	`

	var eval domain.Evaluation
	var status, assessment, metadata string
	var alert sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, evalID).Scan(
		&eval.ID, &eval.TenantID, &eval.TxID, &status, &eval.Score, &eval.VelocitySignal,
		&eval.Timestamp, &assessment, &alert, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	eval.Status = domain.TransactionStatus(status)
	if err := json.Unmarshal([]byte(assessment), &eval.Assessment); err != nil {
		return nil, fmt.Errorf("failed to parse assessment for %s: %w", eval.ID, err)
	}
	if err := json.Unmarshal([]byte(metadata), &eval.Metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata for %s: %w", eval.ID, err)
	}
	if alert.Valid {
		eval.Alert = &domain.Alert{}
		if err := json.Unmarshal([]byte(alert.String), eval.Alert); err != nil {
			return nil, fmt.Errorf("failed to parse alert for %s: %w", eval.ID, err)
		}
	}

	return &eval, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	result := make([]byte, 0, len(query)+8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = strconv.AppendInt(result, int64(n), 10)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var level, status string
	var analysis sql.NullString

	if err := row.Scan(
		&tx.ID, &tx.TenantID, &tx.Amount,
		&tx.MerchantName, &tx.MerchantCategory, &tx.Location,
		&tx.CardNumber, &tx.Timestamp, &tx.CreatedAt,
		&level, &status, &analysis,
	); err != nil {
		return nil, err
	}

	tx.RiskLevel = domain.RiskLevel(level)
	tx.Status = domain.TransactionStatus(status)
	if analysis.Valid && analysis.String != "" {
		tx.Analysis = &domain.FraudAssessment{}
		if err := json.Unmarshal([]byte(analysis.String), tx.Analysis); err != nil {
			return nil, fmt.Errorf("failed to parse analysis for %s: %w", tx.ID, err)
		}
	}
	return &tx, nil
}

func expectRows(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
