package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/BinaryLoops/Fraud-Detector/internal/domain"
)

// SaveAlert stores an alert with tenant isolation.
func (r *SQLRepository) SaveAlert(ctx context.Context, tenantID string, alert *domain.Alert) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO alerts (
			id, tenant_id, rule_id, type, severity, title, message,
			tx_id, amount, location, confidence, timestamp, dismissed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		alert.ID, tenantID, alert.RuleID, string(alert.Type), string(alert.Severity),
		alert.Title, alert.Message, alert.TxID, alert.Amount, alert.Location,
		alert.Confidence, alert.Timestamp.UTC(), boolToInt(alert.Dismissed),
	)
	return err
}

// ListAlerts returns the most recent open alerts for a tenant.
func (r *SQLRepository) ListAlerts(ctx context.Context, tenantID string, limit int) ([]*domain.Alert, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, rule_id, type, severity, title, message,
			   tx_id, amount, location, confidence, timestamp
		FROM alerts
		WHERE tenant_id = ? AND dismissed = 0
		ORDER BY timestamp DESC
		LIMIT ` + strconv.Itoa(clampLimit(limit))

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		var a domain.Alert
		var ruleID, txID, location sql.NullString
		var amount sql.NullFloat64
		var typ, severity string

		if err := rows.Scan(
			&a.ID, &a.TenantID, &ruleID, &typ, &severity, &a.Title, &a.Message,
			&txID, &amount, &location, &a.Confidence, &a.Timestamp,
		); err != nil {
			return nil, err
		}

		a.RuleID = ruleID.String
		a.Type = domain.AlertType(typ)
		a.Severity = domain.Severity(severity)
		a.TxID = txID.String
		a.Amount = amount.Float64
		a.Location = location.String
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

// DismissAlert hides an alert from the open list.
func (r *SQLRepository) DismissAlert(ctx context.Context, tenantID string, alertID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `UPDATE alerts SET dismissed = 1 WHERE tenant_id = ? AND id = ? AND dismissed = 0`

	result, err := r.db.ExecContext(ctx, r.rebind(query), tenantID, alertID)
	if err != nil {
		return err
	}
	return expectRows(result)
}

// SaveAlertRule creates or updates an alert rule with tenant isolation.
func (r *SQLRepository) SaveAlertRule(ctx context.Context, tenantID string, rule *domain.AlertRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO alert_rules (
			id, tenant_id, name, type, severity, priority, expression, title,
			message_expr, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			severity = excluded.severity,
			priority = excluded.priority,
			expression = excluded.expression,
			title = excluded.title,
			message_expr = excluded.message_expr,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, string(rule.Type), string(rule.Severity), rule.Priority,
		rule.Condition, rule.Title, rule.Message, boolToInt(rule.Enabled),
		now, now,
	)
	return err
}

// ListAlertRules returns every alert rule for a tenant in priority order.
func (r *SQLRepository) ListAlertRules(ctx context.Context, tenantID string) ([]*domain.AlertRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, type, severity, priority, expression, title, message_expr, enabled
		FROM alert_rules
		WHERE tenant_id = ?
		ORDER BY priority, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.AlertRule
	for rows.Next() {
		var rule domain.AlertRule
		var typ, severity string
		var message sql.NullString
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.TenantID, &rule.Name, &typ, &severity, &rule.Priority,
			&rule.Condition, &rule.Title, &message, &enabled,
		); err != nil {
			return nil, err
		}

		rule.Type = domain.AlertType(typ)
		rule.Severity = domain.Severity(severity)
		rule.Message = message.String
		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}
	return rules, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
