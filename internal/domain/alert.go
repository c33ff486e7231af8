package domain

import "time"

// AlertType classifies why an alert was raised.
type AlertType string

const (
	AlertFraud      AlertType = "fraud"
	AlertAnomaly    AlertType = "anomaly"
	AlertPattern    AlertType = "pattern"
	AlertVelocity   AlertType = "velocity"
	AlertGeographic AlertType = "geographic"
	AlertAmount     AlertType = "amount"
)

// Severity of an alert.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Alert is raised for a risky transaction.
type Alert struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenantId,omitempty"`
	RuleID     string    `json:"ruleId,omitempty"`
	Type       AlertType `json:"type"`
	Severity   Severity  `json:"severity"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	TxID       string    `json:"transactionId,omitempty"`
	Amount     float64   `json:"amount,omitempty"`
	Location   string    `json:"location,omitempty"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
	Dismissed  bool      `json:"dismissed,omitempty"`
}

// AlertRule maps an assessed transaction to an alert.
type AlertRule struct {
	ID       string    `json:"id" yaml:"id"`
	TenantID string    `json:"tenantId,omitempty" yaml:"-"`
	Name     string    `json:"name" yaml:"name"`
	Type     AlertType `json:"type" yaml:"type"`
	Severity Severity  `json:"severity" yaml:"severity"`

	// Lower value is evaluated first.
	Priority int `json:"priority" yaml:"priority"`

	// CEL expression returning bool
	Condition string `json:"condition" yaml:"condition"`

	// Static alert title
	Title string `json:"title" yaml:"title"`

	// Optional CEL expression returning string; Title is used when empty
	Message string `json:"message,omitempty" yaml:"message"`

	Enabled bool `json:"enabled" yaml:"enabled"`
}
