package domain

import (
	"time"
)

// RiskLevel is the discrete risk tier of a transaction.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "high"
	RiskMedium RiskLevel = "medium"
	RiskLow    RiskLevel = "low"

	// RiskPending marks a record that has not been scored yet.
	// The scorer never produces it.
	RiskPending RiskLevel = "pending"
)

// TransactionStatus is the review state of a transaction on the dashboard.
type TransactionStatus string

const (
	StatusPending  TransactionStatus = "pending"
	StatusApproved TransactionStatus = "approved"
	StatusFlagged  TransactionStatus = "flagged"
	StatusBlocked  TransactionStatus = "blocked"
)

// Transaction is a card transaction to be assessed.
type Transaction struct {
	// Core identifiers
	ID       string `json:"id"`
	TenantID string `json:"tenantId,omitempty"`

	// Financial details
	Amount           float64 `json:"amount"`
	MerchantName     string  `json:"merchantName"`
	MerchantCategory string  `json:"merchantCategory"`
	Location         string  `json:"location"`

	// Masked card number; the last four characters are digits.
	CardNumber string `json:"cardNumber"`

	// Temporal
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt,omitempty"`

	// Review state, owned by the dashboard workflow
	RiskLevel RiskLevel         `json:"riskLevel,omitempty"`
	Status    TransactionStatus `json:"status,omitempty"`

	// Latest assessment, if any
	Analysis *FraudAssessment `json:"aiAnalysis,omitempty"`
}

// FraudAssessment is the outcome of scoring a transaction.
// It is a value object: produced once, never mutated.
type FraudAssessment struct {
	RiskLevel   RiskLevel `json:"riskLevel"`
	Reasoning   string    `json:"reasoning"`
	RiskFactors []string  `json:"riskFactors"`
	Confidence  float64   `json:"confidence"`
}
