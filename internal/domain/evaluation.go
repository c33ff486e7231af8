package domain

import (
	"time"
)

// Evaluation is the persisted record of one assessment run.
type Evaluation struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	TxID      string    `json:"txId"`
	Timestamp time.Time `json:"timestamp"`

	// Assessment returned by the scorer
	Assessment FraudAssessment `json:"assessment"`

	// Raw additive score; kept for audit, not part of the public tier contract
	Score int `json:"score"`

	// VelocitySignal is the draw the scorer was given, so the run can be replayed.
	VelocitySignal float64 `json:"velocitySignal"`

	// Status derived from the risk tier
	Status TransactionStatus `json:"status"`

	// Alert raised for this transaction, if any
	Alert *Alert `json:"alert,omitempty"`

	// Processing metadata
	Metadata EvaluationMetadata `json:"metadata"`
}

// EvaluationMetadata contains processing information.
type EvaluationMetadata struct {
	TraceID       string   `json:"traceId"`
	RulesFired    []string `json:"rulesFired,omitempty"`
	AssessMs      int64    `json:"assessMs"`
	TotalMs       int64    `json:"totalMs"`
	EngineVersion string   `json:"engineVersion"`
}

// EvaluationResponse is the API response for a transaction assessment.
type EvaluationResponse struct {
	EvaluationID string             `json:"evaluationId"`
	TxID         string             `json:"txId"`
	TenantID     string             `json:"tenantId"`
	Status       TransactionStatus  `json:"status"`
	Analysis     FraudAssessment    `json:"analysis"`
	Alert        *Alert             `json:"alert,omitempty"`
	Metadata     EvaluationMetadata `json:"metadata"`
}

// ToResponse converts an Evaluation to an API response.
func (e *Evaluation) ToResponse() *EvaluationResponse {
	return &EvaluationResponse{
		EvaluationID: e.ID,
		TxID:         e.TxID,
		TenantID:     e.TenantID,
		Status:       e.Status,
		Analysis:     e.Assessment,
		Alert:        e.Alert,
		Metadata:     e.Metadata,
	}
}
