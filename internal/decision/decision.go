// Package decision turns a scored transaction into a persisted evaluation:
// it runs the scorer, maps the tier to a review status and asks the
// alert classifier whether the transaction warrants an alert.
package decision

import (
	"context"
	"log/slog"
	"time"

	"github.com/BinaryLoops/Fraud-Detector/internal/alerting"
	"github.com/BinaryLoops/Fraud-Detector/internal/domain"
	"github.com/BinaryLoops/Fraud-Detector/internal/scoring"
	"github.com/google/uuid"
)

// EngineVersion is recorded on every evaluation.
const EngineVersion = "fraud-detector-1.0"

// Processor produces evaluations.
type Processor struct {
	scorer     *scoring.Scorer
	classifier *alerting.Classifier
}

// NewProcessor creates a processor. classifier may be nil, in which case no
// alerts are raised.
func NewProcessor(scorer *scoring.Scorer, classifier *alerting.Classifier) *Processor {
	return &Processor{
		scorer:     scorer,
		classifier: classifier,
	}
}

// Input contains all data needed for a decision.
type Input struct {
	TenantID    string
	TraceID     string
	Transaction *domain.Transaction
	StartTime   time.Time

	// Signal replays a recorded velocity draw instead of drawing a new one.
	Signal *float64
}

// Process scores the transaction and builds its evaluation.
func (p *Processor) Process(ctx context.Context, input *Input) *domain.Evaluation {
	start := time.Now()
	if input.StartTime.IsZero() {
		input.StartTime = start
	}

	var (
		result scoring.Result
		signal float64
	)
	if input.Signal != nil {
		signal = *input.Signal
		result = p.scorer.Replay(*input.Transaction, signal)
	} else {
		result, signal = p.scorer.Assess(ctx, input.Transaction)
	}
	assessMs := time.Since(start).Milliseconds()

	eval := &domain.Evaluation{
		ID:             uuid.New().String(),
		TenantID:       input.TenantID,
		TxID:           input.Transaction.ID,
		Timestamp:      time.Now().UTC(),
		Assessment:     result.Assessment,
		Score:          result.Score,
		VelocitySignal: signal,
		Status:         StatusFor(result.Assessment.RiskLevel),
	}

	if p.classifier != nil {
		alert, err := p.classifier.Classify(ctx, input.Transaction, result.Assessment)
		if err != nil {
			slog.Warn("alert classification failed",
				"tx_id", input.Transaction.ID,
				"tenant_id", input.TenantID,
				"error", err,
			)
		}
		if alert != nil {
			alert.TenantID = input.TenantID
			eval.Alert = alert
		}
	}

	eval.Metadata = domain.EvaluationMetadata{
		TraceID:       input.TraceID,
		RulesFired:    result.Fired,
		AssessMs:      assessMs,
		TotalMs:       time.Since(input.StartTime).Milliseconds(),
		EngineVersion: EngineVersion,
	}

	return eval
}

// StatusFor maps a risk tier to the status a new transaction starts in.
func StatusFor(level domain.RiskLevel) domain.TransactionStatus {
	switch level {
	case domain.RiskHigh:
		return domain.StatusBlocked
	case domain.RiskMedium:
		return domain.StatusFlagged
	case domain.RiskLow:
		return domain.StatusApproved
	default:
		return domain.StatusPending
	}
}

// ShouldAlert returns true if the evaluation raised an alert.
func ShouldAlert(eval *domain.Evaluation) bool {
	return eval.Alert != nil
}
