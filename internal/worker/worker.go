// Package worker runs the assessment pipeline: it consumes ingested
// transactions from the event bus, scores them, stores the results and
// publishes decisions and alerts.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BinaryLoops/Fraud-Detector/internal/bus"
	"github.com/BinaryLoops/Fraud-Detector/internal/decision"
	"github.com/BinaryLoops/Fraud-Detector/internal/domain"
	"github.com/BinaryLoops/Fraud-Detector/internal/metrics"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTenantID is used when Start is given no tenants.
const DefaultTenantID = "default"

var tracer = otel.Tracer("fraud-detector-worker")

// Worker processes transactions from the EventBus.
type Worker struct {
	bus       domain.EventBus
	repo      domain.Repository
	cache     domain.Cache
	processor *decision.Processor
	evalTTL   time.Duration

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	failed    atomic.Int64
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to consume for; empty means DefaultTenantID.
	TenantIDs []string
}

// NewWorker creates a worker. repo and cache may be nil, in which case
// results are only published.
func NewWorker(eventBus domain.EventBus, repo domain.Repository, cache domain.Cache, processor *decision.Processor, evalTTL time.Duration) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       eventBus,
		repo:      repo,
		cache:     cache,
		processor: processor,
		evalTTL:   evalTTL,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to the ingest topic of every tenant.
func (w *Worker) Start(cfg Config) error {
	tenants := cfg.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{DefaultTenantID}
	}

	started := 0
	for _, tenantID := range tenants {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		started++
	}
	if started == 0 {
		return fmt.Errorf("no tenant worker could be started")
	}

	slog.Info("workers started",
		"tenant_count", started,
	)
	return nil
}

func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicTransactionIngested, func(ctx context.Context, msg *domain.Message) error {
		return w.handleIngest(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicTransactionIngested,
	)
	return nil
}

func (w *Worker) handleIngest(ctx context.Context, tenantID string, msg *domain.Message) error {
	var event domain.IngestEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		metrics.ProcessingErrors.WithLabelValues(metrics.StageDecode).Inc()
		w.failed.Add(1)
		slog.Error("failed to parse ingest event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	traceID := event.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	_, err := w.ProcessTransaction(ctx, tenantID, traceID, &event.Transaction)
	return err
}

// ProcessTransaction scores tx, stores the transaction, evaluation and
// alert, caches the evaluation and publishes the outcome. tx is updated in
// place with its tier, status and analysis.
//
// Storage failures are returned after publishing so the live feed still
// sees the decision.
func (w *Worker) ProcessTransaction(ctx context.Context, tenantID, traceID string, tx *domain.Transaction) (*domain.Evaluation, error) {
	start := time.Now()

	ctx, span := tracer.Start(ctx, "fraud.process",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("tx.id", tx.ID),
		),
	)
	defer span.End()

	if traceID == "" {
		if sc := span.SpanContext(); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		} else {
			traceID = uuid.New().String()
		}
	}

	slog.Debug("processing transaction",
		"tx_id", tx.ID,
		"tenant_id", tenantID,
		"trace_id", traceID,
	)

	eval := w.processor.Process(ctx, &decision.Input{
		TenantID:    tenantID,
		TraceID:     traceID,
		Transaction: tx,
		StartTime:   start,
	})

	tx.TenantID = tenantID
	tx.RiskLevel = eval.Assessment.RiskLevel
	tx.Status = eval.Status
	analysis := eval.Assessment
	tx.Analysis = &analysis
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	span.SetAttributes(
		attribute.String("risk.level", string(eval.Assessment.RiskLevel)),
		attribute.Int("risk.score", eval.Score),
		attribute.Bool("alert", decision.ShouldAlert(eval)),
	)

	persistErr := w.persist(ctx, tenantID, tx, eval)
	if persistErr != nil {
		span.RecordError(persistErr)
		span.SetStatus(codes.Error, "persist failed")
	}

	w.publish(ctx, tenantID, tx, eval)

	metrics.AssessmentsTotal.WithLabelValues(string(eval.Assessment.RiskLevel)).Inc()
	metrics.AssessmentDuration.Observe(float64(time.Since(start).Microseconds()) / 1000)
	if eval.Alert != nil {
		metrics.AlertsRaised.WithLabelValues(string(eval.Alert.Type), string(eval.Alert.Severity)).Inc()
	}

	if persistErr != nil {
		w.failed.Add(1)
	} else {
		w.processed.Add(1)
	}

	slog.Info("transaction processed",
		"tx_id", tx.ID,
		"tenant_id", tenantID,
		"risk_level", eval.Assessment.RiskLevel,
		"status", eval.Status,
		"score", eval.Score,
		"alerted", eval.Alert != nil,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return eval, persistErr
}

func (w *Worker) persist(ctx context.Context, tenantID string, tx *domain.Transaction, eval *domain.Evaluation) error {
	var errs []error

	if w.repo != nil {
		if err := w.repo.SaveTransaction(ctx, tenantID, tx); err != nil {
			errs = append(errs, fmt.Errorf("save transaction: %w", err))
		}
		if err := w.repo.SaveEvaluation(ctx, tenantID, eval); err != nil {
			errs = append(errs, fmt.Errorf("save evaluation: %w", err))
		}
		if eval.Alert != nil {
			if err := w.repo.SaveAlert(ctx, tenantID, eval.Alert); err != nil {
				errs = append(errs, fmt.Errorf("save alert: %w", err))
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		metrics.ProcessingErrors.WithLabelValues(metrics.StagePersist).Inc()
		slog.Error("failed to persist evaluation",
			"tx_id", tx.ID,
			"tenant_id", tenantID,
			"error", err,
		)
		return err
	}

	// The cache is an accelerator; a miss falls back to the repository.
	if w.cache != nil {
		if err := w.cache.SetEvaluation(ctx, tenantID, eval, w.evalTTL); err != nil {
			metrics.ProcessingErrors.WithLabelValues(metrics.StageCache).Inc()
			slog.Warn("failed to cache evaluation",
				"evaluation_id", eval.ID,
				"error", err,
			)
		}
	}
	return nil
}

func (w *Worker) publish(ctx context.Context, tenantID string, tx *domain.Transaction, eval *domain.Evaluation) {
	if w.bus == nil {
		return
	}

	event := domain.DecisionEvent{Transaction: *tx, Evaluation: *eval}
	if err := bus.PublishJSON(ctx, w.bus, tenantID, domain.TopicDecision, event); err != nil {
		metrics.ProcessingErrors.WithLabelValues(metrics.StagePublish).Inc()
		slog.Error("failed to publish decision",
			"tx_id", tx.ID,
			"error", err,
		)
	}

	if decision.ShouldAlert(eval) {
		if err := bus.PublishJSON(ctx, w.bus, tenantID, domain.TopicAlert, eval.Alert); err != nil {
			metrics.ProcessingErrors.WithLabelValues(metrics.StagePublish).Inc()
			slog.Error("failed to publish alert",
				"tx_id", tx.ID,
				"alert_id", eval.Alert.ID,
				"error", err,
			)
		}
	}
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("workers stopped",
		"processed", w.processed.Load(),
		"failed", w.failed.Load(),
	)
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Failed            int64    `json:"failed"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Failed:            w.failed.Load(),
	}
}
