package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BinaryLoops/Fraud-Detector/internal/alerting"
	"github.com/BinaryLoops/Fraud-Detector/internal/bus"
	"github.com/BinaryLoops/Fraud-Detector/internal/domain"
	"github.com/BinaryLoops/Fraud-Detector/internal/feed"
	"github.com/BinaryLoops/Fraud-Detector/internal/repository"
	"github.com/BinaryLoops/Fraud-Detector/internal/scoring"
	"github.com/BinaryLoops/Fraud-Detector/internal/worker"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	maxBatchSize    = 1000
	maxBodyBytes    = 4 << 20
	sseKeepAlive    = 15 * time.Second
	defaultAPILimit = 50
)

// Feed is the live feed as seen by the HTTP layer.
type Feed interface {
	Stats() domain.LiveStats
	Snapshot() feed.Snapshot
	Subscribe() (<-chan feed.Snapshot, func())

	Block(ctx context.Context, tenantID, txID string) error
	Approve(ctx context.Context, tenantID, txID string) error
	Flag(ctx context.Context, tenantID, txID string) error
	DismissAlert(ctx context.Context, tenantID, alertID string) error
}

// Deps groups the services the handlers call. Scorer and Classifier are
// required; Repo, Cache, Bus, Worker and Feed may be nil, in which case the
// endpoints that need them answer 503.
type Deps struct {
	Repo       domain.Repository
	Cache      domain.Cache
	Bus        domain.EventBus
	Scorer     *scoring.Scorer
	Classifier *alerting.Classifier
	Worker     *worker.Worker
	Feed       Feed

	BatchWorkers  int
	EvaluationTTL time.Duration
}

// Handler holds dependencies for API handlers.
type Handler struct {
	Deps
	version string
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps, version string) *Handler {
	return &Handler{Deps: deps, version: version}
}

// AssessResponse is the response for POST /assess.
type AssessResponse struct {
	Success  bool                    `json:"success"`
	Analysis *domain.FraudAssessment `json:"analysis,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

// Assess handles POST /assess: a stateless assessment of one transaction.
func (h *Handler) Assess(w http.ResponseWriter, r *http.Request) {
	var tx domain.Transaction
	if err := decodeJSON(w, r, &tx); err != nil {
		writeJSON(w, http.StatusBadRequest, AssessResponse{Error: "invalid JSON request body"})
		return
	}
	if err := scoring.Validate(&tx); err != nil {
		writeJSON(w, http.StatusBadRequest, AssessResponse{Error: err.Error()})
		return
	}
	tx.TenantID = GetTenantID(r.Context())

	result, _ := h.Scorer.Preview(r.Context(), &tx)
	writeJSON(w, http.StatusOK, AssessResponse{Success: true, Analysis: &result.Assessment})
}

// BatchRequest is the request body for POST /assess/batch.
type BatchRequest struct {
	Transactions []domain.Transaction `json:"transactions"`
}

// BatchItem is one scored transaction in a batch response.
type BatchItem struct {
	TxID           string                 `json:"txId"`
	Analysis       domain.FraudAssessment `json:"analysis"`
	VelocitySignal float64                `json:"velocitySignal"`
}

// AssessBatch handles POST /assess/batch. Results keep the request order.
func (h *Handler) AssessBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if len(req.Transactions) == 0 {
		writeError(w, http.StatusBadRequest, "transactions must not be empty")
		return
	}
	if len(req.Transactions) > maxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d transactions per batch", maxBatchSize))
		return
	}

	tenantID := GetTenantID(r.Context())
	txs := make([]*domain.Transaction, len(req.Transactions))
	for i := range req.Transactions {
		if err := scoring.Validate(&req.Transactions[i]); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("transactions[%d]: %v", i, err))
			return
		}
		req.Transactions[i].TenantID = tenantID
		txs[i] = &req.Transactions[i]
	}

	results, signals, err := h.Scorer.AssessBatch(r.Context(), txs, h.BatchWorkers)
	if err != nil {
		slog.Error("batch assessment failed", "count", len(txs), "error", err)
		writeError(w, http.StatusInternalServerError, "batch assessment failed")
		return
	}

	items := make([]BatchItem, len(results))
	for i, res := range results {
		items[i] = BatchItem{TxID: txs[i].ID, Analysis: res.Assessment, VelocitySignal: signals[i]}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"results": items,
	})
}

// IngestTransaction handles POST /transactions. The transaction is scored,
// stored and announced synchronously; with ?async=true it is only queued on
// the event bus for the worker.
func (h *Handler) IngestTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var tx domain.Transaction
	if err := decodeJSON(w, r, &tx); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	now := time.Now().UTC()
	if tx.ID == "" {
		tx.ID = "TXN-" + uuid.New().String()
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = now
	}
	tx.CreatedAt = now
	tx.TenantID = tenantID
	tx.RiskLevel = domain.RiskPending
	tx.Status = domain.StatusPending
	tx.Analysis = nil

	if err := scoring.Validate(&tx); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if r.URL.Query().Get("async") == "true" {
		if h.Bus == nil {
			writeError(w, http.StatusServiceUnavailable, "event bus not available")
			return
		}
		event := domain.IngestEvent{TraceID: traceID, Transaction: tx}
		if err := bus.PublishJSON(ctx, h.Bus, tenantID, domain.TopicTransactionIngested, event); err != nil {
			slog.Error("failed to queue transaction", "tx_id", tx.ID, "error", err)
			writeError(w, http.StatusServiceUnavailable, "failed to queue transaction")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"txId":    tx.ID,
			"status":  string(domain.StatusPending),
			"traceId": traceID,
		})
		return
	}

	if h.Worker == nil {
		writeError(w, http.StatusServiceUnavailable, "assessment pipeline not available")
		return
	}

	eval, err := h.Worker.ProcessTransaction(ctx, tenantID, traceID, &tx)
	if err != nil {
		// The assessment itself succeeded; storage trouble is logged by the worker.
		slog.Warn("transaction assessed but not fully stored",
			"tx_id", tx.ID,
			"tenant_id", tenantID,
			"error", err,
		)
	}
	writeJSON(w, http.StatusCreated, eval.ToResponse())
}

// ListTransactions handles GET /transactions.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	if h.Repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	txs, err := h.Repo.ListTransactions(r.Context(), GetTenantID(r.Context()), limit)
	if err != nil {
		slog.Error("failed to list transactions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": txs,
		"count":        len(txs),
	})
}

// GetTransaction retrieves a transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txID := chi.URLParam(r, "id")

	if h.Repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	tx, err := h.Repo.GetTransaction(ctx, GetTenantID(ctx), txID)
	if err != nil {
		writeRepoError(w, "transaction", txID, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// BlockTransaction handles POST /transactions/{id}/block.
func (h *Handler) BlockTransaction(w http.ResponseWriter, r *http.Request) {
	h.quickAction(w, r, domain.StatusBlocked)
}

// ApproveTransaction handles POST /transactions/{id}/approve.
func (h *Handler) ApproveTransaction(w http.ResponseWriter, r *http.Request) {
	h.quickAction(w, r, domain.StatusApproved)
}

// FlagTransaction handles POST /transactions/{id}/flag.
func (h *Handler) FlagTransaction(w http.ResponseWriter, r *http.Request) {
	h.quickAction(w, r, domain.StatusFlagged)
}

func (h *Handler) quickAction(w http.ResponseWriter, r *http.Request, status domain.TransactionStatus) {
	if h.Feed == nil {
		writeError(w, http.StatusServiceUnavailable, "live feed not available")
		return
	}

	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	txID := chi.URLParam(r, "id")

	var err error
	switch status {
	case domain.StatusBlocked:
		err = h.Feed.Block(ctx, tenantID, txID)
	case domain.StatusApproved:
		err = h.Feed.Approve(ctx, tenantID, txID)
	default:
		err = h.Feed.Flag(ctx, tenantID, txID)
	}
	if err != nil {
		writeRepoError(w, "transaction", txID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"id":     txID,
		"status": string(status),
	})
}

// GetEvaluation retrieves an evaluation by ID, from cache when possible.
func (h *Handler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	evalID := chi.URLParam(r, "id")

	if h.Cache != nil {
		eval, err := h.Cache.GetEvaluation(ctx, tenantID, evalID)
		if err != nil {
			slog.Warn("evaluation cache lookup failed", "id", evalID, "error", err)
		}
		if eval != nil {
			w.Header().Set("X-Cache", "HIT")
			writeJSON(w, http.StatusOK, eval)
			return
		}
	}

	if h.Repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	eval, err := h.Repo.GetEvaluation(ctx, tenantID, evalID)
	if err != nil {
		writeRepoError(w, "evaluation", evalID, err)
		return
	}

	if h.Cache != nil {
		if err := h.Cache.SetEvaluation(ctx, tenantID, eval, h.EvaluationTTL); err != nil {
			slog.Warn("failed to backfill evaluation cache", "id", evalID, "error", err)
		}
	}
	w.Header().Set("X-Cache", "MISS")
	writeJSON(w, http.StatusOK, eval)
}

// ListAlerts handles GET /alerts: open alerts, newest first.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	if h.Repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	alerts, err := h.Repo.ListAlerts(r.Context(), GetTenantID(r.Context()), limit)
	if err != nil {
		slog.Error("failed to list alerts", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// DismissAlert handles POST /alerts/{id}/dismiss.
func (h *Handler) DismissAlert(w http.ResponseWriter, r *http.Request) {
	if h.Feed == nil {
		writeError(w, http.StatusServiceUnavailable, "live feed not available")
		return
	}

	ctx := r.Context()
	alertID := chi.URLParam(r, "id")

	if err := h.Feed.DismissAlert(ctx, GetTenantID(ctx), alertID); err != nil {
		writeRepoError(w, "alert", alertID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        alertID,
		"dismissed": true,
	})
}

// ListAlertRules returns the loaded alert rules in evaluation order.
func (h *Handler) ListAlertRules(w http.ResponseWriter, r *http.Request) {
	rules := h.Classifier.GetLoadedRules()
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

// CreateAlertRuleRequest is the request body for POST /alert-rules.
type CreateAlertRuleRequest struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Type      domain.AlertType `json:"type"`
	Severity  domain.Severity  `json:"severity"`
	Priority  int              `json:"priority"`
	Condition string           `json:"condition"`
	Title     string           `json:"title"`
	Message   string           `json:"message,omitempty"`
	Enabled   *bool            `json:"enabled,omitempty"`
}

// CreateAlertRule validates, stores and loads an alert rule. An existing
// rule with the same ID is replaced.
func (h *Handler) CreateAlertRule(w http.ResponseWriter, r *http.Request) {
	var req CreateAlertRuleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if req.ID == "" || req.Name == "" || req.Condition == "" {
		writeError(w, http.StatusBadRequest, "id, name and condition are required")
		return
	}
	if !validAlertType(req.Type) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown alert type %q", req.Type))
		return
	}
	if !validSeverity(req.Severity) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown severity %q", req.Severity))
		return
	}

	rule := &domain.AlertRule{
		ID:        req.ID,
		TenantID:  alerting.GlobalTenantID,
		Name:      req.Name,
		Type:      req.Type,
		Severity:  req.Severity,
		Priority:  req.Priority,
		Condition: req.Condition,
		Title:     req.Title,
		Message:   req.Message,
		Enabled:   req.Enabled == nil || *req.Enabled,
	}
	if rule.Title == "" {
		rule.Title = rule.Name
	}

	if err := h.Classifier.ValidateRule(rule); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.Repo != nil {
		if err := h.Repo.SaveAlertRule(r.Context(), alerting.GlobalTenantID, rule); err != nil {
			slog.Error("failed to save alert rule", "id", rule.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to save alert rule")
			return
		}
	}

	if rule.Enabled {
		if err := h.Classifier.LoadRule(rule); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	slog.Info("alert rule saved", "id", rule.ID, "name", rule.Name, "enabled", rule.Enabled)
	writeJSON(w, http.StatusCreated, rule)
}

// ReloadAlertRules replaces the loaded rules with the stored ones.
func (h *Handler) ReloadAlertRules(w http.ResponseWriter, r *http.Request) {
	if h.Repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	stored, err := h.Repo.ListAlertRules(r.Context(), alerting.GlobalTenantID)
	if err != nil {
		slog.Error("failed to list alert rules", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list alert rules")
		return
	}
	if err := h.Classifier.ReloadRules(stored); err != nil {
		slog.Error("failed to reload alert rules", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	slog.Info("alert rules reloaded", "count", h.Classifier.RulesCount())
	writeJSON(w, http.StatusOK, map[string]any{
		"reloaded": true,
		"count":    h.Classifier.RulesCount(),
	})
}

// ListScoringRules returns the fixed scoring catalogue.
func (h *Handler) ListScoringRules(w http.ResponseWriter, r *http.Request) {
	rules := scoring.Rules()
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
		"thresholds": map[string]int{
			"high":   scoring.HighThreshold,
			"medium": scoring.MediumThreshold,
		},
	})
}

// LiveSnapshot handles GET /live.
func (h *Handler) LiveSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.Feed == nil {
		writeError(w, http.StatusServiceUnavailable, "live feed not available")
		return
	}
	writeJSON(w, http.StatusOK, h.Feed.Snapshot())
}

// LiveStats handles GET /live/stats.
func (h *Handler) LiveStats(w http.ResponseWriter, r *http.Request) {
	if h.Feed == nil {
		writeError(w, http.StatusServiceUnavailable, "live feed not available")
		return
	}
	writeJSON(w, http.StatusOK, h.Feed.Stats())
}

// LiveStream handles GET /live/stream as Server-Sent Events. Each feed
// change is sent as a "snapshot" event.
func (h *Handler) LiveStream(w http.ResponseWriter, r *http.Request) {
	if h.Feed == nil {
		writeError(w, http.StatusServiceUnavailable, "live feed not available")
		return
	}

	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	snapshots, unsubscribe := h.Feed.Subscribe()
	defer unsubscribe()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				slog.Error("failed to encode live snapshot", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "healthy"
	components := map[string]string{}

	check := func(name string, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			components[name] = "down"
			status = "degraded"
			return
		}
		components[name] = "up"
	}
	if h.Repo != nil {
		check("repository", h.Repo.Ping)
	}
	if h.Cache != nil {
		check("cache", h.Cache.Ping)
	}
	if h.Bus != nil {
		check("eventBus", h.Bus.Ping)
	}

	resp := map[string]any{
		"status":     status,
		"version":    h.version,
		"components": components,
	}
	if h.Classifier != nil {
		resp["alertRules"] = h.Classifier.RulesCount()
	}
	if h.Worker != nil {
		resp["worker"] = h.Worker.GetStats()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.Repo != nil {
		if err := h.Repo.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready": "false",
				"error": "repository unavailable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultAPILimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	return limit, nil
}

func validAlertType(t domain.AlertType) bool {
	switch t {
	case domain.AlertFraud, domain.AlertAnomaly, domain.AlertPattern,
		domain.AlertVelocity, domain.AlertGeographic, domain.AlertAmount:
		return true
	}
	return false
}

func validSeverity(s domain.Severity) bool {
	switch s {
	case domain.SeverityCritical, domain.SeverityHigh, domain.SeverityMedium, domain.SeverityLow:
		return true
	}
	return false
}

// writeRepoError maps repository sentinels onto HTTP statuses.
func writeRepoError(w http.ResponseWriter, kind, id string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, kind+" not found")
	case errors.Is(err, repository.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("repository error", "kind", kind, "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to access "+kind)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
