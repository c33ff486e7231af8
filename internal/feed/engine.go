package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/BinaryLoops/Fraud-Detector/internal/bus"
	"github.com/BinaryLoops/Fraud-Detector/internal/domain"
	"github.com/BinaryLoops/Fraud-Detector/internal/metrics"
	"github.com/BinaryLoops/Fraud-Detector/internal/repository"
)

const (
	snapshotTransactions = 20
	snapshotAlerts       = 10
	riskWindow           = 50
	defaultRiskScore     = 2.3
	subscriberBuffer     = 16
)

// Snapshot is what live subscribers receive on every change.
type Snapshot struct {
	Transactions []domain.Transaction `json:"transactions"`
	Alerts       []domain.Alert       `json:"alerts"`
	Stats        domain.LiveStats     `json:"stats"`
}

// Engine drives the live feed. It publishes generated transactions to the
// ingest topic, follows the decision and alert topics of its tenant and
// fans snapshots out to subscribers.
type Engine struct {
	cfg  domain.FeedConfig
	gen  *Generator
	bus  domain.EventBus
	repo domain.Repository

	mu           sync.RWMutex
	transactions []domain.Transaction // newest first
	alerts       []domain.Alert       // newest first
	stats        domain.LiveStats
	decided      int64
	lastSecond   int64
	subscribers  map[int]chan Snapshot
	nextSubID    int
	stopped      bool

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	subs    []domain.Subscription
}

// NewEngine creates a feed engine. repo may be nil.
func NewEngine(cfg domain.FeedConfig, gen *Generator, eventBus domain.EventBus, repo domain.Repository) *Engine {
	if cfg.TenantID == "" {
		cfg.TenantID = "demo"
	}
	if cfg.History <= 0 {
		cfg.History = 1000
	}
	if cfg.AlertHistory <= 0 {
		cfg.AlertHistory = 100
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval < cfg.MinInterval {
		cfg.MaxInterval = cfg.MinInterval
	}
	if gen == nil {
		gen = NewGenerator(cfg.Seed, cfg.SuspiciousRate)
	}

	e := &Engine{
		cfg:         cfg,
		gen:         gen,
		bus:         eventBus,
		repo:        repo,
		subscribers: make(map[int]chan Snapshot),
	}
	e.stats.RiskScore = defaultRiskScore
	return e
}

// TenantID returns the tenant the feed runs under.
func (e *Engine) TenantID() string {
	return e.cfg.TenantID
}

// Start restores recent history, subscribes to decisions and alerts and,
// when generation is enabled, begins publishing transactions.
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if e.running {
		return nil
	}

	e.restore(ctx)

	e.mu.Lock()
	e.stopped = false
	e.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)

	decisions, err := e.bus.Subscribe(runCtx, e.cfg.TenantID, domain.TopicDecision, e.onDecision)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to decisions: %w", err)
	}
	alerts, err := e.bus.Subscribe(runCtx, e.cfg.TenantID, domain.TopicAlert, e.onAlert)
	if err != nil {
		decisions.Unsubscribe()
		cancel()
		return fmt.Errorf("failed to subscribe to alerts: %w", err)
	}
	e.subs = []domain.Subscription{decisions, alerts}

	e.cancel = cancel
	e.running = true

	e.wg.Add(1)
	go e.tick(runCtx)

	if e.cfg.Enabled {
		e.wg.Add(1)
		go e.generate(runCtx)
	}

	slog.Info("live feed started",
		"tenant_id", e.cfg.TenantID,
		"generating", e.cfg.Enabled,
		"min_interval", e.cfg.MinInterval.String(),
		"max_interval", e.cfg.MaxInterval.String(),
	)
	return nil
}

// Stop halts generation and closes every subscriber channel.
func (e *Engine) Stop() {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if !e.running {
		return
	}
	e.running = false
	e.cancel()
	e.wg.Wait()

	for _, sub := range e.subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Warn("failed to unsubscribe feed",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	e.subs = nil

	e.mu.Lock()
	e.stopped = true
	for id, ch := range e.subscribers {
		close(ch)
		delete(e.subscribers, id)
		metrics.FeedSubscribers.Dec()
	}
	e.mu.Unlock()

	slog.Info("live feed stopped", "tenant_id", e.cfg.TenantID)
}

func (e *Engine) restore(ctx context.Context) {
	if e.repo == nil {
		return
	}

	txs, err := e.repo.ListTransactions(ctx, e.cfg.TenantID, e.cfg.History)
	if err != nil {
		slog.Warn("failed to restore feed transactions", "error", err)
	}
	alerts, err := e.repo.ListAlerts(ctx, e.cfg.TenantID, e.cfg.AlertHistory)
	if err != nil {
		slog.Warn("failed to restore feed alerts", "error", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.transactions = e.transactions[:0]
	for _, tx := range txs {
		e.transactions = append(e.transactions, *tx)
	}
	e.alerts = e.alerts[:0]
	for _, a := range alerts {
		e.alerts = append(e.alerts, *a)
	}
	e.recompute()
}

func (e *Engine) generate(ctx context.Context) {
	defer e.wg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			e.emit(ctx)
			timer.Reset(e.gen.Interval(e.cfg.MinInterval, e.cfg.MaxInterval))
		}
	}
}

func (e *Engine) emit(ctx context.Context) {
	tx := e.gen.Next()
	event := domain.IngestEvent{Transaction: tx}
	if err := bus.PublishJSON(ctx, e.bus, e.cfg.TenantID, domain.TopicTransactionIngested, event); err != nil {
		slog.Warn("failed to publish generated transaction",
			"tx_id", tx.ID,
			"error", err,
		)
		return
	}
	metrics.FeedGenerated.Inc()
}

// tick refreshes transactions per second once a second.
func (e *Engine) tick(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.sampleRate()
			e.notify()
		}
	}
}

func (e *Engine) sampleRate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.TransactionsPerSecond = int(e.decided - e.lastSecond)
	e.lastSecond = e.decided
}

func (e *Engine) onDecision(ctx context.Context, msg *domain.Message) error {
	var event domain.DecisionEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return fmt.Errorf("failed to parse decision: %w", err)
	}
	e.recordTransaction(event.Transaction)
	return nil
}

func (e *Engine) onAlert(ctx context.Context, msg *domain.Message) error {
	var alert domain.Alert
	if err := json.Unmarshal(msg.Payload, &alert); err != nil {
		return fmt.Errorf("failed to parse alert: %w", err)
	}
	e.recordAlert(alert)
	return nil
}

func (e *Engine) recordTransaction(tx domain.Transaction) {
	e.mu.Lock()
	if i := e.indexOf(tx.ID); i >= 0 {
		e.transactions[i] = tx
	} else {
		e.transactions = slices.Insert(e.transactions, 0, tx)
		if len(e.transactions) > e.cfg.History {
			e.transactions = e.transactions[:e.cfg.History]
		}
		e.decided++
	}
	e.recompute()
	e.mu.Unlock()

	e.notify()
}

func (e *Engine) recordAlert(alert domain.Alert) {
	e.mu.Lock()
	e.alerts = slices.Insert(e.alerts, 0, alert)
	if len(e.alerts) > e.cfg.AlertHistory {
		e.alerts = e.alerts[:e.cfg.AlertHistory]
	}
	e.stats.AlertsRaised++
	e.mu.Unlock()

	e.notify()
}

// recompute rebuilds the derived stats. Caller holds e.mu.
func (e *Engine) recompute() {
	var high, medium, low int
	var total float64
	for _, tx := range e.transactions {
		total += tx.Amount
		switch tx.RiskLevel {
		case domain.RiskHigh:
			high++
		case domain.RiskMedium:
			medium++
		case domain.RiskLow:
			low++
		}
	}

	s := &e.stats
	s.TotalTransactions = len(e.transactions)
	s.FraudDetected = high
	s.BlockedTransactions = high
	s.FlaggedTransactions = medium
	s.ApprovedTransactions = low
	s.TotalAmount = total
	s.AverageAmount = 0
	if len(e.transactions) > 0 {
		s.AverageAmount = total / float64(len(e.transactions))
	}
	s.RiskScore = riskScore(e.transactions)
}

// riskScore averages 9/5/1 over the most recent transactions (3 for
// unscored ones) and falls back to defaultRiskScore when there are none.
func riskScore(txs []domain.Transaction) float64 {
	if len(txs) > riskWindow {
		txs = txs[:riskWindow]
	}
	if len(txs) == 0 {
		return defaultRiskScore
	}

	sum := 0
	for _, tx := range txs {
		switch tx.RiskLevel {
		case domain.RiskHigh:
			sum += 9
		case domain.RiskMedium:
			sum += 5
		case domain.RiskLow:
			sum++
		default:
			sum += 3
		}
	}
	return float64(sum) / float64(len(txs))
}

func (e *Engine) indexOf(txID string) int {
	return slices.IndexFunc(e.transactions, func(tx domain.Transaction) bool {
		return tx.ID == txID
	})
}

// Subscribe registers a live subscriber. The current snapshot is delivered
// immediately; later snapshots are dropped for a subscriber that falls
// behind. Call the returned function to unsubscribe. After Stop the channel
// carries the final snapshot and is already closed.
func (e *Engine) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, subscriberBuffer)

	e.mu.Lock()
	if e.stopped {
		ch <- e.snapshotLocked()
		e.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := e.nextSubID
	e.nextSubID++
	e.subscribers[id] = ch
	ch <- e.snapshotLocked()
	e.mu.Unlock()

	metrics.FeedSubscribers.Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if _, ok := e.subscribers[id]; ok {
				delete(e.subscribers, id)
				close(ch)
				metrics.FeedSubscribers.Dec()
			}
		})
	}
}

func (e *Engine) notify() {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.subscribers) == 0 {
		return
	}
	snap := e.snapshotLocked()
	for _, ch := range e.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
}

// Snapshot returns the current feed state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	return Snapshot{
		Transactions: head(e.transactions, snapshotTransactions),
		Alerts:       head(e.alerts, snapshotAlerts),
		Stats:        e.stats,
	}
}

// Stats returns the current live statistics.
func (e *Engine) Stats() domain.LiveStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

// Transactions returns up to limit of the most recent transactions.
func (e *Engine) Transactions(limit int) []domain.Transaction {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return head(e.transactions, limit)
}

// Alerts returns up to limit of the most recent open alerts.
func (e *Engine) Alerts(limit int) []domain.Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return head(e.alerts, limit)
}

func head[T any](items []T, limit int) []T {
	if limit <= 0 || limit > len(items) {
		limit = len(items)
	}
	return slices.Clone(items[:limit])
}

// Block marks a transaction as blocked fraud.
func (e *Engine) Block(ctx context.Context, tenantID, txID string) error {
	return e.setStatus(ctx, tenantID, txID, domain.StatusBlocked, domain.RiskHigh, "block")
}

// Approve marks a transaction as approved.
func (e *Engine) Approve(ctx context.Context, tenantID, txID string) error {
	return e.setStatus(ctx, tenantID, txID, domain.StatusApproved, domain.RiskLow, "approve")
}

// Flag marks a transaction for review.
func (e *Engine) Flag(ctx context.Context, tenantID, txID string) error {
	return e.setStatus(ctx, tenantID, txID, domain.StatusFlagged, domain.RiskMedium, "flag")
}

func (e *Engine) setStatus(ctx context.Context, tenantID, txID string, status domain.TransactionStatus, level domain.RiskLevel, action string) error {
	found := false
	if tenantID == e.cfg.TenantID {
		e.mu.Lock()
		if i := e.indexOf(txID); i >= 0 {
			e.transactions[i].Status = status
			e.transactions[i].RiskLevel = level
			e.recompute()
			found = true
		}
		e.mu.Unlock()
	}

	if e.repo != nil {
		if err := e.repo.UpdateTransactionStatus(ctx, tenantID, txID, status, level); err != nil {
			return fmt.Errorf("failed to %s transaction %s: %w", action, txID, err)
		}
	} else if !found {
		return fmt.Errorf("transaction %s: %w", txID, repository.ErrNotFound)
	}

	metrics.QuickActions.WithLabelValues(action).Inc()
	slog.Info("transaction status changed",
		"tx_id", txID,
		"tenant_id", tenantID,
		"status", status,
	)

	if found {
		e.notify()
	}
	return nil
}

// DismissAlert removes an alert from the open list.
func (e *Engine) DismissAlert(ctx context.Context, tenantID, alertID string) error {
	found := false
	if tenantID == e.cfg.TenantID {
		e.mu.Lock()
		if i := slices.IndexFunc(e.alerts, func(a domain.Alert) bool { return a.ID == alertID }); i >= 0 {
			e.alerts = slices.Delete(e.alerts, i, i+1)
			found = true
		}
		e.mu.Unlock()
	}

	if e.repo != nil {
		if err := e.repo.DismissAlert(ctx, tenantID, alertID); err != nil {
			return fmt.Errorf("failed to dismiss alert %s: %w", alertID, err)
		}
	} else if !found {
		return fmt.Errorf("alert %s: %w", alertID, repository.ErrNotFound)
	}

	metrics.QuickActions.WithLabelValues("dismiss").Inc()
	if found {
		e.notify()
	}
	return nil
}
