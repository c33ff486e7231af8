package worker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/BinaryLoops/Fraud-Detector/internal/alerting"
	"github.com/BinaryLoops/Fraud-Detector/internal/bus"
	"github.com/BinaryLoops/Fraud-Detector/internal/cache"
	"github.com/BinaryLoops/Fraud-Detector/internal/decision"
	"github.com/BinaryLoops/Fraud-Detector/internal/domain"
	"github.com/BinaryLoops/Fraud-Detector/internal/repository"
	"github.com/BinaryLoops/Fraud-Detector/internal/scoring"
	"github.com/BinaryLoops/Fraud-Detector/internal/velocity"
)

func newTestProcessor(t *testing.T) *decision.Processor {
	t.Helper()
	classifier, err := alerting.NewClassifier()
	if err != nil {
		t.Fatalf("failed to create classifier: %v", err)
	}
	if err := classifier.LoadRules(alerting.DefaultRules()); err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}
	return decision.NewProcessor(scoring.NewScorer(velocity.Fixed(1), nil), classifier)
}

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "fraud-worker-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	path := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(path) })

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: path})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func lowRiskTx(id string) domain.Transaction {
	return domain.Transaction{
		ID:               id,
		Amount:           42.17,
		MerchantName:     "Corner Books",
		MerchantCategory: "Retail",
		Location:         "Denver, CO",
		CardNumber:       "****-****-****-4821",
		Timestamp:        time.Date(2024, time.January, 10, 14, 0, 0, 0, time.UTC),
	}
}

func highRiskTx(id string) domain.Transaction {
	tx := lowRiskTx(id)
	tx.Amount = 7500.50
	tx.Location = "Lagos, Nigeria"
	return tx
}

func publishIngest(t *testing.T, b domain.EventBus, tenantID, traceID string, tx domain.Transaction) {
	t.Helper()
	err := bus.PublishJSON(context.Background(), b, tenantID, domain.TopicTransactionIngested, domain.IngestEvent{
		TraceID:     traceID,
		Transaction: tx,
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	processor := newTestProcessor(t)

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewWorker(eventBus, nil, nil, processor, time.Minute)

		if err := w.Start(Config{TenantIDs: []string{"tenant-001"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		if stats := w.GetStats(); stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		if stats := w.GetStats(); stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("DefaultTenant", func(t *testing.T) {
		w := NewWorker(eventBus, nil, nil, processor, time.Minute)
		if err := w.Start(Config{}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		stats := w.GetStats()
		if stats.SubscriptionCount != 1 || stats.Topics[0] != domain.TopicTransactionIngested {
			t.Errorf("unexpected stats %+v", stats)
		}
	})

	t.Run("DecisionPublished", func(t *testing.T) {
		w := NewWorker(eventBus, nil, nil, processor, time.Minute)
		w.Start(Config{TenantIDs: []string{"tenant-test"}})
		defer w.Stop()

		decisions := make(chan domain.DecisionEvent, 1)
		eventBus.Subscribe(context.Background(), "tenant-test", domain.TopicDecision, func(ctx context.Context, msg *domain.Message) error {
			var event domain.DecisionEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				return err
			}
			decisions <- event
			return nil
		})

		publishIngest(t, eventBus, "tenant-test", "trace-001", lowRiskTx("TXN-001"))

		select {
		case event := <-decisions:
			if event.Evaluation.TxID != "TXN-001" {
				t.Errorf("expected txID 'TXN-001', got '%s'", event.Evaluation.TxID)
			}
			if event.Evaluation.TenantID != "tenant-test" {
				t.Errorf("expected tenantID 'tenant-test', got '%s'", event.Evaluation.TenantID)
			}
			if event.Evaluation.Metadata.TraceID != "trace-001" {
				t.Errorf("expected traceID 'trace-001', got '%s'", event.Evaluation.Metadata.TraceID)
			}
			if event.Transaction.Status != domain.StatusApproved {
				t.Errorf("expected approved transaction, got %s", event.Transaction.Status)
			}
			if event.Transaction.Analysis == nil || event.Transaction.Analysis.RiskLevel != domain.RiskLow {
				t.Errorf("expected low risk analysis on transaction, got %+v", event.Transaction.Analysis)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for decision")
		}
	})

	t.Run("AlertPublished", func(t *testing.T) {
		w := NewWorker(eventBus, nil, nil, processor, time.Minute)
		w.Start(Config{TenantIDs: []string{"tenant-alert"}})
		defer w.Stop()

		alerts := make(chan domain.Alert, 1)
		eventBus.Subscribe(context.Background(), "tenant-alert", domain.TopicAlert, func(ctx context.Context, msg *domain.Message) error {
			var alert domain.Alert
			if err := json.Unmarshal(msg.Payload, &alert); err != nil {
				return err
			}
			alerts <- alert
			return nil
		})

		publishIngest(t, eventBus, "tenant-alert", "", highRiskTx("TXN-ALERT"))

		select {
		case alert := <-alerts:
			if alert.TxID != "TXN-ALERT" {
				t.Errorf("expected alert for TXN-ALERT, got %s", alert.TxID)
			}
			if alert.Severity != domain.SeverityCritical {
				t.Errorf("expected critical alert, got %s", alert.Severity)
			}
			if alert.TenantID != "tenant-alert" {
				t.Errorf("expected tenant on alert, got %q", alert.TenantID)
			}
		case <-time.After(time.Second):
			t.Fatal("expected alert to be published for high-risk transaction")
		}
	})

	t.Run("MalformedPayload", func(t *testing.T) {
		w := NewWorker(eventBus, nil, nil, processor, time.Minute)
		w.Start(Config{TenantIDs: []string{"tenant-bad"}})
		defer w.Stop()

		eventBus.Publish(context.Background(), "tenant-bad", domain.TopicTransactionIngested, []byte("not json"))

		deadline := time.Now().Add(time.Second)
		for w.GetStats().Failed == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		if w.GetStats().Failed != 1 {
			t.Errorf("expected 1 failed message, got %d", w.GetStats().Failed)
		}
	})

	t.Run("MultiTenant", func(t *testing.T) {
		w := NewWorker(eventBus, nil, nil, processor, time.Minute)
		w.Start(Config{TenantIDs: []string{"tenant-a", "tenant-b"}})
		defer w.Stop()

		if stats := w.GetStats(); stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions for 2 tenants, got %d", stats.SubscriptionCount)
		}
	})
}

func TestProcessTransactionPersists(t *testing.T) {
	repo := newTestRepo(t)
	evalCache := cache.NewLRUCache(100)
	w := NewWorker(nil, repo, evalCache, newTestProcessor(t), time.Minute)
	ctx := context.Background()

	tx := highRiskTx("TXN-PERSIST")
	eval, err := w.ProcessTransaction(ctx, "tenant-001", "trace-xyz", &tx)
	if err != nil {
		t.Fatalf("ProcessTransaction failed: %v", err)
	}

	if tx.Status != domain.StatusBlocked || tx.RiskLevel != domain.RiskHigh {
		t.Errorf("transaction not updated in place: status=%s level=%s", tx.Status, tx.RiskLevel)
	}
	if eval.Alert == nil {
		t.Fatal("expected an alert")
	}

	stored, err := repo.GetTransaction(ctx, "tenant-001", "TXN-PERSIST")
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if stored.Status != domain.StatusBlocked {
		t.Errorf("expected stored status blocked, got %s", stored.Status)
	}
	if stored.Analysis == nil || stored.Analysis.RiskLevel != domain.RiskHigh {
		t.Errorf("expected stored high-risk analysis, got %+v", stored.Analysis)
	}

	if _, err := repo.GetEvaluation(ctx, "tenant-001", eval.ID); err != nil {
		t.Errorf("evaluation not stored: %v", err)
	}

	alerts, err := repo.ListAlerts(ctx, "tenant-001", 10)
	if err != nil {
		t.Fatalf("ListAlerts failed: %v", err)
	}
	if len(alerts) != 1 || alerts[0].ID != eval.Alert.ID {
		t.Errorf("expected the raised alert to be stored, got %d alerts", len(alerts))
	}

	cached, err := evalCache.GetEvaluation(ctx, "tenant-001", eval.ID)
	if err != nil || cached == nil {
		t.Fatalf("expected cached evaluation, got %v (err %v)", cached, err)
	}
	if cached.Metadata.TraceID != "trace-xyz" {
		t.Errorf("expected cached traceID 'trace-xyz', got %q", cached.Metadata.TraceID)
	}

	if stats := w.GetStats(); stats.Processed != 1 || stats.Failed != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

type failingRepo struct {
	domain.Repository
}

func (failingRepo) SaveTransaction(context.Context, string, *domain.Transaction) error {
	return errors.New("disk full")
}

func (failingRepo) SaveEvaluation(context.Context, string, *domain.Evaluation) error {
	return nil
}

func (failingRepo) SaveAlert(context.Context, string, *domain.Alert) error {
	return nil
}

func TestProcessTransactionStillPublishesOnStoreFailure(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	decisions := make(chan struct{}, 1)
	eventBus.Subscribe(context.Background(), "tenant-001", domain.TopicDecision, func(ctx context.Context, msg *domain.Message) error {
		decisions <- struct{}{}
		return nil
	})

	w := NewWorker(eventBus, failingRepo{}, nil, newTestProcessor(t), time.Minute)
	tx := lowRiskTx("TXN-FAIL")

	eval, err := w.ProcessTransaction(context.Background(), "tenant-001", "", &tx)
	if err == nil {
		t.Fatal("expected store error")
	}
	if eval == nil {
		t.Fatal("evaluation should be returned alongside the error")
	}
	if eval.Metadata.TraceID == "" {
		t.Error("a trace ID should be assigned")
	}

	select {
	case <-decisions:
	case <-time.After(time.Second):
		t.Fatal("decision should still be published")
	}

	if stats := w.GetStats(); stats.Failed != 1 {
		t.Errorf("expected 1 failure, got %d", stats.Failed)
	}
}
