package repository

import (
	"context"
	"errors"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/BinaryLoops/Fraud-Detector/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "fraud-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleTx(id string, ts time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:               id,
		Amount:           1000.00,
		MerchantName:     "Amazon",
		MerchantCategory: "Online Services",
		Location:         "Austin, TX",
		CardNumber:       "****-****-****-4821",
		Timestamp:        ts,
		CreatedAt:        ts,
	}
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetTransaction", func(t *testing.T) {
		tx := sampleTx("tx-001", now)
		tx.Analysis = &domain.FraudAssessment{
			RiskLevel:   domain.RiskMedium,
			Reasoning:   "Moderate fraud risk identified with 1 risk factors. Manual review suggested.",
			RiskFactors: []string{"High-risk merchant category"},
			Confidence:  0.6,
		}
		tx.RiskLevel = domain.RiskMedium
		tx.Status = domain.StatusFlagged

		if err := repo.SaveTransaction(ctx, tenantID, tx); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}

		retrieved, err := repo.GetTransaction(ctx, tenantID, tx.ID)
		if err != nil {
			t.Fatalf("GetTransaction failed: %v", err)
		}

		if retrieved.ID != tx.ID {
			t.Errorf("expected ID %s, got %s", tx.ID, retrieved.ID)
		}
		if retrieved.Amount != tx.Amount {
			t.Errorf("expected Amount %.2f, got %.2f", tx.Amount, retrieved.Amount)
		}
		if retrieved.TenantID != tenantID {
			t.Errorf("expected TenantID %s, got %s", tenantID, retrieved.TenantID)
		}
		if retrieved.Status != domain.StatusFlagged {
			t.Errorf("expected status flagged, got %s", retrieved.Status)
		}
		if retrieved.Analysis == nil || len(retrieved.Analysis.RiskFactors) != 1 {
			t.Errorf("expected analysis to round-trip, got %+v", retrieved.Analysis)
		}
		if !retrieved.Timestamp.Equal(tx.Timestamp) {
			t.Errorf("expected timestamp %v, got %v", tx.Timestamp, retrieved.Timestamp)
		}
	})

	t.Run("SaveTransactionDefaults", func(t *testing.T) {
		tx := sampleTx("tx-pending", now)
		if err := repo.SaveTransaction(ctx, tenantID, tx); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}
		retrieved, err := repo.GetTransaction(ctx, tenantID, tx.ID)
		if err != nil {
			t.Fatalf("GetTransaction failed: %v", err)
		}
		if retrieved.RiskLevel != domain.RiskPending || retrieved.Status != domain.StatusPending {
			t.Errorf("expected pending record, got %s/%s", retrieved.RiskLevel, retrieved.Status)
		}
		if retrieved.Analysis != nil {
			t.Errorf("expected no analysis, got %+v", retrieved.Analysis)
		}
	})

	t.Run("SaveTransactionUpserts", func(t *testing.T) {
		tx := sampleTx("tx-001", now)
		tx.RiskLevel = domain.RiskHigh
		tx.Status = domain.StatusBlocked
		if err := repo.SaveTransaction(ctx, tenantID, tx); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}
		retrieved, _ := repo.GetTransaction(ctx, tenantID, tx.ID)
		if retrieved.Status != domain.StatusBlocked {
			t.Errorf("expected blocked after upsert, got %s", retrieved.Status)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		_, err := repo.GetTransaction(ctx, "tenant-002", "tx-001")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound for different tenant, got: %v", err)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		err := repo.SaveTransaction(ctx, "", &domain.Transaction{ID: "tx-test"})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}

		_, err = repo.GetTransaction(ctx, "", "tx-001")
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}

		_, err = repo.ListAlerts(ctx, "", 10)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("ListTransactions", func(t *testing.T) {
		older := sampleTx("tx-older", now.Add(-time.Hour))
		if err := repo.SaveTransaction(ctx, tenantID, older); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}

		txs, err := repo.ListTransactions(ctx, tenantID, 10)
		if err != nil {
			t.Fatalf("ListTransactions failed: %v", err)
		}
		if len(txs) != 3 {
			t.Fatalf("expected 3 transactions, got %d", len(txs))
		}
		if txs[len(txs)-1].ID != "tx-older" {
			t.Errorf("expected oldest last, got %s", txs[len(txs)-1].ID)
		}

		txs, _ = repo.ListTransactions(ctx, tenantID, 1)
		if len(txs) != 1 {
			t.Errorf("expected limit 1 to return 1 transaction, got %d", len(txs))
		}
	})

	t.Run("UpdateTransactionStatus", func(t *testing.T) {
		if err := repo.UpdateTransactionStatus(ctx, tenantID, "tx-001", domain.StatusApproved, domain.RiskLow); err != nil {
			t.Fatalf("UpdateTransactionStatus failed: %v", err)
		}
		tx, _ := repo.GetTransaction(ctx, tenantID, "tx-001")
		if tx.Status != domain.StatusApproved || tx.RiskLevel != domain.RiskLow {
			t.Errorf("expected approved/low, got %s/%s", tx.Status, tx.RiskLevel)
		}

		err := repo.UpdateTransactionStatus(ctx, tenantID, "missing", domain.StatusBlocked, domain.RiskHigh)
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("CountTransactionsByCard", func(t *testing.T) {
		count, err := repo.CountTransactionsByCard(ctx, tenantID, "****-****-****-4821", now.Add(-10*time.Minute))
		if err != nil {
			t.Fatalf("CountTransactionsByCard failed: %v", err)
		}
		if count != 2 {
			t.Errorf("expected 2 recent transactions, got %d", count)
		}

		count, _ = repo.CountTransactionsByCard(ctx, tenantID, "****-****-****-0000", now.Add(-10*time.Minute))
		if count != 0 {
			t.Errorf("expected 0 for unknown card, got %d", count)
		}
	})

	t.Run("SaveAndGetEvaluation", func(t *testing.T) {
		eval := &domain.Evaluation{
			ID:             "eval-001",
			TxID:           "tx-001",
			Status:         domain.StatusFlagged,
			Score:          45,
			VelocitySignal: 0.15,
			Timestamp:      now,
			Assessment: domain.FraudAssessment{
				RiskLevel:   domain.RiskMedium,
				RiskFactors: []string{"Above-average transaction amount", "Elevated transaction frequency"},
				Confidence:  0.75,
			},
			Alert: &domain.Alert{
				ID:       "ALT-1",
				Type:     domain.AlertVelocity,
				Severity: domain.SeverityMedium,
				Title:    "Velocity Check Alert",
			},
			Metadata: domain.EvaluationMetadata{TraceID: "trace-001", RulesFired: []string{"amount.above_average"}},
		}

		if err := repo.SaveEvaluation(ctx, tenantID, eval); err != nil {
			t.Fatalf("SaveEvaluation failed: %v", err)
		}

		retrieved, err := repo.GetEvaluation(ctx, tenantID, eval.ID)
		if err != nil {
			t.Fatalf("GetEvaluation failed: %v", err)
		}

		if retrieved.Score != eval.Score {
			t.Errorf("expected Score %d, got %d", eval.Score, retrieved.Score)
		}
		if retrieved.Status != eval.Status {
			t.Errorf("expected Status %s, got %s", eval.Status, retrieved.Status)
		}
		if retrieved.VelocitySignal != eval.VelocitySignal {
			t.Errorf("expected signal %v, got %v", eval.VelocitySignal, retrieved.VelocitySignal)
		}
		if len(retrieved.Assessment.RiskFactors) != 2 {
			t.Errorf("expected 2 risk factors, got %v", retrieved.Assessment.RiskFactors)
		}
		if retrieved.Alert == nil || retrieved.Alert.Type != domain.AlertVelocity {
			t.Errorf("expected velocity alert, got %+v", retrieved.Alert)
		}
		if retrieved.Metadata.TraceID != "trace-001" {
			t.Errorf("expected trace-001, got %s", retrieved.Metadata.TraceID)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := repo.GetTransaction(ctx, tenantID, "nonexistent")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}

		_, err = repo.GetEvaluation(ctx, tenantID, "nonexistent")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestAlerts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"
	now := time.Now().UTC()

	for i, id := range []string{"ALT-1", "ALT-2", "ALT-3"} {
		alert := &domain.Alert{
			ID:         id,
			RuleID:     "alert-fraud",
			Type:       domain.AlertFraud,
			Severity:   domain.SeverityCritical,
			Title:      "High-Risk Fraud Detected",
			Message:    "Suspicious transaction",
			TxID:       "tx-" + id,
			Amount:     100,
			Location:   "Moscow, Russia",
			Confidence: 0.9,
			Timestamp:  now.Add(time.Duration(i) * time.Second),
		}
		if err := repo.SaveAlert(ctx, tenantID, alert); err != nil {
			t.Fatalf("SaveAlert failed: %v", err)
		}
	}

	alerts, err := repo.ListAlerts(ctx, tenantID, 10)
	if err != nil {
		t.Fatalf("ListAlerts failed: %v", err)
	}
	if len(alerts) != 3 {
		t.Fatalf("expected 3 alerts, got %d", len(alerts))
	}
	if alerts[0].ID != "ALT-3" {
		t.Errorf("expected newest first, got %s", alerts[0].ID)
	}
	if alerts[0].Location != "Moscow, Russia" || alerts[0].Severity != domain.SeverityCritical {
		t.Errorf("alert fields did not round-trip: %+v", alerts[0])
	}

	if err := repo.DismissAlert(ctx, tenantID, "ALT-2"); err != nil {
		t.Fatalf("DismissAlert failed: %v", err)
	}
	if err := repo.DismissAlert(ctx, tenantID, "ALT-2"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound for already dismissed alert, got %v", err)
	}
	if err := repo.DismissAlert(ctx, "tenant-002", "ALT-1"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound across tenants, got %v", err)
	}

	alerts, _ = repo.ListAlerts(ctx, tenantID, 10)
	if len(alerts) != 2 {
		t.Errorf("expected 2 open alerts, got %d", len(alerts))
	}
}

func TestAlertRules(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	rules := []*domain.AlertRule{
		{ID: "b", Name: "Second", Type: domain.AlertAmount, Severity: domain.SeverityHigh, Priority: 20,
			Condition: `amount > 2000.0`, Title: "High-Value Transaction", Enabled: true},
		{ID: "a", Name: "First", Type: domain.AlertGeographic, Severity: domain.SeverityHigh, Priority: 10,
			Condition: `risk_level == "high"`, Title: "Geographic Risk Alert",
			Message: `"Transaction from " + location`, Enabled: false},
	}
	for _, rule := range rules {
		if err := repo.SaveAlertRule(ctx, tenantID, rule); err != nil {
			t.Fatalf("SaveAlertRule failed: %v", err)
		}
	}

	got, err := repo.ListAlertRules(ctx, tenantID)
	if err != nil {
		t.Fatalf("ListAlertRules failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(got))
	}
	if got[0].ID != "a" || got[0].Enabled {
		t.Errorf("expected disabled rule 'a' first, got %+v", got[0])
	}
	if got[0].Message != `"Transaction from " + location` {
		t.Errorf("message expression did not round-trip: %q", got[0].Message)
	}

	// Update in place
	rules[1].Enabled = true
	rules[1].Priority = 30
	if err := repo.SaveAlertRule(ctx, tenantID, rules[1]); err != nil {
		t.Fatalf("SaveAlertRule update failed: %v", err)
	}
	got, _ = repo.ListAlertRules(ctx, tenantID)
	if len(got) != 2 || got[1].ID != "a" || !got[1].Enabled {
		t.Errorf("expected updated rule 'a' last and enabled, got %+v", got)
	}

	other, _ := repo.ListAlertRules(ctx, "tenant-002")
	if len(other) != 0 {
		t.Errorf("expected no rules for other tenant, got %d", len(other))
	}
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := New(domain.RepositoryConfig{Driver: "mysql"})
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}

	sqlite := &SQLRepository{driver: "sqlite"}
	if got := sqlite.rebind("SELECT ?"); got != "SELECT ?" {
		t.Errorf("sqlite rebind should be a no-op, got %q", got)
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, defaultListLimit},
		{-5, defaultListLimit},
		{10, 10},
		{5000, maxListLimit},
	}
	for _, tt := range tests {
		if got := clampLimit(tt.in); got != tt.want {
			t.Errorf("clampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestSQLiteDSN(t *testing.T) {
	dsn := sqliteDSN("/var/lib/fraud/fraud.db")
	if !strings.HasPrefix(dsn, "file:/var/lib/fraud/fraud.db?") {
		t.Fatalf("unexpected dsn %q", dsn)
	}
	q, err := url.ParseQuery(dsn[strings.Index(dsn, "?")+1:])
	if err != nil {
		t.Fatalf("dsn query does not parse: %v", err)
	}
	if len(q["_pragma"]) != len(sqlitePragmas) || q.Get("_time_format") != "sqlite" {
		t.Errorf("unexpected query %v", q)
	}

	memory := sqliteDSN(memorySQLitePath)
	if strings.Contains(memory, "journal_mode") {
		t.Errorf("in-memory database should not request WAL: %q", memory)
	}
}

func TestInMemorySQLite(t *testing.T) {
	repo, err := New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: memorySQLitePath})
	if err != nil {
		t.Fatalf("failed to open in-memory repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	tx := &domain.Transaction{
		ID:               "TXN-MEM",
		TenantID:         "tenant-001",
		Amount:           12.5,
		MerchantName:     "Corner Books",
		MerchantCategory: "Retail",
		Location:         "Denver, CO",
		CardNumber:       "****-****-****-4821",
		Timestamp:        time.Now().UTC(),
		CreatedAt:        time.Now().UTC(),
		RiskLevel:        domain.RiskLow,
		Status:           domain.StatusApproved,
	}
	if err := repo.SaveTransaction(ctx, "tenant-001", tx); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := repo.GetTransaction(ctx, "tenant-001", "TXN-MEM"); err != nil {
		t.Errorf("in-memory data should survive across calls: %v", err)
	}
}

func TestPostgresDSN(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		dsn := postgresDSN(domain.RepositoryConfig{})
		u, err := url.Parse(dsn)
		if err != nil {
			t.Fatalf("dsn does not parse: %v", err)
		}
		if u.Host != "localhost:5432" || u.Path != "/fraud_detector" {
			t.Errorf("unexpected host/path %s %s", u.Host, u.Path)
		}
		if u.Query().Get("sslmode") != "disable" || u.User != nil {
			t.Errorf("unexpected dsn %q", dsn)
		}
	})

	t.Run("EscapesCredentials", func(t *testing.T) {
		dsn := postgresDSN(domain.RepositoryConfig{
			PostgresHost:     "db.internal",
			PostgresPort:     6543,
			PostgresUser:     "fraud",
			PostgresPassword: "p@ss word/1",
			PostgresDB:       "risk",
			PostgresSSLMode:  "require",
		})
		u, err := url.Parse(dsn)
		if err != nil {
			t.Fatalf("dsn does not parse: %v", err)
		}
		if pw, _ := u.User.Password(); pw != "p@ss word/1" {
			t.Errorf("password did not round-trip: %q", pw)
		}
		if u.Host != "db.internal:6543" || u.Query().Get("sslmode") != "require" {
			t.Errorf("unexpected dsn %q", dsn)
		}
	})
}
