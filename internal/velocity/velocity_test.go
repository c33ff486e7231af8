package velocity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/BinaryLoops/Fraud-Detector/internal/cache"
	"github.com/BinaryLoops/Fraud-Detector/internal/domain"
	"github.com/BinaryLoops/Fraud-Detector/internal/repository"
)

func newTx(id, card string, ts time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:               id,
		TenantID:         "tenant-001",
		Amount:           25.40,
		MerchantName:     "Corner Books",
		MerchantCategory: "Retail",
		Location:         "Denver, CO",
		CardNumber:       card,
		Timestamp:        ts,
	}
}

func TestCounterWithCache(t *testing.T) {
	lru := cache.NewLRUCache(100)
	defer lru.Close()

	c := NewCounter(lru, nil, time.Minute, 3, 5)
	ctx := context.Background()
	tx := newTx("tx-1", "****-****-****-4821", time.Now())

	want := []float64{1, 1, 0.10, 0.10, 0, 0}
	for i, w := range want {
		got, err := c.Signal(ctx, tx)
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
		if got != w {
			t.Errorf("call %d: expected signal %v, got %v", i, w, got)
		}
	}

	// Another card has its own counter.
	other := newTx("tx-2", "****-****-****-1234", time.Now())
	got, err := c.Signal(ctx, other)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1 {
		t.Errorf("expected fresh card signal 1, got %v", got)
	}
}

func TestCounterRepositoryFallback(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "velocity-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	now := time.Now().UTC()
	card := "****-****-****-7777"

	for i := 0; i < 4; i++ {
		tx := newTx(fmt.Sprintf("tx-%d", i), card, now.Add(-time.Duration(i)*time.Minute))
		if err := repo.SaveTransaction(ctx, "tenant-001", tx); err != nil {
			t.Fatalf("failed to save transaction: %v", err)
		}
	}
	// Outside the window.
	old := newTx("tx-old", card, now.Add(-2*time.Hour))
	if err := repo.SaveTransaction(ctx, "tenant-001", old); err != nil {
		t.Fatalf("failed to save transaction: %v", err)
	}

	c := NewCounter(failingCache{}, repo, 10*time.Minute, 3, 5)

	count, err := c.Count(ctx, newTx("tx-new", card, now))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 5 {
		t.Errorf("expected count 5, got %d", count)
	}

	signal, err := c.Signal(ctx, newTx("tx-new", card, now))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if signal != 0 {
		t.Errorf("expected high velocity signal 0, got %v", signal)
	}
}

func TestCounterNoSource(t *testing.T) {
	c := NewCounter(nil, nil, time.Minute, 3, 5)
	_, err := c.Signal(context.Background(), newTx("tx-1", "****-****-****-4821", time.Now()))
	if err == nil {
		t.Error("expected error with no data source")
	}

	c = NewCounter(cache.NewLRUCache(10), nil, time.Minute, 3, 5)
	_, err = c.Signal(context.Background(), newTx("tx-1", "", time.Now()))
	if err == nil {
		t.Error("expected error without card number")
	}
}

func TestRandomIsReproducible(t *testing.T) {
	a := NewRandom(42)
	b := NewRandom(42)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		x, _ := a.Signal(ctx, nil)
		y, _ := b.Signal(ctx, nil)
		if x != y {
			t.Fatalf("draw %d differs: %v != %v", i, x, y)
		}
		if x < 0 || x >= 1 {
			t.Fatalf("draw %d out of range: %v", i, x)
		}
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		mode    string
		wantErr bool
	}{
		{"", false},
		{ModeRandom, false},
		{ModeFixed, false},
		{ModeCounter, true}, // no cache or repository
		{"bogus", true},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			cfg := domain.DefaultConfig().Scoring
			cfg.VelocityMode = tt.mode
			src, err := New(cfg, nil, nil)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if src == nil {
				t.Fatal("expected source")
			}
		})
	}

	cfg := domain.DefaultConfig().Scoring
	cfg.VelocityMode = ModeFixed
	cfg.VelocityFixed = 0.05
	src, _ := New(cfg, nil, nil)
	got, _ := src.Signal(context.Background(), nil)
	if got != 0.05 {
		t.Errorf("expected fixed signal 0.05, got %v", got)
	}
}

type failingCache struct{}

var errCacheDown = errors.New("cache down")

func (failingCache) Get(context.Context, string, string) ([]byte, error) { return nil, errCacheDown }
func (failingCache) Set(context.Context, string, string, []byte, time.Duration) error {
	return errCacheDown
}
func (failingCache) Delete(context.Context, string, string) error { return errCacheDown }
func (failingCache) GetEvaluation(context.Context, string, string) (*domain.Evaluation, error) {
	return nil, errCacheDown
}
func (failingCache) SetEvaluation(context.Context, string, *domain.Evaluation, time.Duration) error {
	return errCacheDown
}
func (failingCache) IncrementCounter(context.Context, string, string, time.Duration) (int64, error) {
	return 0, errCacheDown
}
func (failingCache) PeekCounter(context.Context, string, string) (int64, error) {
	return 0, errCacheDown
}
func (failingCache) Ping(context.Context) error { return errCacheDown }
func (failingCache) Close() error               { return nil }

func TestCounterPeekDoesNotRecord(t *testing.T) {
	lru := cache.NewLRUCache(100)
	defer lru.Close()

	c := NewCounter(lru, nil, time.Minute, 3, 5)
	ctx := context.Background()
	tx := newTx("tx-1", "****-****-****-4821", time.Now())

	for i := 0; i < 10; i++ {
		got, err := c.Peek(ctx, tx)
		if err != nil {
			t.Fatalf("peek %d: unexpected error: %v", i, err)
		}
		if got != 1 {
			t.Fatalf("peek %d: expected signal 1, got %v", i, got)
		}
	}

	// Two recorded transactions; the third would reach the elevated count.
	c.Signal(ctx, tx)
	c.Signal(ctx, tx)
	got, err := c.Peek(ctx, tx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0.10 {
		t.Errorf("expected peek to preview signal 0.10, got %v", got)
	}
	if n, _ := lru.PeekCounter(ctx, tx.TenantID, "velocity:"+tx.CardNumber); n != 2 {
		t.Errorf("expected counter to stay at 2, got %d", n)
	}
}
