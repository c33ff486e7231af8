package cache

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/BinaryLoops/Fraud-Detector/internal/domain"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newClockedLRU(size int) (*LRUCache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)}
	c := NewLRUCache(size)
	c.now = clock.now
	return c, clock
}

func TestLRUCache(t *testing.T) {
	cache, clock := newClockedLRU(100)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("SetAndGet", func(t *testing.T) {
		if err := cache.Set(ctx, tenantID, "key1", []byte("value1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, tenantID, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, tenantID, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, tenantID, "key2", []byte("value2"), time.Minute)

		if err := cache.Delete(ctx, tenantID, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, tenantID, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		_ = cache.Set(ctx, tenantID, "expiring", []byte("temp"), 10*time.Second)

		val, _ := cache.Get(ctx, tenantID, "expiring")
		if string(val) != "temp" {
			t.Errorf("expected 'temp' before expiry, got %q", val)
		}

		clock.advance(11 * time.Second)

		val, _ = cache.Get(ctx, tenantID, "expiring")
		if val != nil {
			t.Error("expected nil after TTL expiration")
		}
	})

	t.Run("NoTTL", func(t *testing.T) {
		_ = cache.Set(ctx, tenantID, "forever", []byte("v"), 0)
		clock.advance(24 * time.Hour)

		val, _ := cache.Get(ctx, tenantID, "forever")
		if string(val) != "v" {
			t.Error("expected entry without TTL to survive")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		small, _ := newClockedLRU(3)
		_ = small.Set(ctx, tenantID, "a", []byte("1"), time.Minute)
		_ = small.Set(ctx, tenantID, "b", []byte("2"), time.Minute)
		_ = small.Set(ctx, tenantID, "c", []byte("3"), time.Minute)

		// Touch "a" so "b" becomes the oldest
		_, _ = small.Get(ctx, tenantID, "a")
		_ = small.Set(ctx, tenantID, "d", []byte("4"), time.Minute)

		if val, _ := small.Get(ctx, tenantID, "b"); val != nil {
			t.Error("expected 'b' to be evicted")
		}
		if val, _ := small.Get(ctx, tenantID, "a"); val == nil {
			t.Error("expected 'a' to survive eviction")
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		_ = cache.Set(ctx, "tenant-a", "shared", []byte("a"), time.Minute)
		_ = cache.Set(ctx, "tenant-b", "shared", []byte("b"), time.Minute)

		a, _ := cache.Get(ctx, "tenant-a", "shared")
		b, _ := cache.Get(ctx, "tenant-b", "shared")
		if string(a) != "a" || string(b) != "b" {
			t.Errorf("tenant values leaked: a=%q b=%q", a, b)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if _, err := cache.Get(ctx, "", "k"); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if err := cache.Set(ctx, "", "k", nil, time.Minute); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if _, err := cache.IncrementCounter(ctx, "", "k", time.Minute); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("IncrementCounter", func(t *testing.T) {
		window := time.Minute

		count1, err := cache.IncrementCounter(ctx, tenantID, "velocity", window)
		if err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}
		if count1 != 1 {
			t.Errorf("expected count 1, got %d", count1)
		}

		count2, _ := cache.IncrementCounter(ctx, tenantID, "velocity", window)
		if count2 != 2 {
			t.Errorf("expected count 2, got %d", count2)
		}

		clock.advance(window + time.Second)

		count3, _ := cache.IncrementCounter(ctx, tenantID, "velocity", window)
		if count3 != 1 {
			t.Errorf("expected count 1 after window reset, got %d", count3)
		}
	})

	t.Run("EvaluationCache", func(t *testing.T) {
		eval := &domain.Evaluation{
			ID:       "eval-001",
			TxID:     "tx-001",
			Score:    65,
			Status:   domain.StatusBlocked,
			TenantID: tenantID,
			Assessment: domain.FraudAssessment{
				RiskLevel:   domain.RiskHigh,
				RiskFactors: []string{"High-risk geographic location"},
				Confidence:  0.95,
			},
		}

		if err := cache.SetEvaluation(ctx, tenantID, eval, time.Minute); err != nil {
			t.Fatalf("SetEvaluation failed: %v", err)
		}

		retrieved, err := cache.GetEvaluation(ctx, tenantID, "eval-001")
		if err != nil {
			t.Fatalf("GetEvaluation failed: %v", err)
		}
		if retrieved == nil {
			t.Fatal("expected cached evaluation")
		}
		if retrieved.Score != 65 || retrieved.Assessment.RiskLevel != domain.RiskHigh {
			t.Errorf("evaluation did not round-trip: %+v", retrieved)
		}

		missing, err := cache.GetEvaluation(ctx, tenantID, "eval-404")
		if err != nil || missing != nil {
			t.Errorf("expected nil, nil on miss, got %v, %v", missing, err)
		}
	})

	t.Run("CorruptEvaluation", func(t *testing.T) {
		_ = cache.Set(ctx, tenantID, evaluationKey("bad"), []byte("{not json"), time.Minute)
		if _, err := cache.GetEvaluation(ctx, tenantID, "bad"); err == nil {
			t.Error("expected decode error")
		}
	})

	t.Run("Stats", func(t *testing.T) {
		statsCache := NewLRUCache(50)
		_ = statsCache.Set(ctx, tenantID, "k1", []byte("v1"), time.Minute)
		_ = statsCache.Set(ctx, tenantID, "k2", []byte("v2"), time.Minute)

		size, capacity := statsCache.Stats()
		if size != 2 {
			t.Errorf("expected size 2, got %d", size)
		}
		if capacity != 50 {
			t.Errorf("expected capacity 50, got %d", capacity)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := cache.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("Close", func(t *testing.T) {
		testCache := NewLRUCache(10)
		_ = testCache.Set(ctx, tenantID, "k", []byte("v"), time.Minute)

		if err := testCache.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}

		val, _ := testCache.Get(ctx, tenantID, "k")
		if val != nil {
			t.Error("expected cache to be cleared after close")
		}
	})
}

func TestCounterSweep(t *testing.T) {
	cache, clock := newClockedLRU(10)
	ctx := context.Background()

	for i := 0; i < counterSweepEvery-1; i++ {
		_, _ = cache.IncrementCounter(ctx, "tenant-001", "card-"+strconv.Itoa(i), time.Minute)
	}
	if got := cache.counterCount(); got != counterSweepEvery-1 {
		t.Fatalf("expected %d counters, got %d", counterSweepEvery-1, got)
	}

	clock.advance(2 * time.Minute)
	_, _ = cache.IncrementCounter(ctx, "tenant-001", "fresh", time.Minute)

	if got := cache.counterCount(); got != 1 {
		t.Errorf("expected expired counters to be swept, %d remain", got)
	}
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		cache, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer cache.Close()

		if _, ok := cache.(*LRUCache); !ok {
			t.Error("expected LRUCache for memory type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

// TestTwoPhaseCache needs a live Redis; set FRAUD_TEST_REDIS_ADDR to run it.
func TestTwoPhaseCache(t *testing.T) {
	addr := os.Getenv("FRAUD_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FRAUD_TEST_REDIS_ADDR not set")
	}

	remote, err := NewRedisCache(addr, "", 0)
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}
	local, _ := newClockedLRU(10)
	c := newTwoPhase(local, remote, time.Minute)
	defer c.Close()

	ctx := context.Background()
	tenantID := "tenant-" + strconv.FormatInt(time.Now().UnixNano(), 36)

	eval := &domain.Evaluation{ID: "eval-2p", Score: 40}
	if err := c.SetEvaluation(ctx, tenantID, eval, time.Minute); err != nil {
		t.Fatalf("SetEvaluation failed: %v", err)
	}

	// Drop L1 so the read has to come from Redis and repopulate L1.
	_ = local.Delete(ctx, tenantID, evaluationKey(eval.ID))
	got, err := c.GetEvaluation(ctx, tenantID, eval.ID)
	if err != nil || got == nil || got.Score != 40 {
		t.Fatalf("expected evaluation from L2, got %+v, %v", got, err)
	}
	if raw, _ := local.Get(ctx, tenantID, evaluationKey(eval.ID)); raw == nil {
		t.Error("expected L1 to be repopulated")
	}

	for want := int64(1); want <= 3; want++ {
		n, err := c.IncrementCounter(ctx, tenantID, "velocity:card", time.Minute)
		if err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}
		if n != want {
			t.Errorf("expected %d, got %d", want, n)
		}
	}
}
