package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/repayplan/internal/domain"
)

// fakeClock lets TTL tests advance time without sleeping.
type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newClockedLRU(size int) (*LRUCache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache(size)
	c.now = clock.now
	return c, clock
}

func sampleResult() *domain.AssessmentResult {
	return &domain.AssessmentResult{
		RulesVersion:     "rules-2025-01",
		MonthlyRepayment: 560_000,
		Months:           8,
		Breakdown: domain.Breakdown{
			HouseholdSize:  1,
			UnsecuredTotal: 5_000_000,
			Flags:          []string{"period shortened to avoid overpayment"},
		},
	}
}

func TestLRUCache(t *testing.T) {
	cache, clock := newClockedLRU(100)
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		if err := cache.Set(ctx, "key1", []byte("value1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		val, err := cache.Get(ctx, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, "key2", []byte("value2"), time.Minute)
		if err := cache.Delete(ctx, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if val, _ := cache.Get(ctx, "key2"); val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		_ = cache.Set(ctx, "expiring", []byte("temp"), 10*time.Second)

		if val, _ := cache.Get(ctx, "expiring"); val == nil {
			t.Error("expected value before expiration")
		}
		clock.advance(11 * time.Second)
		if val, _ := cache.Get(ctx, "expiring"); val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		small := NewLRUCache(3)
		_ = small.Set(ctx, "a", []byte("1"), time.Minute)
		_ = small.Set(ctx, "b", []byte("2"), time.Minute)
		_ = small.Set(ctx, "c", []byte("3"), time.Minute)

		// Touch 'a' so 'b' becomes the oldest.
		_, _ = small.Get(ctx, "a")
		_ = small.Set(ctx, "d", []byte("4"), time.Minute)

		if val, _ := small.Get(ctx, "b"); val != nil {
			t.Error("expected 'b' to be evicted")
		}
		if val, _ := small.Get(ctx, "a"); val == nil {
			t.Error("expected 'a' to still exist")
		}
	})

	t.Run("RequiresKey", func(t *testing.T) {
		if err := cache.Set(ctx, "", []byte("value"), time.Minute); err == nil {
			t.Error("expected error for empty key")
		}
		if _, err := cache.Get(ctx, ""); err == nil {
			t.Error("expected error for empty key")
		}
	})

	t.Run("IncrementCounter", func(t *testing.T) {
		window := time.Minute

		count1, err := cache.IncrementCounter(ctx, "throttle:10.0.0.1", window)
		if err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}
		if count1 != 1 {
			t.Errorf("expected count 1, got %d", count1)
		}
		if count2, _ := cache.IncrementCounter(ctx, "throttle:10.0.0.1", window); count2 != 2 {
			t.Errorf("expected count 2, got %d", count2)
		}
		if other, _ := cache.IncrementCounter(ctx, "throttle:10.0.0.2", window); other != 1 {
			t.Errorf("expected independent counter, got %d", other)
		}

		clock.advance(window + time.Second)
		if count3, _ := cache.IncrementCounter(ctx, "throttle:10.0.0.1", window); count3 != 1 {
			t.Errorf("expected count 1 after window reset, got %d", count3)
		}
	})

	t.Run("ResultCache", func(t *testing.T) {
		if err := cache.SetResult(ctx, "00ff00ff00ff00ff", sampleResult(), time.Minute); err != nil {
			t.Fatalf("SetResult failed: %v", err)
		}
		got, err := cache.GetResult(ctx, "00ff00ff00ff00ff")
		if err != nil {
			t.Fatalf("GetResult failed: %v", err)
		}
		if got == nil || got.MonthlyRepayment != 560_000 || got.Months != 8 {
			t.Fatalf("unexpected result %+v", got)
		}
		if len(got.Breakdown.Flags) != 1 || got.RulesVersion != "rules-2025-01" {
			t.Errorf("breakdown did not round-trip: %+v", got.Breakdown)
		}

		miss, err := cache.GetResult(ctx, "missing")
		if err != nil || miss != nil {
			t.Errorf("expected nil miss, got %+v (%v)", miss, err)
		}
	})

	t.Run("NilResultRejected", func(t *testing.T) {
		if err := cache.SetResult(ctx, "fp", nil, time.Minute); err == nil {
			t.Error("expected error caching nil result")
		}
	})

	t.Run("CorruptResult", func(t *testing.T) {
		_ = cache.Set(ctx, resultKey("corrupt"), []byte("{not json"), time.Minute)
		if _, err := cache.GetResult(ctx, "corrupt"); err == nil {
			t.Error("expected decode error")
		}
	})

	t.Run("Stats", func(t *testing.T) {
		stats := NewLRUCache(50)
		_ = stats.Set(ctx, "k1", []byte("v1"), time.Minute)
		_ = stats.Set(ctx, "k2", []byte("v2"), time.Minute)

		size, capacity := stats.Stats()
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
		c := NewLRUCache(10)
		_ = c.Set(ctx, "k", []byte("v"), time.Minute)
		if err := c.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
		if val, _ := c.Get(ctx, "k"); val != nil {
			t.Error("expected cache to be cleared after close")
		}
	})
}

func TestTwoPhaseCache(t *testing.T) {
	ctx := context.Background()

	t.Run("ReadThroughPopulatesL1", func(t *testing.T) {
		remote := NewLRUCache(10)
		c := newTwoPhase(NewLRUCache(10), remote, time.Minute)

		_ = remote.SetResult(ctx, "fp1", sampleResult(), time.Hour)

		got, err := c.GetResult(ctx, "fp1")
		if err != nil || got == nil {
			t.Fatalf("expected L2 hit, got %+v (%v)", got, err)
		}
		if size, _ := c.Stats(); size != 1 {
			t.Errorf("expected L1 populated, size %d", size)
		}

		// L1 keeps serving after L2 loses the entry.
		_ = remote.Delete(ctx, resultKey("fp1"))
		if got, _ := c.GetResult(ctx, "fp1"); got == nil {
			t.Error("expected L1 hit")
		}
	})

	t.Run("WritesBothTiers", func(t *testing.T) {
		local, remote := NewLRUCache(10), NewLRUCache(10)
		c := newTwoPhase(local, remote, time.Minute)

		if err := c.Set(ctx, "k", []byte("v"), time.Hour); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if v, _ := local.Get(ctx, "k"); string(v) != "v" {
			t.Error("expected value in L1")
		}
		if v, _ := remote.Get(ctx, "k"); string(v) != "v" {
			t.Error("expected value in L2")
		}

		if err := c.Delete(ctx, "k"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if v, _ := c.Get(ctx, "k"); v != nil {
			t.Error("expected value removed from both tiers")
		}
	})

	t.Run("L1TTLCapped", func(t *testing.T) {
		local, clock := newClockedLRU(10)
		remote := NewLRUCache(10)
		c := newTwoPhase(local, remote, time.Minute)

		_ = c.Set(ctx, "k", []byte("v"), time.Hour)
		clock.advance(2 * time.Minute)
		if v, _ := local.Get(ctx, "k"); v != nil {
			t.Error("expected L1 entry expired after l1TTL")
		}
		if v, _ := c.Get(ctx, "k"); string(v) != "v" {
			t.Error("expected L2 to still serve the value")
		}
	})

	t.Run("CountersUseRemote", func(t *testing.T) {
		local, remote := NewLRUCache(10), NewLRUCache(10)
		c := newTwoPhase(local, remote, 0)

		_, _ = c.IncrementCounter(ctx, "ip", time.Minute)
		_, _ = c.IncrementCounter(ctx, "ip", time.Minute)
		if n, _ := remote.IncrementCounter(ctx, "ip", time.Minute); n != 3 {
			t.Errorf("expected remote counter 3, got %d", n)
		}
		if n, _ := local.IncrementCounter(ctx, "ip", time.Minute); n != 1 {
			t.Errorf("expected local counter untouched, got %d", n)
		}
		if c.l1TTL != 5*time.Minute {
			t.Errorf("expected default l1TTL, got %v", c.l1TTL)
		}
	})

	t.Run("PingReportsRemote", func(t *testing.T) {
		c := newTwoPhase(NewLRUCache(1), failingCache{LRUCache: NewLRUCache(1)}, 0)
		if err := c.Ping(ctx); err == nil {
			t.Error("expected L2 ping error")
		}
	})
}

type failingCache struct{ *LRUCache }

func (failingCache) Ping(context.Context) error { return errors.New("connection refused") }

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
