package cache

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()
	dataset := "dataset-001"

	t.Run("SetAndGet", func(t *testing.T) {
		err := cache.Set(ctx, dataset, "txn-0|*", []byte(`[{"rule_id":"RULE_001"}]`), time.Minute)
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, dataset, "txn-0|*")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != `[{"rule_id":"RULE_001"}]` {
			t.Errorf("unexpected value %s", val)
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, dataset, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, dataset, "key2", []byte("value2"), time.Minute)

		if err := cache.Delete(ctx, dataset, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, dataset, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		_ = cache.Set(ctx, dataset, "expiring", []byte("temp"), 10*time.Millisecond)

		val, _ := cache.Get(ctx, dataset, "expiring")
		if val == nil {
			t.Error("expected value before expiration")
		}

		time.Sleep(20 * time.Millisecond)

		val, _ = cache.Get(ctx, dataset, "expiring")
		if val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		smallCache := NewLRUCache(3)

		_ = smallCache.Set(ctx, dataset, "a", []byte("1"), time.Minute)
		_ = smallCache.Set(ctx, dataset, "b", []byte("2"), time.Minute)
		_ = smallCache.Set(ctx, dataset, "c", []byte("3"), time.Minute)

		// Access 'a' to make it recently used
		_, _ = smallCache.Get(ctx, dataset, "a")

		// Add 'd' - should evict 'b'
		_ = smallCache.Set(ctx, dataset, "d", []byte("4"), time.Minute)

		val, _ := smallCache.Get(ctx, dataset, "b")
		if val != nil {
			t.Error("expected 'b' to be evicted")
		}

		val, _ = smallCache.Get(ctx, dataset, "a")
		if val == nil {
			t.Error("expected 'a' to still exist")
		}
	})

	t.Run("NamespaceIsolation", func(t *testing.T) {
		_ = cache.Set(ctx, "dataset-A", "txn-0|*", []byte("old"), time.Minute)
		_ = cache.Set(ctx, "dataset-B", "txn-0|*", []byte("new"), time.Minute)

		valA, _ := cache.Get(ctx, "dataset-A", "txn-0|*")
		valB, _ := cache.Get(ctx, "dataset-B", "txn-0|*")

		if string(valA) != "old" || string(valB) != "new" {
			t.Errorf("namespaces leaked: %s / %s", valA, valB)
		}
	})

	t.Run("DeleteNamespace", func(t *testing.T) {
		c := NewLRUCache(10)
		_ = c.Set(ctx, "old", "k1", []byte("1"), time.Minute)
		_ = c.Set(ctx, "old", "k2", []byte("2"), time.Minute)
		_ = c.Set(ctx, "current", "k1", []byte("3"), time.Minute)

		removed, err := c.DeleteNamespace(ctx, "old")
		if err != nil {
			t.Fatalf("DeleteNamespace failed: %v", err)
		}
		if removed != 2 {
			t.Errorf("expected 2 removed, got %d", removed)
		}
		if val, _ := c.Get(ctx, "current", "k1"); string(val) != "3" {
			t.Error("other namespaces must survive")
		}
	})

	t.Run("RequiresNamespace", func(t *testing.T) {
		if err := cache.Set(ctx, "", "key", []byte("value"), time.Minute); err == nil {
			t.Error("expected error for empty namespace")
		}
		if _, err := cache.Get(ctx, "", "key"); err == nil {
			t.Error("expected error for empty namespace")
		}
	})

	t.Run("Stats", func(t *testing.T) {
		statsCache := NewLRUCache(50)
		_ = statsCache.Set(ctx, dataset, "k1", []byte("v1"), time.Minute)
		_ = statsCache.Set(ctx, dataset, "k2", []byte("v2"), time.Minute)

		size, capacity := statsCache.Stats()
		if size != 2 {
			t.Errorf("expected size 2, got %d", size)
		}
		if capacity != 50 {
			t.Errorf("expected capacity 50, got %d", capacity)
		}
	})

	t.Run("Close", func(t *testing.T) {
		testCache := NewLRUCache(10)
		_ = testCache.Set(ctx, dataset, "k", []byte("v"), time.Minute)

		if err := testCache.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}

		val, _ := testCache.Get(ctx, dataset, "k")
		if val != nil {
			t.Error("expected cache to be cleared after close")
		}
	})
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
