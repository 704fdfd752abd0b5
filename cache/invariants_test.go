package cache

import "testing"

// checkInvariants walks the recency list in both directions and verifies
// that it agrees with the index and the aggregate counters.
func checkInvariants[K comparable, V any](tb testing.TB, c *Cache[K, V]) {
	tb.Helper()

	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[K]struct{}, len(c.m))
	var (
		count int
		cost  int64
		prev  *node[K, V]
	)
	for n := c.head; n != nil; n = n.next {
		if n.prev != prev {
			tb.Fatalf("broken back link at key %v", n.key)
		}
		if _, dup := seen[n.key]; dup {
			tb.Fatalf("key %v visited twice (cycle or duplicate)", n.key)
		}
		seen[n.key] = struct{}{}
		if c.m[n.key] != n {
			tb.Fatalf("index does not point at list node for key %v", n.key)
		}
		if n.cost < 0 {
			tb.Fatalf("negative cost %d for key %v", n.cost, n.key)
		}
		count++
		cost += n.cost
		prev = n
	}
	if prev != c.tail {
		tb.Fatalf("tail mismatch")
	}
	if count != c.len || count != len(c.m) {
		tb.Fatalf("count mismatch: list=%d len=%d map=%d", count, c.len, len(c.m))
	}
	if cost != c.cost {
		tb.Fatalf("cost mismatch: list=%d counter=%d", cost, c.cost)
	}
}
