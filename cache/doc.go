// Package cache provides a generic, goroutine-safe in-memory cache bounded
// by three independent limits: total cost, entry count and per-entry TTL.
// Whenever a limit is exceeded, entries are evicted in strict
// least-recently-used order.
//
// Design
//
//   - Concurrency: a single RWMutex guards the index, the recency list, the
//     counters and the limits as one unit. Every mutating call, Get included
//     (it promotes the entry), holds the write lock for its whole duration.
//     No operation performs I/O or blocks on another subsystem.
//
//   - Storage: a map[K]*node for lookups and an intrusive MRU↔LRU doubly
//     linked list for ordering. All operations are O(1) except trims, which
//     are O(k) in the number of evicted entries.
//
//   - Limits: Set enforces CostLimit and CountLimit synchronously. Lowering a
//     limit with SetCostLimit/SetCountLimit evicts before returning; raising
//     one never evicts. TrimToCost/TrimToCount are one-shot cuts that leave
//     the persistent limits unchanged.
//
//   - TTL: entries carry an optional absolute deadline. Expiration is lazy:
//     an expired entry is reaped when it is looked up, evicted by a trim, or
//     cleared by RemoveAll. There is no background sweeper.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Size/Limits signals.
//     By default NoopMetrics is used; see metrics/prom for a Prometheus adapter.
//
//   - Callbacks: Options.OnEvict(k, v, reason) is called for every eviction
//     (reason is one of EvictCount, EvictCost, EvictTTL, EvictTrim).
//
// Basic usage
//
//	c := cache.New[string, []byte](cache.Options[string, []byte]{
//	    CostLimit:  64 << 20, // bytes
//	    CountLimit: 10_000,
//	})
//	c.Set("a", []byte("1"), 1)
//	if v, ok := c.Get("a"); ok {
//	    _ = v // use value
//	}
//	c.Remove("a")
//
// With TTL
//
//	c.SetWithTTL("tmp", []byte("v"), 1, 200*time.Millisecond)
//	time.Sleep(300 * time.Millisecond)
//	_, ok := c.Get("tmp") // ok == false (expired)
//
// Reacting to memory pressure
//
//	c.TrimToCost(c.CostLimit() / 10) // keep the hottest ~10% resident
//	c.RemoveAll()                    // or drop everything
package cache
