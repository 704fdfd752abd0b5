package cache

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Cache is an in-memory KV store bounded by total cost, entry count and
// optional per-entry TTL, evicting in strict LRU order.
//
// All methods are safe for concurrent use by multiple goroutines. The whole
// mutable state (index, recency list, counters, limits) is guarded by one
// lock, and every operation holds it for its full duration. Get mutates the
// recency list and therefore takes the write lock.
type Cache[K comparable, V any] struct {
	// ---- guarded by mu ----
	mu   sync.RWMutex
	m    map[K]*node[K, V]
	head *node[K, V] // MRU
	tail *node[K, V] // LRU
	len  int         // number of resident entries
	cost int64       // summed cost of resident entries

	costLimit  int64
	countLimit int
	defaultTTL time.Duration

	hits   uint64
	misses uint64
	evicts [numEvictReasons]uint64

	opt Options[K, V]
	clk clock.Clock
	log *slog.Logger
}

// New constructs a cache with the provided Options.
// Defaults:
//   - CostLimit == 0  -> math.MaxInt64
//   - CountLimit == 0 -> math.MaxInt
//   - nil Metrics     -> NoopMetrics
//   - nil Clock       -> wall clock
//   - nil Logger      -> slog.Default()
func New[K comparable, V any](opt Options[K, V]) *Cache[K, V] {
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	clk := opt.Clock
	if clk == nil {
		clk = clock.New()
	}
	log := opt.Logger
	if log == nil {
		log = slog.Default()
	}

	costLimit := opt.CostLimit
	if costLimit == 0 {
		costLimit = math.MaxInt64
	}
	countLimit := opt.CountLimit
	if countLimit == 0 {
		countLimit = math.MaxInt
	}

	c := &Cache[K, V]{
		m:          make(map[K]*node[K, V]),
		costLimit:  max(costLimit, 0),
		countLimit: max(countLimit, 0),
		defaultTTL: opt.DefaultTTL,
		opt:        opt,
		clk:        clk,
		log:        log.With(slog.String("component", "cache")),
	}
	opt.Metrics.Limits(c.costLimit, c.countLimit)
	return c
}

// Set inserts or updates k→v with the given cost, using DefaultTTL if set.
// The entry becomes MRU, then LRU entries are evicted until both limits hold.
// The entry itself is evicted if it alone exceeds a limit.
func (c *Cache[K, V]) Set(k K, v V, cost int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setLocked(k, v, cost, deadline(c.now(), c.defaultTTL))
}

// SetWithTTL inserts or updates k→v with a per-key TTL (relative duration).
// A non-positive ttl means the value is already expired: any resident entry
// for k is dropped and nothing is stored.
func (c *Cache[K, V]) SetWithTTL(k K, v V, cost int64, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		if n, ok := c.m[k]; ok {
			c.deleteNode(n)
			c.opt.Metrics.Size(c.len, c.cost)
		}
		return
	}
	c.setLocked(k, v, cost, deadline(c.now(), ttl))
}

// Add inserts k→v only if k is not resident (an expired entry counts as
// absent). It uses DefaultTTL if set. Returns false if a live entry exists.
func (c *Cache[K, V]) Add(k K, v V, cost int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if n, ok := c.m[k]; ok {
		if !n.expired(now) {
			return false
		}
		c.evictNode(n, EvictTTL)
	}
	c.setLocked(k, v, cost, deadline(now, c.defaultTTL))
	return true
}

// Get returns the value for k and a presence flag.
// An expired entry is removed as a side effect and reported as a miss.
// On hit, the entry is promoted to MRU.
func (c *Cache[K, V]) Get(k K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.m[k]
	if !ok {
		c.missLocked()
		var zero V
		return zero, false
	}
	if n.expired(c.now()) {
		c.evictNode(n, EvictTTL)
		c.opt.Metrics.Size(c.len, c.cost)
		c.missLocked()
		var zero V
		return zero, false
	}

	c.moveToFront(n)
	c.hits++
	c.opt.Metrics.Hit()
	return n.val, true
}

// Remove deletes k if present and returns true on success.
func (c *Cache[K, V]) Remove(k K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.m[k]
	if !ok {
		return false
	}
	c.deleteNode(n)
	c.opt.Metrics.Size(c.len, c.cost)
	return true
}

// RemoveAll drops every entry and resets the counters, ignoring TTL state.
func (c *Cache[K, V]) RemoveAll() {
	c.mu.Lock()
	removed := c.len
	c.m = make(map[K]*node[K, V])
	c.head, c.tail = nil, nil
	c.len, c.cost = 0, 0
	c.opt.Metrics.Size(0, 0)
	c.mu.Unlock()

	c.log.Debug("removed all entries", slog.Int("removed", removed))
}

// TrimToCost evicts LRU entries, regardless of TTL, until the total cost is
// at most limit. The persistent CostLimit is not changed.
// Returns the number of evicted entries.
func (c *Cache[K, V]) TrimToCost(limit int64) int {
	c.mu.Lock()
	evicted := c.trimCostLocked(limit, EvictTrim)
	c.opt.Metrics.Size(c.len, c.cost)
	c.mu.Unlock()

	c.log.Debug("trimmed to cost", slog.Int64("limit", limit), slog.Int("evicted", evicted))
	return evicted
}

// TrimToCount evicts LRU entries, regardless of TTL, until at most limit
// entries remain. The persistent CountLimit is not changed.
// Returns the number of evicted entries.
func (c *Cache[K, V]) TrimToCount(limit int) int {
	c.mu.Lock()
	evicted := c.trimCountLocked(limit, EvictTrim)
	c.opt.Metrics.Size(c.len, c.cost)
	c.mu.Unlock()

	c.log.Debug("trimmed to count", slog.Int("limit", limit), slog.Int("evicted", evicted))
	return evicted
}

// CostLimit returns the persistent total cost limit.
func (c *Cache[K, V]) CostLimit() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.costLimit
}

// SetCostLimit stores a new cost limit (negative is clamped to zero) and
// evicts synchronously until it holds. Raising the limit never evicts.
func (c *Cache[K, V]) SetCostLimit(limit int64) {
	c.mu.Lock()
	c.costLimit = max(limit, 0)
	applied := c.costLimit
	evicted := c.trimCostLocked(applied, EvictCost)
	c.opt.Metrics.Size(c.len, c.cost)
	c.opt.Metrics.Limits(c.costLimit, c.countLimit)
	c.mu.Unlock()

	c.log.Debug("cost limit changed", slog.Int64("limit", applied), slog.Int("evicted", evicted))
}

// CountLimit returns the persistent entry count limit.
func (c *Cache[K, V]) CountLimit() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.countLimit
}

// SetCountLimit stores a new count limit (negative is clamped to zero) and
// evicts synchronously until it holds. Raising the limit never evicts.
func (c *Cache[K, V]) SetCountLimit(limit int) {
	c.mu.Lock()
	c.countLimit = max(limit, 0)
	applied := c.countLimit
	evicted := c.trimCountLocked(applied, EvictCount)
	c.opt.Metrics.Size(c.len, c.cost)
	c.opt.Metrics.Limits(c.costLimit, c.countLimit)
	c.mu.Unlock()

	c.log.Debug("count limit changed", slog.Int("limit", applied), slog.Int("evicted", evicted))
}

// DefaultTTL returns the TTL applied to entries stored without an explicit one.
func (c *Cache[K, V]) DefaultTTL() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defaultTTL
}

// SetDefaultTTL changes the default TTL (<= 0 disables it).
// Only entries stored afterwards are affected.
func (c *Cache[K, V]) SetDefaultTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultTTL = ttl
}

// Count returns the number of resident entries.
// Expired entries stay resident until they are looked up or evicted.
func (c *Cache[K, V]) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.len
}

// TotalCost returns the summed cost of resident entries.
func (c *Cache[K, V]) TotalCost() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cost
}

// Keys returns resident keys ordered from MRU to LRU.
func (c *Cache[K, V]) Keys() []K {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]K, 0, c.len)
	for n := c.head; n != nil; n = n.next {
		out = append(out, n.key)
	}
	return out
}

// Stats returns a snapshot of hit/miss/eviction counters.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{Hits: c.hits, Misses: c.misses, EvictionsByReason: c.evicts}
	for _, n := range c.evicts {
		s.Evictions += n
	}
	return s
}

// -------------------- internals (mu held) --------------------

func (c *Cache[K, V]) setLocked(k K, v V, cost int64, exp int64) {
	cost = max(cost, 0)

	n, ok := c.m[k]
	if ok {
		// Update: detach, then relink at MRU with the new cost.
		c.unlink(n)
		n.val = v
		n.exp = exp
		n.cost = cost
	} else {
		n = &node[K, V]{key: k, val: v, exp: exp, cost: cost}
		c.m[k] = n
	}
	c.makeRoomLocked(cost)
	c.pushFront(n)
	c.enforceLimitsLocked()
}

// makeRoomLocked evicts LRU entries until adding cost cannot overflow the
// total. Any cost limit would have evicted them too.
func (c *Cache[K, V]) makeRoomLocked(cost int64) {
	for c.tail != nil && c.cost > math.MaxInt64-cost {
		c.evictNode(c.tail, EvictCost)
	}
}

func (c *Cache[K, V]) missLocked() {
	c.misses++
	c.opt.Metrics.Miss()
}

func (c *Cache[K, V]) now() int64 {
	return c.clk.Now().UnixNano()
}

// deadline converts a relative TTL into an absolute UnixNano deadline.
// A non-positive ttl returns 0 (no expiration). Deadlines past the end of
// the int64 range saturate at math.MaxInt64.
func deadline(now int64, ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	if now > 0 && int64(ttl) > math.MaxInt64-now {
		return math.MaxInt64
	}
	return now + int64(ttl)
}

// pushFront inserts n at MRU in O(1).
func (c *Cache[K, V]) pushFront(n *node[K, V]) {
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
	c.len++
	c.cost += n.cost
}

// moveToFront promotes n to MRU in O(1).
func (c *Cache[K, V]) moveToFront(n *node[K, V]) {
	if n == c.head {
		return
	}
	// detach
	n.prev.next = n.next
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
	// insert at head
	n.prev = nil
	n.next = c.head
	c.head.prev = n
	c.head = n
}

// unlink removes n from the list and updates counters in O(1).
func (c *Cache[K, V]) unlink(n *node[K, V]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.prev, n.next = nil, nil
	c.len--
	c.cost -= n.cost
}

// deleteNode drops n from both the list and the index.
func (c *Cache[K, V]) deleteNode(n *node[K, V]) {
	c.unlink(n)
	delete(c.m, n.key)
}

// evictNode removes the node, updates counters/metrics, and calls OnEvict.
func (c *Cache[K, V]) evictNode(n *node[K, V], reason EvictReason) {
	c.deleteNode(n)
	c.evicts[reason]++
	c.opt.Metrics.Evict(reason)
	if cb := c.opt.OnEvict; cb != nil {
		// Called under the lock: the callback must not call back into the cache.
		cb(n.key, n.val, reason)
	}
}

func (c *Cache[K, V]) trimCostLocked(limit int64, reason EvictReason) int {
	limit = max(limit, 0)
	evicted := 0
	for c.cost > limit && c.tail != nil {
		c.evictNode(c.tail, reason)
		evicted++
	}
	return evicted
}

func (c *Cache[K, V]) trimCountLocked(limit int, reason EvictReason) int {
	limit = max(limit, 0)
	evicted := 0
	for c.len > limit && c.tail != nil {
		c.evictNode(c.tail, reason)
		evicted++
	}
	return evicted
}

// enforceLimitsLocked evicts LRU items until both count and cost limits are satisfied.
func (c *Cache[K, V]) enforceLimitsLocked() {
	c.trimCountLocked(c.countLimit, EvictCount)
	c.trimCostLocked(c.costLimit, EvictCost)
	c.opt.Metrics.Size(c.len, c.cost)
}
