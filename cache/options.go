package cache

import (
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
)

// EvictReason explains why an entry was removed.
type EvictReason int

const (
	// EvictCount: removed to satisfy the entry count limit.
	EvictCount EvictReason = iota
	// EvictCost: removed to satisfy the total cost limit.
	EvictCost
	// EvictTTL: expired by TTL (lazy eviction on access).
	EvictTTL
	// EvictTrim: removed by an explicit one-shot trim.
	EvictTrim

	numEvictReasons
)

// String returns a stable lowercase name, suitable as a metric label.
func (r EvictReason) String() string {
	switch r {
	case EvictCount:
		return "count"
	case EvictCost:
		return "cost"
	case EvictTTL:
		return "ttl"
	case EvictTrim:
		return "trim"
	default:
		return "unknown"
	}
}

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
// Hooks are invoked while the cache lock is held; keep them cheap.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Size(entries int, cost int64)
	// Limits reports the persistent limits after New and after every setter.
	Limits(costLimit int64, countLimit int)
}

// Options configures the cache behavior. Zero values are safe;
// defaults are applied in New():
//   - CostLimit == 0   => math.MaxInt64
//   - CountLimit == 0  => math.MaxInt
//   - nil Metrics      => NoopMetrics
//   - nil Clock        => wall clock
//   - nil Logger       => slog.Default()
type Options[K comparable, V any] struct {
	// CostLimit bounds the summed cost of resident entries.
	// Negative values are clamped to zero (only zero-cost entries fit).
	CostLimit int64

	// CountLimit bounds the number of resident entries.
	// Negative values are clamped to zero (nothing fits).
	CountLimit int

	// DefaultTTL applies to Set/Add when no per-key TTL is given (<= 0 = no TTL).
	DefaultTTL time.Duration

	// OnEvict is called on eviction under the cache lock; keep callbacks lightweight.
	// Explicit Remove and RemoveAll do not count as evictions.
	OnEvict func(k K, v V, reason EvictReason)
	Metrics Metrics

	// Clock allows overriding the time source (tests use clock.NewMock()).
	Clock clock.Clock

	// Logger receives debug records for trims, clears and limit changes.
	Logger *slog.Logger
}
