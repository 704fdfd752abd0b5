package cache

// NoopMetrics is a drop-in Metrics implementation that does nothing.
// It is safe for concurrent use and intended as the default when
// no observability backend is configured.
type NoopMetrics struct{}

func (NoopMetrics) Hit()                                   {}
func (NoopMetrics) Miss()                                  {}
func (NoopMetrics) Evict(EvictReason)                      {}
func (NoopMetrics) Size(entries int, cost int64)           {}
func (NoopMetrics) Limits(costLimit int64, countLimit int) {}

// Ensure NoopMetrics implements the Metrics interface at compile time.
var _ Metrics = NoopMetrics{}

// Stats is a point-in-time snapshot of the cache counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64

	// EvictionsByReason is indexed by EvictReason.
	EvictionsByReason [numEvictReasons]uint64
}

// HitRatio returns hits / (hits + misses), or 0 when nothing was read.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
