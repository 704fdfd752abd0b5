package imagecache

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/IvanBrykalov/boundcache/cache"
)

// FetchFunc produces an image on a cache miss (network fetch, decode, …).
type FetchFunc func(ctx context.Context, req Request) (Image, error)

// Lifecycle event names passed to LifecycleMetrics.
const (
	EventMemoryPressure = "memory_pressure"
	EventBackground     = "background"
)

// LifecycleMetrics is an optional extension of cache.Metrics. When
// Options.Metrics implements it, every lifecycle hook reports the event and
// the number of images it dropped.
type LifecycleMetrics interface {
	Lifecycle(event string, removed int)
}

// ImageCache caches decoded images keyed by normalized requests.
// All methods are safe for concurrent use, including the lifecycle entry
// points, which may be called from any goroutine at any time.
type ImageCache struct {
	c    *cache.Cache[Key, Image]
	cost atomic.Pointer[CostFunc]
	sf   singleflight.Group
	lm   LifecycleMetrics
	log  *slog.Logger
}

// New constructs an ImageCache.
func New(opt Options) *ImageCache {
	log := opt.Logger
	if log == nil {
		log = slog.Default()
	}
	if opt.CostLimit == 0 {
		opt.CostLimit = DefaultCostLimit
	}

	ic := &ImageCache{
		c: cache.New[Key, Image](cache.Options[Key, Image]{
			CostLimit:  opt.CostLimit,
			CountLimit: opt.CountLimit,
			DefaultTTL: opt.DefaultTTL,
			Metrics:    opt.Metrics,
			Clock:      opt.Clock,
			Logger:     log,
		}),
		log: log.With(slog.String("component", "imagecache")),
	}
	ic.lm, _ = opt.Metrics.(LifecycleMetrics)
	ic.SetCostFunc(opt.Cost)
	return ic
}

// CachedImage returns the image stored for req, promoting it to MRU.
func (ic *ImageCache) CachedImage(req Request) (Image, bool) {
	return ic.c.Get(req.CacheKey())
}

// Store caches img for req using the current cost function.
func (ic *ImageCache) Store(img Image, req Request) {
	ic.c.Set(req.CacheKey(), img, int64(ic.costOf(img)))
}

// RemoveImage drops the image stored for req, if any.
func (ic *ImageCache) RemoveImage(req Request) {
	ic.c.Remove(req.CacheKey())
}

// RemoveAll drops every cached image.
func (ic *ImageCache) RemoveAll() { ic.c.RemoveAll() }

// SetCostFunc replaces the cost function. Images already resident keep the
// cost they were stored with. A nil f restores DefaultCost.
func (ic *ImageCache) SetCostFunc(f CostFunc) {
	if f == nil {
		f = DefaultCost
	}
	ic.cost.Store(&f)
}

func (ic *ImageCache) costOf(img Image) int {
	return (*ic.cost.Load())(img)
}

// Count returns the number of resident images.
func (ic *ImageCache) Count() int { return ic.c.Count() }

// TotalCost returns the summed cost of resident images.
func (ic *ImageCache) TotalCost() int64 { return ic.c.TotalCost() }

// CostLimit returns the persistent cost limit.
func (ic *ImageCache) CostLimit() int64 { return ic.c.CostLimit() }

// SetCostLimit changes the cost limit, evicting immediately when lowered.
func (ic *ImageCache) SetCostLimit(limit int64) { ic.c.SetCostLimit(limit) }

// CountLimit returns the persistent count limit.
func (ic *ImageCache) CountLimit() int { return ic.c.CountLimit() }

// SetCountLimit changes the count limit, evicting immediately when lowered.
func (ic *ImageCache) SetCountLimit(limit int) { ic.c.SetCountLimit(limit) }

// DefaultTTL returns the TTL applied to newly stored images.
func (ic *ImageCache) DefaultTTL() time.Duration { return ic.c.DefaultTTL() }

// SetDefaultTTL changes the TTL for images stored from now on.
func (ic *ImageCache) SetDefaultTTL(ttl time.Duration) { ic.c.SetDefaultTTL(ttl) }

// TrimToCost evicts LRU images until the total cost is at most limit.
func (ic *ImageCache) TrimToCost(limit int64) int { return ic.c.TrimToCost(limit) }

// TrimToCount evicts LRU images until at most limit remain.
func (ic *ImageCache) TrimToCount(limit int) int { return ic.c.TrimToCount(limit) }

// Stats returns engine hit/miss/eviction counters.
func (ic *ImageCache) Stats() cache.Stats { return ic.c.Stats() }

// OnCriticalMemoryPressure clears the cache. Wire it to the platform's
// memory-warning signal.
func (ic *ImageCache) OnCriticalMemoryPressure() {
	n := ic.c.Count()
	ic.c.RemoveAll()
	if ic.lm != nil {
		ic.lm.Lifecycle(EventMemoryPressure, n)
	}
	ic.log.Info("critical memory pressure: cache cleared", slog.Int("removed", n))
}

// OnBackgroundTransition keeps roughly the 10% most recently used images
// resident. Wire it to the "moved to background" signal.
func (ic *ImageCache) OnBackgroundTransition() {
	byCost := ic.c.TrimToCost(ic.c.CostLimit() / 10)
	byCount := ic.c.TrimToCount(ic.c.CountLimit() / 10)
	if ic.lm != nil {
		ic.lm.Lifecycle(EventBackground, byCost+byCount)
	}
	ic.log.Info("background transition: cache trimmed",
		slog.Int("evicted_by_cost", byCost),
		slog.Int("evicted_by_count", byCount),
		slog.Int("remaining", ic.c.Count()),
	)
}

// Load returns the cached image for req, or calls fetch and stores its
// result. Concurrent loads of the same key share one fetch. A caller whose
// ctx ends stops waiting and gets ctx.Err(); the shared fetch keeps running
// for the other callers and is not cancelled.
func (ic *ImageCache) Load(ctx context.Context, req Request, fetch FetchFunc) (Image, error) {
	if fetch == nil {
		return Image{}, ErrNilFetch
	}
	key := req.CacheKey()
	if img, ok := ic.c.Get(key); ok {
		return img, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := ic.sf.DoChan(string(key), func() (any, error) {
		// double-check after flight join
		if img, ok := ic.c.Get(key); ok {
			return img, nil
		}
		img, err := fetch(fetchCtx, req)
		if err != nil {
			ic.log.Warn("image fetch failed", slog.String("key", string(key)), slog.Any("error", err))
			return Image{}, fmt.Errorf("imagecache: fetch %q: %w", key, err)
		}
		ic.Store(img, req)
		return img, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Image{}, res.Err
		}
		return res.Val.(Image), nil
	case <-ctx.Done():
		return Image{}, ctx.Err()
	}
}
