package imagecache_test

import (
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/boundcache/imagecache"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func req(i int) imagecache.Request {
	return imagecache.Request{URL: "https://img.example.com/" + strconv.Itoa(i) + ".png"}
}

func TestRequest_CacheKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b imagecache.Request
		same bool
	}{
		{
			name: "host case is ignored",
			a:    imagecache.Request{URL: "https://Example.COM/a.png"},
			b:    imagecache.Request{URL: "https://example.com/a.png"},
			same: true,
		},
		{
			name: "fragment is ignored",
			a:    imagecache.Request{URL: "https://example.com/a.png#top"},
			b:    imagecache.Request{URL: "https://example.com/a.png"},
			same: true,
		},
		{
			name: "path case matters",
			a:    imagecache.Request{URL: "https://example.com/A.png"},
			b:    imagecache.Request{URL: "https://example.com/a.png"},
			same: false,
		},
		{
			name: "blank processors are skipped",
			a:    imagecache.Request{URL: "https://example.com/a.png", Processors: []string{" resize:10x10 ", ""}},
			b:    imagecache.Request{URL: "https://example.com/a.png", Processors: []string{"resize:10x10"}},
			same: true,
		},
		{
			name: "processor order matters",
			a:    imagecache.Request{URL: "u", Processors: []string{"blur", "resize"}},
			b:    imagecache.Request{URL: "u", Processors: []string{"resize", "blur"}},
			same: false,
		},
		{
			name: "thumbnail differs",
			a:    imagecache.Request{URL: "u", Thumbnail: true},
			b:    imagecache.Request{URL: "u"},
			same: false,
		},
		{
			name: "comma inside a processor is not a separator",
			a:    imagecache.Request{URL: "u", Processors: []string{"crop:1,2"}},
			b:    imagecache.Request{URL: "u", Processors: []string{"crop:1", "2"}},
			same: false,
		},
		{
			name: "separator inside a processor",
			a:    imagecache.Request{URL: "u", Processors: []string{"blur|thumb"}},
			b:    imagecache.Request{URL: "u", Processors: []string{"blur"}, Thumbnail: true},
			same: false,
		},
		{
			name: "separator inside an unparseable url",
			a:    imagecache.Request{URL: "http://[::1|thumb"},
			b:    imagecache.Request{URL: "http://[::1", Thumbnail: true},
			same: false,
		},
		{
			name: "separator inside a query string",
			a:    imagecache.Request{URL: "https://example.com/a.png?v=1|p=blur"},
			b:    imagecache.Request{URL: "https://example.com/a.png?v=1", Processors: []string{"blur"}},
			same: false,
		},
		{
			name: "unparseable url is kept as is",
			a:    imagecache.Request{URL: "http://[::1"},
			b:    imagecache.Request{URL: "http://[::1"},
			same: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.same {
				assert.Equal(t, tt.a.CacheKey(), tt.b.CacheKey())
			} else {
				assert.NotEqual(t, tt.a.CacheKey(), tt.b.CacheKey())
			}
		})
	}
}

// Requests that differ only in how their parts would split must not be
// served each other's images.
func TestImageCache_DistinctRequestsDoNotShareEntries(t *testing.T) {
	t.Parallel()

	ic := imagecache.New(imagecache.Options{Logger: quietLogger()})
	pairs := [][2]imagecache.Request{
		{
			{URL: "u", Processors: []string{"crop:1,2"}},
			{URL: "u", Processors: []string{"crop:1", "2"}},
		},
		{
			{URL: "x|thumb"},
			{URL: "x", Thumbnail: true},
		},
		{
			{URL: "http://[::1|thumb"},
			{URL: "http://[::1", Thumbnail: true},
		},
	}
	for i, p := range pairs {
		img := imagecache.Image{Width: i + 1, Height: 1}
		ic.Store(img, p[0])

		_, ok := ic.CachedImage(p[1])
		assert.False(t, ok, "pair %d: %q served an image stored for %q", i, p[1].CacheKey(), p[0].CacheKey())
		got, ok := ic.CachedImage(p[0])
		require.True(t, ok)
		assert.Equal(t, img, got)
	}
}

func TestDefaultCost(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 400, imagecache.DefaultCost(imagecache.Image{Width: 10, Height: 10}))
	assert.Equal(t, 3, imagecache.DefaultCost(imagecache.Image{Data: []byte("abc")}))
	assert.Equal(t, 0, imagecache.DefaultCost(imagecache.Image{}))
}

func TestImageCache_StoreLookupRemove(t *testing.T) {
	t.Parallel()

	ic := imagecache.New(imagecache.Options{Logger: quietLogger()})
	img := imagecache.Image{Width: 2, Height: 2}

	ic.Store(img, imagecache.Request{URL: "https://EXAMPLE.com/a.png"})

	got, ok := ic.CachedImage(imagecache.Request{URL: "https://example.com/a.png"})
	require.True(t, ok)
	assert.Equal(t, img, got)
	assert.Equal(t, 1, ic.Count())
	assert.Equal(t, int64(16), ic.TotalCost())

	ic.RemoveImage(imagecache.Request{URL: "https://example.com/a.png#x"})
	_, ok = ic.CachedImage(imagecache.Request{URL: "https://example.com/a.png"})
	assert.False(t, ok)
	assert.Equal(t, 0, ic.Count())
	assert.Equal(t, int64(0), ic.TotalCost())
}

func TestImageCache_Defaults(t *testing.T) {
	t.Parallel()

	ic := imagecache.New(imagecache.Options{Logger: quietLogger()})
	assert.Equal(t, imagecache.DefaultCostLimit, ic.CostLimit())
	assert.Equal(t, time.Duration(0), ic.DefaultTTL())
}

func TestImageCache_CostFuncRebind(t *testing.T) {
	t.Parallel()

	ic := imagecache.New(imagecache.Options{
		Logger: quietLogger(),
		Cost:   func(imagecache.Image) int { return 10 },
	})
	ic.Store(imagecache.Image{}, req(1))
	ic.Store(imagecache.Image{}, req(2))
	require.Equal(t, int64(20), ic.TotalCost())

	ic.SetCostFunc(func(imagecache.Image) int { return 3 })
	assert.Equal(t, int64(20), ic.TotalCost(), "rebind must not recompute resident costs")

	ic.Store(imagecache.Image{}, req(1))
	assert.Equal(t, int64(13), ic.TotalCost(), "re-stored key takes the new cost, others keep theirs")

	ic.SetCostFunc(nil)
	ic.Store(imagecache.Image{Data: []byte("12345")}, req(3))
	assert.Equal(t, int64(18), ic.TotalCost(), "nil restores DefaultCost")
}

func TestImageCache_LimitsEvictImmediately(t *testing.T) {
	t.Parallel()

	ic := imagecache.New(imagecache.Options{
		Logger: quietLogger(),
		Cost:   func(imagecache.Image) int { return 5 },
	})
	for i := 0; i < 4; i++ {
		ic.Store(imagecache.Image{}, req(i))
	}

	ic.SetCountLimit(3)
	assert.Equal(t, 3, ic.Count())
	_, ok := ic.CachedImage(req(0))
	assert.False(t, ok, "oldest must go first")

	ic.SetCostLimit(10)
	assert.Equal(t, int64(10), ic.TotalCost())
	assert.Equal(t, 2, ic.Count())
}

func TestImageCache_OnCriticalMemoryPressure(t *testing.T) {
	t.Parallel()

	ic := imagecache.New(imagecache.Options{Logger: quietLogger()})
	for i := 0; i < 10; i++ {
		ic.Store(imagecache.Image{Width: 1, Height: 1}, req(i))
	}

	ic.OnCriticalMemoryPressure()

	assert.Equal(t, 0, ic.Count())
	assert.Equal(t, int64(0), ic.TotalCost())
	for i := 0; i < 10; i++ {
		_, ok := ic.CachedImage(req(i))
		assert.False(t, ok)
	}
}

func TestImageCache_OnBackgroundTransition(t *testing.T) {
	t.Parallel()

	ic := imagecache.New(imagecache.Options{
		Logger:     quietLogger(),
		CostLimit:  1_000,
		CountLimit: 20,
		Cost:       func(imagecache.Image) int { return 10 },
	})
	for i := 0; i < 20; i++ {
		ic.Store(imagecache.Image{}, req(i))
	}

	ic.OnBackgroundTransition()

	// Cost trim to 100 keeps 10 images, count trim to 2 keeps the 2 newest.
	assert.Equal(t, 2, ic.Count())
	assert.Equal(t, int64(20), ic.TotalCost())
	for _, i := range []int{18, 19} {
		_, ok := ic.CachedImage(req(i))
		assert.True(t, ok, "image %d must stay resident", i)
	}
	assert.Equal(t, int64(1_000), ic.CostLimit(), "limits are untouched")
	assert.Equal(t, 20, ic.CountLimit(), "limits are untouched")
}

func TestImageCache_DefaultTTL(t *testing.T) {
	t.Parallel()

	clk := clock.NewMock()
	ic := imagecache.New(imagecache.Options{Logger: quietLogger(), Clock: clk})

	ic.Store(imagecache.Image{}, req(1))
	ic.SetDefaultTTL(time.Minute)
	ic.Store(imagecache.Image{}, req(2))
	clk.Add(time.Minute)

	_, ok := ic.CachedImage(req(1))
	assert.True(t, ok, "stored before the default TTL")
	_, ok = ic.CachedImage(req(2))
	assert.False(t, ok, "stored after the default TTL")
	assert.Equal(t, uint64(1), ic.Stats().Misses)
}

// Lifecycle triggers race with ordinary traffic from many goroutines.
func TestImageCache_ConcurrentLifecycle(t *testing.T) {
	ic := imagecache.New(imagecache.Options{
		Logger:     quietLogger(),
		CostLimit:  5_000,
		CountLimit: 200,
	})

	var g errgroup.Group
	for w := 0; w < 8; w++ {
		w := w // per-iteration copy (go 1.21 loop semantics)
		g.Go(func() error {
			for i := 0; i < 2_000; i++ {
				r := req((w*7919 + i) % 500)
				switch i % 10 {
				case 0:
					ic.RemoveImage(r)
				case 1, 2, 3:
					ic.Store(imagecache.Image{Width: 2, Height: 1 + i%5}, r)
				default:
					ic.CachedImage(r)
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		for i := 0; i < 200; i++ {
			if i%20 == 0 {
				ic.OnCriticalMemoryPressure()
			} else {
				ic.OnBackgroundTransition()
			}
		}
		return nil
	})
	require.NoError(t, g.Wait())

	assert.LessOrEqual(t, ic.Count(), ic.CountLimit())
	assert.LessOrEqual(t, ic.TotalCost(), ic.CostLimit())
}
