// Package imagecache adapts the generic cache engine to decoded images.
//
// An ImageCache translates a Request (URL plus processing steps) into a
// normalized Key, computes each image's cost with a pluggable CostFunc and
// forwards to the engine. It never stores an explicit TTL; a cache-wide
// DefaultTTL can still be configured.
//
// The cache does not listen to platform events itself. Whatever observes
// memory warnings or app backgrounding calls OnCriticalMemoryPressure or
// OnBackgroundTransition; both are safe to call at any time.
//
//	ic := imagecache.New(imagecache.Options{CountLimit: 500})
//	ic.Store(img, imagecache.Request{URL: "https://example.com/a.png"})
//	img, ok := ic.CachedImage(imagecache.Request{URL: "https://EXAMPLE.com/a.png"})
package imagecache
