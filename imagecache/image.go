package imagecache

import (
	"net/url"
	"strings"
)

// Image is a decoded image ready for display.
type Image struct {
	// Data holds the decoded pixels or, when dimensions are unknown, the
	// encoded payload.
	Data   []byte
	Width  int
	Height int

	// IsPreview marks a progressive/low-quality rendition.
	IsPreview bool
}

// Request identifies an image together with the processing applied to it.
type Request struct {
	URL string
	// Processors are identifiers of the transformations applied in order
	// (e.g. "resize:200x200", "blur:3"). Order is significant.
	Processors []string
	Thumbnail  bool
}

// Key is the normalized engine key derived from a Request.
type Key string

// CacheKey normalizes the request: scheme and host are lowercased, the
// fragment is dropped, blank processor identifiers are skipped.
// Requests that render the same pixels map to the same key, and distinct
// requests never share one: the URL and each processor are query-escaped,
// so the '|' and ',' separators cannot occur inside a part.
func (r Request) CacheKey() Key {
	var b strings.Builder
	b.WriteString(url.QueryEscape(normalizeURL(r.URL)))

	first := true
	for _, p := range r.Processors {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if first {
			b.WriteString("|p=")
			first = false
		} else {
			b.WriteByte(',')
		}
		b.WriteString(url.QueryEscape(p))
	}
	if r.Thumbnail {
		b.WriteString("|thumb")
	}
	return Key(b.String())
}

func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// CostFunc reports the weight of an image counted against the cost limit.
type CostFunc func(Image) int

// DefaultCost estimates resident bytes: 4 bytes per pixel when dimensions
// are known, otherwise the payload length.
func DefaultCost(img Image) int {
	if img.Width > 0 && img.Height > 0 {
		return img.Width * img.Height * 4
	}
	return len(img.Data)
}
