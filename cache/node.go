package cache

// node is an intrusive doubly linked list element owned by the cache.
// It stores the key/value alongside list links and the TTL/cost metadata.
type node[K comparable, V any] struct {
	key K
	val V

	// Intrusive list links: head is MRU, tail is LRU.
	prev *node[K, V]
	next *node[K, V]

	// Absolute expiration deadline in UnixNano.
	// Zero means "no TTL".
	exp int64

	// Logical weight counted against CostLimit. Never negative.
	cost int64
}

// expired reports whether the deadline has been reached at now.
func (n *node[K, V]) expired(now int64) bool {
	return n.exp != 0 && now >= n.exp
}
