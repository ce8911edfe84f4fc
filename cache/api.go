package cache

// Cache is a bounded, cost-weighted in-memory key/value store.
// All methods are safe for concurrent use by multiple goroutines.
//
// Every operation is O(1) expected: a map lookup plus constant-time list
// adjustments under a shard lock. Eviction is capacity-driven only; entries
// never expire on their own.
type Cache[K comparable, V any] interface {
	// Get returns the value for k and whether it was present.
	// A hit promotes the entry to most-recently-used.
	Get(k K) (V, bool)

	// Peek is Get without promotion and without touching Stats or Metrics.
	Peek(k K) (V, bool)

	// Set inserts or replaces k→v, computes its cost via Options.Cost and
	// then evicts least-recently-used entries until both the count and the
	// cost limits hold. An entry whose cost alone exceeds the shard budget
	// is evicted as well, leaving the cache valid.
	Set(k K, v V)

	// Invalidate removes k if present and reports whether it was.
	// Invalidation is not counted as an eviction.
	Invalidate(k K) bool

	// Len returns the number of resident entries across all shards.
	Len() int

	// Cost returns the total resident cost across all shards.
	Cost() int64

	// Stats returns a point-in-time snapshot of counters.
	Stats() Stats

	// Close marks the cache closed. Later reads miss and writes are dropped.
	Close() error
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Entries   int
	Cost      int64
}
