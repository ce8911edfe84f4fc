package cache

import "go.uber.org/zap"

// Defaults applied by New for zero-valued Options fields.
const (
	DefaultCountLimit = 500
	DefaultMaxCost    = 150 << 20 // 150 MiB
)

// EvictReason explains why an entry was removed.
type EvictReason int

const (
	// EvictCount: removed to satisfy the entry count limit.
	EvictCount EvictReason = iota
	// EvictCost: removed to satisfy the total cost limit.
	EvictCost
)

func (r EvictReason) String() string {
	switch r {
	case EvictCost:
		return "cost"
	default:
		return "count"
	}
}

// Metrics exposes cache-level observability hooks.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Size(entries int, cost int64)
}

// Options configures the cache. Zero values are safe; defaults are applied
// in New:
//   - CountLimit == 0 => DefaultCountLimit
//   - MaxCost == 0    => DefaultMaxCost
//   - Shards == 0     => 1
//   - Shards < 0      => util.ReasonableShardCount (2*GOMAXPROCS, pow2)
//   - nil Cost        => every entry costs 1
//   - nil Metrics     => NoopMetrics
//   - nil Logger      => zap.NewNop()
type Options[K comparable, V any] struct {
	// CountLimit is the maximum number of resident entries.
	CountLimit int

	// MaxCost is the maximum sum of entry costs (e.g. bytes).
	MaxCost int64

	// Shards is the number of independently locked partitions. It is rounded
	// up to a power of two and clamped so that no shard gets a zero budget.
	Shards int

	// Cost estimates the memory footprint of v. Results below 1 are
	// clamped to 1.
	Cost func(v V) int64

	// OnEvict is called after the shard lock is released, once per evicted
	// entry. Keep it lightweight; it runs on the inserting goroutine.
	OnEvict func(k K, v V, reason EvictReason)

	Metrics Metrics
	Logger  *zap.Logger
}
