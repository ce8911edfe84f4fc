package cache

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/lazyfeed/internal/util"
)

// cache is a sharded, cost-bounded LRU store.
// All methods are safe for concurrent use by multiple goroutines.
type cache[K comparable, V any] struct {
	shards []*shard[K, V]
	hash   func(K) uint64
	closed atomic.Bool

	opt Options[K, V]
}

// New constructs a cache with the provided Options.
// It panics on a negative CountLimit or MaxCost.
func New[K comparable, V any](opt Options[K, V]) Cache[K, V] {
	if opt.CountLimit < 0 || opt.MaxCost < 0 {
		panic("cache: CountLimit and MaxCost must be >= 0")
	}
	if opt.CountLimit == 0 {
		opt.CountLimit = DefaultCountLimit
	}
	if opt.MaxCost == 0 {
		opt.MaxCost = DefaultMaxCost
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}

	sh := 1
	switch {
	case opt.Shards < 0:
		sh = util.ReasonableShardCount()
	case opt.Shards > 1:
		sh = int(util.NextPow2(uint64(opt.Shards)))
	}
	// every shard needs at least one slot and one unit of cost
	if sh > opt.CountLimit {
		sh = opt.CountLimit
	}
	if int64(sh) > opt.MaxCost {
		sh = int(opt.MaxCost)
	}

	counts := util.SplitBudget(int64(opt.CountLimit), sh)
	costs := util.SplitBudget(opt.MaxCost, sh)
	cs := make([]*shard[K, V], sh)
	for i := range cs {
		cs[i] = newShard[K, V](int(counts[i]), costs[i])
	}

	return &cache[K, V]{
		shards: cs,
		hash:   util.Hash64[K],
		opt:    opt,
	}
}

// Get returns the value for k and a presence flag; a hit promotes k to MRU.
func (c *cache[K, V]) Get(k K) (V, bool) {
	if c.closed.Load() {
		var zero V
		return zero, false
	}
	v, ok := c.getShard(k).Get(k)
	if ok {
		c.opt.Metrics.Hit()
	} else {
		c.opt.Metrics.Miss()
	}
	return v, ok
}

// Peek returns the value for k without promoting it or counting a hit
// or miss.
func (c *cache[K, V]) Peek(k K) (V, bool) {
	if c.closed.Load() {
		var zero V
		return zero, false
	}
	return c.getShard(k).Peek(k)
}

// Set inserts or replaces k→v and trims to the configured limits.
func (c *cache[K, V]) Set(k K, v V) {
	if c.closed.Load() {
		return
	}
	cost := c.costOf(v)
	gone := c.getShard(k).Set(k, v, cost)

	for _, e := range gone {
		c.opt.Metrics.Evict(e.reason)
		if e.key == k {
			c.opt.Logger.Debug("entry exceeds cost budget on its own",
				zap.Any("key", k), zap.Int64("cost", cost))
		}
		if cb := c.opt.OnEvict; cb != nil {
			cb(e.key, e.val, e.reason)
		}
	}
	c.opt.Metrics.Size(c.Len(), c.Cost())
}

// Invalidate deletes k if present and returns true on success.
func (c *cache[K, V]) Invalidate(k K) bool {
	if c.closed.Load() {
		return false
	}
	ok := c.getShard(k).Remove(k)
	if ok {
		c.opt.Metrics.Size(c.Len(), c.Cost())
	}
	return ok
}

// Len returns the total number of resident entries across all shards.
func (c *cache[K, V]) Len() int {
	total := 0
	for _, s := range c.shards {
		n, _ := s.size()
		total += n
	}
	return total
}

// Cost returns the total resident cost across all shards.
func (c *cache[K, V]) Cost() int64 {
	var total int64
	for _, s := range c.shards {
		_, cost := s.size()
		total += cost
	}
	return total
}

// Stats aggregates shard counters. Shards are read one at a time, so the
// snapshot is not atomic across shards.
func (c *cache[K, V]) Stats() Stats {
	var st Stats
	for _, s := range c.shards {
		n, cost := s.size()
		st.Entries += n
		st.Cost += cost
		st.Hits += s.hits.Load()
		st.Misses += s.misses.Load()
		st.Evictions += s.evicts.Load()
	}
	return st
}

// Close marks the cache as closed. Future operations are ignored.
func (c *cache[K, V]) Close() error {
	c.closed.Store(true)
	return nil
}

// ---- helpers ----

func (c *cache[K, V]) getShard(k K) *shard[K, V] {
	if len(c.shards) == 1 {
		return c.shards[0]
	}
	return c.shards[util.ShardIndex(c.hash(k), len(c.shards))]
}

// costOf computes the per-entry cost, never below 1.
func (c *cache[K, V]) costOf(v V) int64 {
	if c.opt.Cost == nil {
		return 1
	}
	if iv := c.opt.Cost(v); iv > 1 {
		return iv
	}
	return 1
}
