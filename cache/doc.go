// Package cache provides the process-wide resource cache: a generic,
// optionally sharded, in-memory store bounded by both an entry count and a
// total cost, with least-recently-used eviction.
//
// Design
//
//   - Storage: each shard keeps a map[K]*node for lookups and an intrusive
//     MRU↔LRU doubly linked list for ordering. All operations are O(1) expected.
//
//   - Limits: CountLimit bounds the number of entries and MaxCost bounds the
//     sum of per-entry costs computed by Options.Cost at insertion time. After
//     every Set the shard evicts from the LRU end until both hold. The entry
//     just inserted sits at the MRU end, so it is only evicted when it is the
//     last one left and still too expensive on its own.
//
//   - Shards: one shard by default, which makes eviction order exactly
//     global LRU. With more shards both limits are split so that the shard
//     budgets sum to the configured totals.
//
//   - Construction: a Cache is an explicitly constructed value handed to its
//     users; there is no package-level instance.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Size signals.
//     NoopMetrics is the default; metrics/prom exports them to Prometheus.
//
// Basic usage
//
//	c := cache.New[string, []byte](cache.Options[string, []byte]{
//	    CountLimit: 500,
//	    MaxCost:    150 << 20,
//	    Cost:       func(b []byte) int64 { return int64(len(b)) },
//	})
//	c.Set("https://example.com/a.png", data)
//	if v, ok := c.Get("https://example.com/a.png"); ok {
//	    _ = v
//	}
//	c.Invalidate("https://example.com/a.png")
package cache
