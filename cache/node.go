package cache

// node is an intrusive doubly linked list element owned by a shard.
type node[K comparable, V any] struct {
	key K
	val V

	// head is MRU, tail is LRU.
	prev *node[K, V]
	next *node[K, V]

	// cost is computed once at insertion and never changes while resident.
	cost int64
}

// evicted is an entry removed under the shard lock whose OnEvict callback
// still has to run.
type evicted[K comparable, V any] struct {
	key    K
	val    V
	reason EvictReason
}
