package cache

import (
	"sync"
	"sync/atomic"
)

// shard is an independent partition of the cache with its own lock, map,
// and an intrusive doubly linked list (head=MRU, tail=LRU).
type shard[K comparable, V any] struct {
	// ---- guarded by mu ----
	mu      sync.RWMutex
	m       map[K]*node[K, V]
	head    *node[K, V] // MRU
	tail    *node[K, V] // LRU
	len     int
	cost    int64
	cap     int   // per-shard entry limit
	maxCost int64 // per-shard cost limit

	hits   atomic.Uint64
	misses atomic.Uint64
	evicts atomic.Uint64
}

func newShard[K comparable, V any](capacity int, maxCost int64) *shard[K, V] {
	return &shard[K, V]{
		m:       make(map[K]*node[K, V], capacity),
		cap:     capacity,
		maxCost: maxCost,
	}
}

// Get returns the value and promotes the entry to MRU.
// Promotion mutates the list, so a hit takes the write lock.
func (s *shard[K, V]) Get(k K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[k]
	if !ok {
		s.misses.Add(1)
		var zero V
		return zero, false
	}
	s.moveToFront(n)
	s.hits.Add(1)
	return n.val, true
}

// Peek returns the value without touching recency or counters.
func (s *shard[K, V]) Peek(k K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n, ok := s.m[k]; ok {
		return n.val, true
	}
	var zero V
	return zero, false
}

// Set inserts or replaces an entry at MRU and trims the shard to its limits.
// Entries removed to make room are returned so the caller can run
// callbacks outside the lock.
func (s *shard[K, V]) Set(k K, v V, cost int64) []evicted[K, V] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.m[k]; ok {
		s.cost += cost - n.cost
		n.val = v
		n.cost = cost
		s.moveToFront(n)
		return s.enforceLimitsLocked()
	}

	n := &node[K, V]{key: k, val: v, cost: cost}
	s.m[k] = n
	s.insertFront(n)
	return s.enforceLimitsLocked()
}

// Remove deletes an entry by key. Returns true if the entry existed.
func (s *shard[K, V]) Remove(k K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[k]
	if !ok {
		return false
	}
	s.removeNode(n)
	delete(s.m, k)
	return true
}

// size returns the number of resident entries and their total cost.
func (s *shard[K, V]) size() (int, int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.len, s.cost
}

// -------------------- internals (mu held) --------------------

// insertFront inserts n at MRU in O(1).
func (s *shard[K, V]) insertFront(n *node[K, V]) {
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
	s.len++
	s.cost += n.cost
}

// moveToFront promotes n to MRU in O(1).
func (s *shard[K, V]) moveToFront(n *node[K, V]) {
	if n == s.head {
		return
	}
	// detach
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.tail == n {
		s.tail = n.prev
	}
	// insert at head
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
}

// removeNode unlinks n and updates counters in O(1).
func (s *shard[K, V]) removeNode(n *node[K, V]) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.head == n {
		s.head = n.next
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev, n.next = nil, nil
	s.len--
	s.cost -= n.cost
}

// evictTail removes the LRU node and records it.
func (s *shard[K, V]) evictTail(reason EvictReason, out []evicted[K, V]) []evicted[K, V] {
	n := s.tail
	s.removeNode(n)
	delete(s.m, n.key)
	s.evicts.Add(1)
	return append(out, evicted[K, V]{key: n.key, val: n.val, reason: reason})
}

// enforceLimitsLocked evicts from the LRU end until both the count and the
// cost limits are satisfied.
func (s *shard[K, V]) enforceLimitsLocked() []evicted[K, V] {
	var out []evicted[K, V]
	for s.len > s.cap && s.tail != nil {
		out = s.evictTail(EvictCount, out)
	}
	for s.cost > s.maxCost && s.tail != nil {
		out = s.evictTail(EvictCost, out)
	}
	return out
}
