// Package inflight tracks in-progress operations keyed by K so that
// concurrent callers for the same key share one execution.
package inflight

import (
	"context"
	"sync"
)

// Table coalesces concurrent calls for the same key: the first caller
// creates the entry and starts fn, later callers join it as waiters.
//
// Concurrency notes:
//   - Check-and-create happens under mu, so at most one fn runs per key.
//   - fn runs on its own goroutine, detached from every caller's ctx.
//     A caller whose ctx ends stops waiting; the operation still runs to
//     completion and its result is delivered to the remaining waiters.
//   - Publishing (val, err) happens-before close(done).
//   - The entry is removed exactly once, after the result is published and
//     before done is closed, so a caller arriving after settlement starts a
//     fresh operation instead of observing a stale outcome.
type Table[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*call[V]
}

type call[V any] struct {
	done    chan struct{}
	waiters int // guarded by Table.mu
	val     V
	err     error
}

// Do returns the result of fn for key, running fn only if no call for key
// is in flight. joined reports whether this caller attached to an existing
// call. If ctx ends first, Do returns ctx.Err() for this caller only.
func (t *Table[K, V]) Do(ctx context.Context, key K, fn func() (V, error)) (v V, joined bool, err error) {
	t.mu.Lock()
	if t.m == nil {
		t.m = make(map[K]*call[V])
	}
	c, joined := t.m[key]
	if !joined {
		c = &call[V]{done: make(chan struct{})}
		t.m[key] = c
		go t.run(key, c, fn)
	}
	c.waiters++
	t.mu.Unlock()

	select {
	case <-c.done:
		return c.val, joined, c.err
	case <-ctx.Done():
		t.mu.Lock()
		c.waiters--
		t.mu.Unlock()
		var zero V
		return zero, joined, ctx.Err()
	}
}

func (t *Table[K, V]) run(key K, c *call[V], fn func() (V, error)) {
	v, err := fn()

	t.mu.Lock()
	c.val, c.err = v, err
	delete(t.m, key)
	t.mu.Unlock()

	close(c.done)
}

// Len returns the number of keys with a call in flight.
func (t *Table[K, V]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.m)
}

// Waiters returns how many callers are currently waiting on key
// (0 if nothing is in flight for it).
func (t *Table[K, V]) Waiters(key K) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.m[key]; ok {
		return c.waiters
	}
	return 0
}
