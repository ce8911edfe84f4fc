// Package binding ties a consumer's asynchronous resource load to the key
// the consumer currently displays, so that a result arriving after the
// consumer moved on is dropped instead of applied.
package binding

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/lazyfeed/loader"
)

// State is the per-consumer load state.
type State int

const (
	Empty State = iota
	Loading
	Loaded
	Failed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "empty"
	}
}

// Snapshot is what a consumer should display.
type Snapshot struct {
	Subject  loader.Key
	State    State
	Resource *loader.Resource // set when State == Loaded
	Err      error            // set when State == Failed
}

// Loader is the part of *loader.Loader a Binding needs.
type Loader interface {
	Get(ctx context.Context, key loader.Key) (*loader.Resource, error)
	Peek(key loader.Key) (*loader.Resource, bool)
}

// Options configures a Binding. Loader is required.
type Options struct {
	Loader Loader

	// OnChange receives every applied state change, in order. It runs with
	// the binding locked: it may call Snapshot and Subject but must not call
	// Bind or Reset.
	OnChange func(Snapshot)

	Logger *zap.Logger
}

// Binding is the load state of one consumer (e.g. one recycled view).
// It is safe for concurrent use.
type Binding struct {
	opt Options
	log *zap.Logger

	mu     sync.Mutex
	gen    uint64             // bumped on every Bind/Reset that changes the subject
	cancel context.CancelFunc // stops waiting on the previous subject
	snap   atomic.Pointer[Snapshot]
	wg     sync.WaitGroup
}

// New constructs a Binding in the Empty state. It panics on a nil Loader.
func New(opt Options) *Binding {
	if opt.Loader == nil {
		panic("binding: Loader is required")
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	b := &Binding{opt: opt, log: opt.Logger.Named("binding")}
	b.snap.Store(&Snapshot{})
	return b
}

// Bind makes key the consumer's subject and starts loading it.
//
// Binding the key already bound is a no-op unless the previous attempt
// failed or was reset, in which case it loads again. A cached resource is
// applied synchronously. Otherwise the state becomes Loading and the
// outcome is applied later, but only if key is still the subject then.
// The underlying fetch is never cancelled by rebinding; only waiting for it
// stops.
func (b *Binding) Bind(ctx context.Context, key loader.Key) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := b.snap.Load()
	if cur.Subject == key && (cur.State == Loading || cur.State == Loaded) {
		return
	}
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}

	if r, ok := b.opt.Loader.Peek(key); ok {
		b.gen++
		b.applyLocked(Snapshot{Subject: key, State: Loaded, Resource: r})
		return
	}

	b.gen++
	gen := b.gen
	wctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.applyLocked(Snapshot{Subject: key, State: Loading})

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer cancel()
		r, err := b.opt.Loader.Get(wctx, key)
		b.settle(gen, key, r, err)
	}()
}

// Reset returns the consumer to Empty; a pending result is discarded.
func (b *Binding) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.gen++
	if b.snap.Load().State != Empty {
		b.applyLocked(Snapshot{})
	}
}

// Subject returns the key currently bound ("" when Empty).
func (b *Binding) Subject() loader.Key { return b.snap.Load().Subject }

// Snapshot returns the current display state.
func (b *Binding) Snapshot() Snapshot { return *b.snap.Load() }

// Wait blocks until every load started by Bind has settled.
func (b *Binding) Wait() { b.wg.Wait() }

// settle applies a load outcome if the bind that started it is still the
// current one. Comparing generations rather than keys also rejects a result
// from an earlier bind of the same key (A, B, A again).
func (b *Binding) settle(gen uint64, key loader.Key, r *loader.Resource, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := b.snap.Load()
	if gen != b.gen || cur.Subject != key {
		b.log.Debug("stale result dropped", zap.Stringer("key", key), zap.Stringer("subject", cur.Subject))
		return
	}
	if err != nil {
		b.applyLocked(Snapshot{Subject: key, State: Failed, Err: err})
		return
	}
	b.applyLocked(Snapshot{Subject: key, State: Loaded, Resource: r})
}

func (b *Binding) applyLocked(s Snapshot) {
	b.snap.Store(&s)
	if b.opt.OnChange != nil {
		b.opt.OnChange(s)
	}
}
