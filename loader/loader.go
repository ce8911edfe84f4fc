package loader

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/IvanBrykalov/lazyfeed/internal/inflight"
)

// Loader resolves keys to decoded resources through the cache, issuing
// at most one fetch per key at a time. It is safe for concurrent use.
type Loader struct {
	opt    Options
	flight inflight.Table[Key, *Resource]
	sem    *semaphore.Weighted
	log    *zap.Logger

	// base parents every fetch; Close cancels it.
	base   context.Context
	cancel context.CancelFunc
	closed atomic.Bool
}

// New constructs a Loader. It panics if Cache or Transport is nil.
func New(opt Options) *Loader {
	if opt.Cache == nil || opt.Transport == nil {
		panic("loader: Cache and Transport are required")
	}
	if opt.Decoder == nil {
		opt.Decoder = ImageDecoder{}
	}
	if opt.Timeout == 0 {
		opt.Timeout = DefaultTimeout
	}
	if opt.MaxConcurrent <= 0 {
		opt.MaxConcurrent = DefaultMaxConcurrent
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Loader{
		opt:    opt,
		sem:    semaphore.NewWeighted(int64(opt.MaxConcurrent)),
		log:    opt.Logger.Named("loader"),
		base:   base,
		cancel: cancel,
	}
}

// Get returns the resource for key, fetching it on a cache miss.
// Concurrent Gets for the same key share one fetch and one outcome.
// Fetch failures are returned as *FetchError; if ctx ends first, ctx.Err()
// is returned and the fetch carries on for the other waiters.
func (l *Loader) Get(ctx context.Context, key Key) (*Resource, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	// fast path
	if r, ok := l.opt.Cache.Get(key); ok {
		return r, nil
	}

	r, joined, err := l.flight.Do(ctx, key, func() (*Resource, error) {
		return l.fetch(key)
	})
	if joined {
		l.opt.Metrics.Joined()
	}
	return r, err
}

// Peek returns the cached resource for key without fetching.
func (l *Loader) Peek(key Key) (*Resource, bool) {
	if l.closed.Load() {
		return nil, false
	}
	return l.opt.Cache.Get(key)
}

// Prefetch warms the cache for keys, at most MaxConcurrent at a time.
// It returns the first FetchError encountered, after all keys settle.
func (l *Loader) Prefetch(ctx context.Context, keys ...Key) error {
	if l.closed.Load() {
		return ErrClosed
	}
	var g errgroup.Group
	g.SetLimit(l.opt.MaxConcurrent)
	for _, k := range keys {
		g.Go(func() error {
			_, err := l.Get(ctx, k)
			return err
		})
	}
	return g.Wait()
}

// InFlight returns the number of keys currently being fetched.
func (l *Loader) InFlight() int { return l.flight.Len() }

// Close cancels running fetches; they settle with a TransportError.
// Later calls return ErrClosed. The cache is left untouched.
func (l *Loader) Close() error {
	if l.closed.CompareAndSwap(false, true) {
		l.cancel()
	}
	return nil
}

// fetch runs once per in-flight request: transport, decode, insert.
func (l *Loader) fetch(key Key) (*Resource, error) {
	l.opt.Metrics.InFlight(l.flight.Len())
	defer func() { l.opt.Metrics.InFlight(l.flight.Len() - 1) }()

	// a request that settled just before this one was created may have
	// filled the cache already; Get has counted the miss
	if r, ok := l.opt.Cache.Peek(key); ok {
		return r, nil
	}

	ctx := l.base
	if l.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opt.Timeout)
		defer cancel()
	}

	start := time.Now()
	r, err := l.fetchDecode(ctx, key)
	dur := time.Since(start)
	l.opt.Metrics.FetchDone(dur, failureKind(err))

	if err != nil {
		l.log.Debug("fetch failed", zap.Stringer("key", key), zap.Duration("took", dur), zap.Error(err))
		return nil, &FetchError{Key: key, Err: err}
	}
	l.opt.Cache.Set(key, r)
	l.log.Debug("fetched", zap.Stringer("key", key), zap.Duration("took", dur),
		zap.Int("width", r.Width), zap.Int("height", r.Height))
	return r, nil
}

func (l *Loader) fetchDecode(ctx context.Context, key Key) (*Resource, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, &TransportError{Key: key, Err: err}
	}
	data, err := l.opt.Transport.Fetch(ctx, key)
	l.sem.Release(1)
	if err != nil {
		var te *TransportError
		if !errors.As(err, &te) {
			err = &TransportError{Key: key, Err: err}
		}
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, &TransportError{Key: key, Err: ctx.Err()}
	}

	r, err := l.opt.Decoder.Decode(key, data)
	if err != nil {
		return nil, &DecodeError{Key: key, Err: err}
	}
	if r == nil {
		return nil, &DecodeError{Key: key, Err: errors.New("decoder returned no resource")}
	}
	r.Key = key
	return r, nil
}
