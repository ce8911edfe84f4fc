package feed

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/lazyfeed/internal/inflight"
)

// DefaultThreshold is how close to the end an appearing item has to be
// before the next page is requested.
const DefaultThreshold = 6

// ErrClosed is returned by Refresh after Close.
var ErrClosed = errors.New("feed: closed")

// Metrics exposes feed-level observability hooks.
type Metrics interface {
	PageLoaded(page, items int, d time.Duration)
	PageFailed(page int)
	Loading(active bool)
}

// NoopMetrics is the default Metrics implementation; it does nothing.
type NoopMetrics struct{}

func (NoopMetrics) PageLoaded(int, int, time.Duration) {}
func (NoopMetrics) PageFailed(int)                     {}
func (NoopMetrics) Loading(bool)                       {}

// Options configures a Controller. Source is required.
//   - Threshold <= 0 => DefaultThreshold
//   - Timeout <= 0   => no per-page timeout
//   - nil Metrics    => NoopMetrics
//   - nil Logger     => zap.NewNop()
type Options struct {
	Source    PageSource
	Threshold int
	Timeout   time.Duration
	Metrics   Metrics
	Logger    *zap.Logger
}

// Controller owns the state of one feed. It is safe for concurrent use;
// separate Controllers share nothing.
type Controller struct {
	opt Options
	log *zap.Logger

	mu    sync.Mutex
	st    State
	gen   uint64 // bumped by every applied refresh
	subs  map[int]chan State
	subID int
	seen  int // last index passed to MaybeLoadMore, -1 before any

	refreshes inflight.Table[struct{}, []Item]
	wg        sync.WaitGroup
	base      context.Context
	cancel    context.CancelFunc
	closed    bool
}

// New constructs an empty Controller at page 1. Call Refresh to load the
// first page. It panics on a nil Source.
func New(opt Options) *Controller {
	if opt.Source == nil {
		panic("feed: Source is required")
	}
	if opt.Threshold <= 0 {
		opt.Threshold = DefaultThreshold
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Controller{
		opt:    opt,
		log:    opt.Logger.Named("feed"),
		st:     State{Page: 1},
		seen:   -1,
		subs:   make(map[int]chan State),
		base:   base,
		cancel: cancel,
	}
}

// MaybeLoadMore is called whenever the item at index becomes visible.
// It starts loading the next page when index is within Threshold items of
// the end (index >= len-Threshold-1) and nothing is loading or refreshing.
// It reports whether a load was started; calling it on every visibility
// event is safe.
//
// A load-more that was overtaken by Refresh still holds Loading until its
// page is dropped; the last index seen is then re-checked against the
// refreshed items, so a trigger refused in between is not lost.
func (c *Controller) MaybeLoadMore(index int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seen = index
	if !c.nearEndLocked(index) {
		return false
	}
	return c.startLoadLocked()
}

func (c *Controller) nearEndLocked(index int) bool {
	n := len(c.st.Items)
	if index < 0 || index >= n || index < n-c.opt.Threshold-1 {
		return false
	}
	return !c.st.Exhausted
}

// Retry requests the next page regardless of the visible index, e.g. from
// a "couldn't load more" affordance. It is a no-op while a load or
// refresh is running.
func (c *Controller) Retry() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLoadLocked()
}

func (c *Controller) startLoadLocked() bool {
	if c.closed || c.st.Loading || c.st.Refreshing {
		return false
	}
	c.st.Loading = true
	next := c.st.Page + 1
	gen := c.gen
	c.opt.Metrics.Loading(true)
	c.publishLocked()

	c.wg.Add(1)
	go c.loadPage(gen, next)
	return true
}

func (c *Controller) loadPage(gen uint64, page int) {
	defer c.wg.Done()

	ctx, cancel := c.pageContext()
	defer cancel()

	start := time.Now()
	items, err := c.opt.Source.NextPage(ctx, page)
	dur := time.Since(start)

	c.mu.Lock()
	defer c.mu.Unlock()

	// Loading is released on every path
	c.st.Loading = false
	c.opt.Metrics.Loading(false)

	switch {
	case gen != c.gen:
		c.log.Debug("page dropped after refresh", zap.Int("page", page))
		if c.nearEndLocked(c.seen) && c.startLoadLocked() {
			return // startLoadLocked published
		}
	case err != nil:
		c.st.Err = &PageError{Page: page, Err: err}
		c.opt.Metrics.PageFailed(page)
		c.log.Warn("load more failed", zap.Int("page", page), zap.Error(err))
	default:
		c.st.Items = append(c.st.Items, items...)
		c.st.Page = page
		c.st.Exhausted = len(items) == 0
		c.st.Err = nil
		c.opt.Metrics.PageLoaded(page, len(items), dur)
		c.log.Info("page loaded", zap.Int("page", page), zap.Int("items", len(items)),
			zap.Int("total", len(c.st.Items)), zap.Duration("took", dur))
	}
	c.publishLocked()
}

// Refresh replaces the whole sequence with a fresh first page and resets
// the page counter to 1. It runs whether or not a load-more is in flight;
// concurrent Refresh calls share one source request. On failure the
// current items are kept and the error is returned and recorded in State.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	// one slot for this caller, one for the refresh it may start; the
	// refresh outlives a caller whose ctx ends first
	c.wg.Add(2)
	c.mu.Unlock()
	defer c.wg.Done()

	_, joined, err := c.refreshes.Do(ctx, struct{}{}, func() ([]Item, error) {
		defer c.wg.Done()
		return c.refresh()
	})
	if joined {
		c.wg.Done()
	}
	return err
}

func (c *Controller) refresh() ([]Item, error) {
	c.mu.Lock()
	c.st.Refreshing = true
	c.publishLocked()
	c.mu.Unlock()

	ctx, cancel := c.pageContext()
	defer cancel()

	start := time.Now()
	items, err := c.opt.Source.FirstPage(ctx)
	dur := time.Since(start)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.st.Refreshing = false
	if err != nil {
		c.st.Err = &PageError{Page: 1, Err: err}
		c.opt.Metrics.PageFailed(1)
		c.log.Warn("refresh failed", zap.Error(err))
		c.publishLocked()
		return nil, c.st.Err
	}

	c.gen++
	c.st.Items = slices.Clone(items)
	c.st.Page = 1
	c.st.Exhausted = len(items) == 0
	c.st.Err = nil
	c.opt.Metrics.PageLoaded(1, len(items), dur)
	c.log.Info("feed refreshed", zap.Int("items", len(items)), zap.Duration("took", dur))
	c.publishLocked()
	return items, nil
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.clone()
}

// Subscribe returns a channel receiving the latest State after every
// change, starting with the current one. Slow readers only miss
// intermediate states. The returned func unsubscribes and closes the
// channel.
func (c *Controller) Subscribe() (<-chan State, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan State, 1)
	ch <- c.st.clone()
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.subID
	c.subID++
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if _, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(ch)
			}
		})
	}
}

// Wait blocks until in-flight page loads and refreshes have settled.
func (c *Controller) Wait() { c.wg.Wait() }

// Close cancels in-flight page requests, waits for them and closes all
// subscriber channels. Loaded items stay readable through Snapshot.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.cancel()
	c.mu.Unlock()

	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	return nil
}

// publishLocked hands the current state to every subscriber, replacing an
// unread older state.
func (c *Controller) publishLocked() {
	s := c.st.clone()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

func (c *Controller) pageContext() (context.Context, context.CancelFunc) {
	if c.opt.Timeout > 0 {
		return context.WithTimeout(c.base, c.opt.Timeout)
	}
	return context.WithCancel(c.base)
}
