package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// gatedSource numbers items "p<page>-<i>" and blocks NextPage until the
// test releases it. FirstPage never blocks.
type gatedSource struct {
	firstSize int
	pageSize  int

	mu       sync.Mutex
	calls    []int
	gate     chan struct{}
	first    chan struct{} // blocks FirstPage when non-nil
	fail     error
	firstErr error
	refresh  int
}

func (s *gatedSource) FirstPage(ctx context.Context) ([]Item, error) {
	s.mu.Lock()
	s.refresh++
	n, err, first := s.refresh, s.firstErr, s.first
	s.mu.Unlock()
	if first != nil {
		select {
		case <-first:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return makeItems(fmt.Sprintf("r%d", n), s.firstSize), nil
}

func (s *gatedSource) NextPage(ctx context.Context, page int) ([]Item, error) {
	s.mu.Lock()
	s.calls = append(s.calls, page)
	gate, fail := s.gate, s.fail
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail != nil {
		return nil, fail
	}
	return makeItems(fmt.Sprintf("p%d", page), s.pageSize), nil
}

func (s *gatedSource) nextCalls() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.calls...)
}

func makeItems(prefix string, n int) []Item {
	out := make([]Item, n)
	for i := range out {
		out[i] = Item{ID: fmt.Sprintf("%s-%d", prefix, i), Title: prefix}
	}
	return out
}

func ids(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func newLoaded(t *testing.T, src *gatedSource, threshold int) *Controller {
	t.Helper()
	c := New(Options{Source: src, Threshold: threshold})
	t.Cleanup(func() { _ = c.Close() })
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestController_Threshold(t *testing.T) {
	t.Parallel()

	src := &gatedSource{firstSize: 20, pageSize: 5}
	c := newLoaded(t, src, 6)

	if c.MaybeLoadMore(12) {
		t.Fatal("index 12 of 20 must not trigger with threshold 6")
	}
	if !c.MaybeLoadMore(13) {
		t.Fatal("index 13 of 20 must trigger with threshold 6")
	}
	c.Wait()

	st := c.Snapshot()
	if len(st.Items) != 25 || st.Page != 2 || st.Loading {
		t.Fatalf("unexpected state: items=%d page=%d loading=%v", len(st.Items), st.Page, st.Loading)
	}
}

func TestController_IgnoresOutOfRangeIndex(t *testing.T) {
	t.Parallel()

	src := &gatedSource{firstSize: 3, pageSize: 3}
	c := New(Options{Source: src})
	t.Cleanup(func() { _ = c.Close() })

	if c.MaybeLoadMore(0) {
		t.Fatal("empty feed must not paginate")
	}
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.MaybeLoadMore(-1) || c.MaybeLoadMore(3) {
		t.Fatal("indexes outside the sequence must be ignored")
	}
}

// Ten triggers while a page is outstanding start exactly one request and
// append exactly one page, in order.
func TestController_SingleFlight(t *testing.T) {
	t.Parallel()

	src := &gatedSource{firstSize: 10, pageSize: 4, gate: make(chan struct{})}
	c := newLoaded(t, src, 6)

	started := 0
	for i := 0; i < 10; i++ {
		if c.MaybeLoadMore(9) {
			started++
		}
		if !c.Snapshot().Loading {
			t.Fatal("Loading must stay set while the page is outstanding")
		}
	}
	if started != 1 {
		t.Fatalf("want one load started, got %d", started)
	}

	close(src.gate)
	c.Wait()

	if got := src.nextCalls(); len(got) != 1 || got[0] != 2 {
		t.Fatalf("want a single NextPage(2), got %v", got)
	}
	st := c.Snapshot()
	want := append(ids(makeItems("r1", 10)), ids(makeItems("p2", 4))...)
	if fmt.Sprint(ids(st.Items)) != fmt.Sprint(want) {
		t.Fatalf("order mismatch:\n got %v\nwant %v", ids(st.Items), want)
	}
}

// Pages are appended strictly in arrival order without touching earlier items.
func TestController_AppendOnly(t *testing.T) {
	t.Parallel()

	src := &gatedSource{firstSize: 2, pageSize: 2}
	c := newLoaded(t, src, 6)

	var prev []string
	for page := 2; page <= 5; page++ {
		before := c.Snapshot()
		if !c.MaybeLoadMore(len(before.Items) - 1) {
			t.Fatalf("page %d: trigger refused", page)
		}
		c.Wait()
		st := c.Snapshot()
		if st.Page != page {
			t.Fatalf("want page %d, got %d", page, st.Page)
		}
		got := ids(st.Items)
		if fmt.Sprint(got[:len(prev)]) != fmt.Sprint(prev) {
			t.Fatalf("page %d rewrote earlier items", page)
		}
		prev = got
	}
	if len(prev) != 10 {
		t.Fatalf("want 10 items, got %d", len(prev))
	}
}

// Refresh resets the sequence and the counter even while a load-more is
// in flight; the late page is dropped and the last visible index is
// re-checked against the refreshed items.
func TestController_RefreshDuringLoad(t *testing.T) {
	t.Parallel()

	src := &gatedSource{firstSize: 8, pageSize: 3, gate: make(chan struct{})}
	c := newLoaded(t, src, 6)

	if !c.MaybeLoadMore(7) {
		t.Fatal("trigger refused")
	}
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	st := c.Snapshot()
	if st.Page != 1 || fmt.Sprint(ids(st.Items)) != fmt.Sprint(ids(makeItems("r2", 8))) {
		t.Fatalf("refresh must replace items, got page=%d %v", st.Page, ids(st.Items))
	}
	if !st.Loading {
		t.Fatal("the old load is still outstanding")
	}

	// refused: the stale load still holds Loading
	if c.MaybeLoadMore(7) {
		t.Fatal("trigger must wait for the outstanding load")
	}

	close(src.gate)
	c.Wait()
	st = c.Snapshot()
	if st.Loading {
		t.Fatal("Loading must be released")
	}
	// the stale p2 was dropped and page 2 requested again for the new sequence
	want := append(ids(makeItems("r2", 8)), ids(makeItems("p2", 3))...)
	if st.Page != 2 || fmt.Sprint(ids(st.Items)) != fmt.Sprint(want) {
		t.Fatalf("want refreshed items plus page 2, got page=%d %v", st.Page, ids(st.Items))
	}
	if got := src.nextCalls(); fmt.Sprint(got) != "[2 2]" {
		t.Fatalf("want page 2 requested twice, got %v", got)
	}
}

// Without a visible index near the end, the dropped page is not retried.
func TestController_StalePageNoRetrigger(t *testing.T) {
	t.Parallel()

	src := &gatedSource{firstSize: 20, pageSize: 3, gate: make(chan struct{})}
	c := newLoaded(t, src, 6)

	if !c.MaybeLoadMore(19) {
		t.Fatal("trigger refused")
	}
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	c.MaybeLoadMore(2) // user scrolled back to the top
	close(src.gate)
	c.Wait()

	if st := c.Snapshot(); st.Loading || st.Page != 1 || len(st.Items) != 20 {
		t.Fatalf("unexpected state: page=%d items=%d loading=%v", st.Page, len(st.Items), st.Loading)
	}
	if got := src.nextCalls(); fmt.Sprint(got) != "[2]" {
		t.Fatalf("want a single page request, got %v", got)
	}
}

func TestController_PageFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("backend unavailable")
	src := &gatedSource{firstSize: 5, pageSize: 5, fail: boom}
	c := newLoaded(t, src, 6)

	if !c.MaybeLoadMore(4) {
		t.Fatal("trigger refused")
	}
	c.Wait()

	st := c.Snapshot()
	var pe *PageError
	if !errors.As(st.Err, &pe) || pe.Page != 2 || !errors.Is(st.Err, boom) {
		t.Fatalf("want PageError for page 2, got %v", st.Err)
	}
	if st.Loading || st.Page != 1 || len(st.Items) != 5 {
		t.Fatalf("failure must keep content and release Loading: %+v", st)
	}

	src.mu.Lock()
	src.fail = nil
	src.mu.Unlock()
	if !c.Retry() {
		t.Fatal("retry refused")
	}
	c.Wait()
	if st := c.Snapshot(); st.Err != nil || st.Page != 2 || len(st.Items) != 10 {
		t.Fatalf("retry must recover: %+v", st)
	}
}

func TestController_RefreshFailureKeepsItems(t *testing.T) {
	t.Parallel()

	src := &gatedSource{firstSize: 4, pageSize: 4}
	c := newLoaded(t, src, 6)

	src.mu.Lock()
	src.firstErr = errors.New("offline")
	src.mu.Unlock()

	if err := c.Refresh(context.Background()); err == nil {
		t.Fatal("want refresh error")
	}
	st := c.Snapshot()
	if len(st.Items) != 4 || st.Refreshing || st.Err == nil {
		t.Fatalf("unexpected state after failed refresh: %+v", st)
	}
}

func TestController_Exhausted(t *testing.T) {
	t.Parallel()

	src := &gatedSource{firstSize: 3, pageSize: 0}
	c := newLoaded(t, src, 6)

	if !c.MaybeLoadMore(2) {
		t.Fatal("trigger refused")
	}
	c.Wait()
	if st := c.Snapshot(); !st.Exhausted {
		t.Fatal("empty page must mark the feed exhausted")
	}
	if c.MaybeLoadMore(2) {
		t.Fatal("exhausted feed must not paginate on scroll")
	}
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.Snapshot().Exhausted {
		t.Fatal("refresh must clear Exhausted")
	}
}

func TestController_Subscribe(t *testing.T) {
	t.Parallel()

	src := &gatedSource{firstSize: 3, pageSize: 2}
	c := New(Options{Source: src})

	ch, unsubscribe := c.Subscribe()
	if st := <-ch; len(st.Items) != 0 || st.Page != 1 {
		t.Fatalf("first state must be the current one: %+v", st)
	}

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-ch:
			if len(st.Items) == 3 && !st.Refreshing {
				unsubscribe()
				unsubscribe()
				if _, ok := <-ch; ok {
					t.Fatal("channel must be closed after unsubscribe")
				}
				_ = c.Close()
				return
			}
		case <-deadline:
			t.Fatal("refreshed state not published")
		}
	}
}

func TestController_Close(t *testing.T) {
	t.Parallel()

	src := &gatedSource{firstSize: 5, pageSize: 5, gate: make(chan struct{})}
	c := New(Options{Source: src})
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	ch, _ := c.Subscribe()
	c.MaybeLoadMore(4)

	_ = c.Close() // cancels the gated page request

	if st := c.Snapshot(); st.Loading || len(st.Items) != 5 {
		t.Fatalf("unexpected state after Close: %+v", st)
	}
	if err := c.Refresh(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("want ErrClosed, got %v", err)
	}
	for range ch {
	}
}

// A refresh whose caller gave up still runs; Wait covers it.
func TestController_WaitCoversAbandonedRefresh(t *testing.T) {
	t.Parallel()

	src := &gatedSource{firstSize: 3, first: make(chan struct{})}
	c := New(Options{Source: src})
	t.Cleanup(func() { _ = c.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Refresh(ctx) }()
	waitUntil(t, func() bool { return c.Snapshot().Refreshing })
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}

	waited := make(chan struct{})
	go func() {
		c.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		t.Fatal("Wait returned while the refresh was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(src.first)
	<-waited
	if st := c.Snapshot(); st.Refreshing || len(st.Items) != 3 {
		t.Fatalf("refresh must have settled: refreshing=%v items=%d", st.Refreshing, len(st.Items))
	}
}

// Close waits for an abandoned refresh; nothing changes afterwards.
func TestController_CloseWaitsForAbandonedRefresh(t *testing.T) {
	t.Parallel()

	src := &gatedSource{firstSize: 3, first: make(chan struct{})}
	c := New(Options{Source: src})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Refresh(ctx) }()
	waitUntil(t, func() bool { return c.Snapshot().Refreshing })
	cancel()
	<-errc

	_ = c.Close() // cancels the source request and waits for it
	before := c.Snapshot()
	if before.Refreshing {
		t.Fatal("Close returned before the refresh settled")
	}
	close(src.first)
	time.Sleep(20 * time.Millisecond)
	if after := c.Snapshot(); len(after.Items) != len(before.Items) || after.Refreshing {
		t.Fatalf("state changed after Close: before=%d after=%d", len(before.Items), len(after.Items))
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}
