// Package prom exports cache, loader and feed metrics to Prometheus.
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/lazyfeed/cache"
	"github.com/IvanBrykalov/lazyfeed/feed"
	"github.com/IvanBrykalov/lazyfeed/loader"
)

// CacheAdapter implements cache.Metrics.
type CacheAdapter struct {
	hits     prometheus.Counter
	misses   prometheus.Counter
	evicts   *prometheus.CounterVec
	sizeEnt  prometheus.Gauge
	sizeCost prometheus.Gauge
}

// NewCache registers resource cache metrics under ns_sub_*.
// A nil reg means prometheus.DefaultRegisterer.
func NewCache(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *CacheAdapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &CacheAdapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, ConstLabels: constLabels,
			Name: "hits_total",
			Help: "Resource cache hits",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, ConstLabels: constLabels,
			Name: "misses_total",
			Help: "Resource cache misses",
		}),
		evicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, ConstLabels: constLabels,
			Name: "evictions_total",
			Help: "Resource cache evictions by limit",
		}, []string{"reason"}),
		sizeEnt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, ConstLabels: constLabels,
			Name: "size_entries",
			Help: "Number of resident resources",
		}),
		sizeCost: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, ConstLabels: constLabels,
			Name: "size_cost_bytes",
			Help: "Estimated memory held by resident resources",
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.evicts, a.sizeEnt, a.sizeCost)
	return a
}

func (a *CacheAdapter) Hit()  { a.hits.Inc() }
func (a *CacheAdapter) Miss() { a.misses.Inc() }

// Evict counts an eviction labelled "count" or "cost".
func (a *CacheAdapter) Evict(r cache.EvictReason) { a.evicts.WithLabelValues(r.String()).Inc() }

// Size updates the resident entries and cost gauges.
func (a *CacheAdapter) Size(entries int, cost int64) {
	a.sizeEnt.Set(float64(entries))
	a.sizeCost.Set(float64(cost))
}

// LoaderAdapter implements loader.Metrics.
type LoaderAdapter struct {
	fetches  *prometheus.CounterVec
	duration prometheus.Histogram
	joined   prometheus.Counter
	inflight prometheus.Gauge
}

// NewLoader registers fetch metrics under ns_sub_*.
func NewLoader(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *LoaderAdapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &LoaderAdapter{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, ConstLabels: constLabels,
			Name: "fetches_total",
			Help: "Settled resource fetches by outcome",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: sub, ConstLabels: constLabels,
			Name:    "fetch_duration_seconds",
			Help:    "Fetch plus decode latency",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		joined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, ConstLabels: constLabels,
			Name: "coalesced_total",
			Help: "Requests that joined an in-flight fetch",
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, ConstLabels: constLabels,
			Name: "in_flight",
			Help: "Keys currently being fetched",
		}),
	}
	reg.MustRegister(a.fetches, a.duration, a.joined, a.inflight)
	return a
}

// FetchDone records a settled fetch; kind "" is counted as "ok".
func (a *LoaderAdapter) FetchDone(d time.Duration, kind string) {
	if kind == "" {
		kind = "ok"
	}
	a.fetches.WithLabelValues(kind).Inc()
	a.duration.Observe(d.Seconds())
}

func (a *LoaderAdapter) Joined()        { a.joined.Inc() }
func (a *LoaderAdapter) InFlight(n int) { a.inflight.Set(float64(n)) }

// FeedAdapter implements feed.Metrics.
type FeedAdapter struct {
	pages    prometheus.Counter
	items    prometheus.Counter
	failures *prometheus.CounterVec
	duration prometheus.Histogram
	loading  prometheus.Gauge
}

// NewFeed registers pagination metrics under ns_sub_*.
func NewFeed(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *FeedAdapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &FeedAdapter{
		pages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, ConstLabels: constLabels,
			Name: "pages_total",
			Help: "Pages loaded, including refreshes",
		}),
		items: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, ConstLabels: constLabels,
			Name: "items_total",
			Help: "Items received from the page source",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, ConstLabels: constLabels,
			Name: "page_failures_total",
			Help: "Failed page requests; page 1 is a refresh",
		}, []string{"kind"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: sub, ConstLabels: constLabels,
			Name:    "page_duration_seconds",
			Help:    "Page source latency",
			Buckets: prometheus.DefBuckets,
		}),
		loading: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, ConstLabels: constLabels,
			Name: "loading_more",
			Help: "1 while a load-more is in flight",
		}),
	}
	reg.MustRegister(a.pages, a.items, a.failures, a.duration, a.loading)
	return a
}

func (a *FeedAdapter) PageLoaded(page, items int, d time.Duration) {
	a.pages.Inc()
	a.items.Add(float64(items))
	a.duration.Observe(d.Seconds())
}

// PageFailed counts a failure labelled "refresh" for page 1, else "more".
func (a *FeedAdapter) PageFailed(page int) {
	kind := "more"
	if page <= 1 {
		kind = "refresh"
	}
	a.failures.WithLabelValues(kind).Inc()
}

func (a *FeedAdapter) Loading(active bool) {
	a.loading.Set(float64(btoi(active)))
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Compile-time checks.
var (
	_ cache.Metrics  = (*CacheAdapter)(nil)
	_ loader.Metrics = (*LoaderAdapter)(nil)
	_ feed.Metrics   = (*FeedAdapter)(nil)
)
