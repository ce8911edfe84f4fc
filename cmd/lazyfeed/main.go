// Command lazyfeed simulates a user scrolling a paginated image feed: it
// wires the resource cache, the loader, per-tile bindings and the feed
// controller together and exposes Prometheus metrics and optional pprof.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/lazyfeed/binding"
	"github.com/IvanBrykalov/lazyfeed/cache"
	"github.com/IvanBrykalov/lazyfeed/config"
	"github.com/IvanBrykalov/lazyfeed/feed"
	"github.com/IvanBrykalov/lazyfeed/loader"
	pmet "github.com/IvanBrykalov/lazyfeed/metrics/prom"
)

func main() {
	var (
		cfgPath   = flag.String("config", "", "YAML config file (optional, reloaded on change)")
		steps     = flag.Int("steps", 60, "number of scroll steps (one item per step)")
		tiles     = flag.Int("tiles", 6, "number of recycled image tiles on screen")
		stepDelay = flag.Duration("step", 150*time.Millisecond, "delay between scroll steps")
		rssURL    = flag.String("rss", "", "page an RSS/Atom feed instead of the demo catalog")
		pprofAddr = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
	)
	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			log.Fatal(err)
		}
	}
	if *rssURL != "" {
		cfg.Feed.RSSURL = *rssURL
	}

	logger, level, err := config.NewLogger(cfg.Log.Level)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, logger, level, runFlags{
		cfgPath:   *cfgPath,
		steps:     *steps,
		tiles:     *tiles,
		stepDelay: *stepDelay,
		pprofAddr: *pprofAddr,
	}); err != nil {
		logger.Fatal("lazyfeed", zap.Error(err))
	}
}

type runFlags struct {
	cfgPath   string
	steps     int
	tiles     int
	stepDelay time.Duration
	pprofAddr string
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger, level zap.AtomicLevel, f runFlags) error {
	// ---- pprof and Prometheus (on DefaultServeMux) ----
	if f.pprofAddr != "" {
		go func() {
			logger.Info("pprof: serving", zap.String("addr", f.pprofAddr))
			logger.Warn("pprof stopped", zap.Error(http.ListenAndServe(f.pprofAddr, nil)))
		}()
	}
	cacheMetrics := pmet.NewCache(nil, "lazyfeed", "cache", nil)
	loaderMetrics := pmet.NewLoader(nil, "lazyfeed", "loader", nil)
	feedMetrics := pmet.NewFeed(nil, "lazyfeed", "feed", nil)
	if cfg.Metrics.Address != "" {
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			logger.Info("metrics: serving", zap.String("addr", cfg.Metrics.Address))
			logger.Warn("metrics stopped", zap.Error(http.ListenAndServe(cfg.Metrics.Address, nil)))
		}()
	}

	// ---- config hot reload: only the log level is applied at runtime ----
	if f.cfgPath != "" {
		go func() {
			err := config.Watch(ctx, f.cfgPath, logger, func(c config.Config) {
				level.SetLevel(c.Log.Level.ZapLevel())
			})
			if err != nil {
				logger.Warn("config watch", zap.Error(err))
			}
		}()
	}

	// ---- components ----
	images := cache.New[loader.Key, *loader.Resource](cache.Options[loader.Key, *loader.Resource]{
		CountLimit: cfg.Cache.CountLimit,
		MaxCost:    cfg.Cache.MaxCost,
		Shards:     cfg.Cache.Shards,
		Cost:       loader.ResourceCost,
		Metrics:    cacheMetrics,
		Logger:     logger,
	})
	defer func() { _ = images.Close() }()

	tr, err := loader.NewHTTPTransport(loader.HTTPOptions{
		UserAgent:    cfg.Loader.UserAgent,
		MaxBodyBytes: cfg.Loader.MaxBodyBytes,
	})
	if err != nil {
		return err
	}
	ld := loader.New(loader.Options{
		Cache:         images,
		Transport:     tr,
		Timeout:       cfg.Loader.Timeout,
		MaxConcurrent: cfg.Loader.MaxConcurrent,
		Metrics:       loaderMetrics,
		Logger:        logger,
	})
	defer func() { _ = ld.Close() }()

	var src feed.PageSource = &feed.StaticSource{
		Catalog:  feed.DemoCatalog(40, 4),
		PageSize: cfg.Feed.PageSize,
		Latency:  cfg.Feed.Latency,
		MaxPages: cfg.Feed.MaxPages,
	}
	if cfg.Feed.RSSURL != "" {
		src = &feed.RSSSource{URL: cfg.Feed.RSSURL, PageSize: cfg.Feed.PageSize}
	}
	fc := feed.New(feed.Options{
		Source:    src,
		Threshold: cfg.Feed.Threshold,
		Metrics:   feedMetrics,
		Logger:    logger,
	})
	defer func() { _ = fc.Close() }()

	if err := fc.Refresh(ctx); err != nil {
		return fmt.Errorf("initial page: %w", err)
	}

	// one binding per on-screen tile; tiles are recycled as the list scrolls
	if f.tiles < 1 {
		f.tiles = 1
	}
	views := make([]*binding.Binding, f.tiles)
	for i := range views {
		views[i] = binding.New(binding.Options{Loader: ld, Logger: logger})
	}

	// ---- scroll ----
	bar := progressbar.Default(int64(f.steps), "scrolling")
	scrollCtx, endScroll := context.WithCancel(ctx)
	defer endScroll()
	g, gctx := errgroup.WithContext(scrollCtx)
	g.Go(func() error {
		states, unsubscribe := fc.Subscribe()
		defer unsubscribe()
		for {
			select {
			case <-gctx.Done():
				return nil
			case st, ok := <-states:
				if !ok {
					return nil
				}
				if st.Err != nil {
					logger.Warn("couldn't load more", zap.Error(st.Err))
				}
			}
		}
	})
	g.Go(func() error {
		defer endScroll() // ends the subscriber
		tick := time.NewTicker(f.stepDelay)
		defer tick.Stop()
		for step := 0; step < f.steps; step++ {
			select {
			case <-gctx.Done():
				return nil
			case <-tick.C:
			}
			st := fc.Snapshot()
			if step >= len(st.Items) {
				if st.Exhausted {
					logger.Info("feed exhausted", zap.Int("items", len(st.Items)))
					return nil
				}
				if st.Err != nil {
					fc.Retry()
				}
				step-- // wait for the next page
				continue
			}
			fc.MaybeLoadMore(step)
			item := st.Items[step]
			for i, key := range item.Images {
				views[(step+i)%len(views)].Bind(gctx, key)
			}
			_ = bar.Add(1)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	_ = bar.Finish()

	for _, v := range views {
		v.Wait()
	}
	st := images.Stats()
	fmt.Printf("\nitems=%d page=%d cache: entries=%d cost=%d hits=%d misses=%d evictions=%d\n",
		len(fc.Snapshot().Items), fc.Snapshot().Page, st.Entries, st.Cost, st.Hits, st.Misses, st.Evictions)
	return nil
}
