// Command bench runs a synthetic image-cache workload and exposes optional
// pprof/Prometheus endpoints. It also acts as the lifecycle monitor for the
// cache: SIGUSR1 simulates a background transition, SIGUSR2 critical memory
// pressure.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/boundcache/imagecache"
	pmet "github.com/IvanBrykalov/boundcache/metrics/prom"
)

func main() {
	if err := run(); err != nil {
		slog.Error("bench failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	// ---- Environment (.env is optional) ----
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := imagecache.LoadConfig()
	if err != nil {
		return err
	}

	// ---- Flags (override env) ----
	var (
		costLimit  = flag.Int64("cost", cfg.CostLimit, "cost limit in bytes (0 = default)")
		countLimit = flag.Int("count", cfg.CountLimit, "count limit (0 = unbounded)")
		ttl        = flag.Duration("ttl", cfg.DefaultTTL, "default TTL (0 = none)")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		readPct  = flag.Int("reads", 80, "read percentage [0..100]")

		keys    = flag.Int("keys", 100_000, "keyspace size")
		zipfS   = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV   = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		bgEvery = flag.Duration("background_every", 0, "simulate a background transition periodically (0 = off)")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
		logLevel    = flag.String("log", "info", "log level: debug | info | warn | error")
	)
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Info("pprof: serving", slog.String("addr", *pprofAddr))
			log.Warn("pprof server stopped", slog.Any("error", http.ListenAndServe(*pprofAddr, nil)))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "boundcache", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Info("metrics: serving", slog.String("addr", *metricsAddr))
		log.Warn("metrics server stopped", slog.Any("error", http.ListenAndServe(*metricsAddr, nil)))
	}()

	// ---- Build cache ----
	opt := cfg.Options()
	opt.CostLimit = *costLimit
	opt.CountLimit = *countLimit
	opt.DefaultTTL = *ttl
	opt.Metrics = metrics
	opt.Logger = log
	ic := imagecache.New(opt)

	// ---- Snapshot flags for goroutines ----
	readPctVal := *readPct
	keysMax := uint64(max(*keys-1, 1))
	seedBase := *seed
	workersN := max(*workers, 1)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	// ---- Lifecycle monitor ----
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigs)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var tick <-chan time.Time
		if *bgEvery > 0 {
			t := time.NewTicker(*bgEvery)
			defer t.Stop()
			tick = t.C
		}
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-tick:
				ic.OnBackgroundTransition()
			case s := <-sigs:
				if s == syscall.SIGUSR2 {
					ic.OnCriticalMemoryPressure()
				} else {
					ic.OnBackgroundTransition()
				}
			}
		}
	})

	// ---- Load generation ----
	var reads, writes, hits, total atomic.Uint64
	start := time.Now()
	for w := 0; w < workersN; w++ {
		w := w // per-iteration copy (go 1.21 loop semantics)
		g.Go(func() error {
			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			r := rand.New(rand.NewSource(seedBase + int64(w)*9973))
			zipf := rand.NewZipf(r, *zipfS, *zipfV, keysMax)

			for {
				select {
				case <-gctx.Done():
					return nil
				default:
				}

				req := imagecache.Request{URL: "https://img.example/" + strconv.FormatUint(zipf.Uint64(), 10)}
				total.Add(1)
				if r.Intn(100) < readPctVal {
					reads.Add(1)
					if _, ok := ic.CachedImage(req); ok {
						hits.Add(1)
					}
				} else {
					writes.Add(1)
					side := 16 + r.Intn(240)
					ic.Store(imagecache.Image{Width: side, Height: side}, req)
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	// ---- Report ----
	ops := total.Load()
	hitRate := 0.0
	if n := reads.Load(); n > 0 {
		hitRate = float64(hits.Load()) / float64(n) * 100
	}
	st := ic.Stats()

	fmt.Printf("cost_limit=%d count_limit=%d workers=%d keys=%d dur=%v seed=%d\n",
		ic.CostLimit(), ic.CountLimit(), workersN, *keys, elapsed, seedBase)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d\n",
		ops, float64(ops)/elapsed.Seconds(), reads.Load(), writes.Load())
	fmt.Printf("hit-rate=%.2f%%  evictions=%d\n", hitRate, st.Evictions)
	fmt.Printf("count=%d cost=%d\n", ic.Count(), ic.TotalCost())
	return nil
}
