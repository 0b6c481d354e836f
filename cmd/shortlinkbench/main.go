// Command shortlinkbench drives a synthetic short-link workload (code
// generation plus cache-orchestrator reads/writes) against two embedded
// on-disk KV stores standing in for the remote and disk tiers, and exposes
// optional pprof/Prometheus endpoints. It needs no external Redis/Dragonfly
// instance: a production deployment would wire internal/remotekv.Client
// against real replicas in place of the diskkv stand-in used here.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/linkforge/shortlink/internal/bloom"
	"github.com/linkforge/shortlink/internal/cache"
	"github.com/linkforge/shortlink/internal/codegen"
	"github.com/linkforge/shortlink/internal/diskkv"
	"github.com/linkforge/shortlink/internal/metrics"
	"github.com/linkforge/shortlink/internal/metrics/prom"
	"github.com/linkforge/shortlink/internal/orchestrator"
	"github.com/linkforge/shortlink/internal/policy/tinylfu"
	"github.com/linkforge/shortlink/internal/policy/twoq"
	"github.com/linkforge/shortlink/internal/util"
)

func main() {
	var (
		l1Capacity = flag.Int("l1-cap", 100_000, "L1 cache capacity (entries)")
		l1Shards   = flag.Int("l1-shards", 0, "L1 shard count (0=auto)")
		l1Policy   = flag.String("l1-policy", "lru", "L1 eviction policy: lru | 2q | tinylfu")
		l2Capacity = flag.Int("l2-cap", 1_000_000, "L2 cache capacity (entries)")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		readPct  = flag.Int("reads", 80, "read percentage [0..100]")

		keys  = flag.Int("keys", 1_000_000, "keyspace size")
		zipfS = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed  = flag.Int64("seed", time.Now().UnixNano(), "random seed")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()

	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg, "shortlink", "bench")
	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		log.Printf("metrics: serving at %s", *metricsAddr)
		log.Println(http.ListenAndServe(*metricsAddr, nil))
	}()

	l1opt := cache.Options[string, string]{
		Capacity: *l1Capacity, Shards: *l1Shards,
		Metrics: prom.New(reg, "shortlink", "bench_l1", nil),
	}
	// twoq and tinylfu take per-shard sizes; split the L1 capacity the way
	// cache.New splits it across shards.
	l1ShardN := util.ReasonableShardCount()
	if *l1Shards > 0 {
		l1ShardN = int(util.NextPow2(uint64(*l1Shards)))
	}
	l1PerShard := (*l1Capacity + l1ShardN - 1) / l1ShardN
	switch *l1Policy {
	case "lru":
	case "2q":
		l1opt.Policy = twoq.New[string, string](l1PerShard/4, l1PerShard/2)
	case "tinylfu":
		l1opt.Policy = tinylfu.New[string, string](l1PerShard)
	default:
		log.Fatalf("unknown l1 policy: %q (use lru, 2q, or tinylfu)", *l1Policy)
	}
	l1 := cache.NewLinkCache(l1opt)
	l2 := cache.NewLinkCache(cache.Options[string, string]{
		Capacity: *l2Capacity,
		Metrics:  prom.New(reg, "shortlink", "bench_l2", nil),
	})
	defer func() { _ = l1.Close(); _ = l2.Close() }()

	bf := bloom.New(bloom.Config{Bits: uint64(*keys) * 16, ExpectedItems: uint64(*keys), Shards: 16}, m)

	remoteDir, err := os.MkdirTemp("", "shortlinkbench-remote-*")
	if err != nil {
		log.Fatalf("mkdir remote tier: %v", err)
	}
	defer os.RemoveAll(remoteDir)
	diskDir, err := os.MkdirTemp("", "shortlinkbench-disk-*")
	if err != nil {
		log.Fatalf("mkdir disk tier: %v", err)
	}
	defer os.RemoveAll(diskDir)

	remote, err := diskkv.Open(diskkv.Config{Dir: remoteDir}, m)
	if err != nil {
		log.Fatalf("open remote-tier store: %v", err)
	}
	defer remote.Close()
	disk, err := diskkv.Open(diskkv.Config{Dir: diskDir}, m)
	if err != nil {
		log.Fatalf("open disk-tier store: %v", err)
	}
	defer disk.Close()

	orch := orchestrator.New(orchestrator.Config{
		L1: l1, L2: l2, Bloom: bf, Remote: remote, Disk: disk,
		DefaultTTLSeconds: 3600,
	}, m)

	gen := codegen.New(codegen.Config{}, m)

	ctx := context.Background()
	preload := *keys / 2
	for i := 0; i < preload; i++ {
		code, err := gen.Next()
		if err != nil {
			log.Fatalf("codegen: %v", err)
		}
		if err := orch.Insert(ctx, "url:"+code, "https://example.com/"+strconv.Itoa(i), 0); err != nil {
			log.Fatalf("preload insert: %v", err)
		}
	}

	readPctVal := *readPct
	keysMax := uint64(*keys - 1)
	seedBase := *seed
	zipfSVal := *zipfS
	zipfVVal := *zipfV
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}

	var reads, writes, hits, misses, total uint64
	runCtx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workersN)
	for w := 0; w < workersN; w++ {
		go func(id int) {
			defer wg.Done()
			localR := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			localZipf := rand.NewZipf(localR, zipfSVal, zipfVVal, keysMax)
			keyByZipf := func() string {
				return "url:k" + strconv.FormatUint(localZipf.Uint64(), 10)
			}

			for {
				select {
				case <-runCtx.Done():
					return
				default:
				}

				atomic.AddUint64(&total, 1)
				if int(localR.Int31n(100)) < readPctVal {
					atomic.AddUint64(&reads, 1)
					if _, err := orch.Get(runCtx, keyByZipf()); err == nil {
						atomic.AddUint64(&hits, 1)
					} else {
						atomic.AddUint64(&misses, 1)
					}
				} else {
					atomic.AddUint64(&writes, 1)
					_ = orch.Insert(runCtx, keyByZipf(), "v"+strconv.Itoa(localR.Int()), 0)
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	ops := atomic.LoadUint64(&total)
	readsN := atomic.LoadUint64(&reads)
	writesN := atomic.LoadUint64(&writes)
	hitsN := atomic.LoadUint64(&hits)
	missesN := atomic.LoadUint64(&misses)

	hitRate := 0.0
	if readsN > 0 {
		hitRate = float64(hitsN) / float64(readsN) * 100
	}

	fmt.Printf("l1-policy=%s l1-cap=%d l2-cap=%d workers=%d keys=%d dur=%v seed=%d\n",
		*l1Policy, *l1Capacity, *l2Capacity, workersN, *keys, elapsed, seedBase)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d\n",
		ops, float64(ops)/elapsed.Seconds(), readsN, writesN)
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%\n", hitsN, missesN, hitRate)
	fmt.Printf("L1.Len()=%d  L2.Len()=%d  codegen shards=%d\n", l1.Len(), l2.Len(), gen.ShardCount())
}
