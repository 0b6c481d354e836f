// Package cache implements the L1/L2 tiers that sit in front of the remote
// and on-disk KV stores in the redirect path: a sharded, generic in-memory
// cache with pluggable eviction (LRU by default), per-entry TTL, singleflight
// GetOrLoad, Prometheus-ready metrics hooks, and cost-based capacity. It is
// instantiated once as Cache[string, string] (short code → destination URL)
// for each of L1 and L2, sized and policy-tuned independently — see
// NewLinkCache and DefaultURLCost for the domain-specific defaults layered
// on top of the generic engine below.
//
// Design
//
//   - Concurrency: the cache is split into shards, each protected by an
//     RWMutex. The default shard count is chosen by a heuristic
//     (ReasonableShardCount) and is a power of two. Sharding a short-code
//     keyspace this way keeps redirect-path lock contention low without
//     bloating per-entry memory.
//
//   - Storage: each shard keeps a map[K]*node for lookups and an intrusive
//     MRU↔LRU doubly linked list for ordering. All operations are O(1) expected.
//
//   - Policies: eviction policy is pluggable via the policy package. LRU is
//     the default; 2Q (resists scan pollution from bulk listing reads) and
//     Window-TinyLFU (frequency-aware admission for hot-code workloads) are
//     both wired into cmd/shortlinkbench behind -l1-policy.
//
//   - TTL: entries can have per-item deadlines (UnixNano). Expiration is lazy
//     on read only — mirroring the TTL-on-read semantics the disk tier uses
//     for its own packed values. Trimming a shard to capacity evicts from
//     the LRU tail without regard to expiry.
//
//   - Cost/MaxCost: besides entry count (Capacity), a user-defined "cost" per
//     value (Options.Cost, e.g. DefaultURLCost) can be accounted against a
//     global MaxCost, split evenly across shards — useful when L1 sizing is
//     driven by a memory budget rather than a flat entry count.
//
//   - GetOrLoad: coalesces concurrent loads for the same short code using
//     singleflight, so a cache-stampede on a newly-viral link only issues one
//     load to the tier below. If Loader is nil, GetOrLoad returns ErrNoLoader.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Size signals. By
//     default NoopMetrics is used; metrics/prom.Adapter exports them as
//     shortlink_l1_*/shortlink_l2_* (or bench_l1/bench_l2 in cmd/shortlinkbench).
//
//   - Callbacks: Options.OnEvict(k, v, reason) is called for every eviction
//     (reason is one of EvictPolicy, EvictTTL, EvictCapacity).
//
// Basic usage
//
//	// L1 tier for 10k resident short codes.
//	l1 := cache.NewLinkCache(cache.Options[string, string]{Capacity: 10_000})
//	l1.Set("abc123", "https://example.com/a")
//	if url, ok := l1.Get("abc123"); ok {
//	    _ = url // serve redirect
//	}
//	l1.Remove("abc123")
//
// With TTL
//
//	l1 := cache.NewLinkCache(cache.Options[string, string]{Capacity: 1024})
//	l1.SetWithTTL("tmp1", "https://example.com/tmp", 200*time.Millisecond)
//	time.Sleep(300*time.Millisecond)
//	_, ok := l1.Get("tmp1") // ok == false (expired)
//
// With GetOrLoad (singleflight)
//
//	l2 := cache.NewLinkCache(cache.Options[string, string]{
//	    Capacity: 100_000,
//	    Loader: func(ctx context.Context, code string) (string, error) {
//	        return remote.Get(ctx, "url:"+code)
//	    },
//	})
//	url, err := l2.GetOrLoad(context.Background(), "abc123")
//
// Using an alternative policy (2Q)
//
//	// twoq sizes are per shard: 50_000 over 8 shards is 6_250 per shard.
//	l1 := cache.NewLinkCache(cache.Options[string, string]{
//	    Capacity: 50_000,
//	    Shards:   8,
//	    Policy:   twoq.New[string, string](1_562 /* A1in ≈ 25% */, 3_125 /* ghosts */),
//	})
//
// Exporting metrics (example Prometheus adapter)
//
//	m := prom.New(nil, "shortlink", "l1", nil) // implements Metrics
//	l1 := cache.NewLinkCache(cache.Options[string, string]{
//	    Capacity: 10_000,
//	    Metrics:  m,
//	})
//
// Thread-safety & complexity
//
// All methods on Cache are safe for concurrent use. Typical operation cost is
// O(1) expected time: one map access and a constant amount of pointer fixes.
// Eviction work is also O(1) per removed item.
//
// See package cache/options.go for all available Options fields and package
// policy for the Policy/Hooks interfaces used to implement custom strategies.
package cache
