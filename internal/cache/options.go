package cache

import (
	"context"
	"time"

	"github.com/linkforge/shortlink/internal/policy"
)

// EvictReason explains why an entry was removed.
type EvictReason int

const (
	// EvictPolicy — removed by the active eviction policy (e.g., LRU/2Q/TinyLFU).
	EvictPolicy EvictReason = iota
	// EvictTTL — expired by TTL (lazy eviction on access).
	EvictTTL
	// EvictCapacity — removed to satisfy capacity/cost limits.
	EvictCapacity
)

// Metrics exposes cache-level observability hooks for one tier (L1 or L2).
// A NoopMetrics implementation is provided and used by default; metrics/prom
// wires an Adapter that exports these as Prometheus counters/gauges per tier.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Size(entries int, cost int64)
	// Consider adding ObserveLoad(dur) in the future for Loader timing.
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Options configures an L1 or L2 tier's behavior. Zero values are safe;
// sane defaults are applied in New() / NewLinkCache():
//   - nil Policy   => LRU
//   - Shards <= 0  => auto (rounded up to power of two)
//   - nil Metrics  => NoopMetrics
//   - nil Cost with MaxCost > 0, via NewLinkCache => DefaultURLCost
type Options[K comparable, V any] struct {
	// Capacity is the entry count limit (used together with MaxCost if set).
	// cmd/shortlinkbench exposes this as -l1-cap/-l2-cap.
	Capacity int

	// Shards defines the number of shards. If 0, an automatic value is chosen
	// (≈ 2*GOMAXPROCS) and rounded to the next power of two.
	Shards int

	// Policy is a pluggable eviction policy (LRU/2Q/TinyLFU/…); nil => LRU by
	// default. cmd/shortlinkbench selects among them via -l1-policy.
	Policy policy.Policy[K, V]

	// TTL & SWR
	// DefaultTTL applies to Add/Set when per-key TTL is not provided (0 = no TTL).
	DefaultTTL time.Duration
	// SWR enables serve-stale-while-revalidate windows (reserved for future use).
	SWR time.Duration

	// Cost-based limiting (e.g., URL byte length via DefaultURLCost). If Cost
	// is non-nil and MaxCost > 0, the cache evicts until both entry count and
	// total cost limits are satisfied.
	Cost    func(v V) int // nil = all entries have equal cost (0)
	MaxCost int64         // total cost limit; 0 disables cost limiting

	// Loader fetches a value on cache miss. Used by GetOrLoad — on the L2
	// tier this is typically wired to fall through to the remote KV client.
	Loader func(ctx context.Context, k K) (V, error)

	// Observability
	// OnEvict is called on eviction under the shard lock; keep callbacks lightweight.
	OnEvict func(k K, v V, reason EvictReason)
	Metrics Metrics

	// Clock allows overriding time source (tests). Nil => time.Now().
	Clock Clock
}
