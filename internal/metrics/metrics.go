// Package metrics centralizes the Prometheus collectors shared across the
// code generator, Bloom filter, circuit breaker, remote-KV client, on-disk
// KV adapter, cache orchestrator, and analytics pipeline.
//
// It follows the same construction idiom as internal/metrics/prom.Adapter:
// a single Registerer, a namespace/subsystem pair, and MustRegister once in
// New. Unlike prom.Adapter (which only satisfies the generic cache.Metrics
// interface for the L1/L2 engine), this package's Registry is the superset
// used by every other component, so each gets its own, purpose-named
// collectors instead of the generic Hit/Miss/Evict/Size shape.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every collector the core registers. Zero value is not
// usable; build one with New.
type Registry struct {
	// Code generator
	CodegenLatency        prometheus.Histogram
	CodegenOverflowRetries prometheus.Counter
	CodegenShardUsage      prometheus.Histogram

	// Bloom filter
	BloomInserts  prometheus.Counter
	BloomQueries  *prometheus.CounterVec // label: result=hit|miss

	// Circuit breaker (per-replica labels applied at call site)
	BreakerTrips    *prometheus.CounterVec // label: replica
	BreakerResets   *prometheus.CounterVec // label: replica
	BreakerRequests *prometheus.CounterVec // label: replica,outcome=ok|fail

	// Remote KV client
	RemoteOpLatency *prometheus.HistogramVec // label: op
	RemoteOpErrors  *prometheus.CounterVec   // label: op

	// On-disk KV adapter
	DiskOpLatency *prometheus.HistogramVec // label: op
	DiskOpErrors  *prometheus.CounterVec   // label: op

	// Cache orchestrator
	CacheHits    *prometheus.CounterVec   // label: tier=l1|l2|remote|disk
	CacheLatency *prometheus.HistogramVec // label: tier

	// Analytics
	AnalyticsDropped      prometheus.Counter
	AnalyticsBatchesFlushed prometheus.Counter
	AnalyticsBatchSize      prometheus.Histogram
}

// New constructs and registers every collector under ns/sub. A nil reg
// registers against prometheus.DefaultRegisterer, matching prom.Adapter's
// convention.
func New(reg prometheus.Registerer, ns, sub string) *Registry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &Registry{
		CodegenLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: sub, Name: "codegen_latency_seconds",
			Help:    "Latency of short-code generation.",
			Buckets: prometheus.ExponentialBuckets(1e-7, 4, 10),
		}),
		CodegenOverflowRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "codegen_overflow_retries_total",
			Help: "Number of shard-overflow retries attempted by the code generator.",
		}),
		CodegenShardUsage: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: sub, Name: "codegen_shard_usage",
			Help:    "Distribution of shard indices chosen by the code generator.",
			Buckets: []float64{0, 100, 500, 1000, 2000, 3000, 4000, 8000, 16000},
		}),

		BloomInserts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "bloom_inserts_total",
			Help: "Number of keys inserted into the sharded Bloom filter.",
		}),
		BloomQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "bloom_queries_total",
			Help: "Bloom filter queries by result.",
		}, []string{"result"}),

		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "breaker_trips_total",
			Help: "Circuit breaker trips per replica.",
		}, []string{"replica"}),
		BreakerResets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "breaker_resets_total",
			Help: "Circuit breaker resets (tripped -> healthy) per replica.",
		}, []string{"replica"}),
		BreakerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "breaker_requests_total",
			Help: "Requests accounted by the circuit breaker, by replica and outcome.",
		}, []string{"replica", "outcome"}),

		RemoteOpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: sub, Name: "remote_op_latency_seconds",
			Help:    "Remote KV operation latency by operation name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		RemoteOpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "remote_op_errors_total",
			Help: "Remote KV operation errors by operation name.",
		}, []string{"op"}),

		DiskOpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: sub, Name: "disk_op_latency_seconds",
			Help:    "On-disk KV operation latency by operation name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		DiskOpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "disk_op_errors_total",
			Help: "On-disk KV operation errors by operation name.",
		}, []string{"op"}),

		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "cache_hits_total",
			Help: "Orchestrator read-path hits by tier.",
		}, []string{"tier"}),
		CacheLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: sub, Name: "cache_latency_seconds",
			Help:    "Orchestrator read-path latency by tier.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tier"}),

		AnalyticsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "analytics_dropped_total",
			Help: "Analytics events dropped because the ingest queue was full.",
		}),
		AnalyticsBatchesFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "analytics_batches_flushed_total",
			Help: "Analytics batches successfully flushed to at least one backend.",
		}),
		AnalyticsBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: sub, Name: "analytics_batch_size",
			Help:    "Number of events per flushed analytics batch.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
	}

	reg.MustRegister(
		r.CodegenLatency, r.CodegenOverflowRetries, r.CodegenShardUsage,
		r.BloomInserts, r.BloomQueries,
		r.BreakerTrips, r.BreakerResets, r.BreakerRequests,
		r.RemoteOpLatency, r.RemoteOpErrors,
		r.DiskOpLatency, r.DiskOpErrors,
		r.CacheHits, r.CacheLatency,
		r.AnalyticsDropped, r.AnalyticsBatchesFlushed, r.AnalyticsBatchSize,
	)
	return r
}
