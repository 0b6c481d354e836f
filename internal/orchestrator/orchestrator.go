// Package orchestrator implements the read-through / write-through cache
// hierarchy: L1 → Bloom → L2 → remote KV → on-disk KV on read, remote-KV-first
// with bounded concurrent fan-out on write.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/linkforge/shortlink/internal/bloom"
	"github.com/linkforge/shortlink/internal/cache"
	"github.com/linkforge/shortlink/internal/metrics"
	"github.com/linkforge/shortlink/internal/model"
	"github.com/linkforge/shortlink/internal/singleflight"
	"github.com/linkforge/shortlink/internal/storage"
)

// Config wires the tiers an Orchestrator coordinates. Disk is optional and
// may be nil.
type Config struct {
	L1     cache.Cache[string, string]
	L2     cache.Cache[string, string]
	Bloom  *bloom.Filter
	Remote storage.Storage
	Disk   storage.Storage // optional

	// DefaultTTLSeconds applies to Insert when the caller does not pass one.
	DefaultTTLSeconds int64
	// FanOutLimit bounds concurrent populate/write fan-out. 0 defaults to 4,
	// one per tier touched (L1, L2, Bloom, disk).
	FanOutLimit int
}

// Orchestrator serves get/insert against the full tier hierarchy.
type Orchestrator struct {
	cfg     Config
	metrics *metrics.Registry
	sf      singleflight.Group[string, string]
}

// New constructs an Orchestrator. m may be nil.
func New(cfg Config, m *metrics.Registry) *Orchestrator {
	if cfg.FanOutLimit <= 0 {
		cfg.FanOutLimit = 4
	}
	return &Orchestrator{cfg: cfg, metrics: m}
}

func (o *Orchestrator) hit(tier string, start time.Time) {
	if o.metrics == nil {
		return
	}
	o.metrics.CacheHits.WithLabelValues(tier).Inc()
	o.metrics.CacheLatency.WithLabelValues(tier).Observe(time.Since(start).Seconds())
}

func (o *Orchestrator) observe(tier string, start time.Time) {
	if o.metrics == nil {
		return
	}
	o.metrics.CacheLatency.WithLabelValues(tier).Observe(time.Since(start).Seconds())
}

// Get serves the hierarchy's read path, coalescing
// concurrent misses for the same key via singleflight so a cache-stampede
// against remote/disk touches each backend once.
func (o *Orchestrator) Get(ctx context.Context, key string) (string, error) {
	start := time.Now()
	if v, ok := o.cfg.L1.Get(key); ok {
		o.hit("l1", start)
		return v, nil
	}

	if o.cfg.Bloom != nil && !o.cfg.Bloom.Contains([]byte(key)) {
		o.observe("bloom", start)
		return "", model.ErrNotFound
	}
	o.observe("bloom", start)

	return o.sf.Do(ctx, key, func() (string, error) {
		return o.getFromL2OrBelow(ctx, key, start)
	})
}

func (o *Orchestrator) getFromL2OrBelow(ctx context.Context, key string, start time.Time) (string, error) {
	if v, ok := o.cfg.L2.Get(key); ok {
		o.hit("l2", start)
		o.cfg.L1.Set(key, v)
		return v, nil
	}

	if o.cfg.Remote != nil {
		// Any remote error (NotFound or otherwise) falls through to disk;
		// a disk hit re-populates remote too.
		if v, err := o.cfg.Remote.Get(ctx, key); err == nil {
			o.hit("remote", start)
			g, _ := errgroup.WithContext(ctx)
			g.SetLimit(o.cfg.FanOutLimit)
			g.Go(func() error { o.cfg.L1.Set(key, v); return nil })
			g.Go(func() error { o.cfg.L2.Set(key, v); return nil })
			_ = g.Wait()
			return v, nil
		}
	}

	if o.cfg.Disk != nil {
		v, err := o.cfg.Disk.Get(ctx, key)
		if err == nil {
			o.hit("disk", start)
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(o.cfg.FanOutLimit)
			if o.cfg.Remote != nil {
				g.Go(func() error {
					return o.cfg.Remote.SetEx(gctx, key, v, o.cfg.DefaultTTLSeconds)
				})
			}
			g.Go(func() error { o.cfg.L1.Set(key, v); return nil })
			g.Go(func() error { o.cfg.L2.Set(key, v); return nil })
			g.Go(func() error {
				if o.cfg.Bloom != nil {
					o.cfg.Bloom.Insert([]byte(key))
				}
				return nil
			})
			_ = g.Wait()
			return v, nil
		}
	}

	return "", model.ErrNotFound
}

// Insert implements the write path: remote KV first, then bounded concurrent
// fan-out to L1, L2, Bloom, and disk. ttlSeconds == 0
// uses Config.DefaultTTLSeconds.
func (o *Orchestrator) Insert(ctx context.Context, key, value string, ttlSeconds int64) error {
	if ttlSeconds == 0 {
		ttlSeconds = o.cfg.DefaultTTLSeconds
	}

	if o.cfg.Remote != nil {
		if err := o.cfg.Remote.SetEx(ctx, key, value, ttlSeconds); err != nil {
			return fmt.Errorf("orchestrator: remote write: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.FanOutLimit)
	g.Go(func() error { o.cfg.L1.Set(key, value); return nil })
	g.Go(func() error { o.cfg.L2.Set(key, value); return nil })
	g.Go(func() error {
		if o.cfg.Bloom != nil {
			o.cfg.Bloom.Insert([]byte(key))
		}
		return nil
	})
	if o.cfg.Disk != nil {
		g.Go(func() error { return o.cfg.Disk.SetEx(gctx, key, value, ttlSeconds) })
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("orchestrator: fan-out write: %w", err)
	}
	return nil
}

// Remove invalidates key across every tier.
func (o *Orchestrator) Remove(ctx context.Context, key string) error {
	o.cfg.L1.Remove(key)
	o.cfg.L2.Remove(key)
	// The Bloom filter never removes bits: a stale positive after deletion
	// just costs one extra miss down the hierarchy.

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.FanOutLimit)
	if o.cfg.Remote != nil {
		g.Go(func() error { return o.cfg.Remote.Delete(gctx, key) })
	}
	if o.cfg.Disk != nil {
		g.Go(func() error { return o.cfg.Disk.Delete(gctx, key) })
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("orchestrator: fan-out delete: %w", err)
	}
	return nil
}

// ContainsKey reports the Bloom filter's membership verdict alone: the fast
// negative-lookup short-circuit used before consulting any cache tier.
func (o *Orchestrator) ContainsKey(key string) bool {
	if o.cfg.Bloom == nil {
		return true
	}
	return o.cfg.Bloom.Contains([]byte(key))
}

// warmupChunkSize bounds how many keys Warmup fetches per concurrent
// batch, keeping memory and remote-KV load bounded regardless of len(keys).
const warmupChunkSize = 64

// Warmup bulk-fetches keys from remote KV (falling back to disk),
// populating L1, L2, and Bloom. It goes through Get so the circuit
// breaker inside the remote-KV client is always consulted rather than
// bypassed.
func (o *Orchestrator) Warmup(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += warmupChunkSize {
		end := start + warmupChunkSize
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.cfg.FanOutLimit)
		for _, k := range chunk {
			k := k
			g.Go(func() error {
				_, err := o.Get(gctx, k)
				if errors.Is(err, model.ErrNotFound) {
					return nil
				}
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("orchestrator: warmup: %w", err)
		}
	}
	return nil
}
