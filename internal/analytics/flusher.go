package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/linkforge/shortlink/internal/metrics"
	"github.com/linkforge/shortlink/internal/model"
	"github.com/linkforge/shortlink/internal/storage"
)

// Config tunes a Flusher.
type Config struct {
	// FlushInterval is the ticker period between batch drains.
	FlushInterval time.Duration
	// MaxBatchSize bounds how many events one tick drains from the queue.
	MaxBatchSize int
	// TTLSeconds is applied to stats:<code> keys on every flush, 90 days
	// unless overridden.
	TTLSeconds int64
}

func (c Config) normalize() Config {
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 500
	}
	if c.TTLSeconds <= 0 {
		c.TTLSeconds = 90 * 24 * 3600
	}
	return c
}

// Flusher drains a Queue on a ticker and dual-writes batches to remote and
// disk KV via storage.Storage.ZAddBatch, keyed stats:<code>.
type Flusher struct {
	queue   *Queue
	cfg     Config
	remote  storage.Storage
	disk    storage.Storage // optional
	metrics *metrics.Registry

	done     chan struct{}
	shutdown chan struct{}
	stopOnce sync.Once
}

// NewFlusher wires a Flusher. disk and m may both be nil.
func NewFlusher(q *Queue, remote, disk storage.Storage, cfg Config, m *metrics.Registry) *Flusher {
	return &Flusher{
		queue:    q,
		cfg:      cfg.normalize(),
		remote:   remote,
		disk:     disk,
		metrics:  m,
		done:     make(chan struct{}),
		shutdown: make(chan struct{}),
	}
}

// Run blocks draining the queue on cfg.FlushInterval ticks until Shutdown is
// called or ctx is cancelled. Call it from its own goroutine.
func (f *Flusher) Run(ctx context.Context) {
	defer close(f.done)
	ticker := time.NewTicker(f.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.drainAndFlush(context.Background())
			return
		case <-f.shutdown:
			f.drainAndFlush(context.Background())
			return
		case <-ticker.C:
			f.drainAndFlush(ctx)
		}
	}
}

// drainAndFlush pulls up to MaxBatchSize queued events without blocking and
// flushes them. Events pulled into a batch that fails to write anywhere are
// dropped; the queue bounds memory, not delivery guarantees.
func (f *Flusher) drainAndFlush(ctx context.Context) {
	batch := make([]model.AnalyticsEvent, 0, f.cfg.MaxBatchSize)
drain:
	for len(batch) < f.cfg.MaxBatchSize {
		select {
		case ev := <-f.queue.ch:
			batch = append(batch, ev)
		default:
			break drain
		}
	}
	if len(batch) == 0 {
		return
	}
	f.flush(ctx, batch)
}

func (f *Flusher) flush(ctx context.Context, batch []model.AnalyticsEvent) {
	ops := make([]storage.ZAddOp, len(batch))
	for i, ev := range batch {
		ops[i] = storage.ZAddOp{Key: StatsKey(ev.Code), Score: ev.Timestamp, Member: ev.Timestamp}
	}

	// Both backends are attempted concurrently and independently: one
	// failing must not cancel or block the other's write, so this does not
	// share a cancellation context between them the way errgroup.WithContext
	// would.
	var wg sync.WaitGroup
	var remoteErr, diskErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		remoteErr = f.remote.ZAddBatch(ctx, ops, f.cfg.TTLSeconds)
	}()
	if f.disk != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			diskErr = f.disk.ZAddBatch(ctx, ops, 0)
		}()
	}
	wg.Wait()

	if f.metrics != nil && (remoteErr == nil || diskErr == nil) {
		f.metrics.AnalyticsBatchesFlushed.Inc()
		f.metrics.AnalyticsBatchSize.Observe(float64(len(batch)))
	}
}

// Shutdown stops Run after one final drain. Idempotent.
func (f *Flusher) Shutdown() {
	f.stopOnce.Do(func() { close(f.shutdown) })
	<-f.done
}

// StatsKey is the stats:<code> sorted-set key used for per-code click counts.
func StatsKey(code string) string {
	return fmt.Sprintf("stats:%s", code)
}

// GetAnalytics serves the retrospective read path: remote KV first, falling
// back to disk on any remote error and opportunistically re-populating
// remote on a disk hit, mirroring the orchestrator's disk-fallback
// behavior for the url: namespace.
func GetAnalytics(ctx context.Context, remote, disk storage.Storage, code string, start, stop int64) ([]model.ScoredMember, error) {
	key := StatsKey(code)

	if remote != nil {
		members, err := remote.ZRange(ctx, key, start, stop)
		if err == nil {
			// A remote ZRange on an absent key returns (nil, nil) rather
			// than an error, so an empty result is ambiguous between "no
			// clicks yet" and "remote lost this range but disk kept it" —
			// but only when there's a disk tier to consult. With no disk
			// tier configured, a successful empty read is the answer.
			if len(members) > 0 || disk == nil {
				return toModel(members), nil
			}
		}
	}

	if disk == nil {
		return nil, model.ErrUnavailable
	}
	members, err := disk.ZRange(ctx, key, start, stop)
	if err != nil {
		return nil, fmt.Errorf("analytics: get: %w", model.ErrUnavailable)
	}

	if remote != nil && len(members) > 0 {
		ops := make([]storage.ZAddOp, len(members))
		for i, m := range members {
			ops[i] = storage.ZAddOp{Key: key, Score: m.Score, Member: m.Member}
		}
		go func() {
			repopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = remote.ZAddBatch(repopCtx, ops, 90*24*3600)
		}()
	}

	return toModel(members), nil
}

func toModel(members []storage.ScoredMember) []model.ScoredMember {
	out := make([]model.ScoredMember, len(members))
	for i, m := range members {
		out[i] = model.ScoredMember{Score: m.Score, Member: m.Member}
	}
	return out
}
