// Package codegen implements a lock-free, shard-partitioned short-code
// generator: fixed-width 13-character base-62 codes, a 2-byte shard prefix
// followed by an 11-byte right-aligned counter suffix.
package codegen

import (
	"math"
	"math/bits"
	"sync/atomic"
	"time"

	"github.com/linkforge/shortlink/internal/metrics"
	"github.com/linkforge/shortlink/internal/model"
	"github.com/linkforge/shortlink/internal/util"
)

const base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const (
	codeLen       = 13
	prefixLen     = 2
	suffixLen     = codeLen - prefixLen // 11
	chunkBase     = 62 * 62 * 62        // 238328, the 62^3 precomputed-triple table size
	minShardBits  = 8
	maxShardBits  = 11 // 2^11 = 2048 <= 62^2 = 3844 distinct 2-char prefixes
	defaultAttmpt = 5
)

// Config configures a Generator. ShardBits selects the shard space 2^B,
// B in [8,11] (typical 10-11): the 2-character base-62 prefix has only
// 62^2 = 3844 values, so every shard gets a distinct prefix only up to
// 2^11 shards. Out-of-range values are clamped. MaxAttempts bounds the number of
// shard-overflow retries before next() gives up.
type Config struct {
	ShardBits   int
	MaxAttempts int
}

func (c Config) normalize() Config {
	if c.ShardBits < minShardBits {
		c.ShardBits = minShardBits
	}
	if c.ShardBits > maxShardBits {
		c.ShardBits = maxShardBits
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultAttmpt
	}
	return c
}

// Generator produces unique, fixed-width 13-byte codes under unsynchronized
// concurrent access: each shard's counter only advances through a
// successful compare-and-swap, so no two callers can observe the same
// (shard, counter) pair.
type Generator struct {
	counters []util.PaddedAtomicUint64 // one per shard, cache-line padded
	prefixes [][prefixLen]byte         // precomputed 2-byte shard prefixes
	lookup   []byte                    // 238328*3 precomputed base-62 triples

	shardMask   uint64
	maxAttempts int

	metrics *metrics.Registry // optional; nil disables instrumentation
	seq     atomic.Uint64     // per-generator fallback shard-selection stripe
}

// New builds a Generator. m may be nil (metrics become no-ops).
func New(cfg Config, m *metrics.Registry) *Generator {
	cfg = cfg.normalize()
	shardCount := 1 << cfg.ShardBits

	prefixes := make([][prefixLen]byte, shardCount)
	for i := 0; i < shardCount; i++ {
		prefixes[i][0] = base62Chars[(i/62)%62]
		prefixes[i][1] = base62Chars[i%62]
	}

	lookup := make([]byte, chunkBase*3)
	for v := 0; v < chunkBase; v++ {
		off := v * 3
		lookup[off] = base62Chars[(v/(62*62))%62]
		lookup[off+1] = base62Chars[(v/62)%62]
		lookup[off+2] = base62Chars[v%62]
	}

	return &Generator{
		counters:    make([]util.PaddedAtomicUint64, shardCount),
		prefixes:    prefixes,
		lookup:      lookup,
		shardMask:   uint64(shardCount - 1),
		maxAttempts: cfg.MaxAttempts,
		metrics:     m,
	}
}

// Next returns a fresh 13-byte code, or model.ErrOverflow if every attempted
// shard's counter was exhausted.
func (g *Generator) Next() (string, error) {
	var start time.Time
	if g.metrics != nil {
		start = time.Now()
	}

	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		shard := g.pickShard()
		if g.metrics != nil {
			g.metrics.CodegenShardUsage.Observe(float64(shard))
		}

		counter := &g.counters[shard]
		current := counter.Load()
		if current == math.MaxUint64 {
			if g.metrics != nil {
				g.metrics.CodegenOverflowRetries.Inc()
			}
			continue
		}
		if !counter.CompareAndSwap(current, current+1) {
			// Lost the race on this shard; retry without counting it as an
			// overflow attempt against max_attempts.
			attempt--
			continue
		}

		code := g.encode(shard, current)
		if g.metrics != nil {
			g.metrics.CodegenLatency.Observe(time.Since(start).Seconds())
		}
		return code, nil
	}

	if g.metrics != nil {
		g.metrics.CodegenOverflowRetries.Inc()
	}
	return "", model.ErrOverflow
}

// pickShard samples a shard index. Shard uniformity is a soft invariant
// that only drives load balance, not correctness, so a fast xorshift-mixed
// per-generator call counter, XORed with the current time, is sufficient
// here rather than a true uniform random source.
func (g *Generator) pickShard() int {
	x := g.seq.Add(1)
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	x ^= uint64(time.Now().UnixNano())
	x *= 0x9E3779B97F4A7C15
	x = bits.RotateLeft64(x, 31)
	return int(x & g.shardMask)
}

// encode writes the 2-byte shard prefix followed by the base-62, right-
// aligned, zero-padded 11-byte counter suffix.
func (g *Generator) encode(shard int, counter uint64) string {
	var buf [codeLen]byte
	buf[0] = g.prefixes[shard][0]
	buf[1] = g.prefixes[shard][1]

	for i := prefixLen; i < codeLen; i++ {
		buf[i] = '0'
	}

	pos := codeLen
	num := counter
	for num >= chunkBase {
		rem := num % chunkBase
		num /= chunkBase
		pos -= 3
		copy(buf[pos:pos+3], g.lookup[rem*3:rem*3+3])
	}
	if num >= 62 {
		rem := num
		take := 2
		if num >= 62*62 {
			take = 3
		}
		pos -= take
		copy(buf[pos:pos+take], g.lookup[rem*3+3-take:rem*3+3])
	} else {
		pos--
		buf[pos] = base62Chars[num]
	}
	return string(buf[:])
}

// ShardCount reports the configured shard space, 2^ShardBits.
func (g *Generator) ShardCount() int { return len(g.counters) }
