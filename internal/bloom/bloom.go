// Package bloom implements a shard-partitioned, block-Bloom membership
// filter: no false negatives, bounded false positives, lock-free word-level
// atomic inserts within each shard.
package bloom

import (
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/linkforge/shortlink/internal/metrics"
	"github.com/linkforge/shortlink/internal/util"
)

const wordBits = 64

// Config sizes a Filter. Bits is the total bit-array size (split evenly
// across Shards); ExpectedItems sizes the number of hash derivations (k) per
// the standard block-Bloom formula. Shards must be a power of two;
// non-power-of-two values are rounded up.
type Config struct {
	Bits          uint64
	ExpectedItems uint64
	Shards        int
}

func (c Config) normalize() Config {
	if c.Bits == 0 {
		c.Bits = 1 << 20 // 1 Mbit default
	}
	if c.ExpectedItems == 0 {
		c.ExpectedItems = 100_000
	}
	if c.Shards <= 0 {
		c.Shards = 16
	}
	c.Shards = int(util.NextPow2(uint64(c.Shards)))
	return c
}

// Filter is a sharded block-Bloom filter. contains() never returns a false
// negative for a key that was inserted and is still resident; it never
// removes bits during normal operation.
type Filter struct {
	shards   []shard
	shardMask uint64
	k        int // number of hash derivations per operation

	metrics *metrics.Registry
}

type shard struct {
	words []atomic.Uint64
}

// New builds a Filter per cfg. m may be nil.
func New(cfg Config, m *metrics.Registry) *Filter {
	cfg = cfg.normalize()

	bitsPerShard := cfg.Bits / uint64(cfg.Shards)
	if bitsPerShard == 0 {
		bitsPerShard = wordBits
	}
	wordsPerShard := (bitsPerShard + wordBits - 1) / wordBits

	itemsPerShard := cfg.ExpectedItems / uint64(cfg.Shards)
	if itemsPerShard == 0 {
		itemsPerShard = 1
	}

	// Optimal k = (bits/items) * ln(2), clamped to a sane [1,16] range.
	k := int(float64(bitsPerShard) / float64(itemsPerShard) * 0.6931471805599453)
	if k < 1 {
		k = 1
	}
	if k > 16 {
		k = 16
	}

	shards := make([]shard, cfg.Shards)
	for i := range shards {
		shards[i].words = make([]atomic.Uint64, wordsPerShard)
	}

	return &Filter{
		shards:    shards,
		shardMask: uint64(cfg.Shards - 1),
		k:         k,
		metrics:   m,
	}
}

// Insert records key as a member. No-op on an already-set bit.
func (f *Filter) Insert(key []byte) {
	digest := xxhash.Sum64(key)
	sh := &f.shards[digest&f.shardMask]
	h1, h2 := splitHash(digest)
	nbits := uint64(len(sh.words)) * wordBits

	for i := 0; i < f.k; i++ {
		bit := (h1 + uint64(i)*h2) % nbits
		word, mask := bit/wordBits, uint64(1)<<(bit%wordBits)
		sh.words[word].Or(mask)
	}
	if f.metrics != nil {
		f.metrics.BloomInserts.Inc()
	}
}

// Contains reports whether key may be a member. False positives are
// possible; false negatives are not, for any key ever inserted and still
// resident.
func (f *Filter) Contains(key []byte) bool {
	digest := xxhash.Sum64(key)
	sh := &f.shards[digest&f.shardMask]
	h1, h2 := splitHash(digest)
	nbits := uint64(len(sh.words)) * wordBits

	hit := true
	for i := 0; i < f.k; i++ {
		bit := (h1 + uint64(i)*h2) % nbits
		word, mask := bit/wordBits, uint64(1)<<(bit%wordBits)
		if sh.words[word].Load()&mask == 0 {
			hit = false
			break
		}
	}
	if f.metrics != nil {
		result := "miss"
		if hit {
			result = "hit"
		}
		f.metrics.BloomQueries.WithLabelValues(result).Inc()
	}
	return hit
}

// splitHash derives two independent 64-bit hashes from one xxhash digest
// using the standard double-hashing technique (h_i = h1 + i*h2), avoiding a
// second full hash pass per probe.
func splitHash(h uint64) (uint64, uint64) {
	h1 := h
	h2 := (h >> 32) | (h << 32)
	h2 |= 1 // ensure h2 is odd so it cycles through all residues mod a power of two
	return h1, h2
}
