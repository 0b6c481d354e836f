package util

import "runtime"

// ReasonableShardCount picks a practical default shard count based on CPU
// parallelism — used by cache.New to auto-size an L1/L2 tier when
// Options.Shards is left at 0, and by newShard to derive the per-shard
// MaxCost split. Heuristic: nextPow2(2*GOMAXPROCS), clamped to
// [1..256]. This sharply reduces lock contention without bloating memory
// overhead.
func ReasonableShardCount() int {
	p := runtime.GOMAXPROCS(0)
	if p < 1 {
		p = 1
	}
	// 2×CPU, round up to power of two, then clamp to 256.
	n := int(NextPow2(uint64(p * 2)))
	if n < 1 {
		n = 1
	}
	if n > 256 {
		n = 256
	}
	return n
}
