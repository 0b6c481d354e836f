// Package tinylfu implements a window-admission eviction policy: a small
// recency window gates entry into a frequency-ordered main segment via a
// count-min-sketch frequency estimate, a frequency-aware admission scheme
// for the L1/L2 cache tiers. It is additive alongside the lru and twoq
// policies, not a replacement for either.
package tinylfu

import (
	"container/list"

	"github.com/linkforge/shortlink/internal/policy"
	"github.com/linkforge/shortlink/internal/util"
)

// windowRatio sizes the recency window as a fraction of shard capacity.
// 1% is the ratio window-TinyLFU literature settles on; it is large enough
// to absorb a burst of one-hit-wonders without starving the main segment.
const windowRatio = 0.01

// New constructs a TinyLFU policy factory. capacity is the per-shard entry
// capacity, used to size both the window segment and the frequency sketch.
func New[K comparable, V any](capacity int) policy.Policy[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return tinyLFUPolicy[K, V]{capacity: capacity}
}

type tinyLFUPolicy[K comparable, V any] struct {
	capacity int
}

func (p tinyLFUPolicy[K, V]) New(h policy.Hooks[K, V]) policy.ShardPolicy[K, V] {
	capWindow := int(float64(p.capacity) * windowRatio)
	if capWindow < 1 {
		capWindow = 1
	}
	return &tinyLFU[K, V]{
		h:         h,
		capacity:  p.capacity,
		capWindow: capWindow,
		window:    list.New(),
		windowIdx: make(map[policy.Node[K, V]]*list.Element),
		sketch:    newSketch(uint64(p.capacity) * 8),
	}
}

// tinyLFU tracks a small "window" FIFO over the shard's shared MRU/LRU list
// (via Hooks). Everything not currently in the window is the "main"
// segment; the shared list itself carries both, ordered by the shard's
// existing MoveToFront/PushFront/Back machinery. Admission from window to
// main is a frequency contest against the current main-segment tail,
// resolved by the count-min sketch.
type tinyLFU[K comparable, V any] struct {
	h policy.Hooks[K, V]

	capacity  int
	capWindow int
	window    *list.List
	windowIdx map[policy.Node[K, V]]*list.Element

	sketch *sketch
}

func keyHash[K comparable](k K) uint64 { return util.Fnv64a(k) }

// OnAdd inserts the new node at MRU and tracks it in the window FIFO. Once
// the window overflows, its oldest member falls out of window tracking (it
// is now part of the main segment, wherever MoveToFront/PushFront order has
// left it in the shared list). That alone never shrinks the shard: an
// eviction is only owed once the shard has actually grown past its
// configured per-shard capacity, at which point the fallen-out candidate is
// pitted against the current main-segment tail (the shared list's Back())
// and whichever has the lower estimated frequency is returned for eviction.
func (q *tinyLFU[K, V]) OnAdd(n policy.Node[K, V]) (evict policy.Node[K, V]) {
	q.sketch.Add(keyHash(n.Key()))

	q.h.PushFront(n)
	q.windowIdx[n] = q.window.PushFront(n)

	var candidate policy.Node[K, V]
	if q.window.Len() > q.capWindow {
		tail := q.window.Back()
		q.window.Remove(tail)
		candidate = tail.Value.(policy.Node[K, V])
		delete(q.windowIdx, candidate)
	}

	if q.h.Len() <= q.capacity {
		// Shard still has room: let it keep growing toward capacity
		// instead of evicting on every window turnover.
		return nil
	}

	if candidate == nil {
		// Over capacity but the window hasn't turned over this call (only
		// reachable when capWindow >= capacity, i.e. very small configured
		// capacities): fall back to the global LRU tail.
		return q.h.Back()
	}

	mainVictim := q.h.Back()
	if mainVictim == nil || mainVictim == candidate {
		return candidate
	}

	if q.sketch.Estimate(keyHash(candidate.Key())) > q.sketch.Estimate(keyHash(mainVictim.Key())) {
		// Candidate earned promotion into the main segment; it is already
		// linked into the shared list via PushFront, so nothing further is
		// needed beyond evicting the weaker incumbent.
		return mainVictim
	}
	return candidate
}

// OnGet records an access against the frequency sketch and promotes the
// node to MRU. Window-FIFO order is not adjusted on access; a node that is
// accessed while still in the window keeps its original window position,
// a deliberate simplification of canonical window-TinyLFU.
func (q *tinyLFU[K, V]) OnGet(n policy.Node[K, V]) {
	q.sketch.Add(keyHash(n.Key()))
	q.h.MoveToFront(n)
}

func (q *tinyLFU[K, V]) OnUpdate(n policy.Node[K, V]) { q.OnGet(n) }

// OnRemove drops the node's window-FIFO bookkeeping, if present. Nodes
// removed from the main segment (TTL expiry, explicit Remove) carry no
// window state to clean up.
func (q *tinyLFU[K, V]) OnRemove(n policy.Node[K, V]) {
	if el, ok := q.windowIdx[n]; ok {
		q.window.Remove(el)
		delete(q.windowIdx, n)
	}
}
