package cache

// node is an intrusive doubly linked list element owned by a shard — for the
// L1/L2 tiers this is one resident (short code, destination URL) pair, plus
// the list links and accounting fields the active eviction policy and
// TTL/cost enforcement need.
type node[K comparable, V any] struct {
	key K
	val V

	// Intrusive list links: head is MRU, tail is LRU.
	prev *node[K, V]
	next *node[K, V]

	// Absolute expiration deadline in UnixNano.
	// Zero means "no TTL".
	exp int64

	// Logical "cost" used when MaxCost is enabled — DefaultURLCost fills
	// this with the destination URL's byte length when no custom Cost
	// function was supplied.
	cost int32

	// Reserved for policy-specific metadata (e.g., class/segment for 2Q/TinyLFU).
	// Add fields here when a policy needs to tag nodes without map lookups.
	// e.g. class uint8
}

// Key returns the resident short code (part of policy.Node interface).
func (n *node[K, V]) Key() K { return n.key }

// Value returns a pointer to the stored destination URL (part of the
// policy.Node interface). NOTE: callers must only read/write through this
// pointer while holding the shard lock; otherwise data races may occur.
func (n *node[K, V]) Value() *V { return &n.val }
