package cache

// DefaultURLCost weighs a cached destination URL by its byte length, so
// cost-based eviction (Options.MaxCost) reflects actual redirect-payload
// size instead of treating a three-character vanity code and a long,
// query-string-laden URL as equally expensive to hold.
func DefaultURLCost(url string) int { return len(url) }

// NewLinkCache builds a Cache[string, string] mapping short codes to their
// destination URLs — the shape used by both the L1 and L2 tiers in front of
// the remote/disk KV. If MaxCost is set and the caller hasn't supplied a
// Cost function, DefaultURLCost is wired in automatically.
func NewLinkCache(opt Options[string, string]) Cache[string, string] {
	if opt.Cost == nil && opt.MaxCost > 0 {
		opt.Cost = DefaultURLCost
	}
	return New(opt)
}
