// Package remotekv implements the Storage contract (internal/storage) over
// a pool of Redis-protocol replicas: key-hash routing across replicas, a
// circuit breaker per replica, Lua-scripted atomic rate limiting, and
// pipelined batch writes.
package remotekv

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"

	"github.com/linkforge/shortlink/internal/breaker"
	"github.com/linkforge/shortlink/internal/metrics"
	"github.com/linkforge/shortlink/internal/storage"
)

// rateLimitScript atomically increments a fixed-window counter and compares
// it against limit, setting the window's expiry only on the first increment
// so the window doesn't slide forward on every call.
var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if tonumber(current) == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if tonumber(current) > tonumber(ARGV[1]) then
	return 0
end
return 1
`)

// Replica names one backing Redis endpoint.
type Replica struct {
	ID     string
	Client *redis.Client
}

// Config constructs a Client's replica set and timeouts.
type Config struct {
	Replicas     []Replica
	OpTimeout    time.Duration
	Breaker      breaker.Config
}

func (c Config) normalize() Config {
	if c.OpTimeout <= 0 {
		c.OpTimeout = 2 * time.Second
	}
	return c
}

// Client implements storage.Storage across a replica pool.
type Client struct {
	replicas  []Replica
	ids       []string
	opTimeout time.Duration
	breaker   *breaker.Breaker
	metrics   *metrics.Registry
}

var _ storage.Storage = (*Client)(nil)

// New constructs a Client. m may be nil.
func New(cfg Config, m *metrics.Registry) *Client {
	cfg = cfg.normalize()
	ids := make([]string, len(cfg.Replicas))
	for i, r := range cfg.Replicas {
		ids[i] = r.ID
	}
	return &Client{
		replicas:  cfg.Replicas,
		ids:       ids,
		opTimeout: cfg.OpTimeout,
		breaker:   breaker.New(ids, cfg.Breaker, m),
		metrics:   m,
	}
}

// Close releases the breaker's background resetter. Replica *redis.Client
// connections are owned by the caller that constructed Config.
func (c *Client) Close() { c.breaker.Close() }

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opTimeout)
}

// routeKey deterministically selects a replica for a key-scoped operation,
// falling back to any eligible replica if the hash-selected one is tripped.
func (c *Client) routeKey(key string) (Replica, error) {
	if len(c.replicas) == 0 {
		return Replica{}, fmt.Errorf("%w: no replicas configured", storage.ErrUnavailable)
	}
	idx := int(xxhash.Sum64String(key) % uint64(len(c.replicas)))
	primary := c.replicas[idx]
	if c.breaker.IsHealthy(primary.ID) {
		return primary, nil
	}
	id, ok := c.breaker.GetHealthyNode(c.ids)
	if !ok {
		return Replica{}, fmt.Errorf("%w: no healthy replicas", storage.ErrUnavailable)
	}
	return c.byID(id), nil
}

// anyHealthy picks a replica for scan/count operations, which are not
// key-scoped: any healthy replica is acceptable.
func (c *Client) anyHealthy() (Replica, error) {
	id, ok := c.breaker.GetHealthyNode(c.ids)
	if !ok {
		return Replica{}, fmt.Errorf("%w: no healthy replicas", storage.ErrUnavailable)
	}
	return c.byID(id), nil
}

func (c *Client) byID(id string) Replica {
	for _, r := range c.replicas {
		if r.ID == id {
			return r
		}
	}
	return Replica{}
}

// record wraps op, timing it and reporting success/failure to both the
// breaker and the shared metrics registry.
func (c *Client) record(replica, op string, start time.Time, err error) {
	if c.metrics != nil {
		c.metrics.RemoteOpLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if err != nil && err != redis.Nil {
			c.metrics.RemoteOpErrors.WithLabelValues(op).Inc()
		}
	}
	if err != nil && err != redis.Nil {
		c.breaker.RecordFailure(replica)
	} else {
		c.breaker.RecordSuccess(replica)
	}
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	r, err := c.routeKey(key)
	if err != nil {
		return "", err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	v, err := r.Client.Get(ctx, key).Result()
	c.record(r.ID, "get", start, err)
	if err == redis.Nil {
		return "", storage.ErrKeyNotFound
	}
	return v, err
}

func (c *Client) SetEx(ctx context.Context, key, value string, ttl int64) error {
	r, err := c.routeKey(key)
	if err != nil {
		return err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	var d time.Duration
	if ttl > 0 {
		d = time.Duration(ttl) * time.Second
	}
	err = r.Client.Set(ctx, key, value, d).Err()
	c.record(r.ID, "set_ex", start, err)
	return err
}

func (c *Client) Delete(ctx context.Context, key string) error {
	r, err := c.routeKey(key)
	if err != nil {
		return err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	err = r.Client.Del(ctx, key).Err()
	c.record(r.ID, "delete", start, err)
	return err
}

func (c *Client) ZAdd(ctx context.Context, key string, score, member uint64) error {
	r, err := c.routeKey(key)
	if err != nil {
		return err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	err = r.Client.ZAdd(ctx, key, redis.Z{Score: float64(score), Member: member}).Err()
	c.record(r.ID, "zadd", start, err)
	return err
}

func (c *Client) ZRange(ctx context.Context, key string, start, stop int64) ([]storage.ScoredMember, error) {
	r, err := c.routeKey(key)
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	t0 := time.Now()
	raw, err := r.Client.ZRangeWithScores(ctx, key, start, stop).Result()
	c.record(r.ID, "zrange", t0, err)
	if err != nil {
		return nil, err
	}

	out := make([]storage.ScoredMember, 0, len(raw))
	for _, z := range raw {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		var m uint64
		fmt.Sscanf(member, "%d", &m)
		out = append(out, storage.ScoredMember{Score: uint64(z.Score), Member: m})
	}
	return out, nil
}

// ZAddBatch groups ops by the replica their key routes to, then pipelines
// a ZADD + (optional) EXPIRE per key within each replica's MULTI/EXEC
// pipeline, so each key's group is applied atomically.
func (c *Client) ZAddBatch(ctx context.Context, ops []storage.ZAddOp, ttlSeconds int64) error {
	byReplica := make(map[string][]storage.ZAddOp)
	for _, op := range ops {
		r, err := c.routeKey(op.Key)
		if err != nil {
			return err
		}
		byReplica[r.ID] = append(byReplica[r.ID], op)
	}

	for id, group := range byReplica {
		r := c.byID(id)
		opCtx, cancel := c.withTimeout(ctx)
		start := time.Now()

		pipe := r.Client.TxPipeline()
		for _, op := range group {
			pipe.ZAdd(opCtx, op.Key, redis.Z{Score: float64(op.Score), Member: op.Member})
			if ttlSeconds > 0 {
				pipe.Expire(opCtx, op.Key, time.Duration(ttlSeconds)*time.Second)
			}
		}
		_, err := pipe.Exec(opCtx)
		cancel()
		c.record(id, "zadd_batch", start, err)
		if err != nil {
			return err
		}
	}
	return nil
}

// RateLimit implements a fixed-window limiter using an atomic INCR+EXPIRE
// Lua script so concurrent callers against the same window never race past
// the limit.
func (c *Client) RateLimit(ctx context.Context, key string, limit uint64, windowSeconds int64) (bool, error) {
	r, err := c.routeKey(key)
	if err != nil {
		return false, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	res, err := rateLimitScript.Run(ctx, r.Client, []string{key}, limit, windowSeconds).Int()
	c.record(r.ID, "rate_limit", start, err)
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (c *Client) ScanKeys(ctx context.Context, pattern string, limit int) ([]string, error) {
	r, err := c.anyHealthy()
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	var keys []string
	var cursor uint64
	for {
		batch, next, err := r.Client.Scan(ctx, cursor, pattern, int64(limit)).Result()
		if err != nil {
			c.record(r.ID, "scan_keys", start, err)
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 || (limit > 0 && len(keys) >= limit) {
			break
		}
	}
	c.record(r.ID, "scan_keys", start, nil)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

func (c *Client) SetURL(ctx context.Context, code string, rec storage.URLRecord) error {
	r, err := c.routeKey(storage.URLKey(code))
	if err != nil {
		return err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	var ttl time.Duration
	if rec.ExpiresAtUnix > 0 {
		ttl = time.Until(time.Unix(rec.ExpiresAtUnix, 0))
		if ttl < 0 {
			ttl = 0
		}
	}

	pipe := r.Client.TxPipeline()
	pipe.Set(ctx, storage.URLKey(code), storage.EncodeURLRecord(rec), ttl)
	if rec.OwnerID != "" {
		pipe.SAdd(ctx, storage.UserURLsKey(rec.OwnerID), code)
	}
	_, err = pipe.Exec(ctx)
	c.record(r.ID, "set_url", start, err)
	return err
}

func (c *Client) DeleteURL(ctx context.Context, code, ownerID, requesterEmail string) error {
	r, err := c.routeKey(storage.URLKey(code))
	if err != nil {
		return err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	pipe := r.Client.TxPipeline()
	pipe.Del(ctx, storage.URLKey(code))
	if ownerID != "" {
		pipe.SRem(ctx, storage.UserURLsKey(ownerID), code)
	}
	_, err = pipe.Exec(ctx)
	c.record(r.ID, "delete_url", start, err)
	return err
}

func (c *Client) ListURLs(ctx context.Context, ownerID string, page, perPage uint64) (storage.Page, error) {
	r, err := c.routeKey(storage.UserURLsKey(ownerID))
	if err != nil {
		return storage.Page{}, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	members, err := r.Client.SMembers(ctx, storage.UserURLsKey(ownerID)).Result()
	c.record(r.ID, "list_urls", start, err)
	if err != nil {
		return storage.Page{}, err
	}
	sort.Strings(members)

	total := uint64(len(members))
	if perPage == 0 {
		perPage = total
	}
	lo := page * perPage
	if lo > total {
		lo = total
	}
	hi := lo + perPage
	if hi > total {
		hi = total
	}
	return storage.Page{Codes: members[lo:hi], Total: total, Page: page, PerPage: perPage}, nil
}

func (c *Client) SetUser(ctx context.Context, u storage.User) error {
	r, err := c.routeKey(storage.UserKey(u.ID))
	if err != nil {
		return err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	pipe := r.Client.TxPipeline()
	pipe.Set(ctx, storage.UserKey(u.ID), storage.EncodeUser(u), 0)
	if u.Email != "" {
		pipe.Set(ctx, storage.UserEmailKey(u.Email), u.ID, 0)
	}
	_, err = pipe.Exec(ctx)
	c.record(r.ID, "set_user", start, err)
	return err
}

func (c *Client) GetUser(ctx context.Context, idOrEmail string) (storage.User, bool, error) {
	key := storage.UserKey(idOrEmail)
	r, err := c.routeKey(key)
	if err != nil {
		return storage.User{}, false, err
	}
	opCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	raw, err := r.Client.Get(opCtx, key).Result()
	if err == redis.Nil {
		// Not found by ID; idOrEmail may be an email, indirect through the
		// user_email:<email> pointer.
		id, err2 := r.Client.Get(opCtx, storage.UserEmailKey(idOrEmail)).Result()
		if err2 == redis.Nil {
			c.record(r.ID, "get_user", start, nil)
			return storage.User{}, false, nil
		}
		if err2 != nil {
			c.record(r.ID, "get_user", start, err2)
			return storage.User{}, false, err2
		}
		return c.GetUser(ctx, id)
	}
	c.record(r.ID, "get_user", start, err)
	if err != nil {
		return storage.User{}, false, err
	}
	u, err := storage.DecodeUser(raw)
	return u, true, err
}

func (c *Client) CountUsers(ctx context.Context) (uint64, error) {
	keys, err := c.ScanKeys(ctx, "user:*", 0)
	if err != nil {
		return 0, err
	}
	return uint64(len(keys)), nil
}

func (c *Client) CountURLs(ctx context.Context, ownerID string) (uint64, error) {
	if ownerID == "" {
		keys, err := c.ScanKeys(ctx, "url:*", 0)
		if err != nil {
			return 0, err
		}
		return uint64(len(keys)), nil
	}
	r, err := c.routeKey(storage.UserURLsKey(ownerID))
	if err != nil {
		return 0, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	n, err := r.Client.SCard(ctx, storage.UserURLsKey(ownerID)).Result()
	c.record(r.ID, "count_urls", start, err)
	return uint64(n), err
}

func (c *Client) BlacklistToken(ctx context.Context, token string, expirySeconds int64) error {
	r, err := c.routeKey(storage.TokenKey(token))
	if err != nil {
		return err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	err = r.Client.Set(ctx, storage.TokenKey(token), "1", time.Duration(expirySeconds)*time.Second).Err()
	c.record(r.ID, "blacklist_token", start, err)
	return err
}

func (c *Client) IsTokenBlacklisted(ctx context.Context, token string) (bool, error) {
	r, err := c.routeKey(storage.TokenKey(token))
	if err != nil {
		return false, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	n, err := r.Client.Exists(ctx, storage.TokenKey(token)).Result()
	c.record(r.ID, "is_token_blacklisted", start, err)
	return n > 0, err
}
