package remotekv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/linkforge/shortlink/internal/storage"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })

	c := New(Config{
		Replicas:  []Replica{{ID: "r1", Client: rc}},
		OpTimeout: time.Second,
	}, nil)
	t.Cleanup(c.Close)
	return c, mr
}

func TestClient_GetSetEx(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	if _, err := c.Get(ctx, "missing"); !errors.Is(err, storage.ErrKeyNotFound) {
		t.Fatalf("want ErrKeyNotFound, got %v", err)
	}

	if err := c.SetEx(ctx, "k", "v", 0); err != nil {
		t.Fatalf("SetEx: %v", err)
	}
	v, err := c.Get(ctx, "k")
	if err != nil || v != "v" {
		t.Fatalf("Get: got (%q, %v)", v, err)
	}
}

func TestClient_ZAddAndZRange(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	if err := c.ZAdd(ctx, "stats:abc", 100, 1); err != nil {
		t.Fatalf("ZAdd: %v", err)
	}
	if err := c.ZAdd(ctx, "stats:abc", 200, 2); err != nil {
		t.Fatalf("ZAdd: %v", err)
	}
	members, err := c.ZRange(ctx, "stats:abc", 0, -1)
	if err != nil {
		t.Fatalf("ZRange: %v", err)
	}
	if len(members) != 2 || members[0].Score != 100 || members[1].Score != 200 {
		t.Fatalf("unexpected members: %+v", members)
	}
}

func TestClient_ZAddBatch(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	ops := []storage.ZAddOp{
		{Key: "stats:a", Score: 1, Member: 1},
		{Key: "stats:b", Score: 2, Member: 2},
	}
	if err := c.ZAddBatch(ctx, ops, 60); err != nil {
		t.Fatalf("ZAddBatch: %v", err)
	}
	for _, k := range []string{"stats:a", "stats:b"} {
		members, err := c.ZRange(ctx, k, 0, -1)
		if err != nil || len(members) != 1 {
			t.Fatalf("ZRange(%s): %+v, %v", k, members, err)
		}
	}
}

func TestClient_RateLimit(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := c.RateLimit(ctx, "rate:ip:x", 3, 60)
		if err != nil {
			t.Fatalf("RateLimit: %v", err)
		}
		if !ok {
			t.Fatalf("call %d should be allowed", i)
		}
	}
	ok, err := c.RateLimit(ctx, "rate:ip:x", 3, 60)
	if err != nil {
		t.Fatalf("RateLimit: %v", err)
	}
	if ok {
		t.Fatal("4th call should be denied")
	}
}

func TestClient_SetURLAndListURLs(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	rec := storage.URLRecord{LongURL: "https://example.com", OwnerID: "u1", CreatedAtUnix: time.Now().Unix()}
	if err := c.SetURL(ctx, "abc123", rec); err != nil {
		t.Fatalf("SetURL: %v", err)
	}

	raw, err := c.Get(ctx, storage.URLKey("abc123"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got, err := storage.DecodeURLRecord(raw)
	if err != nil || got.LongURL != rec.LongURL {
		t.Fatalf("decoded record mismatch: %+v, %v", got, err)
	}

	page, err := c.ListURLs(ctx, "u1", 0, 10)
	if err != nil {
		t.Fatalf("ListURLs: %v", err)
	}
	if page.Total != 1 || page.Codes[0] != "abc123" {
		t.Fatalf("unexpected page: %+v", page)
	}

	if err := c.DeleteURL(ctx, "abc123", "u1", ""); err != nil {
		t.Fatalf("DeleteURL: %v", err)
	}
	page, err = c.ListURLs(ctx, "u1", 0, 10)
	if err != nil || page.Total != 0 {
		t.Fatalf("expected empty page after delete, got %+v, %v", page, err)
	}
}

func TestClient_UserRoundTrip(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	u := storage.User{ID: "u1", Email: "u1@example.com", CreatedAtUnix: time.Now().Unix()}
	if err := c.SetUser(ctx, u); err != nil {
		t.Fatalf("SetUser: %v", err)
	}

	got, ok, err := c.GetUser(ctx, "u1")
	if err != nil || !ok || got.Email != u.Email {
		t.Fatalf("GetUser by id: %+v, %v, %v", got, ok, err)
	}

	got, ok, err = c.GetUser(ctx, "u1@example.com")
	if err != nil || !ok || got.ID != u.ID {
		t.Fatalf("GetUser by email: %+v, %v, %v", got, ok, err)
	}

	missing, ok, err := c.GetUser(ctx, "nobody")
	if err != nil || ok {
		t.Fatalf("expected no user, got %+v, %v, %v", missing, ok, err)
	}
}

func TestClient_CountUsersAndURLs(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	if err := c.SetUser(ctx, storage.User{ID: "u1"}); err != nil {
		t.Fatalf("SetUser: %v", err)
	}
	if err := c.SetUser(ctx, storage.User{ID: "u2"}); err != nil {
		t.Fatalf("SetUser: %v", err)
	}
	n, err := c.CountUsers(ctx)
	if err != nil || n != 2 {
		t.Fatalf("CountUsers: got %d, %v", n, err)
	}

	if err := c.SetURL(ctx, "code1", storage.URLRecord{LongURL: "https://a", OwnerID: "u1"}); err != nil {
		t.Fatalf("SetURL: %v", err)
	}
	owned, err := c.CountURLs(ctx, "u1")
	if err != nil || owned != 1 {
		t.Fatalf("CountURLs(u1): got %d, %v", owned, err)
	}
}

func TestClient_TokenBlacklist(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	blacklisted, err := c.IsTokenBlacklisted(ctx, "tok1")
	if err != nil || blacklisted {
		t.Fatalf("expected not blacklisted, got %v, %v", blacklisted, err)
	}
	if err := c.BlacklistToken(ctx, "tok1", 60); err != nil {
		t.Fatalf("BlacklistToken: %v", err)
	}
	blacklisted, err = c.IsTokenBlacklisted(ctx, "tok1")
	if err != nil || !blacklisted {
		t.Fatalf("expected blacklisted, got %v, %v", blacklisted, err)
	}
}
