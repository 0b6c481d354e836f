package diskkv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/linkforge/shortlink/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Dir: t.TempDir(), SnapshotThreshold: 5, SnapshotTTL: 50 * time.Millisecond, GCInterval: time.Hour}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_GetSetExAndTTL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, storage.ErrKeyNotFound) {
		t.Fatalf("want ErrKeyNotFound, got %v", err)
	}

	if err := s.SetEx(ctx, "k", "v", 0); err != nil {
		t.Fatalf("SetEx: %v", err)
	}
	v, err := s.Get(ctx, "k")
	if err != nil || v != "v" {
		t.Fatalf("Get: got (%q, %v)", v, err)
	}

	if err := s.SetEx(ctx, "ttl-key", "expiring", 1); err != nil {
		t.Fatalf("SetEx: %v", err)
	}
	if v, err := s.Get(ctx, "ttl-key"); err != nil || v != "expiring" {
		t.Fatalf("expected value before expiry, got (%q, %v)", v, err)
	}
}

func TestStore_ZAddAndZRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.ZAdd(ctx, "stats:abc", 200, 2); err != nil {
		t.Fatalf("ZAdd: %v", err)
	}
	if err := s.ZAdd(ctx, "stats:abc", 100, 1); err != nil {
		t.Fatalf("ZAdd: %v", err)
	}
	// Replacing member 1's score must not duplicate it.
	if err := s.ZAdd(ctx, "stats:abc", 150, 1); err != nil {
		t.Fatalf("ZAdd: %v", err)
	}

	members, err := s.ZRange(ctx, "stats:abc", 0, -1)
	if err != nil {
		t.Fatalf("ZRange: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("want 2 deduplicated members, got %d: %+v", len(members), members)
	}
	if members[0].Member != 1 || members[0].Score != 150 {
		t.Fatalf("want member 1 at score 150 sorted first, got %+v", members[0])
	}
}

func TestStore_ZAddBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ops := []storage.ZAddOp{
		{Key: "stats:a", Score: 1, Member: 10},
		{Key: "stats:a", Score: 2, Member: 20},
		{Key: "stats:b", Score: 3, Member: 30},
	}
	if err := s.ZAddBatch(ctx, ops, 3600); err != nil {
		t.Fatalf("ZAddBatch: %v", err)
	}
	members, err := s.ZRange(ctx, "stats:a", 0, -1)
	if err != nil || len(members) != 2 {
		t.Fatalf("ZRange(stats:a): %+v, %v", members, err)
	}
}

func TestStore_ZRangeSnapshotPath(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := uint64(0); i < 10; i++ {
		if err := s.ZAdd(ctx, "stats:big", i, i); err != nil {
			t.Fatalf("ZAdd: %v", err)
		}
	}
	// Over SnapshotThreshold (5): triggers a background snapshot rebuild.
	if _, err := s.ZRange(ctx, "stats:big", 0, -1); err != nil {
		t.Fatalf("ZRange: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		prefix := storage.KeyPrefix24("stats:big")
		if _, err := s.Get(ctx, storage.SnapshotKey(prefix)); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("snapshot was never built")
}

func TestStore_SetURLAndListURLs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := storage.URLRecord{LongURL: "https://example.com", OwnerID: "u1", CreatedAtUnix: time.Now().Unix()}
	if err := s.SetURL(ctx, "abc123", rec); err != nil {
		t.Fatalf("SetURL: %v", err)
	}

	raw, err := s.Get(ctx, storage.URLKey("abc123"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got, err := storage.DecodeURLRecord(raw)
	if err != nil || got.LongURL != rec.LongURL {
		t.Fatalf("decoded record mismatch: %+v, %v", got, err)
	}

	page, err := s.ListURLs(ctx, "u1", 0, 10)
	if err != nil || page.Total != 1 || page.Codes[0] != "abc123" {
		t.Fatalf("unexpected page: %+v, %v", page, err)
	}

	if err := s.DeleteURL(ctx, "abc123", "u1", ""); err != nil {
		t.Fatalf("DeleteURL: %v", err)
	}
	page, err = s.ListURLs(ctx, "u1", 0, 10)
	if err != nil || page.Total != 0 {
		t.Fatalf("expected empty page after delete, got %+v, %v", page, err)
	}
}

func TestStore_UserRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := storage.User{ID: "u1", Email: "u1@example.com", CreatedAtUnix: time.Now().Unix()}
	if err := s.SetUser(ctx, u); err != nil {
		t.Fatalf("SetUser: %v", err)
	}

	got, ok, err := s.GetUser(ctx, "u1")
	if err != nil || !ok || got.Email != u.Email {
		t.Fatalf("GetUser by id: %+v, %v, %v", got, ok, err)
	}
	got, ok, err = s.GetUser(ctx, "u1@example.com")
	if err != nil || !ok || got.ID != u.ID {
		t.Fatalf("GetUser by email: %+v, %v, %v", got, ok, err)
	}
	_, ok, err = s.GetUser(ctx, "nobody")
	if err != nil || ok {
		t.Fatalf("expected no user, got ok=%v, err=%v", ok, err)
	}
}

func TestStore_RateLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := s.RateLimit(ctx, "rate:ip:x", 3, 60)
		if err != nil || !ok {
			t.Fatalf("call %d should be allowed, got %v, %v", i, ok, err)
		}
	}
	ok, err := s.RateLimit(ctx, "rate:ip:x", 3, 60)
	if err != nil {
		t.Fatalf("RateLimit: %v", err)
	}
	if ok {
		t.Fatal("4th call should be denied")
	}
}

func TestStore_TokenBlacklist(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	blacklisted, err := s.IsTokenBlacklisted(ctx, "tok1")
	if err != nil || blacklisted {
		t.Fatalf("expected not blacklisted, got %v, %v", blacklisted, err)
	}
	if err := s.BlacklistToken(ctx, "tok1", 60); err != nil {
		t.Fatalf("BlacklistToken: %v", err)
	}
	blacklisted, err = s.IsTokenBlacklisted(ctx, "tok1")
	if err != nil || !blacklisted {
		t.Fatalf("expected blacklisted, got %v, %v", blacklisted, err)
	}
}

func TestStore_ScanKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, code := range []string{"a", "b", "c"} {
		if err := s.SetURL(ctx, code, storage.URLRecord{LongURL: "https://x"}); err != nil {
			t.Fatalf("SetURL: %v", err)
		}
	}
	keys, err := s.ScanKeys(ctx, "url:*", 0)
	if err != nil || len(keys) != 3 {
		t.Fatalf("ScanKeys: got %v, %v", keys, err)
	}
}
