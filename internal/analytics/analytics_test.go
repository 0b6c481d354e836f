package analytics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/linkforge/shortlink/internal/model"
	"github.com/linkforge/shortlink/internal/storage"
)

// fakeStorage is an in-memory storage.Storage double exercising only the
// sorted-set methods the analytics pipeline uses.
type fakeStorage struct {
	mu   sync.Mutex
	sets map[string][]storage.ScoredMember
	fail bool
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{sets: make(map[string][]storage.ScoredMember)}
}

func (f *fakeStorage) ZAddBatch(ctx context.Context, ops []storage.ZAddOp, ttlSeconds int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return context.DeadlineExceeded
	}
	for _, op := range ops {
		members := f.sets[op.Key]
		replaced := false
		for i, m := range members {
			if m.Member == op.Member {
				members[i].Score = op.Score
				replaced = true
				break
			}
		}
		if !replaced {
			members = append(members, storage.ScoredMember{Score: op.Score, Member: op.Member})
		}
		f.sets[op.Key] = members
	}
	return nil
}

func (f *fakeStorage) ZRange(ctx context.Context, key string, start, stop int64) ([]storage.ScoredMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storage.ScoredMember(nil), f.sets[key]...), nil
}

func (f *fakeStorage) Get(context.Context, string) (string, error)         { panic("unused") }
func (f *fakeStorage) SetEx(context.Context, string, string, int64) error  { panic("unused") }
func (f *fakeStorage) Delete(context.Context, string) error                { panic("unused") }
func (f *fakeStorage) ZAdd(context.Context, string, uint64, uint64) error  { panic("unused") }
func (f *fakeStorage) RateLimit(context.Context, string, uint64, int64) (bool, error) {
	panic("unused")
}
func (f *fakeStorage) ScanKeys(context.Context, string, int) ([]string, error) { panic("unused") }
func (f *fakeStorage) SetURL(context.Context, string, storage.URLRecord) error { panic("unused") }
func (f *fakeStorage) DeleteURL(context.Context, string, string, string) error { panic("unused") }
func (f *fakeStorage) ListURLs(context.Context, string, uint64, uint64) (storage.Page, error) {
	panic("unused")
}
func (f *fakeStorage) SetUser(context.Context, storage.User) error { panic("unused") }
func (f *fakeStorage) GetUser(context.Context, string) (storage.User, bool, error) {
	panic("unused")
}
func (f *fakeStorage) CountUsers(context.Context) (uint64, error)         { panic("unused") }
func (f *fakeStorage) CountURLs(context.Context, string) (uint64, error)  { panic("unused") }
func (f *fakeStorage) BlacklistToken(context.Context, string, int64) error { panic("unused") }
func (f *fakeStorage) IsTokenBlacklisted(context.Context, string) (bool, error) {
	panic("unused")
}

var _ storage.Storage = (*fakeStorage)(nil)

func TestQueue_EnqueueDropsWhenFull(t *testing.T) {
	q := NewQueue(2, nil)
	require.True(t, q.Enqueue(model.AnalyticsEvent{Code: "a", Timestamp: 1}), "first enqueue should succeed")
	require.True(t, q.Enqueue(model.AnalyticsEvent{Code: "b", Timestamp: 2}), "second enqueue should succeed")
	require.False(t, q.Enqueue(model.AnalyticsEvent{Code: "c", Timestamp: 3}), "third enqueue must be dropped, queue capacity is 2")
}

func TestFlusher_DrainAndFlushWritesBothBackends(t *testing.T) {
	q := NewQueue(10, nil)
	remote := newFakeStorage()
	disk := newFakeStorage()
	f := NewFlusher(q, remote, disk, Config{FlushInterval: time.Hour, MaxBatchSize: 10}, nil)

	q.Enqueue(model.AnalyticsEvent{Code: "abc", Timestamp: 100})
	q.Enqueue(model.AnalyticsEvent{Code: "abc", Timestamp: 200})
	q.Enqueue(model.AnalyticsEvent{Code: "xyz", Timestamp: 300})

	f.drainAndFlush(context.Background())

	members, err := remote.ZRange(context.Background(), StatsKey("abc"), 0, -1)
	require.NoError(t, err)
	require.Len(t, members, 2)

	members, err = disk.ZRange(context.Background(), StatsKey("abc"), 0, -1)
	require.NoError(t, err)
	require.Len(t, members, 2)
}

func TestFlusher_RunFlushesOnTickerAndShutdown(t *testing.T) {
	q := NewQueue(10, nil)
	remote := newFakeStorage()
	f := NewFlusher(q, remote, nil, Config{FlushInterval: 10 * time.Millisecond, MaxBatchSize: 10}, nil)

	go f.Run(context.Background())
	q.Enqueue(model.AnalyticsEvent{Code: "tick", Timestamp: 1})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		members, _ := remote.ZRange(context.Background(), StatsKey("tick"), 0, -1)
		if len(members) == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	members, err := remote.ZRange(context.Background(), StatsKey("tick"), 0, -1)
	if err != nil || len(members) != 1 {
		t.Fatalf("want one flushed member, got %+v, %v", members, err)
	}

	f.Shutdown()
	f.Shutdown() // must be idempotent
}

func TestFlusher_MaxBatchSizeBoundsOneTick(t *testing.T) {
	q := NewQueue(100, nil)
	remote := newFakeStorage()
	f := NewFlusher(q, remote, nil, Config{FlushInterval: time.Hour, MaxBatchSize: 5}, nil)

	for i := 0; i < 20; i++ {
		q.Enqueue(model.AnalyticsEvent{Code: "bulk", Timestamp: uint64(i)})
	}
	f.drainAndFlush(context.Background())

	members, err := remote.ZRange(context.Background(), StatsKey("bulk"), 0, -1)
	if err != nil || len(members) != 5 {
		t.Fatalf("want exactly 5 members from one bounded tick, got %d: %v", len(members), err)
	}
}

func TestGetAnalytics_FallsBackToDiskAndRepopulatesRemote(t *testing.T) {
	remote := newFakeStorage()
	disk := newFakeStorage()
	disk.sets[StatsKey("only-on-disk")] = []storage.ScoredMember{{Score: 5, Member: 5}}

	got, err := GetAnalytics(context.Background(), remote, disk, "only-on-disk", 0, -1)
	if err != nil || len(got) != 1 {
		t.Fatalf("GetAnalytics: %+v, %v", got, err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		remote.mu.Lock()
		n := len(remote.sets[StatsKey("only-on-disk")])
		remote.mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("disk hit should have repopulated remote")
}

// A never-clicked code is a successful empty read, not an unavailable
// backend: with no disk tier configured, GetAnalytics must not turn that
// into model.ErrUnavailable.
func TestGetAnalytics_RemoteEmptyNoDiskReturnsEmptyNotUnavailable(t *testing.T) {
	remote := newFakeStorage()

	got, err := GetAnalytics(context.Background(), remote, nil, "never-clicked", 0, -1)
	require.NoError(t, err)
	require.Empty(t, got)
}
