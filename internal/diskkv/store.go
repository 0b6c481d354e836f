// Package diskkv implements the Storage contract (internal/storage) on an
// embedded Badger LSM tree: TTL emulation via a trailing 8-byte expiry,
// SortedCounterSet emulation via read-modify-write, snapshot caching for
// large sorted sets, and the url/user_urls secondary index.
package diskkv

import (
	"context"
	"fmt"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/linkforge/shortlink/internal/metrics"
	"github.com/linkforge/shortlink/internal/storage"
)

// Config tunes a Store.
type Config struct {
	// Dir is the Badger data directory.
	Dir string
	// SnapshotThreshold is the member count at or above which a sorted set gets a
	// cached snapshot (typical sets run to roughly 1000 entries).
	SnapshotThreshold int
	// SnapshotTTL bounds how stale a served snapshot may be before a
	// rebuild is triggered.
	SnapshotTTL time.Duration
	// GCInterval is how often Badger's value-log GC runs. Keys whose
	// in-value expiry has passed are filtered on read, not compacted away.
	GCInterval time.Duration
}

func (c Config) normalize() Config {
	if c.SnapshotThreshold <= 0 {
		c.SnapshotThreshold = 1000
	}
	if c.SnapshotTTL <= 0 {
		c.SnapshotTTL = 30 * time.Second
	}
	if c.GCInterval <= 0 {
		c.GCInterval = time.Minute
	}
	return c
}

// Store implements storage.Storage over a Badger DB.
type Store struct {
	db  *badger.DB
	cfg Config

	metrics *metrics.Registry

	rebuildMu sync.Mutex
	rebuilding map[string]bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

var _ storage.Storage = (*Store)(nil)

// Open opens (creating if absent) a Badger DB at cfg.Dir and starts the
// background value-log GC loop. m may be nil.
func Open(cfg Config, m *metrics.Registry) (*Store, error) {
	cfg = cfg.normalize()
	opts := badger.DefaultOptions(cfg.Dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("diskkv: open badger at %s: %w", cfg.Dir, err)
	}
	s := &Store{
		db:         db,
		cfg:        cfg,
		metrics:    m,
		rebuilding: make(map[string]bool),
		stopCh:     make(chan struct{}),
	}
	go s.gcLoop()
	return s, nil
}

// Close stops the GC loop and closes the underlying Badger DB.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	return s.db.Close()
}

func (s *Store) gcLoop() {
	t := time.NewTicker(s.cfg.GCInterval)
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
			_ = s.db.RunValueLogGC(0.5)
		}
	}
}

func (s *Store) record(op string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.DiskOpLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil && err != badger.ErrKeyNotFound {
		s.metrics.DiskOpErrors.WithLabelValues(op).Inc()
	}
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	start := time.Now()
	var value string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(raw []byte) error {
			v, expiresAt := unpackValue(raw)
			if expiresAt != 0 && time.Now().Unix() >= expiresAt {
				return badger.ErrKeyNotFound
			}
			value = v
			return nil
		})
	})
	s.record("get", start, err)
	if err == badger.ErrKeyNotFound {
		return "", storage.ErrKeyNotFound
	}
	return value, err
}

func (s *Store) SetEx(ctx context.Context, key, value string, ttl int64) error {
	start := time.Now()
	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().Unix() + ttl
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), packValue(value, expiresAt))
	})
	s.record("set_ex", start, err)
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	s.record("delete", start, err)
	return err
}
