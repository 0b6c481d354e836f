package diskkv

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/linkforge/shortlink/internal/storage"
)

// readMembers loads and decodes the live (non-snapshot) value for
// key inside an open transaction. A missing or expired key decodes as an
// empty set.
func readMembers(txn *badger.Txn, key string) ([]storage.ScoredMember, error) {
	item, err := txn.Get([]byte(key))
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var members []storage.ScoredMember
	err = item.Value(func(raw []byte) error {
		raw2, expiresAt := unpackValue(raw)
		if expiresAt != 0 && time.Now().Unix() >= expiresAt {
			return nil
		}
		m, decErr := storage.DecodeMembers(raw2)
		members = m
		return decErr
	})
	return members, err
}

// upsertMembers merges a single (score, member) pair into members,
// replacing any existing entry for the same member (last write wins), then
// re-sorts ascending by score.
func upsertMembers(members []storage.ScoredMember, score, member uint64) []storage.ScoredMember {
	out := make([]storage.ScoredMember, 0, len(members)+1)
	for _, m := range members {
		if m.Member != member {
			out = append(out, m)
		}
	}
	out = append(out, storage.ScoredMember{Score: score, Member: member})
	sort.Slice(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	return out
}

func (s *Store) writeMembers(txn *badger.Txn, key string, members []storage.ScoredMember, ttlSeconds int64) error {
	var expiresAt int64
	if ttlSeconds > 0 {
		expiresAt = time.Now().Unix() + ttlSeconds
	}
	if err := txn.Set([]byte(key), packValue(storage.EncodeMembers(members), expiresAt)); err != nil {
		return err
	}
	// Any write invalidates the cached snapshot's freshness.
	return txn.Delete([]byte(storage.SnapshotMetaKey(storage.KeyPrefix24(key))))
}

func (s *Store) ZAdd(ctx context.Context, key string, score, member uint64) error {
	start := time.Now()
	err := s.db.Update(func(txn *badger.Txn) error {
		members, err := readMembers(txn, key)
		if err != nil {
			return err
		}
		members = upsertMembers(members, score, member)
		return s.writeMembers(txn, key, members, 0)
	})
	s.record("zadd", start, err)
	return err
}

// ZAddBatch groups ops by key so each key's read-modify-write happens once
// per key, inside a single transaction, even when the batch carries several
// updates to it.
func (s *Store) ZAddBatch(ctx context.Context, ops []storage.ZAddOp, ttlSeconds int64) error {
	start := time.Now()
	byKey := make(map[string][]storage.ZAddOp)
	order := make([]string, 0)
	for _, op := range ops {
		if _, ok := byKey[op.Key]; !ok {
			order = append(order, op.Key)
		}
		byKey[op.Key] = append(byKey[op.Key], op)
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		for _, key := range order {
			members, err := readMembers(txn, key)
			if err != nil {
				return err
			}
			for _, op := range byKey[key] {
				members = upsertMembers(members, op.Score, op.Member)
			}
			if err := s.writeMembers(txn, key, members, ttlSeconds); err != nil {
				return err
			}
		}
		return nil
	})
	s.record("zadd_batch", start, err)
	return err
}

// ZRange slices by rank. For sets at or above SnapshotThreshold, a fresh
// snapshot is served if one exists within SnapshotTTL; otherwise the live
// representation is read and a rebuild is kicked off in the background.
func (s *Store) ZRange(ctx context.Context, key string, start, stop int64) ([]storage.ScoredMember, error) {
	t0 := time.Now()
	members, usedSnapshot, err := s.zrangeSource(key)
	s.record("zrange", t0, err)
	if err != nil {
		return nil, err
	}
	if !usedSnapshot && len(members) >= s.cfg.SnapshotThreshold {
		s.scheduleSnapshotRebuild(key, members)
	}
	return sliceByRank(members, start, stop), nil
}

func (s *Store) zrangeSource(key string) (members []storage.ScoredMember, usedSnapshot bool, err error) {
	prefix := storage.KeyPrefix24(key)
	err = s.db.View(func(txn *badger.Txn) error {
		metaItem, metaErr := txn.Get([]byte(storage.SnapshotMetaKey(prefix)))
		if metaErr == nil {
			var lastBuiltUnix int64
			if valErr := metaItem.Value(func(raw []byte) error {
				if len(raw) != 8 {
					return fmt.Errorf("diskkv: snapshot_meta: want 8 bytes, got %d", len(raw))
				}
				lastBuiltUnix = int64(binary.BigEndian.Uint64(raw))
				return nil
			}); valErr == nil {
				if time.Now().Unix()-lastBuiltUnix <= int64(s.cfg.SnapshotTTL.Seconds()) {
					snapItem, snapErr := txn.Get([]byte(storage.SnapshotKey(prefix)))
					if snapErr == nil {
						return snapItem.Value(func(raw []byte) error {
							v, _ := unpackValue(raw)
							m, decErr := storage.DecodeMembers(v)
							members = m
							usedSnapshot = true
							return decErr
						})
					}
				}
			}
		}
		m, liveErr := readMembers(txn, key)
		members = m
		return liveErr
	})
	return members, usedSnapshot, err
}

// scheduleSnapshotRebuild kicks off (at most one concurrent) background
// rebuild of key's snapshot pair.
func (s *Store) scheduleSnapshotRebuild(key string, members []storage.ScoredMember) {
	prefix := storage.KeyPrefix24(key)
	s.rebuildMu.Lock()
	if s.rebuilding[prefix] {
		s.rebuildMu.Unlock()
		return
	}
	s.rebuilding[prefix] = true
	s.rebuildMu.Unlock()

	snapshot := make([]storage.ScoredMember, len(members))
	copy(snapshot, members)

	go func() {
		defer func() {
			s.rebuildMu.Lock()
			delete(s.rebuilding, prefix)
			s.rebuildMu.Unlock()
		}()
		_ = s.db.Update(func(txn *badger.Txn) error {
			if err := txn.Set([]byte(storage.SnapshotKey(prefix)), packValue(storage.EncodeMembers(snapshot), 0)); err != nil {
				return err
			}
			meta := make([]byte, 8)
			binary.BigEndian.PutUint64(meta, uint64(time.Now().Unix()))
			return txn.Set([]byte(storage.SnapshotMetaKey(prefix)), meta)
		})
	}()
}

// sliceByRank applies Redis-style ZRANGE rank semantics, including negative
// indices counted from the end.
func sliceByRank(members []storage.ScoredMember, start, stop int64) []storage.ScoredMember {
	n := int64(len(members))
	if n == 0 {
		return nil
	}
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return nil
	}
	out := make([]storage.ScoredMember, stop-start+1)
	copy(out, members[start:stop+1])
	return out
}
