package diskkv

import (
	"context"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/linkforge/shortlink/internal/storage"
)

// SetURL writes url:<code> and the user_urls:<owner> membership marker in a
// single Badger transaction, keeping the secondary index consistent.
func (s *Store) SetURL(ctx context.Context, code string, rec storage.URLRecord) error {
	start := time.Now()
	err := s.db.Update(func(txn *badger.Txn) error {
		var expiresAt int64
		if rec.ExpiresAtUnix > 0 {
			expiresAt = rec.ExpiresAtUnix
		}
		if err := txn.Set([]byte(storage.URLKey(code)), packValue(storage.EncodeURLRecord(rec), expiresAt)); err != nil {
			return err
		}
		if rec.OwnerID == "" {
			return nil
		}
		return addToSet(txn, storage.UserURLsKey(rec.OwnerID), code)
	})
	s.record("set_url", start, err)
	return err
}

func (s *Store) DeleteURL(ctx context.Context, code, ownerID, requesterEmail string) error {
	start := time.Now()
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(storage.URLKey(code))); err != nil {
			return err
		}
		if ownerID == "" {
			return nil
		}
		return removeFromSet(txn, storage.UserURLsKey(ownerID), code)
	})
	s.record("delete_url", start, err)
	return err
}

func (s *Store) ListURLs(ctx context.Context, ownerID string, page, perPage uint64) (storage.Page, error) {
	start := time.Now()
	var members []string
	err := s.db.View(func(txn *badger.Txn) error {
		m, err := readSet(txn, storage.UserURLsKey(ownerID))
		members = m
		return err
	})
	s.record("list_urls", start, err)
	if err != nil {
		return storage.Page{}, err
	}

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

func (s *Store) SetUser(ctx context.Context, u storage.User) error {
	start := time.Now()
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(storage.UserKey(u.ID)), packValue(storage.EncodeUser(u), 0)); err != nil {
			return err
		}
		if u.Email == "" {
			return nil
		}
		return txn.Set([]byte(storage.UserEmailKey(u.Email)), packValue(u.ID, 0))
	})
	s.record("set_user", start, err)
	return err
}

func (s *Store) GetUser(ctx context.Context, idOrEmail string) (storage.User, bool, error) {
	start := time.Now()
	var (
		u     storage.User
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(storage.UserKey(idOrEmail)))
		if err == badger.ErrKeyNotFound {
			idItem, err2 := txn.Get([]byte(storage.UserEmailKey(idOrEmail)))
			if err2 == badger.ErrKeyNotFound {
				return nil
			}
			if err2 != nil {
				return err2
			}
			var id string
			if valErr := idItem.Value(func(raw []byte) error {
				id, _ = unpackValue(raw)
				return nil
			}); valErr != nil {
				return valErr
			}
			item, err = txn.Get([]byte(storage.UserKey(id)))
			if err == badger.ErrKeyNotFound {
				return nil
			}
		}
		if err != nil {
			return err
		}
		return item.Value(func(raw []byte) error {
			v, _ := unpackValue(raw)
			decoded, decErr := storage.DecodeUser(v)
			if decErr != nil {
				return decErr
			}
			u = decoded
			found = true
			return nil
		})
	})
	s.record("get_user", start, err)
	return u, found, err
}

func (s *Store) CountUsers(ctx context.Context) (uint64, error) {
	keys, err := s.ScanKeys(ctx, "user:", 0)
	return uint64(len(keys)), err
}

func (s *Store) CountURLs(ctx context.Context, ownerID string) (uint64, error) {
	if ownerID == "" {
		keys, err := s.ScanKeys(ctx, "url:", 0)
		return uint64(len(keys)), err
	}
	start := time.Now()
	var members []string
	err := s.db.View(func(txn *badger.Txn) error {
		m, err := readSet(txn, storage.UserURLsKey(ownerID))
		members = m
		return err
	})
	s.record("count_urls", start, err)
	return uint64(len(members)), err
}

func (s *Store) BlacklistToken(ctx context.Context, token string, expirySeconds int64) error {
	start := time.Now()
	expiresAt := time.Now().Unix() + expirySeconds
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(storage.TokenKey(token)), packValue("1", expiresAt))
	})
	s.record("blacklist_token", start, err)
	return err
}

func (s *Store) IsTokenBlacklisted(ctx context.Context, token string) (bool, error) {
	start := time.Now()
	var blacklisted bool
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(storage.TokenKey(token)))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(raw []byte) error {
			_, expiresAt := unpackValue(raw)
			blacklisted = expiresAt == 0 || time.Now().Unix() < expiresAt
			return nil
		})
	})
	s.record("is_token_blacklisted", start, err)
	return blacklisted, err
}

// ScanKeys supports bounded prefix scans (CountUsers and CountURLs use it).
// pattern is matched as a prefix;
// a trailing "*" (the Redis glob convention callers may pass, matching
// internal/remotekv's pattern shape) is stripped before matching.
func (s *Store) ScanKeys(ctx context.Context, pattern string, limit int) ([]string, error) {
	start := time.Now()
	pattern = strings.TrimSuffix(pattern, "*")
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(pattern)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
			if limit > 0 && len(keys) >= limit {
				break
			}
		}
		return nil
	})
	s.record("scan_keys", start, err)
	return keys, err
}

// addToSet/removeFromSet/readSet emulate a membership set (user_urls:<owner>)
// as a single JSON-encoded, deduplicated array kept in insertion order.

func readSet(txn *badger.Txn, key string) ([]string, error) {
	item, err := txn.Get([]byte(key))
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var members []string
	err = item.Value(func(raw []byte) error {
		v, _ := unpackValue(raw)
		m, decErr := storage.DecodeSet(v)
		members = m
		return decErr
	})
	return members, err
}

func addToSet(txn *badger.Txn, key, member string) error {
	members, err := readSet(txn, key)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m == member {
			return nil
		}
	}
	members = append(members, member)
	return txn.Set([]byte(key), packValue(storage.EncodeSet(members), 0))
}

func removeFromSet(txn *badger.Txn, key, member string) error {
	members, err := readSet(txn, key)
	if err != nil {
		return err
	}
	out := members[:0]
	for _, m := range members {
		if m != member {
			out = append(out, m)
		}
	}
	return txn.Set([]byte(key), packValue(storage.EncodeSet(out), 0))
}
