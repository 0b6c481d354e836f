package diskkv

import (
	"context"
	"strconv"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// RateLimit implements a fixed-window limiter as a read-modify-write
// transaction: the packed value's trailing expiry marks the window
// boundary, and the payload carries the window's running count.
func (s *Store) RateLimit(ctx context.Context, key string, limit uint64, windowSeconds int64) (bool, error) {
	start := time.Now()
	var allowed bool
	err := s.db.Update(func(txn *badger.Txn) error {
		now := time.Now().Unix()
		count := uint64(0)
		windowEnd := now + windowSeconds

		item, err := txn.Get([]byte(key))
		if err == nil {
			if valErr := item.Value(func(raw []byte) error {
				v, expiresAt := unpackValue(raw)
				if expiresAt != 0 && now < expiresAt {
					parsed, parseErr := strconv.ParseUint(v, 10, 64)
					if parseErr != nil {
						return parseErr
					}
					count = parsed
					windowEnd = expiresAt
				}
				return nil
			}); valErr != nil {
				return valErr
			}
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		count++
		allowed = count <= limit
		return txn.Set([]byte(key), packValue(strconv.FormatUint(count, 10), windowEnd))
	})
	s.record("rate_limit", start, err)
	return allowed, err
}
