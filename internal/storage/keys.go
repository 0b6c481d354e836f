package storage

import "fmt"

// Key layout. Centralized here so the remote-KV client and the on-disk
// adapter never disagree on a key's shape.
func URLKey(code string) string        { return "url:" + code }
func StatsKey(code string) string      { return "stats:" + code }
func UserURLsKey(owner string) string  { return "user_urls:" + owner }
func UserKey(id string) string         { return "user:" + id }
func UserEmailKey(email string) string { return "user_email:" + email }
func TokenKey(token string) string     { return "token:" + token }
func RateKey(scope, key string) string { return fmt.Sprintf("rate:%s:%s", scope, key) }

// SnapshotKey and SnapshotMetaKey name the on-disk adapter's large-sorted-set
// snapshot pair. prefix is truncated to 24 bytes by the caller before this
// is invoked.
func SnapshotKey(prefix string) string     { return "snapshot:" + prefix }
func SnapshotMetaKey(prefix string) string { return "snapshot_meta:" + prefix }

// KeyPrefix24 truncates a stats/zset key to the 24-byte prefix used for
// snapshot key derivation.
func KeyPrefix24(key string) string {
	if len(key) <= 24 {
		return key
	}
	return key[:24]
}
