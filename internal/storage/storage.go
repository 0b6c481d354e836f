// Package storage defines the polymorphic contract implemented by both the
// remote-KV client (internal/remotekv) and the on-disk KV adapter
// (internal/diskkv). The orchestrator and the analytics flusher depend only
// on this interface, never on a concrete backend, and must not branch on
// backend identity.
package storage

import (
	"context"
	"errors"
)

// ErrKeyNotFound and ErrUnavailable are the sentinels both concrete
// backends (remotekv, diskkv) return. This package does not depend on
// internal/model; the orchestrator reports a miss on every tier as
// model.ErrNotFound and wraps other backend errors as they are.
var (
	ErrKeyNotFound = errors.New("storage: key not found")
	ErrUnavailable = errors.New("storage: unavailable")
)

// Storage is the shared contract every backend implements. Every method
// accepts a context so timeouts and cancellation propagate uniformly
// regardless of backend.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	SetEx(ctx context.Context, key, value string, ttl int64) error
	Delete(ctx context.Context, key string) error

	ZAdd(ctx context.Context, key string, score, member uint64) error
	ZRange(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error)
	ZAddBatch(ctx context.Context, ops []ZAddOp, ttlSeconds int64) error

	RateLimit(ctx context.Context, key string, limit uint64, windowSeconds int64) (bool, error)
	ScanKeys(ctx context.Context, pattern string, limit int) ([]string, error)

	// SetURL writes url:<code> and the user_urls:<owner> membership marker
	// as a single logical operation, keeping the secondary index consistent.
	SetURL(ctx context.Context, code string, rec URLRecord) error
	DeleteURL(ctx context.Context, code, ownerID, requesterEmail string) error
	ListURLs(ctx context.Context, ownerID string, page, perPage uint64) (Page, error)

	SetUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, idOrEmail string) (User, bool, error)
	CountUsers(ctx context.Context) (uint64, error)
	CountURLs(ctx context.Context, ownerID string) (uint64, error)

	BlacklistToken(ctx context.Context, token string, expirySeconds int64) error
	IsTokenBlacklisted(ctx context.Context, token string) (bool, error)
}

// ScoredMember mirrors model.ScoredMember without importing internal/model,
// keeping this package's dependency surface minimal (only the two concrete
// backends and the orchestrator need the richer model types).
type ScoredMember struct {
	Score  uint64
	Member uint64
}

// ZAddOp is one member of a zadd_batch call.
type ZAddOp struct {
	Key    string
	Score  uint64
	Member uint64
}

// URLRecord is the storage-layer shape of model.UrlRecord (string timestamps
// are avoided; callers convert at the boundary).
type URLRecord struct {
	LongURL       string
	OwnerID       string
	CreatedAtUnix int64
	ExpiresAtUnix int64 // 0 means no expiry
}

// User is the storage-layer shape of model.User.
type User struct {
	ID            string
	Email         string
	PasswordHash  []byte
	CreatedAtUnix int64
}

// Page is the storage-layer pagination envelope.
type Page struct {
	Codes   []string
	Total   uint64
	Page    uint64
	PerPage uint64
}
