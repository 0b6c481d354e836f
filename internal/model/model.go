// Package model holds the wire-level data shapes shared by the cache
// orchestrator, the remote-KV client, the on-disk KV adapter, and the
// analytics pipeline.
package model

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors surfaced by the core. Wrap with fmt.Errorf("...: %w", Err*)
// at each layer so callers can still errors.Is against the sentinel.
var (
	// ErrNotFound means the key is absent across every tier consulted.
	ErrNotFound = errors.New("shortlink: not found")
	// ErrUnavailable means the remote KV is unreachable and no fallback
	// succeeded, or the circuit breaker has no healthy replica.
	ErrUnavailable = errors.New("shortlink: unavailable")
	// ErrOverflow means the code generator's counter wrapped on every
	// attempted shard.
	ErrOverflow = errors.New("shortlink: code generator overflow")
	// ErrConflict means an insert targeted a code already owned by someone
	// else.
	ErrConflict = errors.New("shortlink: conflict")
	// ErrValidationFailed means the caller-supplied input violates an
	// invariant (e.g. expires_at <= created_at).
	ErrValidationFailed = errors.New("shortlink: validation failed")
	// ErrInternal covers serialization failures and otherwise-unreachable
	// states.
	ErrInternal = errors.New("shortlink: internal error")
)

// UrlRecord is the durable record behind a short code.
type UrlRecord struct {
	LongURL   string
	OwnerID   string // empty means anonymous
	CreatedAt time.Time
	ExpiresAt time.Time // zero means no expiry
}

// Validate enforces the one invariant placed on UrlRecord: when an
// expiry is set, it must be strictly after creation.
func (u UrlRecord) Validate() error {
	if !u.ExpiresAt.IsZero() && !u.ExpiresAt.After(u.CreatedAt) {
		return fmt.Errorf("%w: expires_at must be after created_at", ErrValidationFailed)
	}
	return nil
}

// User is the supplemental record backing the user:<id> / user_email:<email>
// keys. Password hashing and token signing stay out of scope; only the
// storage shape is modeled here.
type User struct {
	ID           string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// ScoredMember is one (score, member) pair of a SortedCounterSet.
type ScoredMember struct {
	Score  uint64
	Member uint64
}

// AnalyticsEvent is one click observation enqueued by record_click. Country,
// device, and browser are accepted for forward-compatibility with request
// handlers but are not required by the core aggregation path.
type AnalyticsEvent struct {
	Code      string
	Timestamp uint64

	IP       string
	Referrer string
	Country  string
	Device   string
	Browser  string
}

// Page is a generic pagination envelope mirroring the shape of a Paginate<T>
// response: the slice of items for the requested page plus the total count.
type Page[T any] struct {
	Items   []T
	Total   uint64
	Page    uint64
	PerPage uint64
}
