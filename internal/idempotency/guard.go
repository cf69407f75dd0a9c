// Package idempotency provides duplicate-delivery suppression keyed by the
// producer-supplied idempotency_key. A key is marked only after the provider
// confirms delivery, so a crash mid-delivery leaves the key unmarked and the
// redelivered message goes through again (at-least-once delivery preserved).
package idempotency

import (
	"context"
	"time"
)

const (
	// keyPrefix namespaces processed-key entries in the backing store.
	keyPrefix = "processed:"

	// sentinel is the stored value. Only key presence matters.
	sentinel = "1"

	// DefaultTTL bounds how long a processed key suppresses duplicates.
	DefaultTTL = 24 * time.Hour
)

// Guard tracks idempotency keys that have completed delivery.
//
// Two usage modes exist. In check-then-act mode the orchestrator calls
// IsProcessed before delivery and MarkProcessed after success. In claim mode
// it calls Claim before delivery and Release when delivery fails, closing the
// check/mark race window at the cost of an extra write per message.
type Guard interface {
	// IsProcessed reports whether key has already completed delivery.
	// An empty key is never processed. A store failure returns (false, err):
	// callers assume not-processed, favoring a duplicate send over a lost one.
	IsProcessed(ctx context.Context, key string) (bool, error)

	// MarkProcessed records key for ttl. No-op for empty keys.
	// A non-positive ttl falls back to DefaultTTL.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) error

	// Claim atomically takes ownership of key, returning true when this caller
	// won it and false when another worker already holds it. Empty keys and
	// store failures both return with the caller treated as the owner, for the
	// same deliver-over-suppress bias as IsProcessed.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release frees a claimed key after a failed delivery so a retry can
	// claim it again. No-op for empty keys.
	Release(ctx context.Context, key string) error
}

// storageKey returns the namespaced store key for an idempotency key.
func storageKey(key string) string {
	return keyPrefix + key
}

// effectiveTTL applies the DefaultTTL fallback for non-positive values.
func effectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}
