// Package ratelimit enforces the per-user send quota as a fixed window:
// a counter per user expiring with the window, not a token bucket. The first
// event in a window initializes the counter with the window TTL; later events
// increment it; at the ceiling events are rejected without incrementing, so a
// rejected send never consumes quota.
//
// The limiter fails open: when the backing store is unreachable, sends
// proceed and the failure is logged and surfaced for observability only.
package ratelimit

import (
	"context"
	"time"

	"pushgate/internal/types"
)

// Defaults applied by Settings.withDefaults.
const (
	DefaultMaxPerWindow   = 100
	DefaultWindow         = time.Hour
	DefaultBurstAllowance = 20
)

// keyPrefix namespaces per-user window counters in the backing store.
const keyPrefix = "rate_limit:"

// Settings tunes the fixed window.
type Settings struct {
	// MaxPerWindow is the ceiling of sends per user per window.
	MaxPerWindow int
	// Window is the fixed window length, set as the counter TTL.
	Window time.Duration
	// BurstAllowance is advisory headroom reported by the quota API.
	// It is never enforced.
	BurstAllowance int
}

// withDefaults fills zero fields with the package defaults.
func (s Settings) withDefaults() Settings {
	if s.MaxPerWindow <= 0 {
		s.MaxPerWindow = DefaultMaxPerWindow
	}
	if s.Window <= 0 {
		s.Window = DefaultWindow
	}
	if s.BurstAllowance <= 0 {
		s.BurstAllowance = DefaultBurstAllowance
	}
	return s
}

// Limiter is the quota surface consumed by the sender and the ops API.
type Limiter interface {
	// IsRateLimited reports whether userID has exhausted the current window.
	// true means reject without sending. Store failures return (false, err):
	// the caller proceeds and the error is for logging only.
	IsRateLimited(ctx context.Context, userID string) (bool, error)

	// GetUserQuota returns the current window projection for userID.
	GetUserQuota(ctx context.Context, userID string) (types.Quota, error)

	// ResetUserQuota unconditionally clears the current window (admin override).
	ResetUserQuota(ctx context.Context, userID string) error

	// BurstAllowance returns the advisory burst headroom.
	BurstAllowance() int
}

// windowKey returns the namespaced counter key for a user.
func windowKey(userID string) string {
	return keyPrefix + userID
}
