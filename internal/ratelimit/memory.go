package ratelimit

import (
	"context"
	"sync"
	"time"

	"pushgate/internal/types"
)

// MemoryLimiter is an in-process Limiter for tests and local stub mode.
// Windows expire lazily on access. It never returns an error.
type MemoryLimiter struct {
	mu      sync.Mutex
	cfg     Settings
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter creates an empty in-memory limiter.
// Zero Settings fields fall back to the package defaults.
func NewMemoryLimiter(cfg Settings) *MemoryLimiter {
	return &MemoryLimiter{
		cfg:     cfg.withDefaults(),
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// IsRateLimited implements the fixed-window check against process memory.
func (l *MemoryLimiter) IsRateLimited(ctx context.Context, userID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.liveWindow(userID)
	if w == nil {
		l.windows[userID] = &window{count: 1, resetAt: l.now().Add(l.cfg.Window)}
		return false, nil
	}
	if w.count >= l.cfg.MaxPerWindow {
		return true, nil
	}
	w.count++
	return false, nil
}

// GetUserQuota projects the current window.
func (l *MemoryLimiter) GetUserQuota(ctx context.Context, userID string) (types.Quota, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	quota := types.Quota{
		UserID:    userID,
		Limit:     l.cfg.MaxPerWindow,
		Remaining: l.cfg.MaxPerWindow,
	}
	w := l.liveWindow(userID)
	if w == nil {
		return quota, nil
	}

	quota.CurrentCount = w.count
	quota.Remaining = l.cfg.MaxPerWindow - w.count
	if quota.Remaining < 0 {
		quota.Remaining = 0
	}
	quota.ResetInSeconds = int(w.resetAt.Sub(l.now()).Seconds())
	return quota, nil
}

// ResetUserQuota clears the current window.
func (l *MemoryLimiter) ResetUserQuota(ctx context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, userID)
	return nil
}

// BurstAllowance returns the advisory burst headroom.
func (l *MemoryLimiter) BurstAllowance() int {
	return l.cfg.BurstAllowance
}

// liveWindow returns the unexpired window for userID, pruning a stale one.
// Caller must hold mu.
func (l *MemoryLimiter) liveWindow(userID string) *window {
	w, ok := l.windows[userID]
	if !ok {
		return nil
	}
	if !l.now().Before(w.resetAt) {
		delete(l.windows, userID)
		return nil
	}
	return w
}
