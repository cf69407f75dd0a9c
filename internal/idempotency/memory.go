package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryGuard is an in-process Guard for tests and local stub mode.
// Entries expire lazily on read.
type MemoryGuard struct {
	mu      sync.Mutex
	entries map[string]time.Time // storage key -> expiry
	now     func() time.Time
}

var _ Guard = (*MemoryGuard)(nil)

// NewMemoryGuard creates an empty in-memory guard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// IsProcessed reports whether key is present and unexpired.
func (g *MemoryGuard) IsProcessed(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.alive(storageKey(key)), nil
}

// MarkProcessed records key with an expiry.
func (g *MemoryGuard) MarkProcessed(ctx context.Context, key string, ttl time.Duration) error {
	if key == "" {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries[storageKey(key)] = g.now().Add(effectiveTTL(ttl))
	return nil
}

// Claim takes ownership of key unless a live entry already exists.
func (g *MemoryGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if key == "" {
		return true, nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	k := storageKey(key)
	if g.alive(k) {
		return false, nil
	}
	g.entries[k] = g.now().Add(effectiveTTL(ttl))
	return true, nil
}

// Release removes key so it can be claimed again.
func (g *MemoryGuard) Release(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, storageKey(key))
	return nil
}

// alive reports whether k exists and has not expired, pruning stale entries.
// Caller must hold mu.
func (g *MemoryGuard) alive(k string) bool {
	exp, ok := g.entries[k]
	if !ok {
		return false
	}
	if g.now().After(exp) {
		delete(g.entries, k)
		return false
	}
	return true
}
