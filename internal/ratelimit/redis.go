package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"pushgate/internal/types"
)

// redisCmds is the subset of go-redis commands the limiter uses. *redis.Client
// satisfies it; tests substitute a fake.
type redisCmds interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisLimiter is the production Limiter backed by Redis. Window expiry is the
// counter's TTL, so windows reset without any sweeper.
type RedisLimiter struct {
	rdb redisCmds
	cfg Settings
	log types.Logger
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter creates a Limiter backed by the given Redis client.
// Zero Settings fields fall back to the package defaults.
func NewRedisLimiter(rdb *redis.Client, cfg Settings, log types.Logger) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, cfg: cfg.withDefaults(), log: log}
}

// IsRateLimited implements the fixed-window check:
// absent counter → initialize to 1 with window TTL; at the ceiling → limited
// without incrementing; otherwise increment.
func (l *RedisLimiter) IsRateLimited(ctx context.Context, userID string) (bool, error) {
	key := windowKey(userID)

	raw, err := l.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// First event of a fresh window.
		if setErr := l.rdb.Set(ctx, key, 1, l.cfg.Window).Err(); setErr != nil {
			return l.failOpen(userID, setErr)
		}
		return false, nil
	}
	if err != nil {
		return l.failOpen(userID, err)
	}

	count, convErr := strconv.Atoi(raw)
	if convErr != nil {
		return l.failOpen(userID, convErr)
	}

	// Checked before incrementing so a rejected send never consumes quota.
	if count >= l.cfg.MaxPerWindow {
		return true, nil
	}

	if incrErr := l.rdb.Incr(ctx, key).Err(); incrErr != nil {
		return l.failOpen(userID, incrErr)
	}
	return false, nil
}

// GetUserQuota projects the current window. ResetInSeconds is the remaining
// counter TTL, 0 when no window is active.
func (l *RedisLimiter) GetUserQuota(ctx context.Context, userID string) (types.Quota, error) {
	key := windowKey(userID)
	quota := types.Quota{
		UserID:    userID,
		Limit:     l.cfg.MaxPerWindow,
		Remaining: l.cfg.MaxPerWindow,
	}

	raw, err := l.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return quota, nil
	}
	if err != nil {
		return types.Quota{}, types.NewAppError(types.ErrCodeDependencyCache, "failed to read user quota", err)
	}

	count, convErr := strconv.Atoi(raw)
	if convErr != nil {
		return types.Quota{}, types.NewAppError(types.ErrCodeInternalUnexpected, "corrupt rate limit counter", convErr)
	}

	quota.CurrentCount = count
	quota.Remaining = l.cfg.MaxPerWindow - count
	if quota.Remaining < 0 {
		quota.Remaining = 0
	}

	// TTL is best effort; a failure here degrades to ResetInSeconds=0 rather
	// than failing the whole read.
	if ttl, ttlErr := l.rdb.TTL(ctx, key).Result(); ttlErr == nil && ttl > 0 {
		quota.ResetInSeconds = int(ttl.Seconds())
	}
	return quota, nil
}

// ResetUserQuota deletes the current window counter.
func (l *RedisLimiter) ResetUserQuota(ctx context.Context, userID string) error {
	if err := l.rdb.Del(ctx, windowKey(userID)).Err(); err != nil {
		return types.NewAppError(types.ErrCodeDependencyCache, "failed to reset user quota", err)
	}
	return nil
}

// BurstAllowance returns the advisory burst headroom.
func (l *RedisLimiter) BurstAllowance() int {
	return l.cfg.BurstAllowance
}

// failOpen logs the store failure and admits the send. The returned error
// carries the cause for metrics; callers must not block delivery on it.
func (l *RedisLimiter) failOpen(userID string, err error) (bool, error) {
	if l.log != nil {
		l.log.Warn("rate limit store failure, failing open",
			"user_id", userID,
			"error", err.Error(),
		)
	}
	return false, types.NewAppError(types.ErrCodeDependencyCache, "rate limit store unavailable", err)
}
