package idempotency

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"pushgate/internal/types"
)

// redisCmds is the subset of go-redis commands the guard uses. *redis.Client
// satisfies it; tests substitute a fake.
type redisCmds interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisGuard is the production Guard backed by Redis. Keys expire via TTL,
// so the guard needs no cleanup pass of its own.
type RedisGuard struct {
	rdb redisCmds
}

var _ Guard = (*RedisGuard)(nil)

// NewRedisGuard creates a Guard backed by the given Redis client.
func NewRedisGuard(rdb *redis.Client) *RedisGuard {
	return &RedisGuard{rdb: rdb}
}

// IsProcessed checks key presence via EXISTS.
func (g *RedisGuard) IsProcessed(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	n, err := g.rdb.Exists(ctx, storageKey(key)).Result()
	if err != nil {
		return false, types.NewAppError(types.ErrCodeDependencyCache, "idempotency check failed", err)
	}
	return n > 0, nil
}

// MarkProcessed writes the sentinel with an expiry (SET key "1" EX ttl).
func (g *RedisGuard) MarkProcessed(ctx context.Context, key string, ttl time.Duration) error {
	if key == "" {
		return nil
	}
	if err := g.rdb.Set(ctx, storageKey(key), sentinel, effectiveTTL(ttl)).Err(); err != nil {
		return types.NewAppError(types.ErrCodeDependencyCache, "failed to mark key as processed", err)
	}
	return nil
}

// Claim takes ownership via SET NX EX. A false result without error means
// another worker holds the key and this message is a duplicate.
func (g *RedisGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if key == "" {
		return true, nil
	}
	won, err := g.rdb.SetNX(ctx, storageKey(key), sentinel, effectiveTTL(ttl)).Result()
	if err != nil {
		return true, types.NewAppError(types.ErrCodeDependencyCache, "idempotency claim failed", err)
	}
	return won, nil
}

// Release deletes a claimed key so a retry can claim it again.
func (g *RedisGuard) Release(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := g.rdb.Del(ctx, storageKey(key)).Err(); err != nil {
		return types.NewAppError(types.ErrCodeDependencyCache, "failed to release idempotency claim", err)
	}
	return nil
}
