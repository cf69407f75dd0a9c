package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// lockKeyPrefix namespaces job lock keys in Redis.
	lockKeyPrefix = "jobs:lock:"

	// DefaultLockTTL bounds how long a dead janitor's lock outlives it. It
	// must comfortably exceed the longest job run, or a second janitor will
	// start the job while the first is still working.
	DefaultLockTTL = 15 * time.Minute
)

// redisCmds is the subset of go-redis commands the job lock uses.
// *redis.Client satisfies it; tests substitute a fake.
type redisCmds interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// JobLock serializes janitor jobs across instances with a Redis SETNX lease.
// A janitor that dies mid-job leaves its lock to expire on its own.
type JobLock struct {
	rdb    redisCmds
	owner  string
	ttl    time.Duration
	logger *slog.Logger
}

// NewJobLock creates a JobLock. The owner string is stored as the lock value
// so an operator can see which instance holds a contested lock.
func NewJobLock(rdb *redis.Client, owner string, ttl time.Duration, logger *slog.Logger) *JobLock {
	if owner == "" {
		owner = fmt.Sprintf("janitor-%d", os.Getpid())
	}
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JobLock{
		rdb:    rdb,
		owner:  owner,
		ttl:    ttl,
		logger: logger,
	}
}

// WithLock runs fn while holding the named lock. When another janitor holds
// the lock the job is skipped without error. When Redis is unreachable the
// job runs unlocked: these jobs tolerate an occasional double-run better than
// never running during a cache outage.
func (l *JobLock) WithLock(ctx context.Context, name string, fn func(context.Context) error) error {
	key := lockKeyPrefix + name

	won, err := l.rdb.SetNX(ctx, key, l.owner, l.ttl).Result()
	if err != nil {
		l.logger.WarnContext(ctx, "job lock unavailable, running unlocked",
			"job", name,
			"error", err,
		)
		return fn(ctx)
	}
	if !won {
		l.logger.InfoContext(ctx, "job lock held elsewhere, skipping",
			"job", name,
		)
		return nil
	}

	defer func() {
		if err := l.rdb.Del(context.WithoutCancel(ctx), key).Err(); err != nil {
			l.logger.WarnContext(ctx, "job lock release failed, lease will expire on its own",
				"job", name,
				"error", err,
			)
		}
	}()

	return fn(ctx)
}
