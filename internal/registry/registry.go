// Package registry maintains this worker's presence key in Redis so operators
// can see which delivery workers are alive. Presence is a lease: the key
// carries a TTL and a keepalive goroutine refreshes it at half-life, so a
// crashed worker disappears on its own once the lease runs out. Registry
// failures are logged and never interrupt delivery.
package registry

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"pushgate/internal/types"
)

const (
	// keyPrefix namespaces worker presence keys in Redis.
	keyPrefix = "workers:push:"

	// DefaultLeaseTTL is how long a presence key outlives its last refresh.
	DefaultLeaseTTL = 30 * time.Second
)

// WorkerInfo is the host metadata stored under the presence key.
type WorkerInfo struct {
	InstanceID   string    `json:"instance_id"`
	Hostname     string    `json:"hostname"`
	PID          int       `json:"pid"`
	RegisteredAt time.Time `json:"registered_at"`
}

// redisCmds is the subset of go-redis commands the registrar uses.
// *redis.Client satisfies it; tests substitute a fake.
type redisCmds interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Settings configures a Registrar. Zero identity fields are filled from the
// process environment; a non-positive LeaseTTL uses DefaultLeaseTTL.
type Settings struct {
	InstanceID string
	Hostname   string
	PID        int
	LeaseTTL   time.Duration
	Clock      types.Clock
	Logger     types.Logger
}

// Registrar holds one worker's presence lease. Create with New, then either
// drive the full lifecycle with Run or call Register and Deregister directly.
type Registrar struct {
	rdb      redisCmds
	key      string
	instance WorkerInfo
	leaseTTL time.Duration
	clock    types.Clock
	logger   types.Logger
}

// New creates a Registrar for this process.
func New(rdb *redis.Client, s Settings) *Registrar {
	if s.InstanceID == "" {
		s.InstanceID = uuid.NewString()
	}
	if s.Hostname == "" {
		if h, err := os.Hostname(); err == nil {
			s.Hostname = h
		}
	}
	if s.PID == 0 {
		s.PID = os.Getpid()
	}
	if s.LeaseTTL <= 0 {
		s.LeaseTTL = DefaultLeaseTTL
	}
	if s.Clock == nil {
		s.Clock = types.RealClock{}
	}
	return &Registrar{
		rdb: rdb,
		key: keyPrefix + s.InstanceID,
		instance: WorkerInfo{
			InstanceID: s.InstanceID,
			Hostname:   s.Hostname,
			PID:        s.PID,
		},
		leaseTTL: s.LeaseTTL,
		clock:    s.Clock,
		logger:   s.Logger.With("instance_id", s.InstanceID),
	}
}

// Register writes the presence key with a fresh lease.
func (r *Registrar) Register(ctx context.Context) error {
	info := r.instance
	info.RegisteredAt = r.clock.Now()
	payload, err := json.Marshal(info)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode worker info", err)
	}
	if err := r.rdb.Set(ctx, r.key, payload, r.leaseTTL).Err(); err != nil {
		return types.NewAppError(types.ErrCodeDependencyCache, "worker registration failed", err)
	}
	r.logger.Info("worker registered", "lease_ttl", r.leaseTTL)
	return nil
}

// Deregister deletes the presence key so the worker vanishes immediately
// instead of lingering until the lease expires.
func (r *Registrar) Deregister(ctx context.Context) error {
	if err := r.rdb.Del(ctx, r.key).Err(); err != nil {
		return types.NewAppError(types.ErrCodeDependencyCache, "worker deregistration failed", err)
	}
	r.logger.Info("worker deregistered")
	return nil
}

// Run registers the worker and keeps the lease alive until ctx is canceled,
// then deregisters. Every failure along the way is logged and retried on the
// next keepalive tick; Run never returns early because of Redis trouble.
func (r *Registrar) Run(ctx context.Context) error {
	if err := r.Register(ctx); err != nil {
		r.logger.Error("worker registration failed, will retry on keepalive", "error", err)
	}
	interval := r.leaseTTL / 2
	if interval <= 0 {
		interval = r.leaseTTL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := r.Deregister(context.WithoutCancel(ctx)); err != nil {
				r.logger.Warn("worker deregistration failed", "error", err)
			}
			return ctx.Err()
		case <-ticker.C:
			r.heartbeat(ctx)
		}
	}
}

// heartbeat extends the lease, re-registering when the key has expired out
// from under us (Redis restart, lease lost during an outage).
func (r *Registrar) heartbeat(ctx context.Context) {
	kept, err := r.rdb.Expire(ctx, r.key, r.leaseTTL).Result()
	if err != nil {
		r.logger.Warn("presence lease refresh failed", "error", err)
		return
	}
	if !kept {
		r.logger.Warn("presence key missing, re-registering")
		if err := r.Register(ctx); err != nil {
			r.logger.Error("worker re-registration failed", "error", err)
		}
	}
}
