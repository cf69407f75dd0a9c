// Package main is the entrypoint for the janitor, the pipeline's scheduled
// maintenance binary.
//
// Two jobs run on cron schedules (config-driven, UTC):
//   - purge_notifications: hard-delete notification records past retention.
//   - archive_logs: move old notification log rows into zstd-compressed JSONL
//     batches under the archive directory, then delete the archived rows.
//
// Each job takes a Redis SETNX lease before running so concurrent janitors do
// not double-run, and each run is bounded by the lease TTL so a hung job
// cannot outlive its lock.
//
// One-shot mode for operators and backfills:
//
//	janitor --run purge_notifications
//	janitor --run archive_logs --reference-time 2026-07-01T00:00:00Z
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"pushgate/internal/config"
	"pushgate/internal/db"
	"pushgate/internal/scheduler"
)

// MaintenanceService is the subset of the scheduler service the janitor runs.
// Declaring it here decouples the binary from the concrete scheduler type.
type MaintenanceService interface {
	PurgeNotifications(ctx context.Context, now time.Time, retention time.Duration) (int64, error)
	ArchiveLogs(ctx context.Context, now time.Time, retention time.Duration, batchSize int) (int64, error)
}

// JobLocker abstracts the distributed lock around each job run.
type JobLocker interface {
	WithLock(ctx context.Context, name string, fn func(context.Context) error) error
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	runJob := flag.String("run", "", "run one job immediately and exit: purge_notifications or archive_logs")
	refTime := flag.String("reference-time", "", "RFC3339 override for the job's reference time (requires --run)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var secrets config.SecretProvider
	if os.Getenv("APP_ENV") != "local" {
		secrets = config.NewSSMProvider(os.Getenv("AWS_REGION"))
	}
	cfg, err := config.LoadConfig(secrets)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("janitor starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"notification_retention", cfg.Janitor.NotificationRetention,
		"log_retention", cfg.Janitor.LogRetention,
	)

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	rdb, err := newRedisClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	var sink scheduler.ArchiveSink
	if cfg.Janitor.ArchiveDir != "" {
		sink = scheduler.NewFileSink(cfg.Janitor.ArchiveDir)
	}
	maint := scheduler.NewMaintenanceService(
		db.NewNotificationRepository(pool),
		db.NewLogRepository(pool),
		sink,
		logger.With("component", "maintenance"),
	)
	lock := scheduler.NewJobLock(rdb, "janitor-"+uuid.NewString(), cfg.Janitor.LockTTL, logger.With("component", "joblock"))

	jobs := &jobRunner{
		maint:  maint,
		lock:   lock,
		cfg:    cfg.Janitor,
		logger: logger,
	}

	if *runJob != "" {
		now := time.Now().UTC()
		if *refTime != "" {
			parsed, err := time.Parse(time.RFC3339, *refTime)
			if err != nil {
				return fmt.Errorf("parsing --reference-time: %w", err)
			}
			now = parsed.UTC()
		}
		logger.Info("running job once", "job", *runJob, "reference_time", now.Format(time.RFC3339))
		return jobs.dispatch(ctx, *runJob, now)
	}
	if *refTime != "" {
		return fmt.Errorf("--reference-time requires --run")
	}

	c, err := jobs.schedule(ctx)
	if err != nil {
		return err
	}
	c.Start()
	logger.Info("janitor schedules registered",
		"purge_schedule", cfg.Janitor.PurgeSchedule,
		"archive_schedule", cfg.Janitor.ArchiveSchedule,
	)

	<-ctx.Done()
	logger.Info("shutdown signal received, waiting for running jobs")
	<-c.Stop().Done()
	logger.Info("janitor stopped cleanly")
	return nil
}

// jobRunner holds the dependencies shared by the janitor's jobs.
type jobRunner struct {
	maint  MaintenanceService
	lock   JobLocker
	cfg    config.JanitorConfig
	logger *slog.Logger
}

// dispatch routes a job name to the service method, under the job lock.
func (j *jobRunner) dispatch(ctx context.Context, name string, now time.Time) error {
	switch name {
	case scheduler.JobPurgeNotifications:
		return j.lock.WithLock(ctx, name, func(ctx context.Context) error {
			_, err := j.maint.PurgeNotifications(ctx, now, j.cfg.NotificationRetention)
			return err
		})
	case scheduler.JobArchiveLogs:
		return j.lock.WithLock(ctx, name, func(ctx context.Context) error {
			_, err := j.maint.ArchiveLogs(ctx, now, j.cfg.LogRetention, j.cfg.ArchiveBatchSize)
			return err
		})
	default:
		return fmt.Errorf("unknown job %q (expected %s or %s)", name, scheduler.JobPurgeNotifications, scheduler.JobArchiveLogs)
	}
}

// schedule registers both jobs on a UTC cron. Schedules are standard 5-field
// cron expressions.
func (j *jobRunner) schedule(ctx context.Context) (*cron.Cron, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithLocation(time.UTC))

	entry := func(name string) func() {
		return func() {
			// Each run is bounded by the lock TTL so a hung job cannot
			// outlive its lease and overlap the next acquisition.
			jobCtx, cancel := context.WithTimeout(ctx, j.cfg.LockTTL)
			defer cancel()
			if err := j.dispatch(jobCtx, name, time.Now().UTC()); err != nil {
				j.logger.Error("job failed", "job", name, "error", err)
			}
		}
	}

	if _, err := c.AddFunc(j.cfg.PurgeSchedule, entry(scheduler.JobPurgeNotifications)); err != nil {
		return nil, fmt.Errorf("invalid purge schedule %q: %w", j.cfg.PurgeSchedule, err)
	}
	if _, err := c.AddFunc(j.cfg.ArchiveSchedule, entry(scheduler.JobArchiveLogs)); err != nil {
		return nil, fmt.Errorf("invalid archive schedule %q: %w", j.cfg.ArchiveSchedule, err)
	}
	return c, nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// newRedisClient connects a go-redis client from config and verifies
// connectivity with a ping.
func newRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis unreachable: %w", err)
	}
	return rdb, nil
}
