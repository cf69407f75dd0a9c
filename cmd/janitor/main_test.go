package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"pushgate/internal/config"
	"pushgate/internal/scheduler"
)

// --- Mock Maintenance Service ---

type mockMaintenanceCall struct {
	job       string
	now       time.Time
	retention time.Duration
	batchSize int
}

type mockMaintenance struct {
	calls    []mockMaintenanceCall
	failNext bool
}

func (m *mockMaintenance) PurgeNotifications(_ context.Context, now time.Time, retention time.Duration) (int64, error) {
	m.calls = append(m.calls, mockMaintenanceCall{
		job:       scheduler.JobPurgeNotifications,
		now:       now,
		retention: retention,
	})
	if m.failNext {
		m.failNext = false
		return 0, errors.New("purge query failed")
	}
	return 3, nil
}

func (m *mockMaintenance) ArchiveLogs(_ context.Context, now time.Time, retention time.Duration, batchSize int) (int64, error) {
	m.calls = append(m.calls, mockMaintenanceCall{
		job:       scheduler.JobArchiveLogs,
		now:       now,
		retention: retention,
		batchSize: batchSize,
	})
	if m.failNext {
		m.failNext = false
		return 0, errors.New("archive write failed")
	}
	return 7, nil
}

// --- Mock Job Locker ---

// mockLocker records lock attempts. With skip set it models losing the lease
// to another janitor: WithLock returns nil without running fn.
type mockLocker struct {
	names []string
	skip  bool
}

func (m *mockLocker) WithLock(ctx context.Context, name string, fn func(context.Context) error) error {
	m.names = append(m.names, name)
	if m.skip {
		return nil
	}
	return fn(ctx)
}

func newTestRunner(maint *mockMaintenance, lock *mockLocker) *jobRunner {
	return &jobRunner{
		maint: maint,
		lock:  lock,
		cfg: config.JanitorConfig{
			NotificationRetention: 90 * 24 * time.Hour,
			LogRetention:          30 * 24 * time.Hour,
			ArchiveBatchSize:      500,
			PurgeSchedule:         "0 * * * *",
			ArchiveSchedule:       "30 2 * * *",
			LockTTL:               15 * time.Minute,
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// --- dispatch Tests ---

func TestJobRunner_Dispatch_Purge(t *testing.T) {
	maint := &mockMaintenance{}
	lock := &mockLocker{}
	jobs := newTestRunner(maint, lock)
	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	if err := jobs.dispatch(context.Background(), scheduler.JobPurgeNotifications, now); err != nil {
		t.Fatalf("dispatch returned error: %v", err)
	}
	if len(lock.names) != 1 || lock.names[0] != scheduler.JobPurgeNotifications {
		t.Errorf("expected one lock attempt for %s, got %v", scheduler.JobPurgeNotifications, lock.names)
	}
	if len(maint.calls) != 1 {
		t.Fatalf("expected 1 service call, got %d", len(maint.calls))
	}
	call := maint.calls[0]
	if call.job != scheduler.JobPurgeNotifications {
		t.Errorf("expected purge call, got %s", call.job)
	}
	if !call.now.Equal(now) {
		t.Errorf("expected reference time %v, got %v", now, call.now)
	}
	if call.retention != jobs.cfg.NotificationRetention {
		t.Errorf("expected retention %v, got %v", jobs.cfg.NotificationRetention, call.retention)
	}
}

func TestJobRunner_Dispatch_Archive(t *testing.T) {
	maint := &mockMaintenance{}
	lock := &mockLocker{}
	jobs := newTestRunner(maint, lock)
	now := time.Date(2026, 7, 1, 2, 30, 0, 0, time.UTC)

	if err := jobs.dispatch(context.Background(), scheduler.JobArchiveLogs, now); err != nil {
		t.Fatalf("dispatch returned error: %v", err)
	}
	if len(maint.calls) != 1 {
		t.Fatalf("expected 1 service call, got %d", len(maint.calls))
	}
	call := maint.calls[0]
	if call.job != scheduler.JobArchiveLogs {
		t.Errorf("expected archive call, got %s", call.job)
	}
	if call.retention != jobs.cfg.LogRetention {
		t.Errorf("expected retention %v, got %v", jobs.cfg.LogRetention, call.retention)
	}
	if call.batchSize != jobs.cfg.ArchiveBatchSize {
		t.Errorf("expected batch size %d, got %d", jobs.cfg.ArchiveBatchSize, call.batchSize)
	}
}

func TestJobRunner_Dispatch_UnknownJob(t *testing.T) {
	maint := &mockMaintenance{}
	lock := &mockLocker{}
	jobs := newTestRunner(maint, lock)

	err := jobs.dispatch(context.Background(), "compact_everything", time.Now().UTC())
	if err == nil {
		t.Fatal("expected error for unknown job name")
	}
	if !strings.Contains(err.Error(), "unknown job") {
		t.Errorf("unexpected error: %v", err)
	}
	if len(lock.names) != 0 {
		t.Errorf("unknown job must not touch the lock, got attempts %v", lock.names)
	}
	if len(maint.calls) != 0 {
		t.Errorf("unknown job must not call the service, got %d calls", len(maint.calls))
	}
}

func TestJobRunner_Dispatch_LockHeldElsewhere(t *testing.T) {
	maint := &mockMaintenance{}
	lock := &mockLocker{skip: true}
	jobs := newTestRunner(maint, lock)

	if err := jobs.dispatch(context.Background(), scheduler.JobPurgeNotifications, time.Now().UTC()); err != nil {
		t.Fatalf("losing the lease is not an error, got: %v", err)
	}
	if len(lock.names) != 1 {
		t.Errorf("expected one lock attempt, got %v", lock.names)
	}
	if len(maint.calls) != 0 {
		t.Errorf("job must not run without the lease, got %d calls", len(maint.calls))
	}
}

func TestJobRunner_Dispatch_ServiceError(t *testing.T) {
	maint := &mockMaintenance{failNext: true}
	lock := &mockLocker{}
	jobs := newTestRunner(maint, lock)

	err := jobs.dispatch(context.Background(), scheduler.JobArchiveLogs, time.Now().UTC())
	if err == nil {
		t.Fatal("expected service error to propagate")
	}
	if !strings.Contains(err.Error(), "archive write failed") {
		t.Errorf("unexpected error: %v", err)
	}
}

// --- schedule Tests ---

func TestJobRunner_Schedule_RegistersBothJobs(t *testing.T) {
	jobs := newTestRunner(&mockMaintenance{}, &mockLocker{})

	c, err := jobs.schedule(context.Background())
	if err != nil {
		t.Fatalf("schedule returned error: %v", err)
	}
	if got := len(c.Entries()); got != 2 {
		t.Errorf("expected 2 cron entries, got %d", got)
	}
}

func TestJobRunner_Schedule_InvalidPurgeSchedule(t *testing.T) {
	jobs := newTestRunner(&mockMaintenance{}, &mockLocker{})
	jobs.cfg.PurgeSchedule = "every hour on the hour"

	_, err := jobs.schedule(context.Background())
	if err == nil {
		t.Fatal("expected error for invalid purge schedule")
	}
	if !strings.Contains(err.Error(), "invalid purge schedule") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestJobRunner_Schedule_InvalidArchiveSchedule(t *testing.T) {
	jobs := newTestRunner(&mockMaintenance{}, &mockLocker{})
	jobs.cfg.ArchiveSchedule = "* * *"

	_, err := jobs.schedule(context.Background())
	if err == nil {
		t.Fatal("expected error for invalid archive schedule")
	}
	if !strings.Contains(err.Error(), "invalid archive schedule") {
		t.Errorf("unexpected error: %v", err)
	}
}
