// Package scheduler implements the janitor's maintenance services: purging
// notification records past retention, archiving old notification logs to
// zstd-compressed JSONL batches, and the Redis job lock that keeps concurrent
// janitors from double-running.
//
// All services accept a `now` parameter for deterministic testing and manual
// backfill runs.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/klauspost/compress/zstd"

	"pushgate/internal/types"
)

// NotificationPurgeDB defines the notification-table operations needed by the
// maintenance service.
type NotificationPurgeDB interface {
	// DeleteBefore removes notification records created before cutoff.
	//
	// SQL: DELETE FROM notifications WHERE created_at < $1
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// LogArchiveDB defines the notification_logs operations needed for archival.
type LogArchiveDB interface {
	// ListOlderThan returns log entries created before cutoff, oldest first.
	//
	// SQL: SELECT id, notification_id, user_id, event, message, created_at
	//      FROM notification_logs WHERE created_at < $1 ORDER BY id LIMIT $2
	ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]types.NotificationLogEntry, error)

	// DeleteByIDs removes log entries by ID once their batch is safely stored.
	//
	// SQL: DELETE FROM notification_logs WHERE id = ANY($1)
	DeleteByIDs(ctx context.Context, ids []int64) (int64, error)
}

// ArchiveSink abstracts where compressed archive batches land. The janitor
// writes to a filesystem directory; names are relative slash paths like
// "logs/2026/08/batch_1724561234.jsonl.zst".
type ArchiveSink interface {
	Store(ctx context.Context, name string, data []byte) error
}

// maintenanceService runs the janitor's retention jobs.
type maintenanceService struct {
	notifications NotificationPurgeDB
	logs          LogArchiveDB
	sink          ArchiveSink // nil if log archival not configured
	logger        *slog.Logger
}

// NewMaintenanceService creates the maintenance service. The sink parameter
// may be nil when log archival is not configured; ArchiveLogs then skips.
func NewMaintenanceService(notifications NotificationPurgeDB, logs LogArchiveDB, sink ArchiveSink, logger *slog.Logger) *maintenanceService {
	if logger == nil {
		logger = slog.Default()
	}
	return &maintenanceService{
		notifications: notifications,
		logs:          logs,
		sink:          sink,
		logger:        logger,
	}
}

// PurgeNotifications hard-deletes notification records older than the
// retention window. Log rows are handled separately by ArchiveLogs so the
// audit trail can outlive the records it describes.
//
//	DELETE FROM notifications WHERE created_at < (now - retention)
//
// Returns the count of deleted records.
func (m *maintenanceService) PurgeNotifications(ctx context.Context, now time.Time, retention time.Duration) (int64, error) {
	cutoff := now.Add(-retention)

	count, err := m.notifications.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting old notifications: %w", err)
	}

	if count > 0 {
		m.logger.InfoContext(ctx, "purged old notifications",
			"count", count,
			"cutoff", cutoff.Format(time.RFC3339),
		)
	}

	return count, nil
}

// ArchiveLogs moves notification log rows older than retention to the archive
// sink. Orchestrates a fetch-store-delete cycle in batches:
//
//  1. Fetch a batch via ListOlderThan.
//  2. Serialize to JSONL and zstd-compress.
//  3. Store the batch on the sink.
//  4. Delete the archived rows via DeleteByIDs.
//
// Rows are deleted only after their batch is stored, so a failure mid-cycle
// leaves them for the next run. Returns the count of rows archived.
func (m *maintenanceService) ArchiveLogs(ctx context.Context, now time.Time, retention time.Duration, batchSize int) (int64, error) {
	if m.sink == nil {
		m.logger.WarnContext(ctx, "log archive sink not configured, skipping")
		return 0, nil
	}

	cutoff := now.Add(-retention)
	var total int64

	for {
		entries, err := m.logs.ListOlderThan(ctx, cutoff, batchSize)
		if err != nil {
			return total, fmt.Errorf("listing notification logs for archival: %w", err)
		}

		if len(entries) == 0 {
			break
		}

		data, err := serializeLogsJSONL(entries)
		if err != nil {
			return total, fmt.Errorf("serializing notification logs: %w", err)
		}

		name := fmt.Sprintf("logs/%d/%02d/batch_%d.jsonl.zst",
			cutoff.Year(), cutoff.Month(), time.Now().UnixNano())

		if err := m.sink.Store(ctx, name, zstdEncoder.EncodeAll(data, nil)); err != nil {
			return total, fmt.Errorf("storing log archive %s: %w", name, err)
		}

		ids := make([]int64, len(entries))
		for i, e := range entries {
			ids[i] = e.ID
		}

		deleted, err := m.logs.DeleteByIDs(ctx, ids)
		if err != nil {
			return total, fmt.Errorf("deleting archived logs: %w", err)
		}

		total += deleted

		m.logger.InfoContext(ctx, "archived notification log batch",
			"batch_size", deleted,
			"archive", name,
			"total_archived", total,
		)

		// If we got fewer than the batch size, the backlog is drained.
		if len(entries) < batchSize {
			break
		}
	}

	return total, nil
}

// serializeLogsJSONL serializes log entries to newline-delimited JSON.
func serializeLogsJSONL(entries []types.NotificationLogEntry) ([]byte, error) {
	var buf []byte
	for i, entry := range entries {
		line, err := jsonMarshal(entry)
		if err != nil {
			return nil, fmt.Errorf("marshaling log entry %d: %w", entry.ID, err)
		}
		buf = append(buf, line...)
		if i < len(entries)-1 {
			buf = append(buf, '\n')
		}
	}
	return buf, nil
}

// jsonMarshal is a package-level var so tests can inject marshal failures.
var jsonMarshal = json.Marshal

// zstdEncoder compresses archive batches. EncodeAll is safe for concurrent
// use on a shared encoder.
var zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
