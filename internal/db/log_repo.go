package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"pushgate/internal/types"
)

// LogRepository provides append-only access to the notification_logs audit
// table. The pipeline appends; the janitor reads and deletes past retention.
type LogRepository struct {
	db DBTX
}

// NewLogRepository creates a LogRepository backed by the given database
// connection (pool or transaction).
func NewLogRepository(db DBTX) *LogRepository {
	return &LogRepository{db: db}
}

// Append writes one audit entry. userID is optional and stored as NULL when
// empty.
func (r *LogRepository) Append(ctx context.Context, notificationID, userID string, event types.LogEvent, message string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO notification_logs (notification_id, user_id, event, message)
		 VALUES ($1, $2, $3, $4)`,
		notificationID,
		nilIfEmpty(userID),
		string(event),
		nilIfEmpty(message),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to append notification log", err)
	}
	return nil
}

// ListOlderThan retrieves log entries created before the cutoff, oldest
// first, for archival. The limit bounds one archival batch.
func (r *LogRepository) ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]types.NotificationLogEntry, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, notification_id, user_id, event, message, created_at
		 FROM notification_logs
		 WHERE created_at < $1
		 ORDER BY id
		 LIMIT $2`,
		cutoff,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list old notification logs", err)
	}
	defer rows.Close()

	var results []types.NotificationLogEntry
	for rows.Next() {
		entry, scanErr := scanLogEntry(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan log row", scanErr)
		}
		results = append(results, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating log rows", err)
	}
	return results, nil
}

// DeleteByIDs removes the given log entries after they have been archived.
// Returns the count of deleted rows.
func (r *LogRepository) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx,
		`DELETE FROM notification_logs WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete archived logs", err)
	}
	return tag.RowsAffected(), nil
}

// scanLogEntry scans one notification_logs row.
func scanLogEntry(rows pgx.Rows) (types.NotificationLogEntry, error) {
	var (
		entry   types.NotificationLogEntry
		userID  *string
		event   string
		message *string
	)

	err := rows.Scan(
		&entry.ID,
		&entry.NotificationID,
		&userID,
		&event,
		&message,
		&entry.CreatedAt,
	)
	if err != nil {
		return types.NotificationLogEntry{}, err
	}

	entry.Event = types.LogEvent(event)
	if userID != nil {
		entry.UserID = *userID
	}
	if message != nil {
		entry.Message = *message
	}
	return entry, nil
}
