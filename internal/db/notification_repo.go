package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"pushgate/internal/types"
)

// NotificationRepository provides data access for the notifications table.
// The pipeline writes through Upsert/UpdateStatus; the ops API reads through
// Get/ListByUser/ListFailed; the janitor prunes through DeleteBefore.
type NotificationRepository struct {
	db DBTX
}

// NewNotificationRepository creates a NotificationRepository backed by the
// given database connection (pool or transaction).
func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Upsert inserts the record or, when the notification_id already exists
// (a redelivered message), refreshes its status and attempts. created_at is
// preserved on conflict; updated_at always moves forward.
func (r *NotificationRepository) Upsert(ctx context.Context, rec *types.NotificationRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO notifications
		 (notification_id, idempotency_key, user_id, platform, title, body,
		  device_tokens, status, attempts)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (notification_id) DO UPDATE SET
			status = EXCLUDED.status,
			attempts = EXCLUDED.attempts,
			updated_at = now()`,
		rec.NotificationID,
		rec.IdempotencyKey,
		rec.UserID,
		string(rec.Platform),
		rec.Title,
		rec.Body,
		rec.DeviceTokens,
		statusOrDefault(rec.Status),
		rec.Attempts,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert notification", err)
	}
	return nil
}

// UpdateStatus records the outcome of a delivery attempt. providerResponse
// and errorMessage are optional: a nil response and empty message write NULL.
func (r *NotificationRepository) UpdateStatus(ctx context.Context, notificationID string, status types.NotificationStatus, attempts int, providerResponse types.ProviderResponse, errorMessage string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notifications SET
			status = $1,
			attempts = $2,
			provider_response = $3,
			error_message = $4,
			updated_at = now()
		 WHERE notification_id = $5`,
		string(status),
		attempts,
		providerResponse,
		nilIfEmpty(errorMessage),
		notificationID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update notification status", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
	}
	return nil
}

// Get retrieves a single record by notification_id.
func (r *NotificationRepository) Get(ctx context.Context, notificationID string) (*types.NotificationRecord, error) {
	row := r.db.QueryRow(ctx,
		`SELECT notification_id, idempotency_key, user_id, platform, title, body,
		        device_tokens, status, attempts, provider_response, error_message,
		        created_at, updated_at
		 FROM notifications
		 WHERE notification_id = $1`,
		notificationID,
	)
	rec, err := scanNotificationRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get notification", err)
	}
	return rec, nil
}

// ListByUser retrieves a user's most recent records, newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*types.NotificationRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx,
		`SELECT notification_id, idempotency_key, user_id, platform, title, body,
		        device_tokens, status, attempts, provider_response, error_message,
		        created_at, updated_at
		 FROM notifications
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list notifications by user", err)
	}
	return collectRecords(rows)
}

// ListFailed retrieves the most recently failed records for the ops surface.
func (r *NotificationRepository) ListFailed(ctx context.Context, limit int) ([]*types.NotificationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx,
		`SELECT notification_id, idempotency_key, user_id, platform, title, body,
		        device_tokens, status, attempts, provider_response, error_message,
		        created_at, updated_at
		 FROM notifications
		 WHERE status = $1
		 ORDER BY updated_at DESC
		 LIMIT $2`,
		string(types.StatusFailed),
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list failed notifications", err)
	}
	return collectRecords(rows)
}

// DeleteBefore hard-deletes notifications older than the cutoff time.
// Used for retention cleanup. Returns the count of deleted records.
func (r *NotificationRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM notifications WHERE created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete old notifications", err)
	}
	return tag.RowsAffected(), nil
}

// collectRecords drains a result set into records, closing it afterwards.
func collectRecords(rows pgx.Rows) ([]*types.NotificationRecord, error) {
	defer rows.Close()

	var results []*types.NotificationRecord
	for rows.Next() {
		rec, scanErr := scanNotificationRecord(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan notification row", scanErr)
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating notification rows", err)
	}
	return results, nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanNotificationRecord scans one notifications row. Nullable columns use
// pointer locals so NULL maps to the record's zero value.
func scanNotificationRecord(row rowScanner) (*types.NotificationRecord, error) {
	var (
		rec          types.NotificationRecord
		platform     string
		status       string
		errorMessage *string
	)

	err := row.Scan(
		&rec.NotificationID,
		&rec.IdempotencyKey,
		&rec.UserID,
		&platform,
		&rec.Title,
		&rec.Body,
		&rec.DeviceTokens,
		&status,
		&rec.Attempts,
		&rec.ProviderResponse,
		&errorMessage,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Platform = types.Platform(platform)
	rec.Status = types.NotificationStatus(status)
	if errorMessage != nil {
		rec.ErrorMessage = *errorMessage
	}
	return &rec, nil
}

// statusOrDefault returns the status or "pending" if empty.
func statusOrDefault(status types.NotificationStatus) string {
	if status == "" {
		return string(types.StatusPending)
	}
	return string(status)
}

// nilIfEmpty returns nil for empty strings so the column is written as NULL.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
