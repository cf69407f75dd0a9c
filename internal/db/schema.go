package db

import (
	"context"

	"pushgate/internal/types"
)

// schemaStatements bootstrap the status store. Each statement is idempotent
// (IF NOT EXISTS) so InitSchema is safe to run on every startup.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS notifications (
		id BIGSERIAL PRIMARY KEY,
		notification_id TEXT UNIQUE NOT NULL,
		idempotency_key TEXT UNIQUE NOT NULL,
		user_id TEXT NOT NULL,
		platform TEXT NOT NULL,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		device_tokens TEXT[],
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INT NOT NULL DEFAULT 0,
		provider_response JSONB,
		error_message TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS notification_logs (
		id BIGSERIAL PRIMARY KEY,
		notification_id TEXT NOT NULL,
		user_id TEXT,
		event TEXT NOT NULL,
		message TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_user_id ON notifications (user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_status ON notifications (status)`,
	`CREATE INDEX IF NOT EXISTS idx_notification_logs_notification_id ON notification_logs (notification_id)`,
}

// InitSchema creates the status store tables and indexes if they do not
// already exist. Statements run one at a time so a failure pinpoints the
// offending DDL.
func InitSchema(ctx context.Context, db DBTX) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "schema bootstrap failed", err)
		}
	}
	return nil
}
