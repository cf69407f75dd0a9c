package scheduler

// Job names. Each doubles as the cron entry label and the Redis lock key
// suffix (jobs:lock:{name}), and is accepted by the janitor's --run flag for
// manual invocation.
const (
	JobPurgeNotifications = "purge_notifications"
	JobArchiveLogs        = "archive_logs"
)
