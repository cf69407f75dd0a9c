package types

// Platform identifies the push target platform for a notification.
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
	PlatformWeb     Platform = "web"
)

// ValidPlatform reports whether p is one of the supported platforms.
// Callers must normalize to lowercase first (NormalizePlatform).
func ValidPlatform(p Platform) bool {
	switch p {
	case PlatformAndroid, PlatformIOS, PlatformWeb:
		return true
	default:
		return false
	}
}

// NotificationStatus represents the lifecycle state of a notification record.
// These values MUST match the status column values in the notifications table.
type NotificationStatus string

const (
	StatusPending    NotificationStatus = "pending"
	StatusProcessing NotificationStatus = "processing"
	StatusSent       NotificationStatus = "sent"
	StatusFailed     NotificationStatus = "failed"
)

// LogEvent identifies the kind of audit log entry appended for a notification.
type LogEvent string

const (
	LogEventReceived LogEvent = "received"
	LogEventSent     LogEvent = "sent"
	LogEventRetry    LogEvent = "retry"
	LogEventFailed   LogEvent = "failed"
)

// BreakerState enumerates the circuit breaker states.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)
