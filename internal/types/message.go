package types

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Message field constraints. These mirror the CHECK-style rules enforced at
// intake; a message violating them is dead-lettered, never retried.
const (
	TitleMaxLength    = 100
	BodyMaxLength     = 500
	TTLMaxSeconds     = 86400
	DefaultTTLSeconds = 3600
)

// NotificationMessage is the queue payload carried between the producer, the
// push workers, and the dead-letter queue. JSON tags use snake_case to match
// the producer's wire format; unknown fields are tolerated and dropped, while
// Data and Meta pass through untouched.
//
// A NotificationMessage obtained from ParseNotificationMessage is normalized:
// IdempotencyKey trimmed, Platform lowercase, NotificationID populated,
// DeviceTokens nil when empty, TTLSeconds and Attempts defaulted.
type NotificationMessage struct {
	// IdempotencyKey is the caller-supplied dedup identity. Distinct from
	// NotificationID: two producers retrying the same logical notification
	// share an IdempotencyKey but may generate fresh NotificationIDs.
	IdempotencyKey string `json:"idempotency_key"`

	// NotificationID is the tracing identity, generated when absent.
	NotificationID string `json:"notification_id"`

	UserID   string   `json:"user_id"`
	Platform Platform `json:"platform"`
	Title    string   `json:"title"`
	Body     string   `json:"body"`

	// DeviceTokens is the resolved push target set. May be nil; the provider
	// boundary rejects delivery when no tokens can be resolved.
	DeviceTokens []string `json:"device_tokens,omitempty"`

	// Data is the payload delivered to the device alongside title/body.
	Data map[string]any `json:"data,omitempty"`

	TTLSeconds int `json:"ttl_seconds"`

	// Attempts counts delivery attempts so far. Incremented only by the
	// retry policy before republish.
	Attempts int `json:"attempts"`

	// Meta is producer bookkeeping carried through unmodified.
	Meta map[string]any `json:"meta,omitempty"`
}

// wireMessage is the raw unmarshal target. Pointer fields distinguish
// "absent" from explicit zero so defaults apply only to absent fields
// (ttl_seconds: 0 means expire immediately, absent means one hour).
type wireMessage struct {
	IdempotencyKey string         `json:"idempotency_key"`
	NotificationID string         `json:"notification_id"`
	UserID         string         `json:"user_id"`
	Platform       string         `json:"platform"`
	Title          string         `json:"title"`
	Body           string         `json:"body"`
	DeviceTokens   []string       `json:"device_tokens"`
	Data           map[string]any `json:"data"`
	TTLSeconds     *int           `json:"ttl_seconds"`
	Attempts       *int           `json:"attempts"`
	Meta           map[string]any `json:"meta"`
}

// ParseNotificationMessage unmarshals, normalizes, and validates a queue
// payload. The returned message is safe for the pipeline: all invariants in
// the field rules hold. Errors are AppErrors with validation_* codes, which
// the orchestrator routes straight to the dead-letter queue.
func ParseNotificationMessage(data []byte) (*NotificationMessage, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, NewAppError(ErrCodeValidationMalformedPayload, "message body is not valid JSON", err)
	}

	msg := &NotificationMessage{
		IdempotencyKey: strings.TrimSpace(w.IdempotencyKey),
		NotificationID: strings.TrimSpace(w.NotificationID),
		UserID:         strings.TrimSpace(w.UserID),
		Platform:       Platform(strings.ToLower(strings.TrimSpace(w.Platform))),
		Title:          w.Title,
		Body:           w.Body,
		DeviceTokens:   w.DeviceTokens,
		Data:           w.Data,
		TTLSeconds:     DefaultTTLSeconds,
		Meta:           w.Meta,
	}
	if w.TTLSeconds != nil {
		msg.TTLSeconds = *w.TTLSeconds
	}
	if w.Attempts != nil {
		msg.Attempts = *w.Attempts
	}

	// An empty token slice is indistinguishable from an absent one.
	if len(msg.DeviceTokens) == 0 {
		msg.DeviceTokens = nil
	}

	if msg.NotificationID == "" {
		msg.NotificationID = uuid.NewString()
	}

	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}

// Validate checks the field rules on an already-normalized message.
// ParseNotificationMessage calls this; it is exported for callers that
// construct messages directly (tests, the stdin local mode).
func (m *NotificationMessage) Validate() error {
	if m.IdempotencyKey == "" {
		return NewAppError(ErrCodeValidationMissingKey, "idempotency_key is required", nil)
	}
	if m.UserID == "" {
		return NewAppError(ErrCodeValidationMissingField, "user_id is required", nil)
	}
	if !ValidPlatform(m.Platform) {
		return NewAppErrorWithDetails(ErrCodeValidationInvalidPlatform,
			"platform must be android, ios, or web", nil,
			map[string]any{"platform": string(m.Platform)})
	}
	if n := utf8.RuneCountInString(m.Title); n < 1 || n > TitleMaxLength {
		return NewAppErrorWithDetails(ErrCodeValidationTitleLength,
			"title must be 1-100 characters", nil,
			map[string]any{"length": n})
	}
	if n := utf8.RuneCountInString(m.Body); n < 1 || n > BodyMaxLength {
		return NewAppErrorWithDetails(ErrCodeValidationBodyLength,
			"body must be 1-500 characters", nil,
			map[string]any{"length": n})
	}
	if m.TTLSeconds < 0 || m.TTLSeconds > TTLMaxSeconds {
		return NewAppErrorWithDetails(ErrCodeValidationTTLRange,
			"ttl_seconds must be between 0 and 86400", nil,
			map[string]any{"ttl_seconds": m.TTLSeconds})
	}
	if m.Attempts < 0 {
		return NewAppError(ErrCodeValidationAttempts, "attempts must not be negative", nil)
	}
	return nil
}

// NotificationRecord is the durable lifecycle row in the notifications table,
// upserted by the orchestrator and read by the ops API.
type NotificationRecord struct {
	NotificationID   string             `json:"notification_id"`
	IdempotencyKey   string             `json:"idempotency_key"`
	UserID           string             `json:"user_id"`
	Platform         Platform           `json:"platform"`
	Title            string             `json:"title"`
	Body             string             `json:"body"`
	DeviceTokens     []string           `json:"device_tokens,omitempty"`
	Status           NotificationStatus `json:"status"`
	Attempts         int                `json:"attempts"`
	ProviderResponse ProviderResponse   `json:"provider_response,omitempty"`
	ErrorMessage     string             `json:"error_message,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// RecordFromMessage builds the initial processing-state record for a message.
func RecordFromMessage(msg *NotificationMessage) NotificationRecord {
	return NotificationRecord{
		NotificationID: msg.NotificationID,
		IdempotencyKey: msg.IdempotencyKey,
		UserID:         msg.UserID,
		Platform:       msg.Platform,
		Title:          msg.Title,
		Body:           msg.Body,
		DeviceTokens:   msg.DeviceTokens,
		Status:         StatusProcessing,
		Attempts:       msg.Attempts,
	}
}

// PushResult is the outcome of one provider gateway call. Success means every
// token in the multicast was accepted; a partial rejection counts as failure
// so the retry policy re-drives the whole message.
type PushResult struct {
	Success      bool
	SuccessCount int
	FailureCount int

	// Response is the provider's decoded reply, persisted to the status
	// store's provider_response column for later triage.
	Response ProviderResponse
}

// NotificationLogEntry is one append-only audit row in notification_logs.
// Entries are never mutated or deleted by the pipeline; the janitor archives
// them past retention.
type NotificationLogEntry struct {
	ID             int64     `json:"id"`
	NotificationID string    `json:"notification_id"`
	UserID         string    `json:"user_id,omitempty"`
	Event          LogEvent  `json:"event"`
	Message        string    `json:"message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Quota is the read-only projection of a user's rate-limit window.
type Quota struct {
	UserID         string `json:"user_id"`
	CurrentCount   int    `json:"current_count"`
	Limit          int    `json:"limit"`
	Remaining      int    `json:"remaining"`
	ResetInSeconds int    `json:"reset_in_seconds"`
}
