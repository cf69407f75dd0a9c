package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All components MUST use these constants instead of hardcoded strings.
const (
	// Validation (400). A message failing validation cannot be retried in its
	// current form and is routed directly to the dead-letter queue.
	ErrCodeValidationMalformedPayload ErrorCode = "validation_malformed_payload"
	ErrCodeValidationMissingKey       ErrorCode = "validation_missing_idempotency_key"
	ErrCodeValidationMissingField     ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidPlatform  ErrorCode = "validation_invalid_platform"
	ErrCodeValidationTitleLength      ErrorCode = "validation_title_length"
	ErrCodeValidationBodyLength       ErrorCode = "validation_body_length"
	ErrCodeValidationTTLRange         ErrorCode = "validation_ttl_out_of_range"
	ErrCodeValidationAttempts         ErrorCode = "validation_negative_attempts"
	ErrCodeValidationNoTokens         ErrorCode = "validation_no_device_tokens"

	// Auth (401). The ops API admin surface only.
	ErrCodeAuthKeyMissing ErrorCode = "auth_admin_key_missing"
	ErrCodeAuthKeyInvalid ErrorCode = "auth_admin_key_invalid"

	// Rate limiting (429)
	ErrCodeRateLimited ErrorCode = "rate_limit_exceeded"

	// Not Found (404)
	ErrCodeNotFoundNotification ErrorCode = "not_found_notification"

	// Breaker (503). The call was never attempted.
	ErrCodeBreakerOpen      ErrorCode = "breaker_open"
	ErrCodeBreakerExhausted ErrorCode = "breaker_half_open_exhausted"

	// Provider (502). The call was attempted and failed.
	ErrCodeProviderFailure     ErrorCode = "provider_send_failed"
	ErrCodeProviderUnavailable ErrorCode = "provider_unavailable"
	ErrCodeProviderRateLimited ErrorCode = "provider_rate_limited"

	// Dependency (503). A supporting store is unreachable; the pipeline
	// degrades per component policy instead of failing the message.
	ErrCodeDependencyCache ErrorCode = "dependency_cache_unavailable"
	ErrCodeDependencyQueue ErrorCode = "dependency_queue_unavailable"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Used by the ops API to translate AppErrors into HTTP responses.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized // 401
	case s == string(ErrCodeRateLimited):
		return http.StatusTooManyRequests // 429
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case strings.HasPrefix(s, "breaker_"), strings.HasPrefix(s, "dependency_"):
		return http.StatusServiceUnavailable // 503
	case strings.HasPrefix(s, "provider_"):
		return http.StatusBadGateway // 502
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError is the standard application error type used throughout the pipeline.
// All domain and handler errors should be expressed as AppError to enable
// consistent error formatting, HTTP status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
// This is useful for adding context without mutating the original error.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with the given code, message,
// underlying error, and structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// CodeOf extracts the ErrorCode from an error chain. Returns
// ErrCodeInternalUnexpected when the chain contains no AppError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternalUnexpected
}

// IsValidationError reports whether the error chain carries a validation_*
// code. Validation failures are terminal: the orchestrator dead-letters the
// message instead of retrying it.
func IsValidationError(err error) bool {
	return strings.HasPrefix(string(CodeOf(err)), "validation_")
}

// IsRetryable reports whether a delivery failure should be handed to the
// retry policy. Breaker rejections, provider failures, and dependency
// outages are retryable; validation failures are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	s := string(CodeOf(err))
	switch {
	case strings.HasPrefix(s, "validation_"):
		return false
	case strings.HasPrefix(s, "breaker_"),
		strings.HasPrefix(s, "provider_"),
		strings.HasPrefix(s, "dependency_"),
		s == string(ErrCodeRateLimited):
		return true
	default:
		// Unknown failures get the benefit of the doubt: retry with backoff
		// until the attempt ceiling dead-letters them.
		return true
	}
}
