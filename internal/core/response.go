package core

import (
	"encoding/json"
	"errors"
	"net/http"

	"pushgate/internal/types"
)

// Response is the envelope for every API response. Data and Error are always
// present in the serialized form (null when absent) so clients can branch on
// success without probing for keys. Meta carries pagination and non-blocking
// warnings when a handler has them.
type Response struct {
	Success bool                `json:"success"`
	Data    any                 `json:"data"`
	Error   *ErrorDetail        `json:"error"`
	Message string              `json:"message"`
	Meta    *types.ResponseMeta `json:"meta,omitempty"`
}

// ErrorDetail contains the structured error information returned to clients.
type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

// Success writes a success envelope with the given status, payload, and
// human-readable message.
func Success(w http.ResponseWriter, r *http.Request, status int, data any, message string) {
	JSON(w, r, status, Response{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// SuccessMeta is Success with response metadata (pagination, warnings).
func SuccessMeta(w http.ResponseWriter, r *http.Request, status int, data any, message string, meta *types.ResponseMeta) {
	JSON(w, r, status, Response{
		Success: true,
		Data:    data,
		Message: message,
		Meta:    meta,
	})
}

// Error writes an error envelope. It inspects the error chain:
//   - If the error is (or wraps) a *types.AppError, its Code determines the
//     HTTP status and the structured detail is taken from the AppError.
//   - Any other error returns a 500 with the code "internal_unexpected_error".
//
// Wrapped internal errors are never exposed to the client; generic error
// messages are replaced with a safe default to prevent information leakage.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	requestID := types.GetRequestID(r.Context())

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		JSON(w, r, appErr.HTTPStatus(), Response{
			Error: &ErrorDetail{
				Code:      string(appErr.Code),
				Message:   appErr.Message,
				Details:   appErr.Details,
				RequestID: requestID,
			},
			Message: appErr.Message,
		})
		return
	}

	JSON(w, r, http.StatusInternalServerError, Response{
		Error: &ErrorDetail{
			Code:      string(types.ErrCodeInternalUnexpected),
			Message:   "an unexpected error occurred",
			RequestID: requestID,
		},
		Message: "an unexpected error occurred",
	})
}

// JSON writes a JSON response with the given status code and body.
// If marshalling fails, it falls back to a 500 error envelope.
func JSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fallback := Response{
			Error: &ErrorDetail{
				Code:      string(types.ErrCodeInternalUnexpected),
				Message:   "failed to marshal response",
				RequestID: types.GetRequestID(r.Context()),
			},
			Message: "failed to marshal response",
		}
		// Best-effort write; if this also fails, there is nothing more we can do.
		_ = json.NewEncoder(w).Encode(fallback)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
