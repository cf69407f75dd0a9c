package core

import (
	"log/slog"
	"net/http"
	"strings"

	"pushgate/internal/types"
)

// AdminOnly guards privileged operations (quota resets, failure listings).
//
//  1. Extracts the Bearer token from the Authorization header.
//  2. Verifies it against the configured admin key hash (bcrypt).
//  3. Returns 401 Unauthorized on failure with distinct error codes:
//     - auth_admin_key_missing: No Authorization header or empty Bearer token.
//     - auth_admin_key_invalid: The presented key does not match.
//
// The gate fails closed: if no verifier is configured (which NewServer
// prevents), every request is rejected.
func (s *Server) AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKeys == nil {
			s.Logger.Error("admin route invoked without a key verifier",
				slog.String("path", r.URL.Path),
			)
			Error(w, r, types.NewAppError(types.ErrCodeAuthKeyInvalid, "invalid admin API key", nil))
			return
		}

		key := extractBearerToken(r.Header.Get("Authorization"))
		if err := s.AdminKeys.VerifyKey(key); err != nil {
			s.Logger.Warn("admin authentication failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("error_code", string(types.CodeOf(err))),
			)
			Error(w, r, err)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// extractBearerToken parses the Authorization header value and returns
// the token string. It expects the format "Bearer <token>" (case-insensitive
// scheme per RFC 7235). Returns empty string if the format is invalid.
func extractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) {
		return ""
	}
	// Case-insensitive comparison of the "Bearer " scheme prefix per RFC 7235.
	if !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	token := authHeader[len(prefix):]
	return strings.TrimSpace(token)
}
