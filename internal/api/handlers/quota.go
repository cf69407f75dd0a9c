// Package handlers contains the HTTP handler implementations for the
// pushgate ops API: quota inspection and reset, and notification status
// lookups. Handlers depend on narrow service interfaces so tests can inject
// fakes without standing up Redis or Postgres.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pushgate/internal/core"
	"pushgate/internal/types"
)

// --- Service Interfaces ---

// QuotaService is the rate limiter surface used by the quota handler.
// Mirrors the concrete ratelimit.Limiter methods relevant to this handler;
// the consuming check (IsRateLimited) is deliberately absent so an ops
// lookup can never burn quota.
type QuotaService interface {
	GetUserQuota(ctx context.Context, userID string) (types.Quota, error)
	ResetUserQuota(ctx context.Context, userID string) error
	BurstAllowance() int
}

// --- Response Shapes ---

// QuotaCheckDTO is the response body for GET /quota/users/{userID}/check.
type QuotaCheckDTO struct {
	UserID         string      `json:"user_id"`
	RateLimited    bool        `json:"rate_limited"`
	Quota          types.Quota `json:"quota"`
	BurstAllowance int         `json:"burst_allowance"`
}

// QuotaResetDTO is the response body for POST /quota/users/{userID}/reset.
type QuotaResetDTO struct {
	UserID string `json:"user_id"`
	Reset  bool   `json:"reset"`
}

// --- Handler ---

// QuotaHandler exposes the per-user send quota: current window projection,
// a non-consuming limit check, and the admin reset.
type QuotaHandler struct {
	quota  QuotaService
	logger *slog.Logger
}

// NewQuotaHandler creates a QuotaHandler. If logger is nil, slog.Default()
// is used.
func NewQuotaHandler(quota QuotaService, logger *slog.Logger) *QuotaHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &QuotaHandler{quota: quota, logger: logger}
}

// RegisterRoutes mounts the quota endpoints on the given router. The admin
// middleware guards the reset endpoint; reads are unauthenticated.
func (h *QuotaHandler) RegisterRoutes(r chi.Router, admin func(http.Handler) http.Handler) {
	r.Route("/quota/users/{userID}", func(r chi.Router) {
		r.Get("/", h.GetQuota)
		r.Get("/check", h.CheckQuota)
		r.With(admin).Post("/reset", h.ResetQuota)
	})
}

// GetQuota handles GET /api/v1/quota/users/{userID}.
// Returns the current window projection: count, limit, remaining, and
// seconds until the window resets.
func (h *QuotaHandler) GetQuota(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	quota, err := h.quota.GetUserQuota(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to read user quota",
			"user_id", userID,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	core.Success(w, r, http.StatusOK, quota, fmt.Sprintf("Quota retrieved for user %s", userID))
}

// CheckQuota handles GET /api/v1/quota/users/{userID}/check.
// The verdict is derived from the window projection rather than the limiter's
// consuming path, so polling this endpoint never counts against the quota.
func (h *QuotaHandler) CheckQuota(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	quota, err := h.quota.GetUserQuota(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to read user quota",
			"user_id", userID,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	limited := quota.CurrentCount >= quota.Limit
	message := "User is within quota"
	if limited {
		message = "User is rate limited"
	}

	core.Success(w, r, http.StatusOK, QuotaCheckDTO{
		UserID:         userID,
		RateLimited:    limited,
		Quota:          quota,
		BurstAllowance: h.quota.BurstAllowance(),
	}, message)
}

// ResetQuota handles POST /api/v1/quota/users/{userID}/reset (admin only).
// Clears the user's current window unconditionally.
func (h *QuotaHandler) ResetQuota(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if err := h.quota.ResetUserQuota(r.Context(), userID); err != nil {
		h.logger.Error("failed to reset user quota",
			"user_id", userID,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	h.logger.Info("user quota reset", "user_id", userID)

	core.Success(w, r, http.StatusOK, QuotaResetDTO{
		UserID: userID,
		Reset:  true,
	}, fmt.Sprintf("Quota reset for user %s", userID))
}
