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

// Listing windows are fixed; this surface is for operators inspecting recent
// traffic, not for paging through history (the janitor purges it anyway).
const (
	// userListLimit bounds GET /notifications/users/{userID}.
	userListLimit = 100

	// failedListLimit bounds GET /notifications/failed.
	failedListLimit = 50
)

// --- Service Interfaces ---

// NotificationStore is the read side of the notifications table used by this
// handler. Mirrors the concrete db.NotificationRepository methods relevant
// to status lookups.
type NotificationStore interface {
	Get(ctx context.Context, notificationID string) (*types.NotificationRecord, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*types.NotificationRecord, error)
	ListFailed(ctx context.Context, limit int) ([]*types.NotificationRecord, error)
}

// --- Handler ---

// NotificationsHandler exposes delivery lifecycle records: single lookups,
// per-user recents, and the failure listing used for triage.
type NotificationsHandler struct {
	store  NotificationStore
	logger *slog.Logger
}

// NewNotificationsHandler creates a NotificationsHandler. If logger is nil,
// slog.Default() is used.
func NewNotificationsHandler(store NotificationStore, logger *slog.Logger) *NotificationsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationsHandler{store: store, logger: logger}
}

// RegisterRoutes mounts the notification endpoints on the given router.
// The admin middleware guards the failure listing.
func (h *NotificationsHandler) RegisterRoutes(r chi.Router, admin func(http.Handler) http.Handler) {
	r.Route("/notifications", func(r chi.Router) {
		r.With(admin).Get("/failed", h.ListFailed)
		r.Get("/users/{userID}", h.ListByUser)
		r.Get("/{notificationID}", h.GetNotification)
	})
}

// GetNotification handles GET /api/v1/notifications/{notificationID}.
func (h *NotificationsHandler) GetNotification(w http.ResponseWriter, r *http.Request) {
	notificationID := chi.URLParam(r, "notificationID")

	record, err := h.store.Get(r.Context(), notificationID)
	if err != nil {
		if types.CodeOf(err) != types.ErrCodeNotFoundNotification {
			h.logger.Error("failed to load notification",
				"notification_id", notificationID,
				"error", err,
			)
		}
		core.Error(w, r, err)
		return
	}

	core.Success(w, r, http.StatusOK, record, "Notification retrieved")
}

// ListByUser handles GET /api/v1/notifications/users/{userID}.
// Returns the most recent records for the user, newest first.
func (h *NotificationsHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	records, err := h.store.ListByUser(r.Context(), userID, userListLimit)
	if err != nil {
		h.logger.Error("failed to list user notifications",
			"user_id", userID,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}
	if records == nil {
		records = []*types.NotificationRecord{}
	}

	meta := &types.ResponseMeta{
		Pagination: &types.PageInfo{
			Limit:   userListLimit,
			Count:   len(records),
			HasMore: len(records) == userListLimit,
		},
	}
	message := fmt.Sprintf("Retrieved %d notifications for user %s", len(records), userID)
	core.SuccessMeta(w, r, http.StatusOK, records, message, meta)
}

// ListFailed handles GET /api/v1/notifications/failed (admin only).
// Returns the most recent records in a failed state, newest first.
func (h *NotificationsHandler) ListFailed(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListFailed(r.Context(), failedListLimit)
	if err != nil {
		h.logger.Error("failed to list failed notifications", "error", err)
		core.Error(w, r, err)
		return
	}
	if records == nil {
		records = []*types.NotificationRecord{}
	}

	meta := &types.ResponseMeta{
		Pagination: &types.PageInfo{
			Limit:   failedListLimit,
			Count:   len(records),
			HasMore: len(records) == failedListLimit,
		},
	}
	message := fmt.Sprintf("Retrieved %d failed notifications", len(records))
	core.SuccessMeta(w, r, http.StatusOK, records, message, meta)
}
