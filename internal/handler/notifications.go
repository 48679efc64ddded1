package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ListNotifications handles GET /notifications
// Returns the session user's inbox, newest first.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	notifications, err := h.notifications.ListByRecipient(r.Context(), session(r).UserID)
	if err != nil {
		h.writeServiceError(w, r, err, "notification not found")
		return
	}

	writeJSON(w, http.StatusOK, notifications)
}

// MarkNotificationRead handles POST /notifications/{nid}/read
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := h.notifications.MarkRead(r.Context(), session(r).UserID, chi.URLParam(r, "nid")); err != nil {
		h.writeServiceError(w, r, err, "notification not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteNotification handles DELETE /notifications/{nid}
func (h *Handler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	if err := h.notifications.Delete(r.Context(), session(r).UserID, chi.URLParam(r, "nid")); err != nil {
		h.writeServiceError(w, r, err, "notification not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
