package handler

import (
	"net/http"

	"github.com/Shivanand-hulikatti/event-lottery/internal/model"
)

type profileResponse struct {
	User      *model.User `json:"user"`
	SyncState string      `json:"sync_state"`
}

// GetProfile handles GET /users/me
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, existence, err := h.profiles.User(r.Context(), session(r).UserID)
	if err != nil {
		h.writeServiceError(w, r, err, "profile not found")
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{User: user, SyncState: existence.String()})
}

// UpdateProfile handles PUT /users/me
// The edit is applied locally and synced in the background, hence 202.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.profiles.UpdateUser(session(r).UserID, req); err != nil {
		h.writeServiceError(w, r, err, "profile not found")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// BecomeOrganizer handles PUT /organizers/me
func (h *Handler) BecomeOrganizer(w http.ResponseWriter, r *http.Request) {
	if err := h.profiles.BecomeOrganizer(session(r).UserID); err != nil {
		h.writeServiceError(w, r, err, "profile not found")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
