package handler

import (
	"net/http"

	"github.com/Shivanand-hulikatti/event-lottery/internal/model"
	"github.com/go-chi/chi/v5"
)

// CreateEvent handles POST /events
// The session user becomes the event's organizer.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.events.CreateEvent(r.Context(), session(r).UserID, req)
	if err != nil {
		h.writeServiceError(w, r, err, "event not found")
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events
// ?open=true restricts the result to events whose registration window is open.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.ListEvents(r.Context(), r.URL.Query().Get("open") == "true")
	if err != nil {
		h.writeServiceError(w, r, err, "event not found")
		return
	}

	if events == nil {
		events = []model.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.events.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err, "event not found")
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// ListEntrants handles GET /events/{id}/entrants/{list}
func (h *Handler) ListEntrants(w http.ResponseWriter, r *http.Request) {
	list, ok := model.ParseEntrantList(chi.URLParam(r, "list"))
	if !ok {
		writeError(w, http.StatusBadRequest, "list must be one of waitlist, selected, accepted, cancelled")
		return
	}

	ids, err := h.entrants.Entrants(r.Context(), chi.URLParam(r, "id"), list)
	if err != nil {
		h.writeServiceError(w, r, err, "event not found")
		return
	}

	writeJSON(w, http.StatusOK, ids)
}

// JoinWaitlist handles POST /events/{id}/waitlist
func (h *Handler) JoinWaitlist(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.entrants.Join(r.Context(), id, session(r).UserID); err != nil {
		h.writeServiceError(w, r, err, "event not found")
		return
	}

	h.writeMembership(w, r, id, http.StatusCreated)
}

// LeaveWaitlist handles DELETE /events/{id}/waitlist
func (h *Handler) LeaveWaitlist(w http.ResponseWriter, r *http.Request) {
	if err := h.entrants.Leave(r.Context(), chi.URLParam(r, "id"), session(r).UserID); err != nil {
		h.writeServiceError(w, r, err, "event not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Membership handles GET /events/{id}/membership
func (h *Handler) Membership(w http.ResponseWriter, r *http.Request) {
	h.writeMembership(w, r, chi.URLParam(r, "id"), http.StatusOK)
}

func (h *Handler) writeMembership(w http.ResponseWriter, r *http.Request, eventID string, status int) {
	userID := session(r).UserID
	membership, err := h.entrants.Membership(r.Context(), eventID, userID)
	if err != nil {
		h.writeServiceError(w, r, err, "event not found")
		return
	}

	writeJSON(w, status, model.MembershipResponse{EventID: eventID, UserID: userID, Status: membership})
}

// RunDraw handles POST /events/{id}/draw
// Responds as soon as the lists are written; notifications go out afterwards.
func (h *Handler) RunDraw(w http.ResponseWriter, r *http.Request) {
	var req model.DrawRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.draws.RunDraw(r.Context(), chi.URLParam(r, "id"), req.Count)
	if err != nil {
		h.writeServiceError(w, r, err, "event not found")
		return
	}

	writeJSON(w, http.StatusOK, result.Response())
}

// NotifyEntrants handles POST /events/{id}/notify
// Partial delivery failures are reported in the body with status 200.
func (h *Handler) NotifyEntrants(w http.ResponseWriter, r *http.Request) {
	var req model.NotifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.events.SendToEntrants(r.Context(), chi.URLParam(r, "id"), req.List, req.EntrantIDs, req.Message)
	if err != nil {
		h.writeServiceError(w, r, err, "event not found")
		return
	}

	writeJSON(w, http.StatusOK, result.Response())
}
