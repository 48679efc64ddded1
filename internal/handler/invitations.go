package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// AcceptInvitation handles POST /events/{id}/rsvp/accept
func (h *Handler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.invitations.Accept(r.Context(), id, session(r).UserID); err != nil {
		h.writeServiceError(w, r, err, "event not found")
		return
	}

	h.writeMembership(w, r, id, http.StatusOK)
}

// DeclineInvitation handles POST /events/{id}/rsvp/decline
func (h *Handler) DeclineInvitation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.invitations.Decline(r.Context(), id, session(r).UserID); err != nil {
		h.writeServiceError(w, r, err, "event not found")
		return
	}

	h.writeMembership(w, r, id, http.StatusOK)
}

// InvitationCountdown handles GET /events/{id}/invitation/countdown
// It streams the remaining RSVP time as server-sent events until the client
// disconnects, the invitation is answered, or the deadline passes.
func (h *Handler) InvitationCountdown(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	countdown, err := h.invitations.Watch(r.Context(), chi.URLParam(r, "id"), session(r).UserID)
	if err != nil {
		h.writeServiceError(w, r, err, "event not found")
		return
	}
	defer countdown.Stop()

	// The stream outlives the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	deadline := countdown.Deadline().UTC().Format(time.RFC3339)
	for {
		select {
		case <-r.Context().Done():
			return
		case remaining := <-countdown.Remaining():
			fmt.Fprintf(w, "event: remaining\ndata: {\"remaining_seconds\":%d,\"deadline\":%q}\n\n", int64(remaining/time.Second), deadline)
			if err := rc.Flush(); err != nil {
				return
			}
		case <-countdown.Done():
			if countdown.Expired() {
				fmt.Fprintf(w, "event: expired\ndata: {\"deadline\":%q}\n\n", deadline)
			} else {
				fmt.Fprint(w, "event: closed\ndata: {}\n\n")
			}
			_ = rc.Flush()
			return
		}
	}
}
