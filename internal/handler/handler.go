// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Shivanand-hulikatti/event-lottery/internal/model"
	"github.com/Shivanand-hulikatti/event-lottery/internal/repository"
	"github.com/Shivanand-hulikatti/event-lottery/internal/service"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Services bundles the dependencies the HTTP layer calls into.
type Services struct {
	Events        *service.EventService
	Entrants      *service.EntrantListStore
	Draws         *service.LotteryDrawEngine
	Invitations   *service.InvitationService
	Profiles      *service.ProfileService
	Notifications *repository.NotificationRepository
}

// Handler holds all HTTP handlers for the lottery API.
type Handler struct {
	events        *service.EventService
	entrants      *service.EntrantListStore
	draws         *service.LotteryDrawEngine
	invitations   *service.InvitationService
	profiles      *service.ProfileService
	notifications *repository.NotificationRepository
	logger        *slog.Logger
}

// New constructs a Handler.
func New(svc Services, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		events:        svc.Events,
		entrants:      svc.Entrants,
		draws:         svc.Draws,
		invitations:   svc.Invitations,
		profiles:      svc.Profiles,
		notifications: svc.Notifications,
		logger:        logger,
	}
}

// NewRouter builds the router with the global middleware stack and all routes.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger(h.logger))        // structured access log
	r.Use(CORS)                    // permissive CORS
	r.Use(Identity)                // X-User-ID → session

	r.Get("/health", HealthCheck)

	r.Route("/events", func(r chi.Router) {
		r.Get("/", h.ListEvents)
		r.Get("/{id}", h.GetEvent)
		r.Get("/{id}/entrants/{list}", h.ListEntrants)

		r.Group(func(r chi.Router) {
			r.Use(RequireSession)
			r.Post("/", h.CreateEvent)
			r.Post("/{id}/waitlist", h.JoinWaitlist)
			r.Delete("/{id}/waitlist", h.LeaveWaitlist)
			r.Get("/{id}/membership", h.Membership)
			r.Post("/{id}/draw", h.RunDraw)
			r.Post("/{id}/rsvp/accept", h.AcceptInvitation)
			r.Post("/{id}/rsvp/decline", h.DeclineInvitation)
			r.Get("/{id}/invitation/countdown", h.InvitationCountdown)
			r.Post("/{id}/notify", h.NotifyEntrants)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(RequireSession)
		r.Get("/notifications", h.ListNotifications)
		r.Post("/notifications/{nid}/read", h.MarkNotificationRead)
		r.Delete("/notifications/{nid}", h.DeleteNotification)

		r.Get("/users/me", h.GetProfile)
		r.Put("/users/me", h.UpdateProfile)
		r.Put("/organizers/me", h.BecomeOrganizer)
	})

	return r
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeServiceError maps service and repository errors onto HTTP statuses.
// notFound is the message used for repository.ErrNotFound.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, notFound)
	case errors.Is(err, service.ErrAlreadyOnList),
		errors.Is(err, service.ErrNotOnList),
		errors.Is(err, service.ErrRegistrationClosed),
		errors.Is(err, service.ErrWaitlistFull),
		errors.Is(err, service.ErrNotSelected):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("request failed",
			"method", r.Method, "path", r.URL.Path,
			"request_id", chimiddleware.GetReqID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
