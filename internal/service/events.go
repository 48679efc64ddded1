package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/event-lottery/internal/model"
	"github.com/Shivanand-hulikatti/event-lottery/internal/repository"
	"github.com/go-playground/validator/v10"
)

// EventService creates and browses events and sends organizer broadcasts.
type EventService struct {
	docs       repository.Documents
	organizers *OrganizerSync
	fanout     *NotificationFanout
	validate   *validator.Validate
	clock      func() time.Time
	logger     *slog.Logger
}

// NewEventService constructs an EventService. organizers may be nil, in which
// case created events are not recorded on the organizer profile.
func NewEventService(docs repository.Documents, organizers *OrganizerSync, fanout *NotificationFanout, logger *slog.Logger) *EventService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventService{
		docs:       docs,
		organizers: organizers,
		fanout:     fanout,
		validate:   validator.New(),
		clock:      time.Now,
		logger:     logger,
	}
}

// CreateEvent validates the request and stores a new open event.
func (s *EventService) CreateEvent(ctx context.Context, organizerID string, req model.CreateEventRequest) (*model.Event, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Location = strings.TrimSpace(req.Location)
	if strings.TrimSpace(organizerID) == "" {
		return nil, validationf("organizer id is required")
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, fromValidator(err)
	}

	event := &model.Event{
		OrganizerID:       organizerID,
		Name:              req.Name,
		Description:       strings.TrimSpace(req.Description),
		Location:          req.Location,
		EventDateTime:     req.EventDateTime.UTC(),
		RegistrationStart: req.RegistrationStart.UTC(),
		RegistrationEnd:   req.RegistrationEnd.UTC(),
		MaxEntrants:       req.MaxEntrants,
		WaitlistLimit:     req.WaitlistLimit,
		Status:            model.EventStatusOpen,
		CreatedAt:         s.clock().UTC(),
	}
	if err := repository.NewEventRepository(s.docs).Create(ctx, event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	if s.organizers != nil {
		eventID := event.ID
		s.organizers.Edit(organizerID, func(o *model.Organizer) { o.AddEvent(eventID) })
	}
	s.logger.Info("event created", "event_id", event.ID, "organizer_id", organizerID)
	return event, nil
}

// GetEvent returns a single event by id.
func (s *EventService) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if id == "" {
		return nil, validationf("event id is required")
	}
	event, err := repository.NewEventRepository(s.docs).Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

// ListEvents returns every event, or only those open for registration.
func (s *EventService) ListEvents(ctx context.Context, openOnly bool) ([]model.Event, error) {
	events, err := repository.NewEventRepository(s.docs).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if !openOnly {
		return events, nil
	}
	now := s.clock()
	open := make([]model.Event, 0, len(events))
	for _, e := range events {
		if e.IsRegistrationOpen(now) {
			open = append(open, e)
		}
	}
	return open, nil
}

// SendToEntrants broadcasts message to the given entrants, or to everyone on
// the named list when ids is empty, and waits for the aggregate outcome.
// Partial delivery is reported in the result, not as an error.
func (s *EventService) SendToEntrants(ctx context.Context, eventID string, list string, ids []string, message string) (FanoutResult, error) {
	if len(ids) == 0 && list == "" {
		return FanoutResult{}, validationf("no entrants to notify")
	}
	if strings.TrimSpace(message) == "" {
		return FanoutResult{}, validationf("notification message cannot be empty")
	}
	var named model.EntrantList
	if len(ids) == 0 {
		l, ok := model.ParseEntrantList(list)
		if !ok {
			return FanoutResult{}, validationf("unknown entrant list %q", list)
		}
		named = l
	}

	event, err := repository.NewEventRepository(s.docs).Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return FanoutResult{}, err
		}
		return FanoutResult{}, fmt.Errorf("failed to fetch event details: %w", err)
	}

	recipients := ids
	if named != "" {
		recipients = event.Entrants(named)
	}
	if len(recipients) == 0 {
		return FanoutResult{}, validationf("no entrants to notify")
	}

	result := s.fanout.SendToManyWait(ctx, recipients, Message{
		Title:      "Event Update",
		Body:       message,
		EventID:    event.ID,
		EventTitle: event.Name,
	})
	if !result.OK() {
		s.logger.Warn("broadcast incomplete", "event_id", eventID, "status", result.Status())
	}
	return result, nil
}
