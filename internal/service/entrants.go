package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/Shivanand-hulikatti/event-lottery/internal/model"
	"github.com/Shivanand-hulikatti/event-lottery/internal/repository"
)

// EntrantListStore owns the per-event membership lists and the registration
// mirror kept on each user record.
type EntrantListStore struct {
	docs   repository.Documents
	clock  func() time.Time
	logger *slog.Logger
}

// NewEntrantListStore constructs an EntrantListStore.
func NewEntrantListStore(docs repository.Documents, logger *slog.Logger) *EntrantListStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &EntrantListStore{docs: docs, clock: time.Now, logger: logger}
}

// Join appends entrantID to the event's waitlist.
func (s *EntrantListStore) Join(ctx context.Context, eventID, entrantID string) error {
	if eventID == "" || entrantID == "" {
		return validationf("event id and entrant id are required")
	}
	now := s.clock()
	return repository.RunInTx(ctx, s.docs, func(ctx context.Context, docs repository.Documents) error {
		_, err := repository.NewEventRepository(docs).Update(ctx, eventID, func(e *model.Event) error {
			if !e.IsRegistrationOpen(now) {
				return ErrRegistrationClosed
			}
			if slices.Contains(e.WaitlistEntrantIDs, entrantID) {
				return ErrAlreadyOnList
			}
			if e.IsFull() {
				return ErrWaitlistFull
			}
			e.WaitlistEntrantIDs = append(e.WaitlistEntrantIDs, entrantID)
			return nil
		})
		if err != nil {
			return err
		}
		return s.mirror(ctx, docs, eventID, entrantID, func(u *model.User) error {
			if !u.AddRegistration(eventID, now) {
				return u.SetRegistrationStatus(eventID, model.StatusPending, now)
			}
			return nil
		})
	})
}

// Leave removes entrantID from the event's waitlist.
func (s *EntrantListStore) Leave(ctx context.Context, eventID, entrantID string) error {
	if eventID == "" || entrantID == "" {
		return validationf("event id and entrant id are required")
	}
	now := s.clock()
	return repository.RunInTx(ctx, s.docs, func(ctx context.Context, docs repository.Documents) error {
		_, err := repository.NewEventRepository(docs).Update(ctx, eventID, func(e *model.Event) error {
			i := slices.Index(e.WaitlistEntrantIDs, entrantID)
			if i < 0 {
				return ErrNotOnList
			}
			e.WaitlistEntrantIDs = slices.Delete(e.WaitlistEntrantIDs, i, i+1)
			return nil
		})
		if err != nil {
			return err
		}
		return s.mirror(ctx, docs, eventID, entrantID, func(u *model.User) error {
			err := u.SetRegistrationStatus(eventID, model.StatusWithdrawn, now)
			if errors.Is(err, model.ErrRegistrationNotFound) {
				return repository.ErrNoChange
			}
			return err
		})
	})
}

// Entrants returns a copy of one of the event's lists.
func (s *EntrantListStore) Entrants(ctx context.Context, eventID string, list model.EntrantList) ([]string, error) {
	event, err := repository.NewEventRepository(s.docs).Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	ids := event.Entrants(list)
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// Membership derives where userID currently sits for the event.
func (s *EntrantListStore) Membership(ctx context.Context, eventID, userID string) (model.MembershipStatus, error) {
	event, err := repository.NewEventRepository(s.docs).Get(ctx, eventID)
	if err != nil {
		return "", err
	}
	return event.MembershipOf(userID), nil
}

// mirror applies fn to the user's registration record. Inside a transaction a
// failure aborts the whole unit of work; otherwise it is logged and left for
// the reconciliation sweep, since the event-side write already landed.
func (s *EntrantListStore) mirror(ctx context.Context, docs repository.Documents, eventID, userID string, fn func(*model.User) error) error {
	err := updateUser(ctx, docs, userID, fn)
	if err == nil {
		return nil
	}
	if repository.Transactional(s.docs) {
		return fmt.Errorf("update registration for %s: %w", userID, err)
	}
	s.logger.Warn("registration mirror failed", "event_id", eventID, "entrant_id", userID, "error", err)
	return nil
}

// updateUser read-modify-writes a user, creating a bare record when none exists.
func updateUser(ctx context.Context, docs repository.Documents, userID string, fn func(*model.User) error) error {
	users := repository.NewUserRepository(docs)
	_, err := users.Update(ctx, userID, fn)
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	user := model.NewUser(userID)
	if err := fn(&user); err != nil {
		if errors.Is(err, repository.ErrNoChange) {
			return nil
		}
		return err
	}
	return users.Replace(ctx, &user)
}

// moveToSelected appends ids to the selected list, removing them from the waitlist.
func moveToSelected(e *model.Event, ids []string) {
	e.WaitlistEntrantIDs = slices.DeleteFunc(e.WaitlistEntrantIDs, func(id string) bool {
		return slices.Contains(ids, id)
	})
	for _, id := range ids {
		if !slices.Contains(e.SelectedEntrantIDs, id) {
			e.SelectedEntrantIDs = append(e.SelectedEntrantIDs, id)
		}
	}
}

// moveToAccepted moves id from selected to accepted.
func moveToAccepted(e *model.Event, id string) {
	e.SelectedEntrantIDs = slices.DeleteFunc(e.SelectedEntrantIDs, func(v string) bool { return v == id })
	if !slices.Contains(e.AcceptedEntrantIDs, id) {
		e.AcceptedEntrantIDs = append(e.AcceptedEntrantIDs, id)
	}
}

// moveToCancelled moves id to cancelled from whichever of waitlist or selected holds it.
func moveToCancelled(e *model.Event, id string) {
	drop := func(v string) bool { return v == id }
	e.WaitlistEntrantIDs = slices.DeleteFunc(e.WaitlistEntrantIDs, drop)
	e.SelectedEntrantIDs = slices.DeleteFunc(e.SelectedEntrantIDs, drop)
	if !slices.Contains(e.CancelledEntrantIDs, id) {
		e.CancelledEntrantIDs = append(e.CancelledEntrantIDs, id)
	}
}
