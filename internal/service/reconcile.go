package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Shivanand-hulikatti/event-lottery/internal/model"
	"github.com/Shivanand-hulikatti/event-lottery/internal/repository"
)

// ReconcileReport counts what one sweep changed.
type ReconcileReport struct {
	Events   int
	Accepted int
	Declined int
	Restored int
	Expired  int
	Failures int
}

// Reconciler repairs drift between user registration status and event lists
// left behind by non-transactional dual writes, and enforces RSVP deadlines
// for invitations nobody is watching.
type Reconciler struct {
	docs        repository.Documents
	invitations *InvitationService
	clock       func() time.Time
	logger      *slog.Logger
}

// NewReconciler constructs a Reconciler.
func NewReconciler(docs repository.Documents, invitations *InvitationService, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{docs: docs, invitations: invitations, clock: time.Now, logger: logger}
}

// Sweep walks every event's selected list once. Individual repair failures
// are counted and logged; only a failure to list events aborts the sweep.
func (r *Reconciler) Sweep(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	events, err := repository.NewEventRepository(r.docs).List(ctx)
	if err != nil {
		return report, fmt.Errorf("list events: %w", err)
	}
	users := repository.NewUserRepository(r.docs)
	now := r.clock()

	for _, event := range events {
		report.Events++
		for _, entrantID := range event.SelectedEntrantIDs {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			if err := r.repair(ctx, users, event.ID, entrantID, now, &report); err != nil {
				report.Failures++
				r.logger.Warn("reconcile entrant failed", "event_id", event.ID, "entrant_id", entrantID, "error", err)
			}
		}
	}

	if report.Accepted+report.Declined+report.Restored+report.Expired+report.Failures > 0 {
		r.logger.Info("reconcile sweep finished",
			"events", report.Events, "accepted", report.Accepted, "declined", report.Declined,
			"restored", report.Restored, "expired", report.Expired, "failures", report.Failures)
	}
	return report, nil
}

func (r *Reconciler) repair(ctx context.Context, users repository.UserRepository, eventID, entrantID string, now time.Time, report *ReconcileReport) error {
	var reg model.RegisteredEvent
	user, err := users.Get(ctx, entrantID)
	switch {
	case err == nil:
		reg, _ = user.Registration(eventID)
	case !errors.Is(err, repository.ErrNotFound):
		return err
	}

	switch reg.Status {
	case model.StatusAccepted:
		if err := r.moveEvent(ctx, eventID, entrantID, moveToAccepted); err != nil {
			return err
		}
		report.Accepted++
	case model.StatusDeclined:
		if err := r.moveEvent(ctx, eventID, entrantID, moveToCancelled); err != nil {
			return err
		}
		report.Declined++
	case model.StatusSelected:
		if r.invitations == nil || reg.SelectedDate == nil || now.Before(reg.SelectedDate.Add(RSVPWindow)) {
			return nil
		}
		acted, err := r.invitations.AutoDecline(ctx, eventID, entrantID)
		if err != nil {
			return err
		}
		if acted {
			report.Expired++
		}
	default:
		// The draw landed but the user mirror did not; start the RSVP window now.
		err := updateUser(ctx, r.docs, entrantID, func(u *model.User) error {
			u.AddRegistration(eventID, now)
			return u.SetRegistrationStatus(eventID, model.StatusSelected, now)
		})
		if err != nil {
			return err
		}
		report.Restored++
	}
	return nil
}

func (r *Reconciler) moveEvent(ctx context.Context, eventID, entrantID string, move func(*model.Event, string)) error {
	_, err := repository.NewEventRepository(r.docs).Update(ctx, eventID, func(e *model.Event) error {
		move(e, entrantID)
		return nil
	})
	return err
}
