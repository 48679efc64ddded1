package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Shivanand-hulikatti/event-lottery/internal/model"
	"github.com/Shivanand-hulikatti/event-lottery/internal/repository"
)

const (
	// RSVPWindow is how long a selected entrant has to accept or decline.
	RSVPWindow = 24 * time.Hour
	// CountdownResolution is how often a countdown publishes the remaining time.
	CountdownResolution = time.Second
)

type invitationKey struct {
	eventID   string
	entrantID string
}

// InvitationService handles RSVP decisions and the per-invitation deadline.
type InvitationService struct {
	docs   repository.Documents
	clock  func() time.Time
	logger *slog.Logger

	mu         sync.Mutex
	countdowns map[invitationKey]map[*Countdown]struct{}
}

// NewInvitationService constructs an InvitationService.
func NewInvitationService(docs repository.Documents, logger *slog.Logger) *InvitationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &InvitationService{
		docs:       docs,
		clock:      time.Now,
		logger:     logger,
		countdowns: make(map[invitationKey]map[*Countdown]struct{}),
	}
}

// Accept records the entrant's acceptance and moves them selected→accepted.
func (s *InvitationService) Accept(ctx context.Context, eventID, entrantID string) error {
	s.stopCountdowns(eventID, entrantID)
	return s.respond(ctx, eventID, entrantID, model.StatusAccepted, moveToAccepted)
}

// Decline records the entrant's refusal and moves them selected→cancelled.
func (s *InvitationService) Decline(ctx context.Context, eventID, entrantID string) error {
	s.stopCountdowns(eventID, entrantID)
	return s.respond(ctx, eventID, entrantID, model.StatusDeclined, moveToCancelled)
}

// respond writes the user status first, then the event lists. Both writes
// share a transaction when the store supports one. Otherwise a failure of the
// second write leaves the user status as the record of intent, which the
// reconciliation sweep later applies to the event.
func (s *InvitationService) respond(ctx context.Context, eventID, entrantID string, status model.Status, move func(*model.Event, string)) error {
	now := s.clock()
	return repository.RunInTx(ctx, s.docs, func(ctx context.Context, docs repository.Documents) error {
		events := repository.NewEventRepository(docs)
		event, err := events.Get(ctx, eventID)
		if err != nil {
			return err
		}
		if !slices.Contains(event.SelectedEntrantIDs, entrantID) {
			return ErrNotSelected
		}

		// The selected list is authoritative; a missing or stale user
		// mirror is repaired here rather than rejected.
		err = updateUser(ctx, docs, entrantID, func(u *model.User) error {
			if reg, ok := u.Registration(eventID); ok {
				if reg.Status == status {
					return repository.ErrNoChange
				}
				if reg.Status == model.StatusAccepted || reg.Status == model.StatusDeclined {
					return ErrNotSelected
				}
			} else {
				u.AddRegistration(eventID, now)
			}
			return u.SetRegistrationStatus(eventID, status, now)
		})
		if err != nil {
			return err
		}

		if _, err := events.Update(ctx, eventID, func(e *model.Event) error {
			move(e, entrantID)
			return nil
		}); err != nil {
			return fmt.Errorf("move entrant %s to %s: %w", entrantID, status, err)
		}
		return nil
	})
}

// AutoDecline declines an expired invitation. It acts only while the user's
// status is still Selected and reports whether it changed anything, so the
// countdown and the reconciliation sweep can both call it safely.
func (s *InvitationService) AutoDecline(ctx context.Context, eventID, entrantID string) (bool, error) {
	now := s.clock()
	var acted bool
	err := repository.RunInTx(ctx, s.docs, func(ctx context.Context, docs repository.Documents) error {
		acted = false
		// Lock the event before the user, the same order every other
		// transaction uses.
		events := repository.NewEventRepository(docs)
		if _, err := events.Get(ctx, eventID); err != nil {
			return err
		}
		_, err := repository.NewUserRepository(docs).Update(ctx, entrantID, func(u *model.User) error {
			reg, ok := u.Registration(eventID)
			if !ok || reg.Status != model.StatusSelected {
				return repository.ErrNoChange
			}
			acted = true
			return u.SetRegistrationStatus(eventID, model.StatusDeclined, now)
		})
		if err != nil || !acted {
			return err
		}
		_, err = events.Update(ctx, eventID, func(e *model.Event) error {
			moveToCancelled(e, entrantID)
			return nil
		})
		if err != nil {
			return fmt.Errorf("cancel expired invitation for %s: %w", entrantID, err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if acted {
		s.logger.Info("invitation expired", "event_id", eventID, "entrant_id", entrantID)
	}
	return acted, nil
}

// Watch starts a countdown for the entrant's pending invitation. The caller
// must Stop it when done observing.
func (s *InvitationService) Watch(ctx context.Context, eventID, entrantID string) (*Countdown, error) {
	user, err := repository.NewUserRepository(s.docs).Get(ctx, entrantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotSelected
		}
		return nil, err
	}
	reg, ok := user.Registration(eventID)
	if !ok || reg.Status != model.StatusSelected {
		return nil, ErrNotSelected
	}
	selectedAt := s.clock()
	if reg.SelectedDate != nil {
		selectedAt = *reg.SelectedDate
	}

	key := invitationKey{eventID: eventID, entrantID: entrantID}
	var c *Countdown
	c = newCountdown(selectedAt.Add(RSVPWindow), func(ctx context.Context) error {
		_, err := s.AutoDecline(ctx, eventID, entrantID)
		return err
	}, func() { s.unregister(key, c) })
	c.clock = s.clock
	c.logger = s.logger.With("event_id", eventID, "entrant_id", entrantID)

	s.mu.Lock()
	set, ok := s.countdowns[key]
	if !ok {
		set = make(map[*Countdown]struct{})
		s.countdowns[key] = set
	}
	set[c] = struct{}{}
	s.mu.Unlock()

	c.start(context.WithoutCancel(ctx), CountdownResolution)
	return c, nil
}

// ActiveCountdowns returns how many countdowns are running for the invitation.
func (s *InvitationService) ActiveCountdowns(eventID, entrantID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.countdowns[invitationKey{eventID: eventID, entrantID: entrantID}])
}

func (s *InvitationService) stopCountdowns(eventID, entrantID string) {
	key := invitationKey{eventID: eventID, entrantID: entrantID}
	s.mu.Lock()
	set := s.countdowns[key]
	delete(s.countdowns, key)
	s.mu.Unlock()
	for c := range set {
		c.Stop()
	}
}

func (s *InvitationService) unregister(key invitationKey, c *Countdown) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.countdowns[key]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(s.countdowns, key)
		}
	}
}

// Countdown tracks one invitation's remaining RSVP time and fires the
// auto-decline exactly once when the deadline passes.
type Countdown struct {
	deadline  time.Time
	expire    func(ctx context.Context) error
	onExit    func()
	clock     func() time.Time
	logger    *slog.Logger
	remaining chan time.Duration

	mu      sync.Mutex
	expired bool

	started  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	doneOnce sync.Once
}

func newCountdown(deadline time.Time, expire func(context.Context) error, onExit func()) *Countdown {
	return &Countdown{
		deadline:  deadline,
		expire:    expire,
		onExit:    onExit,
		clock:     time.Now,
		logger:    slog.Default(),
		remaining: make(chan time.Duration, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Deadline returns when the invitation expires.
func (c *Countdown) Deadline() time.Time { return c.deadline }

// Remaining delivers the latest remaining time. Stale values are dropped.
func (c *Countdown) Remaining() <-chan time.Duration { return c.remaining }

// Done is closed once the countdown has stopped, by expiry or by Stop.
func (c *Countdown) Done() <-chan struct{} { return c.done }

// Expired reports whether the auto-decline has fired.
func (c *Countdown) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

// Evaluate publishes the remaining time at now. The first call at or past the
// deadline runs the auto-decline and reports true; later calls do nothing.
func (c *Countdown) Evaluate(ctx context.Context, now time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.expired {
		return false, nil
	}

	remaining := c.deadline.Sub(now)
	if remaining > 0 {
		c.publish(remaining.Truncate(CountdownResolution))
		return false, nil
	}

	c.expired = true
	c.publish(0)
	if c.expire == nil {
		return true, nil
	}
	if err := c.expire(ctx); err != nil {
		return true, err
	}
	return true, nil
}

// Stop cancels the countdown. It is safe to call more than once and before
// the countdown has started.
func (c *Countdown) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	if !c.started.Load() {
		c.finish()
	}
}

func (c *Countdown) start(ctx context.Context, resolution time.Duration) {
	c.started.Store(true)
	go c.run(ctx, resolution)
}

// finish closes done and runs onExit exactly once, whichever of Stop and run
// gets there first.
func (c *Countdown) finish() {
	c.doneOnce.Do(func() {
		close(c.done)
		if c.onExit != nil {
			c.onExit()
		}
	})
}

func (c *Countdown) stopped() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

func (c *Countdown) run(ctx context.Context, resolution time.Duration) {
	defer c.finish()

	ticker := time.NewTicker(resolution)
	defer ticker.Stop()
	for {
		if c.stopped() {
			return
		}
		fired, err := c.Evaluate(ctx, c.clock())
		if err != nil {
			c.logger.Error("auto-decline failed", "error", err)
		}
		if fired || c.Expired() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
		}
	}
}

// publish replaces any unread value with v. Callers hold c.mu.
func (c *Countdown) publish(v time.Duration) {
	select {
	case <-c.remaining:
	default:
	}
	c.remaining <- v
}
