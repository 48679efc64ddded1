package service

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-lottery/internal/model"
	"github.com/Shivanand-hulikatti/event-lottery/internal/repository"
)

func newTestInvitations(docs repository.Documents, now time.Time) *InvitationService {
	s := NewInvitationService(docs, discardLogger())
	s.clock = fixedClock(now)
	return s
}

// drawn seeds an event whose selected list holds ids with Selected registrations.
func drawn(t *testing.T, docs repository.Documents, ids ...string) *model.Event {
	t.Helper()
	event := seedEvent(t, docs, ids...)
	if _, err := newTestDraw(docs, identityShuffler{}, nil).RunDraw(context.Background(), event.ID, len(ids)); err != nil {
		t.Fatalf("draw: %v", err)
	}
	return mustEvent(t, docs, event.ID)
}

func TestCountdownEvaluate(t *testing.T) {
	t.Parallel()

	deadline := testNow.Add(RSVPWindow)
	var fired atomic.Int32
	c := newCountdown(deadline, func(context.Context) error {
		fired.Add(1)
		return nil
	}, nil)
	ctx := context.Background()

	for _, now := range []time.Time{testNow, deadline.Add(-time.Hour), deadline.Add(-time.Millisecond)} {
		expired, err := c.Evaluate(ctx, now)
		if err != nil || expired {
			t.Fatalf("at %v: expired=%v err=%v", now, expired, err)
		}
		if want := deadline.Sub(now).Truncate(time.Second); <-c.Remaining() != want {
			t.Fatalf("remaining at %v should be %v", now, want)
		}
	}
	if fired.Load() != 0 || c.Expired() {
		t.Fatal("auto-decline fired before the deadline")
	}

	expired, err := c.Evaluate(ctx, deadline)
	if err != nil || !expired {
		t.Fatalf("at deadline: expired=%v err=%v", expired, err)
	}
	if <-c.Remaining() != 0 {
		t.Fatal("expected zero remaining at deadline")
	}
	for i := 0; i < 3; i++ {
		if expired, _ := c.Evaluate(ctx, deadline.Add(time.Duration(i)*time.Hour)); expired {
			t.Fatal("re-evaluation after expiry must be a no-op")
		}
	}
	if fired.Load() != 1 {
		t.Fatalf("auto-decline fired %d times", fired.Load())
	}
}

func TestCountdownLatestValueOnly(t *testing.T) {
	t.Parallel()

	c := newCountdown(testNow.Add(time.Hour), nil, nil)
	for _, m := range []time.Duration{10, 20, 30} {
		if _, err := c.Evaluate(context.Background(), testNow.Add(m*time.Minute)); err != nil {
			t.Fatalf("evaluate: %v", err)
		}
	}
	if got := <-c.Remaining(); got != 30*time.Minute {
		t.Fatalf("remaining = %v, want latest value 30m", got)
	}
	c.Stop()
	c.Stop()
	<-c.Done()
}

func TestCountdownStoppedBeforeStart(t *testing.T) {
	t.Parallel()

	var fired, exits atomic.Int32
	c := newCountdown(testNow.Add(-time.Minute), func(context.Context) error {
		fired.Add(1)
		return nil
	}, func() { exits.Add(1) })
	c.clock = fixedClock(testNow)

	c.Stop()
	select {
	case <-c.Done():
	default:
		t.Fatal("stop before start should close done")
	}

	// Starting after Stop must neither panic nor run the expiry.
	c.start(context.Background(), time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	c.Stop()

	if fired.Load() != 0 || c.Expired() {
		t.Fatal("stopped countdown fired its auto-decline")
	}
	if exits.Load() != 1 {
		t.Fatalf("onExit ran %d times, want 1", exits.Load())
	}
}

func TestCountdownStopRacesStart(t *testing.T) {
	t.Parallel()

	for i := 0; i < 200; i++ {
		var exits atomic.Int32
		c := newCountdown(testNow.Add(time.Hour), nil, func() { exits.Add(1) })
		c.clock = fixedClock(testNow)

		go c.Stop()
		c.start(context.Background(), time.Millisecond)
		select {
		case <-c.Done():
		case <-time.After(2 * time.Second):
			t.Fatalf("iteration %d: countdown never finished", i)
		}
		c.Stop()
		eventually(t, func() bool { return exits.Load() == 1 })
	}
}

func TestAcceptAndDecline(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	docs := repository.NewMemoryDocuments()
	event := drawn(t, docs, "u1", "u2")
	invites := newTestInvitations(docs, testNow.Add(time.Hour))

	if err := invites.Accept(ctx, event.ID, "u1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := invites.Decline(ctx, event.ID, "u2"); err != nil {
		t.Fatalf("decline: %v", err)
	}

	got := mustEvent(t, docs, event.ID)
	if len(got.SelectedEntrantIDs) != 0 ||
		!slices.Equal(got.AcceptedEntrantIDs, []string{"u1"}) ||
		!slices.Equal(got.CancelledEntrantIDs, []string{"u2"}) {
		t.Fatalf("lists = %+v", got)
	}
	if reg := mustRegistration(t, docs, "u1", event.ID); reg.Status != model.StatusAccepted {
		t.Fatalf("u1 status %s", reg.Status)
	}
	if reg := mustRegistration(t, docs, "u2", event.ID); reg.Status != model.StatusDeclined {
		t.Fatalf("u2 status %s", reg.Status)
	}

	if err := invites.Decline(ctx, event.ID, "u1"); !errors.Is(err, ErrNotSelected) {
		t.Fatalf("declining after accept: expected ErrNotSelected, got %v", err)
	}
	if err := invites.Accept(ctx, event.ID, "stranger"); !errors.Is(err, ErrNotSelected) {
		t.Fatalf("expected ErrNotSelected, got %v", err)
	}
}

func TestAcceptRetryAfterPartialWriteCompletes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	docs := &faultyDocuments{MemoryDocuments: repository.NewMemoryDocuments()}
	event := drawn(t, docs, "u1")
	invites := newTestInvitations(docs, testNow)

	docs.failWrites(repository.CollectionEvents)
	if err := invites.Accept(ctx, event.ID, "u1"); err == nil {
		t.Fatal("expected list write failure")
	}
	if reg := mustRegistration(t, docs, "u1", event.ID); reg.Status != model.StatusAccepted {
		t.Fatalf("user write should have landed first, status %s", reg.Status)
	}
	if got := mustEvent(t, docs, event.ID); !slices.Equal(got.SelectedEntrantIDs, []string{"u1"}) {
		t.Fatalf("selected = %v", got.SelectedEntrantIDs)
	}

	docs.failWrites("")
	if err := invites.Accept(ctx, event.ID, "u1"); err != nil {
		t.Fatalf("retry accept: %v", err)
	}
	if got := mustEvent(t, docs, event.ID); !slices.Equal(got.AcceptedEntrantIDs, []string{"u1"}) || len(got.SelectedEntrantIDs) != 0 {
		t.Fatalf("lists after retry = %+v", got)
	}
}

func TestAutoDeclineIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	docs := repository.NewMemoryDocuments()
	event := drawn(t, docs, "u1")
	invites := newTestInvitations(docs, testNow.Add(RSVPWindow))

	acted, err := invites.AutoDecline(ctx, event.ID, "u1")
	if err != nil || !acted {
		t.Fatalf("first auto-decline: acted=%v err=%v", acted, err)
	}
	acted, err = invites.AutoDecline(ctx, event.ID, "u1")
	if err != nil || acted {
		t.Fatalf("second auto-decline: acted=%v err=%v", acted, err)
	}

	got := mustEvent(t, docs, event.ID)
	if !slices.Equal(got.CancelledEntrantIDs, []string{"u1"}) || len(got.SelectedEntrantIDs) != 0 {
		t.Fatalf("lists = %+v", got)
	}
	if reg := mustRegistration(t, docs, "u1", event.ID); reg.Status != model.StatusDeclined {
		t.Fatalf("status %s", reg.Status)
	}
}

func TestWatchPublishesRemainingAndStopsOnAccept(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	docs := repository.NewMemoryDocuments()
	event := drawn(t, docs, "u1")
	invites := newTestInvitations(docs, testNow.Add(time.Hour))

	c, err := invites.Watch(ctx, event.ID, "u1")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if !c.Deadline().Equal(testNow.Add(RSVPWindow)) {
		t.Fatalf("deadline = %v", c.Deadline())
	}
	select {
	case got := <-c.Remaining():
		if got != 23*time.Hour {
			t.Fatalf("remaining = %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no remaining value published")
	}
	if invites.ActiveCountdowns(event.ID, "u1") != 1 {
		t.Fatal("countdown not registered")
	}

	if err := invites.Accept(ctx, event.ID, "u1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("accept did not stop the countdown")
	}
	if c.Expired() {
		t.Fatal("stopped countdown must not auto-decline")
	}
	eventually(t, func() bool { return invites.ActiveCountdowns(event.ID, "u1") == 0 })
}

func TestWatchExpiredInvitationAutoDeclines(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	docs := repository.NewMemoryDocuments()
	event := drawn(t, docs, "u1")
	invites := newTestInvitations(docs, testNow.Add(RSVPWindow+time.Minute))

	c, err := invites.Watch(ctx, event.ID, "u1")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("expired countdown did not finish")
	}
	if !c.Expired() {
		t.Fatal("expected expiry")
	}
	if reg := mustRegistration(t, docs, "u1", event.ID); reg.Status != model.StatusDeclined {
		t.Fatalf("status %s", reg.Status)
	}
	if _, err := invites.Watch(ctx, event.ID, "u1"); !errors.Is(err, ErrNotSelected) {
		t.Fatalf("watching a declined invitation: expected ErrNotSelected, got %v", err)
	}
}
