package model

import (
	"slices"
	"testing"
	"time"
)

func TestIsRegistrationOpen(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(48 * time.Hour)
	e := Event{RegistrationStart: start, RegistrationEnd: end}

	tests := []struct {
		now  time.Time
		want bool
	}{
		{start.Add(-time.Nanosecond), false},
		{start, true},
		{start.Add(time.Hour), true},
		{end, true},
		{end.Add(time.Nanosecond), false},
	}
	for _, tc := range tests {
		if got := e.IsRegistrationOpen(tc.now); got != tc.want {
			t.Fatalf("open at %v = %v, want %v", tc.now, got, tc.want)
		}
	}
	if (&Event{}).IsRegistrationOpen(start) {
		t.Fatal("event without a window must be closed")
	}
}

func TestIsFull(t *testing.T) {
	t.Parallel()

	e := Event{WaitlistEntrantIDs: []string{"a", "b"}}
	if e.IsFull() {
		t.Fatal("no limit means never full")
	}
	limit := 3
	e.WaitlistLimit = &limit
	if e.IsFull() {
		t.Fatal("2 of 3 is not full")
	}
	e.WaitlistEntrantIDs = append(e.WaitlistEntrantIDs, "c")
	if !e.IsFull() {
		t.Fatal("3 of 3 is full")
	}
}

func TestEntrantsReturnsCopy(t *testing.T) {
	t.Parallel()

	e := Event{SelectedEntrantIDs: []string{"a"}}
	ids := e.Entrants(ListSelected)
	ids[0] = "changed"
	if e.SelectedEntrantIDs[0] != "a" {
		t.Fatal("Entrants leaked the backing array")
	}
	if _, ok := ParseEntrantList("vip"); ok {
		t.Fatal("unknown list accepted")
	}
	if l, ok := ParseEntrantList("cancelled"); !ok || l != ListCancelled {
		t.Fatalf("parse cancelled = %q %v", l, ok)
	}
}

func TestUserRegistrationsStaySorted(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	u := NewUser("u1")
	for _, id := range []string{"e3", "e1", "e2"} {
		if !u.AddRegistration(id, now) {
			t.Fatalf("add %s failed", id)
		}
	}
	if u.AddRegistration("e2", now) {
		t.Fatal("duplicate registration accepted")
	}

	var ids []string
	for _, r := range u.RegisteredEvents {
		ids = append(ids, r.EventID)
	}
	if !slices.Equal(ids, []string{"e1", "e2", "e3"}) {
		t.Fatalf("order = %v", ids)
	}

	later := now.Add(time.Hour)
	if err := u.SetRegistrationStatus("e2", StatusSelected, later); err != nil {
		t.Fatalf("set status: %v", err)
	}
	reg, ok := u.Registration("e2")
	if !ok || reg.Status != StatusSelected || reg.SelectedDate == nil || !reg.SelectedDate.Equal(later) {
		t.Fatalf("registration = %+v", reg)
	}
	if err := u.SetRegistrationStatus("e9", StatusAccepted, later); err != ErrRegistrationNotFound {
		t.Fatalf("expected ErrRegistrationNotFound, got %v", err)
	}
}

func TestUserMergeRemote(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	local := NewUser("u1")
	local.SetName("Local")
	local.AddRegistration("e2", now)

	remote := User{ID: "u1", Name: "Remote", Email: "r@example.com", Phone: "555", Type: UserTypeOrganizer}
	remote.AddRegistration("e1", now)
	remote.AddRegistration("e2", now.Add(time.Hour))

	local.MergeRemote(&remote)

	if local.Name != "Local" || local.Email != "r@example.com" || local.Phone != "555" {
		t.Fatalf("scalars = %+v", local)
	}
	if local.Type != UserTypeOrganizer {
		t.Fatalf("type = %v, want higher privilege", local.Type)
	}
	if len(local.RegisteredEvents) != 2 || local.RegisteredEvents[0].EventID != "e1" {
		t.Fatalf("registrations = %+v", local.RegisteredEvents)
	}
	if reg, _ := local.Registration("e2"); !reg.RegisteredDate.Equal(now) {
		t.Fatal("local registration was overwritten by remote copy")
	}

	lower := User{Type: UserTypeEntrant}
	local.MergeRemote(&lower)
	if local.Type != UserTypeOrganizer {
		t.Fatal("merge must not lower privilege")
	}

	if !local.Dirty() {
		t.Fatal("expected dirty after local edit")
	}
	local.MarkClean()
	if local.Dirty() {
		t.Fatal("expected clean")
	}
}

func TestUserCloneIsDeep(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	u := NewUser("u1")
	u.AddRegistration("e1", now)
	_ = u.SetRegistrationStatus("e1", StatusSelected, now)

	c := u.Clone()
	*c.RegisteredEvents[0].SelectedDate = now.Add(time.Hour)
	c.RegisteredEvents[0].Status = StatusDeclined

	reg, _ := u.Registration("e1")
	if reg.Status != StatusSelected || !reg.SelectedDate.Equal(now) {
		t.Fatalf("clone shares memory with original: %+v", reg)
	}
}

func TestOrganizerAddEventAndMerge(t *testing.T) {
	t.Parallel()

	o := NewOrganizer("o1")
	if !o.AddEvent("e2") || !o.AddEvent("e1") || o.AddEvent("e2") {
		t.Fatal("unexpected AddEvent result")
	}
	o.MergeRemote(&Organizer{EventIDs: []string{"e3", "e1"}})
	if !slices.Equal(o.EventIDs, []string{"e1", "e2", "e3"}) {
		t.Fatalf("event ids = %v", o.EventIDs)
	}
	c := o.Clone()
	c.EventIDs[0] = "x"
	if o.EventIDs[0] != "e1" {
		t.Fatal("clone shares memory")
	}
}

func TestExistenceString(t *testing.T) {
	t.Parallel()

	if ExistenceUnknown.String() != "unknown" || ExistenceNonexistent.String() != "nonexistent" || ExistenceExistent.String() != "existent" {
		t.Fatal("unexpected existence names")
	}
}
