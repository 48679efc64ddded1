package model

import (
	"errors"
	"slices"
	"strings"
	"time"
)

// ErrRegistrationNotFound is returned when a user has no registration for an event.
var ErrRegistrationNotFound = errors.New("event not found in user registrations")

// Status is the mirrored lifecycle state of a user's registration for one event.
type Status string

const (
	StatusPending    Status = "pending"
	StatusSelected   Status = "selected"
	StatusWaitlisted Status = "waitlisted"
	StatusAccepted   Status = "accepted"
	StatusDeclined   Status = "declined"
	StatusWithdrawn  Status = "withdrawn"
)

// RegisteredEvent records one event a user has joined.
type RegisteredEvent struct {
	EventID        string     `json:"event_id"`
	Status         Status     `json:"status"`
	RegisteredDate time.Time  `json:"registered_date"`
	SelectedDate   *time.Time `json:"selected_date,omitempty"`
}

// UserType orders privilege levels; higher values carry more privilege.
type UserType int

const (
	UserTypeEntrant UserType = iota
	UserTypeOrganizer
	UserTypeAdmin
)

// Existence tracks whether a local record has a confirmed remote counterpart.
type Existence int

const (
	ExistenceUnknown Existence = iota
	ExistenceNonexistent
	ExistenceExistent
)

func (e Existence) String() string {
	switch e {
	case ExistenceNonexistent:
		return "nonexistent"
	case ExistenceExistent:
		return "existent"
	default:
		return "unknown"
	}
}

type field uint8

const (
	fieldName field = 1 << iota
	fieldEmail
	fieldPhone
	fieldType
)

// User is an entrant profile. Registrations are kept sorted by event id.
type User struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Email            string            `json:"email"`
	Phone            string            `json:"phone"`
	Type             UserType          `json:"type"`
	RegisteredEvents []RegisteredEvent `json:"registered_events"`

	dirty field
}

// NewUser returns an empty user profile for id.
func NewUser(id string) User {
	return User{ID: id}
}

// SyncID implements the profile sync record contract.
func (u *User) SyncID() string { return u.ID }

func (u *User) SetName(name string) {
	u.Name = strings.TrimSpace(name)
	u.dirty |= fieldName
}

func (u *User) SetEmail(email string) {
	u.Email = strings.TrimSpace(strings.ToLower(email))
	u.dirty |= fieldEmail
}

func (u *User) SetPhone(phone string) {
	u.Phone = strings.TrimSpace(phone)
	u.dirty |= fieldPhone
}

func (u *User) SetType(t UserType) {
	u.Type = t
	u.dirty |= fieldType
}

// Dirty reports whether any scalar field was edited locally since the last sync.
func (u *User) Dirty() bool { return u.dirty != 0 }

// MarkClean forgets local edits once they have been written remotely.
func (u *User) MarkClean() { u.dirty = 0 }

// MergeRemote folds a fetched remote copy into u. Locally edited scalars
// win; registrations only known remotely are adopted.
func (u *User) MergeRemote(remote *User) {
	if remote == nil {
		return
	}
	if u.dirty&fieldName == 0 {
		u.Name = remote.Name
	}
	if u.dirty&fieldEmail == 0 {
		u.Email = remote.Email
	}
	if u.dirty&fieldPhone == 0 {
		u.Phone = remote.Phone
	}
	if u.dirty&fieldType == 0 && remote.Type > u.Type {
		u.Type = remote.Type
	}
	u.AdoptRegistrations(remote.RegisteredEvents)
}

// AdoptRegistrations adds the registrations for events u does not know yet.
func (u *User) AdoptRegistrations(regs []RegisteredEvent) {
	for _, reg := range regs {
		if _, ok := u.findRegistration(reg.EventID); !ok {
			u.RegisteredEvents = append(u.RegisteredEvents, reg)
			u.sortRegistrations()
		}
	}
}

// Clone returns a deep copy safe to hand to another goroutine.
func (u *User) Clone() User {
	c := *u
	c.RegisteredEvents = make([]RegisteredEvent, len(u.RegisteredEvents))
	for i, reg := range u.RegisteredEvents {
		if reg.SelectedDate != nil {
			d := *reg.SelectedDate
			reg.SelectedDate = &d
		}
		c.RegisteredEvents[i] = reg
	}
	return c
}

// Registration returns the registration for eventID.
func (u *User) Registration(eventID string) (RegisteredEvent, bool) {
	i, ok := u.findRegistration(eventID)
	if !ok {
		return RegisteredEvent{}, false
	}
	return u.RegisteredEvents[i], true
}

// AddRegistration records a pending registration. It returns false when one already exists.
func (u *User) AddRegistration(eventID string, now time.Time) bool {
	if _, ok := u.findRegistration(eventID); ok {
		return false
	}
	u.RegisteredEvents = append(u.RegisteredEvents, RegisteredEvent{
		EventID:        eventID,
		Status:         StatusPending,
		RegisteredDate: now.UTC(),
	})
	u.sortRegistrations()
	return true
}

// SetRegistrationStatus updates the status for eventID. Moving to Selected
// stamps the selection time, which starts the RSVP window.
func (u *User) SetRegistrationStatus(eventID string, status Status, now time.Time) error {
	i, ok := u.findRegistration(eventID)
	if !ok {
		return ErrRegistrationNotFound
	}
	u.RegisteredEvents[i].Status = status
	if status == StatusSelected {
		at := now.UTC()
		u.RegisteredEvents[i].SelectedDate = &at
	}
	return nil
}

func (u *User) findRegistration(eventID string) (int, bool) {
	return slices.BinarySearchFunc(u.RegisteredEvents, eventID, func(reg RegisteredEvent, id string) int {
		return strings.Compare(reg.EventID, id)
	})
}

func (u *User) sortRegistrations() {
	slices.SortFunc(u.RegisteredEvents, func(a, b RegisteredEvent) int {
		return strings.Compare(a.EventID, b.EventID)
	})
}

// Organizer owns a sorted set of created event ids.
type Organizer struct {
	ID       string   `json:"id"`
	EventIDs []string `json:"event_ids"`
}

// NewOrganizer returns an empty organizer record for id.
func NewOrganizer(id string) Organizer {
	return Organizer{ID: id}
}

func (o *Organizer) SyncID() string { return o.ID }

// AddEvent records eventID. It returns false when already present.
func (o *Organizer) AddEvent(eventID string) bool {
	i, found := slices.BinarySearch(o.EventIDs, eventID)
	if found {
		return false
	}
	o.EventIDs = slices.Insert(o.EventIDs, i, eventID)
	return true
}

// MergeRemote adopts event ids only known remotely.
func (o *Organizer) MergeRemote(remote *Organizer) {
	if remote == nil {
		return
	}
	for _, id := range remote.EventIDs {
		o.AddEvent(id)
	}
}

// MarkClean is a no-op; organizers carry no locally edited scalars.
func (o *Organizer) MarkClean() {}

func (o *Organizer) Clone() Organizer {
	return Organizer{ID: o.ID, EventIDs: slices.Clone(o.EventIDs)}
}
