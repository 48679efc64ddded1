// Package model defines the core domain types for the event lottery system.
package model

import (
	"slices"
	"time"
)

// EntrantList names one of the four per-event membership lists.
type EntrantList string

const (
	ListWaitlist  EntrantList = "waitlist"
	ListSelected  EntrantList = "selected"
	ListAccepted  EntrantList = "accepted"
	ListCancelled EntrantList = "cancelled"
)

// ParseEntrantList returns the list named by s, or false when s is not a list name.
func ParseEntrantList(s string) (EntrantList, bool) {
	switch l := EntrantList(s); l {
	case ListWaitlist, ListSelected, ListAccepted, ListCancelled:
		return l, true
	}
	return "", false
}

// Event represents a capacity-limited lottery event created by an organizer.
//
// The four entrant lists are stored on the event document and are always
// written back as a whole; there is no optimistic-concurrency token.
type Event struct {
	ID                string    `json:"id"`
	OrganizerID       string    `json:"organizer_id"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	Location          string    `json:"location"`
	EventDateTime     time.Time `json:"event_date_time"`
	RegistrationStart time.Time `json:"registration_start"`
	RegistrationEnd   time.Time `json:"registration_end"`
	MaxEntrants       int       `json:"max_entrants"`
	WaitlistLimit     *int      `json:"waitlist_limit,omitempty"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`

	WaitlistEntrantIDs  []string `json:"waitlist_entrant_ids"`
	SelectedEntrantIDs  []string `json:"selected_entrant_ids"`
	AcceptedEntrantIDs  []string `json:"accepted_entrant_ids"`
	CancelledEntrantIDs []string `json:"cancelled_entrant_ids"`
}

// SetID lets the document store stamp a generated id.
func (e *Event) SetID(id string) { e.ID = id }

// Event status values.
const (
	EventStatusOpen  = "open"
	EventStatusDrawn = "drawn"
)

// IsRegistrationOpen reports whether now falls inside [RegistrationStart, RegistrationEnd].
func (e *Event) IsRegistrationOpen(now time.Time) bool {
	if e.RegistrationStart.IsZero() || e.RegistrationEnd.IsZero() {
		return false
	}
	return !now.Before(e.RegistrationStart) && !now.After(e.RegistrationEnd)
}

// IsFull returns true when a waitlist limit is set and has been reached.
func (e *Event) IsFull() bool {
	if e.WaitlistLimit == nil {
		return false
	}
	return len(e.WaitlistEntrantIDs) >= *e.WaitlistLimit
}

// LotteryDrawn reports whether any draw has moved entrants off the waitlist.
func (e *Event) LotteryDrawn() bool {
	return len(e.SelectedEntrantIDs) > 0 || len(e.AcceptedEntrantIDs) > 0 || len(e.CancelledEntrantIDs) > 0
}

// Entrants returns a copy of the named list.
func (e *Event) Entrants(list EntrantList) []string {
	var ids []string
	switch list {
	case ListWaitlist:
		ids = e.WaitlistEntrantIDs
	case ListSelected:
		ids = e.SelectedEntrantIDs
	case ListAccepted:
		ids = e.AcceptedEntrantIDs
	case ListCancelled:
		ids = e.CancelledEntrantIDs
	}
	return slices.Clone(ids)
}

// MembershipStatus is the derived view of where a user sits for one event.
type MembershipStatus string

const (
	MembershipAccepted   MembershipStatus = "accepted"
	MembershipSelected   MembershipStatus = "selected"
	MembershipCancelled  MembershipStatus = "cancelled"
	MembershipWaitlisted MembershipStatus = "waitlisted"
	MembershipPending    MembershipStatus = "pending"
	MembershipNone       MembershipStatus = "none"
)

// MembershipOf derives a user's status from list membership.
// Lists are checked in priority order because nothing prevents an id from
// appearing on more than one of them.
func (e *Event) MembershipOf(userID string) MembershipStatus {
	switch {
	case slices.Contains(e.AcceptedEntrantIDs, userID):
		return MembershipAccepted
	case slices.Contains(e.SelectedEntrantIDs, userID):
		return MembershipSelected
	case slices.Contains(e.CancelledEntrantIDs, userID):
		return MembershipCancelled
	case slices.Contains(e.WaitlistEntrantIDs, userID):
		if e.LotteryDrawn() {
			return MembershipWaitlisted
		}
		return MembershipPending
	}
	return MembershipNone
}

// Notification is one inbox item for a recipient. Only Read is mutable.
type Notification struct {
	UUID        string    `json:"uuid"`
	RecipientID string    `json:"recipient_id"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	EventID     string    `json:"event_id,omitempty"`
	EventTitle  string    `json:"event_title,omitempty"`
	Read        bool      `json:"read"`
	Timestamp   time.Time `json:"timestamp"`
}

// Session is the explicit identity of the caller for one request.
type Session struct {
	UserID string
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Name              string    `json:"name" validate:"required"`
	Description       string    `json:"description"`
	Location          string    `json:"location" validate:"required"`
	EventDateTime     time.Time `json:"event_date_time" validate:"required"`
	RegistrationStart time.Time `json:"registration_start" validate:"required"`
	RegistrationEnd   time.Time `json:"registration_end" validate:"required,gtfield=RegistrationStart"`
	MaxEntrants       int       `json:"max_entrants" validate:"gt=0"`
	WaitlistLimit     *int      `json:"waitlist_limit,omitempty" validate:"omitempty,gt=0"`
}

// DrawRequest is the payload for running a lottery draw.
type DrawRequest struct {
	Count int `json:"count"`
}

// DrawResponse summarises a completed draw.
type DrawResponse struct {
	EventID   string   `json:"event_id"`
	Selected  int      `json:"selected"`
	Remaining int      `json:"remaining"`
	Winners   []string `json:"winners"`
}

// NotifyRequest is the payload for an organizer broadcast.
type NotifyRequest struct {
	List       string   `json:"list,omitempty"`
	EntrantIDs []string `json:"entrant_ids,omitempty"`
	Message    string   `json:"message"`
}

// NotifyResponse reports a broadcast outcome. Failures are advisory.
type NotifyResponse struct {
	Total     int    `json:"total"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Status    string `json:"status"`
}

// MembershipResponse is the derived status of the session user for an event.
type MembershipResponse struct {
	EventID string           `json:"event_id"`
	UserID  string           `json:"user_id"`
	Status  MembershipStatus `json:"status"`
}

// UpdateProfileRequest carries local profile edits. Nil fields are left alone.
type UpdateProfileRequest struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone *string `json:"phone,omitempty"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
