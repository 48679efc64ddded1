// Package service implements the lottery core: entrant list transitions,
// draws, notification fan-out, RSVP deadlines and profile synchronisation.
package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrAlreadyOnList is returned when an entrant joins a list twice.
	ErrAlreadyOnList = errors.New("entrant already on waiting list")
	// ErrNotOnList is returned when an entrant is missing from the list an operation needs.
	ErrNotOnList = errors.New("entrant not found on waiting list")
	// ErrRegistrationClosed is returned outside the event's registration window.
	ErrRegistrationClosed = errors.New("registration is closed for this event")
	// ErrWaitlistFull is returned when the waitlist has reached its limit.
	ErrWaitlistFull = errors.New("the waiting list for this event is full")
	// ErrNotSelected is returned when an RSVP targets an entrant without a pending invitation.
	ErrNotSelected = errors.New("entrant has no pending invitation")
)

// ValidationError reports input that was rejected before touching any store.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validationf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// fromValidator converts validator field errors into a single ValidationError.
func fromValidator(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ValidationError{Message: "invalid input"}
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		name := toSnake(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, name+" is required")
		case "gt":
			msgs = append(msgs, name+" must be greater than "+fe.Param())
		case "gtfield":
			msgs = append(msgs, name+" must be after "+toSnake(fe.Param()))
		case "email":
			msgs = append(msgs, name+" must be a valid email address")
		default:
			msgs = append(msgs, name+" is invalid")
		}
	}
	return &ValidationError{Message: strings.Join(msgs, "; ")}
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
