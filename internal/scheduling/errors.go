package scheduling

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingOwner is returned when a call has no owner uid.
	ErrMissingOwner = errors.New("owner uid is required")

	// ErrInvalidName is returned when a client or provider name is blank.
	ErrInvalidName = errors.New("name is required")

	// ErrInvalidAppointment wraps every appointment validation failure.
	ErrInvalidAppointment = errors.New("invalid appointment")

	// ErrInvalidTimeRange is returned when end is not after start.
	ErrInvalidTimeRange = errors.New("end must be after start")

	// ErrInvalidTransition is returned for a status change the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	ErrClientNotFound      = errors.New("client not found")
	ErrProviderNotFound    = errors.New("provider not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrConflict is the sentinel behind ConflictError.
	ErrConflict = errors.New("appointment conflicts with existing appointments")
)

// ConflictError lists the existing appointments a candidate overlaps.
type ConflictError struct {
	Conflicts []*Appointment
}

func (e *ConflictError) Error() string {
	if e == nil || len(e.Conflicts) == 0 {
		return ErrConflict.Error()
	}
	ids := make([]string, 0, len(e.Conflicts))
	for _, appt := range e.Conflicts {
		ids = append(ids, appt.ID)
	}
	return fmt.Sprintf("%s: %s", ErrConflict.Error(), strings.Join(ids, ", "))
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

func invalid(reason error) error {
	return fmt.Errorf("%w: %w", ErrInvalidAppointment, reason)
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidAppointment, fmt.Sprintf(format, args...))
}

func transitionError(from, to Status) error {
	return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
}
