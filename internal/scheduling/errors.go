package scheduling

import (
	"errors"
	"fmt"
)

var (
	ErrAppointmentNotFound   = errors.New("appointment not found")
	ErrPatientNotFound       = errors.New("patient not found")
	ErrWaitlistEntryNotFound = errors.New("waitlist entry not found")

	// ErrScheduleBusy means the per-day lock could not be acquired; the
	// caller should retry.
	ErrScheduleBusy = errors.New("schedule is being modified, please retry")
)

// ValidationError rejects malformed input before any read or write happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError is a decision, not a crash: the candidate interval was
// rejected and the caller may resubmit with an override, or pick one of the
// suggested alternatives.
type ConflictError struct {
	Conflicts   []Appointment
	Suggestions []AvailableSlot
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("requested time conflicts with %d existing appointment(s)", len(e.Conflicts))
}

// InvalidTransitionError rejects an illegal state-machine move.
type InvalidTransitionError struct {
	From AppointmentStatus
	To   AppointmentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition appointment from %s to %s", e.From, e.To)
}
