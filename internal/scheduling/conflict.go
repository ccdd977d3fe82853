package scheduling

import (
	"github.com/google/uuid"
)

// overlapsBuffered reports whether two minute intervals collide once each is
// padded by buffer minutes. Strict inequality on both sides: a candidate that
// starts exactly at another booking's buffered end does not conflict.
func overlapsBuffered(aStart, aEnd, bStart, bEnd, buffer int) bool {
	return aStart < bEnd+buffer && bStart < aEnd+buffer
}

// policyFor picks the window covering startMinute. When several windows exist
// for a weekday the one containing the candidate start wins; when none does,
// the booking is outside working hours and the defaults apply (no buffer,
// single concurrency).
func policyFor(policies []AvailabilityPolicy, startMinute int) (buffer, maxConcurrent int) {
	buffer = 0
	maxConcurrent = 1
	for _, p := range policies {
		if p.StartMinute <= startMinute && startMinute < p.EndMinute {
			return p.BufferMinutes, p.MaxConcurrent
		}
	}
	return buffer, maxConcurrent
}

// detectConflicts runs the overlap and capacity tests for a candidate
// interval against one day's bookings. Pure: callers fetch the day once and
// may probe many candidates against the same snapshot.
func detectConflicts(startMinute, durationMinutes int, existing []Appointment, policies []AvailabilityPolicy, excludeID *uuid.UUID) ConflictResult {
	buffer, maxConcurrent := policyFor(policies, startMinute)
	endMinute := startMinute + durationMinutes

	var overlapping []Appointment
	for _, a := range existing {
		if a.Status == StatusCancelled {
			continue
		}
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		if overlapsBuffered(startMinute, endMinute, a.StartMinute, a.EndMinute(), buffer) {
			overlapping = append(overlapping, a)
		}
	}

	if len(overlapping) >= maxConcurrent {
		return ConflictResult{HasConflict: true, Conflicting: overlapping}
	}
	return ConflictResult{}
}

func validateInterval(startMinute, durationMinutes int) error {
	if durationMinutes <= 0 {
		return &ValidationError{Field: "duration_minutes", Reason: "must be positive"}
	}
	if startMinute < 0 || startMinute >= minutesPerDay {
		return &ValidationError{Field: "time", Reason: "must fall within the day"}
	}
	if startMinute+durationMinutes > minutesPerDay {
		return &ValidationError{Field: "duration_minutes", Reason: "interval runs past midnight"}
	}
	return nil
}
