package scheduling

import (
	"errors"
	"testing"
)

var allStatuses = []AppointmentStatus{
	StatusScheduled, StatusConfirmed, StatusCancelled,
	StatusCompleted, StatusNoShow, StatusRescheduled,
}

func TestTransitionTableIsTotal(t *testing.T) {
	allowed := map[[2]AppointmentStatus]bool{
		{StatusScheduled, StatusConfirmed}:     true,
		{StatusScheduled, StatusCancelled}:     true,
		{StatusScheduled, StatusCompleted}:     true,
		{StatusScheduled, StatusNoShow}:        true,
		{StatusScheduled, StatusRescheduled}:   true,
		{StatusConfirmed, StatusCancelled}:     true,
		{StatusConfirmed, StatusCompleted}:     true,
		{StatusConfirmed, StatusNoShow}:        true,
		{StatusConfirmed, StatusRescheduled}:   true,
		{StatusRescheduled, StatusConfirmed}:   true,
		{StatusRescheduled, StatusCancelled}:   true,
		{StatusRescheduled, StatusCompleted}:   true,
		{StatusRescheduled, StatusNoShow}:      true,
		{StatusRescheduled, StatusRescheduled}: true,
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := allowed[[2]AppointmentStatus{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}

			err := checkTransition(from, to)
			if want && err != nil {
				t.Errorf("checkTransition(%s, %s) unexpectedly rejected: %v", from, to, err)
			}
			if !want {
				var tErr *InvalidTransitionError
				if !errors.As(err, &tErr) {
					t.Errorf("checkTransition(%s, %s) = %v, want InvalidTransitionError", from, to, err)
				}
			}
		}
	}
}

func TestTerminalStatesHaveNoExit(t *testing.T) {
	for _, from := range []AppointmentStatus{StatusCancelled, StatusCompleted, StatusNoShow} {
		if !IsTerminal(from) {
			t.Errorf("%s should be terminal", from)
		}
		for _, to := range allStatuses {
			if CanTransition(from, to) {
				t.Errorf("terminal state %s admits transition to %s", from, to)
			}
		}
	}

	for _, s := range []AppointmentStatus{StatusScheduled, StatusConfirmed, StatusRescheduled} {
		if IsTerminal(s) {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
