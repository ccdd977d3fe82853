package scheduling

// allowedTransitions is the complete transition table. Any (from, to) pair
// not present is rejected; terminal states have no entry at all.
var allowedTransitions = map[AppointmentStatus]map[AppointmentStatus]bool{
	StatusScheduled: {
		StatusConfirmed:   true,
		StatusCancelled:   true,
		StatusCompleted:   true,
		StatusNoShow:      true,
		StatusRescheduled: true,
	},
	StatusConfirmed: {
		StatusCancelled:   true,
		StatusCompleted:   true,
		StatusNoShow:      true,
		StatusRescheduled: true,
	},
	StatusRescheduled: {
		StatusConfirmed:   true,
		StatusCancelled:   true,
		StatusCompleted:   true,
		StatusNoShow:      true,
		StatusRescheduled: true,
	},
}

func CanTransition(from, to AppointmentStatus) bool {
	return allowedTransitions[from][to]
}

func IsTerminal(s AppointmentStatus) bool {
	return s == StatusCancelled || s == StatusCompleted || s == StatusNoShow
}

// checkTransition returns the typed rejection for an illegal move.
func checkTransition(from, to AppointmentStatus) error {
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}
