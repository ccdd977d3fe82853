package scheduling

import (
	"sort"
)

// findSlots enumerates conflict-free start times for one day against a single
// snapshot of that day's bookings. Candidates step from each available
// window's start in granularity increments (granularity <= 0 means the
// requested duration, so slots never overlap each other) and must fit inside
// the window.
func findSlots(durationMinutes, granularity int, policies []AvailabilityPolicy, existing []Appointment) []AvailableSlot {
	step := granularity
	if step <= 0 {
		step = durationMinutes
	}

	seen := make(map[int]bool)
	var slots []AvailableSlot

	for _, p := range policies {
		if !p.IsAvailable {
			continue
		}
		for t := p.StartMinute; t+durationMinutes <= p.EndMinute; t += step {
			if seen[t] {
				continue
			}
			res := detectConflicts(t, durationMinutes, existing, policies, nil)
			if res.HasConflict {
				continue
			}
			seen[t] = true
			slots = append(slots, AvailableSlot{StartMinute: t, DurationMinutes: durationMinutes})
		}
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].StartMinute < slots[j].StartMinute })
	return slots
}
