package scheduling

import (
	"sort"
	"time"
)

// EffectiveWaitlistStatus applies lazy expiry: a notified entry whose 24h
// claim window has lapsed reads as active again. The stored row is not
// touched here; the waitlist worker persists the reversion in bulk.
func EffectiveWaitlistStatus(e WaitlistEntry, now time.Time) WaitlistStatus {
	if e.Status == WaitlistNotified && e.ExpiresAt != nil && now.After(*e.ExpiresAt) {
		return WaitlistActive
	}
	return e.Status
}

// orderWaitlist sorts candidates by ascending priority (1 is most urgent)
// with a stable FIFO tie-break on creation time.
func orderWaitlist(entries []WaitlistEntry) []WaitlistEntry {
	out := make([]WaitlistEntry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// matchesFreedSlot reports whether an entry is a candidate for a slot freed
// by a cancellation. A nil preference is a wildcard; a stated preference must
// match exactly.
func matchesFreedSlot(e WaitlistEntry, date time.Time, startMinute int) bool {
	if e.PreferredDate != nil && !sameDay(*e.PreferredDate, date) {
		return false
	}
	if e.PreferredMinute != nil && *e.PreferredMinute != startMinute {
		return false
	}
	return true
}

// pickWaitlistCandidate selects the entry to notify for a freed slot: best
// priority first, oldest first among equals, active (including lapsed
// notifications) and preference-compatible only.
func pickWaitlistCandidate(entries []WaitlistEntry, date time.Time, startMinute int, now time.Time) *WaitlistEntry {
	for _, e := range orderWaitlist(entries) {
		if EffectiveWaitlistStatus(e, now) != WaitlistActive {
			continue
		}
		if !matchesFreedSlot(e, date, startMinute) {
			continue
		}
		picked := e
		return &picked
	}
	return nil
}
