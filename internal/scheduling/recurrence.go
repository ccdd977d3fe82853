package scheduling

import (
	"time"
)

// ExpandDates generates the dates of a recurring series after the seed
// occurrence. The seed itself counts toward maxCount, so a series with
// maxCount=3 yields two generated dates. At least one of endDate/maxCount
// must bound the series; an unbounded series is invalid.
//
// Monthly steps clamp to month end relative to the seed's day-of-month, so a
// Jan 31 seed lands on Feb 29 in a leap year and back on Mar 31 after.
func ExpandDates(seedDate time.Time, pattern RecurrencePattern, interval int, endDate *time.Time, maxCount *int) ([]time.Time, error) {
	if pattern == PatternNone {
		return nil, nil
	}
	switch pattern {
	case PatternDaily, PatternWeekly, PatternMonthly, PatternCustom:
	default:
		return nil, &ValidationError{Field: "pattern", Reason: "must be one of none, daily, weekly, monthly, custom"}
	}
	if interval < 1 {
		return nil, &ValidationError{Field: "interval", Reason: "must be at least 1"}
	}
	if endDate == nil && maxCount == nil {
		return nil, &ValidationError{Field: "recurrence", Reason: "either end_date or count must bound the series"}
	}
	if maxCount != nil && *maxCount < 1 {
		return nil, &ValidationError{Field: "count", Reason: "must be at least 1"}
	}

	anchor := truncateToDay(seedDate)
	if endDate != nil && truncateToDay(*endDate).Before(anchor) {
		return nil, &ValidationError{Field: "end_date", Reason: "must not precede the seed date"}
	}

	var dates []time.Time
	for step := 1; ; step++ {
		if maxCount != nil && step >= *maxCount {
			break
		}

		var next time.Time
		switch pattern {
		case PatternDaily:
			next = anchor.AddDate(0, 0, step*interval)
		case PatternWeekly:
			next = anchor.AddDate(0, 0, step*interval*7)
		case PatternMonthly:
			next = addMonthsClamped(anchor, step*interval)
		case PatternCustom:
			next = anchor.AddDate(0, 0, step*interval)
		}

		if endDate != nil && next.After(truncateToDay(*endDate)) {
			break
		}
		dates = append(dates, next)
	}

	return dates, nil
}

// addMonthsClamped advances by whole months, clamping the day-of-month to the
// target month's length instead of letting time.AddDate roll over.
func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	firstOfTarget := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d, 0, 0, 0, 0, t.Location())
}

// filterSeriesScope selects which occurrences of a series a scoped edit
// touches. The series must be sorted however the caller likes; the filter is
// purely by identity and date.
func filterSeriesScope(series []Appointment, target Appointment, scope SeriesScope) []Appointment {
	switch scope {
	case ScopeThisOnly:
		for _, a := range series {
			if a.ID == target.ID {
				return []Appointment{a}
			}
		}
		return nil
	case ScopeThisAndFuture:
		var out []Appointment
		for _, a := range series {
			if !a.Date.Before(truncateToDay(target.Date)) {
				out = append(out, a)
			}
		}
		return out
	case ScopeAll:
		out := make([]Appointment, len(series))
		copy(out, series)
		return out
	default:
		return nil
	}
}
