package scheduling

import (
	"fmt"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"

	minutesPerDay = 24 * 60
)

// ParseDate parses a "2006-01-02" calendar day into midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "date", Reason: fmt.Sprintf("%q is not a valid date, want YYYY-MM-DD", s)}
	}
	return t, nil
}

func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// ParseClock parses "15:04" into minutes from midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse(clockLayout, s)
	if err != nil {
		return 0, &ValidationError{Field: "time", Reason: fmt.Sprintf("%q is not a valid time, want HH:MM", s)}
	}
	return t.Hour()*60 + t.Minute(), nil
}

func FormatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// truncateToDay normalizes any timestamp to its calendar day at midnight UTC
// so day comparisons and map keys behave.
func truncateToDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sameDay(a, b time.Time) bool {
	return truncateToDay(a).Equal(truncateToDay(b))
}
