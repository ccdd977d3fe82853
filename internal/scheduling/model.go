package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled   AppointmentStatus = "scheduled"
	StatusConfirmed   AppointmentStatus = "confirmed"
	StatusCancelled   AppointmentStatus = "cancelled"
	StatusCompleted   AppointmentStatus = "completed"
	StatusNoShow      AppointmentStatus = "no_show"
	StatusRescheduled AppointmentStatus = "rescheduled"
)

type RecurrencePattern string

const (
	PatternNone    RecurrencePattern = "none"
	PatternDaily   RecurrencePattern = "daily"
	PatternWeekly  RecurrencePattern = "weekly"
	PatternMonthly RecurrencePattern = "monthly"
	PatternCustom  RecurrencePattern = "custom"
)

type WaitlistStatus string

const (
	WaitlistActive    WaitlistStatus = "active"
	WaitlistNotified  WaitlistStatus = "notified"
	WaitlistConverted WaitlistStatus = "converted"
	WaitlistCancelled WaitlistStatus = "cancelled"
)

type ConflictType string

const (
	ConflictTimeOverlap   ConflictType = "time_overlap"
	ConflictDoubleBooking ConflictType = "double_booking"
	ConflictResource      ConflictType = "resource_conflict"
)

type SeriesScope string

const (
	ScopeThisOnly      SeriesScope = "this_only"
	ScopeThisAndFuture SeriesScope = "this_and_future"
	ScopeAll           SeriesScope = "all"
)

type Patient struct {
	ID               uuid.UUID
	OwnerID          uuid.UUID
	Name             string
	Phone            *string
	Email            *string
	PreferredContact *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Appointment is one booking on an owner's calendar. Date is the calendar
// day at midnight UTC; StartMinute is minutes from midnight. Cancelled
// rows are kept for audit and excluded from conflict computation.
type Appointment struct {
	ID                  uuid.UUID
	OwnerID             uuid.UUID
	PatientID           uuid.UUID
	Date                time.Time
	StartMinute         int
	DurationMinutes     int
	Status              AppointmentStatus
	Reason              string
	ServiceType         *string
	Notes               *string
	RecurrencePattern   RecurrencePattern
	RecurrenceInterval  int
	RecurrenceEndDate   *time.Time
	RecurrenceCount     *int
	ParentAppointmentID *uuid.UUID
	ReminderMinutes     *int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// EndMinute is the exclusive end of the appointment's interval.
func (a Appointment) EndMinute() int {
	return a.StartMinute + a.DurationMinutes
}

// AvailabilityPolicy is a weekly recurring working window for an owner.
// DayOfWeek follows time.Weekday: 0=Sunday .. 6=Saturday.
type AvailabilityPolicy struct {
	ID            uuid.UUID
	OwnerID       uuid.UUID
	DayOfWeek     int
	StartMinute   int
	EndMinute     int
	IsAvailable   bool
	BufferMinutes int
	MaxConcurrent int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type WaitlistEntry struct {
	ID              uuid.UUID
	OwnerID         uuid.UUID
	PatientID       uuid.UUID
	PreferredDate   *time.Time
	PreferredMinute *int
	ServiceType     *string
	Reason          string
	Priority        int
	Status          WaitlistStatus
	NotifiedAt      *time.Time
	ExpiresAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ConflictRecord is written only when a caller books over a detected conflict
// with an explicit override; the normal reject-and-suggest path persists
// nothing.
type ConflictRecord struct {
	ID                       uuid.UUID
	AppointmentID            uuid.UUID
	ConflictingAppointmentID uuid.UUID
	Type                     ConflictType
	Resolved                 bool
	ResolutionNotes          *string
	CreatedAt                time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

type AvailableSlot struct {
	StartMinute     int
	DurationMinutes int
}

type ConflictResult struct {
	HasConflict bool
	Conflicting []Appointment
}

type AppointmentDetail struct {
	Appointment
	Patient *Patient
}

// AppointmentPatch is the closed set of fields a series or single-row update
// may touch. Nil means "leave unchanged".
type AppointmentPatch struct {
	Date            *time.Time
	StartMinute     *int
	DurationMinutes *int
	Reason          *string
	ServiceType     *string
	Notes           *string
	ReminderMinutes *int
	Status          *AppointmentStatus
}

// IsZero reports whether the patch changes nothing.
func (p AppointmentPatch) IsZero() bool {
	return p.Date == nil && p.StartMinute == nil && p.DurationMinutes == nil &&
		p.Reason == nil && p.ServiceType == nil && p.Notes == nil &&
		p.ReminderMinutes == nil && p.Status == nil
}

// MovesInterval reports whether the patch changes the appointment's interval
// and therefore needs a conflict re-check.
func (p AppointmentPatch) MovesInterval() bool {
	return p.Date != nil || p.StartMinute != nil || p.DurationMinutes != nil
}

// WaitlistPatch mirrors AppointmentPatch for waitlist entries. ClearNotified
// resets the notification fields to NULL, which a pointer-to-nil cannot
// express.
type WaitlistPatch struct {
	Status        *WaitlistStatus
	NotifiedAt    *time.Time
	ExpiresAt     *time.Time
	ClearNotified bool
}
