package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all DB interactions needed by the service. The
// scheduler itself is stateless; everything it decides is a function of its
// inputs plus what it reads here.
type Repository interface {
	GetPatientByID(ctx context.Context, ownerID, id uuid.UUID) (*Patient, error)

	ListPoliciesForWeekday(ctx context.Context, ownerID uuid.UUID, dayOfWeek int) ([]AvailabilityPolicy, error)

	GetAppointmentByID(ctx context.Context, ownerID, id uuid.UUID) (*Appointment, error)
	// ListDayAppointments returns the owner's non-cancelled bookings for one
	// calendar day, ordered by start time.
	ListDayAppointments(ctx context.Context, ownerID uuid.UUID, date time.Time) ([]Appointment, error)
	// ListSeries returns the seed plus every occurrence sharing its parent
	// reference, ordered by date.
	ListSeries(ctx context.Context, ownerID, parentID uuid.UUID) ([]Appointment, error)
	CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)
	UpdateAppointment(ctx context.Context, ownerID, id uuid.UUID, patch AppointmentPatch) (*Appointment, error)
	// UpdateAppointmentStatus is a compare-and-swap: the row must still be in
	// from, otherwise ErrAppointmentNotFound.
	UpdateAppointmentStatus(ctx context.Context, ownerID, id uuid.UUID, from, to AppointmentStatus, notes *string) (*Appointment, error)
	SetRecurrence(ctx context.Context, ownerID, id uuid.UUID, pattern RecurrencePattern, interval int, endDate *time.Time, count *int) error

	GetWaitlistEntryByID(ctx context.Context, ownerID, id uuid.UUID) (*WaitlistEntry, error)
	// ListOpenWaitlistEntries returns active entries plus notified entries
	// whose claim window already lapsed, ordered by priority then age.
	ListOpenWaitlistEntries(ctx context.Context, ownerID uuid.UUID, now time.Time) ([]WaitlistEntry, error)
	UpdateWaitlistEntry(ctx context.Context, ownerID, id uuid.UUID, patch WaitlistPatch) (*WaitlistEntry, error)
	// FindLapsedNotified is used by the waitlist worker to persist lazy
	// expiries.
	FindLapsedNotified(ctx context.Context, now time.Time) ([]WaitlistEntry, error)

	InsertConflictRecord(ctx context.Context, rec ConflictRecord) error
	InsertEvent(ctx context.Context, ev EventLog) error

	// WithTx runs fn against a transactional view of the repository. A
	// returned error rolls everything back.
	WithTx(ctx context.Context, fn func(ctx context.Context, r Repository) error) error
}
