package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so the same queries
// run inside and outside transactions.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgRepository struct {
	db   querier
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: pool, pool: pool}
}

func (r *PgRepository) WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	if r.pool == nil {
		// Already inside a transaction; run on the same one.
		return fn(ctx, r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, &PgRepository{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Scan helpers

const appointmentColumns = `id, owner_id, patient_id, date, start_minute, duration_minutes, status,
	reason, service_type, notes, recurrence_pattern, recurrence_interval,
	recurrence_end_date, recurrence_count, parent_appointment_id, reminder_minutes,
	created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.OwnerID,
		&a.PatientID,
		&a.Date,
		&a.StartMinute,
		&a.DurationMinutes,
		&a.Status,
		&a.Reason,
		&a.ServiceType,
		&a.Notes,
		&a.RecurrencePattern,
		&a.RecurrenceInterval,
		&a.RecurrenceEndDate,
		&a.RecurrenceCount,
		&a.ParentAppointmentID,
		&a.ReminderMinutes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	a.Date = truncateToDay(a.Date)
	return &a, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID,
		&p.OwnerID,
		&p.Name,
		&p.Phone,
		&p.Email,
		&p.PreferredContact,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanPolicy(row pgx.Row) (*AvailabilityPolicy, error) {
	var p AvailabilityPolicy
	err := row.Scan(
		&p.ID,
		&p.OwnerID,
		&p.DayOfWeek,
		&p.StartMinute,
		&p.EndMinute,
		&p.IsAvailable,
		&p.BufferMinutes,
		&p.MaxConcurrent,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const waitlistColumns = `id, owner_id, patient_id, preferred_date, preferred_minute, service_type,
	reason, priority, status, notified_at, expires_at, created_at, updated_at`

func scanWaitlistEntry(row pgx.Row) (*WaitlistEntry, error) {
	var e WaitlistEntry
	err := row.Scan(
		&e.ID,
		&e.OwnerID,
		&e.PatientID,
		&e.PreferredDate,
		&e.PreferredMinute,
		&e.ServiceType,
		&e.Reason,
		&e.Priority,
		&e.Status,
		&e.NotifiedAt,
		&e.ExpiresAt,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWaitlistEntryNotFound
		}
		return nil, err
	}
	if e.PreferredDate != nil {
		d := truncateToDay(*e.PreferredDate)
		e.PreferredDate = &d
	}
	return &e, nil
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, ownerID, id uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, owner_id, name, phone, email, preferred_contact, created_at, updated_at
		FROM patients
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID)
	return scanPatient(row)
}

func (r *PgRepository) ListPoliciesForWeekday(ctx context.Context, ownerID uuid.UUID, dayOfWeek int) ([]AvailabilityPolicy, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, owner_id, day_of_week, start_minute, end_minute, is_available,
		       buffer_minutes, max_concurrent, created_at, updated_at
		FROM availability_policies
		WHERE owner_id = $1 AND day_of_week = $2
		ORDER BY start_minute
	`, ownerID, dayOfWeek)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AvailabilityPolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, ownerID, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID)
	return scanAppointment(row)
}

func (r *PgRepository) ListDayAppointments(ctx context.Context, ownerID uuid.UUID, date time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE owner_id = $1 AND date = $2 AND status <> 'cancelled'
		ORDER BY start_minute
	`, ownerID, truncateToDay(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListSeries(ctx context.Context, ownerID, parentID uuid.UUID) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE owner_id = $1 AND (id = $2 OR parent_appointment_id = $2)
		ORDER BY date, start_minute
	`, ownerID, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	status := a.Status
	if status == "" {
		status = StatusScheduled
	}
	pattern := a.RecurrencePattern
	if pattern == "" {
		pattern = PatternNone
	}
	interval := a.RecurrenceInterval
	if interval == 0 {
		interval = 1
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (
			id, owner_id, patient_id, date, start_minute, duration_minutes, status,
			reason, service_type, notes, recurrence_pattern, recurrence_interval,
			recurrence_end_date, recurrence_count, parent_appointment_id, reminder_minutes,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, now(), now())
		RETURNING `+appointmentColumns+`
	`, id, a.OwnerID, a.PatientID, truncateToDay(a.Date), a.StartMinute, a.DurationMinutes, status,
		a.Reason, a.ServiceType, a.Notes, pattern, interval,
		a.RecurrenceEndDate, a.RecurrenceCount, a.ParentAppointmentID, a.ReminderMinutes)

	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, ownerID, id uuid.UUID, patch AppointmentPatch) (*Appointment, error) {
	sets := []string{"updated_at = now()"}
	args := []any{id, ownerID}

	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if patch.Date != nil {
		add("date", truncateToDay(*patch.Date))
	}
	if patch.StartMinute != nil {
		add("start_minute", *patch.StartMinute)
	}
	if patch.DurationMinutes != nil {
		add("duration_minutes", *patch.DurationMinutes)
	}
	if patch.Reason != nil {
		add("reason", *patch.Reason)
	}
	if patch.ServiceType != nil {
		add("service_type", *patch.ServiceType)
	}
	if patch.Notes != nil {
		add("notes", *patch.Notes)
	}
	if patch.ReminderMinutes != nil {
		add("reminder_minutes", *patch.ReminderMinutes)
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}

	row := r.db.QueryRow(ctx, fmt.Sprintf(`
		UPDATE appointments
		SET %s
		WHERE id = $1 AND owner_id = $2
		RETURNING %s
	`, strings.Join(sets, ", "), appointmentColumns), args...)

	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, ownerID, id uuid.UUID, from, to AppointmentStatus, notes *string) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
		    notes = COALESCE($4, notes),
		    updated_at = now()
		WHERE id = $1
		  AND owner_id = $2
		  AND status = $5
		RETURNING `+appointmentColumns+`
	`, id, ownerID, to, notes, from)

	return scanAppointment(row)
}

func (r *PgRepository) SetRecurrence(ctx context.Context, ownerID, id uuid.UUID, pattern RecurrencePattern, interval int, endDate *time.Time, count *int) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET recurrence_pattern = $3,
		    recurrence_interval = $4,
		    recurrence_end_date = $5,
		    recurrence_count = $6,
		    updated_at = now()
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID, pattern, interval, endDate, count)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) GetWaitlistEntryByID(ctx context.Context, ownerID, id uuid.UUID) (*WaitlistEntry, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+waitlistColumns+`
		FROM waitlist_entries
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID)
	return scanWaitlistEntry(row)
}

func (r *PgRepository) ListOpenWaitlistEntries(ctx context.Context, ownerID uuid.UUID, now time.Time) ([]WaitlistEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+waitlistColumns+`
		FROM waitlist_entries
		WHERE owner_id = $1
		  AND (status = 'active' OR (status = 'notified' AND expires_at < $2))
		ORDER BY priority, created_at
	`, ownerID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []WaitlistEntry
	for rows.Next() {
		e, err := scanWaitlistEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	return result, rows.Err()
}

func (r *PgRepository) UpdateWaitlistEntry(ctx context.Context, ownerID, id uuid.UUID, patch WaitlistPatch) (*WaitlistEntry, error) {
	sets := []string{"updated_at = now()"}
	args := []any{id, ownerID}

	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.ClearNotified {
		sets = append(sets, "notified_at = NULL", "expires_at = NULL")
	} else {
		if patch.NotifiedAt != nil {
			add("notified_at", *patch.NotifiedAt)
		}
		if patch.ExpiresAt != nil {
			add("expires_at", *patch.ExpiresAt)
		}
	}

	row := r.db.QueryRow(ctx, fmt.Sprintf(`
		UPDATE waitlist_entries
		SET %s
		WHERE id = $1 AND owner_id = $2
		RETURNING %s
	`, strings.Join(sets, ", "), waitlistColumns), args...)

	return scanWaitlistEntry(row)
}

func (r *PgRepository) FindLapsedNotified(ctx context.Context, now time.Time) ([]WaitlistEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+waitlistColumns+`
		FROM waitlist_entries
		WHERE status = 'notified'
		  AND expires_at IS NOT NULL
		  AND expires_at < $1
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []WaitlistEntry
	for rows.Next() {
		e, err := scanWaitlistEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	return result, rows.Err()
}

func (r *PgRepository) InsertConflictRecord(ctx context.Context, rec ConflictRecord) error {
	id := rec.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO conflict_records (id, appointment_id, conflicting_appointment_id, conflict_type, resolved, resolution_notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`, id, rec.AppointmentID, rec.ConflictingAppointmentID, rec.Type, rec.Resolved, rec.ResolutionNotes)
	if err != nil {
		return fmt.Errorf("insert conflict record: %w", err)
	}
	return nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
