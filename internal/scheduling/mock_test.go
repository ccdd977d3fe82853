package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careloop/clinic-scheduler/internal/config"
)

// mockRepo is an in-memory Repository for service tests.
type mockRepo struct {
	mu sync.Mutex

	patients        map[uuid.UUID]Patient
	policies        []AvailabilityPolicy
	appointments    map[uuid.UUID]*Appointment
	waitlist        map[uuid.UUID]*WaitlistEntry
	conflictRecords []ConflictRecord
	events          []EventLog

	seq int
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		patients:     make(map[uuid.UUID]Patient),
		appointments: make(map[uuid.UUID]*Appointment),
		waitlist:     make(map[uuid.UUID]*WaitlistEntry),
	}
}

func (m *mockRepo) GetPatientByID(_ context.Context, ownerID, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok || p.OwnerID != ownerID {
		return nil, ErrPatientNotFound
	}
	out := p
	return &out, nil
}

func (m *mockRepo) ListPoliciesForWeekday(_ context.Context, ownerID uuid.UUID, dayOfWeek int) ([]AvailabilityPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AvailabilityPolicy
	for _, p := range m.policies {
		if p.OwnerID == ownerID && p.DayOfWeek == dayOfWeek {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockRepo) GetAppointmentByID(_ context.Context, ownerID, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok || a.OwnerID != ownerID {
		return nil, ErrAppointmentNotFound
	}
	out := *a
	return &out, nil
}

func (m *mockRepo) ListDayAppointments(_ context.Context, ownerID uuid.UUID, date time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if a.OwnerID == ownerID && sameDay(a.Date, date) && a.Status != StatusCancelled {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartMinute < out[j].StartMinute })
	return out, nil
}

func (m *mockRepo) ListSeries(_ context.Context, ownerID, parentID uuid.UUID) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if a.OwnerID != ownerID {
			continue
		}
		if a.ID == parentID || (a.ParentAppointmentID != nil && *a.ParentAppointmentID == parentID) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].StartMinute < out[j].StartMinute
	})
	return out, nil
}

func (m *mockRepo) CreateAppointment(_ context.Context, a *Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *a
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.Status == "" {
		stored.Status = StatusScheduled
	}
	if stored.RecurrencePattern == "" {
		stored.RecurrencePattern = PatternNone
	}
	stored.Date = truncateToDay(stored.Date)
	m.seq++
	stored.CreatedAt = time.Unix(int64(m.seq), 0)
	m.appointments[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (m *mockRepo) UpdateAppointment(_ context.Context, ownerID, id uuid.UUID, patch AppointmentPatch) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok || a.OwnerID != ownerID {
		return nil, ErrAppointmentNotFound
	}
	if patch.Date != nil {
		a.Date = truncateToDay(*patch.Date)
	}
	if patch.StartMinute != nil {
		a.StartMinute = *patch.StartMinute
	}
	if patch.DurationMinutes != nil {
		a.DurationMinutes = *patch.DurationMinutes
	}
	if patch.Reason != nil {
		a.Reason = *patch.Reason
	}
	if patch.ServiceType != nil {
		a.ServiceType = patch.ServiceType
	}
	if patch.Notes != nil {
		a.Notes = patch.Notes
	}
	if patch.ReminderMinutes != nil {
		a.ReminderMinutes = patch.ReminderMinutes
	}
	if patch.Status != nil {
		a.Status = *patch.Status
	}
	out := *a
	return &out, nil
}

func (m *mockRepo) UpdateAppointmentStatus(_ context.Context, ownerID, id uuid.UUID, from, to AppointmentStatus, notes *string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok || a.OwnerID != ownerID || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	if notes != nil {
		a.Notes = notes
	}
	out := *a
	return &out, nil
}

func (m *mockRepo) SetRecurrence(_ context.Context, ownerID, id uuid.UUID, pattern RecurrencePattern, interval int, endDate *time.Time, count *int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok || a.OwnerID != ownerID {
		return ErrAppointmentNotFound
	}
	a.RecurrencePattern = pattern
	a.RecurrenceInterval = interval
	a.RecurrenceEndDate = endDate
	a.RecurrenceCount = count
	return nil
}

func (m *mockRepo) GetWaitlistEntryByID(_ context.Context, ownerID, id uuid.UUID) (*WaitlistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.waitlist[id]
	if !ok || e.OwnerID != ownerID {
		return nil, ErrWaitlistEntryNotFound
	}
	out := *e
	return &out, nil
}

func (m *mockRepo) ListOpenWaitlistEntries(_ context.Context, ownerID uuid.UUID, now time.Time) ([]WaitlistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []WaitlistEntry
	for _, e := range m.waitlist {
		if e.OwnerID != ownerID {
			continue
		}
		if EffectiveWaitlistStatus(*e, now) == WaitlistActive {
			out = append(out, *e)
		}
	}
	out = orderWaitlist(out)
	return out, nil
}

func (m *mockRepo) UpdateWaitlistEntry(_ context.Context, ownerID, id uuid.UUID, patch WaitlistPatch) (*WaitlistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.waitlist[id]
	if !ok || e.OwnerID != ownerID {
		return nil, ErrWaitlistEntryNotFound
	}
	if patch.Status != nil {
		e.Status = *patch.Status
	}
	if patch.ClearNotified {
		e.NotifiedAt = nil
		e.ExpiresAt = nil
	} else {
		if patch.NotifiedAt != nil {
			e.NotifiedAt = patch.NotifiedAt
		}
		if patch.ExpiresAt != nil {
			e.ExpiresAt = patch.ExpiresAt
		}
	}
	out := *e
	return &out, nil
}

func (m *mockRepo) FindLapsedNotified(_ context.Context, now time.Time) ([]WaitlistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []WaitlistEntry
	for _, e := range m.waitlist {
		if e.Status == WaitlistNotified && e.ExpiresAt != nil && e.ExpiresAt.Before(now) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *mockRepo) InsertConflictRecord(_ context.Context, rec ConflictRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflictRecords = append(m.conflictRecords, rec)
	return nil
}

func (m *mockRepo) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *mockRepo) WithTx(ctx context.Context, fn func(ctx context.Context, r Repository) error) error {
	return fn(ctx, m)
}

// nopLocker runs the critical section directly; lock semantics are covered
// by the redis implementation, not these tests.
type nopLocker struct{}

func (nopLocker) WithDayLock(ctx context.Context, _ uuid.UUID, _ time.Time, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(repo *mockRepo) *Service {
	cfg := config.Config{
		SuggestionLimit: 5,
		DefaultDuration: 30,
		WaitlistTTL:     24 * time.Hour,
	}
	svc := NewService(repo, nopLocker{}, cfg, zerolog.Nop())
	svc.now = func() time.Time { return testNow }
	return svc
}

// Fixture helpers. 2024-03-04 is a Monday.

func mustDate(t string) time.Time {
	d, err := ParseDate(t)
	if err != nil {
		panic(err)
	}
	return d
}

func mustClock(s string) int {
	m, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return m
}

func weekdayPolicy(ownerID uuid.UUID, dayOfWeek, buffer, maxConcurrent int) AvailabilityPolicy {
	return AvailabilityPolicy{
		ID:            uuid.New(),
		OwnerID:       ownerID,
		DayOfWeek:     dayOfWeek,
		StartMinute:   mustClock("09:00"),
		EndMinute:     mustClock("17:00"),
		IsAvailable:   true,
		BufferMinutes: buffer,
		MaxConcurrent: maxConcurrent,
	}
}

func (m *mockRepo) addAppointment(ownerID uuid.UUID, date time.Time, clock string, duration int, status AppointmentStatus) *Appointment {
	a, err := m.CreateAppointment(context.Background(), &Appointment{
		OwnerID:         ownerID,
		PatientID:       uuid.New(),
		Date:            date,
		StartMinute:     mustClock(clock),
		DurationMinutes: duration,
		Status:          status,
		Reason:          "checkup",
	})
	if err != nil {
		panic(err)
	}
	return a
}

func (m *mockRepo) addPatient(ownerID uuid.UUID) Patient {
	p := Patient{ID: uuid.New(), OwnerID: ownerID, Name: "Test Patient"}
	m.mu.Lock()
	m.patients[p.ID] = p
	m.mu.Unlock()
	return p
}

func (m *mockRepo) addWaitlistEntry(ownerID uuid.UUID, priority int, createdAt time.Time, preferredDate *time.Time, preferredMinute *int) *WaitlistEntry {
	e := &WaitlistEntry{
		ID:              uuid.New(),
		OwnerID:         ownerID,
		PatientID:       uuid.New(),
		Priority:        priority,
		Status:          WaitlistActive,
		Reason:          "wants earlier slot",
		PreferredDate:   preferredDate,
		PreferredMinute: preferredMinute,
		CreatedAt:       createdAt,
	}
	m.mu.Lock()
	m.waitlist[e.ID] = e
	m.mu.Unlock()
	return e
}
