package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careloop/clinic-scheduler/internal/config"
	redisclient "github.com/careloop/clinic-scheduler/internal/redis"
)

const (
	EventAppointmentBooked      = "APPOINTMENT_BOOKED"
	EventAppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventAppointmentNoShow      = "APPOINTMENT_NO_SHOW"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventConflictOverride       = "CONFLICT_OVERRIDE_ACCEPTED"
	EventSeriesCreated          = "SERIES_CREATED"
	EventSeriesUpdated          = "SERIES_UPDATED"
	EventWaitlistNotified       = "WAITLIST_NOTIFIED"
	EventWaitlistConverted      = "WAITLIST_CONVERTED"
)

type Service struct {
	repo   Repository
	locker redisclient.Locker
	cfg    config.Config
	log    zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

// ConflictQuery describes a candidate interval to test.
type ConflictQuery struct {
	OwnerID              uuid.UUID
	Date                 time.Time
	StartMinute          int
	DurationMinutes      int
	ExcludeAppointmentID *uuid.UUID
}

// CheckConflicts is a pure read: it never persists anything, including when
// it finds conflicts.
func (s *Service) CheckConflicts(ctx context.Context, q ConflictQuery) (*ConflictResult, error) {
	if err := validateInterval(q.StartMinute, q.DurationMinutes); err != nil {
		return nil, err
	}

	appts, policies, err := s.daySnapshot(ctx, q.OwnerID, q.Date)
	if err != nil {
		return nil, err
	}

	res := detectConflicts(q.StartMinute, q.DurationMinutes, appts, policies, q.ExcludeAppointmentID)
	return &res, nil
}

// FindAvailableSlots recomputes the full candidate list on every call; the
// result is a snapshot, not a resumable stream.
func (s *Service) FindAvailableSlots(ctx context.Context, ownerID uuid.UUID, date time.Time, durationMinutes int) ([]AvailableSlot, error) {
	if durationMinutes <= 0 {
		return nil, &ValidationError{Field: "duration_minutes", Reason: "must be positive"}
	}

	appts, policies, err := s.daySnapshot(ctx, ownerID, date)
	if err != nil {
		return nil, err
	}

	return findSlots(durationMinutes, s.cfg.SlotGranularity, policies, appts), nil
}

func (s *Service) daySnapshot(ctx context.Context, ownerID uuid.UUID, date time.Time) ([]Appointment, []AvailabilityPolicy, error) {
	day := truncateToDay(date)

	appts, err := s.repo.ListDayAppointments(ctx, ownerID, day)
	if err != nil {
		return nil, nil, fmt.Errorf("list day appointments: %w", err)
	}
	policies, err := s.repo.ListPoliciesForWeekday(ctx, ownerID, int(day.Weekday()))
	if err != nil {
		return nil, nil, fmt.Errorf("list policies: %w", err)
	}
	return appts, policies, nil
}

type BookingRequest struct {
	OwnerID               uuid.UUID
	PatientID             uuid.UUID
	Date                  time.Time
	StartMinute           int
	DurationMinutes       int
	Reason                string
	ServiceType           *string
	ReminderMinutes       *int
	OverrideConflictCheck bool
}

// BookAppointment runs the conflict check and the insert inside the per-day
// lock so two concurrent requests for the same slot cannot both succeed.
func (s *Service) BookAppointment(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if req.DurationMinutes == 0 {
		req.DurationMinutes = s.cfg.DefaultDuration
	}
	if err := validateInterval(req.StartMinute, req.DurationMinutes); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetPatientByID(ctx, req.OwnerID, req.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	day := truncateToDay(req.Date)
	var created *Appointment

	err := s.locker.WithDayLock(ctx, req.OwnerID, day, func(lockCtx context.Context) error {
		appts, policies, err := s.daySnapshot(lockCtx, req.OwnerID, day)
		if err != nil {
			return err
		}

		res := detectConflicts(req.StartMinute, req.DurationMinutes, appts, policies, nil)
		if res.HasConflict && !req.OverrideConflictCheck {
			return &ConflictError{
				Conflicts:   res.Conflicting,
				Suggestions: s.suggestAlternatives(req.DurationMinutes, policies, appts),
			}
		}

		appt, err := s.repo.CreateAppointment(lockCtx, &Appointment{
			OwnerID:         req.OwnerID,
			PatientID:       req.PatientID,
			Date:            day,
			StartMinute:     req.StartMinute,
			DurationMinutes: req.DurationMinutes,
			Status:          StatusScheduled,
			Reason:          req.Reason,
			ServiceType:     req.ServiceType,
			ReminderMinutes: req.ReminderMinutes,
		})
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		created = appt

		if res.HasConflict {
			// Deliberate override: audit every collision.
			for _, other := range res.Conflicting {
				rec := ConflictRecord{
					AppointmentID:            appt.ID,
					ConflictingAppointmentID: other.ID,
					Type:                     ConflictTimeOverlap,
				}
				if err := s.repo.InsertConflictRecord(lockCtx, rec); err != nil {
					s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to record conflict override")
				}
			}
			s.logEvent(lockCtx, appt.ID, EventConflictOverride, map[string]any{
				"conflicting": len(res.Conflicting),
			})
		}

		s.logEvent(lockCtx, appt.ID, EventAppointmentBooked, map[string]any{
			"date": FormatDate(day),
			"time": FormatClock(req.StartMinute),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			s.log.Warn().Str("owner_id", req.OwnerID.String()).Str("date", FormatDate(day)).Msg("day lock contended")
			return nil, ErrScheduleBusy
		}
		return nil, err
	}

	return created, nil
}

func (s *Service) suggestAlternatives(durationMinutes int, policies []AvailabilityPolicy, appts []Appointment) []AvailableSlot {
	slots := findSlots(durationMinutes, s.cfg.SlotGranularity, policies, appts)
	if len(slots) > s.cfg.SuggestionLimit {
		slots = slots[:s.cfg.SuggestionLimit]
	}
	return slots
}

// GetAppointmentDetail hydrates an appointment with the patient's display
// fields.
func (s *Service) GetAppointmentDetail(ctx context.Context, ownerID, id uuid.UUID) (*AppointmentDetail, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	detail := &AppointmentDetail{Appointment: *appt}
	patient, err := s.repo.GetPatientByID(ctx, ownerID, appt.PatientID)
	if err != nil && !errors.Is(err, ErrPatientNotFound) {
		return nil, fmt.Errorf("load patient: %w", err)
	}
	detail.Patient = patient
	return detail, nil
}

type RecurrenceRequest struct {
	ParentAppointmentID uuid.UUID
	OwnerID             uuid.UUID
	Pattern             RecurrencePattern
	Interval            int
	EndDate             *time.Time
	Count               *int
}

// ExpansionResult reports partial success as data: skipped occurrences are
// never an error.
type ExpansionResult struct {
	CreatedCount int
	CreatedIDs   []uuid.UUID
	SkippedDates []time.Time
}

// CreateRecurringAppointments expands the seed into a series. Conflicting
// occurrences are skipped and reported; all created drafts plus the seed's
// recurrence metadata are written in one transaction.
func (s *Service) CreateRecurringAppointments(ctx context.Context, req RecurrenceRequest) (*ExpansionResult, error) {
	seed, err := s.repo.GetAppointmentByID(ctx, req.OwnerID, req.ParentAppointmentID)
	if err != nil {
		return nil, err
	}
	if seed.ParentAppointmentID != nil {
		return nil, &ValidationError{Field: "parent_appointment_id", Reason: "appointment is already part of a series"}
	}

	dates, err := ExpandDates(seed.Date, req.Pattern, req.Interval, req.EndDate, req.Count)
	if err != nil {
		return nil, err
	}

	result := &ExpansionResult{}
	var drafts []Appointment

	for _, d := range dates {
		appts, policies, err := s.daySnapshot(ctx, req.OwnerID, d)
		if err != nil {
			return nil, err
		}
		res := detectConflicts(seed.StartMinute, seed.DurationMinutes, appts, policies, nil)
		if res.HasConflict {
			result.SkippedDates = append(result.SkippedDates, d)
			continue
		}

		parentID := seed.ID
		drafts = append(drafts, Appointment{
			OwnerID:             seed.OwnerID,
			PatientID:           seed.PatientID,
			Date:                d,
			StartMinute:         seed.StartMinute,
			DurationMinutes:     seed.DurationMinutes,
			Status:              StatusScheduled,
			Reason:              seed.Reason,
			ServiceType:         seed.ServiceType,
			ReminderMinutes:     seed.ReminderMinutes,
			RecurrencePattern:   req.Pattern,
			RecurrenceInterval:  req.Interval,
			RecurrenceEndDate:   req.EndDate,
			RecurrenceCount:     req.Count,
			ParentAppointmentID: &parentID,
		})
	}

	err = s.repo.WithTx(ctx, func(txCtx context.Context, r Repository) error {
		if err := r.SetRecurrence(txCtx, req.OwnerID, seed.ID, req.Pattern, req.Interval, req.EndDate, req.Count); err != nil {
			return fmt.Errorf("set seed recurrence: %w", err)
		}
		for i := range drafts {
			created, err := r.CreateAppointment(txCtx, &drafts[i])
			if err != nil {
				return fmt.Errorf("create occurrence for %s: %w", FormatDate(drafts[i].Date), err)
			}
			result.CreatedIDs = append(result.CreatedIDs, created.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.CreatedCount = len(result.CreatedIDs)
	s.logEvent(ctx, seed.ID, EventSeriesCreated, map[string]any{
		"created": result.CreatedCount,
		"skipped": len(result.SkippedDates),
	})
	s.log.Info().
		Str("parent_id", seed.ID.String()).
		Int("created", result.CreatedCount).
		Int("skipped", len(result.SkippedDates)).
		Msg("recurring series expanded")

	return result, nil
}

type SeriesUpdateRequest struct {
	ParentAppointmentID   uuid.UUID
	OwnerID               uuid.UUID
	TargetAppointmentID   *uuid.UUID
	Scope                 SeriesScope
	Patch                 AppointmentPatch
	OverrideConflictCheck bool
}

// UpdateSeries applies one patch to a scope of the series inside a single
// transaction: a partial failure never leaves the series half-updated.
func (s *Service) UpdateSeries(ctx context.Context, req SeriesUpdateRequest) ([]uuid.UUID, error) {
	switch req.Scope {
	case ScopeThisOnly, ScopeThisAndFuture, ScopeAll:
	default:
		return nil, &ValidationError{Field: "scope", Reason: "must be one of this_only, this_and_future, all"}
	}
	if req.Patch.IsZero() {
		return nil, &ValidationError{Field: "changes", Reason: "no fields to update"}
	}

	series, err := s.repo.ListSeries(ctx, req.OwnerID, req.ParentAppointmentID)
	if err != nil {
		return nil, err
	}
	if len(series) == 0 {
		return nil, ErrAppointmentNotFound
	}

	target, err := resolveSeriesTarget(series, req.ParentAppointmentID, req.TargetAppointmentID, req.Scope)
	if err != nil {
		return nil, err
	}

	selected := filterSeriesScope(series, *target, req.Scope)
	if len(selected) == 0 {
		return nil, ErrAppointmentNotFound
	}

	if req.Patch.MovesInterval() && !req.OverrideConflictCheck {
		moved := make([]Appointment, len(selected))
		for i, a := range selected {
			moved[i] = applyPatchPreview(a, req.Patch)
			if err := validateInterval(moved[i].StartMinute, moved[i].DurationMinutes); err != nil {
				return nil, err
			}
			id := a.ID
			res, err := s.CheckConflicts(ctx, ConflictQuery{
				OwnerID:              req.OwnerID,
				Date:                 moved[i].Date,
				StartMinute:          moved[i].StartMinute,
				DurationMinutes:      moved[i].DurationMinutes,
				ExcludeAppointmentID: &id,
			})
			if err != nil {
				return nil, err
			}
			if res.HasConflict {
				return nil, &ConflictError{Conflicts: res.Conflicting}
			}
		}

		// The day snapshots above only see the occurrences' pre-move
		// positions, so members of the moved set landing on the same day
		// must also be checked against each other.
		for i := range moved {
			for j := i + 1; j < len(moved); j++ {
				if sameDay(moved[i].Date, moved[j].Date) &&
					overlapsBuffered(moved[i].StartMinute, moved[i].EndMinute(), moved[j].StartMinute, moved[j].EndMinute(), 0) {
					return nil, &ConflictError{Conflicts: []Appointment{moved[i], moved[j]}}
				}
			}
		}
	}

	cancelling := req.Patch.Status != nil && *req.Patch.Status == StatusCancelled

	var affected []uuid.UUID
	err = s.repo.WithTx(ctx, func(txCtx context.Context, r Repository) error {
		for _, a := range selected {
			if req.Patch.Status != nil {
				if err := checkTransition(a.Status, *req.Patch.Status); err != nil {
					return err
				}
			}
			rowPatch := req.Patch
			if cancelling {
				// Cancelling through a series patch carries the same side
				// effects as the single-row path: annotate each occurrence's
				// notes with the reason.
				reason := ""
				if req.Patch.Notes != nil {
					reason = *req.Patch.Notes
				}
				note := annotated(reason, "cancelled")
				if a.Notes != nil && *a.Notes != "" {
					merged := *a.Notes + "\n" + *note
					note = &merged
				}
				rowPatch.Notes = note
			}
			if _, err := r.UpdateAppointment(txCtx, req.OwnerID, a.ID, rowPatch); err != nil {
				return fmt.Errorf("update occurrence %s: %w", a.ID, err)
			}
			affected = append(affected, a.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if cancelling {
		for _, a := range selected {
			if err := s.notifyForFreedSlot(ctx, req.OwnerID, a.Date, a.StartMinute); err != nil {
				s.log.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("waitlist scan after series cancellation failed")
			}
		}
	}

	s.logEvent(ctx, req.ParentAppointmentID, EventSeriesUpdated, map[string]any{
		"scope":    string(req.Scope),
		"affected": len(affected),
	})
	return affected, nil
}

func resolveSeriesTarget(series []Appointment, parentID uuid.UUID, targetID *uuid.UUID, scope SeriesScope) (*Appointment, error) {
	want := parentID
	if targetID != nil {
		want = *targetID
	} else if scope != ScopeAll {
		return nil, &ValidationError{Field: "target_appointment_id", Reason: "required for scoped updates"}
	}
	for i := range series {
		if series[i].ID == want {
			return &series[i], nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func applyPatchPreview(a Appointment, p AppointmentPatch) Appointment {
	if p.Date != nil {
		a.Date = truncateToDay(*p.Date)
	}
	if p.StartMinute != nil {
		a.StartMinute = *p.StartMinute
	}
	if p.DurationMinutes != nil {
		a.DurationMinutes = *p.DurationMinutes
	}
	return a
}

// ConfirmAppointment moves a booking to confirmed.
func (s *Service) ConfirmAppointment(ctx context.Context, ownerID, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, ownerID, id, StatusConfirmed, EventAppointmentConfirmed, nil)
}

// CompleteAppointment is terminal; the interval is unchanged so no conflict
// re-check happens.
func (s *Service) CompleteAppointment(ctx context.Context, ownerID, id uuid.UUID, notes string) (*Appointment, error) {
	return s.transition(ctx, ownerID, id, StatusCompleted, EventAppointmentCompleted, annotated(notes, "completed"))
}

// MarkNoShow is terminal.
func (s *Service) MarkNoShow(ctx context.Context, ownerID, id uuid.UUID, notes string) (*Appointment, error) {
	return s.transition(ctx, ownerID, id, StatusNoShow, EventAppointmentNoShow, annotated(notes, "no-show"))
}

// CancelAppointment keeps the row, annotates the reason, and hands the freed
// slot to the waitlist matcher.
func (s *Service) CancelAppointment(ctx context.Context, ownerID, id uuid.UUID, reason string) (*Appointment, error) {
	updated, err := s.transition(ctx, ownerID, id, StatusCancelled, EventAppointmentCancelled, annotated(reason, "cancelled"))
	if err != nil {
		return nil, err
	}

	if err := s.notifyForFreedSlot(ctx, ownerID, updated.Date, updated.StartMinute); err != nil {
		// The cancellation stands; the matcher will see the entry on the
		// next freed slot or via manual notify.
		s.log.Warn().Err(err).Str("appointment_id", id.String()).Msg("waitlist scan after cancellation failed")
	}
	return updated, nil
}

func annotated(text, action string) *string {
	if text == "" {
		text = action
	} else {
		text = action + ": " + text
	}
	return &text
}

func (s *Service) transition(ctx context.Context, ownerID, id uuid.UUID, to AppointmentStatus, eventType string, notes *string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(appt.Status, to); err != nil {
		return nil, err
	}

	if notes != nil && appt.Notes != nil && *appt.Notes != "" {
		merged := *appt.Notes + "\n" + *notes
		notes = &merged
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, ownerID, id, appt.Status, to, notes)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Lost the compare-and-swap to a concurrent transition.
			return nil, &InvalidTransitionError{From: appt.Status, To: to}
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	s.logEvent(ctx, id, eventType, map[string]any{"from": string(appt.Status), "to": string(to)})
	return updated, nil
}

type RescheduleRequest struct {
	ID                    uuid.UUID
	OwnerID               uuid.UUID
	NewDate               time.Time
	NewStartMinute        int
	NewDurationMinutes    *int
	OverrideConflictCheck bool
}

// RescheduleAppointment moves an appointment to a new interval. The new
// interval must pass the conflict detector (excluding the appointment
// itself) unless the caller explicitly overrides; the check and the write
// run under the target day's lock.
func (s *Service) RescheduleAppointment(ctx context.Context, req RescheduleRequest) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, req.OwnerID, req.ID)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(appt.Status, StatusRescheduled); err != nil {
		return nil, err
	}

	duration := appt.DurationMinutes
	if req.NewDurationMinutes != nil {
		duration = *req.NewDurationMinutes
	}
	if err := validateInterval(req.NewStartMinute, duration); err != nil {
		return nil, err
	}

	day := truncateToDay(req.NewDate)
	var updated *Appointment

	err = s.locker.WithDayLock(ctx, req.OwnerID, day, func(lockCtx context.Context) error {
		appts, policies, err := s.daySnapshot(lockCtx, req.OwnerID, day)
		if err != nil {
			return err
		}

		if !req.OverrideConflictCheck {
			res := detectConflicts(req.NewStartMinute, duration, appts, policies, &req.ID)
			if res.HasConflict {
				return &ConflictError{
					Conflicts:   res.Conflicting,
					Suggestions: s.suggestAlternatives(duration, policies, appts),
				}
			}
		}

		status := StatusRescheduled
		updated, err = s.repo.UpdateAppointment(lockCtx, req.OwnerID, req.ID, AppointmentPatch{
			Date:            &day,
			StartMinute:     &req.NewStartMinute,
			DurationMinutes: &duration,
			Status:          &status,
		})
		if err != nil {
			return fmt.Errorf("apply reschedule: %w", err)
		}

		s.logEvent(lockCtx, req.ID, EventAppointmentRescheduled, map[string]any{
			"from_date": FormatDate(appt.Date),
			"from_time": FormatClock(appt.StartMinute),
			"to_date":   FormatDate(day),
			"to_time":   FormatClock(req.NewStartMinute),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrScheduleBusy
		}
		return nil, err
	}

	return updated, nil
}

// NotifyWaitlistEntry marks an entry notified with a claim window; past the
// window the entry reads as active again.
func (s *Service) NotifyWaitlistEntry(ctx context.Context, ownerID, entryID uuid.UUID) (*WaitlistEntry, error) {
	entry, err := s.repo.GetWaitlistEntryByID(ctx, ownerID, entryID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if EffectiveWaitlistStatus(*entry, now) != WaitlistActive {
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("entry is %s, only active entries can be notified", entry.Status)}
	}

	status := WaitlistNotified
	expires := now.Add(s.cfg.WaitlistTTL)
	updated, err := s.repo.UpdateWaitlistEntry(ctx, ownerID, entryID, WaitlistPatch{
		Status:     &status,
		NotifiedAt: &now,
		ExpiresAt:  &expires,
	})
	if err != nil {
		return nil, fmt.Errorf("mark entry notified: %w", err)
	}

	s.logEvent(ctx, uuid.Nil, EventWaitlistNotified, map[string]any{
		"entry_id":   entryID.String(),
		"expires_at": expires,
	})
	return updated, nil
}

type ConvertRequest struct {
	EntryID         uuid.UUID
	OwnerID         uuid.UUID
	Date            time.Time
	StartMinute     int
	DurationMinutes *int
}

// ConvertWaitlistEntry books an appointment from an entry. Conversion is not
// exempt from conflict rules; the check and both writes run under the day
// lock and one transaction.
func (s *Service) ConvertWaitlistEntry(ctx context.Context, req ConvertRequest) (*Appointment, error) {
	entry, err := s.repo.GetWaitlistEntryByID(ctx, req.OwnerID, req.EntryID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	switch EffectiveWaitlistStatus(*entry, now) {
	case WaitlistActive, WaitlistNotified:
	default:
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("entry is %s and cannot be converted", entry.Status)}
	}

	duration := s.cfg.DefaultDuration
	if req.DurationMinutes != nil {
		duration = *req.DurationMinutes
	}
	if err := validateInterval(req.StartMinute, duration); err != nil {
		return nil, err
	}

	day := truncateToDay(req.Date)
	var created *Appointment

	err = s.locker.WithDayLock(ctx, req.OwnerID, day, func(lockCtx context.Context) error {
		appts, policies, err := s.daySnapshot(lockCtx, req.OwnerID, day)
		if err != nil {
			return err
		}

		res := detectConflicts(req.StartMinute, duration, appts, policies, nil)
		if res.HasConflict {
			return &ConflictError{
				Conflicts:   res.Conflicting,
				Suggestions: s.suggestAlternatives(duration, policies, appts),
			}
		}

		return s.repo.WithTx(lockCtx, func(txCtx context.Context, r Repository) error {
			appt, err := r.CreateAppointment(txCtx, &Appointment{
				OwnerID:         req.OwnerID,
				PatientID:       entry.PatientID,
				Date:            day,
				StartMinute:     req.StartMinute,
				DurationMinutes: duration,
				Status:          StatusScheduled,
				Reason:          entry.Reason,
				ServiceType:     entry.ServiceType,
			})
			if err != nil {
				return fmt.Errorf("create appointment from waitlist: %w", err)
			}
			created = appt

			converted := WaitlistConverted
			if _, err := r.UpdateWaitlistEntry(txCtx, req.OwnerID, req.EntryID, WaitlistPatch{Status: &converted}); err != nil {
				return fmt.Errorf("mark entry converted: %w", err)
			}

			s.logEventOn(r, txCtx, appt.ID, EventWaitlistConverted, map[string]any{
				"entry_id": req.EntryID.String(),
			})
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrScheduleBusy
		}
		return nil, err
	}

	return created, nil
}

// notifyForFreedSlot scans the waitlist after a cancellation and notifies the
// best matching entry, if any.
func (s *Service) notifyForFreedSlot(ctx context.Context, ownerID uuid.UUID, date time.Time, startMinute int) error {
	now := s.now()
	entries, err := s.repo.ListOpenWaitlistEntries(ctx, ownerID, now)
	if err != nil {
		return fmt.Errorf("list waitlist entries: %w", err)
	}

	candidate := pickWaitlistCandidate(entries, date, startMinute, now)
	if candidate == nil {
		return nil
	}

	if _, err := s.NotifyWaitlistEntry(ctx, ownerID, candidate.ID); err != nil {
		return fmt.Errorf("notify entry %s: %w", candidate.ID, err)
	}
	s.log.Info().
		Str("entry_id", candidate.ID.String()).
		Str("date", FormatDate(date)).
		Str("time", FormatClock(startMinute)).
		Msg("waitlist entry notified for freed slot")
	return nil
}

// ExpireLapsedNotifications persists the lazy reversion of notified entries
// whose claim window passed. Called periodically by the waitlist worker.
func (s *Service) ExpireLapsedNotifications(ctx context.Context) (int, error) {
	lapsed, err := s.repo.FindLapsedNotified(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("find lapsed notifications: %w", err)
	}

	reverted := 0
	for _, e := range lapsed {
		active := WaitlistActive
		_, err := s.repo.UpdateWaitlistEntry(ctx, e.OwnerID, e.ID, WaitlistPatch{
			Status:        &active,
			ClearNotified: true,
		})
		if err != nil {
			s.log.Error().Err(err).Str("entry_id", e.ID.String()).Msg("failed to revert lapsed notification")
			continue
		}
		reverted++
	}
	return reverted, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	s.logEventOn(s.repo, ctx, appointmentID, eventType, payload)
}

func (s *Service) logEventOn(r Repository, ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	ev := EventLog{
		EventType: eventType,
		Payload:   data,
		CreatedAt: s.now(),
	}
	if appointmentID != uuid.Nil {
		id := appointmentID
		ev.AppointmentID = &id
	}

	if err := r.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("failed to insert event log")
	}
}
