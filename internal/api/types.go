package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/careloop/clinic-scheduler/internal/scheduling"
)

type BookAppointmentRequest struct {
	OwnerID           string  `json:"owner_id" validate:"required,uuid"`
	PatientID         string  `json:"patient_id" validate:"required,uuid"`
	Date              string  `json:"date" validate:"required,datetime=2006-01-02"`
	Time              string  `json:"time" validate:"required,datetime=15:04"`
	DurationMinutes   int     `json:"duration_minutes" validate:"omitempty,min=1,max=1440"`
	Reason            string  `json:"reason" validate:"required"`
	ServiceType       *string `json:"service_type,omitempty"`
	ReminderMinutes   *int    `json:"reminder_minutes,omitempty" validate:"omitempty,min=0"`
	OverrideConflicts bool    `json:"override_conflicts"`
}

type RescheduleRequest struct {
	OwnerID           string `json:"owner_id" validate:"required,uuid"`
	Date              string `json:"date" validate:"required,datetime=2006-01-02"`
	Time              string `json:"time" validate:"required,datetime=15:04"`
	DurationMinutes   *int   `json:"duration_minutes,omitempty" validate:"omitempty,min=1,max=1440"`
	OverrideConflicts bool   `json:"override_conflicts"`
}

type TransitionRequest struct {
	OwnerID string `json:"owner_id" validate:"required,uuid"`
	Reason  string `json:"reason"`
}

type CreateRecurrencesRequest struct {
	OwnerID  string  `json:"owner_id" validate:"required,uuid"`
	Pattern  string  `json:"pattern" validate:"required,oneof=none daily weekly monthly custom"`
	Interval int     `json:"interval" validate:"required,min=1"`
	EndDate  *string `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Count    *int    `json:"count,omitempty" validate:"omitempty,min=1"`
}

type SeriesPatch struct {
	Date            *string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Time            *string `json:"time,omitempty" validate:"omitempty,datetime=15:04"`
	DurationMinutes *int    `json:"duration_minutes,omitempty" validate:"omitempty,min=1,max=1440"`
	Reason          *string `json:"reason,omitempty"`
	ServiceType     *string `json:"service_type,omitempty"`
	Notes           *string `json:"notes,omitempty"`
	ReminderMinutes *int    `json:"reminder_minutes,omitempty" validate:"omitempty,min=0"`
	Status          *string `json:"status,omitempty" validate:"omitempty,oneof=scheduled confirmed cancelled completed no_show rescheduled"`
}

type UpdateSeriesRequest struct {
	OwnerID           string      `json:"owner_id" validate:"required,uuid"`
	TargetID          *string     `json:"target_appointment_id,omitempty" validate:"omitempty,uuid"`
	Scope             string      `json:"scope" validate:"required,oneof=this_only this_and_future all"`
	Changes           SeriesPatch `json:"changes"`
	OverrideConflicts bool        `json:"override_conflicts"`
}

type ConvertWaitlistRequest struct {
	OwnerID         string `json:"owner_id" validate:"required,uuid"`
	Date            string `json:"date" validate:"required,datetime=2006-01-02"`
	Time            string `json:"time" validate:"required,datetime=15:04"`
	DurationMinutes *int   `json:"duration_minutes,omitempty" validate:"omitempty,min=1,max=1440"`
}

type AppointmentResponse struct {
	ID              uuid.UUID  `json:"id"`
	OwnerID         uuid.UUID  `json:"owner_id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	Date            string     `json:"date"`
	Time            string     `json:"time"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          string     `json:"status"`
	Reason          string     `json:"reason"`
	ServiceType     *string    `json:"service_type,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	ParentID        *uuid.UUID `json:"parent_appointment_id,omitempty"`
}

func toAppointmentResponse(a scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		OwnerID:         a.OwnerID,
		PatientID:       a.PatientID,
		Date:            scheduling.FormatDate(a.Date),
		Time:            scheduling.FormatClock(a.StartMinute),
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		Reason:          a.Reason,
		ServiceType:     a.ServiceType,
		Notes:           a.Notes,
		ParentID:        a.ParentAppointmentID,
	}
}

type PatientResponse struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Phone            *string   `json:"phone,omitempty"`
	Email            *string   `json:"email,omitempty"`
	PreferredContact *string   `json:"preferred_contact,omitempty"`
}

type AppointmentDetailResponse struct {
	AppointmentResponse
	Patient *PatientResponse `json:"patient,omitempty"`
}

type SlotResponse struct {
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration"`
	Available       bool   `json:"available"`
}

func toSlotResponses(slots []scheduling.AvailableSlot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, SlotResponse{
			Time:            scheduling.FormatClock(s.StartMinute),
			DurationMinutes: s.DurationMinutes,
			Available:       true,
		})
	}
	return out
}

type ConflictCheckResponse struct {
	HasConflict             bool                  `json:"has_conflict"`
	ConflictingAppointments []AppointmentResponse `json:"conflicting_appointments"`
}

type RecurrencesResponse struct {
	CreatedCount int         `json:"created_count"`
	CreatedIDs   []uuid.UUID `json:"created_ids"`
	SkippedDates []string    `json:"skipped_dates"`
}

type UpdateSeriesResponse struct {
	AffectedIDs []uuid.UUID `json:"affected_ids"`
}

type WaitlistEntryResponse struct {
	ID            uuid.UUID  `json:"id"`
	OwnerID       uuid.UUID  `json:"owner_id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	PreferredDate *string    `json:"preferred_date,omitempty"`
	PreferredTime *string    `json:"preferred_time,omitempty"`
	ServiceType   *string    `json:"service_type,omitempty"`
	Reason        string     `json:"reason"`
	Priority      int        `json:"priority"`
	Status        string     `json:"status"`
	NotifiedAt    *time.Time `json:"notified_at,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

func toWaitlistEntryResponse(e scheduling.WaitlistEntry) WaitlistEntryResponse {
	resp := WaitlistEntryResponse{
		ID:          e.ID,
		OwnerID:     e.OwnerID,
		PatientID:   e.PatientID,
		ServiceType: e.ServiceType,
		Reason:      e.Reason,
		Priority:    e.Priority,
		Status:      string(e.Status),
		NotifiedAt:  e.NotifiedAt,
		ExpiresAt:   e.ExpiresAt,
	}
	if e.PreferredDate != nil {
		d := scheduling.FormatDate(*e.PreferredDate)
		resp.PreferredDate = &d
	}
	if e.PreferredMinute != nil {
		t := scheduling.FormatClock(*e.PreferredMinute)
		resp.PreferredTime = &t
	}
	return resp
}

type ConflictErrorResponse struct {
	Error                   string                `json:"error"`
	Details                 string                `json:"details"`
	ConflictingAppointments []AppointmentResponse `json:"conflicting_appointments"`
	SuggestedSlots          []SlotResponse        `json:"suggested_slots,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
