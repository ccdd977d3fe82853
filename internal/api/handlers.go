package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	redisclient "github.com/careloop/clinic-scheduler/internal/redis"
	"github.com/careloop/clinic-scheduler/internal/scheduling"
)

// SchedulerService is the slice of the scheduling service the handlers need.
type SchedulerService interface {
	CheckConflicts(ctx context.Context, q scheduling.ConflictQuery) (*scheduling.ConflictResult, error)
	FindAvailableSlots(ctx context.Context, ownerID uuid.UUID, date time.Time, durationMinutes int) ([]scheduling.AvailableSlot, error)
	BookAppointment(ctx context.Context, req scheduling.BookingRequest) (*scheduling.Appointment, error)
	GetAppointmentDetail(ctx context.Context, ownerID, id uuid.UUID) (*scheduling.AppointmentDetail, error)
	CreateRecurringAppointments(ctx context.Context, req scheduling.RecurrenceRequest) (*scheduling.ExpansionResult, error)
	UpdateSeries(ctx context.Context, req scheduling.SeriesUpdateRequest) ([]uuid.UUID, error)
	ConfirmAppointment(ctx context.Context, ownerID, id uuid.UUID) (*scheduling.Appointment, error)
	CancelAppointment(ctx context.Context, ownerID, id uuid.UUID, reason string) (*scheduling.Appointment, error)
	CompleteAppointment(ctx context.Context, ownerID, id uuid.UUID, notes string) (*scheduling.Appointment, error)
	MarkNoShow(ctx context.Context, ownerID, id uuid.UUID, notes string) (*scheduling.Appointment, error)
	RescheduleAppointment(ctx context.Context, req scheduling.RescheduleRequest) (*scheduling.Appointment, error)
	NotifyWaitlistEntry(ctx context.Context, ownerID, entryID uuid.UUID) (*scheduling.WaitlistEntry, error)
	ConvertWaitlistEntry(ctx context.Context, req scheduling.ConvertRequest) (*scheduling.Appointment, error)
}

type handlers struct {
	svc      SchedulerService
	validate *validator.Validate
}

func newHandlers(svc SchedulerService) *handlers {
	return &handlers{
		svc:      svc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	return true
}

func (h *handlers) bookAppointment(w http.ResponseWriter, r *http.Request) {
	var req BookAppointmentRequest
	if !h.decode(w, r, &req) {
		return
	}

	ownerID, _ := uuid.Parse(req.OwnerID)
	patientID, _ := uuid.Parse(req.PatientID)
	date, err := scheduling.ParseDate(req.Date)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	minute, err := scheduling.ParseClock(req.Time)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	appt, err := h.svc.BookAppointment(r.Context(), scheduling.BookingRequest{
		OwnerID:               ownerID,
		PatientID:             patientID,
		Date:                  date,
		StartMinute:           minute,
		DurationMinutes:       req.DurationMinutes,
		Reason:                req.Reason,
		ServiceType:           req.ServiceType,
		ReminderMinutes:       req.ReminderMinutes,
		OverrideConflictCheck: req.OverrideConflicts,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
}

func (h *handlers) checkConflicts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	ownerID, err := uuid.Parse(q.Get("owner_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_owner_id", "owner_id must be a valid UUID")
		return
	}
	date, err := scheduling.ParseDate(q.Get("date"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	minute, err := scheduling.ParseClock(q.Get("time"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	duration := parseIntDefault(q.Get("duration_minutes"), 30)

	query := scheduling.ConflictQuery{
		OwnerID:         ownerID,
		Date:            date,
		StartMinute:     minute,
		DurationMinutes: duration,
	}
	if raw := q.Get("exclude_appointment_id"); raw != "" {
		excludeID, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_exclude_appointment_id", "exclude_appointment_id must be a valid UUID")
			return
		}
		query.ExcludeAppointmentID = &excludeID
	}

	res, err := h.svc.CheckConflicts(r.Context(), query)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := ConflictCheckResponse{
		HasConflict:             res.HasConflict,
		ConflictingAppointments: make([]AppointmentResponse, 0, len(res.Conflicting)),
	}
	for _, a := range res.Conflicting {
		resp.ConflictingAppointments = append(resp.ConflictingAppointments, toAppointmentResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) availableSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	ownerID, err := uuid.Parse(q.Get("owner_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_owner_id", "owner_id must be a valid UUID")
		return
	}
	date, err := scheduling.ParseDate(q.Get("date"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	duration := parseIntDefault(q.Get("duration_minutes"), 30)

	slots, err := h.svc.FindAvailableSlots(r.Context(), ownerID, date, duration)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSlotResponses(slots))
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ownerID, err := uuid.Parse(r.URL.Query().Get("owner_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_owner_id", "owner_id must be a valid UUID")
		return
	}

	detail, err := h.svc.GetAppointmentDetail(r.Context(), ownerID, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := AppointmentDetailResponse{AppointmentResponse: toAppointmentResponse(detail.Appointment)}
	if detail.Patient != nil {
		resp.Patient = &PatientResponse{
			ID:               detail.Patient.ID,
			Name:             detail.Patient.Name,
			Phone:            detail.Patient.Phone,
			Email:            detail.Patient.Email,
			PreferredContact: detail.Patient.PreferredContact,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) createRecurrences(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req CreateRecurrencesRequest
	if !h.decode(w, r, &req) {
		return
	}

	ownerID, _ := uuid.Parse(req.OwnerID)
	srvReq := scheduling.RecurrenceRequest{
		ParentAppointmentID: id,
		OwnerID:             ownerID,
		Pattern:             scheduling.RecurrencePattern(req.Pattern),
		Interval:            req.Interval,
		Count:               req.Count,
	}
	if req.EndDate != nil {
		endDate, err := scheduling.ParseDate(*req.EndDate)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		srvReq.EndDate = &endDate
	}

	result, err := h.svc.CreateRecurringAppointments(r.Context(), srvReq)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := RecurrencesResponse{
		CreatedCount: result.CreatedCount,
		CreatedIDs:   result.CreatedIDs,
		SkippedDates: make([]string, 0, len(result.SkippedDates)),
	}
	for _, d := range result.SkippedDates {
		resp.SkippedDates = append(resp.SkippedDates, scheduling.FormatDate(d))
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *handlers) updateSeries(w http.ResponseWriter, r *http.Request) {
	parentID, ok := pathID(w, r, "parentID")
	if !ok {
		return
	}

	var req UpdateSeriesRequest
	if !h.decode(w, r, &req) {
		return
	}

	ownerID, _ := uuid.Parse(req.OwnerID)
	srvReq := scheduling.SeriesUpdateRequest{
		ParentAppointmentID:   parentID,
		OwnerID:               ownerID,
		Scope:                 scheduling.SeriesScope(req.Scope),
		OverrideConflictCheck: req.OverrideConflicts,
	}
	if req.TargetID != nil {
		targetID, _ := uuid.Parse(*req.TargetID)
		srvReq.TargetAppointmentID = &targetID
	}

	patch, err := toPatch(req.Changes)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	srvReq.Patch = patch

	affected, err := h.svc.UpdateSeries(r.Context(), srvReq)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, UpdateSeriesResponse{AffectedIDs: affected})
}

func toPatch(p SeriesPatch) (scheduling.AppointmentPatch, error) {
	var patch scheduling.AppointmentPatch
	if p.Date != nil {
		d, err := scheduling.ParseDate(*p.Date)
		if err != nil {
			return patch, err
		}
		patch.Date = &d
	}
	if p.Time != nil {
		m, err := scheduling.ParseClock(*p.Time)
		if err != nil {
			return patch, err
		}
		patch.StartMinute = &m
	}
	patch.DurationMinutes = p.DurationMinutes
	patch.Reason = p.Reason
	patch.ServiceType = p.ServiceType
	patch.Notes = p.Notes
	patch.ReminderMinutes = p.ReminderMinutes
	if p.Status != nil {
		st := scheduling.AppointmentStatus(*p.Status)
		patch.Status = &st
	}
	return patch, nil
}

func (h *handlers) transitionHandler(fn func(ctx context.Context, ownerID, id uuid.UUID, text string) (*scheduling.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		var req TransitionRequest
		if !h.decode(w, r, &req) {
			return
		}
		ownerID, _ := uuid.Parse(req.OwnerID)

		appt, err := fn(r.Context(), ownerID, id, req.Reason)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func (h *handlers) confirmAppointment(w http.ResponseWriter, r *http.Request) {
	h.transitionHandler(func(ctx context.Context, ownerID, id uuid.UUID, _ string) (*scheduling.Appointment, error) {
		return h.svc.ConfirmAppointment(ctx, ownerID, id)
	})(w, r)
}

func (h *handlers) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	h.transitionHandler(h.svc.CancelAppointment)(w, r)
}

func (h *handlers) completeAppointment(w http.ResponseWriter, r *http.Request) {
	h.transitionHandler(h.svc.CompleteAppointment)(w, r)
}

func (h *handlers) markNoShow(w http.ResponseWriter, r *http.Request) {
	h.transitionHandler(h.svc.MarkNoShow)(w, r)
}

func (h *handlers) rescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req RescheduleRequest
	if !h.decode(w, r, &req) {
		return
	}

	ownerID, _ := uuid.Parse(req.OwnerID)
	date, err := scheduling.ParseDate(req.Date)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	minute, err := scheduling.ParseClock(req.Time)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	appt, err := h.svc.RescheduleAppointment(r.Context(), scheduling.RescheduleRequest{
		ID:                    id,
		OwnerID:               ownerID,
		NewDate:               date,
		NewStartMinute:        minute,
		NewDurationMinutes:    req.DurationMinutes,
		OverrideConflictCheck: req.OverrideConflicts,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
}

func (h *handlers) notifyWaitlistEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req TransitionRequest
	if !h.decode(w, r, &req) {
		return
	}
	ownerID, _ := uuid.Parse(req.OwnerID)

	entry, err := h.svc.NotifyWaitlistEntry(r.Context(), ownerID, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWaitlistEntryResponse(*entry))
}

func (h *handlers) convertWaitlistEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req ConvertWaitlistRequest
	if !h.decode(w, r, &req) {
		return
	}

	ownerID, _ := uuid.Parse(req.OwnerID)
	date, err := scheduling.ParseDate(req.Date)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	minute, err := scheduling.ParseClock(req.Time)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	appt, err := h.svc.ConvertWaitlistEntry(r.Context(), scheduling.ConvertRequest{
		EntryID:         id,
		OwnerID:         ownerID,
		Date:            date,
		StartMinute:     minute,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
}

// Helpers

func pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", param+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseIntDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func handleServiceError(w http.ResponseWriter, err error) {
	var vErr *scheduling.ValidationError
	var cErr *scheduling.ConflictError
	var tErr *scheduling.InvalidTransitionError

	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", vErr.Error())
	case errors.As(err, &cErr):
		resp := ConflictErrorResponse{
			Error:                   "time_conflict",
			Details:                 cErr.Error(),
			ConflictingAppointments: make([]AppointmentResponse, 0, len(cErr.Conflicts)),
			SuggestedSlots:          toSlotResponses(cErr.Suggestions),
		}
		for _, a := range cErr.Conflicts {
			resp.ConflictingAppointments = append(resp.ConflictingAppointments, toAppointmentResponse(a))
		}
		writeJSON(w, http.StatusConflict, resp)
	case errors.As(err, &tErr):
		writeError(w, http.StatusConflict, "invalid_transition", tErr.Error())
	case errors.Is(err, scheduling.ErrAppointmentNotFound),
		errors.Is(err, scheduling.ErrPatientNotFound),
		errors.Is(err, scheduling.ErrWaitlistEntryNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, scheduling.ErrScheduleBusy),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "schedule_busy", "the schedule is being modified, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
