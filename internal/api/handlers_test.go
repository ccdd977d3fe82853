package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careloop/clinic-scheduler/internal/scheduling"
)

// stubService lets each test pin the behavior of the one method its route
// exercises.
type stubService struct {
	checkConflicts  func(q scheduling.ConflictQuery) (*scheduling.ConflictResult, error)
	findSlots       func(ownerID uuid.UUID, date time.Time, duration int) ([]scheduling.AvailableSlot, error)
	book            func(req scheduling.BookingRequest) (*scheduling.Appointment, error)
	getDetail       func(ownerID, id uuid.UUID) (*scheduling.AppointmentDetail, error)
	createRecurring func(req scheduling.RecurrenceRequest) (*scheduling.ExpansionResult, error)
	updateSeries    func(req scheduling.SeriesUpdateRequest) ([]uuid.UUID, error)
	confirm         func(ownerID, id uuid.UUID) (*scheduling.Appointment, error)
	cancel          func(ownerID, id uuid.UUID, reason string) (*scheduling.Appointment, error)
	complete        func(ownerID, id uuid.UUID, notes string) (*scheduling.Appointment, error)
	noShow          func(ownerID, id uuid.UUID, notes string) (*scheduling.Appointment, error)
	reschedule      func(req scheduling.RescheduleRequest) (*scheduling.Appointment, error)
	notifyWaitlist  func(ownerID, entryID uuid.UUID) (*scheduling.WaitlistEntry, error)
	convertWaitlist func(req scheduling.ConvertRequest) (*scheduling.Appointment, error)
}

func (s *stubService) CheckConflicts(_ context.Context, q scheduling.ConflictQuery) (*scheduling.ConflictResult, error) {
	return s.checkConflicts(q)
}

func (s *stubService) FindAvailableSlots(_ context.Context, ownerID uuid.UUID, date time.Time, duration int) ([]scheduling.AvailableSlot, error) {
	return s.findSlots(ownerID, date, duration)
}

func (s *stubService) BookAppointment(_ context.Context, req scheduling.BookingRequest) (*scheduling.Appointment, error) {
	return s.book(req)
}

func (s *stubService) GetAppointmentDetail(_ context.Context, ownerID, id uuid.UUID) (*scheduling.AppointmentDetail, error) {
	return s.getDetail(ownerID, id)
}

func (s *stubService) CreateRecurringAppointments(_ context.Context, req scheduling.RecurrenceRequest) (*scheduling.ExpansionResult, error) {
	return s.createRecurring(req)
}

func (s *stubService) UpdateSeries(_ context.Context, req scheduling.SeriesUpdateRequest) ([]uuid.UUID, error) {
	return s.updateSeries(req)
}

func (s *stubService) ConfirmAppointment(_ context.Context, ownerID, id uuid.UUID) (*scheduling.Appointment, error) {
	return s.confirm(ownerID, id)
}

func (s *stubService) CancelAppointment(_ context.Context, ownerID, id uuid.UUID, reason string) (*scheduling.Appointment, error) {
	return s.cancel(ownerID, id, reason)
}

func (s *stubService) CompleteAppointment(_ context.Context, ownerID, id uuid.UUID, notes string) (*scheduling.Appointment, error) {
	return s.complete(ownerID, id, notes)
}

func (s *stubService) MarkNoShow(_ context.Context, ownerID, id uuid.UUID, notes string) (*scheduling.Appointment, error) {
	return s.noShow(ownerID, id, notes)
}

func (s *stubService) RescheduleAppointment(_ context.Context, req scheduling.RescheduleRequest) (*scheduling.Appointment, error) {
	return s.reschedule(req)
}

func (s *stubService) NotifyWaitlistEntry(_ context.Context, ownerID, entryID uuid.UUID) (*scheduling.WaitlistEntry, error) {
	return s.notifyWaitlist(ownerID, entryID)
}

func (s *stubService) ConvertWaitlistEntry(_ context.Context, req scheduling.ConvertRequest) (*scheduling.Appointment, error) {
	return s.convertWaitlist(req)
}

func newTestRouter(svc SchedulerService) http.Handler {
	return NewRouter(RouterConfig{
		Service: svc,
		Env:     "test",
		Version: "test",
		Logger:  zerolog.Nop(),
	})
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func sampleAppointment(ownerID uuid.UUID) scheduling.Appointment {
	date, _ := scheduling.ParseDate("2024-03-04")
	return scheduling.Appointment{
		ID:              uuid.New(),
		OwnerID:         ownerID,
		PatientID:       uuid.New(),
		Date:            date,
		StartMinute:     600,
		DurationMinutes: 30,
		Status:          scheduling.StatusScheduled,
		Reason:          "checkup",
	}
}

func TestBookAppointmentCreated(t *testing.T) {
	ownerID := uuid.New()
	appt := sampleAppointment(ownerID)
	svc := &stubService{
		book: func(req scheduling.BookingRequest) (*scheduling.Appointment, error) {
			if req.OwnerID != ownerID {
				t.Errorf("owner_id not forwarded, got %s", req.OwnerID)
			}
			if req.StartMinute != 600 {
				t.Errorf("time not parsed to minutes, got %d", req.StartMinute)
			}
			return &appt, nil
		},
	}

	body := `{"owner_id":"` + ownerID.String() + `","patient_id":"` + appt.PatientID.String() + `","date":"2024-03-04","time":"10:00","duration_minutes":30,"reason":"checkup"}`
	rec := doJSON(t, newTestRouter(svc), http.MethodPost, "/appointments", body)

	if rec.Code != http.StatusCreated {
		t.Fatalf("got status %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var resp AppointmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Date != "2024-03-04" || resp.Time != "10:00" {
		t.Errorf("response date/time = %s %s", resp.Date, resp.Time)
	}
}

func TestBookAppointmentRejectsUnknownFields(t *testing.T) {
	svc := &stubService{
		book: func(scheduling.BookingRequest) (*scheduling.Appointment, error) {
			t.Fatal("service must not be called for a malformed body")
			return nil, nil
		},
	}

	body := `{"owner_id":"` + uuid.NewString() + `","patient_id":"` + uuid.NewString() + `","date":"2024-03-04","time":"10:00","reason":"x","bogus":true}`
	rec := doJSON(t, newTestRouter(svc), http.MethodPost, "/appointments", body)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", rec.Code)
	}
}

func TestBookAppointmentValidatesBody(t *testing.T) {
	svc := &stubService{
		book: func(scheduling.BookingRequest) (*scheduling.Appointment, error) {
			t.Fatal("service must not be called for an invalid body")
			return nil, nil
		},
	}

	// Missing reason, malformed time.
	body := `{"owner_id":"` + uuid.NewString() + `","patient_id":"` + uuid.NewString() + `","date":"2024-03-04","time":"10am"}`
	rec := doJSON(t, newTestRouter(svc), http.MethodPost, "/appointments", body)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", rec.Code)
	}
}

func TestBookAppointmentConflictPayload(t *testing.T) {
	ownerID := uuid.New()
	conflicting := sampleAppointment(ownerID)
	svc := &stubService{
		book: func(scheduling.BookingRequest) (*scheduling.Appointment, error) {
			return nil, &scheduling.ConflictError{
				Conflicts: []scheduling.Appointment{conflicting},
				Suggestions: []scheduling.AvailableSlot{
					{StartMinute: 660, DurationMinutes: 30},
					{StartMinute: 690, DurationMinutes: 30},
				},
			}
		},
	}

	body := `{"owner_id":"` + ownerID.String() + `","patient_id":"` + uuid.NewString() + `","date":"2024-03-04","time":"10:00","reason":"checkup"}`
	rec := doJSON(t, newTestRouter(svc), http.MethodPost, "/appointments", body)

	if rec.Code != http.StatusConflict {
		t.Fatalf("got status %d, want 409: %s", rec.Code, rec.Body.String())
	}
	var resp ConflictErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error != "time_conflict" {
		t.Errorf("error code = %s", resp.Error)
	}
	if len(resp.ConflictingAppointments) != 1 || resp.ConflictingAppointments[0].ID != conflicting.ID {
		t.Error("conflicting appointments missing from payload")
	}
	if len(resp.SuggestedSlots) != 2 || resp.SuggestedSlots[0].Time != "11:00" {
		t.Errorf("suggested slots malformed: %+v", resp.SuggestedSlots)
	}
}

func TestBookAppointmentScheduleBusy(t *testing.T) {
	svc := &stubService{
		book: func(scheduling.BookingRequest) (*scheduling.Appointment, error) {
			return nil, scheduling.ErrScheduleBusy
		},
	}

	body := `{"owner_id":"` + uuid.NewString() + `","patient_id":"` + uuid.NewString() + `","date":"2024-03-04","time":"10:00","reason":"checkup"}`
	rec := doJSON(t, newTestRouter(svc), http.MethodPost, "/appointments", body)

	if rec.Code != http.StatusConflict {
		t.Fatalf("got status %d, want 409", rec.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error != "schedule_busy" {
		t.Errorf("error code = %s, want schedule_busy", resp.Error)
	}
}

func TestCheckConflictsQueryParams(t *testing.T) {
	ownerID := uuid.New()
	excludeID := uuid.New()
	svc := &stubService{
		checkConflicts: func(q scheduling.ConflictQuery) (*scheduling.ConflictResult, error) {
			if q.OwnerID != ownerID {
				t.Errorf("owner_id not forwarded")
			}
			if q.StartMinute != 615 || q.DurationMinutes != 45 {
				t.Errorf("interval not parsed: %d/%d", q.StartMinute, q.DurationMinutes)
			}
			if q.ExcludeAppointmentID == nil || *q.ExcludeAppointmentID != excludeID {
				t.Error("exclude_appointment_id not forwarded")
			}
			return &scheduling.ConflictResult{}, nil
		},
	}

	path := "/appointments/conflicts?owner_id=" + ownerID.String() +
		"&date=2024-03-04&time=10:15&duration_minutes=45&exclude_appointment_id=" + excludeID.String()
	rec := doJSON(t, newTestRouter(svc), http.MethodGet, path, "")

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp ConflictCheckResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.HasConflict {
		t.Error("expected no conflict")
	}
	if resp.ConflictingAppointments == nil {
		t.Error("conflicting_appointments must serialize as an empty array, not null")
	}
}

func TestCheckConflictsMalformedDurationFallsBack(t *testing.T) {
	svc := &stubService{
		checkConflicts: func(q scheduling.ConflictQuery) (*scheduling.ConflictResult, error) {
			if q.DurationMinutes != 30 {
				t.Errorf("malformed duration must fall back to the default 30, got %d", q.DurationMinutes)
			}
			return &scheduling.ConflictResult{}, nil
		},
	}

	path := "/appointments/conflicts?owner_id=" + uuid.NewString() +
		"&date=2024-03-04&time=10:00&duration_minutes=banana"
	rec := doJSON(t, newTestRouter(svc), http.MethodGet, path, "")

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestGetAppointmentNotFound(t *testing.T) {
	svc := &stubService{
		getDetail: func(uuid.UUID, uuid.UUID) (*scheduling.AppointmentDetail, error) {
			return nil, scheduling.ErrAppointmentNotFound
		},
	}

	path := "/appointments/" + uuid.NewString() + "?owner_id=" + uuid.NewString()
	rec := doJSON(t, newTestRouter(svc), http.MethodGet, path, "")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", rec.Code)
	}
}

func TestGetAppointmentBadID(t *testing.T) {
	svc := &stubService{
		getDetail: func(uuid.UUID, uuid.UUID) (*scheduling.AppointmentDetail, error) {
			t.Fatal("service must not be called for a bad path id")
			return nil, nil
		},
	}

	rec := doJSON(t, newTestRouter(svc), http.MethodGet, "/appointments/not-a-uuid?owner_id="+uuid.NewString(), "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", rec.Code)
	}
}

func TestCancelInvalidTransition(t *testing.T) {
	svc := &stubService{
		cancel: func(uuid.UUID, uuid.UUID, string) (*scheduling.Appointment, error) {
			return nil, &scheduling.InvalidTransitionError{
				From: scheduling.StatusCompleted,
				To:   scheduling.StatusCancelled,
			}
		},
	}

	body := `{"owner_id":"` + uuid.NewString() + `","reason":"too late"}`
	rec := doJSON(t, newTestRouter(svc), http.MethodPost, "/appointments/"+uuid.NewString()+"/cancel", body)

	if rec.Code != http.StatusConflict {
		t.Fatalf("got status %d, want 409", rec.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error != "invalid_transition" {
		t.Errorf("error code = %s, want invalid_transition", resp.Error)
	}
}

func TestCreateRecurrencesPartialSuccess(t *testing.T) {
	ownerID := uuid.New()
	parentID := uuid.New()
	createdID := uuid.New()
	skipped, _ := scheduling.ParseDate("2024-03-18")

	svc := &stubService{
		createRecurring: func(req scheduling.RecurrenceRequest) (*scheduling.ExpansionResult, error) {
			if req.ParentAppointmentID != parentID {
				t.Error("parent id not taken from the path")
			}
			if req.Pattern != scheduling.PatternWeekly || req.Interval != 1 {
				t.Errorf("pattern/interval not forwarded: %s/%d", req.Pattern, req.Interval)
			}
			if req.Count == nil || *req.Count != 4 {
				t.Error("count not forwarded")
			}
			return &scheduling.ExpansionResult{
				CreatedCount: 1,
				CreatedIDs:   []uuid.UUID{createdID},
				SkippedDates: []time.Time{skipped},
			}, nil
		},
	}

	body := `{"owner_id":"` + ownerID.String() + `","pattern":"weekly","interval":1,"count":4}`
	rec := doJSON(t, newTestRouter(svc), http.MethodPost, "/appointments/"+parentID.String()+"/recurrences", body)

	if rec.Code != http.StatusCreated {
		t.Fatalf("got status %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var resp RecurrencesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.CreatedCount != 1 || len(resp.SkippedDates) != 1 || resp.SkippedDates[0] != "2024-03-18" {
		t.Errorf("partial result malformed: %+v", resp)
	}
}

func TestUpdateSeriesValidationError(t *testing.T) {
	svc := &stubService{
		updateSeries: func(scheduling.SeriesUpdateRequest) ([]uuid.UUID, error) {
			return nil, &scheduling.ValidationError{Field: "changes", Reason: "no fields to update"}
		},
	}

	body := `{"owner_id":"` + uuid.NewString() + `","scope":"all","changes":{}}`
	rec := doJSON(t, newTestRouter(svc), http.MethodPatch, "/appointments/series/"+uuid.NewString(), body)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("got status %d, want 422: %s", rec.Code, rec.Body.String())
	}
}

func TestUpdateSeriesForwardsPatch(t *testing.T) {
	ownerID := uuid.New()
	targetID := uuid.New()
	svc := &stubService{
		updateSeries: func(req scheduling.SeriesUpdateRequest) ([]uuid.UUID, error) {
			if req.Scope != scheduling.ScopeThisAndFuture {
				t.Errorf("scope = %s", req.Scope)
			}
			if req.TargetAppointmentID == nil || *req.TargetAppointmentID != targetID {
				t.Error("target id not forwarded")
			}
			if req.Patch.StartMinute == nil || *req.Patch.StartMinute != 630 {
				t.Error("time patch not parsed to minutes")
			}
			return []uuid.UUID{targetID}, nil
		},
	}

	body := `{"owner_id":"` + ownerID.String() + `","target_appointment_id":"` + targetID.String() + `","scope":"this_and_future","changes":{"time":"10:30"}}`
	rec := doJSON(t, newTestRouter(svc), http.MethodPatch, "/appointments/series/"+uuid.NewString(), body)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestAvailableSlotsEmptyIsArray(t *testing.T) {
	svc := &stubService{
		findSlots: func(uuid.UUID, time.Time, int) ([]scheduling.AvailableSlot, error) {
			return nil, nil
		},
	}

	rec := doJSON(t, newTestRouter(svc), http.MethodGet, "/availability/slots?owner_id="+uuid.NewString()+"&date=2024-03-04", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("empty slot list must serialize as [], got %s", body)
	}
}

func TestConvertWaitlistCreated(t *testing.T) {
	ownerID := uuid.New()
	entryID := uuid.New()
	appt := sampleAppointment(ownerID)
	svc := &stubService{
		convertWaitlist: func(req scheduling.ConvertRequest) (*scheduling.Appointment, error) {
			if req.EntryID != entryID {
				t.Error("entry id not taken from the path")
			}
			return &appt, nil
		},
	}

	body := `{"owner_id":"` + ownerID.String() + `","date":"2024-03-04","time":"10:00"}`
	rec := doJSON(t, newTestRouter(svc), http.MethodPost, "/waitlist/"+entryID.String()+"/convert", body)

	if rec.Code != http.StatusCreated {
		t.Fatalf("got status %d, want 201: %s", rec.Code, rec.Body.String())
	}
}

func TestNotifyWaitlistValidationError(t *testing.T) {
	svc := &stubService{
		notifyWaitlist: func(uuid.UUID, uuid.UUID) (*scheduling.WaitlistEntry, error) {
			return nil, &scheduling.ValidationError{Field: "status", Reason: "entry is converted, only active entries can be notified"}
		},
	}

	body := `{"owner_id":"` + uuid.NewString() + `"}`
	rec := doJSON(t, newTestRouter(svc), http.MethodPost, "/waitlist/"+uuid.NewString()+"/notify", body)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("got status %d, want 422", rec.Code)
	}
}
