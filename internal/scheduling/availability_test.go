package scheduling

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestFindAvailableSlotsNeverConflicts(t *testing.T) {
	svc, repo, ownerID := conflictFixture(t, 15, 1)
	day := mustDate("2024-03-04")
	repo.addAppointment(ownerID, day, "10:00", 30, StatusScheduled)
	repo.addAppointment(ownerID, day, "14:00", 60, StatusScheduled)

	slots, err := svc.FindAvailableSlots(context.Background(), ownerID, day, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) == 0 {
		t.Fatal("expected open slots on a lightly booked day")
	}

	for _, s := range slots {
		res, err := svc.CheckConflicts(context.Background(), ConflictQuery{
			OwnerID:         ownerID,
			Date:            day,
			StartMinute:     s.StartMinute,
			DurationMinutes: s.DurationMinutes,
		})
		if err != nil {
			t.Fatal(err)
		}
		if res.HasConflict {
			t.Errorf("suggested slot %s would conflict", FormatClock(s.StartMinute))
		}
	}
}

func TestFindAvailableSlotsAscendingAndIdempotent(t *testing.T) {
	svc, repo, ownerID := conflictFixture(t, 15, 1)
	day := mustDate("2024-03-04")
	repo.addAppointment(ownerID, day, "11:00", 30, StatusScheduled)

	first, err := svc.FindAvailableSlots(context.Background(), ownerID, day, 30)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(first); i++ {
		if first[i-1].StartMinute >= first[i].StartMinute {
			t.Fatalf("slots not strictly ascending at index %d", i)
		}
	}

	second, err := svc.FindAvailableSlots(context.Background(), ownerID, day, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != len(second) {
		t.Fatalf("idempotence violated: %d vs %d slots", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("idempotence violated at index %d: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestFindAvailableSlotsRespectsWindowEnd(t *testing.T) {
	svc, _, ownerID := conflictFixture(t, 0, 1)
	day := mustDate("2024-03-04")

	slots, err := svc.FindAvailableSlots(context.Background(), ownerID, day, 90)
	if err != nil {
		t.Fatal(err)
	}
	end := mustClock("17:00")
	for _, s := range slots {
		if s.StartMinute+s.DurationMinutes > end {
			t.Errorf("slot %s+90m runs past the window end", FormatClock(s.StartMinute))
		}
	}
}

func TestFindAvailableSlotsNoPolicyMeansEmpty(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ownerID := uuid.New()

	// Sunday: no policy rows at all.
	slots, err := svc.FindAvailableSlots(context.Background(), ownerID, mustDate("2024-03-03"), 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots without a policy, got %d", len(slots))
	}
}

func TestFindAvailableSlotsUnavailableWindow(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ownerID := uuid.New()
	p := weekdayPolicy(ownerID, 1, 15, 1)
	p.IsAvailable = false
	repo.policies = append(repo.policies, p)

	slots, err := svc.FindAvailableSlots(context.Background(), ownerID, mustDate("2024-03-04"), 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 0 {
		t.Fatalf("unavailable window must produce no slots, got %d", len(slots))
	}
}

func TestFindAvailableSlotsFullDay(t *testing.T) {
	svc, repo, ownerID := conflictFixture(t, 0, 1)
	day := mustDate("2024-03-04")
	// Fill 09:00-17:00 completely with back-to-back hours.
	for h := 9; h < 17; h++ {
		repo.addAppointment(ownerID, day, FormatClock(h*60), 60, StatusScheduled)
	}

	slots, err := svc.FindAvailableSlots(context.Background(), ownerID, day, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 0 {
		t.Fatalf("fully booked day must have no slots, got %d", len(slots))
	}
}
