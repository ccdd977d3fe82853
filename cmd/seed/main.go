package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/careloop/clinic-scheduler/internal/db"
)

var log zerolog.Logger

func main() {
	log = zerolog.New(os.Stderr).With().Timestamp().Str("service", "seed").Logger()
	log.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	practiceIDs, err := seedPractices(context.Background(), pool, 20)
	if err != nil {
		log.Fatal().Err(err).Msg("seed practices")
	}
	if err := seedPolicies(context.Background(), pool, practiceIDs); err != nil {
		log.Fatal().Err(err).Msg("seed policies")
	}
	patientIDs, err := seedPatients(context.Background(), pool, practiceIDs, 50)
	if err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}
	if err := seedAppointments(context.Background(), pool, patientIDs); err != nil {
		log.Fatal().Err(err).Msg("seed appointments")
	}
	if err := seedWaitlist(context.Background(), pool, patientIDs); err != nil {
		log.Fatal().Err(err).Msg("seed waitlist")
	}

	log.Info().Msg("seed complete")
}

func seedPractices(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Info().Int("count", count).Msg("seeding practices")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Company() + " Clinic"

		_, err := tx.Exec(ctx, `
			INSERT INTO practices (id, name, created_at, updated_at)
			VALUES ($1, $2, now(), now())
		`, id, name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

// seedPolicies creates the onboarding defaults: Mon-Fri 09:00-17:00, 15
// minute buffer, one concurrent booking.
func seedPolicies(ctx context.Context, pool *pgxpool.Pool, practiceIDs []uuid.UUID) error {
	log.Info().Msg("seeding availability policies")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, ownerID := range practiceIDs {
		for dow := 1; dow <= 5; dow++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO availability_policies (id, owner_id, day_of_week, start_minute, end_minute, is_available, buffer_minutes, max_concurrent, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, true, 15, 1, now(), now())
			`, uuid.New(), ownerID, dow, 9*60, 17*60)
			if err != nil {
				return err
			}
		}
	}

	return tx.Commit(ctx)
}

type seededPatient struct {
	id      uuid.UUID
	ownerID uuid.UUID
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, practiceIDs []uuid.UUID, perPractice int) ([]seededPatient, error) {
	log.Info().Int("per_practice", perPractice).Msg("seeding patients")

	contacts := []string{"phone", "email", "sms"}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var patients []seededPatient
	for _, ownerID := range practiceIDs {
		for i := 0; i < perPractice; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			phone := gofakeit.Phone()
			email := gofakeit.Email()
			contact := contacts[gofakeit.Number(0, len(contacts)-1)]

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, owner_id, name, phone, email, preferred_contact, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, now(), now())
			`, id, ownerID, name, phone, email, contact)
			if err != nil {
				return nil, err
			}
			patients = append(patients, seededPatient{id: id, ownerID: ownerID})
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return patients, nil
}

func seedAppointments(ctx context.Context, pool *pgxpool.Pool, patients []seededPatient) error {
	log.Info().Msg("seeding appointments")

	reasons := []string{
		"Annual checkup",
		"Follow-up visit",
		"Vaccination",
		"Blood pressure review",
		"Prescription renewal",
		"Physiotherapy session",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Track (owner, date, slot) so seeded data never violates the default
	// one-booking-per-slot policy.
	taken := make(map[string]bool)

	for _, p := range patients {
		if gofakeit.Number(0, 2) != 0 {
			continue
		}

		// Next weekday within two weeks, on a 45-minute grid inside working
		// hours so the defaults (30 min + 15 min buffer) accept neighbors.
		date := time.Now().UTC().AddDate(0, 0, gofakeit.Number(1, 14))
		for date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
			date = date.AddDate(0, 0, 1)
		}
		startMinute := (9*60 + 45*gofakeit.Number(0, 9))
		reason := reasons[gofakeit.Number(0, len(reasons)-1)]

		key := fmt.Sprintf("%s|%s|%d", p.ownerID, date.Format("2006-01-02"), startMinute)
		if taken[key] {
			continue
		}
		taken[key] = true

		_, err := tx.Exec(ctx, `
			INSERT INTO appointments (id, owner_id, patient_id, date, start_minute, duration_minutes, status, reason, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, 30, 'scheduled', $6, now(), now())
		`, uuid.New(), p.ownerID, p.id, date, startMinute, reason)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func seedWaitlist(ctx context.Context, pool *pgxpool.Pool, patients []seededPatient) error {
	log.Info().Msg("seeding waitlist entries")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, p := range patients {
		if gofakeit.Number(0, 9) != 0 {
			continue
		}

		priority := gofakeit.Number(1, 5)
		reason := gofakeit.Sentence(5)

		_, err := tx.Exec(ctx, `
			INSERT INTO waitlist_entries (id, owner_id, patient_id, reason, priority, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, 'active', now(), now())
		`, uuid.New(), p.ownerID, p.id, reason, priority)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
