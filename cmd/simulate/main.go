package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/careloop/clinic-scheduler/internal/db"
)

// simulate hammers the booking endpoint with many workers competing for a
// small set of slots on one owner's day. A correct deployment ends with zero
// overlapping non-cancelled bookings no matter how hard the race is pushed.

type simConfig struct {
	apiBaseURL string
	dsn        string
	workers    int
	duration   time.Duration
	slotCount  int
}

type metrics struct {
	total    int64
	booked   int64
	conflict int64
	busy     int64
	errored  int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (m *metrics) record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&m.total, 1)
	switch {
	case err != nil:
		atomic.AddInt64(&m.errored, 1)
	case status == http.StatusCreated:
		atomic.AddInt64(&m.booked, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&m.conflict, 1)
	default:
		atomic.AddInt64(&m.errored, 1)
	}

	m.mu.Lock()
	m.latencies = append(m.latencies, latency)
	m.mu.Unlock()
}

func (m *metrics) percentile(p int) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.latencies) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "simulate").Logger()

	cfg := simConfig{
		apiBaseURL: getEnv("SIM_API_URL", "http://127.0.0.1:8080"),
		dsn:        os.Getenv("POSTGRES_DSN"),
		workers:    getEnvInt("SIM_WORKERS", 20),
		duration:   time.Duration(getEnvInt("SIM_DURATION_SECONDS", 15)) * time.Second,
		slotCount:  getEnvInt("SIM_SLOT_COUNT", 8),
	}
	if cfg.dsn == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.dsn)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	ownerID, patientIDs, err := pickTargets(context.Background(), pool)
	if err != nil {
		log.Fatal().Err(err).Msg("pick simulation targets (run cmd/seed first)")
	}

	// Next Monday, so the default Mon-Fri policy applies.
	day := time.Now().UTC().AddDate(0, 0, 1)
	for day.Weekday() != time.Monday {
		day = day.AddDate(0, 0, 1)
	}
	date := day.Format("2006-01-02")

	slots := make([]string, 0, cfg.slotCount)
	for i := 0; i < cfg.slotCount; i++ {
		minute := 9*60 + i*45
		slots = append(slots, fmt.Sprintf("%02d:%02d", minute/60, minute%60))
	}

	log.Info().
		Str("owner_id", ownerID.String()).
		Str("date", date).
		Int("workers", cfg.workers).
		Int("slots", len(slots)).
		Msg("starting booking race")

	var m metrics
	deadline := time.Now().Add(cfg.duration)
	var wg sync.WaitGroup

	for w := 0; w < cfg.workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			client := &http.Client{Timeout: 10 * time.Second}

			for time.Now().Before(deadline) {
				slot := slots[rng.Intn(len(slots))]
				patient := patientIDs[rng.Intn(len(patientIDs))]

				start := time.Now()
				status, err := book(client, cfg.apiBaseURL, ownerID, patient, date, slot)
				m.record(time.Since(start), status, err)
			}
		}(int64(w) + time.Now().UnixNano())
	}
	wg.Wait()

	overlaps, err := countOverlaps(context.Background(), pool, ownerID, date)
	if err != nil {
		log.Fatal().Err(err).Msg("verify overlaps")
	}

	log.Info().
		Int64("total", m.total).
		Int64("booked", m.booked).
		Int64("conflict", m.conflict).
		Int64("error", m.errored).
		Dur("p50", m.percentile(50)).
		Dur("p95", m.percentile(95)).
		Int("overlapping_pairs", overlaps).
		Msg("simulation complete")

	if overlaps > 0 {
		log.Error().Int("overlapping_pairs", overlaps).Msg("RACE DETECTED: overlapping bookings exist")
		os.Exit(1)
	}
	log.Info().Msg("no overlapping bookings, guard held")
}

func book(client *http.Client, baseURL string, ownerID, patientID uuid.UUID, date, clock string) (int, error) {
	body, _ := json.Marshal(map[string]any{
		"owner_id":         ownerID.String(),
		"patient_id":       patientID.String(),
		"date":             date,
		"time":             clock,
		"duration_minutes": 30,
		"reason":           "load simulation",
	})

	resp, err := client.Post(baseURL+"/appointments", "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func pickTargets(ctx context.Context, pool *pgxpool.Pool) (uuid.UUID, []uuid.UUID, error) {
	var ownerID uuid.UUID
	if err := pool.QueryRow(ctx, `SELECT id FROM practices LIMIT 1`).Scan(&ownerID); err != nil {
		return uuid.Nil, nil, fmt.Errorf("no practices: %w", err)
	}

	rows, err := pool.Query(ctx, `SELECT id FROM patients WHERE owner_id = $1 LIMIT 50`, ownerID)
	if err != nil {
		return uuid.Nil, nil, err
	}
	defer rows.Close()

	var patients []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return uuid.Nil, nil, err
		}
		patients = append(patients, id)
	}
	if len(patients) == 0 {
		return uuid.Nil, nil, fmt.Errorf("no patients for practice %s", ownerID)
	}
	return ownerID, patients, rows.Err()
}

// countOverlaps finds pairs of non-cancelled bookings on the day whose raw
// intervals intersect. The buffer makes the service stricter than this
// query, so any hit here is a definite violation.
func countOverlaps(ctx context.Context, pool *pgxpool.Pool, ownerID uuid.UUID, date string) (int, error) {
	var count int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN appointments b
		  ON a.owner_id = b.owner_id
		 AND a.date = b.date
		 AND a.id < b.id
		 AND a.start_minute < b.start_minute + b.duration_minutes
		 AND b.start_minute < a.start_minute + a.duration_minutes
		WHERE a.owner_id = $1
		  AND a.date = $2
		  AND a.status <> 'cancelled'
		  AND b.status <> 'cancelled'
	`, ownerID, date).Scan(&count)
	return count, err
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
