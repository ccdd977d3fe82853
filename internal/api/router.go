package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	Service SchedulerService
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Env     string
	Version string
	Logger  zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	h := newHandlers(cfg.Service)

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", h.bookAppointment)
		r.Get("/conflicts", h.checkConflicts)
		r.Patch("/series/{parentID}", h.updateSeries)
		r.Get("/{id}", h.getAppointment)
		r.Post("/{id}/recurrences", h.createRecurrences)
		r.Post("/{id}/confirm", h.confirmAppointment)
		r.Post("/{id}/cancel", h.cancelAppointment)
		r.Post("/{id}/complete", h.completeAppointment)
		r.Post("/{id}/no-show", h.markNoShow)
		r.Post("/{id}/reschedule", h.rescheduleAppointment)
	})

	r.Get("/availability/slots", h.availableSlots)

	r.Route("/waitlist", func(r chi.Router) {
		r.Post("/{id}/notify", h.notifyWaitlistEntry)
		r.Post("/{id}/convert", h.convertWaitlistEntry)
	})

	return r
}
