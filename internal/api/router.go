package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/hackgods/booking-availability/internal/appointment"
	"github.com/hackgods/booking-availability/internal/auth"
	"github.com/hackgods/booking-availability/internal/telemetry"
)

type RouterConfig struct {
	Service        *appointment.Service
	PgPool         *pgxpool.Pool // nil with the memory store
	Redis          *redis.Client // nil when the day lock is disabled
	Logger         zerolog.Logger
	JWTSecret      []byte
	RateLimitRPS   float64
	RateLimitBurst int
	Env            string
	Version        string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Group(func(r chi.Router) {
		if cfg.RateLimitRPS > 0 {
			r.Use(RateLimitMiddleware(NewIPRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)))
		}

		// Availability is public
		r.Get("/businesses/{businessID}/availability/{date}", dayAvailabilityHandler(cfg.Service))
		r.Get("/businesses/{businessID}/availability", rangeAvailabilityHandler(cfg.Service))

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(cfg.JWTSecret))

			r.Get("/businesses/{businessID}/appointments", listBusinessAppointmentsHandler(cfg.Service))

			r.Post("/appointments", createAppointmentHandler(cfg.Service))
			r.Get("/appointments/client", listClientAppointmentsHandler(cfg.Service))
			r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
			r.Patch("/appointments/{id}", rescheduleAppointmentHandler(cfg.Service))
			r.Patch("/appointments/{id}/status", updateStatusHandler(cfg.Service))
			r.Delete("/appointments/{id}", cancelAppointmentHandler(cfg.Service))
		})
	})

	return r
}
