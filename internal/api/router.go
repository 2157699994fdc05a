package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Krish-Makadiya/Aroga-sub001/internal/appointment"
	"github.com/Krish-Makadiya/Aroga-sub001/internal/emergency"
)

type RouterConfig struct {
	Appointments *appointment.Service
	Emergencies  *emergency.Service
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Env          string
	Version      string
	Log          zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Appointment lifecycle
	r.Post("/appointments", createAppointmentHandler(cfg.Appointments))
	r.Get("/appointments", listAppointmentsHandler(cfg.Appointments))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Appointments))
	r.Post("/appointments/{id}/status", updateStatusHandler(cfg.Appointments))
	r.Put("/appointments/{id}/prescription", prescriptionHandler(cfg.Appointments))
	r.Post("/appointments/{id}/payment/order", createPaymentOrderHandler(cfg.Appointments))
	r.Post("/appointments/{id}/payment", recordPaymentHandler(cfg.Appointments))
	r.Get("/appointments/{id}/join", joinAppointmentHandler(cfg.Appointments))
	r.Post("/appointments/{id}/rating", submitRatingHandler(cfg.Appointments))

	// Emergency escalation
	r.Post("/emergencies", raiseEmergencyHandler(cfg.Emergencies))
	r.Get("/emergencies", listEmergenciesHandler(cfg.Emergencies))
	r.Get("/emergencies/{id}", getEmergencyHandler(cfg.Emergencies))
	r.Post("/emergencies/{id}/match", matchEmergencyHandler(cfg.Emergencies))

	return r
}
