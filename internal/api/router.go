package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Service        SchedulingService
	Checks         []Check
	Logger         *zap.Logger
	RequestTimeout time.Duration
	Env            string
	Version        string
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log.Named("http")))

	health := NewHealthHandler(cfg.Checks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		r.Use(TimeoutMiddleware(cfg.RequestTimeout))
		r.Use(ActorMiddleware)

		r.Post("/availability", uploadAvailabilityHandler(cfg.Service))

		r.Get("/vaccines", listVaccinesHandler(cfg.Service))
		r.Post("/vaccines/{name}/doses", addDosesHandler(cfg.Service))

		r.Get("/schedule", searchScheduleHandler(cfg.Service))

		r.Post("/reservations", reserveHandler(cfg.Service))

		r.Get("/appointments", listAppointmentsHandler(cfg.Service))
		r.Delete("/appointments/{id}", cancelHandler(cfg.Service))
	})

	return r
}
