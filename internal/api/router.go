package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-booking/internal/booking"
	"github.com/hackgods/clinic-slot-booking/internal/metrics"
	"github.com/hackgods/clinic-slot-booking/internal/session"
)

type RouterConfig struct {
	Booking     *booking.Service
	Sessions    *session.Service
	Signals     SignalSubscriber
	Address     AddressLookup
	Postgres    Pinger
	Redis       RedisPinger
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics
	Auth        *Authenticator
	Logger      zerolog.Logger
	Env         string
	Version     string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(TracingMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger, cfg.HTTPMetrics))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	// availability browsing and address prefill are public
	resolver := cfg.Booking.Resolver()
	r.Get("/doctors/{doctorID}/available-slots", availableSlotsHandler(resolver))
	r.Get("/doctors/{doctorID}/available-dates", availableDatesHandler(resolver))
	if cfg.Address != nil {
		r.Get("/addresses/{zip}", lookupAddressHandler(cfg.Address))
	}

	r.Group(func(r chi.Router) {
		r.Use(cfg.Auth.Middleware)

		r.Route("/doctors/{doctorID}/slots", func(r chi.Router) {
			r.Get("/", listSlotsHandler(cfg.Booking))
			r.Delete("/", deleteSlotsHandler(cfg.Booking))
			r.Post("/generate", generateSlotsHandler(cfg.Booking))
			r.Post("/availability", setSlotAvailabilityHandler(cfg.Booking))
		})

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", createAppointmentHandler(cfg.Booking))
			r.Get("/", listAppointmentsHandler(cfg.Booking))
			r.Get("/{id}", getAppointmentHandler(cfg.Booking))
			r.Delete("/{id}", deleteAppointmentHandler(cfg.Booking))
			r.Post("/{id}/confirm", appointmentActionHandler(cfg.Booking, confirmAppointment))
			r.Post("/{id}/complete", appointmentActionHandler(cfg.Booking, completeAppointment))
			r.Post("/{id}/cancel", appointmentActionHandler(cfg.Booking, cancelAppointment))
		})

		if cfg.Sessions != nil {
			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", startSessionHandler(cfg.Sessions))
				r.Get("/incoming", incomingSessionsHandler(cfg.Sessions))
				r.Get("/{id}", getSessionHandler(cfg.Sessions))
				r.Post("/{id}/answer", answerSessionHandler(cfg.Sessions))
				r.Post("/{id}/candidates", addCandidateHandler(cfg.Sessions))
				r.Post("/{id}/end", endSessionHandler(cfg.Sessions))
				if cfg.Signals != nil {
					r.Get("/{id}/events", sessionEventsHandler(cfg.Sessions, cfg.Signals))
				}
			})
		}
	})

	return r
}
