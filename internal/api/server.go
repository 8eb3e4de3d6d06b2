// Package api exposes the scheduling store over HTTP JSON.
package api

import (
	"net/http"
	"time"

	"salonsched/internal/export"
	"salonsched/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Options tune the HTTP surface.
type Options struct {
	RateLimit    float64
	RateBurst    int
	MaxRangeDays int
}

type Server struct {
	store    *store.Store
	exporter *export.Exporter
	loc      *time.Location
	opts     Options
	logger   zerolog.Logger
}

func NewServer(st *store.Store, exporter *export.Exporter, loc *time.Location, opts Options, logger *zerolog.Logger) *Server {
	if loc == nil {
		loc = time.UTC
	}
	if opts.MaxRangeDays <= 0 {
		opts.MaxRangeDays = 90
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "api").Logger()
	}
	return &Server{store: st, exporter: exporter, loc: loc, opts: opts, logger: l}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(countRoutes)
	if s.opts.RateLimit > 0 {
		r.Use(rateLimit(s.opts.RateLimit, s.opts.RateBurst))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/templates", func(r chi.Router) {
			r.Post("/", s.createTemplate)
			r.Get("/", s.listTemplates)
			r.Get("/{id}", s.getTemplate)
			r.Put("/{id}", s.updateTemplate)
			r.Delete("/{id}", s.deleteTemplate)
			r.Post("/{id}/activate", s.activateTemplate)
			r.Post("/{id}/deactivate", s.deactivateTemplate)
			r.Post("/{id}/generate", s.generateSlots)
		})

		r.Route("/slots", func(r chi.Router) {
			r.Get("/", s.listSlots)
			r.Post("/", s.createSlot)
			r.Post("/override", s.overrideDay)
			r.Delete("/{id}", s.deleteSlot)
		})

		r.Route("/time-off", func(r chi.Router) {
			r.Post("/", s.createTimeOff)
			r.Get("/", s.listTimeOff)
			r.Post("/{id}/approve", s.approveTimeOff)
			r.Delete("/{id}", s.deleteTimeOff)
		})

		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", s.createReservation)
			r.Get("/", s.listReservations)
			r.Delete("/{id}", s.deleteReservation)
		})

		r.Route("/resources", func(r chi.Router) {
			r.Post("/", s.createResource)
			r.Get("/", s.listResources)
			r.Put("/{id}/services", s.assignServices)
			r.Delete("/{id}", s.deleteResource)
		})

		r.Route("/commission", func(r chi.Router) {
			r.Post("/policies", s.createPolicy)
			r.Get("/policies", s.listPolicies)
			r.Delete("/policies/{id}", s.deletePolicy)
			r.Post("/resolve", s.resolveCommission)
		})

		r.Post("/availability/check", s.checkAvailability)

		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", s.createBooking)
			r.Get("/", s.listBookings)
			r.Get("/{id}", s.getBooking)
			r.Post("/{id}/cancel", s.cancelBooking)
			r.Post("/{id}/status", s.updateBookingStatus)
		})

		r.Get("/export/events", s.exportEvents)
	})

	return r
}
