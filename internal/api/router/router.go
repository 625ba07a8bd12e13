package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bearound/booking-funnel/internal/http/handlers"
	httpmiddleware "github.com/bearound/booking-funnel/internal/http/middleware"
	"github.com/bearound/booking-funnel/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	Funnel         *handlers.FunnelHandler
	Watch          *handlers.WatchHandler
	Catalog        *handlers.CatalogHandler
	MetricsHandler http.Handler

	CORSAllowedOrigins []string
	RateLimiter        *httpmiddleware.RateLimiter
	// SessionSigningSecret enables bearer tokens on /api/sessions/{id}.
	SessionSigningSecret string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", handlers.HealthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(httpmiddleware.RateLimit(cfg.RateLimiter))

		if cfg.Catalog != nil {
			api.Group(func(c chi.Router) {
				c.Use(middleware.Compress(5))
				c.Get("/structures", cfg.Catalog.Structures)
				c.Get("/experiences/search", cfg.Catalog.Search)
			})
		}

		if cfg.Funnel == nil {
			return
		}
		api.Post("/sessions", cfg.Funnel.CreateSession)
		api.Route("/sessions/{id}", func(s chi.Router) {
			s.Use(httpmiddleware.SessionToken(cfg.SessionSigningSecret, "id"))
			s.Get("/", cfg.Funnel.GetSession)
			s.Delete("/", cfg.Funnel.DeleteSession)
			s.Get("/calendar", cfg.Funnel.GetCalendar)
			s.Post("/calendar", cfg.Funnel.NavigateCalendar)
			s.Patch("/draft", cfg.Funnel.UpdateDraft)
			s.Post("/intent", cfg.Funnel.SubmitIntent)
			s.Post("/confirm", cfg.Funnel.Confirm)
			s.Post("/restart", cfg.Funnel.Restart)
			if cfg.Watch != nil {
				s.Get("/watch", cfg.Watch.Watch)
			}
		})
	})

	return r
}
