package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"smart-parking-core/internal/auth"
)

// SetupDataRouter serves the event input surface, guarded by API keys when
// any are configured.
func SetupDataRouter(h *APIHandler, authManager *auth.Manager) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	if authManager != nil && authManager.Enabled() {
		r.Group(func(r chi.Router) {
			r.Use(authManager.APIKeyMiddleware)
			r.Post("/events", h.HandleCreateEvent)
		})
	} else {
		r.Post("/events", h.HandleCreateEvent)
	}

	return r
}

// SetupAPIRouter serves queries, the websocket feed, and operational
// endpoints.
func SetupAPIRouter(h *APIHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/events", h.HandleListEvents)
	r.Get("/zones/availability", h.HandleAvailability)

	r.Route("/analytics", func(r chi.Router) {
		r.Get("/dashboard", h.HandleDashboard)
		r.Get("/occupancy-trend", h.HandleOccupancyTrend)
		r.Get("/forecast", h.HandleForecast)
		r.Get("/peak-hours", h.HandlePeakHours)
		r.Get("/arrival-rate", h.HandleArrivalRate)
	})

	r.Get("/ws", h.HandleWebSocket)
	r.Get("/healthz", h.HandleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
