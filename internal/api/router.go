package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/STRATINT/alertwatch/internal/auth"
	"github.com/STRATINT/alertwatch/internal/config"
	"github.com/STRATINT/alertwatch/internal/metrics"
)

// Routes bundles what the ops router serves. Activity and Metrics are
// optional. With Auth enabled every /api route except login needs a bearer
// token.
type Routes struct {
	Handler  *Handler
	Activity *ActivityLogHandlers
	Metrics  *metrics.Collector
	Auth     config.AuthConfig
	Login    *auth.LoginHandler
}

// NewRouter builds the ops HTTP router.
func NewRouter(routes Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if routes.Metrics != nil {
		r.Use(routes.Metrics.InstrumentHandler)
	}

	r.Get("/healthz", routes.Handler.HealthHandler)
	if routes.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", routes.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if routes.Auth.Enabled() && routes.Login != nil {
			r.Post("/auth/login", routes.Login.Login)
		}

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(routes.Auth))
			r.Get("/status", routes.Handler.GetStatusHandler)
			r.Get("/alerts/recent", routes.Handler.GetRecentAlertsHandler)
			if routes.Activity != nil {
				r.Get("/activity-logs", routes.Activity.ListActivities)
				r.Get("/activity-logs/summary", routes.Activity.Summary)
			}
		})
	})

	return r
}
