package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"mercator-hq/verdict/pkg/server/middleware"
	"mercator-hq/verdict/pkg/telemetry/health"
	"mercator-hq/verdict/pkg/telemetry/tracing"
)

// Handler returns the router with every route and middleware mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(s.logger))
	r.Use(middleware.Recovery(s.logger))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "not_found", "no route for "+r.URL.Path, nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", r.Method+" not allowed on "+r.URL.Path, nil)
	})

	r.Get(s.telemetry.Health.LivenessPath, s.health.LivenessHandler())
	r.Get(s.telemetry.Health.ReadinessPath, s.health.ReadinessHandler())
	r.Get("/version", health.VersionHandler(s.build.Version, s.build.Commit, s.build.BuildTime))
	if s.metrics != nil {
		r.Method(http.MethodGet, s.telemetry.Metrics.Path, s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(tracing.HTTPMiddleware(s.tracer))

		// Writes need a caller once auth is on; with protect_reads so
		// does everything else.
		protect := func(next http.Handler) http.Handler { return next }
		if s.apiKeys != nil {
			r.Use(middleware.Authenticate(s.apiKeys, s.logger))
			protect = middleware.RequireCaller
			if s.config.Auth.ProtectReads {
				r.Use(middleware.RequireCaller)
			}
		}
		if s.limiter != nil {
			r.Use(middleware.RateLimit(s.limiter))
		}

		r.Use(middleware.MaxBytes(s.config.MaxBodyBytes))
		if s.config.WriteTimeout > 0 {
			r.Use(chimw.Timeout(s.config.WriteTimeout))
		}

		r.Get("/rules", s.handleListRules)
		r.Route("/rules/{slug}", func(r chi.Router) {
			r.Get("/", s.handleGetRule)
			r.Post("/solve", s.handleSolve)
			r.Post("/bulk", s.handleBulk)
			r.Post("/test", s.handleTest)
			r.With(protect).Post("/publish", s.handlePublish)
			r.Get("/versions", s.handleVersions)
		})

		r.Get("/decisions", s.handleDecisions)

		r.Get("/values", s.handleListValues)
		r.Route("/values/{name}", func(r chi.Router) {
			r.Get("/", s.handleGetValue)
			r.With(protect).Put("/", s.handleSetValue)
			r.With(protect).Delete("/", s.handleDeleteValue)
		})
	})

	return r
}
