package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/lalithlochan/tandem/internal/metrics"
)

type RouterConfig struct {
	PortalJWTSecret []byte
	AllowedOrigins  []string
	DispatchToken   string
	// Limiter throttles the manual dispatch trigger; nil disables it.
	Limiter Limiter
}

// NewRouter mounts every route on a chi router.
func NewRouter(h *Handler, cfg RouterConfig, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(requestLogger(logger))

	r.Get("/health", h.Health)
	r.Handle("/metrics", metrics.Handler())

	// Slack redelivers a click it has not seen acknowledged within 3s.
	r.With(middleware.Timeout(2500*time.Millisecond)).Post("/slack/interactions", h.Interactions)

	r.Route("/v1", func(r chi.Router) {
		// Token first, so unauthenticated callers never spend the budget.
		r.With(
			h.RequireDispatchToken(cfg.DispatchToken),
			RateLimitMiddleware(cfg.Limiter, logger, "dispatch", IPKeyFunc),
		).Post("/nudges/dispatch", h.Dispatch)

		r.Route("/me", func(r chi.Router) {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins:   cfg.AllowedOrigins,
				AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
				AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
				AllowCredentials: false,
				MaxAge:           300,
			}))
			r.Use(middleware.Timeout(30 * time.Second))
			r.Use(h.RequireAuth(cfg.PortalJWTSecret))

			r.Get("/surveys/pending", h.PendingSurvey)
			r.Post("/surveys", h.SubmitSurvey)
			r.Post("/checkpoints", h.RecordCheckpoint)
			r.Get("/checkpoints", h.ListCheckpoints)
			r.Post("/slack/connection", h.LinkSlack)
			r.Put("/slack/preferences", h.UpdatePreferences)
			r.Get("/nudges", h.ListNudges)
		})
	})

	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
