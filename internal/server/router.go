package server

import (
	"net/http"

	"github.com/cloo-solutions/coachkb/internal/api"
	"github.com/cloo-solutions/coachkb/internal/api/handlers"
	"github.com/cloo-solutions/coachkb/internal/api/middleware"
	"github.com/cloo-solutions/coachkb/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// MaxBodyBytes bounds JSON requests and multipart uploads alike.
const MaxBodyBytes int64 = 64 * 1024 * 1024

type RouterConfig struct {
	// Nil leaves every route open.
	AuthValidator   middleware.AuthValidator
	Logger          logrus.FieldLogger
	Metrics         *metrics.Metrics
	DocumentHandler *handlers.DocumentHandler
	SearchHandler   *handlers.SearchHandler
	EvaluateHandler *handlers.EvaluateHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.Sentry)
	r.Use(middleware.AccessLog(logger, cfg.Metrics))
	r.Use(middleware.MaxBodyBytes(MaxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.AuthValidator))

		r.Post("/ingest", cfg.DocumentHandler.Ingest)
		r.Post("/search", cfg.SearchHandler.Search)

		r.Route("/evaluate", func(r chi.Router) {
			r.Post("/", cfg.EvaluateHandler.Evaluate)
			r.Post("/semantic", cfg.EvaluateHandler.Semantic)
			r.Post("/context", cfg.EvaluateHandler.Context)
		})

		r.Route("/documents", func(r chi.Router) {
			r.Get("/", cfg.DocumentHandler.List)
			r.Delete("/", cfg.DocumentHandler.Clear)
			r.Get("/{id}", cfg.DocumentHandler.Get)
		})

		r.Get("/sources", cfg.DocumentHandler.Sources)
		r.Get("/stats", cfg.DocumentHandler.Stats)
		r.Get("/categories/{category}/sample", cfg.DocumentHandler.Sample)
	})

	return r
}
