package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/textgate/textgate/internal/api"
	mw "github.com/textgate/textgate/internal/middleware"
)

type Middleware = func(http.Handler) http.Handler

// Handlers are built in main so routing stays independent of the feature
// packages and their storage.
type Handlers struct {
	Register http.HandlerFunc
	Login    http.HandlerFunc

	Profile        http.HandlerFunc
	UpdateProfile  http.HandlerFunc
	ChangePassword http.HandlerFunc
	DeleteAccount  http.HandlerFunc
	Stats          http.HandlerFunc
	Usage          http.HandlerFunc
	Upgrade        http.HandlerFunc
	Downgrade      http.HandlerFunc

	Summarize        http.HandlerFunc
	Translate        http.HandlerFunc
	TranslateSummary http.HandlerFunc
	BulkTranslate    http.HandlerFunc
	Languages        http.HandlerFunc

	ListAuditLogs http.HandlerFunc

	RequireAuth      Middleware
	OptionalAuth     Middleware
	RequirePro       Middleware
	SummaryQuota     Middleware
	TranslationQuota Middleware
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	CORSAllowedOrigins []string
	TrustProxy         bool
	Throttle           Middleware
	Checks             map[string]HealthCheck
}

func NewRouter(cfg RouterConfig, h Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	if cfg.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))
	if cfg.Throttle != nil {
		r.Use(cfg.Throttle)
	}

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", health(cfg.Checks))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
		})

		r.Route("/user", func(r chi.Router) {
			r.Use(h.RequireAuth)
			r.Get("/profile", h.Profile)
			r.Put("/profile", h.UpdateProfile)
			r.Put("/password", h.ChangePassword)
			r.Delete("/account", h.DeleteAccount)
			r.Get("/stats", h.Stats)
			r.Get("/usage", h.Usage)
			r.Put("/upgrade", h.Upgrade)
			r.Put("/downgrade", h.Downgrade)
		})

		r.Route("/summary", func(r chi.Router) {
			r.Use(h.RequireAuth)
			r.With(h.SummaryQuota).Post("/", h.Summarize)
			r.With(h.RequirePro, h.TranslationQuota).Post("/translate", h.TranslateSummary)
		})

		r.Route("/translation", func(r chi.Router) {
			r.Get("/languages", h.Languages)
			r.With(h.OptionalAuth, h.TranslationQuota).Post("/", h.Translate)
			r.With(h.RequireAuth).Post("/bulk-translate", h.BulkTranslate)
		})

		r.Route("/governance", func(r chi.Router) {
			r.Use(h.RequireAuth)
			r.Get("/audit", h.ListAuditLogs)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		api.HandleError(w, api.ErrNotFound.WithMessage("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		api.HandleError(w, &api.AppError{Code: http.StatusMethodNotAllowed, Message: "method not allowed"})
	})

	return r
}

// health answers 200 while every check passes and 503 otherwise.
func health(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		deps := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				deps[name] = "unhealthy"
				status = http.StatusServiceUnavailable
				continue
			}
			deps[name] = "healthy"
		}

		state := "healthy"
		if status != http.StatusOK {
			state = "degraded"
		}
		api.JSON(w, status, map[string]any{
			"status":       state,
			"timestamp":    time.Now().UTC(),
			"dependencies": deps,
		})
	}
}
