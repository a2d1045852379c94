package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"portico/internal/platform/middleware"
	platformstrings "portico/pkg/platform/strings"
)

// RouterConfig carries the transport-level knobs the router needs.
type RouterConfig struct {
	AllowedOrigins []string
	// Per-IP rate applied to the credential endpoints only.
	CredentialRatePerIP float64
	CredentialBurst     int
}

// NewRouter wires the public endpoints with the middleware stack. Credential
// endpoints sit behind a per-IP rate limit; everything shares recovery,
// request ids, logging and CORS for the portal frontend.
func NewRouter(h *Handler, admin *AdminHandler, logger *slog.Logger, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))

	origins := platformstrings.DedupeAndTrim(cfg.AllowedOrigins)
	if len(origins) == 0 {
		origins = []string{"http://localhost:4200"}
	}
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	rate := cfg.CredentialRatePerIP
	if rate <= 0 {
		rate = 5
	}
	burst := cfg.CredentialBurst
	if burst <= 0 {
		burst = 10
	}
	limiter := middleware.NewRateLimit(rate, burst)

	// Credential endpoints take a body and are brute-forceable; they get the
	// JSON content-type gate and the per-IP limiter.
	r.Group(func(g chi.Router) {
		g.Use(middleware.ContentTypeJSON)
		g.Use(limiter.Handler)
		g.Post("/auth/sign-in", h.HandleSignIn)
		g.Post("/auth/forgot-password", h.HandleForgotPassword)
		g.Post("/auth/reset-password", h.HandleResetPassword)
		g.Post("/auth/verify-email", h.HandleVerifyEmail)
	})

	r.Post("/auth/refresh", h.HandleRefresh)
	r.Delete("/auth/sign-out", h.HandleSignOut)
	r.Get("/auth/reset-password/{token}", h.HandleValidateResetToken)

	if admin != nil {
		admin.Register(r)
	}

	return r
}
