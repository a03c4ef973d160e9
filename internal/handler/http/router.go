package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/srivardhan-kondu/EmpathyAI/internal/service"
	"github.com/srivardhan-kondu/EmpathyAI/pkg/health"
	"github.com/srivardhan-kondu/EmpathyAI/pkg/middleware"
)

// ServiceName labels metrics and spans.
const ServiceName = "identity"

// mountPoints lists the prefixes the auth routes are served under. The chat
// frontend calls /api/auth; /auth is the short form.
var mountPoints = []string{"/auth", "/api/auth"}

// RouterDeps groups what NewRouter wires together.
type RouterDeps struct {
	Accounts *service.AuthService
	// Logins optionally decorates the login endpoints, e.g. with a rate
	// limiter. Accounts is used when nil.
	Logins        service.Authenticator
	Recovery      *service.RecoveryService
	Authenticator middleware.Authenticator
	Health        *health.Handler
	Logger        *slog.Logger
	CORS          CORSConfig
	// RateLimit throttles the unauthenticated credential endpoints per
	// client. The zero value disables it.
	RateLimit middleware.RateLimitConfig
}

// NewRouter creates a chi router with all identity routes registered.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CORS(deps.CORS))
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogging(deps.Logger))
	r.Use(middleware.PrometheusMetrics(ServiceName))
	r.Use(middleware.Tracing(ServiceName))
	r.Use(middleware.RequestLogger(deps.Logger))

	// Health check endpoints
	r.Get("/health/live", deps.Health.LivenessHandler())
	r.Get("/health/ready", deps.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	authHandler := NewAuthHandler(deps.Accounts, deps.Logins, deps.Recovery, deps.Logger)
	// One bucket per client across both mount points.
	throttle := middleware.RateLimit(deps.RateLimit)

	for _, prefix := range mountPoints {
		r.Route(prefix, func(r chi.Router) {
			r.Use(ContentTypeJSON)

			r.Group(func(r chi.Router) {
				r.Use(throttle)

				r.Post("/signup", authHandler.Signup)
				r.Post("/login", authHandler.Login)
				r.Post("/google", authHandler.GoogleLogin)
				r.Post("/forgot-password", authHandler.ForgotPassword)
				r.Post("/reset-password/{token}", authHandler.ResetPassword)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.Auth(deps.Authenticator))

				r.Get("/profile", authHandler.Profile)
				r.Post("/change-password", authHandler.ChangePassword)
			})
		})
	}

	return r
}
