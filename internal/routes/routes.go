package routes

import (
	"net/http"

	"github.com/BradenHooton/authgate/internal/auth"
	"github.com/BradenHooton/authgate/internal/handlers"
	"github.com/BradenHooton/authgate/internal/middleware"
	"github.com/BradenHooton/authgate/internal/models"
	pkghttp "github.com/BradenHooton/authgate/pkg/http"
	"github.com/go-chi/chi/v5"
)

// Deps collects what the route table needs
type Deps struct {
	Gate         *handlers.GateHandler
	Admin        *handlers.AdminHandler
	Health       *handlers.HealthHandler
	Metrics      http.Handler
	TokenManager *auth.TokenManager
	IPConfig     *pkghttp.IPConfig

	ServiceRateLimit middleware.RateLimitConfig
	AdminRateLimit   middleware.RateLimitConfig
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, deps Deps) {
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		pkghttp.WriteNotFound(w, "Route not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		pkghttp.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	})

	// Public routes - no authentication required
	router.Get("/health", deps.Health.Health)
	if deps.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	router.Route("/v1", func(r chi.Router) {
		r.Use(auth.AuthMiddleware(deps.TokenManager))

		// Authenticator endpoints, callable by services and operators
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(models.RoleService, models.RoleAdmin))
			r.Use(middleware.RateLimitBySubject(deps.ServiceRateLimit, deps.IPConfig))

			r.Post("/gate", deps.Gate.EvaluateGate)
			r.Post("/attempts", deps.Gate.RecordAttempt)
			r.Post("/otp/gate", deps.Gate.EvaluateOtpGate)
			r.Post("/otp/attempts", deps.Gate.RecordOtpAttempt)
		})

		// Admin-only routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireRole(models.RoleAdmin))
			r.Use(middleware.RateLimitBySubject(deps.AdminRateLimit, deps.IPConfig))

			r.Get("/summary", deps.Admin.GetSummary)
			r.Get("/offenders/ips", deps.Admin.GetTopIPs)
			r.Get("/offenders/devices", deps.Admin.GetTopDevices)
			r.Get("/attempts", deps.Admin.ListAttempts)
			r.Post("/purge/expired", deps.Admin.PurgeExpired)
			r.Post("/purge", deps.Admin.PurgeOlderThan)
		})
	})
}
