package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/dentaportal/portal-api/internal/account"
	"github.com/dentaportal/portal-api/internal/auth"
	"github.com/dentaportal/portal-api/internal/config"
	"github.com/dentaportal/portal-api/internal/dentist"
	"github.com/dentaportal/portal-api/internal/httputil"
	"github.com/dentaportal/portal-api/internal/logging"
	"github.com/dentaportal/portal-api/internal/monitoring"
)

// Handlers groups everything the router mounts
type Handlers struct {
	Auth       *auth.Handler
	Dentist    *dentist.Handler
	Middleware *auth.Middleware
}

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, h Handlers, logger *logging.Logger) *chi.Mux {
	r := chi.NewRouter()

	// CORS - must be first
	if len(cfg.Server.TrustedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Server.TrustedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Use(SecurityHeaders(!cfg.Server.IsDevelopment()))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	// Reports the panic, then re-panics into Recoverer above
	r.Use(monitoring.Middleware)
	r.Use(middleware.Compress(5))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.RespondErrorWithCode(w, "route not found", httputil.CodeNotFound, http.StatusNotFound)
	})

	r.Get("/health", handleHealth)

	// Swagger UI - only in development
	if cfg.Server.IsDevelopment() {
		logger.Info("swagger UI enabled", "path", "/swagger/*")
		r.Get("/swagger/*", httpSwagger.WrapHandler)
	}

	protect := h.Middleware.Protect

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Auth.Register)
		r.Post("/login", h.Auth.Login)
		r.Post("/logout", h.Auth.Logout)
		r.Get("/verify-email", h.Auth.VerifyEmail)
		r.Post("/resend-verification", h.Auth.ResendVerification)
		r.Post("/forgot-password", h.Auth.ForgotPassword)
		r.Post("/reset-password", h.Auth.ResetPassword)
		r.Get("/me", protect(auth.AnyAuthenticated, h.Auth.Me))
	})

	ownerOrAdmin := auth.RequireRoles(account.RoleDentist, account.RoleAdmin)

	r.Route("/dentists/{id}", func(r chi.Router) {
		r.Get("/", protect(ownerOrAdmin, h.Dentist.Get))
		r.Patch("/active", protect(ownerOrAdmin, h.Dentist.SetActive))
	})

	r.Route("/admin", func(r chi.Router) {
		r.Patch("/dentists/{id}/verification", protect(auth.RequireRoles(account.RoleAdmin), h.Dentist.SetVerification))
	})

	return r
}

// handleHealth is a simple health check endpoint
// @Summary      Health check
// @Description  Check if the API is running
// @Tags         health
// @Produce      json
// @Success      200 {object} map[string]string
// @Router       /health [get]
func handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, map[string]string{"status": "api is running"}, http.StatusOK)
}
