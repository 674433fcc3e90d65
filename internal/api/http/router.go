package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/empowerfin/auth-service/internal/api/http/handlers"
	"github.com/empowerfin/auth-service/internal/auth"
	"github.com/empowerfin/auth-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Users          *handlers.UsersHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authenticated := cfg.AuthMiddleware.Handle
	adminOnly := auth.RequireRole(domain.RoleAdmin)

	api := app.Group("/api")
	api.Get("/roles", cfg.Users.Roles)
	api.Get("/metrics", authenticated, adminOnly, cfg.Health.Metrics)

	authGroup := api.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/forgot-password", cfg.Auth.ForgotPassword)
	authGroup.Get("/verify-reset-token/:token", cfg.Auth.VerifyResetToken)
	authGroup.Post("/reset-password/:token", cfg.Auth.ResetPassword)
	authGroup.Post("/resend-verification", cfg.Auth.ResendVerification)
	authGroup.Get("/verify-email", cfg.Auth.VerifyEmail)
	authGroup.Post("/change-password", authenticated, cfg.Auth.ChangePassword)

	users := api.Group("/users")
	users.Get("/profile", authenticated, cfg.Users.Profile)
	users.Put("/profile", authenticated, auth.RequireVerifiedEmail(), cfg.Users.UpdateProfile)
	users.Get("/stats", authenticated, adminOnly, cfg.Users.Stats)
	users.Delete("/:id", authenticated, adminOnly, cfg.Users.Delete)
}
