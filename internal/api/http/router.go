package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/auth-core/internal/api/http/handlers"
	"github.com/spec-kit/auth-core/internal/auth"
	"github.com/spec-kit/auth-core/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Admin          *handlers.AdminHandler
	Customer       *handlers.CustomerHandler
	Token          *handlers.TokenHandler
	Internal       *handlers.InternalHandler
	AuthMiddleware *auth.AuthMiddleware
	ServiceToken   string
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes. Logout, session verify and token validation require the
// caller's session to still be the live one; every other consumer of access tokens relies on
// the signature alone.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Metrics.Registry(), promhttp.HandlerOpts{})))
	}
	app.Get("/.well-known/jwks.json", cfg.Token.JWKS)

	authGroup := app.Group("/auth")
	authGroup.Post("/admin/register", cfg.Admin.Register)
	authGroup.Post("/admin/login", cfg.Admin.Login)
	authGroup.Post("/customer/login", cfg.Customer.Login)
	authGroup.Post("/guest/init", cfg.Customer.InitGuest)
	authGroup.Post("/token/refresh", cfg.Token.Refresh)

	authMW := cfg.AuthMiddleware
	authGroup.Post("/logout", authMW.Handle, authMW.RequireLiveSession, cfg.Token.Logout)
	authGroup.Get("/session/verify", authMW.Handle, authMW.RequireLiveSession, cfg.Token.VerifySession)

	internal := app.Group("/internal", auth.RequireServiceToken(cfg.ServiceToken))
	internal.Post("/tokens/validate", cfg.Internal.ValidateToken)
	internal.Get("/subjects/:id", cfg.Internal.GetSubject)
}
