package app

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/grantdesk/grantdesk/internal/plugins/ability"
	"github.com/grantdesk/grantdesk/internal/plugins/audit"
	"github.com/grantdesk/grantdesk/internal/plugins/auth"
	"github.com/grantdesk/grantdesk/internal/plugins/grants"
)

// RegisterRoutes sets up all application routes. It constructs each plugin's
// repository, service, and handler, then delegates to the plugin's route
// registration function.
//
// This is the single place where all routes are aggregated. When a new
// plugin is added, its routes are registered here.
func (a *App) RegisterRoutes() {
	e := a.Echo

	// Health check endpoint for container health monitoring.
	e.GET("/healthz", func(c echo.Context) error {
		ctx := c.Request().Context()
		if err := a.DB.PingContext(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "db unavailable"})
		}
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "redis unavailable"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// --- auth plugin ---
	userRepo := auth.NewUserRepository(a.DB)
	registry := auth.NewSessionRegistry(a.Redis, a.Config.Auth.SessionTTL)
	issuer := auth.NewTokenIssuer(a.Config.Auth)
	guard := auth.NewCsrfGuard(registry)
	authService := auth.NewAuthService(userRepo, registry, issuer, guard, a.Config.Auth)
	authHandler := auth.NewHandler(authService, a.Config.Auth.RefreshTTL)
	auth.RegisterRoutes(e, authHandler, authService, guard)

	// --- grants plugin ---
	resolver := ability.NewResolver()
	grantRepo := grants.NewApplicationRepository(a.DB)
	grantService := grants.NewGrantService(grantRepo, resolver)
	grantHandler := grants.NewHandler(grantService)
	grants.RegisterRoutes(e, grantHandler, authService, guard)

	// --- audit plugin ---
	// Wired after construction so the auth service can emit security events
	// without an import cycle between the two plugins.
	auditService := audit.NewService(audit.NewEventRepository(a.DB))
	auth.ConfigureEventRecorder(authService, auditService)
	auditHandler := audit.NewHandler(auditService)
	audit.RegisterRoutes(e, auditHandler, authService)
}
