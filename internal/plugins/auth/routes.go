package auth

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/grantdesk/grantdesk/internal/middleware"
)

// RegisterRoutes sets up all auth routes under /auth. Login, register, and
// refresh are the trust boundary's entry points: they sit outside both the
// auth and CSRF middleware because the client cannot hold a valid token
// before authenticating. Everything else requires a verified access token,
// and state-changing operations additionally require the echoed CSRF token.
//
// POST entry points are rate-limited per IP as a pre-check in front of the
// per-account lockout tracker.
func RegisterRoutes(e *echo.Echo, h *Handler, service AuthService, guard *CsrfGuard) {
	g := e.Group("/auth")

	// Public entry points -- no token, no CSRF.
	g.POST("/login", h.Login, middleware.RateLimit(10, time.Minute))
	g.POST("/register", h.Register, middleware.RateLimit(5, time.Minute))
	g.POST("/refresh", h.Refresh, middleware.RateLimit(30, time.Minute))

	// Authenticated routes. CSRF middleware skips safe methods internally.
	authed := g.Group("", RequireAuth(service), guard.Middleware())
	authed.POST("/logout", h.Logout)
	authed.POST("/logout-all", h.LogoutAll)
	authed.POST("/change-password", h.ChangePassword)
	authed.GET("/profile", h.Profile)
	authed.GET("/csrf-token", h.CSRFToken)
	authed.GET("/sessions", h.Sessions)

	// Admin kill switch: deactivation destroys the target's sessions and
	// with them the refresh path.
	authed.PUT("/users/:id/active", h.SetUserActive)
}
