package grants

import (
	"github.com/labstack/echo/v4"

	"github.com/grantdesk/grantdesk/internal/plugins/auth"
)

// RegisterRoutes sets up all grant application routes under /grants. Every
// route requires a verified access token; state-changing routes additionally
// require the echoed CSRF token.
func RegisterRoutes(e *echo.Echo, h *Handler, service auth.AuthService, guard *auth.CsrfGuard) {
	g := e.Group("/grants", auth.RequireAuth(service), guard.Middleware())

	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("/:id/submit", h.Submit)
	g.POST("/:id/decision", h.Decide)
}
