package audit

import (
	"github.com/labstack/echo/v4"

	"github.com/grantdesk/grantdesk/internal/plugins/auth"
)

// RegisterRoutes sets up the audit feed routes under /audit. Both routes
// require a verified access token; the admin-only check happens in the
// handlers.
func RegisterRoutes(e *echo.Echo, h *Handler, service auth.AuthService) {
	g := e.Group("/audit", auth.RequireAuth(service))

	g.GET("", h.List)
	g.GET("/users/:id", h.UserHistory)
}
