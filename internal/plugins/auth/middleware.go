package auth

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/grantdesk/grantdesk/internal/apperror"
	"github.com/grantdesk/grantdesk/internal/plugins/ability"
)

// Context keys for storing verified identity in Echo context. Other plugins
// use these keys (via the exported getter functions below) to access the
// authenticated user's information.
const (
	contextKeyClaims = "auth_claims"
	contextKeyUserID = "auth_user_id"
)

// RequireAuth returns middleware that verifies the Bearer access token and
// injects the verified claims into the request context. Verification is
// signature + expiry only -- no database round-trip on the request path.
// Any failure is a uniform 401.
func RequireAuth(service AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c)
			if token == "" {
				return apperror.NewUnauthorized("missing access token")
			}

			claims, err := service.VerifyAccess(token)
			if err != nil {
				// Expired, malformed, and forged tokens all look the same.
				return apperror.NewUnauthorized("invalid or expired access token")
			}

			c.Set(contextKeyClaims, claims)
			c.Set(contextKeyUserID, claims.UserID())

			return next(c)
		}
	}
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// --- Exported getters for other plugins ---

// GetClaims retrieves the verified access claims from the Echo context.
// Returns nil if the request is not authenticated (middleware not applied).
func GetClaims(c echo.Context) *AccessClaims {
	claims, ok := c.Get(contextKeyClaims).(*AccessClaims)
	if !ok {
		return nil
	}
	return claims
}

// GetUserID retrieves the authenticated user's ID from the Echo context.
// Returns empty string if the request is not authenticated.
func GetUserID(c echo.Context) string {
	id, ok := c.Get(contextKeyUserID).(string)
	if !ok {
		return ""
	}
	return id
}

// GetSubject builds the ability subject for the authenticated request.
// Returns the zero Subject (which can do nothing) when unauthenticated.
func GetSubject(c echo.Context) ability.Subject {
	claims := GetClaims(c)
	if claims == nil {
		return ability.Subject{}
	}
	return claims.AbilitySubject()
}
