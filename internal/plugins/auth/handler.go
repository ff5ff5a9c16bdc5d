package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/grantdesk/grantdesk/internal/apperror"
	"github.com/grantdesk/grantdesk/internal/plugins/ability"
)

// refreshCookieName is the HTTP-only cookie carrying the refresh token.
const refreshCookieName = "grantdesk_refresh"

// refreshCookiePath scopes the cookie to the refresh endpoint so it never
// travels on ordinary API requests.
const refreshCookiePath = "/auth/refresh"

// Handler handles HTTP requests for authentication. Handlers are thin: they
// bind the request, call the service, and shape the JSON response. No
// business logic lives here.
type Handler struct {
	service    AuthService
	refreshTTL time.Duration
}

// NewHandler creates a new auth handler with the given service.
func NewHandler(service AuthService, refreshTTL time.Duration) *Handler {
	return &Handler{service: service, refreshTTL: refreshTTL}
}

// Register creates a new account (POST /auth/register).
func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if msg := validateRegisterRequest(&req); msg != "" {
		return apperror.NewValidation(msg)
	}

	user, err := h.service.Register(c.Request().Context(), RegisterInput{
		Email:      req.Email,
		Username:   req.Username,
		MinistryID: req.MinistryID,
		Password:   req.Password,
		Roles:      req.Roles,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, map[string]any{"user": user})
}

// Login authenticates a user (POST /auth/login). On success the access
// token goes in the body, the refresh token in the protected cookie, and
// the CSRF token in the response header.
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return apperror.NewValidation("email and password are required")
	}

	result, err := h.service.Login(c.Request().Context(), LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	})
	if err != nil {
		return err
	}

	h.setRefreshCookie(c, result.RefreshToken)
	c.Response().Header().Set(csrfHeaderName, result.CSRFToken)

	return c.JSON(http.StatusOK, map[string]any{
		"user":        result.User,
		"accessToken": result.AccessToken,
		"expiresIn":   result.ExpiresIn,
	})
}

// Refresh mints a new access token from the refresh cookie alone
// (POST /auth/refresh). No access token is required -- the caller is here
// precisely because theirs expired. The rotated CSRF token rides back in
// the response header.
func (h *Handler) Refresh(c echo.Context) error {
	cookie, err := c.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		return apperror.NewRefreshUnavailable()
	}

	result, err := h.service.Refresh(c.Request().Context(), cookie.Value)
	if err != nil {
		return err
	}

	c.Response().Header().Set(csrfHeaderName, result.CSRFToken)

	return c.JSON(http.StatusOK, map[string]any{
		"accessToken": result.AccessToken,
		"expiresIn":   result.ExpiresIn,
	})
}

// Logout destroys the session and clears the refresh cookie
// (POST /auth/logout). Idempotent.
func (h *Handler) Logout(c echo.Context) error {
	claims := GetClaims(c)
	if claims == nil {
		return apperror.NewMissingContext()
	}

	if err := h.service.Logout(c.Request().Context(), claims.SessionID); err != nil {
		return err
	}

	h.clearRefreshCookie(c)
	return c.NoContent(http.StatusNoContent)
}

// LogoutAll destroys every session owned by the user (POST /auth/logout-all).
// Outstanding access tokens remain valid until they expire; the response
// says so explicitly rather than promising instant revocation.
func (h *Handler) LogoutAll(c echo.Context) error {
	userID := GetUserID(c)
	if userID == "" {
		return apperror.NewMissingContext()
	}

	n, err := h.service.LogoutAll(c.Request().Context(), userID)
	if err != nil {
		return err
	}

	h.clearRefreshCookie(c)
	return c.JSON(http.StatusOK, map[string]any{
		"sessionsDestroyed": n,
		"note":              "existing access tokens remain valid until expiry",
	})
}

// ChangePassword updates the caller's password (POST /auth/change-password).
func (h *Handler) ChangePassword(c echo.Context) error {
	userID := GetUserID(c)
	if userID == "" {
		return apperror.NewMissingContext()
	}

	var req ChangePasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return apperror.NewValidation("current and new passwords are required")
	}
	if len(req.NewPassword) < 8 {
		return apperror.NewValidation("password must be at least 8 characters")
	}
	if len(req.NewPassword) > 128 {
		return apperror.NewValidation("password must be at most 128 characters")
	}

	if err := h.service.ChangePassword(c.Request().Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// SetUserActive flips an account's active flag
// (PUT /auth/users/:id/active). Platform operators only: deactivation is
// the kill switch that invalidates an account's refresh path.
func (h *Handler) SetUserActive(c echo.Context) error {
	if !hasRole(GetSubject(c).Roles, ability.RoleAdmin) {
		return apperror.NewForbidden("administrator access required")
	}

	var req SetActiveRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if req.Active == nil {
		return apperror.NewValidation("active is required")
	}

	if err := h.service.SetUserActive(c.Request().Context(), c.Param("id"), *req.Active); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// hasRole reports whether the role set contains the given role.
func hasRole(roles []ability.Role, want ability.Role) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}

// Profile returns the authenticated user's public fields (GET /auth/profile).
func (h *Handler) Profile(c echo.Context) error {
	userID := GetUserID(c)
	if userID == "" {
		return apperror.NewMissingContext()
	}

	user, err := h.service.Profile(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"user": user})
}

// CSRFToken returns the session's current anti-forgery token
// (GET /auth/csrf-token).
func (h *Handler) CSRFToken(c echo.Context) error {
	claims := GetClaims(c)
	if claims == nil {
		return apperror.NewMissingContext()
	}

	token, err := h.service.CSRFToken(c.Request().Context(), claims.SessionID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"csrfToken": token})
}

// Sessions lists the caller's active sessions (GET /auth/sessions).
func (h *Handler) Sessions(c echo.Context) error {
	userID := GetUserID(c)
	if userID == "" {
		return apperror.NewMissingContext()
	}

	sessions, err := h.service.Sessions(c.Request().Context(), userID)
	if err != nil {
		return err
	}

	public := make([]PublicSession, 0, len(sessions))
	for i := range sessions {
		public = append(public, sessions[i].Public())
	}
	return c.JSON(http.StatusOK, map[string]any{"sessions": public})
}

// --- Cookie helpers ---

// setRefreshCookie sets the refresh cookie on the response. The cookie is
// HttpOnly (JS can't read it), Secure behind TLS, SameSite=Strict, and
// path-scoped to the refresh endpoint only.
func (h *Handler) setRefreshCookie(c echo.Context, token string) {
	req := c.Request()
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     refreshCookiePath,
		HttpOnly: true,
		Secure:   req.TLS != nil || req.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(h.refreshTTL.Seconds()),
	})
}

// clearRefreshCookie removes the refresh cookie by setting MaxAge to -1.
func (h *Handler) clearRefreshCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// --- Validation helpers ---

// validateRegisterRequest performs basic server-side validation on the
// registration payload. Returns an error message or empty string.
// Password complexity rules beyond length are an external concern.
func validateRegisterRequest(req *RegisterRequest) string {
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return "a valid email is required"
	}
	if len(req.Email) > 255 {
		return "email must be at most 255 characters"
	}
	if req.Username == "" {
		return "username is required"
	}
	if len(req.Username) < 2 || len(req.Username) > 64 {
		return "username must be between 2 and 64 characters"
	}
	if req.MinistryID == "" {
		return "ministry_id is required"
	}
	if len(req.Password) < 8 {
		return "password must be at least 8 characters"
	}
	if len(req.Password) > 128 {
		return "password must be at most 128 characters"
	}
	if len(req.Roles) == 0 {
		return "at least one role is required"
	}
	return ""
}
