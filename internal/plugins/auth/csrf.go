package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/grantdesk/grantdesk/internal/apperror"
)

// csrfTokenBytes is the number of random bytes in a CSRF token.
// 32 bytes = 256 bits of entropy, hex-encoded to 64 characters.
const csrfTokenBytes = 32

// csrfHeaderName is the request header clients echo the CSRF token in, and
// the response header login/refresh deliver it in.
const csrfHeaderName = "X-CSRF-Token"

// CsrfGuard issues and validates the per-session anti-forgery token. The
// authoritative copy lives on the session document; the client holds only
// the value it must echo back. Rotation replaces the session's secret, so a
// stale tab holding the old value is rejected until it re-fetches.
type CsrfGuard struct {
	registry *SessionRegistry
}

// NewCsrfGuard creates a guard backed by the given session registry.
func NewCsrfGuard(registry *SessionRegistry) *CsrfGuard {
	return &CsrfGuard{registry: registry}
}

// Issue generates a fresh random token, stores it on the session, and
// returns it for the client to echo back on state-changing requests.
func (g *CsrfGuard) Issue(ctx context.Context, sessionID string) (string, error) {
	token, err := generateCSRFToken()
	if err != nil {
		return "", apperror.NewInternal(err)
	}

	if _, err := g.registry.ReplaceCSRF(ctx, sessionID, token); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return "", apperror.NewSessionMissing()
		}
		return "", apperror.NewInternal(err)
	}
	return token, nil
}

// Current returns the session's current token, issuing one if the session
// exists but has never been given a secret.
func (g *CsrfGuard) Current(ctx context.Context, sessionID string) (string, error) {
	session, err := g.registry.Get(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return "", apperror.NewSessionMissing()
	}
	if err != nil {
		return "", apperror.NewInternal(err)
	}
	if session.CSRFSecret == "" {
		return g.Issue(ctx, sessionID)
	}
	return session.CSRFSecret, nil
}

// Validate compares the supplied token against the session's secret in
// constant time, so an attacker cannot deduce the token byte-by-byte from
// response timing. A missing session and a mismatched token are distinct
// failures; both map to 403.
func (g *CsrfGuard) Validate(ctx context.Context, sessionID, supplied string) error {
	session, err := g.registry.Get(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return apperror.NewSessionMissing()
	}
	if err != nil {
		return apperror.NewInternal(err)
	}

	if supplied == "" || session.CSRFSecret == "" {
		return apperror.NewCsrfMismatch()
	}
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(session.CSRFSecret)) != 1 {
		return apperror.NewCsrfMismatch()
	}
	return nil
}

// Middleware validates the echoed CSRF token on state-changing requests.
// Side-effect-free methods are skipped, as are the allow-listed entry-point
// paths (login, registration, refresh) where the client cannot yet hold a
// token. Must run after RequireAuth, which puts the verified claims (and
// with them the session id) into the request context.
func (g *CsrfGuard) Middleware(skipPaths ...string) echo.MiddlewareFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			if isSafeMethod(req.Method) || skip[req.URL.Path] {
				return next(c)
			}

			claims := GetClaims(c)
			if claims == nil {
				return apperror.NewSessionMissing()
			}

			supplied := req.Header.Get(csrfHeaderName)
			if err := g.Validate(req.Context(), claims.SessionID, supplied); err != nil {
				return err
			}

			// Validated activity stamps the session's last-seen time.
			// Best effort: a failed touch must not fail the request.
			_ = g.registry.Touch(req.Context(), claims.SessionID)

			return next(c)
		}
	}
}

// isSafeMethod returns true for HTTP methods that must not change state.
func isSafeMethod(method string) bool {
	return method == http.MethodGet ||
		method == http.MethodHead ||
		method == http.MethodOptions
}

// generateCSRFToken creates a cryptographically random hex-encoded token.
func generateCSRFToken() (string, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
