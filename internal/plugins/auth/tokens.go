package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/grantdesk/grantdesk/internal/config"
	"github.com/grantdesk/grantdesk/internal/plugins/ability"
)

// ErrInvalidToken is the uniform verification failure. Malformed tokens,
// bad signatures, wrong token kinds, and expired timestamps all collapse to
// this one error so callers cannot probe which check failed.
var ErrInvalidToken = errors.New("invalid token")

// AccessClaims is the signed claim set of a short-lived access token. The
// role set rides inside the token so authorization never touches the
// database on the request path; revocation therefore takes effect at the
// next issuance boundary, not instantly.
type AccessClaims struct {
	Email      string   `json:"email"`
	Roles      []string `json:"roles"`
	MinistryID string   `json:"mid,omitempty"`
	SessionID  string   `json:"sid"`
	jwt.RegisteredClaims
}

// AbilitySubject builds the ability subject from verified claims. Unknown
// role strings cannot appear here: roles are validated at user creation and
// the token is signature-verified, so a failed parse indicates a forged or
// cross-version token and yields an empty role set (denies everything).
func (c *AccessClaims) AbilitySubject() ability.Subject {
	roles, err := ability.ParseRoles(c.Roles)
	if err != nil {
		roles = nil
	}
	return ability.Subject{
		UserID:     c.UserID(),
		MinistryID: c.MinistryID,
		Roles:      roles,
	}
}

// UserID returns the user ID carried in the registered subject claim.
func (c *AccessClaims) UserID() string {
	return c.RegisteredClaims.Subject
}

// RefreshClaims is the signed claim set of a long-lived refresh token. It
// carries only the subject and the session it belongs to; everything else
// is re-loaded from the database at refresh time.
type RefreshClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies both token kinds. Two independent HS256
// secrets, one per kind: compromise of the refresh secret must not allow
// forging access tokens and vice versa. Purely functional over its secrets.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewTokenIssuer creates a token issuer from the auth configuration.
func NewTokenIssuer(cfg config.AuthConfig) *TokenIssuer {
	return &TokenIssuer{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
	}
}

// AccessTTL returns the configured access-token lifetime.
func (t *TokenIssuer) AccessTTL() time.Duration {
	return t.accessTTL
}

// RefreshTTL returns the configured refresh-token lifetime.
func (t *TokenIssuer) RefreshTTL() time.Duration {
	return t.refreshTTL
}

// MintAccess signs a new access token for the user bound to the given
// session. Returns the token and its expiry time.
func (t *TokenIssuer) MintAccess(user *User, sessionID string) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(t.accessTTL)

	claims := AccessClaims{
		Email:      user.Email,
		Roles:      ability.RoleStrings(user.Roles),
		MinistryID: user.MinistryID,
		SessionID:  sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.accessSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// MintRefresh signs a new refresh token for the user bound to the given
// session.
func (t *TokenIssuer) MintRefresh(userID, sessionID string) (string, error) {
	now := time.Now().UTC()

	claims := RefreshClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.refreshTTL)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.refreshSecret)
}

// VerifyAccess validates an access token's signature and expiry.
// Fails closed: every failure mode is reported as ErrInvalidToken.
func (t *TokenIssuer) VerifyAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := t.verify(token, claims, t.accessSecret); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyRefresh validates a refresh token's signature and expiry.
// Fails closed the same way VerifyAccess does.
func (t *TokenIssuer) VerifyRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := t.verify(token, claims, t.refreshSecret); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// verify parses with a pinned algorithm list so an attacker cannot downgrade
// to "none" or swap in an asymmetric method.
func (t *TokenIssuer) verify(token string, claims jwt.Claims, secret []byte) error {
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(tok *jwt.Token) (interface{}, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return err
	}
	if !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}
