// Package auth implements the authentication and session-lifecycle protocol
// for GrantDesk: short-lived JWT access tokens, long-lived refresh tokens
// carried in a protected cookie, Redis-backed sessions holding a rotating
// CSRF secret, and a per-account brute-force lockout state machine.
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package auth

import (
	"time"

	"github.com/grantdesk/grantdesk/internal/plugins/ability"
)

// passwordHistorySize bounds the stored previous-hash history. A password
// change is rejected when the candidate matches the current hash or any of
// the last passwordHistorySize hashes; the oldest entry is evicted first.
const passwordHistorySize = 5

// User represents a registered GrantDesk user. This is the domain model used
// throughout the application. Database scanning and JSON marshaling use this
// struct directly.
type User struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Username   string `json:"username"`
	MinistryID string `json:"ministry_id"`

	PasswordHash string `json:"-"` // Never expose in JSON responses.

	// PasswordHistory holds the previous argon2id hashes, newest first,
	// bounded at passwordHistorySize. Never exposed.
	PasswordHistory []string `json:"-"`

	// Roles is the non-empty, additive role set, validated against the
	// closed enumeration at creation/update time.
	Roles []ability.Role `json:"roles"`

	IsActive bool `json:"is_active"`

	// Lockout fields. Invariant: IsLocked implies LockUntil is set; once
	// LockUntil passes the account is logically unlocked at read time
	// (lazy unlock), even before the flag is cleared by a successful login.
	IsLocked       bool       `json:"-"`
	LockUntil      *time.Time `json:"-"`
	FailedAttempts int        `json:"-"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// LockedNow reports whether the account is currently locked. A LockUntil in
// the past means the lock has lapsed regardless of the stored flag; no
// background sweep ever clears the fields.
func (u *User) LockedNow(now time.Time) bool {
	return u.IsLocked && u.LockUntil != nil && u.LockUntil.After(now)
}

// Subject builds the ability subject for this user's verified identity.
func (u *User) Subject() ability.Subject {
	return ability.Subject{
		UserID:     u.ID,
		MinistryID: u.MinistryID,
		Roles:      u.Roles,
	}
}

// LockoutState is the post-update view returned by the atomic failed-attempt
// recorder: how many consecutive failures the account has and whether that
// update crossed the lock threshold.
type LockoutState struct {
	FailedAttempts int
	Locked         bool
	LockUntil      *time.Time
}

// Session is an authenticated session document stored in Redis, keyed by its
// opaque ID. It carries at most one CSRF secret at a time; rotation
// overwrites the value in a full-document replace.
type Session struct {
	ID     string `json:"id"`
	UserID string `json:"user_id,omitempty"` // empty until login completes

	// CSRFSecret is the server-side authoritative copy of the anti-forgery
	// token. Never serialized to clients; they receive it once via header.
	CSRFSecret string `json:"csrf_secret"`

	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// PublicSession is the client-visible view of a session, returned by the
// session-listing endpoint. The CSRF secret stays server-side.
type PublicSession struct {
	ID         string    `json:"id"`
	IP         string    `json:"ip,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// Public strips the server-only fields for API responses.
func (s *Session) Public() PublicSession {
	return PublicSession{
		ID:         s.ID,
		IP:         s.IP,
		UserAgent:  s.UserAgent,
		CreatedAt:  s.CreatedAt,
		LastSeenAt: s.LastSeenAt,
	}
}

// --- Request DTOs (bound from HTTP requests) ---

// RegisterRequest holds the data submitted to POST /auth/register.
type RegisterRequest struct {
	Email      string   `json:"email"`
	Username   string   `json:"username"`
	MinistryID string   `json:"ministry_id"`
	Password   string   `json:"password"`
	Roles      []string `json:"roles"`
}

// LoginRequest holds the data submitted to POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ChangePasswordRequest holds the data submitted to POST /auth/change-password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// SetActiveRequest holds the data submitted to PUT /auth/users/:id/active.
// Active is a pointer so an absent field is rejected instead of silently
// deactivating.
type SetActiveRequest struct {
	Active *bool `json:"active"`
}

// --- Service Input DTOs (passed from handler to service) ---

// RegisterInput is the validated input for creating a new user.
type RegisterInput struct {
	Email      string
	Username   string
	MinistryID string
	Password   string
	Roles      []string
}

// LoginInput is the validated input for authenticating a user.
type LoginInput struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
}

// --- Service results ---

// LoginResult carries everything the login handler needs to assemble the
// response: access token in the body, refresh token in the protected cookie,
// CSRF token in the response header.
type LoginResult struct {
	User         *User
	AccessToken  string
	ExpiresIn    int64 // seconds until the access token expires
	RefreshToken string
	CSRFToken    string
	SessionID    string
}

// RefreshResult carries the newly minted access token and the rotated CSRF
// token. The refresh token itself is not rotated (see DESIGN.md).
type RefreshResult struct {
	AccessToken string
	ExpiresIn   int64
	CSRFToken   string
}
