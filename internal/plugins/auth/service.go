package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"

	"github.com/grantdesk/grantdesk/internal/apperror"
	"github.com/grantdesk/grantdesk/internal/config"
	"github.com/grantdesk/grantdesk/internal/plugins/ability"
)

// argon2id parameters following OWASP recommendations for argon2id:
// memory=64MB, iterations=3, parallelism=4. Tuned for an application server
// with a few CPU cores; raising memory hurts login throughput before it
// helps security.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // 64 MB in KiB
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// AuthService defines the business logic contract for authentication.
// Handlers call these methods -- they never touch the repository, registry,
// or token issuer directly.
type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*User, error)
	Login(ctx context.Context, input LoginInput) (*LoginResult, error)

	// Refresh mints a new access token from a refresh token alone. The old
	// access token is not required and may already be expired -- that is
	// the entire point of the refresh flow.
	Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error)

	Logout(ctx context.Context, sessionID string) error
	LogoutAll(ctx context.Context, userID string) (int, error)
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error

	// SetUserActive flips an account's active flag. Deactivation also
	// destroys the account's live sessions, so refresh and CSRF die
	// immediately rather than at the next user load.
	SetUserActive(ctx context.Context, userID string, active bool) error

	Profile(ctx context.Context, userID string) (*User, error)
	Sessions(ctx context.Context, userID string) ([]Session, error)
	CSRFToken(ctx context.Context, sessionID string) (string, error)

	// VerifyAccess validates an access token for the request middleware.
	VerifyAccess(token string) (*AccessClaims, error)
}

// Security event names emitted through the EventRecorder.
const (
	eventLoginSuccess       = "login.success"
	eventLoginFailed        = "login.failed"
	eventAccountLocked      = "account.locked"
	eventLogout             = "logout"
	eventLogoutAll          = "logout.all"
	eventPasswordChanged    = "password.changed"
	eventAccountDeactivated = "account.deactivated"
)

// EventRecorder receives security events emitted by the auth service.
// Implementations must not block: recording happens inline on the request
// path and a slow recorder slows every login.
type EventRecorder interface {
	Record(ctx context.Context, eventType, userID, ip, userAgent string, details map[string]any)
}

// authService implements AuthService with argon2id hashing, JWT tokens, and
// Redis-backed sessions.
type authService struct {
	repo     UserRepository
	registry *SessionRegistry
	issuer   *TokenIssuer
	guard    *CsrfGuard
	events   EventRecorder

	lockoutThreshold int
	lockoutDuration  time.Duration
}

// NewAuthService creates a new auth service with the given dependencies.
func NewAuthService(repo UserRepository, registry *SessionRegistry, issuer *TokenIssuer, guard *CsrfGuard, cfg config.AuthConfig) AuthService {
	return &authService{
		repo:             repo,
		registry:         registry,
		issuer:           issuer,
		guard:            guard,
		lockoutThreshold: cfg.LockoutThreshold,
		lockoutDuration:  cfg.LockoutDuration,
	}
}

// ConfigureEventRecorder attaches a security event recorder to the service.
// Called after construction to break the dependency knot between the auth
// and audit plugins. A nil recorder disables event recording.
func ConfigureEventRecorder(svc AuthService, rec EventRecorder) {
	if s, ok := svc.(*authService); ok {
		s.events = rec
	}
}

// record forwards a security event to the configured recorder, if any.
func (s *authService) record(ctx context.Context, eventType, userID, ip, userAgent string, details map[string]any) {
	if s.events == nil {
		return
	}
	s.events.Record(ctx, eventType, userID, ip, userAgent, details)
}

// Register creates a new user account. It validates the role set against the
// closed enumeration, checks identity uniqueness, hashes the password with
// argon2id, and persists the user.
func (s *authService) Register(ctx context.Context, input RegisterInput) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	username := strings.TrimSpace(input.Username)

	roles, err := ability.ParseRoles(input.Roles)
	if err != nil {
		return nil, apperror.NewValidation(err.Error())
	}

	// Check uniqueness before doing expensive hashing.
	exists, err := s.repo.IdentityExists(ctx, email, username)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("checking identity: %w", err))
	}
	if exists {
		return nil, apperror.NewConflict("an account with this email or username already exists")
	}

	hash, err := hashPassword(input.Password)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	now := time.Now().UTC()
	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		MinistryID:   strings.TrimSpace(input.MinistryID),
		PasswordHash: hash,
		Roles:        roles,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("creating user: %w", err))
	}

	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
		slog.String("ministry_id", user.MinistryID),
	)
	return user, nil
}

// Login authenticates a user by email and password.
//
// Ordering matters: the lockout gate runs BEFORE the password check, so a
// locked account never burns argon2 work and never leaks whether the
// password was right. An unknown email gets the same uniform answer as a
// wrong password; the locked status is only distinguishable once the email
// is known to map to an existing account.
func (s *authService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(input.Email)))
	if err != nil {
		if apperror.IsType(err, "not_found") {
			return nil, apperror.NewInvalidCredentials()
		}
		return nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	if !user.IsActive {
		return nil, apperror.NewAccountInactive()
	}

	now := time.Now().UTC()
	if user.LockedNow(now) {
		return nil, apperror.NewAccountLocked(*user.LockUntil)
	}

	if !verifyPassword(input.Password, user.PasswordHash) {
		state, recErr := s.repo.RecordFailedAttempt(ctx, user.ID, s.lockoutThreshold, now.Add(s.lockoutDuration))
		if recErr != nil {
			return nil, apperror.NewInternal(fmt.Errorf("recording failed attempt: %w", recErr))
		}
		if state.Locked && state.LockUntil != nil {
			slog.Warn("account locked after repeated failures",
				slog.String("user_id", user.ID),
				slog.Int("failed_attempts", state.FailedAttempts),
				slog.Time("lock_until", *state.LockUntil),
			)
			s.record(ctx, eventAccountLocked, user.ID, input.IP, input.UserAgent, map[string]any{
				"failed_attempts": state.FailedAttempts,
				"lock_until":      state.LockUntil,
			})
			return nil, apperror.NewAccountLocked(*state.LockUntil)
		}
		s.record(ctx, eventLoginFailed, user.ID, input.IP, input.UserAgent, map[string]any{
			"failed_attempts": state.FailedAttempts,
		})
		return nil, apperror.NewInvalidCredentials()
	}

	// Success clears the lockout state unconditionally, whatever it was.
	if err := s.repo.ResetLockout(ctx, user.ID); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("resetting lockout: %w", err))
	}

	session, err := s.registry.Create(ctx, user.ID, input.IP, input.UserAgent)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("creating session: %w", err))
	}

	csrfToken, err := s.guard.Issue(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	accessToken, expiresAt, err := s.issuer.MintAccess(user, session.ID)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("minting access token: %w", err))
	}
	refreshToken, err := s.issuer.MintRefresh(user.ID, session.ID)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("minting refresh token: %w", err))
	}

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("session_id", session.ID),
	)
	s.record(ctx, eventLoginSuccess, user.ID, input.IP, input.UserAgent, map[string]any{
		"session_id": session.ID,
	})

	return &LoginResult{
		User:         user,
		AccessToken:  accessToken,
		ExpiresIn:    int64(time.Until(expiresAt).Seconds()),
		RefreshToken: refreshToken,
		CSRFToken:    csrfToken,
		SessionID:    session.ID,
	}, nil
}

// Refresh verifies the refresh token, re-loads the user (a deleted or
// deactivated account implicitly invalidates every outstanding refresh
// token), mints a fresh access token, and rotates the CSRF token. The
// session must still exist: logout kills refresh for that session even
// though the refresh token itself is not individually revocable.
func (s *authService) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if refreshToken == "" {
		return nil, apperror.NewRefreshUnavailable()
	}

	claims, err := s.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, apperror.NewRefreshUnavailable()
	}

	user, err := s.repo.FindByID(ctx, claims.Subject)
	if err != nil {
		if apperror.IsType(err, "not_found") {
			return nil, apperror.NewRefreshUnavailable()
		}
		return nil, apperror.NewInternal(fmt.Errorf("loading user: %w", err))
	}
	if !user.IsActive {
		return nil, apperror.NewAccountInactive()
	}

	if _, err := s.registry.Get(ctx, claims.SessionID); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, apperror.NewRefreshUnavailable()
		}
		return nil, apperror.NewInternal(fmt.Errorf("loading session: %w", err))
	}

	// Rotation: the old CSRF token dies the instant the new one is written.
	csrfToken, err := s.guard.Issue(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}

	accessToken, expiresAt, err := s.issuer.MintAccess(user, claims.SessionID)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("minting access token: %w", err))
	}

	return &RefreshResult{
		AccessToken: accessToken,
		ExpiresIn:   int64(time.Until(expiresAt).Seconds()),
		CSRFToken:   csrfToken,
	}, nil
}

// Logout destroys the session. Idempotent: logging out twice is not an
// error. The caller clears the refresh cookie regardless.
func (s *authService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	// Load the session first so the event can name the account; a session
	// that is already gone still counts as a successful logout.
	var userID string
	if session, err := s.registry.Get(ctx, sessionID); err == nil {
		userID = session.UserID
	}

	if err := s.registry.Destroy(ctx, sessionID); err != nil {
		return apperror.NewInternal(fmt.Errorf("destroying session: %w", err))
	}
	if userID != "" {
		s.record(ctx, eventLogout, userID, "", "", map[string]any{
			"session_id": sessionID,
		})
	}
	return nil
}

// LogoutAll destroys every session owned by the user. Outstanding access
// tokens are stateless and stay valid until their own expiry; full effect is
// reached one access-token lifetime after this call.
func (s *authService) LogoutAll(ctx context.Context, userID string) (int, error) {
	n, err := s.registry.DestroyAllForUser(ctx, userID)
	if err != nil {
		return n, apperror.NewInternal(fmt.Errorf("destroying sessions: %w", err))
	}
	slog.Info("all sessions destroyed",
		slog.String("user_id", userID),
		slog.Int("count", n),
	)
	s.record(ctx, eventLogoutAll, userID, "", "", map[string]any{
		"sessions": n,
	})
	return n, nil
}

// ChangePassword verifies the current password, rejects reuse of the
// current hash or any of the bounded history, and persists the new hash
// with the old one pushed onto the history (oldest evicted).
//
// A wrong current password here does NOT feed the lockout tracker: the
// caller already holds a valid access token, so this is not a brute-force
// surface the way login is.
func (s *authService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if apperror.IsType(err, "not_found") {
			return apperror.NewInvalidCredentials()
		}
		return apperror.NewInternal(fmt.Errorf("loading user: %w", err))
	}

	if !verifyPassword(currentPassword, user.PasswordHash) {
		return apperror.NewInvalidCredentials()
	}

	if verifyPassword(newPassword, user.PasswordHash) {
		return apperror.NewValidation("new password must differ from the current password")
	}
	for _, old := range user.PasswordHistory {
		if verifyPassword(newPassword, old) {
			return apperror.NewValidation("new password was used recently and cannot be reused")
		}
	}

	hash, err := hashPassword(newPassword)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	// Newest first; evict beyond the bounded size.
	history := append([]string{user.PasswordHash}, user.PasswordHistory...)
	if len(history) > passwordHistorySize {
		history = history[:passwordHistorySize]
	}

	if err := s.repo.UpdatePassword(ctx, userID, hash, history); err != nil {
		return apperror.NewInternal(fmt.Errorf("updating password: %w", err))
	}

	slog.Info("password changed", slog.String("user_id", userID))
	s.record(ctx, eventPasswordChanged, userID, "", "", nil)
	return nil
}

// SetUserActive flips the account's active flag. Deactivating destroys the
// user's live sessions on top of the flag: refresh re-loads the user and
// would reject anyway, but killing the sessions cuts off CSRF and refresh
// immediately instead of one user-load later.
func (s *authService) SetUserActive(ctx context.Context, userID string, active bool) error {
	if err := s.repo.SetActive(ctx, userID, active); err != nil {
		if apperror.IsType(err, "not_found") {
			return err
		}
		return apperror.NewInternal(fmt.Errorf("updating active flag: %w", err))
	}

	if !active {
		n, err := s.registry.DestroyAllForUser(ctx, userID)
		if err != nil {
			return apperror.NewInternal(fmt.Errorf("destroying sessions: %w", err))
		}
		slog.Info("account deactivated",
			slog.String("user_id", userID),
			slog.Int("sessions_destroyed", n),
		)
		s.record(ctx, eventAccountDeactivated, userID, "", "", map[string]any{
			"sessions": n,
		})
	}
	return nil
}

// Profile returns the user's record for the who-am-I endpoint.
func (s *authService) Profile(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if apperror.IsType(err, "not_found") {
			return nil, apperror.NewUnauthorized("account no longer exists")
		}
		return nil, apperror.NewInternal(fmt.Errorf("loading user: %w", err))
	}
	return user, nil
}

// Sessions lists the user's live sessions.
func (s *authService) Sessions(ctx context.Context, userID string) ([]Session, error) {
	sessions, err := s.registry.ListForUser(ctx, userID)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing sessions: %w", err))
	}
	return sessions, nil
}

// CSRFToken returns the session's current anti-forgery token.
func (s *authService) CSRFToken(ctx context.Context, sessionID string) (string, error) {
	return s.guard.Current(ctx, sessionID)
}

// VerifyAccess validates an access token for the request middleware.
func (s *authService) VerifyAccess(token string) (*AccessClaims, error) {
	return s.issuer.VerifyAccess(token)
}

// --- Password Hashing (argon2id) ---

// hashPassword creates an argon2id hash of the given password. The output
// format is: $argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>
// This format is compatible with most argon2 libraries and allows self-
// contained verification without separate salt storage.
func hashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	// Encode to the standard PHC string format.
	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads, b64Salt, b64Hash)

	return encoded, nil
}

// verifyPassword checks a plaintext password against an argon2id hash string.
// Returns true if the password matches.
func verifyPassword(password, encodedHash string) bool {
	// Parse the encoded hash to extract parameters, salt, and hash.
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false
	}

	var memory uint32
	var iterations uint32
	var parallelism uint8
	_, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism)
	if err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}

	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	// Compute the hash of the provided password with the same parameters.
	computedHash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expectedHash)))

	// Constant-time comparison to prevent timing attacks.
	return subtle.ConstantTimeCompare(expectedHash, computedHash) == 1
}
