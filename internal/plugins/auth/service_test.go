package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/grantdesk/grantdesk/internal/apperror"
	"github.com/grantdesk/grantdesk/internal/config"
	"github.com/grantdesk/grantdesk/internal/plugins/ability"
)

// --- Mock Repository ---

// mockUserRepo implements UserRepository for testing.
type mockUserRepo struct {
	createFn              func(ctx context.Context, user *User) error
	findByIDFn            func(ctx context.Context, id string) (*User, error)
	findByEmailFn         func(ctx context.Context, email string) (*User, error)
	identityExistsFn      func(ctx context.Context, email, username string) (bool, error)
	recordFailedAttemptFn func(ctx context.Context, id string, threshold int, lockUntil time.Time) (*LockoutState, error)
	resetLockoutFn        func(ctx context.Context, id string) error
	updatePasswordFn      func(ctx context.Context, id, passwordHash string, history []string) error
	setActiveFn           func(ctx context.Context, id string, active bool) error
}

func (m *mockUserRepo) Create(ctx context.Context, user *User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, apperror.NewNotFound("user not found")
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, apperror.NewNotFound("user not found")
}

func (m *mockUserRepo) IdentityExists(ctx context.Context, email, username string) (bool, error) {
	if m.identityExistsFn != nil {
		return m.identityExistsFn(ctx, email, username)
	}
	return false, nil
}

func (m *mockUserRepo) RecordFailedAttempt(ctx context.Context, id string, threshold int, lockUntil time.Time) (*LockoutState, error) {
	if m.recordFailedAttemptFn != nil {
		return m.recordFailedAttemptFn(ctx, id, threshold, lockUntil)
	}
	return &LockoutState{FailedAttempts: 1}, nil
}

func (m *mockUserRepo) ResetLockout(ctx context.Context, id string) error {
	if m.resetLockoutFn != nil {
		return m.resetLockoutFn(ctx, id)
	}
	return nil
}

func (m *mockUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string, history []string) error {
	if m.updatePasswordFn != nil {
		return m.updatePasswordFn(ctx, id, passwordHash, history)
	}
	return nil
}

func (m *mockUserRepo) SetActive(ctx context.Context, id string, active bool) error {
	if m.setActiveFn != nil {
		return m.setActiveFn(ctx, id, active)
	}
	return nil
}

// countingRepo wraps mockUserRepo with a stateful failure counter that
// behaves like the real atomic UPDATE: the lock engages when the
// post-increment count reaches the threshold.
type countingRepo struct {
	mockUserRepo
	attempts int
	resets   int
}

func newCountingRepo(user *User) *countingRepo {
	r := &countingRepo{}
	r.findByEmailFn = func(ctx context.Context, email string) (*User, error) {
		return user, nil
	}
	r.recordFailedAttemptFn = func(ctx context.Context, id string, threshold int, lockUntil time.Time) (*LockoutState, error) {
		r.attempts++
		state := &LockoutState{FailedAttempts: r.attempts}
		if r.attempts >= threshold {
			state.Locked = true
			state.LockUntil = &lockUntil
		}
		return state, nil
	}
	r.resetLockoutFn = func(ctx context.Context, id string) error {
		r.resets++
		r.attempts = 0
		return nil
	}
	return r
}

// --- Test Helpers ---

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		AccessSecret:     "test-access-secret-0123456789abcdef",
		RefreshSecret:    "test-refresh-secret-0123456789abcd",
		AccessTTL:        15 * time.Minute,
		RefreshTTL:       168 * time.Hour,
		SessionTTL:       time.Hour,
		LockoutThreshold: 5,
		LockoutDuration:  15 * time.Minute,
	}
}

// newTestService wires an authService against the mock repo and a
// miniredis-backed session registry.
func newTestService(t *testing.T, repo UserRepository) (*authService, *SessionRegistry) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := testAuthConfig()
	registry := NewSessionRegistry(rdb, cfg.SessionTTL)
	issuer := NewTokenIssuer(cfg)
	guard := NewCsrfGuard(registry)

	return NewAuthService(repo, registry, issuer, guard, cfg).(*authService), registry
}

// testUser creates a user whose password is the given plaintext.
func testUser(t *testing.T, password string) *User {
	t.Helper()
	hash, err := hashPassword(password)
	if err != nil {
		t.Fatalf("hashPassword failed: %v", err)
	}
	return &User{
		ID:           "user-123",
		Email:        "alice@ministry.example",
		Username:     "alice",
		MinistryID:   "ministry-1",
		PasswordHash: hash,
		Roles:        []ability.Role{ability.RoleApplicant},
		IsActive:     true,
	}
}

// assertAppError checks that err is an *apperror.AppError with the expected code.
func assertAppError(t *testing.T, err error, expectedCode int) *apperror.AppError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %d, got nil", expectedCode)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Code != expectedCode {
		t.Errorf("expected status %d, got %d (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
	return appErr
}

// --- Register Tests ---

func TestRegister_Success(t *testing.T) {
	var created *User
	repo := &mockUserRepo{
		createFn: func(ctx context.Context, user *User) error {
			created = user
			return nil
		},
	}

	svc, _ := newTestService(t, repo)
	user, err := svc.Register(context.Background(), RegisterInput{
		Email:      "  Alice@Ministry.Example  ",
		Username:   "alice",
		MinistryID: "ministry-1",
		Password:   "secure-password-123",
		Roles:      []string{"applicant"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID == "" {
		t.Error("expected user ID to be generated")
	}
	if created.Email != "alice@ministry.example" {
		t.Errorf("expected normalized email, got %s", created.Email)
	}
	if created.PasswordHash == "" || created.PasswordHash == "secure-password-123" {
		t.Error("expected password to be hashed")
	}
	if !created.IsActive {
		t.Error("expected new user to be active")
	}
}

func TestRegister_DuplicateIdentity(t *testing.T) {
	repo := &mockUserRepo{
		identityExistsFn: func(ctx context.Context, email, username string) (bool, error) {
			return true, nil
		},
	}

	svc, _ := newTestService(t, repo)
	_, err := svc.Register(context.Background(), RegisterInput{
		Email:    "taken@ministry.example",
		Username: "taken",
		Password: "secure-password-123",
		Roles:    []string{"applicant"},
	})
	assertAppError(t, err, 409)
}

func TestRegister_UnknownRole(t *testing.T) {
	svc, _ := newTestService(t, &mockUserRepo{})
	_, err := svc.Register(context.Background(), RegisterInput{
		Email:    "bob@ministry.example",
		Username: "bob",
		Password: "secure-password-123",
		Roles:    []string{"superuser"},
	})
	assertAppError(t, err, 422)
}

// --- Login Tests ---

func TestLogin_Success(t *testing.T) {
	user := testUser(t, "correct-horse-battery")
	repo := newCountingRepo(user)

	svc, registry := newTestService(t, repo)
	result, err := svc.Login(context.Background(), LoginInput{
		Email:    user.Email,
		Password: "correct-horse-battery",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AccessToken == "" || result.RefreshToken == "" || result.CSRFToken == "" {
		t.Error("expected all three credentials to be issued")
	}
	if repo.resets != 1 {
		t.Errorf("expected lockout reset on success, got %d resets", repo.resets)
	}

	// The session backing the tokens must exist in the registry.
	session, err := registry.Get(context.Background(), result.SessionID)
	if err != nil {
		t.Fatalf("expected session to exist: %v", err)
	}
	if session.UserID != user.ID {
		t.Errorf("expected session owner %s, got %s", user.ID, session.UserID)
	}
}

func TestLogin_UnknownEmail(t *testing.T) {
	svc, _ := newTestService(t, &mockUserRepo{})
	err := func() error {
		_, err := svc.Login(context.Background(), LoginInput{
			Email:    "nobody@ministry.example",
			Password: "whatever",
		})
		return err
	}()
	appErr := assertAppError(t, err, 401)
	if appErr.Type != "invalid_credentials" {
		t.Errorf("expected invalid_credentials, got %s", appErr.Type)
	}
}

func TestLogin_InactiveAccount(t *testing.T) {
	user := testUser(t, "correct-horse-battery")
	user.IsActive = false
	repo := newCountingRepo(user)

	svc, _ := newTestService(t, repo)
	_, err := svc.Login(context.Background(), LoginInput{
		Email:    user.Email,
		Password: "correct-horse-battery",
	})
	assertAppError(t, err, 401)
}

func TestLogin_WrongPasswordBelowThreshold(t *testing.T) {
	user := testUser(t, "correct-horse-battery")
	repo := newCountingRepo(user)

	svc, _ := newTestService(t, repo)
	for i := 0; i < 4; i++ {
		_, err := svc.Login(context.Background(), LoginInput{
			Email:    user.Email,
			Password: "wrong-password",
		})
		appErr := assertAppError(t, err, 401)
		if appErr.Type != "invalid_credentials" {
			t.Errorf("attempt %d: expected invalid_credentials, got %s", i+1, appErr.Type)
		}
	}
	if repo.attempts != 4 {
		t.Errorf("expected 4 recorded attempts, got %d", repo.attempts)
	}
}

func TestLogin_LockEngagesAtThreshold(t *testing.T) {
	user := testUser(t, "correct-horse-battery")
	repo := newCountingRepo(user)

	svc, _ := newTestService(t, repo)
	var lastErr error
	for i := 0; i < 5; i++ {
		_, lastErr = svc.Login(context.Background(), LoginInput{
			Email:    user.Email,
			Password: "wrong-password",
		})
	}

	// The fifth failure crosses the threshold and must answer 423, not 401.
	appErr := assertAppError(t, lastErr, 423)
	if appErr.Type != "account_locked" {
		t.Errorf("expected account_locked, got %s", appErr.Type)
	}
	if appErr.LockedUntil == nil {
		t.Fatal("expected locked_until to be populated")
	}
	if until := time.Until(*appErr.LockedUntil); until < 14*time.Minute || until > 16*time.Minute {
		t.Errorf("expected lock expiry ~15m out, got %v", until)
	}
}

func TestLogin_LockedAccountRejectsCorrectPassword(t *testing.T) {
	user := testUser(t, "correct-horse-battery")
	until := time.Now().Add(10 * time.Minute)
	user.IsLocked = true
	user.LockUntil = &until
	repo := newCountingRepo(user)

	svc, _ := newTestService(t, repo)
	_, err := svc.Login(context.Background(), LoginInput{
		Email:    user.Email,
		Password: "correct-horse-battery",
	})
	assertAppError(t, err, 423)

	// The lock gate runs first: no failure is recorded for locked attempts.
	if repo.attempts != 0 {
		t.Errorf("expected no recorded attempts while locked, got %d", repo.attempts)
	}
}

func TestLogin_LapsedLockUnlocksLazily(t *testing.T) {
	user := testUser(t, "correct-horse-battery")
	until := time.Now().Add(-time.Minute)
	user.IsLocked = true
	user.LockUntil = &until
	user.FailedAttempts = 5
	repo := newCountingRepo(user)

	svc, _ := newTestService(t, repo)
	result, err := svc.Login(context.Background(), LoginInput{
		Email:    user.Email,
		Password: "correct-horse-battery",
	})
	if err != nil {
		t.Fatalf("expected lapsed lock to admit correct password, got: %v", err)
	}
	if result.AccessToken == "" {
		t.Error("expected access token after lazy unlock")
	}
	if repo.resets != 1 {
		t.Error("expected lockout state to be cleared on success")
	}
}

// --- Refresh Tests ---

func TestRefresh_Success(t *testing.T) {
	user := testUser(t, "correct-horse-battery")
	repo := newCountingRepo(user)
	repo.findByIDFn = func(ctx context.Context, id string) (*User, error) {
		return user, nil
	}

	svc, registry := newTestService(t, repo)
	login, err := svc.Login(context.Background(), LoginInput{
		Email:    user.Email,
		Password: "correct-horse-battery",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	result, err := svc.Refresh(context.Background(), login.RefreshToken)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AccessToken == "" {
		t.Error("expected fresh access token")
	}
	if result.CSRFToken == login.CSRFToken {
		t.Error("expected CSRF token to rotate on refresh")
	}

	// Rotation invalidates the login-time CSRF token.
	session, err := registry.Get(context.Background(), login.SessionID)
	if err != nil {
		t.Fatalf("session lookup failed: %v", err)
	}
	if session.CSRFSecret != result.CSRFToken {
		t.Error("expected stored CSRF secret to match the rotated token")
	}
}

func TestRefresh_EmptyToken(t *testing.T) {
	svc, _ := newTestService(t, &mockUserRepo{})
	_, err := svc.Refresh(context.Background(), "")
	assertAppError(t, err, 401)
}

func TestRefresh_AccessTokenRejected(t *testing.T) {
	user := testUser(t, "correct-horse-battery")
	repo := newCountingRepo(user)

	svc, _ := newTestService(t, repo)
	login, err := svc.Login(context.Background(), LoginInput{
		Email:    user.Email,
		Password: "correct-horse-battery",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	// An access token is signed with a different secret; it must never pass
	// refresh verification.
	_, err = svc.Refresh(context.Background(), login.AccessToken)
	assertAppError(t, err, 401)
}

func TestRefresh_DestroyedSession(t *testing.T) {
	user := testUser(t, "correct-horse-battery")
	repo := newCountingRepo(user)
	repo.findByIDFn = func(ctx context.Context, id string) (*User, error) {
		return user, nil
	}

	svc, _ := newTestService(t, repo)
	login, err := svc.Login(context.Background(), LoginInput{
		Email:    user.Email,
		Password: "correct-horse-battery",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := svc.Logout(context.Background(), login.SessionID); err != nil {
		t.Fatalf("logout failed: %v", err)
	}

	// The refresh token is still cryptographically valid, but its session
	// is gone.
	_, err = svc.Refresh(context.Background(), login.RefreshToken)
	appErr := assertAppError(t, err, 401)
	if appErr.Type != "refresh_unavailable" {
		t.Errorf("expected refresh_unavailable, got %s", appErr.Type)
	}
}

// --- Logout Tests ---

func TestLogout_Idempotent(t *testing.T) {
	svc, _ := newTestService(t, &mockUserRepo{})

	if err := svc.Logout(context.Background(), "never-existed"); err != nil {
		t.Errorf("expected logout of unknown session to succeed, got: %v", err)
	}
	if err := svc.Logout(context.Background(), ""); err != nil {
		t.Errorf("expected logout with empty session to succeed, got: %v", err)
	}
}

func TestLogoutAll_DestroysEverySession(t *testing.T) {
	user := testUser(t, "correct-horse-battery")
	repo := newCountingRepo(user)

	svc, registry := newTestService(t, repo)
	var sessionIDs []string
	for i := 0; i < 3; i++ {
		login, err := svc.Login(context.Background(), LoginInput{
			Email:    user.Email,
			Password: "correct-horse-battery",
		})
		if err != nil {
			t.Fatalf("login %d failed: %v", i, err)
		}
		sessionIDs = append(sessionIDs, login.SessionID)
	}

	n, err := svc.LogoutAll(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 destroyed sessions, got %d", n)
	}
	for _, id := range sessionIDs {
		if _, err := registry.Get(context.Background(), id); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("expected session %s to be gone, got err=%v", id, err)
		}
	}
}

// --- SetUserActive Tests ---

func TestSetUserActive_DeactivateDestroysSessions(t *testing.T) {
	user := testUser(t, "correct-horse-battery")
	repo := newCountingRepo(user)

	var flaggedID string
	var flaggedActive = true
	repo.setActiveFn = func(ctx context.Context, id string, active bool) error {
		flaggedID, flaggedActive = id, active
		return nil
	}

	svc, registry := newTestService(t, repo)
	login, err := svc.Login(context.Background(), LoginInput{
		Email:    user.Email,
		Password: "correct-horse-battery",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := svc.SetUserActive(context.Background(), user.ID, false); err != nil {
		t.Fatalf("SetUserActive failed: %v", err)
	}
	if flaggedID != user.ID || flaggedActive {
		t.Errorf("expected repo to flag %s inactive, got id=%s active=%v", user.ID, flaggedID, flaggedActive)
	}
	if _, err := registry.Get(context.Background(), login.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected deactivation to destroy the session, got err=%v", err)
	}
}

func TestSetUserActive_ReactivateKeepsSessions(t *testing.T) {
	user := testUser(t, "correct-horse-battery")
	repo := newCountingRepo(user)
	repo.setActiveFn = func(ctx context.Context, id string, active bool) error {
		return nil
	}

	svc, registry := newTestService(t, repo)
	login, err := svc.Login(context.Background(), LoginInput{
		Email:    user.Email,
		Password: "correct-horse-battery",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := svc.SetUserActive(context.Background(), user.ID, true); err != nil {
		t.Fatalf("SetUserActive failed: %v", err)
	}
	if _, err := registry.Get(context.Background(), login.SessionID); err != nil {
		t.Errorf("expected reactivation to leave sessions alone, got err=%v", err)
	}
}

func TestSetUserActive_UnknownUser(t *testing.T) {
	repo := &mockUserRepo{
		setActiveFn: func(ctx context.Context, id string, active bool) error {
			return apperror.NewNotFound("user not found")
		},
	}
	svc, _ := newTestService(t, repo)

	err := svc.SetUserActive(context.Background(), "nobody", false)
	assertAppError(t, err, 404)
}

// --- ChangePassword Tests ---

func TestChangePassword_Success(t *testing.T) {
	user := testUser(t, "old-password-12345")
	oldHash := user.PasswordHash

	var savedHash string
	var savedHistory []string
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*User, error) {
			return user, nil
		},
		updatePasswordFn: func(ctx context.Context, id, passwordHash string, history []string) error {
			savedHash = passwordHash
			savedHistory = history
			return nil
		},
	}

	svc, _ := newTestService(t, repo)
	err := svc.ChangePassword(context.Background(), user.ID, "old-password-12345", "new-password-67890")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !verifyPassword("new-password-67890", savedHash) {
		t.Error("expected new password to verify against saved hash")
	}
	if len(savedHistory) != 1 || savedHistory[0] != oldHash {
		t.Error("expected displaced hash at the head of the history")
	}
}

func TestChangePassword_WrongCurrent(t *testing.T) {
	user := testUser(t, "old-password-12345")
	var attempts int
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*User, error) {
			return user, nil
		},
		recordFailedAttemptFn: func(ctx context.Context, id string, threshold int, lockUntil time.Time) (*LockoutState, error) {
			attempts++
			return &LockoutState{FailedAttempts: attempts}, nil
		},
	}

	svc, _ := newTestService(t, repo)
	err := svc.ChangePassword(context.Background(), user.ID, "not-the-password", "new-password-67890")
	assertAppError(t, err, 401)

	// A failed change-password never feeds the login lockout tracker.
	if attempts != 0 {
		t.Errorf("expected no lockout attempts recorded, got %d", attempts)
	}
}

func TestChangePassword_RejectsCurrentReuse(t *testing.T) {
	user := testUser(t, "same-password-12345")
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*User, error) {
			return user, nil
		},
	}

	svc, _ := newTestService(t, repo)
	err := svc.ChangePassword(context.Background(), user.ID, "same-password-12345", "same-password-12345")
	assertAppError(t, err, 422)
}

func TestChangePassword_RejectsHistoryReuse(t *testing.T) {
	user := testUser(t, "current-password-123")
	historic, err := hashPassword("retired-password-456")
	if err != nil {
		t.Fatalf("hashPassword failed: %v", err)
	}
	user.PasswordHistory = []string{historic}

	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*User, error) {
			return user, nil
		},
	}

	svc, _ := newTestService(t, repo)
	err = svc.ChangePassword(context.Background(), user.ID, "current-password-123", "retired-password-456")
	assertAppError(t, err, 422)
}

func TestChangePassword_HistoryIsBounded(t *testing.T) {
	user := testUser(t, "current-password-123")
	oldHash := user.PasswordHash
	for i := 0; i < passwordHistorySize; i++ {
		h, err := hashPassword("filler" + string(rune('a'+i)) + "-password-long")
		if err != nil {
			t.Fatalf("hashPassword failed: %v", err)
		}
		user.PasswordHistory = append(user.PasswordHistory, h)
	}
	oldestHash := user.PasswordHistory[passwordHistorySize-1]

	var savedHistory []string
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*User, error) {
			return user, nil
		},
		updatePasswordFn: func(ctx context.Context, id, passwordHash string, history []string) error {
			savedHistory = history
			return nil
		},
	}

	svc, _ := newTestService(t, repo)
	if err := svc.ChangePassword(context.Background(), user.ID, "current-password-123", "brand-new-password-9"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(savedHistory) != passwordHistorySize {
		t.Fatalf("expected history capped at %d, got %d", passwordHistorySize, len(savedHistory))
	}
	if savedHistory[0] != oldHash {
		t.Error("expected displaced hash at the head of the history")
	}
	for _, h := range savedHistory {
		if h == oldestHash {
			t.Error("expected the oldest hash to be evicted")
		}
	}
}

// --- Password Hashing Tests ---

func TestHashAndVerifyPassword(t *testing.T) {
	password := "my-secret-password-123"

	hash, err := hashPassword(password)
	if err != nil {
		t.Fatalf("hashPassword failed: %v", err)
	}
	if hash == "" {
		t.Fatal("expected non-empty hash")
	}

	// Correct password should verify.
	if !verifyPassword(password, hash) {
		t.Error("expected correct password to verify")
	}

	// Wrong password should not verify.
	if verifyPassword("wrong-password", hash) {
		t.Error("expected wrong password to fail verification")
	}
}

func TestVerifyPassword_InvalidHash(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"empty string", ""},
		{"random text", "not-a-hash"},
		{"too few parts", "$argon2id$v=19$m=65536"},
		{"corrupted salt", "$argon2id$v=19$m=65536,t=3,p=4$!!!invalid$aGFzaA"},
		{"corrupted hash", "$argon2id$v=19$m=65536,t=3,p=4$c2FsdA$!!!invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if verifyPassword("password", tt.hash) {
				t.Error("expected invalid hash to fail verification")
			}
		})
	}
}

func TestHashPassword_UniqueSalts(t *testing.T) {
	hash1, err := hashPassword("same-password")
	if err != nil {
		t.Fatalf("hashPassword failed: %v", err)
	}
	hash2, err := hashPassword("same-password")
	if err != nil {
		t.Fatalf("hashPassword failed: %v", err)
	}
	if hash1 == hash2 {
		t.Error("expected different salts to produce different hashes")
	}
}
