package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/grantdesk/grantdesk/internal/apperror"
	"github.com/grantdesk/grantdesk/internal/plugins/ability"
)

// UserRepository defines the data access contract for user and lockout
// operations. All SQL lives in the concrete implementation -- no SQL leaks out.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	IdentityExists(ctx context.Context, email, username string) (bool, error)

	// RecordFailedAttempt increments the failure counter and, when the
	// post-increment count reaches threshold, sets the lock fields -- all
	// in one atomic statement. lockUntil is the lock expiry to store if
	// this attempt crosses the threshold.
	RecordFailedAttempt(ctx context.Context, id string, threshold int, lockUntil time.Time) (*LockoutState, error)

	// ResetLockout clears the failure counter and lock fields and stamps
	// the last-login time. Called on every successful authentication.
	ResetLockout(ctx context.Context, id string) error

	// UpdatePassword replaces the hash and the bounded previous-hash history.
	UpdatePassword(ctx context.Context, id, passwordHash string, history []string) error

	SetActive(ctx context.Context, id string, active bool) error
}

// userRepository implements UserRepository with hand-written MariaDB queries.
type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository backed by the given DB pool.
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, email, username, ministry_id, password_hash, password_history,
	roles, is_active, is_locked, lock_until, failed_attempts,
	created_at, updated_at, last_login_at`

// Create inserts a new user row into the users table.
func (r *userRepository) Create(ctx context.Context, user *User) error {
	rolesJSON, err := json.Marshal(ability.RoleStrings(user.Roles))
	if err != nil {
		return fmt.Errorf("marshaling roles: %w", err)
	}
	historyJSON, err := json.Marshal(user.PasswordHistory)
	if err != nil {
		return fmt.Errorf("marshaling password history: %w", err)
	}

	query := `INSERT INTO users (id, email, username, ministry_id, password_hash,
	          password_history, roles, is_active, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.Username,
		user.MinistryID,
		user.PasswordHash,
		historyJSON,
		rolesJSON,
		user.IsActive,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// FindByID retrieves a user by their UUID.
// Returns apperror.NotFound if no user exists with this ID.
func (r *userRepository) FindByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

// FindByEmail retrieves a user by their email address.
// Returns apperror.NotFound if no user exists with this email.
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	return r.scanUser(r.db.QueryRowContext(ctx, query, email))
}

// IdentityExists returns true if a user with the given email or username
// already exists. Used during registration to check for duplicates before
// hashing the password.
func (r *userRepository) IdentityExists(ctx context.Context, email, username string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = ? OR username = ?)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, email, username).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking identity existence: %w", err)
	}
	return exists, nil
}

// RecordFailedAttempt is the lockout tracker's atomic transition. MySQL
// evaluates SET assignments left to right using already-updated column
// values, so `failed_attempts >= ?` below sees the incremented counter:
// the increment and the lock decision happen in one statement, and two
// concurrent failures at threshold-1 cannot both observe the pre-increment
// value and skip the lock.
func (r *userRepository) RecordFailedAttempt(ctx context.Context, id string, threshold int, lockUntil time.Time) (*LockoutState, error) {
	query := `UPDATE users
	          SET failed_attempts = failed_attempts + 1,
	              is_locked = failed_attempts >= ?,
	              lock_until = IF(failed_attempts >= ?, ?, lock_until),
	              updated_at = NOW()
	          WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, threshold, threshold, lockUntil, id)
	if err != nil {
		return nil, fmt.Errorf("recording failed attempt: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return nil, apperror.NewNotFound("user not found")
	}

	state := &LockoutState{}
	var until sql.NullTime
	err = r.db.QueryRowContext(ctx,
		`SELECT failed_attempts, is_locked, lock_until FROM users WHERE id = ?`, id,
	).Scan(&state.FailedAttempts, &state.Locked, &until)
	if err != nil {
		return nil, fmt.Errorf("reading lockout state: %w", err)
	}
	if until.Valid {
		t := until.Time
		state.LockUntil = &t
	}
	return state, nil
}

// ResetLockout clears all lockout fields and stamps last_login_at. Runs
// unconditionally on successful authentication, whatever the current state.
func (r *userRepository) ResetLockout(ctx context.Context, id string) error {
	query := `UPDATE users
	          SET failed_attempts = 0,
	              is_locked = FALSE,
	              lock_until = NULL,
	              last_login_at = NOW(),
	              updated_at = NOW()
	          WHERE id = ?`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("resetting lockout: %w", err)
	}
	return nil
}

// UpdatePassword sets a new password hash and replaces the stored history.
func (r *userRepository) UpdatePassword(ctx context.Context, id, passwordHash string, history []string) error {
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshaling password history: %w", err)
	}

	query := `UPDATE users
	          SET password_hash = ?, password_history = ?, updated_at = NOW()
	          WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, passwordHash, historyJSON, id)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return apperror.NewNotFound("user not found")
	}
	return nil
}

// SetActive flips the active flag. Deactivation implicitly invalidates all
// outstanding refresh tokens, since refresh re-loads the user and checks it.
func (r *userRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE users SET is_active = ?, updated_at = NOW() WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, active, id)
	if err != nil {
		return fmt.Errorf("updating is_active: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return apperror.NewNotFound("user not found")
	}
	return nil
}

// scanUser scans a single user row, decoding the JSON role and history
// columns and validating roles against the closed enumeration.
func (r *userRepository) scanUser(row *sql.Row) (*User, error) {
	user := &User{}
	var rolesJSON, historyJSON []byte
	var lockUntil, lastLogin sql.NullTime

	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.MinistryID,
		&user.PasswordHash,
		&historyJSON,
		&rolesJSON,
		&user.IsActive,
		&user.IsLocked,
		&lockUntil,
		&user.FailedAttempts,
		&user.CreatedAt,
		&user.UpdatedAt,
		&lastLogin,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user row: %w", err)
	}

	var roleStrings []string
	if err := json.Unmarshal(rolesJSON, &roleStrings); err != nil {
		return nil, fmt.Errorf("unmarshaling roles: %w", err)
	}
	user.Roles, err = ability.ParseRoles(roleStrings)
	if err != nil {
		return nil, fmt.Errorf("invalid stored role set for user %s: %w", user.ID, err)
	}

	if len(historyJSON) > 0 {
		if err := json.Unmarshal(historyJSON, &user.PasswordHistory); err != nil {
			return nil, fmt.Errorf("unmarshaling password history: %w", err)
		}
	}

	if lockUntil.Valid {
		t := lockUntil.Time
		user.LockUntil = &t
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLoginAt = &t
	}
	return user, nil
}
