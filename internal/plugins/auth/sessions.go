package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// sessionKeyPrefix is the Redis key prefix for session documents.
const sessionKeyPrefix = "session:"

// userSessionsKeyPrefix is the Redis key prefix for the per-user session
// index set, which makes "logout everywhere" a set scan instead of a keyspace
// scan.
const userSessionsKeyPrefix = "user_sessions:"

// ErrSessionNotFound is returned when a session id has no live document,
// either because it never existed, was destroyed, or its TTL lapsed.
var ErrSessionNotFound = errors.New("session not found")

// SessionRegistry is the server-side store of active sessions, keyed by
// opaque session id with an absolute TTL. Sessions carry the CSRF secret and
// back mass invalidation. Updates are full-document replaces so concurrent
// writers cannot interleave partial field updates.
type SessionRegistry struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewSessionRegistry creates a registry storing sessions with the given
// absolute TTL.
func NewSessionRegistry(rdb *redis.Client, ttl time.Duration) *SessionRegistry {
	return &SessionRegistry{redis: rdb, ttl: ttl}
}

// Create stores a new session document and indexes it under its user. This
// is the explicit session-establishment point: callers get a typed session
// back, never an implicitly materialized one. userID may be empty for a
// session created before login completes.
func (r *SessionRegistry) Create(ctx context.Context, userID, ip, userAgent string) (*Session, error) {
	now := time.Now().UTC()
	session := &Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		IP:         ip,
		UserAgent:  userAgent,
		CreatedAt:  now,
		LastSeenAt: now,
	}

	if err := r.write(ctx, session, r.ttl); err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}

	if userID != "" {
		indexKey := userSessionsKeyPrefix + userID
		if err := r.redis.SAdd(ctx, indexKey, session.ID).Err(); err != nil {
			return nil, fmt.Errorf("indexing session: %w", err)
		}
		// Index lives at least as long as any member session can.
		if err := r.redis.Expire(ctx, indexKey, r.ttl).Err(); err != nil {
			return nil, fmt.Errorf("expiring session index: %w", err)
		}
	}

	return session, nil
}

// Get loads a session document. Returns ErrSessionNotFound for missing or
// expired sessions.
func (r *SessionRegistry) Get(ctx context.Context, id string) (*Session, error) {
	data, err := r.redis.Get(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshaling session: %w", err)
	}
	return &session, nil
}

// ReplaceCSRF overwrites the session's CSRF secret in a full-document
// replace, preserving the remaining TTL. The previous secret is dead the
// moment this returns: a session carries at most one secret at a time.
func (r *SessionRegistry) ReplaceCSRF(ctx context.Context, id, secret string) (*Session, error) {
	session, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	session.CSRFSecret = secret
	session.LastSeenAt = time.Now().UTC()

	if err := r.write(ctx, session, redis.KeepTTL); err != nil {
		return nil, fmt.Errorf("rotating csrf secret: %w", err)
	}
	return session, nil
}

// Touch updates the session's last-access timestamp without extending the
// absolute expiry.
func (r *SessionRegistry) Touch(ctx context.Context, id string) error {
	session, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	session.LastSeenAt = time.Now().UTC()
	return r.write(ctx, session, redis.KeepTTL)
}

// Destroy removes a session and its index entry. Idempotent: destroying a
// session that no longer exists is not an error.
func (r *SessionRegistry) Destroy(ctx context.Context, id string) error {
	session, err := r.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := r.redis.Del(ctx, sessionKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	if session.UserID != "" {
		if err := r.redis.SRem(ctx, userSessionsKeyPrefix+session.UserID, id).Err(); err != nil {
			return fmt.Errorf("unindexing session: %w", err)
		}
	}
	return nil
}

// DestroyAllForUser deletes every session indexed under the user and returns
// how many were removed. Outstanding access tokens are stateless and stay
// valid until their own expiry; this only cuts off refresh and CSRF.
func (r *SessionRegistry) DestroyAllForUser(ctx context.Context, userID string) (int, error) {
	indexKey := userSessionsKeyPrefix + userID

	ids, err := r.redis.SMembers(ctx, indexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("listing user sessions: %w", err)
	}

	destroyed := 0
	for _, id := range ids {
		n, err := r.redis.Del(ctx, sessionKeyPrefix+id).Result()
		if err != nil {
			return destroyed, fmt.Errorf("deleting session %s: %w", id, err)
		}
		destroyed += int(n)
	}

	if err := r.redis.Del(ctx, indexKey).Err(); err != nil {
		return destroyed, fmt.Errorf("deleting session index: %w", err)
	}
	return destroyed, nil
}

// ListForUser returns the user's live sessions. Index entries whose session
// document has already expired are pruned as they are encountered.
func (r *SessionRegistry) ListForUser(ctx context.Context, userID string) ([]Session, error) {
	indexKey := userSessionsKeyPrefix + userID

	ids, err := r.redis.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("listing user sessions: %w", err)
	}

	sessions := make([]Session, 0, len(ids))
	for _, id := range ids {
		session, err := r.Get(ctx, id)
		if errors.Is(err, ErrSessionNotFound) {
			// TTL outlived the document; drop the stale index entry.
			_ = r.redis.SRem(ctx, indexKey, id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, nil
}

// write marshals and stores the session document. ttl is either the absolute
// session TTL (on create) or redis.KeepTTL (on replace).
func (r *SessionRegistry) write(ctx context.Context, session *Session, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	return r.redis.Set(ctx, sessionKeyPrefix+session.ID, data, ttl).Err()
}
