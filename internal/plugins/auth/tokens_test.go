package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/grantdesk/grantdesk/internal/plugins/ability"
)

func testIssuer() *TokenIssuer {
	return NewTokenIssuer(testAuthConfig())
}

func issuerUser() *User {
	return &User{
		ID:         "user-123",
		Email:      "alice@ministry.example",
		MinistryID: "ministry-1",
		Roles:      []ability.Role{ability.RoleReviewer, ability.RoleApplicant},
	}
}

func TestAccessToken_RoundTrip(t *testing.T) {
	issuer := testIssuer()
	user := issuerUser()

	token, expiresAt, err := issuer.MintAccess(user, "session-abc")
	if err != nil {
		t.Fatalf("MintAccess failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if until := time.Until(expiresAt); until < 14*time.Minute || until > 15*time.Minute {
		t.Errorf("expected expiry ~15m out, got %v", until)
	}

	claims, err := issuer.VerifyAccess(token)
	if err != nil {
		t.Fatalf("VerifyAccess failed: %v", err)
	}
	if claims.UserID() != user.ID {
		t.Errorf("expected subject %s, got %s", user.ID, claims.UserID())
	}
	if claims.Email != user.Email {
		t.Errorf("expected email %s, got %s", user.Email, claims.Email)
	}
	if claims.MinistryID != user.MinistryID {
		t.Errorf("expected ministry %s, got %s", user.MinistryID, claims.MinistryID)
	}
	if claims.SessionID != "session-abc" {
		t.Errorf("expected session session-abc, got %s", claims.SessionID)
	}
	if len(claims.Roles) != 2 || claims.Roles[0] != "reviewer" || claims.Roles[1] != "applicant" {
		t.Errorf("expected roles [reviewer applicant], got %v", claims.Roles)
	}
}

func TestRefreshToken_RoundTrip(t *testing.T) {
	issuer := testIssuer()

	token, err := issuer.MintRefresh("user-123", "session-abc")
	if err != nil {
		t.Fatalf("MintRefresh failed: %v", err)
	}

	claims, err := issuer.VerifyRefresh(token)
	if err != nil {
		t.Fatalf("VerifyRefresh failed: %v", err)
	}
	if claims.Subject != "user-123" {
		t.Errorf("expected subject user-123, got %s", claims.Subject)
	}
	if claims.SessionID != "session-abc" {
		t.Errorf("expected session session-abc, got %s", claims.SessionID)
	}
}

// Each token kind is signed with its own secret, so a token of one kind can
// never pass verification as the other.
func TestTokenKinds_NotInterchangeable(t *testing.T) {
	issuer := testIssuer()
	user := issuerUser()

	access, _, err := issuer.MintAccess(user, "session-abc")
	if err != nil {
		t.Fatalf("MintAccess failed: %v", err)
	}
	refresh, err := issuer.MintRefresh(user.ID, "session-abc")
	if err != nil {
		t.Fatalf("MintRefresh failed: %v", err)
	}

	if _, err := issuer.VerifyRefresh(access); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for access-as-refresh, got %v", err)
	}
	if _, err := issuer.VerifyAccess(refresh); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for refresh-as-access, got %v", err)
	}
}

func TestVerifyAccess_TamperedToken(t *testing.T) {
	issuer := testIssuer()

	token, _, err := issuer.MintAccess(issuerUser(), "session-abc")
	if err != nil {
		t.Fatalf("MintAccess failed: %v", err)
	}

	// Flip a character in the payload segment.
	tampered := []byte(token)
	mid := len(tampered) / 2
	if tampered[mid] == 'a' {
		tampered[mid] = 'b'
	} else {
		tampered[mid] = 'a'
	}

	if _, err := issuer.VerifyAccess(string(tampered)); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for tampered token, got %v", err)
	}
}

func TestVerifyAccess_Garbage(t *testing.T) {
	issuer := testIssuer()

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := issuer.VerifyAccess(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("token %q: expected ErrInvalidToken, got %v", token, err)
		}
	}
}

func TestVerifyAccess_Expired(t *testing.T) {
	cfg := testAuthConfig()
	cfg.AccessTTL = time.Millisecond
	issuer := NewTokenIssuer(cfg)

	token, _, err := issuer.MintAccess(issuerUser(), "session-abc")
	if err != nil {
		t.Fatalf("MintAccess failed: %v", err)
	}

	// JWT timestamps have second precision, so a 1ms TTL is already in the
	// past once it is truncated.
	time.Sleep(5 * time.Millisecond)

	if _, err := issuer.VerifyAccess(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestVerifyAccess_WrongSecret(t *testing.T) {
	issuer := testIssuer()

	other := testAuthConfig()
	other.AccessSecret = "a-completely-different-secret-000"
	otherIssuer := NewTokenIssuer(other)

	token, _, err := otherIssuer.MintAccess(issuerUser(), "session-abc")
	if err != nil {
		t.Fatalf("MintAccess failed: %v", err)
	}
	if _, err := issuer.VerifyAccess(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for foreign signature, got %v", err)
	}
}
