package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func newTestAccounts(t *testing.T) (*Accounts, *MemoryDB) {
	t.Helper()
	db := newTestMemoryDB(t)
	a := NewAccounts(db)
	a.cost = bcrypt.MinCost
	return a, db
}

func TestAccounts_SignUpCreatesProfile(t *testing.T) {
	a, db := newTestAccounts(t)
	ctx := context.Background()

	s, err := a.SignUp(ctx, "Neo@Matrix.io", "redpill", SignUpOptions{Username: "neo"})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if s.AccessToken == "" || s.UserID == "" {
		t.Fatalf("incomplete session: %+v", s)
	}
	if s.Email != "neo@matrix.io" {
		t.Fatalf("expected normalized email, got %q", s.Email)
	}

	prof, err := db.Get(ctx, TableProfiles, s.UserID)
	if err != nil {
		t.Fatalf("Get profile: %v", err)
	}
	if prof["username"] != "neo" {
		t.Fatalf("expected username neo, got %v", prof["username"])
	}
	if prof["avatar_url"] == "" || prof["avatar_url"] == nil {
		t.Fatal("expected a generated avatar")
	}
	if prof["tasks_completed"] != int64(0) || prof["is_admin"] != false {
		t.Fatalf("unexpected profile defaults: %v", prof)
	}
}

func TestAccounts_SignUpDefaultsUsernameToEmailLocalPart(t *testing.T) {
	a, db := newTestAccounts(t)
	s, err := a.SignUp(context.Background(), "trinity@zion.io", "follow-the-rabbit", SignUpOptions{})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	prof, err := db.Get(context.Background(), TableProfiles, s.UserID)
	if err != nil {
		t.Fatalf("Get profile: %v", err)
	}
	if prof["username"] != "trinity" {
		t.Fatalf("expected username trinity, got %v", prof["username"])
	}
}

func TestAccounts_SignUpRejects(t *testing.T) {
	a, _ := newTestAccounts(t)
	ctx := context.Background()

	if _, err := a.SignUp(ctx, "not-an-email", "password", SignUpOptions{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad email, got %v", err)
	}
	if _, err := a.SignUp(ctx, "a@b.io", "123", SignUpOptions{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short password, got %v", err)
	}
	if _, err := a.SignUp(ctx, "a@b.io", "password", SignUpOptions{}); err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if _, err := a.SignUp(ctx, "A@B.io", "password", SignUpOptions{}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestAccounts_SignInAndValidate(t *testing.T) {
	a, _ := newTestAccounts(t)
	ctx := context.Background()

	created, err := a.SignUp(ctx, "morpheus@zion.io", "nebuchadnezzar", SignUpOptions{})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	if _, err := a.SignIn(ctx, "morpheus@zion.io", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := a.SignIn(ctx, "nobody@zion.io", "nebuchadnezzar"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}

	s, err := a.SignIn(ctx, " MORPHEUS@zion.io ", "nebuchadnezzar")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if s.UserID != created.UserID {
		t.Fatalf("expected user %s, got %s", created.UserID, s.UserID)
	}

	v, err := a.Validate(ctx, s.AccessToken)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if v.UserID != created.UserID || v.Email != "morpheus@zion.io" {
		t.Fatalf("unexpected session %+v", v)
	}

	if err := a.Revoke(ctx, s.AccessToken); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := a.Validate(ctx, s.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after revoke, got %v", err)
	}
	if err := a.Revoke(ctx, s.AccessToken); err != nil {
		t.Fatalf("second Revoke should be a no-op, got %v", err)
	}
}

func TestAccounts_ExpiredToken(t *testing.T) {
	a, _ := newTestAccounts(t)
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }
	s, err := a.SignUp(ctx, "cypher@zion.io", "steak-is-real", SignUpOptions{})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	a.now = func() time.Time { return now.Add(defaultTokenTTL + time.Second) }
	if _, err := a.Validate(ctx, s.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for expired token, got %v", err)
	}
}

func TestAccounts_TokensAreStoredHashed(t *testing.T) {
	a, db := newTestAccounts(t)
	ctx := context.Background()
	s, err := a.SignUp(ctx, "tank@zion.io", "operator", SignUpOptions{})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if _, err := db.Get(ctx, TableAuthTokens, s.AccessToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("raw token must not be a key of auth_tokens, got %v", err)
	}
}
