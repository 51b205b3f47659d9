package remote

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dohr-michael/orbit/internal/domain"
)

const (
	defaultTokenTTL   = 30 * 24 * time.Hour
	minPasswordLength = 6
)

// Accounts authenticates users against the users table and issues opaque
// bearer tokens stored (hashed) in auth_tokens.
type Accounts struct {
	db       DB
	now      func() time.Time
	tokenTTL time.Duration
	cost     int
}

// NewAccounts creates an account service over db.
func NewAccounts(db DB) *Accounts {
	return &Accounts{
		db:       db,
		now:      time.Now,
		tokenTTL: defaultTokenTTL,
		cost:     bcrypt.DefaultCost,
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return "", fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	return email, nil
}

// SignUp registers a user, creates its profile and opens a session.
func (a *Accounts) SignUp(ctx context.Context, email, password string, opts SignUpOptions) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	existing, err := a.db.Read(ctx, TableUsers, Query{Filter: Where(Eq("email", email)), Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if len(existing) > 0 {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user, err := a.db.Insert(ctx, TableUsers, Record{
		"email":         email,
		"password_hash": string(hash),
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	username := strings.TrimSpace(opts.Username)
	if username == "" {
		username, _, _ = strings.Cut(email, "@")
	}
	if _, err := a.db.Insert(ctx, TableProfiles, Record{
		"id":         user.ID(),
		"username":   username,
		"avatar_url": domain.AvatarURL(username),
	}); err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	slog.Info("account created", "user_id", user.ID(), "username", username)

	return a.issue(ctx, user.ID(), email)
}

// SignIn checks the credentials and opens a session.
func (a *Accounts) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	users, err := a.db.Read(ctx, TableUsers, Query{Filter: Where(Eq("email", email)), Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if len(users) == 0 {
		return nil, ErrInvalidCredentials
	}
	hash, _ := users[0]["password_hash"].(string)
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return a.issue(ctx, users[0].ID(), email)
}

func (a *Accounts) issue(ctx context.Context, userID, email string) (*Session, error) {
	token := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	expires := a.now().Add(a.tokenTTL).UTC()
	if _, err := a.db.Insert(ctx, TableAuthTokens, Record{
		"id":         hashToken(token),
		"user_id":    userID,
		"expires_at": expires.Format(time.RFC3339),
	}); err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}
	return &Session{
		UserID:      userID,
		Email:       email,
		AccessToken: token,
		ExpiresAt:   expires,
	}, nil
}

// Validate resolves a bearer token into its session. Unknown and expired
// tokens yield ErrUnauthorized.
func (a *Accounts) Validate(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	row, err := a.db.Get(ctx, TableAuthTokens, hashToken(token))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("lookup token: %w", err)
	}
	expiresRaw, _ := row["expires_at"].(string)
	expires, err := time.Parse(time.RFC3339, expiresRaw)
	if err != nil || !a.now().Before(expires) {
		if _, err := a.db.Delete(ctx, TableAuthTokens, row.ID()); err != nil && !errors.Is(err, ErrNotFound) {
			slog.Warn("drop expired token", "error", err)
		}
		return nil, ErrUnauthorized
	}

	userID, _ := row["user_id"].(string)
	user, err := a.db.Get(ctx, TableUsers, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	email, _ := user["email"].(string)
	return &Session{
		UserID:      userID,
		Email:       email,
		AccessToken: token,
		ExpiresAt:   expires,
	}, nil
}

// Revoke invalidates token. Unknown tokens are ignored.
func (a *Accounts) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if _, err := a.db.Delete(ctx, TableAuthTokens, hashToken(token)); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
