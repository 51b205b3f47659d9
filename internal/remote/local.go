package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// SessionCache persists the bearer token of the current session between
// process runs.
type SessionCache interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// Local is a Gateway talking directly to a DB.
type Local struct {
	db       DB
	accounts *Accounts
	policy   *Policy
	cache    SessionCache

	mu      sync.RWMutex
	session *Session
}

// LocalOption configures a Local gateway.
type LocalOption func(*Local)

// WithSessionCache persists sessions through c.
func WithSessionCache(c SessionCache) LocalOption {
	return func(l *Local) { l.cache = c }
}

// NewLocal creates a gateway over db.
func NewLocal(db DB, opts ...LocalOption) *Local {
	l := &Local{
		db:       db,
		accounts: NewAccounts(db),
		policy:   NewPolicy(db),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Local) current() *Session {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.session
}

func (l *Local) userID() string {
	if s := l.current(); s != nil {
		return s.UserID
	}
	return ""
}

func (l *Local) setSession(s *Session) {
	l.mu.Lock()
	l.session = s
	l.mu.Unlock()
	if l.cache == nil {
		return
	}
	var err error
	if s == nil {
		err = l.cache.Clear()
	} else {
		err = l.cache.Save(s.AccessToken)
	}
	if err != nil {
		slog.Warn("session cache", "error", err)
	}
}

func (l *Local) GetSession(ctx context.Context) (*Session, error) {
	if s := l.current(); s != nil {
		cp := *s
		return &cp, nil
	}
	if l.cache == nil {
		return nil, nil
	}
	token, err := l.cache.Load()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if token == "" {
		return nil, nil
	}
	s, err := l.accounts.Validate(ctx, token)
	if errors.Is(err, ErrUnauthorized) {
		l.setSession(nil)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.session = s
	l.mu.Unlock()
	cp := *s
	return &cp, nil
}

func (l *Local) SignIn(ctx context.Context, email, password string) (*Session, error) {
	s, err := l.accounts.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	l.setSession(s)
	cp := *s
	return &cp, nil
}

func (l *Local) SignUp(ctx context.Context, email, password string, opts SignUpOptions) (*Session, error) {
	s, err := l.accounts.SignUp(ctx, email, password, opts)
	if err != nil {
		return nil, err
	}
	l.setSession(s)
	cp := *s
	return &cp, nil
}

func (l *Local) SignOut(ctx context.Context) error {
	s := l.current()
	l.setSession(nil)
	if s == nil {
		return nil
	}
	return l.accounts.Revoke(ctx, s.AccessToken)
}

func (l *Local) Read(ctx context.Context, table string, q Query) ([]Record, error) {
	return l.policy.Read(ctx, l.userID(), table, q)
}

func (l *Local) Insert(ctx context.Context, table string, rec Record) (Record, error) {
	return l.policy.Insert(ctx, l.userID(), table, rec)
}

func (l *Local) Update(ctx context.Context, table, id string, patch Record) (Record, error) {
	return l.policy.Update(ctx, l.userID(), table, id, patch)
}

func (l *Local) Delete(ctx context.Context, table, id string) error {
	return l.policy.Delete(ctx, l.userID(), table, id)
}

func (l *Local) Subscribe(ctx context.Context, table string, filter Filter, fn func(Change)) (func(), error) {
	return l.policy.Subscribe(ctx, l.userID(), table, filter, fn)
}

// Close closes the underlying DB.
func (l *Local) Close() error {
	return l.db.Close()
}
