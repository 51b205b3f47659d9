// Package remote is the authoritative store Orbit synchronizes against: a
// Gateway interface with authentication, CRUD and a change feed, plus the
// backends implementing it (in-memory, SQLite, Postgres and the HTTP client of
// `orbit serve`).
package remote

import (
	"context"
	"io"
	"time"
)

// Tables.
const (
	TableProfiles   = "profiles"
	TableTasks      = "tasks"
	TableIntelDrops = "intel_drops"

	// Backend-private tables, never reachable through a Gateway.
	TableUsers      = "users"
	TableAuthTokens = "auth_tokens"
)

// Record is a row keyed by snake_case column name.
type Record map[string]any

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ID returns the id column of r.
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// ChangeKind is the kind of row change carried by the change feed.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Change is a row change. Record holds the row after the change (nil for
// deletes), Old the row before it when known.
type Change struct {
	Kind   ChangeKind `json:"kind"`
	Table  string     `json:"table"`
	Record Record     `json:"record,omitempty"`
	Old    Record     `json:"old,omitempty"`
}

// Row returns the record a subscription filter is evaluated against.
func (c Change) Row() Record {
	if c.Kind == ChangeDelete {
		return c.Old
	}
	return c.Record
}

// Session binds a client to an authenticated identity.
type Session struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// SignUpOptions carries the profile fields set at registration.
type SignUpOptions struct {
	Username string `json:"username,omitempty"`
}

// Gateway is the capability surface the synchronization store consumes.
type Gateway interface {
	// GetSession resumes the current session. It returns (nil, nil) when
	// there is none.
	GetSession(ctx context.Context) (*Session, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string, opts SignUpOptions) (*Session, error)
	SignOut(ctx context.Context) error

	Read(ctx context.Context, table string, q Query) ([]Record, error)
	Insert(ctx context.Context, table string, rec Record) (Record, error)
	Update(ctx context.Context, table, id string, patch Record) (Record, error)
	Delete(ctx context.Context, table, id string) error

	// Subscribe delivers changes of table matching filter, in commit order,
	// until the returned function is called or ctx is done.
	Subscribe(ctx context.Context, table string, filter Filter, fn func(Change)) (func(), error)
}

// Conn is a Gateway holding resources that must be released.
type Conn interface {
	Gateway
	io.Closer
}

// DB is the storage primitive behind the local gateway and `orbit serve`.
// It applies no access policy.
type DB interface {
	Get(ctx context.Context, table, id string) (Record, error)
	Read(ctx context.Context, table string, q Query) ([]Record, error)
	Insert(ctx context.Context, table string, rec Record) (Record, error)
	Update(ctx context.Context, table, id string, patch Record) (Record, error)
	// Delete removes the row and returns it as it was.
	Delete(ctx context.Context, table, id string) (Record, error)
	Subscribe(ctx context.Context, table string, filter Filter, fn func(Change)) (func(), error)
	Close() error
}
