package remote

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/dohr-michael/orbit/internal/events"
)

// Options are shared by every backend factory.
type Options struct {
	// Bus carries the change feed of local backends. A private bus is used
	// when nil.
	Bus        *events.Bus
	Cache      SessionCache
	HTTPClient *http.Client
}

// Factory opens a Gateway for a DSN of its scheme.
type Factory func(ctx context.Context, dsn string, opts Options) (Conn, error)

// DBFactory opens a DB for a DSN of its scheme.
type DBFactory func(ctx context.Context, dsn string, feed *Feed) (DB, error)

var registry = struct {
	mu        sync.RWMutex
	gateways  map[string]Factory
	databases map[string]DBFactory
}{
	gateways:  map[string]Factory{},
	databases: map[string]DBFactory{},
}

// RegisterFactory makes scheme available to Open.
func RegisterFactory(scheme string, f Factory) {
	scheme = normalizeScheme(scheme)
	if scheme == "" || f == nil {
		return
	}
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.gateways[scheme] = f
}

// RegisterDBFactory makes scheme available to OpenDB, and to Open through a
// Local gateway.
func RegisterDBFactory(scheme string, f DBFactory) {
	scheme = normalizeScheme(scheme)
	if scheme == "" || f == nil {
		return
	}
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.databases[scheme] = f
}

func normalizeScheme(scheme string) string {
	return strings.ToLower(strings.TrimSpace(scheme))
}

func schemeOf(dsn string) (string, string, error) {
	scheme, rest, ok := strings.Cut(strings.TrimSpace(dsn), "://")
	if !ok || scheme == "" {
		return "", "", fmt.Errorf("%w: dsn %q has no scheme", ErrInvalidInput, dsn)
	}
	return normalizeScheme(scheme), rest, nil
}

// OpenDB opens the storage behind dsn (memory://, sqlite://, postgres://).
func OpenDB(ctx context.Context, dsn string, feed *Feed) (DB, error) {
	scheme, _, err := schemeOf(dsn)
	if err != nil {
		return nil, err
	}
	registry.mu.RLock()
	f, ok := registry.databases[scheme]
	registry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unsupported database scheme %q", ErrInvalidInput, scheme)
	}
	return f(ctx, dsn, feed)
}

// Open returns a Gateway for dsn. Database schemes yield a Local gateway,
// http(s) a Client of `orbit serve`.
func Open(ctx context.Context, dsn string, opts Options) (Conn, error) {
	scheme, _, err := schemeOf(dsn)
	if err != nil {
		return nil, err
	}
	registry.mu.RLock()
	f, ok := registry.gateways[scheme]
	registry.mu.RUnlock()
	if ok {
		return f(ctx, dsn, opts)
	}

	db, err := OpenDB(ctx, dsn, NewFeed(opts.Bus))
	if err != nil {
		return nil, err
	}
	var lopts []LocalOption
	if opts.Cache != nil {
		lopts = append(lopts, WithSessionCache(opts.Cache))
	}
	return NewLocal(db, lopts...), nil
}

func init() {
	RegisterDBFactory("memory", func(_ context.Context, _ string, feed *Feed) (DB, error) {
		return NewMemoryDB(feed), nil
	})
	RegisterDBFactory("sqlite", func(ctx context.Context, dsn string, feed *Feed) (DB, error) {
		_, path, _ := schemeOf(dsn)
		if path == "" {
			return nil, fmt.Errorf("%w: sqlite dsn without path", ErrInvalidInput)
		}
		db, err := OpenSQLite(ctx, path, feed)
		if err != nil {
			return nil, err
		}
		return db, nil
	})
	postgres := func(ctx context.Context, dsn string, feed *Feed) (DB, error) {
		db, err := OpenPostgres(ctx, dsn, feed)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	RegisterDBFactory("postgres", postgres)
	RegisterDBFactory("postgresql", postgres)

	client := func(_ context.Context, dsn string, opts Options) (Conn, error) {
		return NewClient(dsn, opts.Cache, opts.HTTPClient), nil
	}
	RegisterFactory("http", client)
	RegisterFactory("https", client)
}
