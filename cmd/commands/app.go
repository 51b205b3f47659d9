package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/orbit/internal/callbacks"
	"github.com/dohr-michael/orbit/internal/config"
	"github.com/dohr-michael/orbit/internal/events"
	"github.com/dohr-michael/orbit/internal/inference"
	"github.com/dohr-michael/orbit/internal/models"
	"github.com/dohr-michael/orbit/internal/remote"
	"github.com/dohr-michael/orbit/internal/render"
	"github.com/dohr-michael/orbit/internal/secrets"
	"github.com/dohr-michael/orbit/internal/sessions"
	"github.com/dohr-michael/orbit/internal/store"
)

var errSignedOut = errors.New("not signed in (run `orbit login` first)")

// app is the wiring shared by every store-backed command.
type app struct {
	cfg    *config.Config
	bus    *events.Bus
	conn   remote.Conn
	store  *store.Store
	format render.Format
	out    io.Writer
}

// setupLogging sends logs to stderr at debug level with --debug and at
// level otherwise.
func setupLogging(cmd *cli.Command, level slog.Level) {
	if cmd.Bool("debug") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// loadConfig reads --config, falling back to the defaults when the file is
// missing, and applies --remote.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	path := cmd.String("config")
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	if dsn := cmd.String("remote"); dsn != "" {
		cfg.Remote.DSN = dsn
	}
	return cfg, nil
}

func tokenCache(cfg *config.Config) (*secrets.TokenCache, error) {
	var sealer *secrets.Sealer
	if cfg.Sessions.Encrypt() {
		s, err := secrets.OpenSealer(config.KeyPath())
		if err != nil {
			return nil, fmt.Errorf("open session key: %w", err)
		}
		sealer = s
	}
	return secrets.NewTokenCache(filepath.Join(cfg.Sessions.Dir, "token"), sealer), nil
}

// newEngine builds the inference engine. Model calls are published on bus.
func newEngine(ctx context.Context, cfg *config.Config, bus *events.Bus) *inference.Engine {
	opts := []inference.Option{
		inference.WithCallbacks(callbacks.NewEventBusHandler(bus, events.SourceInference)),
	}
	search, err := inference.NewWebSearch(ctx, cfg.Inference.WebSearch)
	switch {
	case err != nil:
		slog.Warn("web search disabled", "provider", cfg.Inference.WebSearch.Provider, "error", err)
	case search != nil:
		opts = append(opts, inference.WithSearcher(search))
	}
	return inference.NewEngine(models.NewRegistry(cfg.Models), cfg.Inference, opts...)
}

// openApp wires config, remote, inference and the store, then resumes the
// cached session.
func openApp(ctx context.Context, cmd *cli.Command, level slog.Level) (*app, error) {
	setupLogging(cmd, level)

	format, err := render.ParseFormat(cmd.String("output"))
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	cache, err := tokenCache(cfg)
	if err != nil {
		return nil, err
	}

	bus := events.NewBus(cfg.Events.BufferSize)
	conn, err := remote.Open(ctx, cfg.Remote.DSN, remote.Options{
		Bus:        bus,
		Cache:      cache,
		HTTPClient: &http.Client{Timeout: cfg.Remote.Timeout.Duration()},
	})
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("open remote %q: %w", cfg.Remote.DSN, err)
	}

	st := store.New(conn, newEngine(ctx, cfg, bus),
		store.WithBus(bus),
		store.WithTranscripts(sessions.NewFileStore(filepath.Join(cfg.Sessions.Dir, "transcripts")), cfg.Sessions.HistoryLimit),
		store.WithLogger(slog.Default().With("component", "store")),
	)
	st.Initialize(ctx)

	return &app{
		cfg:    cfg,
		bus:    bus,
		conn:   conn,
		store:  st,
		format: format,
		out:    os.Stdout,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Debug("close store", "error", err)
	}
	if err := a.conn.Close(); err != nil {
		slog.Debug("close remote", "error", err)
	}
	a.bus.Close()
}

// requireSession fails when Initialize found no session.
func (a *app) requireSession() (store.Snapshot, error) {
	snap := a.store.Snapshot()
	if !snap.Authenticated {
		return snap, errSignedOut
	}
	return snap, nil
}

// print writes v in the structured formats, or text for tables.
func (a *app) print(v any, text string) error {
	return render.Write(a.out, a.format, v, text)
}

// withApp adapts a store-backed action to a cli.ActionFunc.
func withApp(fn func(ctx context.Context, cmd *cli.Command, a *app) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		a, err := openApp(ctx, cmd, slog.LevelWarn)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, cmd, a)
	}
}
