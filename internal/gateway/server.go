// Package gateway serves a remote.DB over HTTP and WebSocket for `orbit
// serve`. Every request acts on behalf of the bearer of a session token and
// goes through the row policy.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dohr-michael/orbit/internal/events"
	"github.com/dohr-michael/orbit/internal/gateway/ws"
	"github.com/dohr-michael/orbit/internal/remote"
)

// Server is the Orbit gateway HTTP server.
type Server struct {
	httpServer *http.Server
	hub        *ws.Hub
	subs       *subscriptions
	bus        *events.Bus
	accounts   *remote.Accounts
	policy     *remote.Policy
	listener   net.Listener
}

// NewServer creates a gateway over db. bus is the bus the db feed publishes
// on; it backs /api/events.
func NewServer(db remote.DB, bus *events.Bus, addr string) *Server {
	s := &Server{
		bus:      bus,
		accounts: remote.NewAccounts(db),
		policy:   remote.NewPolicy(db),
	}
	s.subs = newSubscriptions(s.policy)
	s.hub = ws.NewHub(s.subs)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)

	r.Get("/api/health", s.handleHealth)
	r.Post("/api/auth/signin", s.handleSignIn)
	r.Post("/api/auth/signup", s.handleSignUp)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/api/auth/session", s.handleSession)
		r.Post("/api/auth/signout", s.handleSignOut)
		r.Get("/api/events", s.handleEvents)
		r.Get("/api/ws", s.hub.ServeWS)

		r.Route("/api/tables/{table}", func(r chi.Router) {
			r.Post("/query", s.handleQuery)
			r.Post("/", s.handleInsert)
			r.Patch("/{id}", s.handleUpdate)
			r.Delete("/{id}", s.handleDelete)
		})
	})

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	slog.Info("orbit gateway listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

// Clients returns the number of connected realtime clients.
func (s *Server) Clients() int {
	return s.hub.Len()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleEvents lists the recent row changes visible to the caller.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	uid := sessionFrom(r.Context()).UserID

	type eventJSON struct {
		ID        string             `json:"id"`
		Type      string             `json:"type"`
		Timestamp string             `json:"timestamp"`
		Source    events.EventSource `json:"source"`
		Payload   map[string]any     `json:"payload"`
	}

	result := make([]eventJSON, 0, limit)
	for _, e := range s.bus.History(limit) {
		p, ok := events.GetRemoteChangePayload(e)
		if !ok {
			continue
		}
		row := p.Record
		if p.Kind == string(remote.ChangeDelete) {
			row = p.Old
		}
		if !s.policy.Visible(uid, p.Table, row) {
			continue
		}
		result = append(result, eventJSON{
			ID:        e.ID,
			Type:      string(e.Type),
			Timestamp: e.Timestamp.Format(time.RFC3339Nano),
			Source:    e.Source,
			Payload:   e.Payload,
		})
	}
	writeJSON(w, http.StatusOK, result)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"correlation_id", r.Header.Get("X-Correlation-Id"),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code, status := remote.ErrorCode(err)
	if status == http.StatusInternalServerError {
		slog.Error("gateway request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"code": code, "message": err.Error()})
}
