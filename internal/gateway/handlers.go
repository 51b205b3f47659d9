package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dohr-michael/orbit/internal/remote"
)

const maxBodyBytes = 4 << 20

type sessionKey struct{}

func sessionFrom(ctx context.Context) *remote.Session {
	s, _ := ctx.Value(sessionKey{}).(*remote.Session)
	if s == nil {
		return &remote.Session{}
	}
	return s
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// authenticate resolves the bearer token into a session.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.accounts.Validate(r.Context(), bearerToken(r))
		if err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	})
}

func decodeBody(r *http.Request, v any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", remote.ErrInvalidInput, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", remote.ErrInvalidInput, err)
	}
	return nil
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username,omitempty"`
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := decodeBody(r, &c); err != nil {
		writeError(w, err)
		return
	}
	sess, err := s.accounts.SignIn(r.Context(), c.Email, c.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := decodeBody(r, &c); err != nil {
		writeError(w, err)
		return
	}
	sess, err := s.accounts.SignUp(r.Context(), c.Email, c.Password, remote.SignUpOptions{Username: c.Username})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess := *sessionFrom(r.Context())
	sess.AccessToken = ""
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.accounts.Revoke(r.Context(), sessionFrom(r.Context()).AccessToken); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	var q remote.Query
	if err := decodeBody(r, &q); err != nil {
		writeError(w, err)
		return
	}
	if err := q.Validate(table); err != nil {
		writeError(w, err)
		return
	}
	rows, err := s.policy.Read(r.Context(), sessionFrom(r.Context()).UserID, table, q)
	if err != nil {
		writeError(w, err)
		return
	}
	if rows == nil {
		rows = []remote.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": rows})
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	var rec remote.Record
	if err := decodeBody(r, &rec); err != nil {
		writeError(w, err)
		return
	}
	row, err := s.policy.Insert(r.Context(), sessionFrom(r.Context()).UserID, chi.URLParam(r, "table"), rec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var patch remote.Record
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, err)
		return
	}
	row, err := s.policy.Update(r.Context(), sessionFrom(r.Context()).UserID,
		chi.URLParam(r, "table"), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	err := s.policy.Delete(r.Context(), sessionFrom(r.Context()).UserID,
		chi.URLParam(r, "table"), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
