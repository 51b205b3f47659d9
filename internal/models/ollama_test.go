package models

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOllamaTransport(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		status      int
		body        string
		wantErr     bool
	}{
		{"json", "application/json", 200, `{"model":"llama3.2"}`, false},
		{"ndjson stream", "application/x-ndjson", 200, `{"done":false}` + "\n", false},
		{"proxy page", "text/plain", 200, "no available server", true},
		{"server error", "", 503, "service unavailable", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tc.contentType != "" {
					w.Header().Set("Content-Type", tc.contentType)
				}
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			transport := &ollamaTransport{inner: http.DefaultTransport, provider: DriverOllama}
			req, _ := http.NewRequest(http.MethodPost, srv.URL, nil)
			resp, err := transport.RoundTrip(req)
			if !tc.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				resp.Body.Close()
				return
			}

			var unavail *ErrModelUnavailable
			if !errors.As(err, &unavail) {
				t.Fatalf("expected ErrModelUnavailable, got %T: %v", err, err)
			}
			if !strings.Contains(unavail.Body, tc.body) {
				t.Errorf("body: got %q, want to contain %q", unavail.Body, tc.body)
			}
		})
	}
}

func TestOllamaTransport_ConnectionError(t *testing.T) {
	transport := &ollamaTransport{inner: http.DefaultTransport, provider: DriverOllama}
	req, _ := http.NewRequest(http.MethodPost, "http://127.0.0.1:1", nil)
	_, err := transport.RoundTrip(req)

	var unavail *ErrModelUnavailable
	if !errors.As(err, &unavail) {
		t.Fatalf("expected ErrModelUnavailable, got %T: %v", err, err)
	}
	if unavail.Cause == nil {
		t.Error("expected non-nil Cause for connection error")
	}
	if !strings.HasPrefix(unavail.Error(), "ollama unavailable") {
		t.Errorf("unexpected message %q", unavail.Error())
	}
}
