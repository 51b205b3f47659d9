package remote

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound           = errors.New("record not found")
	ErrUnauthorized       = errors.New("not authenticated")
	ErrForbidden          = errors.New("operation not permitted")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUnknownTable       = errors.New("unknown table")
	ErrInvalidInput       = errors.New("invalid input")
	ErrClosed             = errors.New("gateway closed")
)

// Error codes exchanged between `orbit serve` and the HTTP client.
var errorCodes = []struct {
	code   string
	status int
	err    error
}{
	{"not_found", http.StatusNotFound, ErrNotFound},
	{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
	{"forbidden", http.StatusForbidden, ErrForbidden},
	{"invalid_credentials", http.StatusUnauthorized, ErrInvalidCredentials},
	{"email_taken", http.StatusConflict, ErrEmailTaken},
	{"unknown_table", http.StatusNotFound, ErrUnknownTable},
	{"invalid_input", http.StatusBadRequest, ErrInvalidInput},
}

// ErrorCode maps err to its wire code and HTTP status.
func ErrorCode(err error) (string, int) {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code, c.status
		}
	}
	return "internal", http.StatusInternalServerError
}

// HTTPError is a non-2xx answer of the gateway API.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Is matches the sentinel the server encoded in Code.
func (e *HTTPError) Is(target error) bool {
	for _, c := range errorCodes {
		if c.code == e.Code {
			return target == c.err
		}
	}
	return false
}
