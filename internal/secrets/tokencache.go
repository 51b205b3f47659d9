package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// TokenCache persists the bearer token of the current session in a single
// file so that CLI invocations resume it. When a Sealer is set the token is
// stored sealed.
type TokenCache struct {
	path   string
	sealer *Sealer
}

// NewTokenCache returns a cache at path. sealer may be nil to store the
// token in clear.
func NewTokenCache(path string, sealer *Sealer) *TokenCache {
	return &TokenCache{path: path, sealer: sealer}
}

// Load returns the cached token, or "" when none is stored.
func (c *TokenCache) Load() (string, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read session cache: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if !IsSealed(token) {
		return token, nil
	}
	if c.sealer == nil {
		return "", fmt.Errorf("session cache is sealed but no key is configured")
	}
	return c.sealer.Unseal(token)
}

// Save stores token, replacing any previous one.
func (c *TokenCache) Save(token string) error {
	value := token
	if c.sealer != nil {
		sealed, err := c.sealer.Seal(token)
		if err != nil {
			return err
		}
		value = sealed
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("create session cache dir: %w", err)
	}
	if err := os.WriteFile(c.path, []byte(value+"\n"), 0o600); err != nil {
		return fmt.Errorf("write session cache: %w", err)
	}
	return nil
}

// Clear removes the cached token.
func (c *TokenCache) Clear() error {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear session cache: %w", err)
	}
	return nil
}
