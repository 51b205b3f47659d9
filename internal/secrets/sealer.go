// Package secrets seals small values (session tokens, API keys) with a local
// age X25519 identity. Sealed values are stored as ENC[age:<base64>] blobs.
package secrets

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
)

const (
	sealedPrefix = "ENC[age:"
	sealedSuffix = "]"
)

// ErrNotSealed is returned when unsealing a value that is not an ENC[age:...] blob.
var ErrNotSealed = errors.New("value is not sealed")

// GenerateIdentity writes a new X25519 identity to path (0600). An existing
// file is left untouched.
func GenerateIdentity(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generate age identity: %w", err)
	}

	content := fmt.Sprintf("# created by orbit\n# public key: %s\n%s\n",
		identity.Recipient().String(), identity.String())

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write age key: %w", err)
	}
	return nil
}

// LoadIdentity reads the first X25519 identity in path.
func LoadIdentity(path string) (*age.X25519Identity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open age key: %w", err)
	}
	defer f.Close()

	identities, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("parse age identities: %w", err)
	}
	if len(identities) == 0 {
		return nil, fmt.Errorf("no identities found in %s", path)
	}
	id, ok := identities[0].(*age.X25519Identity)
	if !ok {
		return nil, fmt.Errorf("unexpected identity type in %s", path)
	}
	return id, nil
}

// Sealer encrypts to and decrypts with a single identity.
type Sealer struct {
	identity *age.X25519Identity
}

// NewSealer wraps an identity.
func NewSealer(identity *age.X25519Identity) *Sealer {
	return &Sealer{identity: identity}
}

// OpenSealer loads the identity at keyPath, generating it first when absent.
func OpenSealer(keyPath string) (*Sealer, error) {
	if err := GenerateIdentity(keyPath); err != nil {
		return nil, err
	}
	id, err := LoadIdentity(keyPath)
	if err != nil {
		return nil, err
	}
	return NewSealer(id), nil
}

// Recipient returns the public half of the identity.
func (s *Sealer) Recipient() string {
	return s.identity.Recipient().String()
}

// Seal encrypts plaintext into an ENC[age:...] blob.
func (s *Sealer) Seal(plaintext string) (string, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, s.identity.Recipient())
	if err != nil {
		return "", fmt.Errorf("age encrypt init: %w", err)
	}
	if _, err := io.WriteString(w, plaintext); err != nil {
		return "", fmt.Errorf("age encrypt write: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("age encrypt close: %w", err)
	}
	return sealedPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()) + sealedSuffix, nil
}

// Unseal decrypts an ENC[age:...] blob.
func (s *Sealer) Unseal(blob string) (string, error) {
	if !IsSealed(blob) {
		return "", ErrNotSealed
	}
	encoded := blob[len(sealedPrefix) : len(blob)-len(sealedSuffix)]
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	r, err := age.Decrypt(bytes.NewReader(ciphertext), s.identity)
	if err != nil {
		return "", fmt.Errorf("age decrypt: %w", err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read decrypted: %w", err)
	}
	return string(plain), nil
}

// IsSealed reports whether s looks like an ENC[age:...] blob.
func IsSealed(s string) bool {
	return strings.HasPrefix(s, sealedPrefix) && strings.HasSuffix(s, sealedSuffix)
}
