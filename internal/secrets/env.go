package secrets

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
)

// SetEntry writes or replaces KEY=VALUE in a .env file, keeping comments,
// blank lines and ordering. New keys are appended.
func SetEntry(path, key, value string) error {
	lines, err := readLines(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read dotenv: %w", err)
	}

	entry := key + "=" + quoteValue(value)
	replaced := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		k, _, ok := strings.Cut(trimmed, "=")
		if ok && strings.TrimSpace(k) == key {
			lines[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		lines = append(lines, entry)
	}

	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		return fmt.Errorf("write dotenv: %w", err)
	}
	return nil
}

// SetSealedEntry seals value and stores it under key.
func (s *Sealer) SetSealedEntry(path, key, value string) error {
	blob, err := s.Seal(value)
	if err != nil {
		return err
	}
	return SetEntry(path, key, blob)
}

// DecryptEnv replaces every sealed environment value with its plaintext and
// returns the names it decrypted. Values that fail to unseal are left as is.
func (s *Sealer) DecryptEnv() []string {
	var done []string
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !IsSealed(v) {
			continue
		}
		plain, err := s.Unseal(v)
		if err != nil {
			slog.Warn("cannot decrypt env value", "key", k, "error", err)
			continue
		}
		if err := os.Setenv(k, plain); err != nil {
			slog.Warn("cannot set env value", "key", k, "error", err)
			continue
		}
		done = append(done, k)
	}
	return done
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

func quoteValue(v string) string {
	if !strings.ContainsAny(v, " \t\"'\\#$") {
		return v
	}
	escaped := strings.ReplaceAll(v, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `"` + escaped + `"`
}
