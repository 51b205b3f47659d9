package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeDotenv(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDotenv(t *testing.T) {
	path := writeDotenv(t, `# Inference
GEMINI_API_KEY=gm-123
ORBIT_REMOTE="http://127.0.0.1:7420"
BING_KEY='bing-456'

# Spaces around =
ORBIT_SPACED = spaced_value
not-a-pair
`)

	for _, k := range []string{"GEMINI_API_KEY", "ORBIT_REMOTE", "BING_KEY", "ORBIT_SPACED"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	if err := LoadDotenv(path); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		key, want string
	}{
		{"GEMINI_API_KEY", "gm-123"},
		{"ORBIT_REMOTE", "http://127.0.0.1:7420"},
		{"BING_KEY", "bing-456"},
		{"ORBIT_SPACED", "spaced_value"},
	}
	for _, tt := range tests {
		if got := os.Getenv(tt.key); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestLoadDotenvNoOverride(t *testing.T) {
	path := writeDotenv(t, `GEMINI_API_KEY=from-file`)
	t.Setenv("GEMINI_API_KEY", "from-env")

	if err := LoadDotenv(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("GEMINI_API_KEY"); got != "from-env" {
		t.Errorf("expected existing var to be preserved, got %q", got)
	}
}

func TestReloadDotenvOverrides(t *testing.T) {
	path := writeDotenv(t, `GEMINI_API_KEY=rotated`)
	t.Setenv("GEMINI_API_KEY", "old")

	if err := ReloadDotenv(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("GEMINI_API_KEY"); got != "rotated" {
		t.Errorf("expected reload to override, got %q", got)
	}
}

func TestLoadDotenvMissingFile(t *testing.T) {
	if err := LoadDotenv("/nonexistent/.env"); err != nil {
		t.Errorf("missing file should be silently ignored, got: %v", err)
	}
}
