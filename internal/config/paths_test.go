package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOrbitPath_Default(t *testing.T) {
	t.Setenv("ORBIT_PATH", "")

	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatal(err)
	}

	got := OrbitPath()
	want := filepath.Join(home, ".orbit")
	if got != want {
		t.Errorf("OrbitPath() = %q, want %q", got, want)
	}
}

func TestOrbitPath_EnvOverride(t *testing.T) {
	t.Setenv("ORBIT_PATH", "/tmp/custom-orbit")

	got := OrbitPath()
	want := "/tmp/custom-orbit"
	if got != want {
		t.Errorf("OrbitPath() = %q, want %q", got, want)
	}
}

func TestConfigPath(t *testing.T) {
	t.Setenv("ORBIT_PATH", "/tmp/test-orbit")

	got := ConfigPath()
	want := "/tmp/test-orbit/config.jsonc"
	if got != want {
		t.Errorf("ConfigPath() = %q, want %q", got, want)
	}
}

func TestDotenvPath(t *testing.T) {
	t.Setenv("ORBIT_PATH", "/tmp/test-orbit")

	got := DotenvPath()
	want := "/tmp/test-orbit/.env"
	if got != want {
		t.Errorf("DotenvPath() = %q, want %q", got, want)
	}
}

func TestKeyAndHeartbeatPaths(t *testing.T) {
	t.Setenv("ORBIT_PATH", "/tmp/test-orbit")

	if got := KeyPath(); got != "/tmp/test-orbit/.age-key" {
		t.Errorf("KeyPath() = %q", got)
	}
	if got := HeartbeatPath(); got != "/tmp/test-orbit/serve.heartbeat" {
		t.Errorf("HeartbeatPath() = %q", got)
	}
}
