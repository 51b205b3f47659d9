package config

import (
	"os"
	"path/filepath"
)

// OrbitPath returns the root directory for Orbit data.
// It uses $ORBIT_PATH if set, otherwise defaults to ~/.orbit.
func OrbitPath() string {
	if v := os.Getenv("ORBIT_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".orbit")
	}
	return filepath.Join(home, ".orbit")
}

// ConfigPath returns the path to the Orbit config file.
func ConfigPath() string {
	return filepath.Join(OrbitPath(), "config.jsonc")
}

// DotenvPath returns the path to the Orbit .env file.
func DotenvPath() string {
	return filepath.Join(OrbitPath(), ".env")
}

// KeyPath returns the path to the age identity protecting local secrets.
func KeyPath() string {
	return filepath.Join(OrbitPath(), ".age-key")
}

// HeartbeatPath returns the path of the `orbit serve` heartbeat file.
func HeartbeatPath() string {
	return filepath.Join(OrbitPath(), "serve.heartbeat")
}
