package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/tailscale/hujson"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// Load reads a JSONC config file, expands ${{ .Env.VAR }} templates,
// standardizes it to JSON, unmarshals it into Config, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// LoadOrDefault behaves like Load but returns the defaults when the file
// does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// Parse decodes JSONC config content.
func Parse(data []byte) (*Config, error) {
	// Expand environment variable templates (before standardizing, since templates are in strings)
	expanded := expandEnvTemplates(string(data))

	std, err := hujson.Standardize([]byte(expanded))
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(std, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// applyDefaults fills in zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Remote.DSN == "" {
		if v := os.Getenv("ORBIT_REMOTE"); v != "" {
			cfg.Remote.DSN = v
		} else {
			cfg.Remote.DSN = "sqlite://" + filepath.Join(OrbitPath(), "orbit.db")
		}
	}
	if cfg.Remote.Timeout == 0 {
		cfg.Remote.Timeout = Duration(15 * time.Second)
	}
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "127.0.0.1"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 7420
	}
	if cfg.Gateway.DSN == "" {
		cfg.Gateway.DSN = cfg.Remote.DSN
	}
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1024
	}

	if len(cfg.Models.Providers) == 0 {
		cfg.Models.Providers = map[string]ProviderConfig{
			"gemini":      {Driver: "gemini", Model: "gemini-2.5-flash"},
			"gemini-deep": {Driver: "gemini", Model: "gemini-2.5-pro"},
		}
		if cfg.Models.Default == "" {
			cfg.Models.Default = "gemini"
		}
		if cfg.Inference.Roles.DeepResearch == "" {
			cfg.Inference.Roles.DeepResearch = "gemini-deep"
		}
	}
	if cfg.Models.Default == "" {
		for name := range cfg.Models.Providers {
			if cfg.Models.Default == "" || name < cfg.Models.Default {
				cfg.Models.Default = name
			}
		}
	}
	roles := &cfg.Inference.Roles
	for _, r := range []*string{&roles.Classifier, &roles.Oracle, &roles.Research, &roles.DeepResearch} {
		if *r == "" {
			*r = cfg.Models.Default
		}
	}
	if cfg.Inference.Timeout == 0 {
		cfg.Inference.Timeout = Duration(2 * time.Minute)
	}
	if cfg.Inference.WebSearch.MaxResults == 0 {
		cfg.Inference.WebSearch.MaxResults = 5
	}

	if cfg.Sync.Resync == "" {
		cfg.Sync.Resync = "*/5 * * * *"
	}
	if cfg.Sessions.Dir == "" {
		cfg.Sessions.Dir = filepath.Join(OrbitPath(), "sessions")
	}
	if cfg.Sessions.HistoryLimit == 0 {
		cfg.Sessions.HistoryLimit = 200
	}
	// Auth resolution is deferred to models.ResolveAuth() at model init time.
}
