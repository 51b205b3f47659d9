package models

import (
	"fmt"
	"os"
	"strings"

	"github.com/dohr-michael/orbit/internal/config"
)

// AuthKind distinguishes between API key and Bearer token auth.
type AuthKind int

const (
	AuthNone AuthKind = iota
	AuthAPIKey
	AuthBearerToken
)

// ResolvedAuth holds the resolved credentials and their kind.
type ResolvedAuth struct {
	Kind  AuthKind
	Value string
}

// driverEnv lists the environment variables each driver falls back to, in order.
var driverEnv = map[string][]string{
	DriverGemini:    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	DriverAnthropic: {"ANTHROPIC_API_KEY"},
	DriverOpenAI:    {"OPENAI_API_KEY"},
	DriverMistral:   {"MISTRAL_API_KEY"},
}

// ResolveAuth resolves the credentials for a provider.
// Resolution order: token, api_key (literal or ${VAR}), driver default env.
// Ollama needs none. Missing credentials wrap ErrMissingCredentials.
func ResolveAuth(cfg config.ProviderConfig) (ResolvedAuth, error) {
	if token := resolveValue(cfg.Auth.Token); token != "" {
		return ResolvedAuth{Kind: AuthBearerToken, Value: token}, nil
	}
	if key := resolveValue(cfg.Auth.APIKey); key != "" {
		return ResolvedAuth{Kind: AuthAPIKey, Value: key}, nil
	}

	driver := normalizeDriver(cfg.Driver)
	if driver == DriverOllama {
		return ResolvedAuth{Kind: AuthNone}, nil
	}
	vars, ok := driverEnv[driver]
	if !ok {
		return ResolvedAuth{}, fmt.Errorf("unknown driver %q: cannot resolve auth", cfg.Driver)
	}
	for _, name := range vars {
		if key := os.Getenv(name); key != "" {
			return ResolvedAuth{Kind: AuthAPIKey, Value: key}, nil
		}
	}
	return ResolvedAuth{}, fmt.Errorf("%w: %s not set", ErrMissingCredentials, strings.Join(vars, " or "))
}

func resolveValue(v string) string {
	trimmed := strings.TrimSpace(v)
	if strings.HasPrefix(trimmed, "${") && strings.HasSuffix(trimmed, "}") {
		return os.Getenv(trimmed[2 : len(trimmed)-1])
	}
	return trimmed
}
