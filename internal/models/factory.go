package models

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"github.com/dohr-michael/orbit/internal/config"
)

// Supported drivers.
const (
	DriverGemini    = "gemini"
	DriverAnthropic = "anthropic"
	DriverOpenAI    = "openai"
	DriverMistral   = "mistral"
	DriverOllama    = "ollama"
)

const (
	defaultTimeout        = 60 * time.Second
	defaultGeminiModel    = "gemini-2.5-flash"
	defaultClaudeModel    = "claude-sonnet-4-20250514"
	defaultClaudeTokens   = 4096
	defaultMistralBaseURL = "https://api.mistral.ai/v1"
	defaultMistralModel   = "mistral-small-latest"
)

func normalizeDriver(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	if d == "claude" {
		return DriverAnthropic
	}
	return d
}

// CreateModel creates a model.ToolCallingChatModel from a provider config.
func CreateModel(ctx context.Context, cfg config.ProviderConfig) (model.ToolCallingChatModel, error) {
	driver := normalizeDriver(cfg.Driver)
	switch driver {
	case DriverGemini, DriverAnthropic, DriverOpenAI, DriverMistral, DriverOllama:
	default:
		return nil, fmt.Errorf("unknown driver: %s", cfg.Driver)
	}

	auth, err := ResolveAuth(cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve auth: %w", err)
	}

	switch driver {
	case DriverGemini:
		return NewGemini(ctx, cfg, auth)
	case DriverAnthropic:
		return NewClaude(ctx, cfg, auth)
	case DriverOpenAI:
		return NewOpenAI(ctx, cfg, auth)
	case DriverMistral:
		return NewMistral(ctx, cfg, auth)
	default:
		return NewOllama(ctx, cfg)
	}
}

func timeoutOf(cfg config.ProviderConfig) time.Duration {
	if d := cfg.Timeout.Duration(); d > 0 {
		return d
	}
	return defaultTimeout
}

func temperatureOf(cfg config.ProviderConfig) *float32 {
	if cfg.Temperature != nil {
		t := *cfg.Temperature
		return &t
	}
	if temp, ok := cfg.Options["temperature"].(float64); ok {
		t := float32(temp)
		return &t
	}
	return nil
}

// NewGemini creates a Gemini ChatModel over the Gemini API backend.
func NewGemini(ctx context.Context, cfg config.ProviderConfig, auth ResolvedAuth) (model.ToolCallingChatModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     auth.Value,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeoutOf(cfg)},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultGeminiModel
	}
	modelConfig := &gemini.Config{
		Client:      client,
		Model:       modelName,
		Temperature: temperatureOf(cfg),
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		modelConfig.MaxTokens = &maxTokens
	}
	return gemini.NewChatModel(ctx, modelConfig)
}

// NewClaude creates an Anthropic ChatModel.
func NewClaude(ctx context.Context, cfg config.ProviderConfig, auth ResolvedAuth) (model.ToolCallingChatModel, error) {
	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultClaudeModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultClaudeTokens
	}

	modelConfig := &claude.Config{
		APIKey:      auth.Value,
		Model:       modelName,
		MaxTokens:   maxTokens,
		Temperature: temperatureOf(cfg),
	}
	if cfg.BaseURL != "" {
		baseURL := cfg.BaseURL
		modelConfig.BaseURL = &baseURL
	}
	return claude.NewChatModel(ctx, modelConfig)
}

// NewOpenAI creates an OpenAI ChatModel.
func NewOpenAI(ctx context.Context, cfg config.ProviderConfig, auth ResolvedAuth) (model.ToolCallingChatModel, error) {
	modelConfig := &einoopenai.ChatModelConfig{
		APIKey:      auth.Value,
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		Timeout:     timeoutOf(cfg),
		Temperature: temperatureOf(cfg),
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		modelConfig.MaxCompletionTokens = &maxTokens
	}
	return einoopenai.NewChatModel(ctx, modelConfig)
}

// NewMistral creates a Mistral ChatModel through the OpenAI-compatible API.
func NewMistral(ctx context.Context, cfg config.ProviderConfig, auth ResolvedAuth) (model.ToolCallingChatModel, error) {
	if cfg.Model == "" {
		cfg.Model = defaultMistralModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultMistralBaseURL
	}
	return NewOpenAI(ctx, cfg, auth)
}
