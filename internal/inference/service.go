// Package inference is the stateless request/response layer over the chat
// models: task difficulty classification, the oracle chat and research
// queries.
package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	ecallbacks "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/orbit/internal/callbacks"
	"github.com/dohr-michael/orbit/internal/config"
	"github.com/dohr-michael/orbit/internal/domain"
	"github.com/dohr-michael/orbit/internal/models"
)

// Literal results returned by Chat instead of errors.
const (
	MissingKeyMarker  = "[ERROR]: API_KEY missing."
	SilenceMarker     = "[SILENCE]"
	ErrorMarkerPrefix = "[ERROR]: "
)

// ErrMissingCredentials is returned by Research when no model credentials
// are configured.
var ErrMissingCredentials = models.ErrMissingCredentials

// StatsContext is the user data the oracle is primed with.
type StatsContext struct {
	TasksCompleted int
	TasksForfeited int
	StreakDays     int
}

// Service is the inference surface the store depends on.
type Service interface {
	// ClassifyDifficulty never fails: missing credentials yield Easy and any
	// other failure yields Medium.
	ClassifyDifficulty(ctx context.Context, title string) domain.Difficulty
	// Chat never fails: failures are reported as marker strings.
	Chat(ctx context.Context, history []domain.ChatMessage, stats StatsContext) string
	Research(ctx context.Context, query, instructions string, deepDive bool) (*domain.IntelQueryResult, error)
}

// ModelSource resolves the model for a provider name.
type ModelSource interface {
	Get(ctx context.Context, name string) (model.ToolCallingChatModel, error)
	Driver(name string) string
}

// Engine implements Service over a ModelSource.
type Engine struct {
	models   ModelSource
	roles    config.RolesConfig
	timeout  time.Duration
	searcher Searcher
	handler  ecallbacks.Handler
}

// Option configures an Engine.
type Option func(*Engine)

// WithSearcher grounds research queries on web results.
func WithSearcher(s Searcher) Option {
	return func(e *Engine) { e.searcher = s }
}

// WithCallbacks publishes model calls through h.
func WithCallbacks(h ecallbacks.Handler) Option {
	return func(e *Engine) { e.handler = h }
}

// NewEngine creates an Engine. Roles left empty in cfg use the source's
// default provider.
func NewEngine(src ModelSource, cfg config.InferenceConfig, opts ...Option) *Engine {
	e := &Engine{
		models:  src,
		roles:   cfg.Roles,
		timeout: cfg.Timeout.Duration(),
	}
	if e.timeout <= 0 {
		e.timeout = 2 * time.Minute
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) generate(ctx context.Context, role, provider string, msgs []*schema.Message, opts ...model.Option) (string, error) {
	m, err := e.models.Get(ctx, provider)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	ctx = callbacks.WithModel(ctx, e.handler, role, e.models.Driver(provider))

	out, err := m.Generate(ctx, msgs, opts...)
	if err != nil {
		return "", models.HandleError(err)
	}
	if out == nil {
		return "", nil
	}
	return strings.TrimSpace(out.Content), nil
}

// ClassifyDifficulty asks the classifier model for the effort of a task.
func (e *Engine) ClassifyDifficulty(ctx context.Context, title string) domain.Difficulty {
	text, err := e.generate(ctx, "classifier", e.roles.Classifier,
		[]*schema.Message{schema.UserMessage(fmt.Sprintf(classifyPrompt, title))},
		model.WithTemperature(0.1),
	)
	if errors.Is(err, models.ErrMissingCredentials) {
		return domain.DifficultyEasy
	}
	if err != nil {
		slog.Warn("classify difficulty failed", "title", title, "error", err)
		return domain.DifficultyMedium
	}
	d, err := parseDifficulty(text)
	if err != nil {
		slog.Debug("unparsable difficulty", "reply", text, "error", err)
		return domain.DifficultyMedium
	}
	return d
}

// Chat answers the last turn of history in the oracle persona.
func (e *Engine) Chat(ctx context.Context, history []domain.ChatMessage, stats StatsContext) string {
	msgs := make([]*schema.Message, 0, len(history)+1)
	msgs = append(msgs, schema.SystemMessage(oracleSystemPrompt(stats)))
	for _, m := range history {
		if m.Role == domain.RoleUser {
			msgs = append(msgs, schema.UserMessage(m.Text))
		} else {
			msgs = append(msgs, schema.AssistantMessage(m.Text, nil))
		}
	}

	text, err := e.generate(ctx, "oracle", e.roles.Oracle, msgs,
		model.WithTemperature(0.7),
		model.WithMaxTokens(500),
	)
	if errors.Is(err, models.ErrMissingCredentials) {
		return MissingKeyMarker
	}
	if err != nil {
		return ErrorMarkerPrefix + err.Error()
	}
	if text == "" {
		return SilenceMarker
	}
	return text
}

// Research runs a research query. Deep dives use the deep_research role and
// an exhaustive prompt.
func (e *Engine) Research(ctx context.Context, query, instructions string, deepDive bool) (*domain.IntelQueryResult, error) {
	role, provider := "research", e.roles.Research
	opts := []model.Option{model.WithMaxTokens(2048)}
	if deepDive {
		role, provider = "deep_research", e.roles.DeepResearch
		opts = nil
	}

	var grounding []domain.Source
	if e.searcher != nil {
		sources, err := e.searcher.Search(ctx, query)
		if err != nil {
			slog.Warn("web search failed, researching without grounding", "query", query, "error", err)
		}
		grounding = sources
	}

	text, err := e.generate(ctx, role, provider, []*schema.Message{
		schema.SystemMessage(researchSystemPrompt(instructions, deepDive)),
		schema.UserMessage(researchUserPrompt(query, grounding)),
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("research %q: %w", query, err)
	}
	if text == "" {
		return nil, fmt.Errorf("research %q: no response from model", query)
	}
	res, err := parseResearch(text)
	if err != nil {
		return nil, fmt.Errorf("research %q: %w", query, err)
	}
	return res, nil
}

var _ Service = (*Engine)(nil)
