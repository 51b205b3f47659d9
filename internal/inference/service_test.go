package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/orbit/internal/config"
	"github.com/dohr-michael/orbit/internal/domain"
	"github.com/dohr-michael/orbit/internal/models"
)

// scriptedModel replies with reply (or err) and records what it was sent.
type scriptedModel struct {
	mu    sync.Mutex
	reply string
	err   error
	calls [][]*schema.Message
	opts  [][]model.Option
}

func (m *scriptedModel) Generate(_ context.Context, msgs []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, msgs)
	m.opts = append(m.opts, opts)
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *scriptedModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func (m *scriptedModel) WithTools([]*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

type fakeSource struct {
	models map[string]model.ToolCallingChatModel
	err    error
}

func (s *fakeSource) Get(_ context.Context, name string) (model.ToolCallingChatModel, error) {
	if s.err != nil {
		return nil, s.err
	}
	m, ok := s.models[name]
	if !ok {
		return nil, fmt.Errorf("model provider %q not found", name)
	}
	return m, nil
}

func (s *fakeSource) Driver(string) string { return "fake" }

func newEngine(m model.ToolCallingChatModel, opts ...Option) *Engine {
	src := &fakeSource{models: map[string]model.ToolCallingChatModel{"main": m, "deep": m}}
	return NewEngine(src, config.InferenceConfig{Roles: config.RolesConfig{
		Classifier: "main", Oracle: "main", Research: "main", DeepResearch: "deep",
	}}, opts...)
}

func missingCreds() *Engine {
	return NewEngine(&fakeSource{err: fmt.Errorf("resolve auth: %w", models.ErrMissingCredentials)}, config.InferenceConfig{})
}

func TestClassifyDifficulty(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		err   error
		want  domain.Difficulty
	}{
		{"plain json", `{"difficulty":"Hard"}`, nil, domain.DifficultyHard},
		{"fenced", "```json\n{\"difficulty\": \"Easy\"}\n```", nil, domain.DifficultyEasy},
		{"unknown level", `{"difficulty":"Extreme"}`, nil, domain.DifficultyMedium},
		{"not json", "it depends", nil, domain.DifficultyMedium},
		{"model error", "", errors.New("boom"), domain.DifficultyMedium},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := &scriptedModel{reply: tc.reply, err: tc.err}
			got := newEngine(m).ClassifyDifficulty(context.Background(), "Write history essay")
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClassifyDifficulty_NoCredentials(t *testing.T) {
	if got := missingCreds().ClassifyDifficulty(context.Background(), "x"); got != domain.DifficultyEasy {
		t.Fatalf("expected Easy without credentials, got %q", got)
	}
}

func TestClassifyDifficulty_LowTemperature(t *testing.T) {
	m := &scriptedModel{reply: `{"difficulty":"Easy"}`}
	newEngine(m).ClassifyDifficulty(context.Background(), "Check email")

	opts := model.GetCommonOptions(nil, m.opts[0]...)
	if opts.Temperature == nil || *opts.Temperature != 0.1 {
		t.Fatalf("expected temperature 0.1, got %v", opts.Temperature)
	}
	if !strings.Contains(m.calls[0][0].Content, `"Check email"`) {
		t.Fatalf("expected the title in the prompt, got %q", m.calls[0][0].Content)
	}
}

func TestChat(t *testing.T) {
	m := &scriptedModel{reply: "Focus."}
	history := []domain.ChatMessage{
		{Role: domain.RoleModel, Text: domain.BootMessage},
		{Role: domain.RoleUser, Text: "help me"},
	}
	got := newEngine(m).Chat(context.Background(), history, StatsContext{TasksCompleted: 3, TasksForfeited: 2})
	if got != "Focus." {
		t.Fatalf("got %q", got)
	}

	sent := m.calls[0]
	if len(sent) != 3 {
		t.Fatalf("expected system + 2 history messages, got %d", len(sent))
	}
	if sent[0].Role != schema.System || !strings.Contains(sent[0].Content, "Tasks FORFEITED (Gave up): 2") {
		t.Errorf("unexpected system prompt %q", sent[0].Content)
	}
	if sent[1].Role != schema.Assistant || sent[2].Role != schema.User {
		t.Errorf("unexpected roles %q %q", sent[1].Role, sent[2].Role)
	}
}

func TestChat_Markers(t *testing.T) {
	ctx := context.Background()
	if got := missingCreds().Chat(ctx, nil, StatsContext{}); got != MissingKeyMarker {
		t.Errorf("missing credentials: got %q", got)
	}
	if got := newEngine(&scriptedModel{reply: "   "}).Chat(ctx, nil, StatsContext{}); got != SilenceMarker {
		t.Errorf("empty reply: got %q", got)
	}
	got := newEngine(&scriptedModel{err: errors.New("upstream exploded")}).Chat(ctx, nil, StatsContext{})
	if !strings.HasPrefix(got, ErrorMarkerPrefix) || !strings.Contains(got, "upstream exploded") {
		t.Errorf("failure: got %q", got)
	}
}

const photosynthesis = `{
  "summary_bullets": ["Plants convert light into chemical energy."],
  "sources": [{"title": "Britannica", "url": "https://www.britannica.com/science/photosynthesis", "snippet": "..."}],
  "related_concepts": ["Chlorophyll"],
  "essay": "# Photosynthesis\n\nLight reactions and the Calvin cycle."
}`

func TestResearch(t *testing.T) {
	m := &scriptedModel{reply: "Here you go:\n```json\n" + photosynthesis + "\n```"}
	res, err := newEngine(m).Research(context.Background(), "photosynthesis", "", false)
	if err != nil {
		t.Fatalf("Research: %v", err)
	}
	if len(res.SummaryBullets) == 0 || res.Essay == "" {
		t.Fatalf("expected bullets and essay, got %+v", res)
	}
	if res.Sources[0].Title != "Britannica" {
		t.Errorf("unexpected sources %+v", res.Sources)
	}

	sys := m.calls[0][0].Content
	if !strings.Contains(sys, "STANDARD BRIEF") || !strings.Contains(sys, defaultInstructions) {
		t.Errorf("unexpected system prompt %q", sys)
	}
	opts := model.GetCommonOptions(nil, m.opts[0]...)
	if opts.MaxTokens == nil || *opts.MaxTokens != 2048 {
		t.Errorf("expected 2048 max tokens for a standard brief")
	}
}

func TestResearch_DeepDiveUsesDeepRole(t *testing.T) {
	std := &scriptedModel{reply: photosynthesis}
	deep := &scriptedModel{reply: photosynthesis}
	src := &fakeSource{models: map[string]model.ToolCallingChatModel{"main": std, "deep": deep}}
	e := NewEngine(src, config.InferenceConfig{Roles: config.RolesConfig{Research: "main", DeepResearch: "deep"}})

	if _, err := e.Research(context.Background(), "photosynthesis", "Cite primary literature.", true); err != nil {
		t.Fatalf("Research: %v", err)
	}
	if len(std.calls) != 0 || len(deep.calls) != 1 {
		t.Fatalf("expected only the deep model to be called, got std=%d deep=%d", len(std.calls), len(deep.calls))
	}
	sys := deep.calls[0][0].Content
	if !strings.Contains(sys, "DEEP DIVE") || !strings.Contains(sys, "Cite primary literature.") {
		t.Errorf("unexpected system prompt %q", sys)
	}
}

func TestResearch_Errors(t *testing.T) {
	ctx := context.Background()
	if _, err := missingCreds().Research(ctx, "q", "", false); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}
	if _, err := newEngine(&scriptedModel{reply: ""}).Research(ctx, "q", "", false); err == nil {
		t.Error("expected error for empty reply")
	}
	if _, err := newEngine(&scriptedModel{reply: "no json here"}).Research(ctx, "q", "", false); err == nil {
		t.Error("expected error for unparsable reply")
	}
	if _, err := newEngine(&scriptedModel{err: errors.New("boom")}).Research(ctx, "q", "", false); err == nil {
		t.Error("expected model error to propagate")
	}
}

type fakeSearcher struct {
	sources []domain.Source
	err     error
	queries []string
}

func (s *fakeSearcher) Search(_ context.Context, q string) ([]domain.Source, error) {
	s.queries = append(s.queries, q)
	return s.sources, s.err
}

func TestResearch_WebGrounding(t *testing.T) {
	m := &scriptedModel{reply: photosynthesis}
	s := &fakeSearcher{sources: []domain.Source{{Title: "Khan Academy", URL: "https://khanacademy.org/photo", Snippet: "Intro"}}}
	if _, err := newEngine(m, WithSearcher(s)).Research(context.Background(), "photosynthesis", "", false); err != nil {
		t.Fatalf("Research: %v", err)
	}
	if len(s.queries) != 1 || s.queries[0] != "photosynthesis" {
		t.Fatalf("unexpected search queries %v", s.queries)
	}
	user := m.calls[0][1].Content
	if !strings.Contains(user, "WEB RESULTS") || !strings.Contains(user, "https://khanacademy.org/photo") {
		t.Errorf("expected grounding in the prompt, got %q", user)
	}
}

func TestResearch_SearchFailureIsNotFatal(t *testing.T) {
	m := &scriptedModel{reply: photosynthesis}
	s := &fakeSearcher{err: errors.New("rate limited")}
	if _, err := newEngine(m, WithSearcher(s)).Research(context.Background(), "photosynthesis", "", false); err != nil {
		t.Fatalf("Research: %v", err)
	}
	if strings.Contains(m.calls[0][1].Content, "WEB RESULTS") {
		t.Error("expected no grounding section")
	}
}
