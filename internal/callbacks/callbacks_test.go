package callbacks

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/orbit/internal/events"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func TestModelCallbacks(t *testing.T) {
	rec := &recorder{}
	h := NewEventBusHandler(rec, "")

	ctx := WithModel(context.Background(), h, "oracle", "gemini")
	ctx = callbacks.OnStart(ctx, &model.CallbackInput{
		Messages: []*schema.Message{schema.UserMessage("hi"), schema.UserMessage("again")},
	})
	callbacks.OnEnd(ctx, &model.CallbackOutput{
		Message:    schema.AssistantMessage("hello", nil),
		TokenUsage: &model.TokenUsage{PromptTokens: 12, CompletionTokens: 3},
	})

	if len(rec.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(rec.events))
	}
	start, ok := events.GetLLMCallPayload(rec.events[0])
	if !ok {
		t.Fatal("expected an LLM call payload")
	}
	if start.Phase != "request" || start.Model != "oracle" || start.Provider != "gemini" || start.MessageCount != 2 {
		t.Errorf("unexpected start payload %+v", start)
	}
	if rec.events[0].Source != events.SourceInference {
		t.Errorf("expected inference source, got %q", rec.events[0].Source)
	}
	end, _ := events.GetLLMCallPayload(rec.events[1])
	if end.Phase != "response" || end.TokensInput != 12 || end.TokensOutput != 3 {
		t.Errorf("unexpected end payload %+v", end)
	}
}

func TestModelCallbacks_Error(t *testing.T) {
	rec := &recorder{}
	ctx := WithModel(context.Background(), NewEventBusHandler(rec, events.SourceStore), "classifier", "ollama")
	callbacks.OnError(ctx, errors.New("boom"))

	if len(rec.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(rec.events))
	}
	p, _ := events.GetLLMCallPayload(rec.events[0])
	if p.Phase != "error" || p.Error != "boom" {
		t.Errorf("unexpected payload %+v", p)
	}
}

func TestToolCallbacks(t *testing.T) {
	rec := &recorder{}
	ctx := WithTool(context.Background(), NewEventBusHandler(rec, ""), "web_search")
	ctx = callbacks.OnStart(ctx, &tool.CallbackInput{ArgumentsInJSON: `{"query":"photosynthesis"}`})
	callbacks.OnEnd(ctx, &tool.CallbackOutput{Response: strings.Repeat("r", 2000)})

	if len(rec.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(rec.events))
	}
	if rec.events[0].Type != events.EventToolCall {
		t.Fatalf("expected tool call event, got %q", rec.events[0].Type)
	}
	end, ok := events.ExtractPayload[events.ToolCallPayload](rec.events[1])
	if !ok {
		t.Fatal("expected a tool payload")
	}
	if end.Status != events.ToolStatusCompleted || !strings.HasSuffix(end.Result, "... (truncated)") {
		t.Errorf("unexpected end payload status=%q len=%d", end.Status, len(end.Result))
	}
}

func TestWithModel_NilHandler(t *testing.T) {
	ctx := context.Background()
	if WithModel(ctx, nil, "oracle", "gemini") != ctx {
		t.Fatal("expected ctx to be returned unchanged")
	}
}

func TestTruncatePayload(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 100, "hello"},
		{strings.Repeat("a", 50), 50, strings.Repeat("a", 50)},
		{strings.Repeat("x", 200), 100, strings.Repeat("x", 100) + "... (truncated)"},
		{"hello world", 0, "hello world"},
	}
	for _, tc := range cases {
		if got := truncatePayload(tc.in, tc.max); got != tc.want {
			t.Errorf("truncatePayload(len %d, %d) = len %d", len(tc.in), tc.max, len(got))
		}
	}
}

func TestModelCallbacks_TaggedWithSession(t *testing.T) {
	rec := &recorder{}
	h := NewEventBusHandler(rec, "")

	ctx := events.ContextWithSessionID(context.Background(), "user-1")
	ctx = WithModel(ctx, h, "classifier", "ollama")
	callbacks.OnStart(ctx, &model.CallbackInput{Messages: []*schema.Message{schema.UserMessage("hi")}})

	if len(rec.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(rec.events))
	}
	if rec.events[0].SessionID != "user-1" {
		t.Fatalf("expected session user-1, got %q", rec.events[0].SessionID)
	}
}
