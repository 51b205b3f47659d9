package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dohr-michael/orbit/internal/domain"
	"github.com/dohr-michael/orbit/internal/store"
)

type fakeIntents struct {
	snap    store.Snapshot
	created []domain.TaskInput
	toggled map[string]bool
	saved   []bool
	err     error
}

func (f *fakeIntents) Snapshot() store.Snapshot { return f.snap }

func (f *fakeIntents) CreateTask(_ context.Context, in domain.TaskInput) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, in)
	return nil
}

func (f *fakeIntents) ToggleTask(_ context.Context, key string, previous bool) error {
	if f.toggled == nil {
		f.toggled = make(map[string]bool)
	}
	f.toggled[key] = previous
	return f.err
}

func (f *fakeIntents) ForfeitTask(context.Context, string) error { return f.err }

func (f *fakeIntents) AskOracle(_ context.Context, q string) (domain.ChatMessage, error) {
	if f.err != nil {
		return domain.ChatMessage{}, f.err
	}
	return domain.ChatMessage{Role: domain.RoleModel, Text: "echo: " + q}, nil
}

func (f *fakeIntents) ExecuteIntelQuery(_ context.Context, q string, _ bool) (*domain.IntelQueryResult, error) {
	return &domain.IntelQueryResult{SummaryBullets: []string{q}}, f.err
}

func (f *fakeIntents) SaveIntelDrop(_ context.Context, _ string, private bool) error {
	f.saved = append(f.saved, private)
	return f.err
}

func (f *fakeIntents) PublishManualDrop(context.Context, string, string, []string) error {
	return f.err
}

func (f *fakeIntents) FetchIntelDrops(context.Context) error { return f.err }

func findTool(t *testing.T, name string) tool {
	t.Helper()
	for _, tl := range tools() {
		if tl.spec.Name == name {
			return tl
		}
	}
	t.Fatalf("tool %q not registered", name)
	return tool{}
}

func TestToolSpecToMCPTool(t *testing.T) {
	spec := &ToolSpec{
		Name:        "test_tool",
		Description: "A test tool",
		Parameters: map[string]ParamSpec{
			"name":  {Type: "string", Description: "The name", Required: true},
			"count": {Type: "integer", Description: "A count"},
			"mode":  {Type: "string", Description: "The mode", Required: true, Enum: []string{"fast", "slow"}},
			"tags":  {Type: "array", Description: "Tags"},
		},
	}

	mcpTool := toolSpecToMCPTool(spec)
	if mcpTool.Name != "test_tool" {
		t.Errorf("Name = %q, want %q", mcpTool.Name, "test_tool")
	}

	schemaBytes, err := json.Marshal(mcpTool.InputSchema)
	if err != nil {
		t.Fatalf("marshal InputSchema: %v", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(schemaBytes, &schema); err != nil {
		t.Fatalf("unmarshal InputSchema: %v", err)
	}

	if schema["type"] != "object" {
		t.Errorf("schema type = %v, want %q", schema["type"], "object")
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatal("schema properties not a map")
	}
	if len(props) != 4 {
		t.Errorf("schema properties len = %d, want 4", len(props))
	}
	req, ok := schema["required"].([]any)
	if !ok || len(req) != 2 || req[0] != "mode" || req[1] != "name" {
		t.Errorf("schema required = %v, want [mode name]", schema["required"])
	}
	tags := props["tags"].(map[string]any)
	if _, ok := tags["items"]; !ok {
		t.Error("array parameter should declare items")
	}
}

func TestToolSpecToMCPTool_NoParams(t *testing.T) {
	mcpTool := toolSpecToMCPTool(&ToolSpec{Name: "simple"})

	schemaBytes, err := json.Marshal(mcpTool.InputSchema)
	if err != nil {
		t.Fatalf("marshal InputSchema: %v", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(schemaBytes, &schema); err != nil {
		t.Fatalf("unmarshal InputSchema: %v", err)
	}
	if _, ok := schema["required"]; ok {
		t.Error("schema should not have required field when no params are required")
	}
}

func TestToolNames_Filter(t *testing.T) {
	if all := ToolNames(""); len(all) != len(tools()) {
		t.Fatalf("expected %d tools, got %d", len(tools()), len(all))
	}
	intel := ToolNames("intel")
	if len(intel) != 4 {
		t.Fatalf("expected 4 intel tools, got %v", intel)
	}
	if got := ToolNames("ask_oracle"); len(got) != 1 || got[0] != "ask_oracle" {
		t.Fatalf("expected only ask_oracle, got %v", got)
	}
	if got := ToolNames("nothing"); len(got) != 0 {
		t.Fatalf("expected no tools, got %v", got)
	}
}

func TestCreateTask_ParsesEnums(t *testing.T) {
	in := &fakeIntents{snap: store.Snapshot{Authenticated: true}}
	args := json.RawMessage(`{"title":"Ship it","category":"quick","difficulty":"HARD"}`)

	if _, err := invoke(context.Background(), in, findTool(t, "create_task"), args); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if len(in.created) != 1 {
		t.Fatalf("expected one create, got %d", len(in.created))
	}
	got := in.created[0]
	if got.Category != domain.CategoryQuick || got.Difficulty != domain.DifficultyHard {
		t.Fatalf("unexpected input %+v", got)
	}

	if _, err := invoke(context.Background(), in, findTool(t, "create_task"), json.RawMessage(`{"title":"x","category":"lazy"}`)); err == nil {
		t.Fatal("expected error for unknown category")
	}
}

func TestCreateTask_RequiresSession(t *testing.T) {
	in := &fakeIntents{}
	_, err := invoke(context.Background(), in, findTool(t, "create_task"), json.RawMessage(`{"title":"x"}`))
	if !errors.Is(err, store.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestToggleTask_UsesCurrentState(t *testing.T) {
	in := &fakeIntents{snap: store.Snapshot{
		Authenticated: true,
		Tasks:         []domain.Task{{ID: "t1", Title: "Done", Completed: true}},
	}}

	text, err := invoke(context.Background(), in, findTool(t, "toggle_task"), json.RawMessage(`{"key":"t1"}`))
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if prev, ok := in.toggled["t1"]; !ok || !prev {
		t.Fatalf("expected toggle with previous=true, got %v", in.toggled)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if out["completed"] != false {
		t.Fatalf("expected completed=false, got %v", out)
	}

	if _, err := invoke(context.Background(), in, findTool(t, "toggle_task"), json.RawMessage(`{"key":"missing"}`)); !errors.Is(err, store.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
	if _, err := invoke(context.Background(), in, findTool(t, "toggle_task"), nil); !errors.Is(err, errMissingKey) {
		t.Fatalf("expected errMissingKey, got %v", err)
	}
}

func TestListTasks_PendingOnly(t *testing.T) {
	in := &fakeIntents{snap: store.Snapshot{
		Authenticated: true,
		Tasks: []domain.Task{
			{ID: "a", Title: "open"},
			{ID: "b", Title: "closed", Completed: true},
			{LocalID: "local_c", Title: "new", Analyzing: true},
		},
	}}

	text, err := invoke(context.Background(), in, findTool(t, "list_tasks"), json.RawMessage(`{"pending_only":true}`))
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	var views []taskView
	if err := json.Unmarshal([]byte(text), &views); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(views) != 2 || views[0].Key != "a" || views[1].Key != "local_c" || !views[1].Pending {
		t.Fatalf("unexpected views %+v", views)
	}
}

func TestAskOracle_ReturnsText(t *testing.T) {
	text, err := invoke(context.Background(), &fakeIntents{}, findTool(t, "ask_oracle"), json.RawMessage(`{"message":"hi"}`))
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if text != "echo: hi" {
		t.Fatalf("expected raw reply text, got %q", text)
	}
}

func TestSaveIntel_PassesVisibility(t *testing.T) {
	in := &fakeIntents{}
	if _, err := invoke(context.Background(), in, findTool(t, "save_intel"), json.RawMessage(`{"private":true}`)); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if len(in.saved) != 1 || !in.saved[0] {
		t.Fatalf("expected private save, got %v", in.saved)
	}
}

func TestServer_CallToolOverTransport(t *testing.T) {
	ctx := context.Background()
	in := &fakeIntents{err: store.ErrNotAuthenticated}

	server := NewMCPServer(in, "test", "oracle")
	serverT, clientT := mcpsdk.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverT, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	defer ss.Close()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "0"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer cs.Close()

	res, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      "ask_oracle",
		Arguments: map[string]any{"message": "hello"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected tool error result")
	}
	text, ok := res.Content[0].(*mcpsdk.TextContent)
	if !ok || text.Text != store.ErrNotAuthenticated.Error() {
		t.Fatalf("unexpected content %+v", res.Content)
	}
}
