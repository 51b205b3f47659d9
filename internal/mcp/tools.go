package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dohr-michael/orbit/internal/domain"
	"github.com/dohr-michael/orbit/internal/store"
)

// Intents is the subset of the store the tools drive.
type Intents interface {
	Snapshot() store.Snapshot
	CreateTask(ctx context.Context, in domain.TaskInput) error
	ToggleTask(ctx context.Context, key string, previous bool) error
	ForfeitTask(ctx context.Context, key string) error
	AskOracle(ctx context.Context, query string) (domain.ChatMessage, error)
	ExecuteIntelQuery(ctx context.Context, query string, deepDive bool) (*domain.IntelQueryResult, error)
	SaveIntelDrop(ctx context.Context, query string, isPrivate bool) error
	PublishManualDrop(ctx context.Context, title, content string, tags []string) error
	FetchIntelDrops(ctx context.Context) error
}

type handler func(ctx context.Context, in Intents, args json.RawMessage) (any, error)

type tool struct {
	spec ToolSpec
	run  handler
}

var errMissingKey = errors.New("key is required")

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return nil
}

// tools lists every tool in registration order.
func tools() []tool {
	return []tool{
		{
			spec: ToolSpec{
				Name:        "list_tasks",
				Group:       "tasks",
				Description: "List the signed-in user's tasks with their completion state.",
				Parameters: map[string]ParamSpec{
					"pending_only": {Type: "boolean", Description: "Only return tasks not yet completed", Default: false},
				},
			},
			run: listTasks,
		},
		{
			spec: ToolSpec{
				Name:        "create_task",
				Group:       "tasks",
				Description: "Create a task. Difficulty is inferred when omitted.",
				Parameters: map[string]ParamSpec{
					"title":      {Type: "string", Description: "Task title", Required: true},
					"category":   {Type: "string", Description: "Effort bucket", Enum: []string{"Quick", "Grind", "Cooked"}},
					"difficulty": {Type: "string", Description: "Effort level", Enum: []string{"Easy", "Medium", "Hard"}},
				},
			},
			run: createTask,
		},
		{
			spec: ToolSpec{
				Name:        "toggle_task",
				Group:       "tasks",
				Description: "Flip the completion state of a task.",
				Parameters: map[string]ParamSpec{
					"key": {Type: "string", Description: "Task id or local id", Required: true},
				},
			},
			run: toggleTask,
		},
		{
			spec: ToolSpec{
				Name:        "forfeit_task",
				Group:       "tasks",
				Description: "Abandon a task. It is removed and counted as forfeited.",
				Parameters: map[string]ParamSpec{
					"key": {Type: "string", Description: "Task id or local id", Required: true},
				},
			},
			run: forfeitTask,
		},
		{
			spec: ToolSpec{
				Name:        "ask_oracle",
				Group:       "oracle",
				Description: "Send a message to the oracle and return its reply.",
				Parameters: map[string]ParamSpec{
					"message": {Type: "string", Description: "The message", Required: true},
				},
			},
			run: askOracle,
		},
		{
			spec: ToolSpec{
				Name:        "intel_query",
				Group:       "intel",
				Description: "Research a topic and return a structured summary.",
				Parameters: map[string]ParamSpec{
					"query":     {Type: "string", Description: "Research topic", Required: true},
					"deep_dive": {Type: "boolean", Description: "Also write a long-form essay", Default: false},
				},
			},
			run: intelQuery,
		},
		{
			spec: ToolSpec{
				Name:        "save_intel",
				Group:       "intel",
				Description: "Persist the last research result as an intel drop.",
				Parameters: map[string]ParamSpec{
					"private": {Type: "boolean", Description: "Keep the drop visible only to its author", Default: false},
				},
			},
			run: saveIntel,
		},
		{
			spec: ToolSpec{
				Name:        "publish_drop",
				Group:       "intel",
				Description: "Publish a hand-written public intel drop.",
				Parameters: map[string]ParamSpec{
					"title":   {Type: "string", Description: "Drop title", Required: true},
					"content": {Type: "string", Description: "Drop body", Required: true},
					"tags":    {Type: "array", Description: "Related concepts"},
				},
			},
			run: publishDrop,
		},
		{
			spec: ToolSpec{
				Name:        "list_drops",
				Group:       "intel",
				Description: "List intel drops visible to the signed-in user.",
			},
			run: listDrops,
		},
	}
}

type taskView struct {
	Key        string `json:"key"`
	Title      string `json:"title"`
	Category   string `json:"category"`
	Difficulty string `json:"difficulty,omitempty"`
	Completed  bool   `json:"completed"`
	Pending    bool   `json:"pending,omitempty"`
}

func listTasks(_ context.Context, in Intents, raw json.RawMessage) (any, error) {
	var args struct {
		PendingOnly bool `json:"pending_only"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	snap := in.Snapshot()
	if !snap.Authenticated {
		return nil, store.ErrNotAuthenticated
	}
	views := make([]taskView, 0, len(snap.Tasks))
	for _, t := range snap.Tasks {
		if args.PendingOnly && t.Completed {
			continue
		}
		views = append(views, taskView{
			Key:        t.Key(),
			Title:      t.Title,
			Category:   string(t.Category),
			Difficulty: string(t.Difficulty),
			Completed:  t.Completed,
			Pending:    t.Pending || t.Analyzing,
		})
	}
	return views, nil
}

func createTask(ctx context.Context, in Intents, raw json.RawMessage) (any, error) {
	var args struct {
		Title      string `json:"title"`
		Category   string `json:"category"`
		Difficulty string `json:"difficulty"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	input := domain.TaskInput{Title: args.Title}
	if args.Category != "" {
		c, err := domain.ParseCategory(args.Category)
		if err != nil {
			return nil, err
		}
		input.Category = c
	}
	if args.Difficulty != "" {
		d, err := domain.ParseDifficulty(args.Difficulty)
		if err != nil {
			return nil, err
		}
		input.Difficulty = d
	}
	if !in.Snapshot().Authenticated {
		return nil, store.ErrNotAuthenticated
	}
	if err := in.CreateTask(ctx, input); err != nil {
		return nil, err
	}
	return map[string]string{"status": "created", "title": strings.TrimSpace(args.Title)}, nil
}

func taskKey(raw json.RawMessage) (string, error) {
	var args struct {
		Key string `json:"key"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return "", err
	}
	if strings.TrimSpace(args.Key) == "" {
		return "", errMissingKey
	}
	return args.Key, nil
}

func toggleTask(ctx context.Context, in Intents, raw json.RawMessage) (any, error) {
	key, err := taskKey(raw)
	if err != nil {
		return nil, err
	}
	t, ok := in.Snapshot().Task(key)
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	if err := in.ToggleTask(ctx, key, t.Completed); err != nil {
		return nil, err
	}
	return map[string]any{"key": t.Key(), "completed": !t.Completed}, nil
}

func forfeitTask(ctx context.Context, in Intents, raw json.RawMessage) (any, error) {
	key, err := taskKey(raw)
	if err != nil {
		return nil, err
	}
	if err := in.ForfeitTask(ctx, key); err != nil {
		return nil, err
	}
	return map[string]string{"status": "forfeited", "key": key}, nil
}

func askOracle(ctx context.Context, in Intents, raw json.RawMessage) (any, error) {
	var args struct {
		Message string `json:"message"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	reply, err := in.AskOracle(ctx, args.Message)
	if err != nil {
		return nil, err
	}
	return reply.Text, nil
}

func intelQuery(ctx context.Context, in Intents, raw json.RawMessage) (any, error) {
	var args struct {
		Query    string `json:"query"`
		DeepDive bool   `json:"deep_dive"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return in.ExecuteIntelQuery(ctx, args.Query, args.DeepDive)
}

func saveIntel(ctx context.Context, in Intents, raw json.RawMessage) (any, error) {
	var args struct {
		Private bool `json:"private"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := in.SaveIntelDrop(ctx, "", args.Private); err != nil {
		return nil, err
	}
	return map[string]any{"status": "saved", "private": args.Private}, nil
}

func publishDrop(ctx context.Context, in Intents, raw json.RawMessage) (any, error) {
	var args struct {
		Title   string   `json:"title"`
		Content string   `json:"content"`
		Tags    []string `json:"tags"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := in.PublishManualDrop(ctx, args.Title, args.Content, args.Tags); err != nil {
		return nil, err
	}
	return map[string]string{"status": "published", "title": args.Title}, nil
}

type dropView struct {
	ID      string   `json:"id"`
	Query   string   `json:"query"`
	Author  string   `json:"author,omitempty"`
	Private bool     `json:"private"`
	Summary []string `json:"summary"`
}

func listDrops(ctx context.Context, in Intents, _ json.RawMessage) (any, error) {
	if err := in.FetchIntelDrops(ctx); err != nil {
		return nil, err
	}
	snap := in.Snapshot()
	views := make([]dropView, 0, len(snap.IntelDrops))
	for _, d := range snap.IntelDrops {
		views = append(views, dropView{
			ID:      d.ID,
			Query:   d.Query,
			Author:  d.AuthorName,
			Private: d.IsPrivate,
			Summary: d.SummaryBullets,
		})
	}
	return views, nil
}
