package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	duckduckgo "github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino-ext/components/tool/bingsearch"
	"github.com/cloudwego/eino-ext/components/tool/googlesearch"
	ecallbacks "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/tool"

	"github.com/dohr-michael/orbit/internal/callbacks"
	"github.com/dohr-michael/orbit/internal/config"
	"github.com/dohr-michael/orbit/internal/domain"
)

const (
	searchToolName = "web_search"
	searchTimeout  = 20 * time.Second
)

// Searcher grounds research queries on live web results.
type Searcher interface {
	Search(ctx context.Context, query string) ([]domain.Source, error)
}

// WebSearch runs an eino search tool and normalizes its results.
type WebSearch struct {
	tool     tool.InvokableTool
	provider string
	max      int
	handler  ecallbacks.Handler
}

// NewWebSearch builds the search tool named by cfg.Provider. It returns
// (nil, nil) when no provider is configured.
func NewWebSearch(ctx context.Context, cfg config.WebSearchConfig) (*WebSearch, error) {
	max := cfg.MaxResults
	if max <= 0 {
		max = 5
	}

	var (
		t   tool.InvokableTool
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "":
		return nil, nil
	case "duckduckgo", "ddg":
		t, err = duckduckgo.NewTextSearchTool(ctx, &duckduckgo.Config{
			ToolName:   searchToolName,
			ToolDesc:   "Search the web using DuckDuckGo.",
			MaxResults: max,
			Timeout:    searchTimeout,
		})
	case "google":
		t, err = googlesearch.NewTool(ctx, &googlesearch.Config{
			APIKey:         cfg.APIKey,
			SearchEngineID: cfg.SearchEngineID,
			Num:            max,
			ToolName:       searchToolName,
			ToolDesc:       "Search the web using Google. Returns titles, URLs, and snippets.",
		})
	case "bing":
		t, err = bingsearch.NewTool(ctx, &bingsearch.Config{
			APIKey:     cfg.APIKey,
			MaxResults: max,
			ToolName:   searchToolName,
			ToolDesc:   "Search the web using Bing. Returns titles, URLs, and descriptions.",
			Timeout:    searchTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown web search provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s search tool: %w", cfg.Provider, err)
	}
	return &WebSearch{tool: t, provider: strings.ToLower(cfg.Provider), max: max}, nil
}

// WithCallbacks makes every search publish tool call events through h.
func (w *WebSearch) WithCallbacks(h ecallbacks.Handler) *WebSearch {
	w.handler = h
	return w
}

// Search runs the tool for query.
func (w *WebSearch) Search(ctx context.Context, query string) ([]domain.Source, error) {
	args, err := json.Marshal(map[string]any{"query": query})
	if err != nil {
		return nil, fmt.Errorf("marshal search args: %w", err)
	}

	ctx = callbacks.WithTool(ctx, w.handler, searchToolName+":"+w.provider)
	ctx = ecallbacks.OnStart(ctx, &tool.CallbackInput{ArgumentsInJSON: string(args)})
	resp, err := w.tool.InvokableRun(ctx, string(args))
	if err != nil {
		ecallbacks.OnError(ctx, err)
		return nil, fmt.Errorf("web search: %w", err)
	}
	ecallbacks.OnEnd(ctx, &tool.CallbackOutput{Response: resp})

	out := parseSearchResults(resp)
	if len(out) > w.max {
		out = out[:w.max]
	}
	return out, nil
}

// parseSearchResults reads the result list of any of the supported tools.
// DuckDuckGo answers {results:[{title,url,summary}]}, Google
// {items:[{title,link,snippet}]} and Bing {results:[{title,url,description}]}.
func parseSearchResults(resp string) []domain.Source {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(resp), &envelope); err != nil {
		return nil
	}
	var items []map[string]any
	for _, key := range []string{"results", "items"} {
		if raw, ok := envelope[key]; ok {
			if err := json.Unmarshal(raw, &items); err == nil {
				break
			}
		}
	}

	out := make([]domain.Source, 0, len(items))
	for _, item := range items {
		s := domain.Source{
			Title:   firstString(item, "title"),
			URL:     firstString(item, "url", "link"),
			Snippet: firstString(item, "snippet", "summary", "description", "desc"),
		}
		if s.URL == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
