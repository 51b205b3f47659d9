package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewMCPServer creates an MCP server exposing store intents as tools.
// If filter is non-empty, only tools matching the filter (by tool name or
// group name) are exposed.
func NewMCPServer(in Intents, version, filter string) *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "orbit",
		Version: version,
	}, nil)

	for _, t := range tools() {
		if !matchesFilter(&t.spec, filter) {
			continue
		}
		server.AddTool(toolSpecToMCPTool(&t.spec), toolHandler(in, t))
		slog.Debug("mcp tool registered", "tool", t.spec.Name)
	}
	return server
}

// ToolNames returns the names of the tools a filter exposes.
func ToolNames(filter string) []string {
	var names []string
	for _, t := range tools() {
		if matchesFilter(&t.spec, filter) {
			names = append(names, t.spec.Name)
		}
	}
	return names
}

func toolHandler(in Intents, t tool) mcpsdk.ToolHandler {
	name := t.spec.Name
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		text, err := invoke(ctx, in, t, req.Params.Arguments)
		if err != nil {
			slog.Debug("mcp tool error", "tool", name, "error", err)
			return &mcpsdk.CallToolResult{
				IsError: true,
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
			}, nil
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
		}, nil
	}
}

// invoke runs a tool and renders its result as text: strings as-is,
// everything else as indented JSON.
func invoke(ctx context.Context, in Intents, t tool, args json.RawMessage) (string, error) {
	result, err := t.run(ctx, in, args)
	if err != nil {
		return "", err
	}
	if s, ok := result.(string); ok {
		return s, nil
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode %s result: %w", t.spec.Name, err)
	}
	return string(data), nil
}
