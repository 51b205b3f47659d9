// Package mcp exposes Orbit store intents as MCP tools.
package mcp

import (
	"sort"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ParamSpec describes one tool argument.
type ParamSpec struct {
	Type        string
	Description string
	Required    bool
	Enum        []string
	Default     any
}

// ToolSpec describes a tool and the group it belongs to.
type ToolSpec struct {
	Name        string
	Group       string
	Description string
	Parameters  map[string]ParamSpec
}

// toolSpecToMCPTool converts a ToolSpec to an mcp.Tool with JSON Schema.
func toolSpecToMCPTool(spec *ToolSpec) *mcpsdk.Tool {
	props := make(map[string]any, len(spec.Parameters))
	var required []string

	for name, p := range spec.Parameters {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Type == "array" {
			prop["items"] = map[string]any{"type": "string"}
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		props[name] = prop

		if p.Required {
			required = append(required, name)
		}
	}

	// deterministic output
	sort.Strings(required)

	inputSchema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		inputSchema["required"] = required
	}

	return &mcpsdk.Tool{
		Name:        spec.Name,
		Description: spec.Description,
		InputSchema: inputSchema,
	}
}

// matchesFilter checks if a tool matches the filter, either by tool name or
// by group name (exposing every tool of that group).
func matchesFilter(spec *ToolSpec, filter string) bool {
	return filter == "" || spec.Name == filter || spec.Group == filter
}
