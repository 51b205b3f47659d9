// Package callbacks bridges eino component callbacks to the event bus so that
// `orbit watch` can follow inference traffic.
package callbacks

import (
	"context"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	ub "github.com/cloudwego/eino/utils/callbacks"

	"github.com/dohr-michael/orbit/internal/events"
)

const maxPayload = 1000

type startKey struct{}

// Publisher is the part of the event bus the handler needs.
type Publisher interface {
	Publish(events.Event)
}

// NewEventBusHandler creates a callback handler that publishes LLM and tool
// call events to pub.
func NewEventBusHandler(pub Publisher, source events.EventSource) callbacks.Handler {
	if source == "" {
		source = events.SourceInference
	}

	publishTyped := func(ctx context.Context, payload events.EventPayload) {
		if sid := events.SessionIDFromContext(ctx); sid != "" {
			pub.Publish(events.NewTypedEventWithSession(source, payload, sid))
		} else {
			pub.Publish(events.NewTypedEvent(source, payload))
		}
	}

	modelHandler := &ub.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *callbacks.RunInfo, input *model.CallbackInput) context.Context {
			publishTyped(ctx, events.LLMCallPayload{
				Phase:        "request",
				Model:        info.Name,
				Provider:     info.Type,
				MessageCount: len(input.Messages),
			})
			return context.WithValue(ctx, startKey{}, time.Now())
		},
		OnEnd: func(ctx context.Context, info *callbacks.RunInfo, output *model.CallbackOutput) context.Context {
			payload := events.LLMCallPayload{
				Phase:    "response",
				Model:    info.Name,
				Provider: info.Type,
				Duration: elapsed(ctx),
			}
			if output.TokenUsage != nil {
				payload.TokensInput = output.TokenUsage.PromptTokens
				payload.TokensOutput = output.TokenUsage.CompletionTokens
			} else if output.Message != nil && output.Message.ResponseMeta != nil && output.Message.ResponseMeta.Usage != nil {
				payload.TokensInput = output.Message.ResponseMeta.Usage.PromptTokens
				payload.TokensOutput = output.Message.ResponseMeta.Usage.CompletionTokens
			}
			publishTyped(ctx, payload)
			return ctx
		},
		OnError: func(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
			publishTyped(ctx, events.LLMCallPayload{
				Phase:    "error",
				Model:    info.Name,
				Provider: info.Type,
				Duration: elapsed(ctx),
				Error:    err.Error(),
			})
			return ctx
		},
	}

	toolHandler := &ub.ToolCallbackHandler{
		OnStart: func(ctx context.Context, info *callbacks.RunInfo, input *tool.CallbackInput) context.Context {
			payload := events.ToolCallPayload{
				Status: events.ToolStatusStarted,
				Name:   info.Name,
			}
			if input != nil && input.ArgumentsInJSON != "" {
				payload.Arguments = map[string]any{"raw": truncatePayload(input.ArgumentsInJSON, maxPayload)}
			}
			publishTyped(ctx, payload)
			return ctx
		},
		OnEnd: func(ctx context.Context, info *callbacks.RunInfo, output *tool.CallbackOutput) context.Context {
			payload := events.ToolCallPayload{
				Status: events.ToolStatusCompleted,
				Name:   info.Name,
			}
			if output != nil {
				payload.Result = truncatePayload(output.Response, maxPayload)
			}
			publishTyped(ctx, payload)
			return ctx
		},
		OnError: func(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
			publishTyped(ctx, events.ToolCallPayload{
				Status: events.ToolStatusFailed,
				Name:   info.Name,
				Error:  err.Error(),
			})
			return ctx
		},
	}

	return ub.NewHandlerHelper().
		ChatModel(modelHandler).
		Tool(toolHandler).
		Handler()
}

// WithModel attaches handler to ctx for one chat model call. role names the
// inference task, driver the backend.
func WithModel(ctx context.Context, handler callbacks.Handler, role, driver string) context.Context {
	if handler == nil {
		return ctx
	}
	return callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      role,
		Type:      driver,
		Component: components.ComponentOfChatModel,
	}, handler)
}

// WithTool attaches handler to ctx for one tool invocation.
func WithTool(ctx context.Context, handler callbacks.Handler, name string) context.Context {
	if handler == nil {
		return ctx
	}
	return callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      name,
		Component: components.ComponentOfTool,
	}, handler)
}

func elapsed(ctx context.Context) time.Duration {
	if start, ok := ctx.Value(startKey{}).(time.Time); ok {
		return time.Since(start)
	}
	return 0
}

func truncatePayload(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "... (truncated)"
}
