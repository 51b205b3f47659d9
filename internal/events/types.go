package events

// EventType represents the type of event.
type EventType string

const (
	// Session lifecycle
	EventSessionChanged EventType = "session.changed"

	// Store: snapshot transitions
	EventSnapshotChanged EventType = "store.snapshot"
	EventMutation        EventType = "store.mutation"
	EventRealtime        EventType = "store.realtime"
	EventChatMessage     EventType = "chat.message"
	EventIntelResult     EventType = "intel.result"

	// Remote: raw change feed emitted by backends
	EventRemoteChange EventType = "remote.change"

	// Scheduler
	EventResync EventType = "sync.resync"

	// Internal (analytics/tracing)
	EventLLMCall  EventType = "internal.llm.call"
	EventToolCall EventType = "internal.tool.call"
)

// EventSource identifies the component that emitted an event.
type EventSource string

const (
	SourceStore     EventSource = "store"
	SourceRemote    EventSource = "remote"
	SourceGateway   EventSource = "gateway"
	SourceInference EventSource = "inference"
	SourceScheduler EventSource = "scheduler"
	SourceCLI       EventSource = "cli"
)
