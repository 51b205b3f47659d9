package events

import (
	"encoding/json"
	"time"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

// =============================================================================
// SESSION & STORE EVENTS
// =============================================================================

type SessionPayload struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"user_id,omitempty"`
	Username      string `json:"username,omitempty"`
}

func (SessionPayload) EventType() EventType { return EventSessionChanged }

// SnapshotPayload summarizes the snapshot after a transform was applied.
type SnapshotPayload struct {
	Reason string `json:"reason"`
	Tasks  int    `json:"tasks"`
	Drops  int    `json:"drops"`
	Chat   int    `json:"chat"`
}

func (SnapshotPayload) EventType() EventType { return EventSnapshotChanged }

type MutationPayload struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Target string `json:"target,omitempty"`
	State  string `json:"state"`
	Error  string `json:"error,omitempty"`
}

func (MutationPayload) EventType() EventType { return EventMutation }

type RealtimePayload struct {
	Table    string `json:"table"`
	Kind     string `json:"kind"`
	RecordID string `json:"record_id,omitempty"`
}

func (RealtimePayload) EventType() EventType { return EventRealtime }

type ChatMessagePayload struct {
	ID     string `json:"id"`
	Role   string `json:"role"`
	Text   string `json:"text"`
	Urgent bool   `json:"urgent,omitempty"`
}

func (ChatMessagePayload) EventType() EventType { return EventChatMessage }

type IntelResultPayload struct {
	Query    string `json:"query"`
	DeepDive bool   `json:"deep_dive"`
	Bullets  int    `json:"bullets,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (IntelResultPayload) EventType() EventType { return EventIntelResult }

// =============================================================================
// REMOTE EVENTS
// =============================================================================

// RemoteChangePayload is a row change emitted by a backend.
type RemoteChangePayload struct {
	Table  string         `json:"table"`
	Kind   string         `json:"kind"`
	Record map[string]any `json:"record,omitempty"`
	Old    map[string]any `json:"old,omitempty"`
}

func (RemoteChangePayload) EventType() EventType { return EventRemoteChange }

// =============================================================================
// SCHEDULER EVENTS
// =============================================================================

type ResyncPayload struct {
	Trigger  string        `json:"trigger"`
	Duration time.Duration `json:"duration,omitempty"`
	Error    string        `json:"error,omitempty"`
}

func (ResyncPayload) EventType() EventType { return EventResync }

// =============================================================================
// INTERNAL EVENTS
// =============================================================================

type LLMCallPayload struct {
	Phase        string        `json:"phase"`
	Model        string        `json:"model"`
	Provider     string        `json:"provider,omitempty"`
	MessageCount int           `json:"message_count,omitempty"`
	TokensInput  int           `json:"tokens_input,omitempty"`
	TokensOutput int           `json:"tokens_output,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
	Error        string        `json:"error,omitempty"`
}

func (LLMCallPayload) EventType() EventType { return EventLLMCall }

type ToolStatus string

const (
	ToolStatusStarted   ToolStatus = "started"
	ToolStatusCompleted ToolStatus = "completed"
	ToolStatusFailed    ToolStatus = "failed"
)

type ToolCallPayload struct {
	Status    ToolStatus     `json:"status"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    string         `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

func (ToolCallPayload) EventType() EventType { return EventToolCall }

// =============================================================================
// TYPED EVENT CONSTRUCTORS
// =============================================================================

func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return Event{
		ID:        generateEventID(),
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

func NewTypedEventWithSession(source EventSource, payload EventPayload, sessionID string) Event {
	e := NewTypedEvent(source, payload)
	e.SessionID = sessionID
	return e
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// =============================================================================
// TYPED PAYLOAD EXTRACTORS
// =============================================================================

func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	if e.Type != result.EventType() {
		return result, false
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}

func GetMutationPayload(e Event) (MutationPayload, bool) {
	return ExtractPayload[MutationPayload](e)
}

func GetRemoteChangePayload(e Event) (RemoteChangePayload, bool) {
	return ExtractPayload[RemoteChangePayload](e)
}

func GetLLMCallPayload(e Event) (LLMCallPayload, bool) {
	return ExtractPayload[LLMCallPayload](e)
}
