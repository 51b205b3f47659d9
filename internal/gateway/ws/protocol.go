package ws

import "encoding/json"

// FrameType represents the type of WebSocket frame.
type FrameType string

const (
	FrameTypeRequest  FrameType = "req"
	FrameTypeResponse FrameType = "res"
	FrameTypeEvent    FrameType = "event"
)

// Method represents a WebSocket request method.
type Method string

const (
	MethodSubscribe   Method = "subscribe"
	MethodUnsubscribe Method = "unsubscribe"
)

// EventChange is the event name of row change frames.
const EventChange = "change"

// SubscribeParams opens a change subscription on a table. Filter is the JSON
// encoding of a row filter.
type SubscribeParams struct {
	Table  string          `json:"table"`
	Filter json.RawMessage `json:"filter,omitempty"`
}

// SubscribeResult identifies an open subscription.
type SubscribeResult struct {
	Subscription string `json:"subscription"`
}

// UnsubscribeParams closes a subscription.
type UnsubscribeParams struct {
	Subscription string `json:"subscription"`
}

// ChangeEvent is the payload of an EventChange frame.
type ChangeEvent struct {
	Subscription string          `json:"subscription"`
	Change       json.RawMessage `json:"change"`
}

// Frame is the WebSocket protocol envelope.
type Frame struct {
	Type      FrameType       `json:"type"`
	ID        string          `json:"id,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	OK        *bool           `json:"ok,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     string          `json:"error,omitempty"`
	Event     string          `json:"event,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
}

// MarshalFrame serializes a Frame to JSON bytes.
func MarshalFrame(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

// UnmarshalFrame deserializes JSON bytes into a Frame.
func UnmarshalFrame(data []byte) (Frame, error) {
	var f Frame
	err := json.Unmarshal(data, &f)
	return f, err
}

// NewRequestFrame creates a request Frame.
func NewRequestFrame(id string, method Method, params any) (Frame, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Type:   FrameTypeRequest,
		ID:     id,
		Method: string(method),
		Params: data,
	}, nil
}

// NewEventFrame creates a Frame for pushing an event.
func NewEventFrame(event string, sessionID string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Type:      FrameTypeEvent,
		Event:     event,
		SessionID: sessionID,
		Payload:   data,
	}, nil
}

// NewResponseFrame creates a response Frame.
func NewResponseFrame(id string, ok bool, payload any, errMsg string) (Frame, error) {
	f := Frame{
		Type:  FrameTypeResponse,
		ID:    id,
		OK:    &ok,
		Error: errMsg,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Frame{}, err
		}
		f.Payload = data
	}
	return f, nil
}
