package ws

import (
	"encoding/json"
	"testing"
)

func TestMarshalUnmarshal_RequestFrame(t *testing.T) {
	orig, err := NewRequestFrame("req-1", MethodSubscribe, SubscribeParams{
		Table:  "tasks",
		Filter: json.RawMessage(`{"all":[{"column":"user_id","op":"eq","value":"u1"}]}`),
	})
	if err != nil {
		t.Fatalf("NewRequestFrame: %v", err)
	}

	data, err := MarshalFrame(orig)
	if err != nil {
		t.Fatalf("MarshalFrame: %v", err)
	}

	got, err := UnmarshalFrame(data)
	if err != nil {
		t.Fatalf("UnmarshalFrame: %v", err)
	}

	if got.Type != FrameTypeRequest {
		t.Fatalf("expected type %q, got %q", FrameTypeRequest, got.Type)
	}
	if got.ID != "req-1" {
		t.Fatalf("expected id %q, got %q", "req-1", got.ID)
	}
	if got.Method != string(MethodSubscribe) {
		t.Fatalf("expected method %q, got %q", MethodSubscribe, got.Method)
	}

	var p SubscribeParams
	if err := json.Unmarshal(got.Params, &p); err != nil {
		t.Fatalf("unmarshal params: %v", err)
	}
	if p.Table != "tasks" {
		t.Fatalf("expected params.table %q, got %q", "tasks", p.Table)
	}
	if len(p.Filter) == 0 {
		t.Fatal("expected filter to survive the round trip")
	}
}

func TestMarshalUnmarshal_ResponseFrame(t *testing.T) {
	orig, err := NewResponseFrame("req-1", true, SubscribeResult{Subscription: "sub_1"}, "")
	if err != nil {
		t.Fatalf("NewResponseFrame: %v", err)
	}

	data, err := MarshalFrame(orig)
	if err != nil {
		t.Fatalf("MarshalFrame: %v", err)
	}

	got, err := UnmarshalFrame(data)
	if err != nil {
		t.Fatalf("UnmarshalFrame: %v", err)
	}
	if got.OK == nil || !*got.OK {
		t.Fatal("expected ok=true")
	}

	var res SubscribeResult
	if err := json.Unmarshal(got.Payload, &res); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if res.Subscription != "sub_1" {
		t.Fatalf("expected subscription %q, got %q", "sub_1", res.Subscription)
	}
}

func TestNewResponseFrame_Error(t *testing.T) {
	f, err := NewResponseFrame("req-2", false, nil, "unknown method: nope")
	if err != nil {
		t.Fatalf("NewResponseFrame: %v", err)
	}
	if f.OK == nil || *f.OK {
		t.Fatal("expected ok=false")
	}
	if f.Payload != nil {
		t.Fatalf("expected no payload, got %s", f.Payload)
	}
	if f.Error != "unknown method: nope" {
		t.Fatalf("unexpected error %q", f.Error)
	}
}

func TestNewEventFrame(t *testing.T) {
	f, err := NewEventFrame(EventChange, "", ChangeEvent{
		Subscription: "sub_1",
		Change:       json.RawMessage(`{"kind":"insert","table":"tasks"}`),
	})
	if err != nil {
		t.Fatalf("NewEventFrame: %v", err)
	}
	if f.Type != FrameTypeEvent || f.Event != EventChange {
		t.Fatalf("unexpected frame: %+v", f)
	}

	var ev ChangeEvent
	if err := json.Unmarshal(f.Payload, &ev); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if ev.Subscription != "sub_1" {
		t.Fatalf("expected subscription %q, got %q", "sub_1", ev.Subscription)
	}
}
