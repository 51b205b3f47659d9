package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/dohr-michael/orbit/internal/gateway/ws"
	"github.com/dohr-michael/orbit/internal/remote"
)

// subscriptions serves the realtime protocol: each subscribe request opens a
// policy-filtered feed subscription whose changes are pushed to the client.
type subscriptions struct {
	policy *remote.Policy

	mu   sync.Mutex
	subs map[string]map[string]func() // client id -> subscription id -> cancel
}

func newSubscriptions(policy *remote.Policy) *subscriptions {
	return &subscriptions{
		policy: policy,
		subs:   make(map[string]map[string]func()),
	}
}

func (h *subscriptions) HandleRequest(ctx context.Context, c *ws.Client, f ws.Frame) (any, error) {
	switch ws.Method(f.Method) {
	case ws.MethodSubscribe:
		var p ws.SubscribeParams
		if err := json.Unmarshal(f.Params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return h.subscribe(ctx, c, p)
	case ws.MethodUnsubscribe:
		var p ws.UnsubscribeParams
		if err := json.Unmarshal(f.Params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		h.unsubscribe(c.ID(), p.Subscription)
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown method: %s", f.Method)
	}
}

func (h *subscriptions) subscribe(ctx context.Context, c *ws.Client, p ws.SubscribeParams) (any, error) {
	var filter remote.Filter
	if len(p.Filter) > 0 && string(p.Filter) != "null" {
		if err := json.Unmarshal(p.Filter, &filter); err != nil {
			return nil, fmt.Errorf("invalid filter: %w", err)
		}
	}
	if err := (remote.Query{Filter: filter}).Validate(p.Table); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	cancel, err := h.policy.Subscribe(ctx, sessionFrom(ctx).UserID, p.Table, filter, func(change remote.Change) {
		data, err := json.Marshal(change)
		if err != nil {
			slog.Error("marshal change", "error", err)
			return
		}
		c.Push(ws.EventChange, ws.ChangeEvent{Subscription: id, Change: data})
	})
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	if h.subs[c.ID()] == nil {
		h.subs[c.ID()] = make(map[string]func())
	}
	h.subs[c.ID()][id] = cancel
	h.mu.Unlock()

	slog.Debug("ws subscribed", "client", c.ID(), "table", p.Table, "subscription", id)
	return ws.SubscribeResult{Subscription: id}, nil
}

func (h *subscriptions) unsubscribe(clientID, id string) {
	h.mu.Lock()
	cancel := h.subs[clientID][id]
	delete(h.subs[clientID], id)
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (h *subscriptions) Disconnected(c *ws.Client) {
	h.mu.Lock()
	subs := h.subs[c.ID()]
	delete(h.subs, c.ID())
	h.mu.Unlock()
	for _, cancel := range subs {
		cancel()
	}
}

// count returns the number of open subscriptions.
func (h *subscriptions) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, subs := range h.subs {
		n += len(subs)
	}
	return n
}
