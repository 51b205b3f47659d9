package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Handler serves the requests of connected clients.
type Handler interface {
	// HandleRequest answers a request frame. The returned payload is sent
	// back in an ok response, the error in a failed one.
	HandleRequest(ctx context.Context, c *Client, f Frame) (any, error)
	// Disconnected is called once the client is gone.
	Disconnected(c *Client)
}

// Client represents a connected WebSocket client.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// ID identifies the connection.
func (c *Client) ID() string { return c.id }

// Hub manages WebSocket clients and dispatches their requests to a Handler.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	handler Handler
}

// NewHub creates a new WebSocket hub.
func NewHub(handler Handler) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		handler: handler,
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	slog.Info("ws client connected", "client", c.id, "clients", len(h.clients))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
		slog.Info("ws client disconnected", "client", c.id, "clients", len(h.clients))
	}
	h.mu.Unlock()
	if ok && h.handler != nil {
		h.handler.Disconnected(c)
	}
}

// ServeWS handles a WebSocket upgrade and manages the client lifecycle.
// Values of r.Context() are visible to the handler.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Allow any origin; requests are authenticated by token
	})
	if err != nil {
		slog.Error("ws accept", "error", err)
		return
	}

	client := &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}

	h.register(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go client.writePump(ctx)
	client.readPump(ctx)
}

// readPump reads frames from the WS connection and dispatches them.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("ws read closed", "status", websocket.CloseStatus(err))
			} else {
				slog.Debug("ws read error", "error", err)
			}
			return
		}

		frame, err := UnmarshalFrame(data)
		if err != nil {
			slog.Error("ws unmarshal frame", "error", err)
			continue
		}

		switch frame.Type {
		case FrameTypeRequest:
			c.handleRequest(ctx, frame)
		default:
			slog.Debug("ws unknown frame type", "type", frame.Type)
		}
	}
}

func (c *Client) handleRequest(ctx context.Context, frame Frame) {
	if c.hub.handler == nil {
		c.sendError(frame.ID, "unknown method: "+frame.Method)
		return
	}
	payload, err := c.hub.handler.HandleRequest(ctx, c, frame)
	if err != nil {
		c.sendError(frame.ID, err.Error())
		return
	}
	c.sendOK(frame.ID, payload)
}

// writePump writes queued messages to the WS connection.
func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Push queues an event frame. It reports false when the client is gone or
// too slow to keep up.
func (c *Client) Push(event string, payload any) bool {
	f, err := NewEventFrame(event, "", payload)
	if err != nil {
		slog.Error("marshal event frame", "error", err)
		return false
	}
	return c.enqueue(f)
}

func (c *Client) enqueue(f Frame) bool {
	data, err := MarshalFrame(f)
	if err != nil {
		return false
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		slog.Warn("ws client too slow, frame dropped", "client", c.id)
		return false
	}
}

func (c *Client) sendOK(id string, payload any) {
	f, err := NewResponseFrame(id, true, payload, "")
	if err != nil {
		return
	}
	c.enqueue(f)
}

func (c *Client) sendError(id string, errMsg string) {
	f, err := NewResponseFrame(id, false, nil, errMsg)
	if err != nil {
		return
	}
	c.enqueue(f)
}

// Close shuts down all client connections.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.conn.Close(websocket.StatusGoingAway, "server shutdown")
	}
}
