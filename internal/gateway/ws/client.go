package ws

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/coder/websocket"
)

// Conn is the dialing side of the protocol.
type Conn struct {
	conn   *websocket.Conn
	reqSeq uint64
	ctx    context.Context
	cancel context.CancelFunc
}

// Dial connects to a gateway WebSocket endpoint.
func Dial(ctx context.Context, url string, header http.Header) (*Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("ws dial: %w", err)
	}
	// Change frames can carry whole intel drops.
	conn.SetReadLimit(4 << 20)

	connCtx, cancel := context.WithCancel(context.Background())
	return &Conn{
		conn:   conn,
		ctx:    connCtx,
		cancel: cancel,
	}, nil
}

// Request sends a request frame and returns its id. The response arrives
// through ReadFrame.
func (c *Conn) Request(ctx context.Context, method Method, params any) (string, error) {
	id := fmt.Sprintf("req-%d", atomic.AddUint64(&c.reqSeq, 1))
	frame, err := NewRequestFrame(id, method, params)
	if err != nil {
		return "", err
	}
	data, err := MarshalFrame(frame)
	if err != nil {
		return "", err
	}
	return id, c.conn.Write(ctx, websocket.MessageText, data)
}

// ReadFrame reads the next frame from the connection.
func (c *Conn) ReadFrame() (Frame, error) {
	_, data, err := c.conn.Read(c.ctx)
	if err != nil {
		return Frame{}, err
	}
	return UnmarshalFrame(data)
}

// Close gracefully closes the connection.
func (c *Conn) Close() error {
	c.cancel()
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}
