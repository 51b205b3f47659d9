package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dohr-michael/orbit/internal/gateway/ws"
)

// Client is a Gateway over the HTTP and WebSocket API of `orbit serve`.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      SessionCache
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration

	mu          sync.Mutex
	token       string
	tokenLoaded bool

	rtMu sync.Mutex
	rt   *realtime
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, cache SessionCache, httpClient *http.Client) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:7420"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		cache:      cache,
		maxRetries: 3,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   2 * time.Second,
	}
}

func (c *Client) currentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.tokenLoaded {
		c.tokenLoaded = true
		if c.cache != nil {
			token, err := c.cache.Load()
			if err != nil {
				slog.Warn("load session cache", "error", err)
			}
			c.token = token
		}
	}
	return c.token
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	changed := c.token != token
	c.token = token
	c.tokenLoaded = true
	c.mu.Unlock()
	// The socket is authenticated at dial time.
	if changed {
		c.closeRealtime()
	}
	if c.cache == nil {
		return
	}
	var err error
	if token == "" {
		err = c.cache.Clear()
	} else {
		err = c.cache.Save(token)
	}
	if err != nil {
		slog.Warn("session cache", "error", err)
	}
}

func (c *Client) GetSession(ctx context.Context) (*Session, error) {
	if c.currentToken() == "" {
		return nil, nil
	}
	var s Session
	err := c.doJSON(ctx, http.MethodGet, "/api/auth/session", nil, &s, true)
	if errors.Is(err, ErrUnauthorized) {
		c.setToken("")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.AccessToken = c.currentToken()
	return &s, nil
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username,omitempty"`
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	var s Session
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/signin", credentials{Email: email, Password: password}, &s, false); err != nil {
		return nil, err
	}
	c.setToken(s.AccessToken)
	return &s, nil
}

func (c *Client) SignUp(ctx context.Context, email, password string, opts SignUpOptions) (*Session, error) {
	var s Session
	body := credentials{Email: email, Password: password, Username: opts.Username}
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/signup", body, &s, false); err != nil {
		return nil, err
	}
	c.setToken(s.AccessToken)
	return &s, nil
}

func (c *Client) SignOut(ctx context.Context) error {
	c.closeRealtime()
	if c.currentToken() == "" {
		return nil
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/signout", nil, nil, true)
	c.setToken("")
	if errors.Is(err, ErrUnauthorized) {
		return nil
	}
	return err
}

func tablePath(table string, id ...string) string {
	p := "/api/tables/" + url.PathEscape(table)
	for _, part := range id {
		p += "/" + url.PathEscape(part)
	}
	return p
}

type queryResponse struct {
	Records []Record `json:"records"`
}

func (c *Client) Read(ctx context.Context, table string, q Query) ([]Record, error) {
	var resp queryResponse
	if err := c.doJSON(ctx, http.MethodPost, tablePath(table)+"/query", q, &resp, true); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

func (c *Client) Insert(ctx context.Context, table string, rec Record) (Record, error) {
	var out Record
	if err := c.doJSON(ctx, http.MethodPost, tablePath(table), rec, &out, false); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Update(ctx context.Context, table, id string, patch Record) (Record, error) {
	var out Record
	if err := c.doJSON(ctx, http.MethodPatch, tablePath(table, id), patch, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Delete(ctx context.Context, table, id string) error {
	return c.doJSON(ctx, http.MethodDelete, tablePath(table, id), nil, nil, true)
}

// Close drops the realtime connection.
func (c *Client) Close() error {
	c.closeRealtime()
	return nil
}

// doJSON performs a request with bounded retries. Network errors and 5xx
// answers are retried only for idempotent requests; 429 and 503 always.
func (c *Client) doJSON(ctx context.Context, method, requestPath string, body, out any, idempotent bool) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
		if err != nil {
			return err
		}
		if token := c.currentToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		req.Header.Set("X-Correlation-Id", correlationID())
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if idempotent && attempt < c.maxRetries && ctx.Err() == nil {
				if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}
		payloadBytes, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(payloadBytes) == 0 {
				return nil
			}
			return json.Unmarshal(payloadBytes, out)
		}

		if retryableStatus(resp.StatusCode, idempotent) && attempt < c.maxRetries {
			if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}

		var errPayload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(payloadBytes, &errPayload)
		if errPayload.Message == "" {
			errPayload.Message = strings.TrimSpace(string(payloadBytes))
		}
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Code:       errPayload.Code,
			Message:    errPayload.Message,
		}
	}
}

func retryableStatus(status int, idempotent bool) bool {
	switch {
	case status == http.StatusTooManyRequests, status == http.StatusServiceUnavailable:
		return true
	case status >= 500 && status <= 599:
		return idempotent
	}
	return false
}

func correlationID() string {
	return fmt.Sprintf("orbit_%d", time.Now().UnixNano())
}

func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	maxDelay := c.maxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	if retryAfter := parseRetryAfter(retryAfterHeader); retryAfter > 0 {
		if retryAfter > maxDelay {
			return maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := time.Parse(time.RFC1123, header); err == nil {
		delta := time.Until(ts)
		if delta > 0 {
			return delta
		}
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// --- realtime ---

type clientSub struct {
	table    string
	filter   Filter
	fn       func(Change)
	remoteID string
}

type pendingRequest struct {
	done chan ws.Frame
	// onOK runs on the reader goroutine before any later frame is read.
	onOK func(ws.Frame)
}

// realtime multiplexes change subscriptions over one WebSocket connection,
// redialing and resubscribing when it drops.
type realtime struct {
	client *Client

	mu      sync.Mutex
	conn    *ws.Conn
	subs    map[string]*clientSub
	routes  map[string]string // remote subscription id -> local id
	pending map[string]*pendingRequest
	closed  bool
	ready   chan struct{}
}

func (c *Client) wsURL() string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/api/ws"
}

func (c *Client) realtime(ctx context.Context) (*realtime, error) {
	c.rtMu.Lock()
	defer c.rtMu.Unlock()
	if c.rt != nil {
		return c.rt, nil
	}
	rt := &realtime{
		client:  c,
		subs:    make(map[string]*clientSub),
		routes:  make(map[string]string),
		pending: make(map[string]*pendingRequest),
	}
	conn, err := c.dialWS(ctx)
	if err != nil {
		return nil, err
	}
	rt.conn = conn
	go rt.run(conn)
	c.rt = rt
	return rt, nil
}

func (c *Client) dialWS(ctx context.Context) (*ws.Conn, error) {
	header := http.Header{}
	if token := c.currentToken(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return ws.Dial(ctx, c.wsURL(), header)
}

func (c *Client) closeRealtime() {
	c.rtMu.Lock()
	rt := c.rt
	c.rt = nil
	c.rtMu.Unlock()
	if rt != nil {
		rt.close()
	}
}

func (c *Client) Subscribe(ctx context.Context, table string, filter Filter, fn func(Change)) (func(), error) {
	rt, err := c.realtime(ctx)
	if err != nil {
		return nil, err
	}
	localID := uuid.NewString()
	sub := &clientSub{table: table, filter: filter, fn: fn}
	if err := rt.subscribe(ctx, localID, sub); err != nil {
		return nil, err
	}

	stop := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(stop)
			rt.unsubscribe(localID)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-stop:
		}
	}()
	return cancel, nil
}

func (rt *realtime) request(ctx context.Context, conn *ws.Conn, method ws.Method, params any, onOK func(ws.Frame)) (ws.Frame, error) {
	p := &pendingRequest{done: make(chan ws.Frame, 1), onOK: onOK}
	// Hold the lock across the write so the response cannot overtake the
	// registration.
	rt.mu.Lock()
	id, err := conn.Request(ctx, method, params)
	if err == nil {
		rt.pending[id] = p
	}
	rt.mu.Unlock()
	if err != nil {
		return ws.Frame{}, err
	}

	select {
	case f := <-p.done:
		if f.OK == nil || !*f.OK {
			return f, fmt.Errorf("%s: %s", method, f.Error)
		}
		return f, nil
	case <-ctx.Done():
		rt.mu.Lock()
		delete(rt.pending, id)
		rt.mu.Unlock()
		return ws.Frame{}, ctx.Err()
	}
}

func (rt *realtime) subscribe(ctx context.Context, localID string, sub *clientSub) error {
	filter, err := json.Marshal(sub.filter)
	if err != nil {
		return err
	}
	rt.mu.Lock()
	conn := rt.conn
	rt.mu.Unlock()
	if conn == nil {
		return ErrClosed
	}
	_, err = rt.request(ctx, conn, ws.MethodSubscribe, ws.SubscribeParams{Table: sub.table, Filter: filter}, func(f ws.Frame) {
		var res ws.SubscribeResult
		if err := json.Unmarshal(f.Payload, &res); err != nil {
			return
		}
		rt.mu.Lock()
		sub.remoteID = res.Subscription
		rt.subs[localID] = sub
		rt.routes[res.Subscription] = localID
		rt.mu.Unlock()
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", sub.table, err)
	}
	return nil
}

func (rt *realtime) unsubscribe(localID string) {
	rt.mu.Lock()
	sub, ok := rt.subs[localID]
	if ok {
		delete(rt.subs, localID)
		delete(rt.routes, sub.remoteID)
	}
	conn := rt.conn
	rt.mu.Unlock()
	if !ok || conn == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := conn.Request(ctx, ws.MethodUnsubscribe, ws.UnsubscribeParams{Subscription: sub.remoteID}); err != nil {
		slog.Debug("ws unsubscribe", "error", err)
	}
}

// run reads frames until the connection drops, then redials.
func (rt *realtime) run(conn *ws.Conn) {
	for {
		rt.read(conn)

		rt.mu.Lock()
		closed := rt.closed
		for id, p := range rt.pending {
			close(p.done)
			delete(rt.pending, id)
		}
		rt.mu.Unlock()
		if closed {
			return
		}

		next, ok := rt.redial()
		if !ok {
			return
		}
		conn = next
	}
}

func (rt *realtime) read(conn *ws.Conn) {
	for {
		f, err := conn.ReadFrame()
		if err != nil {
			slog.Debug("ws realtime read", "error", err)
			return
		}
		switch f.Type {
		case ws.FrameTypeResponse:
			rt.mu.Lock()
			p, ok := rt.pending[f.ID]
			delete(rt.pending, f.ID)
			rt.mu.Unlock()
			if !ok {
				continue
			}
			if f.OK != nil && *f.OK && p.onOK != nil {
				p.onOK(f)
			}
			p.done <- f
		case ws.FrameTypeEvent:
			if f.Event != ws.EventChange {
				continue
			}
			var ev ws.ChangeEvent
			if err := json.Unmarshal(f.Payload, &ev); err != nil {
				slog.Warn("ws change event", "error", err)
				continue
			}
			var change Change
			if err := json.Unmarshal(ev.Change, &change); err != nil {
				slog.Warn("ws change payload", "error", err)
				continue
			}
			rt.mu.Lock()
			sub := rt.subs[rt.routes[ev.Subscription]]
			rt.mu.Unlock()
			if sub != nil {
				sub.fn(change)
			}
		}
	}
}

// redial reconnects with backoff and reopens every subscription.
func (rt *realtime) redial() (*ws.Conn, bool) {
	for attempt := 1; ; attempt++ {
		rt.mu.Lock()
		if rt.closed {
			rt.mu.Unlock()
			return nil, false
		}
		rt.conn = nil
		rt.mu.Unlock()

		if err := waitWithContext(context.Background(), rt.client.retryDelay(attempt, "")); err != nil {
			return nil, false
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		conn, err := rt.client.dialWS(ctx)
		cancel()
		if err != nil {
			slog.Warn("ws realtime redial", "attempt", attempt, "error", err)
			continue
		}

		rt.mu.Lock()
		if rt.closed {
			rt.mu.Unlock()
			_ = conn.Close()
			return nil, false
		}
		rt.conn = conn
		subs := make(map[string]*clientSub, len(rt.subs))
		for id, s := range rt.subs {
			subs[id] = s
		}
		rt.routes = make(map[string]string)
		rt.mu.Unlock()

		// Responses are consumed by run once it reads from conn.
		go func() {
			for id, s := range subs {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if err := rt.subscribe(ctx, id, s); err != nil {
					slog.Warn("ws resubscribe", "table", s.table, "error", err)
				}
				cancel()
			}
		}()
		slog.Info("ws realtime reconnected", "subscriptions", len(subs))
		return conn, true
	}
}

func (rt *realtime) close() {
	rt.mu.Lock()
	rt.closed = true
	conn := rt.conn
	rt.conn = nil
	rt.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}
