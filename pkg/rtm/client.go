// Package rtm is the websocket RPC client for the platform's real-time
// messaging protocol: request/response frames correlated by request id,
// interleaved with server pushes on the same connection.
package rtm

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"agentsync/pkg/chaterr"
	"agentsync/pkg/logger"
	"agentsync/pkg/models"
	"agentsync/pkg/telemetry"
)

// Config tunes the keepalive behavior.
type Config struct {
	// PingInterval is the idle window after which a protocol ping is
	// sent.
	PingInterval time.Duration
	// PongTimeout force-closes the transport when a ping goes
	// unanswered for this long.
	PongTimeout time.Duration
}

// DefaultConfig matches the platform's documented keepalive windows.
func DefaultConfig() Config {
	return Config{PingInterval: 10 * time.Second, PongTimeout: 5 * time.Second}
}

type pendingRequest struct {
	action string
	done   chan result
}

type result struct {
	payload json.RawMessage
	err     error
}

// Client is a connected RTM session. All exported methods are safe for
// concurrent use; pushes and the close callback run on the read-loop
// goroutine.
type Client struct {
	conn *websocket.Conn
	cfg  Config

	writeMu sync.Mutex

	mu      sync.Mutex
	counter uint64
	pending map[string]*pendingRequest
	closed  bool
	manual  bool

	onPush  func(Push)
	onClose func(manual bool)

	pingReset chan struct{}
	readDone  chan struct{}
}

type frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Action    string          `json:"action,omitempty"`
	Success   *bool           `json:"success,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type request struct {
	RequestID string `json:"request_id"`
	Action    string `json:"action"`
	Payload   any    `json:"payload,omitempty"`
}

// Dial opens the websocket and starts the read and keepalive loops.
// Set OnPush/OnClose before issuing requests that can race with pushes.
func Dial(ctx context.Context, url string, cfg Config) (*Client, error) {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 10 * time.Second
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 5 * time.Second
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		telemetry.Reconnects.WithLabelValues("dial_error").Inc()
		return nil, chaterr.Wrap(chaterr.KindConnection, "connection was closed", err)
	}

	c := &Client{
		conn:      conn,
		cfg:       cfg,
		pending:   map[string]*pendingRequest{},
		pingReset: make(chan struct{}, 1),
		readDone:  make(chan struct{}),
	}
	go c.readLoop()
	go c.keepalive()
	return c, nil
}

// OnPush sets the push handler. Pushes are delivered in arrival order.
func (c *Client) OnPush(fn func(Push)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPush = fn
}

// OnClose sets the close callback. manual reports whether Close was
// called locally; a transport failure reports false so callers know to
// reconnect.
func (c *Client) OnClose(fn func(manual bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

// Close shuts the connection down deliberately. Pending requests fail
// with request_timeout; the close callback reports manual=true.
func (c *Client) Close() error {
	c.mu.Lock()
	c.manual = true
	c.mu.Unlock()
	return c.conn.Close()
}

// Perform sends one request and waits for its response. Context
// cancellation abandons the request with an aborted error and removes
// the pending entry, so a late answer cannot resolve anything twice.
// A connection loss while waiting yields request_timeout.
func (c *Client) Perform(ctx context.Context, action string, payload any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, chaterr.New(chaterr.KindRequestTimeout, "request timeout").WithStatus(400)
	}
	c.counter++
	requestID := strconv.FormatUint(c.counter, 10)
	p := &pendingRequest{action: action, done: make(chan result, 1)}
	c.pending[requestID] = p
	c.mu.Unlock()

	start := time.Now()

	c.writeMu.Lock()
	err := c.conn.WriteJSON(request{RequestID: requestID, Action: action, Payload: payload})
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
		telemetry.RequestsSent.WithLabelValues(action, "write_error").Inc()
		return nil, chaterr.Wrap(chaterr.KindRequestTimeout, "request timeout", err).WithStatus(400)
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
		telemetry.RequestsSent.WithLabelValues(action, "aborted").Inc()
		return nil, chaterr.Wrap(chaterr.KindAborted, "aborted", ctx.Err())
	case res := <-p.done:
		telemetry.RequestDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
		if res.err != nil {
			telemetry.RequestsSent.WithLabelValues(action, "error").Inc()
			return nil, res.err
		}
		telemetry.RequestsSent.WithLabelValues(action, "ok").Inc()
		return res.payload, nil
	}
}

// LoginRequest is the login action's request body. Zero-valued fields
// are omitted from the frame.
type LoginRequest struct {
	Token         string         `json:"token"`
	Timezone      string         `json:"timezone,omitempty"`
	Reconnect     bool           `json:"reconnect,omitempty"`
	Application   map[string]any `json:"application,omitempty"`
	PushesEnabled bool           `json:"pushes,omitempty"`
}

// LoginResponse is the parsed login payload.
type LoginResponse struct {
	License      models.License
	MyProfile    models.MyProfile
	ChatsSummary []models.Chat
}

// Login authenticates the connection. An authentication failure comes
// back with the authentication kind and must not be retried with the
// same token.
func (c *Client) Login(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	raw, err := c.Perform(ctx, "login", req)
	if err != nil {
		return LoginResponse{}, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return LoginResponse{}, chaterr.Wrap(chaterr.KindInternal, "failed to parse login response", err)
	}
	return LoginResponse{
		License:      models.ParseLicense(m["license"]),
		MyProfile:    models.ParseMyProfile(m["my_profile"]),
		ChatsSummary: models.ParseChatsSummary(m["chats_summary"]),
	}, nil
}

// ListChatsResponse is one page of the chat summary listing.
type ListChatsResponse struct {
	Chats      []models.Chat
	FoundChats int
	NextPageID string
}

// ListChats fetches one page of chat summaries.
func (c *Client) ListChats(ctx context.Context, payload any) (ListChatsResponse, error) {
	raw, err := c.Perform(ctx, "list_chats", payload)
	if err != nil {
		return ListChatsResponse{}, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return ListChatsResponse{}, chaterr.Wrap(chaterr.KindInternal, "failed to parse list_chats response", err)
	}
	found, _ := m["found_chats"].(float64)
	next, _ := m["next_page_id"].(string)
	return ListChatsResponse{
		Chats:      models.ParseChatsSummary(m["chats_summary"]),
		FoundChats: int(found),
		NextPageID: next,
	}, nil
}

// SetRoutingStatus changes this agent's availability.
func (c *Client) SetRoutingStatus(ctx context.Context, status models.RoutingStatus) error {
	_, err := c.Perform(ctx, "set_routing_status", map[string]any{"status": string(status)})
	return err
}

func (c *Client) readLoop() {
	defer close(c.readDone)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.shutdown()
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			logger.Warn("rtm: undecodable frame", "err", err)
			continue
		}
		switch f.Type {
		case "response":
			c.resolve(f)
		case "push":
			telemetry.PushesReceived.WithLabelValues(f.Action).Inc()
			c.mu.Lock()
			handler := c.onPush
			c.mu.Unlock()
			if handler != nil {
				handler(ParsePush(f.Action, f.Payload))
			}
		}
	}
}

func (c *Client) resolve(f frame) {
	c.mu.Lock()
	p, ok := c.pending[f.RequestID]
	if ok {
		delete(c.pending, f.RequestID)
	}
	c.mu.Unlock()
	if !ok {
		logger.Warn("rtm: response without pending request", "request_id", f.RequestID, "action", f.Action)
		return
	}

	// any resolved response proves the transport alive; restart the
	// keepalive idle window
	select {
	case c.pingReset <- struct{}{}:
	default:
	}

	if f.Success != nil && *f.Success {
		payload := f.Payload
		if len(payload) == 0 {
			payload = json.RawMessage("{}")
		}
		p.done <- result{payload: payload}
		return
	}

	var body struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(f.Payload, &body)
	msg := body.Error.Message
	if msg == "" {
		msg = "failed to parse response"
	}
	p.done <- result{err: chaterr.FromWire(body.Error.Type, msg).WithStatus(400)}
}

// shutdown rejects every pending request and fires the close callback
// exactly once.
func (c *Client) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	manual := c.manual
	pending := c.pending
	c.pending = map[string]*pendingRequest{}
	onClose := c.onClose
	c.mu.Unlock()

	for _, p := range pending {
		p.done <- result{err: chaterr.New(chaterr.KindRequestTimeout, "request timeout").WithStatus(400)}
	}

	telemetry.Connected.Set(0)
	if onClose != nil {
		onClose(manual)
	}
}

// keepalive pings after every idle interval and force-closes the
// transport when the answer does not arrive inside the pong window.
// Regular request traffic resets the idle window, so an active
// connection is never pinged.
func (c *Client) keepalive() {
	timer := time.NewTimer(c.cfg.PingInterval)
	defer timer.Stop()
	for {
		select {
		case <-c.readDone:
			return
		case <-c.pingReset:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(c.cfg.PingInterval)
			continue
		case <-timer.C:
			timer.Reset(c.cfg.PingInterval)
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.PongTimeout)
		_, err := c.Perform(ctx, "ping", nil)
		cancel()
		if err != nil {
			logger.Warn("rtm: keepalive failed, closing connection", "err", err)
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(4000, "keepalive"), time.Now().Add(time.Second))
			c.conn.Close()
			return
		}
	}
}
