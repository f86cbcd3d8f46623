// Package gateway implements the connection engine for the OpenClaw gateway:
// connection lifecycle and reconnection, request/response correlation with
// per-request timeouts, and the challenge/connect handshake. One physical
// WebSocket carries independent request/response exchanges and unsolicited
// push events; the engine dispatches inbound frames in arrival order.
package gateway

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openclaw/console/internal/errors"
	"github.com/openclaw/console/internal/interfaces"
	"github.com/openclaw/console/internal/logging"
	"github.com/openclaw/console/internal/protocol"
)

const component = "gateway"

// Default timing parameters for the connection engine
const (
	DefaultDialTimeout    = 10 * time.Second
	DefaultReconnectDelay = 5 * time.Second
	DefaultRequestTimeout = 120 * time.Second
)

// Config holds the resolved connection settings for a gateway client. The
// settings layer owns persistence; the engine only consumes resolved values.
type Config struct {
	// URL is the gateway WebSocket address, e.g. "ws://127.0.0.1:18789".
	URL string

	// Token is the gateway auth credential. Connect fails fast without it.
	Token string

	// Client identity advertised in the connect handshake.
	ClientID      string
	ClientVersion string
	Platform      string
	Mode          string

	// Role and capability scopes requested from the gateway.
	Role   string
	Scopes []string

	// Locale and user-agent metadata for the handshake.
	UserAgent string
	Locale    string

	// DialTimeout bounds the WebSocket opening handshake.
	DialTimeout time.Duration

	// ReconnectDelay is the fixed delay before a reconnection attempt
	// following a non-clean closure.
	ReconnectDelay time.Duration

	// RequestTimeout bounds every request/response exchange.
	RequestTimeout time.Duration
}

// withDefaults fills unset fields with their defaults
func (c Config) withDefaults() Config {
	if c.ClientID == "" {
		c.ClientID = "clawconsole"
	}
	if c.ClientVersion == "" {
		c.ClientVersion = "1.0.0"
	}
	if c.Platform == "" {
		c.Platform = runtime.GOOS
	}
	if c.Mode == "" {
		c.Mode = "webchat"
	}
	if c.Role == "" {
		c.Role = "operator"
	}
	if len(c.Scopes) == 0 {
		c.Scopes = []string{"operator.read", "operator.write"}
	}
	if c.UserAgent == "" {
		c.UserAgent = "clawconsole/" + c.ClientVersion + " (" + c.Platform + ")"
	}
	if c.Locale == "" {
		c.Locale = "en-US"
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	return c
}

// Client is the gateway connection engine. All shared state (transport
// handle, state enum, pending-request map, challenge nonce) is owned by the
// client and mutated only under its mutex through the documented operations.
type Client struct {
	cfg    Config
	logger *logging.Logger

	mu             sync.Mutex
	conn           *websocket.Conn
	state          interfaces.ConnectionState
	gen            uint64 // connection generation, invalidates stale loops
	nonce          string // last challenge nonce; captured, not yet echoed
	pending        map[string]*pendingRequest
	reconnectTimer *time.Timer
	handlers       map[string][]func(json.RawMessage)
	stateHooks     []func(interfaces.ConnectionState)
	noticeHooks    []func(string)

	// writeMu serializes transport writes; gorilla/websocket supports at
	// most one concurrent writer.
	writeMu sync.Mutex

	reqCounter uint64 // guarded by mu
}

var _ interfaces.GatewayClient = (*Client)(nil)

// NewClient creates a gateway client with the given configuration
func NewClient(cfg Config, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.GetGatewayLogger()
	}
	return &Client{
		cfg:      cfg.withDefaults(),
		logger:   logger,
		state:    interfaces.StateDisconnected,
		pending:  make(map[string]*pendingRequest),
		handlers: make(map[string][]func(json.RawMessage)),
	}
}

// State reports the current connection state
func (c *Client) State() interfaces.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Handle registers a handler for a named push event. Handlers run on the
// read loop in frame arrival order; they must not block.
func (c *Client) Handle(event string, handler func(payload json.RawMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], handler)
}

// OnStateChange registers a hook invoked on every state transition
func (c *Client) OnStateChange(hook func(state interfaces.ConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateHooks = append(c.stateHooks, hook)
}

// OnNotice registers a hook for short human-readable connection notices
func (c *Client) OnNotice(hook func(text string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.noticeHooks = append(c.noticeHooks, hook)
}

// Connect begins establishing the gateway connection. It is a no-op when a
// connection attempt is already in flight or established. Without a
// configured token it fails synchronously and never opens the transport.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.state == interfaces.StateConnecting || c.state == interfaces.StateConnected {
		c.mu.Unlock()
		return nil
	}
	if strings.TrimSpace(c.cfg.Token) == "" {
		fire := c.setStateLocked(interfaces.StateDisconnected)
		c.mu.Unlock()
		fire()
		c.notify("token required")
		return errors.NewConfigurationError(component).
			WithOperation("connect").
			WithMessage("token required").
			Build()
	}
	c.gen++
	gen := c.gen
	c.nonce = ""
	url := c.cfg.URL
	fire := c.setStateLocked(interfaces.StateConnecting)
	c.mu.Unlock()
	fire()

	c.logger.LogConnectionAttempt(url)
	go c.dial(gen)
	return nil
}

// Close tears the connection down deliberately: the reconnect timer is
// canceled, no new attempt is scheduled, and every pending request fails
// immediately with a "reconnecting" error.
func (c *Client) Close() error {
	c.mu.Lock()
	c.gen++
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	failed := c.takePendingLocked()
	fire := c.setStateLocked(interfaces.StateDisconnected)
	c.mu.Unlock()
	fire()

	for _, pr := range failed {
		pr.result <- pendingResult{err: errors.NewTransportError(component).
			WithMessage("reconnecting").
			Build()}
	}

	if conn == nil {
		return nil
	}
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return conn.Close()
}

// Reset performs a deliberate teardown followed by a fresh Connect, used
// after configuration changes.
func (c *Client) Reset() error {
	if err := c.Close(); err != nil {
		c.logger.Debug("Close during reset", "error", err.Error())
	}
	return c.Connect()
}

// UpdateConfig replaces the connection settings. The caller is expected to
// follow with Reset so the new settings take effect.
func (c *Client) UpdateConfig(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg.withDefaults()
}

// config returns a snapshot of the connection settings. Goroutines off the
// lock read through this so UpdateConfig never races them.
func (c *Client) config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// dial opens the transport. Transport open is not Connected: the handshake
// (challenge event followed by the connect request) gates usability.
func (c *Client) dial(gen uint64) {
	cfg := c.config()
	dialer := websocket.Dialer{HandshakeTimeout: cfg.DialTimeout}
	conn, resp, err := dialer.Dial(cfg.URL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return
		}
		fire := c.setStateLocked(interfaces.StateReconnecting)
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		fire()
		c.notify("connection failed: " + err.Error())
		return
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(gen, conn)
}

// readLoop reads and dispatches frames until the transport fails. Frames are
// processed strictly in arrival order; a malformed frame is logged and
// dropped without affecting the engine.
func (c *Client) readLoop(gen uint64, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(gen, err)
			return
		}
		frame, derr := protocol.Decode(data)
		if derr != nil {
			c.logger.LogFrameDropped("undecodable", derr)
			continue
		}
		switch frame.Type {
		case protocol.FrameTypeResponse:
			c.settle(frame)
		case protocol.FrameTypeEvent:
			c.dispatchEvent(gen, frame)
		}
	}
}

// handleClose reacts to the transport closing. A clean closure (normal close
// code) ends the lifecycle; anything else schedules a reconnection attempt
// after the fixed delay, replacing any previously scheduled attempt.
func (c *Client) handleClose(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	var fire func()
	if isCleanClose(err) {
		fire = c.setStateLocked(interfaces.StateDisconnected)
	} else {
		fire = c.setStateLocked(interfaces.StateReconnecting)
		c.scheduleReconnectLocked()
	}
	c.mu.Unlock()
	fire()
	c.logger.Debug("Transport closed", "error", err.Error())
}

// isCleanClose reports whether the closure was an explicit, expected shutdown
func isCleanClose(err error) bool {
	var closeErr *websocket.CloseError
	if stderrors.As(err, &closeErr) {
		return closeErr.Code == websocket.CloseNormalClosure
	}
	return false
}

// scheduleReconnectLocked arms the reconnect timer, canceling a previously
// scheduled attempt so at most one timer exists. Caller holds mu.
func (c *Client) scheduleReconnectLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	c.reconnectTimer = time.AfterFunc(c.cfg.ReconnectDelay, func() {
		c.mu.Lock()
		stale := c.state != interfaces.StateReconnecting
		c.mu.Unlock()
		if stale {
			return
		}
		if err := c.Connect(); err != nil {
			c.logger.Warn("Reconnect attempt failed", "error", err.Error())
		}
	})
}

// dispatchEvent routes an event frame to the handshake sequencer or to the
// registered event handlers.
func (c *Client) dispatchEvent(gen uint64, frame *protocol.Frame) {
	if frame.Event == protocol.EventConnectChallenge {
		var challenge protocol.ChallengePayload
		if err := json.Unmarshal(frame.Payload, &challenge); err != nil {
			c.logger.LogFrameDropped(protocol.EventConnectChallenge, err)
			return
		}
		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return
		}
		c.nonce = challenge.Nonce
		c.mu.Unlock()
		go c.performHandshake(gen, challenge.Nonce)
		return
	}

	c.mu.Lock()
	handlers := append([]func(json.RawMessage){}, c.handlers[frame.Event]...)
	c.mu.Unlock()
	for _, h := range handlers {
		h(frame.Payload)
	}
}

// performHandshake issues the authenticated connect request in response to a
// challenge. Success promotes the connection to Connected; failure leaves it
// unusable until the transport itself closes and the reconnect cycle retries.
func (c *Client) performHandshake(gen uint64, nonce string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.config().RequestTimeout)
	defer cancel()

	_, err := c.Request(ctx, protocol.MethodConnect, c.connectParams(nonce))

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	if err != nil {
		fire := c.setStateLocked(interfaces.StateDisconnected)
		c.mu.Unlock()
		fire()
		c.notify("connect failed: " + errors.UserMessage(err))
		return
	}
	fire := c.setStateLocked(interfaces.StateConnected)
	c.mu.Unlock()
	fire()
	c.notify("connected to OpenClaw gateway")
}

// connectParams builds the connect request body. The challenge nonce is
// threaded through so it can join the auth payload once a gateway requires
// it; current gateways validate the connection at the transport layer and
// the nonce goes unused.
func (c *Client) connectParams(nonce string) protocol.ConnectParams {
	_ = nonce
	cfg := c.config()
	return protocol.ConnectParams{
		MinProtocol: protocol.ProtocolVersion,
		MaxProtocol: protocol.ProtocolVersion,
		Client: protocol.ClientInfo{
			ID:       cfg.ClientID,
			Version:  cfg.ClientVersion,
			Platform: cfg.Platform,
			Mode:     cfg.Mode,
		},
		Role:      cfg.Role,
		Scopes:    cfg.Scopes,
		Caps:      []string{},
		Auth:      protocol.AuthParams{Token: cfg.Token},
		UserAgent: cfg.UserAgent,
		Locale:    cfg.Locale,
	}
}

// setStateLocked transitions the connection state and returns a closure that
// fires the state hooks; the caller runs it after releasing mu.
func (c *Client) setStateLocked(state interfaces.ConnectionState) func() {
	if c.state == state {
		return func() {}
	}
	from := c.state
	c.state = state
	hooks := append([]func(interfaces.ConnectionState){}, c.stateHooks...)
	return func() {
		c.logger.LogStateChange(from.String(), state.String())
		for _, h := range hooks {
			h(state)
		}
	}
}

// notify delivers a system notice to all registered notice hooks
func (c *Client) notify(text string) {
	c.mu.Lock()
	hooks := append([]func(string){}, c.noticeHooks...)
	c.mu.Unlock()
	for _, h := range hooks {
		h(text)
	}
}

// write sends one transport message, serialized against concurrent writers
func (c *Client) write(conn *websocket.Conn, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Status fetches gateway status, an informational round-trip also used as a
// connection test.
func (c *Client) Status(ctx context.Context) (*protocol.StatusResult, error) {
	payload, err := c.Request(ctx, protocol.MethodStatus, nil)
	if err != nil {
		return nil, err
	}
	var status protocol.StatusResult
	if err := json.Unmarshal(payload, &status); err != nil {
		return nil, errors.NewProtocolError(component).
			WithOperation(protocol.MethodStatus).
			WithMessage("malformed status payload").
			WithCause(err).
			Build()
	}
	return &status, nil
}

// Sessions lists the gateway's chat sessions
func (c *Client) Sessions(ctx context.Context) ([]protocol.SessionInfo, error) {
	payload, err := c.Request(ctx, protocol.MethodSessionsList, nil)
	if err != nil {
		return nil, err
	}
	var result protocol.SessionsResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, errors.NewProtocolError(component).
			WithOperation(protocol.MethodSessionsList).
			WithMessage("malformed sessions payload").
			WithCause(err).
			Build()
	}
	return result.Sessions, nil
}
