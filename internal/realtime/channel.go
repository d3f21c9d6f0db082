package realtime

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lorrc/turnos-queue/internal/core/domain"
	apperrors "github.com/lorrc/turnos-queue/internal/core/errors"
)

// ConnState is the observable state of the push channel.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"

	// StateSuspended means the automatic reconnect budget ran out.
	// Only an explicit Connect call leaves this state.
	StateSuspended ConnState = "suspended"
)

const (
	// DefaultMaxReconnectAttempts bounds one automatic reconnect cycle.
	DefaultMaxReconnectAttempts = 5

	defaultReconnectBackoff = 2 * time.Second
)

// Client control message types, mirrored by the server's websocket adapter.
const (
	msgJoinTenant  = "JOIN_TENANT"
	msgLeaveTenant = "LEAVE_TENANT"
	msgPing        = "PING"
)

// clientMessage is the wire frame for messages sent to the server.
type clientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// roomPayload is the payload for join/leave messages.
type roomPayload struct {
	TenantID uuid.UUID `json:"tenantId"`
}

// Subscription is a handle returned by On. Passing it to Off removes the
// handler; a second Off with the same handle is a no-op.
type Subscription struct {
	eventType domain.EventType
	id        int
}

// ChannelConfig configures a Channel. Zero values fall back to defaults.
type ChannelConfig struct {
	// URL is the websocket endpoint, e.g. "ws://host/api/v1/ws". The
	// credential token is appended as a query parameter on every dial.
	URL string

	Dialer               *websocket.Dialer
	MaxReconnectAttempts int
	ReconnectBackoff     time.Duration
	Logger               *slog.Logger
}

// Channel maintains one websocket connection to the push endpoint and fans
// incoming events out to registered handlers. Connect is idempotent for the
// same credential; a dropped connection is redialed automatically up to the
// configured attempt budget, after which the channel suspends itself and
// waits for a manual Connect.
type Channel struct {
	url         string
	dialer      *websocket.Dialer
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	state      ConnState
	credential domain.Credential

	// generation invalidates the goroutines of a previous Connect or a
	// Disconnect. Every dial loop carries the generation it was born with.
	generation int

	nextID    int
	handlers  map[domain.EventType]map[int]func(domain.Event)
	stateSubs map[int]func(ConnState)

	// rooms holds tenant rooms to (re)join after every successful dial.
	rooms map[uuid.UUID]bool

	// writeMu serializes writes to the websocket connection.
	writeMu sync.Mutex
}

// NewChannel creates a disconnected channel.
func NewChannel(cfg ChannelConfig) *Channel {
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxReconnectAttempts
	}
	backoff := cfg.ReconnectBackoff
	if backoff <= 0 {
		backoff = defaultReconnectBackoff
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Channel{
		url:         cfg.URL,
		dialer:      dialer,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		logger:      logger.With("component", "channel"),
		state:       StateDisconnected,
		handlers:    make(map[domain.EventType]map[int]func(domain.Event)),
		stateSubs:   make(map[int]func(ConnState)),
		rooms:       make(map[uuid.UUID]bool),
	}
}

// Connect opens the channel with the given credential. Calling it again with
// the same credential while connected or connecting is a no-op. Switching
// credentials requires an explicit Disconnect first. Connect returns as soon
// as the dial loop is started; dial failures surface as state transitions,
// not as errors.
func (c *Channel) Connect(credential domain.Credential) error {
	if credential.IsZero() {
		return apperrors.ErrUnauthorized
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateConnected || c.state == StateConnecting {
		if c.credential == credential {
			return nil
		}
		return apperrors.NewConflictError(apperrors.ErrConflict,
			"channel is open with a different credential, disconnect first")
	}

	c.credential = credential
	c.generation++
	c.setStateLocked(StateConnecting)

	go c.run(c.generation)
	return nil
}

// Disconnect tears the channel down. Idempotent.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.credential = domain.Credential{}
	c.setStateLocked(StateDisconnected)
}

// State returns the current connection state.
func (c *Channel) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// On registers a handler for one event type and returns its subscription
// handle. Handlers run on the read loop goroutine.
func (c *Channel) On(eventType domain.EventType, handler func(domain.Event)) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	if c.handlers[eventType] == nil {
		c.handlers[eventType] = make(map[int]func(domain.Event))
	}
	c.handlers[eventType][c.nextID] = handler
	return &Subscription{eventType: eventType, id: c.nextID}
}

// Off removes a previously registered handler. Safe to call more than once
// and with a nil subscription.
func (c *Channel) Off(sub *Subscription) {
	if sub == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if handlers, ok := c.handlers[sub.eventType]; ok {
		delete(handlers, sub.id)
		if len(handlers) == 0 {
			delete(c.handlers, sub.eventType)
		}
	}
}

// OnStateChange registers a listener for connection state transitions and
// returns an idempotent unsubscribe function.
func (c *Channel) OnStateChange(fn func(ConnState)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	c.stateSubs[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.stateSubs, id)
	}
}

// Emit sends a fire-and-forget control message. Emitting before the channel
// is connected is valid and does nothing.
func (c *Channel) Emit(msgType string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		c.logger.Debug("emit skipped, channel not connected", "type", msgType)
		return nil
	}
	return c.writeMessage(conn, msgType, payload)
}

// JoinTenant subscribes the channel to a tenant room. The room is remembered
// and rejoined automatically after every reconnect.
func (c *Channel) JoinTenant(tenantID uuid.UUID) error {
	c.mu.Lock()
	c.rooms[tenantID] = true
	c.mu.Unlock()

	return c.Emit(msgJoinTenant, roomPayload{TenantID: tenantID})
}

// LeaveTenant unsubscribes the channel from a tenant room.
func (c *Channel) LeaveTenant(tenantID uuid.UUID) error {
	c.mu.Lock()
	delete(c.rooms, tenantID)
	c.mu.Unlock()

	return c.Emit(msgLeaveTenant, roomPayload{TenantID: tenantID})
}

// Ping sends a client-side keep-alive.
func (c *Channel) Ping() error {
	return c.Emit(msgPing, nil)
}

// run is the dial loop of one generation. It redials after failures until the
// attempt budget is spent, then suspends the channel.
func (c *Channel) run(gen int) {
	attempts := 0

	for {
		if c.stale(gen) {
			return
		}

		conn, resp, err := c.dialer.Dial(c.dialURL(), nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			attempts++
			c.logger.Warn("websocket dial failed",
				"attempt", attempts,
				"max_attempts", c.maxAttempts,
				"error", err,
			)
			if attempts >= c.maxAttempts {
				c.suspend(gen)
				return
			}
			time.Sleep(c.backoff)
			continue
		}

		if !c.adopt(gen, conn) {
			_ = conn.Close()
			return
		}
		attempts = 0

		c.rejoinRooms(conn)
		c.readLoop(gen, conn)

		if c.stale(gen) {
			return
		}

		// Connection dropped, start a fresh reconnect cycle.
		c.mu.Lock()
		if c.generation == gen {
			c.conn = nil
			c.setStateLocked(StateConnecting)
		}
		c.mu.Unlock()
	}
}

// readLoop decodes pushed events and dispatches them until the connection
// fails or the generation is invalidated.
func (c *Channel) readLoop(gen int, conn *websocket.Conn) {
	defer func() { _ = conn.Close() }()

	for {
		var event domain.Event
		if err := conn.ReadJSON(&event); err != nil {
			if !c.stale(gen) {
				c.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		if event.Type == domain.EventPong {
			continue
		}
		c.dispatch(event)
	}
}

func (c *Channel) dispatch(event domain.Event) {
	c.mu.Lock()
	handlers := make([]func(domain.Event), 0, len(c.handlers[event.Type]))
	for _, h := range c.handlers[event.Type] {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
}

// adopt installs a freshly dialed connection if the generation is still live.
func (c *Channel) adopt(gen int, conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen {
		return false
	}
	c.conn = conn
	c.setStateLocked(StateConnected)
	return true
}

func (c *Channel) suspend(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen {
		return
	}
	c.conn = nil
	c.setStateLocked(StateSuspended)
	c.logger.Error("reconnect budget exhausted, channel suspended",
		"max_attempts", c.maxAttempts,
	)
}

func (c *Channel) stale(gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation != gen
}

// rejoinRooms re-emits JOIN_TENANT for every remembered room on a fresh
// connection, so subscriptions survive reconnects.
func (c *Channel) rejoinRooms(conn *websocket.Conn) {
	c.mu.Lock()
	rooms := make([]uuid.UUID, 0, len(c.rooms))
	for tenantID := range c.rooms {
		rooms = append(rooms, tenantID)
	}
	c.mu.Unlock()

	for _, tenantID := range rooms {
		if err := c.writeMessage(conn, msgJoinTenant, roomPayload{TenantID: tenantID}); err != nil {
			c.logger.Warn("failed to rejoin tenant room",
				"tenant_id", tenantID,
				"error", err,
			)
		}
	}
}

func (c *Channel) writeMessage(conn *websocket.Conn, msgType string, payload any) error {
	msg := clientMessage{Type: msgType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		msg.Payload = raw
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

func (c *Channel) dialURL() string {
	c.mu.Lock()
	token := c.credential.Token
	c.mu.Unlock()

	u, err := url.Parse(c.url)
	if err != nil {
		return c.url
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// setStateLocked transitions the state and notifies listeners. Callers must
// hold mu; listeners are invoked on a fresh goroutine to avoid re-entrancy.
func (c *Channel) setStateLocked(state ConnState) {
	if c.state == state {
		return
	}
	c.state = state

	listeners := make([]func(ConnState), 0, len(c.stateSubs))
	for _, fn := range c.stateSubs {
		listeners = append(listeners, fn)
	}
	for _, fn := range listeners {
		go fn(state)
	}
}
