package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lorrc/turnos-queue/internal/core/domain"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Defaults for the keep-alive schedule, overridable per deployment.
	defaultPongWait     = 60 * time.Second
	defaultPingInterval = (defaultPongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024
)

// Client is a middleman between the websocket connection and the hub. The
// subject behind the connection is either an operator or a paired display.
type Client struct {
	Hub *Hub

	// The websocket connection.
	Conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan domain.Event

	// SubjectID identifies the user or display behind this connection.
	SubjectID uuid.UUID

	// TenantID is the tenant the credential is scoped to. A client may only
	// join this tenant's room.
	TenantID uuid.UUID

	// Kind distinguishes operator sessions from display devices.
	Kind domain.CredentialKind

	// rooms holds the tenant rooms this client has joined.
	rooms map[uuid.UUID]bool

	// pongWait and pingInterval drive the keep-alive schedule.
	// pingInterval must be less than pongWait.
	pongWait     time.Duration
	pingInterval time.Duration

	// closeOnce ensures the Send channel is only closed once
	closeOnce sync.Once

	// mu protects the rooms map
	mu sync.RWMutex

	logger *slog.Logger
}

// ClientParams bundles the inputs for a new client connection.
type ClientParams struct {
	Hub       *Hub
	Conn      *websocket.Conn
	SubjectID uuid.UUID
	TenantID  uuid.UUID
	Kind      domain.CredentialKind

	// PingInterval and PongWait override the default keep-alive schedule
	// when non-zero.
	PingInterval time.Duration
	PongWait     time.Duration

	Logger *slog.Logger
}

// NewClient creates a new WebSocket client
func NewClient(p ClientParams) *Client {
	pongWait := p.PongWait
	if pongWait <= 0 {
		pongWait = defaultPongWait
	}
	pingInterval := p.PingInterval
	if pingInterval <= 0 || pingInterval >= pongWait {
		pingInterval = (pongWait * 9) / 10
	}

	return &Client{
		Hub:          p.Hub,
		Conn:         p.Conn,
		Send:         make(chan domain.Event, 256),
		SubjectID:    p.SubjectID,
		TenantID:     p.TenantID,
		Kind:         p.Kind,
		rooms:        make(map[uuid.UUID]bool),
		pongWait:     pongWait,
		pingInterval: pingInterval,
		logger:       p.Logger.With("subject_id", p.SubjectID.String()),
	}
}

// CloseSend safely closes the Send channel exactly once
func (c *Client) CloseSend() {
	c.closeOnce.Do(func() {
		close(c.Send)
	})
}

// AddRoom records that the client joined a tenant room
func (c *Client) AddRoom(tenantID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[tenantID] = true
}

// RemoveRoom records that the client left a tenant room
func (c *Client) RemoveRoom(tenantID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, tenantID)
}

// InRoom checks if the client has joined a tenant room
func (c *Client) InRoom(tenantID uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rooms[tenantID]
}

// JoinedRooms returns a copy of all joined tenant rooms
func (c *Client) JoinedRooms() []uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	joined := make([]uuid.UUID, 0, len(c.rooms))
	for tenantID := range c.rooms {
		joined = append(joined, tenantID)
	}
	return joined
}

// ReadPump pumps messages from the websocket connection to the hub.
// This method runs in its own goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
		c.logger.Error("failed to set read deadline", "error", err)
		return
	}

	c.Conn.SetPongHandler(func(string) error {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
			c.logger.Error("failed to set read deadline in pong handler", "error", err)
		}
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			break
		}

		c.handleIncomingMessage(message)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
// This method runs in its own goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline", "error", err)
				return
			}

			if !ok {
				// The hub closed the channel. Send close message.
				if err := c.Conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					c.logger.Debug("failed to send close message", "error", err)
				}
				return
			}

			if err := c.writeJSON(event); err != nil {
				c.logger.Error("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline for ping", "error", err)
				return
			}

			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
				return
			}
		}
	}
}

// writeJSON writes a JSON message to the websocket connection
func (c *Client) writeJSON(event domain.Event) error {
	w, err := c.Conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}

	if err := json.NewEncoder(w).Encode(event); err != nil {
		_ = w.Close()
		return err
	}

	return w.Close()
}

// --- Incoming Message Handling ---

// ClientMessage is the structure for messages sent from the client.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// RoomPayload is the payload for join/leave messages
type RoomPayload struct {
	TenantID uuid.UUID `json:"tenantId"`
}

// handleIncomingMessage processes messages received from the client
func (c *Client) handleIncomingMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Warn("failed to unmarshal client message", "error", err)
		return
	}

	switch msg.Type {
	case "JOIN_TENANT":
		c.handleJoin(msg.Payload)

	case "LEAVE_TENANT":
		c.handleLeave(msg.Payload)

	case "PING":
		// Client-side keep-alive, respond with pong
		c.sendPong()

	default:
		c.logger.Debug("received unknown message type", "type", msg.Type)
	}
}

func (c *Client) handleJoin(payload json.RawMessage) {
	var p RoomPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.logger.Warn("failed to unmarshal join payload", "error", err)
		return
	}

	// A credential only opens the room of its own tenant.
	if p.TenantID != c.TenantID {
		c.logger.Warn("join rejected for foreign tenant",
			"requested_tenant", p.TenantID,
			"credential_tenant", c.TenantID,
		)
		return
	}

	c.Hub.joinTenantRoom(c, p.TenantID)
}

func (c *Client) handleLeave(payload json.RawMessage) {
	var p RoomPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.logger.Warn("failed to unmarshal leave payload", "error", err)
		return
	}

	c.Hub.leaveTenantRoom(c, p.TenantID)
}

func (c *Client) sendPong() {
	select {
	case c.Send <- domain.Event{Type: domain.EventPong}:
	default:
		// Channel full, skip pong response
	}
}
