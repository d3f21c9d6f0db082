package websocket

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/lorrc/turnos-queue/internal/core/domain"
	"github.com/lorrc/turnos-queue/internal/core/ports"
)

// Hub maintains the set of active Clients and routes ticket events to the
// room of the tenant that owns them.
type Hub struct {
	// Clients maps subject IDs (user or display) to their active connections.
	// A single subject can have multiple connections (tabs, devices).
	clients map[uuid.UUID]map[*Client]bool

	// Rooms maps tenant IDs to subscribed clients
	rooms map[uuid.UUID]map[*Client]bool

	// Broadcast channel for events
	broadcast chan domain.Event

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	// mu protects the clients and rooms maps
	mu sync.RWMutex

	logger *slog.Logger
}

// Ensure Hub implements the EventBroadcaster interface.
var _ ports.EventBroadcaster = (*Hub)(nil)

// NewHub creates a new WebSocket hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]bool),
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		broadcast:  make(chan domain.Event, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		logger:     logger.With("component", "websocket_hub"),
	}
}

// Broadcast sends an event to the hub's internal broadcast channel.
// This method implements the ports.EventBroadcaster interface.
func (h *Hub) Broadcast(event domain.Event) error {
	select {
	case h.broadcast <- event:
		return nil
	default:
		h.logger.Warn("broadcast channel full, dropping event",
			"event_type", event.Type,
			"tenant_id", event.TenantID,
		)
		return nil
	}
}

// Run starts the hub's event loop. This MUST be run as a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case event := <-h.broadcast:
			h.broadcastEvent(event)
		}
	}
}

// registerClient adds a client to the hub
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.SubjectID] == nil {
		h.clients[client.SubjectID] = make(map[*Client]bool)
	}
	h.clients[client.SubjectID][client] = true

	h.logger.Info("client registered",
		"subject_id", client.SubjectID,
		"kind", client.Kind,
		"total_connections", len(h.clients[client.SubjectID]),
	)
}

// unregisterClient removes a client from the hub and its tenant rooms
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	joined := client.JoinedRooms()

	// 1. Remove from the global subject map
	if subjectClients, ok := h.clients[client.SubjectID]; ok {
		if _, exists := subjectClients[client]; exists {
			delete(subjectClients, client)
			if len(subjectClients) == 0 {
				delete(h.clients, client.SubjectID)
			}
		}
	}

	// 2. Remove from all joined rooms
	for _, tenantID := range joined {
		if room, ok := h.rooms[tenantID]; ok {
			delete(room, client)
			if len(room) == 0 {
				delete(h.rooms, tenantID)
			}
		}
	}

	// 3. Safely close the send channel
	client.CloseSend()

	h.logger.Info("client unregistered",
		"subject_id", client.SubjectID,
	)
}

// broadcastEvent sends an event to all clients in the owning tenant's room
func (h *Hub) broadcastEvent(event domain.Event) {
	h.mu.RLock()
	room, ok := h.rooms[event.TenantID]
	if !ok {
		h.mu.RUnlock()
		return
	}

	// Copy the client list to avoid holding the lock while sending
	clients := make([]*Client, 0, len(room))
	for client := range room {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	h.logger.Debug("broadcasting event",
		"event_type", event.Type,
		"tenant_id", event.TenantID,
		"client_count", len(clients),
	)

	// Send to each client
	for _, client := range clients {
		select {
		case client.Send <- event:
			// Successfully queued
		default:
			// Client's send buffer is full, unregister them. This runs on
			// the hub goroutine, so it must not go through the Unregister
			// channel: the only receiver is this same loop.
			h.logger.Warn("client send buffer full, unregistering",
				"subject_id", client.SubjectID,
			)
			h.unregisterClient(client)
		}
	}
}

// joinTenantRoom adds a client to a tenant's room
func (h *Hub) joinTenantRoom(client *Client, tenantID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[tenantID] == nil {
		h.rooms[tenantID] = make(map[*Client]bool)
	}
	h.rooms[tenantID][client] = true
	client.AddRoom(tenantID)

	h.logger.Debug("client joined tenant room",
		"subject_id", client.SubjectID,
		"tenant_id", tenantID,
	)
}

// leaveTenantRoom removes a client from a tenant's room
func (h *Hub) leaveTenantRoom(client *Client, tenantID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if room, ok := h.rooms[tenantID]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, tenantID)
		}
	}
	client.RemoveRoom(tenantID)

	h.logger.Debug("client left tenant room",
		"subject_id", client.SubjectID,
		"tenant_id", tenantID,
	)
}

// GetClientCount returns the total number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, subjectClients := range h.clients {
		count += len(subjectClients)
	}
	return count
}

// GetRoomCount returns the number of active tenant rooms
func (h *Hub) GetRoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// GetClientsInRoom returns the number of clients in a tenant's room
func (h *Hub) GetClientsInRoom(tenantID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if room, ok := h.rooms[tenantID]; ok {
		return len(room)
	}
	return 0
}

// IsSubjectConnected checks if a subject has any active connections
func (h *Hub) IsSubjectConnected(subjectID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.clients[subjectID]
	return ok && len(clients) > 0
}
