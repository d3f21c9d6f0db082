package domain

import "github.com/google/uuid"

// EventType defines the type of real-time event.
type EventType string

const (
	EventTicketCreated   EventType = "ticket:created"
	EventTicketCalled    EventType = "ticket:called"
	EventTicketStarted   EventType = "ticket:started"
	EventTicketCompleted EventType = "ticket:completed"
	EventTicketAbandoned EventType = "ticket:abandoned"
	EventTicketRecalled  EventType = "ticket:recalled"

	// EventPong is the control reply to a client-side PING.
	EventPong EventType = "PONG"
)

// Event is the payload pushed over the WebSocket channel. Events are routed
// to the room of the tenant that owns the ticket.
type Event struct {
	Type     EventType `json:"type"`
	TenantID uuid.UUID `json:"tenantId"`
	Ticket   *Ticket   `json:"ticket,omitempty"`
}
