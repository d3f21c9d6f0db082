package ports

import (
	"context"

	"github.com/google/uuid"

	"github.com/lorrc/turnos-queue/internal/core/domain"
)

// CreateTicketParams defines the input for registering a new ticket in the
// queue, from a kiosk flow or an admin screen.
type CreateTicketParams struct {
	TenantID uuid.UUID
	ModuleID *uuid.UUID
	Customer domain.CustomerSnapshot
}

// CallNextParams defines the input for calling the next pending ticket.
type CallNextParams struct {
	TenantID    uuid.UUID
	AttendantID uuid.UUID
	ModuleID    *uuid.UUID
}

// StartTicketParams defines the input for explicitly starting a ticket.
type StartTicketParams struct {
	TicketID    uuid.UUID
	AttendantID uuid.UUID
	ModuleID    *uuid.UUID
}

// CompleteTicketParams defines the input for completing a ticket.
type CompleteTicketParams struct {
	TicketID uuid.UUID
	Notes    string
}

// QueueService defines the core business operations of the ticket queue.
type QueueService interface {
	CreateTicket(ctx context.Context, params CreateTicketParams) (*domain.Ticket, error)
	ListPending(ctx context.Context, tenantID uuid.UUID) ([]*domain.Ticket, error)
	NextPending(ctx context.Context, tenantID uuid.UUID, moduleID *uuid.UUID) (*domain.Ticket, error)
	Current(ctx context.Context, tenantID, attendantID uuid.UUID) (*domain.Ticket, error)
	LastCalled(ctx context.Context, tenantID uuid.UUID) ([]*domain.Ticket, error)
	CallNext(ctx context.Context, params CallNextParams) (*domain.Ticket, error)
	Start(ctx context.Context, params StartTicketParams) (*domain.Ticket, error)
	Complete(ctx context.Context, params CompleteTicketParams) (*domain.Ticket, error)
	Abandon(ctx context.Context, ticketID uuid.UUID) (*domain.Ticket, error)
	Recall(ctx context.Context, ticketID uuid.UUID) (*domain.Ticket, error)
}

// AuthService defines the port for authentication business logic.
type AuthService interface {
	Register(ctx context.Context, email, fullName, password string, role domain.UserRole, tenantID uuid.UUID) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*domain.User, error)
}

// PairingService defines the port for display pairing.
type PairingService interface {
	// GeneratePairingCode creates a one-time code an admin hands to a display.
	GeneratePairingCode(ctx context.Context, tenantID uuid.UUID) (*domain.PairingCode, error)
	// Pair exchanges a valid code for a paired display and its device token.
	Pair(ctx context.Context, code, displayName string) (*domain.Display, string, error)
}

// DisplayTokenIssuer mints long-lived device credentials for paired displays.
type DisplayTokenIssuer interface {
	IssueDisplayToken(displayID, tenantID uuid.UUID) (string, error)
}

// EventBroadcaster defines the port for pushing real-time events to
// subscribed clients.
type EventBroadcaster interface {
	Broadcast(event domain.Event) error
}
