package ports

import (
	"context"

	"github.com/google/uuid"

	"github.com/lorrc/turnos-queue/internal/core/domain"
)

// ClaimNextParams is the input for atomically claiming the oldest pending
// ticket of a tenant's queue.
type ClaimNextParams struct {
	TenantID    uuid.UUID
	AttendantID uuid.UUID
	ModuleID    *uuid.UUID
}

// TicketRepository defines the persistence port for tickets.
type TicketRepository interface {
	// Create persists a new pending ticket and assigns its ticket number.
	Create(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Ticket, error)
	Update(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error)

	// ListPending returns the oldest pending tickets first, bounded by limit.
	ListPending(ctx context.Context, tenantID uuid.UUID, moduleID *uuid.UUID, limit int32) ([]*domain.Ticket, error)
	// NextPending peeks at the next ticket that would be claimed.
	NextPending(ctx context.Context, tenantID uuid.UUID, moduleID *uuid.UUID) (*domain.Ticket, error)
	// CurrentForAttendant returns the attendant's in-progress ticket, or nil.
	CurrentForAttendant(ctx context.Context, tenantID, attendantID uuid.UUID) (*domain.Ticket, error)
	// ListCalled returns recently called tickets, most recent first.
	ListCalled(ctx context.Context, tenantID uuid.UUID, limit int32) ([]*domain.Ticket, error)
	// ClaimNextPending atomically takes the oldest pending ticket into
	// service. Returns apperrors.ErrQueueEmpty when there is nothing to claim.
	ClaimNextPending(ctx context.Context, params ClaimNextParams) (*domain.Ticket, error)
}

// UserRepository defines the persistence port for users.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// DisplayRepository defines the persistence port for paired displays and
// their one-time pairing codes.
type DisplayRepository interface {
	CreatePairingCode(ctx context.Context, code *domain.PairingCode) error
	GetPairingCode(ctx context.Context, code string) (*domain.PairingCode, error)
	MarkPairingCodeUsed(ctx context.Context, code string) error
	CreateDisplay(ctx context.Context, display *domain.Display) (*domain.Display, error)
	GetDisplay(ctx context.Context, id uuid.UUID) (*domain.Display, error)
}
