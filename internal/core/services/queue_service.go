package services

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/lorrc/turnos-queue/internal/core/domain"
	apperrors "github.com/lorrc/turnos-queue/internal/core/errors"
	"github.com/lorrc/turnos-queue/internal/core/ports"
)

// PendingListLimit bounds the pending list returned to consoles and displays.
const PendingListLimit = 20

// LastCalledLimit bounds the recently-called list shown on displays.
const LastCalledLimit = 3

// QueueService implements the ticket queue lifecycle: create, call-next,
// start, complete, abandon, recall. Every successful mutation is broadcast
// to the ticket's tenant room.
type QueueService struct {
	tickets     ports.TicketRepository
	broadcaster ports.EventBroadcaster
	logger      *slog.Logger
}

var _ ports.QueueService = (*QueueService)(nil)

// NewQueueService creates a new queue service.
func NewQueueService(
	tickets ports.TicketRepository,
	broadcaster ports.EventBroadcaster,
	logger *slog.Logger,
) *QueueService {
	return &QueueService{
		tickets:     tickets,
		broadcaster: broadcaster,
		logger:      logger.With("component", "queue_service"),
	}
}

// CreateTicket registers a new pending ticket in the tenant's queue.
func (s *QueueService) CreateTicket(ctx context.Context, params ports.CreateTicketParams) (*domain.Ticket, error) {
	ticket, err := domain.NewTicket(domain.TicketParams{
		TenantID: params.TenantID,
		ModuleID: params.ModuleID,
		Customer: params.Customer,
	})
	if err != nil {
		return nil, err
	}

	created, err := s.tickets.Create(ctx, ticket)
	if err != nil {
		return nil, err
	}

	s.publish(domain.EventTicketCreated, created)
	return created, nil
}

// ListPending returns the tenant's oldest pending tickets, bounded.
func (s *QueueService) ListPending(ctx context.Context, tenantID uuid.UUID) ([]*domain.Ticket, error) {
	return s.tickets.ListPending(ctx, tenantID, nil, PendingListLimit)
}

// NextPending peeks at the ticket call-next would claim.
func (s *QueueService) NextPending(ctx context.Context, tenantID uuid.UUID, moduleID *uuid.UUID) (*domain.Ticket, error) {
	return s.tickets.NextPending(ctx, tenantID, moduleID)
}

// Current returns the attendant's in-progress ticket, or nil.
func (s *QueueService) Current(ctx context.Context, tenantID, attendantID uuid.UUID) (*domain.Ticket, error) {
	return s.tickets.CurrentForAttendant(ctx, tenantID, attendantID)
}

// LastCalled returns the tenant's recently called tickets, most recent first.
func (s *QueueService) LastCalled(ctx context.Context, tenantID uuid.UUID) ([]*domain.Ticket, error) {
	return s.tickets.ListCalled(ctx, tenantID, LastCalledLimit)
}

// CallNext claims the oldest pending ticket for the attendant. Rejected with
// ErrAttendantBusy while the attendant already has a ticket in progress; the
// repository claim is atomic so two attendants never take the same ticket.
func (s *QueueService) CallNext(ctx context.Context, params ports.CallNextParams) (*domain.Ticket, error) {
	if err := s.ensureAttendantFree(ctx, params.TenantID, params.AttendantID); err != nil {
		return nil, err
	}

	ticket, err := s.tickets.ClaimNextPending(ctx, ports.ClaimNextParams{
		TenantID:    params.TenantID,
		AttendantID: params.AttendantID,
		ModuleID:    params.ModuleID,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ticket called",
		"ticket_number", ticket.TicketNumber,
		"tenant_id", ticket.TenantID,
		"attendant_id", params.AttendantID,
	)

	s.publish(domain.EventTicketCalled, ticket)
	s.publish(domain.EventTicketStarted, ticket)
	return ticket, nil
}

// Start explicitly takes a specific pending ticket into service.
func (s *QueueService) Start(ctx context.Context, params ports.StartTicketParams) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, params.TicketID)
	if err != nil {
		return nil, err
	}

	if err := s.ensureAttendantFree(ctx, ticket.TenantID, params.AttendantID); err != nil {
		return nil, err
	}

	if err := ticket.Call(params.ModuleID, ticket.ModuleName, params.AttendantID); err != nil {
		return nil, err
	}

	updated, err := s.tickets.Update(ctx, ticket)
	if err != nil {
		return nil, err
	}

	s.publish(domain.EventTicketCalled, updated)
	s.publish(domain.EventTicketStarted, updated)
	return updated, nil
}

// Complete finishes the ticket currently in service.
func (s *QueueService) Complete(ctx context.Context, params ports.CompleteTicketParams) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, params.TicketID)
	if err != nil {
		return nil, err
	}

	if err := ticket.Complete(params.Notes); err != nil {
		return nil, err
	}

	updated, err := s.tickets.Update(ctx, ticket)
	if err != nil {
		return nil, err
	}

	s.publish(domain.EventTicketCompleted, updated)
	return updated, nil
}

// Abandon marks a pending or in-progress ticket as abandoned.
func (s *QueueService) Abandon(ctx context.Context, ticketID uuid.UUID) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	if err := ticket.Abandon(); err != nil {
		return nil, err
	}

	updated, err := s.tickets.Update(ctx, ticket)
	if err != nil {
		return nil, err
	}

	s.publish(domain.EventTicketAbandoned, updated)
	return updated, nil
}

// Recall re-announces the ticket in service, up to the recall cap.
func (s *QueueService) Recall(ctx context.Context, ticketID uuid.UUID) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	if err := ticket.Recall(); err != nil {
		return nil, err
	}

	updated, err := s.tickets.Update(ctx, ticket)
	if err != nil {
		return nil, err
	}

	s.publish(domain.EventTicketRecalled, updated)
	return updated, nil
}

// ensureAttendantFree is a fast pre-check. The partial unique index on
// in-progress tickets is what actually closes the race between two claims
// from the same attendant; the repository maps its violation to the same
// ErrAttendantBusy.
func (s *QueueService) ensureAttendantFree(ctx context.Context, tenantID, attendantID uuid.UUID) error {
	current, err := s.tickets.CurrentForAttendant(ctx, tenantID, attendantID)
	if err != nil {
		return err
	}
	if current != nil {
		return apperrors.ErrAttendantBusy
	}
	return nil
}

func (s *QueueService) publish(eventType domain.EventType, ticket *domain.Ticket) {
	err := s.broadcaster.Broadcast(domain.Event{
		Type:     eventType,
		TenantID: ticket.TenantID,
		Ticket:   ticket,
	})
	if err != nil {
		s.logger.Warn("failed to broadcast event",
			"event_type", eventType,
			"ticket_id", ticket.ID,
			"error", err,
		)
	}
}
