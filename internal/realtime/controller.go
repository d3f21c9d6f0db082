package realtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/lorrc/turnos-queue/internal/core/domain"
	apperrors "github.com/lorrc/turnos-queue/internal/core/errors"
	"github.com/lorrc/turnos-queue/internal/core/ports"
)

// Controller drives an attendant's ticket actions against the gateway and
// applies optimistic cache patches on success. At most one action is in
// flight at a time; a second action while the first is pending fails fast
// with ErrActionInFlight instead of racing it.
type Controller struct {
	scope   domain.ScopeKey
	gateway ports.QueueService
	cache   *Cache
	logger  *slog.Logger

	mu       sync.Mutex
	inFlight bool
}

// NewController creates a controller for one attendant's scope. The scope
// must carry both the tenant and the attendant.
func NewController(scope domain.ScopeKey, gateway ports.QueueService, cache *Cache, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		scope:   scope,
		gateway: gateway,
		cache:   cache,
		logger: logger.With(
			"component", "controller",
			"attendant_id", scope.AttendantID,
		),
	}
}

// CanCallNext reports whether a call-next action would be accepted right
// now: the attendant has no ticket in service and no action is in flight.
// UI code uses this to disable the button before the user can click it.
func (c *Controller) CanCallNext() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.inFlight && c.cache.Get(c.scope).Current == nil
}

// CallNext claims the next pending ticket for this attendant. Rejected
// locally, before any network traffic, when the attendant already serves a
// ticket or another action is still pending.
func (c *Controller) CallNext(ctx context.Context, moduleID *uuid.UUID) (*domain.Ticket, error) {
	if err := c.begin(true); err != nil {
		return nil, err
	}
	defer c.end()

	ticket, err := c.gateway.CallNext(ctx, ports.CallNextParams{
		TenantID:    c.scope.TenantID,
		AttendantID: c.scope.AttendantID,
		ModuleID:    moduleID,
	})
	if err != nil {
		return nil, err
	}

	c.cache.RemovePending(c.scope, ticket.ID)
	c.cache.PatchCurrent(c.scope, ticket)
	c.cache.PushLastCalled(c.scope, ticket)

	c.logger.Info("ticket called", "ticket_id", ticket.ID, "ticket_number", ticket.TicketNumber)
	return ticket, nil
}

// Start begins service on a specific pending ticket instead of the head of
// the queue.
func (c *Controller) Start(ctx context.Context, ticketID uuid.UUID, moduleID *uuid.UUID) (*domain.Ticket, error) {
	if err := c.begin(true); err != nil {
		return nil, err
	}
	defer c.end()

	ticket, err := c.gateway.Start(ctx, ports.StartTicketParams{
		TicketID:    ticketID,
		AttendantID: c.scope.AttendantID,
		ModuleID:    moduleID,
	})
	if err != nil {
		return nil, err
	}

	c.cache.RemovePending(c.scope, ticket.ID)
	c.cache.PatchCurrent(c.scope, ticket)
	c.cache.PushLastCalled(c.scope, ticket)

	c.logger.Info("ticket started", "ticket_id", ticket.ID, "ticket_number", ticket.TicketNumber)
	return ticket, nil
}

// Complete finishes service on a ticket and frees the attendant.
func (c *Controller) Complete(ctx context.Context, ticketID uuid.UUID, notes string) (*domain.Ticket, error) {
	if err := c.begin(false); err != nil {
		return nil, err
	}
	defer c.end()

	ticket, err := c.gateway.Complete(ctx, ports.CompleteTicketParams{
		TicketID: ticketID,
		Notes:    notes,
	})
	if err != nil {
		return nil, err
	}

	c.clearCurrentIf(ticket.ID)

	c.logger.Info("ticket completed", "ticket_id", ticket.ID)
	return ticket, nil
}

// Abandon marks a ticket as abandoned. Works on the ticket in service as
// well as on a pending ticket whose citizen never showed.
func (c *Controller) Abandon(ctx context.Context, ticketID uuid.UUID) (*domain.Ticket, error) {
	if err := c.begin(false); err != nil {
		return nil, err
	}
	defer c.end()

	ticket, err := c.gateway.Abandon(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	c.clearCurrentIf(ticket.ID)
	c.cache.RemovePending(c.scope, ticket.ID)

	c.logger.Info("ticket abandoned", "ticket_id", ticket.ID)
	return ticket, nil
}

// Recall re-announces the ticket in service. Rejected locally once the
// recall limit is visible in the cached ticket, saving a round trip the
// backend would refuse anyway.
func (c *Controller) Recall(ctx context.Context, ticketID uuid.UUID) (*domain.Ticket, error) {
	if err := c.begin(false); err != nil {
		return nil, err
	}
	defer c.end()

	if current := c.cache.Get(c.scope).Current; current != nil &&
		current.ID == ticketID && current.CallCount >= domain.MaxCallCount {
		return nil, apperrors.ErrRecallLimit
	}

	ticket, err := c.gateway.Recall(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	c.cache.PatchCurrent(c.scope, ticket)
	c.cache.PushLastCalled(c.scope, ticket)

	c.logger.Info("ticket recalled", "ticket_id", ticket.ID, "call_count", ticket.CallCount)
	return ticket, nil
}

// begin acquires the single in-flight slot. When guardBusy is set the
// action also requires a free attendant.
func (c *Controller) begin(guardBusy bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight {
		return apperrors.ErrActionInFlight
	}
	if guardBusy && c.cache.Get(c.scope).Current != nil {
		return apperrors.ErrAttendantBusy
	}
	c.inFlight = true
	return nil
}

func (c *Controller) end() {
	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()
}

func (c *Controller) clearCurrentIf(ticketID uuid.UUID) {
	if current := c.cache.Get(c.scope).Current; current != nil && current.ID == ticketID {
		c.cache.PatchCurrent(c.scope, nil)
	}
}
